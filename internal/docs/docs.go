// Package docs loads the fixed set of named reference documents that ground
// generator calls. Documents are opaque byte blobs; a missing document means
// the consuming step runs without grounding, it is not an error.
package docs

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Canonical reference-document names.
const (
	IndustryGuidelines  = "industry-uw-guidelines"
	RatingManual        = "rating-manual"
	RatingFactors       = "rating-factors"
	AuthorityLevels     = "authority-levels"
	CoverageLimitations = "coverage-limitations"
	CoverageOptions     = "coverage-options"
	CommercialTemplates = "commercial-lines-app-templates"
	PolicyFormLibrary   = "policy-form-library"
)

// CanonicalNames is the full document set in stable order.
var CanonicalNames = []string{
	IndustryGuidelines,
	RatingManual,
	RatingFactors,
	AuthorityLevels,
	CoverageLimitations,
	CoverageOptions,
	CommercialTemplates,
	PolicyFormLibrary,
}

// Store provides named reference documents to generator calls.
type Store interface {
	// Get returns the document content. ok is false when the document is
	// absent; callers proceed ungrounded in that case.
	Get(name string) (content []byte, ok bool)
	// Names returns the names of all loaded documents, sorted.
	Names() []string
}

type manifest struct {
	Documents map[string]string `yaml:"documents"`
}

// FSStore is a Store loaded once from disk via a YAML manifest mapping
// document names to file paths relative to the manifest's directory.
type FSStore struct {
	docs map[string][]byte
}

// Load reads the manifest at dir/manifestName and loads every listed
// document. Files listed but missing on disk are skipped with a warning.
func Load(dir, manifestName string) (*FSStore, error) {
	raw, err := os.ReadFile(filepath.Join(dir, manifestName))
	if err != nil {
		return nil, eris.Wrap(err, "docs: read manifest")
	}

	var m manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, eris.Wrap(err, "docs: parse manifest")
	}

	s := &FSStore{docs: make(map[string][]byte, len(m.Documents))}
	for name, rel := range m.Documents {
		content, err := os.ReadFile(filepath.Join(dir, rel))
		if err != nil {
			zap.L().Warn("reference document missing, steps using it run ungrounded",
				zap.String("document", name),
				zap.String("path", rel),
				zap.Error(err))
			continue
		}
		s.docs[name] = content
	}

	zap.L().Info("reference documents loaded",
		zap.Int("loaded", len(s.docs)),
		zap.Int("listed", len(m.Documents)))
	return s, nil
}

// NewStatic builds a Store from in-memory content. Used by tests and stubs.
func NewStatic(docs map[string][]byte) *FSStore {
	copied := make(map[string][]byte, len(docs))
	for k, v := range docs {
		copied[k] = v
	}
	return &FSStore{docs: copied}
}

func (s *FSStore) Get(name string) ([]byte, bool) {
	content, ok := s.docs[name]
	return content, ok
}

func (s *FSStore) Names() []string {
	names := make([]string, 0, len(s.docs))
	for name := range s.docs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
