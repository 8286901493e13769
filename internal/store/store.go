package store

import (
	"context"
	"time"

	"github.com/atlas-specialty/underwrite-cli/internal/model"
)

// CaseFilter specifies criteria for listing cases.
type CaseFilter struct {
	Status model.CaseStatus `json:"status,omitempty"`
	Sender string           `json:"sender,omitempty"`
	Limit  int              `json:"limit,omitempty"`
	Offset int              `json:"offset,omitempty"`
}

// Store defines the persistence interface for the underwriting pipeline.
type Store interface {
	// Cases
	CreateCase(ctx context.Context, rec *model.CaseRecord) error
	GetCase(ctx context.Context, caseID string) (*model.CaseRecord, error)
	UpdateCase(ctx context.Context, rec *model.CaseRecord) error
	ListCases(ctx context.Context, filter CaseFilter) ([]model.CaseRecord, error)

	// Search signal cache
	GetCachedSignals(ctx context.Context, companyName string) ([]model.CompanySignal, error)
	SetCachedSignals(ctx context.Context, companyName string, signals []model.CompanySignal, ttl time.Duration) error
	DeleteExpiredSignals(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
