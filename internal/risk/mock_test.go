package risk

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/atlas-specialty/underwrite-cli/internal/llm"
	"github.com/atlas-specialty/underwrite-cli/internal/model"
	"github.com/atlas-specialty/underwrite-cli/pkg/serp"
)

// --- Serp Mock ---

type mockSearchClient struct {
	mock.Mock
}

func (m *mockSearchClient) Search(ctx context.Context, req serp.SearchRequest) (*serp.SearchResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*serp.SearchResponse), args.Error(1)
}

// --- Generator Mock ---

type mockGenerator struct {
	mock.Mock
}

func (m *mockGenerator) GenerateStructured(ctx context.Context, req llm.Request, out any) error {
	args := m.Called(ctx, req, out)
	return args.Error(0)
}

func (m *mockGenerator) GenerateText(ctx context.Context, req llm.Request) string {
	args := m.Called(ctx, req)
	return args.String(0)
}

// --- Signal Cache Mock ---

type mockSignalCache struct {
	mock.Mock
}

func (m *mockSignalCache) GetCachedSignals(ctx context.Context, companyName string) ([]model.CompanySignal, error) {
	args := m.Called(ctx, companyName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.CompanySignal), args.Error(1)
}

func (m *mockSignalCache) SetCachedSignals(ctx context.Context, companyName string, signals []model.CompanySignal, ttl time.Duration) error {
	args := m.Called(ctx, companyName, signals, ttl)
	return args.Error(0)
}
