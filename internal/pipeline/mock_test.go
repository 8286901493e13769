package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/atlas-specialty/underwrite-cli/internal/llm"
	"github.com/atlas-specialty/underwrite-cli/internal/model"
)

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

type mockAssessor struct {
	mock.Mock
}

func (m *mockAssessor) Assess(ctx context.Context, companyName string) *model.RiskAssessment {
	args := m.Called(ctx, companyName)
	return args.Get(0).(*model.RiskAssessment)
}
