package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlas-specialty/underwrite-cli/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func newTestCase() *model.CaseRecord {
	return &model.CaseRecord{
		Subject:    "Commercial Auto Quote Request - Reliable Trucking LLC",
		Sender:     "sarah@hensonbrokerage.com",
		Recipient:  "quotes@atlas-specialty.com",
		ReceivedAt: time.Date(2026, 3, 12, 9, 30, 0, 0, time.UTC),
		Body:       "Looking for a commercial auto quote for a regional trucking company with 15 trucks.",
	}
}

func TestSQLiteStore_CreateAndGetCase(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := newTestCase()
	require.NoError(t, s.CreateCase(ctx, rec))
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, model.CaseStatusPending, rec.Status)
	assert.False(t, rec.CreatedAt.IsZero())

	got, err := s.GetCase(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, rec.Subject, got.Subject)
	assert.Equal(t, rec.Sender, got.Sender)
	assert.Equal(t, model.CaseStatusPending, got.Status)
}

func TestSQLiteStore_GetCase_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetCase(context.Background(), "nonexistent-case")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "case not found")
}

func TestSQLiteStore_UpdateCase_RoundTripsStepRecords(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := newTestCase()
	require.NoError(t, s.CreateCase(ctx, rec))

	rec.Status = model.CaseStatusProcessing
	rec.CurrentStep = model.StepIndustryCode
	rec.ClientName = "Reliable Trucking LLC"
	rec.BICCode = "4213"
	require.NoError(t, rec.RecordStep(model.StepIndustryCode,
		map[string]string{"industry": "trucking"},
		model.IndustryCode{BICCode: "4213", Explanation: "long-haul trucking"},
		"Matched long-haul trucking classification",
	))
	require.NoError(t, s.UpdateCase(ctx, rec))

	got, err := s.GetCase(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CaseStatusProcessing, got.Status)
	assert.Equal(t, model.StepIndustryCode, got.CurrentStep)
	assert.Equal(t, "4213", got.BICCode)

	var out model.IndustryCode
	require.NoError(t, got.StepOutput(model.StepIndustryCode, &out))
	assert.Equal(t, "4213", out.BICCode)
	assert.Equal(t, "Matched long-haul trucking classification", got.Steps[model.StepIndustryCode].Explanation)
}

func TestSQLiteStore_UpdateCase_NotFound(t *testing.T) {
	s := newTestStore(t)

	rec := newTestCase()
	rec.ID = "missing-id"
	err := s.UpdateCase(context.Background(), rec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "case not found")
}

func TestSQLiteStore_ListCases_FilterByStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := newTestCase()
	require.NoError(t, s.CreateCase(ctx, a))

	b := newTestCase()
	b.Sender = "mike@crestbrokers.com"
	require.NoError(t, s.CreateCase(ctx, b))
	b.Status = model.CaseStatusCompleted
	require.NoError(t, s.UpdateCase(ctx, b))

	pending, err := s.ListCases(ctx, CaseFilter{Status: model.CaseStatusPending})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, a.ID, pending[0].ID)

	completed, err := s.ListCases(ctx, CaseFilter{Status: model.CaseStatusCompleted})
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, b.ID, completed[0].ID)

	all, err := s.ListCases(ctx, CaseFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSQLiteStore_ListCases_FilterBySender(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := newTestCase()
	require.NoError(t, s.CreateCase(ctx, a))
	b := newTestCase()
	b.Sender = "mike@crestbrokers.com"
	require.NoError(t, s.CreateCase(ctx, b))

	got, err := s.ListCases(ctx, CaseFilter{Sender: "mike@crestbrokers.com"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, b.ID, got[0].ID)
}

func TestSQLiteStore_ListCases_Limit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.CreateCase(ctx, newTestCase()))
	}

	got, err := s.ListCases(ctx, CaseFilter{Limit: 3})
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestSQLiteStore_SignalCache_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	signals := []model.CompanySignal{
		{Title: "Reliable Trucking expands fleet", Snippet: "Added 10 trucks", Link: "https://example.com/news", Source: "news"},
	}
	require.NoError(t, s.SetCachedSignals(ctx, "Reliable Trucking LLC", signals, time.Hour))

	got, err := s.GetCachedSignals(ctx, "Reliable Trucking LLC")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Reliable Trucking expands fleet", got[0].Title)
}

func TestSQLiteStore_SignalCache_Miss(t *testing.T) {
	s := newTestStore(t)

	got, err := s.GetCachedSignals(context.Background(), "Unknown Co")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLiteStore_SignalCache_Expired(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	signals := []model.CompanySignal{{Title: "stale"}}
	require.NoError(t, s.SetCachedSignals(ctx, "Stale Co", signals, -time.Hour))

	got, err := s.GetCachedSignals(ctx, "Stale Co")
	require.NoError(t, err)
	assert.Nil(t, got)

	n, err := s.DeleteExpiredSignals(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
