package llm

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/atlas-specialty/underwrite-cli/internal/docs"
	"github.com/atlas-specialty/underwrite-cli/internal/model"
	"github.com/atlas-specialty/underwrite-cli/pkg/anthropic"
)

func newTestGenerator(client anthropic.Client) *Claude {
	store := docs.NewStatic(map[string][]byte{
		docs.RatingManual: []byte("42xx carries 1.90 per thousand"),
	})
	return NewClaude(client, store, ClaudeConfig{
		Model:       "claude-haiku-4-5-20251001",
		MaxTokens:   4096,
		Temperature: 0.6,
	})
}

func TestGenerateStructured_ParsesCleanJSON(t *testing.T) {
	mockClient := &mockAnthropicClient{}
	mockClient.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse(`{"bic_code": "4213", "explanation": "long-haul trucking"}`), nil)

	g := newTestGenerator(mockClient)
	var out model.IndustryCode
	err := g.GenerateStructured(context.Background(), Request{
		Step:      model.StepIndustryCode,
		Prompt:    "Classify this industry",
		Documents: []string{docs.RatingManual},
	}, &out)

	require.NoError(t, err)
	assert.Equal(t, "4213", out.BICCode)
	mockClient.AssertExpectations(t)
}

func TestGenerateStructured_StripsCodeFences(t *testing.T) {
	mockClient := &mockAnthropicClient{}
	mockClient.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse("Here is the classification:\n```json\n{\"bic_code\": \"3559\", \"explanation\": \"machinery\"}\n```"), nil)

	g := newTestGenerator(mockClient)
	var out model.IndustryCode
	err := g.GenerateStructured(context.Background(), Request{Step: model.StepIndustryCode, Prompt: "classify"}, &out)

	require.NoError(t, err)
	assert.Equal(t, "3559", out.BICCode)
}

func TestGenerateStructured_APIErrorPropagates(t *testing.T) {
	mockClient := &mockAnthropicClient{}
	mockClient.On("CreateMessage", mock.Anything, mock.Anything).
		Return(nil, eris.New("overloaded"))

	g := newTestGenerator(mockClient)
	var out model.IndustryCode
	err := g.GenerateStructured(context.Background(), Request{Step: model.StepIndustryCode, Prompt: "classify"}, &out)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "industry_code generation")
}

func TestGenerateStructured_UnparsableReply(t *testing.T) {
	mockClient := &mockAnthropicClient{}
	mockClient.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse("I cannot classify this industry."), nil)

	g := newTestGenerator(mockClient)
	var out model.IndustryCode
	err := g.GenerateStructured(context.Background(), Request{Step: model.StepIndustryCode, Prompt: "classify"}, &out)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse industry_code response")
}

func TestGenerateText_ReturnsErrorString(t *testing.T) {
	mockClient := &mockAnthropicClient{}
	mockClient.On("CreateMessage", mock.Anything, mock.Anything).
		Return(nil, eris.New("api unavailable"))

	g := newTestGenerator(mockClient)
	text := g.GenerateText(context.Background(), Request{Step: model.StepResponseEmail, Prompt: "draft a reply"})

	assert.Contains(t, text, "Error generating response")
}

func TestGenerateText_Success(t *testing.T) {
	mockClient := &mockAnthropicClient{}
	mockClient.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse("Dear Sarah,\n\nThank you for your submission."), nil)

	g := newTestGenerator(mockClient)
	text := g.GenerateText(context.Background(), Request{Step: model.StepResponseEmail, Prompt: "draft a reply"})

	assert.Contains(t, text, "Dear Sarah")
}

func TestSystemBlocks_SkipsAbsentDocuments(t *testing.T) {
	var captured anthropic.MessageRequest
	mockClient := &mockAnthropicClient{}
	mockClient.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		captured = req
		return true
	})).Return(textResponse(`{"bic_code": "4213", "explanation": "x"}`), nil)

	g := newTestGenerator(mockClient)
	var out model.IndustryCode
	err := g.GenerateStructured(context.Background(), Request{
		Step:      model.StepIndustryCode,
		Prompt:    "classify",
		Documents: []string{docs.RatingManual, docs.PolicyFormLibrary},
	}, &out)
	require.NoError(t, err)

	// System prompt plus the one available document; the absent one is skipped.
	require.Len(t, captured.System, 2)
	assert.Contains(t, captured.System[1].Text, "42xx carries 1.90")
	assert.NotNil(t, captured.System[1].CacheControl)
}

func TestCleanJSON(t *testing.T) {
	cases := map[string]string{
		`{"a":1}`:                           `{"a":1}`,
		"```json\n{\"a\":1}\n```":           `{"a":1}`,
		"```\n{\"a\":1}\n```":               `{"a":1}`,
		"The answer is {\"a\":1} as shown.": `{"a":1}`,
	}
	for in, want := range cases {
		assert.Equal(t, want, cleanJSON(in))
	}
}
