package interview

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/interview-cli/internal/model"
	"github.com/sells-group/interview-cli/internal/reasoning"
)

func newTestAnalyzer(svc reasoning.Service) *Analyzer {
	opts := testOptions()
	return NewAnalyzer(svc, opts.Extraction, opts.RecentMessages)
}

func TestExtract_SkipsFirstTurn(t *testing.T) {
	svc := new(mockReasoning)
	s := withTurns(1)

	ext, err := newTestAnalyzer(svc).Extract(context.Background(), testCatalog(t), s)
	require.NoError(t, err)
	assert.True(t, ext.Skipped)
	assert.False(t, ext.IsComplete)
	assert.Empty(t, ext.Gathered)
	assert.Empty(t, ext.NewCannotAnswer)
	svc.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestExtract_Request(t *testing.T) {
	svc := new(mockReasoning)
	var req reasoning.Request
	svc.On("Generate", mock.Anything, forPurpose(reasoning.PurposeExtract)).
		Run(func(args mock.Arguments) { req = args.Get(1).(reasoning.Request) }).
		Return(reply(`{"extracted": [], "cannot_answer": []}`), nil)

	s := withTurns(2)
	s.GatheredInfo["revenue"] = model.ExtractedAnswer{Value: "$50k", Confidence: model.ConfidenceHigh}

	_, err := newTestAnalyzer(svc).Extract(context.Background(), testCatalog(t), s)
	require.NoError(t, err)

	assert.True(t, req.JSON)
	assert.NotNil(t, req.Schema)
	assert.Equal(t, extractionSchemaName, req.SchemaName)
	require.NotNil(t, req.Temperature)
	assert.InDelta(t, 0.2, *req.Temperature, 0.0001)
	assert.Nil(t, req.TopP)
	assert.Equal(t, 2048, req.MaxTokens)
	assert.Contains(t, req.Prompt, "FIELDS WE NEED:\n- team_size: How many people are on the team?")
	assert.NotContains(t, req.Prompt, "- revenue:")
	assert.Contains(t, req.Prompt, "ALREADY HAVE: revenue")
	assert.Contains(t, req.Prompt, "Founder: earlier answer")
	assert.Contains(t, req.Prompt, "Analyst: earlier question?")
}

func TestExtract_MergeRules(t *testing.T) {
	c := bigCatalog(t, 5)
	svc := new(mockReasoning)
	svc.On("Generate", mock.Anything, mock.Anything).Return(reply(`{
		"extracted": [
			{"field": "field_a", "value": "clear answer", "confidence": "high"},
			{"field": "field_b", "value": "partial answer", "confidence": "medium"},
			{"field": "field_c", "value": "vague answer", "confidence": "low"},
			{"field": "not_a_field", "value": "noise", "confidence": "high"},
			{"field": "field_d", "value": "   ", "confidence": "high"},
			{"field": "field_e", "value": "replacement", "confidence": "high"}
		],
		"cannot_answer": ["field_c", "field_c", "unknown", "field_d"]
	}`), nil)

	s := withTurns(2)
	s.GatheredInfo["field_e"] = model.ExtractedAnswer{Value: "original", Confidence: model.ConfidenceMedium}
	s.CannotAnswer = []string{"field_d"}

	ext, err := newTestAnalyzer(svc).Extract(context.Background(), c, s)
	require.NoError(t, err)

	assert.Equal(t, model.ExtractedAnswer{Value: "clear answer", Confidence: model.ConfidenceHigh}, ext.Gathered["field_a"])
	assert.Equal(t, model.ExtractedAnswer{Value: "partial answer", Confidence: model.ConfidenceMedium}, ext.Gathered["field_b"])
	assert.NotContains(t, ext.Gathered, "field_c")
	assert.NotContains(t, ext.Gathered, "not_a_field")
	assert.NotContains(t, ext.Gathered, "field_d")
	assert.Equal(t, "original", ext.Gathered["field_e"].Value)
	assert.Equal(t, []string{"field_c"}, ext.NewCannotAnswer)
	assert.True(t, ext.IsComplete)

	// The input state is untouched.
	assert.Len(t, s.GatheredInfo, 1)
}

func TestExtract_NotCompleteUntilEveryField(t *testing.T) {
	svc := new(mockReasoning)
	svc.On("Generate", mock.Anything, mock.Anything).
		Return(reply(`{"extracted": [{"field": "revenue", "value": "$50k MRR", "confidence": "high"}], "cannot_answer": []}`), nil)

	ext, err := newTestAnalyzer(svc).Extract(context.Background(), testCatalog(t), withTurns(2))
	require.NoError(t, err)
	assert.Contains(t, ext.Gathered, "revenue")
	assert.False(t, ext.IsComplete)
}

func TestExtract_IdempotentMerge(t *testing.T) {
	svc := new(mockReasoning)
	svc.On("Generate", mock.Anything, mock.Anything).Return(reply(`{
		"extracted": [{"field": "revenue", "value": "$50k MRR", "confidence": "high"}],
		"cannot_answer": ["team_size"]
	}`), nil)
	a := newTestAnalyzer(svc)
	c := testCatalog(t)

	s := withTurns(2)
	first, err := a.Extract(context.Background(), c, s)
	require.NoError(t, err)
	s.GatheredInfo = first.Gathered
	s.CannotAnswer = model.UnionCannotAnswer(s.CannotAnswer, first.NewCannotAnswer)

	second, err := a.Extract(context.Background(), c, s)
	require.NoError(t, err)
	after := s.Clone()
	after.GatheredInfo = second.Gathered
	after.CannotAnswer = model.UnionCannotAnswer(after.CannotAnswer, second.NewCannotAnswer)

	assert.Equal(t, s.GatheredInfo, after.GatheredInfo)
	assert.Equal(t, s.CannotAnswer, after.CannotAnswer)
	assert.Empty(t, second.NewCannotAnswer)
}

func TestExtract_FailuresAreNoOps(t *testing.T) {
	tests := []struct {
		name    string
		ret     []any
		wantErr string
	}{
		{name: "service error", ret: []any{nil, errors.New("deadline exceeded")}, wantErr: "extract answers"},
		{name: "empty text", ret: []any{reply(""), nil}, wantErr: "no text"},
		{name: "malformed", ret: []any{reply("sorry, I can't help"), nil}, wantErr: "not a JSON object"},
		{name: "schema violation", ret: []any{reply(`{"extracted": []}`), nil}, wantErr: "cannot_answer"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(mockReasoning)
			svc.On("Generate", mock.Anything, mock.Anything).Return(tt.ret...)

			s := withTurns(2)
			s.GatheredInfo["revenue"] = model.ExtractedAnswer{Value: "$50k", Confidence: model.ConfidenceHigh}
			s.CannotAnswer = []string{"team_size"}

			ext, err := newTestAnalyzer(svc).Extract(context.Background(), testCatalog(t), s)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Equal(t, s.GatheredInfo, ext.Gathered)
			assert.Empty(t, ext.NewCannotAnswer)
			assert.False(t, ext.IsComplete)
		})
	}
}

func TestExtract_NothingNeeded(t *testing.T) {
	svc := new(mockReasoning)
	s := withTurns(3)
	s.GatheredInfo["revenue"] = model.ExtractedAnswer{Value: "$50k", Confidence: model.ConfidenceHigh}
	s.GatheredInfo["team_size"] = model.ExtractedAnswer{Value: "12", Confidence: model.ConfidenceHigh}

	ext, err := newTestAnalyzer(svc).Extract(context.Background(), testCatalog(t), s)
	require.NoError(t, err)
	assert.True(t, ext.Skipped)
	assert.True(t, ext.IsComplete)
	svc.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestExtract_LowConfidenceNeverGathered(t *testing.T) {
	svc := new(mockReasoning)
	svc.On("Generate", mock.Anything, mock.Anything).
		Return(reply(`{"extracted": [{"field": "team_size", "value": "maybe ten?", "confidence": "low"}], "cannot_answer": []}`), nil)
	a := newTestAnalyzer(svc)
	c := testCatalog(t)

	s := withTurns(2)
	for range 3 {
		ext, err := a.Extract(context.Background(), c, s)
		require.NoError(t, err)
		s.GatheredInfo = ext.Gathered
		assert.NotContains(t, s.GatheredInfo, "team_size")
	}
}
