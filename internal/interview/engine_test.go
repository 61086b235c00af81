package interview

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/interview-cli/internal/config"
	"github.com/sells-group/interview-cli/internal/metrics"
	"github.com/sells-group/interview-cli/internal/model"
	"github.com/sells-group/interview-cli/internal/reasoning"
)

func turn(t *testing.T, e *Engine, c *model.Catalog, s model.ConversationState, msg string) *model.TurnResult {
	t.Helper()
	res, err := e.ProcessTurn(context.Background(), TurnInput{
		Catalog:     c,
		Participant: testParticipant(),
		State:       s,
		Message:     msg,
	})
	require.NoError(t, err)
	return res
}

func TestProcessTurn_Scenario(t *testing.T) {
	svc := new(mockReasoning)
	e := NewEngine(svc, testOptions(), nil)
	c := testCatalog(t)

	// Turn 1: greeting only, extraction skipped.
	svc.On("Generate", mock.Anything, forPurpose(reasoning.PurposeConverse)).
		Return(reply("Great to meet you, Ada! What's your monthly revenue right now?"), nil).Once()

	r1 := turn(t, e, c, model.NewConversationState(), "Hi")
	assert.False(t, r1.IsComplete)
	assert.Equal(t, model.ModeContinuation, r1.Mode)
	attempted, missing := model.AttemptedFields(c, r1.State)
	assert.Empty(t, attempted)
	assert.Equal(t, []string{"revenue", "team_size"}, missing)
	require.Len(t, r1.State.Transcript, 2)
	svc.AssertNumberOfCalls(t, "Generate", 1)

	// Turn 2: revenue answered with a clear number.
	svc.On("Generate", mock.Anything, forPurpose(reasoning.PurposeConverse)).
		Return(reply("That's solid traction! How many people are on the team?"), nil).Once()
	svc.On("Generate", mock.Anything, forPurpose(reasoning.PurposeExtract)).
		Return(reply(`{"extracted": [{"field": "revenue", "value": "$50k MRR", "confidence": "high"}], "cannot_answer": []}`), nil).Once()

	r2 := turn(t, e, c, r1.State, "We're at $50k MRR, growing 10% month over month.")
	assert.False(t, r2.IsComplete)
	attempted, missing = model.AttemptedFields(c, r2.State)
	assert.Equal(t, []string{"revenue"}, attempted)
	assert.Equal(t, []string{"team_size"}, missing)
	assert.Empty(t, r2.NewCannotAnswer)

	// Turn 3: "I don't know" completes the catalog and the reply closes.
	svc.On("Generate", mock.Anything, forPurpose(reasoning.PurposeConverse)).
		Return(reply("No problem! Could you share a rough headcount?"), nil).Once()
	svc.On("Generate", mock.Anything, forPurpose(reasoning.PurposeExtract)).
		Return(reply(`{"extracted": [], "cannot_answer": ["team_size"]}`), nil).Once()
	svc.On("Generate", mock.Anything, forPurpose(reasoning.PurposeClose)).
		Return(reply("Thank you so much, Ada! We'll follow up within 2-3 weeks."), nil).Once()

	r3 := turn(t, e, c, r2.State, "I don't know the exact team size.")
	assert.True(t, r3.IsComplete)
	assert.Equal(t, model.ModeClosing, r3.Mode)
	assert.Equal(t, []string{"team_size"}, r3.State.CannotAnswer)
	assert.Equal(t, []string{"team_size"}, r3.NewCannotAnswer)
	assert.Equal(t, "Thank you so much, Ada! We'll follow up within 2-3 weeks.", r3.Reply)
	last := r3.State.Transcript[len(r3.State.Transcript)-1]
	assert.Equal(t, model.RoleAgent, last.Role)
	assert.Equal(t, r3.Reply, last.Text)
	require.Len(t, r3.State.Transcript, 6)
	assert.Empty(t, r3.Fallbacks)

	svc.AssertExpectations(t)
}

func TestProcessTurn_ClosingTrigger(t *testing.T) {
	svc := new(mockReasoning)
	svc.On("Generate", mock.Anything, forPurpose(reasoning.PurposeClose)).
		Return(reply("Thanks again for your time. Talk soon."), nil).Once()
	// Cannot-answer fields stay open to extraction, so the closing turn still
	// reads the exchange.
	svc.On("Generate", mock.Anything, forPurpose(reasoning.PurposeExtract)).
		Return(reply(`{"extracted": [], "cannot_answer": []}`), nil).Once()
	e := NewEngine(svc, testOptions(), nil)

	s := withTurns(2)
	s.GatheredInfo["revenue"] = model.ExtractedAnswer{Value: "$50k", Confidence: model.ConfidenceHigh}
	s.CannotAnswer = []string{"team_size"}

	res := turn(t, e, testCatalog(t), s, "Anything else?")
	assert.Equal(t, model.ModeClosing, res.Mode)
	assert.Equal(t, "Thanks again for your time. Talk soon.", res.Reply)
	assert.True(t, res.IsComplete)
	assert.Empty(t, res.NewCannotAnswer)
	assert.Empty(t, res.Fallbacks)
	svc.AssertExpectations(t)
	svc.AssertNumberOfCalls(t, "Generate", 2)
}

func TestProcessTurn_ClosingWithFailedExtraction(t *testing.T) {
	svc := new(mockReasoning)
	svc.On("Generate", mock.Anything, forPurpose(reasoning.PurposeClose)).
		Return(reply("Thanks again for your time. Talk soon."), nil).Once()
	svc.On("Generate", mock.Anything, forPurpose(reasoning.PurposeExtract)).
		Return(nil, errors.New("deadline exceeded")).Once()
	e := NewEngine(svc, testOptions(), nil)

	s := withTurns(2)
	s.GatheredInfo["revenue"] = model.ExtractedAnswer{Value: "$50k", Confidence: model.ConfidenceHigh}
	s.CannotAnswer = []string{"team_size"}

	res := turn(t, e, testCatalog(t), s, "Anything else?")
	assert.Equal(t, model.ModeClosing, res.Mode)
	assert.Equal(t, "Thanks again for your time. Talk soon.", res.Reply)
	assert.False(t, res.IsComplete)
	assert.Equal(t, s.GatheredInfo, res.State.GatheredInfo)
	assert.Equal(t, []string{"team_size"}, res.State.CannotAnswer)
	assert.Equal(t, []string{StageExtract}, res.Fallbacks)
	svc.AssertNumberOfCalls(t, "Generate", 2)
}

func TestProcessTurn_FallbackGuarantee(t *testing.T) {
	svc := new(mockReasoning)
	svc.On("Generate", mock.Anything, mock.Anything).Return(nil, errors.New("service unavailable"))
	m := metrics.New()
	e := NewEngine(svc, testOptions(), m)

	s := withTurns(2)
	s.GatheredInfo["revenue"] = model.ExtractedAnswer{Value: "$50k", Confidence: model.ConfidenceHigh}

	res := turn(t, e, testCatalog(t), s, "We have twelve people.")
	assert.Equal(t, "Thanks for sharing! How many people are on the team?", res.Reply)
	assert.False(t, res.IsComplete)
	assert.Equal(t, s.GatheredInfo, res.State.GatheredInfo)
	assert.Equal(t, s.CannotAnswer, res.State.CannotAnswer)
	assert.Len(t, res.State.Transcript, len(s.Transcript)+2)
	assert.Equal(t, []string{StageCompose, StageExtract}, res.Fallbacks)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `interview_fallbacks_total{stage="compose"} 1`)
	assert.Contains(t, rec.Body.String(), `interview_fallbacks_total{stage="extract"} 1`)
	assert.Contains(t, rec.Body.String(), `interview_turns_total{mode="continuation"} 1`)
}

func TestProcessTurn_ClosingUpgradeFallback(t *testing.T) {
	svc := new(mockReasoning)
	svc.On("Generate", mock.Anything, forPurpose(reasoning.PurposeConverse)).
		Return(reply("Got it. What else?"), nil).Once()
	svc.On("Generate", mock.Anything, forPurpose(reasoning.PurposeExtract)).
		Return(reply(`{"extracted": [{"field": "team_size", "value": "12", "confidence": "high"}], "cannot_answer": []}`), nil).Once()
	svc.On("Generate", mock.Anything, forPurpose(reasoning.PurposeClose)).
		Return(reply(""), nil).Once()
	e := NewEngine(svc, testOptions(), nil)

	s := withTurns(2)
	s.GatheredInfo["revenue"] = model.ExtractedAnswer{Value: "$50k", Confidence: model.ConfidenceHigh}

	res := turn(t, e, testCatalog(t), s, "Twelve full-time.")
	assert.True(t, res.IsComplete)
	assert.Equal(t, model.ModeClosing, res.Mode)
	assert.True(t, strings.HasPrefix(res.Reply, "Thank you so much for your time, Ada!"))
	assert.Equal(t, []string{StageClose}, res.Fallbacks)
}

func TestProcessTurn_DoesNotMutateInput(t *testing.T) {
	svc := new(mockReasoning)
	svc.On("Generate", mock.Anything, forPurpose(reasoning.PurposeConverse)).Return(reply("Next?"), nil)
	svc.On("Generate", mock.Anything, forPurpose(reasoning.PurposeExtract)).
		Return(reply(`{"extracted": [{"field": "revenue", "value": "$1M ARR", "confidence": "high"}], "cannot_answer": []}`), nil)
	e := NewEngine(svc, testOptions(), nil)

	s := withTurns(2)
	before := s.Clone()
	_ = turn(t, e, testCatalog(t), s, "We do $1M ARR")
	assert.Equal(t, before, s)
}

func TestProcessTurn_MissingCatalog(t *testing.T) {
	e := NewEngine(new(mockReasoning), testOptions(), nil)
	_, err := e.ProcessTurn(context.Background(), TurnInput{State: model.NewConversationState(), Message: "hi"})
	assert.ErrorIs(t, err, ErrMissingCatalog)
}

func TestProcessTurn_AbortedBeforeStart(t *testing.T) {
	svc := new(mockReasoning)
	e := NewEngine(svc, testOptions(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.ProcessTurn(ctx, TurnInput{Catalog: testCatalog(t), State: model.NewConversationState(), Message: "hi"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	svc.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestProcessTurn_AbortedMidTurn(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc := new(mockReasoning)
	var callCtxErr error
	svc.On("Generate", mock.Anything, forPurpose(reasoning.PurposeConverse)).
		Run(func(args mock.Arguments) {
			cancel()
			callCtxErr = args.Get(0).(context.Context).Err()
		}).
		Return(reply("Next question?"), nil)
	e := NewEngine(svc, testOptions(), nil)

	res, err := e.ProcessTurn(ctx, TurnInput{Catalog: testCatalog(t), State: withTurns(2), Message: "hello"})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, context.Canceled)
	// The in-flight call kept running on a context detached from the caller
	// and extraction was never started.
	assert.NoError(t, callCtxErr)
	svc.AssertNumberOfCalls(t, "Generate", 1)
}

func TestProcessTurn_Monotonic(t *testing.T) {
	svc := new(mockReasoning)
	payloads := []string{
		`{"extracted": [{"field": "field_a", "value": "a", "confidence": "high"}], "cannot_answer": []}`,
		`{"extracted": [], "cannot_answer": ["field_b"]}`,
		`not json`,
		`{"extracted": [{"field": "field_a", "value": "changed", "confidence": "high"}], "cannot_answer": []}`,
		`{"extracted": [{"field": "field_c", "value": "c", "confidence": "low"}], "cannot_answer": ["nope"]}`,
	}
	svc.On("Generate", mock.Anything, forPurpose(reasoning.PurposeConverse)).Return(reply("Next?"), nil)
	for _, p := range payloads {
		svc.On("Generate", mock.Anything, forPurpose(reasoning.PurposeExtract)).Return(reply(p), nil).Once()
	}
	e := NewEngine(svc, testOptions(), nil)
	c := bigCatalog(t, 4)

	s := withTurns(1)
	prev := map[string]bool{}
	for range payloads {
		res := turn(t, e, c, s, "an answer")
		attempted, _ := model.AttemptedFields(c, res.State)
		cur := map[string]bool{}
		for _, f := range attempted {
			cur[f] = true
		}
		for f := range prev {
			assert.True(t, cur[f], "field %s dropped", f)
		}
		prev = cur
		s = res.State
	}
	assert.Equal(t, "a", s.GatheredInfo["field_a"].Value)
	assert.Equal(t, []string{"field_b"}, s.CannotAnswer)
	assert.NotContains(t, s.GatheredInfo, "field_c")
}

func TestOptionsFromConfig(t *testing.T) {
	opts := OptionsFromConfig(config.InterviewConfig{
		AnalystName:    "Maya",
		Turnaround:     "10 days",
		RecentMessages: 8,
		Continuation:   config.GenerationConfig{Temperature: 0.7, TopP: 0.9, MaxTokens: 500},
		Extraction:     config.GenerationConfig{Temperature: 0.1, MaxTokens: 1024},
	})
	assert.Equal(t, Persona{AnalystName: "Maya", Turnaround: "10 days"}, opts.Persona)
	assert.Equal(t, 8, opts.RecentMessages)
	assert.Equal(t, 500, opts.Continuation.MaxTokens)
	assert.InDelta(t, 0.1, opts.Extraction.Temperature, 0.0001)
}
