package interview

import (
	"context"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/interview-cli/internal/config"
	"github.com/sells-group/interview-cli/internal/model"
	"github.com/sells-group/interview-cli/internal/reasoning"
)

type mockReasoning struct {
	mock.Mock
}

func (m *mockReasoning) Generate(ctx context.Context, req reasoning.Request) (*reasoning.Response, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reasoning.Response), args.Error(1)
}

func forPurpose(p reasoning.Purpose) any {
	return mock.MatchedBy(func(r reasoning.Request) bool { return r.Purpose == p })
}

func reply(text string) *reasoning.Response {
	return &reasoning.Response{Text: text, Provider: "test", Model: "test-model"}
}

func testCatalog(t *testing.T) *model.Catalog {
	t.Helper()
	c, err := model.NewCatalog([]model.Issue{
		{Field: "revenue", Question: "What is your current monthly revenue?", Category: "financials", Importance: 1},
		{Field: "team_size", Question: "How many people are on the team?", Category: "team", Importance: 2},
	})
	require.NoError(t, err)
	return c
}

func bigCatalog(t *testing.T, n int) *model.Catalog {
	t.Helper()
	issues := make([]model.Issue, n)
	for i := range issues {
		issues[i] = model.Issue{
			Field:      "field_" + string(rune('a'+i)),
			Question:   "Question " + string(rune('A'+i)) + "?",
			Category:   "general",
			Importance: i + 1,
		}
	}
	c, err := model.NewCatalog(issues)
	require.NoError(t, err)
	return c
}

func testParticipant() model.Participant {
	return model.Participant{DealID: "deal-1", FounderName: "Ada", CompanyName: "Acme", Sector: "fintech"}
}

func testOptions() Options {
	return Options{
		Persona:        Persona{AnalystName: "Sarah", Turnaround: "2-3 weeks"},
		Continuation:   config.GenerationConfig{Temperature: 0.85, TopP: 0.95, MaxTokens: 1000},
		Extraction:     config.GenerationConfig{Temperature: 0.2, MaxTokens: 2048},
		RecentMessages: 10,
	}
}

// withTurns returns a state whose transcript holds n participant/agent pairs.
func withTurns(n int) model.ConversationState {
	s := model.NewConversationState()
	for range n {
		s.Transcript = append(s.Transcript,
			model.Message{Role: model.RoleParticipant, Text: "earlier answer"},
			model.Message{Role: model.RoleAgent, Text: "earlier question?"},
		)
	}
	return s
}
