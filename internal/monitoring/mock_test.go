package monitoring

import (
	"context"
	"fmt"
	"time"

	"github.com/sells-group/interview-cli/internal/model"
	"github.com/sells-group/interview-cli/internal/store"
)

// fakeStore implements store.Store over an in-memory slice.
type fakeStore struct {
	sessions []model.Session
	listErr  error
	calls    int
}

func (f *fakeStore) ListSessions(_ context.Context, filter store.SessionFilter) ([]model.Session, error) {
	f.calls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	start := min(filter.Offset, len(f.sessions))
	end := min(start+filter.Limit, len(f.sessions))
	return f.sessions[start:end], nil
}

// Unused store methods satisfy the interface.
func (f *fakeStore) CreateSession(context.Context, *model.Session) error { return nil }
func (f *fakeStore) GetSession(context.Context, string) (*model.Session, error) {
	return nil, store.ErrNotFound
}
func (f *fakeStore) SaveState(context.Context, string, int64, model.ConversationState, model.SessionStatus) (int64, error) {
	return 0, nil
}
func (f *fakeStore) Migrate(context.Context) error { return nil }
func (f *fakeStore) Close() error                  { return nil }

func twoFieldCatalog() *model.Catalog {
	c, err := model.NewCatalog([]model.Issue{
		{Field: "revenue", Question: "What is your current monthly revenue?", Importance: 1},
		{Field: "team_size", Question: "How many people are on the team?", Importance: 2},
	})
	if err != nil {
		panic(err)
	}
	return c
}

// session builds a stored session with the given coverage and age.
func session(i int, status model.SessionStatus, gathered, cannot []string, turns int, age time.Duration) model.Session {
	st := model.NewConversationState()
	for _, f := range gathered {
		st.GatheredInfo[f] = model.ExtractedAnswer{Value: "x", Confidence: model.ConfidenceHigh}
	}
	st.CannotAnswer = append(st.CannotAnswer, cannot...)
	for range turns {
		st.Transcript = append(st.Transcript,
			model.Message{Role: model.RoleAgent, Text: "Question?"},
			model.Message{Role: model.RoleParticipant, Text: "Answer."},
		)
	}
	return model.Session{
		Token:     fmt.Sprintf("tok-%d", i),
		Catalog:   twoFieldCatalog(),
		State:     st,
		Status:    status,
		Version:   1,
		UpdatedAt: time.Now().UTC().Add(-age),
	}
}
