// Package store persists interview sessions keyed by their token.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/interview-cli/internal/model"
)

var (
	// ErrNotFound is returned when no session has the requested token.
	ErrNotFound = eris.New("store: session not found")
	// ErrStaleState is returned by SaveState when the session changed since
	// it was read.
	ErrStaleState = eris.New("store: session was modified concurrently")
)

// SessionFilter specifies criteria for listing sessions.
type SessionFilter struct {
	Status model.SessionStatus `json:"status,omitempty"`
	Limit  int                 `json:"limit,omitempty"`
	Offset int                 `json:"offset,omitempty"`
}

// Store defines the persistence interface for interview sessions.
type Store interface {
	// CreateSession inserts s, assigning a token when empty, version 1 and
	// timestamps.
	CreateSession(ctx context.Context, s *model.Session) error
	GetSession(ctx context.Context, token string) (*model.Session, error)
	// SaveState replaces the conversation state atomically when the stored
	// version still equals expectedVersion and returns the new version.
	SaveState(ctx context.Context, token string, expectedVersion int64, state model.ConversationState, status model.SessionStatus) (int64, error)
	ListSessions(ctx context.Context, filter SessionFilter) ([]model.Session, error)

	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100

// prepareNew fills the generated fields of a session about to be inserted.
func prepareNew(s *model.Session) {
	if s.Token == "" {
		s.Token = uuid.New().String()
	}
	if s.Status == "" {
		s.Status = model.SessionActive
	}
	if s.State.GatheredInfo == nil {
		s.State = model.NewConversationState()
	}
	now := time.Now().UTC()
	s.Version = 1
	s.CreatedAt = now
	s.UpdatedAt = now
	if s.Status == model.SessionComplete {
		s.CompletedAt = &now
	}
}

func listLimit(f SessionFilter) int {
	if f.Limit <= 0 {
		return defaultListLimit
	}
	return f.Limit
}
