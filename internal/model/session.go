package model

import "time"

// SessionStatus tracks the lifecycle of an interview session.
type SessionStatus string

const (
	SessionActive   SessionStatus = "active"
	SessionComplete SessionStatus = "complete"
)

// Participant holds the context about who is being interviewed.
type Participant struct {
	DealID      string `json:"deal_id,omitempty"`
	FounderName string `json:"founder_name,omitempty"`
	Email       string `json:"founder_email,omitempty"`
	CompanyName string `json:"company_name,omitempty"`
	Sector      string `json:"sector,omitempty"`
}

// Session is the persisted document for one interview, keyed by Token.
type Session struct {
	Token       string            `json:"token"`
	Participant Participant       `json:"participant"`
	Catalog     *Catalog          `json:"catalog"`
	State       ConversationState `json:"state"`
	Status      SessionStatus     `json:"status"`
	Version     int64             `json:"version"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

// IsComplete reports whether the session reached its terminal state.
func (s *Session) IsComplete() bool {
	return s.Status == SessionComplete
}
