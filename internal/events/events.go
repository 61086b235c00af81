// Package events publishes interview progress for downstream consumers such
// as the memo writer.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rotisserie/eris"

	"github.com/sells-group/interview-cli/internal/model"
)

// Kind names the event and is the last subject token.
type Kind string

const (
	KindTurn      Kind = "turn"
	KindCompleted Kind = "completed"
)

// Event describes one processed turn or a finished interview.
type Event struct {
	Kind            Kind                             `json:"kind"`
	Token           string                           `json:"interview_token"`
	DealID          string                           `json:"deal_id,omitempty"`
	CompanyName     string                           `json:"company_name,omitempty"`
	Mode            model.TurnMode                   `json:"mode,omitempty"`
	IsComplete      bool                             `json:"is_complete"`
	GatheredFields  []string                         `json:"gathered_fields"`
	MissingFields   []string                         `json:"missing_fields"`
	NewCannotAnswer []string                         `json:"new_cannot_answer,omitempty"`
	Answers         map[string]model.ExtractedAnswer `json:"answers,omitempty"`
	At              time.Time                        `json:"at"`
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// Conn is the subset of *nats.Conn used by NATS.
type Conn interface {
	Publish(subj string, data []byte) error
	FlushWithContext(ctx context.Context) error
	Drain() error
}

// NATS publishes events as JSON on <prefix>.<kind>.
type NATS struct {
	conn   Conn
	prefix string
}

// NewNATS wraps an existing connection.
func NewNATS(conn Conn, prefix string) *NATS {
	if prefix == "" {
		prefix = "interview"
	}
	return &NATS{conn: conn, prefix: prefix}
}

// ConnectNATS dials url and returns a publisher owning the connection.
func ConnectNATS(url, prefix string) (*NATS, error) {
	nc, err := nats.Connect(url,
		nats.Name("interview-cli"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, eris.Wrap(err, "events: connect nats")
	}
	return NewNATS(nc, prefix), nil
}

// Subject returns the subject an event of kind k is published on.
func (n *NATS) Subject(k Kind) string {
	return n.prefix + "." + string(k)
}

func (n *NATS) Publish(ctx context.Context, e Event) error {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return eris.Wrap(err, "events: marshal")
	}
	subject := n.Subject(e.Kind)
	if err := n.conn.Publish(subject, data); err != nil {
		return eris.Wrapf(err, "events: publish %s", subject)
	}
	return eris.Wrapf(n.conn.FlushWithContext(ctx), "events: flush %s", subject)
}

// Close drains the connection.
func (n *NATS) Close() error {
	return eris.Wrap(n.conn.Drain(), "events: drain")
}
