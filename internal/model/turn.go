package model

// TurnMode is the tone the reply for a turn was composed in.
type TurnMode string

const (
	ModeContinuation TurnMode = "continuation"
	ModeClosing      TurnMode = "closing"
)

// TurnResult is the outcome of processing one participant message.
type TurnResult struct {
	Reply           string            `json:"reply"`
	Mode            TurnMode          `json:"mode"`
	State           ConversationState `json:"state"`
	IsComplete      bool              `json:"is_complete"`
	NewCannotAnswer []string          `json:"new_cannot_answer"`
	Fallbacks       []string          `json:"fallbacks,omitempty"`
}

// ChatResponse is the caller-facing result of the turn operation.
type ChatResponse struct {
	Message        string   `json:"message"`
	IsComplete     bool     `json:"is_complete"`
	GatheredFields []string `json:"gathered_fields"`
	MissingFields  []string `json:"missing_fields"`
}

// AttemptedFields splits catalog fields into attempted and missing, both in
// catalog order.
func AttemptedFields(c *Catalog, s ConversationState) (attempted, missing []string) {
	attempted = []string{}
	missing = []string{}
	for _, f := range c.Fields() {
		if s.IsAttempted(f) {
			attempted = append(attempted, f)
		} else {
			missing = append(missing, f)
		}
	}
	return attempted, missing
}
