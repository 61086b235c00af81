package model

// Role identifies who authored a transcript message.
type Role string

const (
	RoleParticipant Role = "participant"
	RoleAgent       Role = "agent"
)

// Message is a single transcript entry.
type Message struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// ConversationState is the mutable record of one interview session.
// GatheredInfo and CannotAnswer only ever grow; Transcript is append-only.
type ConversationState struct {
	GatheredInfo map[string]ExtractedAnswer `json:"gathered_info"`
	CannotAnswer []string                   `json:"cannot_answer_fields"`
	Transcript   []Message                  `json:"transcript"`
}

// NewConversationState returns an empty state.
func NewConversationState() ConversationState {
	return ConversationState{
		GatheredInfo: map[string]ExtractedAnswer{},
		CannotAnswer: []string{},
		Transcript:   []Message{},
	}
}

// Clone returns a deep copy so callers can mutate without aliasing.
func (s ConversationState) Clone() ConversationState {
	out := ConversationState{
		GatheredInfo: make(map[string]ExtractedAnswer, len(s.GatheredInfo)),
		CannotAnswer: make([]string, len(s.CannotAnswer)),
		Transcript:   make([]Message, len(s.Transcript)),
	}
	for k, v := range s.GatheredInfo {
		out.GatheredInfo[k] = v
	}
	copy(out.CannotAnswer, s.CannotAnswer)
	copy(out.Transcript, s.Transcript)
	return out
}

// IsCannotAnswer reports whether field was declared unanswerable.
func (s ConversationState) IsCannotAnswer(field string) bool {
	for _, f := range s.CannotAnswer {
		if f == field {
			return true
		}
	}
	return false
}

// IsAttempted reports whether field is gathered or declared unanswerable.
func (s ConversationState) IsAttempted(field string) bool {
	if _, ok := s.GatheredInfo[field]; ok {
		return true
	}
	return s.IsCannotAnswer(field)
}

// ParticipantTurns counts participant messages in the transcript.
func (s ConversationState) ParticipantTurns() int {
	n := 0
	for _, m := range s.Transcript {
		if m.Role == RoleParticipant {
			n++
		}
	}
	return n
}

// UnionCannotAnswer appends fields not already present, keeping first-seen order.
func UnionCannotAnswer(existing, added []string) []string {
	out := make([]string, 0, len(existing)+len(added))
	seen := make(map[string]bool, len(existing)+len(added))
	for _, list := range [][]string{existing, added} {
		for _, f := range list {
			if seen[f] {
				continue
			}
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}

// Progress summarises catalog coverage for a state. A field present in both
// the gathered and cannot-answer sets counts once, as gathered.
type Progress struct {
	Total        int `json:"total"`
	Gathered     int `json:"gathered"`
	CannotAnswer int `json:"cannot_answer"`
	Attempted    int `json:"attempted"`
	Remaining    int `json:"remaining"`
}

// ProgressOf counts coverage of catalog fields only; keys outside the
// catalog are ignored.
func ProgressOf(c *Catalog, gathered map[string]ExtractedAnswer, cannot []string) Progress {
	p := Progress{Total: c.Len()}
	cannotSet := make(map[string]bool, len(cannot))
	for _, f := range cannot {
		cannotSet[f] = true
	}
	for _, f := range c.Fields() {
		if _, ok := gathered[f]; ok {
			p.Gathered++
			continue
		}
		if cannotSet[f] {
			p.CannotAnswer++
		}
	}
	p.Attempted = p.Gathered + p.CannotAnswer
	p.Remaining = p.Total - p.Attempted
	return p
}
