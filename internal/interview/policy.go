// Package interview runs the adaptive founder interview: it picks the next
// topic, composes replies, extracts structured answers and decides when the
// conversation is finished.
package interview

import "github.com/sells-group/interview-cli/internal/model"

// maxCandidates is how many still-needed questions the composer may choose from.
const maxCandidates = 3

// IsComplete reports whether every catalog field has been attempted, i.e.
// gathered or declared unanswerable. Keys outside the catalog do not count
// and a field in both sets counts once.
func IsComplete(c *model.Catalog, gathered map[string]model.ExtractedAnswer, cannot []string) bool {
	p := model.ProgressOf(c, gathered, cannot)
	return p.Attempted >= p.Total
}

// StillNeeded returns the catalog issues not yet attempted, in priority order.
func StillNeeded(c *model.Catalog, s model.ConversationState) []model.Issue {
	var out []model.Issue
	for _, iss := range c.Issues() {
		if !s.IsAttempted(iss.Field) {
			out = append(out, iss)
		}
	}
	return out
}

// candidates returns the first maxCandidates issues.
func candidates(stillNeeded []model.Issue) []model.Issue {
	if len(stillNeeded) > maxCandidates {
		return stillNeeded[:maxCandidates]
	}
	return stillNeeded
}
