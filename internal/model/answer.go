package model

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
)

// Confidence is the extraction certainty label. It is a closed set.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// ParseConfidence normalises s into a Confidence, rejecting unknown labels.
func ParseConfidence(s string) (Confidence, error) {
	switch c := Confidence(strings.ToLower(strings.TrimSpace(s))); c {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		return c, nil
	default:
		return "", eris.Errorf("unknown confidence %q", s)
	}
}

// Accepted reports whether an extraction with this confidence may enter
// the gathered set.
func (c Confidence) Accepted() bool {
	return c == ConfidenceHigh || c == ConfidenceMedium
}

// UnmarshalJSON rejects labels outside the closed set.
func (c *Confidence) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return eris.Wrap(err, "confidence must be a string")
	}
	parsed, err := ParseConfidence(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ExtractedAnswer is a captured answer for one issue field.
type ExtractedAnswer struct {
	Value      string     `json:"value"`
	Confidence Confidence `json:"confidence"`
}
