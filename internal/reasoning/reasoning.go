// Package reasoning is the provider-neutral language-model boundary used by
// the interview engine.
package reasoning

import (
	"context"
	"errors"

	"github.com/sells-group/interview-cli/internal/resilience"
	"github.com/sells-group/interview-cli/pkg/anthropic"
	"github.com/sells-group/interview-cli/pkg/gemini"
	"github.com/sells-group/interview-cli/pkg/openai"
)

// Purpose labels why a call is made; it drives logging and metrics.
type Purpose string

const (
	PurposeConverse Purpose = "converse"
	PurposeClose    Purpose = "close"
	PurposeExtract  Purpose = "extract"
)

// Request is a single-prompt generation call.
type Request struct {
	Purpose     Purpose
	System      string
	Prompt      string
	Temperature *float64
	TopP        *float64
	MaxTokens   int
	// JSON asks the provider for a JSON object. Schema, when set, is used by
	// providers that can enforce it.
	JSON       bool
	SchemaName string
	Schema     any
}

// Response is the generated text plus accounting.
type Response struct {
	Text         string
	Provider     string
	Model        string
	InputTokens  int64
	OutputTokens int64
}

// Service generates text for a request.
type Service interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// classify marks provider failures with retryable HTTP statuses as transient.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var (
		ae *anthropic.StatusError
		ge *gemini.StatusError
		oe *openai.StatusError
	)
	switch {
	case errors.As(err, &ae):
		return resilience.ClassifyStatus(err, ae.Code)
	case errors.As(err, &ge):
		return resilience.ClassifyStatus(err, ge.Code)
	case errors.As(err, &oe):
		return resilience.ClassifyStatus(err, oe.Code)
	}
	return err
}
