// Package gemini wraps the Google GenAI SDK for text generation against the
// Gemini API or Vertex AI.
package gemini

import (
	"context"
	"errors"
	"fmt"

	"github.com/rotisserie/eris"
	"google.golang.org/genai"
)

// Client defines the Gemini operations used by the interview engine.
type Client interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// Config selects the backend. With Vertex set, Project and Location are
// used and APIKey is ignored.
type Config struct {
	APIKey   string
	Project  string
	Location string
	Vertex   bool
	BaseURL  string
}

// GenerateRequest is a single-prompt generation call.
type GenerateRequest struct {
	Model           string
	System          string
	Prompt          string
	Temperature     *float32
	TopP            *float32
	MaxOutputTokens int32
	// JSON asks the model for an application/json response body.
	JSON bool
}

// GenerateResponse is the text and usage of a generation call.
type GenerateResponse struct {
	Text         string
	Model        string
	FinishReason string
	InputTokens  int64
	OutputTokens int64
}

// StatusError exposes the HTTP status of a failed call.
type StatusError struct {
	Code    int
	Message string
	err     error
}

func (e *StatusError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	if e.Message != "" {
		return fmt.Sprintf("gemini: status %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("gemini: status %d", e.Code)
}

func (e *StatusError) Unwrap() error { return e.err }

type sdkClient struct {
	client *genai.Client
}

// NewClient creates a Gemini client backed by the GenAI SDK.
func NewClient(ctx context.Context, cfg Config) (Client, error) {
	cc := &genai.ClientConfig{}
	if cfg.Vertex {
		if cfg.Project == "" {
			return nil, eris.New("gemini: vertex requires a project")
		}
		cc.Backend = genai.BackendVertexAI
		cc.Project = cfg.Project
		cc.Location = cfg.Location
	} else {
		if cfg.APIKey == "" {
			return nil, eris.New("gemini: api key is required")
		}
		cc.Backend = genai.BackendGeminiAPI
		cc.APIKey = cfg.APIKey
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, eris.Wrap(err, "gemini: create client")
	}
	return &sdkClient{client: client}, nil
}

func (c *sdkClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	resp, err := c.client.Models.GenerateContent(ctx, req.Model, genai.Text(req.Prompt), toConfig(req))
	if err != nil {
		return nil, eris.Wrap(classify(err), "gemini: generate content")
	}
	return fromResponse(req.Model, resp), nil
}

func toConfig(req GenerateRequest) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature:     req.Temperature,
		TopP:            req.TopP,
		MaxOutputTokens: req.MaxOutputTokens,
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.JSON {
		cfg.ResponseMIMEType = "application/json"
	}
	return cfg
}

func fromResponse(model string, resp *genai.GenerateContentResponse) *GenerateResponse {
	out := &GenerateResponse{Model: model}
	if resp == nil {
		return out
	}
	out.Text = resp.Text()
	if resp.ModelVersion != "" {
		out.Model = resp.ModelVersion
	}
	if len(resp.Candidates) > 0 && resp.Candidates[0] != nil {
		out.FinishReason = string(resp.Candidates[0].FinishReason)
	}
	if resp.UsageMetadata != nil {
		out.InputTokens = int64(resp.UsageMetadata.PromptTokenCount)
		out.OutputTokens = int64(resp.UsageMetadata.CandidatesTokenCount)
	}
	return out
}

func classify(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &StatusError{Code: apiErr.Code, Message: apiErr.Message, err: err}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return &StatusError{Code: apiErrPtr.Code, Message: apiErrPtr.Message, err: err}
	}
	return err
}

// Float32 returns a pointer to v, converting from float64 config values.
func Float32(v float64) *float32 {
	f := float32(v)
	return &f
}
