package reasoning

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/interview-cli/pkg/anthropic"
	"github.com/sells-group/interview-cli/pkg/gemini"
	"github.com/sells-group/interview-cli/pkg/openai"
)

// Provider names.
const (
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
	ProviderOpenAI    = "openai"
)

// Anthropic adapts a Claude client.
type Anthropic struct {
	client anthropic.Client
	model  string
}

// NewAnthropic creates an Anthropic-backed Service.
func NewAnthropic(client anthropic.Client, model string) *Anthropic {
	return &Anthropic{client: client, model: model}
}

// Generate implements Service.
func (a *Anthropic) Generate(ctx context.Context, req Request) (*Response, error) {
	mr := anthropic.MessageRequest{
		Model:       a.model,
		MaxTokens:   int64(req.MaxTokens),
		Messages:    []anthropic.Message{{Role: "user", Content: req.Prompt}},
		Temperature: req.Temperature,
	}
	// Current Claude models reject temperature and top_p together.
	if req.Temperature == nil {
		mr.TopP = req.TopP
	}
	if req.System != "" {
		mr.System = []anthropic.SystemBlock{{Text: req.System}}
	}

	resp, err := a.client.CreateMessage(ctx, mr)
	if err != nil {
		return nil, classify(err)
	}
	resp.Usage.LogCost(a.model, string(req.Purpose))

	return &Response{
		Text:         resp.Text(),
		Provider:     ProviderAnthropic,
		Model:        a.model,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}, nil
}

// Gemini adapts a GenAI client.
type Gemini struct {
	client gemini.Client
	model  string
}

// NewGemini creates a Gemini-backed Service.
func NewGemini(client gemini.Client, model string) *Gemini {
	return &Gemini{client: client, model: model}
}

// Generate implements Service.
func (g *Gemini) Generate(ctx context.Context, req Request) (*Response, error) {
	gr := gemini.GenerateRequest{
		Model:           g.model,
		System:          req.System,
		Prompt:          req.Prompt,
		MaxOutputTokens: int32(req.MaxTokens),
		JSON:            req.JSON,
	}
	if req.Temperature != nil {
		gr.Temperature = gemini.Float32(*req.Temperature)
	}
	if req.TopP != nil {
		gr.TopP = gemini.Float32(*req.TopP)
	}

	resp, err := g.client.Generate(ctx, gr)
	if err != nil {
		return nil, classify(err)
	}
	return &Response{
		Text:         resp.Text,
		Provider:     ProviderGemini,
		Model:        g.model,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
	}, nil
}

// OpenAI adapts an OpenAI-compatible chat client.
type OpenAI struct {
	client openai.Client
	model  string
}

// NewOpenAI creates an OpenAI-backed Service.
func NewOpenAI(client openai.Client, model string) *OpenAI {
	return &OpenAI{client: client, model: model}
}

// Generate implements Service. JSON requests without a schema are rejected
// because strict structured output needs one.
func (o *OpenAI) Generate(ctx context.Context, req Request) (*Response, error) {
	if req.JSON && req.Schema == nil {
		return nil, eris.New("reasoning: openai json mode requires a schema")
	}

	var msgs []openai.Message
	if req.System != "" {
		msgs = append(msgs, openai.Message{Role: "system", Content: req.System})
	}
	msgs = append(msgs, openai.Message{Role: "user", Content: req.Prompt})

	cr := openai.CompletionRequest{
		Model:       o.model,
		Messages:    msgs,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		MaxTokens:   int64(req.MaxTokens),
	}
	if req.JSON {
		cr.SchemaName = req.SchemaName
		cr.Schema = req.Schema
	}

	resp, err := o.client.Complete(ctx, cr)
	if err != nil {
		return nil, classify(err)
	}
	return &Response{
		Text:         resp.Content,
		Provider:     ProviderOpenAI,
		Model:        o.model,
		InputTokens:  resp.PromptTokens,
		OutputTokens: resp.CompletionTokens,
	}, nil
}
