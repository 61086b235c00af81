package interview

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/interview-cli/internal/config"
	"github.com/sells-group/interview-cli/internal/model"
	"github.com/sells-group/interview-cli/internal/reasoning"
)

// Persona is the analyst voice used in replies.
type Persona struct {
	AnalystName string
	Turnaround  string
}

// DefaultPersona returns the persona used when none is configured.
func DefaultPersona() Persona {
	return Persona{AnalystName: "Sarah", Turnaround: "2-3 weeks"}
}

func (p Persona) withDefaults() Persona {
	d := DefaultPersona()
	p.AnalystName = orDefault(p.AnalystName, d.AnalystName)
	p.Turnaround = orDefault(p.Turnaround, d.Turnaround)
	return p
}

// ComposeInput is everything the composer needs for one reply. State is the
// conversation as it stood before this turn.
type ComposeInput struct {
	Mode        model.TurnMode
	Participant model.Participant
	Catalog     *model.Catalog
	State       model.ConversationState
	Message     string
	StillNeeded []model.Issue
}

// Composer produces participant-facing replies through the reasoning service.
type Composer struct {
	svc     reasoning.Service
	persona Persona
	gen     config.GenerationConfig
	recent  int
}

// NewComposer creates a Composer.
func NewComposer(svc reasoning.Service, persona Persona, gen config.GenerationConfig, recent int) *Composer {
	if recent <= 0 {
		recent = recentWindow
	}
	return &Composer{svc: svc, persona: persona.withDefaults(), gen: gen, recent: recent}
}

// Compose always returns a usable reply. A non-nil error means the reasoning
// service could not be used and a templated fallback was returned instead.
func (c *Composer) Compose(ctx context.Context, in ComposeInput) (string, error) {
	req := reasoning.Request{
		Purpose:     reasoning.PurposeConverse,
		Temperature: reasoning.Float(c.gen.Temperature),
		TopP:        topP(c.gen.TopP),
		MaxTokens:   c.gen.MaxTokens,
	}
	if in.Mode == model.ModeClosing {
		req.Purpose = reasoning.PurposeClose
		req.Prompt = buildClosingPrompt(c.persona, in)
	} else {
		req.Prompt = buildContinuationPrompt(c.persona, in, c.recent)
	}

	text, err := c.generate(ctx, req)
	if err != nil {
		return c.fallback(in), err
	}
	if in.Mode == model.ModeClosing {
		return text, nil
	}
	return ensureQuestion(text), nil
}

func (c *Composer) generate(ctx context.Context, req reasoning.Request) (string, error) {
	if c.svc == nil {
		return "", eris.New("interview: no reasoning service configured")
	}
	resp, err := c.svc.Generate(ctx, req)
	if err != nil {
		return "", eris.Wrapf(err, "interview: compose %s reply", req.Purpose)
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", errEmptyReply
	}
	return text, nil
}

func (c *Composer) fallback(in ComposeInput) string {
	if in.Mode == model.ModeClosing || len(in.StillNeeded) == 0 {
		return closingFallback(c.persona, in.Participant)
	}
	return continuationFallback(in.StillNeeded)
}

// Greeting is the deterministic opening message written when a session starts.
func (c *Composer) Greeting(p model.Participant, catalog *model.Catalog) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s! I'm %s, and I'm looking forward to learning more about %s. ",
		founderName(p), c.persona.AnalystName, companyName(p))
	issues := catalog.Issues()
	if len(issues) == 0 {
		b.WriteString("What would you most like us to know?")
		return b.String()
	}
	fmt.Fprintf(&b, "I have %d topics to cover for our investment memo. To start: %s",
		len(issues), ensureQuestion(issues[0].Question))
	return b.String()
}

func topP(v float64) *float64 {
	if v <= 0 {
		return nil
	}
	return reasoning.Float(v)
}

// ensureQuestion makes a continuation reply end in a question mark. A
// trailing '.' becomes '?' only when the text holds no '?' at all; text
// without terminal punctuation gets '?' appended; '!' is left alone.
func ensureQuestion(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return text
	}
	switch text[len(text)-1] {
	case '?', '!':
		return text
	case '.':
		if strings.Contains(text, "?") {
			return text
		}
		return text[:len(text)-1] + "?"
	default:
		return text + "?"
	}
}

func continuationFallback(stillNeeded []model.Issue) string {
	return "Thanks for sharing! " + ensureQuestion(stillNeeded[0].Question)
}

func closingFallback(persona Persona, p model.Participant) string {
	return fmt.Sprintf("Thank you so much for your time, %s! We've gathered excellent insights about %s. "+
		"I'll update our investment memo and get back to you within %s with our feedback. Best of luck with everything!",
		founderName(p), companyName(p), persona.Turnaround)
}
