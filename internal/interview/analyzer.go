package interview

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/interview-cli/internal/config"
	"github.com/sells-group/interview-cli/internal/model"
	"github.com/sells-group/interview-cli/internal/reasoning"
)

// minParticipantTurns is the number of participant messages required before
// extraction runs. The first message has no prior question to answer.
const minParticipantTurns = 2

const extractionSchemaName = "interview_extraction"

// Extraction is the analyzer's merge result for one turn.
type Extraction struct {
	Gathered        map[string]model.ExtractedAnswer
	NewCannotAnswer []string
	IsComplete      bool
	Skipped         bool
}

// Analyzer extracts structured answers from the latest exchange.
type Analyzer struct {
	svc    reasoning.Service
	gen    config.GenerationConfig
	recent int
}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer(svc reasoning.Service, gen config.GenerationConfig, recent int) *Analyzer {
	if recent <= 0 {
		recent = recentWindow
	}
	return &Analyzer{svc: svc, gen: gen, recent: recent}
}

// Extract reads the latest participant message in s and merges accepted
// answers into a copy of s.GatheredInfo. The returned Extraction is always
// usable: on any failure it carries the unchanged input with IsComplete
// false, and the error describes why.
func (a *Analyzer) Extract(ctx context.Context, c *model.Catalog, s model.ConversationState) (Extraction, error) {
	unchanged := Extraction{
		Gathered:        s.Clone().GatheredInfo,
		NewCannotAnswer: []string{},
	}
	if s.ParticipantTurns() < minParticipantTurns {
		unchanged.Skipped = true
		return unchanged, nil
	}

	needed := fieldsNeeded(c, s)
	if len(needed) == 0 {
		unchanged.Skipped = true
		unchanged.IsComplete = IsComplete(c, s.GatheredInfo, s.CannotAnswer)
		return unchanged, nil
	}
	if a.svc == nil {
		return unchanged, eris.New("interview: no reasoning service configured")
	}

	resp, err := a.svc.Generate(ctx, reasoning.Request{
		Purpose:     reasoning.PurposeExtract,
		Prompt:      buildExtractionPrompt(c, s, needed, a.recent),
		Temperature: reasoning.Float(a.gen.Temperature),
		TopP:        topP(a.gen.TopP),
		MaxTokens:   a.gen.MaxTokens,
		JSON:        true,
		SchemaName:  extractionSchemaName,
		Schema:      extractionSchema(),
	})
	if err != nil {
		return unchanged, eris.Wrap(err, "interview: extract answers")
	}

	payload, err := decodeExtraction(resp.Text)
	if err != nil {
		return unchanged, err
	}
	return merge(c, s, payload), nil
}

// fieldsNeeded lists catalog issues without an accepted answer, in priority
// order. Cannot-answer fields stay listed so a later answer can still land.
func fieldsNeeded(c *model.Catalog, s model.ConversationState) []model.Issue {
	var out []model.Issue
	for _, iss := range c.Issues() {
		if _, ok := s.GatheredInfo[iss.Field]; !ok {
			out = append(out, iss)
		}
	}
	return out
}

// merge applies the acceptance rules: exact catalog field, high or medium
// confidence, non-empty value, and first accepted answer wins.
func merge(c *model.Catalog, s model.ConversationState, p *extractionPayload) Extraction {
	gathered := s.Clone().GatheredInfo
	for _, prop := range p.Extracted {
		field := strings.TrimSpace(prop.Field)
		value := strings.TrimSpace(string(prop.Value))
		if !c.Has(field) || !prop.Confidence.Accepted() || value == "" {
			continue
		}
		if _, exists := gathered[field]; exists {
			continue
		}
		gathered[field] = model.ExtractedAnswer{Value: value, Confidence: prop.Confidence}
	}

	newCannot := []string{}
	seen := map[string]bool{}
	for _, f := range p.CannotAnswer {
		f = strings.TrimSpace(f)
		if !c.Has(f) || s.IsCannotAnswer(f) || seen[f] {
			continue
		}
		seen[f] = true
		newCannot = append(newCannot, f)
	}

	return Extraction{
		Gathered:        gathered,
		NewCannotAnswer: newCannot,
		IsComplete:      IsComplete(c, gathered, model.UnionCannotAnswer(s.CannotAnswer, newCannot)),
	}
}
