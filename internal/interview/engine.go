package interview

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/interview-cli/internal/config"
	"github.com/sells-group/interview-cli/internal/metrics"
	"github.com/sells-group/interview-cli/internal/model"
	"github.com/sells-group/interview-cli/internal/reasoning"
)

// Fallback stages reported in TurnResult.Fallbacks and metrics.
const (
	StageCompose = "compose"
	StageClose   = "close"
	StageExtract = "extract"
)

// Options configures an Engine.
type Options struct {
	Persona        Persona
	Continuation   config.GenerationConfig
	Extraction     config.GenerationConfig
	RecentMessages int
}

// OptionsFromConfig maps the interview config section onto Options.
func OptionsFromConfig(cfg config.InterviewConfig) Options {
	return Options{
		Persona:        Persona{AnalystName: cfg.AnalystName, Turnaround: cfg.Turnaround},
		Continuation:   cfg.Continuation,
		Extraction:     cfg.Extraction,
		RecentMessages: cfg.RecentMessages,
	}
}

// TurnInput is one participant message plus the session it belongs to.
type TurnInput struct {
	Catalog     *model.Catalog
	Participant model.Participant
	State       model.ConversationState
	Message     string
}

// Engine runs a single turn: reply, extraction, merge and completion.
type Engine struct {
	composer *Composer
	analyzer *Analyzer
	metrics  *metrics.Metrics
}

// NewEngine creates an Engine around a reasoning service.
func NewEngine(svc reasoning.Service, opts Options, m *metrics.Metrics) *Engine {
	return &Engine{
		composer: NewComposer(svc, opts.Persona, opts.Continuation, opts.RecentMessages),
		analyzer: NewAnalyzer(svc, opts.Extraction, opts.RecentMessages),
		metrics:  m,
	}
}

// Composer returns the engine's reply composer.
func (e *Engine) Composer() *Composer { return e.composer }

// ProcessTurn never mutates in.State. Reasoning failures degrade to
// templated replies and no-op extraction; the only errors are a missing
// catalog and an aborted caller context, in which case nothing should be
// persisted.
func (e *Engine) ProcessTurn(ctx context.Context, in TurnInput) (*model.TurnResult, error) {
	if in.Catalog == nil {
		return nil, ErrMissingCatalog
	}
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "interview: turn aborted")
	}

	// Calls already issued run to completion or their own timeout even if
	// the caller goes away; the result is discarded below.
	callCtx := context.WithoutCancel(ctx)
	state := in.State.Clone()
	log := zap.L().With(zap.String("company", in.Participant.CompanyName))

	stillNeeded := StillNeeded(in.Catalog, state)
	mode := model.ModeContinuation
	if len(stillNeeded) == 0 {
		mode = model.ModeClosing
	}

	var fallbacks []string
	fallback := func(stage string, err error) {
		fallbacks = append(fallbacks, stage)
		e.metrics.ObserveFallback(stage)
		log.Warn("interview: using fallback", zap.String("stage", stage), zap.Error(err))
	}

	reply, err := e.composer.Compose(callCtx, ComposeInput{
		Mode:        mode,
		Participant: in.Participant,
		Catalog:     in.Catalog,
		State:       state,
		Message:     in.Message,
		StillNeeded: stillNeeded,
	})
	if err != nil {
		fallback(stageFor(mode), err)
	}
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "interview: turn aborted")
	}

	state.Transcript = append(state.Transcript,
		model.Message{Role: model.RoleParticipant, Text: in.Message},
		model.Message{Role: model.RoleAgent, Text: reply},
	)

	ext, err := e.analyzer.Extract(callCtx, in.Catalog, state)
	if err != nil {
		fallback(StageExtract, err)
	}
	state.GatheredInfo = ext.Gathered
	state.CannotAnswer = model.UnionCannotAnswer(state.CannotAnswer, ext.NewCannotAnswer)

	// The last topic was covered by this very message: answer with the
	// wrap-up instead of another question.
	if ext.IsComplete && mode == model.ModeContinuation {
		mode = model.ModeClosing
		closing, err := e.composer.Compose(callCtx, ComposeInput{
			Mode:        mode,
			Participant: in.Participant,
			Catalog:     in.Catalog,
			State:       state,
			Message:     in.Message,
		})
		if err != nil {
			fallback(StageClose, err)
		}
		state.Transcript[len(state.Transcript)-1].Text = closing
		reply = closing
	}

	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "interview: turn aborted")
	}

	p := model.ProgressOf(in.Catalog, state.GatheredInfo, state.CannotAnswer)
	log.Info("interview: turn processed",
		zap.String("mode", string(mode)),
		zap.Int("total", p.Total),
		zap.Int("gathered", p.Gathered),
		zap.Int("cannot_answer", p.CannotAnswer),
		zap.Int("still_needed", p.Remaining),
		zap.Int("attempted", p.Attempted),
		zap.Bool("extraction_skipped", ext.Skipped),
		zap.Bool("complete", ext.IsComplete),
	)
	e.metrics.ObserveTurn(string(mode))
	if ext.IsComplete {
		e.metrics.ObserveCompletion()
	}

	return &model.TurnResult{
		Reply:           reply,
		Mode:            mode,
		State:           state,
		IsComplete:      ext.IsComplete,
		NewCannotAnswer: ext.NewCannotAnswer,
		Fallbacks:       fallbacks,
	}, nil
}

func stageFor(mode model.TurnMode) string {
	if mode == model.ModeClosing {
		return StageClose
	}
	return StageCompose
}
