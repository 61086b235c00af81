package interview

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/interview-cli/internal/events"
	"github.com/sells-group/interview-cli/internal/lock"
	"github.com/sells-group/interview-cli/internal/metrics"
	"github.com/sells-group/interview-cli/internal/model"
	"github.com/sells-group/interview-cli/internal/store"
)

// ErrTurnInProgress is returned when another turn for the same session held
// the lock for longer than the configured wait.
var ErrTurnInProgress = eris.New("interview: another turn is in progress for this session")

const defaultLockWait = 30 * time.Second

// Service hosts the turn operation on top of the session store.
type Service struct {
	engine   *Engine
	store    store.Store
	locker   lock.Locker
	events   events.Publisher
	metrics  *metrics.Metrics
	lockWait time.Duration
}

// ServiceDeps are the collaborators of a Service. Locker and Events default
// to an in-process lock and a no-op publisher.
type ServiceDeps struct {
	Engine   *Engine
	Store    store.Store
	Locker   lock.Locker
	Events   events.Publisher
	Metrics  *metrics.Metrics
	LockWait time.Duration
}

// NewService creates a Service.
func NewService(d ServiceDeps) *Service {
	if d.Locker == nil {
		d.Locker = lock.NewLocal()
	}
	if d.Events == nil {
		d.Events = events.Nop{}
	}
	if d.LockWait <= 0 {
		d.LockWait = defaultLockWait
	}
	return &Service{
		engine:   d.Engine,
		store:    d.Store,
		locker:   d.Locker,
		events:   d.Events,
		metrics:  d.Metrics,
		lockWait: d.LockWait,
	}
}

// StartSession creates a session for participant with an empty state and the
// analyst's opening message.
func (s *Service) StartSession(ctx context.Context, p model.Participant, catalog *model.Catalog) (*model.Session, error) {
	if catalog.Len() == 0 {
		return nil, ErrMissingCatalog
	}

	state := model.NewConversationState()
	state.Transcript = append(state.Transcript, model.Message{
		Role: model.RoleAgent,
		Text: s.engine.Composer().Greeting(p, catalog),
	})

	sess := &model.Session{
		Participant: p,
		Catalog:     catalog,
		State:       state,
		Status:      model.SessionActive,
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return nil, eris.Wrap(err, "interview: start session")
	}

	zap.L().Info("interview: session started",
		zap.String("token", sess.Token),
		zap.String("company", p.CompanyName),
		zap.Int("issues", catalog.Len()),
	)
	return sess, nil
}

// Session loads a session by token.
func (s *Service) Session(ctx context.Context, token string) (*model.Session, error) {
	sess, err := s.store.GetSession(ctx, token)
	if errors.Is(err, store.ErrNotFound) {
		return nil, eris.Wrapf(ErrSessionNotFound, "interview: session %s", token)
	}
	if err != nil {
		return nil, eris.Wrap(err, "interview: load session")
	}
	return sess, nil
}

// Chat processes one participant message for the session identified by
// token. At most one turn per session runs at a time; later turns queue for
// the lock wait and then fail with ErrTurnInProgress.
func (s *Service) Chat(ctx context.Context, token, message string) (*model.ChatResponse, error) {
	message = norm.NFC.String(strings.TrimSpace(message))
	if message == "" {
		return nil, ErrEmptyMessage
	}

	lockCtx, cancel := context.WithTimeout(ctx, s.lockWait)
	release, err := s.locker.Acquire(lockCtx, token)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "interview: turn aborted")
		}
		if errors.Is(err, lock.ErrNotAcquired) {
			return nil, eris.Wrapf(ErrTurnInProgress, "interview: session %s", token)
		}
		return nil, eris.Wrap(err, "interview: lock session")
	}
	defer release()

	sess, err := s.Session(ctx, token)
	if err != nil {
		return nil, err
	}
	if sess.Catalog == nil {
		return nil, ErrMissingCatalog
	}

	result, err := s.engine.ProcessTurn(ctx, TurnInput{
		Catalog:     sess.Catalog,
		Participant: sess.Participant,
		State:       sess.State,
		Message:     message,
	})
	if err != nil {
		return nil, err
	}

	status := model.SessionActive
	if sess.IsComplete() || result.IsComplete {
		status = model.SessionComplete
	}
	if _, err := s.store.SaveState(ctx, token, sess.Version, result.State, status); err != nil {
		return nil, eris.Wrap(err, "interview: save state")
	}

	attempted, missing := model.AttemptedFields(sess.Catalog, result.State)
	s.publish(ctx, events.Event{
		Kind:            events.KindTurn,
		Token:           token,
		DealID:          sess.Participant.DealID,
		CompanyName:     sess.Participant.CompanyName,
		Mode:            result.Mode,
		IsComplete:      result.IsComplete,
		GatheredFields:  attempted,
		MissingFields:   missing,
		NewCannotAnswer: result.NewCannotAnswer,
	})
	if status == model.SessionComplete && !sess.IsComplete() {
		s.publish(ctx, events.Event{
			Kind:           events.KindCompleted,
			Token:          token,
			DealID:         sess.Participant.DealID,
			CompanyName:    sess.Participant.CompanyName,
			IsComplete:     true,
			GatheredFields: attempted,
			MissingFields:  missing,
			Answers:        result.State.GatheredInfo,
		})
	}

	return &model.ChatResponse{
		Message:        result.Reply,
		IsComplete:     result.IsComplete,
		GatheredFields: attempted,
		MissingFields:  missing,
	}, nil
}

func (s *Service) publish(ctx context.Context, e events.Event) {
	if err := s.events.Publish(ctx, e); err != nil {
		zap.L().Warn("interview: publish event failed",
			zap.String("kind", string(e.Kind)),
			zap.String("token", e.Token),
			zap.Error(err),
		)
	}
}
