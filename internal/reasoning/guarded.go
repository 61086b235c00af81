package reasoning

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/interview-cli/internal/metrics"
	"github.com/sells-group/interview-cli/internal/resilience"
)

// GuardOptions configures Guarded.
type GuardOptions struct {
	// Timeout bounds one Generate call including retries. Zero disables it.
	Timeout time.Duration
	// Limiter throttles outgoing attempts. Nil disables throttling.
	Limiter *rate.Limiter
	Breaker *resilience.Breaker
	Retry   resilience.RetryPolicy
	Metrics *metrics.Metrics
}

// Guarded wraps a Service with throttling, a circuit breaker, retries, a
// timeout, and usage logging.
type Guarded struct {
	next     Service
	provider string
	opts     GuardOptions
}

// NewGuarded wraps next. The breaker defaults to one scoped to provider.
func NewGuarded(next Service, provider string, opts GuardOptions) *Guarded {
	if opts.Breaker == nil {
		opts.Breaker = resilience.NewBreaker(provider, resilience.DefaultBreakerConfig())
	}
	return &Guarded{next: next, provider: provider, opts: opts}
}

// Generate implements Service.
func (g *Guarded) Generate(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "reasoning: call aborted")
	}
	if g.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.opts.Timeout)
		defer cancel()
	}

	policy := g.opts.Retry
	if policy.OnRetry == nil {
		policy.OnRetry = resilience.LogRetries(g.provider, string(req.Purpose))
	}

	start := time.Now()
	resp, err := resilience.Guard(ctx, g.opts.Breaker, func(ctx context.Context) (*Response, error) {
		return resilience.Retry(ctx, policy, func(ctx context.Context) (*Response, error) {
			if g.opts.Limiter != nil {
				if err := g.opts.Limiter.Wait(ctx); err != nil {
					return nil, err
				}
			}
			return g.next.Generate(ctx, req)
		})
	})
	elapsed := time.Since(start)
	g.opts.Metrics.ObserveReasoningCall(g.provider, string(req.Purpose), err, elapsed)

	if err != nil {
		return nil, eris.Wrapf(err, "reasoning: %s via %s", req.Purpose, g.provider)
	}

	g.opts.Metrics.AddTokens(g.provider, resp.InputTokens, resp.OutputTokens)
	zap.L().Debug("reasoning call complete",
		zap.String("provider", g.provider),
		zap.String("purpose", string(req.Purpose)),
		zap.String("model", resp.Model),
		zap.Int64("input_tokens", resp.InputTokens),
		zap.Int64("output_tokens", resp.OutputTokens),
		zap.Duration("elapsed", elapsed),
	)
	return resp, nil
}
