package reasoning

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/interview-cli/internal/config"
	"github.com/sells-group/interview-cli/internal/metrics"
	"github.com/sells-group/interview-cli/internal/resilience"
	"github.com/sells-group/interview-cli/pkg/anthropic"
	"github.com/sells-group/interview-cli/pkg/gemini"
	"github.com/sells-group/interview-cli/pkg/openai"
)

// New builds the configured provider wrapped in Guarded.
func New(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (Service, error) {
	var (
		svc Service
		err error
	)
	provider := cfg.Reasoning.Provider

	switch provider {
	case ProviderAnthropic:
		svc = NewAnthropic(anthropic.NewClient(cfg.Anthropic.Key), cfg.Anthropic.Model)
	case ProviderGemini:
		var client gemini.Client
		client, err = gemini.NewClient(ctx, gemini.Config{
			APIKey:   cfg.Gemini.Key,
			Project:  cfg.Gemini.Project,
			Location: cfg.Gemini.Location,
			Vertex:   cfg.Gemini.Vertex,
		})
		if err != nil {
			return nil, eris.Wrap(err, "reasoning: gemini client")
		}
		svc = NewGemini(client, cfg.Gemini.Model)
	case ProviderOpenAI:
		svc = NewOpenAI(openai.NewClient(cfg.OpenAI.Key, cfg.OpenAI.BaseURL), cfg.OpenAI.Model)
	default:
		return nil, eris.Errorf("reasoning: unknown provider %q", provider)
	}

	opts := GuardOptions{
		Timeout: time.Duration(cfg.Reasoning.TimeoutSecs) * time.Second,
		Breaker: resilience.NewBreaker(provider, resilience.BreakerFromConfig(
			cfg.Reasoning.Circuit.FailureThreshold,
			cfg.Reasoning.Circuit.ResetTimeoutSecs,
		)),
		Retry: resilience.PolicyFromConfig(
			cfg.Reasoning.Retry.MaxAttempts,
			cfg.Reasoning.Retry.InitialBackoffMs,
			cfg.Reasoning.Retry.MaxBackoffMs,
		),
		Metrics: m,
	}
	if cfg.Reasoning.RatePerSec > 0 {
		burst := cfg.Reasoning.Burst
		if burst <= 0 {
			burst = 1
		}
		opts.Limiter = rate.NewLimiter(rate.Limit(cfg.Reasoning.RatePerSec), burst)
	}

	return NewGuarded(svc, provider, opts), nil
}
