package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/interview-cli/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	// AlertStaleSessions fires when too many interviews stall mid-way.
	AlertStaleSessions AlertType = "stale_sessions"
	// AlertLowCompletion fires when most settled interviews were abandoned
	// rather than completed.
	AlertLowCompletion AlertType = "low_completion"
)

// minSettled is the number of settled sessions (complete or stale) needed
// before the completion rate is meaningful.
const minSettled = 5

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a Snapshot against configured thresholds and sends
// alerts via webhook when thresholds are breached. An alert type is sent at
// most once per cooldown.
type Alerter struct {
	cfg    config.MonitorConfig
	client *http.Client
	now    func() time.Time

	mu       sync.Mutex
	lastSent map[AlertType]time.Time
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitorConfig) *Alerter {
	return &Alerter{
		cfg:      cfg,
		client:   &http.Client{Timeout: 10 * time.Second},
		now:      func() time.Time { return time.Now().UTC() },
		lastSent: make(map[AlertType]time.Time),
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *Snapshot) []Alert {
	var alerts []Alert
	now := a.now()

	if a.cfg.StaleThreshold > 0 && snap.StaleActive >= a.cfg.StaleThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertStaleSessions,
			Severity: "medium",
			Message: fmt.Sprintf(
				"%d active interview(s) have had no reply in %dh (%d active, avg progress %.0f%%)",
				snap.StaleActive, snap.StaleAfterHours, snap.SessionsActive, snap.AvgProgress*100,
			),
			Details: map[string]any{
				"stale_active":      snap.StaleActive,
				"sessions_active":   snap.SessionsActive,
				"stale_after_hours": snap.StaleAfterHours,
				"threshold":         a.cfg.StaleThreshold,
			},
			Timestamp: now,
		})
	}

	settled := snap.SessionsComplete + snap.StaleActive
	if a.cfg.MinCompletionRate > 0 && settled >= minSettled {
		rate := float64(snap.SessionsComplete) / float64(settled)
		if rate < a.cfg.MinCompletionRate {
			alerts = append(alerts, Alert{
				Type:     AlertLowCompletion,
				Severity: "high",
				Message: fmt.Sprintf(
					"Only %.0f%% of settled interviews completed (%d complete, %d stalled), below %.0f%%",
					rate*100, snap.SessionsComplete, snap.StaleActive, a.cfg.MinCompletionRate*100,
				),
				Details: map[string]any{
					"completion_rate":   rate,
					"threshold":         a.cfg.MinCompletionRate,
					"sessions_complete": snap.SessionsComplete,
					"stale_active":      snap.StaleActive,
				},
				Timestamp: now,
			})
		}
	}

	return alerts
}

// cooling reports whether an alert of type t was sent within the cooldown.
func (a *Alerter) cooling(t AlertType) bool {
	cooldown := time.Duration(a.cfg.CooldownMins) * time.Minute
	if cooldown <= 0 {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	last, ok := a.lastSent[t]
	return ok && a.now().Sub(last) < cooldown
}

func (a *Alerter) markSent(t AlertType) {
	a.mu.Lock()
	a.lastSent[t] = a.now()
	a.mu.Unlock()
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if a.cooling(alert.Type) {
			zap.L().Debug("monitoring: alert suppressed by cooldown",
				zap.String("type", string(alert.Type)),
			)
			continue
		}
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		a.markSent(alert.Type)
		sent++
	}
	return sent
}

func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
