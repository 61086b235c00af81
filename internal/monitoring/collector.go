// Package monitoring summarises stored sessions and alerts on stalled
// interviews.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/interview-cli/internal/metrics"
	"github.com/sells-group/interview-cli/internal/model"
	"github.com/sells-group/interview-cli/internal/store"
)

const collectPageSize = 500

// Snapshot holds a point-in-time view of the session store.
type Snapshot struct {
	SessionsTotal    int     `json:"sessions_total"`
	SessionsActive   int     `json:"sessions_active"`
	SessionsComplete int     `json:"sessions_complete"`
	CompletionRate   float64 `json:"completion_rate"`

	// AvgProgress is the mean attempted/total ratio over all sessions.
	AvgProgress float64 `json:"avg_progress"`
	// AvgTurns is the mean number of participant messages per session.
	AvgTurns float64 `json:"avg_turns"`

	// StaleActive counts active sessions untouched for StaleAfterHours.
	StaleActive     int       `json:"stale_active"`
	StaleAfterHours int       `json:"stale_after_hours"`
	CollectedAt     time.Time `json:"collected_at"`
}

// Collector gathers a Snapshot from the store.
type Collector struct {
	store   store.Store
	metrics *metrics.Metrics
}

// NewCollector creates a new session collector. m may be nil.
func NewCollector(st store.Store, m *metrics.Metrics) *Collector {
	return &Collector{store: st, metrics: m}
}

// Collect walks every stored session and summarises them. Active sessions
// not updated within staleAfterHours are counted as stale.
func (c *Collector) Collect(ctx context.Context, staleAfterHours int) (*Snapshot, error) {
	now := time.Now().UTC()
	snap := &Snapshot{
		StaleAfterHours: staleAfterHours,
		CollectedAt:     now,
	}
	cutoff := now.Add(-time.Duration(staleAfterHours) * time.Hour)

	var progress float64
	var turns int
	for offset := 0; ; offset += collectPageSize {
		sessions, err := c.store.ListSessions(ctx, store.SessionFilter{
			Limit:  collectPageSize,
			Offset: offset,
		})
		if err != nil {
			return nil, eris.Wrap(err, "monitoring: list sessions")
		}

		for i := range sessions {
			s := &sessions[i]
			snap.SessionsTotal++
			switch s.Status {
			case model.SessionComplete:
				snap.SessionsComplete++
			default:
				snap.SessionsActive++
				if staleAfterHours > 0 && s.UpdatedAt.Before(cutoff) {
					snap.StaleActive++
				}
			}
			p := model.ProgressOf(s.Catalog, s.State.GatheredInfo, s.State.CannotAnswer)
			if p.Total > 0 {
				progress += float64(p.Attempted) / float64(p.Total)
			}
			turns += s.State.ParticipantTurns()
		}

		if len(sessions) < collectPageSize {
			break
		}
	}

	if snap.SessionsTotal > 0 {
		n := float64(snap.SessionsTotal)
		snap.CompletionRate = float64(snap.SessionsComplete) / n
		snap.AvgProgress = progress / n
		snap.AvgTurns = float64(turns) / n
	}

	c.metrics.SetSessions(snap.SessionsActive, snap.SessionsComplete)
	return snap, nil
}
