package watchdog

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"listenline/internal/app"
	"listenline/internal/model"
)

// DefaultIdleTimeout is how long an ACTIVE session may go without a
// message or heartbeat before the sweep abandons it.
const DefaultIdleTimeout = 30 * time.Minute

// Watchdog periodically scans ACTIVE sessions for staleness and drives
// idle ones to ABANDONED through the same terminal transition used for
// deliberate closure, so the terminal-state invariant is never bypassed.
type Watchdog struct {
	sessions    *app.SessionService
	schedule    string
	idleTimeout time.Duration
	cron        *cron.Cron
}

func New(sessions *app.SessionService, schedule string, idleTimeout time.Duration) *Watchdog {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	return &Watchdog{
		sessions:    sessions,
		schedule:    schedule,
		idleTimeout: idleTimeout,
	}
}

// Start registers the sweep on a standard 5-field cron schedule.
func (w *Watchdog) Start() error {
	if w.cron != nil {
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(w.schedule, func() {
		w.Sweep(context.Background(), time.Now())
	}); err != nil {
		return fmt.Errorf("register watchdog schedule %q failed: %w", w.schedule, err)
	}
	c.Start()
	w.cron = c
	return nil
}

func (w *Watchdog) Stop() {
	if w.cron != nil {
		w.cron.Stop()
	}
}

// Sweep abandons every ACTIVE session idle since before now-idleTimeout.
// Returns how many sessions were driven to ABANDONED. A session that a
// participant closes mid-sweep is skipped by the conditional transition.
func (w *Watchdog) Sweep(ctx context.Context, now time.Time) int {
	cutoff := now.Add(-w.idleTimeout)
	stale, err := w.sessions.ListStale(cutoff)
	if err != nil {
		log.Printf("watchdog: list stale sessions failed: %v", err)
		return 0
	}

	abandoned := 0
	for _, session := range stale {
		result, err := w.sessions.Abandon(ctx, session.ID, model.EndReasonTimeout)
		if err != nil {
			log.Printf("watchdog: abandon session %d failed: %v", session.ID, err)
			continue
		}
		if result.Status == model.SessionStatusAbandoned && result.EndReason == model.EndReasonTimeout {
			abandoned++
		}
	}
	if abandoned > 0 {
		log.Printf("watchdog: abandoned %d stale session(s)", abandoned)
	}
	return abandoned
}
