/*
scheduler.go - Automated fine accrual scheduler

PURPOSE:
  Periodically refreshes days-late and late fines for every group's open
  period, so dues stay current even when nobody hits the recompute endpoint.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Repairs the open-period invariant before recomputing (EnsureOpenPeriod)
  - Recomputes each entry's accrual as of today; payments are never touched

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewAccrualScheduler(handler)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: Recompute endpoint (manual refresh)
  - contribution/ledger.go: RecomputeDue
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/samiti/collection-engine/engine"
)

// AccrualScheduler keeps fine accruals current across all groups.
type AccrualScheduler struct {
	Handler       *Handler
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewAccrualScheduler creates a new scheduler.
func NewAccrualScheduler(handler *Handler) *AccrualScheduler {
	return &AccrualScheduler{
		Handler:       handler,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

// Start begins the scheduler.
func (as *AccrualScheduler) Start() {
	as.mu.Lock()
	defer as.mu.Unlock()

	if !as.Enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return
	}

	as.ticker = time.NewTicker(as.CheckInterval)
	as.wg.Add(1)

	go as.run()

	log.Printf("[Scheduler] Started with check interval: %v", as.CheckInterval)
}

// Stop stops the scheduler.
func (as *AccrualScheduler) Stop() {
	as.mu.Lock()
	defer as.mu.Unlock()

	if as.ticker != nil {
		as.ticker.Stop()
		close(as.stop)
		as.wg.Wait()
		log.Println("[Scheduler] Stopped")
	}
}

func (as *AccrualScheduler) run() {
	defer as.wg.Done()

	// Run immediately on start
	as.checkAndProcess()

	for {
		select {
		case <-as.ticker.C:
			as.checkAndProcess()
		case <-as.stop:
			return
		}
	}
}

func (as *AccrualScheduler) checkAndProcess() {
	ctx := context.Background()
	asOf := engine.Today()

	groups, err := as.Handler.Store.Groups(ctx)
	if err != nil {
		log.Printf("[Scheduler] Error listing groups: %v", err)
		return
	}

	refreshed := 0
	for _, group := range groups {
		period, err := as.Handler.Lifecycle.EnsureOpenPeriod(ctx, group.ID)
		if err != nil {
			log.Printf("[Scheduler] Error resolving open period for %s: %v", group.ID, err)
			continue
		}

		if _, err := as.Handler.Ledger.RecomputeDue(ctx, group, period, asOf); err != nil {
			log.Printf("[Scheduler] Error recomputing dues for %s: %v", group.ID, err)
			continue
		}
		refreshed++
	}

	if refreshed > 0 {
		log.Printf("[Scheduler] Refreshed accruals for %d group(s) as of %s", refreshed, asOf)
	}
}

// RunNow triggers an immediate check (for testing/admin).
func (as *AccrualScheduler) RunNow() {
	as.checkAndProcess()
}

// GetNextRunTime returns when the next scheduled check will occur.
func (as *AccrualScheduler) GetNextRunTime() time.Time {
	return time.Now().Add(as.CheckInterval)
}
