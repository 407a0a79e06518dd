// Package worker runs the background flusher that drains the offline queue
// into the remote store once it becomes reachable again.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"spendlog/internal/core"
	"spendlog/internal/log"
	"spendlog/internal/store"
)

// Backlog is the durable offline queue the flusher drains. Satisfied by
// *offline.Queue.
type Backlog interface {
	Pending(ctx context.Context) []core.Expense
	Remove(ctx context.Context, ids []string)
}

// FlusherConfig holds configuration for the offline flusher.
type FlusherConfig struct {
	// ProbeInterval is how often to probe store reachability (default: 15s).
	ProbeInterval time.Duration
}

// DefaultFlusherConfig returns sensible defaults.
func DefaultFlusherConfig() FlusherConfig {
	return FlusherConfig{
		ProbeInterval: 15 * time.Second,
	}
}

// Flusher probes the remote store and, on the transition from unreachable to
// reachable, replays queued expenses one at a time. An entry leaves the queue
// only after its insert is confirmed, so a failure mid-flush keeps the
// remaining entries queued for the next round.
type Flusher struct {
	queue  Backlog
	remote store.Store
	config FlusherConfig
	logger *log.Logger

	// Lifecycle management
	mu      sync.Mutex
	running bool
	online  bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewFlusher creates a flusher over the given queue and remote store.
func NewFlusher(queue Backlog, remote store.Store, config FlusherConfig, logger *log.Logger) *Flusher {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	if config.ProbeInterval <= 0 {
		config.ProbeInterval = DefaultFlusherConfig().ProbeInterval
	}
	return &Flusher{
		queue:  queue,
		remote: remote,
		config: config,
		logger: logger.WithComponent(log.ComponentFlusher),
	}
}

// Start begins the probe loop. Returns an error if already running.
func (f *Flusher) Start(ctx context.Context) error {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return fmt.Errorf("flusher is already running")
	}
	f.running = true
	f.online = false
	f.stopCh = make(chan struct{})
	f.doneCh = make(chan struct{})
	f.mu.Unlock()

	go f.runLoop(ctx)

	f.logger.InfoContext(ctx, "Offline flusher started",
		"probe_interval", f.config.ProbeInterval)

	return nil
}

// Stop gracefully stops the flusher and waits for completion.
func (f *Flusher) Stop(ctx context.Context) error {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return nil
	}
	f.mu.Unlock()

	close(f.stopCh)

	select {
	case <-f.doneCh:
		f.logger.InfoContext(ctx, "Offline flusher stopped gracefully")
	case <-ctx.Done():
		f.logger.WarnContext(ctx, "Offline flusher stop timed out")
		return ctx.Err()
	}

	f.mu.Lock()
	f.running = false
	f.mu.Unlock()

	return nil
}

// IsRunning returns whether the flusher is currently running.
func (f *Flusher) IsRunning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

// Online returns the reachability state observed by the last probe.
func (f *Flusher) Online() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.online
}

func (f *Flusher) runLoop(ctx context.Context) {
	defer close(f.doneCh)

	ticker := time.NewTicker(f.config.ProbeInterval)
	defer ticker.Stop()

	// Probe immediately on startup
	f.probe(ctx)

	for {
		select {
		case <-f.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.probe(ctx)
		}
	}
}

// probe checks store reachability and flushes on the offline-to-online
// transition. The flusher starts in the offline state, so the first
// successful probe after startup also triggers a flush.
func (f *Flusher) probe(ctx context.Context) {
	err := f.remote.Ping(ctx)

	f.mu.Lock()
	wasOnline := f.online
	f.online = err == nil
	f.mu.Unlock()

	if err != nil {
		if wasOnline {
			f.logger.WarnContext(ctx, "Remote store became unreachable", "error", err)
		}
		return
	}

	if !wasOnline {
		f.logger.InfoContext(ctx, "Remote store reachable, flushing offline queue")
		f.Flush(ctx)
	}
}

// Flush replays queued expenses against the remote store in enqueue order
// and removes the confirmed ones from durable storage. It stops at the first
// failed insert, leaving that entry and everything after it queued. Returns
// the number of entries flushed. An empty queue results in no remote calls.
func (f *Flusher) Flush(ctx context.Context) int {
	pending := f.queue.Pending(ctx)
	if len(pending) == 0 {
		return 0
	}

	f.logger.InfoContext(ctx, "Flushing offline queue", "queue_depth", len(pending))

	confirmed := make([]string, 0, len(pending))
	for _, row := range pending {
		if ctx.Err() != nil {
			break
		}

		cand := core.Candidate{
			UserID:      row.UserID,
			Amount:      row.Amount,
			Category:    row.Category,
			Description: row.Description,
			Date:        row.Date,
		}
		persisted, err := f.remote.Insert(ctx, cand)
		if err != nil {
			if store.IsUnavailable(err) {
				f.mu.Lock()
				f.online = false
				f.mu.Unlock()
			}
			f.logger.WarnContext(ctx, "Offline flush interrupted",
				"expense_id", row.ID,
				"flushed", len(confirmed),
				"remaining", len(pending)-len(confirmed),
				"error", err)
			break
		}

		confirmed = append(confirmed, row.ID)
		f.logger.InfoContext(ctx, "Queued expense synced",
			"expense_id", row.ID, "remote_id", persisted.ID)
	}

	f.queue.Remove(ctx, confirmed)
	return len(confirmed)
}
