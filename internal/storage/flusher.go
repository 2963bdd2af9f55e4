package storage

import (
	"context"
	"time"

	"cynic/internal/errors"
	"cynic/internal/logging"
	"cynic/internal/policy"
)

// DefaultFlushInterval is how often the policy snapshot hits disk when
// no interval is configured.
const DefaultFlushInterval = 55 * time.Second // F(10)

// Flusher owns the Q-table persistence lifecycle: warm start on boot,
// periodic snapshots while running, one final snapshot on shutdown.
type Flusher struct {
	table    *policy.QTable
	store    *SnapshotStore
	interval time.Duration
	retry    errors.RetryConfig
	log      logging.Logger
}

// NewFlusher wires the lifecycle. interval <= 0 uses the default.
func NewFlusher(table *policy.QTable, store *SnapshotStore, interval time.Duration, log logging.Logger) *Flusher {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	retry := errors.DefaultRetryConfig()
	retry.BaseDelay = 200 * time.Millisecond
	return &Flusher{
		table:    table,
		store:    store,
		interval: interval,
		retry:    retry,
		log:      logging.OrNop(log),
	}
}

// WarmStart restores the table from the last snapshot. Returns how many
// entries were loaded; a missing snapshot loads zero.
func (f *Flusher) WarmStart() (int, error) {
	entries, err := f.store.Load()
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}
	loaded := f.table.Restore(entries)
	f.log.Info("policy warm start: %d entries from %s", loaded, f.store.Path())
	return loaded, nil
}

// Flush writes one snapshot now, retrying short-lived filesystem
// hiccups.
func (f *Flusher) Flush(ctx context.Context) error {
	entries := f.table.Snapshot()
	return errors.RetryWithLog(ctx, f.retry, func(context.Context) error {
		if err := f.store.Save(entries); err != nil {
			return errors.NewTransientError(err, "snapshot save failed")
		}
		return nil
	}, f.log)
}

// Run flushes on a ticker until ctx is cancelled, then takes a final
// snapshot so no learning since the last tick is lost. Blocks; run it
// on its own goroutine.
func (f *Flusher) Run(ctx context.Context) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := f.Flush(final); err != nil {
				f.log.Error("final snapshot failed: %v", err)
			}
			cancel()
			return
		case <-ticker.C:
			if err := f.Flush(ctx); err != nil {
				f.log.Warn("periodic snapshot failed: %v", err)
			}
		}
	}
}
