package workers

import (
	"context"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// BadgerGC periodically reclaims space in the value log. Badger never
// runs value-log GC on its own; without this worker a long-lived chat
// process grows unbounded as messages accumulate and statuses churn.
type BadgerGC struct {
	log      *slog.Logger
	db       *badger.DB
	interval time.Duration
}

func NewBadgerGC(log *slog.Logger, db *badger.DB, interval time.Duration) *BadgerGC {
	return &BadgerGC{log: log, db: db, interval: interval}
}

func (w *BadgerGC) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping badger GC")
			return nil
		case <-ticker.C:
			// One GC call rewrites at most one value-log file; loop
			// until badger reports nothing left to reclaim.
			for {
				if err := w.db.RunValueLogGC(0.5); err != nil {
					break
				}
				w.log.Debug("Reclaimed one value log file")
			}
		}
	}
}
