package storage

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"drive/internal/server/database"
)

// DiskBlob is a blob file found on disk during a sweep.
type DiskBlob struct {
	Hash    string
	ModTime time.Time
}

// orphanGracePeriod protects blob files that were written moments ago by an
// upload whose transaction has not committed yet.
const orphanGracePeriod = time.Hour

// Sweeper periodically removes blob files that have no ledger record,
// typically leftovers from uploads aborted after the physical write.
type Sweeper struct {
	ledger   database.Ledger
	store    *FileSystemStore
	interval time.Duration
	done     chan struct{}
}

// NewSweeper creates a new orphan sweeper.
func NewSweeper(ledger database.Ledger, store *FileSystemStore, interval time.Duration) *Sweeper {
	return &Sweeper{
		ledger:   ledger,
		store:    store,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start begins the sweep loop in a background goroutine.
func (s *Sweeper) Start(ctx context.Context) {
	slog.Info("orphan sweeper started", "interval", s.interval)

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		// Run once immediately on start
		s.runSweep(ctx)

		for {
			select {
			case <-ticker.C:
				s.runSweep(ctx)
			case <-ctx.Done():
				slog.Info("orphan sweeper stopping")
				close(s.done)
				return
			}
		}
	}()
}

// Wait blocks until the sweeper has fully stopped.
func (s *Sweeper) Wait() {
	<-s.done
}

func (s *Sweeper) runSweep(ctx context.Context) {
	onDisk, err := s.store.ListHashes()
	if err != nil {
		slog.Error("failed to scan storage directory", "error", err)
		return
	}

	cutoff := time.Now().Add(-orphanGracePeriod)
	var removed, failed int
	for _, b := range onDisk {
		if b.ModTime.After(cutoff) {
			continue
		}

		_, err := s.ledger.GetBlob(ctx, b.Hash)
		if err == nil {
			continue
		}
		if !errors.Is(err, database.ErrNotFound) {
			slog.Error("failed to look up blob during sweep", "hash", b.Hash, "error", err)
			failed++
			continue
		}

		if err := s.store.Delete(b.Hash); err != nil {
			slog.Error("failed to remove orphaned blob", "hash", b.Hash, "error", err)
			failed++
			continue
		}

		removed++
		slog.Info("removed orphaned blob", "hash", b.Hash)
	}

	if removed > 0 || failed > 0 {
		slog.Info("sweep cycle complete",
			"removed", removed,
			"failed", failed,
			"scanned", len(onDisk),
		)
	}
}
