package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/marketledger/internal/ledger"
	"github.com/odyssey-erp/marketledger/internal/payments"
)

// Snapshotter saves the marketplace state whenever it has changed.
type Snapshotter struct {
	store   Store
	ledger  *ledger.Ledger
	wallets *payments.Wallets
	logger  *slog.Logger
	now     func() time.Time

	group singleflight.Group

	mu        sync.Mutex
	ledgerRev uint64
	walletRev uint64
	savedOnce bool
}

// NewSnapshotter builds a Snapshotter for the given live state.
func NewSnapshotter(st Store, l *ledger.Ledger, w *payments.Wallets, logger *slog.Logger) *Snapshotter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Snapshotter{
		store:   st,
		ledger:  l,
		wallets: w,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Flush saves the current state if it changed since the last save. Concurrent
// calls share one save. It reports whether a save happened.
func (s *Snapshotter) Flush(ctx context.Context) (bool, error) {
	v, err, _ := s.group.Do("flush", func() (interface{}, error) {
		return s.flush(ctx)
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

func (s *Snapshotter) flush(ctx context.Context) (bool, error) {
	// Revisions are read before capture; a mutation racing the capture only
	// causes one extra save later.
	ledgerRev := s.ledger.Revision()
	walletRev := s.wallets.Revision()

	s.mu.Lock()
	unchanged := s.savedOnce && ledgerRev == s.ledgerRev && walletRev == s.walletRev
	s.mu.Unlock()
	if unchanged {
		return false, nil
	}

	doc := Capture(s.ledger, s.wallets, s.now())
	raw, err := json.Marshal(doc)
	if err != nil {
		return false, fmt.Errorf("store: encode state: %w", err)
	}
	if err := s.store.Save(ctx, StateName, raw); err != nil {
		return false, err
	}

	s.mu.Lock()
	s.ledgerRev, s.walletRev, s.savedOnce = ledgerRev, walletRev, true
	s.mu.Unlock()
	s.logger.Debug("state saved", slog.Uint64("next_id", doc.Ledger.NextID), slog.Int("products", len(doc.Ledger.Products)))
	return true, nil
}

// Run flushes every interval until ctx is cancelled, then performs a final
// flush with a fresh context.
func (s *Snapshotter) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			finalCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if _, err := s.Flush(finalCtx); err != nil {
				s.logger.Error("final state save", slog.Any("error", err))
				return err
			}
			return nil
		case <-ticker.C:
			if _, err := s.Flush(ctx); err != nil {
				s.logger.Warn("periodic state save", slog.Any("error", err))
			}
		}
	}
}
