package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jmerrifield20/tokenledger/internal/ledger"
	"github.com/jmerrifield20/tokenledger/internal/metrics"
)

// Checkpointer periodically saves the host's state when it has changed.
//
// It compares Host.Version against the last saved version, so an idle ledger
// costs nothing. Notify requests an early save; Run saves once more when its
// context is cancelled.
type Checkpointer struct {
	host     *ledger.Host
	store    Store
	interval time.Duration
	logger   *zap.Logger

	mu        sync.Mutex
	saved     uint64
	haveSaved bool
	nudge     chan struct{}
}

// NewCheckpointer creates a Checkpointer. interval defaults to 30s.
func NewCheckpointer(host *ledger.Host, st Store, interval time.Duration, logger *zap.Logger) *Checkpointer {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Checkpointer{
		host:     host,
		store:    st,
		interval: interval,
		logger:   logger,
		nudge:    make(chan struct{}, 1),
	}
}

// Restore loads the stored snapshot into the host. It returns false, nil when
// there is nothing stored.
func (c *Checkpointer) Restore(ctx context.Context) (bool, error) {
	snap, err := c.store.Load(ctx)
	if errors.Is(err, ErrNoSnapshot) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := c.host.Restore(snap); err != nil {
		return false, fmt.Errorf("restore snapshot: %w", err)
	}

	c.mu.Lock()
	c.saved = snap.Version
	c.haveSaved = true
	c.mu.Unlock()

	c.logger.Info("ledger restored from checkpoint",
		zap.String("symbol", snap.Symbol),
		zap.Uint64("version", snap.Version),
		zap.Int("history", len(snap.History)),
	)
	return true, nil
}

// Notify requests a save at the next opportunity. It never blocks.
func (c *Checkpointer) Notify() {
	select {
	case c.nudge <- struct{}{}:
	default:
	}
}

// Run saves on every tick or nudge until ctx is cancelled, then performs a
// final save with a fresh 10s deadline.
func (c *Checkpointer) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			finalCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := c.Checkpoint(finalCtx); err != nil {
				c.logger.Error("final checkpoint failed", zap.Error(err))
			}
			cancel()
			return
		case <-ticker.C:
		case <-c.nudge:
		}
		if err := c.Checkpoint(ctx); err != nil {
			c.logger.Warn("checkpoint failed", zap.Error(err))
		}
	}
}

// Checkpoint saves the current state if it differs from the last save.
func (c *Checkpointer) Checkpoint(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.host.Initialized() {
		return nil
	}
	if c.haveSaved && c.host.Version() == c.saved {
		return nil
	}

	snap, err := c.host.Snapshot()
	if err != nil {
		return err
	}
	if err := c.store.Save(ctx, snap); err != nil {
		metrics.RecordCheckpoint(false)
		return fmt.Errorf("save checkpoint: %w", err)
	}
	metrics.RecordCheckpoint(true)

	c.saved = snap.Version
	c.haveSaved = true
	c.logger.Debug("checkpoint saved", zap.Uint64("version", snap.Version))
	return nil
}
