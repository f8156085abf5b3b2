package directory

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/example/facegate/internal/logging"
)

// Loader produces a fresh snapshot from the backing enrollment store.
type Loader interface {
	LoadSnapshot(ctx context.Context) (*Snapshot, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context) (*Snapshot, error)

// LoadSnapshot implements Loader.
func (f LoaderFunc) LoadSnapshot(ctx context.Context) (*Snapshot, error) {
	return f(ctx)
}

// Refresher reloads the identity snapshot on a fixed interval. A failed
// reload keeps the previous snapshot in place.
type Refresher struct {
	store    *Store
	loader   Loader
	interval time.Duration
	logger   *zap.Logger
}

// NewRefresher constructs a refresher.
func NewRefresher(store *Store, loader Loader, interval time.Duration, logger *zap.Logger) *Refresher {
	return &Refresher{
		store:    store,
		loader:   loader,
		interval: interval,
		logger:   logger.Named("directory_refresher"),
	}
}

// Refresh loads and swaps the snapshot once.
func (r *Refresher) Refresh(ctx context.Context) error {
	snap, err := r.loader.LoadSnapshot(ctx)
	if err != nil {
		return logging.NewOperationError("directory.refresh", "", err)
	}
	r.store.Swap(snap)
	r.logger.Info("identity snapshot refreshed", zap.Int("identities", len(snap.Identities)))
	return nil
}

// Run refreshes on the configured interval until the context is done.
func (r *Refresher) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Refresh(ctx); err != nil {
				r.logger.Warn("snapshot refresh failed, keeping previous snapshot", zap.Error(err))
			}
		}
	}
}
