package live

import (
	"context"
	"sync"

	"storefront/internal/domain"

	"go.uber.org/zap"
)

// Loader reads the current state of the catalog.
type Loader interface {
	ListAll(ctx context.Context) ([]*domain.Product, error)
	FindByID(ctx context.Context, id string) (*domain.Product, error)
}

// Feed turns change signals into fresh snapshots for watchers.
type Feed struct {
	source Source
	loader Loader
	logger *zap.Logger
}

// NewFeed creates a feed.
func NewFeed(source Source, loader Loader, logger *zap.Logger) *Feed {
	return &Feed{source: source, loader: loader, logger: logger}
}

// Subscription is the handle of a running watch.
type Subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Stop ends the watch and waits for the delivery goroutine to exit. No
// callback runs after Stop returns. Stop is idempotent and must not be
// called from inside the callback.
func (s *Subscription) Stop() {
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
}

// Done is closed once the watch has ended.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// WatchAll calls fn with the full catalog, newest first, now and after every
// change.
func (f *Feed) WatchAll(ctx context.Context, fn func([]*domain.Product, error)) *Subscription {
	return f.watch(ctx, func(Change) bool { return true }, func(ctx context.Context) {
		products, err := f.loader.ListAll(ctx)
		if ctx.Err() != nil {
			return
		}
		fn(products, err)
	})
}

// WatchOne calls fn with the current state of one product, now and after
// every change to it. A deleted product is reported with the loader's not
// found error.
func (f *Feed) WatchOne(ctx context.Context, id string, fn func(*domain.Product, error)) *Subscription {
	relevant := func(c Change) bool {
		return c.Op == OpResync || c.ID == id
	}
	return f.watch(ctx, relevant, func(ctx context.Context) {
		product, err := f.loader.FindByID(ctx, id)
		if ctx.Err() != nil {
			return
		}
		fn(product, err)
	})
}

func (f *Feed) watch(parent context.Context, relevant func(Change) bool, deliver func(context.Context)) *Subscription {
	ctx, cancel := context.WithCancel(parent)
	sub := &Subscription{cancel: cancel, done: make(chan struct{})}

	// subscribe before the first load so no change can slip between them
	changes, release := f.source.Subscribe()

	go func() {
		defer close(sub.done)
		defer release()

		deliver(ctx)

		for {
			select {
			case <-ctx.Done():
				return
			case c, ok := <-changes:
				if !ok {
					f.logger.Debug("Change source closed")
					return
				}
				if relevant(c) {
					deliver(ctx)
				}
			}
		}
	}()

	return sub
}
