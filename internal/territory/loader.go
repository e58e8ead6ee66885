package territory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Store hydrates territories from durable storage.
// Implementations may block on I/O; returns nil, nil when the id is unknown.
type Store interface {
	LoadTerritory(ctx context.Context, id string) (*Territory, error)
}

// Loader is a bounded, access-expiring cache over a Store. Concurrent
// requests for the same not-yet-cached id share a single hydration via
// singleflight; later requesters wait on the in-flight load instead of
// issuing a second one. Entries are evicted once the size bound is exceeded
// (least recently accessed first) or after the idle timeout.
//
// The cache is purely derived state: dropping it loses nothing.
type Loader struct {
	store       Store
	maxSize     int
	idleTimeout time.Duration

	mu      sync.RWMutex
	entries map[string]*loaderEntry

	flight singleflight.Group
}

type loaderEntry struct {
	t          *Territory
	lastAccess time.Time
}

// NewLoader creates a loader over the given store.
func NewLoader(store Store, maxSize int, idleTimeout time.Duration) *Loader {
	return &Loader{
		store:       store,
		maxSize:     maxSize,
		idleTimeout: idleTimeout,
		entries:     make(map[string]*loaderEntry, maxSize),
	}
}

// Get returns the territory for id, hydrating it from storage on a miss.
// Returns nil, nil when the id is unknown to storage.
func (l *Loader) Get(ctx context.Context, id string) (*Territory, error) {
	l.mu.Lock()
	if e, ok := l.entries[id]; ok {
		e.lastAccess = time.Now()
		t := e.t
		l.mu.Unlock()
		return t, nil
	}
	l.mu.Unlock()

	v, err, _ := l.flight.Do(id, func() (any, error) {
		// Another flight may have populated the cache while this caller
		// queued on the flight lock.
		l.mu.RLock()
		if e, ok := l.entries[id]; ok {
			l.mu.RUnlock()
			return e.t, nil
		}
		l.mu.RUnlock()

		t, err := l.store.LoadTerritory(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("hydrating territory %s: %w", id, err)
		}
		if t == nil {
			return (*Territory)(nil), nil
		}
		l.put(id, t)
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Territory), nil
}

// Resident returns the territory only if it is already cached; it never
// touches storage. Safe for hot paths that must not block on I/O.
func (l *Loader) Resident(id string) *Territory {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[id]
	if !ok {
		return nil
	}
	e.lastAccess = time.Now()
	return e.t
}

// Preload hydrates a batch of ids in the background. Fire-and-forget:
// failures are logged, not returned.
func (l *Loader) Preload(ctx context.Context, ids []string) {
	go func() {
		for _, id := range ids {
			if _, err := l.Get(ctx, id); err != nil {
				slog.Warn("preload failed", "territory_id", id, "err", err)
			}
		}
	}()
}

// Invalidate drops a single cached territory.
func (l *Loader) Invalidate(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, id)
}

// InvalidateAll drops the whole cache.
func (l *Loader) InvalidateAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = make(map[string]*loaderEntry, l.maxSize)
}

// Len returns the number of cached territories.
func (l *Loader) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Start runs the periodic idle sweep until the context is cancelled.
func (l *Loader) Start(ctx context.Context, sweepInterval time.Duration) error {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			l.sweep()
		}
	}
}

// put inserts an entry, evicting the least recently accessed ones while the
// cache is over its bound.
func (l *Loader) put(id string, t *Territory) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries[id] = &loaderEntry{t: t, lastAccess: time.Now()}

	for len(l.entries) > l.maxSize {
		oldestID := ""
		var oldest time.Time
		for k, e := range l.entries {
			if oldestID == "" || e.lastAccess.Before(oldest) {
				oldestID = k
				oldest = e.lastAccess
			}
		}
		delete(l.entries, oldestID)
	}
}

// sweep evicts entries idle longer than the timeout.
func (l *Loader) sweep() {
	cutoff := time.Now().Add(-l.idleTimeout)

	l.mu.Lock()
	defer l.mu.Unlock()
	for id, e := range l.entries {
		if e.lastAccess.Before(cutoff) {
			delete(l.entries, id)
		}
	}
}
