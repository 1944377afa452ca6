package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/bookmate/bookmate/internal/logging"
)

// Loader layers read-through loading on a Store. Concurrent misses for the
// same namespace and key share one load.
//
// Each namespace carries an epoch that InvalidateAll bumps. A load that
// started under an older epoch still returns its value to its callers but
// never stores it, and later loads do not join its flight.
type Loader struct {
	store    Store
	group    singleflight.Group
	log      *logging.Logger
	onLookup func(hit bool)

	mu     sync.RWMutex
	epochs map[string]uint64
}

// NewLoader wraps store. onLookup may be nil.
func NewLoader(store Store, logger *logging.Logger, onLookup func(hit bool)) *Loader {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Loader{store: store, log: logger, onLookup: onLookup, epochs: map[string]uint64{}}
}

// InvalidateAll drops the namespace and retires loads still in flight for it.
func (l *Loader) InvalidateAll(ctx context.Context, namespace string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.epochs[namespace]++
	return l.store.InvalidateAll(ctx, namespace)
}

func (l *Loader) epoch(namespace string) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.epochs[namespace]
}

func flightKey(namespace, key string, epoch uint64) string {
	return namespace + "\x00" + key + "\x00" + strconv.FormatUint(epoch, 10)
}

func (l *Loader) lookup(hit bool) {
	if l.onLookup != nil {
		l.onLookup(hit)
	}
}

// Load returns the cached value for key or calls fn, stores its JSON encoding
// for ttl and returns it. Cache failures degrade to calling fn.
func Load[T any](ctx context.Context, l *Loader, namespace, key string, ttl time.Duration, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	epoch := l.epoch(namespace)
	raw, ok, err := l.store.Get(ctx, namespace, key)
	if err != nil {
		l.log.WithContext(ctx).WithError(err).WithField("key", key).Warn("cache get failed")
	}
	if ok {
		var v T
		if err := json.Unmarshal(raw, &v); err == nil {
			l.lookup(true)
			return v, nil
		}
		l.log.WithContext(ctx).WithField("key", key).Warn("discarding undecodable cache entry")
	}
	l.lookup(false)

	res, err, _ := l.group.Do(flightKey(namespace, key, epoch), func() (interface{}, error) {
		return fill(ctx, l, namespace, key, epoch, ttl, fn)
	})
	if err != nil {
		return zero, err
	}
	return res.(T), nil
}

// Reload bypasses the cached value, calls fn and stores the result.
func Reload[T any](ctx context.Context, l *Loader, namespace, key string, ttl time.Duration, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	l.lookup(false)
	epoch := l.epoch(namespace)
	res, err, _ := l.group.Do(flightKey(namespace, key, epoch), func() (interface{}, error) {
		return fill(ctx, l, namespace, key, epoch, ttl, fn)
	})
	if err != nil {
		return zero, err
	}
	return res.(T), nil
}

// fill runs fn detached from the caller's cancellation so that one caller
// giving up does not fail the others sharing the flight.
func fill[T any](ctx context.Context, l *Loader, namespace, key string, epoch uint64, ttl time.Duration, fn func(context.Context) (T, error)) (interface{}, error) {
	ctx = context.WithoutCancel(ctx)
	v, err := fn(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("cache: encode %s: %w", key, err)
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.epochs[namespace] != epoch {
		l.log.WithContext(ctx).WithField("key", key).Debug("namespace invalidated during load; not caching")
		return v, nil
	}
	if err := l.store.Set(ctx, namespace, key, raw, ttl); err != nil {
		l.log.WithContext(ctx).WithError(err).WithField("key", key).Warn("cache set failed")
	}
	return v, nil
}
