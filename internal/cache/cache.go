package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/geosearch/internal/domain"
	"github.com/couchcryptid/geosearch/internal/observability"
	"github.com/sony/gobreaker"
)

const defaultTimeout = 250 * time.Millisecond

// errCallerGone marks store calls abandoned because the caller's context
// ended. They say nothing about the store and never count against the breaker.
var errCallerGone = errors.New("caller context done")

// ResultCache wraps a Store with a key prefix and fetch-or-compute semantics.
// A nil *ResultCache, or one built with a nil Store, is disabled and always computes.
type ResultCache struct {
	store   Store
	prefix  string
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
	metrics *observability.Metrics
}

// Option configures a ResultCache.
type Option func(*ResultCache)

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(c *ResultCache) { c.prefix = prefix }
}

// WithTimeout bounds every store call. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(c *ResultCache) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the logger used for store warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(c *ResultCache) { c.logger = logger }
}

// WithMetrics records hits, misses, and store errors.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *ResultCache) { c.metrics = m }
}

// New creates a ResultCache over store. Passing a nil store disables caching.
func New(store Store, opts ...Option) *ResultCache {
	c := &ResultCache{
		store:   store,
		timeout: defaultTimeout,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	// Trip after repeated failures so a dead backend costs nothing per request.
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "cache-store",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, errCallerGone)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("cache store circuit state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	if c.metrics != nil {
		if c.Enabled() {
			c.metrics.CacheEnabled.Set(1)
		} else {
			c.metrics.CacheEnabled.Set(0)
		}
	}
	return c
}

// Enabled reports whether a store is configured.
func (c *ResultCache) Enabled() bool {
	return c != nil && c.store != nil
}

// Key derives the cache key for q and opts using the configured prefix.
func (c *ResultCache) Key(q domain.Query, opts domain.Options) string {
	if c == nil {
		return Key("", q, opts)
	}
	return Key(c.prefix, q, opts)
}

// FetchOrCompute returns the cached results for key, or runs compute and
// stores its results. Store failures degrade to compute and are never
// returned; errors from compute are returned and not cached.
func (c *ResultCache) FetchOrCompute(ctx context.Context, key string, compute func(context.Context) ([]domain.Result, error)) ([]domain.Result, error) {
	if !c.Enabled() {
		return compute(ctx)
	}

	data, found, err := c.read(ctx, key)
	switch {
	case errors.Is(err, errCallerGone):
		c.warn("read", key, err)
	case err != nil:
		c.observe("error")
		c.warn("read", key, err)
	case found:
		var results []domain.Result
		if err := json.Unmarshal(data, &results); err == nil {
			c.observe("hit")
			if results == nil {
				results = []domain.Result{}
			}
			return results, nil
		}
		c.logger.Warn("discarding undecodable cache entry", "key", key)
		c.delete(ctx, key)
		c.observe("miss")
	default:
		c.observe("miss")
	}

	results, err := compute(ctx)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(results)
	if err != nil {
		c.logger.Warn("encode results for cache", "key", key, "error", err)
		return results, nil
	}
	if err := c.write(ctx, key, payload); err != nil {
		if !errors.Is(err, errCallerGone) {
			c.observe("error")
		}
		c.warn("write", key, err)
	}
	return results, nil
}

type readResult struct {
	data  []byte
	found bool
}

func (c *ResultCache) read(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := c.call(ctx, func(ctx context.Context) (any, error) {
		data, found, err := c.store.Read(ctx, key)
		return readResult{data: data, found: found}, err
	})
	if err != nil {
		return nil, false, err
	}
	r := v.(readResult)
	return r.data, r.found, nil
}

func (c *ResultCache) write(ctx context.Context, key string, payload []byte) error {
	_, err := c.call(ctx, func(ctx context.Context) (any, error) {
		return nil, c.store.Write(ctx, key, payload)
	})
	return err
}

func (c *ResultCache) delete(ctx context.Context, key string) {
	if _, err := c.call(ctx, func(ctx context.Context) (any, error) {
		return nil, c.store.Delete(ctx, key)
	}); err != nil {
		c.warn("delete", key, err)
	}
}

// call runs fn through the breaker and gives up after the configured timeout
// even if the store ignores context cancellation.
func (c *ResultCache) call(ctx context.Context, fn func(context.Context) (any, error)) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", errCallerGone, err)
	}
	return c.breaker.Execute(func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		type outcome struct {
			v   any
			err error
		}
		done := make(chan outcome, 1)
		go func() {
			v, err := fn(callCtx)
			done <- outcome{v: v, err: err}
		}()

		var o outcome
		select {
		case o = <-done:
		case <-callCtx.Done():
			o.err = callCtx.Err()
		}
		if o.err != nil && ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", errCallerGone, o.err)
		}
		return o.v, o.err
	})
}

func (c *ResultCache) observe(result string) {
	if c.metrics != nil {
		c.metrics.CacheLookups.WithLabelValues(result).Inc()
	}
}

func (c *ResultCache) warn(op, key string, err error) {
	storeErr := &domain.CacheStoreError{Op: op, Key: key, Err: err}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) || errors.Is(err, errCallerGone) {
		c.logger.Debug("cache store skipped", "error", storeErr)
		return
	}
	c.logger.Warn("cache store failed, continuing without cache", "error", storeErr)
}
