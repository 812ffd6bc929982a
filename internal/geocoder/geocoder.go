// Package geocoder is the single entry point for searches. It classifies a
// query, picks the provider identity for its class, resolves the provider
// through the registry and runs the lookup, optionally through the result cache.
package geocoder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/geosearch/internal/cache"
	"github.com/couchcryptid/geosearch/internal/domain"
	"github.com/couchcryptid/geosearch/internal/observability"
	"github.com/couchcryptid/geosearch/internal/registry"
)

// Geocoder dispatches searches to providers.
type Geocoder struct {
	registry *registry.Registry
	lookup   domain.Identity
	cache    *cache.ResultCache
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// Option configures a Geocoder.
type Option func(*Geocoder)

// WithLookup sets the street-address provider used instead of the registry
// default. It never affects IP queries. An empty identity keeps the default.
func WithLookup(id domain.Identity) Option {
	return func(g *Geocoder) { g.lookup = id }
}

// WithCache routes provider calls through c. A nil or disabled cache is ignored.
func WithCache(c *cache.ResultCache) Option {
	return func(g *Geocoder) { g.cache = c }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Geocoder) { g.logger = logger }
}

// WithMetrics records search and provider outcomes.
func WithMetrics(m *observability.Metrics) Option {
	return func(g *Geocoder) { g.metrics = m }
}

// New creates a Geocoder over reg.
func New(reg *registry.Registry, opts ...Option) *Geocoder {
	g := &Geocoder{registry: reg, logger: slog.Default()}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Search returns the provider's results for q in provider order. A blank query
// returns an empty slice without touching the registry. The returned slice is
// never nil when err is nil.
func (g *Geocoder) Search(ctx context.Context, q domain.Query, opts domain.Options) ([]domain.Result, error) {
	if domain.IsBlank(q) {
		g.observeSearch("blank", "empty")
		return []domain.Result{}, nil
	}

	class := domain.Classify(q)
	if c, ok := q.Coordinates(); ok && !c.Valid() {
		g.observeSearch(string(class), "error")
		return nil, fmt.Errorf("reverse geocode %s: %w", c, domain.ErrInvalidCoordinates)
	}
	id := g.identityFor(class)

	provider, err := g.registry.Resolve(id)
	if err != nil {
		g.observeSearch(string(class), "error")
		return nil, err
	}

	var compute func(context.Context) ([]domain.Result, error)
	if c, ok := q.Coordinates(); ok {
		compute = g.instrument(id, func(ctx context.Context) ([]domain.Result, error) {
			return provider.ReverseGeocode(ctx, c, opts)
		})
	} else {
		compute = g.instrument(id, func(ctx context.Context) ([]domain.Result, error) {
			return provider.Search(ctx, q, opts)
		})
	}

	results, err := g.cache.FetchOrCompute(ctx, g.cache.Key(q, opts), compute)
	if err != nil {
		g.observeSearch(string(class), "error")
		return nil, fmt.Errorf("%s search via %s: %w", class, id, err)
	}
	if results == nil {
		results = []domain.Result{}
	}

	outcome := "success"
	if len(results) == 0 {
		outcome = "empty"
	}
	g.observeSearch(string(class), outcome)
	return results, nil
}

// Coordinates returns the first result's coordinates, or false when nothing matched.
func (g *Geocoder) Coordinates(ctx context.Context, q domain.Query, opts domain.Options) (domain.Coordinates, bool, error) {
	results, err := g.Search(ctx, q, opts)
	if err != nil || len(results) == 0 {
		return domain.Coordinates{}, false, err
	}
	return results[0].Coordinates, true, nil
}

// Address returns the first result's formatted address, or false when nothing matched.
func (g *Geocoder) Address(ctx context.Context, q domain.Query, opts domain.Options) (string, bool, error) {
	results, err := g.Search(ctx, q, opts)
	if err != nil || len(results) == 0 {
		return "", false, err
	}
	return results[0].FormattedAddress, true, nil
}

// identityFor picks the provider for a query class. IP queries always use
// the IP default.
func (g *Geocoder) identityFor(class domain.Classification) domain.Identity {
	if class == domain.ClassIP {
		return g.registry.IPDefault()
	}
	if g.lookup != "" {
		return g.lookup
	}
	return g.registry.StreetDefault()
}

func (g *Geocoder) instrument(id domain.Identity, fn func(context.Context) ([]domain.Result, error)) func(context.Context) ([]domain.Result, error) {
	return func(ctx context.Context) ([]domain.Result, error) {
		start := time.Now()
		results, err := fn(ctx)
		elapsed := time.Since(start)

		outcome := "success"
		switch {
		case err != nil:
			outcome = "error"
			g.logProviderError(id, err)
		case len(results) == 0:
			outcome = "empty"
		}
		if g.metrics != nil {
			g.metrics.ProviderRequests.WithLabelValues(string(id), outcome).Inc()
			g.metrics.ProviderDuration.WithLabelValues(string(id)).Observe(elapsed.Seconds())
		}
		return results, err
	}
}

func (g *Geocoder) logProviderError(id domain.Identity, err error) {
	var pe *domain.ProviderError
	if errors.As(err, &pe) {
		g.logger.Warn("provider request failed",
			"provider", string(id),
			"kind", pe.Kind.String(),
			"status", pe.StatusCode,
			"error", err,
		)
		return
	}
	g.logger.Warn("provider request failed", "provider", string(id), "error", err)
}

func (g *Geocoder) observeSearch(class, outcome string) {
	if g.metrics != nil {
		g.metrics.SearchRequests.WithLabelValues(class, outcome).Inc()
	}
}
