// Package lookup wires configuration into the provider registration table
// and the cache store.
package lookup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/geosearch/internal/adapter/freegeoip"
	"github.com/couchcryptid/geosearch/internal/adapter/google"
	"github.com/couchcryptid/geosearch/internal/adapter/mapbox"
	"github.com/couchcryptid/geosearch/internal/adapter/maxmind"
	"github.com/couchcryptid/geosearch/internal/adapter/redis"
	"github.com/couchcryptid/geosearch/internal/cache"
	"github.com/couchcryptid/geosearch/internal/config"
	"github.com/couchcryptid/geosearch/internal/domain"
	"github.com/couchcryptid/geosearch/internal/observability"
	"github.com/couchcryptid/geosearch/internal/registry"
)

// Street and IP are the ordered identity lists. The first entry of each is
// the default for its query class.
var (
	Street = []domain.Identity{domain.Google, domain.GooglePremier, domain.Mapbox}
	IP     = []domain.Identity{domain.Freegeoip, domain.Maxmind}
)

// Table returns the static registration table for cfg. Factories read their
// credentials when called, so a missing key only fails the provider that needs it.
func Table(cfg *config.Config, logger *slog.Logger) registry.Table {
	return registry.Table{
		Street: Street,
		IP:     IP,
		Factories: map[string]registry.Factory{
			domain.TypeName(domain.Google): func() (domain.Provider, error) {
				if cfg.GoogleAPIKey == "" {
					return nil, errors.New("GOOGLE_API_KEY is not set")
				}
				return google.NewClient(cfg.GoogleAPIKey, cfg.ProviderTimeout, logger), nil
			},
			domain.TypeName(domain.GooglePremier): func() (domain.Provider, error) {
				return google.NewPremierClient(cfg.GooglePremierClientID, cfg.GooglePremierSigningKey,
					cfg.GooglePremierChannel, cfg.ProviderTimeout, logger)
			},
			domain.TypeName(domain.Mapbox): func() (domain.Provider, error) {
				if cfg.MapboxToken == "" {
					return nil, errors.New("MAPBOX_TOKEN is not set")
				}
				return mapbox.NewClient(cfg.MapboxToken, cfg.ProviderTimeout, logger), nil
			},
			domain.TypeName(domain.Freegeoip): func() (domain.Provider, error) {
				return freegeoip.NewClient(cfg.FreegeoipURL, cfg.ProviderTimeout, logger), nil
			},
			domain.TypeName(domain.Maxmind): func() (domain.Provider, error) {
				return maxmind.Open(cfg.MaxmindDBPath, logger)
			},
		},
	}
}

// NewRegistry builds the process registry and counts provider construction.
func NewRegistry(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *registry.Registry {
	reg := registry.New(Table(cfg, logger))
	reg.OnCreate = func(id domain.Identity) {
		logger.Info("provider instantiated", "provider", string(id))
		if metrics != nil {
			metrics.ProvidersInstantiated.WithLabelValues(string(id)).Inc()
		}
	}
	return reg
}

// OpenStore opens the configured cache backend. It returns a nil Store when
// caching is disabled. Backends that hold connections implement io.Closer.
func OpenStore(ctx context.Context, cfg *config.Config) (cache.Store, error) {
	switch cfg.CacheBackend {
	case config.CacheNone, "":
		return nil, nil
	case config.CacheMemory:
		store, err := cache.NewMemoryStore(cfg.CacheSize)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.CacheRedis:
		store, err := redis.NewStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisTTL)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
	}
}

// NewCache wraps store in a ResultCache using the configured prefix and timeout.
func NewCache(store cache.Store, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *cache.ResultCache {
	return cache.New(store,
		cache.WithPrefix(cfg.CachePrefix),
		cache.WithTimeout(cfg.CacheTimeout),
		cache.WithLogger(logger),
		cache.WithMetrics(metrics),
	)
}
