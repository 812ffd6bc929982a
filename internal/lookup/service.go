package lookup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/couchcryptid/geosearch/internal/cache"
	"github.com/couchcryptid/geosearch/internal/config"
	"github.com/couchcryptid/geosearch/internal/domain"
	"github.com/couchcryptid/geosearch/internal/geocoder"
	"github.com/couchcryptid/geosearch/internal/observability"
	"github.com/couchcryptid/geosearch/internal/registry"
)

// Service is a fully wired geocoder together with the resources it owns.
type Service struct {
	Geocoder *geocoder.Geocoder
	Registry *registry.Registry
	store    cache.Store
}

// Build wires the registry, cache, and geocoder from cfg.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (*Service, error) {
	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open cache store: %w", err)
	}
	reg := NewRegistry(cfg, logger, metrics)
	geo := geocoder.New(reg,
		geocoder.WithLookup(domain.Identity(cfg.Lookup)),
		geocoder.WithCache(NewCache(store, cfg, logger, metrics)),
		geocoder.WithLogger(logger),
		geocoder.WithMetrics(metrics),
	)
	logger.Info("geocoder configured",
		"lookup", cfg.Lookup,
		"street_default", string(reg.StreetDefault()),
		"ip_default", string(reg.IPDefault()),
		"cache", cfg.CacheBackend,
	)
	return &Service{Geocoder: geo, Registry: reg, store: store}, nil
}

// CheckReadiness reports the cache backend's health when it has a check.
func (s *Service) CheckReadiness(ctx context.Context) error {
	if rc, ok := s.store.(interface{ CheckReadiness(context.Context) error }); ok {
		return rc.CheckReadiness(ctx)
	}
	return nil
}

// Close releases providers and the cache store.
func (s *Service) Close() error {
	var errs []error
	if err := s.Registry.Close(); err != nil {
		errs = append(errs, err)
	}
	if c, ok := s.store.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close cache store: %w", err))
		}
	}
	return errors.Join(errs...)
}
