package lookup

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/couchcryptid/geosearch/internal/adapter/freegeoip"
	"github.com/couchcryptid/geosearch/internal/adapter/google"
	"github.com/couchcryptid/geosearch/internal/adapter/mapbox"
	"github.com/couchcryptid/geosearch/internal/adapter/redis"
	"github.com/couchcryptid/geosearch/internal/cache"
	"github.com/couchcryptid/geosearch/internal/config"
	"github.com/couchcryptid/geosearch/internal/domain"
	"github.com/couchcryptid/geosearch/internal/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	return &config.Config{
		ProviderTimeout: time.Second,
		CacheBackend:    config.CacheNone,
		CachePrefix:     "geocoder",
		CacheSize:       10,
		CacheTimeout:    100 * time.Millisecond,
	}
}

func TestTable_FactoryPerIdentity(t *testing.T) {
	table := Table(testConfig(), testLogger())

	assert.Equal(t, []domain.Identity{domain.Google, domain.GooglePremier, domain.Mapbox}, table.Street)
	assert.Equal(t, []domain.Identity{domain.Freegeoip, domain.Maxmind}, table.IP)
	for _, id := range append(append([]domain.Identity{}, table.Street...), table.IP...) {
		_, ok := table.Factories[domain.TypeName(id)]
		assert.True(t, ok, "missing factory for %s", id)
	}
}

func TestNewRegistry_ResolvesConfiguredProviders(t *testing.T) {
	cfg := testConfig()
	cfg.GoogleAPIKey = "g-key"
	cfg.MapboxToken = "pk.test"
	metrics := observability.NewMetricsForTesting()
	reg := NewRegistry(cfg, testLogger(), metrics)

	p, err := reg.Resolve(domain.Google)
	require.NoError(t, err)
	assert.IsType(t, &google.Client{}, p)

	p, err = reg.Resolve(domain.Mapbox)
	require.NoError(t, err)
	assert.IsType(t, &mapbox.Client{}, p)

	p, err = reg.Resolve(domain.Freegeoip)
	require.NoError(t, err)
	assert.IsType(t, &freegeoip.Client{}, p)

	assert.Equal(t, 3, reg.Instantiated())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ProvidersInstantiated.WithLabelValues("mapbox")))
}

func TestNewRegistry_MissingCredentials(t *testing.T) {
	cfg := testConfig()
	cfg.MaxmindDBPath = filepath.Join(t.TempDir(), "missing.mmdb")
	reg := NewRegistry(cfg, testLogger(), nil)

	for _, id := range []domain.Identity{domain.Google, domain.Mapbox, domain.GooglePremier, domain.Maxmind} {
		_, err := reg.Resolve(id)
		var cfgErr *domain.ConfigurationError
		require.ErrorAs(t, err, &cfgErr, "identity %s", id)
		assert.Equal(t, id, cfgErr.Identity)
	}
	assert.Zero(t, reg.Instantiated())
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	t.Run("none", func(t *testing.T) {
		store, err := OpenStore(ctx, testConfig())
		require.NoError(t, err)
		assert.Nil(t, store)
	})

	t.Run("memory", func(t *testing.T) {
		cfg := testConfig()
		cfg.CacheBackend = config.CacheMemory
		store, err := OpenStore(ctx, cfg)
		require.NoError(t, err)
		assert.IsType(t, &cache.MemoryStore{}, store)
	})

	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		cfg := testConfig()
		cfg.CacheBackend = config.CacheRedis
		cfg.RedisAddr = mr.Addr()
		store, err := OpenStore(ctx, cfg)
		require.NoError(t, err)
		require.IsType(t, &redis.Store{}, store)
		require.NoError(t, store.(io.Closer).Close())
	})

	t.Run("redis unreachable", func(t *testing.T) {
		mr := miniredis.RunT(t)
		addr := mr.Addr()
		mr.Close()
		cfg := testConfig()
		cfg.CacheBackend = config.CacheRedis
		cfg.RedisAddr = addr
		store, err := OpenStore(ctx, cfg)
		require.Error(t, err)
		assert.Nil(t, store)
	})

	t.Run("unknown", func(t *testing.T) {
		cfg := testConfig()
		cfg.CacheBackend = "memcached"
		_, err := OpenStore(ctx, cfg)
		require.Error(t, err)
	})
}

func TestNewCache(t *testing.T) {
	store, err := cache.NewMemoryStore(4)
	require.NoError(t, err)
	metrics := observability.NewMetricsForTesting()

	c := NewCache(store, testConfig(), testLogger(), metrics)
	assert.True(t, c.Enabled())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CacheEnabled))
	assert.Equal(t, "geocoder:address|main st", c.Key(domain.Text(" Main   St "), domain.Options{}))

	disabled := NewCache(nil, testConfig(), testLogger(), metrics)
	assert.False(t, disabled.Enabled())
}

func TestBuild(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.CacheBackend = config.CacheRedis
	cfg.RedisAddr = mr.Addr()
	cfg.Lookup = "mapbox"

	svc, err := Build(context.Background(), cfg, testLogger(), observability.NewMetricsForTesting())
	require.NoError(t, err)
	require.NoError(t, svc.CheckReadiness(context.Background()))

	// Blank queries never touch a provider, so the missing Mapbox token is not an error.
	results, err := svc.Geocoder.Search(context.Background(), domain.Text(" "), domain.Options{})
	require.NoError(t, err)
	assert.Empty(t, results)

	_, err = svc.Geocoder.Search(context.Background(), domain.Text("1 Main St"), domain.Options{})
	var cfgErr *domain.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, err.Error(), "MAPBOX_TOKEN")

	require.NoError(t, svc.Close())
	assert.Error(t, svc.CheckReadiness(context.Background()))
}

func TestBuild_RedisUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	cfg := testConfig()
	cfg.CacheBackend = config.CacheRedis
	cfg.RedisAddr = addr

	_, err := Build(context.Background(), cfg, testLogger(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open cache store")
}
