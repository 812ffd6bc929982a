package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Cache backends accepted by GEOCODER_CACHE.
const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Lookup is the configured street-address provider identity. Empty means
	// the registry default. It is validated by the registry on first use.
	Lookup          string
	ProviderTimeout time.Duration

	CacheBackend string
	CachePrefix  string
	CacheSize    int
	CacheTimeout time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTTL      time.Duration

	// Provider credentials.
	GoogleAPIKey            string
	GooglePremierClientID   string
	GooglePremierSigningKey string
	GooglePremierChannel    string
	MapboxToken             string
	FreegeoipURL            string
	MaxmindDBPath           string

	// Batch pipeline.
	PipelineEnabled    bool
	KafkaBrokers       []string
	KafkaSourceTopic   string
	KafkaSinkTopic     string
	KafkaGroupID       string
	BatchSize          int
	BatchFlushInterval time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	providerTimeout, err := parsePositiveDuration("PROVIDER_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}

	cacheTimeout, err := parsePositiveDuration("CACHE_TIMEOUT", "250ms")
	if err != nil {
		return nil, err
	}

	redisTTL, err := parseDuration("REDIS_TTL", "0s")
	if err != nil {
		return nil, err
	}

	cacheSize, err := parsePositiveInt("CACHE_SIZE", 1000)
	if err != nil {
		return nil, err
	}

	redisDB, err := strconv.Atoi(sharedcfg.EnvOrDefault("REDIS_DB", "0"))
	if err != nil || redisDB < 0 {
		return nil, errors.New("invalid REDIS_DB")
	}

	pipelineEnabled, err := strconv.ParseBool(sharedcfg.EnvOrDefault("PIPELINE_ENABLED", "false"))
	if err != nil {
		return nil, errors.New("invalid PIPELINE_ENABLED")
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		Lookup:          strings.TrimSpace(os.Getenv("GEOCODER_LOOKUP")),
		ProviderTimeout: providerTimeout,

		CacheBackend: strings.ToLower(sharedcfg.EnvOrDefault("GEOCODER_CACHE", CacheNone)),
		CachePrefix:  os.Getenv("GEOCODER_CACHE_PREFIX"),
		CacheSize:    cacheSize,
		CacheTimeout: cacheTimeout,

		RedisAddr:     sharedcfg.EnvOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       redisDB,
		RedisTTL:      redisTTL,

		GoogleAPIKey:            os.Getenv("GOOGLE_API_KEY"),
		GooglePremierClientID:   os.Getenv("GOOGLE_PREMIER_CLIENT_ID"),
		GooglePremierSigningKey: os.Getenv("GOOGLE_PREMIER_SIGNING_KEY"),
		GooglePremierChannel:    os.Getenv("GOOGLE_PREMIER_CHANNEL"),
		MapboxToken:             os.Getenv("MAPBOX_TOKEN"),
		FreegeoipURL:            os.Getenv("FREEGEOIP_URL"),
		MaxmindDBPath:           os.Getenv("MAXMIND_DB_PATH"),

		PipelineEnabled:    pipelineEnabled,
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic:   sharedcfg.EnvOrDefault("KAFKA_SOURCE_TOPIC", "geocode-requests"),
		KafkaSinkTopic:     sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "geocode-results"),
		KafkaGroupID:       sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "geosearch"),
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,
	}

	switch cfg.CacheBackend {
	case CacheNone, CacheMemory, CacheRedis:
	default:
		return nil, fmt.Errorf("invalid GEOCODER_CACHE %q: must be one of none, memory, redis", cfg.CacheBackend)
	}
	if cfg.CacheBackend == CacheRedis && cfg.RedisAddr == "" {
		return nil, errors.New("REDIS_ADDR is required when GEOCODER_CACHE is redis")
	}
	if cfg.PipelineEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required")
		}
		if cfg.KafkaSourceTopic == "" {
			return nil, errors.New("KAFKA_SOURCE_TOPIC is required")
		}
		if cfg.KafkaSinkTopic == "" {
			return nil, errors.New("KAFKA_SINK_TOPIC is required")
		}
	}

	return cfg, nil
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := parseDuration(key, def)
	if err != nil || d == 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}
