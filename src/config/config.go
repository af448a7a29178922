package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the memory service.
type Config struct {
	BindAddr         string
	MetricsNamespace string
	ShutdownTimeout  time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	HotCacheTTL   time.Duration
	TurnCap       int

	Mem0BaseURL string
	Mem0APIKey  string
	Mem0Timeout time.Duration

	DatabaseURL string

	VectorBackend    string // "qdrant" or "mongo"
	VectorCollection string
	QdrantURL        string
	QdrantAPIKey     string
	QdrantTimeout    time.Duration
	MongoURI         string
	MongoDatabase    string

	EmbedProvider string
	EmbedModel    string
	EmbedDim      int

	ContextTurns int
	SearchLimit  int
	TierTimeout  time.Duration
}

// Load reads environment variables and applies the reference-deployment
// defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("MEMORYD_BIND_ADDR", ":8085"),
		MetricsNamespace: envOrDefault("MEMORYD_METRICS_NAMESPACE", "memoryd"),
		ShutdownTimeout:  15 * time.Second,

		RedisAddr:     envOrDefault("MEMORYD_REDIS_ADDR", "localhost:6379"),
		RedisPassword: strings.TrimSpace(os.Getenv("MEMORYD_REDIS_PASSWORD")),
		RedisDB:       0,
		HotCacheTTL:   time.Hour,
		TurnCap:       100,

		Mem0BaseURL: envOrDefault("MEMORYD_MEM0_URL", "http://localhost:8888"),
		Mem0APIKey:  strings.TrimSpace(os.Getenv("MEMORYD_MEM0_API_KEY")),
		Mem0Timeout: 30 * time.Second,

		DatabaseURL: strings.TrimSpace(os.Getenv("MEMORYD_DATABASE_URL")),

		VectorBackend:    envOrDefault("MEMORYD_VECTOR_BACKEND", "qdrant"),
		VectorCollection: envOrDefault("MEMORYD_VECTOR_COLLECTION", "family_memories"),
		QdrantURL:        envOrDefault("MEMORYD_QDRANT_URL", "http://localhost:6333"),
		QdrantAPIKey:     strings.TrimSpace(os.Getenv("QDRANT_API_KEY")),
		QdrantTimeout:    15 * time.Second,
		MongoURI:         strings.TrimSpace(os.Getenv("MEMORYD_MONGO_URI")),
		MongoDatabase:    envOrDefault("MEMORYD_MONGO_DATABASE", "memoryd"),

		EmbedProvider: envOrDefault("MEMORYD_EMBED_PROVIDER", "ollama"),
		EmbedModel:    envOrDefault("MEMORYD_EMBED_MODEL", "nomic-embed-text"),
		EmbedDim:      768,

		ContextTurns: 20,
		SearchLimit:  5,
		TierTimeout:  10 * time.Second,
	}

	var err error
	if cfg.ShutdownTimeout, err = durationFromEnv("MEMORYD_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout); err != nil {
		return Config{}, err
	}
	if cfg.RedisDB, err = intFromEnv("MEMORYD_REDIS_DB", cfg.RedisDB); err != nil {
		return Config{}, err
	}
	if cfg.HotCacheTTL, err = durationFromEnv("MEMORYD_HOT_CACHE_TTL", cfg.HotCacheTTL); err != nil {
		return Config{}, err
	}
	if cfg.TurnCap, err = intFromEnv("MEMORYD_TURN_CAP", cfg.TurnCap); err != nil {
		return Config{}, err
	}
	if cfg.Mem0Timeout, err = durationFromEnv("MEMORYD_MEM0_TIMEOUT", cfg.Mem0Timeout); err != nil {
		return Config{}, err
	}
	if cfg.QdrantTimeout, err = durationFromEnv("MEMORYD_QDRANT_TIMEOUT", cfg.QdrantTimeout); err != nil {
		return Config{}, err
	}
	if cfg.EmbedDim, err = intFromEnv("MEMORYD_EMBED_DIM", cfg.EmbedDim); err != nil {
		return Config{}, err
	}
	if cfg.ContextTurns, err = intFromEnv("MEMORYD_CONTEXT_TURNS", cfg.ContextTurns); err != nil {
		return Config{}, err
	}
	if cfg.SearchLimit, err = intFromEnv("MEMORYD_SEARCH_LIMIT", cfg.SearchLimit); err != nil {
		return Config{}, err
	}
	if cfg.TierTimeout, err = durationFromEnv("MEMORYD_TIER_TIMEOUT", cfg.TierTimeout); err != nil {
		return Config{}, err
	}

	switch strings.ToLower(cfg.VectorBackend) {
	case "qdrant", "mongo":
	default:
		return Config{}, fmt.Errorf("unknown vector backend %q", cfg.VectorBackend)
	}
	if strings.ToLower(cfg.VectorBackend) == "mongo" && cfg.MongoURI == "" {
		return Config{}, fmt.Errorf("MEMORYD_MONGO_URI is required with the mongo vector backend")
	}
	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
