package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BindAddr != ":8085" {
		t.Fatalf("expected default bind addr :8085, got %q", cfg.BindAddr)
	}
	if cfg.VectorBackend != "qdrant" {
		t.Fatalf("expected default vector backend qdrant, got %q", cfg.VectorBackend)
	}
	if cfg.VectorCollection != "family_memories" {
		t.Fatalf("expected default collection family_memories, got %q", cfg.VectorCollection)
	}
	if cfg.HotCacheTTL != time.Hour {
		t.Fatalf("expected default hot cache TTL 1h, got %s", cfg.HotCacheTTL)
	}
	if cfg.TurnCap != 100 {
		t.Fatalf("expected default turn cap 100, got %d", cfg.TurnCap)
	}
	if cfg.EmbedProvider != "ollama" || cfg.EmbedModel != "nomic-embed-text" || cfg.EmbedDim != 768 {
		t.Fatalf("unexpected embed defaults: %q %q %d", cfg.EmbedProvider, cfg.EmbedModel, cfg.EmbedDim)
	}
	if cfg.ContextTurns != 20 || cfg.SearchLimit != 5 {
		t.Fatalf("unexpected read-path defaults: %d %d", cfg.ContextTurns, cfg.SearchLimit)
	}
	if cfg.TierTimeout != 10*time.Second {
		t.Fatalf("expected default tier timeout 10s, got %s", cfg.TierTimeout)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("MEMORYD_BIND_ADDR", ":9000")
	t.Setenv("MEMORYD_HOT_CACHE_TTL", "30m")
	t.Setenv("MEMORYD_TURN_CAP", "50")
	t.Setenv("MEMORYD_TIER_TIMEOUT", "2s")
	t.Setenv("MEMORYD_EMBED_DIM", "1536")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BindAddr != ":9000" {
		t.Fatalf("expected :9000, got %q", cfg.BindAddr)
	}
	if cfg.HotCacheTTL != 30*time.Minute {
		t.Fatalf("expected 30m TTL, got %s", cfg.HotCacheTTL)
	}
	if cfg.TurnCap != 50 {
		t.Fatalf("expected turn cap 50, got %d", cfg.TurnCap)
	}
	if cfg.TierTimeout != 2*time.Second {
		t.Fatalf("expected 2s tier timeout, got %s", cfg.TierTimeout)
	}
	if cfg.EmbedDim != 1536 {
		t.Fatalf("expected embed dim 1536, got %d", cfg.EmbedDim)
	}
}

func TestLoadRejectsUnknownVectorBackend(t *testing.T) {
	t.Setenv("MEMORYD_VECTOR_BACKEND", "pinecone")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for unknown vector backend")
	}
}

func TestLoadMongoBackendRequiresURI(t *testing.T) {
	t.Setenv("MEMORYD_VECTOR_BACKEND", "mongo")
	t.Setenv("MEMORYD_MONGO_URI", "")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error when mongo backend has no URI")
	}

	t.Setenv("MEMORYD_MONGO_URI", "mongodb://localhost:27017")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.MongoURI == "" {
		t.Fatalf("expected mongo URI carried through")
	}
}

func TestLoadRejectsMalformedDuration(t *testing.T) {
	t.Setenv("MEMORYD_TIER_TIMEOUT", "soon")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for malformed duration")
	}
}
