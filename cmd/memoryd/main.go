package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/hearthside/memoryd/src/config"
	"github.com/hearthside/memoryd/src/httpapi"
	"github.com/hearthside/memoryd/src/memory"
	"github.com/hearthside/memoryd/src/memory/embed"
	"github.com/hearthside/memoryd/src/memory/tier"
	"github.com/hearthside/memoryd/src/observability"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)
	ctx := context.Background()

	var hot tier.HotCache
	if strings.EqualFold(cfg.RedisAddr, "memory") {
		// Local development without a Redis instance.
		hot = tier.NewMemoryHotCache(cfg.HotCacheTTL, cfg.TurnCap)
		log.Printf("hot cache: in-process (ttl %s, cap %d)", cfg.HotCacheTTL, cfg.TurnCap)
	} else {
		hot = tier.NewRedisHotCache(tier.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.HotCacheTTL,
			Cap:      cfg.TurnCap,
			Timeout:  cfg.TierTimeout,
		})
	}

	working := tier.NewMem0Client(tier.Mem0Options{
		BaseURL: cfg.Mem0BaseURL,
		APIKey:  cfg.Mem0APIKey,
		Timeout: cfg.Mem0Timeout,
	})

	structured, err := tier.NewPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("structured store init failed: %v", err)
	}

	var vectors tier.VectorIndex
	switch strings.ToLower(cfg.VectorBackend) {
	case "mongo":
		mi, err := tier.NewMongoIndex(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.VectorCollection)
		if err != nil {
			log.Fatalf("mongo vector index init failed: %v", err)
		}
		vectors = mi
		log.Printf("vector backend: mongo (%s.%s)", cfg.MongoDatabase, cfg.VectorCollection)
	default:
		vectors = tier.NewQdrantIndex(tier.QdrantOptions{
			BaseURL:    cfg.QdrantURL,
			APIKey:     cfg.QdrantAPIKey,
			Collection: cfg.VectorCollection,
			Timeout:    cfg.QdrantTimeout,
		})
		log.Printf("vector backend: qdrant (%s)", cfg.VectorCollection)
	}

	embedder := embed.NewEmbedder(cfg.EmbedProvider, cfg.EmbedModel, cfg.EmbedDim)

	orch := memory.NewOrchestrator(hot, working, structured, vectors, embedder, memory.Options{
		ContextTurns: cfg.ContextTurns,
		SearchLimit:  cfg.SearchLimit,
		EmbedDim:     cfg.EmbedDim,
		TierTimeout:  cfg.TierTimeout,
	}, metrics)
	defer func() {
		if err := orch.Close(); err != nil {
			log.Printf("close: %v", err)
		}
	}()

	bootstrapCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	if err := orch.Bootstrap(bootstrapCtx); err != nil {
		// Schema bootstrap needs the backing stores up; the service can
		// still serve degraded reads without them.
		log.Printf("bootstrap warning: %v", err)
	}
	cancel()

	server := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           httpapi.New(cfg, orch, metrics).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("memoryd listening on %s", cfg.BindAddr)
		errCh <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		log.Printf("received %s, shutting down", sig)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
