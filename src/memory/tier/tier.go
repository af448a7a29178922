// Package tier contains the four storage-tier adapters the orchestrator
// fans out to. Each adapter owns one long-lived client for its backing
// service and is safe for concurrent use.
package tier

import (
	"context"

	"github.com/hearthside/memoryd/src/memory/model"
)

// HotCache is the short-TTL ordered log of recent turns per conversation.
type HotCache interface {
	// RecentTurns returns up to limit turns, most-recent-first.
	RecentTurns(ctx context.Context, conversationID string, limit int) ([]model.Turn, error)
	// AppendTurn pushes a turn to the front of the conversation log, trims
	// the log to the configured cap, then refreshes the TTL — in that order.
	AppendTurn(ctx context.Context, conversationID string, turn model.Turn) error
	CacheUserContext(ctx context.Context, userID string, data map[string]any) error
	// CachedUserContext returns nil with no error on a cache miss.
	CachedUserContext(ctx context.Context, userID string) (map[string]any, error)
	Close() error
}

// WorkingMemory is the session-aware semantic memory store.
type WorkingMemory interface {
	// Add submits turns for memory extraction and returns an opaque identifier.
	Add(ctx context.Context, userID string, turns []model.Turn, metadata map[string]any) (string, error)
	Search(ctx context.Context, query, userID string, limit int) ([]model.WorkingMemoryHit, error)
	// All returns the user's full unscoped memory set.
	All(ctx context.Context, userID string) ([]model.WorkingMemoryHit, error)
	Close() error
}

// StructuredStore holds the durable user profile, preferences, and
// conversation log.
type StructuredStore interface {
	// Profile returns nil with no error when the user has no profile row.
	Profile(ctx context.Context, userID string) (map[string]any, error)
	Preferences(ctx context.Context, userID string) (map[string]any, error)
	AppendTurn(ctx context.Context, userID, conversationID string, turn model.Turn, embedding []float32) error
	Close() error
}

// VectorIndex is the embedding-similarity store over archived memory content.
// The backing collection (namespace) is fixed at construction.
type VectorIndex interface {
	Upsert(ctx context.Context, id string, embedding []float32, payload map[string]any) error
	Search(ctx context.Context, embedding []float32, limit int, filter map[string]any) ([]model.SemanticHit, error)
	Close() error
}

// SchemaInitializer is implemented by tiers that can bootstrap their own
// schema or collection.
type SchemaInitializer interface {
	CreateSchema(ctx context.Context) error
}
