// Package memory implements the multi-tier memory orchestrator: a hot cache
// of recent turns, a working-memory service, a structured relational store,
// and a vector index, composed into one read path and one write path.
package memory

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hearthside/memoryd/src/memory/embed"
	"github.com/hearthside/memoryd/src/memory/model"
	"github.com/hearthside/memoryd/src/memory/tier"
	"github.com/hearthside/memoryd/src/observability"
)

// ErrInvalidInput marks caller programming errors, the only failure class
// the orchestrator surfaces. Tier failures degrade to empty defaults.
var ErrInvalidInput = errors.New("invalid input")

// Options bound the orchestrator's per-call behavior.
type Options struct {
	ContextTurns int           // read-path immediate-context limit, default 20
	SearchLimit  int           // per-tier search limit on the read path, default 5
	EmbedDim     int           // embedding dimension, default 768
	TierTimeout  time.Duration // per-tier call deadline, default 10s
}

// DefaultOptions mirror the reference deployment.
func DefaultOptions() Options {
	return Options{
		ContextTurns: 20,
		SearchLimit:  5,
		EmbedDim:     embed.DefaultDim,
		TierTimeout:  10 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.ContextTurns <= 0 {
		o.ContextTurns = def.ContextTurns
	}
	if o.SearchLimit <= 0 {
		o.SearchLimit = def.SearchLimit
	}
	if o.EmbedDim <= 0 {
		o.EmbedDim = def.EmbedDim
	}
	if o.TierTimeout <= 0 {
		o.TierTimeout = def.TierTimeout
	}
	return o
}

// Orchestrator fans out to the four tiers. It holds no cross-request
// mutable state, so one instance is safe to share across handlers.
type Orchestrator struct {
	hot        tier.HotCache
	working    tier.WorkingMemory
	structured tier.StructuredStore
	vectors    tier.VectorIndex
	embedder   *embed.Safe
	opts       Options
	metrics    *observability.Metrics
}

// NewOrchestrator wires the four tier adapters and the embedding provider.
// metrics may be nil.
func NewOrchestrator(hot tier.HotCache, working tier.WorkingMemory, structured tier.StructuredStore, vectors tier.VectorIndex, embedder embed.Embedder, opts Options, metrics *observability.Metrics) *Orchestrator {
	opts = opts.withDefaults()
	return &Orchestrator{
		hot:        hot,
		working:    working,
		structured: structured,
		vectors:    vectors,
		embedder:   embed.NewSafe(embedder, opts.EmbedDim),
		opts:       opts,
		metrics:    metrics,
	}
}

// VectorNamespace is the collection holding archived family memories.
const VectorNamespace = "family_memories"

// GetContext assembles the full memory context for one conversation. The
// four tier reads are independent and issued concurrently; a failed tier
// contributes its empty default. Only invalid input returns an error, so a
// degraded context never blocks the assistant from replying.
func (o *Orchestrator) GetContext(ctx context.Context, userID, conversationID, query string) (*model.MemoryContext, error) {
	if err := requireID("user_id", userID); err != nil {
		return nil, err
	}
	if err := requireID("conversation_id", conversationID); err != nil {
		return nil, err
	}
	start := time.Now()
	mc := model.NewMemoryContext(userID, conversationID)
	query = strings.TrimSpace(query)

	var wg sync.WaitGroup
	wg.Add(4)

	go func() {
		defer wg.Done()
		turns, err := o.readHotCache(ctx, conversationID)
		if err != nil {
			log.Printf("memory: hot cache read failed, using empty context: %v", err)
			return
		}
		mc.ImmediateContext = turns
	}()

	go func() {
		defer wg.Done()
		hits, err := o.readWorkingMemory(ctx, query, userID)
		if err != nil {
			log.Printf("memory: working memory read failed, using empty set: %v", err)
			return
		}
		mc.WorkingMemory = hits
	}()

	go func() {
		defer wg.Done()
		profile, prefs := o.readStructured(ctx, userID)
		if profile != nil {
			mc.StructuredData = profile
		}
		if prefs != nil {
			mc.UserPreferences = prefs
		}
	}()

	go func() {
		defer wg.Done()
		if query == "" {
			// No query, no vector search: the orchestrator does not
			// invent one.
			return
		}
		hits, err := o.searchVectors(ctx, query, userID, o.opts.SearchLimit)
		if err != nil {
			log.Printf("memory: vector search failed, using empty set: %v", err)
			return
		}
		mc.SemanticMemories = hits
	}()

	wg.Wait()
	o.metrics.ObserveAssembly(time.Since(start))
	return mc, nil
}

// SaveContext persists one turn across all four tiers. The fan-out is best
// effort: there is no cross-tier transaction, and a partial failure leaves
// the other tiers' writes in place. Per-tier failures are logged and
// counted, never returned. Writes run on a context detached from caller
// cancellation so issued writes complete independently.
func (o *Orchestrator) SaveContext(ctx context.Context, userID, conversationID, messageType, content string, metadata map[string]any) error {
	if err := requireID("user_id", userID); err != nil {
		return err
	}
	if err := requireID("conversation_id", conversationID); err != nil {
		return err
	}
	role, err := model.ParseRole(messageType)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	turn := model.Turn{
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
		Metadata:  model.CloneMetadata(metadata),
	}

	// Embedded once here; the structured and vector writes share it.
	writeCtx := context.WithoutCancel(ctx)
	embedding, _ := o.embedder.Embed(writeCtx, content)

	var wg sync.WaitGroup
	wg.Add(4)

	go func() {
		defer wg.Done()
		tctx, cancel := o.tierContext(writeCtx)
		defer cancel()
		err := o.hot.AppendTurn(tctx, conversationID, turn)
		o.metrics.ObserveTier("hot_cache", "append", err)
		if err != nil {
			log.Printf("memory: hot cache append failed: %v", err)
		}
	}()

	go func() {
		defer wg.Done()
		tctx, cancel := o.tierContext(writeCtx)
		defer cancel()
		// One turn per submission so memory extraction sees a single
		// exchange at a time.
		_, err := o.working.Add(tctx, userID, []model.Turn{turn}, turn.Metadata)
		o.metrics.ObserveTier("working_memory", "add", err)
		if err != nil {
			log.Printf("memory: working memory add failed: %v", err)
		}
	}()

	go func() {
		defer wg.Done()
		tctx, cancel := o.tierContext(writeCtx)
		defer cancel()
		err := o.structured.AppendTurn(tctx, userID, conversationID, turn, embedding)
		o.metrics.ObserveTier("structured", "append", err)
		if err != nil {
			log.Printf("memory: structured store append failed: %v", err)
		}
	}()

	go func() {
		defer wg.Done()
		tctx, cancel := o.tierContext(writeCtx)
		defer cancel()
		payload := model.CloneMetadata(turn.Metadata)
		payload["content"] = content
		payload["user_id"] = userID
		payload["conversation_id"] = conversationID
		payload["message_type"] = string(role)
		payload["timestamp"] = turn.Timestamp.Format(time.RFC3339Nano)
		err := o.vectors.Upsert(tctx, uuid.NewString(), embedding, payload)
		o.metrics.ObserveTier("vector_index", "upsert", err)
		if err != nil {
			log.Printf("memory: vector upsert failed: %v", err)
		}
	}()

	wg.Wait()
	o.metrics.IncTurnsSaved()
	return nil
}

// SearchMemories queries working memory and the vector index independently
// and concatenates the tagged results, working-memory hits first, truncated
// to limit. No cross-tier deduplication or score normalization is applied.
func (o *Orchestrator) SearchMemories(ctx context.Context, query, userID string, limit int) ([]model.SearchResult, error) {
	if err := requireID("user_id", userID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query must not be empty", ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 10
	}

	var (
		wg          sync.WaitGroup
		workingHits []model.WorkingMemoryHit
		vectorHits  []model.SemanticHit
	)
	wg.Add(2)

	go func() {
		defer wg.Done()
		hits, err := o.readWorkingMemory(ctx, query, userID)
		if err != nil {
			log.Printf("memory: working memory search failed: %v", err)
			return
		}
		workingHits = hits
	}()

	go func() {
		defer wg.Done()
		hits, err := o.searchVectors(ctx, query, userID, o.opts.SearchLimit)
		if err != nil {
			log.Printf("memory: vector search failed: %v", err)
			return
		}
		vectorHits = hits
	}()

	wg.Wait()

	results := make([]model.SearchResult, 0, len(workingHits)+len(vectorHits))
	for _, hit := range workingHits {
		results = append(results, model.SearchResult{
			Source: model.SourceWorkingMemory,
			ID:     hit.ID,
			Text:   hit.Text,
			Score:  hit.Score,
		})
	}
	for _, hit := range vectorHits {
		results = append(results, model.SearchResult{
			Source:  model.SourceVectorIndex,
			ID:      hit.ID,
			Text:    hit.Content,
			Score:   hit.Score,
			Payload: hit.Payload,
		})
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// CacheUserContext stores assembled profile data in the hot cache.
func (o *Orchestrator) CacheUserContext(ctx context.Context, userID string, data map[string]any) error {
	if err := requireID("user_id", userID); err != nil {
		return err
	}
	tctx, cancel := o.tierContext(ctx)
	defer cancel()
	err := o.hot.CacheUserContext(tctx, userID, data)
	o.metrics.ObserveTier("hot_cache", "cache_user", err)
	return err
}

// CachedUserContext returns the cached profile data, falling back to the
// structured store on a miss. A miss with an unavailable structured store
// yields an empty map.
func (o *Orchestrator) CachedUserContext(ctx context.Context, userID string) (map[string]any, error) {
	if err := requireID("user_id", userID); err != nil {
		return nil, err
	}
	tctx, cancel := o.tierContext(ctx)
	data, err := o.hot.CachedUserContext(tctx, userID)
	cancel()
	o.metrics.ObserveTier("hot_cache", "cached_user", err)
	if err != nil {
		log.Printf("memory: user context cache read failed: %v", err)
	}
	if data != nil {
		return data, nil
	}
	profile, _ := o.readStructured(ctx, userID)
	if profile == nil {
		return map[string]any{}, nil
	}
	return profile, nil
}

// Bootstrap prepares the structured schema and the vector collection.
// Idempotent; meant to run once at process start.
func (o *Orchestrator) Bootstrap(ctx context.Context) error {
	if init, ok := o.structured.(tier.SchemaInitializer); ok {
		if err := init.CreateSchema(ctx); err != nil {
			return fmt.Errorf("structured schema: %w", err)
		}
	}
	if ensurer, ok := o.vectors.(interface {
		EnsureCollection(ctx context.Context, dim int) error
	}); ok {
		if err := ensurer.EnsureCollection(ctx, o.opts.EmbedDim); err != nil {
			return fmt.Errorf("vector collection: %w", err)
		}
	}
	return nil
}

// Close releases all tier clients.
func (o *Orchestrator) Close() error {
	var errs []error
	for _, closer := range []interface{ Close() error }{o.hot, o.working, o.structured, o.vectors} {
		if closer == nil {
			continue
		}
		if err := closer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (o *Orchestrator) readHotCache(ctx context.Context, conversationID string) ([]model.Turn, error) {
	tctx, cancel := o.tierContext(ctx)
	defer cancel()
	turns, err := o.hot.RecentTurns(tctx, conversationID, o.opts.ContextTurns)
	o.metrics.ObserveTier("hot_cache", "recent", err)
	if err != nil {
		return nil, err
	}
	if turns == nil {
		turns = []model.Turn{}
	}
	return turns, nil
}

func (o *Orchestrator) readWorkingMemory(ctx context.Context, query, userID string) ([]model.WorkingMemoryHit, error) {
	tctx, cancel := o.tierContext(ctx)
	defer cancel()
	var (
		hits []model.WorkingMemoryHit
		err  error
		op   = "all"
	)
	if query != "" {
		op = "search"
		hits, err = o.working.Search(tctx, query, userID, o.opts.SearchLimit)
	} else {
		hits, err = o.working.All(tctx, userID)
	}
	o.metrics.ObserveTier("working_memory", op, err)
	if err != nil {
		return nil, err
	}
	if hits == nil {
		hits = []model.WorkingMemoryHit{}
	}
	return hits, nil
}

// readStructured performs the two single-row lookups. Each degrades
// independently: a failed profile read does not discard preferences.
func (o *Orchestrator) readStructured(ctx context.Context, userID string) (profile, prefs map[string]any) {
	tctx, cancel := o.tierContext(ctx)
	defer cancel()

	var err error
	profile, err = o.structured.Profile(tctx, userID)
	o.metrics.ObserveTier("structured", "profile", err)
	if err != nil {
		log.Printf("memory: profile read failed, using empty profile: %v", err)
		profile = nil
	}

	prefs, err = o.structured.Preferences(tctx, userID)
	o.metrics.ObserveTier("structured", "preferences", err)
	if err != nil {
		log.Printf("memory: preferences read failed, using empty preferences: %v", err)
		prefs = nil
	}
	return profile, prefs
}

func (o *Orchestrator) searchVectors(ctx context.Context, query, userID string, limit int) ([]model.SemanticHit, error) {
	tctx, cancel := o.tierContext(ctx)
	defer cancel()
	embedding, _ := o.embedder.Embed(tctx, query)
	hits, err := o.vectors.Search(tctx, embedding, limit, map[string]any{"user_id": userID})
	o.metrics.ObserveTier("vector_index", "search", err)
	if err != nil {
		return nil, err
	}
	if hits == nil {
		hits = []model.SemanticHit{}
	}
	return hits, nil
}

func (o *Orchestrator) tierContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, o.opts.TierTimeout)
}

func requireID(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: %s must not be empty", ErrInvalidInput, field)
	}
	return nil
}
