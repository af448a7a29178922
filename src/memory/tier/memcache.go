package tier

import (
	"context"
	"sync"
	"time"

	"github.com/hearthside/memoryd/src/memory/model"
)

// MemoryHotCache is an in-process HotCache for development and tests. It
// mirrors the Redis tier's semantics: newest-first per-conversation lists
// capped at a fixed length, and conversation-level expiry refreshed on
// every append.
type MemoryHotCache struct {
	mu    sync.RWMutex
	ttl   time.Duration
	cap   int
	logs  map[string]*conversationLog
	users map[string]userContextEntry
	now   func() time.Time
}

type conversationLog struct {
	turns     []model.Turn // newest first
	expiresAt time.Time
}

type userContextEntry struct {
	data      map[string]any
	expiresAt time.Time
}

// NewMemoryHotCache creates an in-process HotCache with the same defaults
// as the Redis tier.
func NewMemoryHotCache(ttl time.Duration, cap int) *MemoryHotCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if cap <= 0 {
		cap = 100
	}
	return &MemoryHotCache{
		ttl:   ttl,
		cap:   cap,
		logs:  make(map[string]*conversationLog),
		users: make(map[string]userContextEntry),
		now:   time.Now,
	}
}

func (hc *MemoryHotCache) RecentTurns(_ context.Context, conversationID string, limit int) ([]model.Turn, error) {
	if limit <= 0 {
		return []model.Turn{}, nil
	}
	hc.mu.Lock()
	defer hc.mu.Unlock()

	cl, ok := hc.logs[conversationID]
	if !ok {
		return []model.Turn{}, nil
	}
	if hc.now().After(cl.expiresAt) {
		delete(hc.logs, conversationID)
		return []model.Turn{}, nil
	}
	turns := cl.turns
	if len(turns) > limit {
		turns = turns[:limit]
	}
	out := make([]model.Turn, len(turns))
	copy(out, turns)
	return out, nil
}

func (hc *MemoryHotCache) AppendTurn(_ context.Context, conversationID string, turn model.Turn) error {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	cl, ok := hc.logs[conversationID]
	if !ok || hc.now().After(cl.expiresAt) {
		cl = &conversationLog{}
		hc.logs[conversationID] = cl
	}
	cl.turns = append([]model.Turn{turn}, cl.turns...)
	if len(cl.turns) > hc.cap {
		cl.turns = cl.turns[:hc.cap]
	}
	cl.expiresAt = hc.now().Add(hc.ttl)
	return nil
}

func (hc *MemoryHotCache) CacheUserContext(_ context.Context, userID string, data map[string]any) error {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.users[userID] = userContextEntry{
		data:      model.CloneMetadata(data),
		expiresAt: hc.now().Add(hc.ttl),
	}
	return nil
}

func (hc *MemoryHotCache) CachedUserContext(_ context.Context, userID string) (map[string]any, error) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	ent, ok := hc.users[userID]
	if !ok {
		return nil, nil
	}
	if hc.now().After(ent.expiresAt) {
		delete(hc.users, userID)
		return nil, nil
	}
	return model.CloneMetadata(ent.data), nil
}

func (hc *MemoryHotCache) Close() error {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.logs = make(map[string]*conversationLog)
	hc.users = make(map[string]userContextEntry)
	return nil
}
