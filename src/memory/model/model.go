package model

import (
	"fmt"
	"strings"
	"time"
)

// Role identifies who produced a conversational turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ParseRole validates a caller-supplied message type.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleUser:
		return RoleUser, nil
	case RoleAssistant:
		return RoleAssistant, nil
	case RoleSystem:
		return RoleSystem, nil
	}
	return "", fmt.Errorf("invalid message type %q", s)
}

// Turn is a single message in a conversation. Turns are immutable once
// written; corrections are made by appending a new turn.
type Turn struct {
	Role      Role           `json:"role"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata"`
}

// WorkingMemoryHit is one semantic memory returned by the working-memory tier.
type WorkingMemoryHit struct {
	ID    string  `json:"id"`
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// SemanticHit is one similarity-search result from the vector index.
type SemanticHit struct {
	ID      string         `json:"id"`
	Score   float64        `json:"score"`
	Content string         `json:"content"`
	Payload map[string]any `json:"payload"`
}

// Source tags applied by the combined search.
const (
	SourceWorkingMemory = "mem0"
	SourceVectorIndex   = "qdrant"
)

// SearchResult is a tier-tagged hit from the combined search.
type SearchResult struct {
	Source  string         `json:"source"`
	ID      string         `json:"id"`
	Text    string         `json:"text"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload,omitempty"`
}

// MemoryContext is the assembled read-path result. Every collection field is
// non-nil; a tier that fails contributes its empty default instead of a hole.
type MemoryContext struct {
	UserID           string             `json:"user_id"`
	ConversationID   string             `json:"conversation_id"`
	ImmediateContext []Turn             `json:"immediate_context"`
	WorkingMemory    []WorkingMemoryHit `json:"working_memory"`
	StructuredData   map[string]any     `json:"structured_data"`
	SemanticMemories []SemanticHit      `json:"semantic_memories"`
	UserPreferences  map[string]any     `json:"user_preferences"`
}

// NewMemoryContext returns a context with every field set to its empty value.
func NewMemoryContext(userID, conversationID string) *MemoryContext {
	return &MemoryContext{
		UserID:           userID,
		ConversationID:   conversationID,
		ImmediateContext: []Turn{},
		WorkingMemory:    []WorkingMemoryHit{},
		StructuredData:   map[string]any{},
		SemanticMemories: []SemanticHit{},
		UserPreferences:  map[string]any{},
	}
}

// CloneMetadata returns a non-nil shallow copy so tiers can annotate their
// own copy without aliasing the caller's map.
func CloneMetadata(metadata map[string]any) map[string]any {
	out := make(map[string]any, len(metadata))
	for k, v := range metadata {
		out[k] = v
	}
	return out
}
