package tier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hearthside/memoryd/src/memory/model"
)

// PostgresStore implements StructuredStore over Postgres + pgvector.
type PostgresStore struct {
	DB *pgxpool.Pool
}

// NewPostgresStore connects to Postgres and returns the structured tier.
func NewPostgresStore(ctx context.Context, connStr string) (*PostgresStore, error) {
	db, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}
	return &PostgresStore{DB: db}, nil
}

// Profile returns the family member's profile row, or nil when absent.
func (ps *PostgresStore) Profile(ctx context.Context, userID string) (map[string]any, error) {
	if ps == nil || ps.DB == nil {
		return nil, errors.New("nil postgres store")
	}
	var (
		id, firstName, role, ageGroup, language string
		activeSkills                            []string
		preferences                             []byte
	)
	err := ps.DB.QueryRow(ctx, `
        SELECT id, first_name, role, age_group, language_preference, active_skills, COALESCE(preferences, '{}'::jsonb)
        FROM family_members
        WHERE id = $1
        `, userID).Scan(&id, &firstName, &role, &ageGroup, &language, &activeSkills, &preferences)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	prefs := map[string]any{}
	_ = json.Unmarshal(preferences, &prefs)
	if activeSkills == nil {
		activeSkills = []string{}
	}
	return map[string]any{
		"id":                  id,
		"first_name":          firstName,
		"role":                role,
		"age_group":           ageGroup,
		"language_preference": language,
		"active_skills":       activeSkills,
		"preferences":         prefs,
	}, nil
}

// Preferences returns the user's preference row, or an empty map when absent.
func (ps *PostgresStore) Preferences(ctx context.Context, userID string) (map[string]any, error) {
	if ps == nil || ps.DB == nil {
		return nil, errors.New("nil postgres store")
	}
	var (
		preferences                           []byte
		promptStyle, responseLen, safetyLevel string
	)
	err := ps.DB.QueryRow(ctx, `
        SELECT COALESCE(preferences, '{}'::jsonb), prompt_style, response_length, safety_level
        FROM user_preferences
        WHERE user_id = $1
        `, userID).Scan(&preferences, &promptStyle, &responseLen, &safetyLevel)
	if errors.Is(err, pgx.ErrNoRows) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read preferences: %w", err)
	}
	prefs := map[string]any{}
	_ = json.Unmarshal(preferences, &prefs)
	prefs["prompt_style"] = promptStyle
	prefs["response_length"] = responseLen
	prefs["safety_level"] = safetyLevel
	return prefs, nil
}

// AppendTurn inserts a durable conversation row. The embedding is supplied
// by the caller, never computed here.
func (ps *PostgresStore) AppendTurn(ctx context.Context, userID, conversationID string, turn model.Turn, embedding []float32) error {
	if ps == nil || ps.DB == nil {
		return errors.New("nil postgres store")
	}
	metadataJSON, err := json.Marshal(turn.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	_, err = ps.DB.Exec(ctx, `
        INSERT INTO conversation_memory (user_id, conversation_id, message_type, content, embedding, metadata, created_at)
        VALUES ($1, $2, $3, $4, $5::vector, $6::jsonb, $7)
        `, userID, conversationID, string(turn.Role), turn.Content, vectorLiteral(embedding), metadataJSON, turn.Timestamp)
	if err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}

// CreateSchema ensures the pgvector extension and tables exist. Idempotent.
func (ps *PostgresStore) CreateSchema(ctx context.Context) error {
	if ps == nil || ps.DB == nil {
		return errors.New("nil postgres store")
	}
	if _, err := ps.DB.Exec(ctx, defaultPostgresSchema); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

// Ping verifies connectivity; used by readiness checks.
func (ps *PostgresStore) Ping(ctx context.Context) error {
	if ps == nil || ps.DB == nil {
		return errors.New("nil postgres store")
	}
	return ps.DB.Ping(ctx)
}

// Close releases the underlying connection pool.
func (ps *PostgresStore) Close() error {
	if ps == nil || ps.DB == nil {
		return nil
	}
	ps.DB.Close()
	return nil
}

const defaultPostgresSchema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS family_members (
    id TEXT PRIMARY KEY,
    first_name TEXT NOT NULL DEFAULT '',
    role TEXT NOT NULL DEFAULT 'parent',
    age_group TEXT NOT NULL DEFAULT '',
    language_preference TEXT NOT NULL DEFAULT 'en',
    active_skills TEXT[] NOT NULL DEFAULT '{}',
    preferences JSONB,
    created_at TIMESTAMPTZ DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS user_preferences (
    user_id TEXT PRIMARY KEY REFERENCES family_members(id) ON DELETE CASCADE,
    preferences JSONB,
    prompt_style TEXT NOT NULL DEFAULT '',
    response_length TEXT NOT NULL DEFAULT '',
    safety_level TEXT NOT NULL DEFAULT 'family',
    updated_at TIMESTAMPTZ DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS conversation_memory (
    id BIGSERIAL PRIMARY KEY,
    user_id TEXT NOT NULL,
    conversation_id TEXT NOT NULL,
    message_type TEXT NOT NULL,
    content TEXT NOT NULL,
    embedding vector(768),
    metadata JSONB,
    created_at TIMESTAMPTZ DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS conversation_memory_user_idx ON conversation_memory (user_id, conversation_id);
CREATE INDEX IF NOT EXISTS conversation_memory_embedding_idx ON conversation_memory USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100);
`

func vectorLiteral(embedding []float32) string {
	parts := make([]string, 0, len(embedding))
	for _, v := range embedding {
		parts = append(parts, fmt.Sprintf("%g", v))
	}
	return "[" + strings.Join(parts, ",") + "]"
}
