package tier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hearthside/memoryd/src/memory/model"
)

// Mem0Client talks to a Mem0 server over its REST API. There is no official
// Go SDK, so this is a thin JSON client.
type Mem0Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// Mem0Options configures the working-memory tier.
type Mem0Options struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration // default 30s, matching the reference deployment
}

// NewMem0Client creates a Mem0-backed WorkingMemory.
func NewMem0Client(opts Mem0Options) *Mem0Client {
	if opts.BaseURL == "" {
		opts.BaseURL = "http://localhost:8888"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Mem0Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		apiKey:  opts.APIKey,
		client:  &http.Client{Timeout: opts.Timeout},
	}
}

type mem0Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type mem0Hit struct {
	ID     string  `json:"id"`
	Memory string  `json:"memory"`
	Text   string  `json:"text"`
	Score  float64 `json:"score"`
}

func (h mem0Hit) toHit() model.WorkingMemoryHit {
	text := h.Memory
	if text == "" {
		text = h.Text
	}
	return model.WorkingMemoryHit{ID: h.ID, Text: text, Score: h.Score}
}

type mem0Memories struct {
	Memories []mem0Hit `json:"memories"`
	Results  []mem0Hit `json:"results"`
}

func (m mem0Memories) hits() []model.WorkingMemoryHit {
	raw := m.Memories
	if len(raw) == 0 {
		raw = m.Results
	}
	hits := make([]model.WorkingMemoryHit, 0, len(raw))
	for _, h := range raw {
		hits = append(hits, h.toHit())
	}
	return hits
}

// Add submits a batch of turns for memory extraction. The orchestrator sends
// one turn per call so extraction sees a single exchange at a time.
func (mc *Mem0Client) Add(ctx context.Context, userID string, turns []model.Turn, metadata map[string]any) (string, error) {
	if mc == nil {
		return "", errors.New("nil mem0 client")
	}
	messages := make([]mem0Message, 0, len(turns))
	for _, turn := range turns {
		messages = append(messages, mem0Message{Role: string(turn.Role), Content: turn.Content})
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	req := map[string]any{
		"user_id":  userID,
		"messages": messages,
		"metadata": metadata,
	}
	var resp struct {
		ID      string `json:"id"`
		Results []struct {
			ID string `json:"id"`
		} `json:"results"`
	}
	if err := mc.do(ctx, http.MethodPost, "/v1/memories/", req, &resp); err != nil {
		return "", err
	}
	if resp.ID != "" {
		return resp.ID, nil
	}
	if len(resp.Results) > 0 {
		return resp.Results[0].ID, nil
	}
	return "", nil
}

// Search runs a semantic search scoped to the user.
func (mc *Mem0Client) Search(ctx context.Context, query, userID string, limit int) ([]model.WorkingMemoryHit, error) {
	if mc == nil {
		return nil, errors.New("nil mem0 client")
	}
	if limit <= 0 {
		return []model.WorkingMemoryHit{}, nil
	}
	req := map[string]any{
		"query":   query,
		"user_id": userID,
		"limit":   limit,
	}
	var resp mem0Memories
	if err := mc.do(ctx, http.MethodPost, "/v1/memories/search/", req, &resp); err != nil {
		return nil, err
	}
	return resp.hits(), nil
}

// All returns the user's full memory set.
func (mc *Mem0Client) All(ctx context.Context, userID string) ([]model.WorkingMemoryHit, error) {
	if mc == nil {
		return nil, errors.New("nil mem0 client")
	}
	path := "/v1/memories/?user_id=" + url.QueryEscape(userID)
	var resp mem0Memories
	if err := mc.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.hits(), nil
}

// Close is a no-op; the HTTP client holds no persistent resources.
func (mc *Mem0Client) Close() error { return nil }

func (mc *Mem0Client) do(ctx context.Context, method, path string, body, out any) error {
	u := mc.baseURL + path

	var buf io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		buf = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if mc.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+mc.apiKey)
	}
	resp, err := mc.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= 400 {
		return fmt.Errorf("mem0 %s %s -> http %d: %s",
			method, u, resp.StatusCode, strings.TrimSpace(string(payload)))
	}
	if out != nil && len(payload) > 0 {
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("mem0 response: %w", err)
		}
	}
	return nil
}
