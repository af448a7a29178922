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

// qdrantStatus supports both `status: "ok"` and `status: {"error":"..."}`.
type qdrantStatus struct {
	State string // "ok" or "error"
	Error string // non-empty if error
}

func (s *qdrantStatus) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		s.State = strings.ToLower(v)
		return nil
	}
	var obj struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	if obj.Error != "" {
		s.State = "error"
		s.Error = obj.Error
	}
	return nil
}

type qdrantEnvelope[T any] struct {
	Status qdrantStatus `json:"status"`
	Time   float64      `json:"time"`
	Result T            `json:"result"`
}

type qdrantPointResult struct {
	ID      json.RawMessage `json:"id"`
	Score   float64         `json:"score"`
	Payload map[string]any  `json:"payload"`
}

// QdrantIndex implements VectorIndex against Qdrant's REST API. The
// collection acts as the namespace and is fixed at construction.
type QdrantIndex struct {
	baseURL    string
	apiKey     string
	collection string
	client     *http.Client
}

// QdrantOptions configures the vector-index tier.
type QdrantOptions struct {
	BaseURL    string
	APIKey     string
	Collection string
	Timeout    time.Duration // default 15s
}

// NewQdrantIndex creates a Qdrant-backed VectorIndex.
func NewQdrantIndex(opts QdrantOptions) *QdrantIndex {
	if opts.BaseURL == "" {
		opts.BaseURL = "http://localhost:6333"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	return &QdrantIndex{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		apiKey:     opts.APIKey,
		collection: opts.Collection,
		client:     &http.Client{Timeout: opts.Timeout},
	}
}

// EnsureCollection creates the collection with a cosine-distance vector of
// the given dimension. Creating an existing collection is not an error.
func (qi *QdrantIndex) EnsureCollection(ctx context.Context, dim int) error {
	if qi == nil {
		return errors.New("nil qdrant index")
	}
	if qi.collection == "" {
		return errors.New("qdrant collection is empty")
	}
	if dim <= 0 {
		return fmt.Errorf("invalid vector dimension %d", dim)
	}
	req := map[string]any{
		"vectors": map[string]any{"size": dim, "distance": "Cosine"},
	}
	var resp qdrantEnvelope[json.RawMessage]
	err := qi.do(ctx, http.MethodPut, fmt.Sprintf("/collections/%s", url.PathEscape(qi.collection)), req, &resp)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "already exists") {
			return nil
		}
		return err
	}
	if !strings.EqualFold(resp.Status.State, "ok") && resp.Status.Error != "" {
		if strings.Contains(strings.ToLower(resp.Status.Error), "already exists") {
			return nil
		}
		return errors.New(resp.Status.Error)
	}
	return nil
}

// Upsert writes one point. The payload becomes the hit payload on search.
func (qi *QdrantIndex) Upsert(ctx context.Context, id string, embedding []float32, payload map[string]any) error {
	if qi == nil {
		return errors.New("nil qdrant index")
	}
	if qi.collection == "" {
		return errors.New("qdrant collection is empty")
	}
	if payload == nil {
		payload = map[string]any{}
	}
	req := map[string]any{
		"points": []map[string]any{{
			"id":      id,
			"vector":  embedding,
			"payload": payload,
		}},
	}
	var resp qdrantEnvelope[json.RawMessage]
	if err := qi.do(ctx, http.MethodPut, fmt.Sprintf("/collections/%s/points", url.PathEscape(qi.collection)), req, &resp); err != nil {
		return err
	}
	if !strings.EqualFold(resp.Status.State, "ok") && resp.Status.Error != "" {
		return errors.New(resp.Status.Error)
	}
	return nil
}

// Search performs a similarity search restricted by exact-match payload
// filters, best-score-first.
func (qi *QdrantIndex) Search(ctx context.Context, embedding []float32, limit int, filter map[string]any) ([]model.SemanticHit, error) {
	if qi == nil {
		return nil, errors.New("nil qdrant index")
	}
	if limit <= 0 {
		return []model.SemanticHit{}, nil
	}
	req := map[string]any{
		"vector":       embedding,
		"limit":        limit,
		"with_payload": true,
	}
	if len(filter) > 0 {
		must := make([]map[string]any, 0, len(filter))
		for key, value := range filter {
			must = append(must, map[string]any{
				"key":   key,
				"match": map[string]any{"value": value},
			})
		}
		req["filter"] = map[string]any{"must": must}
	}
	var resp qdrantEnvelope[[]qdrantPointResult]
	if err := qi.do(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/search", url.PathEscape(qi.collection)), req, &resp); err != nil {
		return nil, err
	}
	hits := make([]model.SemanticHit, 0, len(resp.Result))
	for _, point := range resp.Result {
		payload := point.Payload
		if payload == nil {
			payload = map[string]any{}
		}
		content, _ := payload["content"].(string)
		hits = append(hits, model.SemanticHit{
			ID:      decodePointID(point.ID),
			Score:   point.Score,
			Content: content,
			Payload: payload,
		})
	}
	return hits, nil
}

// Close is a no-op; the HTTP client holds no persistent resources.
func (qi *QdrantIndex) Close() error { return nil }

func (qi *QdrantIndex) do(ctx context.Context, method, path string, body, out any) error {
	u := qi.baseURL + path

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
	if qi.apiKey != "" {
		req.Header.Set("api-key", qi.apiKey)
	}
	resp, err := qi.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= 400 {
		var env qdrantEnvelope[json.RawMessage]
		if json.Unmarshal(payload, &env) == nil && env.Status.Error != "" {
			return fmt.Errorf("qdrant %s %s: %s", method, u, env.Status.Error)
		}
		return fmt.Errorf("qdrant %s %s -> http %d: %s",
			method, u, resp.StatusCode, strings.TrimSpace(string(payload)))
	}
	if out != nil && len(payload) > 0 {
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("qdrant response: %w", err)
		}
	}
	return nil
}

// decodePointID accepts the UUID strings we write and the integer IDs older
// collections may contain.
func decodePointID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return fmt.Sprintf("%d", n)
	}
	return strings.Trim(string(raw), `"`)
}
