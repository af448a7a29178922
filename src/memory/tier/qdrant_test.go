package tier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newQdrantTest(t *testing.T, handler http.HandlerFunc) *QdrantIndex {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewQdrantIndex(QdrantOptions{BaseURL: srv.URL, Collection: "family_memories"})
}

func TestQdrantSearchBuildsFilterAndDecodesHits(t *testing.T) {
	var gotBody map[string]any
	qi := newQdrantTest(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/collections/family_memories/points/search" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"status": "ok",
			"result": [
				{"id": "pt-1", "score": 0.93, "payload": {"content": "likes pasta", "user_id": "u1"}},
				{"id": 42, "score": 0.81, "payload": null}
			]
		}`))
	})

	hits, err := qi.Search(context.Background(), []float32{0.1, 0.2}, 5, map[string]any{"user_id": "u1"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].ID != "pt-1" || hits[0].Content != "likes pasta" || hits[0].Score != 0.93 {
		t.Fatalf("unexpected first hit: %+v", hits[0])
	}
	if hits[1].ID != "42" {
		t.Fatalf("expected integer point ID decoded to %q, got %q", "42", hits[1].ID)
	}
	if hits[1].Payload == nil {
		t.Fatalf("nil payload must decode to an empty map")
	}

	filter, ok := gotBody["filter"].(map[string]any)
	if !ok {
		t.Fatalf("expected a filter clause, got %#v", gotBody["filter"])
	}
	must, ok := filter["must"].([]any)
	if !ok || len(must) != 1 {
		t.Fatalf("expected one must clause, got %#v", filter["must"])
	}
	clause := must[0].(map[string]any)
	if clause["key"] != "user_id" {
		t.Fatalf("expected filter on user_id, got %#v", clause)
	}
	if gotBody["with_payload"] != true {
		t.Fatalf("expected with_payload true")
	}
}

func TestQdrantSearchZeroLimitShortCircuits(t *testing.T) {
	qi := newQdrantTest(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("no request expected for limit 0")
	})
	hits, err := qi.Search(context.Background(), []float32{0.1}, 0, nil)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("expected no hits, got %d", len(hits))
	}
}

func TestQdrantUpsertSendsPoint(t *testing.T) {
	var gotBody map[string]any
	qi := newQdrantTest(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/collections/family_memories/points" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		_, _ = w.Write([]byte(`{"status": "ok", "result": {"operation_id": 1}}`))
	})

	err := qi.Upsert(context.Background(), "id-1", []float32{1, 2, 3}, map[string]any{"content": "hi"})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	points := gotBody["points"].([]any)
	if len(points) != 1 {
		t.Fatalf("expected 1 point, got %d", len(points))
	}
	point := points[0].(map[string]any)
	if point["id"] != "id-1" {
		t.Fatalf("expected point id id-1, got %v", point["id"])
	}
}

func TestQdrantUpsertSurfacesErrorStatus(t *testing.T) {
	qi := newQdrantTest(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"status": {"error": "wrong vector size"}, "result": null}`))
	})
	err := qi.Upsert(context.Background(), "id-1", []float32{1}, nil)
	if err == nil {
		t.Fatalf("expected error from error status")
	}
}

func TestQdrantEnsureCollectionTreatsExistingAsSuccess(t *testing.T) {
	qi := newQdrantTest(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"status": {"error": "collection family_memories already exists"}}`))
	})
	if err := qi.EnsureCollection(context.Background(), 768); err != nil {
		t.Fatalf("existing collection must not be an error: %v", err)
	}
}

func TestQdrantStatusUnmarshalBothForms(t *testing.T) {
	var s qdrantStatus
	if err := json.Unmarshal([]byte(`"ok"`), &s); err != nil {
		t.Fatalf("string status: %v", err)
	}
	if s.State != "ok" {
		t.Fatalf("expected state ok, got %q", s.State)
	}
	s = qdrantStatus{}
	if err := json.Unmarshal([]byte(`{"error": "boom"}`), &s); err != nil {
		t.Fatalf("object status: %v", err)
	}
	if s.State != "error" || s.Error != "boom" {
		t.Fatalf("expected error status, got %+v", s)
	}
}
