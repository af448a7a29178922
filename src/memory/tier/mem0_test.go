package tier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hearthside/memoryd/src/memory/model"
)

func newMem0Test(t *testing.T, handler http.HandlerFunc) *Mem0Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewMem0Client(Mem0Options{BaseURL: srv.URL})
}

func TestMem0AddReturnsOpaqueID(t *testing.T) {
	var gotBody map[string]any
	mc := newMem0Test(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/memories/" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		_, _ = w.Write([]byte(`{"results": [{"id": "mem-abc", "event": "ADD"}]}`))
	})

	turns := []model.Turn{{Role: model.RoleUser, Content: "we moved house"}}
	id, err := mc.Add(context.Background(), "u1", turns, map[string]any{"origin": "chat"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if id != "mem-abc" {
		t.Fatalf("expected mem-abc, got %q", id)
	}
	if gotBody["user_id"] != "u1" {
		t.Fatalf("expected user_id u1, got %v", gotBody["user_id"])
	}
	messages := gotBody["messages"].([]any)
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	msg := messages[0].(map[string]any)
	if msg["role"] != "user" || msg["content"] != "we moved house" {
		t.Fatalf("unexpected message %#v", msg)
	}
}

func TestMem0SearchDecodesBothResponseShapes(t *testing.T) {
	for name, payload := range map[string]string{
		"memories": `{"memories": [{"id": "a", "memory": "likes tea", "score": 0.7}]}`,
		"results":  `{"results": [{"id": "a", "text": "likes tea", "score": 0.7}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			mc := newMem0Test(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/v1/memories/search/" {
					t.Fatalf("unexpected path %s", r.URL.Path)
				}
				_, _ = w.Write([]byte(payload))
			})
			hits, err := mc.Search(context.Background(), "tea", "u1", 5)
			if err != nil {
				t.Fatalf("search: %v", err)
			}
			if len(hits) != 1 {
				t.Fatalf("expected 1 hit, got %d", len(hits))
			}
			if hits[0].ID != "a" || hits[0].Text != "likes tea" || hits[0].Score != 0.7 {
				t.Fatalf("unexpected hit %+v", hits[0])
			}
		})
	}
}

func TestMem0AllScopesByUser(t *testing.T) {
	mc := newMem0Test(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/v1/memories/" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.URL.Query().Get("user_id"); got != "u 1" {
			t.Fatalf("expected user_id query %q, got %q", "u 1", got)
		}
		_, _ = w.Write([]byte(`{"memories": []}`))
	})
	hits, err := mc.All(context.Background(), "u 1")
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("expected no hits, got %d", len(hits))
	}
}

func TestMem0ErrorStatusIncludesBody(t *testing.T) {
	mc := newMem0Test(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"detail": "upstream unavailable"}`))
	})
	if _, err := mc.Search(context.Background(), "q", "u1", 5); err == nil {
		t.Fatalf("expected error on http 502")
	}
}

func TestMem0SearchZeroLimitShortCircuits(t *testing.T) {
	mc := newMem0Test(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("no request expected for limit 0")
	})
	hits, err := mc.Search(context.Background(), "q", "u1", 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("expected no hits, got %d", len(hits))
	}
}
