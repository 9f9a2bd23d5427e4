package profile

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestCache_HitAndExpiry(t *testing.T) {
	c := NewCache(time.Minute)
	base := time.Now()
	c.now = func() time.Time { return base }

	id := uuid.New()
	c.Put(id, &Profile{FirstName: "Maya"})

	if p, ok := c.Get(id); !ok || p.FirstName != "Maya" {
		t.Fatalf("expected cache hit, got %v %v", p, ok)
	}

	// Entries expire on read once the TTL passes.
	base = base.Add(2 * time.Minute)
	if _, ok := c.Get(id); ok {
		t.Error("expected expired entry to miss")
	}
	if _, ok := c.entries[id]; ok {
		t.Error("expected expired entry evicted")
	}
}

func TestCache_Invalidate(t *testing.T) {
	c := NewCache(time.Minute)
	id := uuid.New()
	c.Put(id, &Profile{FirstName: "Kai"})
	c.Invalidate(id)
	if _, ok := c.Get(id); ok {
		t.Error("expected invalidated entry to miss")
	}
}

func TestClient_UsesCache(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		json.NewEncoder(w).Encode(Profile{FirstName: "Maya", Language: "de"})
	}))
	defer server.Close()

	client := NewClient(server.URL, NewCache(time.Minute))
	client.SetTestTransport(server.URL)

	id := uuid.New()
	for range 3 {
		p, err := client.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p.FirstName != "Maya" || p.Language != "de" {
			t.Fatalf("unexpected profile: %+v", p)
		}
	}

	if hits.Load() != 1 {
		t.Errorf("expected 1 upstream hit, got %d", hits.Load())
	}
}

func TestClient_UpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, NewCache(time.Minute))
	if _, err := client.Get(context.Background(), uuid.New()); err == nil {
		t.Fatal("expected error for upstream 500")
	}
}
