package memory

import (
	"context"
	"testing"
	"time"

	"github.com/tensorzero/tensorzero-sub023/cache"
	"github.com/tensorzero/tensorzero-sub023/providers"
)

func TestLRU_WriteThenLookupHit(t *testing.T) {
	l := New(2)
	entry := &cache.Entry{Response: &providers.Response{Model: "gpt-4o"}, WrittenAt: time.Now().UTC()}
	if err := l.Write(context.Background(), "k1", entry); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, hit, err := l.Lookup(context.Background(), "k1", time.Hour)
	if err != nil || !hit {
		t.Fatalf("expected a hit, got hit=%v err=%v", hit, err)
	}
	if got.Response.Model != "gpt-4o" {
		t.Fatalf("unexpected entry: %+v", got)
	}
}

func TestLRU_LookupMiss(t *testing.T) {
	l := New(2)
	_, hit, err := l.Lookup(context.Background(), "missing", time.Hour)
	if err != nil || hit {
		t.Fatalf("expected a miss, got hit=%v err=%v", hit, err)
	}
}

// TestLRU_StaleEntryIsAMiss covers the cache freshness testable property:
// an entry older than the caller's max age is treated as absent.
func TestLRU_StaleEntryIsAMiss(t *testing.T) {
	l := New(2)
	stale := &cache.Entry{Response: &providers.Response{}, WrittenAt: time.Now().Add(-time.Hour)}
	_ = l.Write(context.Background(), "k1", stale)
	_, hit, _ := l.Lookup(context.Background(), "k1", time.Minute)
	if hit {
		t.Fatal("expected a stale entry to miss under a shorter max age")
	}
	_, hit, _ = l.Lookup(context.Background(), "k1", 2*time.Hour)
	if !hit {
		t.Fatal("expected the same entry to hit under a longer max age")
	}
}

func TestLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	l := New(2)
	now := time.Now().UTC()
	_ = l.Write(context.Background(), "k1", &cache.Entry{Response: &providers.Response{}, WrittenAt: now})
	_ = l.Write(context.Background(), "k2", &cache.Entry{Response: &providers.Response{}, WrittenAt: now})
	// touch k1 so k2 becomes the least recently used
	_, _, _ = l.Lookup(context.Background(), "k1", time.Hour)
	_ = l.Write(context.Background(), "k3", &cache.Entry{Response: &providers.Response{}, WrittenAt: now})

	if _, hit, _ := l.Lookup(context.Background(), "k2", time.Hour); hit {
		t.Fatal("expected k2 to have been evicted as least recently used")
	}
	if _, hit, _ := l.Lookup(context.Background(), "k1", time.Hour); !hit {
		t.Fatal("expected k1 to still be present")
	}
	if _, hit, _ := l.Lookup(context.Background(), "k3", time.Hour); !hit {
		t.Fatal("expected k3 to be present")
	}
}
