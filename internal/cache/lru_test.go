package cache

import (
	"testing"
	"time"
)

func TestLRUCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRUCache[string](2, time.Minute)

	c.Set("a", "1")
	c.Set("b", "2")
	c.Get("a") // a is now most recent
	c.Set("c", "3")

	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	if v, ok := c.Get("a"); !ok || v != "1" {
		t.Errorf("a = (%q, %v), want (1, true)", v, ok)
	}
	if v, ok := c.Get("c"); !ok || v != "3" {
		t.Errorf("c = (%q, %v), want (3, true)", v, ok)
	}
}

func TestLRUCacheExpiry(t *testing.T) {
	c := NewLRUCache[int](10, 10*time.Millisecond)

	c.Set("k", 42)
	if v, ok := c.Get("k"); !ok || v != 42 {
		t.Fatalf("fresh entry = (%d, %v), want (42, true)", v, ok)
	}

	time.Sleep(20 * time.Millisecond)
	if _, ok := c.Get("k"); ok {
		t.Error("expired entry should be absent")
	}
	if got := c.Size(); got != 0 {
		t.Errorf("size = %d, want 0 after expired read", got)
	}
}

func TestLRUCacheCleanExpired(t *testing.T) {
	c := NewLRUCache[int](10, 10*time.Millisecond)
	c.Set("a", 1)
	c.Set("b", 2)

	time.Sleep(20 * time.Millisecond)
	c.Set("c", 3)

	if removed := c.CleanExpired(); removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}
	if got := c.Size(); got != 1 {
		t.Errorf("size = %d, want 1", got)
	}
}

func TestLRUCacheDeleteAndOverwrite(t *testing.T) {
	c := NewLRUCache[int](10, time.Minute)

	c.Set("k", 1)
	c.Set("k", 2)
	if v, _ := c.Get("k"); v != 2 {
		t.Errorf("overwritten value = %d, want 2", v)
	}
	if got := c.Size(); got != 1 {
		t.Errorf("size = %d, want 1", got)
	}

	c.Delete("k")
	if _, ok := c.Get("k"); ok {
		t.Error("deleted entry should be absent")
	}
}
