package clockpro

import "testing"

func TestPutGetRoundTrip(t *testing.T) {
	c := NewClock[string, int](10, nil, nil)
	c.Put("a", 1)
	v, ok := c.Get("a")
	if !ok || v != 1 {
		t.Fatalf("Get(a) = %v, %v; want 1, true", v, ok)
	}
	if _, ok := c.Get("missing"); ok {
		t.Fatalf("Get(missing) ok = true, want false")
	}
}

func TestEvictsUnderCapacity(t *testing.T) {
	var evicted []string
	c := NewClock[string, int](3, func(int) int { return 1 }, func(k string, _ int, _ EvictionReason) {
		evicted = append(evicted, k)
	})
	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("c", 3)
	c.Put("d", 4)

	if c.Len() > 4 {
		t.Fatalf("Len() = %d, want <= 4 (eviction is lazy over weight, not slot count)", c.Len())
	}
	if len(evicted) == 0 {
		t.Fatalf("expected at least one eviction once capacity was exceeded")
	}
}

func TestRemove(t *testing.T) {
	c := NewClock[string, int](10, nil, nil)
	c.Put("a", 1)
	c.Remove("a")
	if _, ok := c.Get("a"); ok {
		t.Fatalf("Get(a) after Remove ok = true, want false")
	}
}

func TestReset(t *testing.T) {
	c := NewClock[string, int](10, nil, nil)
	c.Put("a", 1)
	c.Put("b", 2)
	c.Reset()
	if c.Len() != 0 {
		t.Fatalf("Len() after Reset = %d, want 0", c.Len())
	}
}

func TestPutUpdatesExistingKey(t *testing.T) {
	c := NewClock[string, int](10, nil, nil)
	c.Put("a", 1)
	c.Put("a", 2)
	if c.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 (update in place)", c.Len())
	}
	v, _ := c.Get("a")
	if v != 2 {
		t.Fatalf("Get(a) = %d, want 2", v)
	}
}
