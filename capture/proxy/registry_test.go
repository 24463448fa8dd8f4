package proxy

import "testing"

func TestRegistryGetOrCreateReusesPerKey(t *testing.T) {
	r := NewRegistry()
	calls := 0
	newFn := func() *Virtualizer {
		calls++
		return New(&fakeExporter{}, 0)
	}

	a := r.GetOrCreate("instance-a", newFn)
	b := r.GetOrCreate("instance-a", newFn)
	if a != b {
		t.Error("GetOrCreate() with the same key returned different Virtualizers")
	}
	if calls != 1 {
		t.Errorf("newFn call count\nhave %d\nwant 1", calls)
	}

	c := r.GetOrCreate("instance-b", newFn)
	if c == a {
		t.Error("GetOrCreate() with a different key returned the same Virtualizer")
	}
	if calls != 2 {
		t.Errorf("newFn call count after second key\nhave %d\nwant 2", calls)
	}
}

func TestRegistryGetAndRemove(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.Get("missing"); ok {
		t.Error("Get() ok=true for unregistered key")
	}

	v := r.GetOrCreate("k", func() *Virtualizer { return New(&fakeExporter{}, 0) })
	got, ok := r.Get("k")
	if !ok || got != v {
		t.Errorf("Get()\nhave %v, ok=%v\nwant %v, ok=true", got, ok, v)
	}

	r.Remove("k")
	if _, ok := r.Get("k"); ok {
		t.Error("Get() ok=true after Remove")
	}
}
