package rigid3d

import "testing"

func TestHandlePoolAllocateBijective(t *testing.T) {
	p := NewHandlePool[location]()
	h1 := p.Allocate(location{set: 0, index: 0})
	h2 := p.Allocate(location{set: 0, index: 1})
	if h1 == h2 {
		t.Fatalf("distinct allocations returned the same handle %d", h1)
	}
	loc1, ok := p.Location(h1)
	if !ok || loc1.index != 0 {
		t.Errorf("Location(h1) = %+v, %v", loc1, ok)
	}
	loc2, ok := p.Location(h2)
	if !ok || loc2.index != 1 {
		t.Errorf("Location(h2) = %+v, %v", loc2, ok)
	}
}

func TestHandlePoolFreeThenReuseRewritesLocation(t *testing.T) {
	p := NewHandlePool[location]()
	h1 := p.Allocate(location{set: 0, index: 0})
	p.Free(h1)
	if p.IsAllocated(h1) {
		t.Error("freed handle still reports allocated")
	}
	h2 := p.Allocate(location{set: 3, index: 7})
	if h2 != h1 {
		t.Errorf("expected free-list reuse to hand back handle %d, got %d", h1, h2)
	}
	loc, ok := p.Location(h2)
	if !ok || loc.set != 3 || loc.index != 7 {
		t.Errorf("Location after reuse = %+v, %v, want {3 7} true", loc, ok)
	}
}

func TestHandlePoolLocationOfNeverAllocatedHandleFails(t *testing.T) {
	p := NewHandlePool[location]()
	if _, ok := p.Location(Handle(42)); ok {
		t.Error("expected Location of an out-of-range handle to fail")
	}
}

func TestHandlePoolSetLocationUpdatesInPlace(t *testing.T) {
	p := NewHandlePool[location]()
	h := p.Allocate(location{set: 0, index: 0})
	p.SetLocation(h, location{set: 1, index: 5})
	loc, ok := p.Location(h)
	if !ok || loc.set != 1 || loc.index != 5 {
		t.Errorf("Location after SetLocation = %+v, %v", loc, ok)
	}
}
