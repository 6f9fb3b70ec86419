package audiofocus

import (
	"testing"

	"playback-bridge/internal/bridge"
)

func TestManager_Acquire_is_exclusive(t *testing.T) {
	m := New(nil)
	m.Acquire(bridge.Handle(1))
	m.Acquire(bridge.Handle(2))

	h, ok := m.Holder()
	if !ok || h != 2 {
		t.Fatalf("expected handle 2 to hold focus, got %d held=%v", h, ok)
	}
}

func TestManager_Release_only_by_holder(t *testing.T) {
	m := New(nil)
	m.Acquire(bridge.Handle(1))

	m.Release(bridge.Handle(2))
	if _, ok := m.Holder(); !ok {
		t.Fatal("release by non-holder should keep focus")
	}

	m.Release(bridge.Handle(1))
	if _, ok := m.Holder(); ok {
		t.Error("release by holder should abandon focus")
	}
}
