package compositor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeBackend struct {
	mu          sync.Mutex
	activations []uint32
	renders     []uint32
	dispatches  []InputEvent
	resizes     []ResizeRequest
	renderFail  bool
}

func (b *fakeBackend) Activate(entry SurfaceEntry) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.activations = append(b.activations, entry.ID)
	return nil
}

func (b *fakeBackend) Render(entry SurfaceEntry, overrideChildren []SurfaceEntry) (PresentedFrame, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.renderFail {
		return PresentedFrame{}, errors.New("render failed")
	}
	b.renders = append(b.renders, entry.ID)
	return PresentedFrame{Width: 1920, Height: 1080}, nil
}

func (b *fakeBackend) Resize(entry SurfaceEntry, req ResizeRequest) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resizes = append(b.resizes, req)
	return nil
}

func (b *fakeBackend) Dispatch(entry SurfaceEntry, event InputEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dispatches = append(b.dispatches, event)
	return nil
}

func TestCreateSurfaceAutoFocusesFirst(t *testing.T) {
	backend := &fakeBackend{}
	c := New(backend, 8)
	id := c.CreateSurface(SurfaceNative, "app", "App", false)
	c.tick()

	if c.focused != id {
		t.Errorf("focused after first CreateSurface\nhave %d\nwant %d", c.focused, id)
	}
	if len(backend.activations) != 1 || backend.activations[0] != id {
		t.Errorf("backend.activations\nhave %v\nwant [%d]", backend.activations, id)
	}
}

func TestCreateSurfaceOverrideRedirectDoesNotAutoFocus(t *testing.T) {
	backend := &fakeBackend{}
	c := New(backend, 8)
	c.CreateSurface(SurfaceNative, "popup", "Popup", true)
	c.tick()
	if c.focused != noFocusTarget {
		t.Errorf("focused after override-redirect CreateSurface\nhave %d\nwant %d", c.focused, noFocusTarget)
	}
}

func TestDestroySurfaceFallsBackToLegacyPreferred(t *testing.T) {
	backend := &fakeBackend{}
	c := New(backend, 8)
	native := c.CreateSurface(SurfaceNative, "a", "A", false)
	c.tick()
	legacy := c.CreateSurface(SurfaceLegacy, "b", "B", false)
	c.tick()

	if c.focused != native {
		t.Fatalf("focused before destroy\nhave %d\nwant %d", c.focused, native)
	}

	c.DestroySurface(native)
	c.tick()
	if c.focused != legacy {
		t.Errorf("focused after destroying the active surface\nhave %d\nwant %d", c.focused, legacy)
	}
}

func TestInputDispatchedToFocusedSurfaceOnly(t *testing.T) {
	backend := &fakeBackend{}
	c := New(backend, 8)
	a := c.CreateSurface(SurfaceNative, "a", "A", false)
	c.tick()
	_ = c.CreateSurface(SurfaceNative, "b", "B", false)

	c.PushInput(InputEvent{Type: EventKey, Code: 30, Pressed: true})
	c.tick()

	if len(backend.dispatches) != 1 {
		t.Fatalf("dispatches\nhave %d\nwant 1", len(backend.dispatches))
	}
	c.focusMu.Lock()
	focused := c.focused
	c.focusMu.Unlock()
	if focused != a {
		t.Errorf("focused surface receiving dispatch\nhave %d\nwant %d", focused, a)
	}
}

func TestLegacySurfaceReactivatesBeforeEveryDispatch(t *testing.T) {
	backend := &fakeBackend{}
	c := New(backend, 8)
	c.CreateSurface(SurfaceLegacy, "x11app", "X11App", false)
	c.tick() // consumes the auto-focus activation

	backend.mu.Lock()
	backend.activations = nil
	backend.mu.Unlock()

	c.PushInput(InputEvent{Type: EventKey, Code: 1, Pressed: true})
	c.PushInput(InputEvent{Type: EventKey, Code: 1, Pressed: false})
	c.tick()

	backend.mu.Lock()
	defer backend.mu.Unlock()
	if len(backend.activations) != 2 {
		t.Errorf("re-activations for legacy surface\nhave %d\nwant 2 (one per dispatched event)", len(backend.activations))
	}
}

func TestNativeSurfaceDoesNotReactivatePerEvent(t *testing.T) {
	backend := &fakeBackend{}
	c := New(backend, 8)
	c.CreateSurface(SurfaceNative, "app", "App", false)
	c.tick()

	backend.mu.Lock()
	backend.activations = nil
	backend.mu.Unlock()

	c.PushInput(InputEvent{Type: EventKey, Code: 1, Pressed: true})
	c.PushInput(InputEvent{Type: EventKey, Code: 1, Pressed: false})
	c.tick()

	backend.mu.Lock()
	defer backend.mu.Unlock()
	if len(backend.activations) != 0 {
		t.Errorf("re-activations for native surface\nhave %d\nwant 0", len(backend.activations))
	}
}

func TestFocusResizeProcessedBeforeInput(t *testing.T) {
	backend := &fakeBackend{}
	c := New(backend, 8)
	a := c.CreateSurface(SurfaceNative, "a", "A", false)
	c.tick()
	b := c.CreateSurface(SurfaceNative, "b", "B", false)

	// Request focus change to b and enqueue input in the same tick;
	// per §5's ordering rule the focus change must land before the
	// input queue is drained, so the event reaches b, not a.
	c.RequestFocus(b)
	c.PushInput(InputEvent{Type: EventKey, Code: 5, Pressed: true})
	c.tick()

	c.focusMu.Lock()
	focused := c.focused
	c.focusMu.Unlock()
	if focused != b {
		t.Fatalf("focused after ordered tick\nhave %d\nwant %d", focused, b)
	}
	_ = a
}

func TestPointerConstraintLockedExposedAtomically(t *testing.T) {
	backend := &fakeBackend{}
	c := New(backend, 8)
	c.CreateSurface(SurfaceNative, "a", "A", false)
	c.tick()

	if c.IsPointerLocked() {
		t.Error("IsPointerLocked() before any constraint\nhave true\nwant false")
	}
	c.ActivateConstraint(ConstraintLocked)
	if !c.IsPointerLocked() {
		t.Error("IsPointerLocked() after ActivateConstraint(locked)\nhave false\nwant true")
	}
	c.DeactivateConstraint()
	if c.IsPointerLocked() {
		t.Error("IsPointerLocked() after DeactivateConstraint\nhave true\nwant false")
	}
}

func TestPresentPublishesIncreasingFrameNumbers(t *testing.T) {
	backend := &fakeBackend{}
	c := New(backend, 8)
	c.CreateSurface(SurfaceNative, "a", "A", false)
	c.tick()

	if err := c.Present(); err != nil {
		t.Fatalf("Present() error: %v", err)
	}
	if err := c.Present(); err != nil {
		t.Fatalf("Present() error: %v", err)
	}

	frame, ok := c.LatestFrame(0)
	if !ok || frame.FrameNumber != 2 {
		t.Errorf("LatestFrame(0)\nhave %+v, ok=%v\nwant FrameNumber=2, true", frame, ok)
	}
	if _, ok := c.LatestFrame(2); ok {
		t.Error("LatestFrame(2) after two presents\nhave ok=true\nwant false (not newer)")
	}
}

func TestPresentPropagatesRenderFailure(t *testing.T) {
	backend := &fakeBackend{renderFail: true}
	c := New(backend, 8)
	c.CreateSurface(SurfaceNative, "a", "A", false)
	c.tick()

	if err := c.Present(); err == nil {
		t.Fatal("Present() with failing backend\nhave nil error\nwant error")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	backend := &fakeBackend{}
	c := New(backend, 8)
	ctx, cancel := context.WithCancel(context.Background())
	wakeup := make(chan struct{})
	done := make(chan struct{})
	go func() {
		c.Run(ctx, wakeup)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run() did not return after context cancellation")
	}
}

func TestPushInputDropsWhenQueueFull(t *testing.T) {
	backend := &fakeBackend{}
	c := New(backend, 2) // rounds up to 2
	if !c.PushInput(InputEvent{Type: EventKey}) {
		t.Fatal("first PushInput\nhave false\nwant true")
	}
	if !c.PushInput(InputEvent{Type: EventKey}) {
		t.Fatal("second PushInput\nhave false\nwant true")
	}
	if c.PushInput(InputEvent{Type: EventKey}) {
		t.Error("PushInput on full queue\nhave true\nwant false")
	}
}
