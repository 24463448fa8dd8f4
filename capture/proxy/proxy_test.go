package proxy

import (
	"errors"
	"testing"
	"time"
)

type fakeExporter struct {
	next    int
	fail    bool
	created []ImageHandle
}

func (f *fakeExporter) CreateExportableImage(format uint32, width, height uint32) (ImageHandle, ExportedImage, error) {
	if f.fail {
		return nil, ExportedImage{}, errors.New("export failed")
	}
	f.next++
	h := ImageHandle(f.next)
	f.created = append(f.created, h)
	return h, ExportedImage{Fd: f.next + 100, Stride: width * 4}, nil
}

func (f *fakeExporter) DestroyImage(h ImageHandle) {
	for i, c := range f.created {
		if c == h {
			f.created = append(f.created[:i], f.created[i+1:]...)
			return
		}
	}
}

func TestCreateSurfaceAssignsIncreasingHandles(t *testing.T) {
	v := New(&fakeExporter{}, 0)
	a := v.CreateSurface(1920, 1080)
	b := v.CreateSurface(640, 480)
	if a == b {
		t.Fatalf("CreateSurface() returned duplicate handles: %v, %v", a, b)
	}
	if uint64(a) < startHandle || uint64(b) < startHandle {
		t.Errorf("CreateSurface() handles\nhave %v, %v\nwant >= %#x", a, b, startHandle)
	}
	if !v.IsVirtualSurface(a) || !v.IsVirtualSurface(b) {
		t.Error("IsVirtualSurface() false for just-created surfaces")
	}
}

func TestDestroySurfaceRemoves(t *testing.T) {
	v := New(&fakeExporter{}, 0)
	h := v.CreateSurface(100, 100)
	v.DestroySurface(h)
	if v.IsVirtualSurface(h) {
		t.Error("IsVirtualSurface() true after DestroySurface")
	}
	v.DestroySurface(h) // no-op, must not panic
}

func TestSurfaceCapabilities(t *testing.T) {
	v := New(&fakeExporter{}, 0)
	h := v.CreateSurface(800, 600)
	caps, ok := v.SurfaceCapabilities(h)
	if !ok {
		t.Fatal("SurfaceCapabilities() ok=false for existing surface")
	}
	want := SurfaceCapabilities{MinImageCount: 2, MaxImageCount: 3, Width: 800, Height: 600}
	if caps != want {
		t.Errorf("SurfaceCapabilities()\nhave %+v\nwant %+v", caps, want)
	}

	if _, ok := v.SurfaceCapabilities(SurfaceHandle(999)); ok {
		t.Error("SurfaceCapabilities() ok=true for unknown handle")
	}
}

func TestClampImageCount(t *testing.T) {
	cases := []struct {
		requested, want uint32
	}{
		{0, 2}, {1, 2}, {2, 2}, {3, 3}, {4, 3}, {100, 3},
	}
	for _, c := range cases {
		if got := clampImageCount(c.requested); got != c.want {
			t.Errorf("clampImageCount(%d)\nhave %d\nwant %d", c.requested, got, c.want)
		}
	}
}

func TestCreateSwapchainExportsImagesPerClamp(t *testing.T) {
	exp := &fakeExporter{}
	v := New(exp, 0)
	surf := v.CreateSurface(640, 480)

	h, err := v.CreateSwapchain(surf, FormatB8G8R8A8SRGB, 640, 480, 1)
	if err != nil {
		t.Fatalf("CreateSwapchain() error: %v", err)
	}
	if !v.IsVirtualSwapchain(h) {
		t.Fatal("IsVirtualSwapchain() false after CreateSwapchain")
	}
	images, ok := v.Images(h)
	if !ok || len(images) != 2 {
		t.Fatalf("Images()\nhave %v, ok=%v\nwant 2 images (clamped from 1)", images, ok)
	}
}

func TestCreateSwapchainRollsBackOnExportFailure(t *testing.T) {
	exp := &fakeExporter{}
	v := New(exp, 0)
	surf := v.CreateSurface(640, 480)

	h, err := v.CreateSwapchain(surf, FormatB8G8R8A8SRGB, 640, 480, 3)
	if err != nil {
		t.Fatalf("CreateSwapchain() error: %v", err)
	}
	if len(exp.created) != 3 {
		t.Fatalf("exporter.created\nhave %d\nwant 3", len(exp.created))
	}

	exp.fail = true
	if _, err := v.CreateSwapchain(surf, FormatB8G8R8A8SRGB, 640, 480, 3); err == nil {
		t.Fatal("CreateSwapchain() with failing exporter\nhave nil error\nwant error")
	}
	// the first swapchain's images must be untouched by the rolled-back second attempt.
	if len(exp.created) != 3 {
		t.Errorf("exporter.created after rollback\nhave %d\nwant 3", len(exp.created))
	}

	v.DestroySwapchain(h)
	if len(exp.created) != 0 {
		t.Errorf("exporter.created after DestroySwapchain\nhave %d\nwant 0", len(exp.created))
	}
}

func TestDestroySwapchainUnknownIsNoop(t *testing.T) {
	v := New(&fakeExporter{}, 0)
	v.DestroySwapchain(SwapchainHandle(42)) // must not panic
}

func TestAcquireNextImageRoundRobinsWithoutThrottle(t *testing.T) {
	exp := &fakeExporter{}
	v := New(exp, 0)
	surf := v.CreateSurface(640, 480)
	h, err := v.CreateSwapchain(surf, FormatB8G8R8A8SRGB, 640, 480, 3)
	if err != nil {
		t.Fatalf("CreateSwapchain() error: %v", err)
	}

	var got []uint32
	for i := 0; i < 5; i++ {
		idx, err := v.AcquireNextImage(h)
		if err != nil {
			t.Fatalf("AcquireNextImage() error: %v", err)
		}
		got = append(got, idx)
	}
	want := []uint32{0, 1, 2, 0, 1}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("AcquireNextImage() sequence\nhave %v\nwant %v", got, want)
			break
		}
	}
}

func TestAcquireNextImageUnknownHandle(t *testing.T) {
	v := New(&fakeExporter{}, 0)
	if _, err := v.AcquireNextImage(SwapchainHandle(7)); err == nil {
		t.Fatal("AcquireNextImage() on unknown handle\nhave nil error\nwant ErrOutOfDate")
	}
}

func TestAcquireNextImageThrottlesToFPSLimit(t *testing.T) {
	exp := &fakeExporter{}
	v := New(exp, 30) // 30fps -> ~33.3ms per frame
	surf := v.CreateSurface(640, 480)
	h, err := v.CreateSwapchain(surf, FormatB8G8R8A8SRGB, 640, 480, 2)
	if err != nil {
		t.Fatalf("CreateSwapchain() error: %v", err)
	}

	clock := time.Unix(0, 0)
	v.now = func() time.Time { return clock }
	var slept time.Duration
	v.sleep = func(d time.Duration) { slept += d; clock = clock.Add(d) }

	if _, err := v.AcquireNextImage(h); err != nil {
		t.Fatalf("AcquireNextImage() error: %v", err)
	}
	if slept != 0 {
		t.Errorf("first AcquireNextImage() slept\nhave %v\nwant 0 (no prior frame)", slept)
	}

	clock = clock.Add(time.Millisecond) // far less than one frame period
	if _, err := v.AcquireNextImage(h); err != nil {
		t.Fatalf("AcquireNextImage() error: %v", err)
	}
	wantMin := time.Second/30 - time.Millisecond
	if slept < wantMin {
		t.Errorf("second AcquireNextImage() slept\nhave %v\nwant >= %v", slept, wantMin)
	}
}

func TestFrameData(t *testing.T) {
	exp := &fakeExporter{}
	v := New(exp, 0)
	surf := v.CreateSurface(320, 240)
	h, err := v.CreateSwapchain(surf, FormatB8G8R8A8UNorm, 320, 240, 2)
	if err != nil {
		t.Fatalf("CreateSwapchain() error: %v", err)
	}

	fd, ok := v.FrameData(h, 0)
	if !ok {
		t.Fatal("FrameData() ok=false for valid index")
	}
	if fd.Width != 320 || fd.Height != 240 || fd.Format != FormatB8G8R8A8UNorm {
		t.Errorf("FrameData() geometry\nhave %+v\nwant 320x240 format %d", fd, FormatB8G8R8A8UNorm)
	}
	if fd.Export.Stride != 320*4 {
		t.Errorf("FrameData().Export.Stride\nhave %d\nwant %d", fd.Export.Stride, 320*4)
	}

	if _, ok := v.FrameData(h, 99); ok {
		t.Error("FrameData() ok=true for out-of-range index")
	}
	if _, ok := v.FrameData(SwapchainHandle(999), 0); ok {
		t.Error("FrameData() ok=true for unknown handle")
	}
}
