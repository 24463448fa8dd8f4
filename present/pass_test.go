package present

import (
	"testing"

	"github.com/K1ngst0m/Goggles/chain"
	"github.com/K1ngst0m/Goggles/driver"
)

func TestGPUFramebufferAllocatorAllocateAndDestroy(t *testing.T) {
	gpu := &fakeGPU{}
	alloc := NewGPUFramebufferAllocator(gpu)

	fb, err := alloc.Allocate(chain.FormatRGBA8SRGB, chain.Extent{Width: 320, Height: 240})
	if err != nil {
		t.Fatalf("Allocate() error: %v", err)
	}
	gv, ok := fb.View.(GPUView)
	if !ok || gv.Image == nil || gv.View == nil {
		t.Fatalf("Allocate() view\nhave %+v\nwant populated GPUView", fb.View)
	}

	alloc.Destroy(fb)
	if !gv.Image.(*fakeImage).destroyed {
		t.Error("Destroy() did not destroy the backing image")
	}
	if !gv.View.(*fakeImageView).destroyed {
		t.Error("Destroy() did not destroy the backing view")
	}
}

func TestGPUFramebufferAllocatorAllocateFailurePropagates(t *testing.T) {
	gpu := &fakeGPU{newImageFail: true}
	alloc := NewGPUFramebufferAllocator(gpu)
	if _, err := alloc.Allocate(chain.FormatRGBA8SRGB, chain.Extent{Width: 64, Height: 64}); err == nil {
		t.Fatal("Allocate() with failing GPU\nhave nil error\nwant error")
	}
}

func TestGPUFramebufferAllocatorResizeReplaces(t *testing.T) {
	gpu := &fakeGPU{}
	alloc := NewGPUFramebufferAllocator(gpu)
	fb, err := alloc.Allocate(chain.FormatRGBA8UNorm, chain.Extent{Width: 100, Height: 100})
	if err != nil {
		t.Fatalf("Allocate() error: %v", err)
	}
	oldImage := fb.View.(GPUView).Image.(*fakeImage)

	resized, err := alloc.Resize(fb, chain.Extent{Width: 200, Height: 200})
	if err != nil {
		t.Fatalf("Resize() error: %v", err)
	}
	if !oldImage.destroyed {
		t.Error("Resize() did not destroy the previous image")
	}
	if resized.Extent != (chain.Extent{Width: 200, Height: 200}) {
		t.Errorf("Resize() extent\nhave %+v\nwant 200x200", resized.Extent)
	}
	if gpu.newImageCalls != 2 {
		t.Errorf("NewImage calls\nhave %d\nwant 2", gpu.newImageCalls)
	}
}

func TestToPixelFmt(t *testing.T) {
	cases := []struct {
		in   chain.Format
		want driver.PixelFmt
	}{
		{chain.FormatRGBA8UNorm, driver.RGBA8un},
		{chain.FormatRGBA8SRGB, driver.RGBA8sRGB},
		{chain.FormatRGBA16Float, driver.RGBA16f},
	}
	for _, c := range cases {
		if got := toPixelFmt(c.in); got != c.want {
			t.Errorf("toPixelFmt(%v)\nhave %v\nwant %v", c.in, got, c.want)
		}
	}
}

func TestGPUPassFactoryCreatePassBuildsGraphicsState(t *testing.T) {
	gpu := &fakeGPU{}
	recorder := NewRecordTarget()
	factory := NewGPUPassFactory(gpu, fakeLoader{}, driver.Sampling{}, recorder, 2)

	pass, names, err := factory.CreatePass(chain.PassConfig{ShaderPath: "a.slang"}, 0, chain.FormatRGBA8SRGB)
	if err != nil {
		t.Fatalf("CreatePass() error: %v", err)
	}
	if len(names) != 1 || names[0] != "Source" {
		t.Errorf("CreatePass() sampler names\nhave %v\nwant [Source]", names)
	}
	gp := pass.(*GPUPass)
	if gp.heapCopies != 2 {
		t.Errorf("GPUPass.heapCopies\nhave %d\nwant 2", gp.heapCopies)
	}
	pass.Shutdown()
}

func TestGPUPassRecordDrawsIntoTarget(t *testing.T) {
	gpu := &fakeGPU{}
	recorder := NewRecordTarget()
	factory := NewGPUPassFactory(gpu, fakeLoader{}, driver.Sampling{}, recorder, 1)

	pass, _, err := factory.CreatePass(chain.PassConfig{ShaderPath: "a.slang"}, 0, chain.FormatRGBA8SRGB)
	if err != nil {
		t.Fatalf("CreatePass() error: %v", err)
	}

	cb := &fakeCmdBuffer{}
	recorder.cb = cb
	targetView := &fakeImageView{}
	sourceView := &fakeImageView{}

	pass.Record(chain.PassRecordContext{
		FrameIndex:   3,
		Target:       GPUView{View: targetView},
		OutputExtent: chain.Extent{Width: 640, Height: 480},
		Bindings:     []chain.ResourceBinding{{Kind: chain.BindSourceImage}},
		BoundViews:   []chain.View{GPUView{View: sourceView}},
	})

	if cb.beginPassCalls != 1 || cb.drawCalls != 1 {
		t.Errorf("Record() cmd buffer calls\nhave beginPass=%d draw=%d\nwant 1, 1", cb.beginPassCalls, cb.drawCalls)
	}

	gp := pass.(*GPUPass)
	heap := gp.descHeap.(*fakeDescHeap)
	if len(heap.images[0]) != 1 || heap.images[0][0] != sourceView {
		t.Errorf("descriptor heap bound image\nhave %v\nwant [sourceView]", heap.images[0])
	}
}

func TestGPUPassRecordNoopWithoutCommandBuffer(t *testing.T) {
	gpu := &fakeGPU{}
	recorder := NewRecordTarget() // cb left nil
	factory := NewGPUPassFactory(gpu, fakeLoader{}, driver.Sampling{}, recorder, 1)
	pass, _, err := factory.CreatePass(chain.PassConfig{ShaderPath: "a.slang"}, 0, chain.FormatRGBA8SRGB)
	if err != nil {
		t.Fatalf("CreatePass() error: %v", err)
	}
	// Must not panic with no command buffer published yet.
	pass.Record(chain.PassRecordContext{Target: GPUView{View: &fakeImageView{}}})
}
