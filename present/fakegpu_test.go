package present

import (
	"time"

	"github.com/K1ngst0m/Goggles/driver"
)

// fakeGPU is a minimal in-memory driver.GPU satisfying every method
// the present package calls, so GPUPassFactory/GPUFramebufferAllocator/
// Backend can be unit tested without a live graphics device — the
// teacher's own driver/vk tests run against a real Vulkan device
// (see driver/vk/helpers_test.go's TestMain), which this package
// cannot assume is available in a plain `go test` environment.
type fakeGPU struct {
	commits        int
	newImageCalls  int
	newImageFail   bool
	limits         driver.Limits
}

func (g *fakeGPU) Driver() driver.Driver { return nil }

func (g *fakeGPU) Commit(cb []driver.CmdBuffer, ch chan<- error) {
	g.commits++
	ch <- nil
}

func (g *fakeGPU) NewCmdBuffer() (driver.CmdBuffer, error) { return &fakeCmdBuffer{}, nil }

func (g *fakeGPU) NewRenderPass(att []driver.Attachment, sub []driver.Subpass) (driver.RenderPass, error) {
	return &fakeRenderPass{}, nil
}

func (g *fakeGPU) NewShaderCode(data []byte) (driver.ShaderCode, error) { return &fakeDestroyer{}, nil }

func (g *fakeGPU) NewDescHeap(ds []driver.Descriptor) (driver.DescHeap, error) {
	return &fakeDescHeap{}, nil
}

func (g *fakeGPU) NewDescTable(dh []driver.DescHeap) (driver.DescTable, error) {
	return &fakeDestroyer{}, nil
}

func (g *fakeGPU) NewPipeline(state any) (driver.Pipeline, error) { return &fakeDestroyer{}, nil }

func (g *fakeGPU) NewBuffer(size int64, visible bool, usg driver.Usage) (driver.Buffer, error) {
	return nil, nil
}

func (g *fakeGPU) NewImage(pf driver.PixelFmt, size driver.Dim3D, layers, levels, samples int, usg driver.Usage) (driver.Image, error) {
	g.newImageCalls++
	if g.newImageFail {
		return nil, errFakeImage
	}
	return &fakeImage{}, nil
}

func (g *fakeGPU) NewSampler(spln *driver.Sampling) (driver.Sampler, error) {
	return &fakeDestroyer{}, nil
}

func (g *fakeGPU) Limits() driver.Limits { return g.limits }

var errFakeImage = errFakeErr("fake image allocation failed")

type errFakeErr string

func (e errFakeErr) Error() string { return string(e) }

// fakeDestroyer satisfies driver.Destroyer alone, standing in for any
// opaque handle type (ShaderCode, DescTable, Pipeline, Sampler) whose
// only behavior present.go relies on is Destroy.
type fakeDestroyer struct{ destroyed bool }

func (d *fakeDestroyer) Destroy() { d.destroyed = true }

type fakeImage struct {
	destroyed bool
	views     []*fakeImageView
}

func (i *fakeImage) Destroy() { i.destroyed = true }

func (i *fakeImage) NewView(typ driver.ViewType, layer, layers, level, levels int) (driver.ImageView, error) {
	v := &fakeImageView{}
	i.views = append(i.views, v)
	return v, nil
}

type fakeImageView struct{ destroyed bool }

func (v *fakeImageView) Destroy() { v.destroyed = true }

type fakeRenderPass struct {
	fbs []*fakeFramebuf
}

func (p *fakeRenderPass) Destroy() {}

func (p *fakeRenderPass) NewFB(iv []driver.ImageView, width, height, layers int) (driver.Framebuf, error) {
	fb := &fakeFramebuf{views: iv, width: width, height: height}
	p.fbs = append(p.fbs, fb)
	return fb, nil
}

type fakeFramebuf struct {
	destroyed bool
	views     []driver.ImageView
	width     int
	height    int
}

func (fb *fakeFramebuf) Destroy() { fb.destroyed = true }

type fakeDescHeap struct {
	destroyed bool
	copies    int
	images    map[int][]driver.ImageView
	samplers  map[int][]driver.Sampler
}

func (h *fakeDescHeap) Destroy() { h.destroyed = true }

func (h *fakeDescHeap) New(n int) error {
	h.copies = n
	h.images = make(map[int][]driver.ImageView)
	h.samplers = make(map[int][]driver.Sampler)
	return nil
}

func (h *fakeDescHeap) SetBuffer(cpy, nr, start int, buf []driver.Buffer, off, size []int64) {}

func (h *fakeDescHeap) SetImage(cpy, nr, start int, iv []driver.ImageView) {
	h.images[cpy] = iv
}

func (h *fakeDescHeap) SetSampler(cpy, nr, start int, splr []driver.Sampler) {
	h.samplers[cpy] = splr
}

func (h *fakeDescHeap) Count() int { return h.copies }

// fakeCmdBuffer records the subset of calls present's tests assert on
// and no-ops everything else required by driver.CmdBuffer.
type fakeCmdBuffer struct {
	began          bool
	ended          bool
	beginPassCalls int
	drawCalls      int
	transitions    [][]driver.Transition
}

func (c *fakeCmdBuffer) Destroy() {}
func (c *fakeCmdBuffer) Begin() error {
	c.began = true
	return nil
}
func (c *fakeCmdBuffer) BeginPass(pass driver.RenderPass, fb driver.Framebuf, clear []driver.ClearValue) {
	c.beginPassCalls++
}
func (c *fakeCmdBuffer) NextSubpass()                                    {}
func (c *fakeCmdBuffer) EndPass()                                        {}
func (c *fakeCmdBuffer) BeginWork(wait bool)                             {}
func (c *fakeCmdBuffer) EndWork()                                        {}
func (c *fakeCmdBuffer) BeginBlit(wait bool)                             {}
func (c *fakeCmdBuffer) EndBlit()                                        {}
func (c *fakeCmdBuffer) SetPipeline(pl driver.Pipeline)                  {}
func (c *fakeCmdBuffer) SetViewport(vp []driver.Viewport)                {}
func (c *fakeCmdBuffer) SetScissor(sciss []driver.Scissor)               {}
func (c *fakeCmdBuffer) SetBlendColor(r, g, b, a float32)                {}
func (c *fakeCmdBuffer) SetStencilRef(value uint32)                      {}
func (c *fakeCmdBuffer) SetVertexBuf(start int, buf []driver.Buffer, off []int64) {}
func (c *fakeCmdBuffer) SetIndexBuf(format driver.IndexFmt, buf driver.Buffer, off int64) {}
func (c *fakeCmdBuffer) SetDescTableGraph(table driver.DescTable, start int, heapCopy []int) {}
func (c *fakeCmdBuffer) SetDescTableComp(table driver.DescTable, start int, heapCopy []int) {}
func (c *fakeCmdBuffer) Draw(vertCount, instCount, baseVert, baseInst int) {
	c.drawCalls++
}
func (c *fakeCmdBuffer) DrawIndexed(idxCount, instCount, baseIdx, vertOff, baseInst int) {}
func (c *fakeCmdBuffer) Dispatch(grpCountX, grpCountY, grpCountZ int)    {}
func (c *fakeCmdBuffer) CopyBuffer(param *driver.BufferCopy)             {}
func (c *fakeCmdBuffer) CopyImage(param *driver.ImageCopy)               {}
func (c *fakeCmdBuffer) CopyBufToImg(param *driver.BufImgCopy)           {}
func (c *fakeCmdBuffer) CopyImgToBuf(param *driver.BufImgCopy)           {}
func (c *fakeCmdBuffer) Fill(buf driver.Buffer, off int64, value byte, size int64) {}
func (c *fakeCmdBuffer) Barrier(b []driver.Barrier)                      {}
func (c *fakeCmdBuffer) Transition(t []driver.Transition) {
	c.transitions = append(c.transitions, t)
}
func (c *fakeCmdBuffer) End() error {
	c.ended = true
	return nil
}
func (c *fakeCmdBuffer) Reset() error { return nil }

// fakeSwapchain implements driver.Swapchain.
type fakeSwapchain struct {
	views       []driver.ImageView
	format      driver.PixelFmt
	nextIndex   int
	nextErr     error
	presentErr  error
	recreateErr error
	recreated   int
	presented   []int
}

func (s *fakeSwapchain) Destroy() {}
func (s *fakeSwapchain) Views() []driver.ImageView { return s.views }
func (s *fakeSwapchain) Next(cb driver.CmdBuffer) (int, error) {
	if s.nextErr != nil {
		return 0, s.nextErr
	}
	return s.nextIndex, nil
}
func (s *fakeSwapchain) Present(index int, cb driver.CmdBuffer) error {
	s.presented = append(s.presented, index)
	return s.presentErr
}
func (s *fakeSwapchain) Recreate() error {
	s.recreated++
	return s.recreateErr
}
func (s *fakeSwapchain) Format() driver.PixelFmt { return s.format }

type fakeLoader struct{}

func (fakeLoader) Load(path string) ([]byte, []byte, error) { return []byte{0}, []byte{0}, nil }

type fakeImporter struct {
	importCalls  int
	releaseCalls int
	failImport   bool
	lastFrame    ExternalFrame
}

func (f *fakeImporter) ImportImage(frame ExternalFrame) (Imported, error) {
	f.importCalls++
	f.lastFrame = frame
	if f.failImport {
		return Imported{}, errFakeImage
	}
	return Imported{Image: &fakeImage{}, View: &fakeImageView{}}, nil
}

func (f *fakeImporter) ReleaseImage(Imported) { f.releaseCalls++ }

type fakeSync struct {
	importCalls    int
	waitCalls      int
	signalCalls    int
	waitErr        error
	lastWaitValue  uint64
	lastSignal     uint64
}

func (s *fakeSync) ImportSemaphores(readyFd, consumedFd int) error {
	s.importCalls++
	return nil
}

func (s *fakeSync) WaitFrameReady(value uint64, timeout time.Duration) error {
	s.waitCalls++
	s.lastWaitValue = value
	return s.waitErr
}

func (s *fakeSync) SignalFrameConsumed(value uint64) error {
	s.signalCalls++
	s.lastSignal = value
	return nil
}
