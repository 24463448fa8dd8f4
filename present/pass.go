package present

import (
	"fmt"

	"github.com/K1ngst0m/Goggles/chain"
	"github.com/K1ngst0m/Goggles/driver"
)

// GPUView is the concrete chain.View this package supplies: a
// driver.ImageView plus, for views this package itself allocated, the
// owning driver.Image it must destroy alongside it. Image is nil for
// views GPUView merely wraps (the swapchain's backbuffer, the
// producer's imported frame) — those are owned and destroyed
// elsewhere.
type GPUView struct {
	Image driver.Image
	View  driver.ImageView
}

// recordTarget is the shared per-frame command buffer every GPUPass
// created by one GPUPassFactory records into. chain.Pass.Record takes
// no CmdBuffer parameter, so Backend.Render publishes the frame's
// command buffer here immediately before calling FilterChain.Record,
// mirroring how the original's PassExecutor implementations are
// handed the frame's single VkCommandBuffer by the backend that owns
// it rather than threading one through every call.
type recordTarget struct {
	cb driver.CmdBuffer
}

// NewRecordTarget constructs the shared per-frame command-buffer slot
// a Backend and its GPUPassFactory must both hold.
func NewRecordTarget() *recordTarget { return &recordTarget{} }

// ShaderLoader loads a configured pass's compiled shader stages.
// Cross-compiling a .slang shader source to SPIR-V is out of scope
// for this package (no shader cross-compiler appears anywhere in the
// retrieved corpus); a real implementation is expected to consume a
// preprocessed SPIR-V cache keyed by ShaderPath, or shell out to an
// external compiler ahead of time, with the result handed in here.
type ShaderLoader interface {
	Load(path string) (vertSPIRV, fragSPIRV []byte, err error)
}

// GPUPassFactory builds chain.Pass implementations backed by a real
// driver.GPU, mirroring PassFactory's role in filter_chain.cpp: given
// a parsed PassConfig and the sampler names its shader declared,
// compile the pipeline and allocate the descriptor heap that will be
// rebound every frame.
type GPUPassFactory struct {
	gpu      driver.GPU
	loader   ShaderLoader
	sampling driver.Sampling
	recorder *recordTarget
	heapCopies int
}

// NewGPUPassFactory constructs a GPUPassFactory. heapCopies is the
// number of DescHeap.New copies to allocate per pass, matching
// MAX_FRAMES_IN_FLIGHT so each in-flight frame rebinds its own
// sampler set instead of racing the previous frame's draw.
func NewGPUPassFactory(gpu driver.GPU, loader ShaderLoader, sampling driver.Sampling, recorder *recordTarget, heapCopies int) *GPUPassFactory {
	return &GPUPassFactory{gpu: gpu, loader: loader, sampling: sampling, recorder: recorder, heapCopies: heapCopies}
}

// CreatePass implements chain.PassFactory.
func (f *GPUPassFactory) CreatePass(cfg chain.PassConfig, passIndex int, targetFormat chain.Format) (chain.Pass, []string, error) {
	vertSPIRV, fragSPIRV, err := f.loader.Load(cfg.ShaderPath)
	if err != nil {
		return nil, nil, fmt.Errorf("present: loading shader %q: %w", cfg.ShaderPath, err)
	}

	vertCode, err := f.gpu.NewShaderCode(vertSPIRV)
	if err != nil {
		return nil, nil, fmt.Errorf("present: vertex shader code for %q: %w", cfg.ShaderPath, err)
	}
	fragCode, err := f.gpu.NewShaderCode(fragSPIRV)
	if err != nil {
		vertCode.Destroy()
		return nil, nil, fmt.Errorf("present: fragment shader code for %q: %w", cfg.ShaderPath, err)
	}

	samplerNames := reflectSamplerNames(cfg)

	descs := []driver.Descriptor{
		{Type: driver.DConstant, Stages: driver.SVertex | driver.SFragment, Nr: 0, Len: 1},
	}
	if len(samplerNames) > 0 {
		descs = append(descs,
			driver.Descriptor{Type: driver.DTexture, Stages: driver.SFragment, Nr: 1, Len: len(samplerNames)},
			driver.Descriptor{Type: driver.DSampler, Stages: driver.SFragment, Nr: 2, Len: len(samplerNames)},
		)
	}
	heap, err := f.gpu.NewDescHeap(descs)
	if err != nil {
		vertCode.Destroy()
		fragCode.Destroy()
		return nil, nil, fmt.Errorf("present: desc heap for pass %d: %w", passIndex, err)
	}
	if err := heap.New(f.heapCopies); err != nil {
		heap.Destroy()
		vertCode.Destroy()
		fragCode.Destroy()
		return nil, nil, fmt.Errorf("present: sizing desc heap for pass %d: %w", passIndex, err)
	}

	table, err := f.gpu.NewDescTable([]driver.DescHeap{heap})
	if err != nil {
		heap.Destroy()
		vertCode.Destroy()
		fragCode.Destroy()
		return nil, nil, fmt.Errorf("present: desc table for pass %d: %w", passIndex, err)
	}

	pf := toPixelFmt(targetFormat)
	renderPass, err := f.gpu.NewRenderPass(
		[]driver.Attachment{{Format: pf, Samples: 1, Load: [2]driver.LoadOp{driver.LDontCare, driver.LDontCare}, Store: [2]driver.StoreOp{driver.SStore, driver.SDontCare}}},
		[]driver.Subpass{{Color: []int{0}, DS: -1}},
	)
	if err != nil {
		table.Destroy()
		heap.Destroy()
		vertCode.Destroy()
		fragCode.Destroy()
		return nil, nil, fmt.Errorf("present: render pass for pass %d: %w", passIndex, err)
	}

	pipeline, err := f.gpu.NewPipeline(&driver.GraphState{
		VertFunc: driver.ShaderFunc{Code: vertCode, Name: "main"},
		FragFunc: driver.ShaderFunc{Code: fragCode, Name: "main"},
		Desc:     table,
		Topology: driver.TTriangle,
		Raster:   driver.RasterState{Cull: driver.CNone, Fill: driver.FFill},
		Samples:  1,
		Blend:    driver.BlendState{Color: []driver.ColorBlend{{WriteMask: driver.CAll}}},
		Pass:     renderPass,
		Subpass:  0,
	})
	if err != nil {
		renderPass.Destroy()
		table.Destroy()
		heap.Destroy()
		vertCode.Destroy()
		fragCode.Destroy()
		return nil, nil, fmt.Errorf("present: pipeline for pass %d: %w", passIndex, err)
	}

	sampler, err := f.gpu.NewSampler(&f.sampling)
	if err != nil {
		pipeline.Destroy()
		renderPass.Destroy()
		table.Destroy()
		heap.Destroy()
		vertCode.Destroy()
		fragCode.Destroy()
		return nil, nil, fmt.Errorf("present: sampler for pass %d: %w", passIndex, err)
	}

	pass := &GPUPass{
		gpu:          f.gpu,
		recorder:     f.recorder,
		renderPass:   renderPass,
		pipeline:     pipeline,
		descHeap:     heap,
		descTable:    table,
		sampler:      sampler,
		vertCode:     vertCode,
		fragCode:     fragCode,
		samplerNames: samplerNames,
		heapCopies:   f.heapCopies,
		framebufs:    make(map[driver.ImageView]driver.Framebuf),
	}
	return pass, samplerNames, nil
}

// reflectSamplerNames is a placeholder for real shader reflection
// (enumerating a compiled SPIR-V module's sampler bindings by name).
// Reflection needs the actual shader binary's decoration metadata,
// which this package's ShaderLoader boundary does not expose; callers
// that need binding names beyond the always-present "Source" should
// supply a loader capable of returning them alongside the SPIR-V, a
// follow-up left for when a concrete ShaderLoader is wired in.
func reflectSamplerNames(cfg chain.PassConfig) []string {
	return []string{"Source"}
}

// GPUPass executes one configured pass's draw by recording into the
// frame's shared command buffer, rebinding the current frame's
// descriptor heap copy to the resolved source views each time.
type GPUPass struct {
	gpu      driver.GPU
	recorder *recordTarget

	renderPass driver.RenderPass
	pipeline   driver.Pipeline
	descHeap   driver.DescHeap
	descTable  driver.DescTable
	sampler    driver.Sampler
	vertCode   driver.ShaderCode
	fragCode   driver.ShaderCode

	samplerNames []string
	heapCopies   int

	framebufs map[driver.ImageView]driver.Framebuf
}

// framebufferFor returns (creating and caching if needed) the
// driver.Framebuf wrapping target, since RenderPass.NewFB requires one
// per distinct target view. Entries are keyed by view and destroyed
// only by Shutdown; an intermediate framebuffer reallocated on resize
// has a new view and so gets a new entry.
func (p *GPUPass) framebufferFor(target driver.ImageView, width, height int) (driver.Framebuf, error) {
	if fb, ok := p.framebufs[target]; ok {
		return fb, nil
	}
	fb, err := p.renderPass.NewFB([]driver.ImageView{target}, width, height, 1)
	if err != nil {
		return nil, err
	}
	p.framebufs[target] = fb
	return fb, nil
}

// Record implements chain.Pass.
func (p *GPUPass) Record(ctx chain.PassRecordContext) {
	cb := p.recorder.cb
	if cb == nil {
		return
	}

	target, _ := ctx.Target.(GPUView)
	fb, err := p.framebufferFor(target.View, int(ctx.OutputExtent.Width), int(ctx.OutputExtent.Height))
	if err != nil {
		return
	}

	heapCopy := int(ctx.FrameIndex) % p.heapCopies
	views := make([]driver.ImageView, len(ctx.BoundViews))
	samplers := make([]driver.Sampler, len(ctx.BoundViews))
	for i, v := range ctx.BoundViews {
		if gv, ok := v.(GPUView); ok {
			views[i] = gv.View
		}
		samplers[i] = p.sampler
	}
	if len(views) > 0 {
		p.descHeap.SetImage(heapCopy, 1, 0, views)
		p.descHeap.SetSampler(heapCopy, 2, 0, samplers)
	}

	cb.BeginPass(p.renderPass, fb, []driver.ClearValue{{}})
	cb.SetPipeline(p.pipeline)
	cb.SetViewport([]driver.Viewport{{Width: float32(ctx.OutputExtent.Width), Height: float32(ctx.OutputExtent.Height), Zfar: 1}})
	cb.SetScissor([]driver.Scissor{{Width: int(ctx.OutputExtent.Width), Height: int(ctx.OutputExtent.Height)}})
	cb.SetDescTableGraph(p.descTable, 0, []int{heapCopy})
	cb.Draw(3, 1, 0, 0)
	cb.EndPass()
}

// Shutdown implements chain.Pass.
func (p *GPUPass) Shutdown() {
	for _, fb := range p.framebufs {
		fb.Destroy()
	}
	p.sampler.Destroy()
	p.pipeline.Destroy()
	p.renderPass.Destroy()
	p.descTable.Destroy()
	p.descHeap.Destroy()
	p.vertCode.Destroy()
	p.fragCode.Destroy()
}

// GPUFramebufferAllocator implements chain.FramebufferAllocator over
// a real driver.GPU, allocating each intermediate framebuffer as a
// render-target + sampled image pair.
type GPUFramebufferAllocator struct {
	gpu driver.GPU
}

// NewGPUFramebufferAllocator constructs a GPUFramebufferAllocator.
func NewGPUFramebufferAllocator(gpu driver.GPU) *GPUFramebufferAllocator {
	return &GPUFramebufferAllocator{gpu: gpu}
}

// Allocate implements chain.FramebufferAllocator.
func (a *GPUFramebufferAllocator) Allocate(format chain.Format, extent chain.Extent) (chain.Framebuffer, error) {
	pf := toPixelFmt(format)
	img, err := a.gpu.NewImage(pf, driver.Dim3D{Width: int(extent.Width), Height: int(extent.Height), Depth: 1}, 1, 1, 1, driver.URenderTarget|driver.UShaderSample)
	if err != nil {
		return chain.Framebuffer{}, fmt.Errorf("present: allocating framebuffer image: %w", err)
	}
	view, err := img.NewView(driver.IView2D, 0, 1, 0, 1)
	if err != nil {
		img.Destroy()
		return chain.Framebuffer{}, fmt.Errorf("present: creating framebuffer view: %w", err)
	}
	return chain.Framebuffer{View: GPUView{Image: img, View: view}, Extent: extent, Format: format}, nil
}

// Resize implements chain.FramebufferAllocator by destroying the
// previous image/view and allocating a fresh pair at the new extent;
// driver.Image has no in-place resize operation.
func (a *GPUFramebufferAllocator) Resize(fb chain.Framebuffer, extent chain.Extent) (chain.Framebuffer, error) {
	a.Destroy(fb)
	return a.Allocate(fb.Format, extent)
}

// Destroy implements chain.FramebufferAllocator.
func (a *GPUFramebufferAllocator) Destroy(fb chain.Framebuffer) {
	gv, ok := fb.View.(GPUView)
	if !ok {
		return
	}
	if gv.View != nil {
		gv.View.Destroy()
	}
	if gv.Image != nil {
		gv.Image.Destroy()
	}
}

// toPixelFmt maps chain's local Format enum onto a real
// driver.PixelFmt.
func toPixelFmt(f chain.Format) driver.PixelFmt {
	switch f {
	case chain.FormatRGBA8UNorm:
		return driver.RGBA8un
	case chain.FormatRGBA16Float:
		return driver.RGBA16f
	default:
		return driver.RGBA8sRGB
	}
}
