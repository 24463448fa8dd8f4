package chain

import (
	"fmt"
	"sync/atomic"
)

// View is the sampled/rendered image handle this package passes
// around. It is left as an opaque type parameter everywhere except
// here, where FilterChain needs one concrete type to store in its
// framebuffer/history/feedback bookkeeping; present.go's backend
// supplies whatever its driver.GPU binding uses (typically a
// driver.ImageView).
type View any

// Framebuffer is one intermediate render target FilterChain owns
// between passes, mirroring Framebuffer in framebuffer.hpp.
type Framebuffer struct {
	View   View
	Extent Extent
	Format Format
}

// FramebufferAllocator creates and destroys the intermediate
// framebuffers a preset's non-final passes render into. A real
// implementation allocates a driver.Image + driver.ImageView pair
// through the backend's driver.GPU; this package never touches
// driver.GPU directly; see DESIGN.md for why the boundary is drawn
// here (a generalized image allocator spanning multiple packages,
// same pattern as capture/proxy.ImageExporter).
type FramebufferAllocator interface {
	Allocate(format Format, extent Extent) (Framebuffer, error)
	Resize(fb Framebuffer, extent Extent) (Framebuffer, error)
	Destroy(fb Framebuffer)
}

// PassRecordContext carries everything a Pass needs to record one
// draw, mirroring PassContext plus the resolved bindings and semantic
// state §4.6 describes.
type PassRecordContext struct {
	FrameIndex     uint32
	Source         View
	Original       View
	Target         View
	TargetFormat   Format
	OutputExtent   Extent
	Bindings       []ResourceBinding
	BoundViews     []View // resolved views, parallel to Bindings
	SemanticBinder *SemanticBinder
}

// Pass executes one configured shader pass: it owns its compiled
// pipeline and descriptor sets and records a full-screen draw into
// the context's target. A real implementation lives in present,
// where a driver.GPU and a shader-reflection service are both
// available; this package only needs the interface, matching §4.6's
// PassExecutor description without re-deriving a Vulkan pipeline
// builder in a package that has no graphics context to build one
// against.
type Pass interface {
	Record(ctx PassRecordContext)
	Shutdown()
}

// PassFactory compiles and builds one configured pass, returning both
// the executable Pass and the sampler names its shader declared (so
// FilterChain can resolve them against the graph via ResolveBinding).
type PassFactory interface {
	CreatePass(cfg PassConfig, passIndex int, targetFormat Format) (pass Pass, samplerNames []string, err error)
}

// TextureLoader decodes and uploads a preset-declared static texture
// (a named LUT or similar), mirroring TextureLoader::load_from_file's
// role: given the parsed TextureConfig, produce the sampled View a
// BindPresetTexture binding resolves to. A real implementation lives
// in present, where a driver.GPU is available to decode the file and
// upload it; this package only needs the interface, the same
// injected-backend boundary PassFactory/FramebufferAllocator use.
type TextureLoader interface {
	LoadTexture(cfg TextureConfig) (View, error)
	Destroy(view View)
}

type loadedPass struct {
	config   PassConfig
	pass     Pass
	bindings []ResourceBinding
}

type deferredDestroy struct {
	passes       []loadedPass
	framebuffers []Framebuffer
	textures     map[string]View
	destroyAfter uint64
}

// FilterChain orchestrates the preset graph, sizing, resource
// binding, history/feedback bookkeeping, and async preset reload
// that §4.5 describes. It owns no rendering state itself: the actual
// draw calls are delegated to Pass/FramebufferAllocator
// implementations supplied by the present package.
type FilterChain struct {
	targetFormat  Format
	syncDepth     uint32
	passFactory   PassFactory
	fbAllocator   FramebufferAllocator
	textureLoader TextureLoader

	outputPass Pass

	preset       PresetGraph
	passes       []loadedPass
	framebuffers []Framebuffer
	feedback     map[int]*FeedbackBuffer[View]
	history      *HistoryRing[View]
	textures     map[string]View
	semantics    *SemanticBinder

	frameCount uint32

	lastScaleMode    ScaleMode
	lastIntegerScale uint32
	lastSourceExtent Extent

	pendingNext   atomic.Pointer[pendingChain]
	deferredQueue []deferredDestroy

	// deferredQueueCap bounds deferredQueue's growth per §4.5's "guarded-size
	// cap avoids unbounded growth; overflow means immediate destroy".
	deferredQueueCap int

	onOverflow func(count int)
}

type pendingChain struct {
	preset       PresetGraph
	passes       []loadedPass
	framebuffers []Framebuffer
	textures     map[string]View
}

// NewFilterChain constructs a passthrough-only FilterChain (no preset
// loaded yet): record() will route directly through outputPass until
// LoadPreset succeeds, mirroring FilterChain::init's "passthrough
// mode" initial state. textureLoader may be nil, in which case a
// preset's BindPresetTexture bindings fall back to Source, matching
// §4.5 step 5's documented unresolved-name behavior.
func NewFilterChain(targetFormat Format, syncDepth uint32, outputPass Pass, passFactory PassFactory, fbAllocator FramebufferAllocator, textureLoader TextureLoader) *FilterChain {
	return &FilterChain{
		targetFormat:     targetFormat,
		syncDepth:        syncDepth,
		passFactory:      passFactory,
		fbAllocator:      fbAllocator,
		textureLoader:    textureLoader,
		outputPass:       outputPass,
		feedback:         make(map[int]*FeedbackBuffer[View]),
		textures:         make(map[string]View),
		semantics:        NewSemanticBinder(),
		lastScaleMode:    ScaleModeStretch,
		deferredQueueCap: 8,
		onOverflow:       func(int) {},
	}
}

// SetTexture registers (or replaces) a preset-declared static texture
// under name, so a later BindPresetTexture binding can resolve it,
// mirroring FilterChain::load_preset's LUT/texture upload step. It is
// exposed for callers that source a texture some other way than
// TextureLoader (e.g. a shared atlas); LoadPreset populates textures
// declared by the preset itself via textureLoader.
func (c *FilterChain) SetTexture(name string, view View) {
	c.textures[name] = view
}

// PassCount reports the number of passes in the currently loaded
// preset (0 in passthrough mode).
func (c *FilterChain) PassCount() int { return len(c.passes) }

// LoadPreset synchronously parses and builds a new pass graph,
// replacing the current one only on full success, mirroring
// FilterChain::load_preset's "either fully succeeds ... or returns
// error and leaves the previous graph intact" contract.
func (c *FilterChain) LoadPreset(path string) error {
	graph, err := LoadPreset(path)
	if err != nil {
		return err
	}
	passes, framebuffers, textures, err := c.buildGraph(graph)
	if err != nil {
		return err
	}
	c.installGraph(graph, passes, framebuffers, textures)
	return nil
}

func (c *FilterChain) buildGraph(graph PresetGraph) ([]loadedPass, []Framebuffer, map[string]View, error) {
	passes := make([]loadedPass, 0, len(graph.Passes))
	for i, cfg := range graph.Passes {
		isFinal := i == len(graph.Passes)-1
		targetFormat := cfg.FramebufferFormat
		if isFinal {
			targetFormat = c.targetFormat
		}

		pass, samplerNames, err := c.passFactory.CreatePass(cfg, i, targetFormat)
		if err != nil {
			for _, built := range passes {
				built.pass.Shutdown()
			}
			return nil, nil, nil, fmt.Errorf("chain: failed to build pass %d: %w", i, err)
		}

		bindings := make([]ResourceBinding, len(samplerNames))
		for j, name := range samplerNames {
			bindings[j] = ResolveBinding(name, i, graph)
			if _, ok := c.textures[name]; ok && name != "Source" && bindings[j].Kind == BindSourceImage {
				bindings[j] = ResourceBinding{Kind: BindPresetTexture, Name: name}
			}
		}

		passes = append(passes, loadedPass{config: cfg, pass: pass, bindings: bindings})
	}

	textures := make(map[string]View, len(graph.Textures))
	if c.textureLoader != nil {
		for _, tc := range graph.Textures {
			view, err := c.textureLoader.LoadTexture(tc)
			if err != nil {
				for _, built := range passes {
					built.pass.Shutdown()
				}
				for _, v := range textures {
					c.textureLoader.Destroy(v)
				}
				return nil, nil, nil, fmt.Errorf("chain: failed to load texture %q: %w", tc.Name, err)
			}
			textures[tc.Name] = view
		}
	}

	framebufferCount := 0
	if len(passes) > 0 {
		framebufferCount = len(passes) - 1
	}
	return passes, make([]Framebuffer, framebufferCount), textures, nil
}

func (c *FilterChain) installGraph(graph PresetGraph, passes []loadedPass, framebuffers []Framebuffer, textures map[string]View) {
	c.preset = graph
	c.passes = passes
	c.framebuffers = framebuffers
	c.feedback = make(map[int]*FeedbackBuffer[View])
	// Loaded textures are merged rather than replacing c.textures
	// outright, so a texture injected directly via SetTexture (not
	// declared by any preset's "textures" key) survives a reload
	// instead of being wiped by it.
	if c.textures == nil {
		c.textures = make(map[string]View)
	}
	for name, view := range textures {
		c.textures[name] = view
	}

	maxHistory := 0
	for _, p := range passes {
		for _, b := range p.bindings {
			if b.Kind == BindOriginalHistory && b.Index > maxHistory {
				maxHistory = b.Index
			}
		}
	}
	c.history = NewHistoryRing[View](maxHistory)
}

// EnsureFramebuffers (re)allocates the chain's intermediate
// framebuffers to match each pass's computed output extent, given the
// current source and viewport extents, mirroring
// FilterChain::ensure_framebuffers.
func (c *FilterChain) EnsureFramebuffers(sourceExtent, viewportExtent Extent) error {
	prev := sourceExtent
	for i := range c.framebuffers {
		cfg := c.preset.Passes[i]
		target := CalculatePassOutputSize(cfg, prev, viewportExtent)

		var err error
		if c.framebuffers[i].View == nil {
			c.framebuffers[i], err = c.fbAllocator.Allocate(cfg.FramebufferFormat, target)
		} else if c.framebuffers[i].Extent != target {
			c.framebuffers[i], err = c.fbAllocator.Resize(c.framebuffers[i], target)
		}
		if err != nil {
			return fmt.Errorf("chain: failed to size framebuffer %d: %w", i, err)
		}
		if cfg.Feedback {
			if err := c.ensureFeedback(i, cfg, target); err != nil {
				return err
			}
		}
		prev = target
	}
	return nil
}

// ensureFeedback lazily allocates the ping-pong pair backing pass i's
// PassFeedback{i} binding the first time it is called for that pass;
// a pair that already exists is kept as is and is not resized when
// target changes. Mirrors
// FilterChain::ensure_framebuffers' feedback-buffer branch: a
// feedback-marked pass gets its own pair of framebuffers distinct from
// framebuffers[i], since PassFeedback{i} must keep reading last
// frame's output while the pass renders this frame's into the other
// slot.
func (c *FilterChain) ensureFeedback(passIndex int, cfg PassConfig, target Extent) error {
	existing, ok := c.feedback[passIndex]
	if !ok {
		slotA, err := c.fbAllocator.Allocate(cfg.FramebufferFormat, target)
		if err != nil {
			return fmt.Errorf("chain: failed to allocate feedback slot A for pass %d: %w", passIndex, err)
		}
		slotB, err := c.fbAllocator.Allocate(cfg.FramebufferFormat, target)
		if err != nil {
			c.fbAllocator.Destroy(slotA)
			return fmt.Errorf("chain: failed to allocate feedback slot B for pass %d: %w", passIndex, err)
		}
		c.feedback[passIndex] = NewFeedbackBuffer[View](slotA.View, slotB.View)
		return nil
	}
	_ = existing
	return nil
}

// resolveView resolves one already-classified ResourceBinding to a
// concrete View for the pass currently being recorded, mirroring
// §4.6's PassExecutor binding walk. ok is false for a binding this
// chain has no resolution for yet (e.g. a history index deeper than
// any frame pushed so far), in which case the caller should fall back
// to source.
func (c *FilterChain) resolveView(b ResourceBinding, passIndex int, source, original View) (View, bool) {
	switch b.Kind {
	case BindSourceImage:
		return source, true
	case BindOriginalImage:
		return original, true
	case BindOriginalHistory:
		if c.history == nil || !c.history.initialized {
			return nil, false
		}
		return c.history.At(b.Index)
	case BindPassOutput:
		if b.Index < 0 || b.Index >= len(c.framebuffers) {
			return nil, false
		}
		return c.framebuffers[b.Index].View, true
	case BindAliasedOutput:
		if b.Index < 0 || b.Index >= len(c.framebuffers) {
			return nil, false
		}
		return c.framebuffers[b.Index].View, true
	case BindPassFeedback:
		fb, ok := c.feedback[b.Index]
		if !ok {
			return nil, false
		}
		return fb.Previous(), true
	case BindPresetTexture:
		view, ok := c.textures[b.Name]
		return view, ok
	default:
		return nil, false
	}
}

// Record walks the currently loaded preset graph and records every
// pass in order, the last one straight into finalTarget, resolving
// each pass's declared sampler bindings to concrete views as it goes.
// The output pass is recorded only when no preset passes are loaded
// (passthrough). original is
// the untouched captured frame, source is what pass 0 reads from (the
// same image except when an earlier compositing stage has already
// altered it), finalTarget/finalExtent describe where the output pass
// should render, mirroring FilterChain::record's per-frame walk.
//
// Call ApplyPendingReload and DrainDeferred before Record, and
// SwapFeedback/PushHistory around it, per §4.5/§4.9's frame sequence;
// Record itself only walks the graph it is handed.
func (c *FilterChain) Record(frameIndex uint32, original, source, finalTarget View, finalExtent Extent) error {
	current := source
	for i, lp := range c.passes {
		isFinal := i == len(c.passes)-1

		bound := make([]View, len(lp.bindings))
		for j, b := range lp.bindings {
			view, ok := c.resolveView(b, i, current, original)
			if !ok {
				view = current
			}
			bound[j] = view
		}

		target := current
		targetFormat := lp.config.FramebufferFormat
		extent := finalExtent
		if !isFinal {
			target = c.framebuffers[i].View
			extent = c.framebuffers[i].Extent
			if lp.config.Feedback {
				if fb, ok := c.feedback[i]; ok {
					target = fb.Current()
				}
			}
		} else {
			target = finalTarget
			targetFormat = c.targetFormat
		}

		ctx := PassRecordContext{
			FrameIndex:     frameIndex,
			Source:         current,
			Original:       original,
			Target:         target,
			TargetFormat:   targetFormat,
			OutputExtent:   extent,
			Bindings:       lp.bindings,
			BoundViews:     bound,
			SemanticBinder: c.semantics,
		}
		lp.pass.Record(ctx)

		current = target
	}

	if len(c.passes) == 0 {
		if c.outputPass == nil {
			return fmt.Errorf("chain: no passes loaded and no output pass configured")
		}
		c.outputPass.Record(PassRecordContext{
			FrameIndex:     frameIndex,
			Source:         current,
			Original:       original,
			Target:         finalTarget,
			TargetFormat:   c.targetFormat,
			OutputExtent:   finalExtent,
			SemanticBinder: c.semantics,
		})
	}

	return nil
}

// SwapFeedback flips every feedback pass's current/previous
// assignment; call once at the start of each frame before Record.
func (c *FilterChain) SwapFeedback() {
	for _, fb := range c.feedback {
		fb.Swap()
	}
}

// PushHistory enqueues this frame's Original image into the history
// ring, called once per frame after the final pass records.
func (c *FilterChain) PushHistory(original View) {
	if c.history != nil {
		c.history.Push(original)
	}
}

// HistoryDepth reports the currently configured history ring depth
// (0 when no loaded pass references OriginalHistoryK).
func (c *FilterChain) HistoryDepth() int {
	if c.history == nil {
		return 0
	}
	return c.history.Depth()
}

// DrainDeferred releases any deferred-destroy entries whose
// destroy-after frame has passed, mirroring §4.5's async preset swap
// drain step. currentFrame is the frame count at the top of the
// current Record call.
func (c *FilterChain) DrainDeferred(currentFrame uint64) {
	kept := c.deferredQueue[:0]
	for _, entry := range c.deferredQueue {
		if currentFrame > entry.destroyAfter {
			for _, p := range entry.passes {
				p.pass.Shutdown()
			}
			for _, fb := range entry.framebuffers {
				c.fbAllocator.Destroy(fb)
			}
			if c.textureLoader != nil {
				for _, v := range entry.textures {
					c.textureLoader.Destroy(v)
				}
			}
			continue
		}
		kept = append(kept, entry)
	}
	c.deferredQueue = kept
}

// scheduleDeferredDestroy enqueues the chain's current passes and
// framebuffers for release after currentFrame+syncDepth+1, per §4.5's
// "destroy after current_frame + sync_depth + 1" rule. If the queue
// is already at its cap, the entry is destroyed immediately instead
// and onOverflow is invoked with the resulting queue length.
func (c *FilterChain) scheduleDeferredDestroy(currentFrame uint64, passes []loadedPass, framebuffers []Framebuffer, textures map[string]View) {
	if len(c.deferredQueue) >= c.deferredQueueCap {
		for _, p := range passes {
			p.pass.Shutdown()
		}
		for _, fb := range framebuffers {
			c.fbAllocator.Destroy(fb)
		}
		if c.textureLoader != nil {
			for _, v := range textures {
				c.textureLoader.Destroy(v)
			}
		}
		c.onOverflow(len(c.deferredQueue))
		return
	}
	c.deferredQueue = append(c.deferredQueue, deferredDestroy{
		passes:       passes,
		framebuffers: framebuffers,
		textures:     textures,
		destroyAfter: currentFrame + uint64(c.syncDepth) + 1,
	})
}

// ReloadAsync installs newGraph/newPasses/newFramebuffers/newTextures
// as the "ready" replacement for the next Record call to pick up,
// implementing the publish half of §4.5's async preset swap. The
// caller is expected to have already built these off the render
// thread (e.g. via a goroutine calling buildGraph).
func (c *FilterChain) ReloadAsync(newGraph PresetGraph, newPasses []loadedPass, newFramebuffers []Framebuffer, newTextures map[string]View) {
	c.pendingNext.Store(&pendingChain{preset: newGraph, passes: newPasses, framebuffers: newFramebuffers, textures: newTextures})
}

// ApplyPendingReload checks for and installs a pending async reload,
// deferring destruction of the previous graph. Call at the top of
// every Record, before DrainDeferred.
func (c *FilterChain) ApplyPendingReload(currentFrame uint64) {
	next := c.pendingNext.Swap(nil)
	if next == nil {
		return
	}
	oldPasses, oldFramebuffers, oldTextures := c.passes, c.framebuffers, c.textures
	c.installGraph(next.preset, next.passes, next.framebuffers, next.textures)
	c.scheduleDeferredDestroy(currentFrame, oldPasses, oldFramebuffers, oldTextures)
}

// Shutdown releases every owned pass, framebuffer, and texture,
// including anything still sitting in the deferred-destroy queue.
func (c *FilterChain) Shutdown() {
	for _, p := range c.passes {
		p.pass.Shutdown()
	}
	for _, fb := range c.framebuffers {
		c.fbAllocator.Destroy(fb)
	}
	if c.textureLoader != nil {
		for _, v := range c.textures {
			c.textureLoader.Destroy(v)
		}
	}
	for _, entry := range c.deferredQueue {
		for _, p := range entry.passes {
			p.pass.Shutdown()
		}
		for _, fb := range entry.framebuffers {
			c.fbAllocator.Destroy(fb)
		}
		if c.textureLoader != nil {
			for _, v := range entry.textures {
				c.textureLoader.Destroy(v)
			}
		}
	}
	c.deferredQueue = nil
	if c.outputPass != nil {
		c.outputPass.Shutdown()
	}
	c.passes = nil
	c.framebuffers = nil
	c.frameCount = 0
}
