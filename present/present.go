// Package present implements PresentationBackend (§4.9): the
// viewer-side graphics backend that owns the swapchain and per-frame
// fences/semaphores, imports the producer's external image each
// frame, coordinates the cross-process timeline wait/signal, and
// drives FilterChain + the output pass to build the final presented
// image.
//
// Grounded on original_source/src/render/presentation_backend.{hpp,cpp}
// (the render() per-frame algorithm: recreate-on-format-mismatch,
// reimport discipline, fence/acquire, bounded timeline wait, command
// recording, submit+signal, present/needs_resize) and driver/core.go +
// driver/present.go (the only GPU surface this package is allowed to
// depend on; see DESIGN.md for why the cgo driver/vk binding itself is
// never imported here).
package present

import (
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/K1ngst0m/Goggles/chain"
	"github.com/K1ngst0m/Goggles/driver"
	"github.com/K1ngst0m/Goggles/internal/xerr"
)

// crossProcessTimeout is the bounded wait §4.9 step 5 specifies for
// the imported "frame ready" timeline semaphore.
const crossProcessTimeout = 100 * time.Millisecond

// ExternalFrame describes one producer frame ready for import,
// mirroring capture/server.Frame/Image without this package taking a
// direct dependency on capture/server — the caller (cmd/goggles-viewer)
// is responsible for translating one into the other, the same
// decoupling chain draws against driver.
type ExternalFrame struct {
	Fd          int
	Width       uint32
	Height      uint32
	Stride      uint32
	Offset      uint32
	Format      driver.PixelFmt
	Modifier    uint64
	FrameNumber uint64
}

// ExternalImageImporter imports a producer's dma-buf-backed frame as
// a driver.Image + driver.ImageView pair, mirroring §4.9 step 3's
// "allocate image with dma-buf external-memory info, bind imported
// memory, create a view". A real implementation needs the
// VK_EXT_external_memory_dma_buf path in driver/vk, which this package
// never imports directly — see DESIGN.md for the boundary rationale,
// the same pattern capture/proxy.ImageExporter and
// compositor.Backend already establish.
type ExternalImageImporter interface {
	ImportImage(frame ExternalFrame) (Imported, error)
	ReleaseImage(Imported)
}

// Imported is one imported external image, returned by
// ExternalImageImporter and released (never reused) before the next
// import, per §4.9's reimport discipline.
type Imported struct {
	Image driver.Image
	View  driver.ImageView
}

// CrossProcessSync imports and waits/signals the timeline semaphores
// a producer session uses to hand off frame ownership, mirroring §4.9
// step 5 and the "frame ready"/"frame consumed" protocol in §5's
// ordering guarantees.
type CrossProcessSync interface {
	// ImportSemaphores imports the ready/consumed timeline
	// semaphore fds, replacing any previously imported pair.
	ImportSemaphores(readyFd, consumedFd int) error

	// WaitFrameReady blocks until the "frame ready" timeline
	// reaches value, or timeout elapses.
	WaitFrameReady(value uint64, timeout time.Duration) error

	// SignalFrameConsumed signals the "frame consumed" timeline at
	// value once this frame's sampling has been recorded.
	SignalFrameConsumed(value uint64) error
}

// Backend owns the swapchain, the filter chain, and the external
// import/sync boundaries, and drives one frame at a time through
// §4.9's render algorithm.
type Backend struct {
	gpu       driver.GPU
	swapchain driver.Swapchain

	chain    *chain.FilterChain
	recorder *recordTarget

	importer ExternalImageImporter
	sync     CrossProcessSync

	syncDepth  uint32
	frameIndex uint32
	frameCount uint32

	inFlight []chan error

	currentImport  Imported
	haveImport     bool
	syncActive     bool
	lastSignaled   uint64
	needsResize    bool
	swapchainFmt   driver.PixelFmt

	log zerolog.Logger
}

// NewBackend constructs a Backend around an already-created swapchain
// and filter chain. syncDepth is MAX_FRAMES_IN_FLIGHT.
func NewBackend(gpu driver.GPU, sc driver.Swapchain, fc *chain.FilterChain, recorder *recordTarget, importer ExternalImageImporter, sync CrossProcessSync, syncDepth uint32, log zerolog.Logger) *Backend {
	if syncDepth == 0 {
		syncDepth = 1
	}
	return &Backend{
		gpu:          gpu,
		swapchain:    sc,
		chain:        fc,
		recorder:     recorder,
		importer:     importer,
		sync:         sync,
		syncDepth:    syncDepth,
		inFlight:     make([]chan error, syncDepth),
		swapchainFmt: sc.Format(),
		log:          log,
	}
}

// formatFamily classifies a PixelFmt into the SRGB/UNORM family §4.9
// step 2 compares, so a producer switching color spaces triggers a
// swapchain + filter chain recreate instead of silently misrendering.
func formatFamily(f driver.PixelFmt) bool /* isSRGB */ {
	switch f {
	case driver.RGBA8sRGB, driver.BGRA8sRGB:
		return true
	default:
		return false
	}
}

// NeedsResize reports whether the last Render observed a suboptimal
// or out-of-date swapchain and the caller should recreate it (and any
// window-size-dependent state) before the next frame.
func (b *Backend) NeedsResize() bool { return b.needsResize }

// ClearNeedsResize resets the flag once the caller has handled it.
func (b *Backend) ClearNeedsResize() { b.needsResize = false }

// Render executes one iteration of §4.9's per-frame algorithm. A
// failure to import the external frame is non-fatal: the frame is
// skipped and the session continues, matching step 3's "non-fatal for
// the frame, skip rendering, keep the session alive".
func (b *Backend) Render(frame ExternalFrame, finalExtent chain.Extent, recordUI func(cb driver.CmdBuffer)) error {
	b.frameCount++

	// Step 1: pending chain swap + deferred destroys, then flip
	// feedback ping-pong slots for this frame.
	b.chain.ApplyPendingReload(uint64(b.frameCount))
	b.chain.DrainDeferred(uint64(b.frameCount))
	b.chain.SwapFeedback()

	// Step 2: recreate on format-family mismatch.
	if formatFamily(frame.Format) != formatFamily(b.swapchainFmt) {
		if err := b.swapchain.Recreate(); err != nil {
			return xerr.New(xerr.VulkanDeviceLost, "present: swapchain recreate on format mismatch: "+err.Error())
		}
		b.swapchainFmt = b.swapchain.Format()
	}

	// Step 3: reimport discipline — release any previous import
	// before importing this frame's.
	if b.importer == nil {
		b.log.Warn().Msg("present: no external image importer installed, skipping frame")
		return nil
	}
	if b.haveImport {
		b.importer.ReleaseImage(b.currentImport)
		b.haveImport = false
	}
	imported, err := b.importer.ImportImage(frame)
	if err != nil {
		b.log.Warn().Err(err).Msg("present: external image import failed, skipping frame")
		return nil
	}
	b.currentImport = imported
	b.haveImport = true

	// Step 4: wait the in-flight fence, acquire the next image.
	slot := b.frameIndex % b.syncDepth
	if ch := b.inFlight[slot]; ch != nil {
		if err := <-ch; err != nil {
			b.log.Error().Err(err).Msg("present: previous frame's command buffer failed")
		}
	}

	cb, err := b.gpu.NewCmdBuffer()
	if err != nil {
		return xerr.New(xerr.VulkanInitFailed, "present: new command buffer: "+err.Error())
	}
	if err := cb.Begin(); err != nil {
		return xerr.New(xerr.VulkanInitFailed, "present: cmd buffer begin: "+err.Error())
	}

	idx, err := b.swapchain.Next(cb)
	if err != nil {
		if errors.Is(err, driver.ErrSwapchain) {
			b.needsResize = true
		}
		return xerr.New(xerr.VulkanDeviceLost, "present: swapchain Next: "+err.Error())
	}

	// Step 5: bounded cross-process wait.
	if b.syncActive && frame.FrameNumber > 0 {
		if err := b.sync.WaitFrameReady(frame.FrameNumber, crossProcessTimeout); err != nil {
			b.log.Warn().Err(err).Msg("present: cross-process sync timed out, dropping for remainder of session")
			b.syncActive = false
		}
	}

	// Step 6: record the full command buffer.
	b.recorder.cb = cb
	views := b.swapchain.Views()
	target := views[idx]

	cb.Transition([]driver.Transition{
		{LayoutBefore: driver.LUndefined, LayoutAfter: driver.LShaderRead, IView: imported.View},
		{LayoutBefore: driver.LUndefined, LayoutAfter: driver.LColorTarget, IView: target},
	})

	original := GPUView{Image: imported.Image, View: imported.View}
	if err := b.chain.Record(b.frameCount, original, original, GPUView{View: target}, finalExtent); err != nil {
		return xerr.New(xerr.ShaderCompileFailed, "present: filter chain record: "+err.Error())
	}
	if recordUI != nil {
		recordUI(cb)
	}

	cb.Transition([]driver.Transition{
		{LayoutBefore: driver.LColorTarget, LayoutAfter: driver.LPresent, IView: target},
	})

	if err := cb.End(); err != nil {
		return xerr.New(xerr.VulkanDeviceLost, "present: cmd buffer end: "+err.Error())
	}

	// Step 7: submit, plus cross-process signal if warranted.
	done := make(chan error, 1)
	b.gpu.Commit([]driver.CmdBuffer{cb}, done)
	b.inFlight[slot] = done

	if b.syncActive && frame.FrameNumber > b.lastSignaled {
		if err := b.sync.SignalFrameConsumed(frame.FrameNumber); err != nil {
			b.log.Warn().Err(err).Msg("present: signaling frame-consumed timeline failed")
		}
		b.lastSignaled = frame.FrameNumber
	}

	b.chain.PushHistory(original)

	// Step 8: present, track suboptimal/out-of-date.
	if err := b.swapchain.Present(idx, cb); err != nil {
		if errors.Is(err, driver.ErrSwapchain) {
			b.needsResize = true
		} else {
			return xerr.New(xerr.VulkanDeviceLost, "present: swapchain Present: "+err.Error())
		}
	}
	b.frameIndex = (b.frameIndex + 1) % b.syncDepth
	return nil
}

// ImportCrossProcessSemaphores installs newly received timeline
// semaphore fds and re-enables cross-process sync, called whenever
// the capture source reports SemaphoresUpdated.
func (b *Backend) ImportCrossProcessSemaphores(readyFd, consumedFd int) error {
	if b.sync == nil {
		return nil
	}
	if err := b.sync.ImportSemaphores(readyFd, consumedFd); err != nil {
		return xerr.New(xerr.CaptureInitFailed, "present: import cross-process semaphores: "+err.Error())
	}
	b.syncActive = true
	b.lastSignaled = 0
	return nil
}

// Shutdown releases the filter chain and the last imported frame, if
// any. The caller still owns gpu/swapchain lifetime.
func (b *Backend) Shutdown() {
	if b.haveImport {
		b.importer.ReleaseImage(b.currentImport)
		b.haveImport = false
	}
	b.chain.Shutdown()
}
