// Package proxy implements WsiVirtualizer (§4.4): the producer-side
// component that intercepts a hooked application's window-system
// surface and swapchain creation, substituting synthetic handles
// backed by dma-buf-exportable images instead of a real on-screen
// swapchain.
//
// Grounded on
// original_source/src/capture/vk_layer/wsi_virtual.{hpp,cpp}. The
// original is a process-wide Meyers singleton (WsiVirtualizer::instance());
// per §9's redesign note against global singletons, this package
// instead keys a Virtualizer per hooked Vulkan instance in a Registry,
// since a single process can in principle host more than one
// VkInstance.
package proxy

import (
	"sync"
	"time"
)

// startHandle mirrors next_handle_'s starting value: a range high
// enough that a synthetic handle can never collide with a real driver
// handle drawn from a small counter or a heap pointer.
const startHandle = 0x7000000000000000

// SurfaceHandle and SwapchainHandle are opaque synthetic handles
// standing in for VkSurfaceKHR/VkSwapchainKHR.
type SurfaceHandle uint64
type SwapchainHandle uint64

// Surface is a virtualized presentation target; the original only
// ever reads width/height back, so no instance/device owner is
// tracked beyond what the caller already has context for.
type Surface struct {
	Width  uint32
	Height uint32
}

// SurfaceCapabilities mirrors the fixed VkSurfaceCapabilitiesKHR the
// original synthesizes: a 2-3 image count range at a single fixed
// extent.
type SurfaceCapabilities struct {
	MinImageCount uint32
	MaxImageCount uint32
	Width, Height uint32
}

// SurfaceFormat mirrors one VkSurfaceFormatKHR entry. Format and
// ColorSpace carry the caller's own VkFormat/VkColorSpaceKHR integer
// values; this package does not depend on a Vulkan binding.
type SurfaceFormat struct {
	Format     uint32
	ColorSpace uint32
}

// PresentMode mirrors one VkPresentModeKHR value.
type PresentMode uint32

// SupportedFormats and SupportedPresentModes are the fixed lists
// get_surface_formats/get_surface_present_modes report, ported
// verbatim (two entries each, in this order).
var (
	SupportedFormats = []SurfaceFormat{
		{Format: FormatB8G8R8A8SRGB, ColorSpace: ColorSpaceSRGBNonlinear},
		{Format: FormatB8G8R8A8UNorm, ColorSpace: ColorSpaceSRGBNonlinear},
	}
	SupportedPresentModes = []PresentMode{PresentModeFIFO, PresentModeImmediate}
)

// The subset of VkFormat/VkColorSpaceKHR/VkPresentModeKHR values this
// package's synthesized capabilities reference, named locally so
// callers outside this package never need to import a Vulkan binding
// just to compare against them.
const (
	FormatB8G8R8A8SRGB  uint32 = 50
	FormatB8G8R8A8UNorm uint32 = 44

	ColorSpaceSRGBNonlinear uint32 = 0

	PresentModeFIFO      PresentMode = 2
	PresentModeImmediate PresentMode = 0
)

// ExportedImage carries the dma-buf handle and layout of one
// swapchain image, ready to hand to CaptureWire as a TextureData/
// FrameMetadata message.
type ExportedImage struct {
	Fd       int
	Stride   uint32
	Offset   uint32
	Modifier uint64
}

// ImageHandle is an opaque per-backend image handle (a VkImage in
// practice); this package never interprets it, only stores and
// returns it.
type ImageHandle any

// ImageExporter creates and destroys the dma-buf-exportable images
// backing a virtual swapchain. A real implementation allocates a
// VK_EXTERNAL_MEMORY_HANDLE_TYPE_DMA_BUF_BIT_EXT image on the hooked
// application's VkDevice and exports its memory; that call sequence
// needs the cgo Vulkan binding in driver/vk and the specific
// VkDevice/VkPhysicalDevice the layer attached to, neither of which
// this package has or should have, so it is injected here. See
// DESIGN.md for why the boundary is drawn at this interface instead
// of importing driver/vk directly.
type ImageExporter interface {
	CreateExportableImage(format uint32, width, height uint32) (ImageHandle, ExportedImage, error)
	DestroyImage(ImageHandle)
}

type swapchain struct {
	surface      SurfaceHandle
	format       uint32
	width        uint32
	height       uint32
	images       []ImageHandle
	exports      []ExportedImage
	currentIndex uint32
	lastAcquire  time.Time
}

// Virtualizer holds every virtual surface/swapchain created for one
// hooked Vulkan instance.
type Virtualizer struct {
	mu         sync.Mutex
	exporter   ImageExporter
	fpsLimit   uint32
	nextHandle uint64

	surfaces   map[SurfaceHandle]Surface
	swapchains map[SwapchainHandle]*swapchain

	now   func() time.Time
	sleep func(time.Duration)
}

// New constructs a Virtualizer. fpsLimit of 0 disables AcquireNextImage's
// throttling, matching get_fps_limit's "0 = unlimited" convention.
func New(exporter ImageExporter, fpsLimit uint32) *Virtualizer {
	return &Virtualizer{
		exporter:   exporter,
		fpsLimit:   fpsLimit,
		nextHandle: startHandle,
		surfaces:   make(map[SurfaceHandle]Surface),
		swapchains: make(map[SwapchainHandle]*swapchain),
		now:        time.Now,
		sleep:      time.Sleep,
	}
}

func (v *Virtualizer) generateHandle() uint64 {
	h := v.nextHandle
	v.nextHandle++
	return h
}

// CreateSurface registers a new virtual surface at the given
// dimensions, mirroring create_surface's env-derived default extent
// (callers read GOGGLES_WIDTH/GOGGLES_HEIGHT via internal/config and
// pass the result in, rather than this package re-reading the
// environment itself).
func (v *Virtualizer) CreateSurface(width, height uint32) SurfaceHandle {
	v.mu.Lock()
	defer v.mu.Unlock()
	h := SurfaceHandle(v.generateHandle())
	v.surfaces[h] = Surface{Width: width, Height: height}
	return h
}

// DestroySurface releases a virtual surface. Destroying an unknown
// handle is a no-op.
func (v *Virtualizer) DestroySurface(h SurfaceHandle) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.surfaces, h)
}

// IsVirtualSurface reports whether h was created by this Virtualizer.
func (v *Virtualizer) IsVirtualSurface(h SurfaceHandle) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.surfaces[h]
	return ok
}

// Surface returns the surface registered at h.
func (v *Virtualizer) Surface(h SurfaceHandle) (Surface, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	s, ok := v.surfaces[h]
	return s, ok
}

// SurfaceCapabilities returns the synthesized capabilities for h,
// mirroring get_surface_capabilities's fixed 2-3 image count range at
// the surface's single supported extent.
func (v *Virtualizer) SurfaceCapabilities(h SurfaceHandle) (SurfaceCapabilities, bool) {
	s, ok := v.Surface(h)
	if !ok {
		return SurfaceCapabilities{}, false
	}
	return SurfaceCapabilities{
		MinImageCount: 2,
		MaxImageCount: 3,
		Width:         s.Width,
		Height:        s.Height,
	}, true
}

// clampImageCount mirrors create_swapchain's "min 2, max 3" clamp.
func clampImageCount(requested uint32) uint32 {
	if requested < 2 {
		return 2
	}
	if requested > 3 {
		return 3
	}
	return requested
}

// CreateSwapchain allocates a virtual swapchain with clampImageCount(minImageCount)
// exportable images via the configured ImageExporter, mirroring
// create_swapchain/create_exportable_images.
func (v *Virtualizer) CreateSwapchain(surface SurfaceHandle, format uint32, width, height, minImageCount uint32) (SwapchainHandle, error) {
	count := clampImageCount(minImageCount)

	images := make([]ImageHandle, 0, count)
	exports := make([]ExportedImage, 0, count)
	for i := uint32(0); i < count; i++ {
		img, exp, err := v.exporter.CreateExportableImage(format, width, height)
		if err != nil {
			for _, created := range images {
				v.exporter.DestroyImage(created)
			}
			return 0, err
		}
		images = append(images, img)
		exports = append(exports, exp)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	h := SwapchainHandle(v.generateHandle())
	v.swapchains[h] = &swapchain{
		surface: surface,
		format:  format,
		width:   width,
		height:  height,
		images:  images,
		exports: exports,
	}
	return h, nil
}

// DestroySwapchain releases a virtual swapchain's images via the
// configured ImageExporter. Destroying an unknown handle is a no-op.
func (v *Virtualizer) DestroySwapchain(h SwapchainHandle) {
	v.mu.Lock()
	swap, ok := v.swapchains[h]
	if ok {
		delete(v.swapchains, h)
	}
	v.mu.Unlock()

	if !ok {
		return
	}
	for _, img := range swap.images {
		v.exporter.DestroyImage(img)
	}
}

// IsVirtualSwapchain reports whether h was created by this Virtualizer.
func (v *Virtualizer) IsVirtualSwapchain(h SwapchainHandle) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.swapchains[h]
	return ok
}

// Images returns the backend image handles of swapchain h, mirroring
// get_swapchain_images.
func (v *Virtualizer) Images(h SwapchainHandle) ([]ImageHandle, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	swap, ok := v.swapchains[h]
	if !ok {
		return nil, false
	}
	out := make([]ImageHandle, len(swap.images))
	copy(out, swap.images)
	return out, true
}

// ErrOutOfDate reports that the swapchain handle passed to
// AcquireNextImage/FrameData no longer exists, mirroring
// VK_ERROR_OUT_OF_DATE_KHR.
type ErrOutOfDate struct{ Handle SwapchainHandle }

func (e ErrOutOfDate) Error() string { return "proxy: swapchain is out of date" }

// AcquireNextImage advances swapchain h's round-robin image index,
// blocking first if fpsLimit throttling requires it, mirroring
// acquire_next_image (the semaphore/fence signal step is the caller's
// responsibility in Go: it happens via whatever the caller submits to
// driver.CmdBuffer, not inside this package).
func (v *Virtualizer) AcquireNextImage(h SwapchainHandle) (uint32, error) {
	if v.fpsLimit > 0 {
		v.mu.Lock()
		swap, ok := v.swapchains[h]
		if !ok {
			v.mu.Unlock()
			return 0, ErrOutOfDate{Handle: h}
		}
		last := swap.lastAcquire
		v.mu.Unlock()

		frameDuration := time.Second / time.Duration(v.fpsLimit)
		next := last.Add(frameDuration)
		if now := v.now(); now.Before(next) {
			v.sleep(next.Sub(now))
		}
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	swap, ok := v.swapchains[h]
	if !ok {
		return 0, ErrOutOfDate{Handle: h}
	}
	idx := swap.currentIndex
	swap.currentIndex = (idx + 1) % uint32(len(swap.images))
	swap.lastAcquire = v.now()
	return idx, nil
}

// FrameData mirrors get_frame_data: the geometry and export info of
// swapchain h's image at imageIndex.
type FrameData struct {
	Width, Height uint32
	Format        uint32
	Export        ExportedImage
}

func (v *Virtualizer) FrameData(h SwapchainHandle, imageIndex uint32) (FrameData, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	swap, ok := v.swapchains[h]
	if !ok || int(imageIndex) >= len(swap.exports) {
		return FrameData{}, false
	}
	return FrameData{
		Width:  swap.width,
		Height: swap.height,
		Format: swap.format,
		Export: swap.exports[imageIndex],
	}, true
}
