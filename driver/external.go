// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package driver

import "time"

// ExternalHandle is an opaque, process-transferable handle to GPU
// memory or a timeline semaphore (a dma-buf fd or a sync-file fd on
// Linux). Ownership transfers to whichever side imports it: importing
// a dma-buf fd into a VkImage's memory closes the fd on success, the
// same contract capture/server.Image documents for the producer-side
// handle this type mirrors on the consumer side.
type ExternalHandle int

// ExternalImageDesc describes the image an ExternalHandle's memory
// backs, enough for ImportExternalImage to build a matching VkImage
// without a prior export call on this side.
type ExternalImageDesc struct {
	Format   PixelFmt
	Width    uint32
	Height   uint32
	Stride   uint32
	Offset   uint32
	Modifier uint64
}

// Memory is the device memory object backing an imported or
// exported Image.
type Memory interface {
	Destroyer
}

// TimelineSemaphore is an imported cross-process timeline semaphore,
// waited and signaled by value rather than by binary state.
type TimelineSemaphore interface {
	Destroyer
}

// ExternalGPU is the subset of a GPU capable of dma-buf memory and
// cross-process timeline semaphore interop (VK_EXT_external_memory_dma_buf,
// VK_KHR_external_memory_fd, VK_KHR_external_semaphore_fd,
// VK_KHR_timeline_semaphore). Callers type-assert for it and run
// without external import or sync when the assertion fails. driver/vk's
// GPU implements this interface whether or not these extensions were
// enabled at Driver.Open, so for it the assertion always succeeds.
//
// Grounded on original_source/src/render/backend/vulkan_backend.cpp and
// original_source/src/capture/vk_layer/vk_capture.{hpp,cpp}, the two
// sides of the original's dma-buf/timeline-semaphore interop.
// driver/vk/external.go carries the real cgo implementation; see
// DESIGN.md for how it is wired into cmd/goggles-layer (export side)
// and cmd/goggles-viewer (import side).
type ExternalGPU interface {
	// ImportExternalImage imports h's memory as a VkImage matching
	// desc, returning the image, its bound memory, and a default view.
	ImportExternalImage(h ExternalHandle, desc ExternalImageDesc) (Image, Memory, ImageView, error)

	// ExportExternalMemory exports m as a dma-buf handle usable by
	// another process, the consumer-side counterpart of a producer's
	// ImageExporter.CreateExportableImage.
	ExportExternalMemory(m Memory) (ExternalHandle, error)

	// ImportExternalTimelineSemaphore imports h as a timeline
	// semaphore.
	ImportExternalTimelineSemaphore(h ExternalHandle) (TimelineSemaphore, error)

	// WaitTimeline blocks until s reaches value or timeout elapses.
	WaitTimeline(s TimelineSemaphore, value uint64, timeout time.Duration) error

	// SignalTimeline signals s at value.
	SignalTimeline(s TimelineSemaphore, value uint64) error

	// NewExportableImage allocates a 2D image whose memory is backed
	// by a dma-buf the caller can hand to another process, combining
	// allocation and ExportExternalMemory into one call: Image never
	// exposes its backing Memory to a caller (see Image's doc
	// comment), so a producer-side exporter has no other way to reach
	// the memory object a plain GPU.NewImage call binds internally.
	NewExportableImage(pf PixelFmt, width, height uint32) (Image, ExternalHandle, ExportedLayout, error)
}

// ExportedLayout describes the dma-buf layout of an image allocated
// by ExternalGPU.NewExportableImage, the counterpart of
// ExternalImageDesc's Stride/Offset/Modifier fields on the export
// side.
type ExportedLayout struct {
	Stride   uint32
	Offset   uint32
	Modifier uint64
}
