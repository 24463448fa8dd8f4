// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

// #include <stdlib.h>
// #include <proc.h>
import "C"

import (
	"errors"
	"time"
	"unsafe"

	"github.com/K1ngst0m/Goggles/driver"
)

// Destroy deallocates the memory, satisfying driver.Memory for the
// handle ImportExternalImage hands back. Memory bound internally by
// NewImage/NewBuffer is freed through the owning Image/Buffer's own
// Destroy instead; this path exists only for external-memory callers.
func (m *memory) Destroy() { m.free() }

// timelineSemaphore implements driver.TimelineSemaphore.
type timelineSemaphore struct {
	d   *Driver
	sem C.VkSemaphore
}

// Destroy destroys the semaphore.
func (s *timelineSemaphore) Destroy() {
	if s == nil {
		return
	}
	if s.d != nil {
		C.vkDestroySemaphore(s.d.dev, s.sem, nil)
	}
	*s = timelineSemaphore{}
}

// NewExportableImage allocates a 2D, single-sample, single-mip,
// single-layer image whose memory is linear-tiled and dma-buf
// exportable. Linear tiling sidesteps negotiating a DRM format
// modifier with the consumer process, the same simplification
// original_source/src/capture/vk_layer/vk_capture.cpp's basic export
// path makes; driver.ExternalGPU's doc comment records this as the
// method a producer-side exporter uses in place of a bare GPU.NewImage
// call, since Image never exposes the Memory object a plain image
// binds internally.
func (d *Driver) NewExportableImage(pf driver.PixelFmt, width, height uint32) (driver.Image, driver.ExternalHandle, driver.ExportedLayout, error) {
	format := convPixelFmt(pf)
	aspect := aspectOf(pf)

	extImgInfo := C.VkExternalMemoryImageCreateInfo{
		sType:       C.VK_STRUCTURE_TYPE_EXTERNAL_MEMORY_IMAGE_CREATE_INFO,
		handleTypes: C.VK_EXTERNAL_MEMORY_HANDLE_TYPE_DMA_BUF_BIT_EXT,
	}
	info := C.VkImageCreateInfo{
		sType:     C.VK_STRUCTURE_TYPE_IMAGE_CREATE_INFO,
		pNext:     unsafe.Pointer(&extImgInfo),
		imageType: C.VK_IMAGE_TYPE_2D,
		format:    format,
		extent: C.VkExtent3D{
			width:  C.uint32_t(width),
			height: C.uint32_t(height),
			depth:  1,
		},
		mipLevels:     1,
		arrayLayers:   1,
		samples:       C.VK_SAMPLE_COUNT_1_BIT,
		tiling:        C.VK_IMAGE_TILING_LINEAR,
		usage:         C.VK_IMAGE_USAGE_TRANSFER_SRC_BIT | C.VK_IMAGE_USAGE_TRANSFER_DST_BIT | C.VK_IMAGE_USAGE_SAMPLED_BIT,
		sharingMode:   C.VK_SHARING_MODE_EXCLUSIVE,
		initialLayout: C.VK_IMAGE_LAYOUT_UNDEFINED,
	}
	var img C.VkImage
	if err := checkResult(C.vkCreateImage(d.dev, &info, nil, &img)); err != nil {
		return nil, 0, driver.ExportedLayout{}, err
	}

	var req C.VkMemoryRequirements
	C.vkGetImageMemoryRequirements(d.dev, img, &req)
	typ := d.selectMemory(uint(req.memoryTypeBits), C.VK_MEMORY_PROPERTY_DEVICE_LOCAL_BIT)
	if typ == -1 {
		typ = d.selectMemory(uint(req.memoryTypeBits), 0)
	}
	if typ == -1 {
		C.vkDestroyImage(d.dev, img, nil)
		return nil, 0, driver.ExportedLayout{}, errors.New("vk: no suitable memory type for exportable image")
	}

	exportInfo := C.VkExportMemoryAllocateInfo{
		sType:       C.VK_STRUCTURE_TYPE_EXPORT_MEMORY_ALLOCATE_INFO,
		handleTypes: C.VK_EXTERNAL_MEMORY_HANDLE_TYPE_DMA_BUF_BIT_EXT,
	}
	allocInfo := C.VkMemoryAllocateInfo{
		sType:           C.VK_STRUCTURE_TYPE_MEMORY_ALLOCATE_INFO,
		pNext:           unsafe.Pointer(&exportInfo),
		allocationSize:  req.size,
		memoryTypeIndex: C.uint32_t(typ),
	}
	var mem C.VkDeviceMemory
	if err := checkResult(C.vkAllocateMemory(d.dev, &allocInfo, nil, &mem)); err != nil {
		C.vkDestroyImage(d.dev, img, nil)
		return nil, 0, driver.ExportedLayout{}, err
	}
	heap := int(d.mprop.memoryTypes[typ].heapIndex)
	d.mused[heap] += int64(req.size)
	m := &memory{d: d, size: int64(req.size), mem: mem, typ: typ, heap: heap}

	if err := checkResult(C.vkBindImageMemory(d.dev, img, mem, 0)); err != nil {
		m.free()
		C.vkDestroyImage(d.dev, img, nil)
		return nil, 0, driver.ExportedLayout{}, err
	}
	m.bound = true

	getFdInfo := C.VkMemoryGetFdInfoKHR{
		sType:      C.VK_STRUCTURE_TYPE_MEMORY_GET_FD_INFO_KHR,
		memory:     mem,
		handleType: C.VK_EXTERNAL_MEMORY_HANDLE_TYPE_DMA_BUF_BIT_EXT,
	}
	var fd C.int
	if err := checkResult(C.vkGetMemoryFdKHR(d.dev, &getFdInfo, &fd)); err != nil {
		m.free()
		C.vkDestroyImage(d.dev, img, nil)
		return nil, 0, driver.ExportedLayout{}, err
	}

	subres := C.VkImageSubresource{aspectMask: C.VK_IMAGE_ASPECT_COLOR_BIT}
	var layout C.VkSubresourceLayout
	C.vkGetImageSubresourceLayout(d.dev, img, &subres, &layout)

	im := &image{
		m:   m,
		img: img,
		fmt: format,
		subres: C.VkImageSubresourceRange{
			aspectMask: aspect,
			levelCount: 1,
			layerCount: 1,
		},
		layout: info.initialLayout,
	}
	if err := im.transition(); err != nil {
		im.Destroy()
		return nil, 0, driver.ExportedLayout{}, err
	}

	return im, driver.ExternalHandle(fd), driver.ExportedLayout{
		Stride:   uint32(layout.rowPitch),
		Offset:   uint32(layout.offset),
		Modifier: 0, // DRM_FORMAT_MOD_LINEAR
	}, nil
}

// ImportExternalImage imports h's memory as a linear-tiled VkImage
// matching desc, the consumer-side counterpart of
// NewExportableImage/a producer's ImageExporter.CreateExportableImage.
// A successful import transfers ownership of h to the returned image's
// memory, per ExternalHandle's documented contract.
func (d *Driver) ImportExternalImage(h driver.ExternalHandle, desc driver.ExternalImageDesc) (driver.Image, driver.Memory, driver.ImageView, error) {
	format := convPixelFmt(desc.Format)
	aspect := aspectOf(desc.Format)

	extImgInfo := C.VkExternalMemoryImageCreateInfo{
		sType:       C.VK_STRUCTURE_TYPE_EXTERNAL_MEMORY_IMAGE_CREATE_INFO,
		handleTypes: C.VK_EXTERNAL_MEMORY_HANDLE_TYPE_DMA_BUF_BIT_EXT,
	}
	info := C.VkImageCreateInfo{
		sType:     C.VK_STRUCTURE_TYPE_IMAGE_CREATE_INFO,
		pNext:     unsafe.Pointer(&extImgInfo),
		imageType: C.VK_IMAGE_TYPE_2D,
		format:    format,
		extent: C.VkExtent3D{
			width:  C.uint32_t(desc.Width),
			height: C.uint32_t(desc.Height),
			depth:  1,
		},
		mipLevels:     1,
		arrayLayers:   1,
		samples:       C.VK_SAMPLE_COUNT_1_BIT,
		tiling:        C.VK_IMAGE_TILING_LINEAR,
		usage:         C.VK_IMAGE_USAGE_TRANSFER_SRC_BIT | C.VK_IMAGE_USAGE_TRANSFER_DST_BIT | C.VK_IMAGE_USAGE_SAMPLED_BIT,
		sharingMode:   C.VK_SHARING_MODE_EXCLUSIVE,
		initialLayout: C.VK_IMAGE_LAYOUT_UNDEFINED,
	}
	var img C.VkImage
	if err := checkResult(C.vkCreateImage(d.dev, &info, nil, &img)); err != nil {
		return nil, nil, nil, err
	}

	var req C.VkMemoryRequirements
	C.vkGetImageMemoryRequirements(d.dev, img, &req)
	typ := d.selectMemory(uint(req.memoryTypeBits), C.VK_MEMORY_PROPERTY_DEVICE_LOCAL_BIT)
	if typ == -1 {
		typ = d.selectMemory(uint(req.memoryTypeBits), 0)
	}
	if typ == -1 {
		C.vkDestroyImage(d.dev, img, nil)
		return nil, nil, nil, errors.New("vk: no suitable memory type for imported image")
	}

	importInfo := C.VkImportMemoryFdInfoKHR{
		sType:      C.VK_STRUCTURE_TYPE_IMPORT_MEMORY_FD_INFO_KHR,
		handleType: C.VK_EXTERNAL_MEMORY_HANDLE_TYPE_DMA_BUF_BIT_EXT,
		fd:         C.int(h),
	}
	allocInfo := C.VkMemoryAllocateInfo{
		sType:           C.VK_STRUCTURE_TYPE_MEMORY_ALLOCATE_INFO,
		pNext:           unsafe.Pointer(&importInfo),
		allocationSize:  req.size,
		memoryTypeIndex: C.uint32_t(typ),
	}
	var mem C.VkDeviceMemory
	if err := checkResult(C.vkAllocateMemory(d.dev, &allocInfo, nil, &mem)); err != nil {
		C.vkDestroyImage(d.dev, img, nil)
		return nil, nil, nil, err
	}
	heap := int(d.mprop.memoryTypes[typ].heapIndex)
	d.mused[heap] += int64(req.size)
	m := &memory{d: d, size: int64(req.size), mem: mem, typ: typ, heap: heap}

	if err := checkResult(C.vkBindImageMemory(d.dev, img, mem, 0)); err != nil {
		m.free()
		C.vkDestroyImage(d.dev, img, nil)
		return nil, nil, nil, err
	}
	m.bound = true

	im := &image{
		m:   m,
		img: img,
		fmt: format,
		subres: C.VkImageSubresourceRange{
			aspectMask: aspect,
			levelCount: 1,
			layerCount: 1,
		},
		layout: info.initialLayout,
	}
	if err := im.transition(); err != nil {
		im.Destroy()
		return nil, nil, nil, err
	}

	iv, err := im.NewView(driver.IView2D, 0, 1, 0, 1)
	if err != nil {
		im.Destroy()
		return nil, nil, nil, err
	}
	return im, m, iv, nil
}

// ExportExternalMemory exports m as a dma-buf handle. m must have been
// allocated with NewExportableImage; exporting memory that was not
// allocated for export is a Vulkan validation error the driver
// surfaces as checkResult's returned error.
func (d *Driver) ExportExternalMemory(m driver.Memory) (driver.ExternalHandle, error) {
	mm := m.(*memory)
	info := C.VkMemoryGetFdInfoKHR{
		sType:      C.VK_STRUCTURE_TYPE_MEMORY_GET_FD_INFO_KHR,
		memory:     mm.mem,
		handleType: C.VK_EXTERNAL_MEMORY_HANDLE_TYPE_DMA_BUF_BIT_EXT,
	}
	var fd C.int
	if err := checkResult(C.vkGetMemoryFdKHR(d.dev, &info, &fd)); err != nil {
		return 0, err
	}
	return driver.ExternalHandle(fd), nil
}

// ImportExternalTimelineSemaphore creates a new timeline semaphore and
// imports h into it. A successful import consumes h.
func (d *Driver) ImportExternalTimelineSemaphore(h driver.ExternalHandle) (driver.TimelineSemaphore, error) {
	typeInfo := C.VkSemaphoreTypeCreateInfo{
		sType:         C.VK_STRUCTURE_TYPE_SEMAPHORE_TYPE_CREATE_INFO,
		semaphoreType: C.VK_SEMAPHORE_TYPE_TIMELINE,
	}
	info := C.VkSemaphoreCreateInfo{
		sType: C.VK_STRUCTURE_TYPE_SEMAPHORE_CREATE_INFO,
		pNext: unsafe.Pointer(&typeInfo),
	}
	var sem C.VkSemaphore
	if err := checkResult(C.vkCreateSemaphore(d.dev, &info, nil, &sem)); err != nil {
		return nil, err
	}
	importInfo := C.VkImportSemaphoreFdInfoKHR{
		sType:      C.VK_STRUCTURE_TYPE_IMPORT_SEMAPHORE_FD_INFO_KHR,
		semaphore:  sem,
		handleType: C.VK_EXTERNAL_SEMAPHORE_HANDLE_TYPE_OPAQUE_FD_BIT,
		fd:         C.int(h),
	}
	if err := checkResult(C.vkImportSemaphoreFdKHR(d.dev, &importInfo)); err != nil {
		C.vkDestroySemaphore(d.dev, sem, nil)
		return nil, err
	}
	return &timelineSemaphore{d: d, sem: sem}, nil
}

// WaitTimeline blocks the calling goroutine (not just the GPU queue)
// until s reaches value or timeout elapses. A non-positive timeout
// polls s without blocking.
func (d *Driver) WaitTimeline(s driver.TimelineSemaphore, value uint64, timeout time.Duration) error {
	ts := s.(*timelineSemaphore)
	cvalue := C.uint64_t(value)
	info := C.VkSemaphoreWaitInfo{
		sType:          C.VK_STRUCTURE_TYPE_SEMAPHORE_WAIT_INFO,
		semaphoreCount: 1,
		pSemaphores:    &ts.sem,
		pValues:        &cvalue,
	}
	var ns int64
	if timeout > 0 {
		ns = timeout.Nanoseconds()
	}
	return checkResult(C.vkWaitSemaphores(d.dev, &info, C.uint64_t(ns)))
}

// SignalTimeline signals s at value.
func (d *Driver) SignalTimeline(s driver.TimelineSemaphore, value uint64) error {
	ts := s.(*timelineSemaphore)
	info := C.VkSemaphoreSignalInfo{
		sType:     C.VK_STRUCTURE_TYPE_SEMAPHORE_SIGNAL_INFO,
		semaphore: ts.sem,
		value:     C.uint64_t(value),
	}
	return checkResult(C.vkSignalSemaphore(d.dev, &info))
}
