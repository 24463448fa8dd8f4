package main

import (
	"fmt"

	"github.com/K1ngst0m/Goggles/capture/proxy"
	"github.com/K1ngst0m/Goggles/driver"
)

// vkExporter adapts driver.ExternalGPU to proxy.ImageExporter,
// allocating each virtual swapchain image as a dma-buf-exportable
// VkImage on the hooked application's device.
type vkExporter struct {
	ext driver.ExternalGPU
}

// newVKExporter returns a vkExporter, or an error if gpu does not
// implement driver.ExternalGPU. Without it, this process cannot back
// a virtual swapchain with exportable memory at all, so the caller
// treats this as fatal to wsi-proxy mode rather than degrading it.
func newVKExporter(gpu driver.GPU) (*vkExporter, error) {
	ext, ok := gpu.(driver.ExternalGPU)
	if !ok {
		return nil, fmt.Errorf("goggles-layer: GPU does not support dma-buf memory export")
	}
	return &vkExporter{ext: ext}, nil
}

func (e *vkExporter) CreateExportableImage(format uint32, width, height uint32) (proxy.ImageHandle, proxy.ExportedImage, error) {
	img, handle, layout, err := e.ext.NewExportableImage(pixelFmtFromVk(format), width, height)
	if err != nil {
		return nil, proxy.ExportedImage{}, err
	}
	return img, proxy.ExportedImage{
		Fd:       int(handle),
		Stride:   layout.Stride,
		Offset:   layout.Offset,
		Modifier: layout.Modifier,
	}, nil
}

func (e *vkExporter) DestroyImage(h proxy.ImageHandle) {
	if img, ok := h.(driver.Image); ok {
		img.Destroy()
	}
}

// pixelFmtFromVk maps the VkFormat-like value the Virtualizer hands
// CreateExportableImage (one of proxy.SupportedFormats) onto driver's
// local PixelFmt enum, the producer-side inverse of
// cmd/goggles-viewer's pixelFormatFromWire.
func pixelFmtFromVk(f uint32) driver.PixelFmt {
	switch f {
	case proxy.FormatB8G8R8A8UNorm:
		return driver.RGBA8un
	default:
		return driver.RGBA8sRGB
	}
}
