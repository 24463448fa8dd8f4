// Command goggles-layer is the producer-side shim: normally loaded
// into a target application as a hooked Vulkan layer, intercepting its
// surface/swapchain calls and exporting presented frames over
// CaptureWire. Here it runs standalone, exercising the wsi-proxy
// virtualization, frame dumping, and CaptureWire client paths end to
// end against a real GPU driver.
package main

import (
	"os"

	"github.com/rs/zerolog"

	"github.com/K1ngst0m/Goggles/capture/dump"
	"github.com/K1ngst0m/Goggles/capture/proxy"
	"github.com/K1ngst0m/Goggles/capture/wire"
	"github.com/K1ngst0m/Goggles/driver"
	_ "github.com/K1ngst0m/Goggles/driver/vk"
	"github.com/K1ngst0m/Goggles/internal/config"
	"github.com/K1ngst0m/Goggles/internal/logging"
)

// instanceKey identifies the single simulated VkInstance this process
// hooks; a real layer would key registry.GetOrCreate by the VkInstance
// handle it received in vkCreateInstance.
const instanceKey = "default"

func main() {
	cfg := config.LoadProducer()
	log := logging.New(os.Stderr, isTerminal(os.Stderr))

	if !cfg.ShouldUseWsiProxy() {
		log.Info().Msg("goggles-layer: GOGGLES_WSI_PROXY/GOGGLES_CAPTURE not both set, exiting")
		return
	}

	drivers := driver.Drivers()
	if len(drivers) == 0 {
		log.Fatal().Msg("goggles-layer: no GPU driver registered")
	}
	gpu, err := drivers[0].Open()
	if err != nil {
		log.Fatal().Err(err).Msg("goggles-layer: opening GPU driver")
	}
	defer drivers[0].Close()

	exporter, err := newVKExporter(gpu)
	if err != nil {
		log.Fatal().Err(err).Msg("goggles-layer: GPU lacks dma-buf export support")
	}

	registry := proxy.NewRegistry()
	virt := registry.GetOrCreate(instanceKey, func() *proxy.Virtualizer {
		return proxy.New(exporter, cfg.FPSLimit)
	})

	dumper := dump.New(cfg, os.Args[0], log)
	defer dumper.Close()

	client, err := dialCaptureServer()
	if err != nil {
		log.Fatal().Err(err).Msg("goggles-layer: connecting to capture socket")
	}
	defer client.Close()
	if err := client.SendHello(os.Args[0]); err != nil {
		log.Fatal().Err(err).Msg("goggles-layer: sending client hello")
	}

	surface := virt.CreateSurface(cfg.Width, cfg.Height)
	defer virt.DestroySurface(surface)

	format := proxy.SupportedFormats[0].Format
	swapchain, err := virt.CreateSwapchain(surface, format, cfg.Width, cfg.Height, 2)
	if err != nil {
		log.Fatal().Err(err).Msg("goggles-layer: creating virtual swapchain")
	}
	defer virt.DestroySwapchain(swapchain)

	runCaptureLoop(gpu, virt, swapchain, client, dumper, log)
}

func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}

// runCaptureLoop mirrors the hooked application's present loop: each
// iteration acquires the next virtual swapchain image (AcquireNextImage
// applies the configured fps-limit throttle itself), announces it over
// CaptureWire, optionally schedules a frame dump, and drains any
// pending control message from the host.
func runCaptureLoop(gpu driver.GPU, virt *proxy.Virtualizer, sc proxy.SwapchainHandle, client *captureClient, dumper *dump.Dumper, log zerolog.Logger) {
	var frameNumber uint64

	for {
		idx, err := virt.AcquireNextImage(sc)
		if err != nil {
			log.Warn().Err(err).Msg("goggles-layer: swapchain out of date, stopping capture loop")
			return
		}
		frameNumber++

		data, ok := virt.FrameData(sc, idx)
		if !ok {
			continue
		}

		meta := wire.FrameMetadata{
			Width: data.Width, Height: data.Height, Format: data.Format,
			Stride: data.Export.Stride, Offset: data.Export.Offset, Modifier: data.Export.Modifier,
			FrameNumber: frameNumber,
		}
		if err := client.SendFrameMetadata(meta, data.Export.Fd); err != nil {
			log.Warn().Err(err).Msg("goggles-layer: sending frame metadata")
		}

		scheduleDump(gpu, virt, sc, idx, data, frameNumber, dumper, log)

		if ctrl, ok := client.RecvControl(); ok {
			log.Debug().Uint32("flags", ctrl.Flags).Msg("goggles-layer: received control update")
		}
	}
}

// scheduleDump reads back and queues a frame dump when dumping is
// enabled and frameNumber falls within the configured range.
func scheduleDump(gpu driver.GPU, virt *proxy.Virtualizer, sc proxy.SwapchainHandle, idx uint32, data proxy.FrameData, frameNumber uint64, dumper *dump.Dumper, log zerolog.Logger) {
	if !dumper.IsEnabled() || !dumper.ShouldDumpFrame(frameNumber) {
		return
	}
	images, ok := virt.Images(sc)
	if !ok || int(idx) >= len(images) {
		return
	}
	img, ok := images[idx].(driver.Image)
	if !ok {
		return
	}
	pixels, err := readbackImage(gpu, img, data.Width, data.Height)
	if err != nil {
		log.Warn().Err(err).Msg("goggles-layer: frame readback for dump failed")
		return
	}
	dumper.Schedule(dump.Job{
		FrameNumber: frameNumber,
		Width:       data.Width,
		Height:      data.Height,
		Format:      data.Format,
		Source:      dump.SourceInfo{Stride: data.Export.Stride, Offset: data.Export.Offset, Modifier: data.Export.Modifier},
		IsBGRA:      true, // proxy.SupportedFormats only ever advertises B8G8R8A8 variants
		Pixels:      pixels,
	})
}
