// Command goggles-viewer is the viewer-side host process: it opens a
// GPU device and window, accepts one producer connection over
// CaptureWire, and runs every received frame through the configured
// filter chain before presenting it.
package main

import (
	"flag"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/K1ngst0m/Goggles/capture/server"
	"github.com/K1ngst0m/Goggles/chain"
	"github.com/K1ngst0m/Goggles/driver"
	_ "github.com/K1ngst0m/Goggles/driver/vk"
	"github.com/K1ngst0m/Goggles/internal/config"
	"github.com/K1ngst0m/Goggles/internal/logging"
	"github.com/K1ngst0m/Goggles/present"
)

func main() {
	cfg := parseFlags()
	log := logging.New(os.Stderr, isTerminal(os.Stderr))

	drivers := driver.Drivers()
	if len(drivers) == 0 {
		log.Fatal().Msg("goggles-viewer: no GPU driver registered")
	}
	gpu, err := drivers[0].Open()
	if err != nil {
		log.Fatal().Err(err).Msg("goggles-viewer: opening GPU driver")
	}
	defer drivers[0].Close()

	win, err := newXCBWindow("", 1280, 720, "Goggles")
	if err != nil {
		log.Fatal().Err(err).Msg("goggles-viewer: creating window")
	}
	defer win.Close()

	presenter, ok := gpu.(driver.Presenter)
	if !ok {
		log.Fatal().Msg("goggles-viewer: GPU does not support presentation")
	}
	sc, err := presenter.NewSwapchain(win, cfg.SyncDepth)
	if err != nil {
		log.Fatal().Err(err).Msg("goggles-viewer: creating swapchain")
	}
	defer sc.Destroy()

	recorder := present.NewRecordTarget()
	loader := fileShaderLoader{}
	factory := present.NewGPUPassFactory(gpu, loader, driver.Sampling{}, recorder, cfg.SyncDepth)
	fbAllocator := present.NewGPUFramebufferAllocator(gpu)
	textureLoader := present.NewGPUTextureLoader(gpu)

	outputPass, _, err := factory.CreatePass(chain.PassConfig{ShaderPath: "passthrough.slang"}, -1, sc.Format())
	if err != nil {
		log.Fatal().Err(err).Msg("goggles-viewer: building passthrough output pass")
	}
	defer outputPass.Shutdown()

	fc := chain.NewFilterChain(toChainFormat(sc.Format()), uint32(cfg.SyncDepth), outputPass, factory, fbAllocator, textureLoader)
	defer fc.Shutdown()

	if cfg.PresetPath != "" {
		if err := fc.LoadPreset(cfg.PresetPath); err != nil {
			log.Error().Err(err).Str("preset", cfg.PresetPath).Msg("goggles-viewer: loading preset, continuing in passthrough")
		}
	}

	importer, err := newVKImporter(gpu)
	if err != nil {
		log.Warn().Err(err).Msg("goggles-viewer: external image import unavailable, frames will be skipped")
	}
	sync, err := newVKSync(gpu)
	if err != nil {
		log.Warn().Err(err).Msg("goggles-viewer: cross-process sync unavailable, running unsynced")
	}

	backend := present.NewBackend(gpu, sc, fc, recorder, importer, sync, uint32(cfg.SyncDepth), log)
	defer backend.Shutdown()

	srv, err := server.Create(log)
	if err != nil {
		log.Fatal().Err(err).Msg("goggles-viewer: binding capture socket")
	}
	defer srv.Close()

	runHostLoop(srv, fc, backend, win, cfg, log)
}

func parseFlags() config.Viewer {
	var cfg config.Viewer
	flag.StringVar(&cfg.PresetPath, "preset", "", "filter chain preset path")
	flag.StringVar(&cfg.ScaleMode, "scale", "viewport", "scale mode: viewport|source|aspect")
	flag.IntVar(&cfg.IntegerScale, "integer-scale", 0, "force integer scaling factor (0 = disabled)")
	flag.IntVar(&cfg.SyncDepth, "sync-depth", 2, "frames in flight")
	flag.IntVar(&cfg.SocketTimeout, "poll-interval-ms", 4, "capture socket poll cadence in milliseconds")
	flag.Parse()
	return cfg
}

func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}

// toChainFormat maps the swapchain's real driver.PixelFmt back onto
// chain's local Format enum, the inverse of present.toPixelFmt,
// needed once here because FilterChain's constructor takes its
// target format in that local vocabulary.
func toChainFormat(f driver.PixelFmt) chain.Format {
	switch f {
	case driver.RGBA8un:
		return chain.FormatRGBA8UNorm
	case driver.RGBA16f:
		return chain.FormatRGBA16Float
	default:
		return chain.FormatRGBA8SRGB
	}
}

// runHostLoop drives §4.9's "poll capture socket, import, render,
// present" control flow (spec.md §2) once per iteration, at the
// configured poll cadence.
func runHostLoop(srv *server.Server, fc *chain.FilterChain, backend *present.Backend, win *xcbWindow, cfg config.Viewer, log zerolog.Logger) {
	interval := time.Duration(cfg.SocketTimeout) * time.Millisecond
	if interval <= 0 {
		interval = 4 * time.Millisecond
	}
	finalExtent := chain.Extent{Width: uint32(win.Width()), Height: uint32(win.Height())}

	var lastSeq uint64
	for {
		if srv.PollFrame() && srv.HasFrame() {
			if srv.SemaphoresUpdated() {
				ready, consumed := srv.SyncFds()
				if err := backend.ImportCrossProcessSemaphores(ready, consumed); err != nil {
					log.Warn().Err(err).Msg("goggles-viewer: importing cross-process semaphores")
				}
			}
			frame, seq, ok := srv.Latest(lastSeq)
			if !ok {
				time.Sleep(interval)
				continue
			}
			lastSeq = seq
			ext := present.ExternalFrame{
				Fd:          frame.Image.Fd,
				Width:       frame.Image.Width,
				Height:      frame.Image.Height,
				Stride:      frame.Image.Stride,
				Offset:      frame.Image.Offset,
				Format:      pixelFormatFromWire(frame.Image.Format),
				Modifier:    frame.Image.Modifier,
				FrameNumber: frame.FrameNumber,
			}
			sourceExtent := chain.Extent{Width: frame.Image.Width, Height: frame.Image.Height}
			if err := fc.EnsureFramebuffers(sourceExtent, finalExtent); err != nil {
				log.Error().Err(err).Msg("goggles-viewer: sizing filter chain framebuffers")
			}
			if err := backend.Render(ext, finalExtent, nil); err != nil {
				log.Error().Err(err).Msg("goggles-viewer: render")
			}
			if backend.NeedsResize() {
				backend.ClearNeedsResize()
			}
		}
		time.Sleep(interval)
	}
}

// pixelFormatFromWire maps the raw VkFormat-like value CaptureWire
// carries (opaque to capture/server and capture/wire, which never
// interpret it) onto driver's local PixelFmt enum. Only the two
// formats capture/proxy.SupportedFormats ever advertises to a
// producer are recognized; anything else falls back to the swapchain's
// own sRGB family.
func pixelFormatFromWire(f uint32) driver.PixelFmt {
	const (
		vkFormatB8G8R8A8UNorm = 44
		vkFormatB8G8R8A8SRGB  = 50
	)
	switch f {
	case vkFormatB8G8R8A8UNorm:
		return driver.RGBA8un
	case vkFormatB8G8R8A8SRGB:
		return driver.RGBA8sRGB
	default:
		return driver.RGBA8sRGB
	}
}
