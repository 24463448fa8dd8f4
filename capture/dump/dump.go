// Package dump implements FrameDumper (§4.3): an opt-in, env-driven
// facility that writes selected captured frames to disk as PPM images
// alongside a plain-text ".desc" sidecar describing their source
// geometry.
//
// Grounded on original_source/src/capture/vk_layer/frame_dump.cpp.
// The original schedules an asynchronous GPU buffer copy and polls a
// fence to know when the mapped bytes are ready to write; in Go, the
// GPU copy itself belongs to the present package (it owns the
// driver.GPU handle), which hands this package already-mapped RGBA8
// pixels. Dumper owns only what frame_dump.cpp's write_ppm_file/
// write_desc_file/should_dump_frame/parse_env_config do: frame-range
// selection, queuing, and the file writers, draining the queue on a
// dedicated goroutine instead of polling a fence from the render
// loop.
package dump

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/K1ngst0m/Goggles/internal/config"
	"github.com/K1ngst0m/Goggles/internal/ring"
)

// queueCapacity matches the original's util::SPSCQueue<DumpJob>{64}.
const queueCapacity = 64

// Range is an inclusive frame-number range parsed from
// GOGGLES_DUMP_FRAME_RANGE, e.g. "8-13" or a single frame "5"
// (begin == end).
type Range struct {
	Begin, End uint64
}

// SourceInfo carries the capture texture's layout, written verbatim
// into the .desc sidecar so a consumer can reinterpret the dump
// without guessing stride/offset/modifier.
type SourceInfo struct {
	Stride   uint32
	Offset   uint32
	Modifier uint64
}

// Job is one frame queued for writing. Pixels holds tightly packed
// RGBA8 data, Width*Height*4 bytes; IsBGRA indicates the source
// format's channel order needs swapping to RGB on write, matching
// is_supported_dump_format's handling of the B8G8R8A8 formats.
type Job struct {
	FrameNumber uint64
	Width       uint32
	Height      uint32
	Format      uint32 // VkFormat, written to the .desc sidecar only
	Source      SourceInfo
	IsBGRA      bool
	Pixels      []byte
}

// Dumper schedules and writes frame dumps. It must be created with
// New and stopped with Close.
type Dumper struct {
	enabled     bool
	dir         string
	processName string
	ranges      []Range

	queue   *ring.Queue[Job]
	dropped atomic.Uint64
	done    chan struct{}
	log     zerolog.Logger
}

// New constructs a Dumper from the producer-side environment
// configuration. When cfg.DumpDir is empty, dumping is disabled and
// Schedule always reports false without allocating a queue or
// spawning a worker, matching parse_env_config's enabled_ = false
// default.
func New(cfg config.Producer, processName string, log zerolog.Logger) *Dumper {
	d := &Dumper{
		log: log,
	}
	if cfg.DumpDir == "" {
		return d
	}

	ranges, err := ParseRanges(cfg.DumpRange)
	if err != nil {
		log.Warn().Err(err).Str("range", cfg.DumpRange).Msg("invalid GOGGLES_DUMP_FRAME_RANGE, dumping disabled")
		return d
	}
	if len(ranges) == 0 {
		return d
	}

	d.enabled = true
	d.dir = cfg.DumpDir
	d.processName = sanitizeFilenameComponent(processName)
	d.ranges = ranges
	d.queue = ring.New[Job](queueCapacity)
	d.done = make(chan struct{})

	go d.run()
	return d
}

// IsEnabled reports whether dumping was successfully configured.
func (d *Dumper) IsEnabled() bool { return d.enabled }

// HasPending reports whether jobs are still queued for writing.
func (d *Dumper) HasPending() bool {
	return d.enabled && d.queue.Len() > 0
}

// DroppedJobs returns the number of frames dropped because the
// bounded queue was full, making should_dump_frame's original
// silent-skip semantic observable per §9.
func (d *Dumper) DroppedJobs() uint64 { return d.dropped.Load() }

// ShouldDumpFrame reports whether frameNumber falls within a
// configured range, mirroring should_dump_frame.
func (d *Dumper) ShouldDumpFrame(frameNumber uint64) bool {
	if !d.enabled {
		return false
	}
	i := sort.Search(len(d.ranges), func(i int) bool { return d.ranges[i].End >= frameNumber })
	return i < len(d.ranges) && d.ranges[i].Begin <= frameNumber
}

// Schedule enqueues job for writing if dumping is enabled and
// frameNumber is within a configured range. It returns false (and
// increments DroppedJobs) if the queue is full, matching the
// original's "best effort, never blocks the render loop" contract.
func (d *Dumper) Schedule(job Job) bool {
	if !d.enabled || !d.ShouldDumpFrame(job.FrameNumber) {
		return false
	}
	if !d.queue.Push(job) {
		d.dropped.Add(1)
		d.log.Warn().Uint64("frame", job.FrameNumber).Msg("dump queue full, dropping frame")
		return false
	}
	return true
}

// Close signals the drain worker to stop and returns without waiting
// for it; the worker writes any jobs still queued before it exits.
// Close on a disabled Dumper is a no-op.
func (d *Dumper) Close() {
	if !d.enabled {
		return
	}
	close(d.done)
}

func (d *Dumper) run() {
	for {
		job, ok := d.queue.Pop()
		if ok {
			d.writeJob(job)
			continue
		}
		select {
		case <-d.done:
			return
		case <-time.After(time.Millisecond):
		}
	}
}

func (d *Dumper) writeJob(job Job) {
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		d.log.Error().Err(err).Str("dir", d.dir).Msg("failed to create dump directory")
		return
	}

	base := fmt.Sprintf("%s_frame%06d", d.processName, job.FrameNumber)
	ppmPath := filepath.Join(d.dir, base+".ppm")
	descPath := ppmPath + ".desc"

	if err := writePPM(ppmPath, job); err != nil {
		d.log.Error().Err(err).Str("path", ppmPath).Msg("failed to write frame dump")
		return
	}
	if err := writeDesc(descPath, job, d.processName); err != nil {
		d.log.Error().Err(err).Str("path", descPath).Msg("failed to write frame dump descriptor")
	}
}

// writePPM mirrors write_ppm_file: a raw P6 PPM, BGRA/RGBA-aware,
// alpha channel dropped.
func writePPM(path string, job Job) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "P6\n%d %d\n255\n", job.Width, job.Height); err != nil {
		return err
	}

	row := make([]byte, 0, job.Width*3)
	stride := int(job.Width) * 4
	for y := uint32(0); y < job.Height; y++ {
		row = row[:0]
		line := job.Pixels[int(y)*stride : int(y)*stride+stride]
		for x := uint32(0); x < job.Width; x++ {
			px := line[x*4 : x*4+4]
			if job.IsBGRA {
				row = append(row, px[2], px[1], px[0])
			} else {
				row = append(row, px[0], px[1], px[2])
			}
		}
		if _, err := f.Write(row); err != nil {
			return err
		}
	}
	return nil
}

// writeDesc mirrors write_desc_file's key=value sidecar.
func writeDesc(path string, job Job, processName string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = fmt.Fprintf(f,
		"process_name=%s\npid=%d\nframe_number=%d\nwidth=%d\nheight=%d\nformat=%d\nstride=%d\noffset=%d\nmodifier=%d\n",
		processName, os.Getpid(), job.FrameNumber, job.Width, job.Height, job.Format,
		job.Source.Stride, job.Source.Offset, job.Source.Modifier)
	return err
}

// sanitizeFilenameComponent mirrors sanitize_filename_component:
// alphanumerics, '_', '-', '.' pass through; everything else becomes
// '_'. An empty result falls back to "process".
func sanitizeFilenameComponent(in string) string {
	out := make([]byte, 0, len(in))
	for i := 0; i < len(in); i++ {
		c := in[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == '-', c == '.':
			out = append(out, c)
		default:
			out = append(out, '_')
		}
	}
	if len(out) == 0 {
		return "process"
	}
	return string(out)
}
