// Package config parses the producer-side environment variables (§6)
// and viewer-side CLI flags, grounded on the exact variable names and
// parsing rules in the original implementation's
// src/capture/vk_layer/wsi_virtual.cpp (parse_env_uint,
// should_use_wsi_proxy) and frame_dump.cpp (GOGGLES_DUMP_*).
package config

import (
	"os"
	"strconv"
)

// Producer holds the environment-derived configuration read by the
// WsiVirtualizer and FrameDumper on the producer side.
type Producer struct {
	WsiProxy  bool   // GOGGLES_WSI_PROXY
	Capture   bool   // GOGGLES_CAPTURE
	Width     uint32 // GOGGLES_WIDTH, range [1, 16384], default 1920
	Height    uint32 // GOGGLES_HEIGHT, range [1, 16384], default 1080
	FPSLimit  uint32 // GOGGLES_FPS_LIMIT, range [0, 1000], default 60 (0 = unlimited)
	DumpDir   string // GOGGLES_DUMP_DIR
	DumpRange string // GOGGLES_DUMP_FRAME_RANGE, e.g. "3,5,8-13"
	DumpMode  string // GOGGLES_DUMP_FRAME_MODE, e.g. "ppm"
}

// ShouldUseWsiProxy mirrors should_use_wsi_proxy(): both
// GOGGLES_WSI_PROXY and GOGGLES_CAPTURE must be set and not equal to
// "0".
func (p Producer) ShouldUseWsiProxy() bool { return p.WsiProxy && p.Capture }

// LoadProducer reads the producer-side environment variables once.
func LoadProducer() Producer {
	wsiProxy := boolEnv("GOGGLES_WSI_PROXY")
	capture := boolEnv("GOGGLES_CAPTURE")
	return Producer{
		WsiProxy:  wsiProxy,
		Capture:   capture,
		Width:     parseEnvUint("GOGGLES_WIDTH", 1, 16384, 1920),
		Height:    parseEnvUint("GOGGLES_HEIGHT", 1, 16384, 1080),
		FPSLimit:  parseEnvUint("GOGGLES_FPS_LIMIT", 0, 1000, 60),
		DumpDir:   os.Getenv("GOGGLES_DUMP_DIR"),
		DumpRange: os.Getenv("GOGGLES_DUMP_FRAME_RANGE"),
		DumpMode:  envOr("GOGGLES_DUMP_FRAME_MODE", "ppm"),
	}
}

func boolEnv(name string) bool {
	v, ok := os.LookupEnv(name)
	return ok && v != "0"
}

func envOr(name, def string) string {
	if v, ok := os.LookupEnv(name); ok {
		return v
	}
	return def
}

// parseEnvUint mirrors parse_env_uint: an unset or empty variable
// falls back to def; an unparsable or out-of-range value is ignored
// (falls back to def) rather than treated as fatal, matching the
// producer-side policy that misconfiguration never aborts the host
// application.
func parseEnvUint(name string, min, max, def uint32) uint32 {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	if n < int64(min) || n > int64(max) {
		return def
	}
	return uint32(n)
}

// Viewer holds the viewer-side configuration the core consumes but
// does not define the serialization of (§6): these are plain CLI
// flag values, parsed by cmd/goggles-viewer with the standard
// library's flag package, matching the teacher's own CLI surface
// (driver/vk exposes no flags of its own; the only flag-like surface
// in the teacher repo is test setup, so there is no teacher
// convention to diverge from here beyond "use the standard flag
// package", which every Go CLI in the examples pack does).
type Viewer struct {
	PresetPath    string
	ScaleMode     string
	IntegerScale  int
	SyncDepth     int
	SocketTimeout int // milliseconds, capture-server poll cadence
}
