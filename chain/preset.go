// Package chain implements the multi-pass GPU shader chain: preset
// parsing, per-pass resource binding resolution, history/feedback
// ring bookkeeping, and the pass-recording orchestration that ties
// them to a driver.GPU-backed render loop.
//
// Grounded on original_source/src/render/chain/{preset_parser,
// filter_chain,semantic_binder,output_pass}.{hpp,cpp}. The original
// parses a RetroArch-style ".slangp"/".glslp" preset ini directly
// into Vulkan formats and compiles shaders through a dedicated
// reflection service; this package keeps the ini grammar and pass
// graph shape but expresses GPU-facing types (format, filter, wrap)
// as small local enums so the parser has no dependency on a
// particular graphics backend.
package chain

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ScaleType selects how a pass's output extent on one axis is
// derived, mirroring ScaleType in preset_parser.hpp.
type ScaleType int

const (
	ScaleSource ScaleType = iota
	ScaleViewport
	ScaleAbsolute
)

func parseScaleType(value string) ScaleType {
	switch strings.ToLower(value) {
	case "viewport":
		return ScaleViewport
	case "absolute":
		return ScaleAbsolute
	default:
		return ScaleSource
	}
}

// FilterMode selects the sampler's magnification/minification filter.
type FilterMode int

const (
	FilterLinear FilterMode = iota
	FilterNearest
)

// WrapMode selects the sampler's address mode.
type WrapMode int

const (
	WrapClampToBorder WrapMode = iota
	WrapClampToEdge
	WrapRepeat
	WrapMirroredRepeat
)

func parseWrapMode(value string) WrapMode {
	switch strings.ToLower(value) {
	case "clamp_to_edge":
		return WrapClampToEdge
	case "repeat":
		return WrapRepeat
	case "mirrored_repeat":
		return WrapMirroredRepeat
	default:
		return WrapClampToBorder
	}
}

// Format is a small format enum local to this package; present
// assigns real driver.PixelFmt values to these before a pass's
// framebuffer is allocated.
type Format int

const (
	FormatRGBA8UNorm Format = iota
	FormatRGBA8SRGB
	FormatRGBA16Float
)

func parseFramebufferFormat(isFloat, isSRGB bool) Format {
	switch {
	case isFloat:
		return FormatRGBA16Float
	case isSRGB:
		return FormatRGBA8SRGB
	default:
		return FormatRGBA8UNorm
	}
}

// PassConfig is one parsed shader pass, mirroring ShaderPassConfig
// plus the spec's feedback flag (absent from the retrieved original
// snapshot; parsed the same way as mipmap_inputN below).
type PassConfig struct {
	ShaderPath        string
	ScaleTypeX        ScaleType
	ScaleTypeY        ScaleType
	ScaleX            float64
	ScaleY            float64
	FilterMode        FilterMode
	WrapMode          WrapMode
	FramebufferFormat Format
	Mipmap            bool
	Feedback          bool
	Alias             string // empty means unset
}

// TextureConfig is one named preset texture, mirroring TextureConfig.
type TextureConfig struct {
	Name       string
	Path       string
	FilterMode FilterMode
	WrapMode   WrapMode
	Mipmap     bool
	Linear     bool
}

// ParameterOverride is a single named float override, mirroring
// ParameterOverride.
type ParameterOverride struct {
	Name  string
	Value float32
}

// PresetGraph is the fully parsed preset: an ordered pass list plus
// textures and parameter overrides, mirroring PresetConfig.
type PresetGraph struct {
	Passes     []PassConfig
	Textures   []TextureConfig
	Parameters []ParameterOverride
}

// LoadPreset reads and parses a preset file from disk, mirroring
// PresetParser::load.
func LoadPreset(path string) (PresetGraph, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return PresetGraph{}, fmt.Errorf("chain: failed to open preset %s: %w", path, err)
	}
	return ParsePreset(string(content), filepath.Dir(path))
}

// ParsePreset parses the ini-style key=value body of a preset,
// resolving relative shader/texture paths against basePath, mirroring
// PresetParser::parse_ini.
func ParsePreset(content, basePath string) (PresetGraph, error) {
	values := make(map[string]string)

	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := trimIni(scanner.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		eq := strings.IndexByte(line, '=')
		if eq < 0 {
			continue
		}
		key := trimIni(line[:eq])
		value := trimIni(line[eq+1:])
		values[key] = value
	}

	shadersStr, ok := values["shaders"]
	if !ok {
		return PresetGraph{}, fmt.Errorf("chain: preset missing 'shaders' count")
	}
	shaderCount, err := strconv.Atoi(shadersStr)
	if err != nil {
		return PresetGraph{}, fmt.Errorf("chain: invalid 'shaders' count %q: %w", shadersStr, err)
	}

	var graph PresetGraph
	for i := 0; i < shaderCount; i++ {
		pass := PassConfig{ScaleX: 1, ScaleY: 1}

		shaderPath, ok := values[fmt.Sprintf("shader%d", i)]
		if !ok {
			return PresetGraph{}, fmt.Errorf("chain: missing shader path for pass %d", i)
		}
		pass.ShaderPath = filepath.Join(basePath, shaderPath)

		if v, ok := values[fmt.Sprintf("scale_type%d", i)]; ok {
			pass.ScaleTypeX = parseScaleType(v)
			pass.ScaleTypeY = pass.ScaleTypeX
		}
		if v, ok := values[fmt.Sprintf("scale_type_x%d", i)]; ok {
			pass.ScaleTypeX = parseScaleType(v)
		}
		if v, ok := values[fmt.Sprintf("scale_type_y%d", i)]; ok {
			pass.ScaleTypeY = parseScaleType(v)
		}

		if v, ok := values[fmt.Sprintf("scale%d", i)]; ok {
			pass.ScaleX = parseFloatSafe(v, 1)
			pass.ScaleY = pass.ScaleX
		}
		if v, ok := values[fmt.Sprintf("scale_x%d", i)]; ok {
			pass.ScaleX = parseFloatSafe(v, 1)
		}
		if v, ok := values[fmt.Sprintf("scale_y%d", i)]; ok {
			pass.ScaleY = parseFloatSafe(v, 1)
		}

		if v, ok := values[fmt.Sprintf("filter_linear%d", i)]; ok {
			if parseIniBool(v) {
				pass.FilterMode = FilterLinear
			} else {
				pass.FilterMode = FilterNearest
			}
		}

		var isFloat, isSRGB bool
		if v, ok := values[fmt.Sprintf("float_framebuffer%d", i)]; ok {
			isFloat = parseIniBool(v)
		}
		if v, ok := values[fmt.Sprintf("srgb_framebuffer%d", i)]; ok {
			isSRGB = parseIniBool(v)
		}
		pass.FramebufferFormat = parseFramebufferFormat(isFloat, isSRGB)

		if v, ok := values[fmt.Sprintf("alias%d", i)]; ok {
			pass.Alias = v
		}
		if v, ok := values[fmt.Sprintf("mipmap_input%d", i)]; ok {
			pass.Mipmap = parseIniBool(v)
		}
		if v, ok := values[fmt.Sprintf("feedback%d", i)]; ok {
			pass.Feedback = parseIniBool(v)
		}
		if v, ok := values[fmt.Sprintf("wrap_mode%d", i)]; ok {
			pass.WrapMode = parseWrapMode(v)
		}

		graph.Passes = append(graph.Passes, pass)
	}

	graph.Textures = parseTextures(values, basePath)
	graph.Parameters = parseParameters(values)

	return graph, nil
}

func trimIni(s string) string {
	return strings.Trim(strings.TrimSpace(s), "\"")
}

func parseIniBool(value string) bool {
	lower := strings.ToLower(value)
	return lower == "true" || lower == "1" || lower == "yes"
}

func parseFloatSafe(s string, fallback float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return fallback
	}
	return v
}

func parseTextures(values map[string]string, basePath string) []TextureConfig {
	texturesStr, ok := values["textures"]
	if !ok {
		return nil
	}

	var textures []TextureConfig
	for _, name := range strings.Split(texturesStr, ";") {
		name = trimIni(name)
		if name == "" {
			continue
		}
		tex := TextureConfig{Name: name}
		if p, ok := values[name]; ok {
			tex.Path = filepath.Join(basePath, p)
		}
		if v, ok := values[name+"_linear"]; ok {
			linear := parseIniBool(v)
			tex.Linear = linear
			if linear {
				tex.FilterMode = FilterLinear
			} else {
				tex.FilterMode = FilterNearest
			}
		}
		if v, ok := values[name+"_mipmap"]; ok {
			tex.Mipmap = parseIniBool(v)
		}
		if v, ok := values[name+"_wrap_mode"]; ok {
			tex.WrapMode = parseWrapMode(v)
		}
		textures = append(textures, tex)
	}
	return textures
}

// reservedParameterPrefixes/substrings mirror parse_parameters's
// exclusion list: anything that looks like a pass/texture config key
// rather than a RetroArch shader parameter.
var reservedParameterPrefixes = []string{
	"shader", "scale", "filter", "float", "srgb", "alias", "mipmap", "wrap_mode", "feedback",
}

var reservedParameterSubstrings = []string{"_linear", "_mipmap", "_wrap_mode"}

func parseParameters(values map[string]string) []ParameterOverride {
	var params []ParameterOverride
	for key, value := range values {
		if key == "shaders" || key == "textures" {
			continue
		}
		reserved := false
		for _, prefix := range reservedParameterPrefixes {
			if strings.HasPrefix(key, prefix) {
				reserved = true
				break
			}
		}
		if !reserved {
			for _, sub := range reservedParameterSubstrings {
				if strings.Contains(key, sub) {
					reserved = true
					break
				}
			}
		}
		if reserved {
			continue
		}

		v, err := strconv.ParseFloat(strings.TrimSpace(value), 32)
		if err != nil {
			continue
		}
		params = append(params, ParameterOverride{Name: key, Value: float32(v)})
	}
	return params
}
