package chain

import "math"

// Extent is a 2D pixel size, standing in for vk::Extent2D so this
// package has no direct Vulkan dependency.
type Extent struct {
	Width, Height uint32
}

// CalculatePassOutputSize computes a pass's output extent from its
// scale configuration, mirroring FilterChain::calculate_pass_output_size.
func CalculatePassOutputSize(pass PassConfig, sourceExtent, viewportExtent Extent) Extent {
	return Extent{
		Width:  max1(scaleAxis(pass.ScaleTypeX, pass.ScaleX, sourceExtent.Width, viewportExtent.Width)),
		Height: max1(scaleAxis(pass.ScaleTypeY, pass.ScaleY, sourceExtent.Height, viewportExtent.Height)),
	}
}

func scaleAxis(scaleType ScaleType, scale float64, source, viewport uint32) uint32 {
	switch scaleType {
	case ScaleViewport:
		return uint32(math.Round(float64(viewport) * scale))
	case ScaleAbsolute:
		return uint32(math.Round(scale))
	default: // ScaleSource
		return uint32(math.Round(float64(source) * scale))
	}
}

func max1(v uint32) uint32 {
	if v < 1 {
		return 1
	}
	return v
}

// ScaleMode selects how OutputPass maps a source extent into a
// viewport extent, per §4.7.
type ScaleMode int

const (
	ScaleModeStretch ScaleMode = iota
	ScaleModeFit
	ScaleModeFill
	ScaleModeInteger
)

// Viewport is a destination rectangle within the output extent:
// width/height plus an offset centering it, in pixels.
type Viewport struct {
	Width, Height   uint32
	OffsetX, OffsetY int32
}

// CalculateViewport computes the destination viewport for OutputPass
// per §4.7's four scale modes. integerScale, when non-zero, overrides
// the computed multiple for ScaleModeInteger; zero means "compute the
// largest multiple that fits".
func CalculateViewport(sourceExtent, outputExtent Extent, mode ScaleMode, integerScale uint32) Viewport {
	if sourceExtent.Width == 0 || sourceExtent.Height == 0 || outputExtent.Width == 0 || outputExtent.Height == 0 {
		return Viewport{Width: outputExtent.Width, Height: outputExtent.Height}
	}

	switch mode {
	case ScaleModeFit:
		return centeredAspectFit(sourceExtent, outputExtent)
	case ScaleModeFill:
		return centeredAspectFill(sourceExtent, outputExtent)
	case ScaleModeInteger:
		return centeredInteger(sourceExtent, outputExtent, integerScale)
	default: // ScaleModeStretch
		return Viewport{Width: outputExtent.Width, Height: outputExtent.Height}
	}
}

// centeredAspectFit scales the source to fit entirely within the
// output, preserving aspect ratio (letterbox/pillarbox).
func centeredAspectFit(source, output Extent) Viewport {
	srcAspect := float64(source.Width) / float64(source.Height)
	dstAspect := float64(output.Width) / float64(output.Height)

	var w, h uint32
	if srcAspect > dstAspect {
		w = output.Width
		h = max1(uint32(math.Round(float64(output.Width) / srcAspect)))
	} else {
		h = output.Height
		w = max1(uint32(math.Round(float64(output.Height) * srcAspect)))
	}
	return center(w, h, output)
}

// centeredAspectFill scales the source to fully cover the output,
// preserving aspect ratio (cropping the overflow).
func centeredAspectFill(source, output Extent) Viewport {
	srcAspect := float64(source.Width) / float64(source.Height)
	dstAspect := float64(output.Width) / float64(output.Height)

	var w, h uint32
	if srcAspect > dstAspect {
		h = output.Height
		w = max1(uint32(math.Round(float64(output.Height) * srcAspect)))
	} else {
		w = output.Width
		h = max1(uint32(math.Round(float64(output.Width) / srcAspect)))
	}
	return center(w, h, output)
}

// centeredInteger scales the source by the largest integer multiple
// that still fits in the output (or by a caller-supplied multiple),
// centering the result.
func centeredInteger(source, output Extent, requested uint32) Viewport {
	scale := requested
	if scale == 0 {
		byWidth := output.Width / source.Width
		byHeight := output.Height / source.Height
		scale = byWidth
		if byHeight < scale {
			scale = byHeight
		}
		if scale == 0 {
			scale = 1
		}
	}
	w := source.Width * scale
	h := source.Height * scale
	return center(w, h, output)
}

func center(w, h uint32, output Extent) Viewport {
	return Viewport{
		Width:   w,
		Height:  h,
		OffsetX: (int32(output.Width) - int32(w)) / 2,
		OffsetY: (int32(output.Height) - int32(h)) / 2,
	}
}
