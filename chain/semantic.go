package chain

// SizeVec4 is a (width, height, 1/width, 1/height) tuple, the layout
// RetroArch shaders expect for *Size semantic uniforms, mirroring
// SizeVec4 in semantic_binder.hpp.
type SizeVec4 struct {
	Width, Height       float32
	InvWidth, InvHeight float32
}

func makeSizeVec4(width, height uint32) SizeVec4 {
	return SizeVec4{
		Width:     float32(width),
		Height:    float32(height),
		InvWidth:  1 / float32(width),
		InvHeight: 1 / float32(height),
	}
}

// IdentityMVP is the default column-major 4x4 identity matrix used
// when a pass supplies no custom model-view-projection.
var IdentityMVP = [16]float32{
	1, 0, 0, 0,
	0, 1, 0, 0,
	0, 0, 1, 0,
	0, 0, 0, 1,
}

// UBO is the uniform buffer layout for RetroArch-style shaders
// (MVP at offset 0), mirroring RetroArchUBO.
type UBO struct {
	MVP [16]float32
}

// UBOSizeBytes is sizeof(UBO) in the wire layout the shader expects.
const UBOSizeBytes = 16 * 4

// PushConstants is the push-constant layout for RetroArch-style
// shaders, mirroring RetroArchPushConstants (padded to 16 bytes).
type PushConstants struct {
	SourceSize   SizeVec4
	OutputSize   SizeVec4
	OriginalSize SizeVec4
	FrameCount   uint32
	_            [3]uint32 // padding to a 16-byte boundary
}

// PushConstantsSizeBytes is sizeof(PushConstants) in the wire layout
// §4.6 specifies.
const PushConstantsSizeBytes = 3*16 + 4*4

// SemanticBinder tracks the per-pass semantic values (sizes, frame
// count, rotation, alias sizes, MVP) used to fill a pass's push
// constants and UBO, mirroring SemanticBinder.
type SemanticBinder struct {
	mvp               [16]float32
	sourceSize        SizeVec4
	outputSize        SizeVec4
	originalSize      SizeVec4
	finalViewportSize SizeVec4
	frameCount        uint32
	rotation          uint32
	aliasSizes        map[string]SizeVec4
}

// NewSemanticBinder returns a SemanticBinder with every size
// initialized to 1x1 and the identity MVP, matching the original's
// member initializers.
func NewSemanticBinder() *SemanticBinder {
	unit := makeSizeVec4(1, 1)
	return &SemanticBinder{
		mvp:               IdentityMVP,
		sourceSize:        unit,
		outputSize:        unit,
		originalSize:      unit,
		finalViewportSize: unit,
		aliasSizes:        make(map[string]SizeVec4),
	}
}

func (b *SemanticBinder) SetSourceSize(width, height uint32) { b.sourceSize = makeSizeVec4(width, height) }
func (b *SemanticBinder) SetOutputSize(width, height uint32) { b.outputSize = makeSizeVec4(width, height) }
func (b *SemanticBinder) SetOriginalSize(width, height uint32) {
	b.originalSize = makeSizeVec4(width, height)
}
func (b *SemanticBinder) SetFrameCount(count uint32) { b.frameCount = count }
func (b *SemanticBinder) SetRotation(rotation uint32) { b.rotation = rotation % 4 }
func (b *SemanticBinder) SetFinalViewportSize(width, height uint32) {
	b.finalViewportSize = makeSizeVec4(width, height)
}
func (b *SemanticBinder) SetMVP(mvp [16]float32) { b.mvp = mvp }

func (b *SemanticBinder) UBO() UBO { return UBO{MVP: b.mvp} }

func (b *SemanticBinder) PushConstants() PushConstants {
	return PushConstants{
		SourceSize:   b.sourceSize,
		OutputSize:   b.outputSize,
		OriginalSize: b.originalSize,
		FrameCount:   b.frameCount,
	}
}

func (b *SemanticBinder) SourceSize() SizeVec4        { return b.sourceSize }
func (b *SemanticBinder) OutputSize() SizeVec4        { return b.outputSize }
func (b *SemanticBinder) OriginalSize() SizeVec4      { return b.originalSize }
func (b *SemanticBinder) FrameCount() uint32          { return b.frameCount }
func (b *SemanticBinder) Rotation() uint32            { return b.rotation }
func (b *SemanticBinder) FinalViewportSize() SizeVec4 { return b.finalViewportSize }

func (b *SemanticBinder) SetAliasSize(alias string, width, height uint32) {
	b.aliasSizes[alias] = makeSizeVec4(width, height)
}

func (b *SemanticBinder) AliasSize(alias string) (SizeVec4, bool) {
	v, ok := b.aliasSizes[alias]
	return v, ok
}

func (b *SemanticBinder) ClearAliasSizes() {
	b.aliasSizes = make(map[string]SizeVec4)
}
