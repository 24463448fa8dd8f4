// Package wire implements the CaptureWire protocol: the fixed-size,
// little-endian framed messages exchanged between the producer-side
// layer and CaptureServer over the abstract-namespace Unix socket at
// SocketPath.
//
// Messages carry no length prefix; the receiver recovers the frame
// length from MessageKind, matching
// original_source/src/capture/capture_receiver.cpp's
// receive_message/process_message dispatch. Marshaling is explicit
// field-by-field (encoding/binary, not reflection), following
// driver/core.go's preference for hand-written struct construction
// over generic codecs, and keeping the hot path allocation-free.
package wire

import "encoding/binary"

// SocketPath is the abstract-namespace Unix socket address the
// producer connects to and CaptureServer listens on. The leading "@"
// is golang.org/x/sys/unix's convention for Linux's abstract
// namespace (no filesystem entry, no cleanup required on exit);
// SockaddrUnix.sockaddr rewrites it to the leading NUL byte the
// kernel expects.
const SocketPath = "@goggles/vkcapture"

// MessageKind tags the fixed-size struct that follows it in the
// stream.
type MessageKind uint32

const (
	KindClientHello   MessageKind = 1
	KindTextureData   MessageKind = 2
	KindControl       MessageKind = 3
	KindSemaphoreInit MessageKind = 4
	KindFrameMetadata MessageKind = 5
)

// Control flags.
const (
	ControlCapturing         uint32 = 1
	ControlResolutionRequest uint32 = 2
)

// Sizes, in bytes, of each message kind on the wire. A kind not
// present here is unknown and terminates the connection (see
// capture/server).
const (
	ClientHelloSize   = 72
	TextureDataSize   = 32
	ControlSize       = 16
	SemaphoreInitSize = 16
	FrameMetadataSize = 40
)

// SizeOf returns the wire size of a message kind, and whether the
// kind is recognized.
func SizeOf(kind MessageKind) (int, bool) {
	switch kind {
	case KindClientHello:
		return ClientHelloSize, true
	case KindTextureData:
		return TextureDataSize, true
	case KindControl:
		return ControlSize, true
	case KindSemaphoreInit:
		return SemaphoreInitSize, true
	case KindFrameMetadata:
		return FrameMetadataSize, true
	default:
		return 0, false
	}
}

// PeekKind reads the MessageKind tag from the first 4 bytes of buf.
// The caller must ensure len(buf) >= 4.
func PeekKind(buf []byte) MessageKind {
	return MessageKind(binary.LittleEndian.Uint32(buf))
}

// ClientHello is sent once, immediately after the producer connects.
// exe_name is a NUL-terminated (or truncated) process name used only
// for logging.
type ClientHello struct {
	Version uint32
	ExeName [64]byte
}

func (h *ClientHello) Encode() []byte {
	b := make([]byte, ClientHelloSize)
	binary.LittleEndian.PutUint32(b[0:4], uint32(KindClientHello))
	binary.LittleEndian.PutUint32(b[4:8], h.Version)
	copy(b[8:72], h.ExeName[:])
	return b
}

func DecodeClientHello(b []byte) ClientHello {
	var h ClientHello
	h.Version = binary.LittleEndian.Uint32(b[4:8])
	copy(h.ExeName[:], b[8:72])
	return h
}

// TextureData announces the dma-buf backing a single-plane capture
// texture (no frame_number; superseded by FrameMetadata once the
// producer switches to the timeline-synced path).
type TextureData struct {
	Width, Height uint32
	Format        uint32 // VkFormat
	Stride        uint32
	Offset        uint32
	Modifier      uint64
}

func (d *TextureData) Encode() []byte {
	b := make([]byte, TextureDataSize)
	binary.LittleEndian.PutUint32(b[0:4], uint32(KindTextureData))
	binary.LittleEndian.PutUint32(b[4:8], d.Width)
	binary.LittleEndian.PutUint32(b[8:12], d.Height)
	binary.LittleEndian.PutUint32(b[12:16], d.Format)
	binary.LittleEndian.PutUint32(b[16:20], d.Stride)
	binary.LittleEndian.PutUint32(b[20:24], d.Offset)
	binary.LittleEndian.PutUint64(b[24:32], d.Modifier)
	return b
}

func DecodeTextureData(b []byte) TextureData {
	return TextureData{
		Width:    binary.LittleEndian.Uint32(b[4:8]),
		Height:   binary.LittleEndian.Uint32(b[8:12]),
		Format:   binary.LittleEndian.Uint32(b[12:16]),
		Stride:   binary.LittleEndian.Uint32(b[16:20]),
		Offset:   binary.LittleEndian.Uint32(b[20:24]),
		Modifier: binary.LittleEndian.Uint64(b[24:32]),
	}
}

// Control carries server-to-producer session state: the "capturing"
// flag and an optional requested-resolution hint.
type Control struct {
	Flags                          uint32
	RequestedWidth, RequestedHeight uint32
}

func (c *Control) Encode() []byte {
	b := make([]byte, ControlSize)
	binary.LittleEndian.PutUint32(b[0:4], uint32(KindControl))
	binary.LittleEndian.PutUint32(b[4:8], c.Flags)
	binary.LittleEndian.PutUint32(b[8:12], c.RequestedWidth)
	binary.LittleEndian.PutUint32(b[12:16], c.RequestedHeight)
	return b
}

func DecodeControl(b []byte) Control {
	return Control{
		Flags:           binary.LittleEndian.Uint32(b[4:8]),
		RequestedWidth:  binary.LittleEndian.Uint32(b[8:12]),
		RequestedHeight: binary.LittleEndian.Uint32(b[12:16]),
	}
}

// SemaphoreInit carries the initial value for the pair of
// cross-process timeline semaphore fds (ready, consumed) passed as
// ancillary data alongside this message.
type SemaphoreInit struct {
	Version      uint32
	InitialValue uint64
}

func (s *SemaphoreInit) Encode() []byte {
	b := make([]byte, SemaphoreInitSize)
	binary.LittleEndian.PutUint32(b[0:4], uint32(KindSemaphoreInit))
	binary.LittleEndian.PutUint32(b[4:8], s.Version)
	binary.LittleEndian.PutUint64(b[8:16], s.InitialValue)
	return b
}

func DecodeSemaphoreInit(b []byte) SemaphoreInit {
	return SemaphoreInit{
		Version:      binary.LittleEndian.Uint32(b[4:8]),
		InitialValue: binary.LittleEndian.Uint64(b[8:16]),
	}
}

// FrameMetadata announces a new frame on the timeline-synced path: the
// frame's dma-buf fd (ancillary data, one per message) plus the
// frame's geometry and its monotonically increasing FrameNumber. A
// FrameMetadata that arrives without an fd leaves the server holding
// no image.
type FrameMetadata struct {
	Width, Height uint32
	Format        uint32
	Stride        uint32
	Offset        uint32
	Modifier      uint64
	FrameNumber   uint64
}

func (m *FrameMetadata) Encode() []byte {
	b := make([]byte, FrameMetadataSize)
	binary.LittleEndian.PutUint32(b[0:4], uint32(KindFrameMetadata))
	binary.LittleEndian.PutUint32(b[4:8], m.Width)
	binary.LittleEndian.PutUint32(b[8:12], m.Height)
	binary.LittleEndian.PutUint32(b[12:16], m.Format)
	binary.LittleEndian.PutUint32(b[16:20], m.Stride)
	binary.LittleEndian.PutUint32(b[20:24], m.Offset)
	binary.LittleEndian.PutUint64(b[24:32], m.Modifier)
	binary.LittleEndian.PutUint64(b[32:40], m.FrameNumber)
	return b
}

func DecodeFrameMetadata(b []byte) FrameMetadata {
	return FrameMetadata{
		Width:       binary.LittleEndian.Uint32(b[4:8]),
		Height:      binary.LittleEndian.Uint32(b[8:12]),
		Format:      binary.LittleEndian.Uint32(b[12:16]),
		Stride:      binary.LittleEndian.Uint32(b[16:20]),
		Offset:      binary.LittleEndian.Uint32(b[20:24]),
		Modifier:    binary.LittleEndian.Uint64(b[24:32]),
		FrameNumber: binary.LittleEndian.Uint64(b[32:40]),
	}
}
