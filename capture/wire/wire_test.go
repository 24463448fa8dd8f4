package wire

import "testing"

func TestSizeOf(t *testing.T) {
	cases := []struct {
		kind MessageKind
		want int
		ok   bool
	}{
		{KindClientHello, ClientHelloSize, true},
		{KindTextureData, TextureDataSize, true},
		{KindControl, ControlSize, true},
		{KindSemaphoreInit, SemaphoreInitSize, true},
		{KindFrameMetadata, FrameMetadataSize, true},
		{MessageKind(0), 0, false},
		{MessageKind(6), 0, false},
	}
	for _, c := range cases {
		got, ok := SizeOf(c.kind)
		if got != c.want || ok != c.ok {
			t.Errorf("SizeOf(%d)\nhave %d, %v\nwant %d, %v", c.kind, got, ok, c.want, c.ok)
		}
	}
}

func TestPeekKind(t *testing.T) {
	h := ClientHello{Version: 1}
	b := h.Encode()
	if got := PeekKind(b); got != KindClientHello {
		t.Errorf("PeekKind()\nhave %d\nwant %d", got, KindClientHello)
	}
}

func TestClientHelloRoundTrip(t *testing.T) {
	var name [64]byte
	copy(name[:], "game.exe")
	h := ClientHello{Version: 3, ExeName: name}
	b := h.Encode()
	if len(b) != ClientHelloSize {
		t.Fatalf("Encode() len\nhave %d\nwant %d", len(b), ClientHelloSize)
	}
	if got := DecodeClientHello(b); got != h {
		t.Errorf("DecodeClientHello()\nhave %+v\nwant %+v", got, h)
	}
}

func TestTextureDataRoundTrip(t *testing.T) {
	d := TextureData{
		Width:    1920,
		Height:   1080,
		Format:   37, // VK_FORMAT_R8G8B8A8_UNORM
		Stride:   7680,
		Offset:   0,
		Modifier: 0x0100000000000001,
	}
	b := d.Encode()
	if len(b) != TextureDataSize {
		t.Fatalf("Encode() len\nhave %d\nwant %d", len(b), TextureDataSize)
	}
	if got := DecodeTextureData(b); got != d {
		t.Errorf("DecodeTextureData()\nhave %+v\nwant %+v", got, d)
	}
}

func TestControlRoundTrip(t *testing.T) {
	c := Control{
		Flags:           ControlCapturing | ControlResolutionRequest,
		RequestedWidth:  2560,
		RequestedHeight: 1440,
	}
	b := c.Encode()
	if len(b) != ControlSize {
		t.Fatalf("Encode() len\nhave %d\nwant %d", len(b), ControlSize)
	}
	if got := DecodeControl(b); got != c {
		t.Errorf("DecodeControl()\nhave %+v\nwant %+v", got, c)
	}
}

func TestSemaphoreInitRoundTrip(t *testing.T) {
	s := SemaphoreInit{Version: 1, InitialValue: 42}
	b := s.Encode()
	if len(b) != SemaphoreInitSize {
		t.Fatalf("Encode() len\nhave %d\nwant %d", len(b), SemaphoreInitSize)
	}
	if got := DecodeSemaphoreInit(b); got != s {
		t.Errorf("DecodeSemaphoreInit()\nhave %+v\nwant %+v", got, s)
	}
}

func TestFrameMetadataRoundTrip(t *testing.T) {
	m := FrameMetadata{
		Width:       1920,
		Height:      1080,
		Format:      37,
		Stride:      7680,
		Offset:      0,
		Modifier:    0x0100000000000001,
		FrameNumber: 123456,
	}
	b := m.Encode()
	if len(b) != FrameMetadataSize {
		t.Fatalf("Encode() len\nhave %d\nwant %d", len(b), FrameMetadataSize)
	}
	if got := DecodeFrameMetadata(b); got != m {
		t.Errorf("DecodeFrameMetadata()\nhave %+v\nwant %+v", got, m)
	}
}

func TestEncodeTagsKind(t *testing.T) {
	var c Control
	b := c.Encode()
	if got := PeekKind(b); got != KindControl {
		t.Errorf("PeekKind(Control.Encode())\nhave %d\nwant %d", got, KindControl)
	}
	var s SemaphoreInit
	b = s.Encode()
	if got := PeekKind(b); got != KindSemaphoreInit {
		t.Errorf("PeekKind(SemaphoreInit.Encode())\nhave %d\nwant %d", got, KindSemaphoreInit)
	}
	var m FrameMetadata
	b = m.Encode()
	if got := PeekKind(b); got != KindFrameMetadata {
		t.Errorf("PeekKind(FrameMetadata.Encode())\nhave %d\nwant %d", got, KindFrameMetadata)
	}
	var d TextureData
	b = d.Encode()
	if got := PeekKind(b); got != KindTextureData {
		t.Errorf("PeekKind(TextureData.Encode())\nhave %d\nwant %d", got, KindTextureData)
	}
}
