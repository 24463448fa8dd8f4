package chain

import "testing"

func TestSemanticBinderDefaults(t *testing.T) {
	b := NewSemanticBinder()
	if b.UBO().MVP != IdentityMVP {
		t.Errorf("UBO().MVP\nhave %v\nwant IdentityMVP", b.UBO().MVP)
	}
	if b.SourceSize() != (SizeVec4{1, 1, 1, 1}) {
		t.Errorf("SourceSize()\nhave %+v\nwant {1,1,1,1}", b.SourceSize())
	}
}

func TestSemanticBinderSetSizesComputeInverse(t *testing.T) {
	b := NewSemanticBinder()
	b.SetSourceSize(320, 240)
	got := b.SourceSize()
	want := SizeVec4{Width: 320, Height: 240, InvWidth: 1.0 / 320, InvHeight: 1.0 / 240}
	if got != want {
		t.Errorf("SourceSize() after SetSourceSize\nhave %+v\nwant %+v", got, want)
	}
}

func TestSemanticBinderPushConstants(t *testing.T) {
	b := NewSemanticBinder()
	b.SetSourceSize(320, 240)
	b.SetOutputSize(640, 480)
	b.SetOriginalSize(320, 240)
	b.SetFrameCount(42)

	pc := b.PushConstants()
	if pc.FrameCount != 42 {
		t.Errorf("PushConstants().FrameCount\nhave %d\nwant 42", pc.FrameCount)
	}
	if pc.SourceSize.Width != 320 || pc.OutputSize.Width != 640 {
		t.Errorf("PushConstants() sizes\nhave %+v", pc)
	}
	if PushConstantsSizeBytes != 3*16+16 {
		t.Errorf("PushConstantsSizeBytes\nhave %d\nwant %d", PushConstantsSizeBytes, 3*16+16)
	}
}

func TestSemanticBinderRotationWraps(t *testing.T) {
	b := NewSemanticBinder()
	b.SetRotation(5)
	if b.Rotation() != 1 {
		t.Errorf("Rotation() after SetRotation(5)\nhave %d\nwant 1", b.Rotation())
	}
}

func TestSemanticBinderAliasSizes(t *testing.T) {
	b := NewSemanticBinder()
	if _, ok := b.AliasSize("pass1"); ok {
		t.Error("AliasSize() before Set\nhave ok=true\nwant false")
	}
	b.SetAliasSize("pass1", 100, 200)
	got, ok := b.AliasSize("pass1")
	if !ok || got.Width != 100 || got.Height != 200 {
		t.Errorf("AliasSize(\"pass1\")\nhave %+v, ok=%v\nwant {100,200,...}, true", got, ok)
	}
	b.ClearAliasSizes()
	if _, ok := b.AliasSize("pass1"); ok {
		t.Error("AliasSize() after ClearAliasSizes\nhave ok=true\nwant false")
	}
}
