package chain

import "testing"

func TestCalculatePassOutputSize(t *testing.T) {
	source := Extent{Width: 320, Height: 240}
	viewport := Extent{Width: 1920, Height: 1080}

	cases := []struct {
		name string
		pass PassConfig
		want Extent
	}{
		{"source 2x", PassConfig{ScaleTypeX: ScaleSource, ScaleTypeY: ScaleSource, ScaleX: 2, ScaleY: 2}, Extent{640, 480}},
		{"viewport half", PassConfig{ScaleTypeX: ScaleViewport, ScaleTypeY: ScaleViewport, ScaleX: 0.5, ScaleY: 0.5}, Extent{960, 540}},
		{"absolute", PassConfig{ScaleTypeX: ScaleAbsolute, ScaleTypeY: ScaleAbsolute, ScaleX: 256, ScaleY: 256}, Extent{256, 256}},
		{"clamped to 1", PassConfig{ScaleTypeX: ScaleAbsolute, ScaleTypeY: ScaleAbsolute, ScaleX: 0, ScaleY: 0}, Extent{1, 1}},
	}
	for _, c := range cases {
		if got := CalculatePassOutputSize(c.pass, source, viewport); got != c.want {
			t.Errorf("%s: CalculatePassOutputSize()\nhave %+v\nwant %+v", c.name, got, c.want)
		}
	}
}

func TestCalculateViewportStretch(t *testing.T) {
	got := CalculateViewport(Extent{320, 240}, Extent{1920, 1080}, ScaleModeStretch, 0)
	want := Viewport{Width: 1920, Height: 1080}
	if got != want {
		t.Errorf("stretch\nhave %+v\nwant %+v", got, want)
	}
}

func TestCalculateViewportFitLetterbox(t *testing.T) {
	// 4:3 source into a 16:9 output must pillarbox/letterbox on the sides.
	got := CalculateViewport(Extent{Width: 4, Height: 3}, Extent{Width: 1920, Height: 1080}, ScaleModeFit, 0)
	if got.Height != 1080 {
		t.Errorf("fit height\nhave %d\nwant 1080", got.Height)
	}
	wantWidth := uint32(1440) // 1080 * 4/3
	if got.Width != wantWidth {
		t.Errorf("fit width\nhave %d\nwant %d", got.Width, wantWidth)
	}
	if got.OffsetX <= 0 {
		t.Errorf("fit offsetX\nhave %d\nwant > 0 (centered pillarbox)", got.OffsetX)
	}
	if got.OffsetY != 0 {
		t.Errorf("fit offsetY\nhave %d\nwant 0", got.OffsetY)
	}
}

func TestCalculateViewportFillCrops(t *testing.T) {
	got := CalculateViewport(Extent{Width: 4, Height: 3}, Extent{Width: 1920, Height: 1080}, ScaleModeFill, 0)
	if got.Width != 1920 {
		t.Errorf("fill width\nhave %d\nwant 1920", got.Width)
	}
	if got.Height <= 1080 {
		t.Errorf("fill height\nhave %d\nwant > 1080 (cropped vertically)", got.Height)
	}
	if got.OffsetY >= 0 {
		t.Errorf("fill offsetY\nhave %d\nwant < 0 (cropped, centered)", got.OffsetY)
	}
}

func TestCalculateViewportIntegerAuto(t *testing.T) {
	got := CalculateViewport(Extent{Width: 320, Height: 240}, Extent{Width: 1000, Height: 700}, ScaleModeInteger, 0)
	// largest integer multiple fitting both axes: min(1000/320, 700/240) = min(3,2) = 2
	want := Viewport{Width: 640, Height: 480, OffsetX: (1000 - 640) / 2, OffsetY: (700 - 480) / 2}
	if got != want {
		t.Errorf("integer auto\nhave %+v\nwant %+v", got, want)
	}
}

func TestCalculateViewportIntegerExplicit(t *testing.T) {
	got := CalculateViewport(Extent{Width: 320, Height: 240}, Extent{Width: 1920, Height: 1080}, ScaleModeInteger, 4)
	want := Viewport{Width: 1280, Height: 960, OffsetX: (1920 - 1280) / 2, OffsetY: (1080 - 960) / 2}
	if got != want {
		t.Errorf("integer explicit\nhave %+v\nwant %+v", got, want)
	}
}

func TestCalculateViewportDegenerateSource(t *testing.T) {
	got := CalculateViewport(Extent{}, Extent{Width: 100, Height: 100}, ScaleModeFit, 0)
	want := Viewport{Width: 100, Height: 100}
	if got != want {
		t.Errorf("degenerate source\nhave %+v\nwant %+v", got, want)
	}
}
