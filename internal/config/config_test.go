package config

import "testing"

func TestParseEnvUintFallsBackOnInvalid(t *testing.T) {
	t.Setenv("GOGGLES_WIDTH", "not-a-number")
	if got := parseEnvUint("GOGGLES_WIDTH", 1, 16384, 1920); got != 1920 {
		t.Errorf("parseEnvUint()\nhave %d\nwant 1920", got)
	}
}

func TestParseEnvUintFallsBackOnOutOfRange(t *testing.T) {
	t.Setenv("GOGGLES_FPS_LIMIT", "5000")
	if got := parseEnvUint("GOGGLES_FPS_LIMIT", 0, 1000, 60); got != 60 {
		t.Errorf("parseEnvUint()\nhave %d\nwant 60", got)
	}
}

func TestParseEnvUintAcceptsValid(t *testing.T) {
	t.Setenv("GOGGLES_HEIGHT", "1080")
	if got := parseEnvUint("GOGGLES_HEIGHT", 1, 16384, 1080); got != 1080 {
		t.Errorf("parseEnvUint()\nhave %d\nwant 1080", got)
	}
}

func TestShouldUseWsiProxyRequiresBoth(t *testing.T) {
	cases := []struct {
		wsi, capture bool
		want         bool
	}{
		{true, true, true},
		{true, false, false},
		{false, true, false},
		{false, false, false},
	}
	for _, c := range cases {
		p := Producer{WsiProxy: c.wsi, Capture: c.capture}
		if got := p.ShouldUseWsiProxy(); got != c.want {
			t.Errorf("ShouldUseWsiProxy(%v, %v)\nhave %v\nwant %v", c.wsi, c.capture, got, c.want)
		}
	}
}

func TestBoolEnvTreatsZeroAsFalse(t *testing.T) {
	t.Setenv("GOGGLES_CAPTURE", "0")
	if boolEnv("GOGGLES_CAPTURE") {
		t.Error("boolEnv(\"0\")\nhave true\nwant false")
	}
	t.Setenv("GOGGLES_CAPTURE", "1")
	if !boolEnv("GOGGLES_CAPTURE") {
		t.Error("boolEnv(\"1\")\nhave false\nwant true")
	}
}
