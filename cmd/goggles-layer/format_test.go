package main

import (
	"testing"

	"github.com/K1ngst0m/Goggles/capture/proxy"
	"github.com/K1ngst0m/Goggles/driver"
)

func TestPixelFmtFromVk(t *testing.T) {
	cases := []struct {
		name string
		in   uint32
		want driver.PixelFmt
	}{
		{"unorm", proxy.FormatB8G8R8A8UNorm, driver.RGBA8un},
		{"srgb", proxy.FormatB8G8R8A8SRGB, driver.RGBA8sRGB},
		{"unknown falls back to srgb", 9999, driver.RGBA8sRGB},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := pixelFmtFromVk(c.in); got != c.want {
				t.Errorf("pixelFmtFromVk(%d) = %v, want %v", c.in, got, c.want)
			}
		})
	}
}
