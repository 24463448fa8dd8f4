package x11bridge

import (
	"testing"

	"github.com/jezek/xgb/xproto"
)

func TestLinuxToX11KeycodeRoundTrips(t *testing.T) {
	cases := []uint32{0, 1, 30, 57, 200}
	for _, linux := range cases {
		x11 := LinuxToX11Keycode(linux)
		if got := X11ToLinuxKeycode(x11); got != linux {
			t.Errorf("round trip for linux keycode %d\nhave %d\nwant %d", linux, got, linux)
		}
	}
}

func TestLinuxToX11KeycodeOffset(t *testing.T) {
	if got := LinuxToX11Keycode(30); got != xproto.Keycode(38) {
		t.Errorf("LinuxToX11Keycode(30)\nhave %d\nwant 38", got)
	}
}

func TestX11ToLinuxKeycodeBelowOffset(t *testing.T) {
	if got := X11ToLinuxKeycode(3); got != 0 {
		t.Errorf("X11ToLinuxKeycode(3)\nhave %d\nwant 0", got)
	}
}

func TestClampToU16(t *testing.T) {
	cases := []struct {
		in   uint32
		want uint16
	}{
		{0, 0},
		{1920, 1920},
		{65535, 65535},
		{65536, 65535},
		{1 << 20, 65535},
	}
	for _, c := range cases {
		if got := ClampToU16(c.in); got != c.want {
			t.Errorf("ClampToU16(%d)\nhave %d\nwant %d", c.in, got, c.want)
		}
	}
}

func TestLinuxToX11Button(t *testing.T) {
	cases := []struct {
		in   uint32
		want xproto.Button
	}{
		{0x110, 1}, // BTN_LEFT
		{0x111, 3}, // BTN_RIGHT
		{0x112, 2}, // BTN_MIDDLE
		{0x999, 0}, // unrecognized
	}
	for _, c := range cases {
		if got := LinuxToX11Button(c.in); got != c.want {
			t.Errorf("LinuxToX11Button(%#x)\nhave %d\nwant %d", c.in, got, c.want)
		}
	}
}
