// Copyright 2022 Gustavo C. Viegas. All rights reserved.

//go:build linux

package vk

import (
	"github.com/K1ngst0m/Goggles/driver"
	"github.com/K1ngst0m/Goggles/wsi"
)

// initSurface creates a new surface from s.win.
// s.d and s.win must have been set to valid values.
// It sets the qfam and sf fields of s.
func (s *swapchain) initSurface() error {
	switch s.win.Platform() {
	case wsi.Wayland:
		return s.initWaylandSurface()
	case wsi.XCB:
		return s.initXCBSurface()
	}
	return driver.ErrCannotPresent
}
