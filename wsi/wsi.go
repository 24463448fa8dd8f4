// Copyright 2022 Gustavo C. Viegas. All rights reserved.

// Package wsi describes the native window handle that a driver/vk
// swapchain presents into.
//
// Host windowing is out of scope: this package does not create,
// show or dispatch events for windows. The viewer process owns an
// actual OS window (via whatever toolkit it links) and hands this
// package's Window interface to driver.GPU.NewSwapchain so that a
// VkSurfaceKHR can be built against it.
package wsi

import "unsafe"

// Platform identifies the windowing backend that produced a Window.
type Platform int

const (
	XCB Platform = iota
	Wayland
)

func (p Platform) String() string {
	switch p {
	case XCB:
		return "xcb"
	case Wayland:
		return "wayland"
	default:
		return "unknown"
	}
}

// NativeHandle carries the raw connection/surface pointers that
// driver/vk needs to call vkCreateXcbSurfaceKHR or
// vkCreateWaylandSurfaceKHR. Exactly one pair is populated,
// matching Window.Platform.
type NativeHandle struct {
	XCBConnection  unsafe.Pointer // struct xcb_connection_t*
	XCBWindow      uint32         // xcb_window_t
	WaylandDisplay unsafe.Pointer // struct wl_display*
	WaylandSurface unsafe.Pointer // struct wl_surface*
}

// Window is a native window owned by the caller of driver.GPU.NewSwapchain.
// Unlike the upstream Window interface this package is adapted from,
// there is no process-wide registry of created windows: a Window is
// just a value the viewer passes in, and driver/vk never looks one
// up by handle.
type Window interface {
	// Width and Height report the current drawable size, in pixels.
	Width() int
	Height() int

	// Platform reports which native handle fields are valid.
	Platform() Platform

	// NativeHandle returns the connection/surface pointers used to
	// create a VkSurfaceKHR.
	NativeHandle() NativeHandle
}
