// Copyright 2022 Gustavo C. Viegas. All rights reserved.

//go:build linux

package main

// #cgo pkg-config: xcb
// #include <xcb/xcb.h>
// #include <stdlib.h>
import "C"

import (
	"fmt"
	"unsafe"

	"github.com/K1ngst0m/Goggles/wsi"
)

// xcbWindow is the viewer's own on-screen window, created directly
// against libxcb (via cgo) rather than github.com/jezek/xgb: driver/vk's
// initXCBSurface needs a real *xcb_connection_t C pointer to call
// vkCreateXcbSurfaceKHR, which xgb's pure-Go protocol client cannot
// hand back (it owns the wire connection itself, not a libxcb
// handle). compositor/x11bridge uses xgb because it only ever speaks
// the X11 wire protocol as a client of its own; this window needs to
// be the thing a Vulkan ICD opens a surface onto, so it goes straight
// to the C library instead.
type xcbWindow struct {
	conn   *C.xcb_connection_t
	win    C.xcb_window_t
	width  int
	height int
}

// newXCBWindow connects to the X display named by displayName ("" for
// $DISPLAY), creates and maps a top-level window of the given size,
// and returns it as a wsi.Window ready to hand to driver.Presenter.NewSwapchain.
func newXCBWindow(displayName string, width, height int, title string) (*xcbWindow, error) {
	var cDisplay *C.char
	if displayName != "" {
		cDisplay = C.CString(displayName)
		defer C.free(unsafe.Pointer(cDisplay))
	}

	var screenNum C.int
	conn := C.xcb_connect(cDisplay, &screenNum)
	if C.xcb_connection_has_error(conn) != 0 {
		C.xcb_disconnect(conn)
		return nil, fmt.Errorf("goggles-viewer: xcb_connect failed (display %q)", displayName)
	}

	setup := C.xcb_get_setup(conn)
	iter := C.xcb_setup_roots_iterator(setup)
	for i := C.int(0); i < screenNum; i++ {
		C.xcb_screen_next(&iter)
	}
	screen := iter.data

	win := C.xcb_generate_id(conn)
	mask := C.uint32_t(C.XCB_CW_EVENT_MASK)
	values := [1]C.uint32_t{
		C.XCB_EVENT_MASK_KEY_PRESS | C.XCB_EVENT_MASK_KEY_RELEASE |
			C.XCB_EVENT_MASK_BUTTON_PRESS | C.XCB_EVENT_MASK_BUTTON_RELEASE |
			C.XCB_EVENT_MASK_POINTER_MOTION | C.XCB_EVENT_MASK_STRUCTURE_NOTIFY,
	}
	C.xcb_create_window(
		conn, C.XCB_COPY_FROM_PARENT, win, screen.root,
		0, 0, C.uint16_t(width), C.uint16_t(height), 0,
		C.XCB_WINDOW_CLASS_INPUT_OUTPUT, screen.root_visual,
		mask, unsafe.Pointer(&values[0]),
	)

	cTitle := C.CString(title)
	defer C.free(unsafe.Pointer(cTitle))
	C.xcb_change_property(
		conn, C.XCB_PROP_MODE_REPLACE, win,
		C.XCB_ATOM_WM_NAME, C.XCB_ATOM_STRING, 8,
		C.uint32_t(len(title)), unsafe.Pointer(cTitle),
	)

	C.xcb_map_window(conn, win)
	C.xcb_flush(conn)

	return &xcbWindow{conn: conn, win: win, width: width, height: height}, nil
}

func (w *xcbWindow) Width() int  { return w.width }
func (w *xcbWindow) Height() int { return w.height }

func (w *xcbWindow) Platform() wsi.Platform { return wsi.XCB }

func (w *xcbWindow) NativeHandle() wsi.NativeHandle {
	return wsi.NativeHandle{
		XCBConnection: unsafe.Pointer(w.conn),
		XCBWindow:     uint32(w.win),
	}
}

// Close disconnects from the X server, invalidating the window.
func (w *xcbWindow) Close() {
	C.xcb_disconnect(w.conn)
}
