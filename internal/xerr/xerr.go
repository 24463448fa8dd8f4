// Package xerr implements the tagged error value described in §7: a
// stable Kind for programmatic dispatch, a human-readable message,
// and the call site that raised it.
//
// It is the Go counterpart of the original implementation's
// ErrorCode/Error pair (util/error.hpp), which pairs an enum with a
// std::source_location captured at construction time.
package xerr

import (
	"errors"
	"fmt"
	"runtime"
)

// Kind identifies the class of failure, mirroring the original
// implementation's ErrorCode enum.
type Kind uint8

const (
	Unknown Kind = iota
	FileNotFound
	FileReadFailed
	FileWriteFailed
	ParseError
	InvalidConfig
	VulkanInitFailed
	VulkanDeviceLost
	ShaderCompileFailed
	ShaderLoadFailed
	CaptureInitFailed
	CaptureFrameFailed
)

func (k Kind) String() string {
	switch k {
	case FileNotFound:
		return "file_not_found"
	case FileReadFailed:
		return "file_read_failed"
	case FileWriteFailed:
		return "file_write_failed"
	case ParseError:
		return "parse_error"
	case InvalidConfig:
		return "invalid_config"
	case VulkanInitFailed:
		return "vulkan_init_failed"
	case VulkanDeviceLost:
		return "vulkan_device_lost"
	case ShaderCompileFailed:
		return "shader_compile_failed"
	case ShaderLoadFailed:
		return "shader_load_failed"
	case CaptureInitFailed:
		return "capture_init_failed"
	case CaptureFrameFailed:
		return "capture_frame_failed"
	default:
		return "unknown_error"
	}
}

// Severity reports the log level a Kind should be reported at:
// "error" for VulkanDeviceLost, VulkanInitFailed and
// CaptureInitFailed, "warn" for every other kind (CaptureFrameFailed
// included).
func (k Kind) Severity() string {
	switch k {
	case VulkanDeviceLost, VulkanInitFailed, CaptureInitFailed:
		return "error"
	default:
		return "warn"
	}
}

// Error is a tagged error value carrying the Kind and the call site
// that constructed it.
type Error struct {
	Kind Kind
	Msg  string
	File string
	Line int
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s (%s:%d)", e.Kind, e.Msg, e.File, e.Line)
}

// Unwrap returns nil: an Error wraps no other error.
func (e *Error) Unwrap() error { return nil }

// New constructs an Error with the call site of its caller, mirroring
// the original's make_error<T>(code, message, std::source_location::current()).
func New(kind Kind, msg string) *Error {
	_, file, line, ok := runtime.Caller(1)
	if !ok {
		file, line = "unknown", 0
	}
	return &Error{Kind: kind, Msg: msg, File: file, Line: line}
}

// Newf is New with fmt.Sprintf-style formatting.
func Newf(kind Kind, format string, args ...any) *Error {
	_, file, line, ok := runtime.Caller(1)
	if !ok {
		file, line = "unknown", 0
	}
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), File: file, Line: line}
}

// As reports whether err is (or wraps) an *Error and returns it.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
