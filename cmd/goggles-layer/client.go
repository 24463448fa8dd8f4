package main

import (
	"golang.org/x/sys/unix"

	"github.com/K1ngst0m/Goggles/capture/wire"
)

// captureClient is the producer side of CaptureWire: it dials
// CaptureServer's abstract-namespace socket and sends the message
// stream capture/server.Server decodes.
type captureClient struct {
	fd int
}

// dialCaptureServer connects to wire.SocketPath, non-blocking so a
// send never stalls the hooked application's render loop.
func dialCaptureServer() (*captureClient, error) {
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		return nil, err
	}
	addr := &unix.SockaddrUnix{Name: wire.SocketPath}
	if err := unix.Connect(fd, addr); err != nil {
		unix.Close(fd)
		return nil, err
	}
	return &captureClient{fd: fd}, nil
}

func (c *captureClient) Close() { unix.Close(c.fd) }

// SendHello sends the one-time ClientHello, truncating exeName to fit
// the fixed-size field.
func (c *captureClient) SendHello(exeName string) error {
	var h wire.ClientHello
	h.Version = 1
	copy(h.ExeName[:], exeName)
	return c.sendAll(h.Encode())
}

// SendFrameMetadata sends a frame_metadata message with fd attached as
// ancillary data. With fd < 0 the message goes out without an fd, and
// the server then holds no image for that frame.
func (c *captureClient) SendFrameMetadata(m wire.FrameMetadata, fd int) error {
	b := m.Encode()
	if fd < 0 {
		return c.sendAll(b)
	}
	return unix.Sendmsg(c.fd, b, unix.UnixRights(fd), nil, 0)
}

// SendSemaphoreInit sends the sync-semaphore handoff, attaching both
// timeline semaphore fds as ancillary data.
func (c *captureClient) SendSemaphoreInit(s wire.SemaphoreInit, readyFd, consumedFd int) error {
	return unix.Sendmsg(c.fd, s.Encode(), unix.UnixRights(readyFd, consumedFd), nil, 0)
}

// RecvControl polls for a pending control message without blocking,
// reporting false if none is available yet.
func (c *captureClient) RecvControl() (wire.Control, bool) {
	buf := make([]byte, wire.ControlSize)
	n, _, _, _, err := unix.Recvmsg(c.fd, buf, nil, unix.MSG_DONTWAIT)
	if err != nil || n < wire.ControlSize {
		return wire.Control{}, false
	}
	return wire.DecodeControl(buf), true
}

func (c *captureClient) sendAll(b []byte) error {
	for len(b) > 0 {
		n, err := unix.Write(c.fd, b)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				fds := []unix.PollFd{{Fd: int32(c.fd), Events: unix.POLLOUT}}
				_, _ = unix.Poll(fds, 100)
				continue
			}
			return err
		}
		b = b[n:]
	}
	return nil
}
