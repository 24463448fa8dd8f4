package server

import (
	"io"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/K1ngst0m/Goggles/capture/wire"
)

func discardLog() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func TestNullTerminated(t *testing.T) {
	cases := []struct {
		in   []byte
		want string
	}{
		{[]byte("game\x00\x00\x00"), "game"},
		{[]byte("nopad"), "nopad"},
		{[]byte{}, ""},
	}
	for _, c := range cases {
		if got := nullTerminated(c.in); got != c.want {
			t.Errorf("nullTerminated(%q)\nhave %q\nwant %q", c.in, got, c.want)
		}
	}
}

func TestImageCloseNoFd(t *testing.T) {
	img := Image{Fd: -1}
	if err := img.Close(); err != nil {
		t.Errorf("Close() on unset Image\nhave %v\nwant nil", err)
	}
}

func TestParseFdsEmpty(t *testing.T) {
	fds, err := parseFds(nil)
	if err != nil || fds != nil {
		t.Errorf("parseFds(nil)\nhave %v, %v\nwant nil, nil", fds, err)
	}
}

// connectClient dials the abstract-namespace socket a Server created
// with Create is listening on, returning a raw fd the test drives
// directly (net.Dial does not expose SCM_RIGHTS sending).
func connectClient(t *testing.T) int {
	t.Helper()
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		t.Fatalf("client socket: %v", err)
	}
	if err := unix.Connect(fd, &unix.SockaddrUnix{Name: wire.SocketPath}); err != nil {
		unix.Close(fd)
		t.Fatalf("client connect: %v", err)
	}
	return fd
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition never became true")
}

func TestCreateAcceptAndTextureData(t *testing.T) {
	srv, err := Create(discardLog())
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	defer srv.Close()

	clientFd := connectClient(t)
	defer unix.Close(clientFd)

	waitUntil(t, func() bool { return srv.PollFrame() || srv.IsConnected() })
	if !srv.IsConnected() {
		t.Fatal("server never accepted the client")
	}

	dmaFile, err := os.CreateTemp(t.TempDir(), "goggles-test-dmabuf")
	if err != nil {
		t.Fatalf("create temp fd: %v", err)
	}
	defer dmaFile.Close()

	tex := wire.TextureData{Width: 1920, Height: 1080, Format: 37, Stride: 7680, Offset: 0, Modifier: 1}
	msg := tex.Encode()
	rights := unix.UnixRights(int(dmaFile.Fd()))
	if err := unix.Sendmsg(clientFd, msg, rights, nil, 0); err != nil {
		t.Fatalf("sendmsg: %v", err)
	}

	waitUntil(t, srv.PollFrame)
	if !srv.HasFrame() {
		t.Fatal("server never reported a frame")
	}

	frame := srv.Frame()
	if frame.Image.Width != tex.Width || frame.Image.Height != tex.Height ||
		frame.Image.Format != tex.Format || frame.Image.Stride != tex.Stride ||
		frame.Image.Modifier != tex.Modifier {
		t.Errorf("Frame().Image\nhave %+v\nwant fields matching %+v", frame.Image, tex)
	}
	if frame.Image.Fd < 0 {
		t.Error("Frame().Image.Fd\nhave negative fd\nwant a received dma-buf fd")
	}
}

func TestRequestResolutionNoopWithoutClient(t *testing.T) {
	srv, err := Create(discardLog())
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	defer srv.Close()

	// Must not panic or block when no client is connected.
	srv.RequestResolution(1280, 720)
}
