// Package server implements CaptureServer: the host-process side of
// the CaptureWire protocol. It listens on the abstract-namespace Unix
// socket, accepts a single producer connection, and decodes the
// message stream into frames ready for import into the GPU driver.
//
// Grounded on original_source/src/capture/capture_receiver.{hpp,cpp}:
// a single-client, non-blocking, poll-driven receiver with no
// background goroutine of its own. Callers drive it from their own
// render loop by calling PollFrame once per iteration, exactly as the
// original's poll_frame is called once per frame from the render
// backend.
package server

import (
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/K1ngst0m/Goggles/capture/wire"
	"github.com/K1ngst0m/Goggles/internal/xerr"
)

// recvBufSize is the size of a single recvmsg read. The protocol
// never sends a message larger than FrameMetadataSize, so this is
// comfortably oversized to absorb several queued messages per call.
const recvBufSize = 256

// maxAncillaryFds bounds the control-message buffer at a few fds per
// recvmsg call; semaphore_init is the largest consumer at two.
const maxAncillaryFds = 4

// Image describes a single dma-buf-backed capture texture. Fd is -1
// when no texture has been received yet.
//
// A caller that imports Fd into the GPU driver takes ownership of it;
// Vulkan's external memory import closes the source fd on success.
// A caller that does not import a given frame (e.g. it arrived while
// the previous one was still in flight) should call Close to avoid
// leaking the descriptor, since Server itself only closes an Image's
// fd when it is superseded by a newer one.
type Image struct {
	Fd       int
	Width    uint32
	Height   uint32
	Stride   uint32
	Offset   uint32
	Format   uint32
	Modifier uint64
}

// Close releases Fd. It is a no-op on an already-closed or never-set
// Image.
func (img Image) Close() error {
	if img.Fd < 0 {
		return nil
	}
	return unix.Close(img.Fd)
}

// Frame pairs an Image with the monotonically increasing frame number
// reported on the timeline-synced path. FrameNumber is 0 on the
// legacy texture_data-only path, which carries no such counter.
type Frame struct {
	Image       Image
	FrameNumber uint64
}

// Server accepts a single producer connection and decodes its message
// stream. It is not safe for concurrent use; PollFrame, Frame, and
// RequestResolution must all be called from the same goroutine that
// owns the render loop.
type Server struct {
	log      zerolog.Logger
	listenFd int
	clientFd int

	recvBuf     []byte
	lastTexture wire.TextureData

	frame Frame
	seq   uint64

	frameReadyFd      int
	frameConsumedFd   int
	semaphoresUpdated bool
}

// Create binds and listens on the CaptureWire socket. It fails if
// another instance already holds the socket.
func Create(log zerolog.Logger) (*Server, error) {
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		return nil, xerr.Newf(xerr.CaptureInitFailed, "create socket: %v", err)
	}

	addr := &unix.SockaddrUnix{Name: wire.SocketPath}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		if err == unix.EADDRINUSE {
			return nil, xerr.New(xerr.CaptureInitFailed, "capture socket already in use (another instance running?)")
		}
		return nil, xerr.Newf(xerr.CaptureInitFailed, "bind socket: %v", err)
	}

	if err := unix.Listen(fd, 1); err != nil {
		unix.Close(fd)
		return nil, xerr.Newf(xerr.CaptureInitFailed, "listen: %v", err)
	}

	log.Info().Msg("capture socket listening")
	return &Server{
		log:             log,
		listenFd:        fd,
		clientFd:        -1,
		frame:           Frame{Image: Image{Fd: -1}},
		frameReadyFd:    -1,
		frameConsumedFd: -1,
	}, nil
}

// Close releases the listen socket, any connected client, and any
// fds owned by the current frame and sync semaphores. Closing an
// already-closed Server has no effect.
func (s *Server) Close() {
	s.cleanupFrame()

	if s.clientFd >= 0 {
		unix.Close(s.clientFd)
		s.clientFd = -1
	}
	if s.listenFd >= 0 {
		unix.Close(s.listenFd)
		s.listenFd = -1
	}
}

// IsConnected reports whether a producer is currently connected.
func (s *Server) IsConnected() bool { return s.clientFd >= 0 }

// HasFrame reports whether a usable image fd is currently held. It is
// false before the first frame arrives and again once the server has
// released the image (for example after the producer disconnects).
func (s *Server) HasFrame() bool { return s.frame.Image.Fd >= 0 }

// Frame returns the most recently received frame without duplicating
// its Image.Fd. The returned fd remains owned by Server and will be
// closed the moment a newer frame supersedes it (see setImage), so a
// caller that hands it to an importer risks the importer consuming an
// fd Server itself is about to close, or a later unix.Close racing an
// fd the kernel has already recycled. Used for metadata-only reads
// (dimensions, format); a caller that intends to import the frame into
// the GPU driver must call Latest instead.
func (s *Server) Frame() Frame { return s.frame }

// Latest returns the most recent frame if it is newer than the
// sequence number after (0 matches any received frame), with Image.Fd
// duplicated via dup(2) so the caller receives an independent
// descriptor it is free to hand to an importer that consumes the fd it
// is given — Server's own copy is unaffected and still gets closed
// normally once setImage later supersedes it. This is the spec's
// latest(after) operation: "duplicating the image handle on the way
// out, caller owns the duplicate".
//
// seq is always returned so the caller can pass it back as after on
// its next call. ok is false, and frame is the zero Frame, if no frame
// has been received yet, the current frame is not newer than after, or
// the dup(2) call fails (matching "returns none if duplication
// fails"); the last case is logged but otherwise non-fatal, since a
// producer still connected will simply supersede the frame again on
// its next message.
func (s *Server) Latest(after uint64) (frame Frame, seq uint64, ok bool) {
	seq = s.seq
	if s.seq <= after || s.frame.Image.Fd < 0 {
		return Frame{}, seq, false
	}
	fd, err := unix.Dup(s.frame.Image.Fd)
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to duplicate capture frame fd")
		return Frame{}, seq, false
	}
	frame = s.frame
	frame.Image.Fd = fd
	return frame, seq, true
}

// SemaphoresUpdated reports whether a new sync semaphore pair arrived
// since the last call, clearing the flag as it does.
func (s *Server) SemaphoresUpdated() bool {
	v := s.semaphoresUpdated
	s.semaphoresUpdated = false
	return v
}

// SyncFds returns the most recently received frame-ready and
// frame-consumed external semaphore fds, or (-1, -1) if none have
// arrived yet. Server keeps ownership of both fds and closes them when
// a newer pair arrives, when the producer disconnects, and on Close.
func (s *Server) SyncFds() (ready, consumed int) {
	return s.frameReadyFd, s.frameConsumedFd
}

// PollFrame accepts a pending connection if none is active, then
// drains and decodes any buffered messages. It returns true if a new
// frame became available during this call.
func (s *Server) PollFrame() bool {
	if s.clientFd < 0 {
		s.acceptClient()
	}
	if s.clientFd >= 0 {
		return s.receiveMessage()
	}
	return false
}

// RequestResolution asks the producer to switch to the given
// resolution, matching the original implementation's
// request_resolution. It is a best-effort, fire-and-forget send.
func (s *Server) RequestResolution(width, height uint32) {
	if s.clientFd < 0 {
		return
	}
	ctrl := wire.Control{
		Flags:           wire.ControlCapturing | wire.ControlResolutionRequest,
		RequestedWidth:  width,
		RequestedHeight: height,
	}
	_, _ = unix.Write(s.clientFd, ctrl.Encode())
}

func (s *Server) acceptClient() bool {
	if s.listenFd < 0 {
		return false
	}

	fd, _, err := unix.Accept4(s.listenFd, unix.SOCK_CLOEXEC|unix.SOCK_NONBLOCK)
	if err != nil {
		if err != unix.EAGAIN && err != unix.EWOULDBLOCK {
			s.log.Error().Err(err).Msg("capture accept failed")
		}
		return false
	}

	if s.clientFd >= 0 {
		s.log.Warn().Msg("rejecting capture client: already connected")
		unix.Close(fd)
		return false
	}

	s.clientFd = fd
	s.log.Info().Msg("capture client connected")

	ctrl := wire.Control{Flags: wire.ControlCapturing}
	if err := s.sendAll(ctrl.Encode()); err != nil {
		s.log.Error().Err(err).Msg("failed to send initial control")
		unix.Close(s.clientFd)
		s.clientFd = -1
		return false
	}
	return true
}

func (s *Server) sendAll(b []byte) error {
	for len(b) > 0 {
		n, err := unix.Write(s.clientFd, b)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				fds := []unix.PollFd{{Fd: int32(s.clientFd), Events: unix.POLLOUT}}
				_, _ = unix.Poll(fds, 100)
				continue
			}
			return err
		}
		b = b[n:]
	}
	return nil
}

func (s *Server) receiveMessage() bool {
	if s.clientFd < 0 {
		return false
	}

	buf := make([]byte, recvBufSize)
	oob := make([]byte, unix.CmsgSpace(maxAncillaryFds*4))

	n, oobn, _, _, err := unix.Recvmsg(s.clientFd, buf, oob, unix.MSG_DONTWAIT)
	if n <= 0 || err != nil {
		if n == 0 && err == nil {
			s.log.Info().Msg("capture client disconnected")
			s.disconnect()
		} else if err != nil && err != unix.EAGAIN && err != unix.EWOULDBLOCK {
			s.log.Error().Err(err).Msg("capture receive failed")
			s.disconnect()
		}
		return false
	}

	fds, err := parseFds(oob[:oobn])
	if err != nil {
		s.log.Error().Err(err).Msg("failed to parse ancillary fds")
	}

	s.recvBuf = append(s.recvBuf, buf[:n]...)

	gotFrame := false
	fdIndex := 0
	for len(s.recvBuf) >= 4 {
		kind := wire.PeekKind(s.recvBuf)
		size, ok := wire.SizeOf(kind)
		if !ok {
			s.log.Error().Uint32("kind", uint32(kind)).Msg("unknown capture message kind, disconnecting")
			closeRemaining(fds[fdIndex:])
			s.disconnect()
			return false
		}
		if len(s.recvBuf) < size {
			break
		}
		if s.processMessage(s.recvBuf[:size], fds, &fdIndex) {
			gotFrame = true
		}
		s.recvBuf = s.recvBuf[size:]
	}

	closeRemaining(fds[fdIndex:])
	return gotFrame
}

func (s *Server) processMessage(data []byte, fds []int, fdIndex *int) bool {
	switch wire.PeekKind(data) {
	case wire.KindClientHello:
		h := wire.DecodeClientHello(data)
		s.log.Info().Str("exe", nullTerminated(h.ExeName[:])).Msg("capture client hello")
		return false

	case wire.KindTextureData:
		t := wire.DecodeTextureData(data)
		if *fdIndex >= len(fds) {
			s.log.Warn().Msg("texture_data received but no fd available")
			return false
		}
		newFd := fds[*fdIndex]
		*fdIndex++

		changed := t != s.lastTexture
		s.setImage(Image{
			Fd: newFd, Width: t.Width, Height: t.Height,
			Stride: t.Stride, Offset: t.Offset, Format: t.Format, Modifier: t.Modifier,
		})
		s.lastTexture = t
		if changed {
			s.log.Info().Uint32("width", t.Width).Uint32("height", t.Height).
				Uint32("format", t.Format).Msg("capture texture changed")
		}
		return s.frame.Image.Fd >= 0

	case wire.KindSemaphoreInit:
		if *fdIndex+2 > len(fds) {
			s.log.Warn().Int("have", len(fds)-*fdIndex).Msg("semaphore_init needs 2 fds")
			return false
		}
		ready, consumed := fds[*fdIndex], fds[*fdIndex+1]
		*fdIndex += 2

		s.clearSyncSemaphores()
		s.setImage(Image{Fd: -1})
		s.frameReadyFd, s.frameConsumedFd = ready, consumed
		s.semaphoresUpdated = true
		s.log.Info().Int("ready_fd", ready).Int("consumed_fd", consumed).Msg("received sync semaphores")
		return false

	case wire.KindFrameMetadata:
		m := wire.DecodeFrameMetadata(data)
		img := Image{
			Fd: -1, Width: m.Width, Height: m.Height,
			Stride: m.Stride, Offset: m.Offset, Format: m.Format, Modifier: m.Modifier,
		}
		if *fdIndex < len(fds) {
			img.Fd = fds[*fdIndex]
			*fdIndex++
		}
		s.setImage(img)
		s.frame.FrameNumber = m.FrameNumber
		return s.frame.Image.Fd >= 0

	default:
		return false
	}
}

// setImage replaces the current frame image, closing the fd it
// supersedes unless the new image reuses the same descriptor, and
// bumping seq whenever a usable (Fd >= 0) image is installed so Latest
// can detect it.
func (s *Server) setImage(img Image) {
	if s.frame.Image.Fd >= 0 && s.frame.Image.Fd != img.Fd {
		unix.Close(s.frame.Image.Fd)
	}
	s.frame.Image = img
	if img.Fd >= 0 {
		s.seq++
	}
}

func (s *Server) clearSyncSemaphores() {
	if s.frameReadyFd >= 0 {
		unix.Close(s.frameReadyFd)
		s.frameReadyFd = -1
	}
	if s.frameConsumedFd >= 0 {
		unix.Close(s.frameConsumedFd)
		s.frameConsumedFd = -1
	}
}

func (s *Server) cleanupFrame() {
	if s.frame.Image.Fd >= 0 {
		unix.Close(s.frame.Image.Fd)
	}
	s.frame = Frame{Image: Image{Fd: -1}}
	s.lastTexture = wire.TextureData{}
	s.recvBuf = s.recvBuf[:0]
	s.clearSyncSemaphores()
}

func (s *Server) disconnect() {
	unix.Close(s.clientFd)
	s.clientFd = -1
	s.cleanupFrame()
}

func parseFds(oob []byte) ([]int, error) {
	if len(oob) == 0 {
		return nil, nil
	}
	msgs, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return nil, err
	}
	var fds []int
	for _, m := range msgs {
		rights, err := unix.ParseUnixRights(&m)
		if err != nil {
			continue
		}
		fds = append(fds, rights...)
	}
	return fds, nil
}

func closeRemaining(fds []int) {
	for _, fd := range fds {
		unix.Close(fd)
	}
}

func nullTerminated(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
