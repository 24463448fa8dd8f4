package main

import "github.com/K1ngst0m/Goggles/driver"

// readbackImage copies img into a freshly allocated host-visible
// staging buffer and returns the mapped bytes. dump.Job expects
// already-mapped RGBA8 pixels (see its doc comment), and driver.Image
// never exposes a CPU-visible view of its own memory, so this is the
// one GPU->CPU path this process needs.
func readbackImage(gpu driver.GPU, img driver.Image, width, height uint32) ([]byte, error) {
	size := int64(width) * int64(height) * 4
	buf, err := gpu.NewBuffer(size, true, driver.UGeneric)
	if err != nil {
		return nil, err
	}
	defer buf.Destroy()

	cb, err := gpu.NewCmdBuffer()
	if err != nil {
		return nil, err
	}
	defer cb.Destroy()

	if err := cb.Begin(); err != nil {
		return nil, err
	}
	cb.BeginBlit(false)
	cb.CopyImgToBuf(&driver.BufImgCopy{
		Buf:    buf,
		Stride: [2]int64{int64(width), int64(height)},
		Img:    img,
		Size:   driver.Dim3D{Width: int(width), Height: int(height), Depth: 1},
	})
	cb.EndBlit()
	if err := cb.End(); err != nil {
		return nil, err
	}

	done := make(chan error, 1)
	gpu.Commit([]driver.CmdBuffer{cb}, done)
	if err := <-done; err != nil {
		return nil, err
	}

	out := make([]byte, size)
	copy(out, buf.Bytes()[:size])
	return out, nil
}
