package present

import (
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"os"

	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/bmp"

	"github.com/K1ngst0m/Goggles/chain"
	"github.com/K1ngst0m/Goggles/driver"
)

// bufImgAlign is the BufImgCopy.BufOff alignment driver.BufImgCopy's
// doc comment requires.
const bufImgAlign = 512

// GPUTextureLoader implements chain.TextureLoader over a real
// driver.GPU: it decodes a preset-declared texture file from disk and
// uploads it as a sampled image, optionally with a full mip chain,
// mirroring texture_loader.cpp's load_from_file (create staging
// buffer, create texture image, record and submit the
// buffer-to-image transfer, then generate mip levels).
//
// driver.CmdBuffer has no GPU-side blit/downsample command, so unlike
// the original's vkCmdBlitImage-based generate_mipmaps, mip levels are
// downsampled on the CPU with golang.org/x/image/draw before a single
// upload submits the whole chain.
type GPUTextureLoader struct {
	gpu driver.GPU
}

// NewGPUTextureLoader constructs a GPUTextureLoader.
func NewGPUTextureLoader(gpu driver.GPU) *GPUTextureLoader {
	return &GPUTextureLoader{gpu: gpu}
}

// LoadTexture implements chain.TextureLoader.
func (l *GPUTextureLoader) LoadTexture(cfg chain.TextureConfig) (chain.View, error) {
	f, err := os.Open(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("present: opening texture %q: %w", cfg.Path, err)
	}
	src, _, err := image.Decode(f)
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("present: decoding texture %q: %w", cfg.Path, err)
	}

	base := toNRGBA(src)
	levels := [][]byte{base.Pix}
	dims := []image.Point{base.Bounds().Size()}
	if cfg.Mipmap {
		cur := base
		for cur.Bounds().Dx() > 1 || cur.Bounds().Dy() > 1 {
			w, h := cur.Bounds().Dx()/2, cur.Bounds().Dy()/2
			if w < 1 {
				w = 1
			}
			if h < 1 {
				h = 1
			}
			next := image.NewNRGBA(image.Rect(0, 0, w, h))
			xdraw.ApproxBiLinear.Scale(next, next.Bounds(), cur, cur.Bounds(), xdraw.Over, nil)
			levels = append(levels, next.Pix)
			dims = append(dims, next.Bounds().Size())
			cur = next
		}
	}

	offsets := make([]int64, len(levels))
	var total int64
	for i, level := range levels {
		offsets[i] = total
		total += alignUp(int64(len(level)), bufImgAlign)
	}

	staging, err := l.gpu.NewBuffer(total, true, driver.UGeneric)
	if err != nil {
		return nil, fmt.Errorf("present: staging buffer for texture %q: %w", cfg.Path, err)
	}
	defer staging.Destroy()
	buf := staging.Bytes()
	for i, level := range levels {
		copy(buf[offsets[i]:], level)
	}

	img, err := l.gpu.NewImage(driver.RGBA8un,
		driver.Dim3D{Width: dims[0].X, Height: dims[0].Y, Depth: 1},
		1, len(levels), 1, driver.UShaderSample)
	if err != nil {
		return nil, fmt.Errorf("present: texture image for %q: %w", cfg.Path, err)
	}

	cb, err := l.gpu.NewCmdBuffer()
	if err != nil {
		img.Destroy()
		return nil, fmt.Errorf("present: cmd buffer for texture %q: %w", cfg.Path, err)
	}
	defer cb.Destroy()
	if err := cb.Begin(); err != nil {
		img.Destroy()
		return nil, fmt.Errorf("present: cmd buffer begin for texture %q: %w", cfg.Path, err)
	}

	view, err := img.NewView(driver.IView2D, 0, 1, 0, len(levels))
	if err != nil {
		img.Destroy()
		return nil, fmt.Errorf("present: texture view for %q: %w", cfg.Path, err)
	}

	cb.Transition([]driver.Transition{
		{LayoutBefore: driver.LUndefined, LayoutAfter: driver.LCopyDst, IView: view},
	})
	cb.BeginBlit(false)
	for i, dim := range dims {
		cb.CopyBufToImg(&driver.BufImgCopy{
			Buf:    staging,
			BufOff: offsets[i],
			Stride: [2]int64{int64(dim.X), int64(dim.Y)},
			Img:    img,
			Level:  i,
			Size:   driver.Dim3D{Width: dim.X, Height: dim.Y, Depth: 1},
		})
	}
	cb.EndBlit()
	cb.Transition([]driver.Transition{
		{LayoutBefore: driver.LCopyDst, LayoutAfter: driver.LShaderRead, IView: view},
	})

	if err := cb.End(); err != nil {
		view.Destroy()
		img.Destroy()
		return nil, fmt.Errorf("present: cmd buffer end for texture %q: %w", cfg.Path, err)
	}

	done := make(chan error, 1)
	l.gpu.Commit([]driver.CmdBuffer{cb}, done)
	if err := <-done; err != nil {
		view.Destroy()
		img.Destroy()
		return nil, fmt.Errorf("present: uploading texture %q: %w", cfg.Path, err)
	}

	return GPUView{Image: img, View: view}, nil
}

// Destroy implements chain.TextureLoader.
func (l *GPUTextureLoader) Destroy(view chain.View) {
	gv, ok := view.(GPUView)
	if !ok {
		return
	}
	if gv.View != nil {
		gv.View.Destroy()
	}
	if gv.Image != nil {
		gv.Image.Destroy()
	}
}

// toNRGBA converts an arbitrary decoded image to a tightly packed
// NRGBA buffer, the straight-alpha layout driver.RGBA8un expects.
func toNRGBA(src image.Image) *image.NRGBA {
	if n, ok := src.(*image.NRGBA); ok && n.Stride == n.Bounds().Dx()*4 && n.Bounds().Min == (image.Point{}) {
		return n
	}
	b := src.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst
}

func alignUp(v, align int64) int64 {
	return (v + align - 1) / align * align
}
