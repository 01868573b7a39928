package imgproc

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"

	"github.com/HugoSmits86/nativewebp"
	"github.com/disintegration/imaging"
	"github.com/mat/besticon/v3/ico"
	"golang.org/x/image/bmp"
	"golang.org/x/image/webp"
)

// defaultRasterSize is the edge used when rasterizing a vector that declares
// no usable dimensions and the caller requested no size.
const defaultRasterSize = 256

// Options control normalization. The zero value keeps the source dimensions
// and format.
type Options struct {
	// Size, when positive, is the edge of the exact square output. The
	// source is resized preserving aspect ratio and padded transparently.
	Size int
	// Format, when set, is the requested output format. Formats with no
	// encoder silently downgrade to PNG.
	Format Format
}

// Result is the normalization output. Format, Width and Height describe the
// actual result, never the request. Width and Height are 0 only when
// genuinely unknown (unprocessed vector without declared dimensions, or the
// failure-recovery path).
type Result struct {
	Bytes  []byte
	Format Format
	Width  int
	Height int
}

// Normalize applies the vector-bypass, frame-selection, resize and transcode
// policy to b. It never fails: any decode, resize or encode error degrades
// to the original bytes with a best-effort sniffed format and 0x0 dimensions.
func Normalize(b []byte, opts Options) Result {
	src := Detect(b)

	// Vector bypass: no raster format requested means the SVG is served
	// byte-identical.
	if src.IsVector() && !isRasterRequest(opts.Format) {
		w, h := opts.Size, opts.Size
		if opts.Size == 0 {
			w, h = svgDimensions(b)
		}
		return Result{Bytes: b, Format: FormatSVG, Width: w, Height: h}
	}

	res, err := normalizeRaster(b, src, opts)
	if err != nil {
		return Result{Bytes: b, Format: src}
	}
	return res
}

func isRasterRequest(f Format) bool {
	return f != FormatUnknown && !f.IsVector()
}

type encodeFunc func(w io.Writer, img image.Image) error

// encoders is the closed table of true output encoders. Requests for any
// format outside it (ICO, GIF, BMP, SVG-from-raster) downgrade to PNG.
var encoders = map[Format]encodeFunc{
	FormatPNG: func(w io.Writer, img image.Image) error {
		return png.Encode(w, img)
	},
	FormatJPEG: encodeJPEG,
	FormatWebP: func(w io.Writer, img image.Image) error {
		return nativewebp.Encode(w, img, nil)
	},
}

func normalizeRaster(b []byte, src Format, opts Options) (Result, error) {
	// Nothing to do: no resize, no format change, and the source is a plain
	// raster rather than a multi-frame container. Checked against the
	// request, not the encoder table, so a GIF or BMP with nothing requested
	// passes through rather than being transcoded.
	if opts.Size == 0 && (opts.Format == FormatUnknown || opts.Format == src) && src != FormatICO {
		w, h, err := decodeDims(b, src)
		if err != nil {
			return Result{}, err
		}
		return Result{Bytes: b, Format: src, Width: w, Height: h}, nil
	}

	target := opts.Format
	if target == FormatUnknown {
		target = src
	}
	if _, ok := encoders[target]; !ok {
		target = FormatPNG
	}

	img, err := decodeImage(b, src, opts.Size)
	if err != nil {
		return Result{}, err
	}

	if opts.Size > 0 {
		img = squareFit(img, opts.Size)
	}

	var buf bytes.Buffer
	if err := encoders[target](&buf, img); err != nil {
		return Result{}, err
	}
	bounds := img.Bounds()
	return Result{Bytes: buf.Bytes(), Format: target, Width: bounds.Dx(), Height: bounds.Dy()}, nil
}

// decodeImage decodes b into an in-memory image. ICO containers yield their
// largest embedded frame; SVG sources are rasterized at the requested size.
func decodeImage(b []byte, src Format, size int) (image.Image, error) {
	r := bytes.NewReader(b)
	switch src {
	case FormatPNG:
		return png.Decode(r)
	case FormatJPEG:
		return jpeg.Decode(r)
	case FormatGIF:
		return gif.Decode(r)
	case FormatWebP:
		return webp.Decode(r)
	case FormatBMP:
		return bmp.Decode(r)
	case FormatICO:
		return ico.Decode(r)
	case FormatSVG:
		if size <= 0 {
			w, h := svgDimensions(b)
			size = max(w, h)
			if size <= 0 {
				size = defaultRasterSize
			}
		}
		return rasterizeSVG(r, size)
	}
	return nil, fmt.Errorf("imgproc: no decoder for format %q", src)
}

func decodeDims(b []byte, src Format) (int, int, error) {
	r := bytes.NewReader(b)
	var cfg image.Config
	var err error
	switch src {
	case FormatPNG:
		cfg, err = png.DecodeConfig(r)
	case FormatJPEG:
		cfg, err = jpeg.DecodeConfig(r)
	case FormatGIF:
		cfg, err = gif.DecodeConfig(r)
	case FormatWebP:
		cfg, err = webp.DecodeConfig(r)
	case FormatBMP:
		cfg, err = bmp.DecodeConfig(r)
	default:
		return 0, 0, fmt.Errorf("imgproc: no config decoder for format %q", src)
	}
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}

// squareFit scales img to fit a size edge square, preserving aspect ratio,
// and pads the remainder with transparency.
func squareFit(img image.Image, size int) image.Image {
	b := img.Bounds()
	if b.Dx() == size && b.Dy() == size {
		return img
	}
	var fitted image.Image
	if b.Dx() >= b.Dy() {
		fitted = imaging.Resize(img, size, 0, imaging.Lanczos)
	} else {
		fitted = imaging.Resize(img, 0, size, imaging.Lanczos)
	}
	canvas := imaging.New(size, size, color.Transparent)
	return imaging.PasteCenter(canvas, fitted)
}

// encodeJPEG flattens transparency onto white before encoding; JPEG has no
// alpha channel.
func encodeJPEG(w io.Writer, img image.Image) error {
	b := img.Bounds()
	flat := imaging.New(b.Dx(), b.Dy(), color.White)
	flat = imaging.Overlay(flat, img, image.Pt(0, 0), 1.0)
	return jpeg.Encode(w, flat, &jpeg.Options{Quality: 90})
}
