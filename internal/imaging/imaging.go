// Package imaging validates uploaded images and normalizes them to a bounded
// JPEG before they are stored.
//
// Every upload is re-encoded, never stored as sent. That strips metadata
// (EXIF GPS and the like) and guarantees that whatever comes back out of the
// image store is a well-formed JPEG no larger than MaxDim on either side.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"

	"golang.org/x/image/draw"
	"golang.org/x/image/webp"
)

var (
	ErrTooLarge    = errors.New("image exceeds the upload size limit")
	ErrTooManyPx   = fmt.Errorf("%w: too many pixels", ErrTooLarge)
	ErrInvalid     = errors.New("image could not be decoded")
	ErrUnsupported = errors.New("only JPEG, PNG and WebP images are accepted")
)

// OutputContentType is what Process always produces.
const OutputContentType = "image/jpeg"

type Options struct {
	MaxBytes    int64
	MaxDim      int
	MaxPixels   int // declared width*height; checked before decoding
	JPEGQuality int
	Background  color.RGBA // transparent pixels are flattened onto this
}

func DefaultOptions() Options {
	return Options{
		MaxBytes:    5 << 20,
		MaxDim:      1024,
		MaxPixels:   40_000_000,
		JPEGQuality: 85,
		Background:  color.RGBA{R: 255, G: 255, B: 255, A: 255},
	}
}

type Result struct {
	Data   []byte
	Width  int
	Height int
}

type decoder struct {
	decode func(io.Reader) (image.Image, error)
	config func(io.Reader) (image.Config, error)
}

// signatures maps magic prefixes to decoders. WebP needs a second check at
// offset 8 because its RIFF header carries the file size in bytes 4..7.
var signatures = []struct {
	name   string
	prefix []byte
	dec    decoder
}{
	{"jpeg", []byte{0xFF, 0xD8, 0xFF}, decoder{jpeg.Decode, jpeg.DecodeConfig}},
	{"png", []byte("\x89PNG\r\n\x1a\n"), decoder{png.Decode, png.DecodeConfig}},
	{"webp", []byte("RIFF"), decoder{webp.Decode, webp.DecodeConfig}},
}

func sniff(header []byte) (decoder, error) {
	if len(header) < 12 {
		return decoder{}, ErrInvalid
	}
	for _, sig := range signatures {
		if !bytes.HasPrefix(header, sig.prefix) {
			continue
		}
		if sig.name == "webp" && string(header[8:12]) != "WEBP" {
			continue
		}
		return sig.dec, nil
	}
	return decoder{}, ErrUnsupported
}

// Process reads at most opts.MaxBytes from r, rejects images declaring more
// than opts.MaxPixels, decodes it, shrinks it to fit within opts.MaxDim
// (never enlarging) and re-encodes it as JPEG.
func Process(r io.Reader, opts Options) (*Result, error) {
	def := DefaultOptions()
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = def.MaxBytes
	}
	if opts.MaxDim <= 0 {
		opts.MaxDim = def.MaxDim
	}
	if opts.MaxPixels <= 0 {
		opts.MaxPixels = def.MaxPixels
	}
	if opts.JPEGQuality <= 0 || opts.JPEGQuality > 100 {
		opts.JPEGQuality = def.JPEGQuality
	}
	if opts.Background.A == 0 {
		opts.Background = def.Background
	}

	data, err := io.ReadAll(io.LimitReader(r, opts.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("imaging: reading upload: %w", err)
	}
	if int64(len(data)) > opts.MaxBytes {
		return nil, ErrTooLarge
	}

	dec, err := sniff(data)
	if err != nil {
		return nil, err
	}

	// Dimensions come from the header alone; nothing is allocated per pixel yet.
	cfg, err := dec.config(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, ErrInvalid
	}
	if int64(cfg.Width)*int64(cfg.Height) > int64(opts.MaxPixels) {
		return nil, ErrTooManyPx
	}

	src, err := dec.decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	bounds := src.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return nil, ErrInvalid
	}
	w, h := fit(bounds.Dx(), bounds.Dy(), opts.MaxDim)

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(opts.Background), image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)

	var out bytes.Buffer
	if err := jpeg.Encode(&out, dst, &jpeg.Options{Quality: opts.JPEGQuality}); err != nil {
		return nil, fmt.Errorf("imaging: encoding jpeg: %w", err)
	}
	return &Result{Data: out.Bytes(), Width: w, Height: h}, nil
}

// fit scales (w, h) down so the longer side is at most maxDim, keeping the
// aspect ratio. Images already within bounds are returned unchanged.
func fit(w, h, maxDim int) (int, int) {
	if w <= maxDim && h <= maxDim {
		return w, h
	}
	if w >= h {
		return maxDim, max(1, h*maxDim/w)
	}
	return max(1, w*maxDim/h), maxDim
}
