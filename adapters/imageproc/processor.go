// Package imageproc normalises uploaded site plans before they are attached
// to a model turn.
package imageproc

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/satriahrh/landuse-agentic/domain"
)

const (
	// MaxEdge is the longest edge, in pixels, an image may keep.
	MaxEdge = 4096
	// DefaultMaxPixels caps the decoded size of an upload.
	DefaultMaxPixels = 100_000_000
	jpegQuality      = 95
)

type Processor struct {
	maxEdge   int
	maxPixels int64
}

type Option func(*Processor)

// WithMaxPixels sets the largest width*height Decode accepts. Non-positive
// values keep the default.
func WithMaxPixels(n int64) Option {
	return func(p *Processor) {
		if n > 0 {
			p.maxPixels = n
		}
	}
}

func New(opts ...Option) *Processor {
	p := &Processor{maxEdge: MaxEdge, maxPixels: DefaultMaxPixels}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Decode reads any registered raster format, applying EXIF orientation.
// Dimensions are checked from the header before any pixels are allocated.
func (p *Processor) Decode(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: empty upload", domain.ErrImage)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", domain.ErrImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, "", fmt.Errorf("%w: %s has no pixels", domain.ErrImage, format)
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > p.maxPixels {
		return nil, "", fmt.Errorf("%w: %dx%d %s exceeds %d pixels",
			domain.ErrImage, cfg.Width, cfg.Height, format, p.maxPixels)
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, "", fmt.Errorf("%w: decoding %s: %w", domain.ErrImage, format, err)
	}
	return img, format, nil
}

// Prepare normalises img and encodes it as JPEG.
func (p *Processor) Prepare(img image.Image) (domain.Image, error) {
	if img == nil {
		return domain.Image{}, fmt.Errorf("%w: no pixels", domain.ErrImage)
	}
	normalized := Normalize(img, p.maxEdge)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, normalized, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return domain.Image{}, fmt.Errorf("%w: encoding: %w", domain.ErrImage, err)
	}
	b := normalized.Bounds()
	return domain.Image{
		Data:     buf.Bytes(),
		MIMEType: "image/jpeg",
		Width:    b.Dx(),
		Height:   b.Dy(),
	}, nil
}

// Normalize converts img to opaque RGB and, when its longer edge exceeds
// maxEdge, scales both edges by the same ratio with a Lanczos filter.
func Normalize(img image.Image, maxEdge int) *image.NRGBA {
	out := toRGB(img)
	b := out.Bounds()
	width, height, scaled := FitWithin(b.Dx(), b.Dy(), maxEdge)
	if !scaled {
		return out
	}
	return imaging.Resize(out, width, height, imaging.Lanczos)
}

// FitWithin returns the target size for a width x height image whose longer
// edge must not exceed maxEdge. The longer edge lands exactly on maxEdge and
// the shorter one is truncated, never below one pixel.
func FitWithin(width, height, maxEdge int) (int, int, bool) {
	longest := max(width, height)
	if longest <= maxEdge {
		return width, height, false
	}
	ratio := float64(maxEdge) / float64(longest)
	shrink := func(edge int) int {
		if edge == longest {
			return maxEdge
		}
		return max(1, int(float64(edge)*ratio))
	}
	return shrink(width), shrink(height), true
}

// toRGB drops transparency by compositing over white.
func toRGB(img image.Image) *image.NRGBA {
	clone := imaging.Clone(img)
	if clone.Opaque() {
		return clone
	}
	b := clone.Bounds()
	background := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(background, clone, image.Pt(0, 0), 1.0)
}
