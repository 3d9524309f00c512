package filestore

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
)

// DefaultMaxPixels is the decode budget of a new Processor.
const DefaultMaxPixels = 40_000_000

// ErrTooManyPixels is returned for images whose declared size exceeds the
// decode budget. The check reads only the header.
var ErrTooManyPixels = errors.New("image dimensions exceed the pixel limit")

// Processor decodes an upload, bounds its longest edge and re-encodes it in
// its own format. Re-encoding drops embedded metadata such as GPS tags.
type Processor struct {
	MaxEdge   int
	Quality   int
	MaxPixels int
}

// NewProcessor returns a processor. maxEdge <= 0 disables resizing.
func NewProcessor(maxEdge, quality int) *Processor {
	if quality <= 0 || quality > 100 {
		quality = 82
	}
	return &Processor{MaxEdge: maxEdge, Quality: quality, MaxPixels: DefaultMaxPixels}
}

// Process returns the normalized bytes for an image with extension ext.
func (p *Processor) Process(ext string, data []byte) ([]byte, error) {
	if err := p.checkDimensions(ext, data); err != nil {
		return nil, err
	}
	img, err := decode(ext, data)
	if err != nil {
		return nil, err
	}

	if p.MaxEdge > 0 {
		b := img.Bounds()
		if b.Dx() > p.MaxEdge || b.Dy() > p.MaxEdge {
			img = imaging.Fit(img, p.MaxEdge, p.MaxEdge, imaging.Lanczos)
		}
	}

	var buf bytes.Buffer
	switch ext {
	case "jpg", "jpeg":
		err = imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(p.Quality))
	case "png":
		err = imaging.Encode(&buf, img, imaging.PNG)
	case "webp":
		err = webp.Encode(&buf, img, &webp.Options{Quality: float32(p.Quality)})
	default:
		return nil, fmt.Errorf("unsupported image type %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", ext, err)
	}
	return buf.Bytes(), nil
}

// checkDimensions rejects images above the pixel budget before any pixel
// data is allocated.
func (p *Processor) checkDimensions(ext string, data []byte) error {
	if p.MaxPixels <= 0 {
		return nil
	}
	var (
		cfg image.Config
		err error
	)
	switch ext {
	case "webp":
		cfg, err = webp.DecodeConfig(bytes.NewReader(data))
	default:
		cfg, _, err = image.DecodeConfig(bytes.NewReader(data))
	}
	if err != nil {
		return fmt.Errorf("failed to read image header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return fmt.Errorf("invalid image dimensions %dx%d", cfg.Width, cfg.Height)
	}
	if int64(cfg.Width)*int64(cfg.Height) > int64(p.MaxPixels) {
		return fmt.Errorf("%dx%d: %w", cfg.Width, cfg.Height, ErrTooManyPixels)
	}
	return nil
}

// decode sniffs the content and refuses bytes that are not the image type
// their extension claims.
func decode(ext string, data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty file")
	}
	ct := http.DetectContentType(data)

	switch ext {
	case "jpg", "jpeg", "png":
		if !strings.HasPrefix(ct, "image/jpeg") && !strings.HasPrefix(ct, "image/png") {
			return nil, fmt.Errorf("content is %s, not an image", ct)
		}
		img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
		if err != nil {
			return nil, fmt.Errorf("failed to decode image: %w", err)
		}
		return img, nil
	case "webp":
		if ct != "image/webp" {
			return nil, fmt.Errorf("content is %s, not webp", ct)
		}
		img, err := webp.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to decode webp: %w", err)
		}
		return img, nil
	default:
		return nil, fmt.Errorf("unsupported image type %q", ext)
	}
}
