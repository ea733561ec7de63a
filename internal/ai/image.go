package ai

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"

	_ "image/gif"
	_ "image/png"

	"github.com/gabriel-vasile/mimetype"
)

const (
	jpegQuality = 80
	// MaxImagePixels bounds width*height before a picture is decoded.
	MaxImagePixels = 40_000_000
)

var ErrNotImage = errors.New("not a decodable image")

// PrepareImage turns an uploaded picture into the JPEG the model receives:
// transparent pixels are flattened onto white and the result is encoded at
// quality 80.
func PrepareImage(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrNotImage
	}
	if mt := mimetype.Detect(data); !mt.Is("image/jpeg") && !mt.Is("image/png") && !mt.Is("image/gif") {
		return nil, ErrNotImage
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil || cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > MaxImagePixels {
		return nil, ErrNotImage
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, ErrNotImage
	}

	b := src.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.Draw(dst, b, src, b.Min, draw.Over)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
