package threshold

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"

	"golang.org/x/image/tiff"
)

// Encode writes one or three 8-bit planes of the given size as a gray or RGB image file.
func Encode(w io.Writer, format Format, planes [][]byte, width, height int) error {
	n := width * height
	for i, p := range planes {
		if len(p) != n {
			return fmt.Errorf("plane %d has %d bytes, expected %d for %d x %d", i, len(p), n, width, height)
		}
	}
	var img image.Image
	switch len(planes) {
	case 1:
		gray := image.NewGray(image.Rect(0, 0, width, height))
		copy(gray.Pix, planes[0])
		img = gray
	case 3:
		rgba := image.NewRGBA(image.Rect(0, 0, width, height))
		for i := 0; i < n; i++ {
			rgba.SetRGBA(i%width, i/width, color.RGBA{planes[0][i], planes[1][i], planes[2][i], 255})
		}
		img = rgba
	default:
		return fmt.Errorf("can only encode 1 or 3 planes, got %d", len(planes))
	}
	switch format {
	case PNG:
		return png.Encode(w, img)
	case JPEG:
		return jpeg.Encode(w, img, &jpeg.Options{Quality: 95})
	case TIFF:
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		return fmt.Errorf("unknown image format %q", format)
	}
}
