package memstore

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/tiff"
)

// DecodePlanes decodes a PNG, JPEG or TIFF file into 8-bit planes.  Grayscale images
// give one channel, everything else is split into red, green and blue channels.
func DecodePlanes(name string, data []byte) (ImageSpec, [][]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return ImageSpec{}, nil, fmt.Errorf("can't decode %q: %v", name, err)
	}
	b := img.Bounds()
	nx, ny := b.Dx(), b.Dy()
	spec := ImageSpec{Name: name, SizeX: nx, SizeY: ny, SizeZ: 1, SizeT: 1}

	if gray, ok := img.(*image.Gray); ok {
		spec.SizeC = 1
		plane := make([]byte, nx*ny)
		for y := 0; y < ny; y++ {
			copy(plane[y*nx:(y+1)*nx], gray.Pix[y*gray.Stride:y*gray.Stride+nx])
		}
		return spec, [][]byte{plane}, nil
	}

	spec.SizeC = 3
	planes := [][]byte{make([]byte, nx*ny), make([]byte, nx*ny), make([]byte, nx*ny)}
	for y := 0; y < ny; y++ {
		for x := 0; x < nx; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			i := y*nx + x
			planes[0][i] = uint8(r >> 8)
			planes[1][i] = uint8(g >> 8)
			planes[2][i] = uint8(bl >> 8)
		}
	}
	return spec, planes, nil
}
