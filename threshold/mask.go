/*
	Package threshold turns RGB images into binary masks of the pixels whose red, green
	and blue values all fall inside given ranges, and runs that transform over the
	images selected by a scope and an optional metadata query.
*/
package threshold

import (
	"fmt"

	"github.com/janelia-flyem/omerokv/omerokv"
)

// Range selects values strictly between Min and Max.
type Range struct {
	Min uint8 `json:"min"`
	Max uint8 `json:"max"`
}

// Contains returns true if Min < v < Max.
func (r Range) Contains(v uint8) bool {
	return r.Min < v && v < r.Max
}

// Params are the per-channel ranges.
type Params struct {
	Red   Range `json:"red"`
	Green Range `json:"green"`
	Blue  Range `json:"blue"`
}

// DefaultParams returns the standard ranges for segmenting green plant tissue.
func DefaultParams() Params {
	return Params{
		Red:   Range{Min: 103, Max: 255},
		Green: Range{Min: 115, Max: 255},
		Blue:  Range{Min: 60, Max: 255},
	}
}

// Mask returns, for every pixel, whether all three channel values are in range.
func Mask(r, g, b []uint8, p Params) ([]bool, error) {
	if len(r) != len(g) || len(r) != len(b) {
		return nil, fmt.Errorf("channel planes differ in size: %d, %d, %d", len(r), len(g), len(b))
	}
	mask := make([]bool, len(r))
	for i := range mask {
		mask[i] = p.Red.Contains(r[i]) && p.Green.Contains(g[i]) && p.Blue.Contains(b[i])
	}
	return mask, nil
}

// Apply returns copies of the planes set to 255 where mask is true and 0 elsewhere.
func Apply(planes [][]byte, mask []bool) ([][]byte, error) {
	out := make([][]byte, len(planes))
	for i, plane := range planes {
		if len(plane) != len(mask) {
			return nil, fmt.Errorf("plane %d has %d pixels, mask has %d", i, len(plane), len(mask))
		}
		dst := make([]byte, len(plane))
		for j, on := range mask {
			if on {
				dst[j] = 255
			}
		}
		out[i] = dst
	}
	return out, nil
}

// Transform thresholds every (z, t) of an image given its planes in omerokv.PlaneOrder.
// The first three channels are read as red, green and blue, and every channel of the
// output carries the same mask.
func Transform(info omerokv.ImageInfo, planes [][]byte, p Params) ([][]byte, error) {
	if info.SizeC < 3 {
		return nil, fmt.Errorf("image %d (%s) has %d channels, need red, green and blue", info.ID, info.Name, info.SizeC)
	}
	order := omerokv.PlaneOrder(info.SizeZ, info.SizeC, info.SizeT)
	if len(planes) != len(order) {
		return nil, fmt.Errorf("image %d has %d planes, expected %d", info.ID, len(planes), len(order))
	}
	index := make(map[omerokv.ZCT]int, len(order))
	for i, zct := range order {
		index[zct] = i
	}
	out := make([][]byte, len(planes))
	for z := 0; z < info.SizeZ; z++ {
		for t := 0; t < info.SizeT; t++ {
			r := planes[index[omerokv.ZCT{Z: z, C: 0, T: t}]]
			g := planes[index[omerokv.ZCT{Z: z, C: 1, T: t}]]
			b := planes[index[omerokv.ZCT{Z: z, C: 2, T: t}]]
			mask, err := Mask(r, g, b, p)
			if err != nil {
				return nil, err
			}
			channels := make([][]byte, info.SizeC)
			for c := range channels {
				channels[c] = planes[index[omerokv.ZCT{Z: z, C: c, T: t}]]
			}
			masked, err := Apply(channels, mask)
			if err != nil {
				return nil, err
			}
			for c, plane := range masked {
				out[index[omerokv.ZCT{Z: z, C: c, T: t}]] = plane
			}
		}
	}
	return out, nil
}
