package client

import (
	"context"
	"fmt"

	"github.com/janelia-flyem/omerokv/omerokv"
)

// Plane returns one 8-bit plane of an image.  The transfer is compressed with the
// client's configured compression.
func (c *Client) Plane(ctx context.Context, id omerokv.ImageID, zct omerokv.ZCT) ([]byte, error) {
	path := fmt.Sprintf("/api/image/%d/plane/%d/%d/%d", id, zct.Z, zct.C, zct.T)
	if c.compression != omerokv.Uncompressed {
		path += "?compression=" + c.compression.String()
	}
	data, err := c.do(ctx, "GET", path, nil, "")
	if err != nil {
		return nil, fmt.Errorf("getting plane %v of image %d: %w", zct, id, err)
	}
	plane, err := omerokv.Decompress(data, c.compression)
	if err != nil {
		return nil, fmt.Errorf("decompressing plane %v of image %d: %v", zct, id, err)
	}
	return plane, nil
}

// Planes returns all planes of an image in omerokv.PlaneOrder.
func (c *Client) Planes(ctx context.Context, info omerokv.ImageInfo) ([][]byte, error) {
	order := omerokv.PlaneOrder(info.SizeZ, info.SizeC, info.SizeT)
	planes := make([][]byte, len(order))
	for i, zct := range order {
		plane, err := c.Plane(ctx, info.ID, zct)
		if err != nil {
			return nil, err
		}
		if len(plane) != info.PlaneBytes() {
			return nil, fmt.Errorf("plane %v of image %d has %d bytes, expected %d", zct, info.ID, len(plane), info.PlaneBytes())
		}
		planes[i] = plane
	}
	return planes, nil
}

// CreateImage creates a new image from the planes in img, optionally linked to a
// dataset and recording its source image.
func (c *Client) CreateImage(ctx context.Context, img omerokv.NewImage) (omerokv.ImageID, error) {
	var resp omerokv.IDResponse
	if err := c.call(ctx, "POST", "/api/image", img, &resp); err != nil {
		return 0, fmt.Errorf("creating image %q: %w", img.Name, err)
	}
	return omerokv.ImageID(resp.ID), nil
}
