package client

import (
	"context"
	"fmt"
	"net/url"

	"github.com/janelia-flyem/omerokv/omerokv"
)

// AddAnnotation attaches one map annotation with the given entries to an object,
// under the client map annotation namespace.
func (c *Client) AddAnnotation(ctx context.Context, t omerokv.ObjectType, id omerokv.ObjectID, kvs omerokv.KeyValues) error {
	req := omerokv.AnnotationRequest{
		Namespace: omerokv.ClientMapAnnotationNS,
		Values:    kvs.Pairs(),
	}
	path := fmt.Sprintf("/api/%s/%d/annotations", t.Lower(), id)
	if err := c.call(ctx, "POST", path, req, nil); err != nil {
		return fmt.Errorf("annotating %s:%d: %w", t, id, err)
	}
	return nil
}

// Annotations returns all map annotation entries on an image.
func (c *Client) Annotations(ctx context.Context, id omerokv.ImageID) (omerokv.KeyValues, error) {
	var pairs [][2]string
	if err := c.call(ctx, "GET", fmt.Sprintf("/api/image/%d/annotations", id), nil, &pairs); err != nil {
		return nil, err
	}
	return omerokv.KeyValuesFromPairs(pairs), nil
}

// ImagesByAnnotation returns the images carrying an exact key/value entry.  Any failure
// to get an answer from the platform, including authorization, is ErrQueryUnavailable.
func (c *Client) ImagesByAnnotation(ctx context.Context, key, value string) (*omerokv.ImageSet, error) {
	var ids []omerokv.ImageID
	path := queryPath("/api/query/annotation", url.Values{"key": {key}, "value": {value}})
	if err := c.call(ctx, "GET", path, nil, &ids); err != nil {
		return nil, &omerokv.QueryError{Key: key, Value: value, Err: err}
	}
	return omerokv.NewImageSet(ids...), nil
}
