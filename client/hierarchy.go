package client

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net/url"

	"github.com/coocood/freecache"
	"github.com/janelia-flyem/omerokv/omerokv"
)

// CreateProject creates a project and returns its id.
func (c *Client) CreateProject(ctx context.Context, name string) (omerokv.ObjectID, error) {
	var resp omerokv.IDResponse
	if err := c.call(ctx, "POST", "/api/project", omerokv.CreateRequest{Name: name}, &resp); err != nil {
		return 0, fmt.Errorf("creating project %q: %w", name, err)
	}
	return omerokv.ObjectID(resp.ID), nil
}

// CreateDataset creates a dataset and, if project is nonzero, links it to the project.
func (c *Client) CreateDataset(ctx context.Context, name string, project omerokv.ObjectID) (omerokv.ObjectID, error) {
	var resp omerokv.IDResponse
	req := omerokv.CreateRequest{Name: name, Project: project}
	if err := c.call(ctx, "POST", "/api/dataset", req, &resp); err != nil {
		return 0, fmt.Errorf("creating dataset %q: %w", name, err)
	}
	return omerokv.ObjectID(resp.ID), nil
}

// LinkDataset links a dataset to a project.
func (c *Client) LinkDataset(ctx context.Context, project, dataset omerokv.ObjectID) error {
	path := fmt.Sprintf("/api/project/%d/datasets/%d", project, dataset)
	return c.call(ctx, "POST", path, nil, nil)
}

// LinkImage links an image to a dataset.
func (c *Client) LinkImage(ctx context.Context, dataset omerokv.ObjectID, img omerokv.ImageID) error {
	path := fmt.Sprintf("/api/dataset/%d/images/%d", dataset, img)
	return c.call(ctx, "POST", path, nil, nil)
}

func nameCacheKey(t omerokv.ObjectType, name string) []byte {
	return []byte(string(t) + "\x00" + name)
}

// FindByName returns the id of the single object of the given type with the exact name.
// Names are not unique in the platform, so ErrAmbiguousName is returned if more than
// one object matches and ErrNotFound if none does.  Unique matches are cached.
func (c *Client) FindByName(ctx context.Context, t omerokv.ObjectType, name string) (omerokv.ObjectID, error) {
	key := nameCacheKey(t, name)
	if v, err := c.names.Get(key); err == nil && len(v) == 8 {
		return omerokv.ObjectID(binary.LittleEndian.Uint64(v)), nil
	} else if err != nil && err != freecache.ErrNotFound {
		omerokv.Warningf("name cache lookup of %s %q: %v\n", t, name, err)
	}

	var ids []omerokv.ObjectID
	path := queryPath("/api/find/"+t.Lower(), url.Values{"name": {name}})
	if err := c.call(ctx, "GET", path, nil, &ids); err != nil {
		return 0, fmt.Errorf("finding %s %q: %w", t, name, err)
	}
	switch len(ids) {
	case 0:
		return 0, fmt.Errorf("%s %q: %w", t, name, omerokv.ErrNotFound)
	case 1:
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, uint64(ids[0]))
		if err := c.names.Set(key, buf, c.nameTTL); err != nil {
			omerokv.Warningf("unable to cache id of %s %q: %v\n", t, name, err)
		}
		return ids[0], nil
	default:
		return 0, fmt.Errorf("%d objects of type %s named %q: %w", len(ids), t, name, omerokv.ErrAmbiguousName)
	}
}

// AllImages returns every image visible to the session.
func (c *Client) AllImages(ctx context.Context) ([]omerokv.ImageID, error) {
	var ids []omerokv.ImageID
	if err := c.call(ctx, "GET", "/api/images", nil, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// DatasetImages returns the images in a dataset.
func (c *Client) DatasetImages(ctx context.Context, dataset omerokv.ObjectID) ([]omerokv.ImageID, error) {
	var ids []omerokv.ImageID
	if err := c.call(ctx, "GET", fmt.Sprintf("/api/dataset/%d/images", dataset), nil, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// ProjectDatasets returns the datasets in a project.
func (c *Client) ProjectDatasets(ctx context.Context, project omerokv.ObjectID) ([]omerokv.ObjectID, error) {
	var ids []omerokv.ObjectID
	if err := c.call(ctx, "GET", fmt.Sprintf("/api/project/%d/datasets", project), nil, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// GetImage returns image metadata including the parent dataset and project.
func (c *Client) GetImage(ctx context.Context, id omerokv.ImageID) (omerokv.ImageInfo, error) {
	var info omerokv.ImageInfo
	if err := c.call(ctx, "GET", fmt.Sprintf("/api/image/%d", id), nil, &info); err != nil {
		return omerokv.ImageInfo{}, err
	}
	return info, nil
}

// ImportImage uploads an image file into a dataset.
func (c *Client) ImportImage(ctx context.Context, dataset omerokv.ObjectID, name string, r io.Reader) (omerokv.ImageID, error) {
	path := queryPath(fmt.Sprintf("/api/dataset/%d/import", dataset), url.Values{"name": {name}})
	data, err := c.do(ctx, "POST", path, r, "application/octet-stream")
	if err != nil {
		return 0, fmt.Errorf("importing %q into dataset %d: %w", name, dataset, err)
	}
	var resp omerokv.IDResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return 0, fmt.Errorf("bad import response for %q: %v", name, err)
	}
	return omerokv.ImageID(resp.ID), nil
}
