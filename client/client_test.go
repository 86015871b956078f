package client

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/janelia-flyem/omerokv/omerokv"
	"github.com/janelia-flyem/omerokv/query"
	"github.com/janelia-flyem/omerokv/server"
)

var (
	_ query.AnnotationIndex = (*Client)(nil)
	_ query.Browser         = (*Client)(nil)
)

func openTestClient(t *testing.T, compression string) (*Client, *server.Server) {
	s, ts := server.NewTestServer(t)
	c, err := Open(context.Background(), Config{
		Host:        ts.URL,
		User:        server.TestUser,
		Password:    server.TestPassword,
		Compression: compression,
		RateLimit:   1000,
	})
	if err != nil {
		t.Fatalf("unable to open client on test server: %v\n", err)
	}
	t.Cleanup(func() { c.Close(context.Background()) })
	return c, s
}

func TestOpenBadPassword(t *testing.T) {
	_, ts := server.NewTestServer(t)
	_, err := Open(context.Background(), Config{Host: ts.URL, User: server.TestUser, Password: "nope"})
	if !errors.Is(err, omerokv.ErrUnauthorized) {
		t.Fatalf("expected unauthorized error, got %v\n", err)
	}
}

func TestCloseReleasesSession(t *testing.T) {
	c, _ := openTestClient(t, "")
	ctx := context.Background()
	token := c.getToken()
	if err := c.Close(ctx); err != nil {
		t.Fatalf("close failed: %v\n", err)
	}
	if err := c.Close(ctx); err != nil {
		t.Fatalf("second close should be a no-op, got %v\n", err)
	}
	c.setToken(token)
	if _, err := c.AllImages(ctx); !errors.Is(err, omerokv.ErrUnauthorized) {
		t.Fatalf("expected closed token to be rejected, got %v\n", err)
	}
	c.setToken("")
}

func TestHierarchy(t *testing.T) {
	c, _ := openTestClient(t, "")
	ctx := context.Background()

	project, err := c.CreateProject(ctx, "idr0021")
	if err != nil {
		t.Fatalf("create project: %v\n", err)
	}
	d1, err := c.CreateDataset(ctx, "CDV1", project)
	if err != nil {
		t.Fatalf("create dataset: %v\n", err)
	}
	d2, err := c.CreateDataset(ctx, "CDV2", 0)
	if err != nil {
		t.Fatalf("create dataset: %v\n", err)
	}
	if err := c.LinkDataset(ctx, project, d2); err != nil {
		t.Fatalf("link dataset: %v\n", err)
	}
	datasets, err := c.ProjectDatasets(ctx, project)
	if err != nil {
		t.Fatalf("project datasets: %v\n", err)
	}
	if len(datasets) != 2 || datasets[0] != d1 || datasets[1] != d2 {
		t.Fatalf("expected datasets [%d %d], got %v\n", d1, d2, datasets)
	}

	found, err := c.FindByName(ctx, omerokv.DatasetType, "CDV2")
	if err != nil || found != d2 {
		t.Fatalf("expected to find CDV2 as %d, got %d, %v\n", d2, found, err)
	}
	// cached lookup
	found, err = c.FindByName(ctx, omerokv.DatasetType, "CDV2")
	if err != nil || found != d2 {
		t.Fatalf("expected cached CDV2 as %d, got %d, %v\n", d2, found, err)
	}
	if _, err := c.FindByName(ctx, omerokv.DatasetType, "cdv2"); !errors.Is(err, omerokv.ErrNotFound) {
		t.Fatalf("expected not found for wrong case, got %v\n", err)
	}
	if _, err := c.CreateDataset(ctx, "CDV2", project); err != nil {
		t.Fatalf("create duplicate dataset: %v\n", err)
	}
	if _, err := c.FindByName(ctx, omerokv.DatasetType, "CDV1"); err != nil {
		t.Fatalf("find CDV1: %v\n", err)
	}
	if _, err := c.CreateDataset(ctx, "CDV1", 0); err != nil {
		t.Fatalf("create duplicate dataset: %v\n", err)
	}
	c.names.Clear()
	if _, err := c.FindByName(ctx, omerokv.DatasetType, "CDV1"); !errors.Is(err, omerokv.ErrAmbiguousName) {
		t.Fatalf("expected ambiguous name, got %v\n", err)
	}
	if _, err := c.ProjectDatasets(ctx, 9999); !errors.Is(err, omerokv.ErrNotFound) {
		t.Fatalf("expected not found project, got %v\n", err)
	}
}

func TestImagesAndAnnotations(t *testing.T) {
	for _, compression := range []string{"", "snappy", "lz4", "zstd"} {
		c, _ := openTestClient(t, compression)
		ctx := context.Background()
		dataset, err := c.CreateDataset(ctx, "plates", 0)
		if err != nil {
			t.Fatalf("create dataset: %v\n", err)
		}
		planes := [][]byte{
			bytes.Repeat([]byte{200}, 12),
			bytes.Repeat([]byte{100}, 12),
		}
		id, err := c.CreateImage(ctx, omerokv.NewImage{
			Name: "cell.png", SizeX: 4, SizeY: 3, SizeZ: 1, SizeC: 2, SizeT: 1,
			Dataset: dataset, Planes: planes,
		})
		if err != nil {
			t.Fatalf("create image: %v\n", err)
		}
		info, err := c.GetImage(ctx, id)
		if err != nil {
			t.Fatalf("get image: %v\n", err)
		}
		if info.Name != "cell.png" || info.SizeC != 2 || info.Dataset != dataset {
			t.Fatalf("unexpected image info: %+v\n", info)
		}
		got, err := c.Planes(ctx, info)
		if err != nil {
			t.Fatalf("planes with compression %q: %v\n", compression, err)
		}
		for i := range planes {
			if !bytes.Equal(got[i], planes[i]) {
				t.Fatalf("plane %d differs with compression %q\n", i, compression)
			}
		}

		kvs := omerokv.KeyValues{{Key: "Gene", Value: "CDC20"}, {Key: "Year", Value: "2020"}}
		if err := c.AddAnnotation(ctx, omerokv.ImageType, omerokv.ObjectID(id), kvs); err != nil {
			t.Fatalf("add annotation: %v\n", err)
		}
		ann, err := c.Annotations(ctx, id)
		if err != nil {
			t.Fatalf("annotations: %v\n", err)
		}
		if len(ann) != 2 || !ann.Has("Year", "2020") {
			t.Fatalf("unexpected annotations: %v\n", ann)
		}
		set, err := c.ImagesByAnnotation(ctx, "Gene", "CDC20")
		if err != nil {
			t.Fatalf("query: %v\n", err)
		}
		if !set.Equal(omerokv.NewImageSet(id)) {
			t.Fatalf("expected query result {%d}, got %s\n", id, set)
		}
	}
}

func TestImportImage(t *testing.T) {
	c, _ := openTestClient(t, "")
	ctx := context.Background()
	dataset, err := c.CreateDataset(ctx, "raw", 0)
	if err != nil {
		t.Fatalf("create dataset: %v\n", err)
	}
	id, err := c.ImportImage(ctx, dataset, "notes.bin", bytes.NewBufferString("not an image"))
	if err != nil {
		t.Fatalf("import: %v\n", err)
	}
	ids, err := c.DatasetImages(ctx, dataset)
	if err != nil {
		t.Fatalf("dataset images: %v\n", err)
	}
	if len(ids) != 1 || ids[0] != id {
		t.Fatalf("expected imported image %d in dataset, got %v\n", id, ids)
	}
}

func TestFilterThroughClient(t *testing.T) {
	c, s := openTestClient(t, "")
	ctx := context.Background()
	store := s.Store()
	dataset, _ := store.CreateDataset(ctx, "d", 0)
	var ids []omerokv.ImageID
	for i := 0; i < 4; i++ {
		id, err := c.CreateImage(ctx, omerokv.NewImage{
			Name: "img", SizeX: 1, SizeY: 1, SizeZ: 1, SizeC: 1, SizeT: 1,
			Dataset: dataset, Planes: [][]byte{{0}},
		})
		if err != nil {
			t.Fatalf("create image: %v\n", err)
		}
		ids = append(ids, id)
	}
	annotate := func(id omerokv.ImageID, kvs ...omerokv.KeyValue) {
		if err := c.AddAnnotation(ctx, omerokv.ImageType, omerokv.ObjectID(id), kvs); err != nil {
			t.Fatalf("annotate %d: %v\n", id, err)
		}
	}
	annotate(ids[0], omerokv.KeyValue{Key: "Gene", Value: "CDC20"}, omerokv.KeyValue{Key: "Year", Value: "2020"})
	annotate(ids[1], omerokv.KeyValue{Key: "Gene", Value: "CDC20"}, omerokv.KeyValue{Key: "Year", Value: "2019"})
	annotate(ids[2], omerokv.KeyValue{Key: "Gene", Value: "ACTB"}, omerokv.KeyValue{Key: "Year", Value: "2020"})

	candidates, err := query.Candidates(ctx, c, query.Scope{Type: omerokv.DatasetType, ID: dataset})
	if err != nil {
		t.Fatalf("candidates: %v\n", err)
	}
	constraints := []omerokv.KeyValue{{Key: "Gene", Value: "CDC20"}, {Key: "Year", Value: "2020"}}
	result, err := query.Filter(ctx, c, candidates, constraints)
	if err != nil {
		t.Fatalf("filter: %v\n", err)
	}
	if !result.Equal(omerokv.NewImageSet(ids[0])) {
		t.Fatalf("expected {%d}, got %s\n", ids[0], result)
	}

	s.SetQueryUnavailable(true)
	result, err = query.Filter(ctx, c, candidates, constraints)
	if !errors.Is(err, omerokv.ErrQueryUnavailable) {
		t.Fatalf("expected query unavailable, got %v\n", err)
	}
	if result != nil {
		t.Fatalf("expected no partial result, got %s\n", result)
	}
	var qerr *omerokv.QueryError
	if !errors.As(err, &qerr) || qerr.Key != "Gene" {
		t.Fatalf("expected failing constraint Gene to be named, got %v\n", err)
	}
	if n := strings.Count(err.Error(), omerokv.ErrQueryUnavailable.Error()); n != 1 {
		t.Fatalf("failing constraint should be reported once, got %q\n", err)
	}
	s.SetQueryUnavailable(false)

	// An empty key is a valid exact match against both the client and the store.
	noKey := []omerokv.KeyValue{{Key: "", Value: "CDC20"}}
	remote, err := query.Filter(ctx, c, candidates, noKey)
	if err != nil {
		t.Fatalf("filter with empty key through client: %v\n", err)
	}
	local, err := query.Filter(ctx, store, candidates, noKey)
	if err != nil {
		t.Fatalf("filter with empty key in store: %v\n", err)
	}
	if !remote.Equal(local) || !remote.IsEmpty() {
		t.Fatalf("empty key should match nothing in both, got client %s and store %s\n", remote, local)
	}
}

func TestIncompatibleHost(t *testing.T) {
	if _, err := Open(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error opening client without host\n")
	}
	if _, err := Open(context.Background(), Config{Host: "http://localhost:1", Compression: "gzip"}); err == nil {
		t.Fatalf("expected error on unknown compression\n")
	}
}
