package imgimport

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/janelia-flyem/omerokv/journal"
	"github.com/janelia-flyem/omerokv/memstore"
	"github.com/janelia-flyem/omerokv/omerokv"
	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
)

type storeImporter struct {
	*memstore.Store
}

func (s storeImporter) FindByName(ctx context.Context, t omerokv.ObjectType, name string) (omerokv.ObjectID, error) {
	ids, err := s.Store.FindByName(ctx, t, name)
	if err != nil {
		return 0, err
	}
	switch len(ids) {
	case 0:
		return 0, omerokv.ErrNotFound
	case 1:
		return ids[0], nil
	default:
		return 0, omerokv.ErrAmbiguousName
	}
}

func (s storeImporter) ImportImage(ctx context.Context, dataset omerokv.ObjectID, name string, r io.Reader) (omerokv.ImageID, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	return s.Store.ImportFile(ctx, dataset, name, data)
}

func pngBytes(t *testing.T) []byte {
	img := image.NewGray(image.Rect(0, 0, 3, 2))
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("unable to encode png: %v\n", err)
	}
	return buf.Bytes()
}

func makeSample(t *testing.T) *blob.Bucket {
	dir := t.TempDir()
	files := map[string][]byte{
		"2020/IMG_001.png": pngBytes(t),
		"2020/IMG_002.PNG": pngBytes(t),
		"2021/IMG_003.png": pngBytes(t),
		"2021/notes.txt":   []byte("not an image"),
		"stray.png":        pngBytes(t),
	}
	for name, data := range files {
		fullpath := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(fullpath), 0755); err != nil {
			t.Fatalf("mkdir: %v\n", err)
		}
		if err := os.WriteFile(fullpath, data, 0644); err != nil {
			t.Fatalf("write %s: %v\n", name, err)
		}
	}
	bucket, err := fileblob.OpenBucket(dir, nil)
	if err != nil {
		t.Fatalf("unable to open file bucket: %v\n", err)
	}
	t.Cleanup(func() { bucket.Close() })
	return bucket
}

func TestList(t *testing.T) {
	bucket := makeSample(t)
	files, err := List(context.Background(), bucket, Config{})
	if err != nil {
		t.Fatalf("list: %v\n", err)
	}
	if len(files) != 3 {
		t.Fatalf("expected 3 image files, got %v\n", files)
	}
	if files[0].Dataset != "2020" || files[0].Name() != "IMG_001.png" || files[2].Dataset != "2021" {
		t.Fatalf("unexpected files %v\n", files)
	}
}

func TestRun(t *testing.T) {
	ctx := context.Background()
	bucket := makeSample(t)
	store := memstore.New()
	project, _ := store.CreateProject(ctx, "Demo")
	d2020, _ := store.CreateDataset(ctx, "2020", project)
	store.CreateDataset(ctx, "2021", project)

	j, err := journal.OpenInMemory()
	if err != nil {
		t.Fatalf("journal: %v\n", err)
	}
	defer j.Close()

	report, err := Run(ctx, storeImporter{store}, bucket, Config{Workers: 2}, j)
	if err != nil {
		t.Fatalf("run: %v\n", err)
	}
	if report.Files != 3 || report.Skipped != 0 || report.Failed != 0 || report.PerDataset["2020"] != 2 {
		t.Fatalf("unexpected report %+v\n", report)
	}
	ids, _ := store.DatasetImages(ctx, d2020)
	if len(ids) != 2 {
		t.Fatalf("expected 2 images in dataset 2020, got %v\n", ids)
	}
	info, _ := store.GetImage(ctx, ids[0])
	if info.SizeX != 3 || info.SizeY != 2 || info.Project != project {
		t.Fatalf("unexpected imported image %+v\n", info)
	}

	report, err = Run(ctx, storeImporter{store}, bucket, Config{}, j)
	if err != nil {
		t.Fatalf("second run: %v\n", err)
	}
	if report.Files != 0 || report.Skipped != 3 {
		t.Fatalf("expected second run to skip all files, got %+v\n", report)
	}
	all, _ := store.AllImages(ctx)
	if len(all) != 3 {
		t.Fatalf("expected 3 images after re-run, got %d\n", len(all))
	}
}

func TestRunMissingDataset(t *testing.T) {
	ctx := context.Background()
	bucket := makeSample(t)
	store := memstore.New()
	store.CreateDataset(ctx, "2020", 0)
	_, err := Run(ctx, storeImporter{store}, bucket, Config{}, nil)
	if !errors.Is(err, omerokv.ErrNotFound) {
		t.Fatalf("expected missing dataset 2021 to fail run, got %v\n", err)
	}
	all, _ := store.AllImages(ctx)
	if len(all) != 0 {
		t.Fatalf("expected no uploads before failure, got %v\n", all)
	}
}

// closingImporter closes the journal during its first upload and stays busy for a
// while so any upload still running after Run returns is visible.
type closingImporter struct {
	storeImporter
	j        *journal.Journal
	calls    int32
	inFlight int32
}

func (c *closingImporter) ImportImage(ctx context.Context, dataset omerokv.ObjectID, name string, r io.Reader) (omerokv.ImageID, error) {
	atomic.AddInt32(&c.inFlight, 1)
	defer atomic.AddInt32(&c.inFlight, -1)
	if atomic.AddInt32(&c.calls, 1) == 1 {
		c.j.Close()
	}
	time.Sleep(50 * time.Millisecond)
	return c.storeImporter.ImportImage(ctx, dataset, name, r)
}

func TestRunJournalFailure(t *testing.T) {
	ctx := context.Background()
	bucket := makeSample(t)
	store := memstore.New()
	project, _ := store.CreateProject(ctx, "Demo")
	store.CreateDataset(ctx, "2020", project)
	store.CreateDataset(ctx, "2021", project)

	j, err := journal.OpenInMemory()
	if err != nil {
		t.Fatalf("journal: %v\n", err)
	}
	defer j.Close()

	imp := &closingImporter{storeImporter: storeImporter{store}, j: j}
	report, err := Run(ctx, imp, bucket, Config{Workers: 1}, j)
	if err == nil {
		t.Fatalf("expected closed journal to fail the run\n")
	}
	if n := atomic.LoadInt32(&imp.inFlight); n != 0 {
		t.Fatalf("%d uploads still running after Run returned\n", n)
	}
	if report.Files != 0 {
		t.Fatalf("no upload can be recorded in a closed journal, got report %+v\n", report)
	}
	calls := atomic.LoadInt32(&imp.calls)
	time.Sleep(100 * time.Millisecond)
	if after := atomic.LoadInt32(&imp.calls); after != calls {
		t.Fatalf("uploads started after Run returned: %d before, %d after\n", calls, after)
	}
}
