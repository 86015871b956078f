/*
	Package imgimport uploads image files from a blob bucket into the image platform.
	Each top-level folder of the bucket names the dataset its images go into.
*/
package imgimport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/janelia-flyem/omerokv/journal"
	"github.com/janelia-flyem/omerokv/omerokv"
	"gocloud.dev/blob"
	"golang.org/x/sync/errgroup"

	// Register bucket URL schemes.
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/s3blob"
)

// Importer finds datasets and uploads image files.
type Importer interface {
	FindByName(ctx context.Context, t omerokv.ObjectType, name string) (omerokv.ObjectID, error)
	ImportImage(ctx context.Context, dataset omerokv.ObjectID, name string, r io.Reader) (omerokv.ImageID, error)
}

// File is an image file in the bucket destined for a dataset.
type File struct {
	Key     string // object key in the bucket
	Dataset string // top-level folder
	Size    int64
}

// Name is the file name the image gets in the platform.
func (f File) Name() string {
	return path.Base(f.Key)
}

// Report sums up an import run.
type Report struct {
	Files      int
	Bytes      int64
	Skipped    int
	Failed     int
	PerDataset map[string]int
}

// List returns the image files under each top-level folder of the bucket in key order.
// Files at the top level belong to no dataset and are ignored.
func List(ctx context.Context, bucket *blob.Bucket, config Config) ([]File, error) {
	var files []File
	top := bucket.List(&blob.ListOptions{Delimiter: "/"})
	for {
		obj, err := top.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("listing bucket folders: %v", err)
		}
		if !obj.IsDir {
			omerokv.Debugf("ignoring top-level file %q outside a dataset folder\n", obj.Key)
			continue
		}
		dataset := strings.TrimSuffix(obj.Key, "/")
		it := bucket.List(&blob.ListOptions{Prefix: obj.Key})
		for {
			child, err := it.Next(ctx)
			if err == io.EOF {
				break
			}
			if err != nil {
				return nil, fmt.Errorf("listing folder %q: %v", dataset, err)
			}
			if child.IsDir || !config.isImage(child.Key) {
				continue
			}
			files = append(files, File{Key: child.Key, Dataset: dataset, Size: child.Size})
		}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Key < files[j].Key })
	return files, nil
}

// Run imports every listed image into the dataset named by its folder, skipping files
// the journal has seen.  Failures of single files are logged and counted.  A folder
// without a matching dataset, or an ambiguous one, fails the whole run before any
// upload.  A nil journal disables skipping.
func Run(ctx context.Context, imp Importer, bucket *blob.Bucket, config Config, j *journal.Journal) (Report, error) {
	report := Report{PerDataset: make(map[string]int)}
	files, err := List(ctx, bucket, config)
	if err != nil {
		return report, err
	}

	datasets := make(map[string]omerokv.ObjectID)
	for _, f := range files {
		if _, found := datasets[f.Dataset]; found {
			continue
		}
		id, err := imp.FindByName(ctx, omerokv.DatasetType, f.Dataset)
		if err != nil {
			return report, fmt.Errorf("dataset for folder %q: %w", f.Dataset, err)
		}
		datasets[f.Dataset] = id
	}

	var mu sync.Mutex
	var journalErr error
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(config.workers())
	for _, f := range files {
		f := f
		key := journal.FileKey(f.Dataset, f.Key)
		if j != nil {
			seen, err := j.Seen(journal.ImportedFile, key)
			if err != nil {
				journalErr = fmt.Errorf("checking journal for %q: %w", f.Key, err)
				break
			}
			if seen {
				report.Skipped++
				continue
			}
		}
		g.Go(func() error {
			id, err := uploadFile(gctx, imp, bucket, f, datasets[f.Dataset])
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				omerokv.Errorf("unable to import %q: %v\n", f.Key, err)
				mu.Lock()
				report.Failed++
				mu.Unlock()
				return nil
			}
			if j != nil {
				if err := j.Record(journal.ImportedFile, key, uint64(id)); err != nil {
					return err
				}
			}
			mu.Lock()
			report.Files++
			report.Bytes += f.Size
			report.PerDataset[f.Dataset]++
			mu.Unlock()
			return nil
		})
	}
	// Uploads already started must finish before the report is handed back.
	err = g.Wait()
	if journalErr != nil {
		return report, journalErr
	}
	return report, err
}

func uploadFile(ctx context.Context, imp Importer, bucket *blob.Bucket, f File, dataset omerokv.ObjectID) (omerokv.ImageID, error) {
	r, err := bucket.NewReader(ctx, f.Key, nil)
	if err != nil {
		return 0, err
	}
	defer r.Close()
	timedLog := omerokv.NewTimeLog()
	id, err := imp.ImportImage(ctx, dataset, f.Name(), r)
	if err != nil {
		return 0, err
	}
	timedLog.Debugf("imported %q (%d bytes) as image %d into dataset %q\n", f.Key, f.Size, id, f.Dataset)
	return id, nil
}
