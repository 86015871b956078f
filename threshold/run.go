package threshold

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/janelia-flyem/omerokv/omerokv"
	"github.com/janelia-flyem/omerokv/query"
)

// Store is what a threshold run needs from the image platform.
type Store interface {
	query.Browser
	query.AnnotationIndex
	GetImage(ctx context.Context, id omerokv.ImageID) (omerokv.ImageInfo, error)
	Planes(ctx context.Context, info omerokv.ImageInfo) ([][]byte, error)
	CreateImage(ctx context.Context, img omerokv.NewImage) (omerokv.ImageID, error)
	CreateDataset(ctx context.Context, name string, project omerokv.ObjectID) (omerokv.ObjectID, error)
	Annotations(ctx context.Context, id omerokv.ImageID) (omerokv.KeyValues, error)
	AddAnnotation(ctx context.Context, t omerokv.ObjectType, id omerokv.ObjectID, kvs omerokv.KeyValues) error
}

// Result sums up a threshold run.
type Result struct {
	Sources []omerokv.ImageID // images thresholded, in id order
	Created []omerokv.ImageID // matching thresholded images
	Dataset omerokv.ObjectID  // output dataset, 0 if each image stayed in its source dataset
	Elapsed time.Duration
}

// Message is the run summary shown to users.
func (r Result) Message() string {
	secs := math.Round(r.Elapsed.Seconds()*100) / 100
	return fmt.Sprintf("Processed %d images in %s seconds.", len(r.Created), strconv.FormatFloat(secs, 'f', -1, 64))
}

// Run thresholds the images in the job's scope that match its query.  Each output
// image goes to the job's output dataset if given, else to its source's dataset.
// The first failure stops the run; images already created are kept and reported.
func Run(ctx context.Context, store Store, job Job) (Result, error) {
	timedLog := omerokv.NewTimeLog()
	var result Result
	if err := job.Validate(); err != nil {
		return result, err
	}
	candidates, err := query.Candidates(ctx, store, job.CandidateScope())
	if err != nil {
		return result, err
	}
	selected, err := query.FilterOptional(ctx, store, candidates, job.Constraints())
	if err != nil {
		return result, err
	}
	ids := selected.IDs()
	omerokv.Infof("Thresholding %d of %d candidate images in %s\n", len(ids), candidates.Len(), job.CandidateScope())
	if len(ids) == 0 {
		result.Elapsed = timedLog.Elapsed()
		return result, nil
	}

	if id, ok := job.outputDatasetID(); ok {
		result.Dataset = id
	} else if job.OutputDataset != "" {
		first, err := store.GetImage(ctx, ids[0])
		if err != nil {
			return result, err
		}
		result.Dataset, err = store.CreateDataset(ctx, job.OutputDataset, first.Project)
		if err != nil {
			return result, err
		}
		omerokv.Infof("Created output dataset %q (%d) in project %d\n", job.OutputDataset, result.Dataset, first.Project)
	}

	for _, id := range ids {
		created, err := processImage(ctx, store, job, id, result.Dataset)
		if created != 0 {
			result.Sources = append(result.Sources, id)
			result.Created = append(result.Created, created)
		}
		if err != nil {
			result.Elapsed = timedLog.Elapsed()
			return result, fmt.Errorf("thresholding image %d: %w", id, err)
		}
	}
	result.Elapsed = timedLog.Elapsed()
	omerokv.Infof("%s\n", result.Message())
	return result, nil
}

func processImage(ctx context.Context, store Store, job Job, id omerokv.ImageID, dataset omerokv.ObjectID) (omerokv.ImageID, error) {
	timedLog := omerokv.NewTimeLog()
	info, err := store.GetImage(ctx, id)
	if err != nil {
		return 0, err
	}
	planes, err := store.Planes(ctx, info)
	if err != nil {
		return 0, err
	}
	masked, err := Transform(info, planes, job.Thresholds)
	if err != nil {
		return 0, err
	}
	if dataset == 0 {
		dataset = info.Dataset
	}
	newID, err := store.CreateImage(ctx, omerokv.NewImage{
		Name:    job.OutputName(info),
		SizeX:   info.SizeX,
		SizeY:   info.SizeY,
		SizeZ:   info.SizeZ,
		SizeC:   info.SizeC,
		SizeT:   info.SizeT,
		Source:  info.ID,
		Dataset: dataset,
		Planes:  masked,
	})
	if err != nil {
		return 0, err
	}
	if job.CopyKV {
		kvs, err := store.Annotations(ctx, id)
		if err != nil {
			return newID, err
		}
		if len(kvs) != 0 {
			if err := store.AddAnnotation(ctx, omerokv.ImageType, omerokv.ObjectID(newID), kvs); err != nil {
				return newID, err
			}
		}
	}
	timedLog.Debugf("thresholded image %d (%s) into image %d\n", id, info.Name, newID)
	return newID, nil
}
