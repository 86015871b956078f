package kvimport

import (
	"context"
	"errors"
	"fmt"

	"github.com/janelia-flyem/omerokv/journal"
	"github.com/janelia-flyem/omerokv/omerokv"
)

// Annotator resolves image names and writes map annotations.
type Annotator interface {
	FindByName(ctx context.Context, t omerokv.ObjectType, name string) (omerokv.ObjectID, error)
	AddAnnotation(ctx context.Context, t omerokv.ObjectType, id omerokv.ObjectID, kvs omerokv.KeyValues) error
}

// RowError is a row that could not be applied.
type RowError struct {
	Row Row
	Err error
}

func (e RowError) Error() string {
	return fmt.Sprintf("line %d (%s): %v", e.Row.Line, e.Row.ImageName, e.Err)
}

func (e RowError) Unwrap() error {
	return e.Err
}

// Summary reports the outcome of an Annotate call.
type Summary struct {
	Rows      int
	Annotated int
	Skipped   int // already annotated in an earlier run
	Failed    []RowError
}

func (s Summary) String() string {
	return fmt.Sprintf("%d rows: %d annotated, %d already done, %d failed", s.Rows, s.Annotated, s.Skipped, len(s.Failed))
}

// Annotate writes one map annotation per row onto the image with the row's name.
// Images recorded in the journal are skipped since applying a sheet twice would link a
// second annotation.  Unknown or ambiguous image names are reported in the summary and
// do not stop the import.  A nil journal disables skipping.  The returned error is
// only for conditions that stop the whole import.
func Annotate(ctx context.Context, a Annotator, rows []Row, j *journal.Journal) (Summary, error) {
	summary := Summary{Rows: len(rows)}
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		objID, err := a.FindByName(ctx, omerokv.ImageType, row.ImageName)
		if err != nil {
			if errors.Is(err, omerokv.ErrNotFound) || errors.Is(err, omerokv.ErrAmbiguousName) {
				omerokv.Warningf("skipping line %d: %v\n", row.Line, err)
				summary.Failed = append(summary.Failed, RowError{Row: row, Err: err})
				continue
			}
			return summary, fmt.Errorf("line %d: %w", row.Line, err)
		}
		imageKey := journal.ImageKey(omerokv.ImageID(objID))
		if j != nil {
			seen, err := j.Seen(journal.AnnotatedImage, imageKey)
			if err != nil {
				return summary, err
			}
			if seen {
				omerokv.Debugf("image %q (%d) already annotated, skipping\n", row.ImageName, objID)
				summary.Skipped++
				continue
			}
		}
		if err := a.AddAnnotation(ctx, omerokv.ImageType, objID, row.Values); err != nil {
			if errors.Is(err, omerokv.ErrNotFound) {
				summary.Failed = append(summary.Failed, RowError{Row: row, Err: err})
				continue
			}
			return summary, fmt.Errorf("line %d: %w", row.Line, err)
		}
		if j != nil {
			if err := j.Record(journal.AnnotatedImage, imageKey, uint64(objID)); err != nil {
				return summary, err
			}
		}
		summary.Annotated++
	}
	return summary, nil
}
