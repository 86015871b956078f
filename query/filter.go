package query

import (
	"context"
	"errors"
	"fmt"

	"github.com/janelia-flyem/omerokv/omerokv"
)

// AnnotationIndex finds the images carrying an exact key/value annotation entry.
// It returns an empty set, not an error, when nothing matches.
type AnnotationIndex interface {
	ImagesByAnnotation(ctx context.Context, key, value string) (*omerokv.ImageSet, error)
}

// Filter returns the subset of candidates whose annotations contain every constraint.
// An empty constraint list returns a copy of candidates; empty candidates return an
// empty set without querying the index.  If any lookup fails, no result is returned
// and the error satisfies errors.Is(err, omerokv.ErrQueryUnavailable).
func Filter(ctx context.Context, idx AnnotationIndex, candidates *omerokv.ImageSet, constraints []omerokv.KeyValue) (*omerokv.ImageSet, error) {
	result := candidates.Clone()
	for i, kv := range constraints {
		if result.IsEmpty() {
			omerokv.Debugf("filter short-circuit: no candidates left before constraint %d (%s)\n", i, kv)
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, &omerokv.QueryError{Key: kv.Key, Value: kv.Value, Err: err}
		}
		matches, err := idx.ImagesByAnnotation(ctx, kv.Key, kv.Value)
		if err != nil {
			var qerr *omerokv.QueryError
			if errors.As(err, &qerr) {
				return nil, err
			}
			return nil, &omerokv.QueryError{Key: kv.Key, Value: kv.Value, Err: err}
		}
		result.And(matches)
		omerokv.Debugf("filter %s: %d images remain\n", kv, result.Len())
	}
	return result, nil
}

// FilterOptional applies constraints only if present.  Absent constraints leave the
// candidates unchanged and never touch the index.
func FilterOptional(ctx context.Context, idx AnnotationIndex, candidates *omerokv.ImageSet, oc OptionalConstraints) (*omerokv.ImageSet, error) {
	if !oc.Present() {
		return candidates.Clone(), nil
	}
	result, err := Filter(ctx, idx, candidates, oc.Constraints())
	if err != nil {
		return nil, fmt.Errorf("filtering %d candidates: %w", candidates.Len(), err)
	}
	return result, nil
}
