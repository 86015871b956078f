package query

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/janelia-flyem/omerokv/omerokv"
)

// Browser lists the images reachable from each level of the hierarchy.
type Browser interface {
	AllImages(ctx context.Context) ([]omerokv.ImageID, error)
	DatasetImages(ctx context.Context, dataset omerokv.ObjectID) ([]omerokv.ImageID, error)
	ProjectDatasets(ctx context.Context, project omerokv.ObjectID) ([]omerokv.ObjectID, error)
}

// Scope names the object whose images are candidates.  The zero Scope covers every
// image visible to the session.
type Scope struct {
	Type omerokv.ObjectType
	ID   omerokv.ObjectID
}

// All returns true if the scope covers every image.
func (s Scope) All() bool {
	return s.Type == ""
}

func (s Scope) String() string {
	if s.All() {
		return "all images"
	}
	return fmt.Sprintf("%s:%d", s.Type, s.ID)
}

// ParseScope parses "Type:ID", e.g., "Dataset:49".  The empty string is the zero Scope.
func ParseScope(s string) (Scope, error) {
	if s == "" {
		return Scope{}, nil
	}
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return Scope{}, fmt.Errorf("bad scope %q, expected Type:ID", s)
	}
	t, err := omerokv.ParseObjectType(parts[0])
	if err != nil {
		return Scope{}, err
	}
	id, err := strconv.ParseUint(strings.TrimSpace(parts[1]), 10, 64)
	if err != nil {
		return Scope{}, fmt.Errorf("bad id in scope %q: %v", s, err)
	}
	return Scope{Type: t, ID: omerokv.ObjectID(id)}, nil
}

// Candidates returns the images within the scope.  A project scope is the union of
// the images of all its datasets.
func Candidates(ctx context.Context, b Browser, scope Scope) (*omerokv.ImageSet, error) {
	switch scope.Type {
	case "":
		ids, err := b.AllImages(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing all images: %w", err)
		}
		return omerokv.NewImageSet(ids...), nil
	case omerokv.ImageType:
		return omerokv.NewImageSet(omerokv.ImageID(scope.ID)), nil
	case omerokv.DatasetType:
		ids, err := b.DatasetImages(ctx, scope.ID)
		if err != nil {
			return nil, fmt.Errorf("listing images of %s: %w", scope, err)
		}
		return omerokv.NewImageSet(ids...), nil
	case omerokv.ProjectType:
		datasets, err := b.ProjectDatasets(ctx, scope.ID)
		if err != nil {
			return nil, fmt.Errorf("listing datasets of %s: %w", scope, err)
		}
		result := omerokv.NewImageSet()
		for _, dataset := range datasets {
			ids, err := b.DatasetImages(ctx, dataset)
			if err != nil {
				return nil, fmt.Errorf("listing images of Dataset:%d in %s: %w", dataset, scope, err)
			}
			result.Or(omerokv.NewImageSet(ids...))
		}
		return result, nil
	default:
		return nil, fmt.Errorf("unsupported scope type %q", scope.Type)
	}
}
