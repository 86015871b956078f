package query

import (
	"context"
	"reflect"
	"testing"

	"github.com/janelia-flyem/omerokv/omerokv"
)

func TestParseConstraintArgs(t *testing.T) {
	oc, err := ParseConstraintArgs(nil)
	if err != nil || oc.Present() {
		t.Fatalf("no args should be absent, got %+v (%v)\n", oc, err)
	}
	oc, err = ParseConstraintArgs([]string{"Disease=Big", "Lighting=Medium"})
	if err != nil {
		t.Fatalf("unexpected error: %v\n", err)
	}
	if !oc.Present() || !reflect.DeepEqual(oc.Constraints(), sampleConstraints) {
		t.Fatalf("bad constraints: %+v\n", oc)
	}
	if _, err := ParseConstraintArgs([]string{"Disease"}); err == nil {
		t.Fatalf("expected error on malformed constraint\n")
	}
}

func TestFromMap(t *testing.T) {
	if FromMap(nil).Present() {
		t.Fatalf("nil map should be absent\n")
	}
	oc := FromMap(map[string]string{})
	if !oc.Present() || len(oc.Constraints()) != 0 {
		t.Fatalf("empty map should be present and empty\n")
	}
	oc = FromMap(map[string]string{"Year": "2021", "Disease": "Big"})
	expected := []omerokv.KeyValue{{Key: "Disease", Value: "Big"}, {Key: "Year", Value: "2021"}}
	if !reflect.DeepEqual(oc.Constraints(), expected) {
		t.Fatalf("expected sorted constraints %v, got %v\n", expected, oc.Constraints())
	}
}

func TestSomeCopies(t *testing.T) {
	kvs := []omerokv.KeyValue{{Key: "A", Value: "1"}}
	oc := Some(kvs...)
	kvs[0].Value = "2"
	if oc.Constraints()[0].Value != "1" {
		t.Fatalf("Some must copy its input\n")
	}
}

type fakeBrowser struct {
	datasets map[omerokv.ObjectID][]omerokv.ImageID
	projects map[omerokv.ObjectID][]omerokv.ObjectID
}

func (b fakeBrowser) AllImages(ctx context.Context) ([]omerokv.ImageID, error) {
	var ids []omerokv.ImageID
	for _, imgs := range b.datasets {
		ids = append(ids, imgs...)
	}
	return ids, nil
}

func (b fakeBrowser) DatasetImages(ctx context.Context, dataset omerokv.ObjectID) ([]omerokv.ImageID, error) {
	imgs, found := b.datasets[dataset]
	if !found {
		return nil, omerokv.ErrNotFound
	}
	return imgs, nil
}

func (b fakeBrowser) ProjectDatasets(ctx context.Context, project omerokv.ObjectID) ([]omerokv.ObjectID, error) {
	ds, found := b.projects[project]
	if !found {
		return nil, omerokv.ErrNotFound
	}
	return ds, nil
}

func TestCandidates(t *testing.T) {
	b := fakeBrowser{
		datasets: map[omerokv.ObjectID][]omerokv.ImageID{10: {1, 2}, 11: {3}, 12: {4, 5}},
		projects: map[omerokv.ObjectID][]omerokv.ObjectID{100: {10, 11}},
	}
	tests := []struct {
		scope    string
		expected *omerokv.ImageSet
	}{
		{"", omerokv.NewImageSet(1, 2, 3, 4, 5)},
		{"Image:7", omerokv.NewImageSet(7)},
		{"Dataset:12", omerokv.NewImageSet(4, 5)},
		{"project:100", omerokv.NewImageSet(1, 2, 3)},
	}
	for _, tc := range tests {
		scope, err := ParseScope(tc.scope)
		if err != nil {
			t.Fatalf("ParseScope(%q): %v\n", tc.scope, err)
		}
		got, err := Candidates(context.Background(), b, scope)
		if err != nil {
			t.Fatalf("Candidates(%s): %v\n", scope, err)
		}
		if !got.Equal(tc.expected) {
			t.Fatalf("Candidates(%s) = %s, expected %s\n", scope, got, tc.expected)
		}
	}
	if _, err := Candidates(context.Background(), b, Scope{Type: omerokv.DatasetType, ID: 99}); err == nil {
		t.Fatalf("expected error for unknown dataset\n")
	}
	for _, bad := range []string{"Dataset", "Plate:3", "Dataset:x"} {
		if _, err := ParseScope(bad); err == nil {
			t.Fatalf("expected error parsing scope %q\n", bad)
		}
	}
}
