package query

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/janelia-flyem/omerokv/omerokv"
)

// annotations keyed by image id, each a list of entries.
type fakeIndex struct {
	entries map[omerokv.ImageID]omerokv.KeyValues
	fail    map[string]error // keyed by "key=value"
	calls   []omerokv.KeyValue
}

func (f *fakeIndex) ImagesByAnnotation(ctx context.Context, key, value string) (*omerokv.ImageSet, error) {
	kv := omerokv.KeyValue{Key: key, Value: value}
	f.calls = append(f.calls, kv)
	if err, found := f.fail[kv.String()]; found {
		return nil, err
	}
	result := omerokv.NewImageSet()
	for id, kvs := range f.entries {
		if kvs.Has(key, value) {
			result.Add(id)
		}
	}
	return result, nil
}

func sampleIndex() *fakeIndex {
	return &fakeIndex{
		entries: map[omerokv.ImageID]omerokv.KeyValues{
			1: {{Key: "Disease", Value: "Big"}, {Key: "Lighting", Value: "Medium"}},
			2: {{Key: "Disease", Value: "Big"}, {Key: "Lighting", Value: "Low"}},
			3: {{Key: "Disease", Value: "Small"}, {Key: "Lighting", Value: "Medium"}},
			9: {{Key: "Disease", Value: "Big"}, {Key: "Lighting", Value: "Medium"}}, // not a candidate
		},
	}
}

var sampleConstraints = []omerokv.KeyValue{{Key: "Disease", Value: "Big"}, {Key: "Lighting", Value: "Medium"}}

func TestFilterExample(t *testing.T) {
	idx := sampleIndex()
	result, err := Filter(context.Background(), idx, omerokv.NewImageSet(1, 2, 3, 4), sampleConstraints)
	if err != nil {
		t.Fatalf("unexpected error: %v\n", err)
	}
	if !result.Equal(omerokv.NewImageSet(1)) {
		t.Fatalf("expected {1}, got %s\n", result)
	}
}

func TestFilterNoMatch(t *testing.T) {
	result, err := Filter(context.Background(), sampleIndex(), omerokv.NewImageSet(1, 2, 3),
		[]omerokv.KeyValue{{Key: "Species", Value: "Unknown"}})
	if err != nil {
		t.Fatalf("unexpected error: %v\n", err)
	}
	if !result.IsEmpty() {
		t.Fatalf("expected empty result, got %s\n", result)
	}
}

func TestFilterIdentity(t *testing.T) {
	idx := sampleIndex()
	for _, candidates := range []*omerokv.ImageSet{omerokv.NewImageSet(), omerokv.NewImageSet(7), omerokv.NewImageSet(1, 2, 3, 4)} {
		result, err := Filter(context.Background(), idx, candidates, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v\n", err)
		}
		if !result.Equal(candidates) {
			t.Fatalf("identity violated: %s -> %s\n", candidates, result)
		}
		result.Add(1000)
		if candidates.Contains(1000) {
			t.Fatalf("result must not alias the candidate set\n")
		}
	}
	if len(idx.calls) != 0 {
		t.Fatalf("no lookups expected without constraints, got %v\n", idx.calls)
	}
}

func TestFilterAbsorption(t *testing.T) {
	idx := sampleIndex()
	result, err := Filter(context.Background(), idx, omerokv.NewImageSet(), sampleConstraints)
	if err != nil {
		t.Fatalf("unexpected error: %v\n", err)
	}
	if !result.IsEmpty() {
		t.Fatalf("expected empty result, got %s\n", result)
	}
	result, err = Filter(context.Background(), idx, nil, sampleConstraints)
	if err != nil || !result.IsEmpty() {
		t.Fatalf("expected empty result from nil candidates, got %s (%v)\n", result, err)
	}
}

func TestFilterMonotonicAndSubset(t *testing.T) {
	idx := sampleIndex()
	candidates := omerokv.NewImageSet(1, 2, 3, 4)
	constraints := []omerokv.KeyValue{{Key: "Disease", Value: "Big"}, {Key: "Lighting", Value: "Medium"}, {Key: "Disease", Value: "Small"}}
	prev := candidates
	for n := 1; n <= len(constraints); n++ {
		result, err := Filter(context.Background(), idx, candidates, constraints[:n])
		if err != nil {
			t.Fatalf("unexpected error: %v\n", err)
		}
		if !result.IsSubset(prev) {
			t.Fatalf("prefix %d result %s not a subset of %s\n", n, result, prev)
		}
		if !result.IsSubset(candidates) {
			t.Fatalf("result %s escapes candidates %s\n", result, candidates)
		}
		prev = result
	}
	if !prev.IsEmpty() {
		t.Fatalf("contradictory constraints should yield empty set, got %s\n", prev)
	}
}

func TestFilterCommutative(t *testing.T) {
	idx := sampleIndex()
	candidates := omerokv.NewImageSet(1, 2, 3, 4, 9)
	orders := [][]omerokv.KeyValue{
		{{Key: "Disease", Value: "Big"}, {Key: "Lighting", Value: "Medium"}},
		{{Key: "Lighting", Value: "Medium"}, {Key: "Disease", Value: "Big"}},
	}
	var first *omerokv.ImageSet
	for _, order := range orders {
		result, err := Filter(context.Background(), idx, candidates, order)
		if err != nil {
			t.Fatalf("unexpected error: %v\n", err)
		}
		if first == nil {
			first = result
		} else if !first.Equal(result) {
			t.Fatalf("order changed result: %s vs %s\n", first, result)
		}
	}
	if !first.Equal(omerokv.NewImageSet(1, 9)) {
		t.Fatalf("expected {1,9}, got %s\n", first)
	}
}

func TestFilterExactMatch(t *testing.T) {
	idx := sampleIndex()
	for _, kv := range []omerokv.KeyValue{{Key: "disease", Value: "Big"}, {Key: "Disease", Value: "big"}, {Key: "Disease", Value: "Big "}, {Key: "Disease", Value: "Bi"}} {
		result, err := Filter(context.Background(), idx, omerokv.NewImageSet(1, 2, 3), []omerokv.KeyValue{kv})
		if err != nil {
			t.Fatalf("unexpected error: %v\n", err)
		}
		if !result.IsEmpty() {
			t.Fatalf("%s should not match anything, got %s\n", kv, result)
		}
	}
}

func TestFilterQueryUnavailable(t *testing.T) {
	idx := sampleIndex()
	cause := fmt.Errorf("dial tcp 127.0.0.1:4064: connection refused")
	idx.fail = map[string]error{"Lighting=Medium": cause}
	result, err := Filter(context.Background(), idx, omerokv.NewImageSet(1, 2, 3, 4), sampleConstraints)
	if err == nil {
		t.Fatalf("expected error on lookup failure\n")
	}
	if result != nil {
		t.Fatalf("no partial result may be returned, got %s\n", result)
	}
	if !errors.Is(err, omerokv.ErrQueryUnavailable) || !errors.Is(err, cause) {
		t.Fatalf("expected QueryUnavailable wrapping cause, got %v\n", err)
	}
	var qe *omerokv.QueryError
	if !errors.As(err, &qe) || qe.Key != "Lighting" || qe.Value != "Medium" {
		t.Fatalf("expected failing constraint in error, got %v\n", err)
	}
}

func TestFilterKeepsIndexQueryError(t *testing.T) {
	idx := sampleIndex()
	cause := fmt.Errorf("GET /api/query/annotation returned 503")
	idx.fail = map[string]error{"Disease=Big": &omerokv.QueryError{Key: "Disease", Value: "Big", Err: cause}}
	_, err := Filter(context.Background(), idx, omerokv.NewImageSet(1, 2), sampleConstraints)
	var qe *omerokv.QueryError
	if !errors.As(err, &qe) || qe.Err != cause {
		t.Fatalf("expected index QueryError passed through, got %v\n", err)
	}
	expected := "query unavailable for Disease=Big: " + cause.Error()
	if err.Error() != expected {
		t.Fatalf("expected error %q, got %q\n", expected, err.Error())
	}
}

func TestFilterShortCircuit(t *testing.T) {
	idx := sampleIndex()
	constraints := []omerokv.KeyValue{{Key: "Species", Value: "Unknown"}, {Key: "Disease", Value: "Big"}, {Key: "Lighting", Value: "Medium"}}
	if _, err := Filter(context.Background(), idx, omerokv.NewImageSet(1, 2, 3), constraints); err != nil {
		t.Fatalf("unexpected error: %v\n", err)
	}
	if len(idx.calls) != 1 {
		t.Fatalf("expected a single lookup before short-circuit, got %v\n", idx.calls)
	}
}

func TestFilterCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Filter(ctx, sampleIndex(), omerokv.NewImageSet(1), sampleConstraints)
	if !errors.Is(err, omerokv.ErrQueryUnavailable) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled QueryUnavailable, got %v\n", err)
	}
}

func TestFilterOptional(t *testing.T) {
	idx := sampleIndex()
	candidates := omerokv.NewImageSet(1, 2, 3, 4)

	result, err := FilterOptional(context.Background(), idx, candidates, None())
	if err != nil || !result.Equal(candidates) {
		t.Fatalf("absent constraints should be identity, got %s (%v)\n", result, err)
	}
	if len(idx.calls) != 0 {
		t.Fatalf("absent constraints must not query the index\n")
	}

	result, err = FilterOptional(context.Background(), idx, candidates, FromMap(map[string]string{"Lighting": "Medium", "Disease": "Big"}))
	if err != nil || !result.Equal(omerokv.NewImageSet(1)) {
		t.Fatalf("expected {1}, got %s (%v)\n", result, err)
	}

	idx.fail = map[string]error{"Disease=Big": fmt.Errorf("permission denied")}
	if _, err = FilterOptional(context.Background(), idx, candidates, FromMap(map[string]string{"Disease": "Big"})); !errors.Is(err, omerokv.ErrQueryUnavailable) {
		t.Fatalf("expected QueryUnavailable, got %v\n", err)
	}
}
