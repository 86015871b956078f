package query

import (
	"sort"

	"github.com/janelia-flyem/omerokv/omerokv"
)

// OptionalConstraints is a constraint list that is either present or absent.
// A present list may be empty, in which case filtering is the identity.
type OptionalConstraints struct {
	present bool
	kvs     []omerokv.KeyValue
}

// None returns absent constraints.
func None() OptionalConstraints {
	return OptionalConstraints{}
}

// Some returns present constraints holding a copy of kvs.
func Some(kvs ...omerokv.KeyValue) OptionalConstraints {
	cp := make([]omerokv.KeyValue, len(kvs))
	copy(cp, kvs)
	return OptionalConstraints{present: true, kvs: cp}
}

// Present returns true if constraints were given.
func (oc OptionalConstraints) Present() bool {
	return oc.present
}

// Constraints returns the constraint list, nil when absent.
func (oc OptionalConstraints) Constraints() []omerokv.KeyValue {
	return oc.kvs
}

// ParseConstraintArgs parses "key=value" arguments.  No arguments means absent.
func ParseConstraintArgs(args []string) (OptionalConstraints, error) {
	if len(args) == 0 {
		return None(), nil
	}
	kvs := make([]omerokv.KeyValue, 0, len(args))
	for _, arg := range args {
		kv, err := omerokv.ParseKeyValue(arg)
		if err != nil {
			return None(), err
		}
		kvs = append(kvs, kv)
	}
	return Some(kvs...), nil
}

// FromMap converts a key/value map, e.g., a script map parameter, into constraints
// ordered by key.  A nil map is absent.
func FromMap(m map[string]string) OptionalConstraints {
	if m == nil {
		return None()
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	kvs := make([]omerokv.KeyValue, len(keys))
	for i, k := range keys {
		kvs[i] = omerokv.KeyValue{Key: k, Value: m[k]}
	}
	return Some(kvs...)
}
