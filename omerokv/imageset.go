package omerokv

import (
	"fmt"
	"strings"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

// ImageSet is a set of image identifiers backed by a 64-bit roaring bitmap.
// The zero value is not usable; use NewImageSet.
type ImageSet struct {
	rb *roaring64.Bitmap
}

// NewImageSet returns a set holding the given ids.
func NewImageSet(ids ...ImageID) *ImageSet {
	s := &ImageSet{rb: roaring64.New()}
	for _, id := range ids {
		s.rb.Add(uint64(id))
	}
	return s
}

// Add inserts an id.
func (s *ImageSet) Add(id ImageID) {
	s.rb.Add(uint64(id))
}

// Contains returns true if the id is in the set.
func (s *ImageSet) Contains(id ImageID) bool {
	return s.rb.Contains(uint64(id))
}

// Len returns the number of ids.
func (s *ImageSet) Len() int {
	if s == nil {
		return 0
	}
	return int(s.rb.GetCardinality())
}

// IsEmpty returns true if the set is nil or has no ids.
func (s *ImageSet) IsEmpty() bool {
	return s == nil || s.rb.IsEmpty()
}

// Clone returns a deep copy.
func (s *ImageSet) Clone() *ImageSet {
	if s == nil {
		return NewImageSet()
	}
	return &ImageSet{rb: s.rb.Clone()}
}

// And intersects the set in place with other.  A nil other empties the set.
func (s *ImageSet) And(other *ImageSet) {
	if other == nil {
		s.rb.Clear()
		return
	}
	s.rb.And(other.rb)
}

// Or merges other into the set.
func (s *ImageSet) Or(other *ImageSet) {
	if other != nil {
		s.rb.Or(other.rb)
	}
}

// IsSubset returns true if every id of s is in other.
func (s *ImageSet) IsSubset(other *ImageSet) bool {
	if s.IsEmpty() {
		return true
	}
	if other == nil {
		return false
	}
	return s.rb.AndCardinality(other.rb) == s.rb.GetCardinality()
}

// Equal returns true if both sets hold the same ids.
func (s *ImageSet) Equal(other *ImageSet) bool {
	if s.IsEmpty() || other.IsEmpty() {
		return s.IsEmpty() && other.IsEmpty()
	}
	return s.rb.Equals(other.rb)
}

// IDs returns the ids in ascending order.
func (s *ImageSet) IDs() []ImageID {
	if s == nil {
		return nil
	}
	ids := make([]ImageID, 0, s.rb.GetCardinality())
	it := s.rb.Iterator()
	for it.HasNext() {
		ids = append(ids, ImageID(it.Next()))
	}
	return ids
}

func (s *ImageSet) String() string {
	ids := s.IDs()
	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = id.String()
	}
	return fmt.Sprintf("{%s}", strings.Join(strs, ","))
}
