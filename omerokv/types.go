package omerokv

import (
	"fmt"
	"strconv"
	"strings"
)

// ClientMapAnnotationNS is the namespace used for key/value map annotations
// written by clients so they are editable in the platform's web client.
const ClientMapAnnotationNS = "openmicroscopy.org/omero/client/mapAnnotation"

// ObjectID identifies a project, dataset or image in the remote store.
type ObjectID uint64

func (id ObjectID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// ImageID identifies an image in the remote store.
type ImageID uint64

func (id ImageID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// ObjectType is the kind of object in the project -> dataset -> image hierarchy.
type ObjectType string

const (
	ProjectType ObjectType = "Project"
	DatasetType ObjectType = "Dataset"
	ImageType   ObjectType = "Image"
)

// ParseObjectType accepts a type name regardless of case.
func ParseObjectType(s string) (ObjectType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "project":
		return ProjectType, nil
	case "dataset":
		return DatasetType, nil
	case "image":
		return ImageType, nil
	default:
		return "", fmt.Errorf("unknown object type %q, must be Project, Dataset or Image", s)
	}
}

// Lower returns the type name as used in API paths.
func (t ObjectType) Lower() string {
	return strings.ToLower(string(t))
}

// KeyValue is a single annotation entry.  Matching on keys and values is exact and
// case-sensitive.
type KeyValue struct {
	Key   string
	Value string
}

func (kv KeyValue) String() string {
	return kv.Key + "=" + kv.Value
}

// ParseKeyValue parses "key=value".  Only the first '=' separates key and value so
// values may contain '='.  Neither side is trimmed.
func ParseKeyValue(s string) (KeyValue, error) {
	pos := strings.Index(s, "=")
	if pos <= 0 {
		return KeyValue{}, fmt.Errorf("bad key/value %q, expected key=value", s)
	}
	return KeyValue{Key: s[:pos], Value: s[pos+1:]}, nil
}

// KeyValues is an ordered list of annotation entries as stored in one map annotation.
type KeyValues []KeyValue

// Pairs returns the entries as [key, value] pairs, the JSON layout used by the store API.
func (kvs KeyValues) Pairs() [][2]string {
	pairs := make([][2]string, len(kvs))
	for i, kv := range kvs {
		pairs[i] = [2]string{kv.Key, kv.Value}
	}
	return pairs
}

// KeyValuesFromPairs converts [key, value] pairs into KeyValues.
func KeyValuesFromPairs(pairs [][2]string) KeyValues {
	kvs := make(KeyValues, len(pairs))
	for i, p := range pairs {
		kvs[i] = KeyValue{Key: p[0], Value: p[1]}
	}
	return kvs
}

// Has returns true if the exact key and value are present.
func (kvs KeyValues) Has(key, value string) bool {
	for _, kv := range kvs {
		if kv.Key == key && kv.Value == value {
			return true
		}
	}
	return false
}

// ImageInfo describes an image and its place in the hierarchy.
type ImageInfo struct {
	ID      ImageID  `json:"id"`
	Name    string   `json:"name"`
	SizeX   int      `json:"sizeX"`
	SizeY   int      `json:"sizeY"`
	SizeZ   int      `json:"sizeZ"`
	SizeC   int      `json:"sizeC"`
	SizeT   int      `json:"sizeT"`
	Dataset ObjectID `json:"dataset,omitempty"` // parent dataset, 0 if orphaned
	Project ObjectID `json:"project,omitempty"` // parent project of the dataset, 0 if none
}

// NumPlanes returns the number of 2d planes in the image.
func (info ImageInfo) NumPlanes() int {
	return info.SizeZ * info.SizeC * info.SizeT
}

// PlaneBytes returns the number of bytes in one 8-bit plane.
func (info ImageInfo) PlaneBytes() int {
	return info.SizeX * info.SizeY
}

// Stem returns the image name without its last extension.
func (info ImageInfo) Stem() string {
	if pos := strings.LastIndex(info.Name, "."); pos > 0 {
		return info.Name[:pos]
	}
	return info.Name
}

// ZCT addresses one plane of an image.
type ZCT struct {
	Z, C, T int
}

// PlaneOrder returns the plane addresses in z, then c, then t order.
func PlaneOrder(sizeZ, sizeC, sizeT int) []ZCT {
	order := make([]ZCT, 0, sizeZ*sizeC*sizeT)
	for z := 0; z < sizeZ; z++ {
		for c := 0; c < sizeC; c++ {
			for t := 0; t < sizeT; t++ {
				order = append(order, ZCT{z, c, t})
			}
		}
	}
	return order
}
