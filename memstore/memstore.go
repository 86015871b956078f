/*
	Package memstore holds an in-memory project -> dataset -> image hierarchy with key/value
	map annotations.  It backs the store emulator and is handy wherever a query.AnnotationIndex
	or query.Browser is needed without a remote server.
*/
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/janelia-flyem/omerokv/omerokv"
)

type object struct {
	id       omerokv.ObjectID
	typ      omerokv.ObjectType
	name     string
	children []omerokv.ObjectID // datasets for projects, images for datasets
	parent   omerokv.ObjectID
}

type imageRecord struct {
	info   omerokv.ImageInfo
	planes map[omerokv.ZCT][]byte
	raw    []byte // file bytes if imported from a file
	source omerokv.ImageID
}

type annotation struct {
	ns     string
	values omerokv.KeyValues
}

// Store is a concurrency-safe in-memory image store.
type Store struct {
	mu sync.RWMutex

	nextID uint64

	objects     map[omerokv.ObjectID]*object
	images      map[omerokv.ImageID]*imageRecord
	annotations map[omerokv.ObjectID][]annotation

	// inverted index of image annotations: key -> value -> image ids
	inverted map[string]map[string]*roaring64.Bitmap
}

// New returns an empty store.
func New() *Store {
	return &Store{
		objects:     make(map[omerokv.ObjectID]*object),
		images:      make(map[omerokv.ImageID]*imageRecord),
		annotations: make(map[omerokv.ObjectID][]annotation),
		inverted:    make(map[string]map[string]*roaring64.Bitmap),
	}
}

// Ids are shared across object types like in the remote store's per-type sequences,
// which keeps an id unambiguous in error messages.
func (s *Store) newIDLocked() uint64 {
	s.nextID++
	return s.nextID
}

func (s *Store) getLocked(t omerokv.ObjectType, id omerokv.ObjectID) (*object, error) {
	obj, found := s.objects[id]
	if !found || obj.typ != t {
		return nil, fmt.Errorf("%s:%d: %w", t, id, omerokv.ErrNotFound)
	}
	return obj, nil
}

// CreateProject adds a project.
func (s *Store) CreateProject(ctx context.Context, name string) (omerokv.ObjectID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := omerokv.ObjectID(s.newIDLocked())
	s.objects[id] = &object{id: id, typ: omerokv.ProjectType, name: name}
	return id, nil
}

// CreateDataset adds a dataset and links it to the project if project is nonzero.
func (s *Store) CreateDataset(ctx context.Context, name string, project omerokv.ObjectID) (omerokv.ObjectID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if project != 0 {
		if _, err := s.getLocked(omerokv.ProjectType, project); err != nil {
			return 0, err
		}
	}
	id := omerokv.ObjectID(s.newIDLocked())
	s.objects[id] = &object{id: id, typ: omerokv.DatasetType, name: name}
	if project != 0 {
		s.linkLocked(s.objects[project], s.objects[id])
	}
	return id, nil
}

func (s *Store) linkLocked(parent, child *object) {
	for _, c := range parent.children {
		if c == child.id {
			return
		}
	}
	parent.children = append(parent.children, child.id)
	child.parent = parent.id
}

// LinkDataset links an existing dataset to a project.
func (s *Store) LinkDataset(ctx context.Context, project, dataset omerokv.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.getLocked(omerokv.ProjectType, project)
	if err != nil {
		return err
	}
	d, err := s.getLocked(omerokv.DatasetType, dataset)
	if err != nil {
		return err
	}
	s.linkLocked(p, d)
	return nil
}

// LinkImage links an existing image to a dataset.
func (s *Store) LinkImage(ctx context.Context, dataset omerokv.ObjectID, img omerokv.ImageID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.getLocked(omerokv.DatasetType, dataset)
	if err != nil {
		return err
	}
	i, err := s.getLocked(omerokv.ImageType, omerokv.ObjectID(img))
	if err != nil {
		return err
	}
	s.linkLocked(d, i)
	return nil
}

// ImageSpec describes a new image built from 8-bit planes.
type ImageSpec struct {
	Name    string
	SizeX   int
	SizeY   int
	SizeZ   int
	SizeC   int
	SizeT   int
	Source  omerokv.ImageID  // image this one was derived from, if any
	Dataset omerokv.ObjectID // dataset to link, if nonzero
}

// checkSizes requires positive dimensions, none of z, c or t exceeding the number of
// planes given.
func (spec ImageSpec) checkSizes(numPlanes int) error {
	if spec.SizeX <= 0 || spec.SizeY <= 0 || spec.SizeZ <= 0 || spec.SizeC <= 0 || spec.SizeT <= 0 {
		return fmt.Errorf("image %q has bad sizes %d x %d x %d x %d x %d", spec.Name,
			spec.SizeX, spec.SizeY, spec.SizeZ, spec.SizeC, spec.SizeT)
	}
	if spec.SizeZ > numPlanes || spec.SizeC > numPlanes || spec.SizeT > numPlanes {
		return fmt.Errorf("image %q needs more than the %d planes given", spec.Name, numPlanes)
	}
	return nil
}

// CreateImage adds an image with planes in omerokv.PlaneOrder.
func (s *Store) CreateImage(ctx context.Context, spec ImageSpec, planes [][]byte) (omerokv.ImageID, error) {
	if err := spec.checkSizes(len(planes)); err != nil {
		return 0, err
	}
	order := omerokv.PlaneOrder(spec.SizeZ, spec.SizeC, spec.SizeT)
	if len(planes) != len(order) {
		return 0, fmt.Errorf("image %q needs %d planes, got %d", spec.Name, len(order), len(planes))
	}
	for i, p := range planes {
		if len(p) != spec.SizeX*spec.SizeY {
			return 0, fmt.Errorf("plane %d of image %q has %d bytes, expected %d", i, spec.Name, len(p), spec.SizeX*spec.SizeY)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if spec.Dataset != 0 {
		if _, err := s.getLocked(omerokv.DatasetType, spec.Dataset); err != nil {
			return 0, err
		}
	}
	id := s.newIDLocked()
	img := &imageRecord{
		info: omerokv.ImageInfo{
			ID:    omerokv.ImageID(id),
			Name:  spec.Name,
			SizeX: spec.SizeX, SizeY: spec.SizeY,
			SizeZ: spec.SizeZ, SizeC: spec.SizeC, SizeT: spec.SizeT,
		},
		planes: make(map[omerokv.ZCT][]byte, len(planes)),
		source: spec.Source,
	}
	for i, zct := range order {
		img.planes[zct] = append([]byte(nil), planes[i]...)
	}
	s.images[img.info.ID] = img
	s.objects[omerokv.ObjectID(id)] = &object{id: omerokv.ObjectID(id), typ: omerokv.ImageType, name: spec.Name}
	if spec.Dataset != 0 {
		s.linkLocked(s.objects[spec.Dataset], s.objects[omerokv.ObjectID(id)])
	}
	return img.info.ID, nil
}

// ImportFile stores raw file bytes as a new image in the dataset.  The file is kept
// as is; pixel planes are only available if DecodePlanes understands the format.
func (s *Store) ImportFile(ctx context.Context, dataset omerokv.ObjectID, name string, data []byte) (omerokv.ImageID, error) {
	spec, planes, err := DecodePlanes(name, data)
	if err != nil {
		omerokv.Debugf("memstore import of %q keeps raw bytes only: %v\n", name, err)
		spec = ImageSpec{Name: name}
		planes = nil
	}
	spec.Dataset = dataset

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.getLocked(omerokv.DatasetType, dataset); err != nil {
		return 0, err
	}
	id := s.newIDLocked()
	img := &imageRecord{
		info: omerokv.ImageInfo{
			ID:    omerokv.ImageID(id),
			Name:  name,
			SizeX: spec.SizeX, SizeY: spec.SizeY,
			SizeZ: spec.SizeZ, SizeC: spec.SizeC, SizeT: spec.SizeT,
		},
		planes: make(map[omerokv.ZCT][]byte),
		raw:    append([]byte(nil), data...),
	}
	for i, zct := range omerokv.PlaneOrder(spec.SizeZ, spec.SizeC, spec.SizeT) {
		if i < len(planes) {
			img.planes[zct] = planes[i]
		}
	}
	s.images[img.info.ID] = img
	s.objects[omerokv.ObjectID(id)] = &object{id: omerokv.ObjectID(id), typ: omerokv.ImageType, name: name}
	s.linkLocked(s.objects[dataset], s.objects[omerokv.ObjectID(id)])
	return img.info.ID, nil
}

// FindByName returns the ids of all objects of a type with the exact name.
func (s *Store) FindByName(ctx context.Context, t omerokv.ObjectType, name string) ([]omerokv.ObjectID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []omerokv.ObjectID
	for id, obj := range s.objects {
		if obj.typ == t && obj.name == name {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// AllImages returns every image id in ascending order.
func (s *Store) AllImages(ctx context.Context) ([]omerokv.ImageID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]omerokv.ImageID, 0, len(s.images))
	for id := range s.images {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// DatasetImages returns the images linked to a dataset in link order.
func (s *Store) DatasetImages(ctx context.Context, dataset omerokv.ObjectID) ([]omerokv.ImageID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, err := s.getLocked(omerokv.DatasetType, dataset)
	if err != nil {
		return nil, err
	}
	ids := make([]omerokv.ImageID, len(d.children))
	for i, c := range d.children {
		ids[i] = omerokv.ImageID(c)
	}
	return ids, nil
}

// ProjectDatasets returns the datasets linked to a project in link order.
func (s *Store) ProjectDatasets(ctx context.Context, project omerokv.ObjectID) ([]omerokv.ObjectID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, err := s.getLocked(omerokv.ProjectType, project)
	if err != nil {
		return nil, err
	}
	return append([]omerokv.ObjectID(nil), p.children...), nil
}

// GetImage returns image metadata including its parents.
func (s *Store) GetImage(ctx context.Context, id omerokv.ImageID) (omerokv.ImageInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	img, found := s.images[id]
	if !found {
		return omerokv.ImageInfo{}, fmt.Errorf("Image:%d: %w", id, omerokv.ErrNotFound)
	}
	info := img.info
	info.Dataset = s.objects[omerokv.ObjectID(id)].parent
	if info.Dataset != 0 {
		info.Project = s.objects[info.Dataset].parent
	}
	return info, nil
}

// Plane returns a copy of one 8-bit plane.
func (s *Store) Plane(ctx context.Context, id omerokv.ImageID, zct omerokv.ZCT) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	img, found := s.images[id]
	if !found {
		return nil, fmt.Errorf("Image:%d: %w", id, omerokv.ErrNotFound)
	}
	p, found := img.planes[zct]
	if !found {
		return nil, fmt.Errorf("plane %v of Image:%d: %w", zct, id, omerokv.ErrNotFound)
	}
	return append([]byte(nil), p...), nil
}

// AddAnnotation attaches a new map annotation to an object.  Image annotations are
// added to the inverted index.
func (s *Store) AddAnnotation(ctx context.Context, t omerokv.ObjectType, id omerokv.ObjectID, ns string, kvs omerokv.KeyValues) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.getLocked(t, id); err != nil {
		return err
	}
	s.annotations[id] = append(s.annotations[id], annotation{ns: ns, values: append(omerokv.KeyValues(nil), kvs...)})
	if t != omerokv.ImageType {
		return nil
	}
	for _, kv := range kvs {
		valueMap, ok := s.inverted[kv.Key]
		if !ok {
			valueMap = make(map[string]*roaring64.Bitmap)
			s.inverted[kv.Key] = valueMap
		}
		bitmap, ok := valueMap[kv.Value]
		if !ok {
			bitmap = roaring64.New()
			valueMap[kv.Value] = bitmap
		}
		bitmap.Add(uint64(id))
	}
	return nil
}

// Annotations returns all entries of all map annotations on an object.
func (s *Store) Annotations(ctx context.Context, t omerokv.ObjectType, id omerokv.ObjectID) (omerokv.KeyValues, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, err := s.getLocked(t, id); err != nil {
		return nil, err
	}
	var kvs omerokv.KeyValues
	for _, ann := range s.annotations[id] {
		kvs = append(kvs, ann.values...)
	}
	return kvs, nil
}

// ImagesByAnnotation returns the images with an exact key/value entry.
func (s *Store) ImagesByAnnotation(ctx context.Context, key, value string) (*omerokv.ImageSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := omerokv.NewImageSet()
	valueMap, ok := s.inverted[key]
	if !ok {
		return result, nil
	}
	bitmap, ok := valueMap[value]
	if !ok {
		return result, nil
	}
	it := bitmap.Iterator()
	for it.HasNext() {
		result.Add(omerokv.ImageID(it.Next()))
	}
	return result, nil
}
