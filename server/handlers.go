package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime/debug"
	"strconv"

	"github.com/janelia-flyem/omerokv/memstore"
	"github.com/janelia-flyem/omerokv/omerokv"
	"github.com/zenazn/goji/web"
)

// MaxImportBytes limits the size of an uploaded image file.
const MaxImportBytes = 512 * omerokv.Mega

func httpError(w http.ResponseWriter, r *http.Request, status int, message interface{}, args ...interface{}) {
	var errorMsg string
	switch m := message.(type) {
	case error:
		errorMsg = m.Error()
	case string:
		errorMsg = fmt.Sprintf(m, args...)
	default:
		errorMsg = fmt.Sprintf("%v", m)
	}
	errorMsg = fmt.Sprintf("%s (%s)", errorMsg, r.URL.Path)
	if status >= http.StatusInternalServerError {
		omerokv.Errorf("%s\n", errorMsg)
	} else {
		omerokv.Debugf("%d: %s\n", status, errorMsg)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(omerokv.ErrorResponse{Error: errorMsg})
}

// BadRequest writes a 400 Bad Request with a formatted message.
func BadRequest(w http.ResponseWriter, r *http.Request, message interface{}, args ...interface{}) {
	httpError(w, r, http.StatusBadRequest, message, args...)
}

func unauthorized(w http.ResponseWriter, r *http.Request, message interface{}, args ...interface{}) {
	httpError(w, r, http.StatusUnauthorized, message, args...)
}

// storeError maps store errors onto HTTP status codes.
func storeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, omerokv.ErrNotFound):
		httpError(w, r, http.StatusNotFound, err)
	case errors.Is(err, omerokv.ErrQueryUnavailable):
		httpError(w, r, http.StatusServiceUnavailable, err)
	default:
		BadRequest(w, r, err)
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		omerokv.Errorf("unable to write JSON response to %s: %v\n", r.URL.Path, err)
	}
}

// recoverHandler logs panics from handlers and returns a 500.
func recoverHandler(h http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if e := recover(); e != nil {
				omerokv.Criticalf("panic on %s %s: %v\n%s\n", r.Method, r.URL.Path, e, debug.Stack())
				httpError(w, r, http.StatusInternalServerError, "internal error: %v", e)
			}
		}()
		h.ServeHTTP(w, r)
	}
	return http.HandlerFunc(fn)
}

func urlUint(c web.C, name string) (uint64, error) {
	str, found := c.URLParams[name]
	if !found {
		return 0, fmt.Errorf("missing %q in URL", name)
	}
	v, err := strconv.ParseUint(str, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad %s %q: %v", name, str, err)
	}
	return v, nil
}

func urlInt(c web.C, name string) (int, error) {
	v, err := urlUint(c, name)
	return int(v), err
}

func versionHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, omerokv.VersionResponse{Version: omerokv.APIVersion})
}

func (s *Server) createProjectHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	var req omerokv.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, r, "can't decode project request: %v", err)
		return
	}
	if req.Name == "" {
		BadRequest(w, r, "project requires a name")
		return
	}
	id, err := s.store.CreateProject(r.Context(), req.Name)
	if err != nil {
		storeError(w, r, err)
		return
	}
	omerokv.Debugf("created project %q with id %d\n", req.Name, id)
	writeJSON(w, r, omerokv.IDResponse{ID: uint64(id)})
}

func (s *Server) createDatasetHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	var req omerokv.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, r, "can't decode dataset request: %v", err)
		return
	}
	if req.Name == "" {
		BadRequest(w, r, "dataset requires a name")
		return
	}
	id, err := s.store.CreateDataset(r.Context(), req.Name, req.Project)
	if err != nil {
		storeError(w, r, err)
		return
	}
	omerokv.Debugf("created dataset %q with id %d in project %d\n", req.Name, id, req.Project)
	writeJSON(w, r, omerokv.IDResponse{ID: uint64(id)})
}

func (s *Server) linkDatasetHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	project, err := urlUint(c, "id")
	if err != nil {
		BadRequest(w, r, err)
		return
	}
	dataset, err := urlUint(c, "did")
	if err != nil {
		BadRequest(w, r, err)
		return
	}
	if err := s.store.LinkDataset(r.Context(), omerokv.ObjectID(project), omerokv.ObjectID(dataset)); err != nil {
		storeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) projectDatasetsHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	project, err := urlUint(c, "id")
	if err != nil {
		BadRequest(w, r, err)
		return
	}
	ids, err := s.store.ProjectDatasets(r.Context(), omerokv.ObjectID(project))
	if err != nil {
		storeError(w, r, err)
		return
	}
	writeJSON(w, r, ids)
}

func (s *Server) datasetImagesHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	dataset, err := urlUint(c, "id")
	if err != nil {
		BadRequest(w, r, err)
		return
	}
	ids, err := s.store.DatasetImages(r.Context(), omerokv.ObjectID(dataset))
	if err != nil {
		storeError(w, r, err)
		return
	}
	writeJSON(w, r, ids)
}

func (s *Server) linkImageHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	dataset, err := urlUint(c, "id")
	if err != nil {
		BadRequest(w, r, err)
		return
	}
	img, err := urlUint(c, "iid")
	if err != nil {
		BadRequest(w, r, err)
		return
	}
	if err := s.store.LinkImage(r.Context(), omerokv.ObjectID(dataset), omerokv.ImageID(img)); err != nil {
		storeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) importHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	dataset, err := urlUint(c, "id")
	if err != nil {
		BadRequest(w, r, err)
		return
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		BadRequest(w, r, "import requires a file name via 'name' query string")
		return
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, MaxImportBytes+1))
	if err != nil {
		BadRequest(w, r, "unable to read import of %q: %v", name, err)
		return
	}
	if len(data) > MaxImportBytes {
		BadRequest(w, r, "import of %q exceeds %d bytes", name, MaxImportBytes)
		return
	}
	id, err := s.store.ImportFile(r.Context(), omerokv.ObjectID(dataset), name, data)
	if err != nil {
		storeError(w, r, err)
		return
	}
	omerokv.Debugf("imported %q (%d bytes) as image %d into dataset %d\n", name, len(data), id, dataset)
	writeJSON(w, r, omerokv.IDResponse{ID: uint64(id)})
}

func (s *Server) allImagesHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	ids, err := s.store.AllImages(r.Context())
	if err != nil {
		storeError(w, r, err)
		return
	}
	writeJSON(w, r, ids)
}

func (s *Server) imageHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	id, err := urlUint(c, "id")
	if err != nil {
		BadRequest(w, r, err)
		return
	}
	info, err := s.store.GetImage(r.Context(), omerokv.ImageID(id))
	if err != nil {
		storeError(w, r, err)
		return
	}
	writeJSON(w, r, info)
}

func (s *Server) createImageHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	var req omerokv.NewImage
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, r, "can't decode new image: %v", err)
		return
	}
	spec := memstore.ImageSpec{
		Name:    req.Name,
		SizeX:   req.SizeX,
		SizeY:   req.SizeY,
		SizeZ:   req.SizeZ,
		SizeC:   req.SizeC,
		SizeT:   req.SizeT,
		Source:  req.Source,
		Dataset: req.Dataset,
	}
	id, err := s.store.CreateImage(r.Context(), spec, req.Planes)
	if err != nil {
		storeError(w, r, err)
		return
	}
	writeJSON(w, r, omerokv.IDResponse{ID: uint64(id)})
}

func (s *Server) planeHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	id, err := urlUint(c, "id")
	if err != nil {
		BadRequest(w, r, err)
		return
	}
	var zct omerokv.ZCT
	if zct.Z, err = urlInt(c, "z"); err != nil {
		BadRequest(w, r, err)
		return
	}
	if zct.C, err = urlInt(c, "c"); err != nil {
		BadRequest(w, r, err)
		return
	}
	if zct.T, err = urlInt(c, "t"); err != nil {
		BadRequest(w, r, err)
		return
	}
	compression, err := omerokv.ParseCompression(r.URL.Query().Get("compression"))
	if err != nil {
		BadRequest(w, r, err)
		return
	}
	plane, err := s.store.Plane(r.Context(), omerokv.ImageID(id), zct)
	if err != nil {
		storeError(w, r, err)
		return
	}
	out, err := omerokv.Compress(plane, compression)
	if err != nil {
		httpError(w, r, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err := w.Write(out); err != nil {
		omerokv.Errorf("unable to write plane %v of image %d: %v\n", zct, id, err)
	}
}

func (s *Server) findHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	t, err := omerokv.ParseObjectType(c.URLParams["type"])
	if err != nil {
		BadRequest(w, r, err)
		return
	}
	ids, err := s.store.FindByName(r.Context(), t, r.URL.Query().Get("name"))
	if err != nil {
		storeError(w, r, err)
		return
	}
	if ids == nil {
		ids = []omerokv.ObjectID{}
	}
	writeJSON(w, r, ids)
}

func (s *Server) addAnnotationHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	t, err := omerokv.ParseObjectType(c.URLParams["type"])
	if err != nil {
		BadRequest(w, r, err)
		return
	}
	id, err := urlUint(c, "id")
	if err != nil {
		BadRequest(w, r, err)
		return
	}
	var req omerokv.AnnotationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, r, "can't decode annotation: %v", err)
		return
	}
	if req.Namespace == "" {
		req.Namespace = omerokv.ClientMapAnnotationNS
	}
	kvs := omerokv.KeyValuesFromPairs(req.Values)
	if err := s.store.AddAnnotation(r.Context(), t, omerokv.ObjectID(id), req.Namespace, kvs); err != nil {
		storeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) annotationsHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	id, err := urlUint(c, "id")
	if err != nil {
		BadRequest(w, r, err)
		return
	}
	kvs, err := s.store.Annotations(r.Context(), omerokv.ImageType, omerokv.ObjectID(id))
	if err != nil {
		storeError(w, r, err)
		return
	}
	writeJSON(w, r, kvs.Pairs())
}

func (s *Server) queryHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	if s.queryUnavailable() {
		httpError(w, r, http.StatusServiceUnavailable, "annotation query service is unavailable")
		return
	}
	query := r.URL.Query()
	key, found := query["key"]
	if !found || len(key) != 1 {
		BadRequest(w, r, "annotation query requires a single 'key'")
		return
	}
	value, found := query["value"]
	if !found || len(value) != 1 {
		BadRequest(w, r, "annotation query requires a single 'value'")
		return
	}
	set, err := s.store.ImagesByAnnotation(r.Context(), key[0], value[0])
	if err != nil {
		storeError(w, r, err)
		return
	}
	writeJSON(w, r, set.IDs())
}
