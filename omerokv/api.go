package omerokv

// Request and response bodies of the store HTTP API.

// VersionResponse is returned by GET /api/version.
type VersionResponse struct {
	Version string `json:"version"`
}

// SessionRequest opens a session via POST /api/session.
type SessionRequest struct {
	User     string `json:"user"`
	Password string `json:"password"`
}

// SessionResponse carries the bearer token for later requests.
type SessionResponse struct {
	Token string `json:"token"`
}

// CreateRequest creates a project, or a dataset optionally linked to a project.
type CreateRequest struct {
	Name    string   `json:"name"`
	Project ObjectID `json:"project,omitempty"`
}

// IDResponse returns the id of a created object.
type IDResponse struct {
	ID uint64 `json:"id"`
}

// NewImage creates a derived image from 8-bit planes in PlaneOrder.
type NewImage struct {
	Name    string   `json:"name"`
	SizeX   int      `json:"sizeX"`
	SizeY   int      `json:"sizeY"`
	SizeZ   int      `json:"sizeZ"`
	SizeC   int      `json:"sizeC"`
	SizeT   int      `json:"sizeT"`
	Source  ImageID  `json:"source,omitempty"`
	Dataset ObjectID `json:"dataset,omitempty"`
	Planes  [][]byte `json:"planes"`
}

// AnnotationRequest adds one map annotation to an object.
type AnnotationRequest struct {
	Namespace string      `json:"ns"`
	Values    [][2]string `json:"values"`
}

// ErrorResponse is the body of any non-OK response.
type ErrorResponse struct {
	Error string `json:"error"`
}
