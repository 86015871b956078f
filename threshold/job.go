package threshold

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/janelia-flyem/omerokv/omerokv"
	"github.com/janelia-flyem/omerokv/query"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// FileNameToken in an output name template is replaced by the source image's name
// without its extension.
const FileNameToken = "[f]"

// DefaultNameTemplate names thresholded images after their source.
const DefaultNameTemplate = FileNameToken + "_thresholded"

const jobSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"additionalProperties": false,
	"properties": {
		"scope": {
			"type": "object",
			"additionalProperties": false,
			"required": ["type", "id"],
			"properties": {
				"type": {"enum": ["Image", "Dataset", "Project"]},
				"id":   {"type": "integer", "minimum": 1}
			}
		},
		"query": {
			"type": "object",
			"additionalProperties": {"type": "string"}
		},
		"thresholds": {
			"type": "object",
			"additionalProperties": false,
			"properties": {
				"red":   {"$ref": "#/definitions/range"},
				"green": {"$ref": "#/definitions/range"},
				"blue":  {"$ref": "#/definitions/range"}
			}
		},
		"name":           {"type": "string", "minLength": 1},
		"format":         {"enum": ["jpeg", "png", "tif"]},
		"output_dataset": {"type": "string"},
		"copy_kv":        {"type": "boolean"}
	},
	"definitions": {
		"range": {
			"type": "object",
			"additionalProperties": false,
			"properties": {
				"min": {"type": "integer", "minimum": 0, "maximum": 255},
				"max": {"type": "integer", "minimum": 0, "maximum": 255}
			}
		}
	}
}`

var (
	compiledSchema     *jsonschema.Schema
	compiledSchemaErr  error
	compiledSchemaOnce sync.Once
)

func schema() (*jsonschema.Schema, error) {
	compiledSchemaOnce.Do(func() {
		compiledSchema, compiledSchemaErr = jsonschema.CompileString("threshold_job.json", jobSchema)
	})
	return compiledSchema, compiledSchemaErr
}

// Format is the file format suffix of output images.
type Format string

const (
	JPEG Format = "jpeg"
	PNG  Format = "png"
	TIFF Format = "tif"
)

// JobScope is the object whose images are thresholded.
type JobScope struct {
	Type omerokv.ObjectType `json:"type"`
	ID   omerokv.ObjectID   `json:"id"`
}

// Job describes one threshold run.
type Job struct {
	Scope         *JobScope         `json:"scope,omitempty"` // nil for every image
	Query         map[string]string `json:"query,omitempty"` // nil for no metadata query
	Thresholds    Params            `json:"thresholds"`
	Name          string            `json:"name"`
	Format        Format            `json:"format"`
	OutputDataset string            `json:"output_dataset,omitempty"` // dataset id, or name of a new dataset
	CopyKV        bool              `json:"copy_kv"`
}

// DefaultJob returns a job over every image with the default thresholds, producing
// PNG images next to their sources and copying their key/value pairs.
func DefaultJob() Job {
	return Job{
		Thresholds: DefaultParams(),
		Name:       DefaultNameTemplate,
		Format:     PNG,
		CopyKV:     true,
	}
}

// ParseJob validates JSON job parameters and fills unset ones with defaults.
func ParseJob(data []byte) (Job, error) {
	sch, err := schema()
	if err != nil {
		return Job{}, err
	}
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return Job{}, fmt.Errorf("bad threshold job JSON: %v", err)
	}
	if err := sch.Validate(v); err != nil {
		return Job{}, fmt.Errorf("invalid threshold job: %v", err)
	}
	job := DefaultJob()
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&job); err != nil {
		return Job{}, fmt.Errorf("bad threshold job: %v", err)
	}
	if err := job.Validate(); err != nil {
		return Job{}, err
	}
	return job, nil
}

// Validate checks constraints between fields.
func (job Job) Validate() error {
	for _, ch := range []struct {
		name string
		r    Range
	}{{"red", job.Thresholds.Red}, {"green", job.Thresholds.Green}, {"blue", job.Thresholds.Blue}} {
		if ch.r.Min > ch.r.Max {
			return fmt.Errorf("%s threshold min %d is above max %d", ch.name, ch.r.Min, ch.r.Max)
		}
	}
	switch job.Format {
	case JPEG, PNG, TIFF:
	default:
		return fmt.Errorf("unknown output format %q, must be jpeg, png or tif", job.Format)
	}
	if job.Name == "" {
		return fmt.Errorf("output name template is empty")
	}
	return nil
}

// CandidateScope returns the query scope of the job.
func (job Job) CandidateScope() query.Scope {
	if job.Scope == nil {
		return query.Scope{}
	}
	return query.Scope{Type: job.Scope.Type, ID: job.Scope.ID}
}

// Constraints returns the metadata query of the job.
func (job Job) Constraints() query.OptionalConstraints {
	return query.FromMap(job.Query)
}

// OutputName returns the name of the thresholded image made from the source.
func (job Job) OutputName(source omerokv.ImageInfo) string {
	return strings.ReplaceAll(job.Name, FileNameToken, source.Stem()) + "." + string(job.Format)
}

// outputDatasetID returns the id if the output dataset is given as an id.
func (job Job) outputDatasetID() (omerokv.ObjectID, bool) {
	if job.OutputDataset == "" {
		return 0, false
	}
	id, err := strconv.ParseUint(job.OutputDataset, 10, 64)
	if err != nil {
		return 0, false
	}
	return omerokv.ObjectID(id), true
}
