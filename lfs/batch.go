package lfs

import (
	"encoding/json"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/xeipuuv/gojsonschema"
)

// Operation is the kind of Batch API exchange being negotiated.
type Operation string

const (
	OperationUpload   Operation = "upload"
	OperationDownload Operation = "download"
)

// Ref identifies the refspec a Batch request is scoped to.
type Ref struct {
	Name string `json:"name"`
}

// BatchObject is a single object entry inside a Batch request.
type BatchObject struct {
	Oid  string `json:"oid"`
	Size int64  `json:"size"`
}

// BatchRequest is the JSON body POSTed to <endpoint>/objects/batch.
type BatchRequest struct {
	Operation Operation     `json:"operation"`
	Transfers []string      `json:"transfers"`
	Ref       *Ref          `json:"ref,omitempty"`
	Objects   []BatchObject `json:"objects"`
}

// NewBatchRequest builds a basic-transfer Batch request for the given
// operation and objects.
func NewBatchRequest(op Operation, ref string, objects []BatchObject) *BatchRequest {
	req := &BatchRequest{
		Operation: op,
		Transfers: []string{"basic"},
		Objects:   objects,
	}
	if ref != "" {
		req.Ref = &Ref{Name: ref}
	}
	return req
}

// Action is a single named action (upload/download/verify) the server
// offers for an object.
type Action struct {
	Href      string            `json:"href"`
	Header    map[string]string `json:"header,omitempty"`
	ExpiresAt string            `json:"expires_at,omitempty"`
}

// ObjectError is the per-object error shape in a Batch response.
type ObjectError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *ObjectError) Error() string {
	return "lfs batch object error " + strconv.Itoa(e.Code) + ": " + e.Message
}

// BatchResponseObject is a single object entry inside a Batch response.
// Exactly one of Error or a populated Actions map is meaningful for a
// given object; the core honors only the "upload" and "download" action
// names.
type BatchResponseObject struct {
	Oid     string             `json:"oid"`
	Size    int64              `json:"size"`
	Actions map[string]*Action `json:"actions,omitempty"`
	Error   *ObjectError       `json:"error,omitempty"`
}

// HonoredAction returns the action named name if present, nil otherwise.
// Unknown action names already present in the map are simply never
// looked up by this helper, so they are ignored without error.
func (o *BatchResponseObject) HonoredAction(name string) *Action {
	if o.Actions == nil {
		return nil
	}
	return o.Actions[name]
}

// BatchResponse is the JSON body returned by the Batch API.
type BatchResponse struct {
	Transfer string                 `json:"transfer"`
	Objects  []BatchResponseObject  `json:"objects"`
}

var (
	batchResponseSchemaOnce sync.Once
	batchResponseSchema     *gojsonschema.Schema
	batchResponseSchemaErr  error
)

// batchResponseSchemaJSON captures the wire shape of a Batch response: a
// transfer name and an array of objects, each either erroring or
// carrying an actions map.
const batchResponseSchemaJSON = `{
  "type": "object",
  "required": ["objects"],
  "properties": {
    "transfer": {"type": "string"},
    "objects": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["oid", "size"],
        "properties": {
          "oid": {"type": "string"},
          "size": {"type": "integer"},
          "authenticated": {"type": "boolean"},
          "actions": {"type": "object"},
          "error": {
            "type": "object",
            "required": ["code", "message"],
            "properties": {
              "code": {"type": "integer"},
              "message": {"type": "string"}
            }
          }
        }
      }
    }
  }
}`

func loadBatchResponseSchema() (*gojsonschema.Schema, error) {
	batchResponseSchemaOnce.Do(func() {
		loader := gojsonschema.NewStringLoader(batchResponseSchemaJSON)
		batchResponseSchema, batchResponseSchemaErr = gojsonschema.NewSchema(loader)
	})
	return batchResponseSchema, batchResponseSchemaErr
}

// ParseBatchResponse validates body against the Batch response schema
// and, on success, unmarshals it into a BatchResponse. A schema
// violation surfaces as a BatchProtocol error; malformed JSON surfaces
// as a Transport error.
func ParseBatchResponse(body []byte) (*BatchResponse, error) {
	schema, err := loadBatchResponseSchema()
	if err != nil {
		return nil, errors.Wrap(err, "load batch response schema")
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return nil, &ErrTransport{Reason: "malformed json batch response: " + err.Error()}
	}
	if !result.Valid() {
		var reasons []string
		for _, re := range result.Errors() {
			reasons = append(reasons, re.String())
		}
		return nil, &ErrBatchProtocol{Reason: "response violates batch schema: " + strings.Join(reasons, "; ")}
	}

	var resp BatchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &ErrTransport{Reason: "malformed json batch response: " + err.Error()}
	}
	return &resp, nil
}
