package pipeline

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dgallion1/docsense/internal/doctree"
	"github.com/dgallion1/docsense/internal/parser"
)

// ErrInvalidRequest marks a job descriptor rejected before any work.
var ErrInvalidRequest = errors.New("invalid request")

// Request describes one analyze run.
type Request struct {
	ChallengeID string
	Documents   []string // File names, in the order results are reported
	Persona     string
	JobToBeDone string
	TopK        int
	TopN        int
}

// Query returns the persona query of the request.
func (r Request) Query() doctree.Query {
	return doctree.Query{Persona: r.Persona, JobToBeDone: r.JobToBeDone}
}

// Validate checks the request and returns an error wrapping
// ErrInvalidRequest when it cannot be run.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Persona) == "" {
		return fmt.Errorf("%w: persona is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(r.JobToBeDone) == "" {
		return fmt.Errorf("%w: job_to_be_done is required", ErrInvalidRequest)
	}
	if len(r.Documents) == 0 {
		return fmt.Errorf("%w: at least one document is required", ErrInvalidRequest)
	}
	seen := make(map[string]bool, len(r.Documents))
	for _, d := range r.Documents {
		if strings.TrimSpace(d) == "" {
			return fmt.Errorf("%w: empty document name", ErrInvalidRequest)
		}
		if seen[d] {
			return fmt.Errorf("%w: duplicate document %q", ErrInvalidRequest, d)
		}
		seen[d] = true
		if !parser.IsSupportedExtension(d) {
			return fmt.Errorf("%w: unsupported document type %q", ErrInvalidRequest, d)
		}
	}
	if r.TopK < 0 || r.TopN < 0 {
		return fmt.Errorf("%w: top_k and top_n must not be negative", ErrInvalidRequest)
	}
	return nil
}

// descriptor accepts both the flat shape
//
//	{"documents":["a.pdf"],"persona":"...","job_to_be_done":"..."}
//
// and the challenge shape
//
//	{"challenge_info":{"challenge_id":"..."},"documents":[{"filename":"a.pdf"}],
//	 "persona":{"role":"..."},"job_to_be_done":{"task":"..."}}
type descriptor struct {
	ChallengeInfo *struct {
		ChallengeID string `json:"challenge_id"`
	} `json:"challenge_info"`
	Documents   []flexDocument `json:"documents"`
	Persona     flexText       `json:"persona"`
	JobToBeDone flexText       `json:"job_to_be_done"`
	TopK        int            `json:"top_k"`
	TopN        int            `json:"top_n"`
}

// flexDocument is a file name or an object with a filename field.
type flexDocument string

func (d *flexDocument) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*d = flexDocument(s)
		return nil
	}
	var obj struct {
		Filename string `json:"filename"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return fmt.Errorf("document must be a string or {\"filename\":...}: %w", err)
	}
	*d = flexDocument(obj.Filename)
	return nil
}

// flexText is a string or an object carrying the text under "role" or
// "task".
type flexText string

func (t *flexText) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*t = flexText(s)
		return nil
	}
	var obj struct {
		Role string `json:"role"`
		Task string `json:"task"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return fmt.Errorf("expected a string or an object with role/task: %w", err)
	}
	if obj.Role != "" {
		*t = flexText(obj.Role)
	} else {
		*t = flexText(obj.Task)
	}
	return nil
}

// ParseDescriptor decodes a job descriptor in either accepted shape. It
// does not validate the result.
func ParseDescriptor(data []byte) (Request, error) {
	var d descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return Request{}, fmt.Errorf("%w: decode descriptor: %w", ErrInvalidRequest, err)
	}
	req := Request{
		Persona:     strings.TrimSpace(string(d.Persona)),
		JobToBeDone: strings.TrimSpace(string(d.JobToBeDone)),
		TopK:        d.TopK,
		TopN:        d.TopN,
	}
	if d.ChallengeInfo != nil {
		req.ChallengeID = d.ChallengeInfo.ChallengeID
	}
	for _, doc := range d.Documents {
		req.Documents = append(req.Documents, string(doc))
	}
	return req, nil
}
