package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/docsense/internal/pipeline"
)

// handleAnalyze accepts a multipart form with a JSON "descriptor" field and
// the documents under "files". Without a descriptor, "persona" and "job"
// form fields are used and every uploaded file is analyzed.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes*10+10*1024*1024)

	if err := r.ParseMultipartForm(64 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	var req pipeline.Request
	if raw := r.FormValue("descriptor"); strings.TrimSpace(raw) != "" {
		var err error
		req, err = pipeline.ParseDescriptor([]byte(raw))
		if err != nil {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
	} else {
		req.Persona = strings.TrimSpace(r.FormValue("persona"))
		req.JobToBeDone = strings.TrimSpace(r.FormValue("job"))
	}

	var inputs []pipeline.Input
	for _, fh := range r.MultipartForm.File["files"] {
		in, code, err := s.readUpload(fh)
		if err != nil {
			jsonError(w, fmt.Sprintf("%s: %s", sanitizeFilename(fh.Filename), err), code)
			return
		}
		inputs = append(inputs, in)
	}
	if len(req.Documents) == 0 {
		for _, in := range inputs {
			req.Documents = append(req.Documents, in.Name)
		}
	}

	if err := req.Validate(); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	job := pipeline.NewJob(req, inputs)
	if err := s.orchestrator.Submit(job); err != nil {
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":   job.ID,
		"status":   pipeline.StatusQueued,
		"poll_url": fmt.Sprintf("/api/analyze/%s/status", job.ID),
	})
}

func (s *Server) handleAnalyzeStatus(w http.ResponseWriter, r *http.Request) {
	job := s.orchestrator.GetJob(chi.URLParam(r, "jobID"))
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, job.Snapshot())
}

func (s *Server) handleAnalyzeResult(w http.ResponseWriter, r *http.Request) {
	job := s.orchestrator.GetJob(chi.URLParam(r, "jobID"))
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	snap := job.Snapshot()
	switch {
	case !snap.Status.Done():
		jsonError(w, fmt.Sprintf("job is %s", snap.Status), http.StatusConflict)
	case snap.Status == pipeline.StatusFailed:
		msg := "analysis failed"
		if len(snap.Progress.Errors) > 0 {
			msg = strings.Join(snap.Progress.Errors, "; ")
		}
		code := http.StatusInternalServerError
		if snap.Phase == "embedding" {
			code = http.StatusBadGateway
		}
		jsonError(w, msg, code)
	default:
		writeJSON(w, http.StatusOK, job.Result())
	}
}
