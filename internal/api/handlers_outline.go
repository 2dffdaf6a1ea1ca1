package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/dgallion1/docsense/internal/parser"
	"github.com/dgallion1/docsense/internal/pipeline"
)

func (s *Server) handleOutline(w http.ResponseWriter, r *http.Request) {
	// Extra 1MB for form overhead.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	fhs := r.MultipartForm.File["file"]
	if len(fhs) == 0 {
		jsonError(w, "file is required", http.StatusBadRequest)
		return
	}
	in, code, err := s.readUpload(fhs[0])
	if err != nil {
		jsonError(w, err.Error(), code)
		return
	}

	o, err := s.orchestrator.OutlineOne(r.Context(), in)
	if err != nil {
		if errors.Is(err, parser.ErrParse) {
			jsonError(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) handleBatchOutline(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes*10+10*1024*1024)

	if err := r.ParseMultipartForm(64 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		jsonError(w, "at least one file is required", http.StatusBadRequest)
		return
	}

	results := make([]map[string]any, len(files))
	var inputs []pipeline.Input
	var slots []int
	for i, fh := range files {
		in, _, err := s.readUpload(fh)
		if err != nil {
			results[i] = map[string]any{"document": sanitizeFilename(fh.Filename), "error": err.Error()}
			continue
		}
		inputs = append(inputs, in)
		slots = append(slots, i)
	}

	for j, res := range s.orchestrator.Outline(r.Context(), inputs) {
		if res.Err != nil {
			results[slots[j]] = map[string]any{"document": res.Document, "error": res.Err.Error()}
			continue
		}
		results[slots[j]] = map[string]any{"document": res.Document, "outline": res.Outline}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// readUpload reads one uploaded file into a pipeline input. The returned
// status code applies when err is non-nil.
func (s *Server) readUpload(fh *multipart.FileHeader) (pipeline.Input, int, error) {
	filename := sanitizeFilename(fh.Filename)
	if !parser.IsSupportedExtension(filename) {
		return pipeline.Input{}, http.StatusBadRequest,
			fmt.Errorf("unsupported file type: %s", filepath.Ext(filename))
	}
	f, err := fh.Open()
	if err != nil {
		return pipeline.Input{}, http.StatusInternalServerError, errors.New("failed to open file")
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, s.cfg.MaxUploadBytes+1))
	if err != nil {
		return pipeline.Input{}, http.StatusInternalServerError, errors.New("failed to read file")
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		return pipeline.Input{}, http.StatusRequestEntityTooLarge,
			fmt.Errorf("file exceeds max size (%d bytes)", s.cfg.MaxUploadBytes)
	}
	return pipeline.Input{Name: filename, Data: data}, 0, nil
}

func sanitizeFilename(name string) string {
	// Keep only the base name.
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." || name == "/" {
		name = "unnamed"
	}
	return name
}
