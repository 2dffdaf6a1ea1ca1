package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dgallion1/docsense/internal/config"
	"github.com/dgallion1/docsense/internal/doctree"
	"github.com/dgallion1/docsense/internal/embed"
	"github.com/dgallion1/docsense/internal/pipeline"
)

const testKey = "secret"

const guideMD = `# Lyon Travel Guide

## Getting Around Lyon

Trains run hourly. Buses cover the old town.

## Where To Eat

Try the local market. Book dinner early in summer.

### Nightlife And Bars

The harbour bars stay open late. Students favour the old quarter.
`

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Config{
		APIKey:          testKey,
		WorkerCount:     2,
		JobWorkers:      1,
		MaxQueueSize:    4,
		JobTTL:          time.Hour,
		MaxUploadBytes:  1 << 20,
		DocumentTimeout: 5 * time.Second,
		RunTimeout:      30 * time.Second,
		TopK:            5,
		TopN:            3,
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	stats := embed.NewStats(time.Hour)
	orch := pipeline.NewOrchestrator(cfg, embed.Instrumented(embed.NewHashEmbedder(64), stats), log)

	ctx, cancel := context.WithCancel(context.Background())
	orch.Start(ctx)
	t.Cleanup(func() {
		cancel()
		orch.Stop()
	})
	return NewServer(orch, stats, log, cfg)
}

type formFile struct {
	field, name, body string
}

func multipartRequest(t *testing.T, path string, fields map[string]string, files ...formFile) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	for _, f := range files {
		fw, err := mw.CreateFormFile(f.field, f.name)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write([]byte(f.body))
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+testKey)
	return req
}

func authedGet(path string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("Authorization", "Bearer "+testKey)
	return req
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := serve(s, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	json.NewDecoder(rec.Body).Decode(&body)
	if body["status"] != "ok" || body["model"] != "feature-hash-64" {
		t.Errorf("unexpected health body: %v", body)
	}
}

func TestAuth(t *testing.T) {
	s := newTestServer(t)

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/stats/embedding", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("missing header: expected 401, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/stats/embedding", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	if rec := serve(s, req); rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong key: expected 401, got %d", rec.Code)
	}

	if rec := serve(s, authedGet("/api/stats/embedding")); rec.Code != http.StatusOK {
		t.Errorf("valid key: expected 200, got %d", rec.Code)
	}
}

func TestOutline(t *testing.T) {
	s := newTestServer(t)
	rec := serve(s, multipartRequest(t, "/api/outline", nil, formFile{"file", "lyon.md", guideMD}))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var o doctree.Outline
	if err := json.NewDecoder(rec.Body).Decode(&o); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if o.Title != "Lyon Travel Guide" {
		t.Errorf("unexpected title %q", o.Title)
	}
	if len(o.Headings) != 3 || o.Headings[0].Text != "Getting Around Lyon" {
		t.Errorf("unexpected headings %+v", o.Headings)
	}
}

func TestOutline_Errors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		file formFile
		code int
	}{
		{"unsupported type", formFile{"file", "notes.exe", "MZ"}, http.StatusBadRequest},
		{"unparseable pdf", formFile{"file", "broken.pdf", "not a pdf"}, http.StatusUnprocessableEntity},
		{"missing file field", formFile{"other", "lyon.md", guideMD}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(s, multipartRequest(t, "/api/outline", nil, tt.file))
			if rec.Code != tt.code {
				t.Errorf("expected %d, got %d: %s", tt.code, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestBatchOutline_PerDocumentResults(t *testing.T) {
	s := newTestServer(t)
	rec := serve(s, multipartRequest(t, "/api/outline/batch", nil,
		formFile{"files", "lyon.md", guideMD},
		formFile{"files", "broken.pdf", "not a pdf"},
		formFile{"files", "notes.exe", "MZ"},
	))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Results []struct {
			Document string           `json:"document"`
			Outline  *doctree.Outline `json:"outline"`
			Error    string           `json:"error"`
		} `json:"results"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(body.Results))
	}
	if body.Results[0].Document != "lyon.md" || body.Results[0].Outline == nil {
		t.Errorf("expected outline for lyon.md, got %+v", body.Results[0])
	}
	if body.Results[1].Document != "broken.pdf" || body.Results[1].Error == "" {
		t.Errorf("expected error for broken.pdf, got %+v", body.Results[1])
	}
	if body.Results[2].Document != "notes.exe" || body.Results[2].Error == "" {
		t.Errorf("expected error for notes.exe, got %+v", body.Results[2])
	}
}

func TestAnalyze_Lifecycle(t *testing.T) {
	s := newTestServer(t)
	descriptor := `{"documents":["lyon.md"],"persona":"Food critic","job_to_be_done":"Find places to eat"}`
	rec := serve(s, multipartRequest(t, "/api/analyze",
		map[string]string{"descriptor": descriptor},
		formFile{"files", "lyon.md", guideMD},
	))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var accepted map[string]string
	json.NewDecoder(rec.Body).Decode(&accepted)
	jobID := accepted["job_id"]
	if jobID == "" || accepted["poll_url"] != "/api/analyze/"+jobID+"/status" {
		t.Fatalf("unexpected accept body: %v", accepted)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		rec := serve(s, authedGet("/api/analyze/"+jobID+"/status"))
		if rec.Code != http.StatusOK {
			t.Fatalf("status: expected 200, got %d", rec.Code)
		}
		var snap pipeline.JobSnapshot
		json.NewDecoder(rec.Body).Decode(&snap)
		if snap.Status.Done() {
			if snap.Status != pipeline.StatusCompleted {
				t.Fatalf("expected completed, got %s (%v)", snap.Status, snap.Progress.Errors)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job did not finish, status %s", snap.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}

	rec = serve(s, authedGet("/api/analyze/"+jobID+"/result"))
	if rec.Code != http.StatusOK {
		t.Fatalf("result: expected 200, got %d", rec.Code)
	}
	var res pipeline.Result
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if res.Metadata.Persona != "Food critic" || len(res.ExtractedSections) == 0 {
		t.Errorf("unexpected result: %+v", res)
	}
	if res.ExtractedSections[0].Rank != 1 || res.ExtractedSections[0].Document != "lyon.md" {
		t.Errorf("unexpected first section: %+v", res.ExtractedSections[0])
	}
}

func TestAnalyze_FormFieldsWithoutDescriptor(t *testing.T) {
	s := newTestServer(t)
	rec := serve(s, multipartRequest(t, "/api/analyze",
		map[string]string{"persona": "Student", "job": "Plan a trip"},
		formFile{"files", "lyon.md", guideMD},
	))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestAnalyze_InvalidRequest(t *testing.T) {
	s := newTestServer(t)
	tests := []struct {
		name   string
		fields map[string]string
	}{
		{"malformed descriptor", map[string]string{"descriptor": "{"}},
		{"missing persona", map[string]string{"descriptor": `{"documents":["lyon.md"],"job_to_be_done":"x"}`}},
		{"no documents", map[string]string{"persona": "p", "job": "j"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var files []formFile
			if tt.name != "no documents" {
				files = append(files, formFile{"files", "lyon.md", guideMD})
			}
			rec := serve(s, multipartRequest(t, "/api/analyze", tt.fields, files...))
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestAnalyzeResult_UnknownJob(t *testing.T) {
	s := newTestServer(t)
	for _, path := range []string{"/api/analyze/nope/status", "/api/analyze/nope/result"} {
		if rec := serve(s, authedGet(path)); rec.Code != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", path, rec.Code)
		}
	}
}

func TestEmbeddingStats(t *testing.T) {
	s := newTestServer(t)
	s.stats.Record(40*time.Millisecond, 3, false)
	rec := serve(s, authedGet("/api/stats/embedding"))
	var body struct {
		Model string              `json:"model"`
		Stats embed.StatsSnapshot `json:"stats"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Stats.Count != 1 || body.Stats.Texts != 3 {
		t.Errorf("unexpected stats: %+v", body.Stats)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"report.pdf":           "report.pdf",
		"../../etc/passwd.pdf": "passwd.pdf",
		`C:\docs\guide.md`:     "guide.md",
		"":                     "unnamed",
		"..pdf":                "_pdf",
	}
	for in, want := range tests {
		if got := sanitizeFilename(in); got != want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}
