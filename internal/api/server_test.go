package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/dgallion1/docblocks/internal/caption"
	"github.com/dgallion1/docblocks/internal/config"
	"github.com/dgallion1/docblocks/internal/doctree"
	"github.com/dgallion1/docblocks/internal/pipeline"
)

const testKey = "secret"

const sampleDoc = `{"title": "Sample", "pages": [{"number": 1, "blocks": [
  {"bbox": [72, 72, 300, 96], "lines": [{"spans": [{"text": "Introduction", "size": 18, "flags": 16}]}]},
  {"bbox": [72, 110, 540, 160], "lines": [{"spans": [{"text": "The quick brown fox jumps over the lazy dog.", "size": 12}]}]},
  {"bbox": [72, 200, 272, 350], "image": "iVBORw0KGgo="}
]}]}`

type memIndex struct {
	mu      sync.Mutex
	docs    map[string]int
	deleted []string
}

func (m *memIndex) PutChunks(_ context.Context, docID, _ string, chunks []doctree.Chunk) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[docID] += len(chunks)
	return len(chunks), nil
}

func (m *memIndex) DeleteDocument(_ context.Context, docID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, docID)
	m.deleted = append(m.deleted, docID)
	return nil
}

func newTestServer(t *testing.T, stats *caption.Stats) (*httptest.Server, *memIndex) {
	t.Helper()
	cfg := config.Defaults()
	cfg.APIKey = testKey
	cfg.MaxUploadBytes = 1 << 20

	ix := &memIndex{docs: map[string]int{}}
	captioner := pipeline.Static(caption.Func(func(context.Context, []byte) (string, error) {
		return "a cat sitting on a table", nil
	}))
	orch := pipeline.NewOrchestrator(cfg, captioner, ix, nil)
	orch.Start(context.Background())

	srv := httptest.NewServer(NewServer(orch, stats, nil, cfg))
	t.Cleanup(func() {
		srv.Close()
		orch.Stop()
	})
	return srv, ix
}

func do(t *testing.T, method, url string, body io.Reader, contentType string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Authorization", "Bearer "+testKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func multipartBody(t *testing.T, field string, files map[string]string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	for name, content := range files {
		fw, err := mw.CreateFormFile(field, name)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write([]byte(content))
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func waitForStatus(t *testing.T, base, jobID string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		_, snap := do(t, http.MethodGet, base+"/api/documents/"+jobID+"/status", nil, "")
		if pipeline.JobStatus(snap["status"].(string)).Done() {
			return snap
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish", jobID)
	return nil
}

func TestHealth_NoAuth(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
	var body map[string]any
	json.NewDecoder(resp.Body).Decode(&body)
	if body["status"] != "ok" || body["indexing"] != true {
		t.Errorf("unexpected health body %v", body)
	}
}

func TestAuth(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/api/documents/x/status")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 without a token, got %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/documents/x/status", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 with a bad token, got %d", resp.StatusCode)
	}
}

func TestDocumentLifecycle(t *testing.T) {
	srv, ix := newTestServer(t, nil)

	body, ct := multipartBody(t, "file", map[string]string{"sample.json": sampleDoc}, map[string]string{"title": "My Doc"})
	resp, out := do(t, http.MethodPost, srv.URL+"/api/documents", body, ct)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %v", resp.StatusCode, out)
	}
	jobID := out["job_id"].(string)
	docID := out["doc_id"].(string)
	if out["poll_url"] != "/api/documents/"+jobID+"/status" {
		t.Errorf("unexpected poll url %v", out["poll_url"])
	}

	snap := waitForStatus(t, srv.URL, jobID)
	if snap["status"] != "completed" || snap["result_state"] != "chunked" || snap["title"] != "My Doc" {
		t.Fatalf("unexpected final status %v", snap)
	}

	resp, out = do(t, http.MethodGet, srv.URL+"/api/documents/"+jobID+"/profile", nil, "")
	if resp.StatusCode != http.StatusOK || out["body_size"] != float64(12) {
		t.Errorf("unexpected profile %d %v", resp.StatusCode, out)
	}
	sizes, _ := out["sizes"].(map[string]any)
	if heading, _ := sizes["18"].(map[string]any); heading["role"] != "heading" {
		t.Errorf("expected size 18 to be a heading, got %v", sizes)
	}

	resp, out = do(t, http.MethodGet, srv.URL+"/api/documents/"+jobID+"/blocks", nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("blocks: %d", resp.StatusCode)
	}
	pages := out["pages"].([]any)
	if len(pages) != 1 || len(pages[0].([]any)) != 3 {
		t.Fatalf("expected 1 page of 3 blocks, got %v", pages)
	}
	first := pages[0].([]any)[0].(map[string]any)
	if first["kind"] != "text" || first["block"].(map[string]any)["content_type"] != "heading" {
		t.Errorf("unexpected first block %v", first)
	}

	resp, out = do(t, http.MethodGet, srv.URL+"/api/documents/"+jobID+"/chunks", nil, "")
	if resp.StatusCode != http.StatusOK || len(out["chunks"].([]any)) != 3 {
		t.Errorf("expected 3 chunks, got %d %v", resp.StatusCode, out)
	}
	ix.mu.Lock()
	indexed := ix.docs[docID]
	ix.mu.Unlock()
	if indexed != 3 {
		t.Errorf("expected 3 chunks in the index, got %d", indexed)
	}

	resp, _ = do(t, http.MethodDelete, srv.URL+"/api/documents/"+jobID, nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 on delete, got %d", resp.StatusCode)
	}
	ix.mu.Lock()
	_, still := ix.docs[docID]
	ix.mu.Unlock()
	if still {
		t.Error("expected the document to be removed from the index")
	}

	for _, path := range []string{"/status", "/chunks"} {
		resp, _ = do(t, http.MethodGet, srv.URL+"/api/documents/"+jobID+path, nil, "")
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("%s after delete: expected 404, got %d", path, resp.StatusCode)
		}
	}
	resp, _ = do(t, http.MethodDelete, srv.URL+"/api/documents/"+jobID, nil, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 on second delete, got %d", resp.StatusCode)
	}
}

func TestUpload_Rejections(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	body, ct := multipartBody(t, "file", map[string]string{"archive.zip": "PK"}, nil)
	resp, _ := do(t, http.MethodPost, srv.URL+"/api/documents", body, ct)
	if resp.StatusCode != http.StatusUnsupportedMediaType {
		t.Errorf("expected 415 for a zip, got %d", resp.StatusCode)
	}

	body, ct = multipartBody(t, "other", map[string]string{"a.txt": "hello"}, nil)
	resp, _ = do(t, http.MethodPost, srv.URL+"/api/documents", body, ct)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 without a file field, got %d", resp.StatusCode)
	}
}

func TestBatchUpload(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	body, ct := multipartBody(t, "files", map[string]string{
		"one.txt":     "First document body.",
		"two.md":      "# Title\n\nSecond document body.",
		"archive.zip": "PK",
	}, nil)
	resp, out := do(t, http.MethodPost, srv.URL+"/api/documents/batch", body, ct)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	jobs := out["jobs"].([]any)
	if len(jobs) != 3 {
		t.Fatalf("expected 3 results, got %d", len(jobs))
	}
	queued, rejected := 0, 0
	for _, j := range jobs {
		m := j.(map[string]any)
		if _, ok := m["error"]; ok {
			rejected++
			continue
		}
		queued++
		waitForStatus(t, srv.URL, m["job_id"].(string))
	}
	if queued != 2 || rejected != 1 {
		t.Errorf("expected 2 queued and 1 rejected, got %d and %d", queued, rejected)
	}
}

func TestCaptionStats(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	resp, _ := do(t, http.MethodGet, srv.URL+"/api/stats/captions", nil, "")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503 with captioning off, got %d", resp.StatusCode)
	}

	stats := caption.NewStats(time.Hour)
	stats.Record(120)
	srv, _ = newTestServer(t, stats)
	resp, out := do(t, http.MethodGet, srv.URL+"/api/stats/captions", nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if out["model"] != "llava" || out["stats"] == nil {
		t.Errorf("unexpected stats body %v", out)
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"report.pdf":          "report.pdf",
		"../../etc/passwd":    "passwd",
		`C:\Users\me\doc.txt`: "doc.txt",
		"":                    "unnamed",
		"a..b.txt":            "a_b.txt",
	}
	for in, want := range cases {
		if got := sanitizeFilename(in); got != want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}
