package api

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/danghoangsqtt-sys/dhsystem-mcp-knowledge/internal/ingest"
	"github.com/danghoangsqtt-sys/dhsystem-mcp-knowledge/internal/knowledge"
)

func uploadRequest(t *testing.T, path, filename, content string) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("creating form file: %v", err)
	}
	if _, err := fw.Write([]byte(content)); err != nil {
		t.Fatalf("writing form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("closing multipart writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestListDocuments(t *testing.T) {
	ts := newTestServer(t)
	kb := ts.store.add("Docs")
	ts.store.sources[kb.ID] = []knowledge.SourceFile{
		{Name: "guide.md", ChunkCount: 4, SizeBytes: 2048},
	}

	rec := doJSON(t, ts, http.MethodGet, "/api/v1/knowledge-bases/"+kb.ID.String()+"/documents", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	files := decode[[]knowledge.SourceFile](t, rec)
	if len(files) != 1 || files[0].Name != "guide.md" {
		t.Errorf("files = %+v", files)
	}
}

func TestListDocuments_EmptyAndUnknown(t *testing.T) {
	ts := newTestServer(t)
	kb := ts.store.add("Docs")

	rec := doJSON(t, ts, http.MethodGet, "/api/v1/knowledge-bases/"+kb.ID.String()+"/documents", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "[]\n" {
		t.Errorf("empty list: status = %d, body = %q", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, ts, http.MethodGet, "/api/v1/knowledge-bases/"+uuid.NewString()+"/documents", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown kb: status = %d, want 404", rec.Code)
	}
}

func TestUploadDocument(t *testing.T) {
	ts := newTestServer(t)
	kb := ts.store.add("Docs")
	ts.ingestor.result = ingest.Result{Chunks: 3, Inserted: 3}

	req := uploadRequest(t, "/api/v1/knowledge-bases/"+kb.ID.String()+"/documents", "notes.md", "hello world")
	rec := httptest.NewRecorder()
	ts.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	resp := decode[uploadResponse](t, rec)
	if resp.Source != "notes.md" || resp.Inserted != 3 {
		t.Errorf("response = %+v", resp)
	}
	if ts.ingestor.gotKB != kb.ID {
		t.Errorf("ingested into %s, want %s", ts.ingestor.gotKB, kb.ID)
	}
	if string(ts.ingestor.gotDoc.Data) != "hello world" || ts.ingestor.gotDoc.Name != "notes.md" {
		t.Errorf("document = %+v", ts.ingestor.gotDoc)
	}
}

func TestUploadDocument_Errors(t *testing.T) {
	ts := newTestServer(t)
	kb := ts.store.add("Docs")

	// Unknown knowledge base fails before the pipeline runs.
	req := uploadRequest(t, "/api/v1/knowledge-bases/"+uuid.NewString()+"/documents", "notes.md", "text")
	rec := httptest.NewRecorder()
	ts.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown kb: status = %d, want 404", rec.Code)
	}

	// Missing file field.
	reqNoFile := httptest.NewRequest(http.MethodPost, "/api/v1/knowledge-bases/"+kb.ID.String()+"/documents", nil)
	reqNoFile.Header.Set("Content-Type", "multipart/form-data; boundary=x")
	rec = httptest.NewRecorder()
	ts.ServeHTTP(rec, reqNoFile)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing file: status = %d, want 400", rec.Code)
	}

	// Pipeline rejections surface with their mapped status.
	ts.ingestor.err = ingest.ErrUnsupportedFormat
	req = uploadRequest(t, "/api/v1/knowledge-bases/"+kb.ID.String()+"/documents", "binary.pdf", "x")
	rec = httptest.NewRecorder()
	ts.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unsupported format: status = %d, want 400", rec.Code)
	}

	ts.ingestor.err = ingest.ErrNoChunksEmbedded
	req = uploadRequest(t, "/api/v1/knowledge-bases/"+kb.ID.String()+"/documents", "notes.md", "x")
	rec = httptest.NewRecorder()
	ts.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadGateway {
		t.Errorf("embedding failure: status = %d, want 502", rec.Code)
	}
}

func TestDeleteDocument(t *testing.T) {
	ts := newTestServer(t)
	kb := ts.store.add("Docs")
	ts.store.sources[kb.ID] = []knowledge.SourceFile{{Name: "guide.md", ChunkCount: 5}}

	rec := doJSON(t, ts, http.MethodDelete, "/api/v1/knowledge-bases/"+kb.ID.String()+"/documents/guide.md", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	resp := decode[deleteDocumentResponse](t, rec)
	if resp.Source != "guide.md" || resp.Deleted != 5 {
		t.Errorf("response = %+v", resp)
	}

	rec = doJSON(t, ts, http.MethodDelete, "/api/v1/knowledge-bases/"+kb.ID.String()+"/documents/guide.md", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("second delete: status = %d, want 404", rec.Code)
	}
}
