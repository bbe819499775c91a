package server

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/kaiwa/internal/config"
	"github.com/hyperjump/kaiwa/internal/embedding"
	"github.com/hyperjump/kaiwa/internal/llm"
	"github.com/hyperjump/kaiwa/internal/models"
	"github.com/hyperjump/kaiwa/internal/notestyle"
	"github.com/hyperjump/kaiwa/internal/project"
	"github.com/hyperjump/kaiwa/internal/storage"
)

func newTestServer(t *testing.T, provider llm.Provider) *Server {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })

	cfg := config.Default()
	cfg.Storage.DatabasePath = dbPath
	cfg.Chat.TopK = 2
	store := project.NewStore(st, provider, embedding.NewMockEmbedder(8), &cfg.Chat)
	return NewServer(store, notestyle.NewService(st), cfg, zap.NewNop())
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	return out
}

func uploadFiles(t *testing.T, handler http.Handler, files map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range files {
		part, err := mw.CreateFormFile("files", name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := io.WriteString(part, content); err != nil {
			t.Fatal(err)
		}
	}
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func createAndActivate(t *testing.T, handler http.Handler, name string) string {
	t.Helper()
	w := doJSON(t, handler, http.MethodPost, "/api/v1/projects", models.CreateProjectRequest{Name: name})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status %d: %s", w.Code, w.Body.String())
	}
	p := decode[models.Project](t, w)
	w = doJSON(t, handler, http.MethodPost, "/api/v1/projects/"+p.ID+"/activate", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("activate status %d: %s", w.Code, w.Body.String())
	}
	return p.ID
}

func TestProjectLifecycle(t *testing.T) {
	srv := newTestServer(t, &llm.MockProvider{Reply: "ok"})
	handler := srv.Router()

	w := doJSON(t, handler, http.MethodPost, "/api/v1/projects", models.CreateProjectRequest{Name: ""})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty name: status %d", w.Code)
	}

	id := createAndActivate(t, handler, "Biology")

	w = doJSON(t, handler, http.MethodGet, "/api/v1/projects", nil)
	infos := decode[[]models.ProjectInfo](t, w)
	if len(infos) != 1 || !infos[0].Active || infos[0].Name != "Biology" {
		t.Errorf("list %+v", infos)
	}

	w = doJSON(t, handler, http.MethodDelete, "/api/v1/projects/"+id, nil)
	if w.Code != http.StatusOK {
		t.Errorf("delete status %d", w.Code)
	}
	w = doJSON(t, handler, http.MethodDelete, "/api/v1/projects/"+id, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("double delete status %d", w.Code)
	}
}

func TestActivateUnknownProject(t *testing.T) {
	srv := newTestServer(t, &llm.MockProvider{})
	w := doJSON(t, srv.Router(), http.MethodPost, "/api/v1/projects/nope/activate", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status %d", w.Code)
	}
}

func TestUploadAndAsk(t *testing.T) {
	srv := newTestServer(t, &llm.MockProvider{Reply: "Light becomes chemical energy."})
	handler := srv.Router()
	createAndActivate(t, handler, "Biology")

	w := uploadFiles(t, handler, map[string]string{
		"bio.txt": "Photosynthesis converts light into chemical energy.",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("upload status %d: %s", w.Code, w.Body.String())
	}
	proc := decode[models.ProcessResponse](t, w)
	if proc.Files != 1 || proc.Chunks == 0 {
		t.Errorf("process %+v", proc)
	}

	w = doJSON(t, handler, http.MethodPost, "/api/v1/ask", models.AskRequest{Question: "What is photosynthesis?"})
	if w.Code != http.StatusOK {
		t.Fatalf("ask status %d: %s", w.Code, w.Body.String())
	}
	ans := decode[models.AskResponse](t, w)
	if ans.Answer.Text != "Light becomes chemical energy." {
		t.Errorf("answer %+v", ans.Answer)
	}

	w = doJSON(t, handler, http.MethodGet, "/api/v1/transcript", nil)
	transcript := decode[models.Transcript](t, w)
	if len(transcript) != 2 {
		t.Errorf("transcript %+v", transcript)
	}

	w = doJSON(t, handler, http.MethodPost, "/api/v1/transcript/clear", nil)
	if w.Code != http.StatusOK {
		t.Fatal("clear failed")
	}
	w = doJSON(t, handler, http.MethodGet, "/api/v1/transcript", nil)
	transcript = decode[models.Transcript](t, w)
	if len(transcript) != 0 {
		t.Errorf("transcript after clear %+v", transcript)
	}
}

func TestAskWithoutIndex(t *testing.T) {
	srv := newTestServer(t, &llm.MockProvider{Reply: "never"})
	handler := srv.Router()
	createAndActivate(t, handler, "Empty")

	w := doJSON(t, handler, http.MethodPost, "/api/v1/ask", models.AskRequest{Question: "anything?"})
	if w.Code != http.StatusConflict {
		t.Errorf("status %d: %s", w.Code, w.Body.String())
	}
}

func TestAskWithoutActiveProject(t *testing.T) {
	srv := newTestServer(t, &llm.MockProvider{})
	w := doJSON(t, srv.Router(), http.MethodPost, "/api/v1/ask", models.AskRequest{Question: "anything?"})
	if w.Code != http.StatusConflict {
		t.Errorf("status %d", w.Code)
	}
}

func TestAskFallback(t *testing.T) {
	srv := newTestServer(t, &llm.MockProvider{Reply: "never"})
	handler := srv.Router()
	createAndActivate(t, handler, "P")

	w := doJSON(t, handler, http.MethodPost, "/api/v1/ask",
		models.AskRequest{Question: "What is photosynthesis?", Fallback: true})
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	ans := decode[models.AskResponse](t, w)
	if ans.Answer.Text == "" {
		t.Error("empty fallback answer")
	}
}

func TestAskCompletionFailureIs502(t *testing.T) {
	provider := &llm.MockProvider{Reply: "ok"}
	srv := newTestServer(t, provider)
	handler := srv.Router()
	createAndActivate(t, handler, "P")
	w := uploadFiles(t, handler, map[string]string{"a.txt": "some document text"})
	if w.Code != http.StatusCreated {
		t.Fatal(w.Body.String())
	}

	provider.Err = &llm.RequestError{Status: 503, Err: io.ErrUnexpectedEOF}
	w = doJSON(t, handler, http.MethodPost, "/api/v1/ask", models.AskRequest{Question: "q?"})
	if w.Code != http.StatusBadGateway {
		t.Errorf("status %d: %s", w.Code, w.Body.String())
	}
}

func TestUploadEmptyContentIs422(t *testing.T) {
	srv := newTestServer(t, &llm.MockProvider{})
	handler := srv.Router()
	createAndActivate(t, handler, "P")

	w := uploadFiles(t, handler, map[string]string{"blank.txt": "   \n  "})
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status %d: %s", w.Code, w.Body.String())
	}
}

func TestUploadCorruptPDFIs422(t *testing.T) {
	srv := newTestServer(t, &llm.MockProvider{})
	handler := srv.Router()
	createAndActivate(t, handler, "P")

	w := uploadFiles(t, handler, map[string]string{"broken.pdf": "not a pdf at all"})
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status %d: %s", w.Code, w.Body.String())
	}
}

func TestUploadWithoutActiveProjectIs409(t *testing.T) {
	srv := newTestServer(t, &llm.MockProvider{})
	w := uploadFiles(t, srv.Router(), map[string]string{"a.txt": "text"})
	if w.Code != http.StatusConflict {
		t.Errorf("status %d: %s", w.Code, w.Body.String())
	}
}

func TestNoteStyleEndpoints(t *testing.T) {
	srv := newTestServer(t, &llm.MockProvider{Reply: "answer line"})
	handler := srv.Router()
	id := createAndActivate(t, handler, "P")

	w := doJSON(t, handler, http.MethodGet, "/api/v1/projects/"+id+"/notestyle", nil)
	status := decode[models.NoteStyleStatus](t, w)
	if status.Initialized {
		t.Error("fresh project initialized")
	}

	w = doJSON(t, handler, http.MethodPost, "/api/v1/projects/"+id+"/notestyle", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("setup status %d", w.Code)
	}
	w = doJSON(t, handler, http.MethodGet, "/api/v1/projects/"+id+"/notestyle", nil)
	status = decode[models.NoteStyleStatus](t, w)
	if !status.Initialized || status.TemplateCount == 0 {
		t.Errorf("status %+v", status)
	}

	w = doJSON(t, handler, http.MethodPost, "/api/v1/projects/unknown/notestyle", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown project status %d", w.Code)
	}
}

func TestStatusEndpoint(t *testing.T) {
	srv := newTestServer(t, &llm.MockProvider{Reply: "ok"})
	handler := srv.Router()
	id := createAndActivate(t, handler, "P")
	w := uploadFiles(t, handler, map[string]string{"a.txt": "some document text"})
	if w.Code != http.StatusCreated {
		t.Fatal(w.Body.String())
	}

	w = doJSON(t, handler, http.MethodGet, "/api/v1/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	status := decode[models.StatusResponse](t, w)
	if status.Projects != 1 || status.ActiveProject != id {
		t.Errorf("status %+v", status)
	}
	if status.SessionState != "index_ready" || status.IndexSize == 0 {
		t.Errorf("status %+v", status)
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, &llm.MockProvider{})
	w := doJSON(t, srv.Router(), http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("status %d", w.Code)
	}
}
