package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"offbook/internal/library"
	"offbook/internal/playbook"
	"offbook/internal/queue"
)

func newTestServer(t *testing.T) (*Server, *queue.Store, *library.Library) {
	t.Helper()
	store, err := queue.Open(filepath.Join(t.TempDir(), "offbook.db"))
	if err != nil {
		t.Fatalf("open queue: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	lib, err := library.New(store.DB(), nil)
	if err != nil {
		t.Fatalf("new library: %v", err)
	}

	s := New(Config{
		Store:            store,
		Library:          lib,
		DefaultChunkSize: 4000,
		DefaultProvider:  "openrouter",
	})
	return s, store, lib
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealthAndReady(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := doJSON(t, s.Handler(), http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("health status = %d", rec.Code)
	}

	rec = doJSON(t, s.Handler(), http.MethodGet, "/ready", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("ready status = %d", rec.Code)
	}
	resp := decodeBody[HealthResponse](t, rec)
	if resp.DB != "ok" {
		t.Errorf("DB = %q", resp.DB)
	}
}

func TestCreateAndGetJob(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := doJSON(t, s.Handler(), http.MethodPost, "/api/v1/jobs", CreateJobRequest{
		RawText:  "HAMLET: To be, or not to be.",
		Filename: "hamlet.txt",
		Priority: 5,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}
	created := decodeBody[map[string]string](t, rec)
	id := created["id"]
	if id == "" {
		t.Fatal("no job id in response")
	}

	rec = doJSON(t, s.Handler(), http.MethodGet, "/api/v1/jobs/"+id, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	job := decodeBody[JobView](t, rec)
	if job.Status != queue.StatusQueued {
		t.Errorf("status = %s", job.Status)
	}
	if job.Priority != 5 {
		t.Errorf("priority = %d", job.Priority)
	}
}

func TestCreateJobFromBase64Data(t *testing.T) {
	s, store, _ := newTestServer(t)

	rec := doJSON(t, s.Handler(), http.MethodPost, "/api/v1/jobs", CreateJobRequest{
		Data:     base64.StdEncoding.EncodeToString([]byte("ACT I\nHAMLET: Who's there?")),
		Filename: "hamlet.txt",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}
	created := decodeBody[map[string]string](t, rec)

	job, err := store.GetByID(context.Background(), created["id"])
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if job.RawText != "ACT I\nHAMLET: Who's there?" {
		t.Errorf("RawText = %q", job.RawText)
	}
	if job.Config.ChunkSize != 4000 || job.Config.Provider != "openrouter" {
		t.Errorf("defaults not applied: %+v", job.Config)
	}
}

func TestCreateJobFromMultipartUpload(t *testing.T) {
	s, store, _ := newTestServer(t)

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("file", "hamlet.txt")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	part.Write([]byte("ACT I\nHAMLET: Who's there?"))
	form.WriteField("priority", "7")
	form.WriteField("provider", "mock")
	if err := form.Close(); err != nil {
		t.Fatalf("close form: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", &buf)
	req.Header.Set("Content-Type", form.FormDataContentType())
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}
	created := decodeBody[map[string]string](t, rec)

	job, err := store.GetByID(context.Background(), created["id"])
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if job.RawText != "ACT I\nHAMLET: Who's there?" {
		t.Errorf("RawText = %q", job.RawText)
	}
	if job.Priority != 7 || job.Config.Provider != "mock" || job.Filename != "hamlet.txt" {
		t.Errorf("form fields not applied: priority=%d config=%+v filename=%q",
			job.Priority, job.Config, job.Filename)
	}
}

func TestCreateJobRejectsEmpty(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := doJSON(t, s.Handler(), http.MethodPost, "/api/v1/jobs", CreateJobRequest{Filename: "x.txt"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestCreateJobUnsupportedFormat(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := doJSON(t, s.Handler(), http.MethodPost, "/api/v1/jobs", CreateJobRequest{
		Data:     base64.StdEncoding.EncodeToString([]byte("whatever")),
		Filename: "play.odt",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", rec.Code)
	}
}

func TestListJobsWithStatusFilter(t *testing.T) {
	s, store, _ := newTestServer(t)

	for i := 0; i < 3; i++ {
		if _, err := store.Enqueue(context.Background(), queue.EnqueueInput{
			RawText: fmt.Sprintf("script %d", i), Filename: "x.txt",
		}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	rec := doJSON(t, s.Handler(), http.MethodGet, "/api/v1/jobs?status=queued", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decodeBody[map[string][]JobView](t, rec)
	if len(resp["jobs"]) != 3 {
		t.Errorf("got %d jobs, want 3", len(resp["jobs"]))
	}

	rec = doJSON(t, s.Handler(), http.MethodGet, "/api/v1/jobs?status=completed", nil)
	resp = decodeBody[map[string][]JobView](t, rec)
	if len(resp["jobs"]) != 0 {
		t.Errorf("got %d completed jobs, want 0", len(resp["jobs"]))
	}

	rec = doJSON(t, s.Handler(), http.MethodGet, "/api/v1/jobs?status=bogus", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bogus status filter = %d, want 400", rec.Code)
	}
}

func TestJobStats(t *testing.T) {
	s, store, _ := newTestServer(t)

	if _, err := store.Enqueue(context.Background(), queue.EnqueueInput{RawText: "x", Filename: "x.txt"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	rec := doJSON(t, s.Handler(), http.MethodGet, "/api/v1/jobs/stats", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	stats := decodeBody[map[string]int](t, rec)
	if stats["queued"] != 1 {
		t.Errorf("queued = %d, want 1", stats["queued"])
	}
}

func TestCancelPauseResumeEndpoints(t *testing.T) {
	s, store, _ := newTestServer(t)

	id, err := store.Enqueue(context.Background(), queue.EnqueueInput{RawText: "x", Filename: "x.txt"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	// Pausing a queued job is an illegal transition.
	rec := doJSON(t, s.Handler(), http.MethodPost, "/api/v1/jobs/"+id+"/pause", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("pause queued = %d, want 409", rec.Code)
	}

	// Claim so the job is running, then pause and resume.
	if _, err := store.ClaimNext(context.Background(), "worker-1"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	rec = doJSON(t, s.Handler(), http.MethodPost, "/api/v1/jobs/"+id+"/pause", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("pause = %d: %s", rec.Code, rec.Body.String())
	}
	if view := decodeBody[JobView](t, rec); view.Status != queue.StatusPaused {
		t.Errorf("status after pause = %s", view.Status)
	}

	rec = doJSON(t, s.Handler(), http.MethodPost, "/api/v1/jobs/"+id+"/resume", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("resume = %d", rec.Code)
	}
	if view := decodeBody[JobView](t, rec); view.Status != queue.StatusQueued {
		t.Errorf("status after resume = %s, want queued (back in claim pool)", view.Status)
	}

	rec = doJSON(t, s.Handler(), http.MethodPost, "/api/v1/jobs/"+id+"/cancel", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel = %d", rec.Code)
	}
	if view := decodeBody[JobView](t, rec); view.Status != queue.StatusCancelled {
		t.Errorf("status after cancel = %s", view.Status)
	}

	rec = doJSON(t, s.Handler(), http.MethodPost, "/api/v1/jobs/missing/cancel", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("cancel missing = %d, want 404", rec.Code)
	}
}

func TestPlaybookEndpoints(t *testing.T) {
	s, _, lib := newTestServer(t)

	p := &playbook.Playbook{
		Title:  "Hamlet",
		Author: "William Shakespeare",
		Characters: []playbook.Character{
			{ID: "hamlet", Name: "Hamlet"},
		},
		Acts: []playbook.Act{{
			ID: "act-1", Title: "Act I",
			Scenes: []playbook.Scene{{
				ID: "scene-1", Title: "Scene 1",
				Lines: []playbook.Line{
					{ID: "line-1", Type: playbook.LineTypeDialogue, Text: "Who's there?", CharacterID: "hamlet"},
				},
			}},
		}},
	}
	p.FillDefaults(time.Now())
	id, err := lib.SavePlaybook(context.Background(), p)
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	rec := doJSON(t, s.Handler(), http.MethodGet, "/api/v1/playbooks", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list = %d", rec.Code)
	}
	list := decodeBody[map[string][]library.Summary](t, rec)
	if len(list["playbooks"]) != 1 {
		t.Fatalf("got %d playbooks", len(list["playbooks"]))
	}

	rec = doJSON(t, s.Handler(), http.MethodGet, "/api/v1/playbooks/"+id, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get = %d", rec.Code)
	}
	got := decodeBody[playbook.Playbook](t, rec)
	if got.Title != "Hamlet" {
		t.Errorf("Title = %q", got.Title)
	}

	rec = doJSON(t, s.Handler(), http.MethodDelete, "/api/v1/playbooks/"+id, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete = %d", rec.Code)
	}
	rec = doJSON(t, s.Handler(), http.MethodGet, "/api/v1/playbooks/"+id, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", rec.Code)
	}
}
