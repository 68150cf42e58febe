package server

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"

	"github.com/agentforge/taskrunner/pkg/model"
	"github.com/agentforge/taskrunner/pkg/registry"
)

func TestHandleHealth_ReturnsHealthyUnauthenticated(t *testing.T) {
	a := &api{}
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	a.handleHealth(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("expected status=healthy, got %v", body)
	}
}

func TestRequireAPIKey_DisabledWhenConfiguredKeyEmpty(t *testing.T) {
	a := &api{apiKey: ""}
	called := false
	handler := a.requireAPIKey(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	req := httptest.NewRequest(http.MethodGet, "/task/x", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !called {
		t.Errorf("expected the handler to run when no API key is configured")
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected default 200 from the recorder, got %d", rec.Code)
	}
}

func TestRequireAPIKey_RejectsMissingOrWrongKey(t *testing.T) {
	a := &api{apiKey: "secret"}
	called := false
	handler := a.requireAPIKey(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	req := httptest.NewRequest(http.MethodGet, "/task/x", nil)
	req.Header.Set("X-API-Key", "wrong")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if called {
		t.Errorf("expected the handler not to run with a wrong API key")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestRequireAPIKey_AcceptsMatchingKey(t *testing.T) {
	a := &api{apiKey: "secret"}
	called := false
	handler := a.requireAPIKey(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	req := httptest.NewRequest(http.MethodGet, "/task/x", nil)
	req.Header.Set("X-API-Key", "secret")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !called {
		t.Errorf("expected the handler to run with a matching API key")
	}
}

// multipartRequest builds a multipart/form-data request with the given
// text fields and (name, filename, content) file parts.
func multipartRequest(t *testing.T, fields map[string]string, files [][3]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("WriteField: %v", err)
		}
	}
	for _, f := range files {
		part, err := w.CreateFormFile(f[0], f[1])
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		if _, err := part.Write([]byte(f[2])); err != nil {
			t.Fatalf("write file content: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/task/run/sync", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestParseTaskRequest_ValidRequest(t *testing.T) {
	a := &api{maxFileSize: 1 << 20}
	req := multipartRequest(t,
		map[string]string{
			"task_description":       "  do the thing  ",
			"data_files_description": "a csv",
			"base_path":              "remote/base",
			"target_path":            "out",
		},
		[][3]string{{"data_files[]", "in.csv", "a,b\n1,2"}},
	)

	request, err := a.parseTaskRequest(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if request.TaskDescription != "do the thing" {
		t.Errorf("expected trimmed task_description, got %q", request.TaskDescription)
	}
	if len(request.Files) != 1 || request.Files[0].Filename != "in.csv" {
		t.Fatalf("expected one uploaded file, got %+v", request.Files)
	}
	if string(request.Files[0].Bytes) != "a,b\n1,2" {
		t.Errorf("expected uploaded file bytes to round-trip, got %q", request.Files[0].Bytes)
	}
	if request.RemoteBasePath != "remote/base" || request.TargetPath != "out" {
		t.Errorf("expected base_path/target_path to carry through, got %+v", request)
	}
}

func TestParseTaskRequest_RejectsEmptyTaskDescription(t *testing.T) {
	a := &api{maxFileSize: 1 << 20}
	req := multipartRequest(t, map[string]string{"task_description": "   "}, nil)

	_, err := a.parseTaskRequest(req)
	if err == nil {
		t.Fatal("expected an error for an empty task_description")
	}
}

func TestParseTaskRequest_RejectsOversizedFile(t *testing.T) {
	a := &api{maxFileSize: 4}
	req := multipartRequest(t,
		map[string]string{"task_description": "x"},
		[][3]string{{"data_files[]", "big.bin", "way too large for the limit"}},
	)

	_, err := a.parseTaskRequest(req)
	if err == nil {
		t.Fatal("expected a file-too-large error")
	}
}

func TestHandleGetTask_UnknownIDReturns404(t *testing.T) {
	reg := registry.New(registry.DefaultConfig(), nil)
	defer reg.Stop()
	a := &api{registry: reg}

	req := httptest.NewRequest(http.MethodGet, "/task/does-not-exist", nil)
	req = mux.SetURLVars(req, map[string]string{"id": "does-not-exist"})
	rec := httptest.NewRecorder()

	a.handleGetTask(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestHandleGetTask_CompletedReturnsStoredResponse(t *testing.T) {
	reg := registry.New(registry.DefaultConfig(), nil)
	defer reg.Stop()
	a := &api{registry: reg}

	taskID := reg.Create()
	want := &model.TaskResponse{ID: taskID, Status: model.StatusCompleted, Answer: "42", Success: true}
	if err := reg.UpdateStatus(taskID, model.StatusCompleted, want); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/task/"+taskID, nil)
	req = mux.SetURLVars(req, map[string]string{"id": taskID})
	rec := httptest.NewRecorder()

	a.handleGetTask(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got model.TaskResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if got.Answer != "42" || got.Status != model.StatusCompleted {
		t.Errorf("expected the stored response to round-trip, got %+v", got)
	}
}
