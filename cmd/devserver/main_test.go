package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func ingestRequest(payload string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/v1/iot/ingest", strings.NewReader(payload))
	req.Header.Set("X-Api-Key", "key-1")
	req.Header.Set("X-Project-Id", "proj-1")
	return req
}

func TestIngestAuth(t *testing.T) {
	srv := &server{cfg: config{APIKey: "key-1", ProjectID: "proj-1"}}
	h := srv.routes()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, ingestRequest(`{"temp":20}`))
	if rec.Code != http.StatusOK {
		t.Errorf("valid credentials: status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	req := ingestRequest(`{}`)
	req.Header.Set("X-Api-Key", "wrong")
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad key: status = %d, want 401", rec.Code)
	}
}

func TestIngestDeliversQueuedCommands(t *testing.T) {
	srv := &server{}
	h := srv.routes()

	// Queue a command.
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/commands",
		strings.NewReader(`{"command":"pump_nutrients","arguments":{"duration_ms":5000}}`)))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("queue command: status = %d", rec.Code)
	}

	// The next ingest carries it.
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, ingestRequest(`{"temp":20}`))
	var out struct {
		Commands []struct {
			Command     string `json:"command"`
			ExecutionID string `json:"execution_id"`
		} `json:"commands"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if len(out.Commands) != 1 || out.Commands[0].Command != "pump_nutrients" {
		t.Fatalf("commands = %+v", out.Commands)
	}
	if out.Commands[0].ExecutionID == "" {
		t.Error("execution_id must be assigned")
	}

	// Queue drains: the following ingest carries none.
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, ingestRequest(`{"temp":21}`))
	out.Commands = nil
	json.Unmarshal(rec.Body.Bytes(), &out) //nolint:errcheck
	if len(out.Commands) != 0 {
		t.Errorf("commands should drain after delivery, got %+v", out.Commands)
	}
}

func TestIngestInjectedFailures(t *testing.T) {
	srv := &server{}
	h := srv.routes()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/failures",
		strings.NewReader(`{"statuses":[503,429]}`)))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("inject failures: status = %d", rec.Code)
	}

	for _, want := range []int{503, 429, 200} {
		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, ingestRequest(`{"temp":20}`))
		if rec.Code != want {
			t.Errorf("status = %d, want %d", rec.Code, want)
		}
	}
}

func TestIngestSchemaValidation(t *testing.T) {
	srv := &server{cfg: config{SchemaID: "greenhouse-v2"}}
	h := srv.routes()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, ingestRequest(`{"temp":20}`)) // no schema_id
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing schema_id: status = %d, want 400", rec.Code)
	}

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/iot/ingest?schema_id=greenhouse-v2",
		strings.NewReader(`{"temp":20}`))
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("matching schema_id: status = %d, want 200", rec.Code)
	}
}
