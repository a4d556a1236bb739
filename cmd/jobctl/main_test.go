package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/suPer8Hu/genjobs/internal/genjob"
)

func fakeAPI(t *testing.T, final genjob.Status) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/jobs":
			var in genjob.Input
			_ = json.NewDecoder(r.Body).Decode(&in)
			if in.Context["tone"] != "playful" {
				t.Errorf("context flag not forwarded: %v", in.Context)
			}
			w.WriteHeader(http.StatusAccepted)
			_, _ = w.Write([]byte(`{"code":0,"message":"accepted","data":{"job_id":"J1","status":"queued","created":true}}`))
		case r.URL.Path == "/jobs/J1":
			msg := "boom"
			v := genjob.View{ID: "J1", Status: final, Progress: 100}
			if final == genjob.StatusFailed {
				v.Progress = 10
				v.ErrorMessage = &msg
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"code": 0, "message": "ok", "data": map[string]any{"job": v}})
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"code":40402,"message":"job not found","data":null}`))
		}
	}))
}

func TestRun_SubmitAndWait(t *testing.T) {
	srv := fakeAPI(t, genjob.StatusCompleted)
	defer srv.Close()

	var out, errOut bytes.Buffer
	code := run(context.Background(), []string{"submit", "--url", srv.URL, "--token", "t", "--context", "tone=playful", "--wait", "--interval", "1ms", "red", "shoes"}, &out, &errOut)
	if code != exitOK {
		t.Fatalf("exit %d, stderr=%s", code, errOut.String())
	}
	if !strings.Contains(out.String(), "status:   completed") {
		t.Fatalf("unexpected output: %s", out.String())
	}
}

func TestRun_WaitFailedJob(t *testing.T) {
	srv := fakeAPI(t, genjob.StatusFailed)
	defer srv.Close()

	var out, errOut bytes.Buffer
	code := run(context.Background(), []string{"wait", "--url", srv.URL, "--interval", "1ms", "J1"}, &out, &errOut)
	if code != exitJobFailed {
		t.Fatalf("expected exit %d, got %d", exitJobFailed, code)
	}
	if !strings.Contains(out.String(), "error:    boom") {
		t.Fatalf("unexpected output: %s", out.String())
	}
}

func TestRun_GetUnknownJob(t *testing.T) {
	srv := fakeAPI(t, genjob.StatusCompleted)
	defer srv.Close()

	var out, errOut bytes.Buffer
	if code := run(context.Background(), []string{"get", "--url", srv.URL, "missing"}, &out, &errOut); code != exitError {
		t.Fatalf("expected exit %d, got %d", exitError, code)
	}
	if !strings.Contains(errOut.String(), "not found") {
		t.Fatalf("unexpected stderr: %s", errOut.String())
	}
}

func TestRun_Usage(t *testing.T) {
	var out, errOut bytes.Buffer
	if code := run(context.Background(), nil, &out, &errOut); code != exitUsage {
		t.Fatalf("expected usage exit, got %d", code)
	}
	if code := run(context.Background(), []string{"submit", "--url", "http://x"}, &out, &errOut); code != exitUsage {
		t.Fatalf("expected usage exit for missing prompt, got %d", code)
	}
}
