package obs

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("invalid log line %q: %v", line, err)
		}
		out = append(out, rec)
	}
	return out
}

func TestFrom_AddsRunCorrelation(t *testing.T) {
	var buf bytes.Buffer
	restore := SetOutputForTests(&buf)
	defer restore()

	ctx := WithRun(context.Background(), "run-1", "create-default-namespace")
	ctx = WithCommand(ctx, "createMachReg")
	From(ctx).Info("step")

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("expected 1 log line, got %d", len(lines))
	}
	rec := lines[0]
	if rec["run_id"] != "run-1" || rec["scenario"] != "create-default-namespace" || rec["command"] != "createMachReg" {
		t.Fatalf("missing correlation attrs: %v", rec)
	}
}

func TestWithRun_GeneratesRunID(t *testing.T) {
	ctx := WithRun(context.Background(), "", "smoke")
	if got := RunIDFromContext(ctx); !strings.HasPrefix(got, "run-") || len(got) <= len("run-") {
		t.Fatalf("unexpected generated run id %q", got)
	}
	if got := RunIDFromContext(context.Background()); got != "unknown" {
		t.Fatalf("RunIDFromContext(empty) = %q", got)
	}
}

func TestWithCommand_KeepsRun(t *testing.T) {
	ctx := WithRun(context.Background(), "run-2", "")
	ctx = WithCommand(ctx, "login")
	ctx = WithCommand(ctx, "typeValue")
	corr := CorrelationFromContext(ctx)
	if corr.RunID != "run-2" || corr.Command != "typeValue" {
		t.Fatalf("unexpected correlation %+v", corr)
	}
}

func TestAccessLogMiddleware(t *testing.T) {
	var buf bytes.Buffer
	restore := SetOutputForTests(&buf)
	defer restore()

	h := AccessLogMiddleware("fakedash", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/dashboard/home", nil)
	req.Header.Set(RunIDHeader, "run-3")
	h.ServeHTTP(httptest.NewRecorder(), req)

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("expected 1 access line, got %d", len(lines))
	}
	rec := lines[0]
	if rec["msg"] != "http_access" || rec["path"] != "/dashboard/home" || rec["run_id"] != "run-3" {
		t.Fatalf("unexpected access record %v", rec)
	}
	if status, _ := rec["status"].(float64); int(status) != http.StatusTeapot {
		t.Fatalf("status = %v", rec["status"])
	}
	if n, _ := rec["resp_bytes"].(float64); int(n) != len("short and stout") {
		t.Fatalf("resp_bytes = %v", rec["resp_bytes"])
	}
}
