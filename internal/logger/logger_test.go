package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
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
		m := map[string]any{}
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("decode %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestSlogBridge_ContextFieldsAndLevels(t *testing.T) {
	var buf bytes.Buffer
	zl := Build(Config{Level: "info", Mode: "oauth", Service: "test"}, &buf)
	l := NewSlog(&zl)

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithJobID(ctx, "job-9")

	l.DebugContext(ctx, "dropped at info level")
	l.ErrorContext(ctx, "submit failed", "err", errors.New("boom"), "attempt", 1)

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("lines=%d want 1: %s", len(lines), buf.String())
	}
	got := lines[0]
	checks := map[string]any{
		"msg":        "submit failed",
		"level":      "error",
		"request_id": "req-1",
		"job_id":     "job-9",
		"auth_mode":  "oauth",
		"service":    "test",
		"err":        "boom",
	}
	for k, want := range checks {
		if got[k] != want {
			t.Fatalf("%s=%v want %v (line %v)", k, got[k], want, got)
		}
	}
	if _, ok := got["timestamp"]; !ok {
		t.Fatal("missing timestamp field")
	}
}

func TestSlogBridge_Groups(t *testing.T) {
	var buf bytes.Buffer
	zl := Build(Config{Level: "debug"}, &buf)
	l := NewSlog(&zl).WithGroup("gp").With("op", "submitJob")

	l.Debug("poll", "status", "esriJobExecuting")

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("lines=%d want 1", len(lines))
	}
	if lines[0]["gp.op"] != "submitJob" || lines[0]["gp.status"] != "esriJobExecuting" {
		t.Fatalf("group keys missing: %v", lines[0])
	}
}

func TestWithRequestID_GeneratesWhenEmpty(t *testing.T) {
	ctx := WithRequestID(context.Background(), "")
	id := RequestID(ctx)
	if len(id) != 16 {
		t.Fatalf("generated id=%q want 16 hex chars", id)
	}
	if RequestID(context.Background()) != "" {
		t.Fatal("expected empty id on bare context")
	}
}

func TestCarryTrace_FollowsClickIntoJob(t *testing.T) {
	var buf bytes.Buffer
	zl := Build(Config{Level: "debug"}, &buf)
	l := NewSlog(&zl)

	click := WithComponent(WithRequestID(context.Background(), "req-7"), "http")

	// the job runs under its own context once the request has returned
	job, cancel := context.WithCancel(context.Background())
	defer cancel()
	job = CarryTrace(job, click)
	job = WithComponent(job, "orchestrator")
	job = WithJobID(job, "j1")
	fetch := WithOutput(job, "SnappedPoints")

	l.InfoContext(fetch, "fetch result")

	got := decodeLines(t, &buf)[0]
	want := map[string]any{
		"request_id": "req-7",
		"job_id":     "j1",
		"output":     "SnappedPoints",
		"component":  "orchestrator",
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("%s=%v want %v (line %v)", k, got[k], v, got)
		}
	}
	if tr := TraceFrom(click); tr.JobID != "" || tr.Component != "http" {
		t.Fatalf("click trace mutated: %+v", tr)
	}
}

func TestCarryTrace_EmptySourceKeepsBase(t *testing.T) {
	base := context.WithValue(context.Background(), traceKey{}, Trace{RequestID: "keep"})
	if got := CarryTrace(base, context.Background()); RequestID(got) != "keep" {
		t.Fatalf("request id=%q", RequestID(got))
	}
}

func TestBoundComponentWinsOverContext(t *testing.T) {
	var buf bytes.Buffer
	zl := Build(Config{Level: "info"}, &buf)
	l := NewSlog(&zl).With("component", "identity")

	ctx := WithComponent(WithRequestID(context.Background(), "r"), "session")
	l.InfoContext(ctx, "signed in")

	lines := decodeLines(t, &buf)
	if len(lines) != 1 || lines[0]["component"] != "identity" || lines[0]["request_id"] != "r" {
		t.Fatalf("lines=%v", lines)
	}
	if n := strings.Count(buf.String(), `"component"`); n != 1 {
		t.Fatalf("component written %d times: %s", n, buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]string{"": "info", "DEBUG": "debug", " warn ": "warn", "bogus": "info", "error": "error"}
	for in, want := range cases {
		if got := ParseLevel(in).String(); got != want {
			t.Errorf("ParseLevel(%q)=%s want %s", in, got, want)
		}
	}
}
