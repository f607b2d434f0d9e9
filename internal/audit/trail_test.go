package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"accessdesk.org/internal/auth"
	"accessdesk.org/internal/obs"
)

type memRecorder struct {
	records []Record
	err     error
}

func (m *memRecorder) Append(_ context.Context, rec Record) error {
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, rec)
	return nil
}

func (m *memRecorder) List(_ context.Context, _ Filter, _ int) ([]Record, error) {
	return m.records, nil
}

func TestTrailSuccessFillsActorAndOrigin(t *testing.T) {
	rec := &memRecorder{}
	trail := NewTrail(rec)

	ctx := auth.ContextWithAdmin(context.Background(), "admin-9", []string{"admin"})
	ctx = WithRequestMeta(ctx, RequestMeta{IPAddress: "10.0.0.7", UserAgent: "curl/8.0"})

	trail.Success(ctx, Entry{
		SubjectID: "user-1",
		Action:    "grant.brand.set",
		Detail:    "added 2, removed 0",
		Request:   map[string]any{"platform_ids": []string{"p1", "p2"}, "password": "hunter2"},
	})

	if len(rec.records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(rec.records))
	}
	got := rec.records[0]
	if got.Outcome != OutcomeSuccess {
		t.Fatalf("unexpected outcome: %s", got.Outcome)
	}
	if got.PerformedBy != "admin-9" {
		t.Fatalf("unexpected actor: %s", got.PerformedBy)
	}
	if got.IPAddress != "10.0.0.7" || got.UserAgent != "curl/8.0" {
		t.Fatalf("origin metadata missing: %+v", got)
	}
	if got.ID == "" || got.PerformedAt.IsZero() {
		t.Fatalf("record not stamped: %+v", got)
	}

	var payload map[string]any
	if err := json.Unmarshal(got.RequestBody, &payload); err != nil {
		t.Fatalf("request body not JSON: %v", err)
	}
	if payload["password"] != "***" {
		t.Fatalf("secret field not redacted: %v", payload["password"])
	}
}

func TestTrailFailureRecordsCause(t *testing.T) {
	rec := &memRecorder{}
	trail := NewTrail(rec)

	trail.Failure(context.Background(), Entry{Action: "grant.brand.set"}, errors.New("boom"))

	if len(rec.records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(rec.records))
	}
	if rec.records[0].Outcome != OutcomeFailed || rec.records[0].ErrorDetail != "boom" {
		t.Fatalf("failure not captured: %+v", rec.records[0])
	}
}

func TestTrailSwallowsAppendErrors(t *testing.T) {
	logger := obs.Logger()
	original := logger.Writer()
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer logger.SetOutput(original)

	trail := NewTrail(&memRecorder{err: errors.New("db down")})

	// Must not panic or propagate.
	trail.Success(context.Background(), Entry{Action: "catalog.entry.update"})

	if !bytes.Contains(buf.Bytes(), []byte("audit append failed")) {
		t.Fatalf("expected operator log entry, got %q", buf.String())
	}
}
