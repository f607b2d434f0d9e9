package audit

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"accessdesk.org/internal/auth"
	"accessdesk.org/internal/ids"
	"accessdesk.org/internal/obs"
)

type ctxKey string

const requestMetaKey ctxKey = "audit_request_meta"

// RequestMeta carries the origin details attached to every record produced
// while handling one request.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

// WithRequestMeta attaches request origin details to the context.
func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey, meta)
}

func requestMetaFromContext(ctx context.Context) RequestMeta {
	if ctx == nil {
		return RequestMeta{}
	}
	if v, ok := ctx.Value(requestMetaKey).(RequestMeta); ok {
		return v
	}
	return RequestMeta{}
}

// Entry is the caller-facing shape of one audit event; the Trail fills in
// actor, origin, and timestamp from the context.
type Entry struct {
	SubjectID     string
	ApplicationID string
	BrandID       string
	PlatformID    string
	Action        string
	Detail        string
	// Request is serialized into the record with secret-looking fields
	// redacted.
	Request any
}

// Trail wraps a Recorder with the best-effort append contract.
type Trail struct {
	rec Recorder
}

// NewTrail builds a Trail. A nil recorder yields a trail that only writes to
// the operator log, which keeps tests and degraded deployments working.
func NewTrail(rec Recorder) *Trail {
	return &Trail{rec: rec}
}

// Success records a completed mutation.
func (t *Trail) Success(ctx context.Context, e Entry) {
	t.append(ctx, e, OutcomeSuccess, "")
}

// Failure records a rejected or failed mutation attempt.
func (t *Trail) Failure(ctx context.Context, e Entry, cause error) {
	detail := ""
	if cause != nil {
		detail = cause.Error()
	}
	t.append(ctx, e, OutcomeFailed, detail)
}

func (t *Trail) append(ctx context.Context, e Entry, outcome, errDetail string) {
	meta := requestMetaFromContext(ctx)
	rec := Record{
		ID:            ids.New(),
		SubjectID:     e.SubjectID,
		ApplicationID: e.ApplicationID,
		BrandID:       e.BrandID,
		PlatformID:    e.PlatformID,
		Action:        e.Action,
		Detail:        e.Detail,
		RequestBody:   marshalRedacted(e.Request),
		Outcome:       outcome,
		ErrorDetail:   errDetail,
		PerformedAt:   time.Now().UTC(),
		IPAddress:     meta.IPAddress,
		UserAgent:     meta.UserAgent,
	}
	if adminID, ok := auth.AdminIDFromContext(ctx); ok {
		rec.PerformedBy = adminID
	}

	if t == nil || t.rec == nil {
		obs.LogRequest(map[string]any{
			"ts":    rec.PerformedAt.Format(time.RFC3339Nano),
			"type":  "audit",
			"event": rec.Action,
			"note":  "no recorder configured",
		})
		return
	}
	if err := t.rec.Append(ctx, rec); err != nil {
		// Losing an entry must never fail the mutation it describes.
		obs.LogRequest(map[string]any{
			"ts":    time.Now().UTC().Format(time.RFC3339Nano),
			"type":  "audit",
			"level": "error",
			"event": rec.Action,
			"msg":   "audit append failed",
			"error": err.Error(),
		})
	}
}

var secretFields = []string{"password", "secret", "token", "authorization"}

// marshalRedacted serializes the request payload, masking secret-looking
// top-level object fields.
func marshalRedacted(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return raw // not an object; keep as-is
	}
	for key := range obj {
		lower := strings.ToLower(key)
		for _, secret := range secretFields {
			if strings.Contains(lower, secret) {
				obj[key] = "***"
				break
			}
		}
	}
	redacted, err := json.Marshal(obj)
	if err != nil {
		return raw
	}
	return redacted
}
