// Package audit provides the append-only trail written for every attempted
// mutation. Appending is best-effort by design: a failed append is reported
// to the operator log and swallowed, never to the caller, so that losing an
// audit entry cannot abort or roll back the business mutation it describes.
package audit

import (
	"context"
	"encoding/json"
	"time"
)

// Outcome values for a Record.
const (
	OutcomeSuccess = "SUCCESS"
	OutcomeFailed  = "FAILED"
)

// Record is one immutable audit row. Rows are never updated or deleted.
type Record struct {
	ID            string          `json:"audit_id"`
	SubjectID     string          `json:"user_id,omitempty"`
	ApplicationID string          `json:"app_id,omitempty"`
	BrandID       string          `json:"brand_id,omitempty"`
	PlatformID    string          `json:"platform_id,omitempty"`
	Action        string          `json:"action"`
	Detail        string          `json:"action_details"`
	RequestBody   json.RawMessage `json:"request_body,omitempty"`
	Outcome       string          `json:"outcome"`
	ErrorDetail   string          `json:"error_message,omitempty"`
	PerformedBy   string          `json:"performed_by"`
	PerformedAt   time.Time       `json:"performed_at"`
	IPAddress     string          `json:"ip_address,omitempty"`
	UserAgent     string          `json:"user_agent,omitempty"`
}

// Filter narrows a trail query. Zero-valued fields match everything.
type Filter struct {
	SubjectID     string
	ApplicationID string
	BrandID       string
	Action        string
	From          time.Time
	To            time.Time
}

// Recorder persists and queries audit records.
type Recorder interface {
	Append(ctx context.Context, rec Record) error
	// List returns matching records newest-first, bounded by limit.
	List(ctx context.Context, f Filter, limit int) ([]Record, error)
}
