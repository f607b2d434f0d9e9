package httpapi

import (
	"net/http"
	"time"

	"accessdesk.org/internal/audit"
)

const auditDefaultLimit = 100

// handleAuditLogs serves the trail query endpoint. Records come back
// newest-first; all filters are optional.
func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if a.recorder == nil {
		writeError(w, r, http.StatusServiceUnavailable, "audit store unavailable")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		SubjectID:     q.Get("user_id"),
		ApplicationID: q.Get("app_id"),
		BrandID:       q.Get("brand_id"),
		Action:        q.Get("action"),
	}
	if raw := q.Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "from must be RFC 3339")
			return
		}
		filter.From = t
	}
	if raw := q.Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "to must be RFC 3339")
			return
		}
		filter.To = t
	}
	limit := queryInt(r, "limit", auditDefaultLimit)

	records, err := a.recorder.List(r.Context(), filter, limit)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "audit query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"records": records,
		"count":   len(records),
	})
}
