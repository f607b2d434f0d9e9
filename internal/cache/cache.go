// Package cache signals the downstream dashboard service to drop its cached
// view of a user's access after a mutation. The signal is fire-and-forget:
// delivery is not required for correctness of this service's own state.
package cache

import (
	"context"
	"net/http"
	"strings"
	"time"

	"accessdesk.org/internal/obs"
)

// Invalidator notifies an external cache about access changes.
type Invalidator interface {
	// InvalidateUser drops the cache for one user after a grant mutation.
	InvalidateUser(ctx context.Context, userID string)
	// InvalidateAll drops every user's cache after a catalog mutation.
	InvalidateAll(ctx context.Context)
}

// Noop is used when no cache endpoint is configured.
type Noop struct{}

func (Noop) InvalidateUser(context.Context, string) {}
func (Noop) InvalidateAll(context.Context)          {}

// HTTPInvalidator posts to the sibling service's cache-clear endpoints.
type HTTPInvalidator struct {
	baseURL string
	client  *http.Client
}

// NewHTTP builds an invalidator targeting baseURL, e.g.
// http://dashboard-api:8000/api/v1/admin.
func NewHTTP(baseURL string) *HTTPInvalidator {
	return &HTTPInvalidator{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

func (h *HTTPInvalidator) InvalidateUser(ctx context.Context, userID string) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return
	}
	h.fire(h.baseURL + "/clearSingleUserCache/" + userID)
}

func (h *HTTPInvalidator) InvalidateAll(ctx context.Context) {
	h.fire(h.baseURL + "/clearAllUsersCache")
}

// fire delivers the signal without blocking the request path; failures are
// logged and dropped.
func (h *HTTPInvalidator) fire(url string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
		if err != nil {
			return
		}
		resp, err := h.client.Do(req)
		if err != nil {
			obs.LogRequest(map[string]any{
				"ts":    time.Now().UTC().Format(time.RFC3339Nano),
				"type":  "cache",
				"level": "warn",
				"msg":   "cache invalidation failed",
				"url":   url,
				"error": err.Error(),
			})
			return
		}
		_ = resp.Body.Close()
	}()
}
