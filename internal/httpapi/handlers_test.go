package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"accessdesk.org/internal/access"
	"accessdesk.org/internal/audit"
	"accessdesk.org/internal/auth"
	"accessdesk.org/internal/directory"
	"accessdesk.org/internal/ids"
)

type memRecorder struct {
	mu      sync.Mutex
	records []audit.Record
}

func (m *memRecorder) Append(_ context.Context, rec audit.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *memRecorder) List(_ context.Context, f audit.Filter, limit int) ([]audit.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []audit.Record
	for i := len(m.records) - 1; i >= 0; i-- {
		rec := m.records[i]
		if f.Action != "" && rec.Action != f.Action {
			continue
		}
		if f.SubjectID != "" && rec.SubjectID != f.SubjectID {
			continue
		}
		out = append(out, rec)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

type memDirectory struct {
	mu    sync.Mutex
	users map[string]directory.User
}

func newMemDirectory() *memDirectory {
	return &memDirectory{users: make(map[string]directory.User)}
}

func (m *memDirectory) CreateUser(_ context.Context, user directory.User, _ string) (directory.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == user.Email {
			return directory.User{}, directory.ErrConflict
		}
	}
	user.ID = ids.New()
	m.users[user.ID] = user
	return user, nil
}

func (m *memDirectory) ListUsers(_ context.Context, q directory.Query) (directory.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []directory.User
	for _, user := range m.users {
		if q.Status != "" && user.Status != q.Status {
			continue
		}
		if q.Search != "" {
			needle := strings.ToLower(q.Search)
			if !strings.Contains(strings.ToLower(user.Name), needle) &&
				!strings.Contains(strings.ToLower(user.Email), needle) {
				continue
			}
		}
		matched = append(matched, user)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	page := directory.Page{Total: len(matched)}
	start := q.Offset
	if start > len(matched) {
		start = len(matched)
	}
	end := len(matched)
	if q.Limit > 0 && start+q.Limit < end {
		end = start + q.Limit
	}
	page.Users = matched[start:end]
	return page, nil
}

func (m *memDirectory) GetUser(_ context.Context, userID string) (directory.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok {
		return directory.User{}, directory.ErrNotFound
	}
	return user, nil
}

func (m *memDirectory) UpdateUserStatus(_ context.Context, userID, status string) (directory.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok {
		return directory.User{}, directory.ErrNotFound
	}
	user.Status = status
	m.users[userID] = user
	return user, nil
}

type apiClient struct {
	baseURL string
	client  *http.Client
	t       *testing.T
	token   string
}

func newTestAPI(t *testing.T) (*apiClient, *memRecorder) {
	t.Helper()
	t.Setenv("ACCESSDESK_AUTH_SECRET", "test-secret")
	auth.ResetSecretForTests()
	t.Cleanup(auth.ResetSecretForTests)

	recorder := &memRecorder{}
	trail := audit.NewTrail(recorder)

	store := access.NewInMemory()
	store.SeedApplication(access.Application{ID: "a1", Name: "Retail", Status: access.StatusActive})
	store.SeedBrand(access.Brand{ID: "b1", Name: "North"})
	store.SeedBrand(access.Brand{ID: "b2", Name: "South"})
	store.SeedPlatform(access.Platform{ID: "p1", Name: "Web"})
	store.SeedPlatform(access.Platform{ID: "p2", Name: "Mobile"})
	store.SeedPlatform(access.Platform{ID: "p3", Name: "Kiosk"})
	store.SeedDashboardType(access.DashboardType{ID: "dt1", Name: "Sales"})

	dirSvc, err := directory.NewService(newMemDirectory(), trail)
	if err != nil {
		t.Fatalf("directory.NewService: %v", err)
	}
	accessSvc, err := access.NewService(store, trail, nil, dirSvc)
	if err != nil {
		t.Fatalf("access.NewService: %v", err)
	}

	api := New(ReadyProbe{}, "test", accessSvc, dirSvc, recorder)
	api.rateBurst = 1000
	api.ratePerSec = 1000

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL: srv.URL,
		client:  srv.Client(),
		t:       t,
	}, recorder
}

func (c *apiClient) do(method, path string, body any) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func (c *apiClient) get(path string) *http.Response  { return c.do(http.MethodGet, path, nil) }
func (c *apiClient) post(path string, body any) *http.Response {
	return c.do(http.MethodPost, path, body)
}
func (c *apiClient) put(path string, body any) *http.Response {
	return c.do(http.MethodPut, path, body)
}
func (c *apiClient) delete(path string) *http.Response {
	return c.do(http.MethodDelete, path, nil)
}

func (c *apiClient) obtainToken(user string, roles []string) {
	c.t.Helper()
	resp := c.post("/v1/auth/token", map[string]any{"user": user, "roles": roles})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("token request failed: %d", resp.StatusCode)
	}
	var body tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		c.t.Fatalf("decode token: %v", err)
	}
	c.token = body.Token
}

func decodeBody(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		var body bytes.Buffer
		_, _ = body.ReadFrom(resp.Body)
		resp.Body.Close()
		t.Fatalf("status = %d, want %d (body: %s)", resp.StatusCode, want, body.String())
	}
	resp.Body.Close()
}

func TestHealthEndpointsArePublic(t *testing.T) {
	c, _ := newTestAPI(t)

	for _, path := range []string{"/healthz", "/readyz", "/v1/info"} {
		resp := c.get(path)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s returned %d", path, resp.StatusCode)
		}
		resp.Body.Close()
	}
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	c, _ := newTestAPI(t)

	resp := c.get("/v1/admin/apps")
	expectStatus(t, resp, http.StatusUnauthorized)

	c.obtainToken("viewer-1", []string{"viewer"})
	resp = c.get("/v1/admin/apps")
	expectStatus(t, resp, http.StatusForbidden)

	c.obtainToken("admin-1", []string{"admin"})
	resp = c.get("/v1/admin/apps")
	expectStatus(t, resp, http.StatusOK)
}

func TestGrantLifecycleOverHTTP(t *testing.T) {
	c, _ := newTestAPI(t)
	c.obtainToken("admin-1", []string{"admin"})

	resp := c.post("/v1/admin/catalog", map[string]any{
		"app_id":       "a1",
		"brand_id":     "b1",
		"platform_ids": []string{"p1", "p2"},
	})
	expectStatus(t, resp, http.StatusCreated)

	resp = c.put("/v1/admin/users/u1/apps/a1/brands/b1/platforms", map[string]any{
		"platform_ids": []string{"p1", "p2"},
	})
	var delta access.GrantDelta
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("set grants returned %d", resp.StatusCode)
	}
	decodeBody(t, resp, &delta)
	if delta.Added != 2 || delta.Removed != 0 {
		t.Fatalf("delta = %+v", delta)
	}

	// Unlicensed platform rejects the whole reconciliation.
	resp = c.put("/v1/admin/users/u1/apps/a1/brands/b1/platforms", map[string]any{
		"platform_ids": []string{"p1", "p3"},
	})
	expectStatus(t, resp, http.StatusBadRequest)

	resp = c.get("/v1/admin/users/u1/apps/a1/brands")
	var brandsBody struct {
		Brands []access.BrandGrants `json:"brands"`
	}
	decodeBody(t, resp, &brandsBody)
	if len(brandsBody.Brands) != 1 || len(brandsBody.Brands[0].Platforms) != 2 {
		t.Fatalf("unexpected brands payload: %+v", brandsBody)
	}

	resp = c.get("/v1/admin/users/u1/access-tree")
	var treeBody struct {
		Apps []access.ApplicationNode `json:"apps"`
	}
	decodeBody(t, resp, &treeBody)
	if len(treeBody.Apps) != 1 || treeBody.Apps[0].ID != "a1" {
		t.Fatalf("unexpected tree: %+v", treeBody)
	}

	resp = c.delete("/v1/admin/users/u1/apps/a1/brands/b1")
	expectStatus(t, resp, http.StatusOK)

	// Second removal finds nothing.
	resp = c.delete("/v1/admin/users/u1/apps/a1/brands/b1")
	expectStatus(t, resp, http.StatusNotFound)
}

func TestCatalogReconcileCascadesOverHTTP(t *testing.T) {
	c, _ := newTestAPI(t)
	c.obtainToken("admin-1", []string{"admin"})

	resp := c.post("/v1/admin/catalog", map[string]any{
		"app_id":       "a1",
		"brand_id":     "b1",
		"platform_ids": []string{"p1", "p2"},
	})
	expectStatus(t, resp, http.StatusCreated)

	resp = c.put("/v1/admin/users/u1/apps/a1/brands/b1/platforms", map[string]any{
		"platform_ids": []string{"p1", "p2"},
	})
	expectStatus(t, resp, http.StatusOK)

	resp = c.put("/v1/admin/catalog/a1/b1", map[string]any{
		"platform_ids": []string{"p2"},
	})
	var delta access.CatalogDelta
	decodeBody(t, resp, &delta)
	if delta.PlatformsRemoved != 1 || delta.GrantsCascaded != 1 {
		t.Fatalf("delta = %+v", delta)
	}

	resp = c.post("/v1/admin/catalog/a1/b1/validate", map[string]any{
		"platform_ids": []string{"p1", "p2"},
	})
	var check access.CombinationCheck
	decodeBody(t, resp, &check)
	if check.Valid || len(check.Invalid) != 1 || check.Invalid[0] != "p1" {
		t.Fatalf("check = %+v", check)
	}

	resp = c.delete("/v1/admin/catalog/a1/b1")
	var counts access.CascadeCounts
	decodeBody(t, resp, &counts)
	if counts.Platforms != 1 || counts.Grants != 1 {
		t.Fatalf("counts = %+v", counts)
	}
}

func TestUserEndpoints(t *testing.T) {
	c, _ := newTestAPI(t)
	c.obtainToken("admin-1", []string{"admin"})

	resp := c.post("/v1/admin/users", map[string]any{
		"user_name":    "Dana Example",
		"email":        "dana@example.test",
		"password":     "correct horse",
		"user_type":    "ANALYST",
		"organisation": "Example Corp",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create user returned %d", resp.StatusCode)
	}
	var created directory.User
	decodeBody(t, resp, &created)
	if created.ID == "" || created.Status != directory.StatusActive {
		t.Fatalf("unexpected user: %+v", created)
	}

	// Duplicate email conflicts.
	resp = c.post("/v1/admin/users", map[string]any{
		"user_name":    "Dana Clone",
		"email":        "dana@example.test",
		"password":     "correct horse",
		"user_type":    "ANALYST",
		"organisation": "Example Corp",
	})
	expectStatus(t, resp, http.StatusConflict)

	resp = c.put(fmt.Sprintf("/v1/admin/users/%s/status", created.ID), map[string]any{
		"status": "INACTIVE",
	})
	var updated directory.User
	decodeBody(t, resp, &updated)
	if updated.Status != directory.StatusInactive {
		t.Fatalf("status = %s", updated.Status)
	}

	resp = c.get("/v1/admin/users?search=dana")
	var page directory.Page
	decodeBody(t, resp, &page)
	if page.Total != 1 || len(page.Users) != 1 {
		t.Fatalf("unexpected page: %+v", page)
	}

	resp = c.get("/v1/admin/users/missing")
	expectStatus(t, resp, http.StatusNotFound)
}

func TestAuditLogEndpoint(t *testing.T) {
	c, _ := newTestAPI(t)
	c.obtainToken("admin-1", []string{"admin"})

	resp := c.post("/v1/admin/catalog", map[string]any{
		"app_id":       "a1",
		"brand_id":     "b1",
		"platform_ids": []string{"p1"},
	})
	expectStatus(t, resp, http.StatusCreated)

	resp = c.get("/v1/admin/audit-logs?action=catalog.entry.create")
	var body struct {
		Records []audit.Record `json:"records"`
		Count   int            `json:"count"`
	}
	decodeBody(t, resp, &body)
	if body.Count != 1 || len(body.Records) != 1 {
		t.Fatalf("unexpected audit payload: %+v", body)
	}
	rec := body.Records[0]
	if rec.PerformedBy != "admin-1" || rec.Outcome != audit.OutcomeSuccess {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	c, _ := newTestAPI(t)
	c.obtainToken("admin-1", []string{"admin"})

	resp := c.post("/v1/admin/apps", map[string]any{})
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", resp.StatusCode)
	}
	if allow := resp.Header.Get("Allow"); allow != http.MethodGet {
		t.Fatalf("Allow = %q", allow)
	}
	resp.Body.Close()
}
