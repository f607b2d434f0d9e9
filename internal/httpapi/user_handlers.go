package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"accessdesk.org/internal/directory"
)

type createUserRequest struct {
	Name         string `json:"user_name"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	UserType     string `json:"user_type"`
	Organisation string `json:"organisation"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

type setPlatformsRequest struct {
	PlatformIDs []string `json:"platform_ids"`
}

func (a *API) handleUsersCollection(w http.ResponseWriter, r *http.Request) {
	if a.users == nil {
		writeError(w, r, http.StatusServiceUnavailable, "directory service unavailable")
		return
	}
	switch r.Method {
	case http.MethodGet:
		a.listUsers(w, r)
	case http.MethodPost:
		a.createUser(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) listUsers(w http.ResponseWriter, r *http.Request) {
	q := directory.Query{
		Search: r.URL.Query().Get("search"),
		Status: r.URL.Query().Get("status"),
	}
	page := queryInt(r, "page", 1)
	perPage := queryInt(r, "per_page", 0)
	if page < 1 {
		page = 1
	}
	q.Limit = perPage
	if perPage > 0 {
		q.Offset = (page - 1) * perPage
	}

	result, err := a.users.ListUsers(r.Context(), q)
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) createUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.users.CreateUser(r.Context(), directory.NewUser{
		Name:         req.Name,
		Email:        req.Email,
		Password:     req.Password,
		UserType:     req.UserType,
		Organisation: req.Organisation,
	})
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/admin/users/"+user.ID)
	writeJSON(w, http.StatusCreated, user)
}

// handleUserScoped dispatches everything under /v1/admin/users/{id}/...
func (a *API) handleUserScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/admin/users/")
	path = strings.Trim(path, "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	userID := parts[0]

	switch {
	case len(parts) == 1:
		a.getUser(w, r, userID)
	case len(parts) == 2 && parts[1] == "status":
		a.updateUserStatus(w, r, userID)
	case len(parts) == 2 && parts[1] == "access-tree":
		a.getAccessTree(w, r, userID)
	case len(parts) >= 3 && parts[1] == "apps":
		a.handleUserAppScoped(w, r, userID, parts[2:])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleUserAppScoped(w http.ResponseWriter, r *http.Request, userID string, parts []string) {
	if a.access == nil {
		writeError(w, r, http.StatusServiceUnavailable, "access service unavailable")
		return
	}
	appID := parts[0]
	rest := parts[1:]

	switch {
	case len(rest) == 0:
		if r.Method != http.MethodDelete {
			methodNotAllowed(w, r, http.MethodDelete)
			return
		}
		a.removeApplicationGrants(w, r, userID, appID)
	case len(rest) == 1 && rest[0] == "access":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.checkAccess(w, r, userID, appID)
	case len(rest) == 1 && rest[0] == "brands":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.listUserBrands(w, r, userID, appID)
	case len(rest) == 2 && rest[0] == "brands" && rest[1] == "available":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.listAvailableBrands(w, r, userID, appID)
	case len(rest) == 2 && rest[0] == "brands":
		a.handleUserBrand(w, r, userID, appID, rest[1])
	case len(rest) == 3 && rest[0] == "brands" && rest[2] == "platforms":
		if r.Method != http.MethodPut {
			methodNotAllowed(w, r, http.MethodPut)
			return
		}
		a.setBrandGrants(w, r, userID, appID, rest[1])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) getUser(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if a.users == nil {
		writeError(w, r, http.StatusServiceUnavailable, "directory service unavailable")
		return
	}
	user, err := a.users.GetUser(r.Context(), userID)
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (a *API) updateUserStatus(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	if a.users == nil {
		writeError(w, r, http.StatusServiceUnavailable, "directory service unavailable")
		return
	}
	var req updateStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.users.UpdateStatus(r.Context(), userID, req.Status)
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (a *API) getAccessTree(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if a.access == nil {
		writeError(w, r, http.StatusServiceUnavailable, "access service unavailable")
		return
	}
	tree, err := a.access.AccessTree(r.Context(), userID)
	if err != nil {
		handleAccessError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id": userID,
		"apps":    tree,
	})
}

func (a *API) checkAccess(w http.ResponseWriter, r *http.Request, userID, appID string) {
	summary, err := a.access.CheckAccess(r.Context(), userID, appID)
	if err != nil {
		handleAccessError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (a *API) listUserBrands(w http.ResponseWriter, r *http.Request, userID, appID string) {
	brands, err := a.access.UserBrands(r.Context(), userID, appID)
	if err != nil {
		handleAccessError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id": userID,
		"app_id":  appID,
		"brands":  brands,
	})
}

func (a *API) listAvailableBrands(w http.ResponseWriter, r *http.Request, userID, appID string) {
	brands, err := a.access.AvailableBrands(r.Context(), userID, appID)
	if err != nil {
		handleAccessError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id": userID,
		"app_id":  appID,
		"brands":  brands,
	})
}

func (a *API) handleUserBrand(w http.ResponseWriter, r *http.Request, userID, appID, brandID string) {
	switch r.Method {
	case http.MethodGet:
		platforms, err := a.access.GrantedPlatforms(r.Context(), userID, appID, brandID)
		if err != nil {
			handleAccessError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"user_id":   userID,
			"app_id":    appID,
			"brand_id":  brandID,
			"platforms": platforms,
		})
	case http.MethodDelete:
		removed, err := a.access.RemoveBrandGrants(r.Context(), userID, appID, brandID)
		if err != nil {
			handleAccessError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"user_id":           userID,
			"app_id":            appID,
			"brand_id":          brandID,
			"platforms_removed": removed,
		})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodDelete)
	}
}

func (a *API) setBrandGrants(w http.ResponseWriter, r *http.Request, userID, appID, brandID string) {
	var req setPlatformsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	delta, err := a.access.SetBrandGrants(r.Context(), userID, appID, brandID, req.PlatformIDs)
	if err != nil {
		handleAccessError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, delta)
}

func (a *API) removeApplicationGrants(w http.ResponseWriter, r *http.Request, userID, appID string) {
	counts, err := a.access.RemoveApplicationGrants(r.Context(), userID, appID)
	if err != nil {
		handleAccessError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
