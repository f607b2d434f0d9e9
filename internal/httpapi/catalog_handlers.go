package httpapi

import (
	"net/http"
	"strings"

	"accessdesk.org/internal/access"
)

type dashboardRequest struct {
	PlatformID  string `json:"platform_id"`
	TypeID      string `json:"dashboard_type_id"`
	URL         string `json:"url"`
	WorkspaceID string `json:"workspace_id"`
	ReportID    string `json:"report_id"`
	DatasetID   string `json:"dataset_id"`
}

type createEntryRequest struct {
	ApplicationID string             `json:"app_id"`
	BrandID       string             `json:"brand_id"`
	PlatformIDs   []string           `json:"platform_ids"`
	Dashboards    []dashboardRequest `json:"dashboards"`
}

type updateEntryRequest struct {
	PlatformIDs []string           `json:"platform_ids"`
	Dashboards  []dashboardRequest `json:"dashboards"`
}

type validateRequest struct {
	PlatformIDs []string `json:"platform_ids"`
}

func (a *API) handleApps(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if a.access == nil {
		writeError(w, r, http.StatusServiceUnavailable, "access service unavailable")
		return
	}
	apps, err := a.access.Applications(r.Context())
	if err != nil {
		handleAccessError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"apps": apps})
}

func (a *API) handlePlatforms(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if a.access == nil {
		writeError(w, r, http.StatusServiceUnavailable, "access service unavailable")
		return
	}
	platforms, err := a.access.Platforms(r.Context())
	if err != nil {
		handleAccessError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"platforms": platforms})
}

func (a *API) handleDashboardTypes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if a.access == nil {
		writeError(w, r, http.StatusServiceUnavailable, "access service unavailable")
		return
	}
	types, err := a.access.DashboardTypes(r.Context())
	if err != nil {
		handleAccessError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"dashboard_types": types})
}

func (a *API) handleCatalogCollection(w http.ResponseWriter, r *http.Request) {
	if a.access == nil {
		writeError(w, r, http.StatusServiceUnavailable, "access service unavailable")
		return
	}
	switch r.Method {
	case http.MethodGet:
		a.listMappedBrands(w, r)
	case http.MethodPost:
		a.createCatalogEntry(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) listMappedBrands(w http.ResponseWriter, r *http.Request) {
	appID := r.URL.Query().Get("app_id")
	brands, err := a.access.MappedBrands(r.Context(), appID)
	if err != nil {
		handleAccessError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"app_id": appID,
		"brands": brands,
	})
}

func (a *API) createCatalogEntry(w http.ResponseWriter, r *http.Request) {
	var req createEntryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	change := access.CatalogChange{
		ApplicationID: req.ApplicationID,
		BrandID:       req.BrandID,
		PlatformIDs:   req.PlatformIDs,
		Bindings:      toBindings(req.Dashboards),
	}
	if err := a.access.CreateEntry(r.Context(), change); err != nil {
		handleAccessError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/admin/catalog/"+req.ApplicationID+"/"+req.BrandID)
	writeJSON(w, http.StatusCreated, map[string]any{
		"app_id":   req.ApplicationID,
		"brand_id": req.BrandID,
	})
}

// handleCatalogScoped dispatches /v1/admin/catalog/unmapped and
// /v1/admin/catalog/{appID}/{brandID}[...].
func (a *API) handleCatalogScoped(w http.ResponseWriter, r *http.Request) {
	if a.access == nil {
		writeError(w, r, http.StatusServiceUnavailable, "access service unavailable")
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/v1/admin/catalog/")
	path = strings.Trim(path, "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")

	if len(parts) == 1 && parts[0] == "unmapped" {
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.listUnmappedBrands(w, r)
		return
	}

	switch len(parts) {
	case 2:
		a.handleCatalogEntry(w, r, parts[0], parts[1])
	case 3:
		appID, brandID := parts[0], parts[1]
		switch parts[2] {
		case "platforms":
			if r.Method != http.MethodGet {
				methodNotAllowed(w, r, http.MethodGet)
				return
			}
			a.listBrandPlatforms(w, r, appID, brandID)
		case "validate":
			if r.Method != http.MethodPost {
				methodNotAllowed(w, r, http.MethodPost)
				return
			}
			a.validateCombination(w, r, appID, brandID)
		default:
			writeError(w, r, http.StatusNotFound, "resource not found")
		}
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) listUnmappedBrands(w http.ResponseWriter, r *http.Request) {
	appID := r.URL.Query().Get("app_id")
	brands, err := a.access.UnmappedBrands(r.Context(), appID)
	if err != nil {
		handleAccessError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"app_id": appID,
		"brands": brands,
	})
}

func (a *API) handleCatalogEntry(w http.ResponseWriter, r *http.Request, appID, brandID string) {
	switch r.Method {
	case http.MethodGet:
		details, err := a.access.EntryDetails(r.Context(), appID, brandID)
		if err != nil {
			handleAccessError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, details)
	case http.MethodPut:
		var req updateEntryRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		delta, err := a.access.ReconcileEntry(r.Context(), access.CatalogChange{
			ApplicationID: appID,
			BrandID:       brandID,
			PlatformIDs:   req.PlatformIDs,
			Bindings:      toBindings(req.Dashboards),
		})
		if err != nil {
			handleAccessError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, delta)
	case http.MethodDelete:
		counts, err := a.access.DeleteEntry(r.Context(), appID, brandID)
		if err != nil {
			handleAccessError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, counts)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) listBrandPlatforms(w http.ResponseWriter, r *http.Request, appID, brandID string) {
	brand, platforms, err := a.access.BrandPlatforms(r.Context(), appID, brandID)
	if err != nil {
		handleAccessError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"brand":     brand,
		"platforms": platforms,
	})
}

func (a *API) validateCombination(w http.ResponseWriter, r *http.Request, appID, brandID string) {
	var req validateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	check, err := a.access.ValidateCombination(r.Context(), appID, brandID, req.PlatformIDs)
	if err != nil {
		handleAccessError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, check)
}

func toBindings(dashboards []dashboardRequest) []access.DashboardBinding {
	if len(dashboards) == 0 {
		return nil
	}
	bindings := make([]access.DashboardBinding, 0, len(dashboards))
	for _, d := range dashboards {
		bindings = append(bindings, access.DashboardBinding{
			PlatformID:  d.PlatformID,
			TypeID:      d.TypeID,
			URL:         d.URL,
			WorkspaceID: d.WorkspaceID,
			ReportID:    d.ReportID,
			DatasetID:   d.DatasetID,
		})
	}
	return bindings
}
