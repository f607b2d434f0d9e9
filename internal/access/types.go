package access

import "time"

// Lifecycle status values shared by the master tables this service reads.
const (
	StatusActive   = "ACTIVE"
	StatusInactive = "INACTIVE"
)

// Application is a top-level access scope (a dashboard product) that grants
// are issued under.
type Application struct {
	ID        string    `json:"app_id"`
	Name      string    `json:"app_name"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Brand is a tenant entity defined in the external brand master registry.
// Consumed read-only; this service never mutates brands.
type Brand struct {
	ID          string `json:"brand_id"`
	Name        string `json:"brand_name"`
	CompanyName string `json:"company_name,omitempty"`
	LogoURL     string `json:"brand_logo_url,omitempty"`
}

// Platform is a channel entity defined in the external platform master
// registry. Read-only.
type Platform struct {
	ID      string `json:"platform_id"`
	Name    string `json:"platform_name"`
	LogoURL string `json:"platform_logo_url,omitempty"`
}

// DashboardType is a master reference row naming a kind of dashboard that a
// binding may attach to a catalog entry.
type DashboardType struct {
	ID    string `json:"dashboard_id"`
	Name  string `json:"dashboard_type"`
	Color string `json:"color,omitempty"`
}

// DashboardBinding carries the report connection metadata attached to one
// licensed (application, brand, platform) combination.
type DashboardBinding struct {
	ID          string `json:"binding_id,omitempty"`
	PlatformID  string `json:"platform_id"`
	TypeID      string `json:"dashboard_type_id"`
	Type        string `json:"dashboard_type"`
	URL         string `json:"url"`
	WorkspaceID string `json:"workspace_id,omitempty"`
	ReportID    string `json:"report_id,omitempty"`
	DatasetID   string `json:"dataset_id,omitempty"`
}

// Grant is a held access right for one user at one
// (application, brand, platform) tuple. Identity is the tuple; the row id is
// a storage detail.
type Grant struct {
	ID            string    `json:"grant_id"`
	UserID        string    `json:"user_id"`
	ApplicationID string    `json:"app_id"`
	BrandID       string    `json:"brand_id"`
	PlatformID    string    `json:"platform_id"`
	GrantedBy     string    `json:"granted_by"`
	CreatedAt     time.Time `json:"created_at"`
}

// MappedPlatform is one platform under a mapped brand, with dashboard
// presence for the catalog UI.
type MappedPlatform struct {
	Platform
	HasDashboard  bool   `json:"has_dashboard"`
	DashboardType string `json:"dashboard_name,omitempty"`
}

// MappedBrand is one brand with at least one catalog entry under an
// application.
type MappedBrand struct {
	Brand
	Platforms []MappedPlatform `json:"platforms"`
}

// EntryDetails is the full editable state of one (application, brand)
// catalog association.
type EntryDetails struct {
	PlatformIDs []string           `json:"platform_ids"`
	Bindings    []DashboardBinding `json:"dashboards"`
}

// GrantedPlatform is one platform granted to a user under a brand.
type GrantedPlatform struct {
	Platform
	GrantedAt time.Time `json:"granted_at"`
}

// BrandGrants groups a user's granted platforms under one brand.
type BrandGrants struct {
	Brand
	Platforms []GrantedPlatform `json:"platforms"`
}

// AccessSummary answers "does user U have any grant under application A".
type AccessSummary struct {
	UserID          string `json:"user_id"`
	ApplicationID   string `json:"app_id"`
	ApplicationName string `json:"app_name"`
	UserName        string `json:"user_name"`
	HasAccess       bool   `json:"has_access"`
}
