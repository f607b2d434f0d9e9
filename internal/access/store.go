package access

import "context"

// GrantScope names the (user, application, brand) slice of the grant table a
// reconciliation or removal operates on.
type GrantScope struct {
	UserID        string
	ApplicationID string
	BrandID       string
	// ActorID is recorded as granted_by on inserted rows.
	ActorID string
}

// CatalogChange is the desired state for one (application, brand) catalog
// association: the exact platform set plus the exact dashboard bindings.
type CatalogChange struct {
	ApplicationID string
	BrandID       string
	PlatformIDs   []string
	Bindings      []DashboardBinding
	ActorID       string
}

// GrantDelta reports what a grant reconciliation actually changed.
type GrantDelta struct {
	Added   int `json:"platforms_added"`
	Removed int `json:"platforms_removed"`
}

// CatalogDelta reports what a catalog reconciliation changed, including the
// grants revoked by the cascade for platforms that dropped out of the entry.
type CatalogDelta struct {
	PlatformsAdded   int `json:"platforms_added"`
	PlatformsRemoved int `json:"platforms_removed"`
	BindingsSynced   int `json:"dashboards_synced"`
	GrantsCascaded   int `json:"user_grants_removed"`
}

// CascadeCounts reports what a full catalog-entry deletion removed.
type CascadeCounts struct {
	Platforms int `json:"deleted_platforms"`
	Bindings  int `json:"deleted_dashboards"`
	Grants    int `json:"deleted_user_grants"`
}

// RemovedCounts reports an application-scope grant removal.
type RemovedCounts struct {
	Brands    int `json:"brands_removed"`
	Platforms int `json:"platforms_removed"`
}

// Store is the persistence contract for the catalog and the grant table.
// Mutating operations are transactional: they either apply completely or
// leave the store untouched.
type Store interface {
	// Masters (read-only reference data).
	ListApplications(ctx context.Context) ([]Application, error)
	GetApplication(ctx context.Context, appID string) (Application, error)
	ListPlatforms(ctx context.Context) ([]Platform, error)
	ListDashboardTypes(ctx context.Context) ([]DashboardType, error)
	GetBrand(ctx context.Context, brandID string) (Brand, error)

	// Master catalog.
	MappedBrands(ctx context.Context, appID string) ([]MappedBrand, error)
	UnmappedBrands(ctx context.Context, appID string) ([]Brand, error)
	EntryDetails(ctx context.Context, appID, brandID string) (EntryDetails, error)
	// LicensedPlatforms returns the active catalog platform set for
	// (application, brand); empty when nothing is mapped yet.
	LicensedPlatforms(ctx context.Context, appID, brandID string) ([]string, error)
	// BrandPlatforms returns the licensed platforms for (application, brand)
	// with their master details.
	BrandPlatforms(ctx context.Context, appID, brandID string) ([]Platform, error)
	CreateEntry(ctx context.Context, change CatalogChange) error
	// ReconcileEntry diffs the stored platform set against the change,
	// applies the delta, resyncs bindings, and cascades grant removal for
	// dropped platforms, all in one transaction.
	ReconcileEntry(ctx context.Context, change CatalogChange) (CatalogDelta, error)
	// DeleteEntry removes the whole (application, brand) association:
	// bindings first, then catalog platforms, then dependent grants.
	DeleteEntry(ctx context.Context, appID, brandID string) (CascadeCounts, error)

	// Grants.
	HasGrants(ctx context.Context, userID, appID string) (bool, error)
	UserBrandGrants(ctx context.Context, userID, appID string) ([]BrandGrants, error)
	AccessRows(ctx context.Context, userID string) ([]TreeRow, error)
	AvailableBrands(ctx context.Context, userID, appID string) ([]Brand, error)
	GrantedPlatforms(ctx context.Context, userID, appID, brandID string) ([]GrantedPlatform, error)
	// ReconcileGrants reads the current platform set for the scope, diffs it
	// against desired, validates every addition against the catalog, and
	// applies the delta in one transaction. A desired platform without an
	// active catalog entry aborts the whole operation with *UnlicensedError
	// and zero mutations.
	ReconcileGrants(ctx context.Context, scope GrantScope, desired []string) (GrantDelta, error)
	// RemoveBrandGrants deletes every grant in the scope and returns the
	// count; zero is a legal outcome, surfaced by the service as NotFound.
	RemoveBrandGrants(ctx context.Context, scope GrantScope) (int, error)
	RemoveApplicationGrants(ctx context.Context, userID, appID string) (RemovedCounts, error)
}
