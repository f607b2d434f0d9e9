package access

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"accessdesk.org/internal/audit"
	"accessdesk.org/internal/auth"
	"accessdesk.org/internal/cache"
	"accessdesk.org/internal/obs"
)

// Audit action names recorded by the service.
const (
	ActionCatalogCreate = "catalog.entry.create"
	ActionCatalogUpdate = "catalog.entry.update"
	ActionCatalogDelete = "catalog.entry.delete"
	ActionGrantSet      = "grant.brand.set"
	ActionGrantRemove   = "grant.brand.remove"
	ActionAppRemove     = "grant.app.remove"
)

// UserDirectory is the read-only slice of the user directory the access
// service needs for presentation.
type UserDirectory interface {
	// UserName returns a display name for the user, or ErrNotFound.
	UserName(ctx context.Context, userID string) (string, error)
}

// CombinationCheck is the result of validating a platform set against the
// master catalog.
type CombinationCheck struct {
	Valid   bool     `json:"valid"`
	Invalid []string `json:"invalid_platforms,omitempty"`
}

// Service coordinates the master catalog, the grant store, the audit trail,
// and the cache-invalidation signal. All mutations go through here.
type Service struct {
	store Store
	trail *audit.Trail
	cache cache.Invalidator
	users UserDirectory
}

// NewService wires the access service. trail and users may be nil; a nil
// invalidator degrades to a no-op.
func NewService(store Store, trail *audit.Trail, inv cache.Invalidator, users UserDirectory) (*Service, error) {
	if store == nil {
		return nil, errors.New("access store is required")
	}
	if trail == nil {
		trail = audit.NewTrail(nil)
	}
	if inv == nil {
		inv = cache.Noop{}
	}
	return &Service{store: store, trail: trail, cache: inv, users: users}, nil
}

// --- master reads ---

func (s *Service) Applications(ctx context.Context) ([]Application, error) {
	return s.store.ListApplications(ctx)
}

func (s *Service) Application(ctx context.Context, appID string) (Application, error) {
	appID = strings.TrimSpace(appID)
	if appID == "" {
		return Application{}, fmt.Errorf("%w: app_id is required", ErrInvalidInput)
	}
	return s.store.GetApplication(ctx, appID)
}

func (s *Service) Platforms(ctx context.Context) ([]Platform, error) {
	return s.store.ListPlatforms(ctx)
}

func (s *Service) DashboardTypes(ctx context.Context) ([]DashboardType, error) {
	return s.store.ListDashboardTypes(ctx)
}

// --- catalog reads ---

func (s *Service) MappedBrands(ctx context.Context, appID string) ([]MappedBrand, error) {
	appID = strings.TrimSpace(appID)
	if appID == "" {
		return nil, fmt.Errorf("%w: app_id is required", ErrInvalidInput)
	}
	return s.store.MappedBrands(ctx, appID)
}

func (s *Service) UnmappedBrands(ctx context.Context, appID string) ([]Brand, error) {
	appID = strings.TrimSpace(appID)
	if appID == "" {
		return nil, fmt.Errorf("%w: app_id is required", ErrInvalidInput)
	}
	return s.store.UnmappedBrands(ctx, appID)
}

func (s *Service) EntryDetails(ctx context.Context, appID, brandID string) (EntryDetails, error) {
	appID, brandID = strings.TrimSpace(appID), strings.TrimSpace(brandID)
	if appID == "" || brandID == "" {
		return EntryDetails{}, fmt.Errorf("%w: app_id and brand_id are required", ErrInvalidInput)
	}
	return s.store.EntryDetails(ctx, appID, brandID)
}

func (s *Service) BrandPlatforms(ctx context.Context, appID, brandID string) (Brand, []Platform, error) {
	appID, brandID = strings.TrimSpace(appID), strings.TrimSpace(brandID)
	if appID == "" || brandID == "" {
		return Brand{}, nil, fmt.Errorf("%w: app_id and brand_id are required", ErrInvalidInput)
	}
	brand, err := s.store.GetBrand(ctx, brandID)
	if err != nil {
		return Brand{}, nil, err
	}
	platforms, err := s.store.BrandPlatforms(ctx, appID, brandID)
	if err != nil {
		return Brand{}, nil, err
	}
	return brand, platforms, nil
}

// ValidateCombination checks that every platform has an active catalog entry
// for (application, brand). Unknown applications or brands simply yield an
// empty licensed set, so every requested platform comes back invalid.
func (s *Service) ValidateCombination(ctx context.Context, appID, brandID string, platformIDs []string) (CombinationCheck, error) {
	appID, brandID = strings.TrimSpace(appID), strings.TrimSpace(brandID)
	if appID == "" || brandID == "" {
		return CombinationCheck{}, fmt.Errorf("%w: app_id and brand_id are required", ErrInvalidInput)
	}
	licensed, err := s.store.LicensedPlatforms(ctx, appID, brandID)
	if err != nil {
		return CombinationCheck{}, err
	}
	licensedSet := toSet(licensed)
	var invalid []string
	for _, id := range dedupe(platformIDs) {
		if _, ok := licensedSet[id]; !ok {
			invalid = append(invalid, id)
		}
	}
	return CombinationCheck{Valid: len(invalid) == 0, Invalid: invalid}, nil
}

// --- grant reads ---

func (s *Service) CheckAccess(ctx context.Context, userID, appID string) (AccessSummary, error) {
	userID, appID = strings.TrimSpace(userID), strings.TrimSpace(appID)
	if userID == "" || appID == "" {
		return AccessSummary{}, fmt.Errorf("%w: user_id and app_id are required", ErrInvalidInput)
	}
	summary := AccessSummary{UserID: userID, ApplicationID: appID}
	if s.users != nil {
		name, err := s.users.UserName(ctx, userID)
		if err != nil {
			return AccessSummary{}, err
		}
		summary.UserName = name
	}
	app, err := s.store.GetApplication(ctx, appID)
	if err != nil {
		return AccessSummary{}, err
	}
	summary.ApplicationName = app.Name
	has, err := s.store.HasGrants(ctx, userID, appID)
	if err != nil {
		return AccessSummary{}, err
	}
	summary.HasAccess = has
	return summary, nil
}

// UserBrands lists the brands and platforms granted to a user under one
// application. A user with no grants at all under the application is a
// NotFound condition, matching the admin UI contract.
func (s *Service) UserBrands(ctx context.Context, userID, appID string) ([]BrandGrants, error) {
	userID, appID = strings.TrimSpace(userID), strings.TrimSpace(appID)
	if userID == "" || appID == "" {
		return nil, fmt.Errorf("%w: user_id and app_id are required", ErrInvalidInput)
	}
	brands, err := s.store.UserBrandGrants(ctx, userID, appID)
	if err != nil {
		return nil, err
	}
	if len(brands) == 0 {
		return nil, fmt.Errorf("%w: user has no access to this application", ErrNotFound)
	}
	return brands, nil
}

// AccessTree returns the user's full application > brand > platform tree.
// A user with no grants gets an empty tree, not an error.
func (s *Service) AccessTree(ctx context.Context, userID string) ([]ApplicationNode, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	rows, err := s.store.AccessRows(ctx, userID)
	if err != nil {
		return nil, err
	}
	return BuildTree(rows), nil
}

func (s *Service) AvailableBrands(ctx context.Context, userID, appID string) ([]Brand, error) {
	userID, appID = strings.TrimSpace(userID), strings.TrimSpace(appID)
	if userID == "" || appID == "" {
		return nil, fmt.Errorf("%w: user_id and app_id are required", ErrInvalidInput)
	}
	return s.store.AvailableBrands(ctx, userID, appID)
}

func (s *Service) GrantedPlatforms(ctx context.Context, userID, appID, brandID string) ([]GrantedPlatform, error) {
	userID, appID, brandID = strings.TrimSpace(userID), strings.TrimSpace(appID), strings.TrimSpace(brandID)
	if userID == "" || appID == "" || brandID == "" {
		return nil, fmt.Errorf("%w: user_id, app_id and brand_id are required", ErrInvalidInput)
	}
	return s.store.GrantedPlatforms(ctx, userID, appID, brandID)
}

// --- grant mutations ---

// SetBrandGrants reconciles the user's platform grants for one brand to
// exactly the desired set. An empty desired set unassigns every platform for
// the brand. Validation of additions against the catalog is all-or-nothing:
// any unlicensed platform rejects the whole call with zero mutations.
func (s *Service) SetBrandGrants(ctx context.Context, userID, appID, brandID string, desired []string) (GrantDelta, error) {
	userID, appID, brandID = strings.TrimSpace(userID), strings.TrimSpace(appID), strings.TrimSpace(brandID)
	entry := audit.Entry{
		SubjectID:     userID,
		ApplicationID: appID,
		BrandID:       brandID,
		Action:        ActionGrantSet,
		Request:       map[string]any{"platform_ids": desired},
	}
	if userID == "" || appID == "" || brandID == "" {
		err := fmt.Errorf("%w: user_id, app_id and brand_id are required", ErrInvalidInput)
		s.failGrant(ctx, entry, err)
		return GrantDelta{}, err
	}

	delta, err := s.store.ReconcileGrants(ctx, s.scope(ctx, userID, appID, brandID), dedupe(desired))
	if err != nil {
		s.failGrant(ctx, entry, err)
		return GrantDelta{}, err
	}

	entry.Detail = fmt.Sprintf("added %d, removed %d platforms for brand %s", delta.Added, delta.Removed, brandID)
	s.trail.Success(ctx, entry)
	obs.CountReconcile("grant", "success")
	obs.CountGrantMutation("added", delta.Added)
	obs.CountGrantMutation("removed", delta.Removed)
	s.cache.InvalidateUser(ctx, userID)
	return delta, nil
}

// RemoveBrandGrants deletes every platform grant the user holds for the
// brand. Zero removed rows surface as NotFound.
func (s *Service) RemoveBrandGrants(ctx context.Context, userID, appID, brandID string) (int, error) {
	userID, appID, brandID = strings.TrimSpace(userID), strings.TrimSpace(appID), strings.TrimSpace(brandID)
	entry := audit.Entry{
		SubjectID:     userID,
		ApplicationID: appID,
		BrandID:       brandID,
		Action:        ActionGrantRemove,
	}
	if userID == "" || appID == "" || brandID == "" {
		err := fmt.Errorf("%w: user_id, app_id and brand_id are required", ErrInvalidInput)
		s.trail.Failure(ctx, entry, err)
		return 0, err
	}

	removed, err := s.store.RemoveBrandGrants(ctx, s.scope(ctx, userID, appID, brandID))
	if err != nil {
		s.trail.Failure(ctx, entry, err)
		return 0, err
	}
	if removed == 0 {
		err := fmt.Errorf("%w: no brand access to remove", ErrNotFound)
		s.trail.Failure(ctx, entry, err)
		return 0, err
	}

	entry.Detail = fmt.Sprintf("removed %d platform grants for brand %s", removed, brandID)
	s.trail.Success(ctx, entry)
	obs.CountGrantMutation("removed", removed)
	s.cache.InvalidateUser(ctx, userID)
	return removed, nil
}

// RemoveApplicationGrants deletes the user's entire grant set under an
// application and reports how many brands and platform grants went away.
func (s *Service) RemoveApplicationGrants(ctx context.Context, userID, appID string) (RemovedCounts, error) {
	userID, appID = strings.TrimSpace(userID), strings.TrimSpace(appID)
	entry := audit.Entry{
		SubjectID:     userID,
		ApplicationID: appID,
		Action:        ActionAppRemove,
	}
	if userID == "" || appID == "" {
		err := fmt.Errorf("%w: user_id and app_id are required", ErrInvalidInput)
		s.trail.Failure(ctx, entry, err)
		return RemovedCounts{}, err
	}

	counts, err := s.store.RemoveApplicationGrants(ctx, userID, appID)
	if err != nil {
		s.trail.Failure(ctx, entry, err)
		return RemovedCounts{}, err
	}
	if counts.Platforms == 0 {
		err := fmt.Errorf("%w: no application access to remove", ErrNotFound)
		s.trail.Failure(ctx, entry, err)
		return RemovedCounts{}, err
	}

	entry.Detail = fmt.Sprintf("removed %d brands and %d platform grants", counts.Brands, counts.Platforms)
	s.trail.Success(ctx, entry)
	obs.CountGrantMutation("removed", counts.Platforms)
	s.cache.InvalidateUser(ctx, userID)
	return counts, nil
}

// --- catalog mutations ---

// CreateEntry licenses a new (application, brand) combination with at least
// one platform and optional dashboard bindings.
func (s *Service) CreateEntry(ctx context.Context, change CatalogChange) error {
	entry := audit.Entry{
		ApplicationID: change.ApplicationID,
		BrandID:       change.BrandID,
		Action:        ActionCatalogCreate,
		Request:       catalogRequest(change),
	}
	change, err := s.normalizeChange(ctx, change, true)
	if err != nil {
		s.trail.Failure(ctx, entry, err)
		return err
	}
	if err := s.store.CreateEntry(ctx, change); err != nil {
		s.trail.Failure(ctx, entry, err)
		return err
	}

	entry.Detail = fmt.Sprintf("mapped brand %s with %d platforms and %d dashboards",
		change.BrandID, len(change.PlatformIDs), len(change.Bindings))
	s.trail.Success(ctx, entry)
	obs.CountGrantMutation("added", len(change.PlatformIDs))
	s.cache.InvalidateAll(ctx)
	return nil
}

// ReconcileEntry updates a catalog association to exactly the desired
// platform set and bindings, cascading removal of any user grant whose
// platform dropped out of the entry.
func (s *Service) ReconcileEntry(ctx context.Context, change CatalogChange) (CatalogDelta, error) {
	entry := audit.Entry{
		ApplicationID: change.ApplicationID,
		BrandID:       change.BrandID,
		Action:        ActionCatalogUpdate,
		Request:       catalogRequest(change),
	}
	change, err := s.normalizeChange(ctx, change, false)
	if err != nil {
		s.failCatalog(ctx, entry, err)
		return CatalogDelta{}, err
	}

	delta, err := s.store.ReconcileEntry(ctx, change)
	if err != nil {
		s.failCatalog(ctx, entry, err)
		return CatalogDelta{}, err
	}

	entry.Detail = fmt.Sprintf("added %d, removed %d platforms; synced %d dashboards; cascaded %d user grants",
		delta.PlatformsAdded, delta.PlatformsRemoved, delta.BindingsSynced, delta.GrantsCascaded)
	s.trail.Success(ctx, entry)
	obs.CountReconcile("catalog", "success")
	obs.CountGrantMutation("cascade_removed", delta.GrantsCascaded)
	s.cache.InvalidateAll(ctx)
	return delta, nil
}

// DeleteEntry removes the whole (application, brand) association and every
// grant it licensed.
func (s *Service) DeleteEntry(ctx context.Context, appID, brandID string) (CascadeCounts, error) {
	appID, brandID = strings.TrimSpace(appID), strings.TrimSpace(brandID)
	entry := audit.Entry{
		ApplicationID: appID,
		BrandID:       brandID,
		Action:        ActionCatalogDelete,
	}
	if appID == "" || brandID == "" {
		err := fmt.Errorf("%w: app_id and brand_id are required", ErrInvalidInput)
		s.trail.Failure(ctx, entry, err)
		return CascadeCounts{}, err
	}

	counts, err := s.store.DeleteEntry(ctx, appID, brandID)
	if err != nil {
		s.trail.Failure(ctx, entry, err)
		return CascadeCounts{}, err
	}

	entry.Detail = fmt.Sprintf("deleted %d platforms, %d dashboards, %d user grants",
		counts.Platforms, counts.Bindings, counts.Grants)
	s.trail.Success(ctx, entry)
	obs.CountGrantMutation("cascade_removed", counts.Grants)
	s.cache.InvalidateAll(ctx)
	return counts, nil
}

// --- helpers ---

func (s *Service) scope(ctx context.Context, userID, appID, brandID string) GrantScope {
	scope := GrantScope{UserID: userID, ApplicationID: appID, BrandID: brandID}
	if adminID, ok := auth.AdminIDFromContext(ctx); ok {
		scope.ActorID = adminID
	}
	return scope
}

func (s *Service) failGrant(ctx context.Context, entry audit.Entry, err error) {
	s.trail.Failure(ctx, entry, err)
	obs.CountReconcile("grant", "failed")
}

func (s *Service) failCatalog(ctx context.Context, entry audit.Entry, err error) {
	s.trail.Failure(ctx, entry, err)
	obs.CountReconcile("catalog", "failed")
}

// normalizeChange trims and deduplicates a catalog change and enforces that
// every binding references a platform inside the entry's own platform set.
func (s *Service) normalizeChange(ctx context.Context, change CatalogChange, requirePlatforms bool) (CatalogChange, error) {
	change.ApplicationID = strings.TrimSpace(change.ApplicationID)
	change.BrandID = strings.TrimSpace(change.BrandID)
	if change.ApplicationID == "" || change.BrandID == "" {
		return change, fmt.Errorf("%w: app_id and brand_id are required", ErrInvalidInput)
	}
	change.PlatformIDs = dedupe(change.PlatformIDs)
	if requirePlatforms && len(change.PlatformIDs) == 0 {
		return change, fmt.Errorf("%w: at least one platform_id is required", ErrInvalidInput)
	}
	platformSet := toSet(change.PlatformIDs)
	for _, b := range change.Bindings {
		if _, ok := platformSet[strings.TrimSpace(b.PlatformID)]; !ok {
			return change, fmt.Errorf("%w: dashboard binding references platform %s outside the entry", ErrInvalidInput, b.PlatformID)
		}
	}
	if adminID, ok := auth.AdminIDFromContext(ctx); ok {
		change.ActorID = adminID
	}
	return change, nil
}

func catalogRequest(change CatalogChange) map[string]any {
	return map[string]any{
		"app_id":       change.ApplicationID,
		"brand_id":     change.BrandID,
		"platform_ids": change.PlatformIDs,
		"dashboards":   len(change.Bindings),
	}
}
