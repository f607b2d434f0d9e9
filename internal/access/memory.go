package access

import (
	"context"
	"fmt"
	"sync"
	"time"

	"accessdesk.org/internal/ids"
)

// InMemory is a Store backed by process memory. It exists for tests and for
// running the API without a database; the Postgres store is the production
// implementation.
type InMemory struct {
	mu sync.RWMutex

	apps          map[string]Application
	appOrder      []string
	brands        map[string]Brand
	brandOrder    []string
	platforms     map[string]Platform
	platformOrder []string
	dashTypes     map[string]DashboardType
	dashTypeOrder []string

	// catalog and bindings are keyed by (application, brand).
	catalog  map[catKey][]string
	bindings map[catKey][]DashboardBinding

	grants []Grant
}

type catKey struct{ appID, brandID string }

// NewInMemory returns an empty in-memory store. Seed the masters before use.
func NewInMemory() *InMemory {
	return &InMemory{
		apps:      make(map[string]Application),
		brands:    make(map[string]Brand),
		platforms: make(map[string]Platform),
		dashTypes: make(map[string]DashboardType),
		catalog:   make(map[catKey][]string),
		bindings:  make(map[catKey][]DashboardBinding),
	}
}

// --- seeding ---

func (m *InMemory) SeedApplication(app Application) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.apps[app.ID]; !ok {
		m.appOrder = append(m.appOrder, app.ID)
	}
	m.apps[app.ID] = app
}

func (m *InMemory) SeedBrand(brand Brand) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.brands[brand.ID]; !ok {
		m.brandOrder = append(m.brandOrder, brand.ID)
	}
	m.brands[brand.ID] = brand
}

func (m *InMemory) SeedPlatform(p Platform) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.platforms[p.ID]; !ok {
		m.platformOrder = append(m.platformOrder, p.ID)
	}
	m.platforms[p.ID] = p
}

func (m *InMemory) SeedDashboardType(dt DashboardType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.dashTypes[dt.ID]; !ok {
		m.dashTypeOrder = append(m.dashTypeOrder, dt.ID)
	}
	m.dashTypes[dt.ID] = dt
}

// --- masters ---

func (m *InMemory) ListApplications(context.Context) ([]Application, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Application, 0, len(m.appOrder))
	for _, id := range m.appOrder {
		out = append(out, m.apps[id])
	}
	return out, nil
}

func (m *InMemory) GetApplication(_ context.Context, appID string) (Application, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	app, ok := m.apps[appID]
	if !ok {
		return Application{}, fmt.Errorf("%w: application %s", ErrNotFound, appID)
	}
	return app, nil
}

func (m *InMemory) ListPlatforms(context.Context) ([]Platform, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Platform, 0, len(m.platformOrder))
	for _, id := range m.platformOrder {
		out = append(out, m.platforms[id])
	}
	return out, nil
}

func (m *InMemory) ListDashboardTypes(context.Context) ([]DashboardType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]DashboardType, 0, len(m.dashTypeOrder))
	for _, id := range m.dashTypeOrder {
		out = append(out, m.dashTypes[id])
	}
	return out, nil
}

func (m *InMemory) GetBrand(_ context.Context, brandID string) (Brand, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	brand, ok := m.brands[brandID]
	if !ok {
		return Brand{}, fmt.Errorf("%w: brand %s", ErrNotFound, brandID)
	}
	return brand, nil
}

// --- catalog ---

func (m *InMemory) MappedBrands(_ context.Context, appID string) ([]MappedBrand, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []MappedBrand
	for _, brandID := range m.brandOrder {
		key := catKey{appID, brandID}
		platformIDs, ok := m.catalog[key]
		if !ok || len(platformIDs) == 0 {
			continue
		}
		mapped := MappedBrand{Brand: m.brands[brandID]}
		for _, pid := range platformIDs {
			mp := MappedPlatform{Platform: m.platforms[pid]}
			for _, b := range m.bindings[key] {
				if b.PlatformID == pid {
					mp.HasDashboard = true
					mp.DashboardType = b.Type
					break
				}
			}
			mapped.Platforms = append(mapped.Platforms, mp)
		}
		out = append(out, mapped)
	}
	return out, nil
}

func (m *InMemory) UnmappedBrands(_ context.Context, appID string) ([]Brand, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Brand
	for _, brandID := range m.brandOrder {
		if len(m.catalog[catKey{appID, brandID}]) == 0 {
			out = append(out, m.brands[brandID])
		}
	}
	return out, nil
}

func (m *InMemory) EntryDetails(_ context.Context, appID, brandID string) (EntryDetails, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	key := catKey{appID, brandID}
	details := EntryDetails{
		PlatformIDs: append([]string(nil), m.catalog[key]...),
		Bindings:    append([]DashboardBinding(nil), m.bindings[key]...),
	}
	return details, nil
}

func (m *InMemory) LicensedPlatforms(_ context.Context, appID, brandID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.catalog[catKey{appID, brandID}]...), nil
}

func (m *InMemory) BrandPlatforms(_ context.Context, appID, brandID string) ([]Platform, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Platform
	for _, pid := range m.catalog[catKey{appID, brandID}] {
		if p, ok := m.platforms[pid]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *InMemory) CreateEntry(_ context.Context, change CatalogChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.apps[change.ApplicationID]; !ok {
		return fmt.Errorf("%w: application %s", ErrNotFound, change.ApplicationID)
	}
	if _, ok := m.brands[change.BrandID]; !ok {
		return fmt.Errorf("%w: brand %s", ErrNotFound, change.BrandID)
	}
	key := catKey{change.ApplicationID, change.BrandID}
	if len(m.catalog[key]) > 0 {
		return fmt.Errorf("%w: brand already mapped", ErrConflict)
	}
	for _, pid := range change.PlatformIDs {
		if _, ok := m.platforms[pid]; !ok {
			return fmt.Errorf("%w: platform %s", ErrNotFound, pid)
		}
	}
	m.catalog[key] = append([]string(nil), change.PlatformIDs...)
	m.bindings[key] = stampBindings(change.Bindings)
	return nil
}

func (m *InMemory) ReconcileEntry(_ context.Context, change CatalogChange) (CatalogDelta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := catKey{change.ApplicationID, change.BrandID}
	current, ok := m.catalog[key]
	if !ok || len(current) == 0 {
		return CatalogDelta{}, fmt.Errorf("%w: brand is not mapped", ErrNotFound)
	}
	for _, pid := range change.PlatformIDs {
		if _, exists := m.platforms[pid]; !exists {
			return CatalogDelta{}, fmt.Errorf("%w: platform %s", ErrNotFound, pid)
		}
	}

	delta := Diff(current, change.PlatformIDs)
	if len(change.PlatformIDs) == 0 {
		delete(m.catalog, key)
	} else {
		m.catalog[key] = append([]string(nil), change.PlatformIDs...)
	}
	m.bindings[key] = stampBindings(change.Bindings)

	cascaded := m.removeGrantsLocked(func(g Grant) bool {
		if g.ApplicationID != change.ApplicationID || g.BrandID != change.BrandID {
			return false
		}
		for _, pid := range delta.ToRemove {
			if g.PlatformID == pid {
				return true
			}
		}
		return false
	})

	return CatalogDelta{
		PlatformsAdded:   len(delta.ToAdd),
		PlatformsRemoved: len(delta.ToRemove),
		BindingsSynced:   len(change.Bindings),
		GrantsCascaded:   cascaded,
	}, nil
}

func (m *InMemory) DeleteEntry(_ context.Context, appID, brandID string) (CascadeCounts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := catKey{appID, brandID}
	counts := CascadeCounts{
		Platforms: len(m.catalog[key]),
		Bindings:  len(m.bindings[key]),
	}
	delete(m.catalog, key)
	delete(m.bindings, key)
	counts.Grants = m.removeGrantsLocked(func(g Grant) bool {
		return g.ApplicationID == appID && g.BrandID == brandID
	})
	return counts, nil
}

// --- grants ---

func (m *InMemory) HasGrants(_ context.Context, userID, appID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, g := range m.grants {
		if g.UserID == userID && g.ApplicationID == appID {
			return true, nil
		}
	}
	return false, nil
}

func (m *InMemory) UserBrandGrants(_ context.Context, userID, appID string) ([]BrandGrants, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []BrandGrants
	idx := make(map[string]int)
	for _, g := range m.grants {
		if g.UserID != userID || g.ApplicationID != appID {
			continue
		}
		bi, ok := idx[g.BrandID]
		if !ok {
			bi = len(out)
			idx[g.BrandID] = bi
			brand := m.brands[g.BrandID]
			if brand.ID == "" {
				brand.ID = g.BrandID
			}
			out = append(out, BrandGrants{Brand: brand})
		}
		platform := m.platforms[g.PlatformID]
		if platform.ID == "" {
			platform.ID = g.PlatformID
		}
		out[bi].Platforms = append(out[bi].Platforms, GrantedPlatform{
			Platform:  platform,
			GrantedAt: g.CreatedAt,
		})
	}
	return out, nil
}

func (m *InMemory) AccessRows(_ context.Context, userID string) ([]TreeRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var rows []TreeRow
	for _, g := range m.grants {
		if g.UserID != userID {
			continue
		}
		rows = append(rows, TreeRow{
			ApplicationID:   g.ApplicationID,
			ApplicationName: m.apps[g.ApplicationID].Name,
			BrandID:         g.BrandID,
			BrandName:       m.brands[g.BrandID].Name,
			PlatformID:      g.PlatformID,
			PlatformName:    m.platforms[g.PlatformID].Name,
		})
	}
	return rows, nil
}

func (m *InMemory) AvailableBrands(_ context.Context, userID, appID string) ([]Brand, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	granted := make(map[string]struct{})
	for _, g := range m.grants {
		if g.UserID == userID && g.ApplicationID == appID {
			granted[g.BrandID] = struct{}{}
		}
	}
	var out []Brand
	for _, brandID := range m.brandOrder {
		if len(m.catalog[catKey{appID, brandID}]) == 0 {
			continue
		}
		if _, ok := granted[brandID]; ok {
			continue
		}
		out = append(out, m.brands[brandID])
	}
	return out, nil
}

func (m *InMemory) GrantedPlatforms(_ context.Context, userID, appID, brandID string) ([]GrantedPlatform, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []GrantedPlatform
	for _, g := range m.grants {
		if g.UserID != userID || g.ApplicationID != appID || g.BrandID != brandID {
			continue
		}
		platform := m.platforms[g.PlatformID]
		if platform.ID == "" {
			platform.ID = g.PlatformID
		}
		out = append(out, GrantedPlatform{Platform: platform, GrantedAt: g.CreatedAt})
	}
	return out, nil
}

func (m *InMemory) ReconcileGrants(_ context.Context, scope GrantScope, desired []string) (GrantDelta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var current []string
	for _, g := range m.grants {
		if g.UserID == scope.UserID && g.ApplicationID == scope.ApplicationID && g.BrandID == scope.BrandID {
			current = append(current, g.PlatformID)
		}
	}
	delta := Diff(current, desired)
	if delta.Empty() {
		return GrantDelta{}, nil
	}

	licensed := toSet(m.catalog[catKey{scope.ApplicationID, scope.BrandID}])
	var unlicensed []string
	for _, pid := range delta.ToAdd {
		if _, ok := licensed[pid]; !ok {
			unlicensed = append(unlicensed, pid)
		}
	}
	if len(unlicensed) > 0 {
		return GrantDelta{}, &UnlicensedError{
			ApplicationID: scope.ApplicationID,
			BrandID:       scope.BrandID,
			PlatformIDs:   unlicensed,
		}
	}

	removeSet := toSet(delta.ToRemove)
	removed := m.removeGrantsLocked(func(g Grant) bool {
		if g.UserID != scope.UserID || g.ApplicationID != scope.ApplicationID || g.BrandID != scope.BrandID {
			return false
		}
		_, ok := removeSet[g.PlatformID]
		return ok
	})
	now := time.Now().UTC()
	for _, pid := range delta.ToAdd {
		m.grants = append(m.grants, Grant{
			ID:            ids.New(),
			UserID:        scope.UserID,
			ApplicationID: scope.ApplicationID,
			BrandID:       scope.BrandID,
			PlatformID:    pid,
			GrantedBy:     scope.ActorID,
			CreatedAt:     now,
		})
	}
	return GrantDelta{Added: len(delta.ToAdd), Removed: removed}, nil
}

func (m *InMemory) RemoveBrandGrants(_ context.Context, scope GrantScope) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := m.removeGrantsLocked(func(g Grant) bool {
		return g.UserID == scope.UserID && g.ApplicationID == scope.ApplicationID && g.BrandID == scope.BrandID
	})
	return removed, nil
}

func (m *InMemory) RemoveApplicationGrants(_ context.Context, userID, appID string) (RemovedCounts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	brands := make(map[string]struct{})
	removed := m.removeGrantsLocked(func(g Grant) bool {
		if g.UserID != userID || g.ApplicationID != appID {
			return false
		}
		brands[g.BrandID] = struct{}{}
		return true
	})
	return RemovedCounts{Brands: len(brands), Platforms: removed}, nil
}

// removeGrantsLocked deletes every grant matching the predicate and returns
// the count. Callers hold the write lock.
func (m *InMemory) removeGrantsLocked(match func(Grant) bool) int {
	kept := m.grants[:0]
	removed := 0
	for _, g := range m.grants {
		if match(g) {
			removed++
			continue
		}
		kept = append(kept, g)
	}
	m.grants = kept
	return removed
}

func stampBindings(bindings []DashboardBinding) []DashboardBinding {
	if len(bindings) == 0 {
		return nil
	}
	out := make([]DashboardBinding, len(bindings))
	for i, b := range bindings {
		if b.ID == "" {
			b.ID = ids.New()
		}
		out[i] = b
	}
	return out
}
