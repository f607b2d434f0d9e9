package pg

import (
	"context"
	"database/sql"
	"errors"

	"accessdesk.org/internal/access"
	"accessdesk.org/internal/ids"
)

func (s *Store) MappedBrands(ctx context.Context, appID string) ([]access.MappedBrand, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select b.id, b.name, coalesce(b.company_name, ''), coalesce(b.logo_url, ''),
		       p.id, p.name, coalesce(p.logo_url, ''),
		       db.id is not null, coalesce(dt.name, '')
		from catalog_entries ce
		join brands b on b.id = ce.brand_id
		join platforms p on p.id = ce.platform_id
		left join dashboard_bindings db
			on db.app_id = ce.app_id and db.brand_id = ce.brand_id and db.platform_id = ce.platform_id
		left join dashboard_types dt on dt.id = db.type_id
		where ce.app_id = $1
		order by b.name, p.name
	`, appID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []access.MappedBrand
	idx := make(map[string]int)
	for rows.Next() {
		var (
			brand access.Brand
			mp    access.MappedPlatform
		)
		if err := rows.Scan(
			&brand.ID, &brand.Name, &brand.CompanyName, &brand.LogoURL,
			&mp.ID, &mp.Name, &mp.LogoURL,
			&mp.HasDashboard, &mp.DashboardType,
		); err != nil {
			return nil, err
		}
		bi, ok := idx[brand.ID]
		if !ok {
			bi = len(result)
			idx[brand.ID] = bi
			result = append(result, access.MappedBrand{Brand: brand})
		}
		result[bi].Platforms = append(result[bi].Platforms, mp)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) UnmappedBrands(ctx context.Context, appID string) ([]access.Brand, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select b.id, b.name, coalesce(b.company_name, ''), coalesce(b.logo_url, '')
		from brands b
		where not exists (
			select 1 from catalog_entries ce
			where ce.app_id = $1 and ce.brand_id = b.id
		)
		order by b.name
	`, appID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []access.Brand
	for rows.Next() {
		var brand access.Brand
		if err := rows.Scan(&brand.ID, &brand.Name, &brand.CompanyName, &brand.LogoURL); err != nil {
			return nil, err
		}
		result = append(result, brand)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) EntryDetails(ctx context.Context, appID, brandID string) (access.EntryDetails, error) {
	if s.db == nil {
		return access.EntryDetails{}, errors.New("database connection unavailable")
	}
	var details access.EntryDetails

	platformIDs, err := s.licensedPlatforms(ctx, s.db, appID, brandID)
	if err != nil {
		return access.EntryDetails{}, err
	}
	details.PlatformIDs = platformIDs

	rows, err := s.db.QueryContext(ctx, `
		select db.id, db.platform_id, db.type_id, coalesce(dt.name, ''),
		       db.url, coalesce(db.workspace_id, ''), coalesce(db.report_id, ''), coalesce(db.dataset_id, '')
		from dashboard_bindings db
		left join dashboard_types dt on dt.id = db.type_id
		where db.app_id = $1 and db.brand_id = $2
		order by db.platform_id
	`, appID, brandID)
	if err != nil {
		return access.EntryDetails{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var b access.DashboardBinding
		if err := rows.Scan(&b.ID, &b.PlatformID, &b.TypeID, &b.Type,
			&b.URL, &b.WorkspaceID, &b.ReportID, &b.DatasetID); err != nil {
			return access.EntryDetails{}, err
		}
		details.Bindings = append(details.Bindings, b)
	}
	if err := rows.Err(); err != nil {
		return access.EntryDetails{}, err
	}
	return details, nil
}

func (s *Store) LicensedPlatforms(ctx context.Context, appID, brandID string) ([]string, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	return s.licensedPlatforms(ctx, s.db, appID, brandID)
}

func (s *Store) BrandPlatforms(ctx context.Context, appID, brandID string) ([]access.Platform, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select p.id, p.name, coalesce(p.logo_url, '')
		from catalog_entries ce
		join platforms p on p.id = ce.platform_id
		where ce.app_id = $1 and ce.brand_id = $2
		order by p.name
	`, appID, brandID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []access.Platform
	for rows.Next() {
		var p access.Platform
		if err := rows.Scan(&p.ID, &p.Name, &p.LogoURL); err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) CreateEntry(ctx context.Context, change access.CatalogChange) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var existing int
	if err := tx.QueryRowContext(ctx, `
		select count(*) from catalog_entries where app_id = $1 and brand_id = $2
	`, change.ApplicationID, change.BrandID).Scan(&existing); err != nil {
		return err
	}
	if existing > 0 {
		return access.ErrConflict
	}

	if err := insertEntryRows(ctx, tx, change); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) ReconcileEntry(ctx context.Context, change access.CatalogChange) (access.CatalogDelta, error) {
	if s.db == nil {
		return access.CatalogDelta{}, errors.New("database connection unavailable")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return access.CatalogDelta{}, err
	}
	defer func() { _ = tx.Rollback() }()

	current, err := s.licensedPlatformsForUpdate(ctx, tx, change.ApplicationID, change.BrandID)
	if err != nil {
		return access.CatalogDelta{}, err
	}
	if len(current) == 0 {
		return access.CatalogDelta{}, access.ErrNotFound
	}

	delta := access.Diff(current, change.PlatformIDs)
	result := access.CatalogDelta{
		PlatformsAdded:   len(delta.ToAdd),
		PlatformsRemoved: len(delta.ToRemove),
		BindingsSynced:   len(change.Bindings),
	}

	for _, platformID := range delta.ToRemove {
		if _, err := tx.ExecContext(ctx, `
			delete from catalog_entries
			where app_id = $1 and brand_id = $2 and platform_id = $3
		`, change.ApplicationID, change.BrandID, platformID); err != nil {
			return access.CatalogDelta{}, err
		}
		res, err := tx.ExecContext(ctx, `
			delete from grants
			where app_id = $1 and brand_id = $2 and platform_id = $3
		`, change.ApplicationID, change.BrandID, platformID)
		if err != nil {
			return access.CatalogDelta{}, err
		}
		cascaded, err := res.RowsAffected()
		if err != nil {
			return access.CatalogDelta{}, err
		}
		result.GrantsCascaded += int(cascaded)
	}

	for _, platformID := range delta.ToAdd {
		if _, err := tx.ExecContext(ctx, `
			insert into catalog_entries (id, app_id, brand_id, platform_id)
			values ($1, $2, $3, $4)
		`, ids.New(), change.ApplicationID, change.BrandID, platformID); err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
				return access.CatalogDelta{}, access.ErrNotFound
			}
			return access.CatalogDelta{}, err
		}
	}

	if err := syncBindings(ctx, tx, change); err != nil {
		return access.CatalogDelta{}, err
	}
	if err := tx.Commit(); err != nil {
		return access.CatalogDelta{}, err
	}
	return result, nil
}

func (s *Store) DeleteEntry(ctx context.Context, appID, brandID string) (access.CascadeCounts, error) {
	if s.db == nil {
		return access.CascadeCounts{}, errors.New("database connection unavailable")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return access.CascadeCounts{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var counts access.CascadeCounts
	steps := []struct {
		query string
		dest  *int
	}{
		{`delete from dashboard_bindings where app_id = $1 and brand_id = $2`, &counts.Bindings},
		{`delete from grants where app_id = $1 and brand_id = $2`, &counts.Grants},
		{`delete from catalog_entries where app_id = $1 and brand_id = $2`, &counts.Platforms},
	}
	for _, step := range steps {
		res, err := tx.ExecContext(ctx, step.query, appID, brandID)
		if err != nil {
			return access.CascadeCounts{}, err
		}
		aff, err := res.RowsAffected()
		if err != nil {
			return access.CascadeCounts{}, err
		}
		*step.dest = int(aff)
	}

	if err := tx.Commit(); err != nil {
		return access.CascadeCounts{}, err
	}
	return counts, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Store) licensedPlatforms(ctx context.Context, q querier, appID, brandID string) ([]string, error) {
	return scanPlatformIDs(q.QueryContext(ctx, `
		select platform_id from catalog_entries
		where app_id = $1 and brand_id = $2
		order by platform_id
	`, appID, brandID))
}

func (s *Store) licensedPlatformsForUpdate(ctx context.Context, tx *sql.Tx, appID, brandID string) ([]string, error) {
	return scanPlatformIDs(tx.QueryContext(ctx, `
		select platform_id from catalog_entries
		where app_id = $1 and brand_id = $2
		order by platform_id
		for update
	`, appID, brandID))
}

func scanPlatformIDs(rows *sql.Rows, err error) ([]string, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		result = append(result, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func insertEntryRows(ctx context.Context, tx *sql.Tx, change access.CatalogChange) error {
	for _, platformID := range change.PlatformIDs {
		if _, err := tx.ExecContext(ctx, `
			insert into catalog_entries (id, app_id, brand_id, platform_id)
			values ($1, $2, $3, $4)
		`, ids.New(), change.ApplicationID, change.BrandID, platformID); err != nil {
			if pgErr, ok := maybePgError(err); ok {
				switch pgErr.Code {
				case pgErrUniqueViolation:
					return access.ErrConflict
				case pgErrForeignKeyViolation:
					return access.ErrNotFound
				}
			}
			return err
		}
	}
	return insertBindings(ctx, tx, change)
}

// syncBindings replaces the whole binding set for the entry.
func syncBindings(ctx context.Context, tx *sql.Tx, change access.CatalogChange) error {
	if _, err := tx.ExecContext(ctx, `
		delete from dashboard_bindings where app_id = $1 and brand_id = $2
	`, change.ApplicationID, change.BrandID); err != nil {
		return err
	}
	return insertBindings(ctx, tx, change)
}

func insertBindings(ctx context.Context, tx *sql.Tx, change access.CatalogChange) error {
	for _, b := range change.Bindings {
		if _, err := tx.ExecContext(ctx, `
			insert into dashboard_bindings
				(id, app_id, brand_id, platform_id, type_id, url, workspace_id, report_id, dataset_id)
			values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, ids.New(), change.ApplicationID, change.BrandID, b.PlatformID, b.TypeID,
			b.URL, nullIfEmpty(b.WorkspaceID), nullIfEmpty(b.ReportID), nullIfEmpty(b.DatasetID)); err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
				return access.ErrNotFound
			}
			return err
		}
	}
	return nil
}
