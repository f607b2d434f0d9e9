package pg

import (
	"context"
	"errors"

	"accessdesk.org/internal/access"
	"accessdesk.org/internal/ids"
)

func (s *Store) HasGrants(ctx context.Context, userID, appID string) (bool, error) {
	if s.db == nil {
		return false, errors.New("database connection unavailable")
	}
	var has bool
	err := s.db.QueryRowContext(ctx, `
		select exists (
			select 1 from grants where user_id = $1 and app_id = $2
		)
	`, userID, appID).Scan(&has)
	if err != nil {
		return false, err
	}
	return has, nil
}

func (s *Store) UserBrandGrants(ctx context.Context, userID, appID string) ([]access.BrandGrants, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select b.id, b.name, coalesce(b.company_name, ''), coalesce(b.logo_url, ''),
		       p.id, p.name, coalesce(p.logo_url, ''), g.created_at
		from grants g
		join brands b on b.id = g.brand_id
		join platforms p on p.id = g.platform_id
		where g.user_id = $1 and g.app_id = $2
		order by b.name, p.name
	`, userID, appID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []access.BrandGrants
	idx := make(map[string]int)
	for rows.Next() {
		var (
			brand access.Brand
			gp    access.GrantedPlatform
		)
		if err := rows.Scan(
			&brand.ID, &brand.Name, &brand.CompanyName, &brand.LogoURL,
			&gp.ID, &gp.Name, &gp.LogoURL, &gp.GrantedAt,
		); err != nil {
			return nil, err
		}
		bi, ok := idx[brand.ID]
		if !ok {
			bi = len(result)
			idx[brand.ID] = bi
			result = append(result, access.BrandGrants{Brand: brand})
		}
		result[bi].Platforms = append(result[bi].Platforms, gp)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) AccessRows(ctx context.Context, userID string) ([]access.TreeRow, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select a.id, a.name, b.id, b.name, p.id, p.name
		from grants g
		join applications a on a.id = g.app_id
		join brands b on b.id = g.brand_id
		join platforms p on p.id = g.platform_id
		where g.user_id = $1
		order by a.name, b.name, p.name
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []access.TreeRow
	for rows.Next() {
		var row access.TreeRow
		if err := rows.Scan(
			&row.ApplicationID, &row.ApplicationName,
			&row.BrandID, &row.BrandName,
			&row.PlatformID, &row.PlatformName,
		); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) AvailableBrands(ctx context.Context, userID, appID string) ([]access.Brand, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select distinct b.id, b.name, coalesce(b.company_name, ''), coalesce(b.logo_url, '')
		from catalog_entries ce
		join brands b on b.id = ce.brand_id
		where ce.app_id = $2
		  and not exists (
			select 1 from grants g
			where g.user_id = $1 and g.app_id = ce.app_id and g.brand_id = ce.brand_id
		  )
		order by b.name
	`, userID, appID)
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

func (s *Store) GrantedPlatforms(ctx context.Context, userID, appID, brandID string) ([]access.GrantedPlatform, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select p.id, p.name, coalesce(p.logo_url, ''), g.created_at
		from grants g
		join platforms p on p.id = g.platform_id
		where g.user_id = $1 and g.app_id = $2 and g.brand_id = $3
		order by p.name
	`, userID, appID, brandID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []access.GrantedPlatform
	for rows.Next() {
		var gp access.GrantedPlatform
		if err := rows.Scan(&gp.ID, &gp.Name, &gp.LogoURL, &gp.GrantedAt); err != nil {
			return nil, err
		}
		result = append(result, gp)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) ReconcileGrants(ctx context.Context, scope access.GrantScope, desired []string) (access.GrantDelta, error) {
	if s.db == nil {
		return access.GrantDelta{}, errors.New("database connection unavailable")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return access.GrantDelta{}, err
	}
	defer func() { _ = tx.Rollback() }()

	current, err := scanPlatformIDs(tx.QueryContext(ctx, `
		select platform_id from grants
		where user_id = $1 and app_id = $2 and brand_id = $3
		order by platform_id
		for update
	`, scope.UserID, scope.ApplicationID, scope.BrandID))
	if err != nil {
		return access.GrantDelta{}, err
	}

	delta := access.Diff(current, desired)
	if delta.Empty() {
		return access.GrantDelta{}, tx.Commit()
	}

	if len(delta.ToAdd) > 0 {
		licensed, err := s.licensedPlatforms(ctx, tx, scope.ApplicationID, scope.BrandID)
		if err != nil {
			return access.GrantDelta{}, err
		}
		licensedSet := make(map[string]struct{}, len(licensed))
		for _, id := range licensed {
			licensedSet[id] = struct{}{}
		}
		var unlicensed []string
		for _, id := range delta.ToAdd {
			if _, ok := licensedSet[id]; !ok {
				unlicensed = append(unlicensed, id)
			}
		}
		if len(unlicensed) > 0 {
			return access.GrantDelta{}, &access.UnlicensedError{
				ApplicationID: scope.ApplicationID,
				BrandID:       scope.BrandID,
				PlatformIDs:   unlicensed,
			}
		}
	}

	for _, platformID := range delta.ToRemove {
		if _, err := tx.ExecContext(ctx, `
			delete from grants
			where user_id = $1 and app_id = $2 and brand_id = $3 and platform_id = $4
		`, scope.UserID, scope.ApplicationID, scope.BrandID, platformID); err != nil {
			return access.GrantDelta{}, err
		}
	}
	for _, platformID := range delta.ToAdd {
		if _, err := tx.ExecContext(ctx, `
			insert into grants (id, user_id, app_id, brand_id, platform_id, granted_by)
			values ($1, $2, $3, $4, $5, $6)
			on conflict (user_id, app_id, brand_id, platform_id) do nothing
		`, ids.New(), scope.UserID, scope.ApplicationID, scope.BrandID, platformID,
			nullIfEmpty(scope.ActorID)); err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
				return access.GrantDelta{}, access.ErrNotFound
			}
			return access.GrantDelta{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return access.GrantDelta{}, err
	}
	return access.GrantDelta{Added: len(delta.ToAdd), Removed: len(delta.ToRemove)}, nil
}

func (s *Store) RemoveBrandGrants(ctx context.Context, scope access.GrantScope) (int, error) {
	if s.db == nil {
		return 0, errors.New("database connection unavailable")
	}
	res, err := s.db.ExecContext(ctx, `
		delete from grants
		where user_id = $1 and app_id = $2 and brand_id = $3
	`, scope.UserID, scope.ApplicationID, scope.BrandID)
	if err != nil {
		return 0, err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(aff), nil
}

func (s *Store) RemoveApplicationGrants(ctx context.Context, userID, appID string) (access.RemovedCounts, error) {
	if s.db == nil {
		return access.RemovedCounts{}, errors.New("database connection unavailable")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return access.RemovedCounts{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var counts access.RemovedCounts
	if err := tx.QueryRowContext(ctx, `
		select count(distinct brand_id) from grants
		where user_id = $1 and app_id = $2
	`, userID, appID).Scan(&counts.Brands); err != nil {
		return access.RemovedCounts{}, err
	}

	res, err := tx.ExecContext(ctx, `
		delete from grants where user_id = $1 and app_id = $2
	`, userID, appID)
	if err != nil {
		return access.RemovedCounts{}, err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return access.RemovedCounts{}, err
	}
	counts.Platforms = int(aff)

	if err := tx.Commit(); err != nil {
		return access.RemovedCounts{}, err
	}
	return counts, nil
}
