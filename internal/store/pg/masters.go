package pg

import (
	"context"
	"database/sql"
	"errors"

	"accessdesk.org/internal/access"
)

func (s *Store) ListApplications(ctx context.Context) ([]access.Application, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, name, status, created_at, updated_at
		from applications
		where status = 'ACTIVE'
		order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []access.Application
	for rows.Next() {
		var app access.Application
		if err := rows.Scan(&app.ID, &app.Name, &app.Status, &app.CreatedAt, &app.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, app)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) GetApplication(ctx context.Context, appID string) (access.Application, error) {
	if s.db == nil {
		return access.Application{}, errors.New("database connection unavailable")
	}
	var app access.Application
	err := s.db.QueryRowContext(ctx, `
		select id, name, status, created_at, updated_at
		from applications
		where id = $1
	`, appID).Scan(&app.ID, &app.Name, &app.Status, &app.CreatedAt, &app.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return access.Application{}, access.ErrNotFound
	}
	if err != nil {
		return access.Application{}, err
	}
	return app, nil
}

func (s *Store) ListPlatforms(ctx context.Context) ([]access.Platform, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, name, coalesce(logo_url, '')
		from platforms
		order by name
	`)
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

func (s *Store) ListDashboardTypes(ctx context.Context) ([]access.DashboardType, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, name, coalesce(color, '')
		from dashboard_types
		order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []access.DashboardType
	for rows.Next() {
		var dt access.DashboardType
		if err := rows.Scan(&dt.ID, &dt.Name, &dt.Color); err != nil {
			return nil, err
		}
		result = append(result, dt)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) GetBrand(ctx context.Context, brandID string) (access.Brand, error) {
	if s.db == nil {
		return access.Brand{}, errors.New("database connection unavailable")
	}
	var brand access.Brand
	err := s.db.QueryRowContext(ctx, `
		select id, name, coalesce(company_name, ''), coalesce(logo_url, '')
		from brands
		where id = $1
	`, brandID).Scan(&brand.ID, &brand.Name, &brand.CompanyName, &brand.LogoURL)
	if errors.Is(err, sql.ErrNoRows) {
		return access.Brand{}, access.ErrNotFound
	}
	if err != nil {
		return access.Brand{}, err
	}
	return brand, nil
}
