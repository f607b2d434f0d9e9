package pg

import (
	"context"
	"errors"
	"fmt"

	"accessdesk.org/internal/audit"
)

func (s *Store) Append(ctx context.Context, rec audit.Record) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	var body any
	if len(rec.RequestBody) > 0 {
		body = []byte(rec.RequestBody)
	}
	_, err := s.db.ExecContext(ctx, `
		insert into audit_log
			(id, user_id, app_id, brand_id, platform_id, action, action_details,
			 request_body, outcome, error_message, performed_by, performed_at,
			 ip_address, user_agent)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, rec.ID, nullIfEmpty(rec.SubjectID), nullIfEmpty(rec.ApplicationID),
		nullIfEmpty(rec.BrandID), nullIfEmpty(rec.PlatformID), rec.Action,
		rec.Detail, body, rec.Outcome, nullIfEmpty(rec.ErrorDetail),
		nullIfEmpty(rec.PerformedBy), rec.PerformedAt,
		nullIfEmpty(rec.IPAddress), nullIfEmpty(rec.UserAgent))
	return err
}

func (s *Store) List(ctx context.Context, f audit.Filter, limit int) ([]audit.Record, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	if limit <= 0 {
		limit = 100
	}

	where := "where 1=1"
	args := []any{}
	paramCount := 0
	addFilter := func(clause string, value any) {
		paramCount++
		where += fmt.Sprintf(" and "+clause, paramCount)
		args = append(args, value)
	}
	if f.SubjectID != "" {
		addFilter("user_id = $%d", f.SubjectID)
	}
	if f.ApplicationID != "" {
		addFilter("app_id = $%d", f.ApplicationID)
	}
	if f.BrandID != "" {
		addFilter("brand_id = $%d", f.BrandID)
	}
	if f.Action != "" {
		addFilter("action = $%d", f.Action)
	}
	if !f.From.IsZero() {
		addFilter("performed_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		addFilter("performed_at <= $%d", f.To)
	}

	query := fmt.Sprintf(`
		select id, coalesce(user_id, ''), coalesce(app_id, ''), coalesce(brand_id, ''),
		       coalesce(platform_id, ''), action, action_details, request_body,
		       outcome, coalesce(error_message, ''), coalesce(performed_by, ''),
		       performed_at, coalesce(ip_address, ''), coalesce(user_agent, '')
		from audit_log %s
		order by performed_at desc
		limit $%d
	`, where, paramCount+1)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []audit.Record
	for rows.Next() {
		var (
			rec  audit.Record
			body []byte
		)
		if err := rows.Scan(
			&rec.ID, &rec.SubjectID, &rec.ApplicationID, &rec.BrandID,
			&rec.PlatformID, &rec.Action, &rec.Detail, &body,
			&rec.Outcome, &rec.ErrorDetail, &rec.PerformedBy,
			&rec.PerformedAt, &rec.IPAddress, &rec.UserAgent,
		); err != nil {
			return nil, err
		}
		rec.RequestBody = body
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
