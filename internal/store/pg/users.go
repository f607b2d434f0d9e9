package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"accessdesk.org/internal/directory"
	"accessdesk.org/internal/ids"
)

func (s *Store) CreateUser(ctx context.Context, user directory.User, passwordHash string) (directory.User, error) {
	if s.db == nil {
		return directory.User{}, errors.New("database connection unavailable")
	}
	row := s.db.QueryRowContext(ctx, `
		insert into users (id, name, email, user_type, organisation, status, password_hash)
		values ($1, $2, $3, $4, $5, $6, $7)
		returning id, name, email, user_type, organisation, status, created_at, updated_at
	`, ids.New(), user.Name, user.Email, user.UserType, user.Organisation, user.Status, passwordHash)

	created, err := scanUser(row)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return directory.User{}, fmt.Errorf("%w: email already registered", directory.ErrConflict)
		}
		return directory.User{}, err
	}
	return created, nil
}

func (s *Store) ListUsers(ctx context.Context, q directory.Query) (directory.Page, error) {
	if s.db == nil {
		return directory.Page{}, errors.New("database connection unavailable")
	}

	where := "where 1=1"
	args := []any{}
	paramCount := 0
	if q.Search != "" {
		paramCount++
		where += fmt.Sprintf(" and (name ilike $%d or email ilike $%d)", paramCount, paramCount)
		args = append(args, "%"+q.Search+"%")
	}
	if q.Status != "" {
		paramCount++
		where += fmt.Sprintf(" and status = $%d", paramCount)
		args = append(args, q.Status)
	}

	var page directory.Page
	if err := s.db.QueryRowContext(ctx,
		"select count(*) from users "+where, args...,
	).Scan(&page.Total); err != nil {
		return directory.Page{}, err
	}

	query := fmt.Sprintf(`
		select id, name, email, user_type, organisation, status, created_at, updated_at
		from users %s
		order by created_at desc
		limit $%d offset $%d
	`, where, paramCount+1, paramCount+2)
	args = append(args, q.Limit, q.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return directory.Page{}, err
	}
	defer rows.Close()

	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return directory.Page{}, err
		}
		page.Users = append(page.Users, user)
	}
	if err := rows.Err(); err != nil {
		return directory.Page{}, err
	}
	return page, nil
}

func (s *Store) GetUser(ctx context.Context, userID string) (directory.User, error) {
	if s.db == nil {
		return directory.User{}, errors.New("database connection unavailable")
	}
	user, err := scanUser(s.db.QueryRowContext(ctx, `
		select id, name, email, user_type, organisation, status, created_at, updated_at
		from users
		where id = $1
	`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return directory.User{}, directory.ErrNotFound
	}
	if err != nil {
		return directory.User{}, err
	}
	return user, nil
}

func (s *Store) UpdateUserStatus(ctx context.Context, userID, status string) (directory.User, error) {
	if s.db == nil {
		return directory.User{}, errors.New("database connection unavailable")
	}
	user, err := scanUser(s.db.QueryRowContext(ctx, `
		update users
		set status = $2, updated_at = now()
		where id = $1
		returning id, name, email, user_type, organisation, status, created_at, updated_at
	`, userID, status))
	if errors.Is(err, sql.ErrNoRows) {
		return directory.User{}, directory.ErrNotFound
	}
	if err != nil {
		return directory.User{}, err
	}
	return user, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (directory.User, error) {
	var user directory.User
	err := row.Scan(
		&user.ID, &user.Name, &user.Email, &user.UserType,
		&user.Organisation, &user.Status, &user.CreatedAt, &user.UpdatedAt,
	)
	return user, err
}
