package directory

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"accessdesk.org/internal/audit"
)

type stubStore struct {
	createUserFn       func(ctx context.Context, user User, passwordHash string) (User, error)
	listUsersFn        func(ctx context.Context, q Query) (Page, error)
	getUserFn          func(ctx context.Context, userID string) (User, error)
	updateUserStatusFn func(ctx context.Context, userID, status string) (User, error)
}

func (s *stubStore) CreateUser(ctx context.Context, user User, passwordHash string) (User, error) {
	return s.createUserFn(ctx, user, passwordHash)
}

func (s *stubStore) ListUsers(ctx context.Context, q Query) (Page, error) {
	return s.listUsersFn(ctx, q)
}

func (s *stubStore) GetUser(ctx context.Context, userID string) (User, error) {
	return s.getUserFn(ctx, userID)
}

func (s *stubStore) UpdateUserStatus(ctx context.Context, userID, status string) (User, error) {
	return s.updateUserStatusFn(ctx, userID, status)
}

type captureRecorder struct {
	records []audit.Record
}

func (c *captureRecorder) Append(_ context.Context, rec audit.Record) error {
	c.records = append(c.records, rec)
	return nil
}

func (c *captureRecorder) List(_ context.Context, _ audit.Filter, _ int) ([]audit.Record, error) {
	return c.records, nil
}

func validInput() NewUser {
	return NewUser{
		Name:         "Dana Example",
		Email:        "Dana@Example.test",
		Password:     "correct horse",
		UserType:     "analyst",
		Organisation: "Example Corp",
	}
}

func TestCreateUserHashesAndNormalizes(t *testing.T) {
	var gotUser User
	var gotHash string
	store := &stubStore{
		createUserFn: func(_ context.Context, user User, passwordHash string) (User, error) {
			gotUser, gotHash = user, passwordHash
			user.ID = "u1"
			user.CreatedAt = time.Now()
			return user, nil
		},
	}
	rec := &captureRecorder{}
	svc, err := NewService(store, audit.NewTrail(rec))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	created, err := svc.CreateUser(context.Background(), validInput())
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if created.ID != "u1" {
		t.Fatalf("unexpected user: %+v", created)
	}
	if gotUser.Email != "dana@example.test" {
		t.Fatalf("email not normalized: %s", gotUser.Email)
	}
	if gotUser.UserType != TypeAnalyst || gotUser.Status != StatusActive {
		t.Fatalf("unexpected normalized user: %+v", gotUser)
	}
	if !strings.HasPrefix(gotHash, "$argon2id$") || strings.Contains(gotHash, "correct horse") {
		t.Fatalf("password not hashed: %s", gotHash)
	}

	if len(rec.records) != 1 {
		t.Fatalf("expected 1 audit record, got %d", len(rec.records))
	}
	var payload map[string]any
	if err := json.Unmarshal(rec.records[0].RequestBody, &payload); err != nil {
		t.Fatalf("audit body not JSON: %v", err)
	}
	if payload["password"] != "***" {
		t.Fatalf("password leaked into audit trail: %v", payload["password"])
	}
}

func TestCreateUserValidation(t *testing.T) {
	store := &stubStore{
		createUserFn: func(_ context.Context, user User, _ string) (User, error) {
			t.Fatal("store must not be reached on invalid input")
			return user, nil
		},
	}
	rec := &captureRecorder{}
	svc, err := NewService(store, audit.NewTrail(rec))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*NewUser)
	}{
		{"short name", func(in *NewUser) { in.Name = "D" }},
		{"bad email", func(in *NewUser) { in.Email = "not-an-email" }},
		{"short password", func(in *NewUser) { in.Password = "short" }},
		{"unknown user type", func(in *NewUser) { in.UserType = "WIZARD" }},
		{"missing organisation", func(in *NewUser) { in.Organisation = "  " }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := validInput()
			tc.mutate(&in)
			if _, err := svc.CreateUser(context.Background(), in); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected invalid input, got %v", err)
			}
		})
	}

	// Every rejected attempt still lands in the trail.
	if len(rec.records) != len(cases) {
		t.Fatalf("expected %d audit records, got %d", len(cases), len(rec.records))
	}
	for _, r := range rec.records {
		if r.Outcome != audit.OutcomeFailed {
			t.Fatalf("expected failed outcome, got %+v", r)
		}
	}
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	store := &stubStore{
		createUserFn: func(_ context.Context, _ User, _ string) (User, error) {
			return User{}, ErrConflict
		},
	}
	svc, err := NewService(store, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if _, err := svc.CreateUser(context.Background(), validInput()); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestListUsersClampsPaging(t *testing.T) {
	var gotQuery Query
	store := &stubStore{
		listUsersFn: func(_ context.Context, q Query) (Page, error) {
			gotQuery = q
			return Page{}, nil
		},
	}
	svc, err := NewService(store, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	if _, err := svc.ListUsers(context.Background(), Query{Limit: 5000, Offset: -3, Status: "active"}); err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if gotQuery.Limit != maxPageSize || gotQuery.Offset != 0 || gotQuery.Status != StatusActive {
		t.Fatalf("query not clamped: %+v", gotQuery)
	}

	if _, err := svc.ListUsers(context.Background(), Query{Status: "PENDING"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid status, got %v", err)
	}
}

func TestUpdateStatus(t *testing.T) {
	store := &stubStore{
		updateUserStatusFn: func(_ context.Context, userID, status string) (User, error) {
			if userID != "u1" {
				return User{}, ErrNotFound
			}
			return User{ID: userID, Status: status}, nil
		},
	}
	rec := &captureRecorder{}
	svc, err := NewService(store, audit.NewTrail(rec))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	user, err := svc.UpdateStatus(context.Background(), "u1", "inactive")
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if user.Status != StatusInactive {
		t.Fatalf("status = %s", user.Status)
	}

	if _, err := svc.UpdateStatus(context.Background(), "u1", "FROZEN"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid status, got %v", err)
	}
	if _, err := svc.UpdateStatus(context.Background(), "missing", "ACTIVE"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUserName(t *testing.T) {
	store := &stubStore{
		getUserFn: func(_ context.Context, userID string) (User, error) {
			if userID != "u1" {
				return User{}, ErrNotFound
			}
			return User{ID: userID, Name: "Dana Example"}, nil
		},
	}
	svc, err := NewService(store, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	name, err := svc.UserName(context.Background(), "u1")
	if err != nil || name != "Dana Example" {
		t.Fatalf("UserName = %q, %v", name, err)
	}
	if _, err := svc.UserName(context.Background(), "u9"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
