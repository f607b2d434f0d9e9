package directory

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"

	"accessdesk.org/internal/audit"
)

// Audit action names recorded by the service.
const (
	ActionUserCreate       = "user.create"
	ActionUserStatusUpdate = "user.status.update"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

var userTypes = map[string]struct{}{
	TypeAdmin:   {},
	TypeAnalyst: {},
	TypeManager: {},
	TypeClient:  {},
}

// NewUser is the input for account creation.
type NewUser struct {
	Name         string `json:"user_name"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	UserType     string `json:"user_type"`
	Organisation string `json:"organisation"`
}

// Service validates and applies account mutations, writing the audit trail
// alongside.
type Service struct {
	store Store
	trail *audit.Trail
}

func NewService(store Store, trail *audit.Trail) (*Service, error) {
	if store == nil {
		return nil, errors.New("directory store is required")
	}
	if trail == nil {
		trail = audit.NewTrail(nil)
	}
	return &Service{store: store, trail: trail}, nil
}

// CreateUser registers a new account. The raw password is hashed before it
// reaches the store and masked in the audit record.
func (s *Service) CreateUser(ctx context.Context, in NewUser) (User, error) {
	entry := audit.Entry{
		Action: ActionUserCreate,
		Request: map[string]any{
			"user_name":    in.Name,
			"email":        in.Email,
			"password":     in.Password,
			"user_type":    in.UserType,
			"organisation": in.Organisation,
		},
	}

	user, hash, err := s.validateNewUser(in)
	if err != nil {
		s.trail.Failure(ctx, entry, err)
		return User{}, err
	}

	created, err := s.store.CreateUser(ctx, user, hash)
	if err != nil {
		s.trail.Failure(ctx, entry, err)
		return User{}, err
	}

	entry.SubjectID = created.ID
	entry.Detail = fmt.Sprintf("created %s user %s", created.UserType, created.Email)
	s.trail.Success(ctx, entry)
	return created, nil
}

func (s *Service) ListUsers(ctx context.Context, q Query) (Page, error) {
	q.Search = strings.TrimSpace(q.Search)
	q.Status = strings.TrimSpace(strings.ToUpper(q.Status))
	if q.Status != "" && q.Status != StatusActive && q.Status != StatusInactive {
		return Page{}, fmt.Errorf("%w: unsupported status %s", ErrInvalidInput, q.Status)
	}
	if q.Limit <= 0 {
		q.Limit = defaultPageSize
	}
	if q.Limit > maxPageSize {
		q.Limit = maxPageSize
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return s.store.ListUsers(ctx, q)
}

func (s *Service) GetUser(ctx context.Context, userID string) (User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return User{}, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	return s.store.GetUser(ctx, userID)
}

// UpdateStatus activates or deactivates an account. Deactivation does not
// touch the user's grants; enforcement happens wherever the status is read.
func (s *Service) UpdateStatus(ctx context.Context, userID, status string) (User, error) {
	userID = strings.TrimSpace(userID)
	status = strings.TrimSpace(strings.ToUpper(status))
	entry := audit.Entry{
		SubjectID: userID,
		Action:    ActionUserStatusUpdate,
		Request:   map[string]any{"status": status},
	}
	if userID == "" {
		err := fmt.Errorf("%w: user_id is required", ErrInvalidInput)
		s.trail.Failure(ctx, entry, err)
		return User{}, err
	}
	if status != StatusActive && status != StatusInactive {
		err := fmt.Errorf("%w: unsupported status %s", ErrInvalidInput, status)
		s.trail.Failure(ctx, entry, err)
		return User{}, err
	}

	user, err := s.store.UpdateUserStatus(ctx, userID, status)
	if err != nil {
		s.trail.Failure(ctx, entry, err)
		return User{}, err
	}

	entry.Detail = fmt.Sprintf("status set to %s", status)
	s.trail.Success(ctx, entry)
	return user, nil
}

// UserName resolves a display name for cross-package presentation.
func (s *Service) UserName(ctx context.Context, userID string) (string, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return "", err
	}
	return user.Name, nil
}

func (s *Service) validateNewUser(in NewUser) (User, string, error) {
	name := strings.TrimSpace(in.Name)
	if len(name) < 2 || len(name) > 100 {
		return User{}, "", fmt.Errorf("%w: user_name must be 2-100 characters", ErrInvalidInput)
	}
	email := strings.TrimSpace(strings.ToLower(in.Email))
	if email == "" || !strings.Contains(email, "@") {
		return User{}, "", fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	password := strings.TrimSpace(in.Password)
	if len(password) < 8 {
		return User{}, "", fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
	}
	userType := strings.TrimSpace(strings.ToUpper(in.UserType))
	if _, ok := userTypes[userType]; !ok {
		return User{}, "", fmt.Errorf("%w: unsupported user_type %s", ErrInvalidInput, in.UserType)
	}
	organisation := strings.TrimSpace(in.Organisation)
	if organisation == "" {
		return User{}, "", fmt.Errorf("%w: organisation is required", ErrInvalidInput)
	}

	hash, err := hashPassword(password)
	if err != nil {
		return User{}, "", err
	}
	return User{
		Name:         name,
		Email:        email,
		UserType:     userType,
		Organisation: organisation,
		Status:       StatusActive,
	}, hash, nil
}

func hashPassword(password string) (string, error) {
	const (
		memory      = 64 * 1024
		iterations  = 2
		parallelism = 1
		keyLength   = 32
		saltLength  = 16
	)

	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	hash := argon2.IDKey([]byte(password), salt, iterations, memory, parallelism, keyLength)

	return fmt.Sprintf(
		"$argon2id$v=19$m=%d,t=%d,p=%d$%s$%s",
		memory,
		iterations,
		parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}
