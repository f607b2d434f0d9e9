package access

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidInput = errors.New("access: invalid input")
	ErrNotFound     = errors.New("access: not found")
	ErrConflict     = errors.New("access: resource conflict")
)

// UnlicensedError rejects a reconciliation whose desired set contains
// platforms with no active catalog entry for the target (application, brand).
// It unwraps to ErrInvalidInput so boundary code can treat it as a
// validation failure while callers that care can still read the offenders.
type UnlicensedError struct {
	ApplicationID string
	BrandID       string
	PlatformIDs   []string
}

func (e *UnlicensedError) Error() string {
	return fmt.Sprintf("access: invalid input: platforms not licensed for app %s brand %s: %s",
		e.ApplicationID, e.BrandID, strings.Join(e.PlatformIDs, ","))
}

func (e *UnlicensedError) Unwrap() error { return ErrInvalidInput }
