package identity

import "errors"

var (
	ErrNotFound     = errors.New("identity: not found")
	ErrForbidden    = errors.New("identity: forbidden")
	ErrConflict     = errors.New("identity: resource conflict")
	ErrInvalidInput = errors.New("identity: invalid input")
	ErrUnauthorized = errors.New("identity: unauthorized")

	// ErrSelfLockout rejects removing the top role from one's own account.
	ErrSelfLockout = errors.New("identity: cannot remove own superadmin role")
	// ErrSelfDeactivation rejects deactivating one's own account.
	ErrSelfDeactivation = errors.New("identity: cannot deactivate own account")
	// ErrHasMembers blocks deactivating a department that still has members.
	ErrHasMembers = errors.New("identity: department still has members")
)
