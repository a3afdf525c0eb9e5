package errors

import "errors"

// Token validation and revocation outcomes. These are expected results, not
// exceptional conditions; services return them and handlers map them to HTTP
// statuses.
var (
	ErrTokenMissing   = errors.New("token is required")
	ErrTokenMalformed = errors.New("invalid token structure")
	ErrTokenInvalid   = errors.New("token signature or claims validation failed")
	ErrTokenRevoked   = errors.New("token not found in ledger or has been revoked")
	ErrTokenExpired   = errors.New("token has expired")
	ErrTokenNotFound  = errors.New("token not found or already logged out")

	ErrIssuanceFailed    = errors.New("failed to record issued token")
	ErrLedgerUnavailable = errors.New("token ledger unavailable")

	// Repository-level sentinel: the requested row does not exist. Services
	// translate this into ErrTokenRevoked or ErrTokenNotFound depending on
	// the operation; they must never let it leak as ErrLedgerUnavailable.
	ErrTokenRecordNotFound = errors.New("token record not found")
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUsernameExists     = errors.New("username already exists")
	ErrEmailExists        = errors.New("email already registered")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInternal           = errors.New("internal error")
)
