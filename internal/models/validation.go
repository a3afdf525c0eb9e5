package models

// FailureKind identifies why a validation attempt was rejected.
type FailureKind string

const (
	FailureNone              FailureKind = ""
	FailureTokenMissing      FailureKind = "token_missing"
	FailureTokenMalformed    FailureKind = "token_malformed"
	FailureTokenInvalid      FailureKind = "token_invalid"
	FailureTokenRevoked      FailureKind = "token_revoked"
	FailureTokenExpired      FailureKind = "token_expired"
	FailureRoleMissing       FailureKind = "role_missing"
	FailureLedgerUnavailable FailureKind = "ledger_unavailable"
)

// ValidationResult is the outcome of the full validation pipeline. Expected
// failures are carried here as data, not as errors.
type ValidationResult struct {
	Valid   bool        `json:"valid"`
	Claims  *ClaimSet   `json:"claims,omitempty"`
	Failure FailureKind `json:"failure,omitempty"`
	Message string      `json:"message"`
	Expired bool        `json:"expired"`
	Revoked bool        `json:"revoked"`
}
