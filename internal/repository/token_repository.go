package repository

import (
	"context"
	"time"

	"github.com/zhdanovmax/token-service/internal/models"
)

// TokenRepository is the ledger of issued tokens. Every mutation is a single
// conditional statement; there is no read-modify-write pair anywhere, which
// is what makes concurrent logouts and sweeps safe.
type TokenRepository interface {
	Create(ctx context.Context, record *models.TokenRecord) error

	// FindActive returns the record only if it is neither deleted nor
	// expired. Absence is ErrTokenRecordNotFound.
	FindActive(ctx context.Context, token string) (*models.TokenRecord, error)

	// FindNonDeleted ignores the expired flag; used by logout.
	FindNonDeleted(ctx context.Context, token string) (*models.TokenRecord, error)

	FindActiveByUser(ctx context.Context, userID int64) ([]models.TokenRecord, error)

	// MarkDeleted flips the deleted flag where it is not already set.
	// Returns false when no row matched.
	MarkDeleted(ctx context.Context, token string) (bool, error)

	MarkAllDeletedForUser(ctx context.Context, userID int64) (int64, error)

	// MarkExpired flips the expired flag on a single record.
	MarkExpired(ctx context.Context, token string) error

	// MarkExpiredWhereOverdue flips the expired flag on every record whose
	// expiry is before now. Returns the number of rows affected.
	MarkExpiredWhereOverdue(ctx context.Context, now time.Time) (int64, error)
}
