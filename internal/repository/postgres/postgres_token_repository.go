package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/zhdanovmax/token-service/internal/infrastructure/observability"
	"github.com/zhdanovmax/token-service/internal/models"
	pkgerrors "github.com/zhdanovmax/token-service/pkg/errors"
)

type PostgresTokenRepository struct {
	db *sql.DB
}

func NewPostgresTokenRepository(db *sql.DB) *PostgresTokenRepository {
	return &PostgresTokenRepository{db: db}
}

func observe(method string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	observability.RepositoryCalls.WithLabelValues(method, status).Inc()
	observability.RepositoryDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
}

func (r *PostgresTokenRepository) Create(ctx context.Context, record *models.TokenRecord) (err error) {
	start := time.Now()
	defer func() { observe("token_create", start, err) }()

	if record == nil {
		return fmt.Errorf("token record is nil")
	}
	if record.Token == "" || record.UserID == 0 {
		return fmt.Errorf("token and user_id are required")
	}

	query := `
	INSERT INTO tokens (token, user_id, expires_at, is_expired, is_deleted)
	VALUES ($1, $2, $3, false, false)
	RETURNING id, created_at
	`
	err = r.db.QueryRowContext(
		ctx,
		query,
		record.Token,
		record.UserID,
		record.ExpiresAt,
	).Scan(&record.ID, &record.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create token record: %w", err)
	}
	return nil
}

func (r *PostgresTokenRepository) FindActive(ctx context.Context, token string) (rec *models.TokenRecord, err error) {
	start := time.Now()
	defer func() { observe("token_find_active", start, err) }()

	query := `
	SELECT id, token, user_id, expires_at, is_expired, is_deleted, created_at
	FROM tokens
	WHERE token = $1 AND is_deleted = false AND is_expired = false
	`
	return r.scanOne(ctx, query, token)
}

func (r *PostgresTokenRepository) FindNonDeleted(ctx context.Context, token string) (rec *models.TokenRecord, err error) {
	start := time.Now()
	defer func() { observe("token_find_non_deleted", start, err) }()

	query := `
	SELECT id, token, user_id, expires_at, is_expired, is_deleted, created_at
	FROM tokens
	WHERE token = $1 AND is_deleted = false
	`
	return r.scanOne(ctx, query, token)
}

func (r *PostgresTokenRepository) scanOne(ctx context.Context, query, token string) (*models.TokenRecord, error) {
	var record models.TokenRecord
	err := r.db.QueryRowContext(ctx, query, token).Scan(
		&record.ID,
		&record.Token,
		&record.UserID,
		&record.ExpiresAt,
		&record.Expired,
		&record.Deleted,
		&record.CreatedAt,
	)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, pkgerrors.ErrTokenRecordNotFound
	case err != nil:
		return nil, fmt.Errorf("failed to get token record: %w", err)
	}
	return &record, nil
}

func (r *PostgresTokenRepository) FindActiveByUser(ctx context.Context, userID int64) (records []models.TokenRecord, err error) {
	start := time.Now()
	defer func() { observe("token_find_active_by_user", start, err) }()

	query := `
	SELECT id, token, user_id, expires_at, is_expired, is_deleted, created_at
	FROM tokens
	WHERE user_id = $1 AND is_deleted = false AND is_expired = false
	ORDER BY created_at
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list active tokens: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var record models.TokenRecord
		if err := rows.Scan(
			&record.ID,
			&record.Token,
			&record.UserID,
			&record.ExpiresAt,
			&record.Expired,
			&record.Deleted,
			&record.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan token record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list active tokens: %w", err)
	}
	return records, nil
}

func (r *PostgresTokenRepository) MarkDeleted(ctx context.Context, token string) (ok bool, err error) {
	start := time.Now()
	defer func() { observe("token_mark_deleted", start, err) }()

	query := `UPDATE tokens SET is_deleted = true WHERE token = $1 AND is_deleted = false`
	res, err := r.db.ExecContext(ctx, query, token)
	if err != nil {
		return false, fmt.Errorf("failed to mark token deleted: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to mark token deleted: %w", err)
	}
	return affected > 0, nil
}

func (r *PostgresTokenRepository) MarkAllDeletedForUser(ctx context.Context, userID int64) (count int64, err error) {
	start := time.Now()
	defer func() { observe("token_mark_all_deleted", start, err) }()

	query := `UPDATE tokens SET is_deleted = true WHERE user_id = $1 AND is_deleted = false`
	res, err := r.db.ExecContext(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark user tokens deleted: %w", err)
	}
	count, err = res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to mark user tokens deleted: %w", err)
	}
	return count, nil
}

func (r *PostgresTokenRepository) MarkExpired(ctx context.Context, token string) (err error) {
	start := time.Now()
	defer func() { observe("token_mark_expired", start, err) }()

	query := `UPDATE tokens SET is_expired = true WHERE token = $1 AND is_expired = false`
	if _, err = r.db.ExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("failed to mark token expired: %w", err)
	}
	return nil
}

func (r *PostgresTokenRepository) MarkExpiredWhereOverdue(ctx context.Context, now time.Time) (count int64, err error) {
	start := time.Now()
	defer func() { observe("token_mark_expired_overdue", start, err) }()

	query := `UPDATE tokens SET is_expired = true WHERE expires_at < $1 AND is_expired = false`
	res, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to mark overdue tokens expired: %w", err)
	}
	count, err = res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to mark overdue tokens expired: %w", err)
	}
	return count, nil
}
