package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	stderrors "errors"

	"github.com/zhdanovmax/token-service/internal/infrastructure/kafka"
	"github.com/zhdanovmax/token-service/internal/infrastructure/observability"
	"github.com/zhdanovmax/token-service/internal/infrastructure/redis"
	"github.com/zhdanovmax/token-service/internal/repository"
	pkgerrors "github.com/zhdanovmax/token-service/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

const sweepLockKey = "token-sweep:lock"

// RevocationService marks ledger records deleted (logout) and expired
// (sweep). Records are never resurrected or physically removed.
type RevocationService interface {
	// LogoutOne marks a single token deleted. Logging out a token that is
	// unknown or already deleted fails with ErrTokenNotFound; it does not
	// fail silently, so client bugs surface.
	LogoutOne(ctx context.Context, token string) error

	// LogoutAll marks every non-deleted token of the user deleted in one
	// statement and returns the count affected.
	LogoutAll(ctx context.Context, userID int64) (int64, error)

	// SweepExpired marks every overdue, not-yet-expired record expired in
	// one statement and returns the count affected.
	SweepExpired(ctx context.Context) (int64, error)

	// IsRevokedOrExpired reports whether the token is no longer usable as
	// far as the ledger is concerned: unknown or deleted records count as
	// revoked, and an overdue expiry counts even before the sweep has
	// flagged it.
	IsRevokedOrExpired(ctx context.Context, token string) (bool, error)

	// Run sweeps on a fixed period until the context is cancelled.
	Run(ctx context.Context, interval time.Duration)
}

type revocationService struct {
	tokens        repository.TokenRepository
	redisClient   redis.RedisClient
	producer      kafka.KafkaProducer
	ledgerTimeout time.Duration
	now           func() time.Time
}

func NewRevocationService(
	tokens repository.TokenRepository,
	redisClient redis.RedisClient,
	producer kafka.KafkaProducer,
	ledgerTimeout time.Duration,
) *revocationService {
	return &revocationService{
		tokens:        tokens,
		redisClient:   redisClient,
		producer:      producer,
		ledgerTimeout: ledgerTimeout,
		now:           time.Now,
	}
}

func (s *revocationService) LogoutOne(ctx context.Context, token string) error {
	tracer := otel.Tracer("token-service")
	ctx, span := tracer.Start(ctx, "LogoutOne")
	defer span.End()

	if strings.TrimSpace(token) == "" {
		span.SetStatus(codes.Error, "empty token")
		return pkgerrors.ErrInvalidInput
	}

	lctx, cancel := context.WithTimeout(ctx, s.ledgerTimeout)
	defer cancel()
	// A single conditional update is the whole atomicity story: two
	// concurrent logouts of the same token yield one success and one
	// ErrTokenNotFound.
	ok, err := s.tokens.MarkDeleted(lctx, token)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "ledger update failed")
		slog.Error("failed to mark token deleted", "error", err)
		return fmt.Errorf("%w: %v", pkgerrors.ErrLedgerUnavailable, err)
	}
	if !ok {
		span.SetStatus(codes.Error, "token not found or already logged out")
		return pkgerrors.ErrTokenNotFound
	}

	observability.TokensRevoked.WithLabelValues("single").Inc()
	s.publishEvent("token_revoked", map[string]interface{}{
		"event_type": "token_revoked",
		"revoked_at": s.now().UTC().Format(time.RFC3339),
	})
	slog.Info("token logged out")
	return nil
}

func (s *revocationService) LogoutAll(ctx context.Context, userID int64) (int64, error) {
	tracer := otel.Tracer("token-service")
	ctx, span := tracer.Start(ctx, "LogoutAll")
	defer span.End()

	lctx, cancel := context.WithTimeout(ctx, s.ledgerTimeout)
	defer cancel()
	count, err := s.tokens.MarkAllDeletedForUser(lctx, userID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "ledger update failed")
		slog.Error("failed to mark user tokens deleted", "user_id", userID, "error", err)
		return 0, fmt.Errorf("%w: %v", pkgerrors.ErrLedgerUnavailable, err)
	}

	observability.TokensRevoked.WithLabelValues("all").Add(float64(count))
	s.publishEvent("user_logged_out_everywhere", map[string]interface{}{
		"event_type":     "user_logged_out_everywhere",
		"user_id":        userID,
		"tokens_revoked": count,
		"revoked_at":     s.now().UTC().Format(time.RFC3339),
	})
	slog.Info("user logged out everywhere", "user_id", userID, "count", count)
	return count, nil
}

func (s *revocationService) SweepExpired(ctx context.Context) (int64, error) {
	tracer := otel.Tracer("token-service")
	ctx, span := tracer.Start(ctx, "SweepExpired")
	defer span.End()

	lctx, cancel := context.WithTimeout(ctx, s.ledgerTimeout)
	defer cancel()
	count, err := s.tokens.MarkExpiredWhereOverdue(lctx, s.now())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "sweep failed")
		slog.Error("expiry sweep failed", "error", err)
		return 0, fmt.Errorf("%w: %v", pkgerrors.ErrLedgerUnavailable, err)
	}

	observability.SweepMarkedExpired.Add(float64(count))
	if count > 0 {
		slog.Info("marked tokens as expired", "count", count)
	}
	return count, nil
}

func (s *revocationService) IsRevokedOrExpired(ctx context.Context, token string) (bool, error) {
	lctx, cancel := context.WithTimeout(ctx, s.ledgerTimeout)
	defer cancel()
	record, err := s.tokens.FindNonDeleted(lctx, token)
	if stderrors.Is(err, pkgerrors.ErrTokenRecordNotFound) {
		return true, nil
	}
	if err != nil {
		slog.Error("failed to check token status", "error", err)
		return false, fmt.Errorf("%w: %v", pkgerrors.ErrLedgerUnavailable, err)
	}
	return record.Expired || record.ExpiresAt.Before(s.now()), nil
}

// Run sweeps every interval. A Redis lock skips runs that would overlap a
// sweep still in flight elsewhere; if the lock cannot be consulted the sweep
// runs anyway, since the bulk update is atomic and a concurrent run is
// redundant, not unsafe.
func (s *revocationService) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("expiry sweeper started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("expiry sweeper stopped")
			return
		case <-ticker.C:
			s.sweepOnce(ctx, interval)
		}
	}
}

func (s *revocationService) sweepOnce(ctx context.Context, interval time.Duration) {
	acquired, err := s.redisClient.SetNX(ctx, sweepLockKey, "locked", interval)
	if err != nil {
		slog.Warn("failed to acquire sweep lock, sweeping anyway", "error", err)
	} else if !acquired {
		slog.Info("sweep already running elsewhere, skipping")
		return
	}

	if _, err := s.SweepExpired(ctx); err != nil {
		slog.Error("sweep run failed", "error", err)
	}

	if err := s.redisClient.Del(ctx, sweepLockKey); err != nil && !stderrors.Is(err, redis.ErrKeyNotFound) {
		slog.Warn("failed to release sweep lock", "error", err)
	}
}

func (s *revocationService) publishEvent(kind string, event map[string]interface{}) {
	eventBytes, err := json.Marshal(event)
	if err != nil {
		slog.Error("failed to marshal kafka event", "event_type", kind, "error", err)
		return
	}
	go func() {
		if err := s.producer.Send(context.Background(), "tokens", kind, eventBytes); err != nil {
			slog.Error("failed to send revocation event", "event_type", kind, "error", err)
		}
	}()
}
