package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	stderrors "errors"

	"github.com/zhdanovmax/token-service/internal/infrastructure/auth"
	"github.com/zhdanovmax/token-service/internal/infrastructure/kafka"
	"github.com/zhdanovmax/token-service/internal/infrastructure/observability"
	"github.com/zhdanovmax/token-service/internal/models"
	"github.com/zhdanovmax/token-service/internal/repository"
	pkgerrors "github.com/zhdanovmax/token-service/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

// TokenService issues tokens and runs the validation pipeline against the
// ledger.
type TokenService interface {
	// Issue signs a token for the user and records it in the ledger. If the
	// ledger insert fails the signed token is discarded: a token absent from
	// the ledger can never validate, so returning it would hand the caller a
	// permanently unusable artifact.
	Issue(ctx context.Context, user *models.User) (string, error)

	// Validate runs the ordered pipeline: missing check, claim extraction,
	// full signature/claim verification, ledger lookup, then expiry
	// reconciliation. When the ledger record is overdue, Validate marks it
	// expired in the ledger as a documented side effect before failing.
	Validate(ctx context.Context, token, requiredRole string) *models.ValidationResult

	// QuickValidate runs only the stateless stages. A token revoked by
	// logout still passes here until its embedded expiry; callers doing
	// anything security-sensitive must use Validate.
	QuickValidate(ctx context.Context, token string) bool

	// ExtractClaims decodes a signature-checked claim set without full
	// validation.
	ExtractClaims(token string) (*models.ClaimSet, error)

	// ActiveSessions lists the user's ledger records that are neither
	// deleted nor expired, one per live login.
	ActiveSessions(ctx context.Context, userID int64) ([]models.TokenRecord, error)
}

type tokenService struct {
	codec         *auth.Codec
	tokens        repository.TokenRepository
	producer      kafka.KafkaProducer
	probe         *AuthorizationProbe
	ledgerTimeout time.Duration
	now           func() time.Time
}

func NewTokenService(
	codec *auth.Codec,
	tokens repository.TokenRepository,
	producer kafka.KafkaProducer,
	probe *AuthorizationProbe,
	ledgerTimeout time.Duration,
) *tokenService {
	return &tokenService{
		codec:         codec,
		tokens:        tokens,
		producer:      producer,
		probe:         probe,
		ledgerTimeout: ledgerTimeout,
		now:           time.Now,
	}
}

func (s *tokenService) Issue(ctx context.Context, user *models.User) (string, error) {
	tracer := otel.Tracer("token-service")
	ctx, span := tracer.Start(ctx, "Issue")
	defer span.End()

	signed, claims, err := s.codec.Issue(user)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "signing failed")
		slog.Error("failed to sign token", "user_id", user.ID, "error", err)
		return "", fmt.Errorf("%w: %v", pkgerrors.ErrIssuanceFailed, err)
	}

	record := &models.TokenRecord{
		Token:     signed,
		UserID:    user.ID,
		ExpiresAt: claims.ExpiresAt,
	}

	lctx, cancel := context.WithTimeout(ctx, s.ledgerTimeout)
	defer cancel()
	if err := s.tokens.Create(lctx, record); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "ledger insert failed")
		slog.Error("failed to record issued token, discarding it",
			"user_id", user.ID,
			"token_id", claims.TokenID,
			"error", err)
		return "", fmt.Errorf("%w: %v", pkgerrors.ErrIssuanceFailed, err)
	}

	observability.TokensIssued.Inc()
	s.publishEvent("token_issued", claims.TokenID, map[string]interface{}{
		"event_type": "token_issued",
		"user_id":    user.ID,
		"username":   user.Username,
		"token_id":   claims.TokenID,
		"expires_at": claims.ExpiresAt.UTC().Format(time.RFC3339),
	})

	slog.Info("token issued", "user_id", user.ID, "token_id", claims.TokenID)
	return signed, nil
}

func (s *tokenService) Validate(ctx context.Context, token, requiredRole string) *models.ValidationResult {
	tracer := otel.Tracer("token-service")
	ctx, span := tracer.Start(ctx, "Validate")
	defer span.End()

	result := s.validate(ctx, token, requiredRole)

	outcome := "ok"
	if !result.Valid {
		outcome = string(result.Failure)
		span.SetStatus(codes.Error, result.Message)
	}
	observability.TokenValidations.WithLabelValues(outcome).Inc()
	return result
}

func (s *tokenService) validate(ctx context.Context, token, requiredRole string) *models.ValidationResult {
	if strings.TrimSpace(token) == "" {
		return failure(models.FailureTokenMissing, pkgerrors.ErrTokenMissing.Error())
	}

	claims, err := s.codec.ExtractClaims(token)
	if err != nil || claims.Username == "" {
		return failure(models.FailureTokenMalformed, pkgerrors.ErrTokenMalformed.Error())
	}

	claims, err = s.codec.Verify(token, claims.Username)
	if err != nil {
		return failure(models.FailureTokenInvalid, pkgerrors.ErrTokenInvalid.Error())
	}

	lctx, cancel := context.WithTimeout(ctx, s.ledgerTimeout)
	defer cancel()
	record, err := s.tokens.FindActive(lctx, token)
	if stderrors.Is(err, pkgerrors.ErrTokenRecordNotFound) {
		return failure(models.FailureTokenRevoked, pkgerrors.ErrTokenRevoked.Error())
	}
	if err != nil {
		// Ledger trouble is never reported as an invalid token; callers may
		// retry or degrade instead of rejecting a legitimate user.
		slog.Error("ledger lookup failed during validation", "error", err)
		return failure(models.FailureLedgerUnavailable, pkgerrors.ErrLedgerUnavailable.Error())
	}

	if record.ExpiresAt.Before(s.now()) {
		// The sweep has not caught this record yet; reconcile it now so the
		// ledger converges without waiting for the next sweep run.
		mctx, mcancel := context.WithTimeout(ctx, s.ledgerTimeout)
		defer mcancel()
		if err := s.tokens.MarkExpired(mctx, token); err != nil {
			slog.Error("failed to mark overdue token expired", "token_id", claims.TokenID, "error", err)
		}
		return failure(models.FailureTokenExpired, pkgerrors.ErrTokenExpired.Error())
	}

	if requiredRole != "" && !s.probe.HasRole(claims, requiredRole) {
		return failure(models.FailureRoleMissing, fmt.Sprintf("user does not have required role: %s", requiredRole))
	}

	return &models.ValidationResult{
		Valid:   true,
		Claims:  claims,
		Message: "token is valid and user is authorized",
		Expired: record.Expired,
		Revoked: record.Deleted,
	}
}

func (s *tokenService) QuickValidate(ctx context.Context, token string) bool {
	_, span := otel.Tracer("token-service").Start(ctx, "QuickValidate")
	defer span.End()

	if strings.TrimSpace(token) == "" {
		return false
	}
	claims, err := s.codec.ExtractClaims(token)
	if err != nil || claims.Username == "" {
		return false
	}
	_, err = s.codec.Verify(token, claims.Username)
	return err == nil
}

func (s *tokenService) ExtractClaims(token string) (*models.ClaimSet, error) {
	return s.codec.ExtractClaims(token)
}

func (s *tokenService) ActiveSessions(ctx context.Context, userID int64) ([]models.TokenRecord, error) {
	lctx, cancel := context.WithTimeout(ctx, s.ledgerTimeout)
	defer cancel()
	records, err := s.tokens.FindActiveByUser(lctx, userID)
	if err != nil {
		slog.Error("failed to list active sessions", "user_id", userID, "error", err)
		return nil, fmt.Errorf("%w: %v", pkgerrors.ErrLedgerUnavailable, err)
	}
	return records, nil
}

func (s *tokenService) publishEvent(kind, key string, event map[string]interface{}) {
	eventBytes, err := json.Marshal(event)
	if err != nil {
		slog.Error("failed to marshal kafka event", "event_type", kind, "error", err)
		return
	}
	go func() {
		if err := s.producer.Send(context.Background(), "tokens", key, eventBytes); err != nil {
			slog.Error("failed to send token event", "event_type", kind, "error", err)
		}
	}()
}

func failure(kind models.FailureKind, message string) *models.ValidationResult {
	return &models.ValidationResult{
		Valid:   false,
		Failure: kind,
		Message: message,
	}
}
