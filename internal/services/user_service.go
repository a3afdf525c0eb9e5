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
	"github.com/zhdanovmax/token-service/internal/infrastructure/redis"
	"github.com/zhdanovmax/token-service/internal/models"
	"github.com/zhdanovmax/token-service/internal/repository"
	pkgerrors "github.com/zhdanovmax/token-service/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/crypto/bcrypt"
)

const userCacheTTL = 5 * time.Minute

type UserService interface {
	Signup(ctx context.Context, username, email, password string) (*models.User, error)
	Login(ctx context.Context, username, password string) (string, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
}

type userService struct {
	users       repository.UserRepository
	tokenSvc    TokenService
	redisClient redis.RedisClient
	producer    kafka.KafkaProducer
}

func NewUserService(
	users repository.UserRepository,
	tokenSvc TokenService,
	redisClient redis.RedisClient,
	producer kafka.KafkaProducer,
) *userService {
	return &userService{
		users:       users,
		tokenSvc:    tokenSvc,
		redisClient: redisClient,
		producer:    producer,
	}
}

func (s *userService) Signup(ctx context.Context, username, email, password string) (*models.User, error) {
	tracer := otel.Tracer("token-service")
	ctx, span := tracer.Start(ctx, "Signup")
	defer span.End()

	username = strings.TrimSpace(username)
	email = strings.ToLower(strings.TrimSpace(email))
	if username == "" || email == "" || strings.TrimSpace(password) == "" {
		span.SetStatus(codes.Error, "empty username, email or password")
		return nil, pkgerrors.ErrInvalidInput
	}

	existing, err := s.users.GetByUsername(ctx, username)
	if existing != nil {
		span.SetStatus(codes.Error, "username already exists")
		slog.Warn("username already exists", "username", username, "existing_id", existing.ID)
		return nil, pkgerrors.ErrUsernameExists
	}
	if err != nil && !stderrors.Is(err, pkgerrors.ErrUserNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "user check failed")
		slog.Error("failed to check user existence", "username", username, "error", err)
		return nil, fmt.Errorf("%w: failed to check user existence", pkgerrors.ErrInternal)
	}

	emailTaken, err := s.users.ExistsByEmail(ctx, email)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "email check failed")
		slog.Error("failed to check email", "email", email, "error", err)
		return nil, fmt.Errorf("%w: failed to check email", pkgerrors.ErrInternal)
	}
	if emailTaken {
		span.SetStatus(codes.Error, "email already registered")
		return nil, pkgerrors.ErrEmailExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "password hashing failed")
		slog.Error("failed to hash password", "username", username, "error", err)
		return nil, fmt.Errorf("%w: failed to hash password", pkgerrors.ErrInternal)
	}

	user := &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		Verified:     false,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if stderrors.Is(err, pkgerrors.ErrUsernameExists) || stderrors.Is(err, pkgerrors.ErrEmailExists) {
			return nil, err
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "user creation failed")
		slog.Error("failed to create user in DB", "username", username, "error", err)
		return nil, fmt.Errorf("%w: failed to create user", pkgerrors.ErrInternal)
	}

	event := map[string]interface{}{
		"event_type": "user_registered",
		"user_id":    user.ID,
		"username":   username,
		"email":      email,
		"created_at": time.Now().UTC().Format(time.RFC3339),
	}
	eventBytes, err := json.Marshal(event)
	if err != nil {
		span.RecordError(err)
		slog.Error("failed to marshal kafka event", "user_id", user.ID, "error", err)
	} else {
		go func() {
			retries := 3
			for i := 0; i < retries; i++ {
				if err := s.producer.Send(context.Background(), "users", fmt.Sprintf("%d", user.ID), eventBytes); err == nil {
					slog.Info("user registration event sent", "user_id", user.ID, "username", username)
					return
				}
				time.Sleep(time.Second * time.Duration(i+1))
			}
			slog.Error("failed to send user registration event after retries",
				"user_id", user.ID,
				"username", username)
		}()
	}

	slog.Info("user registered successfully", "user_id", user.ID, "username", username)
	return user, nil
}

func (s *userService) Login(ctx context.Context, username, password string) (string, error) {
	tracer := otel.Tracer("token-service")
	ctx, span := tracer.Start(ctx, "Login")
	defer span.End()

	user, err := s.GetByUsername(ctx, username)
	if err != nil {
		slog.Error("failed to login", "username", username, "error", err)
		return "", pkgerrors.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		slog.Error("invalid password", "username", username)
		return "", pkgerrors.ErrInvalidCredentials
	}

	token, err := s.tokenSvc.Issue(ctx, user)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "token issuance failed")
		return "", err
	}

	slog.Info("user logged in", "username", username, "user_id", user.ID)
	return token, nil
}

func (s *userService) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	cacheKey := fmt.Sprintf("user:%s:profile", username)
	if cached, err := s.redisClient.Get(ctx, cacheKey); err == nil {
		var user models.User
		if err := json.Unmarshal([]byte(cached), &user); err == nil {
			return &user, nil
		}
		slog.Error("failed to unmarshal cached user", "username", username, "error", err)
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}

	if userBytes, err := json.Marshal(user); err == nil {
		if err := s.redisClient.Set(ctx, cacheKey, string(userBytes), userCacheTTL); err != nil {
			slog.Error("failed to cache user", "username", username, "error", err)
		}
	}
	return user, nil
}
