package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zhdanovmax/token-service/internal/models"
	pkgerrors "github.com/zhdanovmax/token-service/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

func newTestUserService(users *fakeUserRepo, tokens *fakeTokenRepo) *userService {
	tokenSvc := newTestTokenService(tokens)
	return NewUserService(users, tokenSvc, newFakeRedis(), &fakeProducer{})
}

func seedUser(t *testing.T, users *fakeUserRepo, username, email, password string, roles []string) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	require.NoError(t, err)
	user := &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		Roles:        roles,
	}
	require.NoError(t, users.Create(context.Background(), user))
	return user
}

func TestUserService_Signup(t *testing.T) {
	ctx := context.Background()
	users := newFakeUserRepo()
	svc := newTestUserService(users, newFakeTokenRepo())

	user, err := svc.Signup(ctx, "alice", "Alice@Example.com", "s3cret")
	require.NoError(t, err)
	assert.NotZero(t, user.ID)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, "alice@example.com", user.Email, "email is normalized")
	assert.False(t, user.Verified)
	assert.NotEqual(t, "s3cret", user.PasswordHash)
}

func TestUserService_Signup_Conflicts(t *testing.T) {
	ctx := context.Background()
	users := newFakeUserRepo()
	svc := newTestUserService(users, newFakeTokenRepo())

	seedUser(t, users, "alice", "alice@example.com", "s3cret", nil)

	_, err := svc.Signup(ctx, "alice", "other@example.com", "s3cret")
	assert.ErrorIs(t, err, pkgerrors.ErrUsernameExists)

	_, err = svc.Signup(ctx, "alice2", "alice@example.com", "s3cret")
	assert.ErrorIs(t, err, pkgerrors.ErrEmailExists)
}

func TestUserService_Signup_InvalidInput(t *testing.T) {
	svc := newTestUserService(newFakeUserRepo(), newFakeTokenRepo())
	ctx := context.Background()

	for _, tc := range []struct{ username, email, password string }{
		{"", "a@b.c", "pw"},
		{"alice", "", "pw"},
		{"alice", "a@b.c", "  "},
	} {
		_, err := svc.Signup(ctx, tc.username, tc.email, tc.password)
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)
	}
}

func TestUserService_Login(t *testing.T) {
	ctx := context.Background()
	users := newFakeUserRepo()
	tokens := newFakeTokenRepo()
	svc := newTestUserService(users, tokens)

	seedUser(t, users, "alice", "alice@example.com", "s3cret", []string{"USER"})

	token, err := svc.Login(ctx, "alice", "s3cret")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	record := tokens.get(token)
	require.NotNil(t, record, "login must record the issued token in the ledger")
	assert.Equal(t, int64(1), record.UserID)
}

func TestUserService_Login_InvalidCredentials(t *testing.T) {
	ctx := context.Background()
	users := newFakeUserRepo()
	svc := newTestUserService(users, newFakeTokenRepo())

	seedUser(t, users, "alice", "alice@example.com", "s3cret", nil)

	_, err := svc.Login(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidCredentials)

	_, err = svc.Login(ctx, "nobody", "s3cret")
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidCredentials)
}

func TestUserService_Login_IssuanceFailure(t *testing.T) {
	ctx := context.Background()
	users := newFakeUserRepo()
	tokens := newFakeTokenRepo()
	tokens.failWith = pkgerrors.ErrLedgerUnavailable
	svc := newTestUserService(users, tokens)

	seedUser(t, users, "alice", "alice@example.com", "s3cret", nil)

	_, err := svc.Login(ctx, "alice", "s3cret")
	assert.ErrorIs(t, err, pkgerrors.ErrIssuanceFailed)
}

func TestUserService_GetByUsername_Caches(t *testing.T) {
	ctx := context.Background()
	users := newFakeUserRepo()
	cache := newFakeRedis()
	svc := NewUserService(users, newTestTokenService(newFakeTokenRepo()), cache, &fakeProducer{})

	seedUser(t, users, "alice", "alice@example.com", "s3cret", nil)

	first, err := svc.GetByUsername(ctx, "alice")
	require.NoError(t, err)

	// Second read is served from the cache even if the repository fails.
	users.failWith = pkgerrors.ErrInternal
	second, err := svc.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Username, second.Username)
}

func TestUserService_EndToEndLogoutFlow(t *testing.T) {
	ctx := context.Background()
	users := newFakeUserRepo()
	tokens := newFakeTokenRepo()
	tokenSvc := newTestTokenService(tokens)
	userSvc := NewUserService(users, tokenSvc, newFakeRedis(), &fakeProducer{})
	revocations := newTestRevocationService(tokens, newFakeRedis())

	seedUser(t, users, "alice", "alice@example.com", "s3cret", []string{"USER"})

	token, err := userSvc.Login(ctx, "alice", "s3cret")
	require.NoError(t, err)

	result := tokenSvc.Validate(ctx, token, "")
	require.True(t, result.Valid)
	assert.Equal(t, "alice", result.Claims.Username)
	assert.False(t, result.Expired)
	assert.False(t, result.Revoked)

	require.NoError(t, revocations.LogoutOne(ctx, token))

	result = tokenSvc.Validate(ctx, token, "")
	assert.False(t, result.Valid)
	assert.Equal(t, models.FailureTokenRevoked, result.Failure)

	// The stateless path keeps accepting the revoked token.
	assert.True(t, tokenSvc.QuickValidate(ctx, token))
}

func TestUserService_RapidLoginsAreIndependent(t *testing.T) {
	ctx := context.Background()
	users := newFakeUserRepo()
	tokens := newFakeTokenRepo()
	tokenSvc := newTestTokenService(tokens)
	svc := NewUserService(users, tokenSvc, newFakeRedis(), &fakeProducer{})

	seedUser(t, users, "alice", "alice@example.com", "s3cret", nil)

	first, err := svc.Login(ctx, "alice", "s3cret")
	require.NoError(t, err)
	second, err := svc.Login(ctx, "alice", "s3cret")
	require.NoError(t, err)

	require.NotEqual(t, first, second)
	assert.True(t, tokenSvc.Validate(ctx, first, "").Valid)
	assert.True(t, tokenSvc.Validate(ctx, second, "").Valid)
}
