package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/zhdanovmax/token-service/internal/models"
	pkgerrors "github.com/zhdanovmax/token-service/pkg/errors"
)

// tokenClaims is the wire shape of the signed payload: registered claims
// plus the application claims baked into every token.
type tokenClaims struct {
	UserID   int64    `json:"userId"`
	Email    string   `json:"email"`
	Verified bool     `json:"isVerified"`
	Roles    []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// Codec signs and verifies bearer tokens. All configuration is fixed at
// construction; a Codec is safe for concurrent use.
type Codec struct {
	secret   []byte
	ttl      time.Duration
	issuer   string
	audience string
	now      func() time.Time
}

func NewCodec(secret []byte, ttl time.Duration, issuer, audience string) *Codec {
	return &Codec{
		secret:   secret,
		ttl:      ttl,
		issuer:   issuer,
		audience: audience,
		now:      time.Now,
	}
}

// Issue builds and signs a token for the user. The returned ClaimSet carries
// the expiry the ledger record must store. Pure apart from clock and RNG.
func (c *Codec) Issue(user *models.User) (string, *models.ClaimSet, error) {
	now := c.now()
	claims := &tokenClaims{
		UserID:   user.ID,
		Email:    user.Email,
		Verified: user.Verified,
		Roles:    user.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   user.Username,
			Audience:  jwt.ClaimStrings{c.audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", nil, err
	}
	return signed, claimSetFrom(claims), nil
}

// Verify checks the signature and, in one pass, issuer, audience, expiry and
// (when expectedSubject is non-empty) the subject. Every failure collapses
// into ErrTokenInvalid so callers cannot fingerprint why a token was
// rejected.
func (c *Codec) Verify(token, expectedSubject string) (*models.ClaimSet, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithAudience(c.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return c.now() }),
	}
	if expectedSubject != "" {
		opts = append(opts, jwt.WithSubject(expectedSubject))
	}

	claims := &tokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, c.keyFunc, opts...)
	if err != nil || !parsed.Valid {
		return nil, pkgerrors.ErrTokenInvalid
	}
	return claimSetFrom(claims), nil
}

// ExtractClaims verifies the signature and decodes the payload without
// validating issuer, audience, subject or expiry. Success here is not full
// validity; it exists so internal callers can discover the subject before
// calling Verify.
func (c *Codec) ExtractClaims(token string) (*models.ClaimSet, error) {
	claims := &tokenClaims{}
	_, err := jwt.ParseWithClaims(token, claims, c.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return nil, pkgerrors.ErrTokenMalformed
	}
	return claimSetFrom(claims), nil
}

func (c *Codec) keyFunc(t *jwt.Token) (interface{}, error) {
	return c.secret, nil
}

func claimSetFrom(claims *tokenClaims) *models.ClaimSet {
	cs := &models.ClaimSet{
		UserID:   claims.UserID,
		Username: claims.Subject,
		Email:    claims.Email,
		Verified: claims.Verified,
		Roles:    claims.Roles,
		Issuer:   claims.Issuer,
		TokenID:  claims.ID,
	}
	if len(claims.Audience) > 0 {
		cs.Audience = claims.Audience[0]
	}
	if claims.IssuedAt != nil {
		cs.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		cs.ExpiresAt = claims.ExpiresAt.Time
	}
	return cs
}
