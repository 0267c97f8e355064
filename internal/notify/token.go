package notify

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
)

// Token purposes.
const (
	PurposeActivation     = "activation"
	PurposePasswordChange = "password_change"
)

// LinkClaims are carried by the signed tokens embedded in notification links.
type LinkClaims struct {
	Email   string `json:"email,omitempty"`
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 link tokens.
type TokenIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	clock  clockwork.Clock
}

func NewTokenIssuer(secret []byte, issuer string, ttl time.Duration, clock clockwork.Clock) (*TokenIssuer, error) {
	if len(secret) == 0 {
		return nil, errors.New("token secret is empty")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("token ttl must be positive, got %s", ttl)
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &TokenIssuer{secret: secret, issuer: issuer, ttl: ttl, clock: clock}, nil
}

// Issue returns a token for accountID valid for the issuer's ttl.
func (t *TokenIssuer) Issue(accountID, email, purpose string) (string, error) {
	now := t.clock.Now()
	claims := LinkClaims{
		Email:   email,
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Verify parses token and checks signature, expiry, issuer and purpose.
func (t *TokenIssuer) Verify(token, purpose string) (*LinkClaims, error) {
	var claims LinkClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.clock.Now),
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	if claims.Purpose != purpose {
		return nil, fmt.Errorf("token purpose %q, want %q", claims.Purpose, purpose)
	}
	return &claims, nil
}
