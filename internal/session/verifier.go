package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for any token that fails verification
var ErrInvalidToken = errors.New("invalid or expired token")

// VerifierConfig selects how access tokens are verified. Secret enables
// HS256; JWKSURL enables asymmetric keys fetched from the backend.
type VerifierConfig struct {
	Secret  string
	JWKSURL string
	Issuer  string
	Leeway  time.Duration
}

type accessClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Verifier turns bearer tokens into sessions
type Verifier struct {
	keyfunc jwt.Keyfunc
	methods []string
	issuer  string
	leeway  time.Duration
}

// NewVerifier builds a Verifier. With a JWKS URL the key set is refreshed in
// the background for the lifetime of ctx.
func NewVerifier(ctx context.Context, cfg VerifierConfig) (*Verifier, error) {
	switch {
	case cfg.JWKSURL != "":
		k, err := keyfunc.NewDefaultCtx(ctx, []string{cfg.JWKSURL})
		if err != nil {
			return nil, fmt.Errorf("failed to create JWKS keyfunc: %w", err)
		}
		return NewVerifierWithKeyfunc(k.Keyfunc, []string{"RS256", "ES256"}, cfg.Issuer, cfg.Leeway), nil
	case cfg.Secret != "":
		secret := []byte(cfg.Secret)
		kf := func(*jwt.Token) (any, error) { return secret, nil }
		return NewVerifierWithKeyfunc(kf, []string{"HS256"}, cfg.Issuer, cfg.Leeway), nil
	default:
		return nil, errors.New("either a JWT secret or a JWKS URL is required")
	}
}

// NewVerifierWithKeyfunc builds a Verifier around an arbitrary key source
func NewVerifierWithKeyfunc(kf jwt.Keyfunc, methods []string, issuer string, leeway time.Duration) *Verifier {
	return &Verifier{keyfunc: kf, methods: methods, issuer: issuer, leeway: leeway}
}

// Verify validates the token and returns the session it represents
func (v *Verifier) Verify(tokenString string) (*Session, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods(v.methods),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &accessClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, v.keyfunc, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	s := &Session{
		AccessToken: tokenString,
		TokenType:   "bearer",
		User:        User{ID: subject, Email: claims.Email},
	}
	if claims.ExpiresAt != nil {
		s.ExpiresAt = claims.ExpiresAt.Time
	}
	return s, nil
}
