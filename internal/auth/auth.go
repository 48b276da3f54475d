// Package auth carries the opaque bearer credential issued by the external
// identity provider and verifies it on the server side.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMissingCredential is returned when no bearer token was supplied.
	ErrMissingCredential = errors.New("auth: missing bearer credential")
	// ErrCredentialExpired is returned when the credential expiry has passed.
	ErrCredentialExpired = errors.New("auth: credential expired")
	// ErrInvalidCredential is returned when a token fails verification.
	ErrInvalidCredential = errors.New("auth: invalid credential")
)

// Credential is a bearer token plus the expiry the caller must honour.
// A zero ExpiresAt means the issuer did not declare one.
type Credential struct {
	Token     string
	ExpiresAt time.Time
}

// ParseCredential builds a credential from a raw token, reading the exp claim
// without verifying the signature. Verification happens on the receiving side.
func ParseCredential(token string) (Credential, error) {
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	if token == "" {
		return Credential{}, ErrMissingCredential
	}

	cred := Credential{Token: token}
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		// opaque non-JWT tokens carry no expiry
		return cred, nil
	}
	if claims.ExpiresAt != nil {
		cred.ExpiresAt = claims.ExpiresAt.Time
	}
	return cred, nil
}

// Check reports whether the credential is usable at now.
func (c Credential) Check(now time.Time) error {
	if c.Token == "" {
		return ErrMissingCredential
	}
	if !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt) {
		return ErrCredentialExpired
	}
	return nil
}

// Header renders the Authorization header value.
func (c Credential) Header() string {
	return "Bearer " + c.Token
}

// Claims are the verified claims of a bearer token.
type Claims struct {
	Subject   string
	ExpiresAt time.Time
}

// VerifierOptions parameterise HS256 verification.
type VerifierOptions struct {
	Secret string
	Issuer string
	Leeway time.Duration
}

// Verifier validates bearer tokens signed with a shared secret.
type Verifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewVerifier constructs a verifier; an empty secret is rejected.
func NewVerifier(opts VerifierOptions) (*Verifier, error) {
	if opts.Secret == "" {
		return nil, errors.New("auth: jwt secret not configured")
	}
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(opts.Leeway),
	}
	if opts.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(opts.Issuer))
	}
	return &Verifier{secret: []byte(opts.Secret), parser: jwt.NewParser(parserOpts...)}, nil
}

// Verify checks signature, issuer and expiry of token.
func (v *Verifier) Verify(token string) (Claims, error) {
	if strings.TrimSpace(token) == "" {
		return Claims{}, ErrMissingCredential
	}
	claims := jwt.RegisteredClaims{}
	_, err := v.parser.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrCredentialExpired
		}
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}

	out := Claims{Subject: claims.Subject}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}
