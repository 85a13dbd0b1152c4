package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/hlog"

	"github.com/accountd/accountd/internal/httpcond"
	"github.com/accountd/accountd/internal/store"
)

var ErrInvalidToken = errors.New("invalid or expired token")

// Identity is the authenticated caller, as carried in the request context.
type Identity struct {
	UserID string
	Role   string
}

func (i Identity) IsAdmin() bool {
	return i.Role == store.RoleAdmin
}

type tokenClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// Authenticator issues and verifies the HMAC-signed access tokens.
type Authenticator struct {
	secret   []byte
	tokenTTL time.Duration
}

func New(secret string, tokenTTL time.Duration) *Authenticator {
	return &Authenticator{[]byte(secret), tokenTTL}
}

func (a *Authenticator) Issue(userID, role string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(a.tokenTTL)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    "accountd",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Role: role,
	})

	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("unable to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

func (a *Authenticator) Verify(raw string) (Identity, error) {
	claims := &tokenClaims{}

	token, err := jwt.ParseWithClaims(
		raw,
		claims,
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
			}
			return a.secret, nil
		},
	)
	if err != nil || !token.Valid || claims.Subject == "" {
		return Identity{}, ErrInvalidToken
	}

	return Identity{UserID: claims.Subject, Role: claims.Role}, nil
}

type identityKey struct{}

// RequireAuth rejects requests without a valid bearer token and stashes the
// caller's identity in the request context for the wrapped handler.
func (a *Authenticator) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok {
			w.Header().Set("WWW-Authenticate", "Bearer")
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		identity, err := a.Verify(strings.TrimSpace(raw))
		if err != nil {
			hlog.FromRequest(r).Debug().Err(err).Msg("rejected token")
			w.Header().Set("WWW-Authenticate", "Bearer")
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		next(w, r.WithContext(context.WithValue(r.Context(), identityKey{}, identity)))
	}
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(Identity)
	return identity, ok
}

// Classify maps the caller/owner relationship onto a cacheability class.
// This is the authorization-side input of the cache policy table.
func Classify(identity Identity, ownerID string) httpcond.ResourceClass {
	switch {
	case identity.IsAdmin() && identity.UserID != ownerID:
		return httpcond.ClassAdministrative
	case identity.UserID == ownerID:
		return httpcond.ClassOwnedByRequester
	default:
		return httpcond.ClassOwnedByOther
	}
}
