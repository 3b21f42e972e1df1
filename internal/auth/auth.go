// Package auth resolves the acting user at the HTTP boundary. Tokens are
// HS256 JWTs minted by the identity service; the subject is the user id and
// the role claim is TEACHER or STUDENT.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"quiz-session-service/internal/domain"
)

const (
	// Dev-mode headers, honoured only when no secret is configured.
	HeaderUserID = "X-User-ID"
	HeaderRole   = "X-User-Role"
)

var ErrUnauthenticated = errors.New("unauthenticated")

// Claims carried by an access token.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type Verifier struct {
	secret []byte
	now    func() time.Time
}

// NewVerifier returns a verifier for secret. An empty secret enables dev mode.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret), now: time.Now}
}

func (v *Verifier) DevMode() bool {
	return len(v.secret) == 0
}

// Issue mints a token for actor; used by the token command and tests.
func (v *Verifier) Issue(actor domain.Actor, ttl time.Duration) (string, error) {
	if v.DevMode() {
		return "", errors.New("auth secret not configured")
	}
	now := v.now()
	claims := Claims{
		Role: string(actor.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

func (v *Verifier) Verify(raw string) (domain.Actor, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(v.now))
	if err != nil {
		return domain.Actor{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	return actorFrom(claims.Subject, claims.Role)
}

// Authenticate resolves the actor of r from its bearer token (query param
// "token" is accepted for websocket upgrades), or from dev headers.
func (v *Verifier) Authenticate(r *http.Request) (domain.Actor, error) {
	if v.DevMode() {
		return actorFrom(r.Header.Get(HeaderUserID), r.Header.Get(HeaderRole))
	}
	raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if raw == "" {
		raw = r.URL.Query().Get("token")
	}
	if raw == "" {
		return domain.Actor{}, ErrUnauthenticated
	}
	return v.Verify(raw)
}

// Middleware rejects unauthenticated requests with 401 and stores the actor
// in the request context.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, err := v.Authenticate(r)
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "Unauthenticated", "message": err.Error()})
			return
		}
		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

func actorFrom(userID, role string) (domain.Actor, error) {
	if userID == "" {
		return domain.Actor{}, fmt.Errorf("%w: missing subject", ErrUnauthenticated)
	}
	switch r := domain.Role(strings.ToUpper(role)); r {
	case domain.RoleTeacher, domain.RoleStudent:
		return domain.Actor{UserID: userID, Role: r}, nil
	case "":
		return domain.Actor{UserID: userID, Role: domain.RoleStudent}, nil
	default:
		return domain.Actor{}, fmt.Errorf("%w: unknown role %q", ErrUnauthenticated, role)
	}
}

type actorKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

func ActorFrom(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(domain.Actor)
	return actor, ok
}
