// Package identity resolves the caller of a request into a user, a profile
// and a role.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/starford/staykeep/internal/apperr"
	"github.com/starford/staykeep/internal/models"
)

// Auth modes.
const (
	ModeDisabled = "disabled"
	ModeToken    = "token"
	ModeJWT      = "jwt"
)

// User is the resolved caller.
type User struct {
	UserID    string `json:"user_id"`
	ProfileID string `json:"profile_id"`
	Role      string `json:"role"`
}

// SeesAllProperties reports whether the role bypasses property assignments.
func (u *User) SeesAllProperties() bool {
	return u.Role == models.RoleOwner || u.Role == models.RoleManager
}

type ctxKey struct{}

// WithUser stores u in ctx.
func WithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// FromContext returns the user stored by the middleware, if any.
func FromContext(ctx context.Context) (*User, bool) {
	u, ok := ctx.Value(ctxKey{}).(*User)
	return u, ok && u != nil
}

// Claims is the JWT payload.
type Claims struct {
	ProfileID string `json:"profile_id,omitempty"`
	Role      string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator turns bearer credentials into a User.
type Authenticator struct {
	mode   string
	token  string
	secret []byte
	issuer string
}

// NewAuthenticator builds an Authenticator. token is the static bearer for
// token mode, secret the HMAC key for jwt mode.
func NewAuthenticator(mode, token, secret string) *Authenticator {
	if mode == "" {
		mode = ModeDisabled
	}
	return &Authenticator{mode: mode, token: token, secret: []byte(secret), issuer: "staykeep"}
}

// localOwner is the caller when no per-user identity is configured.
var localOwner = User{UserID: "local", Role: models.RoleOwner}

// Authenticate resolves the bearer token of a request.
func (a *Authenticator) Authenticate(bearer string) (*User, error) {
	switch a.mode {
	case ModeDisabled:
		u := localOwner
		return &u, nil
	case ModeToken:
		if bearer == "" || bearer != a.token {
			return nil, apperr.ErrUnauthorized
		}
		u := localOwner
		return &u, nil
	case ModeJWT:
		return a.parse(bearer)
	default:
		return nil, fmt.Errorf("identity: unknown mode %q", a.mode)
	}
}

func (a *Authenticator) parse(raw string) (*User, error) {
	if raw == "" {
		return nil, apperr.ErrUnauthorized
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwt.WithIssuer(a.issuer), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", apperr.ErrUnauthorized, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", apperr.ErrUnauthorized)
	}
	role := claims.Role
	if role == "" {
		role = models.RoleStaff
	}
	return &User{UserID: claims.Subject, ProfileID: claims.ProfileID, Role: role}, nil
}

// Issue signs a JWT for u valid for ttl. Only meaningful in jwt mode.
func (a *Authenticator) Issue(u User, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		ProfileID: u.ProfileID,
		Role:      u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.UserID,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// ProfileLookup finds the profile owned by a user id.
type ProfileLookup interface {
	ProfileByUserID(ctx context.Context, userID string) (*models.Profile, error)
}

// Middleware authenticates every request and stores the User in its
// context. When lookup is non-nil a missing profile id or role is filled in
// from the stored profile. onError writes the rejection.
func (a *Authenticator) Middleware(lookup ProfileLookup, onError func(http.ResponseWriter, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, err := a.Authenticate(BearerToken(r))
			if err != nil {
				onError(w, err)
				return
			}
			if lookup != nil && u.ProfileID == "" {
				if p, err := lookup.ProfileByUserID(r.Context(), u.UserID); err == nil {
					u.ProfileID = p.ID
					if a.mode == ModeJWT {
						u.Role = p.Role
					}
				}
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
		})
	}
}

// BearerToken extracts the token from the Authorization header, falling
// back to an access_token query parameter for EventSource clients.
func BearerToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.URL.Query().Get("access_token")
}
