// Package session implements the cookie-based session gateway: an HS256
// signed claims bundle minted at login, carried in an HttpOnly cookie with
// a sliding expiration window.
package session

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"rampline.io/internal/identity"
)

const (
	issuer     = "rampline"
	CookieName = "rampline_session"

	defaultTTL = 8 * time.Hour
)

// ErrInvalidSession indicates the session cookie failed validation.
var ErrInvalidSession = errors.New("invalid session")

// Claims is the capability snapshot embedded in a session at login time. It
// is an immutable point-in-time copy of the identity's roles and
// department, not a live view; role changes surface on the next issuance.
type Claims struct {
	Roles          []string `json:"roles"`
	FullName       string   `json:"full_name"`
	DepartmentID   string   `json:"department_id"`
	DepartmentName string   `json:"department_name"`
	Active         bool     `json:"active"`
	jwt.RegisteredClaims
}

// IdentityID returns the subject of the claims bundle.
func (c *Claims) IdentityID() string { return c.Subject }

// RoleSet converts the claim roles back into the policy's role set type.
func (c *Claims) RoleSet() identity.RoleSet {
	set := make(identity.RoleSet, 0, len(c.Roles))
	for _, r := range c.Roles {
		set = append(set, identity.RoleName(r))
	}
	return set
}

// Actor builds the acting-identity snapshot handed to administrative
// operations.
func (c *Claims) Actor() identity.Actor {
	return identity.Actor{ID: c.Subject, Roles: c.RoleSet()}
}

// Manager issues and validates session cookies.
type Manager struct {
	secret []byte
	ttl    time.Duration
	secure bool
	now    func() time.Time
}

// ManagerOption configures Manager behavior.
type ManagerOption func(*Manager)

// WithTTL overrides the session lifetime.
func WithTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithSecureCookies marks issued cookies Secure (production TLS).
func WithSecureCookies(secure bool) ManagerOption {
	return func(m *Manager) { m.secure = secure }
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ManagerOption {
	return func(m *Manager) {
		if fn != nil {
			m.now = fn
		}
	}
}

// NewManager constructs a Manager. The signing secret comes from
// configuration and must not be empty.
func NewManager(secret string, opts ...ManagerOption) (*Manager, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("session secret is not configured")
	}
	m := &Manager{secret: []byte(secret), ttl: defaultTTL, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// TTL returns the configured session lifetime.
func (m *Manager) TTL() time.Duration { return m.ttl }

// Issue mints a claims bundle for the identity and signs it.
func (m *Manager) Issue(ident identity.Identity, dept identity.Department) (string, *Claims, error) {
	now := m.now().UTC()
	roles := make([]string, 0, len(ident.Roles))
	for _, r := range ident.Roles {
		roles = append(roles, string(r))
	}
	claims := &Claims{
		Roles:          roles,
		FullName:       ident.FullName(),
		DepartmentID:   dept.ID,
		DepartmentName: dept.Name,
		Active:         ident.Active,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   ident.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// Parse verifies the signed bundle and returns its claims.
func (m *Manager) Parse(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidSession
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidSession
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return m.now().UTC() }))
	if err != nil {
		return nil, ErrInvalidSession
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidSession
	}
	if claims.Issuer != issuer || strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidSession
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return nil, ErrInvalidSession
	}
	return claims, nil
}

// ShouldRefresh reports whether less than half the window remains. The
// sliding expiration re-issues the cookie on activity instead of forcing a
// fixed logout time.
func (m *Manager) ShouldRefresh(claims *Claims) bool {
	if claims == nil || claims.ExpiresAt == nil {
		return false
	}
	return claims.ExpiresAt.Time.Sub(m.now().UTC()) < m.ttl/2
}

// Refresh re-issues the bundle with a fresh window, carrying the snapshot
// forward unchanged.
func (m *Manager) Refresh(claims *Claims) (string, *Claims, error) {
	now := m.now().UTC()
	next := *claims
	next.IssuedAt = jwt.NewNumericDate(now)
	next.ExpiresAt = jwt.NewNumericDate(now.Add(m.ttl))
	next.ID = uuid.NewString()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &next)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", nil, err
	}
	return signed, &next, nil
}

// SetCookie attaches the session cookie to the response.
func (m *Manager) SetCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  m.now().UTC().Add(m.ttl),
	})
}

// ClearCookie invalidates the session cookie on the client.
func (m *Manager) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// FromRequest extracts the raw session token from the request cookie.
func FromRequest(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(CookieName)
	if err != nil || strings.TrimSpace(cookie.Value) == "" {
		return "", false
	}
	return strings.TrimSpace(cookie.Value), true
}
