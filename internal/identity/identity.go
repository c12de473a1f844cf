// Package identity resolves the caller of each request into a domain.Session.
//
// A bearer token is verified as an HS256 JWT and its role is read from the
// token metadata. Requests without a token run as guests, identified by the
// X-Guest-User-Id header or, failing that, an anonymous per-device cookie.
// A role stored through RoleOverrides always wins over the token role.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/ashureev/eduvane/internal/domain"
	"github.com/ashureev/eduvane/internal/kv"
	"github.com/golang-jwt/jwt/v5"
)

const (
	AnonCookieName   = "eduvane_anon_id"
	GuestHeaderName  = "X-Guest-User-Id"
	anonCookieMaxAge = 30 * 24 * time.Hour
	guestPrefix      = "guest:"
	overridePrefix   = "role_override:"
)

var (
	// ErrAuthNotConfigured is returned when a bearer token arrives but no verification secret is set.
	ErrAuthNotConfigured = errors.New("auth not configured")
	// ErrInvalidToken is returned when a bearer token fails verification.
	ErrInvalidToken = errors.New("invalid or expired token")
)

type contextKey int

const sessionKey contextKey = iota

var (
	anonIDPattern  = regexp.MustCompile(`^anon_[a-f0-9]{32}$`)
	guestIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:@-]{1,128}$`)
)

// WithSession returns a context carrying the session.
func WithSession(ctx context.Context, s domain.Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// RateLimitKey returns the throttling key for a request. Bearer sessions are
// keyed by user; guests choose their own id, so they are keyed by client address.
// Run it after chi's RealIP so RemoteAddr holds the forwarded client IP.
func RateLimitKey(r *http.Request) string {
	if s, ok := FromContext(r.Context()); ok && s.Mode == domain.AuthBearer {
		return "user:" + s.UserID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

// FromContext extracts the session installed by Middleware.
func FromContext(ctx context.Context) (domain.Session, bool) {
	s, ok := ctx.Value(sessionKey).(domain.Session)
	return s, ok && s.UserID != ""
}

// Claims is the bearer token payload.
type Claims struct {
	Email        string         `json:"email,omitempty"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
	AppMetadata  map[string]any `json:"app_metadata,omitempty"`
	jwt.RegisteredClaims
}

// Role reads user_metadata.role, then app_metadata.role.
func (c *Claims) Role() domain.Role {
	for _, meta := range []map[string]any{c.UserMetadata, c.AppMetadata} {
		if raw, ok := meta["role"].(string); ok {
			if role := domain.NormalizeRole(raw); role.Known() {
				return role
			}
		}
	}
	return domain.RoleUnknown
}

// RoleOverrides stores roles chosen explicitly by users.
type RoleOverrides struct {
	store kv.Store
	ttl   time.Duration
}

// NewRoleOverrides creates an override registry. A ttl of zero keeps overrides forever.
func NewRoleOverrides(store kv.Store, ttl time.Duration) *RoleOverrides {
	return &RoleOverrides{store: store, ttl: ttl}
}

// Get returns the override for userID, or RoleUnknown.
func (o *RoleOverrides) Get(ctx context.Context, userID string) (domain.Role, error) {
	raw, err := o.store.Get(ctx, overridePrefix+userID)
	if errors.Is(err, kv.ErrNotFound) {
		return domain.RoleUnknown, nil
	}
	if err != nil {
		return domain.RoleUnknown, fmt.Errorf("get role override: %w", err)
	}
	return domain.NormalizeRole(raw), nil
}

// Set records role for userID. Only TEACHER and STUDENT are accepted.
func (o *RoleOverrides) Set(ctx context.Context, userID string, role domain.Role) error {
	if !role.Known() {
		return fmt.Errorf("role override %q is not TEACHER or STUDENT", role)
	}
	if err := o.store.Set(ctx, overridePrefix+userID, string(role), o.ttl); err != nil {
		return fmt.Errorf("set role override: %w", err)
	}
	return nil
}

// Resolver turns requests into sessions.
type Resolver struct {
	secret    []byte
	overrides *RoleOverrides
	isDev     bool
	logger    *slog.Logger
}

// NewResolver creates a Resolver. An empty secret disables bearer authentication.
func NewResolver(secret string, overrides *RoleOverrides, isDev bool, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		secret:    []byte(secret),
		overrides: overrides,
		isDev:     isDev,
		logger:    logger,
	}
}

// Resolve builds the session for r. It may set the anonymous cookie on w.
func (v *Resolver) Resolve(w http.ResponseWriter, r *http.Request) (domain.Session, error) {
	var sess domain.Session
	if token, ok := bearerToken(r); ok {
		claims, err := v.verify(token)
		if err != nil {
			return domain.Session{}, err
		}
		sess = domain.Session{
			UserID: claims.Subject,
			Email:  claims.Email,
			Role:   claims.Role(),
			Mode:   domain.AuthBearer,
		}
	} else {
		userID, err := guestID(w, r, v.isDev)
		if err != nil {
			return domain.Session{}, err
		}
		sess = domain.Session{UserID: userID, Role: domain.RoleUnknown, Mode: domain.AuthGuest}
	}

	if v.overrides != nil {
		role, err := v.overrides.Get(r.Context(), sess.UserID)
		if err != nil {
			v.logger.Warn("role override lookup failed", "user_id", sess.UserID, "error", err)
		} else if role.Known() {
			sess.Role = role
		}
	}
	return sess, nil
}

func (v *Resolver) verify(token string) (*Claims, error) {
	if len(v.secret) == 0 {
		return nil, ErrAuthNotConfigured
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims, nil
}

// Middleware installs the resolved session in the request context.
func (v *Resolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := v.Resolve(w, r)
		switch {
		case errors.Is(err, ErrAuthNotConfigured):
			writeError(w, http.StatusServiceUnavailable, "Auth is not configured on the server.")
			return
		case errors.Is(err, ErrInvalidToken):
			writeError(w, http.StatusUnauthorized, "Invalid or expired session token.")
			return
		case err != nil:
			v.logger.Error("failed to resolve session", "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to establish session.")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
	})
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = fmt.Fprintf(w, "{%q:%q}\n", "error", message)
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func guestID(w http.ResponseWriter, r *http.Request, isDev bool) (string, error) {
	if raw := strings.TrimSpace(r.Header.Get(GuestHeaderName)); raw != "" && guestIDPattern.MatchString(raw) {
		return guestPrefix + raw, nil
	}
	anonID, err := getOrCreateAnonID(w, r, isDev)
	if err != nil {
		return "", err
	}
	return guestPrefix + anonID, nil
}

func generateAnonID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate anonymous id: %w", err)
	}
	return "anon_" + hex.EncodeToString(buf), nil
}

func getOrCreateAnonID(w http.ResponseWriter, r *http.Request, isDev bool) (string, error) {
	id := ""
	if c, err := r.Cookie(AnonCookieName); err == nil && anonIDPattern.MatchString(c.Value) {
		id = c.Value
	} else {
		if id, err = generateAnonID(); err != nil {
			return "", err
		}
	}

	// Refresh the cookie on every request so active devices keep their identity.
	http.SetCookie(w, &http.Cookie{
		Name:     AnonCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(anonCookieMaxAge.Seconds()),
		Expires:  time.Now().Add(anonCookieMaxAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !isDev,
	})
	return id, nil
}
