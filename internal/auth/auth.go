package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/emailmind/emailmind/internal/config"
	"github.com/emailmind/emailmind/internal/domain"
	"github.com/emailmind/emailmind/internal/pkg/httputil"
)

// ErrInvalidToken is returned when a bearer token fails validation.
var ErrInvalidToken = errors.New("invalid token")

// UserStore is the subset of the user repository the auth layer needs.
type UserStore interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	IncrementAPICalls(ctx context.Context, id string) error
}

// Manager issues and validates API tokens and enforces tier quotas.
type Manager struct {
	secret   []byte
	tokenTTL time.Duration
	users    UserStore
}

// NewManager creates an auth manager backed by the given user store.
func NewManager(cfg config.AuthConfig, users UserStore) *Manager {
	return &Manager{
		secret:   []byte(cfg.SecretKey),
		tokenTTL: cfg.TokenTTL(),
		users:    users,
	}
}

// HashPassword hashes a plaintext password with bcrypt.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword compares a plaintext password against a bcrypt hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// IssueToken creates a signed HS256 access token for the user.
func (m *Manager) IssueToken(userID string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(m.tokenTTL)
	claims := jwt.MapClaims{
		"sub": userID,
		"iat": now.Unix(),
		"exp": expiresAt.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// VerifyToken validates a token string and returns the user ID it carries.
func (m *Manager) VerifyToken(tokenStr string) (string, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", ErrInvalidToken
	}
	return sub, nil
}

type contextKey string

const userContextKey contextKey = "emailmind.user"

// UserFrom returns the authenticated user stored in the request context,
// or nil when the request was not authenticated.
func UserFrom(ctx context.Context) *domain.User {
	u, _ := ctx.Value(userContextKey).(*domain.User)
	return u
}

// RequireAuth validates the Authorization bearer token, loads the user, and
// rejects inactive users. The user is stored on the request context.
func (m *Manager) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			httputil.Unauthorized(w, "missing bearer token")
			return
		}
		userID, err := m.VerifyToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			httputil.Unauthorized(w, "invalid or expired token")
			return
		}

		user, err := m.users.GetByID(r.Context(), userID)
		if err != nil || user == nil || !user.IsActive {
			httputil.Unauthorized(w, "user not found or inactive")
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// EnforceQuota counts the API call and rejects the request with 429 when the
// user's tier quota is exhausted. Must run after RequireAuth.
func (m *Manager) EnforceQuota(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := UserFrom(r.Context())
		if user == nil {
			httputil.Unauthorized(w, "unauthorized")
			return
		}

		limits := user.Tier.Limits()
		if limits.APICalls != -1 && user.APICallsThisMonth >= limits.APICalls {
			httputil.TooManyRequests(w, "API call limit exceeded for your subscription tier")
			return
		}
		if limits.EmailsPerMonth != -1 && user.EmailsProcessed >= limits.EmailsPerMonth {
			httputil.TooManyRequests(w, "email processing limit exceeded for your subscription tier")
			return
		}

		if err := m.users.IncrementAPICalls(r.Context(), user.ID); err != nil {
			// Counting failures shouldn't take the API down.
			log.Printf("Auth: failed to count API call for %s: %v", user.ID, err)
		}

		next.ServeHTTP(w, r)
	})
}
