package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emailmind/emailmind/internal/config"
	"github.com/emailmind/emailmind/internal/domain"
)

type stubUserStore struct {
	users    map[string]*domain.User
	apiCalls map[string]int
}

func newStubUserStore(users ...*domain.User) *stubUserStore {
	s := &stubUserStore{users: map[string]*domain.User{}, apiCalls: map[string]int{}}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

func (s *stubUserStore) GetByID(_ context.Context, id string) (*domain.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (s *stubUserStore) IncrementAPICalls(_ context.Context, id string) error {
	s.apiCalls[id]++
	return nil
}

func testManager(users ...*domain.User) (*Manager, *stubUserStore) {
	store := newStubUserStore(users...)
	m := NewManager(config.AuthConfig{SecretKey: "test-secret", TokenTTLMinutes: 30}, store)
	return m, store
}

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("hunter2hunter2")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter2hunter2", hash)
	assert.True(t, CheckPassword(hash, "hunter2hunter2"))
	assert.False(t, CheckPassword(hash, "wrong"))
}

func TestIssueAndVerifyToken(t *testing.T) {
	m, _ := testManager()

	token, expiresAt, err := m.IssueToken("user-1")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(30*time.Minute), expiresAt, 5*time.Second)

	userID, err := m.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
}

func TestVerifyTokenRejectsGarbage(t *testing.T) {
	m, _ := testManager()

	_, err := m.VerifyToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyTokenRejectsWrongSecret(t *testing.T) {
	other := NewManager(config.AuthConfig{SecretKey: "other-secret", TokenTTLMinutes: 30}, newStubUserStore())
	token, _, err := other.IssueToken("user-1")
	require.NoError(t, err)

	m, _ := testManager()
	_, err = m.VerifyToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRequireAuth(t *testing.T) {
	active := &domain.User{ID: "u1", IsActive: true, Tier: domain.TierStarter}
	inactive := &domain.User{ID: "u2", IsActive: false, Tier: domain.TierStarter}
	m, _ := testManager(active, inactive)

	handler := m.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u := UserFrom(r.Context())
		require.NotNil(t, u)
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("no header", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/emails", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("valid token", func(t *testing.T) {
		token, _, err := m.IssueToken("u1")
		require.NoError(t, err)
		req := httptest.NewRequest("GET", "/api/v1/emails", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("inactive user", func(t *testing.T) {
		token, _, err := m.IssueToken("u2")
		require.NoError(t, err)
		req := httptest.NewRequest("GET", "/api/v1/emails", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestEnforceQuota(t *testing.T) {
	within := &domain.User{ID: "u1", IsActive: true, Tier: domain.TierFreeTrial, APICallsThisMonth: 50}
	over := &domain.User{ID: "u2", IsActive: true, Tier: domain.TierFreeTrial, APICallsThisMonth: 100}
	unlimited := &domain.User{ID: "u3", IsActive: true, Tier: domain.TierEnterprise, APICallsThisMonth: 999999}
	m, store := testManager(within, over, unlimited)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := m.RequireAuth(m.EnforceQuota(next))

	call := func(userID string) int {
		token, _, err := m.IssueToken(userID)
		require.NoError(t, err)
		req := httptest.NewRequest("GET", "/api/v1/analytics/overview", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, call("u1"))
	assert.Equal(t, 1, store.apiCalls["u1"])

	assert.Equal(t, http.StatusTooManyRequests, call("u2"))
	assert.Zero(t, store.apiCalls["u2"])

	assert.Equal(t, http.StatusOK, call("u3"))
}
