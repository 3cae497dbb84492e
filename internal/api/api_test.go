package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emailmind/emailmind/internal/api"
	"github.com/emailmind/emailmind/internal/auth"
	"github.com/emailmind/emailmind/internal/config"
	"github.com/emailmind/emailmind/internal/domain"
	"github.com/emailmind/emailmind/internal/repository/postgres"
	"github.com/emailmind/emailmind/internal/service/mailbox"
	"github.com/emailmind/emailmind/internal/worker"
)

type memUsers struct {
	mu     sync.Mutex
	byID   map[string]*domain.User
	nextID int
}

func newMemUsers() *memUsers {
	return &memUsers{byID: map[string]*domain.User{}}
}

func (m *memUsers) GetByID(ctx context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return nil, postgres.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (m *memUsers) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, postgres.ErrNotFound
}

func (m *memUsers) Create(ctx context.Context, u *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	u.ID = fmt.Sprintf("user-%d", m.nextID)
	u.CreatedAt = time.Now()
	copied := *u
	m.byID[u.ID] = &copied
	return nil
}

func (m *memUsers) IncrementAPICalls(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.byID[id]; ok {
		u.APICallsThisMonth++
	}
	return nil
}

type memAccounts struct {
	mu     sync.Mutex
	byID   map[string]*domain.EmailAccount
	nextID int
}

func newMemAccounts() *memAccounts {
	return &memAccounts{byID: map[string]*domain.EmailAccount{}}
}

func (m *memAccounts) Get(ctx context.Context, userID, id string) (*domain.EmailAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byID[id]
	if !ok || a.UserID != userID {
		return nil, mailbox.ErrNotFound
	}
	copied := *a
	return &copied, nil
}

func (m *memAccounts) ListByUser(ctx context.Context, userID string) ([]domain.EmailAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.EmailAccount
	for _, a := range m.byID {
		if a.UserID == userID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *memAccounts) Create(ctx context.Context, a *domain.EmailAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	a.ID = fmt.Sprintf("acct-%d", m.nextID)
	copied := *a
	m.byID[a.ID] = &copied
	return nil
}

func (m *memAccounts) Delete(ctx context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byID[id]
	if !ok || a.UserID != userID {
		return mailbox.ErrNotFound
	}
	delete(m.byID, id)
	return nil
}

// memEmails tracks message ownership and soft deletes out of band, the
// way the SQL layer does via the accounts join and deleted_at column.
type memEmails struct {
	mu      sync.Mutex
	byID    map[string]*domain.Email
	owner   map[string]string
	deleted map[string]bool
}

func newMemEmails() *memEmails {
	return &memEmails{
		byID:    map[string]*domain.Email{},
		owner:   map[string]string{},
		deleted: map[string]bool{},
	}
}

func (m *memEmails) add(userID string, e *domain.Email) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[e.ID] = e
	m.owner[e.ID] = userID
}

func (m *memEmails) owned(userID, id string) (*domain.Email, bool) {
	e, ok := m.byID[id]
	if !ok || m.owner[id] != userID || m.deleted[id] {
		return nil, false
	}
	return e, true
}

func (m *memEmails) List(ctx context.Context, userID string, f mailbox.ListFilter) ([]domain.Email, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Email
	for id, e := range m.byID {
		if m.owner[id] != userID || m.deleted[id] || e.IsArchived {
			continue
		}
		if f.UnreadOnly && e.IsRead {
			continue
		}
		if f.Category != "" && e.AICategory != f.Category {
			continue
		}
		out = append(out, *e)
	}
	return out, nil
}

func (m *memEmails) Get(ctx context.Context, userID, id string) (*domain.Email, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.owned(userID, id)
	if !ok {
		return nil, mailbox.ErrNotFound
	}
	copied := *e
	return &copied, nil
}

func (m *memEmails) SetRead(ctx context.Context, userID, id string, read bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.owned(userID, id)
	if !ok {
		return mailbox.ErrNotFound
	}
	e.IsRead = read
	return nil
}

func (m *memEmails) SetImportant(ctx context.Context, userID, id string, important bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.owned(userID, id)
	if !ok {
		return mailbox.ErrNotFound
	}
	e.IsImportant = important
	return nil
}

func (m *memEmails) SetArchived(ctx context.Context, userID, id string, archived bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.owned(userID, id)
	if !ok {
		return mailbox.ErrNotFound
	}
	e.IsArchived = archived
	return nil
}

func (m *memEmails) SoftDelete(ctx context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.owned(userID, id); !ok {
		return mailbox.ErrNotFound
	}
	m.deleted[id] = true
	return nil
}

func (m *memEmails) Stats(ctx context.Context, userID string) (*mailbox.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &mailbox.Stats{ByCategory: map[string]int{}}
	for id, e := range m.byID {
		if m.owner[id] != userID || m.deleted[id] {
			continue
		}
		stats.Total++
		if !e.IsRead {
			stats.Unread++
		}
		if e.IsImportant {
			stats.Important++
		}
	}
	return stats, nil
}

type testEnv struct {
	server *httptest.Server
	users  *memUsers
	emails *memEmails
	queue  *worker.Queue
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	users := newMemUsers()
	emails := newMemEmails()
	queue := worker.NewQueue(client)

	mgr := auth.NewManager(config.AuthConfig{SecretKey: "test-secret", TokenTTLMinutes: 60}, users)
	srv := api.NewServer(api.Config{
		Auth:      mgr,
		Users:     users,
		Mailboxes: mailbox.NewService(newMemAccounts(), emails),
		Queue:     queue,
	})

	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return &testEnv{server: ts, users: users, emails: emails, queue: queue}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func (e *testEnv) signup(t *testing.T, email string) string {
	t.Helper()
	resp, body := e.do(t, http.MethodPost, "/api/v1/auth/signup", "", map[string]string{
		"email":     email,
		"password":  "hunter2hunter2",
		"full_name": "Ada Lovelace",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func TestSignupAndLogin(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "ada@example.com")

	// Duplicate signup is rejected.
	resp, _ := env.do(t, http.MethodPost, "/api/v1/auth/signup", "", map[string]string{
		"email": "ada@example.com", "password": "hunter2hunter2",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body := env.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": "ada@example.com", "password": "hunter2hunter2",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, body["token"])

	resp, _ = env.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": "ada@example.com", "password": "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSignupValidation(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.do(t, http.MethodPost, "/api/v1/auth/signup", "", map[string]string{
		"email": "not-an-email", "password": "hunter2hunter2",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPost, "/api/v1/auth/signup", "", map[string]string{
		"email": "ada@example.com", "password": "short",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.do(t, http.MethodGet, "/api/v1/emails", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = env.do(t, http.MethodGet, "/api/v1/emails", "not-a-real-token", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestMe(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "ada@example.com")

	resp, body := env.do(t, http.MethodGet, "/api/v1/auth/me", token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ada@example.com", body["email"])
	assert.Equal(t, "free_trial", body["subscription_tier"])
}

func TestEmailLifecycle(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "ada@example.com")

	env.emails.add("user-1", &domain.Email{
		ID:          "e1",
		Subject:     "Budget review",
		SenderEmail: "boss@example.com",
		AICategory:  domain.CategoryWork,
	})

	resp, body := env.do(t, http.MethodGet, "/api/v1/emails?category=work", token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, body["total"])

	// Fetching the detail view marks the message read.
	resp, body = env.do(t, http.MethodGet, "/api/v1/emails/e1", token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Budget review", body["subject"])
	assert.True(t, env.emails.byID["e1"].IsRead)

	resp, _ = env.do(t, http.MethodPost, "/api/v1/emails/e1/actions", token, map[string]string{"action": "mark_important"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, env.emails.byID["e1"].IsImportant)

	resp, _ = env.do(t, http.MethodPost, "/api/v1/emails/e1/actions", token, map[string]string{"action": "explode"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.do(t, http.MethodGet, "/api/v1/emails/missing", token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = env.do(t, http.MethodGet, "/api/v1/emails/stats", token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, body["total_emails"])
	assert.EqualValues(t, 1, body["important"])
}

func TestAccountLifecycle(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "ada@example.com")

	resp, body := env.do(t, http.MethodPost, "/api/v1/accounts", token, map[string]any{
		"provider":      "gmail",
		"email_address": "ada@gmail.com",
		"refresh_token": "rt_123",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	accountID, _ := body["id"].(string)
	require.NotEmpty(t, accountID)

	// Missing credentials are rejected.
	resp, _ = env.do(t, http.MethodPost, "/api/v1/accounts", token, map[string]any{
		"provider":      "gmail",
		"email_address": "second@gmail.com",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = env.do(t, http.MethodGet, "/api/v1/accounts", token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, body["total"])

	resp, body = env.do(t, http.MethodPost, "/api/v1/accounts/"+accountID+"/sync", token, nil)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "queued", body["status"])
	depth, err := env.queue.Depth(context.Background(), worker.QueueSync)
	require.NoError(t, err)
	assert.EqualValues(t, 1, depth)

	resp, _ = env.do(t, http.MethodPost, "/api/v1/accounts/missing/sync", token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = env.do(t, http.MethodDelete, "/api/v1/accounts/"+accountID, token, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestPlansCatalogEndpoint(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "ada@example.com")

	resp, body := env.do(t, http.MethodGet, "/api/v1/subscriptions/plans", token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	plans, ok := body["plans"].([]any)
	require.True(t, ok)
	assert.NotEmpty(t, plans)
}

func TestAnalyzeQueuesJobs(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "ada@example.com")

	env.emails.add("user-1", &domain.Email{ID: "e1", Subject: "Invoice"})
	env.emails.add("user-1", &domain.Email{ID: "e2", Subject: "Agenda"})

	resp, body := env.do(t, http.MethodPost, "/api/v1/insights/analyze", token, map[string]string{"email_id": "e1"})
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "queued", body["status"])

	resp, _ = env.do(t, http.MethodPost, "/api/v1/insights/analyze-batch", token, map[string]any{"email_ids": []string{"e1", "e2"}})
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPost, "/api/v1/insights/analyze", token, map[string]string{"email_id": "nope"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	depth, err := env.queue.Depth(context.Background(), worker.QueueAIAnalysis)
	require.NoError(t, err)
	assert.EqualValues(t, 3, depth)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	resp, body := env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}
