package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emailmind/emailmind/internal/domain"
	"github.com/emailmind/emailmind/internal/ingest"
	"github.com/emailmind/emailmind/internal/worker"
)

func newTestQueue(t *testing.T) *worker.Queue {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return worker.NewQueue(client)
}

type memAccounts struct {
	mu       sync.Mutex
	accounts map[string]*domain.EmailAccount
	synced   map[string]int
}

func newMemAccounts(accounts ...*domain.EmailAccount) *memAccounts {
	m := &memAccounts{accounts: make(map[string]*domain.EmailAccount), synced: make(map[string]int)}
	for _, a := range accounts {
		m.accounts[a.ID] = a
	}
	return m
}

func (m *memAccounts) Get(ctx context.Context, userID, id string) (*domain.EmailAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok || a.UserID != userID {
		return nil, errors.New("account not found")
	}
	cp := *a
	return &cp, nil
}

func (m *memAccounts) ListActiveByUser(ctx context.Context, userID string) ([]domain.EmailAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.EmailAccount
	for _, a := range m.accounts {
		if a.UserID == userID && a.IsActive {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *memAccounts) MarkSynced(ctx context.Context, id string, added int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.synced[id] += added
	return nil
}

func (m *memAccounts) OwnerOf(ctx context.Context, accountID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[accountID]
	if !ok {
		return "", errors.New("account not found")
	}
	return a.UserID, nil
}

type memEmails struct {
	mu        sync.Mutex
	emails    map[string]*domain.Email
	byMessage map[string]string
	annotated map[string]domain.EmailAnalysis
	failed    map[string]string
	threads   []domain.Thread
	seq       int
}

func newMemEmails() *memEmails {
	return &memEmails{
		emails:    make(map[string]*domain.Email),
		byMessage: make(map[string]string),
		annotated: make(map[string]domain.EmailAnalysis),
		failed:    make(map[string]string),
	}
}

func (m *memEmails) Get(ctx context.Context, userID, id string) (*domain.Email, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.emails[id]
	if !ok {
		return nil, errors.New("email not found")
	}
	cp := *e
	return &cp, nil
}

func (m *memEmails) ExistsByMessageID(ctx context.Context, accountID, messageID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.byMessage[accountID+"/"+messageID]
	return ok, nil
}

func (m *memEmails) Create(ctx context.Context, e *domain.Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	if e.ID == "" {
		e.ID = string(rune('a' + m.seq))
	}
	cp := *e
	m.emails[e.ID] = &cp
	m.byMessage[e.AccountID+"/"+e.MessageID] = e.ID
	return nil
}

func (m *memEmails) SetAnnotations(ctx context.Context, id string, a domain.EmailAnalysis) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.annotated[id] = a
	return nil
}

func (m *memEmails) MarkFailed(ctx context.Context, id, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed[id] = reason
	return nil
}

func (m *memEmails) ListFailedSince(ctx context.Context, since time.Time, limit int) ([]domain.Email, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Email
	for id := range m.failed {
		if e, ok := m.emails[id]; ok {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (m *memEmails) UpsertThread(ctx context.Context, t *domain.Thread) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.threads = append(m.threads, *t)
	return nil
}

type memSyncUsers struct {
	mu        sync.Mutex
	touched   map[string]int
	processed map[string]int
}

func newMemSyncUsers() *memSyncUsers {
	return &memSyncUsers{touched: make(map[string]int), processed: make(map[string]int)}
}

func (m *memSyncUsers) TouchEmailSync(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touched[id]++
	return nil
}

func (m *memSyncUsers) AddEmailsProcessed(ctx context.Context, id string, n int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.processed[id] += n
	return nil
}

type stubFetcher struct {
	messages []ingest.Message
	err      error
}

func (f *stubFetcher) Fetch(ctx context.Context, account *domain.EmailAccount, since time.Time, max int) ([]ingest.Message, error) {
	return f.messages, f.err
}

func (f *stubFetcher) Verify(ctx context.Context, account *domain.EmailAccount) error { return f.err }

func TestQueueRoundTrip(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	job := worker.NewJob(worker.QueueSync, worker.JobSyncAccount, "u1")
	job.AccountID = "a1"
	require.NoError(t, q.Enqueue(ctx, job))

	depth, err := q.Depth(ctx, worker.QueueSync)
	require.NoError(t, err)
	assert.Equal(t, int64(1), depth)

	got, err := q.Dequeue(ctx, worker.QueueSync, time.Second)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, "a1", got.AccountID)
}

func TestQueuePromoteDelayed(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	due := worker.NewJob(worker.QueueAIAnalysis, worker.JobAnalyzeEmail, "u1")
	future := worker.NewJob(worker.QueueAIAnalysis, worker.JobAnalyzeEmail, "u2")
	require.NoError(t, q.EnqueueDelayed(ctx, due, -time.Second))
	require.NoError(t, q.EnqueueDelayed(ctx, future, time.Hour))

	promoted, err := q.PromoteDelayed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, promoted)

	got, err := q.Dequeue(ctx, worker.QueueAIAnalysis, time.Second)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "u1", got.UserID)

	delayed, err := q.DelayedDepth(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), delayed)
}

func TestSyncAccountStoresAndQueues(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	account := &domain.EmailAccount{ID: "a1", UserID: "u1", Provider: domain.ProviderGmail, EmailAddress: "u@example.com", IsActive: true}
	accounts := newMemAccounts(account)
	emails := newMemEmails()
	users := newMemSyncUsers()

	registry := ingest.NewRegistry()
	registry.Register(domain.ProviderGmail, &stubFetcher{messages: []ingest.Message{
		{MessageID: "m1", ThreadID: "t1", Subject: "hello", SenderEmail: "a@b.c", Recipients: []string{"u@example.com"}},
		{MessageID: "m2", Subject: "again", SenderEmail: "a@b.c"},
	}})

	p := worker.NewSyncProcessor(registry, accounts, emails, users, q, nil, nil, 50)

	stored, err := p.SyncAccount(ctx, "u1", "a1")
	require.NoError(t, err)
	assert.Equal(t, 2, stored)
	assert.Equal(t, 2, accounts.synced["a1"])
	assert.Equal(t, 1, users.touched["u1"])
	assert.Equal(t, 2, users.processed["u1"])

	// One thread for m1; m2 has no thread id.
	require.Len(t, emails.threads, 1)
	assert.Equal(t, "t1", emails.threads[0].ProviderThreadID)
	assert.Equal(t, []string{"a@b.c", "u@example.com"}, emails.threads[0].Participants)

	depth, err := q.Depth(ctx, worker.QueueAIAnalysis)
	require.NoError(t, err)
	assert.Equal(t, int64(2), depth)

	// Second run sees both messages already stored.
	stored, err = p.SyncAccount(ctx, "u1", "a1")
	require.NoError(t, err)
	assert.Equal(t, 0, stored)
}

type stubAnalyzer struct {
	analysis *domain.EmailAnalysis
	err      error
	calls    int
}

func (s *stubAnalyzer) AnalyzeEmail(ctx context.Context, subject, body string) (*domain.EmailAnalysis, error) {
	s.calls++
	return s.analysis, s.err
}

func (s *stubAnalyzer) Complete(ctx context.Context, system, prompt string, maxTokens int, temperature float64) (string, error) {
	return "", s.err
}

func TestAIWorkerAnnotates(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	emails := newMemEmails()
	require.NoError(t, emails.Create(ctx, &domain.Email{ID: "e1", AccountID: "a1", Subject: "review", BodyText: "please review"}))

	analyzer := &stubAnalyzer{analysis: &domain.EmailAnalysis{Category: "work", Priority: "high", Sentiment: "neutral"}}
	w := worker.NewAIWorker(analyzer, emails, newMemAccounts(), q)

	job := worker.NewJob(worker.QueueAIAnalysis, worker.JobAnalyzeEmail, "u1")
	job.EmailID = "e1"
	require.NoError(t, w.Process(ctx, job))

	assert.Equal(t, 1, analyzer.calls)
	assert.Equal(t, domain.CategoryWork, emails.annotated["e1"].Category)
}

func TestAIWorkerRetriesThenFails(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	emails := newMemEmails()
	require.NoError(t, emails.Create(ctx, &domain.Email{ID: "e1", AccountID: "a1"}))

	analyzer := &stubAnalyzer{err: errors.New("rate limited")}
	w := worker.NewAIWorker(analyzer, emails, newMemAccounts(), q)

	job := worker.NewJob(worker.QueueAIAnalysis, worker.JobAnalyzeEmail, "u1")
	job.EmailID = "e1"

	// First two failures schedule retries.
	require.NoError(t, w.Process(ctx, job))
	require.NoError(t, w.Process(ctx, job))
	delayed, err := q.DelayedDepth(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), delayed)
	assert.Empty(t, emails.failed)

	// Third failure exhausts the budget.
	require.NoError(t, w.Process(ctx, job))
	assert.Equal(t, "rate limited", emails.failed["e1"])
}

func TestReprocessFailed(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	account := &domain.EmailAccount{ID: "a1", UserID: "u1", IsActive: true}
	accounts := newMemAccounts(account)
	emails := newMemEmails()
	require.NoError(t, emails.Create(ctx, &domain.Email{ID: "e1", AccountID: "a1"}))
	require.NoError(t, emails.MarkFailed(ctx, "e1", "boom"))

	w := worker.NewAIWorker(&stubAnalyzer{}, emails, accounts, q)
	queued, err := w.ReprocessFailed(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, queued)

	got, err := q.Dequeue(ctx, worker.QueueAIAnalysis, time.Second)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, "e1", got.EmailID)
}

type stubLock struct{ held bool }

func (l *stubLock) TryAcquire(ctx context.Context) (bool, error) { return !l.held, nil }
func (l *stubLock) Release(ctx context.Context) error            { l.held = false; return nil }

type stubSchedulerUsers struct {
	due    []domain.User
	resets int
}

func (s *stubSchedulerUsers) ListSyncDue(ctx context.Context, staleAfter time.Duration, limit int) ([]domain.User, error) {
	return s.due, nil
}

func (s *stubSchedulerUsers) ResetMonthlyAPICounters(ctx context.Context) (int64, error) {
	s.resets++
	return int64(len(s.due)), nil
}

func TestSchedulerEnqueuesStaleAccounts(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	accounts := newMemAccounts(
		&domain.EmailAccount{ID: "a1", UserID: "u1", IsActive: true},
		&domain.EmailAccount{ID: "a2", UserID: "u1", IsActive: true},
		&domain.EmailAccount{ID: "a3", UserID: "u1", IsActive: false},
	)
	users := &stubSchedulerUsers{due: []domain.User{{ID: "u1"}}}

	s := worker.NewScheduler(users, accounts, q, nil, &stubLock{}, time.Hour, time.Hour, 100)
	s.Tick(ctx)

	depth, err := q.Depth(ctx, worker.QueueSync)
	require.NoError(t, err)
	assert.Equal(t, int64(2), depth)

	// Scheduler start skips the monthly reset.
	assert.Equal(t, 0, users.resets)
}
