package distlock_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emailmind/emailmind/internal/pkg/distlock"
)

func TestRedisLockOwnership(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ctx := context.Background()

	a := distlock.NewRedisLock(client, "scheduler", time.Minute)
	b := distlock.NewRedisLock(client, "scheduler", time.Minute)

	ok, err := a.TryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.TryAcquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	// b never held the lock, so its release must not free a's.
	require.NoError(t, b.Release(ctx))
	ok, err = b.TryAcquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, a.Release(ctx))
	ok, err = b.TryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAdvisoryLockAcquireRelease(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("pg_try_advisory_lock").
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(true))
	mock.ExpectExec("pg_advisory_unlock").
		WillReturnResult(sqlmock.NewResult(0, 1))

	lock := distlock.NewAdvisoryLock(db, "scheduler")
	ctx := context.Background()

	ok, err := lock.TryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	// Re-acquiring while held reports false without touching the DB.
	ok, err = lock.TryAcquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, lock.Release(ctx))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdvisoryLockContended(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("pg_try_advisory_lock").
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(false))

	lock := distlock.NewAdvisoryLock(db, "scheduler")
	ctx := context.Background()

	ok, err := lock.TryAcquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	// Nothing was acquired, so release issues no unlock.
	require.NoError(t, lock.Release(ctx))
	require.NoError(t, mock.ExpectationsWereMet())
}
