package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLock(t *testing.T) (*RedisLock, redismock.ClientMock) {
	t.Helper()
	client, mock := redismock.NewClientMock()
	lock := NewRedisLock(client)
	lock.newToken = func() string { return "token-1" }
	return lock, mock
}

func TestRedisLock_AcquireAndRelease(t *testing.T) {
	lock, mock := newTestLock(t)
	ctx := context.Background()

	mock.ExpectSetNX("reaper:leader", "token-1", time.Minute).SetVal(true)
	mock.ExpectEval(releaseScript, []string{"reaper:leader"}, "token-1").SetVal(int64(1))

	ok, err := lock.Acquire(ctx, "reaper:leader", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, lock.Release(ctx, "reaper:leader"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisLock_HeldElsewhere(t *testing.T) {
	lock, mock := newTestLock(t)
	ctx := context.Background()

	mock.ExpectSetNX("reaper:leader", "token-1", time.Minute).SetVal(false)

	ok, err := lock.Acquire(ctx, "reaper:leader", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	// nothing held, so release does not touch redis
	require.NoError(t, lock.Release(ctx, "reaper:leader"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisLock_AcquireError(t *testing.T) {
	lock, mock := newTestLock(t)

	mock.ExpectSetNX("reaper:leader", "token-1", time.Minute).SetErr(errors.New("connection refused"))

	ok, err := lock.Acquire(context.Background(), "reaper:leader", time.Minute)
	assert.Error(t, err)
	assert.False(t, ok)
}
