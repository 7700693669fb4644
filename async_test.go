package ormkit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsync_SingleJoinedErrorIsUnwrapped(t *testing.T) {
	conn, _ := newMockConn(t)
	errBoom := errors.New("boom")
	ctx, scope := UseResultsFilter(context.Background(), &CannedResults{
		ScalarFn: func(*Command) (any, error) { return nil, errors.Join(errBoom) },
	})
	defer scope.Close()

	_, err := ScalarAsync[int64](ctx, conn, "SELECT 1").Wait(context.Background())
	if err != errBoom {
		t.Errorf("Expected the inner error, got %#v", err)
	}

	_, err = Scalar[int64](ctx, conn, "SELECT 1")
	assert.ErrorIs(t, err, errBoom)
	assert.NotSame(t, errBoom, err)
}

func TestAsync_Results(t *testing.T) {
	db := getUsersDB(t)
	ctx := context.Background()

	count := ScalarAsync[int64](ctx, db, "SELECT COUNT(*) FROM users")
	n, err := count.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	users, err := ListAsync[TestUser](ctx, db, "SELECT * FROM users ORDER BY id").Wait(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 3)

	bob, err := SingleAsync[TestUser](ctx, db, "SELECT * FROM users WHERE name = ?", "Bob").Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, 25, bob.Age)

	affected, err := ExecAsync(ctx, db, "UPDATE users SET active = ?", true).Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), affected)

	select {
	case <-count.Done():
	default:
		t.Error("Done should be closed after Wait returned")
	}
}

func TestAsync_WaitCancelled(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	f := goAsync(func() (int, error) {
		<-release
		return 1, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := f.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAsync_PanicBecomesError(t *testing.T) {
	f := goAsync(func() (int, error) { panic("kaboom") })

	_, err := f.Wait(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")
}
