package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryPushOverflowDropsOldest(t *testing.T) {
	q := New[int](3)
	q.TryPush(1)
	q.TryPush(2)
	q.TryPush(3)
	assert.False(t, q.Overflowed())

	q.TryPush(4) // drops 1
	assert.True(t, q.Overflowed())

	v, ok := q.TryPop()
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestResetOverflow(t *testing.T) {
	q := New[int](1)
	q.TryPush(1)
	q.TryPush(2)
	require.True(t, q.Overflowed())
	q.ResetOverflow()
	assert.False(t, q.Overflowed())
}

func TestTryPopEmpty(t *testing.T) {
	q := New[int](2)
	_, ok := q.TryPop()
	assert.False(t, ok)
}

func TestTakeReturnsImmediatelyWhenAvailable(t *testing.T) {
	q := New[string](2)
	q.TryPush("hello")
	v, err := q.Take(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "hello", v)
}

func TestTakeTimesOut(t *testing.T) {
	q := New[int](2)
	_, err := q.Take(context.Background(), 10*time.Millisecond)
	require.Error(t, err)
}

func TestTakeCancelled(t *testing.T) {
	q := New[int](2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := q.Take(ctx, time.Second)
	require.Error(t, err)
}

func TestTakeUnblocksWhenPushed(t *testing.T) {
	q := New[int](2)
	go func() {
		time.Sleep(5 * time.Millisecond)
		q.TryPush(42)
	}()
	v, err := q.Take(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestClear(t *testing.T) {
	q := New[int](5)
	q.TryPush(1)
	q.TryPush(2)
	q.Clear()
	assert.Equal(t, 0, q.Len())
}
