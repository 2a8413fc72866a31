package bus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scalper/pkg/exception"
)

func TestQueueFIFOAndFull(t *testing.T) {
	q := NewQueue[int](2)
	require.NoError(t, q.TryPublish(1))
	require.NoError(t, q.TryPublish(2))
	assert.ErrorIs(t, q.TryPublish(3), exception.ErrStorageQueueFull)
	assert.Equal(t, 2, q.Len())

	v, ok := q.TryPop()
	require.True(t, ok)
	assert.Equal(t, 1, v)
	v, ok = q.TryPop()
	require.True(t, ok)
	assert.Equal(t, 2, v)
	_, ok = q.TryPop()
	assert.False(t, ok)
}

func TestQueueClose(t *testing.T) {
	q := NewQueue[string](4)
	require.NoError(t, q.TryPublish("a"))
	q.Close()
	q.Close()
	assert.True(t, q.Closed())
	assert.ErrorIs(t, q.TryPublish("b"), exception.ErrStorageQueueClosed)

	var got []string
	q.Run(context.Background(), func(s string) { got = append(got, s) })
	assert.Equal(t, []string{"a"}, got)
}

func TestQueueRunStopsOnContext(t *testing.T) {
	q := NewQueue[int](1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	q.Run(ctx, func(int) { t.Fatal("handler called after cancel") })
}
