package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryQueue_PriorityThenFIFO(t *testing.T) {
	q := NewInMemoryQueue(0)
	require.NoError(t, q.Push(&Task{ID: "a"}))
	require.NoError(t, q.Push(&Task{ID: "b", Priority: 5}))
	require.NoError(t, q.Push(&Task{ID: "c"}))
	require.NoError(t, q.Push(&Task{ID: "d", Priority: 5}))
	assert.Equal(t, 4, q.Size())

	ctx := context.Background()
	var order []string
	for i := 0; i < 4; i++ {
		task, err := q.Pop(ctx)
		require.NoError(t, err)
		assert.False(t, task.CreatedAt.IsZero())
		order = append(order, task.ID)
	}
	assert.Equal(t, []string{"b", "d", "a", "c"}, order)
}

func TestInMemoryQueue_Full(t *testing.T) {
	q := NewInMemoryQueue(1)
	require.NoError(t, q.Push(&Task{ID: "a"}))
	assert.ErrorIs(t, q.Push(&Task{ID: "b"}), ErrQueueFull)
}

func TestInMemoryQueue_PopBlocksUntilPush(t *testing.T) {
	q := NewInMemoryQueue(0)
	got := make(chan *Task, 1)

	go func() {
		task, err := q.Pop(context.Background())
		if err == nil {
			got <- task
		}
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, q.Push(&Task{ID: "late"}))

	select {
	case task := <-got:
		assert.Equal(t, "late", task.ID)
	case <-time.After(time.Second):
		t.Fatal("pop did not return after push")
	}
}

func TestInMemoryQueue_ContextCancel(t *testing.T) {
	q := NewInMemoryQueue(0)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := q.Pop(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestInMemoryQueue_CloseDrains(t *testing.T) {
	q := NewInMemoryQueue(0)
	require.NoError(t, q.Push(&Task{ID: "a"}))
	require.NoError(t, q.Close())

	assert.ErrorIs(t, q.Push(&Task{ID: "b"}), ErrQueueClosed)

	task, err := q.Pop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a", task.ID)

	_, err = q.Pop(context.Background())
	assert.ErrorIs(t, err, ErrQueueClosed)
}
