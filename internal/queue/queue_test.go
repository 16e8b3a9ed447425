package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriorityOrder(t *testing.T) {
	q := NewInMemoryQueue()
	require.NoError(t, q.Push(NewTask("https://x.test/low", 1)))
	require.NoError(t, q.Push(NewTask("https://x.test/high-1", 5)))
	require.NoError(t, q.Push(NewTask("https://x.test/high-2", 5)))
	require.NoError(t, q.Push(NewTask("https://x.test/mid", 3)))

	var got []string
	for q.Size() > 0 {
		task, err := q.Pop(context.Background())
		require.NoError(t, err)
		got = append(got, task.URL)
	}

	assert.Equal(t, []string{
		"https://x.test/high-1",
		"https://x.test/high-2",
		"https://x.test/mid",
		"https://x.test/low",
	}, got)
}

func TestPopBlocksUntilPush(t *testing.T) {
	q := NewInMemoryQueue()

	result := make(chan *Task)
	go func() {
		task, _ := q.Pop(context.Background())
		result <- task
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, q.Push(NewTask("https://x.test/late", 0)))

	select {
	case task := <-result:
		assert.Equal(t, "https://x.test/late", task.URL)
	case <-time.After(time.Second):
		t.Fatal("Pop did not wake up")
	}
}

func TestPopHonoursContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := NewInMemoryQueue().Pop(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCloseDrainsThenFails(t *testing.T) {
	q := NewInMemoryQueue()
	require.NoError(t, q.Push(NewTask("https://x.test/1", 0)))
	require.NoError(t, q.Close())

	assert.ErrorIs(t, q.Push(NewTask("https://x.test/2", 0)), ErrQueueClosed)

	task, err := q.Pop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://x.test/1", task.URL)

	_, err = q.Pop(context.Background())
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestCloseWakesAllWaiters(t *testing.T) {
	q := NewInMemoryQueue()

	var wg sync.WaitGroup
	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := q.Pop(context.Background())
			errs <- err
		}()
	}

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, q.Close())
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.ErrorIs(t, err, ErrQueueClosed)
	}
}

func TestTryPop(t *testing.T) {
	q := NewInMemoryQueue()
	_, err := q.TryPop()
	assert.ErrorIs(t, err, ErrQueueEmpty)
}

func TestBatchQueue(t *testing.T) {
	q := NewInMemoryQueue()
	b := NewBatchQueue(q, 2)

	require.NoError(t, b.PushBatch([]*Task{
		NewTask("https://x.test/1", 0),
		NewTask("https://x.test/2", 0),
		NewTask("https://x.test/3", 0),
	}))

	first, err := b.PopBatch(context.Background())
	require.NoError(t, err)
	assert.Len(t, first, 2)

	second, err := b.PopBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, "https://x.test/3", second[0].URL)

	require.NoError(t, q.Close())
	_, err = b.PopBatch(context.Background())
	assert.ErrorIs(t, err, ErrQueueClosed)
}
