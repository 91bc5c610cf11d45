package worker_test

import (
	"sync"
	"testing"
	"time"

	"github.com/matrix-org/peercall/pkg/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorker_HandlesTasksInOrder(t *testing.T) {
	var (
		mutex    sync.Mutex
		received []int
	)

	w := worker.StartWorker(worker.Config[int]{
		ChannelSize: 16,
		Timeout:     time.Hour,
		OnTimeout:   func() {},
		OnTask: func(task int) {
			mutex.Lock()
			defer mutex.Unlock()
			received = append(received, task)
		},
	})

	for i := 0; i < 10; i++ {
		require.NoError(t, w.Send(i))
	}

	w.Stop()
	<-w.Done()

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, received)
}

func TestWorker_SendAfterStop(t *testing.T) {
	w := worker.StartWorker(worker.Config[int]{
		ChannelSize: 1,
		Timeout:     time.Hour,
		OnTimeout:   func() {},
		OnTask:      func(int) {},
	})

	w.Stop()
	w.Stop()

	assert.ErrorIs(t, w.Send(1), worker.ErrWorkerClosed)
}

func TestWorker_TooBusy(t *testing.T) {
	block := make(chan struct{})
	started := make(chan struct{}, 1)

	w := worker.StartWorker(worker.Config[int]{
		ChannelSize: 1,
		Timeout:     time.Hour,
		OnTimeout:   func() {},
		OnTask: func(int) {
			started <- struct{}{}
			<-block
		},
	})
	defer func() {
		close(block)
		w.Stop()
	}()

	require.NoError(t, w.Send(1))
	<-started
	require.NoError(t, w.Send(2))

	assert.ErrorIs(t, w.Send(3), worker.ErrWorkerTooBusy)
}

func TestWorker_TimeoutWhenIdle(t *testing.T) {
	timeouts := make(chan struct{}, 8)

	w := worker.StartWorker(worker.Config[int]{
		ChannelSize: 1,
		Timeout:     10 * time.Millisecond,
		OnTimeout:   func() { timeouts <- struct{}{} },
		OnTask:      func(int) {},
	})
	defer w.Stop()

	select {
	case <-timeouts:
	case <-time.After(time.Second):
		t.Fatal("OnTimeout was not called")
	}
}

func BenchmarkWorker(b *testing.B) {
	workerConfig := worker.Config[struct{}]{
		ChannelSize: 1,
		Timeout:     2 * time.Second,
		OnTimeout:   func() {},
		OnTask:      func(struct{}) {},
	}
	w := worker.StartWorker(workerConfig)

	for n := 0; n < b.N; n++ {
		_ = w.Send(struct{}{})
	}

	w.Stop()
}
