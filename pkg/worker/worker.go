package worker

import (
	"errors"
	"sync"
	"time"
)

// Errors that may occur when sending tasks to a worker.
var (
	ErrWorkerClosed  = errors.New("worker is closed")
	ErrWorkerTooBusy = errors.New("worker is already overloaded")
)

// Configuration for the worker.
type Config[T any] struct {
	// The size of the bounded task queue.
	ChannelSize int
	// Idle time after which `OnTimeout` is called. The timer restarts after every task.
	Timeout time.Duration
	// Called once `Timeout` elapsed without any task. Runs on the worker goroutine.
	OnTimeout func()
	// Called for every task, in the order the tasks have been sent.
	OnTask func(T)
}

// Worker executes tasks one by one on a dedicated goroutine. Since there is exactly one
// consumer, tasks sent by the same goroutine are handled in send order.
type Worker[T any] struct {
	channel chan<- T
	mutex   sync.Mutex
	closed  bool
	done    <-chan struct{}
}

// Starts a worker goroutine. The worker handles every queued task and stops once `Stop`
// has been called and the queue is empty.
func StartWorker[T any](c Config[T]) *Worker[T] {
	incoming := make(chan T, c.ChannelSize)
	done := make(chan struct{})

	go func() {
		defer close(done)

		timer := time.NewTimer(c.Timeout)
		defer timer.Stop()

		for {
			select {
			case task, ok := <-incoming:
				if !ok {
					return
				}
				c.OnTask(task)
			case <-timer.C:
				c.OnTimeout()
			}

			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(c.Timeout)
		}
	}()

	return &Worker[T]{channel: incoming, done: done}
}

// Queues a task without blocking. Returns `ErrWorkerTooBusy` if the queue is full
// and `ErrWorkerClosed` once the worker has been stopped.
func (w *Worker[T]) Send(task T) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.closed {
		return ErrWorkerClosed
	}

	select {
	case w.channel <- task:
		return nil
	default:
		return ErrWorkerTooBusy
	}
}

// Stops accepting tasks. Tasks that are already queued are still handled.
func (w *Worker[T]) Stop() {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if !w.closed {
		close(w.channel)
		w.closed = true
	}
}

// Closed once the worker goroutine has returned.
func (w *Worker[T]) Done() <-chan struct{} {
	return w.done
}
