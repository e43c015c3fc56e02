// Package utils carries small concurrency helpers shared across transports.
// WorkerPool is adapted from the teacher's internal/worker.go: a fixed pool
// of goroutines pulling tasks off a shared channel, supervised by the same
// gopkg.in/tomb.v2 lifecycle used everywhere else in this repo.
package utils

import (
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

// TaskChanSize bounds how many pending connections may queue for a worker.
const TaskChanSize = 100

// WorkerFunction processes one task; an error return is fatal to that
// worker (the tomb propagates it to sibling goroutines).
type WorkerFunction = func(t *tomb.Tomb, task any) error

// WorkerPool runs a fixed number of goroutines, each repeatedly pulling a
// task from tasks and invoking work on it.
type WorkerPool struct {
	n     int
	tasks chan any
}

// NewWorkerPool constructs a pool of size workers.
func NewWorkerPool(size int) WorkerPool {
	return WorkerPool{
		tasks: make(chan any, TaskChanSize),
		n:     size,
	}
}

// AddTask enqueues a task for the pool to pick up. Blocks if the queue is
// full; callers on the accept loop are expected to size the queue generously
// enough that this is rare.
func (pool *WorkerPool) AddTask(task any) {
	pool.tasks <- task
}

// Setup spawns pool.n workers under t, each running work against tasks
// pulled from the shared queue until t is dying.
func (pool *WorkerPool) Setup(t *tomb.Tomb, work WorkerFunction) {
	log.Info().Int("workers", pool.n).Msg("worker pool starting")
	for i := 0; i < pool.n; i++ {
		t.Go(func() error {
			return pool.worker(t, work)
		})
	}
}

func (pool *WorkerPool) worker(t *tomb.Tomb, work WorkerFunction) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case task := <-pool.tasks:
			if err := work(t, task); err != nil {
				log.Error().Err(err).Msg("worker pool: task handler returned error")
				return err
			}
		}
	}
}
