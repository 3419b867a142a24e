package utils

import (
	"sync"
)

// Job represents a task to be executed by a worker.
type Job struct {
	Task func()
}

// WorkerPool manages a pool of workers to execute jobs.
type WorkerPool struct {
	workers   int
	jobQueue  chan Job
	waitGroup sync.WaitGroup
	closeOnce sync.Once
}

// NewWorkerPool creates a new WorkerPool with the specified number of workers.
// At least one worker is always started.
func NewWorkerPool(workers int) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	pool := &WorkerPool{
		workers:  workers,
		jobQueue: make(chan Job, workers),
	}

	pool.waitGroup.Add(workers)
	for i := 0; i < workers; i++ {
		go pool.worker()
	}

	return pool
}

// worker processes jobs from the jobQueue.
func (wp *WorkerPool) worker() {
	defer wp.waitGroup.Done()
	for job := range wp.jobQueue {
		job.Task()
	}
}

// Submit adds a new job to the worker pool.
func (wp *WorkerPool) Submit(task func()) {
	wp.jobQueue <- Job{Task: task}
}

// Shutdown waits for all submitted jobs to finish and stops the workers.
// It is safe to call more than once.
func (wp *WorkerPool) Shutdown() {
	wp.closeOnce.Do(func() {
		close(wp.jobQueue)
	})
	wp.waitGroup.Wait()
}

// Collect runs every task on a pool of the given size and returns the
// results in task order.
func Collect[T any](workers int, tasks []func() T) []T {
	results := make([]T, len(tasks))
	pool := NewWorkerPool(min(workers, len(tasks)))
	for i, task := range tasks {
		pool.Submit(func() {
			results[i] = task()
		})
	}
	pool.Shutdown()
	return results
}
