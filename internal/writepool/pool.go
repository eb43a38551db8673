// Package writepool publishes day snapshots on a small set of worker goroutines
// while the caller keeps fetching the next window.
package writepool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"subarchive/pkg/logger"
	"subarchive/pkg/models"
	"subarchive/pkg/snapshot"
	"subarchive/pkg/window"
)

// WriteJob is one window waiting to be written
type WriteJob struct {
	Source string
	Window window.DayWindow
	Posts  []models.Post
}

// WriteResult is the outcome of a write job
type WriteResult struct {
	Job      WriteJob
	Snapshot snapshot.Result
	Error    error
	Duration time.Duration
}

// SnapshotWriter is the part of snapshot.Writer the pool needs
type SnapshotWriter interface {
	Write(source string, win window.DayWindow, posts []models.Post) (snapshot.Result, error)
}

// WorkerPool manages concurrent snapshot writers.
// Each job targets a distinct file, so workers share no mutable state.
type WorkerPool struct {
	numWorkers  int
	jobQueue    chan WriteJob
	resultQueue chan WriteResult
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	writer      SnapshotWriter
	logger      logger.Logger
	stopOnce    sync.Once
}

// NewWorkerPool creates a new write worker pool
func NewWorkerPool(numWorkers int, writer SnapshotWriter, log logger.Logger) *WorkerPool {
	ctx, cancel := context.WithCancel(context.Background())

	if numWorkers < 1 {
		numWorkers = 1
	}
	if log == nil {
		log = logger.GetLogger()
	}

	return &WorkerPool{
		numWorkers:  numWorkers,
		jobQueue:    make(chan WriteJob, numWorkers),
		resultQueue: make(chan WriteResult, numWorkers*2),
		ctx:         ctx,
		cancel:      cancel,
		writer:      writer,
		logger:      log,
	}
}

// Start launches the workers
func (wp *WorkerPool) Start() {
	wp.logger.DebugWithFields("starting write pool", map[string]interface{}{
		"num_workers": wp.numWorkers,
	})

	for i := 0; i < wp.numWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop waits for queued jobs to finish and closes the result channel.
// Results must be drained concurrently or Stop can block.
func (wp *WorkerPool) Stop() {
	wp.stopOnce.Do(func() {
		close(wp.jobQueue)
		wp.wg.Wait()
		close(wp.resultQueue)
		wp.cancel()
		wp.logger.Debug("write pool stopped")
	})
}

// Submit queues a job, blocking while all workers are busy
func (wp *WorkerPool) Submit(ctx context.Context, job WriteJob) error {
	select {
	case wp.jobQueue <- job:
		wp.logger.DebugWithFields("write job queued", map[string]interface{}{
			"source": job.Source,
			"date":   job.Window.Date(),
			"posts":  len(job.Posts),
		})
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-wp.ctx.Done():
		return fmt.Errorf("write pool is shutting down")
	}
}

// Results returns the channel of finished jobs
func (wp *WorkerPool) Results() <-chan WriteResult {
	return wp.resultQueue
}

// Size returns the number of workers
func (wp *WorkerPool) Size() int {
	return wp.numWorkers
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	for job := range wp.jobQueue {
		wp.resultQueue <- wp.processJob(job, id)
	}
}

func (wp *WorkerPool) processJob(job WriteJob, workerID int) WriteResult {
	start := time.Now()
	res, err := wp.writer.Write(job.Source, job.Window, job.Posts)
	result := WriteResult{
		Job:      job,
		Snapshot: res,
		Error:    err,
		Duration: time.Since(start),
	}

	if err != nil {
		wp.logger.ErrorWithFields("worker failed to write snapshot", map[string]interface{}{
			"worker_id": workerID,
			"date":      job.Window.Date(),
			"error":     err.Error(),
		})
		return result
	}

	wp.logger.DebugWithFields("worker wrote snapshot", map[string]interface{}{
		"worker_id": workerID,
		"path":      res.Path,
		"bytes":     res.Bytes,
		"duration":  result.Duration,
	})
	return result
}
