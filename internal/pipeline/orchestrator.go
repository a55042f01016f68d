package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgallion1/splgest/internal/chunker"
	"github.com/dgallion1/splgest/internal/config"
)

// Orchestrator manages the label ingestion pipeline.
type Orchestrator struct {
	jobs   *JobStore
	queue  chan *Job
	store  LabelStore
	index  Indexer
	stats  *ExtractStats
	log    *slog.Logger
	cfg    config.Config
	wopts  WorkerOptions
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex // guards stopped and the queue close
	stopped bool
}

// ErrStopped is returned by Submit once the orchestrator has been stopped.
var ErrStopped = errors.New("pipeline is shutting down")

// NewOrchestrator creates the pipeline. idx may be nil.
func NewOrchestrator(cfg config.Config, st LabelStore, idx Indexer, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		jobs:  NewJobStore(cfg.JobTTL),
		queue: make(chan *Job, cfg.MaxQueueSize),
		store: st,
		index: idx,
		stats: NewExtractStats(time.Hour),
		log:   log,
		cfg:   cfg,
		wopts: WorkerOptions{
			Concurrency:   cfg.ExtractConcurrency,
			MaxEntryBytes: cfg.MaxEntryBytes,
			Passages: chunker.Config{
				Words:    cfg.PassageWords,
				Overlap:  cfg.PassageOverlap,
				MinWords: 3,
			},
		},
	}
}

// NewWorker builds a worker sharing the orchestrator's collaborators.
func (o *Orchestrator) NewWorker() *Worker {
	return NewWorker(o.store, o.index, o.stats, o.log, o.wopts)
}

// Start launches worker goroutines.
func (o *Orchestrator) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	for range o.cfg.WorkerCount {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			w := o.NewWorker()
			for {
				select {
				case <-workerCtx.Done():
					return
				case job, ok := <-o.queue:
					if !ok {
						return
					}
					w.Process(workerCtx, job)
				}
			}
		}()
	}

	// Start job store cleanup.
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				o.jobs.Cleanup()
			}
		}
	}()
}

// Stop gracefully shuts down the pipeline.
func (o *Orchestrator) Stop() {
	if o.cancel != nil {
		o.cancel()
	}
	o.mu.Lock()
	if !o.stopped {
		o.stopped = true
		close(o.queue)
	}
	o.mu.Unlock()
	o.wg.Wait()
}

// Submit queues a new job for processing.
func (o *Orchestrator) Submit(job *Job) error {
	o.mu.RLock()
	defer o.mu.RUnlock()

	o.jobs.Put(job)
	if o.stopped {
		job.SetStatus(StatusFailed, "shutdown")
		return ErrStopped
	}
	select {
	case o.queue <- job:
		return nil
	default:
		job.SetStatus(StatusFailed, "queue_full")
		return fmt.Errorf("job queue is full (%d)", o.cfg.MaxQueueSize)
	}
}

// GetJob returns a job by ID.
func (o *Orchestrator) GetJob(id string) *Job {
	return o.jobs.Get(id)
}

// QueueDepth returns current queue depth.
func (o *Orchestrator) QueueDepth() int {
	return len(o.queue)
}

// Stats returns the extraction latency tracker.
func (o *Orchestrator) Stats() *ExtractStats {
	return o.stats
}

// IndexEnabled reports whether labels are pushed to a search index.
func (o *Orchestrator) IndexEnabled() bool {
	return o.index != nil
}
