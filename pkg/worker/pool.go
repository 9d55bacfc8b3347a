// Package worker provides an asynchronous worker pool that writes settled
// chats to the local cache and publishes reply events.
//
// The pool decouples cache and event stream I/O from the streaming path so a
// slow disk or broker never delays the transcript.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/localmind/smriti/pkg/chat"
	"github.com/localmind/smriti/pkg/eventstream"
	"github.com/localmind/smriti/pkg/logger"
	"github.com/localmind/smriti/pkg/storage"
)

// ErrClosed is returned by Run once the pool has been closed.
var ErrClosed = errors.New("worker pool closed")

var (
	// One worker keeps cache writes for a chat in enqueue order.
	defaultNumWorkers   uint = 1
	defaultJobQueueSize uint = 256
	defaultJobTimeout        = 10 * time.Second
)

// Job is a unit of work for the worker pool to execute against. Any
// combination of fields may be set. Cache writes run in field order:
// ClearAll, Replace, DeleteID, then Chat.
type Job struct {
	// ClearAll empties the cache.
	ClearAll bool

	// Replace swaps the whole cache contents for Chats.
	Replace bool
	Chats   []chat.Chat

	// Chat, if set, is written to the cache.
	Chat *chat.Chat

	// DeleteID, if set, is removed from the cache.
	DeleteID string

	// Event, if set, is published.
	Event *eventstream.ReplyEvent

	done chan<- error
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Driver is the chat cache. Nil disables cache writes.
	Driver storage.Driver

	// Publisher receives reply events. Nil disables publishing.
	Publisher eventstream.Publisher

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	// JobTimeout bounds the I/O of a single job (defaults to 10s).
	JobTimeout time.Duration

	Logger *slog.Logger
}

// Pool processes cache and event jobs asynchronously.
type Pool struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.JobTimeout <= 0 {
		c.JobTimeout = defaultJobTimeout
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	wp := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		logger: logger.OrNop(c.Logger),
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits a job for processing by the worker pool.
// Returns true if enqueued, false if the queue is full, resulting in the job being dropped
func (p *Pool) Enqueue(job Job) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.logger.Error("job not queued, pool closed", jobAttrs(job)...)
		return false
	}

	select {
	case p.queue <- job:
		p.logger.Debug("job queued", jobAttrs(job)...)
		return true
	default:
		p.logger.Error("job not queued, queue full, job dropped", jobAttrs(job)...)
		return false
	}
}

// Run queues job behind everything already enqueued, blocking while the
// queue is full, and waits for its cache writes. The event, if any, is still
// published best effort.
func (p *Pool) Run(ctx context.Context, job Job) error {
	done := make(chan error, 1)
	job.done = done

	if err := p.submit(ctx, job); err != nil {
		return err
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) submit(ctx context.Context, job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrClosed
	}

	select {
	case p.queue <- job:
		p.logger.Debug("job queued", jobAttrs(job)...)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close signals workers to stop and waits for in-flight jobs to drain.
// It is safe to call more than once. Jobs submitted afterwards are refused.
func (p *Pool) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	p.wg.Wait()
}

// worker is the inner worker thread that continuously pulls jobs off the jobs queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", "worker_id", id)

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("worker stopped", "worker_id", id)
}

// processJob runs each part of a job. Failures are logged. Only a job
// submitted through Run hands its cache error back.
func (p *Pool) processJob(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), p.config.JobTimeout)
	defer cancel()

	err := p.writeCache(ctx, job)
	if err != nil {
		p.logger.Warn("cache write failed", append(jobAttrs(job), "error", err)...)
	}
	if job.done != nil {
		job.done <- err
	}

	if job.Event != nil && p.config.Publisher != nil {
		if err := p.config.Publisher.PublishReply(ctx, job.Event); err != nil {
			p.logger.Warn("reply event not published", append(jobAttrs(job), "error", err)...)
		}
	}
}

func (p *Pool) writeCache(ctx context.Context, job Job) error {
	if p.config.Driver == nil {
		return nil
	}

	if job.ClearAll {
		if err := p.config.Driver.DeleteAll(ctx); err != nil {
			return fmt.Errorf("clearing cache: %w", err)
		}
	}

	if job.Replace {
		if err := p.config.Driver.Replace(ctx, job.Chats); err != nil {
			return fmt.Errorf("replacing cached chats: %w", err)
		}
		p.logger.Debug("cache replaced", "chats", len(job.Chats))
	}

	if job.DeleteID != "" {
		err := p.config.Driver.Delete(ctx, job.DeleteID)
		if err != nil && !storage.IsNotFound(err) {
			return fmt.Errorf("deleting cached chat: %w", err)
		}
	}

	if job.Chat == nil {
		return nil
	}
	if job.Chat.ID == "" {
		return errors.New("chat has no backend id yet")
	}

	if err := p.config.Driver.Put(ctx, *job.Chat); err != nil {
		return fmt.Errorf("caching chat: %w", err)
	}

	p.logger.Debug("chat cached",
		"chat_id", job.Chat.ID,
		"messages", len(job.Chat.Messages),
	)
	return nil
}

func jobAttrs(job Job) []any {
	var attrs []any
	if job.ClearAll {
		attrs = append(attrs, "clear_all", true)
	}
	if job.Replace {
		attrs = append(attrs, "replace", len(job.Chats))
	}
	if job.Chat != nil {
		attrs = append(attrs, "chat_id", job.Chat.ID)
	}
	if job.DeleteID != "" {
		attrs = append(attrs, "delete_id", job.DeleteID)
	}
	if job.Event != nil {
		attrs = append(attrs, "event_type", job.Event.EventType)
	}
	return attrs
}
