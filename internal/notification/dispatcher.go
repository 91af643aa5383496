package notification

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// FailureRecorder stores undelivered messages.
type FailureRecorder interface {
	RecordFailure(ctx context.Context, f *Failure) error
}

type Worker struct {
	ID         int
	WorkerPool chan chan Message
	JobChannel chan Message
	Logger     *slog.Logger
}

func NewWorker(id int, workerPool chan chan Message, logger *slog.Logger) *Worker {
	return &Worker{
		ID:         id,
		WorkerPool: workerPool,
		JobChannel: make(chan Message),
		Logger:     logger,
	}
}

func (w *Worker) Start(ctx context.Context, wg *sync.WaitGroup, processFunc func(Message)) {
	wg.Add(1)
	go func() {
		defer wg.Done()

		for {
			w.WorkerPool <- w.JobChannel

			select {
			case job := <-w.JobChannel:
				w.Logger.Debug("worker processing push", "worker_id", w.ID, "recipients", len(job.UserIDs))
				processFunc(job)
			case <-ctx.Done():
				w.Logger.Debug("worker shutting down", "worker_id", w.ID)
				return
			}
		}
	}()
}

type DispatcherConfig struct {
	MaxWorkers   int
	JobQueueSize int
	SendTimeout  time.Duration
}

// Dispatcher queues messages and sends them from a fixed worker pool.
type Dispatcher struct {
	sender      Sender
	failures    FailureRecorder
	sendTimeout time.Duration
	logger      *slog.Logger

	jobQueue   chan Message
	workerPool chan chan Message
	maxWorkers int
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	done       chan struct{}
	once       sync.Once

	mu     sync.RWMutex
	closed bool
}

func NewDispatcher(config DispatcherConfig, sender Sender, failures FailureRecorder, logger *slog.Logger) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())

	maxWorkers := config.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 4
	}
	jobQueueSize := config.JobQueueSize
	if jobQueueSize <= 0 {
		jobQueueSize = 100
	}
	sendTimeout := config.SendTimeout
	if sendTimeout <= 0 {
		sendTimeout = 10 * time.Second
	}

	d := &Dispatcher{
		sender:      sender,
		failures:    failures,
		sendTimeout: sendTimeout,
		logger:      logger,
		maxWorkers:  maxWorkers,
		jobQueue:    make(chan Message, jobQueueSize),
		workerPool:  make(chan chan Message, maxWorkers),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	d.start()
	return d
}

func (d *Dispatcher) start() {
	d.once.Do(func() {
		for i := 0; i < d.maxWorkers; i++ {
			worker := NewWorker(i, d.workerPool, d.logger)
			worker.Start(d.ctx, &d.wg, d.process)
		}

		go d.dispatch()

		d.logger.Info("notification dispatcher started",
			"max_workers", d.maxWorkers,
			"queue_size", cap(d.jobQueue))
	})
}

// dispatch hands queued messages to idle workers until the queue is closed and empty, then
// stops the workers.
func (d *Dispatcher) dispatch() {
	defer close(d.done)
	defer d.cancel()

	for job := range d.jobQueue {
		select {
		case jobChannel := <-d.workerPool:
			select {
			case jobChannel <- job:
			case <-d.ctx.Done():
				d.logger.Info("dispatcher shutting down")
				return
			}
		case <-d.ctx.Done():
			d.logger.Info("dispatcher shutting down")
			return
		}
	}
	d.logger.Info("notification queue drained")
}

// Notify enqueues msg. A full queue or a stopped dispatcher records the message as failed.
func (d *Dispatcher) Notify(ctx context.Context, msg Message) {
	if len(msg.UserIDs) == 0 {
		return
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.logger.Warn("notification dropped: dispatcher stopped", "title", msg.Title)
		d.recordFailure(ctx, NewFailure(msg, ReasonStopped, 0))
		return
	}

	select {
	case d.jobQueue <- msg:
		d.logger.Debug("notification queued", "recipients", len(msg.UserIDs), "queue_length", len(d.jobQueue))
	default:
		d.logger.Warn("notification dropped: queue full",
			"title", msg.Title,
			"queue_capacity", cap(d.jobQueue))
		d.recordFailure(ctx, NewFailure(msg, ReasonQueueFull, 0))
	}
}

func (d *Dispatcher) process(msg Message) {
	ctx, cancel := context.WithTimeout(context.Background(), d.sendTimeout)
	defer cancel()

	status, err := d.sender.Send(ctx, msg)
	if err != nil {
		d.logger.Error("push delivery failed",
			"error", err,
			"status_code", status,
			"recipients", msg.UserIDs)
		d.recordFailure(ctx, NewFailure(msg, err.Error(), status))
		return
	}
	d.logger.Info("push delivered", "recipients", len(msg.UserIDs), "status_code", status)
}

func (d *Dispatcher) recordFailure(ctx context.Context, f *Failure) {
	if d.failures == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	if err := d.failures.RecordFailure(ctx, f); err != nil {
		d.logger.Error("failed to record notification failure", "error", err, "reason", f.Reason)
	}
}

// Shutdown stops accepting messages and waits for queued ones to be sent, or for ctx to end.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.logger.Info("shutting down notification dispatcher")

	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.jobQueue)
	}
	d.mu.Unlock()

	stopped := make(chan struct{})
	go func() {
		<-d.done
		d.wg.Wait()
		close(stopped)
	}()

	select {
	case <-stopped:
		d.logger.Info("notification dispatcher shutdown complete")
		return nil
	case <-ctx.Done():
		d.cancel()
		d.logger.Warn("notification dispatcher shutdown timed out", "pending", len(d.jobQueue))
		return ctx.Err()
	}
}
