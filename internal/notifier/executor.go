package notifier

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"vehicle-auction/internal/models"
	"vehicle-auction/internal/tasks"
)

// Mode selects the Executor built by NewExecutor
type Mode string

const (
	ModeAsync    Mode = "async"
	ModeInline   Mode = "inline"
	ModeQueue    Mode = "queue"
	ModeDisabled Mode = "disabled"
)

// Valid reports whether m names a known mode
func (m Mode) Valid() bool {
	switch m {
	case ModeAsync, ModeInline, ModeQueue, ModeDisabled:
		return true
	}
	return false
}

// DefaultDeliveryTimeout bounds one background delivery
const DefaultDeliveryTimeout = 30 * time.Second

// Job identifies one committed notification
type Job struct {
	NotificationID uuid.UUID
	UserID         uuid.UUID
	Type           models.NotificationType
}

// DeliverFunc performs one delivery. It must not return errors to the caller.
type DeliverFunc func(ctx context.Context, notificationID uuid.UUID)

// Executor decides where and when a delivery runs
type Executor interface {
	Submit(ctx context.Context, job Job, deliver DeliverFunc)
	Close(ctx context.Context) error
}

// InlineExecutor delivers on the caller's goroutine before Submit returns
type InlineExecutor struct{}

func (InlineExecutor) Submit(ctx context.Context, job Job, deliver DeliverFunc) {
	deliver(ctx, job.NotificationID)
}

func (InlineExecutor) Close(context.Context) error { return nil }

// DisabledExecutor drops every job
type DisabledExecutor struct{}

func (DisabledExecutor) Submit(context.Context, Job, DeliverFunc) {}

func (DisabledExecutor) Close(context.Context) error { return nil }

// AsyncExecutor delivers on background goroutines detached from the request context
type AsyncExecutor struct {
	timeout time.Duration
	log     *logrus.Entry

	mu     sync.Mutex
	closed bool
	group  errgroup.Group
}

// NewAsyncExecutor creates an AsyncExecutor; timeout <= 0 uses DefaultDeliveryTimeout
func NewAsyncExecutor(timeout time.Duration, log *logrus.Entry) *AsyncExecutor {
	if timeout <= 0 {
		timeout = DefaultDeliveryTimeout
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &AsyncExecutor{timeout: timeout, log: log.WithField("component", "async_executor")}
}

// Submit returns immediately. The request context's cancellation does not reach the delivery.
func (e *AsyncExecutor) Submit(ctx context.Context, job Job, deliver DeliverFunc) {
	detached := context.WithoutCancel(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		e.log.WithField("notification_id", job.NotificationID).Warn("executor closed; dropping delivery")
		return
	}
	e.group.Go(func() error {
		ctx, cancel := context.WithTimeout(detached, e.timeout)
		defer cancel()
		deliver(ctx, job.NotificationID)
		return nil
	})
}

// Close stops accepting jobs and waits for in-flight deliveries or ctx
func (e *AsyncExecutor) Close(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		_ = e.group.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Enqueuer is the part of *asynq.Client the queue executor needs
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// QueueExecutor hands deliveries to the asynq worker through Redis
type QueueExecutor struct {
	client Enqueuer
	queue  string
	log    *logrus.Entry
}

// NewQueueExecutor creates a QueueExecutor publishing to queue ("default" when empty)
func NewQueueExecutor(client Enqueuer, queue string, log *logrus.Entry) *QueueExecutor {
	if queue == "" {
		queue = "default"
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &QueueExecutor{client: client, queue: queue, log: log.WithField("component", "queue_executor")}
}

// Submit enqueues the job; the local deliver func is not used
func (e *QueueExecutor) Submit(ctx context.Context, job Job, _ DeliverFunc) {
	logCtx := e.log.WithFields(logrus.Fields{"notification_id": job.NotificationID, "type": job.Type})

	task, err := tasks.NewNotificationDeliveryTask(job.NotificationID)
	if err != nil {
		logCtx.WithError(err).Error("Failed to build delivery task")
		return
	}
	info, err := e.client.EnqueueContext(context.WithoutCancel(ctx), task, asynq.Queue(e.queue))
	if err != nil {
		logCtx.WithError(err).Error("Failed to enqueue delivery task")
		return
	}
	logCtx.WithField("task_id", info.ID).Debug("Delivery task enqueued")
}

func (e *QueueExecutor) Close(context.Context) error { return nil }
