package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"newsletter-courier/internal/metrics"
)

type taskClaimer interface {
	Claim(ctx context.Context) (ClaimedTask, error)
}

type contentStore interface {
	Issue(ctx context.Context, id uuid.UUID) (Issue, error)
	Subscriber(ctx context.Context, email string) (Subscriber, error)
}

type courierClient interface {
	Send(ctx context.Context, recipientEmail, recipientName, subject, htmlBody, textBody string) error
}

type outcome int

const (
	taskCompleted outcome = iota
	emptyBacklog
)

type WorkerConfig struct {
	IdleInterval  time.Duration
	FaultInterval time.Duration
}

// Worker drains the delivery queue: claim one task, resolve its subscriber
// and issue, dispatch the email, finalize. It keeps no state of its own
// between passes; everything durable lives in the queue, so any number of
// workers may run against the same store.
type Worker struct {
	queue   taskClaimer
	store   contentStore
	courier courierClient
	metrics *metrics.Metrics
	cfg     WorkerConfig
	logger  *slog.Logger
}

func NewWorker(queue taskClaimer, store contentStore, courier courierClient, m *metrics.Metrics, cfg WorkerConfig) *Worker {
	return &Worker{
		queue:   queue,
		store:   store,
		courier: courier,
		metrics: m,
		cfg:     cfg,
		logger:  slog.With("pipe", "delivery"),
	}
}

// Run polls until the context is done. Empty backlog sleeps the idle
// interval, any error sleeps the shorter fault interval. Cancellation is
// only honored between passes and during sleeps, never mid-task, so a
// claimed task is always finalized or released before shutdown.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		out, err := w.executeTask(ctx)
		switch {
		case err != nil:
			if isCanceled(err) {
				return
			}
			w.logger.Error(fmt.Sprintf("delivery pass failed: %v", err))
			w.sleep(ctx, w.cfg.FaultInterval)
		case out == emptyBacklog:
			w.sleep(ctx, w.cfg.IdleInterval)
		}
	}
}

// executeTask performs one Processing pass. Invalid subscriber data and
// dispatch failures are diagnostics, not errors: the task is finalized
// either way, so every task gets exactly one delivery attempt. Only store
// failures propagate, leaving the task claimable for a later pass.
func (w *Worker) executeTask(ctx context.Context) (outcome, error) {
	task, err := w.queue.Claim(ctx)
	if err != nil {
		return taskCompleted, fmt.Errorf("claim delivery task: %w", err)
	}
	if task == nil {
		return emptyBacklog, nil
	}

	logger := w.logger.With("issue", task.IssueID().String(), "subscriber", task.SubscriberEmail())
	logger.Info("processing delivery task")

	subscriber, err := w.store.Subscriber(ctx, task.SubscriberEmail())
	if err != nil {
		logger.Error(fmt.Sprintf("skipping subscriber, stored contact details are invalid: %v", err))
		w.metrics.ProcessedTasksCounter.WithLabelValues(metrics.ResultInvalidSubscriber).Inc()
	} else {
		issue, err := w.store.Issue(ctx, task.IssueID())
		if err != nil {
			if relErr := task.Release(); relErr != nil {
				logger.Error(fmt.Sprintf("failed to release claimed task: %v", relErr))
			}
			return taskCompleted, err
		}

		err = w.courier.Send(ctx, subscriber.Email, subscriber.Name, issue.Title, issue.HTMLContent, issue.TextContent)
		if err != nil {
			logger.Error(fmt.Sprintf("failed to deliver issue, skipping subscriber: %v", err))
			w.metrics.ProcessedTasksCounter.WithLabelValues(metrics.ResultDispatchFailed).Inc()
		} else {
			logger.Info("issue delivered")
			w.metrics.ProcessedTasksCounter.WithLabelValues(metrics.ResultDelivered).Inc()
		}
	}

	if err := task.Complete(ctx); err != nil {
		return taskCompleted, fmt.Errorf("finalize delivery task: %w", err)
	}

	return taskCompleted, nil
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// A claim or finalize interrupted by shutdown surfaces as a wrapped context
// error; that is the loop ending, not a fault worth logging.
func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
