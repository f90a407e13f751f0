package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/dkemp/subcycle-backend/pkg/config"
	"github.com/dkemp/subcycle-backend/pkg/db/models"
	"github.com/dkemp/subcycle-backend/pkg/gateway"
	"github.com/dkemp/subcycle-backend/pkg/logger"
	"github.com/dkemp/subcycle-backend/pkg/metrics"
)

const (
	defaultBatchSize   = 50
	defaultPollMs      = 500
	defaultMaxAttempts = 10
	maxBackoff         = 10 * time.Second
	jitterWindow       = 250 * time.Millisecond
)

var jitterSource = rand.New(rand.NewSource(time.Now().UnixNano()))

type taskRepository interface {
	FetchUnprocessed(ctx context.Context, limit, maxAttempts int) ([]models.OutboxTask, error)
	MarkProcessed(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, cause error) error
}

// Dispatcher drains queued confirmation tasks into the reconciler. Delivery is
// at least once: a task is marked processed only after Process returns nil, so
// a crash between the two replays the task and the reconciler's idempotency
// absorbs it.
type Dispatcher struct {
	repo         taskRepository
	svc          Service
	logg         *logger.Logger
	metrics      *metrics.BillingMetrics
	batchSize    int
	maxAttempts  int
	pollInterval time.Duration
}

// DispatcherParams groups dependencies for the confirmation dispatcher.
type DispatcherParams struct {
	Config     config.OutboxConfig
	Repository taskRepository
	Reconciler Service
	Logger     *logger.Logger
	Metrics    *metrics.BillingMetrics
}

// NewDispatcher constructs a confirmation dispatcher.
func NewDispatcher(params DispatcherParams) (*Dispatcher, error) {
	if params.Repository == nil {
		return nil, errors.New("task repository is required")
	}
	if params.Reconciler == nil {
		return nil, errors.New("reconciler is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}

	batch := params.Config.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	pollMs := params.Config.PollIntervalMS
	if pollMs <= 0 {
		pollMs = defaultPollMs
	}
	maxAttempts := params.Config.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	return &Dispatcher{
		repo:         params.Repository,
		svc:          params.Reconciler,
		logg:         params.Logger,
		metrics:      params.Metrics,
		batchSize:    batch,
		maxAttempts:  maxAttempts,
		pollInterval: time.Duration(pollMs) * time.Millisecond,
	}, nil
}

// Run polls until the context is canceled.
func (d *Dispatcher) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	interval := d.pollInterval
	backoff := interval

	for {
		select {
		case <-ctx.Done():
			d.logg.Info(ctx, "confirmation dispatcher context canceled")
			return ctx.Err()
		default:
		}

		processed, err := d.Drain(ctx)
		if err != nil {
			d.logg.Error(ctx, "confirmation dispatcher batch error", err)
			backoff = nextBackoff(backoff, interval, maxBackoff)
			if err := d.sleep(ctx, withJitter(backoff)); err != nil {
				return err
			}
			continue
		}

		backoff = interval

		if processed > 0 {
			continue
		}

		if err := d.sleep(ctx, withJitter(interval)); err != nil {
			return err
		}
	}
}

// Drain processes a single batch and reports how many tasks were handled.
func (d *Dispatcher) Drain(ctx context.Context) (int, error) {
	tasks, err := d.repo.FetchUnprocessed(ctx, d.batchSize, d.maxAttempts)
	if err != nil {
		return 0, fmt.Errorf("fetch confirmation tasks: %w", err)
	}

	handled := 0
	for _, task := range tasks {
		taskCtx := d.logg.WithField(ctx, "task_id", task.ID.String())

		var result gateway.ChargeResult
		if err := json.Unmarshal(task.Payload, &result); err != nil {
			// A payload that cannot decode will never succeed; burn its
			// attempts so it surfaces as exhausted instead of looping.
			d.metrics.IncOutboxAttempt("undecodable")
			d.logg.Error(taskCtx, "confirmation payload undecodable", err)
			if markErr := d.repo.MarkFailed(ctx, task.ID, err); markErr != nil {
				return handled, fmt.Errorf("mark task %s failed: %w", task.ID, markErr)
			}
			continue
		}

		if err := d.svc.Process(taskCtx, result); err != nil {
			d.metrics.IncOutboxAttempt("error")
			d.logg.Error(taskCtx, "confirmation task failed", err)
			if markErr := d.repo.MarkFailed(ctx, task.ID, err); markErr != nil {
				return handled, fmt.Errorf("mark task %s failed: %w", task.ID, markErr)
			}
			continue
		}

		if err := d.repo.MarkProcessed(ctx, task.ID); err != nil {
			return handled, fmt.Errorf("mark task %s processed: %w", task.ID, err)
		}
		d.metrics.IncOutboxAttempt("ok")
		handled++
	}
	return handled, nil
}

func (d *Dispatcher) sleep(ctx context.Context, duration time.Duration) error {
	if duration <= 0 {
		return nil
	}
	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nextBackoff(current, base, max time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + time.Duration(jitterSource.Int63n(int64(jitterWindow)))
}
