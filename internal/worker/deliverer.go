package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hookline/hookline/internal/dispatcher"
	"github.com/hookline/hookline/internal/kafka"
	"github.com/hookline/hookline/internal/logger"
	"github.com/hookline/hookline/internal/metrics"
	"github.com/hookline/hookline/internal/model"
	"github.com/hookline/hookline/internal/retryq"
	"go.uber.org/zap"
)

// Deliverer:
//   - fetches delivery envelopes from Kafka (first attempts),
//   - claims due retries from the Redis delayed queue,
//   - runs the dispatcher state machine and schedules follow-up attempts
//     per the backoff table.
//
// RetryScheduler is the slice of the retry queue the worker needs.
// *retryq.Queue implements it; tests substitute an in-memory recorder.
type RetryScheduler interface {
	Schedule(ctx context.Context, deliveryID string, dueAt time.Time) error
	Claim(ctx context.Context, now time.Time, limit int64) ([]string, error)
}

var _ RetryScheduler = (*retryq.Queue)(nil)

type Deliverer struct {
	// Dependencies
	Consumer *kafka.Consumer
	Retries  RetryScheduler
	Dispatch *dispatcher.Dispatcher

	// Behavior
	Backoff      dispatcher.BackoffPolicy
	Workers      int           // number of goroutines running attempts
	PollEvery    time.Duration // retry queue poll interval
	PollBatch    int64         // max due retries claimed per poll
	RequeueDelay time.Duration // delay before redoing an attempt the dispatcher could not run
}

// NewDeliverer builds a worker with sane defaults.
func NewDeliverer(consumer *kafka.Consumer, retries RetryScheduler, dispatch *dispatcher.Dispatcher) *Deliverer {
	return &Deliverer{
		Consumer:     consumer,
		Retries:      retries,
		Dispatch:     dispatch,
		Backoff:      dispatcher.DefaultBackoff(),
		Workers:      32,
		PollEvery:    time.Second,
		PollBatch:    100,
		RequeueDelay: 30 * time.Second,
	}
}

type job struct {
	deliveryID string
	msg        *kafka.Message // nil for retry-queue jobs
}

// Run starts the worker and blocks until ctx is cancelled.
func (w *Deliverer) Run(ctx context.Context) error {
	if w.Workers <= 0 {
		w.Workers = 32
	}
	if w.PollEvery <= 0 {
		w.PollEvery = time.Second
	}
	if w.PollBatch <= 0 {
		w.PollBatch = 100
	}
	if w.RequeueDelay <= 0 {
		w.RequeueDelay = 30 * time.Second
	}

	jobs := make(chan job, w.Workers*2)

	// Kafka fetcher
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
				m, err := w.Consumer.Fetch(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					logger.Log.Warn("kafka fetch failed", zap.Error(err))
					time.Sleep(200 * time.Millisecond)
					continue
				}

				var env model.Envelope
				if err := json.Unmarshal(m.Value, &env); err != nil || env.DeliveryID == "" {
					// poison message: commit and skip
					logger.Log.Warn("bad envelope, skipping", zap.Error(err))
					_ = w.Consumer.Commit(ctx, m)
					continue
				}
				jobs <- job{deliveryID: env.DeliveryID, msg: &m}
			}
		}
	}()

	// Retry queue poller
	go func() {
		tick := time.NewTicker(w.PollEvery)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
				ids, err := w.Retries.Claim(ctx, time.Now(), w.PollBatch)
				if err != nil {
					logger.Log.Warn("retry claim failed", zap.Error(err))
					continue
				}
				for _, id := range ids {
					jobs <- job{deliveryID: id}
				}
			}
		}
	}()

	// Processors
	for i := 0; i < w.Workers; i++ {
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case j := <-jobs:
					w.processOne(ctx, j)
				}
			}
		}()
	}

	<-ctx.Done()
	return nil
}

func (w *Deliverer) processOne(ctx context.Context, j job) {
	start := time.Now()
	res, err := w.Dispatch.Attempt(ctx, j.deliveryID)
	metrics.AttemptDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		// The dispatcher could not run (storage failure); the attempt was
		// not consumed, so hand the delivery back to the retry queue.
		logger.Log.Error("attempt did not run",
			zap.String("delivery_id", j.deliveryID), zap.Error(err))
		metrics.AttemptErrors.Inc()
		if qerr := w.Retries.Schedule(ctx, j.deliveryID, time.Now().Add(w.RequeueDelay)); qerr != nil {
			logger.Log.Error("requeue failed",
				zap.String("delivery_id", j.deliveryID), zap.Error(qerr))
		}
	} else {
		w.settle(ctx, j.deliveryID, res)
	}

	// Always commit (at-least-once; the dispatcher skips terminal rows).
	if j.msg != nil {
		if err := w.Consumer.Commit(ctx, *j.msg); err != nil {
			logger.Log.Warn("kafka commit failed", zap.Error(err))
		}
	}
}

func (w *Deliverer) settle(ctx context.Context, deliveryID string, res dispatcher.Result) {
	switch res.Outcome {
	case dispatcher.OutcomeSuccess:
		metrics.DeliveriesTotal.WithLabelValues("success").Inc()
		logger.Log.Info("delivered",
			zap.String("delivery_id", deliveryID),
			zap.Int("attempts", res.Attempts),
			zap.Int("status", res.StatusCode))

	case dispatcher.OutcomeRetry:
		delay, ok := w.Backoff.Next(res.Attempts)
		if !ok {
			// The dispatcher finalizes exhausted deliveries itself, so a
			// retry outcome always has budget left; guard anyway.
			logger.Log.Error("retry outcome with no budget",
				zap.String("delivery_id", deliveryID), zap.Int("attempts", res.Attempts))
			return
		}
		metrics.DeliveriesTotal.WithLabelValues("retry").Inc()
		logger.Log.Info("attempt failed, retry scheduled",
			zap.String("delivery_id", deliveryID),
			zap.Int("attempts", res.Attempts),
			zap.Int("status", res.StatusCode),
			zap.Duration("delay", delay),
			zap.String("detail", res.Detail))
		if err := w.Retries.Schedule(ctx, deliveryID, time.Now().Add(delay)); err != nil {
			logger.Log.Error("retry schedule failed",
				zap.String("delivery_id", deliveryID), zap.Error(err))
		}

	case dispatcher.OutcomeTerminal:
		metrics.DeliveriesTotal.WithLabelValues("failed").Inc()
		logger.Log.Warn("delivery failed",
			zap.String("delivery_id", deliveryID),
			zap.Int("attempts", res.Attempts),
			zap.String("detail", res.Detail))
	}
}
