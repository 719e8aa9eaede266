package dispatcher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hookline/hookline/internal/model"
	"github.com/hookline/hookline/internal/repository"
	"github.com/hookline/hookline/internal/signature"
)

// Request headers sent with every attempt. Receivers verify the signature
// against their copy of the destination secret before trusting the body.
const (
	HeaderSignature = "X-Hookline-Signature"
	HeaderEvent     = "X-Hookline-Event"
	HeaderDelivery  = "X-Hookline-Delivery"
)

const (
	DefaultTimeout          = 30 * time.Second
	DefaultMaxResponseChars = 5000
)

// Dispatcher runs one HTTP attempt of a delivery per Attempt call:
// liveness check, signing, POST, response capture, classification.
// It never retries internally; the worker owns scheduling.
type Dispatcher struct {
	Deliveries   repository.DeliveriesRepository
	Destinations repository.DestinationsRepository
	Attempts     repository.AttemptsRepository // optional audit log, may be nil
	Client       *http.Client
	MaxAttempts  int
	MaxBodyChars int
	Now          func() time.Time
}

func NewDispatcher(
	deliveries repository.DeliveriesRepository,
	destinations repository.DestinationsRepository,
	attempts repository.AttemptsRepository,
	timeout time.Duration,
) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Dispatcher{
		Deliveries:   deliveries,
		Destinations: destinations,
		Attempts:     attempts,
		Client:       &http.Client{Timeout: timeout},
		MaxAttempts:  DefaultMaxAttempts,
		MaxBodyChars: DefaultMaxResponseChars,
		Now:          time.Now,
	}
}

// Attempt executes one attempt for the delivery and returns its outcome.
// A non-nil error means the dispatcher could not run (storage failure);
// attempt failures against the destination are reported in the Result.
func (d *Dispatcher) Attempt(ctx context.Context, deliveryID string) (Result, error) {
	del, err := d.Deliveries.GetByID(ctx, deliveryID)
	if err != nil {
		return Result{}, fmt.Errorf("load delivery: %w", err)
	}
	if del == nil {
		return Result{Outcome: OutcomeTerminal, Detail: "delivery not found"}, nil
	}
	if del.Status.Terminal() {
		// Duplicate kafka delivery or stale retry entry; nothing to do.
		out := OutcomeTerminal
		if del.Status == model.DeliveryStatusSuccess {
			out = OutcomeSuccess
		}
		return Result{Outcome: out, Attempts: del.Attempts, Detail: "already " + del.Status.String()}, nil
	}

	dest, err := d.Destinations.GetByID(ctx, del.DestinationID)
	if err != nil {
		return Result{}, fmt.Errorf("load destination: %w", err)
	}
	if dest == nil || !dest.IsActive {
		// Liveness is checked before the counter moves: a deactivated or
		// missing destination finalizes with attempts untouched and no
		// HTTP call made.
		detail := "destination inactive"
		if dest == nil {
			detail = "destination missing"
		}
		if err := d.Deliveries.MarkFailed(ctx, del.ID, nil, detail); err != nil {
			return Result{}, fmt.Errorf("mark failed: %w", err)
		}
		return Result{Outcome: OutcomeTerminal, Attempts: del.Attempts, Detail: detail}, nil
	}

	if del.Attempts >= d.MaxAttempts {
		// A crash after the counter moved but before the outcome was
		// persisted leaves a pending row with the budget already spent.
		// Finalize it with the last recorded response; no further POST.
		lastBody := ""
		if del.ResponseBody != nil {
			lastBody = *del.ResponseBody
		}
		if err := d.Deliveries.MarkFailed(ctx, del.ID, del.ResponseStatus, lastBody); err != nil {
			return Result{}, fmt.Errorf("mark failed: %w", err)
		}
		return Result{Outcome: OutcomeTerminal, Attempts: del.Attempts, Detail: "attempts exhausted"}, nil
	}

	sig := signature.Sign(dest.Secret, del.Payload)

	// The counter is durable before the network call, so a crash
	// mid-flight cannot silently re-attempt past the budget.
	if err := d.Deliveries.IncrementAttempts(ctx, del.ID); err != nil {
		return Result{}, fmt.Errorf("increment attempts: %w", err)
	}
	del.Attempts++

	start := time.Now()
	status, body, detail := d.post(ctx, dest, del, sig)

	if d.Attempts != nil {
		_ = d.Attempts.Insert(ctx, model.DeliveryAttempt{
			DeliveryID:     del.ID,
			AttemptNo:      del.Attempts,
			ResponseStatus: status,
			ResponseBody:   body,
			LatencyMs:      time.Since(start).Milliseconds(),
		})
	}

	if status != nil && *status/100 == 2 {
		if err := d.Deliveries.MarkSuccess(ctx, del.ID, *status, body, d.Now()); err != nil {
			return Result{}, fmt.Errorf("mark success: %w", err)
		}
		return Result{Outcome: OutcomeSuccess, Attempts: del.Attempts, StatusCode: *status}, nil
	}

	code := 0
	if status != nil {
		code = *status
	}

	if del.Attempts >= d.MaxAttempts {
		if err := d.Deliveries.MarkFailed(ctx, del.ID, status, body); err != nil {
			return Result{}, fmt.Errorf("mark failed: %w", err)
		}
		return Result{Outcome: OutcomeTerminal, Attempts: del.Attempts, StatusCode: code, Detail: detail}, nil
	}

	if err := d.Deliveries.RecordAttempt(ctx, del.ID, status, body); err != nil {
		return Result{}, fmt.Errorf("record attempt: %w", err)
	}
	return Result{Outcome: OutcomeRetry, Attempts: del.Attempts, StatusCode: code, Detail: detail}, nil
}

// post performs the signed HTTP POST. It returns the response status (nil
// when no response was received), the truncated response body or transport
// error text, and a short detail string for the Result.
func (d *Dispatcher) post(ctx context.Context, dest *model.Destination, del *model.Delivery, sig string) (*int, string, string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, dest.URL, bytes.NewReader(del.Payload))
	if err != nil {
		return nil, truncate(err.Error(), d.MaxBodyChars), err.Error()
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderSignature, sig)
	req.Header.Set(HeaderEvent, del.Event)
	req.Header.Set(HeaderDelivery, del.ID)

	res, err := d.Client.Do(req)
	if err != nil {
		// Transport error: no status code; the error text becomes the
		// recorded response body.
		return nil, truncate(err.Error(), d.MaxBodyChars), err.Error()
	}
	defer res.Body.Close()

	b, _ := io.ReadAll(io.LimitReader(res.Body, int64(d.MaxBodyChars)*4))
	code := res.StatusCode

	detail := ""
	if code/100 != 2 {
		detail = fmt.Sprintf("destination=%s status=%d", dest.ID, code)
	}
	return &code, truncate(string(b), d.MaxBodyChars), detail
}

// truncate caps s at max characters (runes, not bytes).
func truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
