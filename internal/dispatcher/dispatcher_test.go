package dispatcher

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hookline/hookline/internal/model"
	"github.com/hookline/hookline/internal/repository"
	"github.com/hookline/hookline/internal/signature"
)

type fixture struct {
	deliveries   *repository.MemoryDeliveries
	destinations *repository.MemoryDestinations
	attempts     *repository.MemoryAttempts
	disp         *Dispatcher
}

func newFixture(t *testing.T, timeout time.Duration) *fixture {
	t.Helper()
	f := &fixture{
		deliveries:   repository.NewMemoryDeliveries(),
		destinations: repository.NewMemoryDestinations(),
		attempts:     repository.NewMemoryAttempts(),
	}
	f.disp = NewDispatcher(f.deliveries, f.destinations, f.attempts, timeout)
	return f
}

func (f *fixture) seed(t *testing.T, url string, active bool) *model.Delivery {
	t.Helper()
	dest := model.Destination{
		ID:       "dst_01",
		TenantID: 1,
		URL:      url,
		Secret:   "s3cret",
		Events:   model.EventSet{"order.created"},
		IsActive: active,
	}
	if err := f.destinations.Insert(context.Background(), nil, dest); err != nil {
		t.Fatalf("insert destination: %v", err)
	}
	del := model.Delivery{
		ID:            "dlv_01",
		TenantID:      1,
		DestinationID: dest.ID,
		Event:         "order.created",
		Payload:       []byte(`{"order_id":42}`),
	}
	if err := f.deliveries.Insert(context.Background(), nil, del); err != nil {
		t.Fatalf("insert delivery: %v", err)
	}
	return &del
}

func TestAttemptSuccessFirstTry(t *testing.T) {
	var gotSig, gotEvent, gotID, gotCT string
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get(HeaderSignature)
		gotEvent = r.Header.Get(HeaderEvent)
		gotID = r.Header.Get(HeaderDelivery)
		gotCT = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(200)
	}))
	defer srv.Close()

	f := newFixture(t, 0)
	f.seed(t, srv.URL, true)

	res, err := f.disp.Attempt(context.Background(), "dlv_01")
	if err != nil {
		t.Fatalf("attempt: %v", err)
	}
	if res.Outcome != OutcomeSuccess || res.Attempts != 1 || res.StatusCode != 200 {
		t.Fatalf("unexpected result: %+v", res)
	}

	if gotEvent != "order.created" || gotID != "dlv_01" || gotCT != "application/json" {
		t.Fatalf("headers: event=%q id=%q ct=%q", gotEvent, gotID, gotCT)
	}
	if want := signature.Sign("s3cret", []byte(gotBody)); gotSig != want {
		t.Fatalf("signature over wire bytes mismatch: got %s want %s", gotSig, want)
	}

	d, _ := f.deliveries.GetByID(context.Background(), "dlv_01")
	if d.Status != model.DeliveryStatusSuccess || d.Attempts != 1 {
		t.Fatalf("delivery not finalized: %+v", d)
	}
	if d.ResponseStatus == nil || *d.ResponseStatus != 200 {
		t.Fatalf("response status not recorded: %+v", d.ResponseStatus)
	}
	if d.CompletedAt == nil {
		t.Fatal("completed_at not set on success")
	}
}

func TestAttemptExhaustsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(500)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	f := newFixture(t, 0)
	f.seed(t, srv.URL, true)

	for i := 1; i <= 4; i++ {
		res, err := f.disp.Attempt(context.Background(), "dlv_01")
		if err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
		if res.Outcome != OutcomeRetry || res.Attempts != i || res.StatusCode != 500 {
			t.Fatalf("attempt %d: unexpected result %+v", i, res)
		}
		d, _ := f.deliveries.GetByID(context.Background(), "dlv_01")
		if d.Status != model.DeliveryStatusPending {
			t.Fatalf("attempt %d: expected pending, got %s", i, d.Status)
		}
	}

	res, err := f.disp.Attempt(context.Background(), "dlv_01")
	if err != nil {
		t.Fatalf("final attempt: %v", err)
	}
	if res.Outcome != OutcomeTerminal || res.Attempts != 5 {
		t.Fatalf("final attempt: unexpected result %+v", res)
	}

	d, _ := f.deliveries.GetByID(context.Background(), "dlv_01")
	if d.Status != model.DeliveryStatusFailed || d.Attempts != 5 {
		t.Fatalf("expected failed after 5 attempts: %+v", d)
	}
	if d.CompletedAt != nil {
		t.Fatal("completed_at must stay unset on failure")
	}

	rows, _ := f.attempts.ListByDelivery(context.Background(), "dlv_01")
	if len(rows) != 5 {
		t.Fatalf("expected 5 audit rows, got %d", len(rows))
	}
	for _, a := range rows {
		if a.ResponseStatus == nil || *a.ResponseStatus != 500 {
			t.Fatalf("audit row missing 500 status: %+v", a)
		}
	}
}

func TestAttemptTimeoutThenSuccess(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			time.Sleep(400 * time.Millisecond)
		}
		w.WriteHeader(200)
	}))
	defer srv.Close()

	f := newFixture(t, 100*time.Millisecond)
	f.seed(t, srv.URL, true)

	res, err := f.disp.Attempt(context.Background(), "dlv_01")
	if err != nil {
		t.Fatalf("attempt 1: %v", err)
	}
	if res.Outcome != OutcomeRetry || res.Attempts != 1 || res.StatusCode != 0 {
		t.Fatalf("attempt 1: unexpected result %+v", res)
	}

	d, _ := f.deliveries.GetByID(context.Background(), "dlv_01")
	if d.ResponseStatus != nil {
		t.Fatal("transport error must not record a status code")
	}
	if d.ResponseBody == nil || *d.ResponseBody == "" {
		t.Fatal("transport error text must be recorded as response body")
	}

	res, err = f.disp.Attempt(context.Background(), "dlv_01")
	if err != nil {
		t.Fatalf("attempt 2: %v", err)
	}
	if res.Outcome != OutcomeSuccess || res.Attempts != 2 {
		t.Fatalf("attempt 2: unexpected result %+v", res)
	}
}

func TestAttemptInactiveDestination(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(200)
	}))
	defer srv.Close()

	f := newFixture(t, 0)
	f.seed(t, srv.URL, false)

	res, err := f.disp.Attempt(context.Background(), "dlv_01")
	if err != nil {
		t.Fatalf("attempt: %v", err)
	}
	if res.Outcome != OutcomeTerminal || res.Attempts != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if calls.Load() != 0 {
		t.Fatal("no HTTP call may be made for an inactive destination")
	}

	d, _ := f.deliveries.GetByID(context.Background(), "dlv_01")
	if d.Status != model.DeliveryStatusFailed || d.Attempts != 0 {
		t.Fatalf("expected immediate failure with attempts=0: %+v", d)
	}
}

func TestAttemptMissingDestination(t *testing.T) {
	f := newFixture(t, 0)
	del := model.Delivery{
		ID:            "dlv_orphan",
		TenantID:      1,
		DestinationID: "dst_gone",
		Event:         "order.created",
		Payload:       []byte(`{}`),
	}
	if err := f.deliveries.Insert(context.Background(), nil, del); err != nil {
		t.Fatalf("insert: %v", err)
	}

	res, err := f.disp.Attempt(context.Background(), "dlv_orphan")
	if err != nil {
		t.Fatalf("attempt: %v", err)
	}
	if res.Outcome != OutcomeTerminal || res.Detail != "destination missing" {
		t.Fatalf("unexpected result: %+v", res)
	}
	d, _ := f.deliveries.GetByID(context.Background(), "dlv_orphan")
	if d.Status != model.DeliveryStatusFailed || d.Attempts != 0 {
		t.Fatalf("expected terminal failure: %+v", d)
	}
}

func TestAttemptTruncatesResponseBody(t *testing.T) {
	long := strings.Repeat("x", 12000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(500)
		_, _ = w.Write([]byte(long))
	}))
	defer srv.Close()

	f := newFixture(t, 0)
	f.seed(t, srv.URL, true)

	if _, err := f.disp.Attempt(context.Background(), "dlv_01"); err != nil {
		t.Fatalf("attempt: %v", err)
	}

	d, _ := f.deliveries.GetByID(context.Background(), "dlv_01")
	if d.ResponseBody == nil {
		t.Fatal("response body not recorded")
	}
	if got := len([]rune(*d.ResponseBody)); got != 5000 {
		t.Fatalf("expected body truncated to exactly 5000 chars, got %d", got)
	}
}

func TestAttemptExhaustedPendingRowFinalizesWithoutPost(t *testing.T) {
	// A worker crash between the counter increment and the outcome write
	// leaves a pending row with all attempts spent. Redelivery must
	// finalize it: no sixth POST, counter unchanged.
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(500)
	}))
	defer srv.Close()

	f := newFixture(t, 0)
	f.seed(t, srv.URL, true)

	ctx := context.Background()
	for i := 0; i < DefaultMaxAttempts; i++ {
		if err := f.deliveries.IncrementAttempts(ctx, "dlv_01"); err != nil {
			t.Fatalf("increment: %v", err)
		}
	}
	last := 503
	if err := f.deliveries.RecordAttempt(ctx, "dlv_01", &last, "upstream unavailable"); err != nil {
		t.Fatalf("record attempt: %v", err)
	}

	res, err := f.disp.Attempt(ctx, "dlv_01")
	if err != nil {
		t.Fatalf("attempt: %v", err)
	}
	if res.Outcome != OutcomeTerminal || res.Attempts != DefaultMaxAttempts {
		t.Fatalf("unexpected result: %+v", res)
	}
	if n := atomic.LoadInt32(&calls); n != 0 {
		t.Fatalf("expected no HTTP call for an exhausted row, got %d", n)
	}

	d, _ := f.deliveries.GetByID(ctx, "dlv_01")
	if d.Status != model.DeliveryStatusFailed || d.Attempts != DefaultMaxAttempts {
		t.Fatalf("row not finalized in place: %+v", d)
	}
	if d.ResponseStatus == nil || *d.ResponseStatus != 503 {
		t.Fatalf("last recorded status lost: %+v", d.ResponseStatus)
	}
	if d.ResponseBody == nil || *d.ResponseBody != "upstream unavailable" {
		t.Fatalf("last recorded body lost: %+v", d.ResponseBody)
	}
}

func TestAttemptTruncationKeepsRuneBoundary(t *testing.T) {
	// The read limit is 4x the rune cap, so a body cut mid-rune still
	// holds at least the cap in complete runes; the replacement runes
	// the partial tail decodes to never survive truncation.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(500)
		_, _ = w.Write([]byte("a\U0001F600\U0001F600\U0001F600")) // 1 + 3*4 bytes
	}))
	defer srv.Close()

	f := newFixture(t, 0)
	f.disp.MaxBodyChars = 3 // read limit 12 bytes: cuts the last emoji in half
	f.seed(t, srv.URL, true)

	res, err := f.disp.Attempt(context.Background(), "dlv_01")
	if err != nil {
		t.Fatalf("attempt: %v", err)
	}
	if res.Outcome != OutcomeRetry {
		t.Fatalf("unexpected result: %+v", res)
	}

	d, _ := f.deliveries.GetByID(context.Background(), "dlv_01")
	if d.ResponseBody == nil {
		t.Fatal("response body not recorded")
	}
	if want := "a\U0001F600\U0001F600"; *d.ResponseBody != want {
		t.Fatalf("body = %q, want %q", *d.ResponseBody, want)
	}
	if strings.ContainsRune(*d.ResponseBody, '\uFFFD') {
		t.Fatalf("replacement rune leaked into stored body: %q", *d.ResponseBody)
	}
}

func TestAttemptSkipsTerminalDelivery(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(200)
	}))
	defer srv.Close()

	f := newFixture(t, 0)
	f.seed(t, srv.URL, true)

	if _, err := f.disp.Attempt(context.Background(), "dlv_01"); err != nil {
		t.Fatalf("attempt: %v", err)
	}
	// Duplicate envelope for an already-successful delivery.
	res, err := f.disp.Attempt(context.Background(), "dlv_01")
	if err != nil {
		t.Fatalf("duplicate attempt: %v", err)
	}
	if res.Outcome != OutcomeSuccess || res.Attempts != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if calls.Load() != 1 {
		t.Fatalf("terminal delivery must not be re-posted, calls=%d", calls.Load())
	}
}

func TestAttemptUnknownDelivery(t *testing.T) {
	f := newFixture(t, 0)
	res, err := f.disp.Attempt(context.Background(), "dlv_ghost")
	if err != nil {
		t.Fatalf("attempt: %v", err)
	}
	if res.Outcome != OutcomeTerminal || res.Detail != "delivery not found" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("héllo", 3); got != "hél" {
		t.Fatalf("rune truncation broken: %q", got)
	}
	if got := truncate("abc", 5); got != "abc" {
		t.Fatalf("short string mutated: %q", got)
	}
}
