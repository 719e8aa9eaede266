package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hookline/hookline/internal/model"
	"github.com/hookline/hookline/internal/repository"
	"github.com/hookline/hookline/internal/service/enqueue"
	"github.com/jmoiron/sqlx"
	echo "github.com/labstack/echo/v4"
)

type outboxDiscard struct{}

func (outboxDiscard) Insert(ctx context.Context, tx *sqlx.Tx, aggregate, aggregateID, topic string, payload []byte) error {
	return nil
}

func newCtx(t *testing.T, method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("tenant_id", int64(1))
	return c, rec
}

func TestCreateDestinationReturnsSecretOnce(t *testing.T) {
	dests := repository.NewMemoryDestinations()
	h := createDestinationHandler(dests)

	c, rec := newCtx(t, http.MethodPost, "/v1/destinations",
		`{"url":"https://shop.example/hooks","events":["order.created","order.updated"]}`)
	if err := h(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response: %v", err)
	}
	secret, _ := resp["secret"].(string)
	if !strings.HasPrefix(secret, "whsec_") {
		t.Fatalf("expected generated secret in create response, got %q", secret)
	}
	id, _ := resp["id"].(string)
	if id == "" {
		t.Fatal("expected destination id")
	}

	// The list surface must never expose the secret again.
	lh := listDestinationsHandler(dests)
	c2, rec2 := newCtx(t, http.MethodGet, "/v1/destinations", "")
	if err := lh(c2); err != nil {
		t.Fatalf("list handler: %v", err)
	}
	if strings.Contains(rec2.Body.String(), secret) {
		t.Fatal("secret leaked in list response")
	}
	if !strings.Contains(rec2.Body.String(), id) {
		t.Fatalf("created destination missing from list: %s", rec2.Body.String())
	}
}

func TestCreateDestinationValidation(t *testing.T) {
	dests := repository.NewMemoryDestinations()
	h := createDestinationHandler(dests)

	cases := []string{
		`{"url":"not a url","events":["order.created"]}`,
		`{"url":"ftp://example.com/x","events":["order.created"]}`,
		`{"url":"https://shop.example/hooks","events":[]}`,
	}
	for _, body := range cases {
		c, rec := newCtx(t, http.MethodPost, "/v1/destinations", body)
		if err := h(c); err != nil {
			t.Fatalf("handler: %v", err)
		}
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %s: status = %d, want 400", body, rec.Code)
		}
	}
}

func TestRotateSecretChangesSecret(t *testing.T) {
	dests := repository.NewMemoryDestinations()
	seed := model.Destination{
		ID: "dst_01", TenantID: 1, URL: "https://a.example/h",
		Secret: "whsec_old", Events: model.EventSet{"order.created"}, IsActive: true,
	}
	if err := dests.Insert(context.Background(), nil, seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	h := rotateSecretHandler(dests)
	c, rec := newCtx(t, http.MethodPost, "/v1/destinations/dst_01/rotate", "")
	c.SetParamNames("id")
	c.SetParamValues("dst_01")
	if err := h(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	d, _ := dests.GetByID(context.Background(), "dst_01")
	if d.Secret == "whsec_old" {
		t.Fatal("secret not rotated")
	}
	if !strings.Contains(rec.Body.String(), d.Secret) {
		t.Fatal("new secret not returned")
	}
}

func TestUpdateDestinationDeactivate(t *testing.T) {
	dests := repository.NewMemoryDestinations()
	seed := model.Destination{
		ID: "dst_01", TenantID: 1, URL: "https://a.example/h",
		Secret: "s", Events: model.EventSet{"order.created"}, IsActive: true,
	}
	if err := dests.Insert(context.Background(), nil, seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	h := updateDestinationHandler(dests)
	c, rec := newCtx(t, http.MethodPatch, "/v1/destinations/dst_01", `{"is_active":false}`)
	c.SetParamNames("id")
	c.SetParamValues("dst_01")
	if err := h(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	d, _ := dests.GetByID(context.Background(), "dst_01")
	if d.IsActive {
		t.Fatal("destination still active")
	}
}

func TestUpdateDestinationWrongTenant(t *testing.T) {
	dests := repository.NewMemoryDestinations()
	seed := model.Destination{
		ID: "dst_01", TenantID: 2, URL: "https://a.example/h",
		Secret: "s", Events: model.EventSet{"order.created"}, IsActive: true,
	}
	if err := dests.Insert(context.Background(), nil, seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	h := updateDestinationHandler(dests)
	c, rec := newCtx(t, http.MethodPatch, "/v1/destinations/dst_01", `{"is_active":false}`)
	c.SetParamNames("id")
	c.SetParamValues("dst_01")
	if err := h(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestPublishEvent(t *testing.T) {
	deliveries := repository.NewMemoryDeliveries()
	dests := repository.NewMemoryDestinations()
	outbox := &outboxDiscard{}
	seed := model.Destination{
		ID: "dst_01", TenantID: 1, URL: "https://a.example/h",
		Secret: "s", Events: model.EventSet{"order.created"}, IsActive: true,
	}
	if err := dests.Insert(context.Background(), nil, seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	svc := enqueue.New(nil, deliveries, dests, outbox)
	h := publishEventHandler(svc)

	c, rec := newCtx(t, http.MethodPost, "/v1/events",
		`{"event":"order.created","payload":{"order_id":42}}`)
	if err := h(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Enqueued    int      `json:"enqueued"`
		DeliveryIDs []string `json:"delivery_ids"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response: %v", err)
	}
	if resp.Enqueued != 1 || len(resp.DeliveryIDs) != 1 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	d, _ := deliveries.GetByID(context.Background(), resp.DeliveryIDs[0])
	if d == nil || d.Event != "order.created" {
		t.Fatalf("delivery not created: %+v", d)
	}
}

func TestPublishEventValidation(t *testing.T) {
	svc := enqueue.New(nil, repository.NewMemoryDeliveries(), repository.NewMemoryDestinations(), &outboxDiscard{})
	h := publishEventHandler(svc)

	cases := []string{
		`{"event":"","payload":{}}`,
		`{"event":"order.created"}`,
		`{"event":"order.created","payload":"not json`,
	}
	for _, body := range cases {
		c, rec := newCtx(t, http.MethodPost, "/v1/events", body)
		if err := h(c); err != nil {
			t.Fatalf("handler: %v", err)
		}
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %s: status = %d, want 400", body, rec.Code)
		}
	}
}
