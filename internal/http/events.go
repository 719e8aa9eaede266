package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/hookline/hookline/internal/http/middleware"
	"github.com/hookline/hookline/internal/metrics"
	"github.com/hookline/hookline/internal/service/enqueue"
	echo "github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

type publishReq struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// publishEventHandler is the inbound event-trigger surface: the domain layer
// posts an event occurrence and the gateway fans it out to the subscribed
// destinations. The payload bytes are stored as-is; they are the bytes that
// get signed and posted later.
func publishEventHandler(enqueueSvc *enqueue.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req publishReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		req.Event = strings.TrimSpace(req.Event)
		if req.Event == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "event required"})
		}
		if len(req.Payload) == 0 || !json.Valid(req.Payload) {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "payload must be valid JSON"})
		}

		tenantID, ok := middleware.TenantIDFromCtx(c)
		if !ok || tenantID <= 0 {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		ids, err := enqueueSvc.EnqueueEvent(c.Request().Context(), tenantID, req.Event, req.Payload)
		if err != nil {
			log.Errorf("enqueue event failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		metrics.DeliveriesTotal.WithLabelValues("queued").Add(float64(len(ids)))

		return c.JSON(http.StatusAccepted, map[string]any{
			"event":        req.Event,
			"enqueued":     len(ids),
			"delivery_ids": ids,
		})
	}
}
