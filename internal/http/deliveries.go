package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/hookline/hookline/internal/http/middleware"
	"github.com/hookline/hookline/internal/model"
	"github.com/hookline/hookline/internal/repository"
	echo "github.com/labstack/echo/v4"
)

func listDeliveriesHandler(chRepo repository.CHDeliveriesRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		tenantID, ok := middleware.TenantIDFromCtx(c)
		if !ok || tenantID <= 0 {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		limit := 50
		offset := 0
		if v := c.QueryParam("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
				limit = n
			}
		}
		if v := c.QueryParam("offset"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				offset = n
			}
		}

		var st model.DeliveryStatus
		if raw := strings.TrimSpace(c.QueryParam("status")); raw != "" {
			tmp := model.DeliveryStatus(raw)
			if tmp.Valid() {
				st = tmp
			}
		}

		destinationID := strings.TrimSpace(c.QueryParam("destination_id"))

		rows, err := chRepo.ListByTenant(
			c.Request().Context(),
			tenantID,
			st,
			destinationID,
			limit,
			offset,
		)
		if err != nil {
			c.Logger().Errorf("clickhouse list failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}

		return c.JSON(http.StatusOK, map[string]any{
			"limit":   limit,
			"offset":  offset,
			"count":   len(rows),
			"results": rows,
		})
	}
}

// getDeliveryHandler serves the debugging view for one delivery: the row
// itself plus its full attempt history.
func getDeliveryHandler(deliveries repository.DeliveriesRepository, attempts repository.AttemptsRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		tenantID, ok := middleware.TenantIDFromCtx(c)
		if !ok || tenantID <= 0 {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		d, err := deliveries.GetByID(c.Request().Context(), c.Param("id"))
		if err != nil {
			c.Logger().Errorf("load delivery failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		if d == nil || d.TenantID != tenantID {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "not found"})
		}

		rows, err := attempts.ListByDelivery(c.Request().Context(), d.ID)
		if err != nil {
			c.Logger().Errorf("list attempts failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		return c.JSON(http.StatusOK, map[string]any{
			"delivery": d,
			"attempts": rows,
		})
	}
}
