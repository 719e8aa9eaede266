package http

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hookline/hookline/internal/http/middleware"
	"github.com/hookline/hookline/internal/model"
	"github.com/hookline/hookline/internal/repository"
	"github.com/hookline/hookline/internal/util"
	echo "github.com/labstack/echo/v4"
)

type destinationReq struct {
	URL    string   `json:"url"`
	Events []string `json:"events"`
}

// destinationResp never carries the secret; create/rotate responses add it
// explicitly, and that is the only time it leaves the system.
type destinationResp struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Events    []string  `json:"events"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toDestinationResp(d model.Destination) destinationResp {
	return destinationResp{
		ID:        d.ID,
		URL:       d.URL,
		Events:    d.Events,
		IsActive:  d.IsActive,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

func validDestinationURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func createDestinationHandler(dests repository.DestinationsRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		tenantID, ok := middleware.TenantIDFromCtx(c)
		if !ok || tenantID <= 0 {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		var req destinationReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}
		req.URL = strings.TrimSpace(req.URL)
		if !validDestinationURL(req.URL) {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "url must be absolute http(s)"})
		}
		if len(req.Events) == 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "at least one event required"})
		}

		d := model.Destination{
			ID:       util.New(),
			TenantID: tenantID,
			URL:      req.URL,
			Secret:   util.NewSecret(),
			Events:   model.EventSet(req.Events),
			IsActive: true,
		}
		if err := dests.Insert(c.Request().Context(), nil, d); err != nil {
			c.Logger().Errorf("insert destination failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		return c.JSON(http.StatusCreated, map[string]any{
			"id":        d.ID,
			"url":       d.URL,
			"events":    req.Events,
			"is_active": true,
			"secret":    d.Secret, // shown once, never again
		})
	}
}

func listDestinationsHandler(dests repository.DestinationsRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		tenantID, ok := middleware.TenantIDFromCtx(c)
		if !ok || tenantID <= 0 {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		rows, err := dests.ListByTenant(c.Request().Context(), tenantID)
		if err != nil {
			c.Logger().Errorf("list destinations failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		out := make([]destinationResp, 0, len(rows))
		for _, d := range rows {
			out = append(out, toDestinationResp(d))
		}
		return c.JSON(http.StatusOK, map[string]any{
			"count":   len(out),
			"results": out,
		})
	}
}

type updateDestinationReq struct {
	URL      *string  `json:"url"`
	Events   []string `json:"events"`
	IsActive *bool    `json:"is_active"`
}

func updateDestinationHandler(dests repository.DestinationsRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		tenantID, ok := middleware.TenantIDFromCtx(c)
		if !ok || tenantID <= 0 {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}
		id := c.Param("id")

		existing, err := dests.GetByID(c.Request().Context(), id)
		if err != nil {
			c.Logger().Errorf("load destination failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		if existing == nil || existing.TenantID != tenantID {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "not found"})
		}

		var req updateDestinationReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}
		if req.URL != nil && !validDestinationURL(strings.TrimSpace(*req.URL)) {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "url must be absolute http(s)"})
		}

		p := repository.UpdateDestinationParams{
			URL:      req.URL,
			IsActive: req.IsActive,
		}
		if req.Events != nil {
			p.Events = model.EventSet(req.Events)
		}
		if err := dests.Update(c.Request().Context(), tenantID, id, p); err != nil {
			c.Logger().Errorf("update destination failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		updated, err := dests.GetByID(c.Request().Context(), id)
		if err != nil || updated == nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		return c.JSON(http.StatusOK, toDestinationResp(*updated))
	}
}

func rotateSecretHandler(dests repository.DestinationsRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		tenantID, ok := middleware.TenantIDFromCtx(c)
		if !ok || tenantID <= 0 {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}
		id := c.Param("id")

		existing, err := dests.GetByID(c.Request().Context(), id)
		if err != nil {
			c.Logger().Errorf("load destination failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		if existing == nil || existing.TenantID != tenantID {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "not found"})
		}

		secret := util.NewSecret()
		if err := dests.RotateSecret(c.Request().Context(), tenantID, id, secret); err != nil {
			c.Logger().Errorf("rotate secret failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		return c.JSON(http.StatusOK, map[string]string{
			"id":     id,
			"secret": secret, // shown once, never again
		})
	}
}
