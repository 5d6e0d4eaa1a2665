package reporting

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/claimsiq/claimsiq/internal/platform/auth"
)

// MeasureEvaluator is satisfied by *Service.
type MeasureEvaluator interface {
	Evaluate(ctx context.Context, id string, params map[string]string) (*MeasureReport, error)
}

// Handler provides HTTP handlers for the reporting API.
type Handler struct {
	svc MeasureEvaluator
}

func NewHandler(svc MeasureEvaluator) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	reportGroup := api.Group("/reports", auth.RequireRole(auth.RoleAnalyst, auth.RoleViewer))
	reportGroup.GET("/measures", h.ListMeasures)
	reportGroup.GET("/measures/:id/evaluate", h.EvaluateMeasure)
}

func (h *Handler) ListMeasures(c echo.Context) error {
	return c.JSON(http.StatusOK, PredefinedMeasures)
}

// EvaluateMeasure runs a measure; format=pdf returns the report as a PDF.
func (h *Handler) EvaluateMeasure(c echo.Context) error {
	params := map[string]string{}
	for _, p := range windowParams {
		if v := c.QueryParam(p); v != "" {
			params[p] = v
		}
	}

	report, err := h.svc.Evaluate(c.Request().Context(), c.Param("id"), params)
	switch {
	case errors.Is(err, ErrUnknownMeasure):
		return echo.NewHTTPError(http.StatusNotFound, "measure not found")
	case errors.Is(err, ErrInvalidParameter):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("query failed: %v", err))
	}

	if c.QueryParam("format") == "pdf" {
		var buf bytes.Buffer
		if err := WritePDF(&buf, []*MeasureReport{report}); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		c.Response().Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.pdf"`, report.MeasureID))
		return c.Blob(http.StatusOK, "application/pdf", buf.Bytes())
	}
	return c.JSON(http.StatusOK, report)
}
