package denials

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/claimsiq/claimsiq/internal/domain/claims"
	"github.com/claimsiq/claimsiq/internal/platform/auth"
)

// ClaimGetter loads a claim with its joined detail.
type ClaimGetter interface {
	GetClaim(ctx context.Context, claimID string) (*claims.ClaimDetail, error)
}

type Handler struct {
	claims ClaimGetter
}

func NewHandler(claims ClaimGetter) *Handler {
	return &Handler{claims: claims}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole(auth.RoleAnalyst, auth.RoleViewer))
	g.GET("/claims/:id/denial-analysis", h.AnalyzeClaim)
	g.GET("/denials/reasons", h.ListReasons)
}

func (h *Handler) AnalyzeClaim(c echo.Context) error {
	d, err := h.claims.GetClaim(c.Request().Context(), c.Param("id"))
	switch {
	case errors.Is(err, claims.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "claim not found")
	case errors.Is(err, claims.ErrInvalidArgument):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, Analyze(d))
}

func (h *Handler) ListReasons(c echo.Context) error {
	return c.JSON(http.StatusOK, Reasons())
}
