package claims

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/claimsiq/claimsiq/internal/platform/auth"
	"github.com/claimsiq/claimsiq/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole(auth.RoleAnalyst, auth.RoleViewer))
	readGroup.GET("/claims", h.ListClaims)
	readGroup.GET("/claims/:id", h.GetClaim)
	readGroup.GET("/claims/:id/notes", h.GetClaimNotes)
	readGroup.GET("/notes/:id", h.GetNote)
	readGroup.GET("/patients/:id", h.GetPatient)
	readGroup.GET("/patients/:id/claims", h.ListPatientClaims)
	readGroup.GET("/providers/:id", h.GetProvider)
}

// lookupError maps a service error to an HTTP error.
func lookupError(err error, what string) error {
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, what+" not found")
	}
	if errors.Is(err, ErrInvalidArgument) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func (h *Handler) GetClaim(c echo.Context) error {
	claim, err := h.svc.GetClaim(c.Request().Context(), c.Param("id"))
	if err != nil {
		return lookupError(err, "claim")
	}
	return c.JSON(http.StatusOK, claim)
}

func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// FilterFromContext reads claim filters from query parameters.
func FilterFromContext(c echo.Context) (ClaimFilter, error) {
	f := ClaimFilter{
		PatientID:     c.QueryParam("patient_id"),
		ProviderID:    c.QueryParam("provider_id"),
		ClaimType:     strings.ToUpper(c.QueryParam("claim_type")),
		ClaimStatus:   strings.ToUpper(c.QueryParam("status")),
		DenialReason:  strings.ToUpper(c.QueryParam("denial_reason")),
		DiagnosisCode: strings.ToUpper(c.QueryParam("diagnosis")),
	}
	var err error
	if f.From, err = parseDate(c.QueryParam("from")); err != nil {
		return f, errors.New("invalid from date, expected YYYY-MM-DD")
	}
	if f.To, err = parseDate(c.QueryParam("to")); err != nil {
		return f, errors.New("invalid to date, expected YYYY-MM-DD")
	}
	return f, nil
}

func (h *Handler) ListClaims(c echo.Context) error {
	pg := pagination.FromContext(c)
	f, err := FilterFromContext(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	items, total, err := h.svc.SearchClaims(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return lookupError(err, "claims")
	}
	if items == nil {
		items = []*Claim{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset).WithNext(c))
}

func (h *Handler) ListPatientClaims(c echo.Context) error {
	pg := pagination.FromContext(c)
	patientID := c.Param("id")
	if _, err := h.svc.GetPatient(c.Request().Context(), patientID); err != nil {
		return lookupError(err, "patient")
	}
	items, total, err := h.svc.SearchClaims(c.Request().Context(), ClaimFilter{PatientID: patientID}, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []*Claim{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset).WithNext(c))
}

func (h *Handler) GetClaimNotes(c echo.Context) error {
	ctx := c.Request().Context()
	claimID := c.Param("id")
	if _, err := h.svc.GetClaim(ctx, claimID); err != nil {
		return lookupError(err, "claim")
	}
	notes, err := h.svc.ListClaimNotes(ctx, claimID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if notes == nil {
		notes = []*Note{}
	}
	return c.JSON(http.StatusOK, notes)
}

func (h *Handler) GetNote(c echo.Context) error {
	n, err := h.svc.GetNote(c.Request().Context(), c.Param("id"))
	if err != nil {
		return lookupError(err, "note")
	}
	return c.JSON(http.StatusOK, n)
}

func (h *Handler) GetPatient(c echo.Context) error {
	p, err := h.svc.GetPatient(c.Request().Context(), c.Param("id"))
	if err != nil {
		return lookupError(err, "patient")
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) GetProvider(c echo.Context) error {
	p, err := h.svc.GetProvider(c.Request().Context(), c.Param("id"))
	if err != nil {
		return lookupError(err, "provider")
	}
	return c.JSON(http.StatusOK, p)
}
