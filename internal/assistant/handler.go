package assistant

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/claimsiq/claimsiq/internal/assistant/llm"
	"github.com/claimsiq/claimsiq/internal/platform/auth"
	"github.com/claimsiq/claimsiq/internal/rag/vectorstore"
)

const maxTopK = 50

// Asker is satisfied by *Assistant.
type Asker interface {
	Ask(ctx context.Context, q Question) (*Answer, error)
	Search(ctx context.Context, text string, filters vectorstore.Filters, topK int) ([]vectorstore.Hit, error)
}

type Handler struct {
	asst Asker
}

func NewHandler(asst Asker) *Handler {
	return &Handler{asst: asst}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/ask", h.Ask, auth.RequireRole(auth.RoleAnalyst))
	api.GET("/search", h.Search, auth.RequireRole(auth.RoleAnalyst, auth.RoleViewer))
}

func askError(err error) error {
	switch {
	case errors.Is(err, ErrEmptyQuestion):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, llm.ErrNoProvider):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, vectorstore.ErrDimensionMismatch):
		return echo.NewHTTPError(http.StatusConflict, "index was built with a different embedding model; run claimsiq index --reindex")
	case errors.Is(err, context.DeadlineExceeded):
		return echo.NewHTTPError(http.StatusGatewayTimeout, "answer timed out")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func (h *Handler) Ask(c echo.Context) error {
	var q Question
	if err := c.Bind(&q); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if q.TopK < 0 || q.TopK > maxTopK {
		return echo.NewHTTPError(http.StatusBadRequest, "top_k must be between 1 and 50")
	}
	if c.QueryParam("format") == "html" {
		q.Format = "html"
	}
	ans, err := h.asst.Ask(c.Request().Context(), q)
	if err != nil {
		return askError(err)
	}
	return c.JSON(http.StatusOK, ans)
}

// Search returns the nearest note chunks for q, filtered by claim fields.
func (h *Handler) Search(c echo.Context) error {
	var filters vectorstore.Filters
	if err := (&echo.DefaultBinder{}).BindQueryParams(c, &filters); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid filters")
	}
	topK := vectorstore.DefaultTopK
	if v := c.QueryParam("top_k"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxTopK {
			return echo.NewHTTPError(http.StatusBadRequest, "top_k must be between 1 and 50")
		}
		topK = n
	}

	hits, err := h.asst.Search(c.Request().Context(), c.QueryParam("q"), filters, topK)
	if err != nil {
		return askError(err)
	}
	if hits == nil {
		hits = []vectorstore.Hit{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"query":   c.QueryParam("q"),
		"results": hits,
		"total":   len(hits),
	})
}
