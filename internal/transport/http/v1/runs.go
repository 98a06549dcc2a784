package v1

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/xiaot623/settle/internal/domain"
	"github.com/xiaot623/settle/internal/service"
)

// StartRunRequest is the request to start a review run.
type StartRunRequest struct {
	RunID     string            `json:"run_id,omitempty"`
	Documents []domain.Document `json:"documents"`
}

// StartRun starts a review run over the posted documents.
// POST /v1/runs
func (h *Handler) StartRun(c echo.Context) error {
	var req StartRunRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	runID, err := h.service.StartRun(c.Request().Context(), service.StartRunRequest{
		RunID:     strings.TrimSpace(req.RunID),
		Documents: req.Documents,
		APIKey:    bearerToken(c.Request().Header.Get(echo.HeaderAuthorization)),
	})
	if err != nil {
		return errorJSON(c, err)
	}

	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"run_id": runID,
		"status": domain.RunStatusCreated,
	})
}

// ListRuns lists recent runs.
// GET /v1/runs
func (h *Handler) ListRuns(c echo.Context) error {
	limit := 20
	if l := c.QueryParam("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil {
			limit = val
		}
	}

	runs, err := h.service.ListRuns(c.Request().Context(), limit)
	if err != nil {
		return errorJSON(c, err)
	}
	if runs == nil {
		runs = []domain.Run{}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"runs": runs,
	})
}

// GetRun returns the stored summary of a run.
// GET /v1/runs/:run_id
func (h *Handler) GetRun(c echo.Context) error {
	run, err := h.service.GetRun(c.Request().Context(), c.Param("run_id"))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, run)
}

// GetRunEvents retrieves recorded progress events for a run.
// GET /v1/runs/:run_id/events
func (h *Handler) GetRunEvents(c echo.Context) error {
	runID := c.Param("run_id")
	limit := 100
	if l := c.QueryParam("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil {
			limit = val
		}
	}
	afterTs := int64(0)
	if t := c.QueryParam("after_ts"); t != "" {
		if val, err := strconv.ParseInt(t, 10, 64); err == nil {
			afterTs = val
		}
	}
	var types []string
	if t := c.QueryParam("types"); t != "" {
		for _, typ := range strings.Split(t, ",") {
			if typ = strings.TrimSpace(typ); typ != "" {
				types = append(types, typ)
			}
		}
	}

	events, err := h.service.GetRunEvents(c.Request().Context(), runID, afterTs, types, limit)
	if err != nil {
		return errorJSON(c, err)
	}
	if events == nil {
		events = []domain.Event{}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"events":   events,
		"has_more": limit > 0 && len(events) == limit,
	})
}

// CancelRun cancels the in-flight run.
// POST /v1/runs/:run_id/cancel
func (h *Handler) CancelRun(c echo.Context) error {
	runID := c.Param("run_id")
	if err := h.service.CancelRun(c.Request().Context(), runID); err != nil {
		return errorJSON(c, err)
	}

	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"run_id":  runID,
		"message": "run cancellation requested",
	})
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
