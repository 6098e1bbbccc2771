package ingest

import (
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"

	"github.com/arc-self/sentinel-pipeline/internal/model"
	"github.com/arc-self/sentinel-pipeline/internal/optout"
)

// Handler exposes the ingest HTTP surface.
type Handler struct {
	svc    *Service
	optOut *optout.Registry
	pool   *pgxpool.Pool
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service, optOut *optout.Registry, pool *pgxpool.Pool) *Handler {
	return &Handler{svc: svc, optOut: optOut, pool: pool}
}

// Register mounts the ingest routes on the provided Echo instance.
func (h *Handler) Register(e *echo.Echo) {
	v1 := e.Group("/v1")
	v1.POST("/events", h.PostEvents)
	v1.POST("/opt-out", h.PostOptOut)
	v1.POST("/privacy/delete", h.PostPrivacyDelete)
}

type rejectedItem struct {
	Index   int    `json:"index"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type eventsResponse struct {
	Accepted int            `json:"accepted"`
	Rejected []rejectedItem `json:"rejected"`
	Deduped  []bool         `json:"deduped"`
}

// PostEvents implements POST /v1/events.
func (h *Handler) PostEvents(c echo.Context) error {
	ctx, span := otel.Tracer("ingest").Start(c.Request().Context(), "ingest.PostEvents")
	defer span.End()

	var raws []model.RawEnvelope
	if err := c.Bind(&raws); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
	}

	result, err := h.svc.IngestBatch(ctx, raws)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "storage unavailable"})
	}

	resp := eventsResponse{Accepted: result.Accepted, Deduped: result.Deduped}
	for _, r := range result.Rejected {
		resp.Rejected = append(resp.Rejected, rejectedItem{Index: r.Index, Code: r.Code, Message: r.Message})
	}

	if h.svc.dialect == model.DialectStrict && result.Accepted == 0 && len(raws) > 0 && len(resp.Rejected) == len(raws) {
		return c.JSON(http.StatusUnprocessableEntity, resp)
	}
	return c.JSON(http.StatusOK, resp)
}

type optOutRequest struct {
	AppUUID    string `json:"app_uuid"`
	AnonUserID string `json:"anon_user_id"`
}

// PostOptOut implements POST /v1/opt-out.
func (h *Handler) PostOptOut(c echo.Context) error {
	ctx, span := otel.Tracer("ingest").Start(c.Request().Context(), "ingest.PostOptOut")
	defer span.End()

	var req optOutRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
	}
	if req.AppUUID == "" || req.AnonUserID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "app_uuid and anon_user_id are required"})
	}

	if err := h.optOut.Register(ctx, req.AppUUID, req.AnonUserID); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "storage unavailable"})
	}
	return c.NoContent(http.StatusOK)
}

type privacyDeleteRequest struct {
	AppUUID      string `json:"app_uuid"`
	AnonUserID   string `json:"anon_user_id"`
	DeleteOptOut bool   `json:"delete_opt_out"`
}

// PostPrivacyDelete implements POST /v1/privacy/delete.
func (h *Handler) PostPrivacyDelete(c echo.Context) error {
	ctx, span := otel.Tracer("ingest").Start(c.Request().Context(), "ingest.PostPrivacyDelete")
	defer span.End()

	var req privacyDeleteRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
	}
	if req.AppUUID == "" || req.AnonUserID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "app_uuid and anon_user_id are required"})
	}

	result, err := optout.Delete(ctx, h.pool, req.AppUUID, req.AnonUserID, req.DeleteOptOut)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "storage unavailable"})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"raw_events":             result.RawEvents,
		"license_state":          result.LicenseState,
		"device_hourly_presence": result.DeviceHourlyPresence,
		"user_hourly_presence":   result.UserHourlyPresence,
		"customer_360":           result.Customer360,
		"opt_out_removed":        result.OptOutRemoved,
	})
}
