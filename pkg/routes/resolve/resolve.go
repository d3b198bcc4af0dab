// Package resolve exposes single-record resolution and stored decisions over HTTP
package resolve

import (
	"context"
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/Ramsey-B/fern/pkg/engine"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/retry"
	"github.com/Ramsey-B/fern/pkg/sinks"
)

type Resolver interface {
	EntityTypes() []models.EntityType
	ResolveOne(ctx context.Context, entityType models.EntityType, record models.SourceRecord) (models.MatchDecision, error)
}

type DecisionStore interface {
	Get(ctx context.Context, id string) (*models.MatchDecision, error)
	ListByRecord(ctx context.Context, recordID string, entityType models.EntityType, limit int) ([]models.MatchDecision, error)
}

type Handler struct {
	resolver Resolver
	store    DecisionStore
	sink     sinks.Sink
	validate *validator.Validate
	logger   ectologger.Logger
}

// NewHandler creates the handler. store and sink may be nil; without a store the
// decision routes answer 503, without a sink decisions are not recorded.
func NewHandler(resolver Resolver, store DecisionStore, sink sinks.Sink, logger ectologger.Logger) *Handler {
	return &Handler{
		resolver: resolver,
		store:    store,
		sink:     sink,
		validate: validator.New(),
		logger:   logger,
	}
}

func (h *Handler) Register(g *echo.Group) {
	g.GET("/resolve", h.ListEntityTypes)
	g.POST("/resolve/:entity_type", h.Resolve)
	g.GET("/decisions", h.ListDecisions)
	g.GET("/decisions/:id", h.GetDecision)
}

func (h *Handler) ListEntityTypes(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"entity_types": h.resolver.EntityTypes()})
}

// Resolve resolves the posted record against one entity type and returns the decision
func (h *Handler) Resolve(c echo.Context) error {
	ctx := c.Request().Context()
	entityType := models.EntityType(c.Param("entity_type"))

	var body models.SourceRecord
	if err := c.Bind(&body); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.validate.Struct(body); err != nil {
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid record: %s", err.Error())
	}

	record := models.NewSourceRecord(body.ID, body.Attributes)
	record.Links = body.Links

	decision, err := h.resolver.ResolveOne(ctx, entityType, record)
	if err != nil {
		return resolveError(err, entityType)
	}

	if h.sink != nil {
		if err := h.sink.Write(ctx, []models.MatchDecision{decision}); err != nil {
			h.logger.WithContext(ctx).WithError(err).WithField("decision_id", decision.ID).Warn("Failed to record decision")
		}
	}

	return c.JSON(http.StatusOK, decision)
}

func resolveError(err error, entityType models.EntityType) error {
	switch {
	case errors.Is(err, engine.ErrUnknownEntityType):
		return httperror.NewHTTPErrorf(http.StatusNotFound, "no pipeline for entity type %q", entityType)
	case errors.Is(err, retry.ErrBudgetExhausted):
		return httperror.NewHTTPError(http.StatusBadGateway, "candidate service unavailable")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return httperror.NewHTTPError(http.StatusServiceUnavailable, "request cancelled")
	case httperror.IsHTTPError(err) && httperror.GetStatusCode(err) < http.StatusInternalServerError:
		return httperror.NewHTTPError(http.StatusBadGateway, err.Error())
	default:
		return err
	}
}

func (h *Handler) GetDecision(c echo.Context) error {
	if h.store == nil {
		return httperror.NewHTTPError(http.StatusServiceUnavailable, "decision store not configured")
	}
	decision, err := h.store.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, decision)
}

// ListDecisions lists the decisions of a record, optionally for one entity type
func (h *Handler) ListDecisions(c echo.Context) error {
	if h.store == nil {
		return httperror.NewHTTPError(http.StatusServiceUnavailable, "decision store not configured")
	}

	recordID := c.QueryParam("record_id")
	if recordID == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "record_id query parameter is required")
	}

	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return httperror.NewHTTPError(http.StatusBadRequest, "limit must be a number")
		}
		limit = n
	}

	decisions, err := h.store.ListByRecord(c.Request().Context(), recordID, models.EntityType(c.QueryParam("entity_type")), limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, decisions)
}
