package api

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"

	models "StreamCast/internal/domain/models"
	domrepo "StreamCast/internal/domain/repository"
	xhttp "StreamCast/pkg/http"
	xlogger "StreamCast/pkg/logger"
)

// ModelView is the read side of the model runner.
type ModelView interface {
	RunID() string
	Latest() (models.TickResult, bool)
	Errors() models.ErrorsResponse
}

// Liveness reports whether a background worker is running.
type Liveness interface {
	Running() bool
}

type lastReader interface {
	LastRead() time.Time
}

// ResultsEchoHandler serves the model's live state and its stored history.
type ResultsEchoHandler struct {
	logger   *xlogger.Logger
	model    ModelView
	store    domrepo.ResultStorage
	consumer Liveness
	window   time.Duration
}

// NewResultsEchoHandler wires the handler; store and consumer may be nil.
func NewResultsEchoHandler(logger *xlogger.Logger, model ModelView, store domrepo.ResultStorage, consumer Liveness) *ResultsEchoHandler {
	return &ResultsEchoHandler{
		logger:   logger,
		model:    model,
		store:    store,
		consumer: consumer,
		window:   time.Hour,
	}
}

func (h *ResultsEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)
	g := e.Group("/api")
	g.GET("/predictions/latest", h.Latest)
	g.GET("/errors", h.Errors)
	g.GET("/results", h.Results)
}

func (h *ResultsEchoHandler) Health(c echo.Context) error {
	res := models.HealthResponse{Status: "ok", Checks: map[string]string{}}
	if h.store != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := h.store.Health(ctx); err != nil {
			h.logger.Warn("health: storage unreachable", xlogger.Error(err))
			res.Status = "degraded"
			res.Checks["clickhouse"] = err.Error()
		} else {
			res.Checks["clickhouse"] = "ok"
		}
	}
	if h.consumer != nil {
		if h.consumer.Running() {
			res.Checks["consumer"] = "ok"
		} else {
			res.Status = "degraded"
			res.Checks["consumer"] = "stopped"
		}
		if lr, ok := h.consumer.(lastReader); ok {
			if t := lr.LastRead(); !t.IsZero() {
				res.Checks["consumer_last_read"] = t.UTC().Format(time.RFC3339)
			}
		}
	}
	if res.Status != "ok" {
		return xhttp.ServiceUnavailableResponse(c, res)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *ResultsEchoHandler) Latest(c echo.Context) error {
	res, ok := h.model.Latest()
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("no record processed yet"))
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return xhttp.SuccessResponse(c, res)
}

func (h *ResultsEchoHandler) Errors(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.model.Errors())
}

// Results returns stored ticks for a run, oldest first. run_id defaults to the
// current run and the range to the last hour.
func (h *ResultsEchoHandler) Results(c echo.Context) error {
	req := &models.ResultsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if h.store == nil {
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("result history is not configured"))
	}

	to := time.Now()
	if req.To != "" {
		t, ok := xhttp.ParseTime(req.To)
		if !ok {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("invalid to %q", req.To))
		}
		to = t
	}
	from := to.Add(-h.window)
	if req.From != "" {
		t, ok := xhttp.ParseTime(req.From)
		if !ok {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("invalid from %q", req.From))
		}
		from = t
	}
	if from.After(to) {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("from must not be after to"))
	}
	runID := req.RunID
	if runID == "" {
		runID = h.model.RunID()
	}

	rows, err := h.store.Query(c.Request().Context(), runID, from, to, req.Limit)
	if err != nil {
		h.logger.Error("results query failed", xlogger.String("run_id", runID), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("query failed").WithError(err))
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}
