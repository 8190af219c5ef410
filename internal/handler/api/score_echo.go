package api

import (
	"errors"
	"net/http"
	"time"

	models "Frisk/internal/domain/models"
	drepo "Frisk/internal/domain/repository"
	"Frisk/internal/ensemble"
	"Frisk/internal/feature"
	"Frisk/internal/usecase"
	xhttp "Frisk/pkg/http"
	xlogger "Frisk/pkg/logger"

	"github.com/labstack/echo/v4"
)

const (
	maxQueryRange     = 7 * 24 * time.Hour
	defaultQueryLimit = 100
	maxQueryLimit     = 1000
)

// ScoreEchoHandler exposes the scoring engine over Echo following Clean
// Architecture.
type ScoreEchoHandler struct {
	logger  *xlogger.Logger
	engine  *usecase.ScoringEngine
	storage drepo.Storage
}

// NewScoreEchoHandler creates the scoring handler. storage may be nil when no
// transaction store is configured; the query endpoint then reports 503.
func NewScoreEchoHandler(logger *xlogger.Logger, engine *usecase.ScoringEngine, storage drepo.Storage) *ScoreEchoHandler {
	return &ScoreEchoHandler{logger: logger, engine: engine, storage: storage}
}

func (h *ScoreEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.POST("/predict", h.Predict)
	g.POST("/explain", h.Explain)
	g.GET("/transactions", h.Transactions)
	e.GET("/health", h.Health)
}

func (h *ScoreEchoHandler) Predict(c echo.Context) error {
	req := &models.TransactionInput{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	d, err := h.engine.Predict(c.Request().Context(), req.ToTransaction())
	if err != nil {
		h.logger.Error("predict usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, scoreError(err))
	}

	return xhttp.SuccessResponse(c, &models.PredictResponse{
		TxnID:        d.TxnID,
		Probability:  d.Probability,
		Label:        d.Label,
		ClfProba:     d.Signals.ClfProba,
		AnomalyScore: d.Signals.AnomalyScore,
		ReconError:   d.Signals.ReconError,
		ClusterID:    d.Signals.ClusterID,
	})
}

func (h *ScoreEchoHandler) Explain(c echo.Context) error {
	req := &models.ExplainInput{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	exp, err := h.engine.Explain(c.Request().Context(), req.ToTransaction(), req.K)
	if err != nil {
		h.logger.Error("explain usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, scoreError(err))
	}
	return xhttp.SuccessResponse(c, exp)
}

// Transactions returns recently ingested raw transactions for inspection.
// Bounds: from/to accept RFC3339 or unix seconds, the window is capped at
// seven days and the row count at 1000.
func (h *ScoreEchoHandler) Transactions(c echo.Context) error {
	if h.storage == nil {
		return xhttp.AppErrorResponse(c,
			xhttp.NewAppError("ERR_UNAVAILABLE", "", "transaction storage not configured", http.StatusServiceUnavailable))
	}

	now := time.Now().UTC()
	from := xhttp.ParseTimeDefault(c.QueryParam("from"), now.Add(-24*time.Hour))
	to := xhttp.ParseTimeDefault(c.QueryParam("to"), now)
	from, to = xhttp.ClampRange(from, to, maxQueryRange)

	limit := xhttp.ParseIntDefault(c.QueryParam("limit"), defaultQueryLimit)
	if limit <= 0 || limit > maxQueryLimit {
		limit = maxQueryLimit
	}

	txns, err := h.storage.Query(c.Request().Context(), from, to, limit)
	if err != nil {
		h.logger.Error("transaction query error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError(err.Error()).WithError(err))
	}
	return xhttp.ListResponse(c, txns, int64(len(txns)))
}

func (h *ScoreEchoHandler) Health(c echo.Context) error {
	if !h.engine.Ready() {
		return xhttp.DataResponse(c, http.StatusServiceUnavailable, &models.HealthResponse{
			Status:       "unavailable",
			ModelsLoaded: false,
		})
	}
	return xhttp.SuccessResponse(c, &models.HealthResponse{
		Status:          "ok",
		ArtifactVersion: h.engine.Version(),
		ModelsLoaded:    true,
	})
}

// scoreError maps scoring failures to transport errors: rejected input is the
// caller's fault, a broken contract or model is ours, a missing bundle means
// the service isn't ready.
func scoreError(err error) error {
	var cv *feature.ContractViolation
	var mc *ensemble.MetaContractError

	switch {
	case errors.Is(err, feature.ErrInvalidInput):
		return xhttp.BadRequestError(err.Error()).WithError(err)
	case errors.As(err, &cv), errors.As(err, &mc):
		return xhttp.NewAppError("ERR_CONTRACT", "", err.Error(), http.StatusInternalServerError).WithError(err)
	case errors.Is(err, usecase.ErrNotReady):
		return xhttp.NewAppError("ERR_UNAVAILABLE", "", err.Error(), http.StatusServiceUnavailable).WithError(err)
	default:
		return xhttp.InternalError(err.Error()).WithError(err)
	}
}
