package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/will1980j/trading-hmm-server-sub001/internal/domain/models"
	drepo "github.com/will1980j/trading-hmm-server-sub001/internal/domain/repository"
	"github.com/will1980j/trading-hmm-server-sub001/internal/service/ratelimit"
	"github.com/will1980j/trading-hmm-server-sub001/pkg/cache"
	xhttp "github.com/will1980j/trading-hmm-server-sub001/pkg/http"
	xlogger "github.com/will1980j/trading-hmm-server-sub001/pkg/logger"
	xutil "github.com/will1980j/trading-hmm-server-sub001/pkg/util"
)

// OpsHandler is the thin operational surface: health, readiness, and a
// read-only view of canonical trade state. Ingestion happens over Kafka
// and WebSocket, never through HTTP.
type OpsHandler struct {
	l      *xlogger.Logger
	states drepo.TradeStateStore
	bars   drepo.BarStore
	cache  cache.Service
	ready  func() bool
	rl     *ratelimit.Limiter
}

func NewOpsHandler(l *xlogger.Logger, states drepo.TradeStateStore, bars drepo.BarStore, c cache.Service, ready func() bool) *OpsHandler {
	return &OpsHandler{l: l, states: states, bars: bars, cache: c, ready: ready, rl: ratelimit.New()}
}

func (h *OpsHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.health)
	e.GET("/ready", h.readyz)
	e.GET("/api/v1/trades/open", h.openTrades)
	e.GET("/api/v1/trades/:id", h.tradeState)
	e.GET("/api/v1/bars", h.queryBars)
}

type barsRequest struct {
	Symbol string `query:"symbol" validate:"required,symbol"`
	Start  string `query:"start"`
	End    string `query:"end"`
	Limit  int    `query:"limit" default:"1000" validate:"gte=1,lte=10000"`
}

func (h *OpsHandler) health(c echo.Context) error {
	status := map[string]any{"status": "ok"}
	if h.bars != nil {
		if err := h.bars.Health(c.Request().Context()); err != nil {
			status["status"] = "degraded"
			status["clickhouse"] = err.Error()
		}
	}
	code := http.StatusOK
	if status["status"] != "ok" {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, status)
}

func (h *OpsHandler) readyz(c echo.Context) error {
	if h.ready != nil && !h.ready() {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ready"})
}

func (h *OpsHandler) openTrades(c echo.Context) error {
	if !h.rl.Allow(c.RealIP(), 10, 2) {
		return xhttp.AppErrorResponse(c, xhttp.RateLimitedError("rate limited"))
	}
	states, err := h.states.ListOpen(c.Request().Context())
	if err != nil {
		h.l.Error("list open trades failed", xlogger.Error(err))
		return xhttp.InternalServerErrorResponse(c)
	}
	return xhttp.ListResponse(c, states, int64(len(states)))
}

func (h *OpsHandler) queryBars(c echo.Context) error {
	if !h.rl.Allow(c.RealIP(), 10, 2) {
		return xhttp.AppErrorResponse(c, xhttp.RateLimitedError("rate limited"))
	}
	req := new(barsRequest)
	if errs := xhttp.ReadAndValidateRequest(c, req); errs != nil {
		return xhttp.BadRequestResponse(c, errs)
	}

	now := time.Now().UTC()
	start := xutil.ParseTimeDefault(req.Start, now.Add(-24*time.Hour))
	end := xutil.ParseTimeDefault(req.End, now)
	start, end = xutil.AlignFromTo(start, end, "1m")
	if !end.After(start) {
		return xhttp.BadRequestResponse(c, "end must be after start")
	}

	bars, err := h.bars.Query(c.Request().Context(), req.Symbol, start, end)
	if err != nil {
		h.l.Error("bar query failed", xlogger.String("symbol", req.Symbol), xlogger.Error(err))
		return xhttp.InternalServerErrorResponse(c)
	}
	if len(bars) > req.Limit {
		bars = bars[len(bars)-req.Limit:]
	}
	return xhttp.ListResponse(c, bars, int64(len(bars)))
}

func (h *OpsHandler) tradeState(c echo.Context) error {
	if !h.rl.Allow(c.RealIP(), 20, 5) {
		return xhttp.AppErrorResponse(c, xhttp.RateLimitedError("rate limited"))
	}
	id := c.Param("id")
	if id == "" {
		return xhttp.BadRequestResponse(c, "trade id required")
	}
	ctx := c.Request().Context()

	if h.cache != nil {
		var st models.TradeState
		key := cache.TradeStateKey(id)
		if err := h.cache.Get(ctx, key, &st); err == nil {
			return xhttp.SuccessResponse(c, &st)
		}
	}

	st, err := h.states.Get(ctx, id)
	if err != nil {
		h.l.Error("trade state lookup failed", xlogger.String("trade_id", id), xlogger.Error(err))
		return xhttp.InternalServerErrorResponse(c)
	}
	if st == nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("trade not found"))
	}
	return xhttp.SuccessResponse(c, st)
}

var _ xhttp.Handler = (*OpsHandler)(nil)
