package api

import (
	"context"
	"net/http"
	"time"

	"StagAlgo/internal/domain/models"
	"StagAlgo/internal/overseer"
	"StagAlgo/internal/store"
	"StagAlgo/internal/strategy"
	"StagAlgo/internal/usecase"
	xhttp "StagAlgo/pkg/http"
	xlogger "StagAlgo/pkg/logger"
	"StagAlgo/pkg/util"

	"github.com/labstack/echo/v4"
)

// MarketHandler serves the read side of the store.
type MarketHandler struct {
	logger     *xlogger.Logger
	store      *store.Store
	candles    *usecase.CandlesUseCase
	overseer   *overseer.Overseer
	strategies []strategy.Strategy
}

func NewMarketHandler(logger *xlogger.Logger, st *store.Store, candles *usecase.CandlesUseCase, ov *overseer.Overseer) *MarketHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &MarketHandler{
		logger:   logger.With("api.market"),
		store:    st,
		candles:  candles,
		overseer: ov,
		strategies: []strategy.Strategy{
			strategy.NewBreakout(),
			strategy.NewMeanReversion(),
			strategy.NewTrendFollow(),
		},
	}
}

func (h *MarketHandler) Register(g *echo.Group) {
	g.GET("/candles", h.Candles)
	g.POST("/candles/backfill", h.Backfill)
	g.GET("/indicators", h.Indicators)
	g.GET("/portfolio", h.Portfolio)
	g.GET("/positions", h.Positions)
	g.GET("/risk", h.Risk)
	g.GET("/risk/:symbol", h.PositionRisk)
	g.GET("/signals", h.Signals)
	g.GET("/collapse", h.Collapse)
	g.GET("/strategies", h.Strategies)
	g.GET("/health", h.Health)
}

func (h *MarketHandler) Candles(c echo.Context) error {
	req := &CandlesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.candles.GetCandles(c.Request().Context(), usecase.GetCandlesParams{
		Symbol:    req.Symbol,
		Timeframe: req.Timeframe,
		Limit:     req.Limit,
	})
	if err != nil {
		return xhttp.AppErrorResponse(c, appError(err))
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, res)
}

func (h *MarketHandler) Backfill(c echo.Context) error {
	req := &BackfillRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	p := usecase.GetCandlesParams{Symbol: req.Symbol, Timeframe: req.Timeframe, Limit: req.Limit}
	if req.Async {
		id, err := h.candles.EnqueueBackfill(c.Request().Context(), p)
		if err != nil {
			return xhttp.AppErrorResponse(c, appError(err))
		}
		return xhttp.AcceptedResponse(c, id)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 30*time.Second)
	defer cancel()
	res, err := h.candles.Backfill(ctx, p)
	if err != nil {
		h.logger.Error("backfill failed", xlogger.String("symbol", req.Symbol), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, appError(err))
	}
	return xhttp.SuccessResponse(c, res)
}

type indicatorsResponse struct {
	Latest  *models.IndicatorSnapshot  `json:"latest,omitempty"`
	History []models.IndicatorSnapshot `json:"history,omitempty"`
}

func (h *MarketHandler) Indicators(c echo.Context) error {
	req := &IndicatorsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if !models.IsValidTimeframe(req.Timeframe) {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("unknown timeframe %q", req.Timeframe))
	}
	symbol := util.NormalizeSymbol(req.Symbol)
	snap, ok := h.store.GetIndicators(symbol, req.Timeframe)
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no indicators for %s %s", symbol, req.Timeframe))
	}
	res := indicatorsResponse{Latest: &snap}
	if req.History > 0 {
		res.History = h.store.GetIndicatorHistory(symbol, req.Timeframe, req.History)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *MarketHandler) Portfolio(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.store.GetPortfolioSnapshot())
}

func (h *MarketHandler) Positions(c echo.Context) error {
	positions := h.store.GetPositions()
	return xhttp.ListResponse(c, positions, int64(len(positions)))
}

type riskResponse struct {
	Latest  *models.PortfolioRisk  `json:"latest,omitempty"`
	History []models.PortfolioRisk `json:"history"`
}

func (h *MarketHandler) Risk(c echo.Context) error {
	req := &LimitRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res := riskResponse{History: h.store.GetRiskHistory(req.Limit)}
	if latest, ok := h.store.GetLatestRiskSnapshot(); ok {
		res.Latest = &latest
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *MarketHandler) PositionRisk(c echo.Context) error {
	symbol := util.NormalizeSymbol(c.Param("symbol"))
	pr, ok := h.store.GetPositionRisk(symbol)
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no risk for %s", symbol))
	}
	return xhttp.SuccessResponse(c, pr)
}

func (h *MarketHandler) Signals(c echo.Context) error {
	req := &LimitRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	signals := h.store.GetOracleSignals(req.Limit)
	return xhttp.ListResponse(c, signals, int64(len(signals)))
}

func (h *MarketHandler) Collapse(c echo.Context) error {
	if symbol := c.QueryParam("symbol"); symbol != "" {
		cs, ok := h.overseer.Collapse(util.NormalizeSymbol(symbol))
		if !ok {
			return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no collapse signal for %s", symbol))
		}
		return xhttp.SuccessResponse(c, cs)
	}
	all := h.overseer.CollapseSignals()
	return xhttp.ListResponse(c, all, int64(len(all)))
}

type strategyVerdict struct {
	Strategy string          `json:"strategy"`
	Action   strategy.Action `json:"action"`
}

// Strategies runs every built-in strategy over the stored window.
func (h *MarketHandler) Strategies(c echo.Context) error {
	req := &StrategiesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if !models.IsValidTimeframe(req.Timeframe) {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("unknown timeframe %q", req.Timeframe))
	}
	symbol := util.NormalizeSymbol(req.Symbol)
	candles := h.store.GetCandles(symbol, req.Timeframe, req.Window)
	if len(candles) == 0 {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no candles for %s %s", symbol, req.Timeframe))
	}
	ind, _ := h.store.GetIndicators(symbol, req.Timeframe)
	out := make([]strategyVerdict, 0, len(h.strategies))
	for _, s := range h.strategies {
		out = append(out, strategyVerdict{Strategy: s.Name(), Action: s.Decide(candles, ind)})
	}
	return xhttp.ListResponse(c, out, int64(len(out)))
}

func (h *MarketHandler) Health(c echo.Context) error {
	health := h.store.GetHealth()
	status := http.StatusOK
	if health.Status == models.HealthUnhealthy {
		status = http.StatusServiceUnavailable
	}
	return xhttp.DataResponse(c, status, health)
}
