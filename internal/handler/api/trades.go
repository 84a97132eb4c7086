package api

import (
	"StagAlgo/internal/domain/models"
	"StagAlgo/internal/service/ratelimit"
	"StagAlgo/internal/usecase"
	"StagAlgo/internal/validator"
	xhttp "StagAlgo/pkg/http"
	xlogger "StagAlgo/pkg/logger"

	"github.com/labstack/echo/v4"
)

// TradeHandler exposes the trade gate and the rule table.
type TradeHandler struct {
	logger    *xlogger.Logger
	gate      *usecase.TradeGate
	validator *validator.Validator
	limiter   *ratelimit.Limiter
}

// NewTradeHandler wires the handler. limiter throttles submissions per user
// and may be nil.
func NewTradeHandler(logger *xlogger.Logger, gate *usecase.TradeGate, v *validator.Validator, limiter *ratelimit.Limiter) *TradeHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &TradeHandler{logger: logger.With("api.trades"), gate: gate, validator: v, limiter: limiter}
}

func (h *TradeHandler) Register(g *echo.Group) {
	g.GET("/rules", h.Rules)
	g.PATCH("/rules/:id", h.UpdateRule)
	g.PUT("/users/:user_id/profile", h.SetProfile)
	g.POST("/trades/validate", h.Validate)
	g.POST("/trades/evaluate", h.Evaluate)
	g.POST("/trades/submit", h.Submit)
	g.POST("/trades/outcome", h.Outcome)
}

func (h *TradeHandler) Rules(c echo.Context) error {
	rules := h.validator.Rules()
	return xhttp.ListResponse(c, rules, int64(len(rules)))
}

func (h *TradeHandler) UpdateRule(c echo.Context) error {
	req := &RuleUpdateRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.validator.SetRuleEnabled(req.ID, *req.Enabled); err != nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError(err.Error()))
	}
	rule, _ := h.validator.Rule(req.ID)
	h.logger.Info("rule updated", xlogger.String("rule_id", req.ID), xlogger.Bool("enabled", rule.Enabled))
	return xhttp.SuccessResponse(c, rule)
}

func (h *TradeHandler) SetProfile(c echo.Context) error {
	req := &ProfileRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	p := models.UserProfile{
		UserID:         req.UserID,
		Experience:     req.Experience,
		Personality:    req.Personality,
		AvgPerformance: req.AvgPerformance,
	}
	h.validator.SetUserProfile(p)
	return xhttp.SuccessResponse(c, p)
}

func (h *TradeHandler) Validate(c echo.Context) error {
	req := &TradeSubmission{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.gate.Validate(usecase.SubmitParams{UserID: req.UserID, Trade: req.Trade, Activity: req.Activity})
	if err != nil {
		return xhttp.AppErrorResponse(c, appError(err))
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *TradeHandler) Evaluate(c echo.Context) error {
	req := &models.TradeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return xhttp.SuccessResponse(c, h.gate.Evaluate(*req))
}

// Submit runs the full gate. Gate failures are reported in the result
// body, not as HTTP errors.
func (h *TradeHandler) Submit(c echo.Context) error {
	req := &TradeSubmission{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if h.limiter != nil && !h.limiter.Allow(req.UserID) {
		h.logger.Warn("trade submission rate limited", xlogger.String("user_id", req.UserID))
		return xhttp.AppErrorResponse(c, rateLimitedError())
	}
	res := h.gate.Submit(c.Request().Context(), usecase.SubmitParams{
		UserID:   req.UserID,
		Trade:    req.Trade,
		Activity: req.Activity,
	})
	return xhttp.SuccessResponse(c, res)
}

func (h *TradeHandler) Outcome(c echo.Context) error {
	req := &models.TradeOutcome{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.gate.RecordOutcome(*req); err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
	}
	return xhttp.NoContentResponse(c)
}
