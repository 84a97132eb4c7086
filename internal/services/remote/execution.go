package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"StagAlgo/internal/domain/models"
	domsvc "StagAlgo/internal/domain/service"
	"StagAlgo/pkg/config"
	xhttp "StagAlgo/pkg/http"
	"StagAlgo/pkg/logger"
)

const executePath = "/execute-trade"

// ExecutionClient forwards approved orders to the execution service.
type ExecutionClient struct {
	base *HTTPServiceBase
	log  *logger.Logger
}

func NewExecutionClient(cfg *config.Config, l *logger.Logger) *ExecutionClient {
	if l == nil {
		l = logger.Nop()
	}
	return &ExecutionClient{
		base: NewHTTPServiceBase("execution", cfg.Execution.BaseURL, cfg.Execution.Timeout,
			xhttp.WithRateLimit(cfg.Execution.RatePerSecond, cfg.Execution.Burst)),
		log: l.With("execution"),
	}
}

// Execute posts req. A rejection reported by the service comes back as an
// unsuccessful result; transport failures also return an error.
func (c *ExecutionClient) Execute(ctx context.Context, req models.TradeRequest) (models.ExecutionResult, error) {
	var res models.ExecutionResult
	err := c.base.PostJSON(ctx, executePath, req, &res)
	if err == nil {
		if !res.Success && res.Error == "" {
			res.Error = "rejected by execution service"
		}
		return res, nil
	}

	if se, ok := xhttp.AsStatusError(err); ok {
		var body models.ExecutionResult
		if json.Unmarshal(se.Body, &body) == nil && body.Error != "" {
			c.log.Warn("execution rejected", logger.String("symbol", req.Symbol), logger.Int("status", se.Code), logger.String("error", body.Error))
			return models.ExecutionResult{Success: false, Error: body.Error}, nil
		}
	}
	msg := err.Error()
	if errors.Is(err, context.DeadlineExceeded) {
		msg = "execution service timeout"
	}
	c.log.Error("execution failed", logger.String("symbol", req.Symbol), logger.Error(err))
	return models.ExecutionResult{Success: false, Error: msg}, fmt.Errorf("execute trade: %w", err)
}

var _ domsvc.Executor = (*ExecutionClient)(nil)
