package models

import "time"

// Side of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderType of an order.
type OrderType string

const (
	OrderMarket    OrderType = "market"
	OrderLimit     OrderType = "limit"
	OrderStop      OrderType = "stop"
	OrderStopLimit OrderType = "stop_limit"
)

// TradeRequest is the order shape forwarded to the execution service.
type TradeRequest struct {
	Symbol     string    `json:"symbol" validate:"required"`
	Side       Side      `json:"side" validate:"required,oneof=buy sell"`
	Quantity   float64   `json:"quantity" validate:"gt=0"`
	OrderType  OrderType `json:"order_type" default:"market" validate:"oneof=market limit stop stop_limit"`
	Price      *float64  `json:"price,omitempty"`
	StopPrice  *float64  `json:"stop_price,omitempty"`
	StopLoss   *float64  `json:"stop_loss,omitempty"`
	TakeProfit *float64  `json:"take_profit,omitempty"`
}

// Clone returns a deep copy of the request.
func (r TradeRequest) Clone() TradeRequest {
	out := r
	out.Price = clonePtr(r.Price)
	out.StopPrice = clonePtr(r.StopPrice)
	out.StopLoss = clonePtr(r.StopLoss)
	out.TakeProfit = clonePtr(r.TakeProfit)
	return out
}

func clonePtr(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// ExecutionResult is the execution service reply.
type ExecutionResult struct {
	Success bool   `json:"success"`
	OrderID string `json:"order_id,omitempty"`
	Error   string `json:"error,omitempty"`
}

// TradeActivity summarizes a user's recent trading behaviour.
type TradeActivity struct {
	DailyPnL          float64   `json:"daily_pnl"`
	TradesToday       int       `json:"trades_today"`
	TradesLastHour    int       `json:"trades_last_hour"`
	ConsecutiveTrades int       `json:"consecutive_trades"`
	LastLossAt        time.Time `json:"last_loss_at"`
	ResearchMinutes   float64   `json:"research_minutes"`
}

// TradeContext is everything the validator needs about a proposed trade.
type TradeContext struct {
	UserID    string        `json:"user_id"`
	Trade     TradeRequest  `json:"trade"`
	Price     float64       `json:"price"`
	Timestamp time.Time     `json:"timestamp"`
	Activity  TradeActivity `json:"activity"`
}

// Notional returns the absolute dollar value of the trade.
func (c TradeContext) Notional() float64 {
	n := c.Trade.Quantity * c.Price
	if n < 0 {
		return -n
	}
	return n
}

// TradeOutcome reports the realized result of a closed trade.
type TradeOutcome struct {
	UserID        string    `json:"user_id" validate:"required"`
	Symbol        string    `json:"symbol" validate:"required"`
	PnL           float64   `json:"pnl"`
	ViolatedRules []string  `json:"violated_rules"`
	ClosedAt      time.Time `json:"closed_at"`
}
