package api

import (
	"regexp"

	"StagAlgo/internal/domain/models"
	xhttp "StagAlgo/pkg/http"
	"StagAlgo/pkg/util"

	"github.com/go-playground/validator/v10"
)

var tickerPattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9.\-]{0,14}$`)

func init() {
	if err := xhttp.RegisterValidation("symbol", func(fl validator.FieldLevel) bool {
		return tickerPattern.MatchString(util.NormalizeSymbol(fl.Field().String()))
	}, "%s must be a ticker symbol"); err != nil {
		panic(err)
	}
	if err := xhttp.RegisterValidation("timeframe", func(fl validator.FieldLevel) bool {
		return models.IsValidTimeframe(models.Timeframe(fl.Field().String()))
	}, "%s must be one of 1m, 5m, 15m, 1h, D1"); err != nil {
		panic(err)
	}
}

type CandlesRequest struct {
	Symbol    string           `query:"symbol" validate:"required,symbol"`
	Timeframe models.Timeframe `query:"timeframe" validate:"omitempty,timeframe"`
	Limit     int              `query:"limit"`
}

type BackfillRequest struct {
	Symbol    string           `json:"symbol" validate:"required,symbol"`
	Timeframe models.Timeframe `json:"timeframe" default:"D1" validate:"timeframe"`
	Limit     int              `json:"limit" default:"365" validate:"gte=1,lte=5000"`
	Async     bool             `json:"async"`
}

type IndicatorsRequest struct {
	Symbol    string           `query:"symbol" validate:"required,symbol"`
	Timeframe models.Timeframe `query:"timeframe" default:"D1" validate:"timeframe"`
	History   int              `query:"history" validate:"gte=0,lte=1000"`
}

type LimitRequest struct {
	Limit int `query:"limit" default:"50" validate:"gte=1,lte=1000"`
}

type StrategiesRequest struct {
	Symbol    string           `query:"symbol" validate:"required,symbol"`
	Timeframe models.Timeframe `query:"timeframe" default:"D1" validate:"timeframe"`
	Window    int              `query:"window" default:"250" validate:"gte=2,lte=5000"`
}

// TradeSubmission is the body of validate and submit.
type TradeSubmission struct {
	UserID   string               `json:"user_id" validate:"required"`
	Trade    models.TradeRequest  `json:"trade"`
	Activity models.TradeActivity `json:"activity"`
}

type ProfileRequest struct {
	UserID         string                `param:"user_id" json:"-" validate:"required"`
	Experience     models.ExperienceTier `json:"experience" default:"beginner" validate:"oneof=beginner intermediate advanced expert"`
	Personality    models.Personality    `json:"personality" default:"moderate" validate:"oneof=conservative moderate aggressive"`
	AvgPerformance float64               `json:"avg_performance"`
}

type RuleUpdateRequest struct {
	ID      string `param:"id" json:"-" validate:"required"`
	Enabled *bool  `json:"enabled" validate:"required"`
}

type SaveSearchRequest struct {
	UserID         string             `json:"user_id" validate:"required"`
	Name           string             `json:"name"`
	Query          models.SearchQuery `json:"query"`
	AlertThreshold float64            `json:"alert_threshold" validate:"gt=0,lte=1"`
}

type UserRequest struct {
	UserID string `query:"user_id" validate:"required"`
}

type DeleteSearchRequest struct {
	ID     string `param:"id" validate:"required"`
	UserID string `query:"user_id" validate:"required"`
}
