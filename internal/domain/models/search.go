package models

import "time"

// SearchQuery is a free-text symbol search with optional filters.
type SearchQuery struct {
	Text     string  `json:"text" query:"q"`
	Sector   string  `json:"sector,omitempty" query:"sector"`
	Limit    int     `json:"limit" query:"limit" default:"10" validate:"gte=1,lte=100"`
	MinScore float64 `json:"min_score" query:"min_score" validate:"gte=0,lte=1"`
}

// SearchResult is a ranked symbol with the reasons it ranked.
type SearchResult struct {
	Symbol   string             `json:"symbol"`
	Sector   string             `json:"sector"`
	Score    float64            `json:"score"`
	Why      []string           `json:"why"`
	Features map[string]float64 `json:"features"`
}

// SavedSearch is a user query re-run on a schedule for alerting.
type SavedSearch struct {
	ID             string      `json:"id"`
	UserID         string      `json:"user_id"`
	Name           string      `json:"name"`
	Query          SearchQuery `json:"query"`
	AlertThreshold float64     `json:"alert_threshold"`
	CreatedAt      time.Time   `json:"created_at"`
	LastAlertAt    *time.Time  `json:"last_alert_at,omitempty"`
}

// SearchAlert fires when a saved search's top result crosses its threshold.
type SearchAlert struct {
	SearchID  string       `json:"search_id"`
	UserID    string       `json:"user_id"`
	Top       SearchResult `json:"top"`
	CreatedAt time.Time    `json:"created_at"`
}
