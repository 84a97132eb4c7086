package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"StagAlgo/internal/domain/models"
	domrepo "StagAlgo/internal/domain/repository"
	pkgch "StagAlgo/pkg/clickhouse"
	applogger "StagAlgo/pkg/logger"
)

// defaultChunk is the candle rows per INSERT when no batch size is set.
const defaultChunk = 2000

// ClickHouseMirror is the write-behind analytical copy of candles, risk
// snapshots, oracle signals and overseer decisions.
type ClickHouseMirror struct {
	db    *sql.DB
	ch    *pkgch.Client
	l     *applogger.Logger
	chunk int
}

func NewClickHouseMirror(ch *pkgch.Client, l *applogger.Logger) *ClickHouseMirror {
	if l == nil {
		l = applogger.Nop()
	}
	return &ClickHouseMirror{db: ch.DB(), ch: ch, l: l.With("clickhouse_mirror"), chunk: defaultChunk}
}

// WithBatchSize sets the candle rows per INSERT. Non-positive sizes are ignored.
func (s *ClickHouseMirror) WithBatchSize(n int) *ClickHouseMirror {
	if n > 0 {
		s.chunk = n
	}
	return s
}

// Schema returns the idempotent DDL of the mirror tables.
func Schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS candles (
            ts DateTime64(3, 'UTC'), symbol LowCardinality(String), timeframe LowCardinality(String),
            open Float64, high Float64, low Float64, close Float64, volume Float64, vwap Nullable(Float64)
        ) ENGINE = ReplacingMergeTree ORDER BY (symbol, timeframe, ts)`,
		`CREATE TABLE IF NOT EXISTS portfolio_risk (
            ts DateTime64(3, 'UTC'), drawdown_pct Float64, beta Float64, var95 Float64, es95 Float64,
            concentration_pct Float64, liquidity_score Float64, risk_state Float64
        ) ENGINE = MergeTree ORDER BY ts`,
		`CREATE TABLE IF NOT EXISTS oracle_signals (
            ts DateTime64(3, 'UTC'), id String, symbol LowCardinality(String), type LowCardinality(String),
            strength Float64, direction LowCardinality(String), severity LowCardinality(String),
            source String, summary String, sub_scores String
        ) ENGINE = ReplacingMergeTree ORDER BY (symbol, ts, id)`,
		`CREATE TABLE IF NOT EXISTS decisions (
            ts DateTime64(3, 'UTC'), id String, symbol LowCardinality(String), action LowCardinality(String),
            reasons String, original String, modified String
        ) ENGINE = MergeTree ORDER BY (symbol, ts)`,
	}
}

func (s *ClickHouseMirror) Init(ctx context.Context) error {
	return s.ch.InitSchema(ctx, Schema())
}

// SaveCandles inserts candles in multi-row chunks.
func (s *ClickHouseMirror) SaveCandles(ctx context.Context, candles []models.Candle) error {
	for start := 0; start < len(candles); start += s.chunk {
		end := min(start+s.chunk, len(candles))
		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*9)
		for _, c := range candles[start:end] {
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?)")
			var vwap interface{}
			if c.VWAP != nil {
				vwap = *c.VWAP
			}
			args = append(args, c.Timestamp.UTC(), c.Symbol, string(c.Timeframe), c.Open, c.High, c.Low, c.Close, c.Volume, vwap)
		}
		q := "INSERT INTO candles (ts, symbol, timeframe, open, high, low, close, volume, vwap) VALUES " + strings.Join(values, ",")
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			s.l.Error("clickhouse insert candles", applogger.Int("rows", end-start), applogger.Error(err))
			return fmt.Errorf("insert candles: %w", err)
		}
	}
	return nil
}

func (s *ClickHouseMirror) SaveRisk(ctx context.Context, r models.PortfolioRisk) error {
	const q = `INSERT INTO portfolio_risk (ts, drawdown_pct, beta, var95, es95, concentration_pct, liquidity_score, risk_state) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, r.Timestamp.UTC(), r.DrawdownPct, r.Beta, r.VaR95, r.ES95, r.ConcentrationPct, r.LiquidityScore, r.RiskState); err != nil {
		return fmt.Errorf("insert risk: %w", err)
	}
	return nil
}

func (s *ClickHouseMirror) SaveSignal(ctx context.Context, sig models.OracleSignal) error {
	sub, err := jsonString(sig.SubScores)
	if err != nil {
		return err
	}
	const q = `INSERT INTO oracle_signals (ts, id, symbol, type, strength, direction, severity, source, summary, sub_scores) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, sig.Timestamp.UTC(), sig.ID, sig.Symbol, string(sig.Type), sig.Strength,
		string(sig.Direction), string(sig.Severity), sig.Source, sig.Summary, sub); err != nil {
		return fmt.Errorf("insert signal: %w", err)
	}
	return nil
}

func (s *ClickHouseMirror) SaveDecision(ctx context.Context, d models.Decision) error {
	reasons, err := jsonString(d.Reasons)
	if err != nil {
		return err
	}
	original, err := jsonString(d.Original)
	if err != nil {
		return err
	}
	modified := ""
	if d.Modified != nil {
		if modified, err = jsonString(d.Modified); err != nil {
			return err
		}
	}
	const q = `INSERT INTO decisions (ts, id, symbol, action, reasons, original, modified) VALUES (?, ?, ?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, d.DecidedAt.UTC(), d.ID, d.Original.Symbol, string(d.Action), reasons, original, modified); err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}
	return nil
}

// FetchCandles reads the latest limit candles of symbol, oldest first. It
// serves the startup warm-up, never the live read path.
func (s *ClickHouseMirror) FetchCandles(ctx context.Context, symbol string, tf models.Timeframe, limit int) ([]models.Candle, error) {
	start := time.Now()
	const q = `
        SELECT ts, symbol, timeframe, open, high, low, close, volume, vwap
        FROM candles FINAL
        WHERE symbol = ? AND timeframe = ?
        ORDER BY ts DESC
        LIMIT ?
    `
	rows, err := s.db.QueryContext(ctx, q, symbol, string(tf), limit)
	if err != nil {
		return nil, fmt.Errorf("query candles: %w", err)
	}
	defer rows.Close()

	out := make([]models.Candle, 0, limit)
	for rows.Next() {
		var (
			c    models.Candle
			tfs  string
			vwap sql.NullFloat64
		)
		if err := rows.Scan(&c.Timestamp, &c.Symbol, &tfs, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume, &vwap); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		c.Timeframe = models.Timeframe(tfs)
		if vwap.Valid {
			v := vwap.Float64
			c.VWAP = &v
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	s.l.Debug("clickhouse fetch_candles ok",
		applogger.String("symbol", symbol),
		applogger.String("tf", string(tf)),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration", time.Since(start)))
	return out, nil
}

func (s *ClickHouseMirror) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close is a no-op; the pool belongs to the clickhouse client.
func (s *ClickHouseMirror) Close() error { return nil }

func jsonString(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}
	return string(b), nil
}

var _ domrepo.Mirror = (*ClickHouseMirror)(nil)
