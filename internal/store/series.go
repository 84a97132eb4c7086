package store

import (
	"sort"
	"time"

	"StagAlgo/internal/domain/models"
)

type seriesKey struct {
	symbol string
	tf     models.Timeframe
}

type equityPoint struct {
	at     time.Time
	equity float64
}

func candleTime(c models.Candle) time.Time              { return c.Timestamp }
func snapshotTime(s models.IndicatorSnapshot) time.Time { return s.Timestamp }
func riskTime(r models.PortfolioRisk) time.Time         { return r.Timestamp }
func positionRiskTime(r models.PositionRisk) time.Time  { return r.Timestamp }
func signalTime(s models.OracleSignal) time.Time        { return s.Timestamp }
func equityTime(p equityPoint) time.Time                { return p.at }
func rollupTime(r models.PerformanceRollup) time.Time   { return r.Day }

// upsertByTime inserts v into the ascending series xs. An element with the
// exact same timestamp is replaced.
func upsertByTime[T any](xs []T, v T, ts func(T) time.Time) []T {
	at := ts(v)
	i := sort.Search(len(xs), func(i int) bool { return !ts(xs[i]).Before(at) })
	if i < len(xs) && ts(xs[i]).Equal(at) {
		xs[i] = v
		return xs
	}
	xs = append(xs, v)
	copy(xs[i+1:], xs[i:])
	xs[i] = v
	return xs
}

// pruneBefore drops elements older than cutoff. The newest element always
// survives. It returns the pruned series and the number of removed elements.
func pruneBefore[T any](xs []T, cutoff time.Time, ts func(T) time.Time) ([]T, int) {
	if len(xs) == 0 {
		return xs, 0
	}
	i := sort.Search(len(xs), func(i int) bool { return !ts(xs[i]).Before(cutoff) })
	if i == len(xs) {
		i = len(xs) - 1
	}
	if i == 0 {
		return xs, 0
	}
	out := make([]T, len(xs)-i)
	copy(out, xs[i:])
	return out, i
}

// tail copies the last limit elements of xs; limit <= 0 copies everything.
func tail[T any](xs []T, limit int) []T {
	if limit <= 0 || limit > len(xs) {
		limit = len(xs)
	}
	out := make([]T, limit)
	copy(out, xs[len(xs)-limit:])
	return out
}
