// Package search ranks symbols for free-text queries and re-runs saved
// searches to raise alerts.
package search

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"StagAlgo/internal/domain/models"
	"StagAlgo/internal/domain/repository"
	"StagAlgo/internal/events"
	"StagAlgo/internal/services/indicators"
	"StagAlgo/pkg/cache"
	"StagAlgo/pkg/eventbus"
	"StagAlgo/pkg/logger"
	"StagAlgo/pkg/metrics"
	"StagAlgo/pkg/scheduler"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("saved search not found")
	ErrInvalid  = errors.New("invalid saved search")
)

const (
	resultPrefix = "search"
	savedPrefix  = "searches"
	alertLockKey = "lock:search-alerts"
	maxLimit     = 100

	// usersKey lists every user id with persisted searches.
	usersKey = "search-users"
)

// Score weights.
const (
	weightRelevance = 0.40
	weightFeatures  = 0.35
	weightSignals   = 0.25
)

// Market is the store view search reads.
type Market interface {
	Symbols() []models.SymbolRef
	GetSignalsFor(symbol string, since time.Time) []models.OracleSignal
	GetIndicators(symbol string, tf models.Timeframe) (models.IndicatorSnapshot, bool)
}

type Options struct {
	CacheTTL      time.Duration
	AlertInterval time.Duration
	// SignalWindow bounds the oracle signals blended into a score.
	SignalWindow time.Duration
	DefaultLimit int
}

func DefaultOptions() Options {
	return Options{
		CacheTTL:      5 * time.Minute,
		AlertInterval: 5 * time.Minute,
		SignalWindow:  24 * time.Hour,
		DefaultLimit:  10,
	}
}

type Option func(*Service)

func WithOptions(o Options) Option { return func(s *Service) { s.opts = o } }

func WithLogger(l *logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l.With("search")
		}
	}
}

func WithMetrics(m repository.Metrics) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

type Service struct {
	market  Market
	bus     *eventbus.Bus
	sched   scheduler.Scheduler
	cache   cache.Service
	opts    Options
	log     *logger.Logger
	metrics repository.Metrics

	mu      sync.RWMutex
	saved   map[string]map[string]models.SavedSearch
	lastTop map[string]float64
	cancels []func()
}

func New(market Market, bus *eventbus.Bus, sched scheduler.Scheduler, c cache.Service, opts ...Option) *Service {
	s := &Service{
		market:  market,
		bus:     bus,
		sched:   sched,
		cache:   c,
		opts:    DefaultOptions(),
		log:     logger.Nop(),
		metrics: metrics.Nop{},
		saved:   make(map[string]map[string]models.SavedSearch),
		lastTop: make(map[string]float64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start restores every persisted saved search, invalidates cached results on
// new signals or symbols and schedules the saved-search alert check.
func (s *Service) Start() {
	if err := s.restore(context.Background()); err != nil {
		s.log.Warn("saved search restore failed", logger.Error(err))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.cancels) > 0 {
		return
	}
	s.cancels = append(s.cancels,
		eventbus.Subscribe(s.bus, events.OracleSignal, func(models.OracleSignal) { s.invalidate() }),
		eventbus.Subscribe(s.bus, events.SymbolUpdated, func(models.SymbolRef) { s.invalidate() }),
		s.sched.Schedule(s.opts.AlertInterval, func(ctx context.Context) { s.CheckAlerts(ctx) }),
	)
}

func (s *Service) Shutdown() {
	s.mu.Lock()
	cancels := s.cancels
	s.cancels = nil
	s.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}

func (s *Service) invalidate() {
	if err := s.cache.DeleteByPattern(context.Background(), cache.BuildPattern(resultPrefix)); err != nil {
		s.log.Warn("search cache invalidation failed", logger.Error(err))
	}
}

func (s *Service) normalize(q models.SearchQuery) models.SearchQuery {
	q.Text = strings.ToLower(strings.TrimSpace(q.Text))
	q.Sector = strings.TrimSpace(q.Sector)
	if q.Limit <= 0 {
		q.Limit = s.opts.DefaultLimit
	}
	if q.Limit > maxLimit {
		q.Limit = maxLimit
	}
	return q
}

func resultKey(q models.SearchQuery) string {
	raw := fmt.Sprintf("%s|%s|%d|%.4f", q.Text, strings.ToLower(q.Sector), q.Limit, q.MinScore)
	return cache.GenerateKey(resultPrefix, cache.HashKey(raw))
}

// Search returns symbols ranked for q, highest score first. Results are
// cached for CacheTTL; cache failures fall back to ranking.
func (s *Service) Search(ctx context.Context, q models.SearchQuery) ([]models.SearchResult, error) {
	start := time.Now()
	defer func() { s.metrics.RecordLatency("search", time.Since(start).Seconds()) }()

	q = s.normalize(q)
	key := resultKey(q)
	var cached []models.SearchResult
	err := s.cache.Get(ctx, key, &cached)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		s.log.Warn("search cache read failed", logger.Error(err))
	}

	results := s.rank(q)
	if err := s.cache.Set(ctx, key, results, s.opts.CacheTTL); err != nil {
		s.log.Warn("search cache write failed", logger.Error(err))
	}
	return results, nil
}

func (s *Service) rank(q models.SearchQuery) []models.SearchResult {
	var terms, wanted []string
	for _, tok := range strings.Fields(q.Text) {
		if f, ok := keywords[tok]; ok {
			wanted = append(wanted, f)
			continue
		}
		terms = append(terms, tok)
	}
	since := s.sched.Now().Add(-s.opts.SignalWindow)

	results := make([]models.SearchResult, 0)
	for _, ref := range s.market.Symbols() {
		if q.Sector != "" && !strings.EqualFold(ref.Sector, q.Sector) {
			continue
		}
		rel, why := relevance(ref, terms)
		if rel == 0 {
			continue
		}

		features := mockFeatures(ref.Symbol)
		snap, hasSnap := s.indicators(ref.Symbol)
		if hasSnap {
			blendIndicators(features, snap)
		}
		sigScore, bullish, bearish := signalScore(s.market.GetSignalsFor(ref.Symbol, since))
		features[FeatureSignal] = sigScore

		featScore, featWhy := featureScore(features, wanted)
		why = append(why, featWhy...)
		if bullish+bearish > 0 {
			why = append(why, fmt.Sprintf("%d bullish / %d bearish signals", bullish, bearish))
		}
		if hasSnap && snap.RSI14 > 0 {
			switch {
			case snap.RSI14 >= 70:
				why = append(why, fmt.Sprintf("RSI %.0f overbought", snap.RSI14))
			case snap.RSI14 <= 30:
				why = append(why, fmt.Sprintf("RSI %.0f oversold", snap.RSI14))
			}
		}

		score := indicators.Clamp01(weightRelevance*rel + weightFeatures*featScore + weightSignals*sigScore)
		if score < q.MinScore {
			continue
		}
		results = append(results, models.SearchResult{
			Symbol:   ref.Symbol,
			Sector:   ref.Sector,
			Score:    score,
			Why:      why,
			Features: features,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score == results[j].Score {
			return results[i].Symbol < results[j].Symbol
		}
		return results[i].Score > results[j].Score
	})
	if len(results) > q.Limit {
		results = results[:q.Limit]
	}
	return results
}

// indicators returns the coarsest available snapshot.
func (s *Service) indicators(symbol string) (models.IndicatorSnapshot, bool) {
	for i := len(models.Timeframes) - 1; i >= 0; i-- {
		if snap, ok := s.market.GetIndicators(symbol, models.Timeframes[i]); ok {
			return snap, true
		}
	}
	return models.IndicatorSnapshot{}, false
}

// relevance scores text terms against a symbol. No terms matches everything.
func relevance(ref models.SymbolRef, terms []string) (float64, []string) {
	if len(terms) == 0 {
		return 1, nil
	}
	best, why := 0.0, ""
	sector, industry := strings.ToLower(ref.Sector), strings.ToLower(ref.Industry)
	for _, term := range terms {
		upper := strings.ToUpper(term)
		switch {
		case upper == ref.Symbol:
			best, why = 1, "symbol "+ref.Symbol
		case strings.HasPrefix(ref.Symbol, upper) && best < 0.6:
			best, why = 0.6, "symbol prefix "+upper
		case sector != "" && strings.Contains(sector, term) && best < 0.5:
			best, why = 0.5, "sector "+ref.Sector
		case industry != "" && strings.Contains(industry, term) && best < 0.5:
			best, why = 0.5, "industry "+ref.Industry
		}
	}
	if best == 0 {
		return 0, nil
	}
	return best, []string{why}
}

// featureScore averages the wanted features, or every feature when the
// query asks for none.
func featureScore(f map[string]float64, wanted []string) (float64, []string) {
	if len(wanted) > 0 {
		sum := 0.0
		why := make([]string, 0, len(wanted))
		for _, name := range wanted {
			sum += f[name]
			why = append(why, fmt.Sprintf("%s %.2f", name, f[name]))
		}
		return sum / float64(len(wanted)), why
	}
	sum, top, topName := 0.0, -1.0, ""
	for _, name := range vectorFeatures {
		sum += f[name]
		if f[name] > top {
			top, topName = f[name], name
		}
	}
	return sum / float64(len(vectorFeatures)), []string{fmt.Sprintf("strongest factor %s %.2f", topName, top)}
}

// SaveSearch stores q for userID; CheckAlerts fires when its top result
// crosses threshold.
func (s *Service) SaveSearch(ctx context.Context, userID, name string, q models.SearchQuery, threshold float64) (models.SavedSearch, error) {
	if strings.TrimSpace(userID) == "" {
		return models.SavedSearch{}, fmt.Errorf("%w: user id required", ErrInvalid)
	}
	if threshold <= 0 || threshold > 1 {
		return models.SavedSearch{}, fmt.Errorf("%w: threshold %.2f outside (0,1]", ErrInvalid, threshold)
	}
	if err := s.load(ctx, userID); err != nil {
		return models.SavedSearch{}, err
	}
	ss := models.SavedSearch{
		ID:             uuid.NewString(),
		UserID:         userID,
		Name:           name,
		Query:          s.normalize(q),
		AlertThreshold: threshold,
		CreatedAt:      s.sched.Now(),
	}

	s.mu.Lock()
	if s.saved[userID] == nil {
		s.saved[userID] = make(map[string]models.SavedSearch)
	}
	s.saved[userID][ss.ID] = ss
	list := s.listLocked(userID)
	s.mu.Unlock()

	s.persist(ctx, userID, list)
	s.log.Info("saved search created", logger.String("user_id", userID), logger.String("search_id", ss.ID))
	return ss, nil
}

// SavedSearches lists the searches of userID, oldest first.
func (s *Service) SavedSearches(ctx context.Context, userID string) ([]models.SavedSearch, error) {
	if err := s.load(ctx, userID); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listLocked(userID), nil
}

// DeleteSearch removes a saved search of userID.
func (s *Service) DeleteSearch(ctx context.Context, userID, id string) error {
	if err := s.load(ctx, userID); err != nil {
		return err
	}
	s.mu.Lock()
	if _, ok := s.saved[userID][id]; !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	delete(s.saved[userID], id)
	delete(s.lastTop, id)
	list := s.listLocked(userID)
	s.mu.Unlock()

	s.persist(ctx, userID, list)
	return nil
}

func (s *Service) listLocked(userID string) []models.SavedSearch {
	out := make([]models.SavedSearch, 0, len(s.saved[userID]))
	for _, ss := range s.saved[userID] {
		out = append(out, ss)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// load restores the searches of userID from the cache after a restart.
func (s *Service) load(ctx context.Context, userID string) error {
	s.mu.RLock()
	_, known := s.saved[userID]
	s.mu.RUnlock()
	if known {
		return nil
	}

	var list []models.SavedSearch
	err := s.cache.Get(ctx, cache.GenerateKey(savedPrefix, userID), &list)
	if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
		return fmt.Errorf("load saved searches: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.saved[userID]; ok {
		return nil
	}
	m := make(map[string]models.SavedSearch, len(list))
	for _, ss := range list {
		m[ss.ID] = ss
	}
	s.saved[userID] = m
	return nil
}

// restore loads the searches of every indexed user not yet in memory.
func (s *Service) restore(ctx context.Context) error {
	users, err := s.users(ctx)
	if err != nil {
		return err
	}
	for _, userID := range users {
		if err := s.load(ctx, userID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) users(ctx context.Context) ([]string, error) {
	var users []string
	err := s.cache.Get(ctx, usersKey, &users)
	if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
		return nil, fmt.Errorf("load saved search users: %w", err)
	}
	return users, nil
}

func (s *Service) persist(ctx context.Context, userID string, list []models.SavedSearch) {
	if err := s.cache.Set(ctx, cache.GenerateKey(savedPrefix, userID), list, 0); err != nil {
		s.log.Warn("saved search persist failed", logger.String("user_id", userID), logger.Error(err))
		return
	}
	if len(list) == 0 {
		return
	}
	users, err := s.users(ctx)
	if err != nil {
		s.log.Warn("saved search index failed", logger.String("user_id", userID), logger.Error(err))
		return
	}
	if slices.Contains(users, userID) {
		return
	}
	if err := s.cache.Set(ctx, usersKey, append(users, userID), 0); err != nil {
		s.log.Warn("saved search index failed", logger.String("user_id", userID), logger.Error(err))
	}
}

// CheckAlerts re-ranks every saved search, including those persisted by
// other instances, and emits an alert for each one whose top score rose to
// its threshold since the previous check.
func (s *Service) CheckAlerts(ctx context.Context) []models.SearchAlert {
	locked, err := s.cache.TryLock(ctx, alertLockKey, s.opts.AlertInterval)
	if err != nil {
		s.log.Warn("search alert lock failed", logger.Error(err))
		return nil
	}
	if !locked {
		return nil
	}
	defer func() {
		if err := s.cache.Unlock(ctx, alertLockKey); err != nil {
			s.log.Warn("search alert unlock failed", logger.Error(err))
		}
	}()

	if err := s.restore(ctx); err != nil {
		s.log.Warn("saved search restore failed", logger.Error(err))
	}

	s.mu.RLock()
	var all []models.SavedSearch
	for _, m := range s.saved {
		for _, ss := range m {
			all = append(all, ss)
		}
	}
	s.mu.RUnlock()
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	now := s.sched.Now()
	var alerts []models.SearchAlert
	for _, ss := range all {
		results := s.rank(ss.Query)
		top := 0.0
		if len(results) > 0 {
			top = results[0].Score
		}

		s.mu.Lock()
		prev, seen := s.lastTop[ss.ID]
		s.lastTop[ss.ID] = top
		crossed := len(results) > 0 && top >= ss.AlertThreshold && (!seen || prev < ss.AlertThreshold)
		if crossed {
			if cur, ok := s.saved[ss.UserID][ss.ID]; ok {
				at := now
				cur.LastAlertAt = &at
				s.saved[ss.UserID][ss.ID] = cur
			}
		}
		s.mu.Unlock()

		if crossed {
			alerts = append(alerts, models.SearchAlert{SearchID: ss.ID, UserID: ss.UserID, Top: results[0], CreatedAt: now})
		}
	}

	for _, a := range alerts {
		s.log.Info("saved search alert",
			logger.String("search_id", a.SearchID),
			logger.String("symbol", a.Top.Symbol),
			logger.Float("score", a.Top.Score),
		)
		eventbus.Emit(s.bus, events.SearchAlerted, a)
	}
	return alerts
}
