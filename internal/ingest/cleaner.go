// Package ingest turns repository events into clean store records. It
// resolves symbol aliases, normalizes prices, flags stale or malformed
// payloads and scores the quality of what it accepts.
package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"StagAlgo/internal/domain/models"
	"StagAlgo/internal/domain/repository"
	"StagAlgo/internal/events"
	"StagAlgo/pkg/eventbus"
	"StagAlgo/pkg/logger"
	"StagAlgo/pkg/metrics"
	"StagAlgo/pkg/scheduler"
	"StagAlgo/pkg/util"
)

var (
	ErrMalformed   = errors.New("malformed record")
	ErrStale       = errors.New("stale record")
	ErrUnsupported = errors.New("unsupported event")
	ErrLowQuality  = errors.New("low quality record")
	ErrLateTrade   = errors.New("late trade")

	errEmptyPayload = fmt.Errorf("%w: empty payload", ErrMalformed)
)

func malformed(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}

// Quality penalties.
const (
	penaltyMissingQuote = 0.3
	penaltyWideSpread   = 0.3
	penaltyLowVolume    = 0.2
)

// accepts lists the payload types each repository event may carry.
var accepts = map[string]map[models.DataType]bool{
	models.EventFeedData: {
		models.DataCandle: true, models.DataTrade: true, models.DataQuote: true,
		models.DataSignal: true, models.DataSymbol: true,
	},
	models.EventCSVImported: {
		models.DataCandle: true, models.DataSymbol: true,
	},
	models.EventBrokerSnapshot: {
		models.DataPortfolio: true,
	},
}

// Sink is the store surface clean records are written to.
type Sink interface {
	IngestCandle(c models.Candle)
	IngestQuote(q models.Quote)
	IngestPortfolioUpdate(p models.PortfolioUpdate)
	IngestOracleSignal(sig models.OracleSignal)
	UpsertSymbol(ref models.SymbolRef)
}

type Options struct {
	// StaleAfter rejects live records whose event time is older than this.
	// CSV imports are historical and never stale.
	StaleAfter    time.Duration
	MinVolume     float64
	WideSpreadPct float64
	// MinQuality drops records scoring below it. Zero keeps everything.
	MinQuality float64
	// Aliases extend DefaultAliases.
	Aliases map[string]string
}

func DefaultOptions() Options {
	return Options{
		StaleAfter:    300 * time.Second,
		MinVolume:     1000,
		WideSpreadPct: 0.02,
	}
}

type Option func(*Cleaner)

func WithOptions(o Options) Option { return func(c *Cleaner) { c.opts = o } }

func WithLogger(l *logger.Logger) Option {
	return func(c *Cleaner) {
		if l != nil {
			c.log = l.With("ingest")
		}
	}
}

func WithMetrics(m repository.Metrics) Option {
	return func(c *Cleaner) {
		if m != nil {
			c.metrics = m
		}
	}
}

// Cleaner validates, normalizes and applies repository events.
type Cleaner struct {
	sink     Sink
	bus      *eventbus.Bus
	clock    scheduler.Clock
	opts     Options
	aliases  map[string]string
	bucketer *Bucketer
	log      *logger.Logger
	metrics  repository.Metrics
}

func New(sink Sink, bus *eventbus.Bus, clock scheduler.Clock, opts ...Option) *Cleaner {
	c := &Cleaner{
		sink:     sink,
		bus:      bus,
		clock:    clock,
		opts:     DefaultOptions(),
		bucketer: NewBucketer(models.TF1m),
		log:      logger.Nop(),
		metrics:  metrics.Nop{},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.aliases = mergeAliases(DefaultAliases, c.opts.Aliases)
	return c
}

// Resolve normalizes a raw ticker and maps it through the alias table.
func (c *Cleaner) Resolve(symbol string) string {
	s := util.NormalizeSymbol(symbol)
	if canonical, ok := c.aliases[s]; ok {
		return canonical
	}
	return s
}

func (c *Cleaner) symbol(candidates ...string) string {
	for _, s := range candidates {
		if strings.TrimSpace(s) != "" {
			return c.Resolve(s)
		}
	}
	return ""
}

// Handle cleans ev and writes the result to the sink. Rejected records are
// logged, counted and announced on the bus; Handle reports whether ev was
// accepted.
func (c *Cleaner) Handle(ev models.RepositoryEvent) bool {
	rec, err := c.Clean(ev)
	if err == nil {
		err = c.apply(rec)
	}
	if err != nil {
		c.reject(ev, err)
		return false
	}
	c.metrics.RecordIngest(ev.Event, true)
	return true
}

// HandleTrade feeds one live print through Handle.
func (c *Cleaner) HandleTrade(t models.Trade) bool {
	ev, err := NewEvent(models.EventFeedData, models.DataTrade, t.Symbol, t.Time(), t)
	if err != nil {
		c.reject(models.RepositoryEvent{Event: models.EventFeedData, DataType: models.DataTrade}, err)
		return false
	}
	return c.Handle(ev)
}

func (c *Cleaner) reject(ev models.RepositoryEvent, err error) {
	c.metrics.RecordIngest(ev.Event, false)
	c.log.Warn("ingest record dropped",
		logger.String("event", ev.Event),
		logger.String("data_type", string(ev.DataType)),
		logger.String("symbol", ev.Symbol),
		logger.Error(err),
	)
	eventbus.Emit(c.bus, events.IngestRejected, events.IngestDropped{
		Event:    ev.Event,
		DataType: ev.DataType,
		Reason:   err.Error(),
	})
}

func (c *Cleaner) apply(rec models.CleanRecord) error {
	switch {
	case rec.Candle != nil:
		c.sink.IngestCandle(*rec.Candle)
	case rec.Trade != nil:
		bar, ok := c.bucketer.Add(*rec.Trade)
		if !ok {
			return ErrLateTrade
		}
		c.sink.IngestCandle(bar)
	case rec.Quote != nil:
		c.sink.IngestQuote(*rec.Quote)
	case rec.Portfolio != nil:
		c.sink.IngestPortfolioUpdate(*rec.Portfolio)
	case rec.Signal != nil:
		c.sink.IngestOracleSignal(*rec.Signal)
	case rec.SymbolRef != nil:
		c.sink.UpsertSymbol(*rec.SymbolRef)
	default:
		return malformed("empty record")
	}
	return nil
}

// Clean validates ev without touching the sink.
func (c *Cleaner) Clean(ev models.RepositoryEvent) (models.CleanRecord, error) {
	rec := models.CleanRecord{Event: ev.Event, DataType: ev.DataType, Quality: 1}
	if !accepts[ev.Event][ev.DataType] {
		return rec, fmt.Errorf("%w: %s/%s", ErrUnsupported, ev.Event, ev.DataType)
	}
	if ev.Event != models.EventCSVImported && !ev.Timestamp.IsZero() {
		if age := c.clock.Now().Sub(ev.Timestamp); age > c.opts.StaleAfter {
			rec.Stale = true
			return rec, fmt.Errorf("%w: %s old", ErrStale, age.Truncate(time.Second))
		}
	}

	var err error
	switch ev.DataType {
	case models.DataCandle:
		err = c.cleanCandle(ev, &rec)
	case models.DataTrade:
		err = c.cleanTrade(ev, &rec)
	case models.DataQuote:
		err = c.cleanQuote(ev, &rec)
	case models.DataPortfolio:
		err = c.cleanPortfolio(ev, &rec)
	case models.DataSignal:
		err = c.cleanSignal(ev, &rec)
	case models.DataSymbol:
		err = c.cleanSymbol(ev, &rec)
	}
	if err != nil {
		return rec, err
	}
	if rec.Quality < c.opts.MinQuality {
		return rec, fmt.Errorf("%w: %.2f", ErrLowQuality, rec.Quality)
	}
	return rec, nil
}

func eventTime(parsed time.Time, ev models.RepositoryEvent) time.Time {
	if !parsed.IsZero() {
		return parsed
	}
	return ev.Timestamp.UTC()
}

func timeframe(raw string, imported bool) (models.Timeframe, error) {
	if raw == "" {
		if imported {
			return models.TFD1, nil
		}
		return models.TF1m, nil
	}
	tf := models.NormalizeTimeframe(raw)
	if tf == models.DefaultTimeframe() && raw != string(models.TF1m) {
		return "", malformed("unknown timeframe %q", raw)
	}
	return tf, nil
}

func (c *Cleaner) cleanCandle(ev models.RepositoryEvent, rec *models.CleanRecord) error {
	var r rawCandle
	if err := decode(ev.RawData, &r); err != nil {
		return malformed("candle: %v", err)
	}
	sym := c.symbol(r.Symbol, ev.Symbol)
	if sym == "" {
		return malformed("candle without symbol")
	}
	tf, err := timeframe(r.Timeframe, ev.Event == models.EventCSVImported)
	if err != nil {
		return err
	}
	at := eventTime(firstTime(r.Timestamp, r.Date), ev)
	if at.IsZero() {
		return malformed("candle without timestamp")
	}
	open, okO := price(r.Open)
	high, okH := price(r.High)
	low, okL := price(r.Low)
	closePx, okC := price(r.Close)
	if !okO || !okH || !okL || !okC {
		return malformed("candle missing ohlc")
	}
	if open <= 0 || high <= 0 || low <= 0 || closePx <= 0 {
		return malformed("non-positive price")
	}
	if high < low || high < open || high < closePx || low > open || low > closePx {
		return malformed("inconsistent ohlc")
	}
	vol, _ := volume(r.Volume)
	if vol < 0 {
		return malformed("negative volume")
	}

	candle := models.Candle{
		Symbol:    sym,
		Timeframe: tf,
		Timestamp: util.BucketStart(at, tf.Duration()),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closePx,
		Volume:    vol,
	}
	if vwap, ok := price(r.VWAP); ok && vwap > 0 {
		candle.VWAP = &vwap
	}
	if vol < c.opts.MinVolume {
		rec.Quality -= penaltyLowVolume
	}
	rec.Symbol = sym
	rec.Candle = &candle
	return nil
}

func (c *Cleaner) cleanTrade(ev models.RepositoryEvent, rec *models.CleanRecord) error {
	var r rawTrade
	if err := decode(ev.RawData, &r); err != nil {
		return malformed("trade: %v", err)
	}
	sym := c.symbol(r.Symbol, r.S, ev.Symbol)
	if sym == "" {
		return malformed("trade without symbol")
	}
	px, ok := price(firstDecimal(r.Price, r.P))
	if !ok || px <= 0 {
		return malformed("trade without price")
	}
	vol, _ := volume(firstDecimal(r.Volume, r.V))
	if vol < 0 {
		return malformed("negative volume")
	}
	at := eventTime(firstTime(r.Timestamp, r.T), ev)
	if at.IsZero() {
		return malformed("trade without timestamp")
	}
	rec.Symbol = sym
	rec.Trade = &models.Trade{Symbol: sym, Timestamp: at.UnixMilli(), Price: px, Volume: vol}
	return nil
}

func (c *Cleaner) cleanQuote(ev models.RepositoryEvent, rec *models.CleanRecord) error {
	var r rawQuote
	if err := decode(ev.RawData, &r); err != nil {
		return malformed("quote: %v", err)
	}
	sym := c.symbol(r.Symbol, ev.Symbol)
	if sym == "" {
		return malformed("quote without symbol")
	}
	bid, hasBid := price(r.Bid)
	ask, hasAsk := price(r.Ask)
	last, _ := price(r.Last)
	vol, hasVol := volume(r.Volume)
	avgVol, _ := volume(r.AvgVolume)
	if bid < 0 || ask < 0 || last < 0 || vol < 0 || avgVol < 0 {
		return malformed("negative quote field")
	}
	if bid <= 0 && ask <= 0 && last <= 0 {
		return malformed("quote without price")
	}
	if bid > 0 && ask > 0 && ask < bid {
		return malformed("crossed quote %.4f/%.4f", bid, ask)
	}

	q := models.Quote{
		Symbol:    sym,
		Bid:       bid,
		Ask:       ask,
		Last:      last,
		Volume:    vol,
		AvgVolume: avgVol,
		Timestamp: eventTime(r.Timestamp.Time, ev),
	}
	if !hasBid || !hasAsk || bid == 0 || ask == 0 {
		rec.Quality -= penaltyMissingQuote
	} else if q.SpreadPct() > c.opts.WideSpreadPct {
		rec.Quality -= penaltyWideSpread
	}
	if hasVol && vol < c.opts.MinVolume {
		rec.Quality -= penaltyLowVolume
	}
	rec.Symbol = sym
	rec.Quote = &q
	return nil
}

func (c *Cleaner) cleanPortfolio(ev models.RepositoryEvent, rec *models.CleanRecord) error {
	var r rawPortfolio
	if err := decode(ev.RawData, &r); err != nil {
		return malformed("portfolio: %v", err)
	}
	equity, ok := price(r.Equity)
	if !ok || equity < 0 {
		return malformed("portfolio without equity")
	}
	cash, _ := price(r.Cash)
	at := eventTime(r.Timestamp.Time, ev)

	update := models.PortfolioUpdate{Equity: equity, Cash: cash, Timestamp: at}
	if r.Positions != nil {
		update.Positions = make([]models.Position, 0, len(r.Positions))
		seen := make(map[string]bool, len(r.Positions))
		for i, rp := range r.Positions {
			p, err := c.position(rp)
			if err != nil {
				return malformed("position %d: %v", i, err)
			}
			if seen[p.Symbol] {
				return malformed("duplicate position %s", p.Symbol)
			}
			seen[p.Symbol] = true
			p.UpdatedAt = at
			update.Positions = append(update.Positions, p)
		}
	}
	rec.Portfolio = &update
	return nil
}

func (c *Cleaner) position(rp rawPosition) (models.Position, error) {
	sym := c.symbol(rp.Symbol)
	if sym == "" {
		return models.Position{}, errors.New("missing symbol")
	}
	qty, ok := volume(firstDecimal(rp.Quantity, rp.Qty))
	if !ok {
		return models.Position{}, errors.New("missing quantity")
	}
	avg, _ := price(rp.AvgCost)
	if avg < 0 {
		return models.Position{}, errors.New("negative average cost")
	}
	mv, ok := price(rp.MarketValue)
	if !ok {
		mv = qty * avg
	}
	upnl, _ := price(rp.UnrealizedPnL)
	rpnl, _ := price(rp.RealizedPnL)
	return models.Position{
		Symbol:        sym,
		Quantity:      qty,
		AvgCost:       avg,
		MarketValue:   mv,
		UnrealizedPnL: upnl,
		RealizedPnL:   rpnl,
	}, nil
}

func (c *Cleaner) cleanSignal(ev models.RepositoryEvent, rec *models.CleanRecord) error {
	var r rawSignal
	if err := decode(ev.RawData, &r); err != nil {
		return malformed("signal: %v", err)
	}
	sym := c.symbol(r.Symbol, ev.Symbol)
	if sym == "" {
		return malformed("signal without symbol")
	}
	typ := models.SignalType(strings.ToLower(strings.TrimSpace(r.Type)))
	if !typ.IsValid() {
		return malformed("unknown signal type %q", r.Type)
	}
	sev := models.Severity(strings.ToLower(strings.TrimSpace(r.Severity)))
	switch sev {
	case "", models.SeverityLow, models.SeverityMedium, models.SeverityHigh, models.SeverityCritical:
	default:
		return malformed("unknown severity %q", r.Severity)
	}
	dir := models.Direction(strings.ToLower(strings.TrimSpace(r.Direction)))
	switch dir {
	case models.DirectionBullish, models.DirectionBearish, models.DirectionNeutral:
	default:
		dir = models.DirectionNeutral
	}
	rec.Symbol = sym
	rec.Signal = &models.OracleSignal{
		ID:        r.ID,
		Symbol:    sym,
		Type:      typ,
		Strength:  r.Strength,
		Direction: dir,
		Source:    r.Source,
		Timestamp: eventTime(r.Timestamp.Time, ev),
		Summary:   r.Summary,
		Severity:  sev,
		SubScores: r.SubScores,
	}
	return nil
}

func (c *Cleaner) cleanSymbol(ev models.RepositoryEvent, rec *models.CleanRecord) error {
	var r rawSymbol
	if err := decode(ev.RawData, &r); err != nil {
		return malformed("symbol: %v", err)
	}
	sym := c.symbol(r.Symbol, ev.Symbol)
	if sym == "" {
		return malformed("symbol record without symbol")
	}
	class := models.AssetClass(strings.ToLower(strings.TrimSpace(r.AssetClass)))
	switch class {
	case "", models.AssetEquity, models.AssetETF, models.AssetCrypto:
	default:
		class = models.AssetOther
	}
	rec.Symbol = sym
	rec.SymbolRef = &models.SymbolRef{
		Symbol:     sym,
		Exchange:   strings.ToUpper(strings.TrimSpace(r.Exchange)),
		AssetClass: class,
		Sector:     strings.TrimSpace(r.Sector),
		Industry:   strings.TrimSpace(r.Industry),
		UpdatedAt:  ev.Timestamp.UTC(),
	}
	return nil
}

// NewEvent wraps payload in a repository event envelope.
func NewEvent(event string, dt models.DataType, symbol string, at time.Time, payload interface{}) (models.RepositoryEvent, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return models.RepositoryEvent{}, fmt.Errorf("marshal %s payload: %w", dt, err)
	}
	return models.RepositoryEvent{
		Event:     event,
		Symbol:    symbol,
		Timestamp: at.UTC(),
		DataType:  dt,
		RawData:   raw,
	}, nil
}
