package middleware

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"StagAlgo/internal/domain/models"
	domrepo "StagAlgo/internal/domain/repository"
	"StagAlgo/internal/service/ratelimit"
	"StagAlgo/pkg/logger"
)

// TradeSink applies a live trade locally. It never fails; rejected trades
// are counted by the sink.
type TradeSink interface {
	HandleTrade(t models.Trade) bool
}

// Forwarder ships a trade downstream and may fail.
type Forwarder interface {
	Process(ctx context.Context, t *models.Trade) error
}

// RealtimePipeline sits between the live feed and its consumers. Every
// valid trade is applied to the sink. Forwarding is throttled per symbol
// and buffered while the downstream is failing.
type RealtimePipeline struct {
	sink      TradeSink
	fwd       Forwarder
	metrics   domrepo.Metrics
	log       *logger.Logger
	maxRPS    float64
	bufSize   int
	limiter   *ratelimit.Limiter
	bufCh     chan *models.Trade
	stopCh    chan struct{}
	started   bool
	mu        sync.Mutex
	transform func(*models.Trade) *models.Trade
	now       func() time.Time
}

type PipelineOption func(*RealtimePipeline)

// WithMaxRPS caps forwarded trades per second per symbol.
func WithMaxRPS(n float64) PipelineOption {
	return func(p *RealtimePipeline) {
		if n > 0 {
			p.maxRPS = n
		}
	}
}

// WithBufferSize sets how many trades are held while the forwarder fails.
func WithBufferSize(n int) PipelineOption {
	return func(p *RealtimePipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithTransform sets a hook that rewrites trades before validation.
func WithTransform(fn func(*models.Trade) *models.Trade) PipelineOption {
	return func(p *RealtimePipeline) { p.transform = fn }
}

func WithPipelineLogger(l *logger.Logger) PipelineOption {
	return func(p *RealtimePipeline) {
		if l != nil {
			p.log = l.With("pipeline")
		}
	}
}

// WithPipelineClock replaces time.Now for throttling.
func WithPipelineClock(now func() time.Time) PipelineOption {
	return func(p *RealtimePipeline) { p.now = now }
}

// NewRealtimePipeline creates a pipeline. fwd may be nil.
func NewRealtimePipeline(sink TradeSink, fwd Forwarder, metrics domrepo.Metrics, opts ...PipelineOption) *RealtimePipeline {
	p := &RealtimePipeline{
		sink:    sink,
		fwd:     fwd,
		metrics: metrics,
		log:     logger.Nop(),
		maxRPS:  20,
		bufSize: 1000,
		stopCh:  make(chan struct{}),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan *models.Trade, p.bufSize)
	p.limiter = ratelimit.New(p.maxRPS, int(p.maxRPS))
	return p
}

// Start launches the background flush of buffered trades.
func (p *RealtimePipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started || p.fwd == nil {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go p.flush(ctx)
}

func (p *RealtimePipeline) flush(ctx context.Context) {
	const minBackoff, maxBackoff = 50 * time.Millisecond, 2 * time.Second
	backoff := minBackoff
	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case t := <-p.bufCh:
			if err := p.fwd.Process(ctx, t); err == nil {
				backoff = minBackoff
				continue
			}
			p.metrics.RecordError("pipeline_flush")
			if backoff < maxBackoff {
				backoff *= 2
			}
			select {
			case <-time.After(backoff):
			case <-p.stopCh:
				return
			}
			select {
			case p.bufCh <- t:
			default:
				p.metrics.RecordError("pipeline_buffer_drop")
			}
		}
	}
}

// Stop ends the background flush. Buffered trades are discarded.
func (p *RealtimePipeline) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return
	}
	p.started = false
	close(p.stopCh)
}

// Buffered returns the number of trades waiting for the forwarder.
func (p *RealtimePipeline) Buffered() int { return len(p.bufCh) }

// Process validates t, applies it to the sink, then forwards it.
func (p *RealtimePipeline) Process(ctx context.Context, t *models.Trade) error {
	start := p.now()
	if err := validateTrade(t); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	if p.transform != nil {
		t = p.transform(t)
		if err := validateTrade(t); err != nil {
			p.metrics.RecordError("pipeline_transform_invalid")
			return err
		}
	}

	p.sink.HandleTrade(*t)
	p.metrics.RecordLastPrice(t.Symbol, t.Price)
	if p.fwd == nil {
		return nil
	}

	if !p.limiter.AllowAt(t.Symbol, start) {
		p.metrics.RecordError("pipeline_throttle")
		return nil
	}
	if err := p.fwd.Process(ctx, t); err != nil {
		p.metrics.RecordError("pipeline_forward")
		select {
		case p.bufCh <- t:
		default:
			p.metrics.RecordError("pipeline_buffer_full")
			p.log.Warn("pipeline buffer full, trade dropped", logger.String("symbol", t.Symbol))
		}
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordLatency("pipeline_process", p.now().Sub(start).Seconds())
	return nil
}

var errInvalidTrade = errors.New("invalid trade")

func validateTrade(t *models.Trade) error {
	switch {
	case t == nil:
		return fmt.Errorf("%w: nil", errInvalidTrade)
	case t.Symbol == "":
		return fmt.Errorf("%w: symbol empty", errInvalidTrade)
	case t.Timestamp <= 0:
		return fmt.Errorf("%w: timestamp", errInvalidTrade)
	case t.Price <= 0 || t.Volume < 0:
		return fmt.Errorf("%w: price/volume", errInvalidTrade)
	}
	return nil
}
