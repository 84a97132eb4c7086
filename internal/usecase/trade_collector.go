package usecase

import (
	"context"
	"sync"

	"StagAlgo/internal/domain/models"
	drepo "StagAlgo/internal/domain/repository"
	mid "StagAlgo/internal/middleware"
	"StagAlgo/pkg/logger"
)

// FeedCollector reads the live trade stream into the realtime pipeline.
type FeedCollector struct {
	stream  drepo.MarketStream
	pipe    *mid.RealtimePipeline
	metrics drepo.Metrics
	log     *logger.Logger
	stop    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
}

func NewFeedCollector(stream drepo.MarketStream, pipe *mid.RealtimePipeline, metrics drepo.Metrics, l *logger.Logger) *FeedCollector {
	if l == nil {
		l = logger.Nop()
	}
	return &FeedCollector{stream: stream, pipe: pipe, metrics: metrics, log: l.With("feed"), stop: make(chan struct{})}
}

// IsConnected returns true if the market stream is connected.
func (c *FeedCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

// Start connects, subscribes and consumes until ctx is done.
func (c *FeedCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	c.pipe.Start(ctx)
	trCh, errCh := c.stream.Read(ctx)
	c.wg.Add(1)
	go c.consume(ctx, trCh, errCh)
	return nil
}

func (c *FeedCollector) consume(ctx context.Context, trCh <-chan *models.Trade, errCh <-chan error) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			c.metrics.RecordError("stream")
			c.log.Warn("stream error, reconnecting", logger.Error(err))
			if rerr := c.stream.Reconnect(ctx); rerr != nil {
				c.log.Error("reconnect failed", logger.Error(rerr))
				return
			}
			trCh, errCh = c.stream.Read(ctx)
		case t, ok := <-trCh:
			if !ok {
				trCh = nil
				continue
			}
			if err := c.pipe.Process(ctx, t); err != nil {
				c.log.Debug("trade not forwarded", logger.Error(err))
			}
		}
	}
}

// Shutdown stops the pipeline and closes the stream.
func (c *FeedCollector) Shutdown(context.Context) error {
	c.once.Do(func() { close(c.stop) })
	c.pipe.Stop()
	err := c.stream.Close()
	c.wg.Wait()
	return err
}
