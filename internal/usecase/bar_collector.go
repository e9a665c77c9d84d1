package usecase

import (
	"context"
	"time"

	"github.com/will1980j/trading-hmm-server-sub001/internal/domain/models"
	drepo "github.com/will1980j/trading-hmm-server-sub001/internal/domain/repository"
	mid "github.com/will1980j/trading-hmm-server-sub001/internal/middleware"
)

// BarCollector reads the live bar stream and feeds the realtime pipeline.
type BarCollector struct {
	stream  drepo.BarStream
	pipe    *mid.RealtimePipeline
	metrics drepo.Metrics
}

// NewBarCollector creates a new BarCollector instance.
func NewBarCollector(stream drepo.BarStream, pipe *mid.RealtimePipeline, metrics drepo.Metrics) *BarCollector {
	return &BarCollector{stream: stream, pipe: pipe, metrics: metrics}
}

// IsConnected returns true if the bar stream is connected.
func (c *BarCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

func (c *BarCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	c.pipe.Start(ctx)
	barCh, errCh := c.stream.Read(ctx)
	go c.consume(ctx, barCh, errCh)
	return nil
}

// consume drains the feed channels. The feed closes both channels after
// any read failure, so a stream error or a closed channel both mean the
// same thing: reconnect and read from fresh channels.
func (c *BarCollector) consume(ctx context.Context, barCh <-chan *models.Bar, errCh <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errCh:
			if ok && err != nil {
				c.metrics.RecordError("stream")
			}
			if barCh, errCh = c.reopen(ctx); barCh == nil {
				return
			}
		case b, ok := <-barCh:
			if !ok {
				if barCh, errCh = c.reopen(ctx); barCh == nil {
					return
				}
				continue
			}
			if b == nil {
				continue
			}
			_ = c.pipe.Process(ctx, b)
		}
	}
}

// reopen re-establishes the stream and returns fresh read channels,
// retrying until it succeeds or the context is cancelled.
func (c *BarCollector) reopen(ctx context.Context) (<-chan *models.Bar, <-chan error) {
	for {
		if ctx.Err() != nil {
			return nil, nil
		}
		if err := c.stream.Reconnect(ctx); err != nil {
			c.metrics.RecordError("stream_reconnect")
			select {
			case <-ctx.Done():
				return nil, nil
			case <-time.After(time.Second):
			}
			continue
		}
		return c.stream.Read(ctx)
	}
}

// Shutdown stops the pipeline and closes the stream.
func (c *BarCollector) Shutdown(ctx context.Context) error {
	c.pipe.Stop()
	return c.stream.Close()
}
