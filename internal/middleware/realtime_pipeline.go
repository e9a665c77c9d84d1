package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/will1980j/trading-hmm-server-sub001/internal/domain/models"
	domrepo "github.com/will1980j/trading-hmm-server-sub001/internal/domain/repository"
)

// Proc is the minimal processor interface the pipeline needs.
type Proc interface {
	Process(ctx context.Context, b *models.Bar) error
}

// RealtimePipeline sits between the WebSocket feed and the engine pipeline.
// It validates bars, enforces per-symbol timestamp monotonicity, and buffers
// when downstream is unavailable.
type RealtimePipeline struct {
	proc    Proc
	metrics domrepo.Metrics
	bufSize int
	bufCh   chan *models.Bar
	stopCh  chan struct{}
	started bool
	mu      sync.Mutex
	// per-symbol last accepted bar, used for monotonicity and the
	// discontinuity check against the previous close
	lastBar map[string]*models.Bar
}

type PipelineOption func(*RealtimePipeline)

// WithBufferSize sets the temporary buffer size when downstream is unavailable.
func WithBufferSize(n int) PipelineOption {
	return func(p *RealtimePipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// NewRealtimePipeline creates a new pipeline.
func NewRealtimePipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *RealtimePipeline {
	p := &RealtimePipeline{
		proc:    proc,
		metrics: metrics,
		bufSize: 1000,
		bufCh:   make(chan *models.Bar, 1000),
		stopCh:  make(chan struct{}),
		lastBar: make(map[string]*models.Bar),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.bufSize != cap(p.bufCh) {
		p.bufCh = make(chan *models.Bar, p.bufSize)
	}
	return p
}

// Start launches background flushing of buffered bars.
func (p *RealtimePipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		backoff := 50 * time.Millisecond
		for {
			select {
			case <-p.stopCh:
				return
			case b := <-p.bufCh:
				if b == nil {
					continue
				}
				if err := p.proc.Process(ctx, b); err != nil {
					// exponential backoff with cap
					if backoff < 2*time.Second {
						backoff *= 2
					}
					p.metrics.RecordError("pipeline_flush")
					time.Sleep(backoff)
					// requeue if space; drop otherwise
					select {
					case p.bufCh <- b:
					default:
						p.metrics.RecordError("pipeline_buffer_drop")
					}
				} else {
					backoff = 50 * time.Millisecond
				}
			}
		}
	}()
}

// Stop stops the background flushing.
func (p *RealtimePipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()
	close(p.stopCh)
}

// Process validates a bar and forwards it downstream, buffering on errors.
// Out-of-order and duplicate bars are dropped, not errors: the feed replays
// frames after reconnects.
func (p *RealtimePipeline) Process(ctx context.Context, b *models.Bar) error {
	start := time.Now()
	if b == nil {
		p.metrics.RecordError("pipeline_validate")
		return fmt.Errorf("bar nil")
	}
	if err := b.Validate(); err != nil {
		p.metrics.RecordBarRejected(b.Symbol, "invalid")
		return err
	}

	p.mu.Lock()
	prev := p.lastBar[b.Symbol]
	if prev != nil && !b.Ts.After(prev.Ts) {
		p.mu.Unlock()
		p.metrics.RecordBarRejected(b.Symbol, "out_of_order")
		return nil
	}
	if prev != nil {
		if err := b.ValidateAgainst(prev); err != nil {
			p.mu.Unlock()
			p.metrics.RecordBarRejected(b.Symbol, "discontinuity")
			return err
		}
	}
	p.lastBar[b.Symbol] = b
	p.mu.Unlock()

	if err := p.proc.Process(ctx, b); err != nil {
		p.metrics.RecordError("pipeline_process")
		// buffer non-blocking
		select {
		case p.bufCh <- b:
		default:
			p.metrics.RecordError("pipeline_buffer_full")
		}
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
	return nil
}
