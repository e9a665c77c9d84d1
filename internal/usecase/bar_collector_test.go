package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/will1980j/trading-hmm-server-sub001/internal/domain/models"
	mid "github.com/will1980j/trading-hmm-server-sub001/internal/middleware"
)

// scriptedStream fails its first read session the way the WebSocket feed
// does: one error on the error channel, then both channels close. Later
// sessions deliver bars normally.
type scriptedStream struct {
	mu         sync.Mutex
	reads      int
	reconnects int
}

func (s *scriptedStream) Connect(context.Context) error   { return nil }
func (s *scriptedStream) Subscribe(context.Context) error { return nil }
func (s *scriptedStream) Close() error                    { return nil }
func (s *scriptedStream) IsConnected() bool               { return true }

func (s *scriptedStream) Reconnect(context.Context) error {
	s.mu.Lock()
	s.reconnects++
	s.mu.Unlock()
	return nil
}

func (s *scriptedStream) Read(context.Context) (<-chan *models.Bar, <-chan error) {
	s.mu.Lock()
	s.reads++
	session := s.reads
	s.mu.Unlock()

	bars := make(chan *models.Bar, 4)
	errs := make(chan error, 1)
	if session == 1 {
		errs <- errors.New("read: connection reset")
		close(bars)
		close(errs)
		return bars, errs
	}
	bars <- pipelineBar("NQ", 31, 100, 110, 90, 100)
	return bars, errs
}

type recordingProc struct {
	bars chan *models.Bar
}

func (p *recordingProc) Process(_ context.Context, b *models.Bar) error {
	p.bars <- b
	return nil
}

func TestCollectorResumesAfterStreamError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream := &scriptedStream{}
	m := &countMetrics{}
	proc := &recordingProc{bars: make(chan *models.Bar, 1)}
	pipe := mid.NewRealtimePipeline(proc, m)
	c := NewBarCollector(stream, pipe, m)

	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case b := <-proc.bars:
		if b.Symbol != "NQ" {
			t.Fatalf("symbol = %s, want NQ", b.Symbol)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("bar after reconnect never reached the pipeline")
	}

	stream.mu.Lock()
	defer stream.mu.Unlock()
	if stream.reconnects != 1 {
		t.Fatalf("reconnects = %d, want 1", stream.reconnects)
	}
	if stream.reads != 2 {
		t.Fatalf("reads = %d, want 2 (fresh channels after reconnect)", stream.reads)
	}
}
