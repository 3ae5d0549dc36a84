// Package monitor assembles the telemetry core into one session: the live
// stream, the history poller, the pump commander and the optional recorder,
// started and torn down as a unit.
package monitor

import (
	"context"
	"log"
	"sync"

	"github.com/balmee/watering-core/internal/model"
	"github.com/balmee/watering-core/internal/services/actuator"
	"github.com/balmee/watering-core/internal/services/history"
	"github.com/balmee/watering-core/internal/services/recorder"
	"github.com/balmee/watering-core/internal/services/stream"
)

type Session struct {
	tel       *model.Telemetry
	stream    *stream.Client
	poller    *history.Poller
	commander *actuator.Commander
	rec       *recorder.Recorder

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSession wires the components together. rec may be nil when mirroring to
// Influx is not configured.
func NewSession(tel *model.Telemetry, sc *stream.Client, poller *history.Poller,
	commander *actuator.Commander, rec *recorder.Recorder) *Session {
	if rec != nil {
		sc.OnReading(rec.Record)
	}
	return &Session{tel: tel, stream: sc, poller: poller, commander: commander, rec: rec}
}

// Start launches the stream and poll loops. Both are cancelable as a unit
// through Stop.
func (s *Session) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.stream.Start(ctx)
	if s.poller.Enabled() {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.poller.Run(ctx)
		}()
	}
}

// Stop releases every network resource deterministically: poll loop, stream
// connection, recorder flush.
func (s *Session) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.stream.Stop()
	s.wg.Wait()
	s.rec.Close()
	log.Printf("monitor: session stopped")
}

// Snapshot is the presentation-facing read model.
func (s *Session) Snapshot() model.Snapshot { return s.tel.Snapshot() }

func (s *Session) Commander() *actuator.Commander { return s.commander }

func (s *Session) Connected() bool { return s.stream.Connected() }

func (s *Session) Recorder() *recorder.Recorder { return s.rec }
