package model

import (
	"errors"
	"fmt"
	"sync"
)

// ErrInvalidHistoryBatch reports a poller/model contract violation: the four
// history sequences must always have equal length.
var ErrInvalidHistoryBatch = errors.New("telemetry: history series length mismatch")

// Telemetry is the single source of truth read by presentation: the latest
// live reading, the archived history window and the stream connection state.
// It is the only value mutated by more than one goroutine (stream client and
// history poller), so every entry point serializes against Snapshot readers.
type Telemetry struct {
	mu      sync.RWMutex
	live    Reading
	history History
	state   ConnState
}

// Snapshot is an immutable copy handed to presentation; it never aliases the
// live model's slices.
type Snapshot struct {
	Live    Reading   `json:"live"`
	History History   `json:"history"`
	State   ConnState `json:"connection_state"`
}

// NewTelemetry starts with empty series and a disconnected stream.
func NewTelemetry() *Telemetry {
	return &Telemetry{state: StateDisconnected}
}

// ApplyLiveReading replaces the live reading wholesale; readings are never
// merged field by field.
func (t *Telemetry) ApplyLiveReading(r Reading) {
	t.mu.Lock()
	t.live = r
	t.mu.Unlock()
}

// ApplyHistory replaces the whole history window atomically. On a length
// mismatch it fails with ErrInvalidHistoryBatch and leaves the previous
// window untouched.
func (t *Telemetry) ApplyHistory(labels []string, moisture, temperature, humidity MetricSeries) error {
	n := len(labels)
	if len(moisture) != n || len(temperature) != n || len(humidity) != n {
		return fmt.Errorf("%w: labels=%d moisture=%d temperature=%d humidity=%d",
			ErrInvalidHistoryBatch, n, len(moisture), len(temperature), len(humidity))
	}
	t.mu.Lock()
	t.history = History{
		Labels:      copyLabels(labels),
		Moisture:    copySeries(moisture),
		Temperature: copySeries(temperature),
		Humidity:    copySeries(humidity),
	}
	t.mu.Unlock()
	return nil
}

// SetConnState applies one state machine transition. Out-of-protocol edges
// panic: they mean the stream client is violating its own state machine.
func (t *Telemetry) SetConnState(to ConnState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	mustEdge(t.state, to)
	t.state = to
}

// TransitionFrom applies the from -> to edge only when the current state
// still equals from, holding the write lock across the check and the write.
// It reports whether the transition happened. Callers racing each other (the
// stream client's retry loop against paho's handler goroutines) must use
// this instead of ConnState plus SetConnState, which would re-open the
// check-then-act window. The edge itself still has to be legal.
func (t *Telemetry) TransitionFrom(from, to ConnState) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != from {
		return false
	}
	mustEdge(from, to)
	t.state = to
	return true
}

func (t *Telemetry) ConnState() ConnState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// Snapshot returns a deep copy for presentation, so concurrent mutation by
// the stream client or poller cannot race a reader mid-render.
func (t *Telemetry) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return Snapshot{
		Live:    copyReading(t.live),
		History: History{
			Labels:      copyLabels(t.history.Labels),
			Moisture:    copySeries(t.history.Moisture),
			Temperature: copySeries(t.history.Temperature),
			Humidity:    copySeries(t.history.Humidity),
		},
		State: t.state,
	}
}

func copyReading(r Reading) Reading {
	out := r
	out.Moisture = copyF64(r.Moisture)
	out.Temperature = copyF64(r.Temperature)
	out.Humidity = copyF64(r.Humidity)
	return out
}

func copyF64(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
