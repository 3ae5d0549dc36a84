package model

import "fmt"

// ConnState is the connection state of the live telemetry stream.
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
	StateErrored      ConnState = "errored"
)

// validEdge reports whether from -> to is an allowed transition. Teardown
// (any state -> disconnected) is always allowed; everything else follows the
// connect/ack/drop/retry cycle.
func validEdge(from, to ConnState) bool {
	if to == StateDisconnected {
		return true
	}
	switch from {
	case StateDisconnected:
		return to == StateConnecting
	case StateConnecting:
		return to == StateConnected || to == StateErrored
	case StateConnected:
		return to == StateErrored
	case StateErrored:
		return to == StateConnecting
	}
	return false
}

func (s ConnState) String() string { return string(s) }

// mustEdge panics on an out-of-protocol transition: that means the stream
// client's state machine is broken, not a runtime condition to recover from.
func mustEdge(from, to ConnState) {
	if !validEdge(from, to) {
		panic(fmt.Sprintf("model: invalid connection state transition %s -> %s", from, to))
	}
}
