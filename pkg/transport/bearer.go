// Package transport owns bearer selection, reconnection and the uniform
// send operation the scheduler uses regardless of the active bearer.
package transport

import (
	"context"
	"errors"
)

// ErrTransportUnavailable is returned when no bearer is connected or the
// reconnect delay has not yet elapsed.
var ErrTransportUnavailable = errors.New("transport: unavailable")

// ErrSendFailure wraps a bearer-level delivery failure. The caller decides
// whether to buffer the record; the transport never retries on its own.
var ErrSendFailure = errors.New("transport: send failed")

// State is the connectivity state of the arbiter's active bearer.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Degraded
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Degraded:
		return "degraded"
	default:
		return "disconnected"
	}
}

// Bearer is one network path capable of delivering an encoded record.
// Implementations are selected once at startup from configuration.
type Bearer interface {
	Name() string
	Connect(ctx context.Context) error
	Connected() bool
	Send(ctx context.Context, payload []byte) error
	Close() error
}
