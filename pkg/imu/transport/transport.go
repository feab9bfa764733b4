// Package transport provides the uniform link abstraction above BLE, USB
// serial and file playback.
package transport

import (
	"context"
	"errors"
)

// Kind identifies the transport flavour of a connection.
type Kind string

const (
	KindBLE      Kind = "ble"
	KindUSB      Kind = "usb"
	KindPlayback Kind = "playback"
)

var (
	ErrNotConnected = errors.New("transport not connected")
	ErrClosed       = errors.New("transport closed")
)

// Chunk is one raw delivery from the wire, stamped with the host receive
// time in nanoseconds.
type Chunk struct {
	Data      []byte
	Timestamp int64
}

// Transport is a full-duplex framed link to one device. Implementations own
// a single receive goroutine that publishes chunks until the link closes;
// the chunk channel is closed on disconnect or transport failure.
type Transport interface {
	Connect(ctx context.Context) error
	// WriteFrame writes exactly one complete wire frame.
	WriteFrame(frame []byte) error
	// Chunks is the receive stream. It is only valid after Connect.
	Chunks() <-chan Chunk
	// HasRealTimeChannel reports whether received chunks carry the BLE
	// notification prefix with in-band real-time frames.
	HasRealTimeChannel() bool
	Disconnect() error
	Kind() Kind
	// Target names the remote end (device name, serial port, or file path).
	Target() string
}
