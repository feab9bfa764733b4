package device

import (
	"errors"
	"fmt"

	"github.com/sensorstim/capture2go/pkg/imu/packets"
)

var (
	// ErrTimeout is returned when an expected echo does not arrive within
	// the configured window.
	ErrTimeout = errors.New("timeout waiting for acknowledgement")
	// ErrDisconnected is returned by commands on a closed or poisoned
	// session, and completes waiters pending at disconnect.
	ErrDisconnected = errors.New("device disconnected")
	// ErrQueueOverflow poisons the session when the consumer queue fills up
	// under the error overflow policy.
	ErrQueueOverflow = errors.New("consumer queue overflow")
	// ErrCommandPending is returned when a command with the same expected
	// echo header is already in flight.
	ErrCommandPending = errors.New("command already in flight")

	// Client-side refusals based on the cached sensor state.
	ErrDeviceIsRecording = errors.New("device is recording")
	ErrDeviceIsStreaming = errors.New("device is streaming")
)

// DeviceError wraps a SensorError packet received in place of an
// acknowledgement.
type DeviceError struct {
	Packet *packets.SensorError
}

func (e *DeviceError) Error() string {
	return e.Packet.Error()
}

// Code returns the device-reported error code.
func (e *DeviceError) Code() packets.ErrorCode { return e.Packet.Code }

// Command returns the header of the failed command.
func (e *DeviceError) Command() packets.Header { return e.Packet.Command }

func newDeviceError(p *packets.SensorError) error {
	return &DeviceError{Packet: p}
}

// IsDeviceError reports whether err is a device error with the given code.
func IsDeviceError(err error, code packets.ErrorCode) bool {
	var de *DeviceError
	return errors.As(err, &de) && de.Code() == code
}

func wrapSend(h packets.Header, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("sending %s: %w", h, err)
}
