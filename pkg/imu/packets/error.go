package packets

import "fmt"

// ErrorCode identifies the failure reported by a SensorError packet.
type ErrorCode uint8

const (
	ErrCodeFileNotFound ErrorCode = iota + 1
	ErrCodeFileAlreadyExists
	ErrCodeFileNameInvalid
	ErrCodeFilesystemFull
	ErrCodeWrongState
	ErrCodeUnknownCommand
	ErrCodeSendBufferFull
)

func (c ErrorCode) String() string {
	switch c {
	case ErrCodeFileNotFound:
		return "file not found"
	case ErrCodeFileAlreadyExists:
		return "file already exists"
	case ErrCodeFileNameInvalid:
		return "file name invalid"
	case ErrCodeFilesystemFull:
		return "filesystem full"
	case ErrCodeWrongState:
		return "wrong state"
	case ErrCodeUnknownCommand:
		return "unknown command"
	case ErrCodeSendBufferFull:
		return "send buffer full"
	}
	return fmt.Sprintf("error code %d", uint8(c))
}

const sensorErrorSize = 2 + 1

// SensorError is sent by the device in place of an acknowledgement when a
// command fails. Command is the header of the failed command.
type SensorError struct {
	Command Header
	Code    ErrorCode
}

func (p *SensorError) Header() Header { return HeaderSensorError }

func (p *SensorError) EncodePayload() []byte {
	w := newWriter(sensorErrorSize)
	w.u16(uint16(p.Command))
	w.u8(uint8(p.Code))
	return w.buf
}

// Error makes SensorError usable directly as a Go error.
func (p *SensorError) Error() string {
	return fmt.Sprintf("device error for %s: %s", p.Command, p.Code)
}

func init() {
	register(HeaderSensorError, sensorErrorSize, func(_ Header, payload []byte) (Packet, error) {
		r := &reader{buf: payload}
		return &SensorError{Command: Header(r.u16()), Code: ErrorCode(r.u8())}, nil
	})
}
