package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/loopholelabs/logging/types"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// USB is the CDC-ACM serial transport. Both directions are plain byte
// streams; there is no real-time prefix, real-time and send-buffer packets
// arrive interleaved on the one stream.
type USB struct {
	port string
	baud int
	log  types.Logger

	mu        sync.Mutex
	ser       serial.Port
	connected bool
	chunks    chan Chunk
	done      chan struct{}
}

// NewUSB returns a transport for the serial port at path.
func NewUSB(port string, log types.Logger) *USB {
	// The CDC-ACM device ignores the baud rate; any value works.
	return &USB{port: port, baud: 115200, log: log}
}

// DiscoverPort finds the single USB-attached sensor serial port. It fails
// if no USB serial port or more than one is present.
func DiscoverPort() (string, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return "", fmt.Errorf("listing serial ports: %w", err)
	}
	var usb []string
	for _, p := range ports {
		if p.IsUSB {
			usb = append(usb, p.Name)
		}
	}
	switch len(usb) {
	case 0:
		return "", fmt.Errorf("no USB serial port found")
	case 1:
		return usb[0], nil
	default:
		return "", fmt.Errorf("more than one USB serial port found: %v, pass a specific port instead of \"usb\"", usb)
	}
}

func (u *USB) Kind() Kind               { return KindUSB }
func (u *USB) HasRealTimeChannel() bool { return false }
func (u *USB) Chunks() <-chan Chunk     { return u.chunks }
func (u *USB) Target() string           { return u.port }

func (u *USB) Connect(_ context.Context) error {
	ser, err := serial.Open(u.port, &serial.Mode{BaudRate: u.baud})
	if err != nil {
		return fmt.Errorf("opening %s: %w", u.port, err)
	}
	if err := ser.ResetInputBuffer(); err != nil {
		_ = ser.Close()
		return fmt.Errorf("resetting input buffer on %s: %w", u.port, err)
	}

	chunks := make(chan Chunk, 64)
	done := make(chan struct{})

	u.mu.Lock()
	u.ser = ser
	u.chunks = chunks
	u.done = done
	u.connected = true
	u.mu.Unlock()

	// A dedicated reader keeps the OS receive buffer drained even when the
	// consumer falls behind momentarily.
	go u.readLoop(ser, chunks, done)
	return nil
}

func (u *USB) readLoop(ser serial.Port, chunks chan<- Chunk, done chan struct{}) {
	defer close(chunks)
	buf := make([]byte, 4096)
	for {
		n, err := ser.Read(buf)
		if err != nil {
			select {
			case <-done:
				// Expected: Disconnect closed the port under the read.
			default:
				if u.log != nil {
					u.log.Error().Err(err).Str("port", u.port).Msg("serial read failed")
				}
			}
			return
		}
		if n == 0 {
			continue
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		chunks <- Chunk{Data: data, Timestamp: time.Now().UnixNano()}
	}
}

func (u *USB) WriteFrame(frame []byte) error {
	u.mu.Lock()
	connected := u.connected
	ser := u.ser
	u.mu.Unlock()
	if !connected {
		return ErrNotConnected
	}
	for len(frame) > 0 {
		n, err := ser.Write(frame)
		if err != nil {
			return err
		}
		frame = frame[n:]
	}
	return ser.Drain()
}

func (u *USB) Disconnect() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if !u.connected {
		return nil
	}
	u.connected = false
	close(u.done)
	return u.ser.Close()
}
