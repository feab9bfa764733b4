package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/loopholelabs/logging/types"
	"tinygo.org/x/bluetooth"
)

// GATT identifiers of the sensor service.
var (
	// ServiceUUID is advertised by the device and used as the scan filter.
	ServiceUUID = must(bluetooth.ParseUUID("80030001-e629-4c98-9324-aa7fc0c66de7"))
	// RxCharUUID accepts frame writes from the host.
	RxCharUUID = must(bluetooth.ParseUUID("80030002-e629-4c98-9324-aa7fc0c66de7"))
	// TxCharUUID notifies frames and real-time data to the host.
	TxCharUUID = must(bluetooth.ParseUUID("80030003-e629-4c98-9324-aa7fc0c66de7"))
)

func must(u bluetooth.UUID, err error) bluetooth.UUID {
	if err != nil {
		panic(err)
	}
	return u
}

// Advertisement is one discovered device. Addr is the adapter-level address
// used to connect; Address is its printable form.
type Advertisement struct {
	Addr    bluetooth.Address
	Address string
	Name    string
	RSSI    int16
}

// Scanner discovers sensor devices by the advertised service UUID.
// Duplicate advertisements are deduplicated by address within one scan.
type Scanner struct {
	adapter *bluetooth.Adapter
	log     types.Logger
}

// NewScanner returns a Scanner on the default adapter.
func NewScanner(log types.Logger) *Scanner {
	return &Scanner{adapter: bluetooth.DefaultAdapter, log: log}
}

// Scan streams advertisements matching the service UUID and the optional
// name prefixes until ctx is cancelled. Each device is reported once; RSSI
// updates for known devices are not re-emitted.
func (s *Scanner) Scan(ctx context.Context, namePrefixes []string, found chan<- Advertisement) error {
	if err := s.adapter.Enable(); err != nil {
		return fmt.Errorf("enabling BLE adapter: %w", err)
	}

	seen := make(map[string]bool)
	var mu sync.Mutex

	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		_ = s.adapter.StopScan()
	}()
	defer close(stop)

	err := s.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
		if !result.HasServiceUUID(ServiceUUID) {
			return
		}
		name := result.LocalName()
		if !matchesPrefix(name, namePrefixes) {
			return
		}
		addr := result.Address.String()
		mu.Lock()
		dup := seen[addr]
		seen[addr] = true
		mu.Unlock()
		if dup {
			return
		}
		if s.log != nil {
			s.log.Debug().Str("name", name).Str("address", addr).
				Int("rssi", int(result.RSSI)).Msg("discovered device")
		}
		select {
		case found <- Advertisement{Addr: result.Address, Address: addr, Name: name, RSSI: result.RSSI}:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return fmt.Errorf("scanning: %w", err)
	}
	return ctx.Err()
}

func matchesPrefix(name string, prefixes []string) bool {
	if len(prefixes) == 0 {
		return true
	}
	for _, p := range prefixes {
		if len(name) >= len(p) && name[:len(p)] == p {
			return true
		}
	}
	return false
}

// BLE is the Bluetooth Low Energy transport. Notifications carry the
// real-time prefix; writes to the RX characteristic are one full frame each.
type BLE struct {
	adapter *bluetooth.Adapter
	addr    bluetooth.Address
	address string
	name    string
	log     types.Logger

	mu        sync.Mutex
	device    bluetooth.Device
	rx        bluetooth.DeviceCharacteristic
	connected bool
	sink      *notifySink
}

// notifySink hands notification callbacks over to the chunk channel. The
// BLE stack may still deliver a late callback while Disconnect runs, so the
// channel close is guarded.
type notifySink struct {
	mu     sync.Mutex
	ch     chan Chunk
	closed bool
}

func (s *notifySink) push(c Chunk) (ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- c:
		return true
	default:
		return false
	}
}

func (s *notifySink) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// NewBLE returns a transport for a previously discovered device.
func NewBLE(adv Advertisement, log types.Logger) *BLE {
	return &BLE{
		adapter: bluetooth.DefaultAdapter,
		addr:    adv.Addr,
		address: adv.Address,
		name:    adv.Name,
		log:     log,
	}
}

func (b *BLE) Kind() Kind               { return KindBLE }
func (b *BLE) HasRealTimeChannel() bool { return true }

func (b *BLE) Chunks() <-chan Chunk {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sink.ch
}

func (b *BLE) Target() string {
	if b.name != "" {
		return b.name
	}
	return b.address
}

// Connect establishes the GATT connection and subscribes to the TX
// characteristic.
func (b *BLE) Connect(ctx context.Context) error {
	if err := b.adapter.Enable(); err != nil {
		return fmt.Errorf("enabling BLE adapter: %w", err)
	}

	params := bluetooth.ConnectionParams{}
	if deadline, ok := ctx.Deadline(); ok {
		params.ConnectionTimeout = bluetooth.NewDuration(time.Until(deadline))
	}
	device, err := b.adapter.Connect(b.addr, params)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", b.Target(), err)
	}

	services, err := device.DiscoverServices([]bluetooth.UUID{ServiceUUID})
	if err != nil || len(services) == 0 {
		_ = device.Disconnect()
		return fmt.Errorf("discovering sensor service on %s: %w", b.Target(), err)
	}
	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{RxCharUUID, TxCharUUID})
	if err != nil || len(chars) != 2 {
		_ = device.Disconnect()
		return fmt.Errorf("discovering characteristics on %s: %w", b.Target(), err)
	}
	var rx, tx bluetooth.DeviceCharacteristic
	for _, c := range chars {
		switch c.UUID() {
		case RxCharUUID:
			rx = c
		case TxCharUUID:
			tx = c
		}
	}

	sink := &notifySink{ch: make(chan Chunk, 64)}
	err = tx.EnableNotifications(func(buf []byte) {
		data := make([]byte, len(buf))
		copy(data, buf)
		if !sink.push(Chunk{Data: data, Timestamp: time.Now().UnixNano()}) {
			if b.log != nil {
				b.log.Warn().Str("device", b.Target()).Msg("notification dropped")
			}
		}
	})
	if err != nil {
		_ = device.Disconnect()
		return fmt.Errorf("enabling notifications on %s: %w", b.Target(), err)
	}

	b.mu.Lock()
	b.device = device
	b.rx = rx
	b.sink = sink
	b.connected = true
	b.mu.Unlock()
	return nil
}

func (b *BLE) WriteFrame(frame []byte) error {
	b.mu.Lock()
	connected := b.connected
	rx := b.rx
	b.mu.Unlock()
	if !connected {
		return ErrNotConnected
	}
	_, err := rx.WriteWithoutResponse(frame)
	return err
}

func (b *BLE) Disconnect() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected {
		return nil
	}
	b.connected = false
	err := b.device.Disconnect()
	b.sink.close()
	return err
}

