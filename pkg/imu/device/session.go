// Package device implements the host-side session with one IMU device: the
// receive dispatcher, synchronous commands, the packet stream, and the
// high-level operations built on top.
package device

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/loopholelabs/logging/types"

	"github.com/sensorstim/capture2go/pkg/imu/config"
	"github.com/sensorstim/capture2go/pkg/imu/metrics"
	"github.com/sensorstim/capture2go/pkg/imu/packets"
	"github.com/sensorstim/capture2go/pkg/imu/protocol"
	"github.com/sensorstim/capture2go/pkg/imu/transport"
)

// ConnState is the connection state of a session.
type ConnState int

const (
	Disconnected ConnState = iota
	Connecting
	Connected
	Closing
)

func (s ConnState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Closing:
		return "closing"
	}
	return "unknown"
}

// QueuedPacket is one entry of the consumer stream: the decoded packet, the
// channel it arrived on, and the host receive timestamp in nanoseconds.
type QueuedPacket struct {
	Packet    packets.Packet
	Channel   protocol.Channel
	Timestamp int64
}

// waiter is one pending synchronous command. At most one waiter exists per
// expected echo header.
type waiter struct {
	cmd    packets.Header
	expect map[packets.Header]bool
	ch     chan waiterResult
}

type waiterResult struct {
	packet packets.Packet
	err    error
}

// Device is the stateful host-side peer of one connected sensor. All
// exported methods are safe for concurrent use; mutation of the pending-echo
// table and the consumer queue happens only under the session lock or inside
// the single receive goroutine.
type Device struct {
	tr  transport.Transport
	cfg *config.Client
	log types.Logger
	met *metrics.Metrics

	mu       sync.Mutex
	state    ConnState
	name     string
	status   *packets.DataStatus
	info     *packets.DataDeviceInfo
	waiters  []*waiter
	poison   error
	clock    *packets.DataClockRoundtrip
	infoCh   chan struct{}
	statusCh chan struct{}

	queue chan QueuedPacket
	done  chan struct{}
}

// New creates a session over the given transport. A nil configuration uses
// the defaults; log and met may be nil.
func New(tr transport.Transport, cfg *config.Client, log types.Logger, met *metrics.Metrics) *Device {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Device{
		tr:    tr,
		cfg:   cfg,
		log:   log,
		met:   met,
		state: Disconnected,
		name:  tr.Target(),
	}
}

// Name returns the device name: "IMU_<serial>" once the device info is
// known, the transport target before that.
func (d *Device) Name() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.name
}

// State returns the current connection state.
func (d *Device) State() ConnState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Status returns the most recent DataStatus, nil before the first one.
func (d *Device) Status() *packets.DataStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

// Info returns the most recent DataDeviceInfo, nil before the first one.
func (d *Device) Info() *packets.DataDeviceInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.info
}

// Transport exposes the underlying transport (for its kind and target).
func (d *Device) Transport() transport.Transport { return d.tr }

// Packets is the consumer stream: a lazy sequence of all packets not
// consumed by pending commands, in arrival order. The channel closes when
// the session ends. Abandoning the stream drops unread packets but does not
// close the session.
func (d *Device) Packets() <-chan QueuedPacket {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.queue
}

// Connect opens the transport and starts the receive task.
func (d *Device) Connect(ctx context.Context) error {
	d.mu.Lock()
	if d.state != Disconnected {
		d.mu.Unlock()
		return errors.New("already connected")
	}
	d.state = Connecting
	d.mu.Unlock()

	if d.cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.ConnectTimeout)
		defer cancel()
	}
	if err := d.tr.Connect(ctx); err != nil {
		d.mu.Lock()
		d.state = Disconnected
		d.mu.Unlock()
		return err
	}

	d.mu.Lock()
	d.state = Connected
	d.poison = nil
	d.queue = make(chan QueuedPacket, d.cfg.QueueCapacity)
	d.done = make(chan struct{})
	d.infoCh = make(chan struct{})
	d.statusCh = make(chan struct{})
	queue := d.queue
	done := d.done
	d.mu.Unlock()

	go d.receiveLoop(d.tr.Chunks(), queue, done)
	if d.cfg.ClockSyncEnabled {
		go d.RunClockSync(context.Background())
	}
	return nil
}

// Disconnect closes the transport and ends the session. Pending waiters
// fail with ErrDisconnected.
func (d *Device) Disconnect() error {
	d.mu.Lock()
	if d.state == Disconnected || d.state == Closing {
		d.mu.Unlock()
		return nil
	}
	d.state = Closing
	d.mu.Unlock()

	err := d.tr.Disconnect()
	// The receive loop observes the closed chunk stream and finishes the
	// teardown (waiters, queue, state).
	select {
	case <-d.done:
	case <-time.After(5 * time.Second):
	}
	return err
}

// receiveLoop is the single receive task: it drains transport chunks,
// reassembles frames, decodes packets and dispatches them to waiters and
// the consumer queue.
func (d *Device) receiveLoop(chunks <-chan transport.Chunk, queue chan QueuedPacket, done chan struct{}) {
	defer close(done)
	defer d.teardown(queue)

	demux := protocol.NewDemux()
	unpacker := protocol.NewUnpacker()
	hasRt := d.tr.HasRealTimeChannel()

	var droppedRt, droppedSb uint64
	for chunk := range chunks {
		if hasRt {
			if err := demux.Feed(chunk.Data); err != nil {
				if d.log != nil {
					d.log.Error().Err(err).Str("device", d.Name()).Msg("dropping malformed notification")
				}
				continue
			}
			for {
				frame, channel, ok := demux.Next()
				if !ok {
					break
				}
				d.dispatch(queue, frame, channel, chunk.Timestamp)
			}
			droppedRt = d.reportDropped(demux.RealTime(), protocol.ChannelRealTime, droppedRt)
			droppedSb = d.reportDropped(demux.SendBuffer(), protocol.ChannelSendBuffer, droppedSb)
		} else {
			unpacker.Feed(chunk.Data)
			for {
				frame, ok := unpacker.Next()
				if !ok {
					break
				}
				d.dispatch(queue, frame, protocol.ChannelSendBuffer, chunk.Timestamp)
			}
			droppedSb = d.reportDropped(unpacker, protocol.ChannelSendBuffer, droppedSb)
		}
	}
}

func (d *Device) reportDropped(u *protocol.Unpacker, ch protocol.Channel, last uint64) uint64 {
	now := u.DroppedBytes()
	if now > last {
		d.met.BytesDropped(d.Name(), ch.String(), now-last)
		if d.log != nil {
			d.log.Warn().Str("device", d.Name()).Str("channel", ch.String()).
				Int64("bytes", int64(now-last)).Msg("dropped bytes while resynchronising")
		}
	}
	return now
}

func (d *Device) dispatch(queue chan QueuedPacket, frame protocol.Frame, channel protocol.Channel, timestamp int64) {
	d.met.FrameDecoded(d.Name(), channel.String())

	pkt, err := packets.Decode(frame.Header, frame.Payload)
	switch {
	case errors.Is(err, packets.ErrUnknownHeader):
		// Forward-compatible apps may want these; the raw payload is kept.
		d.met.UnknownHeader(d.Name())
		if d.log != nil {
			d.log.Debug().Str("device", d.Name()).Str("header", frame.Header.String()).
				Msg("unknown packet header")
		}
	case err != nil:
		// Known header, bad payload: fatal for the frame, not the session.
		d.met.DecodeError(d.Name())
		if d.log != nil {
			d.log.Error().Err(err).Str("device", d.Name()).Str("header", frame.Header.String()).
				Msg("packet decode failed")
		}
		return
	}

	switch p := pkt.(type) {
	case *packets.DataClockRoundtrip:
		if p.HostReceiveTimestamp == 0 {
			p.HostReceiveTimestamp = timestamp
		}
		d.mu.Lock()
		d.clock = p
		d.mu.Unlock()
	case *packets.DataStatus:
		d.mu.Lock()
		d.status = p
		if d.statusCh != nil {
			close(d.statusCh)
			d.statusCh = nil
		}
		d.mu.Unlock()
	case *packets.DataDeviceInfo:
		d.mu.Lock()
		d.info = p
		d.name = p.Name()
		if d.infoCh != nil {
			close(d.infoCh)
			d.infoCh = nil
		}
		d.mu.Unlock()
	}

	if d.completeWaiter(pkt) {
		return
	}
	d.enqueue(queue, QueuedPacket{Packet: pkt, Channel: channel, Timestamp: timestamp})
}

// completeWaiter routes the packet to a pending command. A SensorError
// completes the waiter whose command header matches, as a typed error.
func (d *Device) completeWaiter(pkt packets.Packet) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if se, ok := pkt.(*packets.SensorError); ok {
		for i, w := range d.waiters {
			if w.cmd == se.Command {
				d.waiters = append(d.waiters[:i], d.waiters[i+1:]...)
				w.ch <- waiterResult{err: newDeviceError(se)}
				return true
			}
		}
		return false
	}

	for i, w := range d.waiters {
		if w.expect[pkt.Header()] {
			d.waiters = append(d.waiters[:i], d.waiters[i+1:]...)
			w.ch <- waiterResult{packet: pkt}
			return true
		}
	}
	return false
}

func (d *Device) enqueue(queue chan QueuedPacket, qp QueuedPacket) {
	select {
	case queue <- qp:
		return
	default:
	}

	if d.cfg.QueueOverflowPolicy == config.OverflowError {
		d.mu.Lock()
		if d.poison == nil {
			d.poison = ErrQueueOverflow
		}
		d.mu.Unlock()
		if d.log != nil {
			d.log.Error().Str("device", d.Name()).Msg("consumer queue overflow, poisoning session")
		}
		return
	}

	// Drop-oldest: make room, count the drop, retry once.
	select {
	case <-queue:
		d.met.QueueDrop(d.Name())
	default:
	}
	select {
	case queue <- qp:
	default:
		d.met.QueueDrop(d.Name())
	}
}

// teardown fails every pending waiter, closes the queue and resets state.
func (d *Device) teardown(queue chan QueuedPacket) {
	d.mu.Lock()
	waiters := d.waiters
	d.waiters = nil
	if d.poison == nil {
		d.poison = ErrDisconnected
	}
	d.state = Disconnected
	d.infoCh = nil
	d.statusCh = nil
	d.mu.Unlock()

	for _, w := range waiters {
		w.ch <- waiterResult{err: ErrDisconnected}
	}
	close(queue)
	if d.log != nil {
		d.log.Info().Str("device", d.Name()).Msg("session ended")
	}
}

// Send encodes and writes one packet. It returns after the transport write
// completes.
func (d *Device) Send(p packets.Packet) error {
	d.mu.Lock()
	if d.state != Connected {
		err := d.poison
		d.mu.Unlock()
		if err == nil {
			err = ErrDisconnected
		}
		return wrapSend(p.Header(), err)
	}
	d.mu.Unlock()

	frame, err := protocol.EncodePacket(p)
	if err != nil {
		return wrapSend(p.Header(), err)
	}
	if err := d.tr.WriteFrame(frame); err != nil {
		return wrapSend(p.Header(), err)
	}
	d.met.PacketSent(d.Name())
	return nil
}

// SendAndAwait sends a packet and waits for a response with one of the
// expected headers, a matching SensorError, a timeout, or disconnection.
// A timeout of 0 uses the configured command timeout. A late response after
// cancellation is rerouted to the consumer stream, never dropped.
func (d *Device) SendAndAwait(ctx context.Context, p packets.Packet, timeout time.Duration, expected ...packets.Header) (packets.Packet, error) {
	if timeout == 0 {
		timeout = d.cfg.CommandTimeout
	}

	w := &waiter{
		cmd:    p.Header(),
		expect: make(map[packets.Header]bool, len(expected)),
		ch:     make(chan waiterResult, 1),
	}
	for _, h := range expected {
		w.expect[h] = true
	}

	d.mu.Lock()
	if d.state != Connected {
		err := d.poison
		d.mu.Unlock()
		if err == nil {
			err = ErrDisconnected
		}
		return nil, err
	}
	for _, existing := range d.waiters {
		for h := range w.expect {
			if existing.expect[h] {
				d.mu.Unlock()
				return nil, wrapSend(p.Header(), ErrCommandPending)
			}
		}
	}
	d.waiters = append(d.waiters, w)
	done := d.done
	d.mu.Unlock()

	if err := d.Send(p); err != nil {
		d.removeWaiter(w)
		return nil, err
	}

	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	select {
	case res := <-w.ch:
		return res.packet, res.err
	case <-timer:
		d.removeWaiter(w)
		d.met.CommandTimeout(d.Name())
		return nil, wrapSend(p.Header(), ErrTimeout)
	case <-ctx.Done():
		d.removeWaiter(w)
		return nil, ctx.Err()
	case <-done:
		return nil, ErrDisconnected
	}
}

// removeWaiter detaches a cancelled waiter; a response arriving afterwards
// simply no longer matches and flows into the consumer stream.
func (d *Device) removeWaiter(w *waiter) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, cand := range d.waiters {
		if cand == w {
			d.waiters = append(d.waiters[:i], d.waiters[i+1:]...)
			return
		}
	}
	// Already completed: drain the result so the late response is not lost.
	select {
	case res := <-w.ch:
		if res.packet != nil && d.state == Connected {
			select {
			case d.queue <- QueuedPacket{Packet: res.packet, Channel: protocol.ChannelSendBuffer}:
			default:
			}
		}
	default:
	}
}

// Err returns the sticky session error, if any.
func (d *Device) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.poison
}

// ClockSample returns the most recent clock round-trip with its derived
// delay and offset, ok=false before the first completed round-trip.
func (d *Device) ClockSample() (sample *packets.DataClockRoundtrip, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clock, d.clock != nil
}
