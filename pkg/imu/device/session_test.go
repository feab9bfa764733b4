package device

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sensorstim/capture2go/pkg/imu/config"
	"github.com/sensorstim/capture2go/pkg/imu/packets"
	"github.com/sensorstim/capture2go/pkg/imu/protocol"
	"github.com/sensorstim/capture2go/pkg/imu/transport"
)

// mockTransport is an in-memory transport: frames written by the session
// are collected, and the test injects receive chunks directly.
type mockTransport struct {
	mu      sync.Mutex
	written []packets.Header
	chunks  chan transport.Chunk
	hasRt   bool
}

func newMockTransport(hasRt bool) *mockTransport {
	return &mockTransport{chunks: make(chan transport.Chunk, 256), hasRt: hasRt}
}

func (m *mockTransport) Connect(_ context.Context) error { return nil }
func (m *mockTransport) Chunks() <-chan transport.Chunk  { return m.chunks }
func (m *mockTransport) HasRealTimeChannel() bool        { return m.hasRt }
func (m *mockTransport) Kind() transport.Kind            { return transport.Kind("mock") }
func (m *mockTransport) Target() string                  { return "mock" }

func (m *mockTransport) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.chunks != nil {
		close(m.chunks)
		m.chunks = nil
	}
	return nil
}

func (m *mockTransport) WriteFrame(frame []byte) error {
	decoded, err := protocol.DecodeFrame(frame)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.written = append(m.written, decoded.Header)
	m.mu.Unlock()
	return nil
}

func (m *mockTransport) writtenHeaders() []packets.Header {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]packets.Header{}, m.written...)
}

// inject delivers one packet as a raw chunk, optionally with a receive
// timestamp.
func (m *mockTransport) inject(t *testing.T, p packets.Packet, timestamp int64) {
	t.Helper()
	frame, err := protocol.EncodePacket(p)
	require.NoError(t, err)
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotNil(t, m.chunks, "transport already closed")
	m.chunks <- transport.Chunk{Data: frame, Timestamp: timestamp}
}

func testConfig() *config.Client {
	cfg := config.Default()
	cfg.CommandTimeout = 200 * time.Millisecond
	cfg.ListFilesTimeout = 500 * time.Millisecond
	return cfg
}

func newTestDevice(t *testing.T, hasRt bool) (*Device, *mockTransport) {
	t.Helper()
	tr := newMockTransport(hasRt)
	dev := New(tr, testConfig(), nil, nil)
	require.NoError(t, dev.Connect(context.Background()))
	t.Cleanup(func() { _ = dev.Disconnect() })
	return dev, tr
}

func TestSendAndAwaitAck(t *testing.T) {
	dev, tr := newTestDevice(t, false)

	done := make(chan error, 1)
	go func() { done <- dev.StopRecording(context.Background()) }()

	require.Eventually(t, func() bool {
		return len(tr.writtenHeaders()) == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, packets.HeaderCmdStopRecording, tr.writtenHeaders()[0])

	tr.inject(t, packets.NewSimple(packets.HeaderAckStopRecording), 0)
	assert.NoError(t, <-done)
}

func TestSendAndAwaitSensorError(t *testing.T) {
	dev, tr := newTestDevice(t, false)

	done := make(chan error, 1)
	go func() { done <- dev.StartRecording(context.Background()) }()

	require.Eventually(t, func() bool {
		return len(tr.writtenHeaders()) == 1
	}, time.Second, time.Millisecond)

	tr.inject(t, &packets.SensorError{
		Command: packets.HeaderCmdStartRecording,
		Code:    packets.ErrCodeWrongState,
	}, 0)

	err := <-done
	require.Error(t, err)
	assert.True(t, IsDeviceError(err, packets.ErrCodeWrongState))
}

func TestSendAndAwaitTimeout(t *testing.T) {
	dev, _ := newTestDevice(t, false)

	err := dev.StopStreaming(context.Background())
	assert.ErrorIs(t, err, ErrTimeout)
}

// A response arriving after the waiter timed out must end up in the
// consumer stream, not vanish.
func TestLateResponseReroutedToStream(t *testing.T) {
	dev, tr := newTestDevice(t, false)

	err := dev.StopRecording(context.Background())
	require.ErrorIs(t, err, ErrTimeout)

	tr.inject(t, packets.NewSimple(packets.HeaderAckStopRecording), 0)

	select {
	case qp := <-dev.Packets():
		assert.Equal(t, packets.HeaderAckStopRecording, qp.Packet.Header())
	case <-time.After(time.Second):
		t.Fatal("late response was dropped")
	}
}

func TestStartRecordingRefusedClientSide(t *testing.T) {
	dev, tr := newTestDevice(t, false)

	tr.inject(t, &packets.DataStatus{SensorState: packets.StateRecording}, 0)
	require.Eventually(t, func() bool { return dev.Status() != nil }, time.Second, time.Millisecond)

	err := dev.StartRecording(context.Background())
	assert.ErrorIs(t, err, ErrDeviceIsRecording)
	// Refused before anything went on the wire.
	assert.Empty(t, tr.writtenHeaders())
}

func TestStartStreamingRefusedClientSide(t *testing.T) {
	dev, tr := newTestDevice(t, false)

	tr.inject(t, &packets.DataStatus{SensorState: packets.StateStreaming}, 0)
	require.Eventually(t, func() bool { return dev.Status() != nil }, time.Second, time.Millisecond)

	err := dev.StartStreaming(context.Background())
	assert.ErrorIs(t, err, ErrDeviceIsStreaming)
	assert.Empty(t, tr.writtenHeaders())
}

func TestStreamOrdering(t *testing.T) {
	dev, tr := newTestDevice(t, false)

	for i := 0; i < 20; i++ {
		tr.inject(t, &packets.DataFsBytes{Offset: uint32(i), Payload: []byte{byte(i)}}, 0)
	}

	for i := 0; i < 20; i++ {
		select {
		case qp := <-dev.Packets():
			chunk := qp.Packet.(*packets.DataFsBytes)
			assert.Equal(t, uint32(i), chunk.Offset)
		case <-time.After(time.Second):
			t.Fatalf("packet %d missing", i)
		}
	}
}

func TestStatusAndInfoCached(t *testing.T) {
	dev, tr := newTestDevice(t, false)

	tr.inject(t, &packets.DataStatus{SensorState: packets.StateIdle, BatteryPercent: 50}, 0)
	tr.inject(t, &packets.DataDeviceInfo{Serial: "ab1234"}, 0)

	require.Eventually(t, func() bool { return dev.Info() != nil }, time.Second, time.Millisecond)
	assert.Equal(t, "IMU_ab1234", dev.Name())
	assert.Equal(t, uint8(50), dev.Status().BatteryPercent)

	// Cached packets still reach the consumer stream.
	seen := map[packets.Header]bool{}
	for len(seen) < 2 {
		select {
		case qp := <-dev.Packets():
			seen[qp.Packet.Header()] = true
		case <-time.After(time.Second):
			t.Fatal("cached packets not forwarded to the stream")
		}
	}
}

func TestInitHandshake(t *testing.T) {
	dev, tr := newTestDevice(t, false)

	done := make(chan error, 1)
	go func() {
		done <- dev.Init(context.Background(), InitOptions{})
	}()

	require.Eventually(t, func() bool {
		return len(tr.writtenHeaders()) >= 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, packets.HeaderCmdGetDeviceInfo, tr.writtenHeaders()[0])

	tr.inject(t, &packets.DataStatus{SensorState: packets.StateIdle}, 0)
	tr.inject(t, &packets.DataDeviceInfo{Serial: "cd5678"}, 0)

	require.NoError(t, <-done)
	assert.Equal(t, "IMU_cd5678", dev.Name())
}

func TestInitRefusesActiveRecording(t *testing.T) {
	dev, tr := newTestDevice(t, false)

	done := make(chan error, 1)
	go func() { done <- dev.Init(context.Background(), InitOptions{}) }()

	tr.inject(t, &packets.DataStatus{SensorState: packets.StateRecording}, 0)
	assert.ErrorIs(t, <-done, ErrDeviceIsRecording)
}

func TestInitAbortsActiveRecording(t *testing.T) {
	dev, tr := newTestDevice(t, false)

	done := make(chan error, 1)
	go func() {
		done <- dev.Init(context.Background(), InitOptions{AbortRecording: true})
	}()

	tr.inject(t, &packets.DataStatus{SensorState: packets.StateRecording}, 0)

	require.Eventually(t, func() bool {
		headers := tr.writtenHeaders()
		return len(headers) == 2 && headers[1] == packets.HeaderCmdStopRecording
	}, time.Second, time.Millisecond)

	tr.inject(t, packets.NewSimple(packets.HeaderAckStopRecording), 0)
	tr.inject(t, &packets.DataDeviceInfo{Serial: "ef9999"}, 0)
	require.NoError(t, <-done)
}

func TestClockRoundtripStamping(t *testing.T) {
	dev, tr := newTestDevice(t, false)

	done := make(chan ClockStats, 1)
	go func() {
		stats, err := dev.ClockRoundtrip(context.Background())
		assert.NoError(t, err)
		done <- stats
	}()

	require.Eventually(t, func() bool {
		return len(tr.writtenHeaders()) == 1
	}, time.Second, time.Millisecond)

	// The device echo carries no host receive time; the receive path stamps
	// it with the chunk timestamp.
	tr.inject(t, &packets.DataClockRoundtrip{
		HostSendTimestamp:      1000,
		SensorReceiveTimestamp: 1050,
		SensorSendTimestamp:    1060,
	}, 1120)

	stats := <-done
	assert.Equal(t, int64(55), stats.Delay)
	assert.Equal(t, int64(5), stats.Offset)

	sample, ok := dev.ClockSample()
	require.True(t, ok)
	assert.Equal(t, int64(1120), sample.HostReceiveTimestamp)
}

func TestDisconnectFailsPendingWaiter(t *testing.T) {
	dev, tr := newTestDevice(t, false)

	done := make(chan error, 1)
	go func() { done <- dev.StopRecording(context.Background()) }()

	require.Eventually(t, func() bool {
		return len(tr.writtenHeaders()) == 1
	}, time.Second, time.Millisecond)

	require.NoError(t, dev.Disconnect())
	assert.ErrorIs(t, <-done, ErrDisconnected)
	assert.Equal(t, Disconnected, dev.State())

	// A poisoned session refuses new commands.
	err := dev.Send(packets.NewSimple(packets.HeaderCmdGetDeviceInfo))
	assert.ErrorIs(t, err, ErrDisconnected)
}

func TestQueueOverflowDropOldest(t *testing.T) {
	tr := newMockTransport(false)
	cfg := testConfig()
	cfg.QueueCapacity = 4
	cfg.QueueOverflowPolicy = config.OverflowDropOldest
	dev := New(tr, cfg, nil, nil)
	require.NoError(t, dev.Connect(context.Background()))
	t.Cleanup(func() { _ = dev.Disconnect() })

	for i := 0; i < 10; i++ {
		tr.inject(t, &packets.DataFsBytes{Offset: uint32(i), Payload: []byte{1}}, 0)
	}
	require.NoError(t, tr.Disconnect())

	var offsets []uint32
	for qp := range dev.Packets() {
		offsets = append(offsets, qp.Packet.(*packets.DataFsBytes).Offset)
	}
	// Some packets were dropped, the survivors are still in order and the
	// newest one survived.
	assert.LessOrEqual(t, len(offsets), 5)
	assert.NotEmpty(t, offsets)
	for i := 1; i < len(offsets); i++ {
		assert.Greater(t, offsets[i], offsets[i-1])
	}
	assert.Equal(t, uint32(9), offsets[len(offsets)-1])
}

func TestUnknownHeaderForwarded(t *testing.T) {
	dev, tr := newTestDevice(t, false)

	frame, err := protocol.EncodeFrame(packets.Header(0x7777), []byte{1, 2, 3})
	require.NoError(t, err)
	tr.mu.Lock()
	tr.chunks <- transport.Chunk{Data: frame}
	tr.mu.Unlock()

	select {
	case qp := <-dev.Packets():
		unknown, ok := qp.Packet.(*packets.Unknown)
		require.True(t, ok)
		assert.Equal(t, packets.Header(0x7777), unknown.Hdr)
		assert.Equal(t, []byte{1, 2, 3}, unknown.Payload)
	case <-time.After(time.Second):
		t.Fatal("unknown packet was not forwarded")
	}
}

func TestRealTimeChannelTagging(t *testing.T) {
	dev, tr := newTestDevice(t, true)

	rtFrame, err := protocol.EncodePacket(&packets.DataQuatFixed{
		Hdr:  packets.SensorDataHeaderRt(packets.EncodingQuatFixed),
		Quat: 1 << 60,
	})
	require.NoError(t, err)
	sbFrame, err := protocol.EncodePacket(&packets.DataStatus{})
	require.NoError(t, err)

	notification := []byte{0xFE}
	notification = append(notification, rtFrame...)
	notification = append(notification, sbFrame...)
	tr.mu.Lock()
	tr.chunks <- transport.Chunk{Data: notification, Timestamp: 7}
	tr.mu.Unlock()

	qp := <-dev.Packets()
	assert.Equal(t, protocol.ChannelRealTime, qp.Channel)
	assert.Equal(t, int64(7), qp.Timestamp)

	qp = <-dev.Packets()
	assert.Equal(t, protocol.ChannelSendBuffer, qp.Channel)
	assert.Equal(t, packets.HeaderDataStatus, qp.Packet.Header())
}

func TestCommandPendingConflict(t *testing.T) {
	dev, tr := newTestDevice(t, false)

	first := make(chan error, 1)
	go func() { first <- dev.StopRecording(context.Background()) }()
	require.Eventually(t, func() bool {
		return len(tr.writtenHeaders()) == 1
	}, time.Second, time.Millisecond)

	// Same expected echo header while the first command is in flight.
	err := dev.StopRecording(context.Background())
	assert.ErrorIs(t, err, ErrCommandPending)

	tr.inject(t, packets.NewSimple(packets.HeaderAckStopRecording), 0)
	assert.NoError(t, <-first)
}
