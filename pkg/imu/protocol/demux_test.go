package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sensorstim/capture2go/pkg/imu/packets"
)

func drainDemux(d *Demux) (rt, sb []Frame) {
	for {
		frame, channel, ok := d.Next()
		if !ok {
			return rt, sb
		}
		if channel == ChannelRealTime {
			rt = append(rt, frame)
		} else {
			sb = append(sb, frame)
		}
	}
}

// A notification with two real-time frames followed by send-buffer bytes:
// both real-time frames come out of the real-time channel, the remainder
// accumulates in the send-buffer unpacker.
func TestDemuxTwoRealTimeFrames(t *testing.T) {
	rt1 := testFrame(t, packets.HeaderDataClockRoundtrip, make([]byte, 32))
	rt2 := testFrame(t, packets.HeaderDataStatus, make([]byte, 24))
	sbPartial := testFrame(t, packets.HeaderDataFsBytes, []byte{0, 0, 0, 0, 1})[:20]

	notification := []byte{0xFD}
	notification = append(notification, rt1...)
	notification = append(notification, rt2...)
	notification = append(notification, sbPartial...)

	d := NewDemux()
	require.NoError(t, d.Feed(notification))

	rt, sb := drainDemux(d)
	require.Len(t, rt, 2)
	assert.Equal(t, packets.HeaderDataClockRoundtrip, rt[0].Header)
	assert.Equal(t, packets.HeaderDataStatus, rt[1].Header)
	assert.Empty(t, sb)
	assert.Equal(t, 20, d.SendBuffer().Pending())
}

// Leading byte 0xFF means zero real-time frames; everything goes to the
// send-buffer channel.
func TestDemuxZeroRealTime(t *testing.T) {
	frame := testFrame(t, packets.HeaderDataStatus, []byte{1})
	notification := append([]byte{0xFF}, frame...)

	d := NewDemux()
	require.NoError(t, d.Feed(notification))

	rt, sb := drainDemux(d)
	assert.Empty(t, rt)
	require.Len(t, sb, 1)
	assert.Equal(t, packets.HeaderDataStatus, sb[0].Header)
}

// Send-buffer frames reassemble across notification boundaries.
func TestDemuxSendBufferReassembly(t *testing.T) {
	frame := testFrame(t, packets.HeaderDataFsFileCount, []byte{2, 0, 0, 0})

	d := NewDemux()
	require.NoError(t, d.Feed(append([]byte{0xFF}, frame[:100]...)))
	rt, sb := drainDemux(d)
	assert.Empty(t, rt)
	assert.Empty(t, sb)

	require.NoError(t, d.Feed(append([]byte{0xFF}, frame[100:]...)))
	rt, sb = drainDemux(d)
	assert.Empty(t, rt)
	require.Len(t, sb, 1)
	assert.Equal(t, packets.HeaderDataFsFileCount, sb[0].Header)
}

// The real-time frames of a notification precede its send-buffer bytes.
func TestDemuxOrdering(t *testing.T) {
	rtFrame := testFrame(t, packets.HeaderDataClockRoundtrip, make([]byte, 32))
	sbFrame := testFrame(t, packets.HeaderDataStatus, make([]byte, 24))

	notification := []byte{0xFE}
	notification = append(notification, rtFrame...)
	notification = append(notification, sbFrame...)

	d := NewDemux()
	require.NoError(t, d.Feed(notification))

	frame, channel, ok := d.Next()
	require.True(t, ok)
	assert.Equal(t, ChannelRealTime, channel)
	assert.Equal(t, packets.HeaderDataClockRoundtrip, frame.Header)

	frame, channel, ok = d.Next()
	require.True(t, ok)
	assert.Equal(t, ChannelSendBuffer, channel)
	assert.Equal(t, packets.HeaderDataStatus, frame.Header)
}

func TestDemuxTruncatedRealTime(t *testing.T) {
	d := NewDemux()
	err := d.Feed([]byte{0xFD, 1, 2, 3})
	assert.ErrorIs(t, err, ErrTruncatedRealTime)

	rt, sb := drainDemux(d)
	assert.Empty(t, rt)
	assert.Empty(t, sb)
}

func TestDemuxEmptyNotification(t *testing.T) {
	d := NewDemux()
	assert.NoError(t, d.Feed(nil))
	assert.NoError(t, d.Feed([]byte{}))
}

func TestDemuxCountClamp(t *testing.T) {
	// Leading byte 0x00 would announce 255 frames; the count clamps to 254.
	d := NewDemux()
	err := d.Feed([]byte{0x00})
	assert.ErrorIs(t, err, ErrTruncatedRealTime)
	assert.Contains(t, err.Error(), "254")
}
