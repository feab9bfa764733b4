package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sensorstim/capture2go/pkg/imu/packets"
)

func TestFrameRoundtrip(t *testing.T) {
	payload := []byte{1, 2, 3, 4, 5}
	buf, err := EncodeFrame(packets.HeaderDataStatus, payload)
	require.NoError(t, err)
	require.Len(t, buf, FrameSize)
	assert.Equal(t, byte(StartByte), buf[0])

	frame, err := DecodeFrame(buf)
	require.NoError(t, err)
	assert.Equal(t, packets.HeaderDataStatus, frame.Header)
	assert.Equal(t, payload, frame.Payload)
}

func TestFrameBoundaryPayloadSizes(t *testing.T) {
	for _, size := range []int{0, MaxPayload} {
		payload := make([]byte, size)
		for i := range payload {
			payload[i] = byte(i)
		}
		buf, err := EncodeFrame(packets.HeaderDataFsBytes, payload)
		require.NoError(t, err)
		frame, err := DecodeFrame(buf)
		require.NoError(t, err)
		assert.Len(t, frame.Payload, size)
	}

	_, err := EncodeFrame(packets.HeaderDataFsBytes, make([]byte, MaxPayload+1))
	assert.ErrorIs(t, err, ErrPayloadTooLong)
}

func TestFrameBadStartByte(t *testing.T) {
	buf, err := EncodeFrame(packets.HeaderDataStatus, nil)
	require.NoError(t, err)
	buf[0] = 0x03
	_, err = DecodeFrame(buf)
	assert.ErrorIs(t, err, ErrBadStartByte)
}

func TestFrameBadPayloadSize(t *testing.T) {
	buf, err := EncodeFrame(packets.HeaderDataStatus, nil)
	require.NoError(t, err)
	buf[5] = 237
	_, err = DecodeFrame(buf)
	assert.ErrorIs(t, err, ErrBadPayloadSize)
}

func TestFrameShort(t *testing.T) {
	_, err := DecodeFrame(make([]byte, FrameSize-1))
	assert.ErrorIs(t, err, ErrShortFrame)
}

// Any single-byte flip in header or payload must be rejected by the CRC.
func TestFrameCRCDetectsBitFlips(t *testing.T) {
	payload := []byte{0xAA, 0x55, 0x00, 0xFF}
	buf, err := EncodeFrame(packets.HeaderDataStatus, payload)
	require.NoError(t, err)

	for pos := 6; pos < 8+len(payload); pos++ {
		for bit := 0; bit < 8; bit++ {
			corrupted := make([]byte, FrameSize)
			copy(corrupted, buf)
			corrupted[pos] ^= 1 << bit
			_, err := DecodeFrame(corrupted)
			assert.ErrorIs(t, err, ErrBadCRC, "flip at byte %d bit %d", pos, bit)
		}
	}
}

func TestEncodePacket(t *testing.T) {
	p := &packets.CmdSetAbsoluteTime{NewTimestamp: 1}
	buf, err := EncodePacket(p)
	require.NoError(t, err)
	frame, err := DecodeFrame(buf)
	require.NoError(t, err)
	assert.Equal(t, p.Header(), frame.Header)
	assert.Equal(t, p.EncodePayload(), frame.Payload)
}
