// Package protocol implements the fixed-frame wire envelope of the sensor
// protocol: the frame codec, the resynchronising stream unpacker, and the
// BLE notification demultiplexer.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"

	"github.com/sensorstim/capture2go/pkg/imu/packets"
)

// Frame layout: startByte (1) | crc32 LE (4) | payloadSize (1) |
// header LE (2) | payload, zero padded to MaxPayload. The CRC covers
// header || payload[:payloadSize].
const (
	StartByte  = 0x02
	FrameSize  = 244
	MaxPayload = 236

	crcOffset     = 1
	sizeOffset    = 5
	headerOffset  = 6
	payloadOffset = 8
)

var (
	ErrBadStartByte   = errors.New("bad start byte")
	ErrBadPayloadSize = errors.New("bad payload size")
	ErrBadCRC         = errors.New("crc mismatch")
	ErrShortFrame     = errors.New("short frame")
	ErrPayloadTooLong = errors.New("payload too long")
)

// Frame is a decoded wire frame: the header and the payload truncated to its
// actual size. The payload aliases the decode input.
type Frame struct {
	Header  packets.Header
	Payload []byte
}

// EncodeFrame wraps a header and payload into a full 244-byte frame.
func EncodeFrame(header packets.Header, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayload {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLong, len(payload))
	}
	buf := make([]byte, FrameSize)
	buf[0] = StartByte
	buf[sizeOffset] = byte(len(payload))
	binary.LittleEndian.PutUint16(buf[headerOffset:], uint16(header))
	copy(buf[payloadOffset:], payload)
	crc := crc32.ChecksumIEEE(buf[headerOffset : payloadOffset+len(payload)])
	binary.LittleEndian.PutUint32(buf[crcOffset:], crc)
	return buf, nil
}

// EncodePacket encodes a packet into a full frame.
func EncodePacket(p packets.Packet) ([]byte, error) {
	return EncodeFrame(p.Header(), p.EncodePayload())
}

// DecodeFrame validates the start byte, payload size and CRC of a 244-byte
// frame and returns its header and payload.
func DecodeFrame(buf []byte) (Frame, error) {
	if len(buf) < FrameSize {
		return Frame{}, fmt.Errorf("%w: %d bytes", ErrShortFrame, len(buf))
	}
	if buf[0] != StartByte {
		return Frame{}, fmt.Errorf("%w: 0x%02X", ErrBadStartByte, buf[0])
	}
	size := int(buf[sizeOffset])
	if size > MaxPayload {
		return Frame{}, fmt.Errorf("%w: %d", ErrBadPayloadSize, size)
	}
	want := binary.LittleEndian.Uint32(buf[crcOffset:])
	got := crc32.ChecksumIEEE(buf[headerOffset : payloadOffset+size])
	if got != want {
		return Frame{}, fmt.Errorf("%w: computed 0x%08X, frame has 0x%08X", ErrBadCRC, got, want)
	}
	return Frame{
		Header:  packets.Header(binary.LittleEndian.Uint16(buf[headerOffset:])),
		Payload: buf[payloadOffset : payloadOffset+size],
	}, nil
}
