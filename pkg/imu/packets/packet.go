// Package packets defines the typed packet variants of the sensor protocol
// and the registry that maps 16-bit headers to payload codecs.
package packets

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

var (
	ErrUnknownHeader = errors.New("unknown packet header")
	ErrPayloadSize   = errors.New("unexpected payload size")
	ErrFilename      = errors.New("invalid filename")
)

// FilenameLen is the size of the null-padded filename field used by the
// recording and filesystem packets. Filenames are ASCII with at most 64
// characters.
const FilenameLen = 65

// Packet is a decoded protocol packet. Implementations are immutable value
// types; EncodePayload produces the exact wire payload so that
// Decode(p.Header(), p.EncodePayload()) round-trips.
type Packet interface {
	Header() Header
	EncodePayload() []byte
}

type registryEntry struct {
	size   int // fixed payload size in bytes, -1 for variable
	decode func(h Header, payload []byte) (Packet, error)
}

var registry = map[Header]registryEntry{}

func register(h Header, size int, decode func(Header, []byte) (Packet, error)) {
	if _, ok := registry[h]; ok {
		panic(fmt.Sprintf("duplicate registration for header %s", h))
	}
	registry[h] = registryEntry{size: size, decode: decode}
}

// PayloadSize returns the registered fixed payload size for h. ok is false
// for unknown headers; variable-size packets report -1.
func PayloadSize(h Header) (size int, ok bool) {
	e, ok := registry[h]
	if !ok {
		return 0, false
	}
	return e.size, true
}

// Known reports whether h is a registered header.
func Known(h Header) bool {
	_, ok := registry[h]
	return ok
}

// Decode maps a header and payload to a typed packet. Unknown headers
// return an *Unknown packet carrying the raw payload together with
// ErrUnknownHeader, so forward-compatible consumers can choose to keep it.
// A known header with a mismatching payload size fails with ErrPayloadSize.
func Decode(h Header, payload []byte) (Packet, error) {
	e, ok := registry[h]
	if !ok {
		raw := make([]byte, len(payload))
		copy(raw, payload)
		return &Unknown{Hdr: h, Payload: raw}, ErrUnknownHeader
	}
	if e.size >= 0 && len(payload) != e.size {
		return nil, fmt.Errorf("%w: header %s has %d bytes, expected %d",
			ErrPayloadSize, h, len(payload), e.size)
	}
	return e.decode(h, payload)
}

// Unknown is a frame whose header is not in the registry. The payload is
// preserved verbatim.
type Unknown struct {
	Hdr     Header
	Payload []byte
}

func (p *Unknown) Header() Header        { return p.Hdr }
func (p *Unknown) EncodePayload() []byte { return p.Payload }

// Simple is a parameterless command or acknowledgement; its identity is the
// header alone.
type Simple struct{ Hdr Header }

func (p *Simple) Header() Header        { return p.Hdr }
func (p *Simple) EncodePayload() []byte { return nil }

// NewSimple builds a parameterless packet such as CmdStartRecording or
// CmdFsListFiles.
func NewSimple(h Header) *Simple { return &Simple{Hdr: h} }

func registerEmpty(h Header) {
	register(h, 0, func(h Header, _ []byte) (Packet, error) {
		return &Simple{Hdr: h}, nil
	})
}

func init() {
	for _, h := range []Header{
		HeaderCmdGetDeviceInfo,
		HeaderCmdSleep, HeaderAckSleep,
		HeaderCmdDeepSleep, HeaderAckDeepSleep,
		HeaderCmdGetMeasurementMode, HeaderCmdGetBurstMode, HeaderCmdGetRecordingConfig,
		HeaderCmdStartStreaming, HeaderAckStartStreaming,
		HeaderCmdStopStreaming, HeaderAckStopStreaming,
		HeaderCmdStopStreamingAndClearBuffer, HeaderAckStopStreamingAndClearBuffer,
		HeaderAckStartRealTimeStreaming,
		HeaderCmdStopRealTimeStreaming, HeaderAckStopRealTimeStreaming,
		HeaderAckSetAbsoluteTime,
		HeaderAckSetLed, HeaderAckSetSyncOutput,
		HeaderCmdStartRecording, HeaderAckStartRecording,
		HeaderCmdStopRecording, HeaderAckStopRecording,
		HeaderCmdFsListFiles,
		HeaderCmdFsStopGetBytes, HeaderAckFsStopGetBytes,
		HeaderAckFsDeleteFile,
		HeaderCmdFsFormatFilesystem, HeaderAckFsFormatFilesystem,
	} {
		registerEmpty(h)
	}
}

// Little-endian field readers and writers shared by the packet codecs.

type reader struct {
	buf []byte
	pos int
}

func (r *reader) u8() uint8   { v := r.buf[r.pos]; r.pos++; return v }
func (r *reader) bool() bool  { return r.u8() != 0 }
func (r *reader) u16() uint16 { v := binary.LittleEndian.Uint16(r.buf[r.pos:]); r.pos += 2; return v }
func (r *reader) i16() int16  { return int16(r.u16()) }
func (r *reader) u32() uint32 { v := binary.LittleEndian.Uint32(r.buf[r.pos:]); r.pos += 4; return v }
func (r *reader) u64() uint64 { v := binary.LittleEndian.Uint64(r.buf[r.pos:]); r.pos += 8; return v }
func (r *reader) i64() int64  { return int64(r.u64()) }
func (r *reader) f32() float32 {
	return math.Float32frombits(r.u32())
}

func (r *reader) triplets(n int) [][3]int16 {
	out := make([][3]int16, n)
	for i := range out {
		out[i] = [3]int16{r.i16(), r.i16(), r.i16()}
	}
	return out
}

func (r *reader) triplet16() [3]int16 {
	return [3]int16{r.i16(), r.i16(), r.i16()}
}

func (r *reader) filename() (string, error) {
	raw := r.buf[r.pos : r.pos+FilenameLen]
	r.pos += FilenameLen
	end := 0
	for end < len(raw) && raw[end] != 0 {
		end++
	}
	name := raw[:end]
	for _, c := range name {
		if c < 0x20 || c > 0x7E {
			return "", fmt.Errorf("%w: non-ASCII byte 0x%02X", ErrFilename, c)
		}
	}
	return string(name), nil
}

type writer struct {
	buf []byte
}

func newWriter(size int) *writer {
	return &writer{buf: make([]byte, 0, size)}
}

func (w *writer) u8(v uint8)   { w.buf = append(w.buf, v) }
func (w *writer) u16(v uint16) { w.buf = binary.LittleEndian.AppendUint16(w.buf, v) }
func (w *writer) i16(v int16)  { w.u16(uint16(v)) }
func (w *writer) u32(v uint32) { w.buf = binary.LittleEndian.AppendUint32(w.buf, v) }
func (w *writer) u64(v uint64) { w.buf = binary.LittleEndian.AppendUint64(w.buf, v) }
func (w *writer) i64(v int64)  { w.u64(uint64(v)) }
func (w *writer) f32(v float32) {
	w.u32(math.Float32bits(v))
}

func (w *writer) bool(v bool) {
	if v {
		w.u8(1)
	} else {
		w.u8(0)
	}
}

func (w *writer) triplets(ts [][3]int16) {
	for _, t := range ts {
		w.i16(t[0])
		w.i16(t[1])
		w.i16(t[2])
	}
}

func (w *writer) triplet16(t [3]int16) {
	w.i16(t[0])
	w.i16(t[1])
	w.i16(t[2])
}

func (w *writer) filename(name string) {
	var field [FilenameLen]byte
	copy(field[:], name)
	w.buf = append(w.buf, field[:]...)
}

// ValidFilename checks the filename constraints of the recording and
// filesystem packets before they go on the wire.
func ValidFilename(name string) error {
	if len(name) >= FilenameLen {
		return fmt.Errorf("%w: %d characters, at most %d allowed", ErrFilename, len(name), FilenameLen-1)
	}
	for i := 0; i < len(name); i++ {
		if name[i] < 0x20 || name[i] > 0x7E {
			return fmt.Errorf("%w: non-ASCII byte 0x%02X", ErrFilename, name[i])
		}
	}
	return nil
}
