package protocol

// Unpacker reassembles whole frames from an arbitrarily chunked byte stream.
// It resynchronises on the start byte with byte precision: after any
// corruption, only a single leading byte is discarded per attempt, so a
// valid frame embedded behind garbage is never skipped.
type Unpacker struct {
	buf     []byte
	dropped uint64
}

// NewUnpacker returns an empty Unpacker.
func NewUnpacker() *Unpacker {
	return &Unpacker{buf: make([]byte, 0, 2*FrameSize)}
}

// Feed appends raw stream bytes to the internal buffer.
func (u *Unpacker) Feed(data []byte) {
	u.buf = append(u.buf, data...)
}

// Next returns the next complete frame, or ok=false when the buffer holds no
// full valid frame yet. The returned payload is copied out of the internal
// buffer.
func (u *Unpacker) Next() (Frame, bool) {
	for len(u.buf) >= FrameSize {
		frame, err := DecodeFrame(u.buf)
		if err != nil {
			u.buf = u.buf[1:]
			u.dropped++
			continue
		}
		payload := make([]byte, len(frame.Payload))
		copy(payload, frame.Payload)
		u.buf = u.buf[FrameSize:]
		if len(u.buf) == 0 {
			// Reclaim the backing array so the buffer cannot grow without
			// bound on a healthy stream.
			u.buf = u.buf[:0:cap(u.buf)]
		}
		return Frame{Header: frame.Header, Payload: payload}, true
	}
	return Frame{}, false
}

// DroppedBytes returns the number of bytes discarded during
// resynchronisation since creation.
func (u *Unpacker) DroppedBytes() uint64 {
	return u.dropped
}

// Pending returns the number of buffered bytes not yet consumed.
func (u *Unpacker) Pending() int {
	return len(u.buf)
}

// Reset discards all buffered bytes without counting them as dropped.
func (u *Unpacker) Reset() {
	u.buf = u.buf[:0]
}
