package packets

// CmdSetAbsoluteTime sets the device clock to an absolute host timestamp
// (nanoseconds, Unix epoch). When synchronising multiple devices, set this
// only on the sync sender.
type CmdSetAbsoluteTime struct {
	NewTimestamp int64
}

func (p *CmdSetAbsoluteTime) Header() Header { return HeaderCmdSetAbsoluteTime }

func (p *CmdSetAbsoluteTime) EncodePayload() []byte {
	w := newWriter(8)
	w.i64(p.NewTimestamp)
	return w.buf
}

const clockRoundtripSize = 4 * 8

// DataClockRoundtrip carries the four timestamps of a clock round-trip. The
// host sends it with only HostSendTimestamp filled in; the device fills the
// sensor timestamps and echoes it back; HostReceiveTimestamp travels as zero
// and is stamped by the receiver on arrival.
type DataClockRoundtrip struct {
	HostSendTimestamp      int64
	SensorReceiveTimestamp int64
	SensorSendTimestamp    int64
	HostReceiveTimestamp   int64
}

func (p *DataClockRoundtrip) Header() Header { return HeaderDataClockRoundtrip }

func (p *DataClockRoundtrip) EncodePayload() []byte {
	w := newWriter(clockRoundtripSize)
	w.i64(p.HostSendTimestamp)
	w.i64(p.SensorReceiveTimestamp)
	w.i64(p.SensorSendTimestamp)
	w.i64(p.HostReceiveTimestamp)
	return w.buf
}

// Delay returns the estimated one-way transmission delay in nanoseconds.
func (p *DataClockRoundtrip) Delay() int64 {
	return ((p.HostReceiveTimestamp + p.SensorReceiveTimestamp) -
		(p.HostSendTimestamp + p.SensorSendTimestamp)) / 2
}

// Offset returns the estimated device clock offset relative to the host
// clock in nanoseconds.
func (p *DataClockRoundtrip) Offset() int64 {
	return ((p.HostSendTimestamp + p.HostReceiveTimestamp) -
		(p.SensorReceiveTimestamp + p.SensorSendTimestamp)) / 2
}

func init() {
	register(HeaderCmdSetAbsoluteTime, 8, func(_ Header, payload []byte) (Packet, error) {
		r := &reader{buf: payload}
		return &CmdSetAbsoluteTime{NewTimestamp: r.i64()}, nil
	})
	register(HeaderDataClockRoundtrip, clockRoundtripSize, func(_ Header, payload []byte) (Packet, error) {
		r := &reader{buf: payload}
		return &DataClockRoundtrip{
			HostSendTimestamp:      r.i64(),
			SensorReceiveTimestamp: r.i64(),
			SensorSendTimestamp:    r.i64(),
			HostReceiveTimestamp:   r.i64(),
		}, nil
	})
}
