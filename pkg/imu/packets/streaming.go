package packets

// RealTimeDataMode selects the packet family sent on the real-time channel.
type RealTimeDataMode uint8

const (
	RealTimeDataQuat RealTimeDataMode = 1
	RealTimeDataFull RealTimeDataMode = 2
)

// DefaultRealTimeRateHz is the device default used when CmdStartRealTimeStreaming
// carries a RateLimit of 0.
const DefaultRealTimeRateHz = 50

// CmdStartRealTimeStreaming starts the latest-snapshot real-time stream.
// RateLimit of 0 selects the device default of 50 Hz.
type CmdStartRealTimeStreaming struct {
	Mode      RealTimeDataMode
	RateLimit uint8 // Hz
}

func (p *CmdStartRealTimeStreaming) Header() Header { return HeaderCmdStartRealTimeStreaming }

func (p *CmdStartRealTimeStreaming) EncodePayload() []byte {
	w := newWriter(2)
	w.u8(uint8(p.Mode))
	w.u8(p.RateLimit)
	return w.buf
}

func init() {
	register(HeaderCmdStartRealTimeStreaming, 2, func(_ Header, payload []byte) (Packet, error) {
		r := &reader{buf: payload}
		return &CmdStartRealTimeStreaming{
			Mode:      RealTimeDataMode(r.u8()),
			RateLimit: r.u8(),
		}, nil
	})
}
