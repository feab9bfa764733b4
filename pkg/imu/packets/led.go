package packets

// LedMode controls the behaviour of the status LED.
type LedMode uint8

const (
	LedModeDefault LedMode = iota
	LedModeOff
	LedModeSolid
	LedModeBlink
)

// CmdSetLed overrides the status LED colour and mode.
type CmdSetLed struct {
	Mode    LedMode
	R, G, B uint8
}

func (p *CmdSetLed) Header() Header { return HeaderCmdSetLed }

func (p *CmdSetLed) EncodePayload() []byte {
	w := newWriter(4)
	w.u8(uint8(p.Mode))
	w.u8(p.R)
	w.u8(p.G)
	w.u8(p.B)
	return w.buf
}

const syncOutputSize = 1 + 4 + 4

// CmdSetSyncOutput configures the hardware sync pulse output, used to align
// external equipment (e.g. cameras) with the sensor clock.
type CmdSetSyncOutput struct {
	Enabled      bool
	IntervalUs   uint32
	PulseWidthUs uint32
}

func (p *CmdSetSyncOutput) Header() Header { return HeaderCmdSetSyncOutput }

func (p *CmdSetSyncOutput) EncodePayload() []byte {
	w := newWriter(syncOutputSize)
	w.bool(p.Enabled)
	w.u32(p.IntervalUs)
	w.u32(p.PulseWidthUs)
	return w.buf
}

func init() {
	register(HeaderCmdSetLed, 4, func(_ Header, payload []byte) (Packet, error) {
		r := &reader{buf: payload}
		return &CmdSetLed{Mode: LedMode(r.u8()), R: r.u8(), G: r.u8(), B: r.u8()}, nil
	})
	register(HeaderCmdSetSyncOutput, syncOutputSize, func(_ Header, payload []byte) (Packet, error) {
		r := &reader{buf: payload}
		return &CmdSetSyncOutput{
			Enabled:      r.bool(),
			IntervalUs:   r.u32(),
			PulseWidthUs: r.u32(),
		}, nil
	})
}
