package packets

import (
	"github.com/sensorstim/capture2go/pkg/imu/quat"
)

// Sample counts of the packed and fixed layouts. Packed packets store one
// anchor quaternion and reconstruct the remaining per-sample quaternions
// from gyroscope integration on the host.
const (
	FullPackedSamples = 8
	FullFixedSamples  = 4
	QuatPackedSamples = 20
)

const (
	fullPackedSize   = 8 + 8 + FullPackedSamples*18 + 2 + 1
	full6DPackedSize = 8 + 8 + FullPackedSamples*12 + 2 + 1
	fullFixedSize    = 8 + FullFixedSamples*(8+18+2+1)
	full6DFixedSize  = 8 + FullFixedSamples*(8+12+2+1)
	fullFloatSize    = 8 + 16 + 12 + 12 + 12 + 4 + 1 + 1 + 1
	quatPackedSize   = 8 + 8 + QuatPackedSamples*6 + QuatPackedSamples*2 + QuatPackedSamples
	quatFixedSize    = 8 + 8 + 2 + 1
	quatFloatSize    = 8 + 16 + 4 + 1 + 1 + 1
)

// Samples is the SI-unit view of a sensor data packet: timestamps in
// nanoseconds, gyroscope in rad/s, accelerometer in m/s², magnetometer in
// µT, heading offsets in rad. Quat9D composes the heading offset onto the
// 6D orientation. Slices not provided by the packet layout are nil.
type Samples struct {
	Timestamps      []int64
	Gyr             [][3]float64
	Acc             [][3]float64
	Mag             [][3]float64
	Quat            []quat.Quaternion
	Quat9D          []quat.Quaternion
	Delta           []float64
	ErrorFlags      []ErrorFlags
	RestDetected    bool
	MagDistDetected bool
}

// SensorData is implemented by all sensor data packet variants.
type SensorData interface {
	Packet
	// Samples converts the packet to SI units, reconstructing per-sample
	// quaternions for packed layouts.
	Samples() *Samples
}

func sampleTimestamps(start int64, periodNs int64, n int) []int64 {
	ts := make([]int64, n)
	for i := range ts {
		ts[i] = start + int64(i)*periodNs
	}
	return ts
}

// extrapolateQuats reconstructs n quaternions from the anchor and the SI
// gyroscope samples: q_i = normalize(q_{i-1} · Δq_i) with Δq_i derived from
// gyr[i] at the packet rate.
func extrapolateQuats(anchor quat.Quaternion, gyr [][3]float64, rateHz float64, n int) []quat.Quaternion {
	qs := make([]quat.Quaternion, n)
	qs[0] = anchor
	for i := 1; i < n; i++ {
		dq := quat.FromGyr(gyr[i], rateHz)
		qs[i] = quat.Mul(qs[i-1], dq).Normalized()
	}
	return qs
}

func addHeadings(qs []quat.Quaternion, delta []float64) []quat.Quaternion {
	out := make([]quat.Quaternion, len(qs))
	for i, q := range qs {
		d := delta[0]
		if len(delta) > 1 {
			d = delta[i]
		}
		out[i] = quat.AddHeading(q, d)
	}
	return out
}

func repeatDelta(d int16, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(d) * ScaleDelta
	}
	return out
}

func repeatFlags(f ErrorFlags, n int) []ErrorFlags {
	out := make([]ErrorFlags, n)
	for i := range out {
		out[i] = f
	}
	return out
}

// DataFullPacked carries 8 samples of gyr/acc/mag with a single anchor
// quaternion and one delta and error flag set for the whole package.
type DataFullPacked struct {
	Hdr       Header
	Timestamp int64
	Quat      uint64
	Gyr       [][3]int16 // FullPackedSamples entries
	Acc       [][3]int16
	Mag       [][3]int16 // nil for the 6D variant
	Delta     int16
	Flags     ErrorFlags
}

func (p *DataFullPacked) Header() Header { return p.Hdr }

func (p *DataFullPacked) EncodePayload() []byte {
	size := fullPackedSize
	if p.Mag == nil {
		size = full6DPackedSize
	}
	w := newWriter(size)
	w.i64(p.Timestamp)
	w.u64(p.Quat)
	w.triplets(p.Gyr)
	w.triplets(p.Acc)
	if p.Mag != nil {
		w.triplets(p.Mag)
	}
	w.i16(p.Delta)
	w.u8(uint8(p.Flags))
	return w.buf
}

func (p *DataFullPacked) Samples() *Samples {
	n := FullPackedSamples
	rate := p.Hdr.RateHz()
	anchor, rest, magDist := quat.Decode64(p.Quat)
	gyr := scaleTriplets(p.Gyr, ScaleGyr)
	s := &Samples{
		Timestamps:      sampleTimestamps(p.Timestamp, p.Hdr.SamplePeriodNs(), n),
		Gyr:             gyr,
		Acc:             scaleTriplets(p.Acc, ScaleAcc),
		Quat:            extrapolateQuats(anchor, gyr, float64(rate), n),
		Delta:           repeatDelta(p.Delta, 1),
		ErrorFlags:      repeatFlags(p.Flags, 1),
		RestDetected:    rest,
		MagDistDetected: magDist,
	}
	if p.Mag != nil {
		s.Mag = scaleTriplets(p.Mag, ScaleMag)
	}
	s.Quat9D = addHeadings(s.Quat, s.Delta)
	return s
}

func decodeFullPacked(h Header, payload []byte) (Packet, error) {
	r := &reader{buf: payload}
	p := &DataFullPacked{Hdr: h, Timestamp: r.i64(), Quat: r.u64()}
	p.Gyr = r.triplets(FullPackedSamples)
	p.Acc = r.triplets(FullPackedSamples)
	if h.Encoding() == EncodingFullPacked {
		p.Mag = r.triplets(FullPackedSamples)
	}
	p.Delta = r.i16()
	p.Flags = ErrorFlags(r.u8())
	return p, nil
}

// DataFullFixed carries 4 samples, each with its own compressed quaternion,
// so no reconstruction is needed.
type DataFullFixed struct {
	Hdr       Header
	Timestamp int64
	Quat      []uint64 // FullFixedSamples entries
	Gyr       [][3]int16
	Acc       [][3]int16
	Mag       [][3]int16 // nil for the 6D variant
	Delta     []int16
	Flags     []ErrorFlags
}

func (p *DataFullFixed) Header() Header { return p.Hdr }

func (p *DataFullFixed) EncodePayload() []byte {
	size := fullFixedSize
	if p.Mag == nil {
		size = full6DFixedSize
	}
	w := newWriter(size)
	w.i64(p.Timestamp)
	for i := 0; i < FullFixedSamples; i++ {
		w.u64(p.Quat[i])
		w.triplet16(p.Gyr[i])
		w.triplet16(p.Acc[i])
		if p.Mag != nil {
			w.triplet16(p.Mag[i])
		}
		w.i16(p.Delta[i])
		w.u8(uint8(p.Flags[i]))
	}
	return w.buf
}

func (p *DataFullFixed) Samples() *Samples {
	n := FullFixedSamples
	s := &Samples{
		Timestamps: sampleTimestamps(p.Timestamp, p.Hdr.SamplePeriodNs(), n),
		Gyr:        scaleTriplets(p.Gyr, ScaleGyr),
		Acc:        scaleTriplets(p.Acc, ScaleAcc),
		Quat:       make([]quat.Quaternion, n),
		Delta:      make([]float64, n),
		ErrorFlags: make([]ErrorFlags, n),
	}
	if p.Mag != nil {
		s.Mag = scaleTriplets(p.Mag, ScaleMag)
	}
	for i := 0; i < n; i++ {
		q, rest, magDist := quat.Decode64(p.Quat[i])
		s.Quat[i] = q
		if i == 0 {
			s.RestDetected, s.MagDistDetected = rest, magDist
		}
		s.Delta[i] = float64(p.Delta[i]) * ScaleDelta
		s.ErrorFlags[i] = p.Flags[i]
	}
	s.Quat9D = addHeadings(s.Quat, s.Delta)
	return s
}

func decodeFullFixed(h Header, payload []byte) (Packet, error) {
	r := &reader{buf: payload}
	n := FullFixedSamples
	p := &DataFullFixed{
		Hdr:       h,
		Timestamp: r.i64(),
		Quat:      make([]uint64, n),
		Gyr:       make([][3]int16, n),
		Acc:       make([][3]int16, n),
		Delta:     make([]int16, n),
		Flags:     make([]ErrorFlags, n),
	}
	withMag := h.Encoding() == EncodingFullFixed
	if withMag {
		p.Mag = make([][3]int16, n)
	}
	for i := 0; i < n; i++ {
		p.Quat[i] = r.u64()
		p.Gyr[i] = r.triplet16()
		p.Acc[i] = r.triplet16()
		if withMag {
			p.Mag[i] = r.triplet16()
		}
		p.Delta[i] = r.i16()
		p.Flags[i] = ErrorFlags(r.u8())
	}
	return p, nil
}

// DataFullFloat carries a single sample in IEEE-754 floats.
type DataFullFloat struct {
	Hdr             Header
	Timestamp       int64
	Quat            [4]float32
	Gyr             [3]float32
	Acc             [3]float32
	Mag             [3]float32
	Delta           float32
	RestDetected    bool
	MagDistDetected bool
	Flags           ErrorFlags
}

func (p *DataFullFloat) Header() Header { return p.Hdr }

func (p *DataFullFloat) EncodePayload() []byte {
	w := newWriter(fullFloatSize)
	w.i64(p.Timestamp)
	for _, v := range p.Quat {
		w.f32(v)
	}
	for _, v := range p.Gyr {
		w.f32(v)
	}
	for _, v := range p.Acc {
		w.f32(v)
	}
	for _, v := range p.Mag {
		w.f32(v)
	}
	w.f32(p.Delta)
	w.bool(p.RestDetected)
	w.bool(p.MagDistDetected)
	w.u8(uint8(p.Flags))
	return w.buf
}

func (p *DataFullFloat) Samples() *Samples {
	q := quat.Quaternion{float64(p.Quat[0]), float64(p.Quat[1]), float64(p.Quat[2]), float64(p.Quat[3])}
	delta := float64(p.Delta)
	return &Samples{
		Timestamps:      []int64{p.Timestamp},
		Gyr:             [][3]float64{{float64(p.Gyr[0]), float64(p.Gyr[1]), float64(p.Gyr[2])}},
		Acc:             [][3]float64{{float64(p.Acc[0]), float64(p.Acc[1]), float64(p.Acc[2])}},
		Mag:             [][3]float64{{float64(p.Mag[0]), float64(p.Mag[1]), float64(p.Mag[2])}},
		Quat:            []quat.Quaternion{q},
		Quat9D:          []quat.Quaternion{quat.AddHeading(q, delta)},
		Delta:           []float64{delta},
		ErrorFlags:      []ErrorFlags{p.Flags},
		RestDetected:    p.RestDetected,
		MagDistDetected: p.MagDistDetected,
	}
}

func decodeFullFloat(h Header, payload []byte) (Packet, error) {
	r := &reader{buf: payload}
	p := &DataFullFloat{Hdr: h, Timestamp: r.i64()}
	for i := range p.Quat {
		p.Quat[i] = r.f32()
	}
	for i := range p.Gyr {
		p.Gyr[i] = r.f32()
	}
	for i := range p.Acc {
		p.Acc[i] = r.f32()
	}
	for i := range p.Mag {
		p.Mag[i] = r.f32()
	}
	p.Delta = r.f32()
	p.RestDetected = r.bool()
	p.MagDistDetected = r.bool()
	p.Flags = ErrorFlags(r.u8())
	return p, nil
}

// DataQuatPacked carries 20 orientation samples with a single anchor
// quaternion and per-sample delta and error flags.
type DataQuatPacked struct {
	Hdr       Header
	Timestamp int64
	Quat      uint64
	Gyr       [][3]int16 // QuatPackedSamples entries
	Delta     []int16
	Flags     []ErrorFlags
}

func (p *DataQuatPacked) Header() Header { return p.Hdr }

func (p *DataQuatPacked) EncodePayload() []byte {
	w := newWriter(quatPackedSize)
	w.i64(p.Timestamp)
	w.u64(p.Quat)
	w.triplets(p.Gyr)
	for _, d := range p.Delta {
		w.i16(d)
	}
	for _, f := range p.Flags {
		w.u8(uint8(f))
	}
	return w.buf
}

func (p *DataQuatPacked) Samples() *Samples {
	n := QuatPackedSamples
	rate := p.Hdr.RateHz()
	anchor, rest, magDist := quat.Decode64(p.Quat)
	gyr := scaleTriplets(p.Gyr, ScaleGyr)
	delta := make([]float64, n)
	flags := make([]ErrorFlags, n)
	for i := 0; i < n; i++ {
		delta[i] = float64(p.Delta[i]) * ScaleDelta
		flags[i] = p.Flags[i]
	}
	s := &Samples{
		Timestamps:      sampleTimestamps(p.Timestamp, p.Hdr.SamplePeriodNs(), n),
		Gyr:             gyr,
		Quat:            extrapolateQuats(anchor, gyr, float64(rate), n),
		Delta:           delta,
		ErrorFlags:      flags,
		RestDetected:    rest,
		MagDistDetected: magDist,
	}
	s.Quat9D = addHeadings(s.Quat, s.Delta)
	return s
}

func decodeQuatPacked(h Header, payload []byte) (Packet, error) {
	r := &reader{buf: payload}
	n := QuatPackedSamples
	p := &DataQuatPacked{Hdr: h, Timestamp: r.i64(), Quat: r.u64()}
	p.Gyr = r.triplets(n)
	p.Delta = make([]int16, n)
	for i := range p.Delta {
		p.Delta[i] = r.i16()
	}
	p.Flags = make([]ErrorFlags, n)
	for i := range p.Flags {
		p.Flags[i] = ErrorFlags(r.u8())
	}
	return p, nil
}

// DataQuatFixed carries a single compressed orientation sample.
type DataQuatFixed struct {
	Hdr       Header
	Timestamp int64
	Quat      uint64
	Delta     int16
	Flags     ErrorFlags
}

func (p *DataQuatFixed) Header() Header { return p.Hdr }

func (p *DataQuatFixed) EncodePayload() []byte {
	w := newWriter(quatFixedSize)
	w.i64(p.Timestamp)
	w.u64(p.Quat)
	w.i16(p.Delta)
	w.u8(uint8(p.Flags))
	return w.buf
}

func (p *DataQuatFixed) Samples() *Samples {
	q, rest, magDist := quat.Decode64(p.Quat)
	delta := float64(p.Delta) * ScaleDelta
	return &Samples{
		Timestamps:      []int64{p.Timestamp},
		Quat:            []quat.Quaternion{q},
		Quat9D:          []quat.Quaternion{quat.AddHeading(q, delta)},
		Delta:           []float64{delta},
		ErrorFlags:      []ErrorFlags{p.Flags},
		RestDetected:    rest,
		MagDistDetected: magDist,
	}
}

func decodeQuatFixed(h Header, payload []byte) (Packet, error) {
	r := &reader{buf: payload}
	return &DataQuatFixed{
		Hdr:       h,
		Timestamp: r.i64(),
		Quat:      r.u64(),
		Delta:     r.i16(),
		Flags:     ErrorFlags(r.u8()),
	}, nil
}

// DataQuatFloat carries a single orientation sample in IEEE-754 floats.
type DataQuatFloat struct {
	Hdr             Header
	Timestamp       int64
	Quat            [4]float32
	Delta           float32
	RestDetected    bool
	MagDistDetected bool
	Flags           ErrorFlags
}

func (p *DataQuatFloat) Header() Header { return p.Hdr }

func (p *DataQuatFloat) EncodePayload() []byte {
	w := newWriter(quatFloatSize)
	w.i64(p.Timestamp)
	for _, v := range p.Quat {
		w.f32(v)
	}
	w.f32(p.Delta)
	w.bool(p.RestDetected)
	w.bool(p.MagDistDetected)
	w.u8(uint8(p.Flags))
	return w.buf
}

func (p *DataQuatFloat) Samples() *Samples {
	q := quat.Quaternion{float64(p.Quat[0]), float64(p.Quat[1]), float64(p.Quat[2]), float64(p.Quat[3])}
	delta := float64(p.Delta)
	return &Samples{
		Timestamps:      []int64{p.Timestamp},
		Quat:            []quat.Quaternion{q},
		Quat9D:          []quat.Quaternion{quat.AddHeading(q, delta)},
		Delta:           []float64{delta},
		ErrorFlags:      []ErrorFlags{p.Flags},
		RestDetected:    p.RestDetected,
		MagDistDetected: p.MagDistDetected,
	}
}

func decodeQuatFloat(h Header, payload []byte) (Packet, error) {
	r := &reader{buf: payload}
	p := &DataQuatFloat{Hdr: h, Timestamp: r.i64()}
	for i := range p.Quat {
		p.Quat[i] = r.f32()
	}
	p.Delta = r.f32()
	p.RestDetected = r.bool()
	p.MagDistDetected = r.bool()
	p.Flags = ErrorFlags(r.u8())
	return p, nil
}

func init() {
	type variant struct {
		enc    DataEncoding
		size   int
		decode func(Header, []byte) (Packet, error)
	}
	variants := []variant{
		{EncodingFullPacked, fullPackedSize, decodeFullPacked},
		{EncodingFull6DPacked, full6DPackedSize, decodeFullPacked},
		{EncodingFullFixed, fullFixedSize, decodeFullFixed},
		{EncodingFull6DFixed, full6DFixedSize, decodeFullFixed},
		{EncodingFullFloat, fullFloatSize, decodeFullFloat},
		{EncodingQuatPacked, quatPackedSize, decodeQuatPacked},
		{EncodingQuatFixed, quatFixedSize, decodeQuatFixed},
		{EncodingQuatFloat, quatFloatSize, decodeQuatFloat},
	}
	rates := []uint16{200, 100, 50, 25, 10, 1}
	for _, v := range variants {
		for _, rate := range rates {
			h, err := SensorDataHeader(v.enc, rate)
			if err != nil {
				panic(err)
			}
			register(h, v.size, v.decode)
		}
		register(SensorDataHeaderRt(v.enc), v.size, v.decode)
	}
}
