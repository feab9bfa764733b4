// Package quat provides quaternion math for IMU orientation data, including
// the compressed 64-bit wire representation used by the sensor.
package quat

import "math"

// Quaternion is an orientation quaternion in (w, x, y, z) order.
type Quaternion [4]float64

// Identity is the no-rotation quaternion.
var Identity = Quaternion{1, 0, 0, 0}

// Mul returns the product q*r using the right-multiplicative convention.
func Mul(q, r Quaternion) Quaternion {
	return Quaternion{
		q[0]*r[0] - q[1]*r[1] - q[2]*r[2] - q[3]*r[3],
		q[0]*r[1] + q[1]*r[0] + q[2]*r[3] - q[3]*r[2],
		q[0]*r[2] - q[1]*r[3] + q[2]*r[0] + q[3]*r[1],
		q[0]*r[3] + q[1]*r[2] - q[2]*r[1] + q[3]*r[0],
	}
}

// Norm returns the Euclidean norm of q.
func (q Quaternion) Norm() float64 {
	return math.Sqrt(q[0]*q[0] + q[1]*q[1] + q[2]*q[2] + q[3]*q[3])
}

// Normalized returns q scaled to unit norm. The zero quaternion is returned
// unchanged.
func (q Quaternion) Normalized() Quaternion {
	n := q.Norm()
	if n == 0 {
		return q
	}
	return Quaternion{q[0] / n, q[1] / n, q[2] / n, q[3] / n}
}

// Conj returns the conjugate of q.
func (q Quaternion) Conj() Quaternion {
	return Quaternion{q[0], -q[1], -q[2], -q[3]}
}

// Rotate rotates the vector v by q.
func Rotate(q Quaternion, v [3]float64) [3]float64 {
	return [3]float64{
		(1-2*q[2]*q[2]-2*q[3]*q[3])*v[0] + 2*v[1]*(q[2]*q[1]-q[0]*q[3]) + 2*v[2]*(q[0]*q[2]+q[3]*q[1]),
		2*v[0]*(q[0]*q[3]+q[2]*q[1]) + v[1]*(1-2*q[1]*q[1]-2*q[3]*q[3]) + 2*v[2]*(q[2]*q[3]-q[1]*q[0]),
		2*v[0]*(q[3]*q[1]-q[0]*q[2]) + 2*v[1]*(q[0]*q[1]+q[3]*q[2]) + v[2]*(1-2*q[1]*q[1]-2*q[2]*q[2]),
	}
}

// RotateInv rotates the vector v by the inverse of q.
func RotateInv(q Quaternion, v [3]float64) [3]float64 {
	return Rotate(q.Conj(), v)
}

// FromGyr returns the incremental rotation quaternion for one sample of
// angular velocity gyr (rad/s) at the given sampling rate (Hz), using the
// half-angle axis-angle mapping. Near-zero rates fall back to the first-order
// expansion so the axis stays well defined.
func FromGyr(gyr [3]float64, rateHz float64) Quaternion {
	norm := math.Sqrt(gyr[0]*gyr[0] + gyr[1]*gyr[1] + gyr[2]*gyr[2])
	angle := norm / rateHz
	if angle < 1e-12 {
		// sin(angle/2)/norm -> 1/(2*rate) as angle -> 0.
		h := 1 / (2 * rateHz)
		return Quaternion{1, gyr[0] * h, gyr[1] * h, gyr[2] * h}
	}
	s := math.Sin(angle/2) / norm
	return Quaternion{math.Cos(angle / 2), gyr[0] * s, gyr[1] * s, gyr[2] * s}
}

// AddHeading applies a heading (yaw) rotation of delta radians to q.
// Composing the 6D orientation with the heading offset delta yields the 9D
// orientation.
func AddHeading(q Quaternion, delta float64) Quaternion {
	return Mul(Quaternion{math.Cos(delta / 2), 0, 0, math.Sin(delta / 2)}, q)
}
