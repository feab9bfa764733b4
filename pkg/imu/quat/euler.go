package quat

import (
	"fmt"
	"math"
)

var axisIdentifiers = map[byte]int{
	'1': 1, 'x': 1, 'X': 1, 'i': 1,
	'2': 2, 'y': 2, 'Y': 2, 'j': 2,
	'3': 3, 'z': 3, 'Z': 3, 'k': 3,
}

func clip(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// EulerAngles converts q to Euler angles for the given rotation sequence,
// e.g. "zyx" or "zxy". With intrinsic set, the sequence describes intrinsic
// (body-fixed) rotations. Angles are returned in radians in sequence order.
func EulerAngles(q Quaternion, axes string, intrinsic bool) ([3]float64, error) {
	if len(axes) != 3 {
		return [3]float64{}, fmt.Errorf("invalid Euler rotation sequence %q", axes)
	}
	seq := axes
	if intrinsic {
		seq = string([]byte{axes[2], axes[1], axes[0]})
	}

	a, ok1 := axisIdentifiers[seq[0]]
	b, ok2 := axisIdentifiers[seq[1]]
	c, ok3 := axisIdentifiers[seq[2]]
	if !ok1 || !ok2 || !ok3 || b == a || b == c {
		return [3]float64{}, fmt.Errorf("invalid Euler rotation sequence %q", axes)
	}

	// Sign factor depending on cyclic vs anti-cyclic axis order.
	s := -1.0
	if b == a%3+1 {
		s = 1.0
	}

	var angle1, angle2, angle3 float64
	if a == c { // proper Euler angles
		d := 6 - a - b // the remaining axis
		angle1 = math.Atan2(q[a]*q[b]-s*q[d]*q[0], q[b]*q[0]+s*q[a]*q[d])
		angle2 = math.Acos(clip(q[0]*q[0]+q[a]*q[a]-q[b]*q[b]-q[d]*q[d], -1, 1))
		angle3 = math.Atan2(q[a]*q[b]+s*q[d]*q[0], q[b]*q[0]-s*q[a]*q[d])
	} else { // Tait-Bryan
		angle1 = math.Atan2(2*(q[a]*q[0]+s*q[b]*q[c]),
			q[0]*q[0]-q[a]*q[a]-q[b]*q[b]+q[c]*q[c])
		angle2 = math.Asin(clip(2*(q[b]*q[0]-s*q[a]*q[c]), -1, 1))
		angle3 = math.Atan2(2*(s*q[a]*q[b]+q[c]*q[0]),
			q[0]*q[0]+q[a]*q[a]-q[b]*q[b]-q[c]*q[c])
	}

	if intrinsic {
		return [3]float64{angle3, angle2, angle1}, nil
	}
	return [3]float64{angle1, angle2, angle3}, nil
}
