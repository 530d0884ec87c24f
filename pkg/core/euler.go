package core

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Euler angles are expressed in degrees as (roll about X, pitch about Y,
// yaw about Z) and compose as yaw * pitch * roll.

// QuatFromEuler converts Euler degrees to a unit quaternion.
func QuatFromEuler(deg mgl64.Vec3) mgl64.Quat {
	r := mgl64.DegToRad(deg[0]) / 2
	p := mgl64.DegToRad(deg[1]) / 2
	y := mgl64.DegToRad(deg[2]) / 2

	sr, cr := math.Sincos(r)
	sp, cp := math.Sincos(p)
	sy, cy := math.Sincos(y)

	return mgl64.Quat{
		W: cr*cp*cy + sr*sp*sy,
		V: mgl64.Vec3{
			sr*cp*cy - cr*sp*sy,
			cr*sp*cy + sr*cp*sy,
			cr*cp*sy - sr*sp*cy,
		},
	}
}

// EulerFromQuat converts a quaternion to Euler degrees. Pitch is clamped to
// ±90 at the poles.
func EulerFromQuat(q mgl64.Quat) mgl64.Vec3 {
	if l := q.Len(); l != 0 && l != 1 {
		q = q.Normalize()
	}
	w, x, y, z := q.W, q.V[0], q.V[1], q.V[2]

	roll := math.Atan2(2*(w*x+y*z), 1-2*(x*x+y*y))

	sinp := 2 * (w*y - z*x)
	var pitch float64
	if math.Abs(sinp) >= 1 {
		pitch = math.Copysign(math.Pi/2, sinp)
	} else {
		pitch = math.Asin(sinp)
	}

	yaw := math.Atan2(2*(w*z+x*y), 1-2*(y*y+z*z))

	return mgl64.Vec3{
		mgl64.RadToDeg(roll),
		mgl64.RadToDeg(pitch),
		mgl64.RadToDeg(yaw),
	}
}

// NormalizeAngle maps degrees into (-180, 180].
func NormalizeAngle(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg <= -180 {
		deg += 360
	} else if deg > 180 {
		deg -= 360
	}
	return deg
}

// AngleBetween returns the smallest rotation angle in degrees taking a to b.
func AngleBetween(a, b mgl64.Quat) float64 {
	d := math.Abs(a.Dot(b))
	if la, lb := a.Len(), b.Len(); la != 0 && lb != 0 {
		d /= la * lb
	}
	if d > 1 {
		d = 1
	}
	return mgl64.RadToDeg(2 * math.Acos(d))
}

// DeltaEuler returns the per-axis rotation from a to b in Euler degrees,
// each axis normalized into (-180, 180].
func DeltaEuler(a, b mgl64.Quat) mgl64.Vec3 {
	return normalizeEuler(EulerFromQuat(b.Mul(a.Inverse())))
}

// BodyDeltaEuler is DeltaEuler measured in a's local frame, so that
// a.Mul(QuatFromEuler(BodyDeltaEuler(a, b))) equals b.
func BodyDeltaEuler(a, b mgl64.Quat) mgl64.Vec3 {
	return normalizeEuler(EulerFromQuat(a.Inverse().Mul(b)))
}

func normalizeEuler(e mgl64.Vec3) mgl64.Vec3 {
	return mgl64.Vec3{NormalizeAngle(e[0]), NormalizeAngle(e[1]), NormalizeAngle(e[2])}
}
