package bone

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

const epsilon = 1e-9

var (
	AxisX = mgl64.Vec3{1, 0, 0}
	AxisY = mgl64.Vec3{0, 1, 0}
	AxisZ = mgl64.Vec3{0, 0, 1}
)

// RowMajor builds a rotation matrix from nine row-major values.
// mgl64 stores matrices column-major.
func RowMajor(m [9]float64) mgl64.Mat3 {
	return mgl64.Mat3{
		m[0], m[3], m[6],
		m[1], m[4], m[7],
		m[2], m[5], m[8],
	}
}

// Rows returns the nine row-major values of m, the inverse of RowMajor
func Rows(m mgl64.Mat3) [9]float64 {
	return [9]float64{
		m[0], m[3], m[6],
		m[1], m[4], m[7],
		m[2], m[5], m[8],
	}
}

// Orthonormalize runs Gram-Schmidt on the columns of m, keeping the first column direction.
func Orthonormalize(m mgl64.Mat3) mgl64.Mat3 {
	x := m.Col(0)
	y := m.Col(1)

	if x.Len() < epsilon || y.Len() < epsilon {
		return m
	}
	x = x.Normalize()
	y = y.Sub(x.Mul(x.Dot(y)))
	if y.Len() < epsilon {
		return m
	}
	y = y.Normalize()
	z := x.Cross(y)

	return mgl64.Mat3FromCols(x, y, z)
}

// RotationBetween returns the rotation turning direction from onto direction to.
// Degenerate (zero length) inputs yield the identity.
func RotationBetween(from, to mgl64.Vec3) mgl64.Mat3 {
	if from.Len() < epsilon || to.Len() < epsilon {
		return mgl64.Ident3()
	}
	q := mgl64.QuatBetweenVectors(from.Normalize(), to.Normalize())

	return q.Normalize().Mat4().Mat3()
}

// AxisAngle returns the rotation of angle radians around axis
func AxisAngle(axis mgl64.Vec3, angle float64) mgl64.Mat3 {
	if axis.Len() < epsilon {
		return mgl64.Ident3()
	}

	return mgl64.HomogRotate3D(angle, axis.Normalize()).Mat3()
}

// TwistX is a rotation of angle radians around the local X axis, the long axis of every limb bone.
func TwistX(angle float64) mgl64.Mat3 {
	return mgl64.Rotate3DX(angle)
}

// RotateXY rotates v around the vertical axis, leaving its Z untouched
func RotateXY(v mgl64.Vec3, angle float64) mgl64.Vec3 {
	s, c := math.Sincos(angle)
	return mgl64.Vec3{v.X()*c - v.Y()*s, v.X()*s + v.Y()*c, v.Z()}
}

// Normalize returns v with unit length, or the zero vector when v is too short to have a direction.
func Normalize(v mgl64.Vec3) mgl64.Vec3 {
	l := v.Len()
	if l < epsilon {
		return mgl64.Vec3{}
	}
	return v.Mul(1.0 / l)
}

// Det returns the scalar triple product a · (b × c)
func Det(a, b, c mgl64.Vec3) float64 {
	return a.Dot(b.Cross(c))
}

// IsFinite reports whether v is neither NaN nor infinite
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func IsFiniteVec(v mgl64.Vec3) bool {
	return IsFinite(v.X()) && IsFinite(v.Y()) && IsFinite(v.Z())
}

// Horizontal drops the vertical component of v
func Horizontal(v mgl64.Vec3) mgl64.Vec3 {
	return mgl64.Vec3{v.X(), v.Y(), 0}
}

// Quat converts a rotation matrix to a unit quaternion
func Quat(m mgl64.Mat3) mgl64.Quat {
	return mgl64.Mat4ToQuat(Orthonormalize(m).Mat4()).Normalize()
}

// Slerp interpolates along the shortest arc. mgl64.QuatSlerp does not flip the hemisphere.
func Slerp(from, to mgl64.Quat, amount float64) mgl64.Quat {
	if from.Dot(to) < 0 {
		to = to.Scale(-1)
	}
	return mgl64.QuatSlerp(from, to, amount).Normalize()
}
