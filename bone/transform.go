package bone

import "github.com/go-gl/mathgl/mgl64"

// Transform represents a position, rotation and uniform scale in 3D space.
// Rotation is kept orthonormal: every composition re-orthonormalizes it.
type Transform struct {
	Position mgl64.Vec3
	Rotation mgl64.Mat3
	Scale    float64
}

// NewTransform creates an identity transform
func NewTransform() Transform {
	return Transform{
		Position: mgl64.Vec3{0, 0, 0},
		Rotation: mgl64.Ident3(),
		Scale:    1.0,
	}
}

// Mul composes a parent transform with a child local transform:
// world.Position = parent.Position + parent.Rotation * (local.Position * parent.Scale)
// world.Rotation = parent.Rotation * local.Rotation
// world.Scale    = parent.Scale * local.Scale
func (t Transform) Mul(local Transform) Transform {
	return Transform{
		Position: t.Position.Add(t.Rotation.Mul3x1(local.Position.Mul(t.Scale))),
		Rotation: Orthonormalize(t.Rotation.Mul3(local.Rotation)),
		Scale:    t.Scale * local.Scale,
	}
}

// Inverse returns the transform undoing t. A zero scale has no inverse, the result is then non finite.
func (t Transform) Inverse() Transform {
	rt := t.Rotation.Transpose()
	inv := 1.0 / t.Scale
	return Transform{
		Position: rt.Mul3x1(t.Position).Mul(-inv),
		Rotation: rt,
		Scale:    inv,
	}
}

// Apply maps a point from the local space of t into its parent space
func (t Transform) Apply(point mgl64.Vec3) mgl64.Vec3 {
	return t.Position.Add(t.Rotation.Mul3x1(point.Mul(t.Scale)))
}

// ToLocal maps a point from the parent space of t into its local space
func (t Transform) ToLocal(point mgl64.Vec3) mgl64.Vec3 {
	return t.Rotation.Transpose().Mul3x1(point.Sub(t.Position)).Mul(1.0 / t.Scale)
}

// IsFinite reports whether every component of the transform is a finite number
func (t Transform) IsFinite() bool {
	if !IsFiniteVec(t.Position) || !IsFinite(t.Scale) {
		return false
	}
	for _, v := range t.Rotation {
		if !IsFinite(v) {
			return false
		}
	}
	return true
}
