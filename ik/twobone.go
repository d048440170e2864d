// Package ik solves limb chains: the analytic two-bone triangle, legs and arms.
package ik

import (
	"math"

	"github.com/akmonengine/marionette/bone"
	"github.com/go-gl/mathgl/mgl64"
)

const (
	// MinReach is the shortest root to target distance the triangle is solved with
	MinReach = 0.1
	// StretchPadding is added to each stretched segment so the triangle never flattens
	StretchPadding = 0.1
)

// TwoBone is a root-joint-end chain reaching for Target.
// LenA is the root to joint segment, LenB the joint to end segment.
// Pole gives the side the joint bends toward.
type TwoBone struct {
	Root   mgl64.Vec3
	Target mgl64.Vec3
	Pole   mgl64.Vec3
	LenA   float64
	LenB   float64
}

// Solution of a TwoBone chain
type Solution struct {
	// Joint is the world position of the middle joint
	Joint mgl64.Vec3
	// Angle is the angle at the target between the target→root axis and the target→joint segment
	Angle float64
	// LenA and LenB are the segment lengths the triangle was solved with
	LenA, LenB float64
	// Reach is the clamped root to target distance
	Reach float64

	Stretched  bool
	Degenerate bool
}

// Solve places the joint with the law of cosines on the (root, joint, target) triangle.
// An unreachable target stretches both segments in proportion to their rest lengths; a target
// too close for the triangle falls back to two equal segments. A finite joint is always returned.
// Joint is not clamped to the rest lengths: callers that must not over-extend a bone clamp it
// themselves (LegSolver does), callers scaling bones to the solved lengths use LenA and LenB
// (ArmSolver does).
func (c TwoBone) Solve() Solution {
	toRoot := c.Root.Sub(c.Target)
	dist := math.Max(toRoot.Len(), MinReach)

	lenA, lenB := c.LenA, c.LenB
	sol := Solution{Reach: dist}

	if dist > lenA+lenB {
		extra := dist - lenA - lenB
		ratio := lenB / (lenA + lenB)
		lenB += ratio*extra + StretchPadding
		lenA += (1.0-ratio)*extra + StretchPadding
		sol.Stretched = true
	}

	angle := math.Acos((lenB*lenB + dist*dist - lenA*lenA) / (2 * lenB * dist))
	if !bone.IsFinite(angle) {
		lenA = (c.LenA + c.LenB) / 2.0
		lenB = lenA
		angle = math.Acos(mgl64.Clamp((lenB*lenB+dist*dist-lenA*lenA)/(2*lenB*dist), -1, 1))
		sol.Degenerate = true
	}

	xDir := bone.Normalize(toRoot)
	if xDir == (mgl64.Vec3{}) {
		xDir = bone.AxisZ
	}
	yDir := bone.Normalize(c.Pole.Sub(xDir.Mul(c.Pole.Dot(xDir))))
	if yDir == (mgl64.Vec3{}) {
		yDir = perpendicular(xDir)
	}

	s, co := math.Sincos(angle)
	sol.Joint = c.Target.Add(xDir.Mul(co * lenB)).Add(yDir.Mul(s * lenB))
	sol.Angle = angle
	sol.LenA, sol.LenB = lenA, lenB

	return sol
}

// perpendicular returns any unit vector orthogonal to v
func perpendicular(v mgl64.Vec3) mgl64.Vec3 {
	p := bone.AxisX.Cross(v)
	if p.Len() < 1e-6 {
		p = bone.AxisY.Cross(v)
	}
	return p.Normalize()
}

// ClampLength shortens v to at most length, keeping its direction
func ClampLength(v mgl64.Vec3, length float64) mgl64.Vec3 {
	if l := v.Len(); l > length && l > 0 {
		return v.Mul(length / l)
	}
	return v
}

// aim rotates the local rotation of i so that the child offset childLocal points at worldTarget.
// The world transform of i must be current.
func aim(tree *bone.Tree, i int, childLocal, worldTarget mgl64.Vec3) {
	world := tree.World(i)
	dir := world.Rotation.Transpose().Mul3x1(bone.Normalize(worldTarget.Sub(world.Position)))

	local := tree.Local(i)
	local.Rotation = local.Rotation.Mul3(bone.RotationBetween(childLocal, dir))
	tree.SetLocal(i, local)
}
