package marionette

import (
	"math"

	"github.com/akmonengine/marionette/bone"
	"github.com/akmonengine/marionette/config"
	"github.com/go-gl/mathgl/mgl64"
)

const (
	// MaxNeckYaw bounds how far the body turns away from the head toward the hands
	MaxNeckYaw = 50.0
	// NeckYawShare is the part of the neck yaw the body follows
	NeckYawShare = 0.7
)

// headTuck moves the head up and back out of the player view, keeping the neck shape
var headTuck = bone.Orthonormalize(bone.RowMajor([9]float64{
	0.967, -0.251, 0.047,
	0.249, 0.967, 0.051,
	-0.058, -0.037, 0.998,
}))

func (s *Skeleton) setupHead() {
	if s.bones.head < 0 {
		return
	}
	local := s.tree.Local(s.bones.head)
	local.Rotation = headTuck
	s.tree.SetLocal(s.bones.head, local)
}

// neckYaw is how far the hands pull the body away from the head direction. Both vectors from
// the head to the hands are summed; hands above the head or crossed over the chest weigh less.
func neckYaw(head, left, right bone.Transform) float64 {
	toLeft := left.Position.Sub(head.Position)
	toRight := right.Position.Sub(head.Position)
	if toLeft.Len() < 10.0 || toRight.Len() < 10.0 {
		return 0
	}

	weight := 1.0
	if toLeft.Z() > 0 {
		weight = math.Max(weight-0.05*toLeft.Z(), 0)
	}
	if toRight.Z() > 0 {
		weight = math.Max(weight-0.05*toRight.Z(), 0)
	}

	inv := head.Rotation.Transpose()
	localLeft := inv.Mul3x1(toLeft)
	localRight := inv.Mul3x1(toRight)
	if localLeft.X() > localRight.X() {
		weight = math.Max(weight+0.02*(localRight.X()-localLeft.X()), 0)
	}

	forward := bone.Normalize(inv.Mul3x1(bone.Normalize(toLeft.Add(toRight))))
	prime := math.Atan2(forward.X(), forward.Y())
	// hands hanging down: measured from the vertical instead
	secondary := math.Atan2(forward.X(), -forward.Z())

	angle := prime
	if math.Abs(neckPitch(head)-math.Atan2(forward.Z(), forward.Y())) > mgl64.DegToRad(80) {
		angle = secondary
	}

	limit := mgl64.DegToRad(MaxNeckYaw)
	return mgl64.Clamp(-angle*weight, -limit, limit)
}

// neckPitch is the head pitch, positive looking down
func neckPitch(head bone.Transform) float64 {
	up := head.Rotation.Transpose().Mul3x1(bone.AxisZ)
	return math.Atan2(-up.Y(), up.Z())
}

// bodyPitch leans the torso forward as the head gets lower than the player height
func bodyPitch(cfg config.Config, headHeight, pitch float64) float64 {
	const basePitch = 105.3
	const weight = 0.1

	height := math.Abs((cfg.PlayerHeight - headHeight) / cfg.PlayerHeight)
	angle := height * (basePitch + weight*mgl64.RadToDeg(pitch))

	return mgl64.DegToRad(mgl64.Clamp(angle, -80, 80))
}

// facing is the rotation around Z turning the rig forward axis, +Y, onto forward
func facing(forward mgl64.Vec3) mgl64.Mat3 {
	return mgl64.Rotate3DZ(math.Atan2(-forward.X(), forward.Y()))
}

// setBodyUnderHMD places the body under the head, facing the direction derived from the head
// and the hands, scaled to the player height.
func (s *Skeleton) setBodyUnderHMD(cfg config.Config, frame Frame, head bone.Transform) {
	s.neckPitch = neckPitch(head)
	// a lost hand holds the last yaw, the other limbs must not move with it
	if frame.Pose.LeftHand.IsFinite() && frame.Pose.RightHand.IsFinite() {
		s.neckYaw = neckYaw(head, frame.Pose.LeftHand, frame.Pose.RightHand)
	}

	level := head.Rotation.Mul3(mgl64.Rotate3DX(s.neckPitch)).Col(1)
	if forward := bone.Normalize(bone.Horizontal(level)); forward != (mgl64.Vec3{}) {
		s.forward = bone.RotateXY(forward, s.neckYaw*NeckYawShare)
	}
	s.sideways = mgl64.Vec3{s.forward.Y(), -s.forward.X(), 0}

	base := bone.NewTransform()
	base.Position = mgl64.Vec3{head.Position.X(), head.Position.Y(), frame.Ground - cfg.BaseOffset()}
	s.tree.SetBase(base)

	if s.bones.root < 0 {
		return
	}
	local := s.tree.Local(s.bones.root)
	local.Rotation = facing(s.forward)
	local.Scale = cfg.Scale()
	s.tree.SetLocal(s.bones.root, local)
}

// setBodyPosture hangs the torso from the neck: the hips move back as the head goes down, the COM
// follows with a softened height and the spine leans toward the neck.
func (s *Skeleton) setBodyPosture(cfg config.Config, p bone.Propagation, head bone.Transform, ground float64) {
	b := s.bones
	if b.com < 0 || b.neck < 0 {
		return
	}
	if err := p.Require(b.com, b.neck); err != nil {
		s.logger.Printf("WARN body posture: %v", err)
		return
	}
	tree := p.Tree()

	pitch := bodyPitch(cfg, head.Position.Z()-ground, s.neckPitch)
	if !cfg.Exosuit {
		pitch /= 1.2
	}
	scale := cfg.Scale()

	up := cfg.OffsetUp() - math.Cos(s.neckPitch)*5.0*scale
	neckPos := head.Position.Add(mgl64.Vec3{
		-s.forward.X() * cfg.OffsetForward() / 2.0,
		-s.forward.Y() * cfg.OffsetForward() / 2.0,
		up,
	})

	com := tree.World(b.com).Position
	s.torsoLen = tree.World(b.neck).Position.Sub(com).Len()

	back := mgl64.Vec3{-s.forward.X(), -s.forward.Y(), 0}
	// the hip slides back at the height it would hang straight under the neck
	hip := com.Add(back.Mul(math.Tan(pitch) * neckPos.Sub(com).Len()))
	hip[2] = neckPos.Z() - s.torsoLen
	newHip := neckPos.Add(bone.Normalize(hip.Sub(neckPos)).Mul(s.torsoLen))

	divisor := 1.5
	if cfg.Exosuit {
		divisor = 1.7
	}
	delta := tree.ParentWorld(b.com).Rotation.Transpose().Mul3x1(newHip.Sub(com)).Mul(1.0 / scale)
	rest := tree.Default(b.com).Position

	local := tree.Local(b.com)
	local.Position = mgl64.Vec3{0, delta.Y() + cfg.OffsetForward(), rest.Z() + delta.Z()/divisor}
	tree.SetLocal(b.com, local)

	if b.spine < 0 {
		return
	}
	// the torso axis turns from the rest COM to neck onto the new hip to neck
	lean := bone.RotationBetween(tree.World(b.neck).Position.Sub(com), neckPos.Sub(newHip))
	spine := tree.Local(b.spine)
	parent := tree.ParentWorld(b.spine).Rotation
	spine.Rotation = bone.Orthonormalize(parent.Transpose().Mul3(lean).Mul3(tree.World(b.spine).Rotation))
	tree.SetLocal(b.spine, spine)
}
