// Package handpose curls the fingers of both hands from the controller input.
package handpose

import (
	"fmt"
	"strings"

	"github.com/akmonengine/marionette/bone"
	"github.com/akmonengine/marionette/rig"
	"github.com/go-gl/mathgl/mgl64"
)

// SmoothingRate is how fast, per second, a finger turns toward its target
const SmoothingRate = 7.0

// Buttons is a bitmask of the controller buttons touched
type Buttons uint64

const (
	ButtonGrip Buttons = 1 << iota
	ButtonTrigger
	ButtonTouchpad
)

// Controller is the input snapshot of one hand
type Controller struct {
	Touched Buttons
	// Grip is the analog grip proximity, 0 open to 1 closed
	Grip float64
}

// ReferencePose gives the authored local transform of a finger bone, for instance the one
// of the weapon grip animation.
type ReferencePose interface {
	LocalTransform(name string) (bone.Transform, bool)
}

// Input of one Update
type Input struct {
	// Controllers is indexed by hand: 0 left, 1 right
	Controllers [2]Controller
	DeltaTime   float64
	// WeaponVisible, UIMode and LeftHanded decide whether the weapon hand copies the
	// Reference pose instead of following its controller
	WeaponVisible bool
	UIMode        bool
	LeftHanded    bool
	Reference     ReferencePose
}

type finger struct {
	name  string
	index int
	left  bool
	// digit 1 is the thumb, 2 the index finger
	digit   int
	segment int
	group   Buttons

	open, closed mgl64.Quat
	openRot      mgl64.Mat3
	position     mgl64.Vec3

	current mgl64.Quat
}

// Blender holds the finger smoothing state of one skeleton
type Blender struct {
	fingers []finger
	manual  map[string]float64
}

// NewBlender resolves the finger bones of poses in tree. Fingers start open.
func NewBlender(tree *bone.Tree, poses []rig.FingerPose) (*Blender, error) {
	b := &Blender{
		fingers: make([]finger, 0, len(poses)),
		manual:  make(map[string]float64),
	}

	for _, pose := range poses {
		i, err := tree.Index(pose.Name)
		if err != nil {
			return nil, fmt.Errorf("handpose: %w", err)
		}
		digit, segment, ok := parseFinger(pose.Name)
		if !ok {
			return nil, fmt.Errorf("handpose: %q is not a finger bone", pose.Name)
		}

		f := finger{
			name:     pose.Name,
			index:    i,
			left:     strings.HasPrefix(pose.Name, "L"),
			digit:    digit,
			segment:  segment,
			group:    ButtonGrip,
			open:     bone.Quat(pose.Open),
			closed:   bone.Quat(pose.Closed),
			openRot:  pose.Open,
			position: tree.Default(i).Position,
		}
		switch digit {
		case 1:
			f.group = ButtonTouchpad
		case 2:
			f.group = ButtonTrigger
		}
		f.current = f.open

		b.fingers = append(b.fingers, f)
	}

	return b, nil
}

// parseFinger reads the digit and segment from names like "LArm_Finger23"
func parseFinger(name string) (int, int, bool) {
	k := strings.Index(name, "Finger")
	if k < 0 || len(name) != k+8 {
		return 0, 0, false
	}
	digit := int(name[k+6] - '0')
	segment := int(name[k+7] - '0')
	if digit < 1 || digit > 5 || segment < 1 || segment > 3 {
		return 0, 0, false
	}
	return digit, segment, true
}

// SetManual pins the curl of a finger, 0 open to 1 closed, until ClearManual
func (b *Blender) SetManual(name string, curl float64) error {
	for _, f := range b.fingers {
		if f.name == name {
			b.manual[name] = mgl64.Clamp(curl, 0, 1)
			return nil
		}
	}
	return fmt.Errorf("handpose: %w", &bone.MissingBoneError{Name: name})
}

func (b *Blender) ClearManual(name string) {
	delete(b.manual, name)
}

// Current returns the smoothed rotation of a finger
func (b *Blender) Current(name string) (mgl64.Quat, bool) {
	for _, f := range b.fingers {
		if f.name == name {
			return f.current, true
		}
	}
	return mgl64.QuatIdent(), false
}

// Update blends every finger toward its target and writes its local transform in tree.
func (b *Blender) Update(tree *bone.Tree, in Input) {
	blend := mgl64.Clamp(in.DeltaTime*SmoothingRate, 0, 1)

	for k := range b.fingers {
		f := &b.fingers[k]
		hand := 1
		if f.left {
			hand = 0
		}
		controller := in.Controllers[hand]

		weaponHand := f.left == in.LeftHanded
		if in.WeaponVisible && !in.UIMode && weaponHand && in.Reference != nil {
			if ref, ok := in.Reference.LocalTransform(f.name); ok && ref.IsFinite() {
				f.current = bone.Quat(ref.Rotation)
				tree.SetLocal(f.index, ref)
				continue
			}
		}

		f.current = bone.Slerp(f.current, b.target(f, controller), blend)

		local := tree.Local(f.index)
		local.Rotation = f.current.Mat4().Mat3()
		local.Position = f.position
		tree.SetLocal(f.index, local)
	}
}

// target is the rotation a finger turns toward:
// a manual curl first, then the thumb up gesture, then its button, then the grip axis.
func (b *Blender) target(f *finger, c Controller) mgl64.Quat {
	if curl, ok := b.manual[f.name]; ok {
		return bone.Slerp(f.open, f.closed, curl)
	}

	thumbUp := c.Touched&ButtonGrip != 0 && c.Touched&ButtonTrigger != 0 && c.Touched&ButtonTouchpad == 0
	if thumbUp && f.digit == 1 {
		return thumbUpPose(f)
	}

	if c.Touched&f.group != 0 {
		return f.closed
	}
	if f.group == ButtonGrip {
		return bone.Slerp(f.open, f.closed, mgl64.Clamp(c.Grip, 0, 1))
	}
	return f.open
}

// thumbUpPose lifts the thumb away from the closed fist
func thumbUpPose(f *finger) mgl64.Quat {
	sign := 1.0
	if f.left {
		sign = -1.0
	}

	switch f.segment {
	case 1:
		lift := mgl64.AnglesToQuat(sign*0.5, sign*0.4, -0.3, mgl64.XYZ).Mat4().Mat3()
		return bone.Quat(f.openRot.Mul3(lift))
	case 3:
		return bone.Quat(f.openRot.Mul3(mgl64.Rotate3DZ(mgl64.DegToRad(-35))))
	}
	return f.open
}
