package ik

import (
	"errors"
	"fmt"
	"math"

	"github.com/akmonengine/marionette/bone"
	"github.com/akmonengine/marionette/config"
	"github.com/go-gl/mathgl/mgl64"
)

const (
	// MaxHandDistance is the farthest a tracked hand may be from its shoulder before it is
	// treated as a tracking fault
	MaxHandDistance = 200.0
	// MaxReachFactor skips the arm when the hand is farther than this many arm lengths
	MaxReachFactor = 2.25
	// TwistSmoothing is the share of the new twist angle blended in every frame
	TwistSmoothing = 0.25
)

// ErrTrackingFault reports a tracked hand the arm was not solved for
var ErrTrackingFault = errors.New("ik: tracking fault")

// ArmChain is collarbone -> upper arm -> forearm 1..3 -> hand, with rest lengths measured on
// the default pose.
type ArmChain struct {
	Collarbone int
	Upper      int
	Forearm1   int
	Forearm2   int
	Forearm3   int
	Hand       int

	// UpperRest is the upper arm length
	UpperRest float64
	// ForearmRest runs from the elbow to the wrist through the three forearm segments
	ForearmRest float64
	// HandRest is the last forearm segment only, the exosuit forearm is a single bone
	HandRest float64
}

// NewArmChain resolves an arm from its bone name prefix, "LArm_" or "RArm_"
func NewArmChain(tree *bone.Tree, prefix string) (ArmChain, error) {
	indices, err := tree.Lookup(
		prefix+"Collarbone",
		prefix+"UpperArm",
		prefix+"ForeArm1",
		prefix+"ForeArm2",
		prefix+"ForeArm3",
		prefix+"Hand",
	)
	if err != nil {
		return ArmChain{}, fmt.Errorf("ik: arm chain: %w", err)
	}

	c := ArmChain{
		Collarbone: indices[0],
		Upper:      indices[1],
		Forearm1:   indices[2],
		Forearm2:   indices[3],
		Forearm3:   indices[4],
		Hand:       indices[5],
	}
	c.UpperRest = tree.Default(c.Forearm1).Position.Len()
	c.HandRest = tree.Default(c.Hand).Position.Len()
	c.ForearmRest = c.HandRest + tree.Default(c.Forearm2).Position.Len() + tree.Default(c.Forearm3).Position.Len()

	return c, nil
}

// Body is the torso frame the elbow heuristics are expressed in
type Body struct {
	// Forward is the horizontal facing direction
	Forward mgl64.Vec3
	// Sideways points to the right of Forward
	Sideways mgl64.Vec3
	// ChestZ is the world height of the chest
	ChestZ float64
}

// ArmSolver poses both arms from the tracked hands.
// The twist memory is per solver and per side; two skeletons never share it.
type ArmSolver struct {
	Chains [2]ArmChain
	// ArmLength is the player arm length, read from the config every frame
	ArmLength float64
	// Exosuit treats the forearm as a single segment and skips the forearm twist
	Exosuit bool

	twist [2]float64
}

func NewArmSolver(left, right ArmChain, armLength float64) *ArmSolver {
	return &ArmSolver{
		Chains:    [2]ArmChain{left, right},
		ArmLength: armLength,
	}
}

// Twist returns the smoothed elbow twist angle of a side
func (s *ArmSolver) Twist(side Side) float64 {
	return s.twist[side]
}

// Reset clears the twist memory
func (s *ArmSolver) Reset() {
	s.twist = [2]float64{}
}

// Solve poses one arm so that its hand matches the tracked hand transform.
// A non-finite or absurdly distant hand returns ErrTrackingFault before any bone is touched,
// leaving the arm in the pose it had.
func (s *ArmSolver) Solve(p bone.Propagation, side Side, hand bone.Transform, body Body) (Solution, error) {
	chain := s.Chains[side]
	if err := p.Require(chain.Collarbone, chain.Upper); err != nil {
		return Solution{}, err
	}
	tree := p.Tree()
	handPos := hand.Position
	handRot := hand.Rotation

	if !hand.IsFinite() {
		return Solution{}, fmt.Errorf("%w: %s hand is not finite", ErrTrackingFault, side)
	}
	if d := tree.World(chain.Upper).Position.Sub(handPos).Len(); d > MaxHandDistance {
		return Solution{}, fmt.Errorf("%w: %s hand is %.1f away from the shoulder", ErrTrackingFault, side, d)
	}

	armScale := s.ArmLength / config.DefaultArmLength
	upperLen := chain.UpperRest * armScale
	forearmLen := chain.ForearmRest * armScale
	if s.Exosuit {
		forearmLen = chain.HandRest * armScale
	}
	if d := tree.World(chain.Upper).Position.Sub(handPos).Len(); d > (upperLen+forearmLen)*MaxReachFactor {
		return Solution{}, fmt.Errorf("%w: %s hand is out of reach", ErrTrackingFault, side)
	}

	s.rollShoulder(tree, chain, handPos)

	sign := side.sign()
	forward := bone.Normalize(body.Forward)
	sideways := bone.Normalize(body.Sideways.Mul(sign))
	collarPos := tree.World(chain.Collarbone).Position
	upperWorld := tree.World(chain.Upper)

	// Twist candidates from the hand back and hand side vectors, the back one wins as the
	// hand points down
	handBack := handRot.Mul3x1(mgl64.Vec3{-1, 0, 0})
	handSide := handRot.Mul3x1(mgl64.Vec3{0, -1, 0})
	handInSide := handSide.Mul(sign)
	backAngle := math.Asin(mgl64.Clamp(handBack.Z(), -0.999, 0.999))
	sideAngle := -math.Asin(mgl64.Clamp(handSide.Z(), -0.599, 0.999))
	interp := mgl64.Clamp((handBack.Z()+0.866)*1.155, 0.45, 0.8)
	target := backAngle + interp*(sideAngle-backAngle)

	s.twist[side] += (target - s.twist[side]) * TwistSmoothing
	twist := s.twist[side]

	// Hand behind the body
	behindD := -(forward.X()*collarPos.X() + forward.Y()*collarPos.Y()) - 10.0
	handBehind := -(handPos.X()*forward.X() + handPos.Y()*forward.Y() + behindD)
	behind := mgl64.Clamp(handBehind/40.0, 0, 1)

	// Hand across the chest
	planeDir := bone.RotateXY(forward, sign*mgl64.DegToRad(135))
	planeD := -(planeDir.X()*collarPos.X() + planeDir.Y()*collarPos.Y()) + 16.0
	cross := mgl64.Clamp((handPos.X()*planeDir.X()+handPos.Y()*planeDir.Y()+planeD)/20.0, 0, 1)

	// Hand lifted above the chest, 1 at the bottom and 0 at the top
	liftLimit := mgl64.Clamp((body.ChestZ+60.0-handPos.Z())/60.0, 0, 1)
	upLimit := mgl64.Clamp((1.0-liftLimit)*1.4, 0, 1)

	adjustMin := math.Max(behind, math.Min(cross, liftLimit))
	minAngle := mgl64.DegToRad(-85) + mgl64.DegToRad(50)*adjustMin
	maxAngle := mgl64.DegToRad(55) - math.Max(mgl64.DegToRad(90)*cross, mgl64.DegToRad(70)*upLimit)
	limited := minAngle + (twist+math.Pi/2.0)/math.Pi*(maxAngle-minAngle)

	bendDown := bone.AxisAngle(sideways.Mul(sign), limited).Mul3x1(forward)

	sideD := -(sideways.X()*collarPos.X() + sideways.Y()*collarPos.Y()) - 8.0
	across := -(handPos.X()*sideways.X() + handPos.Y()*sideways.Y() + sideD) / 16.0
	outward := handSide.Dot(bone.Normalize(sideways.Add(forward.Mul(0.5))))
	armTwist := mgl64.Clamp(outward-math.Max(0, across+0.25), 0, 1)
	if across < 0 {
		across *= 0.2
	}

	behindHead := mgl64.Clamp(handBehind/15.0, 0, 1) * mgl64.Clamp(upLimit*1.2, 0, 1)
	elbowsForward := math.Max(across*mgl64.DegToRad(90), behindHead*mgl64.DegToRad(120))
	elbowDir := bone.RotateXY(bendDown, -sign*(mgl64.DegToRad(150)-armTwist*mgl64.DegToRad(25)-elbowsForward))

	sol := TwoBone{
		Root:   upperWorld.Position,
		Target: handPos,
		Pole:   elbowDir,
		LenA:   upperLen,
		LenB:   forearmLen,
	}.Solve()
	elbow := sol.Joint

	collar := tree.World(chain.Collarbone)

	// Upper arm toward the elbow
	aim(tree, chain.Upper, tree.Local(chain.Forearm1).Position, elbow)
	upperLocal := tree.Local(chain.Upper)
	upper := collar.Mul(upperLocal)

	// Twist the upper arm around its length so the forearm plane follows the elbow
	localTwist := upper.Rotation.Transpose().Mul3x1(bone.Normalize(handPos.Sub(elbow)))
	localTwist[0] = 0
	upperSide := collar.Rotation.Transpose().Mul3x1(upperWorld.Rotation.Mul3x1(bone.AxisY))
	upperSide[0] = 0
	upperAngle := math.Acos(mgl64.Clamp(bone.Normalize(localTwist).Dot(bone.Normalize(upperSide)), -1, 1))
	if localTwist.Z() <= 0 {
		upperAngle = -upperAngle
	}

	upperLocal.Rotation = upperLocal.Rotation.Mul3(bone.TwistX(-upperAngle))
	tree.SetLocal(chain.Upper, upperLocal)
	upper = collar.Mul(upperLocal)

	// Forearm toward the hand
	forearm := tree.Local(chain.Forearm1)
	forearm.Rotation = forearm.Rotation.Mul3(bone.TwistX(-upperAngle))
	forearmDir := upper.Mul(forearm).Rotation.Transpose().Mul3x1(bone.Normalize(handPos.Sub(elbow)))
	forearm.Rotation = forearm.Rotation.Mul3(bone.RotationBetween(bone.AxisX, forearmDir))
	forearm.Position = upper.ToLocal(elbow)
	tree.SetLocal(chain.Forearm1, forearm)
	lower := upper.Mul(forearm)

	wrist := lower
	if !s.Exosuit {
		wrist = s.twistForearm(tree, chain, lower, handInSide, sign)
	}

	// The hand world rotation matches the tracked one
	handLocal := tree.Local(chain.Hand)
	handLocal.Rotation = bone.Orthonormalize(wrist.Rotation.Transpose().Mul3(handRot))

	// Forearm segments follow the solved forearm length
	rest := chain.ForearmRest
	if s.Exosuit {
		rest = chain.HandRest
	}
	ratio := sol.LenB / (rest * lower.Scale)

	if !s.Exosuit {
		for _, i := range []int{chain.Forearm2, chain.Forearm3} {
			local := tree.Local(i)
			local.Position = tree.Default(i).Position.Mul(ratio)
			tree.SetLocal(i, local)
		}
	}
	handLocal.Position = tree.Default(chain.Hand).Position.Mul(ratio)
	tree.SetLocal(chain.Hand, handLocal)

	return sol, nil
}

// rollShoulder turns the collarbone so the shoulder slides toward the hand, more as the hand
// gets farther, then updates the arm below it.
func (s *ArmSolver) rollShoulder(tree *bone.Tree, chain ArmChain, handPos mgl64.Vec3) {
	upperPos := tree.World(chain.Upper).Position
	toHand := handPos.Sub(upperPos)

	reach := s.ArmLength * 0.85
	amount := mgl64.Clamp(toHand.Len()-s.ArmLength*0.5, 0, reach) / reach
	offset := bone.Normalize(toHand).Mul(amount * s.ArmLength * 0.08)

	aim(tree, chain.Collarbone, bone.AxisX, upperPos.Add(offset))
	tree.PropagateSubtree(chain.Collarbone, true)
}

// twistForearm spreads the wrist twist over the two outer forearm segments and returns the
// world transform of the last one.
func (s *ArmSolver) twistForearm(tree *bone.Tree, chain ArmChain, lower bone.Transform, handInSide mgl64.Vec3, sign float64) bone.Transform {
	f2 := tree.Local(chain.Forearm2)
	f3 := tree.Local(chain.Forearm3)
	w2 := lower.Mul(f2)
	w3 := w2.Mul(f3)

	wrist := w3.Rotation.Transpose().Mul3x1(bone.Normalize(handInSide))
	wrist[0] = 0
	// the last forearm segment is turned a quarter from the hand
	side3 := w2.Rotation.Transpose().Mul3x1(w3.Rotation.Mul3x1(mgl64.Vec3{0, 0, -1}))
	side3[0] = 0

	w, f := bone.Normalize(wrist), bone.Normalize(side3)
	angle := -sign * math.Atan2(bone.Det(w, f, mgl64.Vec3{-1, 0, 0}), w.Dot(f))
	half := bone.TwistX(sign * angle / 2.0)

	f2.Rotation = f2.Rotation.Mul3(half)
	f3.Rotation = f3.Rotation.Mul3(half)
	tree.SetLocal(chain.Forearm2, f2)
	tree.SetLocal(chain.Forearm3, f3)

	return lower.Mul(f2).Mul(f3)
}
