package ik

import (
	"fmt"

	"github.com/akmonengine/marionette/bone"
	"github.com/go-gl/mathgl/mgl64"
)

// Side selects a limb
type Side int

const (
	Left Side = iota
	Right
)

func (s Side) String() string {
	if s == Left {
		return "left"
	}
	return "right"
}

// sign is -1 for the left limb, 1 for the right one
func (s Side) sign() float64 {
	if s == Left {
		return -1.0
	}
	return 1.0
}

// IsOffhand reports whether side is the hand not holding the weapon
func IsOffhand(side Side, leftHanded bool) bool {
	return leftHanded != (side == Left)
}

// LegChain is hip (thigh) -> knee (calf) -> foot with rest lengths measured on the default pose
type LegChain struct {
	Hip, Knee, Foot int
	ThighRest       float64
	CalfRest        float64
}

// NewLegChain resolves a leg by bone names
func NewLegChain(tree *bone.Tree, hip, knee, foot string) (LegChain, error) {
	indices, err := tree.Lookup(hip, knee, foot)
	if err != nil {
		return LegChain{}, fmt.Errorf("ik: leg chain: %w", err)
	}

	return LegChain{
		Hip:       indices[0],
		Knee:      indices[1],
		Foot:      indices[2],
		ThighRest: tree.Default(indices[1]).Position.Len(),
		CalfRest:  tree.Default(indices[2]).Position.Len(),
	}, nil
}

// LegSolver poses both legs toward their foot targets
type LegSolver struct {
	Chains [2]LegChain
	// Exosuit bends the knees around the hip Z axis instead of its Y axis
	Exosuit bool

	kneePins [2]float64
}

func NewLegSolver(left, right LegChain) *LegSolver {
	return &LegSolver{Chains: [2]LegChain{left, right}}
}

// CaptureKnees records the current knee heights
func (s *LegSolver) CaptureKnees(tree *bone.Tree) {
	for side, chain := range s.Chains {
		s.kneePins[side] = tree.World(chain.Knee).Position.Z()
	}
}

// PinKnees moves each knee back to its captured height and updates the bones below it.
// This keeps knees steady while the body height changes under them.
func (s *LegSolver) PinKnees(p bone.Propagation) error {
	tree := p.Tree()
	for side, chain := range s.Chains {
		if err := p.Require(chain.Knee); err != nil {
			return err
		}
		w := tree.World(chain.Knee)
		w.Position[2] = s.kneePins[side]
		tree.SetWorld(chain.Knee, w)
		tree.PropagateSubtree(chain.Knee, false)
	}
	return nil
}

// FootRest returns the current world position of the foot of a side
func (s *LegSolver) FootRest(tree *bone.Tree, side Side) mgl64.Vec3 {
	return tree.World(s.Chains[side].Foot).Position
}

// Solve bends one leg so its foot lands on foot.
// The hip and knee locals are rotated; the knee and foot local positions are rewritten and
// never exceed their rest lengths.
func (s *LegSolver) Solve(p bone.Propagation, side Side, foot mgl64.Vec3) (Solution, error) {
	chain := s.Chains[side]
	if err := p.Require(chain.Hip); err != nil {
		return Solution{}, err
	}
	if !bone.IsFiniteVec(foot) {
		return Solution{}, fmt.Errorf("ik: %s foot target is not finite", side)
	}
	tree := p.Tree()

	hipWorld := tree.World(chain.Hip)
	pole := bone.AxisY
	if s.Exosuit {
		pole = mgl64.Vec3{0, 0, -side.sign()}
	}

	// rest lengths are in local units, the triangle is solved in world space
	sol := TwoBone{
		Root:   hipWorld.Position,
		Target: foot,
		Pole:   hipWorld.Rotation.Mul3x1(pole),
		LenA:   chain.ThighRest * hipWorld.Scale,
		LenB:   chain.CalfRest * hipWorld.Scale,
	}.Solve()
	knee := sol.Joint

	aim(tree, chain.Hip, tree.Local(chain.Knee).Position, knee)
	hip := tree.ParentWorld(chain.Hip).Mul(tree.Local(chain.Hip))

	kneeLocal := tree.Local(chain.Knee)
	dir := hip.Mul(kneeLocal).Rotation.Transpose().Mul3x1(bone.Normalize(foot.Sub(knee)))
	kneeLocal.Rotation = kneeLocal.Rotation.Mul3(bone.RotationBetween(tree.Local(chain.Foot).Position, dir))

	kneeLocal.Position = hip.ToLocal(knee)
	kneeLocal.Position = ClampLength(kneeLocal.Position, chain.ThighRest)
	tree.SetLocal(chain.Knee, kneeLocal)

	calf := hip.Mul(kneeLocal)
	footLocal := tree.Local(chain.Foot)
	footLocal.Position = ClampLength(calf.ToLocal(foot), chain.CalfRest)
	tree.SetLocal(chain.Foot, footLocal)

	return sol, nil
}
