package ik

import (
	"errors"
	"math"
	"testing"

	"github.com/akmonengine/marionette/bone"
	"github.com/akmonengine/marionette/config"
	"github.com/go-gl/mathgl/mgl64"
)

func armSolver(t *testing.T, tree *bone.Tree) *ArmSolver {
	t.Helper()

	left, err := NewArmChain(tree, "LArm_")
	if err != nil {
		t.Fatalf("NewArmChain(left) error = %v", err)
	}
	right, err := NewArmChain(tree, "RArm_")
	if err != nil {
		t.Fatalf("NewArmChain(right) error = %v", err)
	}
	return NewArmSolver(left, right, config.DefaultArmLength)
}

func body(t *testing.T, tree *bone.Tree) Body {
	t.Helper()

	chest, err := tree.GetWorldTransform("Chest")
	if err != nil {
		t.Fatalf("GetWorldTransform(Chest) error = %v", err)
	}
	return Body{Forward: bone.AxisY, Sideways: bone.AxisX, ChestZ: chest.Position.Z()}
}

// reachableHand places a tracked hand in front of and below the shoulder
func reachableHand(tree *bone.Tree, chain ArmChain) bone.Transform {
	hand := bone.NewTransform()
	hand.Position = tree.World(chain.Upper).Position.Add(mgl64.Vec3{4, 22, -18})
	hand.Rotation = mgl64.Rotate3DX(0.5)
	return hand
}

// =============================================================================
// ArmSolver Tests
// =============================================================================

func TestNewArmChain_RestLengths(t *testing.T) {
	tree := defaultTree(t)

	chain, err := NewArmChain(tree, "RArm_")
	if err != nil {
		t.Fatalf("NewArmChain() error = %v", err)
	}
	if !almostEqual(chain.UpperRest, 17.9705, 1e-3) {
		t.Errorf("UpperRest = %v, want 17.9705", chain.UpperRest)
	}
	if !almostEqual(chain.ForearmRest, 3*6.1529, 1e-2) {
		t.Errorf("ForearmRest = %v, want about %v", chain.ForearmRest, 3*6.1529)
	}

	if _, err := NewArmChain(tree, "XArm_"); !errors.Is(err, bone.ErrMissingBone) {
		t.Errorf("NewArmChain(XArm_) error = %v, want ErrMissingBone", err)
	}
}

func TestArmSolver_HandMatchesTracking(t *testing.T) {
	for _, side := range []Side{Left, Right} {
		t.Run(side.String(), func(t *testing.T) {
			tree := defaultTree(t)
			arms := armSolver(t, tree)
			p := tree.Propagate()

			chain := arms.Chains[side]
			hand := reachableHand(tree, chain)
			sol, err := arms.Solve(p, side, hand, body(t, tree))
			if err != nil {
				t.Fatalf("Solve() error = %v", err)
			}
			if sol.Stretched {
				t.Error("Stretched = true for a reachable hand")
			}

			tree.Propagate()
			world := tree.World(chain.Hand)
			if !vec3AlmostEqual(world.Position, hand.Position, 0.05) {
				t.Errorf("hand position = %v, want %v", world.Position, hand.Position)
			}
			if !world.Rotation.ApproxEqualThreshold(hand.Rotation, 1e-6) {
				t.Errorf("hand rotation = %v, want %v", world.Rotation, hand.Rotation)
			}
			if elbow := tree.World(chain.Forearm1).Position; !vec3AlmostEqual(elbow, sol.Joint, 1e-6) {
				t.Errorf("elbow = %v, want %v", elbow, sol.Joint)
			}
		})
	}
}

func TestArmSolver_TrackingFault(t *testing.T) {
	tests := []struct {
		name     string
		position func(shoulder mgl64.Vec3) mgl64.Vec3
	}{
		{"NaN", func(mgl64.Vec3) mgl64.Vec3 { return mgl64.Vec3{math.NaN(), 0, 0} }},
		{"Inf", func(s mgl64.Vec3) mgl64.Vec3 { return s.Add(mgl64.Vec3{0, math.Inf(1), 0}) }},
		{"too far", func(s mgl64.Vec3) mgl64.Vec3 { return s.Add(mgl64.Vec3{0, 250, 0}) }},
		{"out of reach", func(s mgl64.Vec3) mgl64.Vec3 { return s.Add(mgl64.Vec3{0, 0, 150}) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree := defaultTree(t)
			arms := armSolver(t, tree)
			p := tree.Propagate()
			chain := arms.Chains[Right]

			before := make([]bone.Transform, tree.Len())
			for i := range before {
				before[i] = tree.Local(i)
			}

			hand := bone.NewTransform()
			hand.Position = tt.position(tree.World(chain.Upper).Position)
			_, err := arms.Solve(p, Right, hand, body(t, tree))
			if !errors.Is(err, ErrTrackingFault) {
				t.Fatalf("Solve() error = %v, want ErrTrackingFault", err)
			}

			for i := range before {
				if tree.Local(i) != before[i] {
					t.Errorf("bone %q changed on a tracking fault", tree.Name(i))
				}
			}
			if !p.Current() {
				t.Error("a tracking fault must not mutate the tree")
			}
			if arms.Twist(Right) != 0 {
				t.Errorf("Twist() = %v, want untouched 0", arms.Twist(Right))
			}
		})
	}
}

func TestArmSolver_TwistSmoothing(t *testing.T) {
	tree := defaultTree(t)
	arms := armSolver(t, tree)
	other := armSolver(t, tree)
	chain := arms.Chains[Right]

	// Rotate3DX(0.5): the hand back stays horizontal, the hand side dips by 0.5 rad,
	// the blended target is 0.8*0.5
	want := 0.0
	for frame := 0; frame < 3; frame++ {
		tree.RestoreDefaults()
		p := tree.Propagate()
		if _, err := arms.Solve(p, Right, reachableHand(tree, chain), body(t, tree)); err != nil {
			t.Fatalf("Solve() error = %v", err)
		}

		want += (0.4 - want) * TwistSmoothing
		if got := arms.Twist(Right); !almostEqual(got, want, 1e-9) {
			t.Errorf("frame %d: Twist() = %v, want %v", frame, got, want)
		}
	}

	if arms.Twist(Left) != 0 {
		t.Errorf("left Twist() = %v, the right arm must not drive it", arms.Twist(Left))
	}
	if other.Twist(Right) != 0 {
		t.Errorf("other solver Twist() = %v, solvers must not share twist memory", other.Twist(Right))
	}

	arms.Reset()
	if arms.Twist(Right) != 0 {
		t.Errorf("Twist() after Reset = %v, want 0", arms.Twist(Right))
	}
}

func TestArmSolver_Exosuit(t *testing.T) {
	tree := defaultTree(t)
	arms := armSolver(t, tree)
	arms.Exosuit = true
	p := tree.Propagate()
	chain := arms.Chains[Left]

	f2 := tree.Local(chain.Forearm2)
	hand := bone.NewTransform()
	hand.Position = tree.World(chain.Upper).Position.Add(mgl64.Vec3{-2, 10, -10})
	if _, err := arms.Solve(p, Left, hand, body(t, tree)); err != nil {
		t.Fatalf("Solve() error = %v", err)
	}

	if tree.Local(chain.Forearm2) != f2 {
		t.Error("the exosuit forearm must not be twisted")
	}
	tree.Propagate()
	if !tree.World(chain.Hand).IsFinite() {
		t.Errorf("hand = %v, want finite", tree.World(chain.Hand))
	}
}
