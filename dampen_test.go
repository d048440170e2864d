package marionette

import (
	"math"
	"testing"

	"github.com/akmonengine/marionette/bone"
	"github.com/akmonengine/marionette/config"
	"github.com/akmonengine/marionette/ik"
	"github.com/go-gl/mathgl/mgl64"
)

func handAt(x float64, angle float64) bone.Transform {
	t := bone.NewTransform()
	t.Position = mgl64.Vec3{x, 0, 0}
	t.Rotation = mgl64.Rotate3DZ(angle)
	return t
}

func TestDampener_Apply(t *testing.T) {
	inScope := config.Default()
	inScope.DampenHandsInScope = true

	tests := []struct {
		name     string
		cfg      func() config.Config
		scope    bool
		moved    mgl64.Vec3
		position mgl64.Vec3
		rotation mgl64.Mat3
	}{
		{
			name:     "disabled",
			cfg:      func() config.Config { c := config.Default(); c.DampenHands = false; return c },
			position: mgl64.Vec3{10, 0, 0},
			rotation: mgl64.Rotate3DZ(1),
		},
		{
			name:     "dampened",
			cfg:      config.Default,
			position: mgl64.Vec3{3, 0, 0},
			rotation: mgl64.Rotate3DZ(0.3),
		},
		{
			name:     "player motion is not dampened",
			cfg:      config.Default,
			moved:    mgl64.Vec3{10, 0, 0},
			position: mgl64.Vec3{10, 0, 0},
			rotation: mgl64.Rotate3DZ(0.3),
		},
		{
			name:     "scope without scope dampening",
			cfg:      config.Default,
			scope:    true,
			position: mgl64.Vec3{10, 0, 0},
			rotation: mgl64.Rotate3DZ(1),
		},
		{
			name:     "scope factors",
			cfg:      func() config.Config { return inScope },
			scope:    true,
			position: mgl64.Vec3{8, 0, 0},
			rotation: mgl64.Rotate3DZ(0.8),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d dampener
			cfg := tt.cfg()

			first := d.apply(ik.Right, handAt(0, 0), cfg, tt.scope, mgl64.Vec3{})
			if first != handAt(0, 0) {
				t.Fatalf("first frame = %v, want it untouched", first)
			}

			got := d.apply(ik.Right, handAt(10, 1), cfg, tt.scope, tt.moved)
			if !vec3AlmostEqual(got.Position, tt.position, 1e-9) {
				t.Errorf("position = %v, want %v", got.Position, tt.position)
			}
			if !got.Rotation.ApproxEqualThreshold(tt.rotation, 1e-9) {
				t.Errorf("rotation = %v, want %v", got.Rotation, tt.rotation)
			}
		})
	}
}

func TestDampener_SidesAreIndependent(t *testing.T) {
	var d dampener
	cfg := config.Default()

	d.apply(ik.Left, handAt(0, 0), cfg, false, mgl64.Vec3{})
	if got := d.apply(ik.Right, handAt(10, 0), cfg, false, mgl64.Vec3{}); got.Position.X() != 10 {
		t.Errorf("first right frame = %v, want it untouched", got.Position)
	}
}

func TestDampener_RestartsAfterLoss(t *testing.T) {
	var d dampener
	cfg := config.Default()

	d.apply(ik.Left, handAt(0, 0), cfg, false, mgl64.Vec3{})

	lost := handAt(math.NaN(), 0)
	if got := d.apply(ik.Left, lost, cfg, false, mgl64.Vec3{}); got.IsFinite() {
		t.Errorf("a lost hand should pass through, got %v", got)
	}

	// the first frame after the loss is not pulled back toward the old pose
	if got := d.apply(ik.Left, handAt(50, 0), cfg, false, mgl64.Vec3{}); got.Position.X() != 50 {
		t.Errorf("first frame after the loss = %v, want it untouched", got.Position)
	}
}

func TestDampener_Converges(t *testing.T) {
	var d dampener
	cfg := config.Default()

	d.apply(ik.Right, handAt(0, 0), cfg, false, mgl64.Vec3{})
	var got bone.Transform
	for range 200 {
		got = d.apply(ik.Right, handAt(10, 1), cfg, false, mgl64.Vec3{})
	}

	if !vec3AlmostEqual(got.Position, mgl64.Vec3{10, 0, 0}, 1e-6) {
		t.Errorf("position = %v, want the held hand", got.Position)
	}
	if !got.Rotation.ApproxEqualThreshold(mgl64.Rotate3DZ(1), 1e-6) {
		t.Errorf("rotation = %v, want the held hand", got.Rotation)
	}
}
