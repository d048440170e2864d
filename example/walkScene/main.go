package main

import (
	"fmt"
	"math"

	"github.com/akmonengine/marionette"
	"github.com/akmonengine/marionette/bone"
	"github.com/akmonengine/marionette/config"
	"github.com/akmonengine/marionette/gait"
	"github.com/akmonengine/marionette/handpose"
	"github.com/akmonengine/marionette/rig"
	"github.com/go-gl/mathgl/mgl64"
)

const dt float64 = 1.0 / 90.0

// player is a scripted head and hands, walking a circle while waving the right hand
type player struct {
	radius float64
	speed  float64
}

func (p player) pose(step int) marionette.TrackedPose {
	t := float64(step) * dt
	angle := t * p.speed / p.radius

	head := bone.NewTransform()
	head.Position = mgl64.Vec3{p.radius * math.Cos(angle), p.radius * math.Sin(angle), config.DefaultCameraHeight}
	// facing along the circle
	head.Rotation = mgl64.Rotate3DZ(angle)

	left := bone.NewTransform()
	left.Position = head.Position.Add(head.Rotation.Mul3x1(mgl64.Vec3{-15, 20, -40}))
	left.Rotation = head.Rotation

	wave := math.Sin(t*4) * 15
	right := bone.NewTransform()
	right.Position = head.Position.Add(head.Rotation.Mul3x1(mgl64.Vec3{20 + wave, 25, -10}))
	right.Rotation = head.Rotation.Mul3(mgl64.Rotate3DY(0.4))

	return marionette.TrackedPose{Head: head, LeftHand: left, RightHand: right}
}

// SetupScene creates a crowd of two avatars, one of them in an exosuit
func SetupScene() (*marionette.Crowd, []player) {
	crowd := &marionette.Crowd{Workers: 2}

	human, err := marionette.New(rig.Default(), nil, marionette.WithSeed(1))
	if err != nil {
		panic(err)
	}

	cfg := config.Default()
	cfg.Exosuit = true
	exosuit, err := marionette.New(rig.Exosuit(), &cfg, marionette.WithSeed(2))
	if err != nil {
		panic(err)
	}

	crowd.Add(human)
	crowd.Add(exosuit)

	return crowd, []player{{radius: 200, speed: 60}, {radius: 120, speed: 120}}
}

func main() {
	fmt.Println("Walk scene")
	fmt.Println("==========")

	crowd, players := SetupScene()

	for i, s := range crowd.Skeletons {
		s.Gait().Events.Subscribe(gait.FOOT_PLANTED, func(event gait.Event) {
			e := event.(gait.FootPlantedEvent)
			fmt.Printf("  avatar %d: %s foot planted at %.1f\n", i, e.Foot, e.Position)
		})
		s.Gait().Events.Subscribe(gait.STATE_CHANGE, func(event gait.Event) {
			e := event.(gait.StateChangeEvent)
			fmt.Printf("  avatar %d: %s -> %s\n", i, e.From, e.To)
		})
	}

	const steps = 360
	frames := make([]marionette.Frame, len(players))
	for step := range steps {
		for i, p := range players {
			frames[i] = marionette.Frame{
				Pose:      p.pose(step),
				DeltaTime: dt,
			}
			// squeeze the trigger half way through
			if step > steps/2 {
				frames[i].Controllers[1].Touched = handpose.ButtonTrigger
			}
		}

		results, err := crowd.Update(frames)
		if err != nil {
			panic(err)
		}

		if step%90 != 0 {
			continue
		}
		fmt.Printf("--- frame %d ---\n", step)
		for i, res := range results {
			s := crowd.Skeletons[i]
			hand, _ := s.Tree().GetWorldTransform("RArm_Hand")
			fmt.Printf("avatar %d: gait %s, forward %.2f, neck yaw %.1f°, torso %.1f\n",
				i, res.Gait, res.Forward, mgl64.RadToDeg(res.NeckYaw), res.TorsoLength)
			fmt.Printf("  right hand at %.1f (tracked %.1f)\n", hand.Position, frames[i].Pose.RightHand.Position)
			for side, err := range res.Arms {
				if err != nil {
					fmt.Printf("  arm %d: %v\n", side, err)
				}
			}
		}
	}

	fmt.Println("Done")
}
