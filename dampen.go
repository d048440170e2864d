package marionette

import (
	"github.com/akmonengine/marionette/bone"
	"github.com/akmonengine/marionette/config"
	"github.com/akmonengine/marionette/ik"
	"github.com/go-gl/mathgl/mgl64"
)

// dampener smooths the tracked hands of one skeleton
type dampener struct {
	prev  [2]bone.Transform
	valid [2]bool
}

// apply slows a tracked hand down. Its rotation keeps part of the previous dampened rotation and
// its motion, the player own motion aside, is cut by the translation factor.
// A non-finite hand is returned untouched and restarts the dampening once tracked again.
func (d *dampener) apply(side ik.Side, hand bone.Transform, cfg config.Config, scope bool, moved mgl64.Vec3) bone.Transform {
	if !cfg.DampenHands || (scope && !cfg.DampenHandsInScope) || !hand.IsFinite() {
		d.valid[side] = false
		return hand
	}
	if !d.valid[side] {
		d.prev[side] = hand
		d.valid[side] = true
		return hand
	}

	rotation, translation := cfg.DampenHandsRotation, cfg.DampenHandsTranslation
	if scope {
		rotation, translation = cfg.DampenHandsRotationInScope, cfg.DampenHandsTranslationInScope
	}

	prev := d.prev[side]
	hand.Rotation = bone.Slerp(bone.Quat(prev.Rotation), bone.Quat(hand.Rotation), 1-rotation).Mat4().Mat3()

	delta := hand.Position.Sub(prev.Position).Sub(moved).Mul(translation)
	hand.Position = hand.Position.Sub(delta)

	d.prev[side] = hand
	return hand
}
