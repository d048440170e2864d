// Package config holds the body parameters and toggles the frame pipeline reads every frame.
package config

import (
	"errors"
	"fmt"
	"io"
	"math"

	"gopkg.in/yaml.v3"
)

// DefaultCameraHeight is the eye height the default rig was authored for
const DefaultCameraHeight = 120.4828

// DefaultArmLength is the arm length the default rig was authored for
const DefaultArmLength = 36.74

var ErrInvalid = errors.New("config: invalid value")

// Config is owned by the host. The skeleton only reads it, possibly a different value every frame.
type Config struct {
	// -- Body --
	PlayerHeight float64 `yaml:"player_height"`
	ArmLength    float64 `yaml:"arm_length"`

	// -- Offsets --
	CameraHeight         float64 `yaml:"camera_height"`
	ExosuitCameraHeight  float64 `yaml:"exosuit_camera_height"`
	RootOffset           float64 `yaml:"root_offset"`
	ExosuitRootOffset    float64 `yaml:"exosuit_root_offset"`
	PlayerOffsetForward  float64 `yaml:"player_offset_forward"`
	PlayerOffsetUp       float64 `yaml:"player_offset_up"`
	ExosuitOffsetForward float64 `yaml:"exosuit_offset_forward"`
	ExosuitOffsetUp      float64 `yaml:"exosuit_offset_up"`

	// -- Hand dampening --
	DampenHands                   bool    `yaml:"dampen_hands"`
	DampenHandsInScope            bool    `yaml:"dampen_hands_in_scope"`
	DampenHandsRotation           float64 `yaml:"dampen_hands_rotation"`
	DampenHandsTranslation        float64 `yaml:"dampen_hands_translation"`
	DampenHandsRotationInScope    float64 `yaml:"dampen_hands_rotation_in_scope"`
	DampenHandsTranslationInScope float64 `yaml:"dampen_hands_translation_in_scope"`

	// -- Modes --
	LeftHandedMode bool `yaml:"left_handed_mode"`
	Exosuit        bool `yaml:"exosuit"`
	HideHead       bool `yaml:"hide_head"`
	ArmsOnly       bool `yaml:"arms_only"`
	SelfieMode     bool `yaml:"selfie_mode"`

	SelfieOutFrontDistance float64 `yaml:"selfie_out_front_distance"`
}

// Default returns the values the default rig was tuned with
func Default() Config {
	return Config{
		PlayerHeight: DefaultCameraHeight,
		ArmLength:    DefaultArmLength,

		CameraHeight:         0.0,
		ExosuitCameraHeight:  0.0,
		RootOffset:           0.0,
		ExosuitRootOffset:    0.0,
		PlayerOffsetForward:  -4.0,
		PlayerOffsetUp:       -2.0,
		ExosuitOffsetForward: 0.0,
		ExosuitOffsetUp:      0.0,

		DampenHands:                   true,
		DampenHandsInScope:            false,
		DampenHandsRotation:           0.7,
		DampenHandsTranslation:        0.7,
		DampenHandsRotationInScope:    0.2,
		DampenHandsTranslationInScope: 0.2,

		SelfieOutFrontDistance: 120.0,
	}
}

// Load decodes YAML over the defaults, then validates the result
func Load(r io.Reader) (Config, error) {
	cfg := Default()

	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the values the solvers divide by or interpolate with
func (c Config) Validate() error {
	lengths := []struct {
		name  string
		value float64
	}{
		{"player_height", c.PlayerHeight},
		{"arm_length", c.ArmLength},
	}
	for _, l := range lengths {
		if !(l.value > 0) || math.IsInf(l.value, 1) {
			return fmt.Errorf("%w: %s must be positive and finite, got %v", ErrInvalid, l.name, l.value)
		}
	}

	offsets := []struct {
		name  string
		value float64
	}{
		{"camera_height", c.CameraHeight},
		{"exosuit_camera_height", c.ExosuitCameraHeight},
		{"root_offset", c.RootOffset},
		{"exosuit_root_offset", c.ExosuitRootOffset},
		{"player_offset_forward", c.PlayerOffsetForward},
		{"player_offset_up", c.PlayerOffsetUp},
		{"exosuit_offset_forward", c.ExosuitOffsetForward},
		{"exosuit_offset_up", c.ExosuitOffsetUp},
		{"selfie_out_front_distance", c.SelfieOutFrontDistance},
	}
	for _, o := range offsets {
		if math.IsNaN(o.value) || math.IsInf(o.value, 0) {
			return fmt.Errorf("%w: %s must be finite, got %v", ErrInvalid, o.name, o.value)
		}
	}

	factors := []struct {
		name  string
		value float64
	}{
		{"dampen_hands_rotation", c.DampenHandsRotation},
		{"dampen_hands_translation", c.DampenHandsTranslation},
		{"dampen_hands_rotation_in_scope", c.DampenHandsRotationInScope},
		{"dampen_hands_translation_in_scope", c.DampenHandsTranslationInScope},
	}
	for _, f := range factors {
		if !(f.value >= 0 && f.value <= 1) {
			return fmt.Errorf("%w: %s must be within [0,1], got %v", ErrInvalid, f.name, f.value)
		}
	}

	return nil
}

// Scale is the uniform scale applied to the rig so its eye height matches the player
func (c Config) Scale() float64 {
	return c.PlayerHeight / DefaultCameraHeight
}

// ArmScale is the factor applied to rest arm lengths
func (c Config) ArmScale() float64 {
	return c.ArmLength / DefaultArmLength
}

// OffsetForward returns the forward body offset for the current body mode
func (c Config) OffsetForward() float64 {
	if c.Exosuit {
		return c.ExosuitOffsetForward
	}
	return c.PlayerOffsetForward
}

func (c Config) OffsetUp() float64 {
	if c.Exosuit {
		return c.ExosuitOffsetUp
	}
	return c.PlayerOffsetUp
}

func (c Config) BaseOffset() float64 {
	if c.Exosuit {
		return c.ExosuitCameraHeight + c.ExosuitRootOffset
	}
	return c.CameraHeight + c.RootOffset
}
