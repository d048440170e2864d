// Package rig decodes skeleton hierarchy assets: the ordered bone list with default local
// transforms, and the open/closed finger reference poses.
package rig

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"

	"github.com/akmonengine/marionette/bone"
	"github.com/go-gl/mathgl/mgl64"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultRig []byte

//go:embed exosuit.yaml
var exosuitRig []byte

// Rig is a decoded hierarchy asset
type Rig struct {
	Bones   []bone.Definition
	Fingers []FingerPose
}

// FingerPose holds the two reference rotations a finger bone is blended between.
// Open is the bone default rotation.
type FingerPose struct {
	Name   string
	Open   mgl64.Mat3
	Closed mgl64.Mat3
}

type rawBone struct {
	Name     string     `yaml:"name"`
	Parent   string     `yaml:"parent"`
	Position [3]float64 `yaml:"position"`
	Rotation []float64  `yaml:"rotation"`
	Scale    *float64   `yaml:"scale"`
}

type rawFinger struct {
	Name   string    `yaml:"name"`
	Closed []float64 `yaml:"closed"`
}

type rawRig struct {
	Bones   []rawBone   `yaml:"bones"`
	Fingers []rawFinger `yaml:"fingers"`
}

// Load decodes a YAML hierarchy asset
func Load(r io.Reader) (*Rig, error) {
	var raw rawRig
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&raw); err != nil {
		return nil, fmt.Errorf("rig: decode: %w", err)
	}

	rig := &Rig{Bones: make([]bone.Definition, 0, len(raw.Bones))}
	defaults := make(map[string]bone.Transform, len(raw.Bones))

	for _, b := range raw.Bones {
		if b.Name == "" {
			return nil, fmt.Errorf("rig: bone without a name")
		}
		rot, err := rotation(b.Name, b.Rotation)
		if err != nil {
			return nil, err
		}

		local := bone.NewTransform()
		local.Position = mgl64.Vec3(b.Position)
		local.Rotation = rot
		if b.Scale != nil {
			local.Scale = *b.Scale
		}

		defaults[b.Name] = local
		rig.Bones = append(rig.Bones, bone.Definition{Name: b.Name, Parent: b.Parent, Local: local})
	}

	for _, f := range raw.Fingers {
		open, ok := defaults[f.Name]
		if !ok {
			return nil, fmt.Errorf("rig: finger pose: %w", &bone.MissingBoneError{Name: f.Name})
		}
		closed, err := rotation(f.Name, f.Closed)
		if err != nil {
			return nil, err
		}
		rig.Fingers = append(rig.Fingers, FingerPose{
			Name:   f.Name,
			Open:   open.Rotation,
			Closed: closed,
		})
	}

	return rig, nil
}

func rotation(name string, values []float64) (mgl64.Mat3, error) {
	if len(values) == 0 {
		return mgl64.Ident3(), nil
	}
	if len(values) != 9 {
		return mgl64.Mat3{}, fmt.Errorf("rig: bone %q: rotation needs 9 values, got %d", name, len(values))
	}

	return bone.RowMajor([9]float64(values)), nil
}

// Default is the standard player skeleton
func Default() *Rig {
	return mustLoad(defaultRig)
}

// Exosuit is the skeleton used while wearing a powered exoskeleton
func Exosuit() *Rig {
	return mustLoad(exosuitRig)
}

func mustLoad(data []byte) *Rig {
	rig, err := Load(bytes.NewReader(data))
	if err != nil {
		panic(err)
	}
	return rig
}

// Tree builds the bone tree of the rig
func (r *Rig) Tree() (*bone.Tree, error) {
	return bone.NewTree(r.Bones)
}
