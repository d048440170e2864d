package rig

import (
	"errors"
	"strings"
	"testing"

	"github.com/akmonengine/marionette/bone"
)

func TestDefault(t *testing.T) {
	for name, r := range map[string]*Rig{"default": Default(), "exosuit": Exosuit()} {
		t.Run(name, func(t *testing.T) {
			tree, err := r.Tree()
			if err != nil {
				t.Fatalf("Tree() error = %v", err)
			}

			required := []string{
				"Root", "COM", "Pelvis", "SPINE1", "SPINE2", "Chest", "Neck", "Head",
				"LLeg_Thigh", "LLeg_Calf", "LLeg_Foot", "RLeg_Thigh", "RLeg_Calf", "RLeg_Foot",
				"LArm_Collarbone", "LArm_UpperArm", "LArm_ForeArm1", "LArm_ForeArm2", "LArm_ForeArm3", "LArm_Hand",
				"RArm_Collarbone", "RArm_UpperArm", "RArm_ForeArm1", "RArm_ForeArm2", "RArm_ForeArm3", "RArm_Hand",
				"Weapon", "WeaponLeft",
			}
			if _, err := tree.Lookup(required...); err != nil {
				t.Errorf("Lookup() error = %v", err)
			}

			if len(r.Fingers) != 30 {
				t.Errorf("len(Fingers) = %d, want 30", len(r.Fingers))
			}

			// Left is -X, right is +X, the head is above the feet
			lHand, _ := tree.GetWorldTransform("LArm_Hand")
			rHand, _ := tree.GetWorldTransform("RArm_Hand")
			if lHand.Position.X() >= rHand.Position.X() {
				t.Errorf("left hand x %v should be below right hand x %v", lHand.Position.X(), rHand.Position.X())
			}
			head, _ := tree.GetWorldTransform("Head")
			foot, _ := tree.GetWorldTransform("LLeg_Foot")
			if head.Position.Z() <= foot.Position.Z()+50 {
				t.Errorf("head z %v should be well above foot z %v", head.Position.Z(), foot.Position.Z())
			}
		})
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
		wantMsg string
	}{
		{
			name:    "unknown field",
			input:   "bones:\n  - name: Root\n    colour: red\n",
			wantMsg: "decode",
		},
		{
			name:    "short rotation",
			input:   "bones:\n  - name: Root\n    rotation: [1, 0, 0]\n",
			wantMsg: "9 values",
		},
		{
			name:    "finger without bone",
			input:   "bones:\n  - name: Root\nfingers:\n  - name: LArm_Finger11\n",
			wantErr: bone.ErrMissingBone,
		},
		{
			name:    "unnamed bone",
			input:   "bones:\n  - parent: Root\n",
			wantMsg: "without a name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.input))
			if err == nil {
				t.Fatal("Load() error = nil")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Load() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantMsg != "" && !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("Load() error = %q, want it to mention %q", err, tt.wantMsg)
			}
		})
	}
}

func TestLoad_ScaleAndIdentity(t *testing.T) {
	r, err := Load(strings.NewReader("bones:\n  - name: Root\n    position: [1, 2, 3]\n    scale: 0.5\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	local := r.Bones[0].Local
	if local.Scale != 0.5 || local.Position.Y() != 2 {
		t.Errorf("Local = %v, want scale 0.5 and y 2", local)
	}
	if local.Rotation != bone.NewTransform().Rotation {
		t.Errorf("Rotation = %v, want identity", local.Rotation)
	}
}
