// Package marionette rebuilds a whole body pose every frame from a tracked head and two tracked
// hands: the torso hangs under the head, the feet walk procedurally, legs and arms are solved with
// two-bone IK and the fingers curl from the controller input.
package marionette

import (
	"errors"
	"log"

	"github.com/akmonengine/marionette/bone"
	"github.com/akmonengine/marionette/config"
	"github.com/akmonengine/marionette/gait"
	"github.com/akmonengine/marionette/handpose"
	"github.com/akmonengine/marionette/ik"
	"github.com/akmonengine/marionette/rig"
	"github.com/go-gl/mathgl/mgl64"
)

const logPrefix = "[marionette] "

var ErrNilRig = errors.New("marionette: nil rig")

// TrackedPose holds the world transforms of the three tracked points.
// Any of them may hold NaN or Inf while tracking is lost.
type TrackedPose struct {
	Head      bone.Transform
	LeftHand  bone.Transform
	RightHand bone.Transform
}

func (t TrackedPose) hand(side ik.Side) bone.Transform {
	if side == ik.Left {
		return t.LeftHand
	}
	return t.RightHand
}

// Frame is everything the host hands over for one update
type Frame struct {
	Pose TrackedPose
	// Controllers is indexed by hand: 0 left, 1 right
	Controllers [2]handpose.Controller
	DeltaTime   float64
	// Ground is the floor height under the player
	Ground   float64
	Airborne bool

	WeaponVisible bool
	UIMode        bool
	// ScopeMenu hides both hands
	ScopeMenu bool
	// Reference is the authored finger pose copied by the weapon hand, may be nil
	Reference handpose.ReferencePose
}

// Result carries the values derived during an update, for hosts placing cameras or equipment.
// The pose itself is read from the tree.
type Result struct {
	Forward     mgl64.Vec3
	Sideways    mgl64.Vec3
	TorsoLength float64
	NeckYaw     float64
	NeckPitch   float64
	Gait        gait.State
	// OffhandFingerTip is the world position of the tip of the index finger not holding the weapon
	OffhandFingerTip mgl64.Vec3

	// Arms and Legs hold why a limb was left at rest this frame, nil when it was solved
	Arms [2]error
	Legs [2]error

	Propagation bone.Propagation
}

type bones struct {
	root, com, spine, chest, neck, head int
	weapon, weaponLeft                  int
	collars, hands, fingerTips          [2]int
}

// Skeleton is the frame orchestrator of one avatar. It owns its tree exclusively and is not safe
// for concurrent use; distinct skeletons share nothing and may be updated in parallel.
type Skeleton struct {
	// Config is read once at the start of every Update, the host may change it between frames.
	// An invalid config is ignored and the last valid one is used instead.
	Config *config.Config
	valid  config.Config

	tree   *bone.Tree
	logger *log.Logger
	seed   uint64

	bones  bones
	legs   *ik.LegSolver
	arms   *ik.ArmSolver
	armOK  [2]bool
	hands  *handpose.Blender
	gait   *gait.Machine
	dampen dampener

	head          bone.Transform
	headOK        bool
	current, last mgl64.Vec3
	started       bool

	forward, sideways   mgl64.Vec3
	neckYaw, neckPitch  float64
	torsoLen            float64
	leftHanded          bool
	faulted, legFaulted [2]bool
	headFaulted         bool
	configFaulted       bool

	inArm, inHand []bool
}

type Option func(*Skeleton)

// WithLogger sends the skeleton warnings to logger, under a "[marionette] " prefix.
// A nil logger means log.Default().
func WithLogger(logger *log.Logger) Option {
	return func(s *Skeleton) {
		s.logger = newLogger(logger)
	}
}

// WithSeed seeds the choice of the first stepping foot
func WithSeed(seed uint64) Option {
	return func(s *Skeleton) {
		s.seed = seed
	}
}

func newLogger(logger *log.Logger) *log.Logger {
	if logger == nil {
		logger = log.Default()
	}
	return log.New(logger.Writer(), logPrefix, logger.Flags())
}

// New builds a skeleton from a rig. A nil config means config.Default().
// Bones missing from the rig are logged once; what depends on them is skipped every frame.
func New(r *rig.Rig, cfg *config.Config, opts ...Option) (*Skeleton, error) {
	if r == nil {
		return nil, ErrNilRig
	}
	if cfg == nil {
		c := config.Default()
		cfg = &c
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tree, err := r.Tree()
	if err != nil {
		return nil, err
	}

	s := &Skeleton{
		Config:   cfg,
		valid:    *cfg,
		tree:     tree,
		forward:  bone.AxisY,
		sideways: bone.AxisX,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = newLogger(nil)
	}

	s.gait = gait.NewMachine(s.seed)
	s.resolve(r, cfg.ArmLength)

	return s, nil
}

// resolve turns every bone name used per frame into an index, once
func (s *Skeleton) resolve(r *rig.Rig, armLength float64) {
	s.bones = bones{
		root:       s.optional("Root"),
		com:        s.optional("COM"),
		spine:      s.optional("SPINE1"),
		chest:      s.optional("Chest"),
		neck:       s.optional("Neck"),
		head:       s.optional("Head"),
		weapon:     s.optional("Weapon"),
		weaponLeft: s.optional("WeaponLeft"),
		collars:    [2]int{-1, -1},
		hands:      [2]int{-1, -1},
		fingerTips: [2]int{s.optional("LArm_Finger23"), s.optional("RArm_Finger23")},
	}

	left, errLeft := ik.NewLegChain(s.tree, "LLeg_Thigh", "LLeg_Calf", "LLeg_Foot")
	right, errRight := ik.NewLegChain(s.tree, "RLeg_Thigh", "RLeg_Calf", "RLeg_Foot")
	if err := errors.Join(errLeft, errRight); err != nil {
		s.logger.Printf("WARN %v: legs and walk disabled", err)
	} else {
		s.legs = ik.NewLegSolver(left, right)
	}

	var chains [2]ik.ArmChain
	for side, prefix := range [2]string{"LArm_", "RArm_"} {
		chain, err := ik.NewArmChain(s.tree, prefix)
		if err != nil {
			s.logger.Printf("WARN %v: %s arm disabled", err, ik.Side(side))
			continue
		}
		chains[side] = chain
		s.armOK[side] = true
		s.bones.collars[side] = chain.Collarbone
		s.bones.hands[side] = chain.Hand
	}
	s.arms = ik.NewArmSolver(chains[ik.Left], chains[ik.Right], armLength)

	hands, err := handpose.NewBlender(s.tree, r.Fingers)
	if err != nil {
		s.logger.Printf("WARN %v: finger poses disabled", err)
	} else {
		s.hands = hands
	}

	s.inArm = make([]bool, s.tree.Len())
	s.inHand = make([]bool, s.tree.Len())
}

func (s *Skeleton) optional(name string) int {
	i, err := s.tree.Index(name)
	if err != nil {
		s.logger.Printf("WARN %v", err)
	}
	return i
}

func (s *Skeleton) Tree() *bone.Tree {
	return s.tree
}

// Gait gives access to the walk cycle, to subscribe to its events
func (s *Skeleton) Gait() *gait.Machine {
	return s.gait
}

// Hands gives access to the finger blender, for manual finger control.
// It is nil when the rig has no usable finger bones.
func (s *Skeleton) Hands() *handpose.Blender {
	return s.hands
}

func (s *Skeleton) Forward() mgl64.Vec3 {
	return s.forward
}

func (s *Skeleton) Sideways() mgl64.Vec3 {
	return s.sideways
}

func (s *Skeleton) TorsoLength() float64 {
	return s.torsoLen
}

func (s *Skeleton) NeckYaw() float64 {
	return s.neckYaw
}

func (s *Skeleton) NeckPitch() float64 {
	return s.neckPitch
}

// Snapshot deep copies every bone, to hand the pose over to another goroutine
func (s *Skeleton) Snapshot() ([]bone.Node, error) {
	return s.tree.Snapshot()
}

// Update runs one frame: default pose, head, body under the head, posture, walk, legs, arms,
// fingers. Every stage reads world transforms propagated after the stage before it.
// Limb failures never abort the frame; they are reported in the Result.
func (s *Skeleton) Update(frame Frame) Result {
	cfg := s.readConfig()
	tree := s.tree
	var res Result

	head := s.trackHead(frame, cfg)
	if !s.started {
		s.current = head.Position
		s.started = true
	}
	s.last, s.current = s.current, head.Position

	tree.RestoreDefaults()
	tree.Propagate()

	if !cfg.HideHead {
		s.setupHead()
	}

	s.setBodyUnderHMD(cfg, frame, head)
	p := tree.Propagate()

	if s.legs != nil {
		s.legs.CaptureKnees(tree)
	}
	s.setBodyPosture(cfg, p, head, frame.Ground)
	p = tree.Propagate()

	if s.legs != nil {
		if err := s.legs.PinKnees(p); err != nil {
			s.logger.Printf("WARN knee pinning: %v", err)
		}

		feet := s.walk(cfg, frame)
		for _, side := range []ik.Side{ik.Right, ik.Left} {
			_, res.Legs[side] = s.legs.Solve(p, side, feet[side])
			s.reportLeg(side, res.Legs[side])
		}
	}
	p = tree.Propagate()

	s.swapWeapons(cfg.LeftHandedMode)
	res.Arms = s.setArms(cfg, frame, p)
	p = tree.Propagate()

	if cfg.SelfieMode {
		s.selfie(cfg)
		p = tree.Propagate()
	}

	if s.hands != nil {
		s.hands.Update(tree, handpose.Input{
			Controllers:   frame.Controllers,
			DeltaTime:     frame.DeltaTime,
			WeaponVisible: frame.WeaponVisible,
			UIMode:        frame.UIMode,
			LeftHanded:    cfg.LeftHandedMode,
			Reference:     frame.Reference,
		})
	}
	p = tree.Propagate()
	s.setVisibility(cfg, frame)

	res.Forward = s.forward
	res.Sideways = s.sideways
	res.TorsoLength = s.torsoLen
	res.NeckYaw = s.neckYaw
	res.NeckPitch = s.neckPitch
	res.Gait = s.gait.State
	res.OffhandFingerTip = s.offhandFingerTip(cfg)
	res.Propagation = p

	return res
}

// readConfig copies the host config, or returns the last valid one when it does not validate
func (s *Skeleton) readConfig() config.Config {
	cfg := *s.Config
	if err := cfg.Validate(); err != nil {
		if !s.configFaulted {
			s.logger.Printf("WARN %v: keeping the last valid config", err)
		}
		s.configFaulted = true
		return s.valid
	}

	if s.configFaulted {
		s.logger.Printf("config valid again")
	}
	s.configFaulted = false
	s.valid = cfg
	return cfg
}

// trackHead returns the tracked head, or the last finite one while head tracking is lost
func (s *Skeleton) trackHead(frame Frame, cfg config.Config) bone.Transform {
	if frame.Pose.Head.IsFinite() {
		if s.headFaulted {
			s.logger.Printf("head tracking recovered")
		}
		s.head, s.headOK, s.headFaulted = frame.Pose.Head, true, false
		return s.head
	}

	if !s.headFaulted {
		s.logger.Printf("WARN head transform is not finite, holding the last one")
	}
	s.headFaulted = true
	if !s.headOK {
		s.head = bone.NewTransform()
		s.head.Position = mgl64.Vec3{0, 0, frame.Ground + cfg.PlayerHeight}
	}
	return s.head
}

// walk squeezes the rest feet together and lets the gait machine move them
func (s *Skeleton) walk(cfg config.Config, frame Frame) [2]mgl64.Vec3 {
	tree := s.tree
	left := s.legs.FootRest(tree, ik.Left)
	right := s.legs.FootRest(tree, ik.Right)

	squeeze := 0.3
	if cfg.Exosuit {
		squeeze = -0.15
	}
	leftToRight := right.Sub(left).Mul(squeeze)
	rest := [2]mgl64.Vec3{left.Add(leftToRight), right.Sub(leftToRight)}

	if cfg.ArmsOnly {
		return rest
	}

	speed, dir := s.gait.Measure(s.current, s.last, frame.DeltaTime)
	out := s.gait.Update(gait.Input{
		Speed:     speed,
		Direction: dir,
		DeltaTime: frame.DeltaTime,
		Airborne:  frame.Airborne,
		Rest:      rest,
		// the feet are planted at the height of their rest ankles
		Ground: (rest[ik.Left].Z() + rest[ik.Right].Z()) / 2.0,
	})

	if s.bones.spine >= 0 && out.SpineRoll != 0 {
		local := tree.Local(s.bones.spine)
		local.Rotation = local.Rotation.Mul3(bone.TwistX(out.SpineRoll))
		tree.SetLocal(s.bones.spine, local)
	}

	return out.Feet
}

// setArms solves the right arm, then the left one, from the dampened tracked hands
func (s *Skeleton) setArms(cfg config.Config, frame Frame, p bone.Propagation) [2]error {
	var errs [2]error

	s.arms.ArmLength = cfg.ArmLength
	s.arms.Exosuit = cfg.Exosuit
	body := ik.Body{
		Forward:  s.forward,
		Sideways: s.sideways,
		ChestZ:   s.chestZ(),
	}
	moved := s.current.Sub(s.last)

	for _, side := range []ik.Side{ik.Right, ik.Left} {
		if !s.armOK[side] {
			continue
		}
		hand := s.dampen.apply(side, frame.Pose.hand(side), cfg, frame.ScopeMenu, moved)
		_, errs[side] = s.arms.Solve(p, side, hand, body)
		s.reportArm(side, errs[side])
	}

	return errs
}

func (s *Skeleton) chestZ() float64 {
	if s.bones.chest >= 0 {
		return s.tree.World(s.bones.chest).Position.Z()
	}
	return s.head.Position.Z() - 30.0
}

// reportArm logs a tracking fault once per episode
func (s *Skeleton) reportArm(side ik.Side, err error) {
	if err == nil {
		if s.faulted[side] {
			s.logger.Printf("%s arm tracking recovered", side)
		}
		s.faulted[side] = false
		return
	}

	if !s.faulted[side] {
		s.logger.Printf("WARN %v: %s arm left at rest", err, side)
	}
	s.faulted[side] = true
}

func (s *Skeleton) reportLeg(side ik.Side, err error) {
	if err == nil {
		s.legFaulted[side] = false
		return
	}

	if !s.legFaulted[side] {
		s.logger.Printf("WARN %v: %s leg left at rest", err, side)
	}
	s.legFaulted[side] = true
}

// swapWeapons moves the weapon bones to the other hands when the handedness changes
func (s *Skeleton) swapWeapons(leftHanded bool) {
	if leftHanded == s.leftHanded {
		return
	}
	s.leftHanded = leftHanded

	b := s.bones
	if b.weapon < 0 || b.weaponLeft < 0 || b.hands[ik.Left] < 0 || b.hands[ik.Right] < 0 {
		s.logger.Printf("WARN cannot switch the weapon bones for left handed mode")
		return
	}

	primary, secondary := b.hands[ik.Right], b.hands[ik.Left]
	if leftHanded {
		primary, secondary = secondary, primary
	}
	err := errors.Join(
		s.tree.Reparent(b.weapon, primary),
		s.tree.Reparent(b.weaponLeft, secondary),
	)
	if err != nil {
		s.logger.Printf("WARN left handed weapon switch: %v", err)
		return
	}
	s.logger.Printf("left handed mode %v: weapon bones switched", leftHanded)
}

// selfie turns the body around and pushes it in front of the player
func (s *Skeleton) selfie(cfg config.Config) {
	if s.bones.root < 0 {
		return
	}

	local := s.tree.Local(s.bones.root)
	local.Rotation = facing(s.forward.Mul(-1))
	local.Position = local.Position.Add(s.forward.Mul(cfg.SelfieOutFrontDistance))
	s.tree.SetLocal(s.bones.root, local)
}

// setVisibility is the single place bone visibility is decided
func (s *Skeleton) setVisibility(cfg config.Config, frame Frame) {
	tree := s.tree
	b := s.bones

	for i := range tree.Len() {
		parent := tree.Parent(i)
		s.inArm[i] = i == b.collars[ik.Left] || i == b.collars[ik.Right] || (parent >= 0 && s.inArm[parent])
		s.inHand[i] = i == b.hands[ik.Left] || i == b.hands[ik.Right] || (parent >= 0 && s.inHand[parent])

		visible := true
		switch {
		case cfg.ArmsOnly && !s.inArm[i]:
			visible = false
		case frame.ScopeMenu && s.inHand[i]:
			visible = false
		case cfg.HideHead && i == b.head:
			visible = false
		}
		tree.SetVisible(i, visible)
	}
}

func (s *Skeleton) offhandFingerTip(cfg config.Config) mgl64.Vec3 {
	side := ik.Left
	if cfg.LeftHandedMode {
		side = ik.Right
	}
	i := s.bones.fingerTips[side]
	if i < 0 {
		return mgl64.Vec3{}
	}

	reach := 1.8
	if cfg.Exosuit {
		reach = 3.0
	}
	w := s.tree.World(i)
	return w.Position.Add(w.Rotation.Col(0).Mul(reach))
}
