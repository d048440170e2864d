// Package gait drives the procedural walk cycle: which foot steps, where it lands and how
// the spine sways, from the horizontal speed of the player alone.
package gait

import (
	"math"
	"math/rand/v2"

	"github.com/akmonengine/marionette/bone"
	"github.com/go-gl/mathgl/mgl64"
)

const (
	// MaxSpeed clamps the measured horizontal speed
	MaxSpeed = 350.0
	// SmoothingSpeed is the speed above which the new speed is averaged with the previous one
	SmoothingSpeed = 20.0
	// StartSpeed starts the walk from Idle
	StartSpeed = 35.0
	// StopSpeed stops the walk, and resumes it from Stopping
	StopSpeed = 20.0
	// RedirectDelta is the speed drop in one update that redirects the step in flight
	RedirectDelta = -20.0

	// MaxStepLength caps the distance a foot is thrown ahead
	MaxStepLength = 140.0
	// SwayDegrees is the spine roll at the middle of a step
	SwayDegrees = 3.0
)

type State int

const (
	Idle State = iota
	Stepping
	Stopping
	Redirecting
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Stepping:
		return "stepping"
	case Stopping:
		return "stopping"
	case Redirecting:
		return "redirecting"
	}
	return "unknown"
}

type Foot int

const (
	Left Foot = iota
	Right
)

func (f Foot) other() Foot {
	return 1 - f
}

func (f Foot) String() string {
	if f == Left {
		return "left"
	}
	return "right"
}

// FootTarget is one foot of the walk cycle
type FootTarget struct {
	Current mgl64.Vec3
	Start   mgl64.Vec3
	Target  mgl64.Vec3
}

// Input of one Update
type Input struct {
	// Speed is the smoothed horizontal speed, see Machine.Measure
	Speed float64
	// Direction is the horizontal unit direction of motion
	Direction mgl64.Vec3
	DeltaTime float64
	Airborne  bool
	// Rest is the world position of each foot under the body this frame
	Rest [2]mgl64.Vec3
	// Ground is the height the feet are planted at
	Ground float64
}

// Output of one Update
type Output struct {
	Feet [2]mgl64.Vec3
	// SpineRoll is the sway, in radians, to apply around the spine long axis
	SpineRoll float64
	State     State
}

// Machine is the gait state of one skeleton
type Machine struct {
	State State
	// Active is the foot in the air, meaningful unless Idle
	Active Foot
	Feet   [2]FootTarget

	PrevSpeed float64

	// Step in flight: direction, duration it was scheduled with and time spent
	stepDir  mgl64.Vec3
	stepTime float64
	elapsed  float64
	// delay holds back a direction correction for a few frames
	delay int

	rng    *rand.Rand
	Events Events
}

// NewMachine creates an idle machine. The seed drives the choice of the first stepping foot.
func NewMachine(seed uint64) *Machine {
	return &Machine{
		rng:    newRand(seed),
		Events: NewEvents(),
	}
}

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Measure turns two successive horizontal positions into a speed and a direction.
// The speed is clamped to [0, MaxSpeed] and averaged with the previous one above SmoothingSpeed.
func (m *Machine) Measure(current, last mgl64.Vec3, dt float64) (float64, mgl64.Vec3) {
	delta := bone.Horizontal(current.Sub(last))
	if dt <= 0 || !bone.IsFiniteVec(delta) {
		return m.PrevSpeed, bone.Normalize(m.stepDir)
	}

	speed := mgl64.Clamp(delta.Len()/dt, 0, MaxSpeed)
	if m.PrevSpeed > SmoothingSpeed {
		speed = (speed + m.PrevSpeed) / 2.0
	}

	return speed, bone.Normalize(delta)
}

// StepTime is the duration of one step at speed
func StepTime(speed float64) float64 {
	return mgl64.Clamp(math.Cos(speed/140.0), 0.28, 0.5)
}

// StepLength is how far ahead of its rest position a foot lands
func StepLength(speed, stepTime float64) float64 {
	return math.Min(speed*stepTime*1.5, MaxStepLength)
}

// StepHeight is the peak lift of a step covering distance
func StepHeight(distance float64) float64 {
	return math.Max(mgl64.Clamp(distance/150.0, 0, 1)*9.0, 1.0)
}

// Update runs one frame of the walk cycle and returns where both feet go.
// Buffered events are delivered to the listeners before it returns.
func (m *Machine) Update(in Input) Output {
	defer m.Events.flush()

	speed := in.Speed
	stepTime := StepTime(speed)

	if speed-m.PrevSpeed < RedirectDelta {
		m.transition(Redirecting)
	}
	m.PrevSpeed = speed

	if in.Airborne {
		m.transition(Idle)
	} else {
		m.next(in, speed, stepTime)
	}

	switch m.State {
	case Stepping, Stopping:
		return m.step(in, speed, stepTime)
	default:
		m.elapsed = 0
		for f := range m.Feet {
			rest := in.Rest[f]
			rest[2] = in.Ground
			m.Feet[f] = FootTarget{Current: rest, Start: rest, Target: rest}
		}
		return m.output(0)
	}
}

// next applies the transition rules of the current state
func (m *Machine) next(in Input, speed, stepTime float64) {
	if m.State == Redirecting {
		if m.idleFoot() {
			m.transition(Idle)
			return
		}

		m.stepDir = in.Direction
		active := m.Active
		m.Feet[active].Target = in.Rest[active].Add(in.Direction.Mul(speed * stepTime * 0.1))
		m.transition(Stepping)
	}

	switch m.State {
	case Idle:
		if speed >= StartSpeed {
			m.start(in, speed, stepTime)
		}
	case Stepping:
		if speed < StopSpeed {
			m.transition(Stopping)
		}
	case Stopping:
		if speed >= StopSpeed {
			m.transition(Stepping)
		}
	}
}

// idleFoot reports a Redirecting entered with no step in flight
func (m *Machine) idleFoot() bool {
	return m.stepTime == 0
}

// start picks a random foot and throws it ahead, half way through its first step
func (m *Machine) start(in Input, speed, stepTime float64) {
	if m.rng == nil {
		m.rng = newRand(0)
	}
	m.Active = Foot(m.rng.IntN(2))
	m.stepDir = in.Direction
	m.stepTime = stepTime
	m.elapsed = stepTime / 2.0
	m.delay = 2

	for f := range m.Feet {
		rest := in.Rest[f]
		rest[2] = in.Ground
		m.Feet[f] = FootTarget{Current: rest, Start: rest, Target: rest}
	}
	active := &m.Feet[m.Active]
	active.Target = in.Rest[m.Active].Add(m.stepDir.Mul(speed * stepTime * 1.5))

	m.transition(Stepping)
	m.Events.emit(StepStartEvent{Foot: m.Active, Start: active.Start, Target: active.Target})
}

// step moves the active foot along its arc. Stepping swaps feet at the end of the step,
// Stopping plants the foot and goes back to Idle.
func (m *Machine) step(in Input, speed, stepTime float64) Output {
	dir := in.Direction
	length := StepLength(speed, stepTime)
	correction := dir.Sub(m.stepDir).Mul(length)

	m.elapsed += in.DeltaTime
	interp := 1.0
	if m.stepTime > 0 {
		interp = mgl64.Clamp(m.elapsed/m.stepTime, 0, 1)
	}

	foot := &m.Feet[m.Active]
	if m.State == Stepping {
		if dir.Dot(m.stepDir) < 0.9 {
			if m.delay == 0 {
				foot.Target = foot.Target.Add(correction)
				m.stepDir = dir
				m.delay = 2
			} else {
				m.delay--
			}
		} else if m.delay < 2 {
			m.delay++
		}
	}

	foot.Target[2] = in.Ground
	foot.Start[2] = in.Ground
	foot.Current = foot.Start.Add(foot.Target.Sub(foot.Start).Mul(interp))
	foot.Current[2] += math.Sin(interp*math.Pi) * StepHeight(foot.Target.Sub(foot.Start).Len())

	sign := 1.0
	if m.Active == Right {
		sign = -1.0
	}
	out := m.output(mgl64.DegToRad(sign * math.Sin(interp*math.Pi) * SwayDegrees))

	if m.elapsed <= m.stepTime {
		return out
	}

	planted := m.Active
	m.Events.emit(FootPlantedEvent{Foot: planted, Position: foot.Target})

	if m.State == Stopping {
		m.elapsed = 0
		m.transition(Idle)
		out.State = m.State
		return out
	}

	m.elapsed = 0
	m.stepDir = dir
	m.stepTime = stepTime
	m.Active = planted.other()
	next := &m.Feet[m.Active]
	next.Start = next.Current
	next.Target = in.Rest[m.Active].Add(m.stepDir.Mul(length))
	m.Events.emit(StepStartEvent{Foot: m.Active, Start: next.Start, Target: next.Target})

	return out
}

func (m *Machine) output(roll float64) Output {
	return Output{
		Feet:      [2]mgl64.Vec3{m.Feet[Left].Current, m.Feet[Right].Current},
		SpineRoll: roll,
		State:     m.State,
	}
}

func (m *Machine) transition(to State) {
	if m.State == to {
		return
	}
	m.Events.emit(StateChangeEvent{From: m.State, To: to})
	m.State = to
	if to == Idle {
		m.stepTime = 0
	}
}
