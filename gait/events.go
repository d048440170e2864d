package gait

import "github.com/go-gl/mathgl/mgl64"

const (
	STATE_CHANGE EventType = iota
	STEP_START
	FOOT_PLANTED
)

type EventType uint8

// Event interface - all events implement this
type Event interface {
	Type() EventType
}

// StateChangeEvent is sent once per transition, Redirecting included even when it resolves
// within the same update
type StateChangeEvent struct {
	From State
	To   State
}

func (e StateChangeEvent) Type() EventType { return STATE_CHANGE }

// StepStartEvent is sent when a foot leaves the ground
type StepStartEvent struct {
	Foot   Foot
	Start  mgl64.Vec3
	Target mgl64.Vec3
}

func (e StepStartEvent) Type() EventType { return STEP_START }

// FootPlantedEvent is sent when a step completes
type FootPlantedEvent struct {
	Foot     Foot
	Position mgl64.Vec3
}

func (e FootPlantedEvent) Type() EventType { return FOOT_PLANTED }

// EventListener - callback for events
type EventListener func(event Event)

// Events manager
type Events struct {
	// Listeners by event type
	listeners map[EventType][]EventListener

	// Event buffer to send at flush
	buffer []Event
}

func NewEvents() Events {
	return Events{
		listeners: make(map[EventType][]EventListener),
		buffer:    make([]Event, 0, 8),
	}
}

// Subscribe adds a listener for an event type
func (e *Events) Subscribe(eventType EventType, listener EventListener) {
	if e.listeners == nil {
		e.listeners = make(map[EventType][]EventListener)
	}
	e.listeners[eventType] = append(e.listeners[eventType], listener)
}

func (e *Events) emit(event Event) {
	e.buffer = append(e.buffer, event)
}

// flush sends all buffered events and clears the buffer
func (e *Events) flush() {
	for _, event := range e.buffer {
		if listeners, ok := e.listeners[event.Type()]; ok {
			for _, listener := range listeners {
				listener(event)
			}
		}
	}
	e.buffer = e.buffer[:0]
}
