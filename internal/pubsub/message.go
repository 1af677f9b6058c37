package pubsub

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MessageType discriminates the kinds of messages on the exchange.
type MessageType string

const (
	TypeEvent        MessageType = "event"
	TypeNotification MessageType = "notification"
	TypeCustom       MessageType = "custom"
)

// Event is the vocabulary of well-known event names.
type Event string

const (
	EventError                    Event = "ERROR"
	EventRecipeStart              Event = "RECIPE_START"
	EventRecipeEnd                Event = "RECIPE_END"
	EventRecipeFailed             Event = "RECIPE_FAILED"
	EventObserverNewTile          Event = "OBSERVER_NEW_TILE"
	EventObserverStageRunning     Event = "OBSERVER_STAGE_RUNNING"
	EventObserverStageDone        Event = "OBSERVER_STAGE_DONE"
	EventObserverStageFailed      Event = "OBSERVER_STAGE_FAILED"
	EventObserverAcquisitionStart Event = "OBSERVER_ACQUISITION_START"
	EventObserverAcquisitionDone  Event = "OBSERVER_ACQUISITION_DONE"
	EventDomeOpening              Event = "DOME_OPENING"
	EventDomeOpen                 Event = "DOME_OPEN"
	EventDomeClosing              Event = "DOME_CLOSING"
	EventDomeClosed               Event = "DOME_CLOSED"
	EventEmergencyShutdown        Event = "EMERGENCY_SHUTDOWN"
	EventActorStateChanged        Event = "ACTOR_STATE_CHANGED"
	EventUncategorised            Event = "UNCATEGORISED"
)

var knownEvents = map[Event]bool{
	EventError:                    true,
	EventRecipeStart:              true,
	EventRecipeEnd:                true,
	EventRecipeFailed:             true,
	EventObserverNewTile:          true,
	EventObserverStageRunning:     true,
	EventObserverStageDone:        true,
	EventObserverStageFailed:      true,
	EventObserverAcquisitionStart: true,
	EventObserverAcquisitionDone:  true,
	EventDomeOpening:              true,
	EventDomeOpen:                 true,
	EventDomeClosing:              true,
	EventDomeClosed:               true,
	EventEmergencyShutdown:        true,
	EventActorStateChanged:        true,
	EventUncategorised:            true,
}

// Envelope is the JSON payload published to the exchange.
type Envelope struct {
	ID          string         `json:"id"`
	MessageType MessageType    `json:"message_type"`
	EventName   string         `json:"event_name,omitempty"`
	Payload     map[string]any `json:"payload"`
	Timestamp   float64        `json:"timestamp"`
}

// NewEnvelope builds an envelope with a fresh ID and the current time.
func NewEnvelope(mt MessageType, eventName string, payload map[string]any) Envelope {
	if payload == nil {
		payload = map[string]any{}
	}
	return Envelope{
		ID:          uuid.New().String(),
		MessageType: mt,
		EventName:   eventName,
		Payload:     payload,
		Timestamp:   float64(time.Now().UnixMilli()) / 1000,
	}
}

// Message is a decoded incoming message. Event names are normalized to
// upper case; names outside the known vocabulary map to UNCATEGORISED
// while EventName preserves the original.
type Message struct {
	Envelope

	// Event is set for event-typed messages.
	Event Event
}

// DecodeMessage parses a raw broker payload.
func DecodeMessage(data []byte) (Message, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Message{}, fmt.Errorf("failed to decode message: %w", err)
	}

	if env.MessageType == "" {
		env.MessageType = TypeCustom
	}
	if env.Payload == nil {
		env.Payload = map[string]any{}
	}

	msg := Message{Envelope: env}

	if env.MessageType == TypeEvent {
		name := Event(strings.ToUpper(env.EventName))
		msg.EventName = string(name)
		if knownEvents[name] {
			msg.Event = name
		} else {
			msg.Event = EventUncategorised
		}
	}

	return msg, nil
}
