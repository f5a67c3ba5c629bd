package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// MessageType identifies relay event and data-channel payload variants.
type MessageType string

const (
	TypeHeartbeat           MessageType = "heartbeat"
	TypeTranscript          MessageType = "transcript"
	TypeAgentSpeechStarted  MessageType = "agent_speech_started"
	TypeAgentSpeechFinished MessageType = "agent_speech_finished"
	TypeAgentReady          MessageType = "agent_ready"
	TypeStatusResponse      MessageType = "status_response"
	TypeInstructionsUpdated MessageType = "instructions_updated"
	TypeConversationHistory MessageType = "conversation_history"

	TypeGetStatus              MessageType = "get_status"
	TypeUpdateInstructions     MessageType = "update_instructions"
	TypeGetConversationHistory MessageType = "get_conversation_history"
)

// ErrUnknownControl marks data-channel messages whose type the pipeline
// does not recognize; callers ignore them silently.
var ErrUnknownControl = errors.New("unknown control message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// Transcript carries one transcribed utterance with speaker identity.
type Transcript struct {
	Type        MessageType `json:"type"`
	Text        string      `json:"text"`
	Participant string      `json:"participant"`
	Timestamp   float64     `json:"timestamp"`
}

type SpeechMarker struct {
	Type      MessageType `json:"type"`
	Timestamp float64     `json:"timestamp"`
}

type AgentReady struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

type Heartbeat struct {
	Type      MessageType `json:"type"`
	Timestamp float64     `json:"timestamp"`
}

type StatusResponse struct {
	Type        MessageType    `json:"type"`
	Status      string         `json:"status"`
	SessionData map[string]any `json:"session_data,omitempty"`
}

type InstructionsUpdated struct {
	Type         MessageType `json:"type"`
	Instructions string      `json:"instructions"`
}

type ConversationHistory struct {
	Type    MessageType   `json:"type"`
	History []HistoryTurn `json:"history"`
}

type HistoryTurn struct {
	Role      string  `json:"role"`
	Content   string  `json:"content"`
	Timestamp float64 `json:"timestamp"`
}

// UpdateInstructions is the inbound data-channel request to replace the
// assistant instructions mid-session.
type UpdateInstructions struct {
	Type         MessageType `json:"type"`
	Instructions string      `json:"instructions"`
}

func NewHeartbeat() Heartbeat {
	return Heartbeat{Type: TypeHeartbeat, Timestamp: Now()}
}

func NewTranscript(text, participant string) Transcript {
	return Transcript{Type: TypeTranscript, Text: text, Participant: participant, Timestamp: Now()}
}

func NewSpeechMarker(t MessageType) SpeechMarker {
	return SpeechMarker{Type: t, Timestamp: Now()}
}

// Now returns the current time as unix seconds, the timestamp convention
// used on the wire.
func Now() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}

// ParseControlMessage decodes an inbound data-channel JSON payload into its
// typed form. Unknown types return ErrUnknownControl.
func ParseControlMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeGetStatus:
		return Envelope{Type: TypeGetStatus}, nil
	case TypeGetConversationHistory:
		return Envelope{Type: TypeGetConversationHistory}, nil
	case TypeUpdateInstructions:
		var msg UpdateInstructions
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.Instructions == "" {
			return nil, errors.New("invalid update_instructions: missing instructions")
		}
		return msg, nil
	default:
		return nil, ErrUnknownControl
	}
}
