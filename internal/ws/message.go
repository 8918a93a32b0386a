package ws

import (
	"math"
	"time"
)

// StatusMessage is the per-frame status broadcast
type StatusMessage struct {
	Type           string    `json:"type"` // "status"
	SessionID      string    `json:"session_id,omitempty"`
	Mode           string    `json:"mode"`
	Activity       string    `json:"activity,omitempty"`
	Confidence     float64   `json:"confidence"`
	SleepState     string    `json:"sleep_state"`
	EAR            *float64  `json:"ear,omitempty"` // nil when no face or not finite
	PersonDetected bool      `json:"person_detected"`
	FaceDetected   bool      `json:"face_detected"`
	FrameSeq       uint64    `json:"frame_seq"`
	Timestamp      time.Time `json:"timestamp"`
}

// EventMessage announces a label change or sleep transition
type EventMessage struct {
	Type       string    `json:"type"` // "event"
	Kind       string    `json:"kind"` // "activity" or "sleep"
	From       string    `json:"from"`
	To         string    `json:"to"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewStatusMessage creates a new status message
func NewStatusMessage(mode string, seq uint64, ts time.Time) *StatusMessage {
	return &StatusMessage{
		Type:      "status",
		Mode:      mode,
		FrameSeq:  seq,
		Timestamp: ts,
	}
}

// SetEAR records ear when it can be represented in JSON.
func (m *StatusMessage) SetEAR(ear float64) {
	if math.IsInf(ear, 0) || math.IsNaN(ear) {
		m.EAR = nil
		return
	}
	m.EAR = &ear
}

// NewEventMessage creates a new event message
func NewEventMessage(kind, from, to string, confidence float64, ts time.Time) *EventMessage {
	return &EventMessage{
		Type:       "event",
		Kind:       kind,
		From:       from,
		To:         to,
		Confidence: confidence,
		Timestamp:  ts,
	}
}
