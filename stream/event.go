package stream

import (
	"encoding/json"
	"fmt"
)

// Event discriminants pushed by the generation server.
const (
	EventStatus = "status"
	EventToken  = "token"
	EventDone   = "done"
	EventError  = "error"
)

// StopReason is the reason code carried by a terminal done event.
type StopReason string

const (
	// ReasonMaxTokens means the token budget was exhausted.
	ReasonMaxTokens StopReason = "max_tokens"
	// ReasonComplete means the constrained output parsed to a complete program.
	ReasonComplete StopReason = "complete"
	// ReasonNoValid means no token continuation was grammatically valid.
	ReasonNoValid StopReason = "no_valid"
	// ReasonTypeError means every remaining continuation was ill-typed.
	ReasonTypeError StopReason = "type_error"
	// ReasonModelError means the model process failed mid-generation.
	ReasonModelError StopReason = "model_error"
	// ReasonCancelled is assigned client-side when a session is cancelled.
	ReasonCancelled StopReason = "cancelled"
)

// Event is one parsed logical frame from a generation stream.
//
// FullText and IsComplete are pointers because their presence is
// meaningful: a token event carrying full_text replaces accumulated text
// wholesale, while one without it appends the Text delta. An unrecognised
// Type parses fine and is ignored by consumers, so new server-side event
// kinds do not break older clients.
type Event struct {
	Type       string     `json:"type"`
	Message    string     `json:"message,omitempty"`
	Text       string     `json:"text,omitempty"`
	FullText   *string    `json:"full_text,omitempty"`
	Step       int        `json:"step,omitempty"`
	Reason     StopReason `json:"reason,omitempty"`
	IsComplete *bool      `json:"is_complete,omitempty"`
}

// ParseEvent decodes one frame payload. A payload that is not a JSON
// object is an error; callers treat that as a malformed frame and drop it.
func ParseEvent(payload []byte) (*Event, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("empty frame payload")
	}
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("parse frame payload: %w", err)
	}
	return &ev, nil
}
