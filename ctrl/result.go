package ctrl

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/c360studio/semstreams/message"
)

// Result statuses.
const (
	StatusApplied  = "applied"
	StatusRejected = "rejected"
	StatusFailed   = "failed"
)

// ResultMessageType is the semstreams message type of a command result.
var ResultMessageType = message.Type{
	Domain:   "control",
	Category: "result",
	Version:  "v1",
}

// Result reports how one instance handled a command.
type Result struct {
	CommandID   string    `json:"command_id,omitempty"`
	Type        string    `json:"type,omitempty"`
	Instance    string    `json:"instance"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}

// Schema returns the message type for this payload.
func (r *Result) Schema() message.Type {
	return ResultMessageType
}

// Validate validates the result.
func (r *Result) Validate() error {
	if r.Instance == "" {
		return errors.New("instance is required")
	}
	switch r.Status {
	case StatusApplied, StatusRejected, StatusFailed:
		return nil
	}
	return errors.New("status must be applied, rejected or failed")
}

// MarshalJSON marshals the result to JSON.
func (r *Result) MarshalJSON() ([]byte, error) {
	type Alias Result
	return json.Marshal((*Alias)(r))
}

// UnmarshalJSON unmarshals the result from JSON.
func (r *Result) UnmarshalJSON(data []byte) error {
	type Alias Result
	return json.Unmarshal(data, (*Alias)(r))
}
