package ctrl

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/c360studio/semstreams/message"
	"github.com/google/uuid"
)

// CommandMessageType is the semstreams message type of a control command.
var CommandMessageType = message.Type{
	Domain:   "control",
	Category: "command",
	Version:  "v1",
}

// Command is the envelope published on the control plane.
//
// Type is the discriminant. Target optionally scopes the command to one named
// subsystem resource (for LoadModel, a model name); empty means all.
type Command struct {
	ID       string      `json:"id"`
	Type     CommandType `json:"type"`
	Target   string      `json:"target,omitempty"`
	IssuedAt time.Time   `json:"issued_at"`
	IssuedBy string      `json:"issued_by,omitempty"`
}

// NewCommand creates a command with a fresh ID.
func NewCommand(ct CommandType, target string) *Command {
	return &Command{
		ID:       uuid.NewString(),
		Type:     ct,
		Target:   target,
		IssuedAt: time.Now().UTC(),
	}
}

// Schema returns the message type for this payload.
func (c *Command) Schema() message.Type {
	return CommandMessageType
}

// Validate validates the command.
func (c *Command) Validate() error {
	if c.ID == "" {
		return errors.New("id is required")
	}
	if !c.Type.IsValid() {
		return errors.New("type is required")
	}
	return nil
}

// MarshalJSON marshals the command to JSON.
func (c *Command) MarshalJSON() ([]byte, error) {
	type Alias Command
	return json.Marshal((*Alias)(c))
}

// UnmarshalJSON unmarshals the command from JSON.
func (c *Command) UnmarshalJSON(data []byte) error {
	type Alias Command
	return json.Unmarshal(data, (*Alias)(c))
}

// Encode wraps cmd in a semstreams BaseMessage ready for publishing.
func Encode(cmd *Command, source string) ([]byte, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("invalid command: %w", err)
	}
	data, err := json.Marshal(message.NewBaseMessage(CommandMessageType, cmd, source))
	if err != nil {
		return nil, fmt.Errorf("marshal command: %w", err)
	}
	return data, nil
}

// Decode extracts a Command from a BaseMessage-wrapped payload.
// Unknown command tags fail with an UnknownCommandError.
func Decode(data []byte) (*Command, error) {
	var raw struct {
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal BaseMessage: %w", err)
	}
	if len(raw.Payload) == 0 {
		return nil, errors.New("empty payload in BaseMessage")
	}

	var cmd Command
	if err := json.Unmarshal(raw.Payload, &cmd); err != nil {
		return nil, fmt.Errorf("unmarshal command: %w", err)
	}
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("invalid command: %w", err)
	}
	return &cmd, nil
}
