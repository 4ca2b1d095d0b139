// Package ctrl defines the control-plane protocol: the commands an external
// orchestrator publishes on the bus to steer running engine instances, their
// wire encoding, and the Dispatcher that routes decoded commands to the
// subsystem owning each operation.
//
// Decoding is strict: a tag this build does not know is rejected with an
// UnknownCommandError and never mapped onto an existing command.
package ctrl

import (
	"encoding/json"
	"fmt"
)

// CommandType is the discriminant of a control command.
type CommandType int

// Command types. The in-memory values are private to this build; only the
// wire tags in commandTags are stable.
const (
	// LoadModel asks the instance to (re)load the model artifacts its
	// enrichers read.
	LoadModel CommandType = iota + 1
)

// commandTags maps every command type to its wire tag. The table is
// append-only: a shipped tag is never removed or reassigned.
var commandTags = map[CommandType]string{
	LoadModel: "load_model",
}

var tagCommands = func() map[string]CommandType {
	m := make(map[string]CommandType, len(commandTags))
	for ct, tag := range commandTags {
		m[tag] = ct
	}
	return m
}()

// CommandTypes returns every known command type.
func CommandTypes() []CommandType {
	return []CommandType{LoadModel}
}

// ParseCommandType decodes a wire tag.
func ParseCommandType(tag string) (CommandType, error) {
	if ct, ok := tagCommands[tag]; ok {
		return ct, nil
	}
	return 0, &UnknownCommandError{Tag: tag}
}

// IsValid reports whether ct is a known command type.
func (ct CommandType) IsValid() bool {
	_, ok := commandTags[ct]
	return ok
}

// Tag returns the wire tag of ct, or "" for an unknown value.
func (ct CommandType) Tag() string {
	return commandTags[ct]
}

// String returns the wire tag, or a diagnostic form for unknown values.
func (ct CommandType) String() string {
	if tag, ok := commandTags[ct]; ok {
		return tag
	}
	return fmt.Sprintf("CommandType(%d)", int(ct))
}

// MarshalText implements encoding.TextMarshaler.
func (ct CommandType) MarshalText() ([]byte, error) {
	tag, ok := commandTags[ct]
	if !ok {
		return nil, fmt.Errorf("marshal command type: unknown value %d", int(ct))
	}
	return []byte(tag), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (ct *CommandType) UnmarshalText(text []byte) error {
	parsed, err := ParseCommandType(string(text))
	if err != nil {
		return err
	}
	*ct = parsed
	return nil
}

// MarshalJSON encodes ct as its wire tag string.
func (ct CommandType) MarshalJSON() ([]byte, error) {
	text, err := ct.MarshalText()
	if err != nil {
		return nil, err
	}
	return json.Marshal(string(text))
}

// UnmarshalJSON decodes a wire tag string.
func (ct *CommandType) UnmarshalJSON(data []byte) error {
	var tag string
	if err := json.Unmarshal(data, &tag); err != nil {
		return fmt.Errorf("command type must be a string: %w", err)
	}
	return ct.UnmarshalText([]byte(tag))
}
