package recordenricher

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/c360studio/semenrich/enrich"
	"github.com/c360studio/semenrich/field"
	"github.com/c360studio/semstreams/component"
	"github.com/c360studio/semstreams/message"
)

// RecordMessageType is the message type of an ingested record.
var RecordMessageType = message.Type{
	Domain:   "records",
	Category: "record",
	Version:  "v1",
}

// EnrichedMessageType is the message type of an enriched record.
var EnrichedMessageType = message.Type{
	Domain:   "records",
	Category: "enriched",
	Version:  "v1",
}

func init() {
	if err := component.RegisterPayload(&component.PayloadRegistration{
		Domain:      "records",
		Category:    "record",
		Version:     "v1",
		Description: "Record awaiting enrichment",
		Factory:     func() any { return &Record{} },
	}); err != nil {
		panic("failed to register Record: " + err.Error())
	}

	if err := component.RegisterPayload(&component.PayloadRegistration{
		Domain:      "records",
		Category:    "enriched",
		Version:     "v1",
		Description: "Record after the enrichment plan was applied",
		Factory:     func() any { return &EnrichedRecord{} },
	}); err != nil {
		panic("failed to register EnrichedRecord: " + err.Error())
	}
}

// Record is one ingested record.
type Record struct {
	ID     string     `json:"id"`
	Fields field.List `json:"fields"`
}

// Schema returns the message type for this payload.
func (r *Record) Schema() message.Type {
	return RecordMessageType
}

// Validate validates the record.
func (r *Record) Validate() error {
	if r.ID == "" {
		return errors.New("id is required")
	}
	return nil
}

// MarshalJSON marshals the record to JSON.
func (r *Record) MarshalJSON() ([]byte, error) {
	type Alias Record
	return json.Marshal((*Alias)(r))
}

// UnmarshalJSON unmarshals the record from JSON.
func (r *Record) UnmarshalJSON(data []byte) error {
	type Alias Record
	return json.Unmarshal(data, (*Alias)(r))
}

// EnrichedRecord is a record with the outcome of each plan step.
type EnrichedRecord struct {
	ID         string        `json:"id"`
	Fields     field.List    `json:"fields"`
	Report     enrich.Report `json:"report"`
	EnrichedAt time.Time     `json:"enriched_at"`
	Instance   string        `json:"instance,omitempty"`
}

// Schema returns the message type for this payload.
func (r *EnrichedRecord) Schema() message.Type {
	return EnrichedMessageType
}

// Validate validates the enriched record.
func (r *EnrichedRecord) Validate() error {
	if r.ID == "" {
		return errors.New("id is required")
	}
	return nil
}

// MarshalJSON marshals the enriched record to JSON.
func (r *EnrichedRecord) MarshalJSON() ([]byte, error) {
	type Alias EnrichedRecord
	return json.Marshal((*Alias)(r))
}

// UnmarshalJSON unmarshals the enriched record from JSON.
func (r *EnrichedRecord) UnmarshalJSON(data []byte) error {
	type Alias EnrichedRecord
	return json.Unmarshal(data, (*Alias)(r))
}

// DecodeRecord extracts a Record from a BaseMessage-wrapped payload.
func DecodeRecord(data []byte) (*Record, error) {
	var raw struct {
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal BaseMessage: %w", err)
	}
	if len(raw.Payload) == 0 {
		return nil, errors.New("empty payload in BaseMessage")
	}

	var rec Record
	if err := json.Unmarshal(raw.Payload, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid record: %w", err)
	}
	return &rec, nil
}

// EncodeRecord wraps rec in a BaseMessage ready for publishing.
func EncodeRecord(rec *Record, source string) ([]byte, error) {
	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid record: %w", err)
	}
	return json.Marshal(message.NewBaseMessage(RecordMessageType, rec, source))
}
