// Package singer implements the Singer message protocol: SCHEMA, RECORD and
// STATE messages, the discovery catalog, and stream bookmarks.
package singer

import (
	"time"
)

// MessageType identifies a Singer message.
type MessageType string

const (
	MessageTypeSchema MessageType = "SCHEMA"
	MessageTypeRecord MessageType = "RECORD"
	MessageTypeState  MessageType = "STATE"
)

// SchemaMessage announces the schema of a stream before its records.
type SchemaMessage struct {
	Type               MessageType            `json:"type"`
	Stream             string                 `json:"stream"`
	Schema             map[string]interface{} `json:"schema"`
	KeyProperties      []string               `json:"key_properties"`
	BookmarkProperties []string               `json:"bookmark_properties,omitempty"`
}

// RecordMessage carries one record.
type RecordMessage struct {
	Type          MessageType            `json:"type"`
	Stream        string                 `json:"stream"`
	Record        map[string]interface{} `json:"record"`
	TimeExtracted string                 `json:"time_extracted,omitempty"`
}

// StateMessage carries the bookmarks to resume from.
type StateMessage struct {
	Type  MessageType `json:"type"`
	Value *State      `json:"value"`
}

// NewSchemaMessage builds a SCHEMA message.
func NewSchemaMessage(stream string, schema map[string]interface{}, keys []string, bookmarks []string) *SchemaMessage {
	if keys == nil {
		keys = []string{}
	}
	return &SchemaMessage{
		Type:               MessageTypeSchema,
		Stream:             stream,
		Schema:             schema,
		KeyProperties:      keys,
		BookmarkProperties: bookmarks,
	}
}

// NewRecordMessage builds a RECORD message.
func NewRecordMessage(stream string, record map[string]interface{}, extracted time.Time) *RecordMessage {
	msg := &RecordMessage{
		Type:   MessageTypeRecord,
		Stream: stream,
		Record: record,
	}
	if !extracted.IsZero() {
		msg.TimeExtracted = extracted.UTC().Format(time.RFC3339Nano)
	}
	return msg
}

// NewStateMessage builds a STATE message.
func NewStateMessage(state *State) *StateMessage {
	return &StateMessage{Type: MessageTypeState, Value: state}
}
