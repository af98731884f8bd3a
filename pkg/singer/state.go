package singer

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/Matatika/tap-shopify/pkg/errors"
	"github.com/Matatika/tap-shopify/pkg/json"
)

// Context identifies a partition of a child stream, e.g. {"order_id": 1}.
type Context map[string]interface{}

// Key returns a canonical string for the context. Numbers compare by
// their text so that json.Number and float64 forms of an id match.
func (c Context) Key() string {
	if len(c) == 0 {
		return ""
	}
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(formatScalar(c[k]))
	}
	return b.String()
}

// State holds the bookmarks of every stream.
type State struct {
	Bookmarks map[string]*StreamState `json:"bookmarks"`
}

// StreamState is the bookmark of one stream. Streams without context keep
// their value at the stream level; child streams keep one per partition.
type StreamState struct {
	ReplicationKey      string            `json:"replication_key,omitempty"`
	ReplicationKeyValue interface{}       `json:"replication_key_value,omitempty"`
	Partitions          []*PartitionState `json:"partitions,omitempty"`
}

// PartitionState is the bookmark of one context of a child stream.
type PartitionState struct {
	Context             Context     `json:"context"`
	ReplicationKey      string      `json:"replication_key,omitempty"`
	ReplicationKeyValue interface{} `json:"replication_key_value,omitempty"`
}

// NewState returns an empty state.
func NewState() *State {
	return &State{Bookmarks: make(map[string]*StreamState)}
}

// ParseState decodes a state document. Both the bare form and a STATE
// message wrapper ({"type":"STATE","value":{...}}) are accepted, since
// orchestrators save either.
func ParseState(data []byte) (*State, error) {
	var envelope struct {
		Type  string          `json:"type"`
		Value json.RawMessage `json:"value"`
	}
	if err := json.UnmarshalUseNumber(data, &envelope); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeState, "failed to parse state")
	}
	if envelope.Type == string(MessageTypeState) && len(envelope.Value) > 0 {
		data = envelope.Value
	}

	s := NewState()
	if err := json.UnmarshalUseNumber(data, s); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeState, "failed to parse state")
	}
	if s.Bookmarks == nil {
		s.Bookmarks = make(map[string]*StreamState)
	}
	return s, nil
}

// Clone returns a deep copy of s.
func (s *State) Clone() *State {
	data, err := json.Marshal(s)
	if err != nil {
		return NewState()
	}
	out, err := ParseState(data)
	if err != nil {
		return NewState()
	}
	return out
}

// Bookmark returns the replication value stored for stream and context.
func (s *State) Bookmark(stream string, ctx Context) (interface{}, bool) {
	ss, ok := s.Bookmarks[stream]
	if !ok {
		return nil, false
	}
	if len(ctx) == 0 {
		return ss.ReplicationKeyValue, ss.ReplicationKeyValue != nil
	}
	if p := ss.partition(ctx); p != nil {
		return p.ReplicationKeyValue, p.ReplicationKeyValue != nil
	}
	return nil, false
}

// Advance stores value as the bookmark of stream and context if it is
// ahead of the current one. It reports whether the bookmark moved.
func (s *State) Advance(stream, key string, ctx Context, value interface{}) bool {
	if value == nil {
		return false
	}
	ss, ok := s.Bookmarks[stream]
	if !ok {
		ss = &StreamState{}
		s.Bookmarks[stream] = ss
	}

	if len(ctx) == 0 {
		if ss.ReplicationKeyValue != nil && CompareValues(value, ss.ReplicationKeyValue) <= 0 {
			return false
		}
		ss.ReplicationKey = key
		ss.ReplicationKeyValue = value
		return true
	}

	p := ss.partition(ctx)
	if p == nil {
		p = &PartitionState{Context: ctx}
		ss.Partitions = append(ss.Partitions, p)
	} else if p.ReplicationKeyValue != nil && CompareValues(value, p.ReplicationKeyValue) <= 0 {
		return false
	}
	p.ReplicationKey = key
	p.ReplicationKeyValue = value
	return true
}

// Reset removes all bookmarks of stream.
func (s *State) Reset(stream string) {
	delete(s.Bookmarks, stream)
}

func (ss *StreamState) partition(ctx Context) *PartitionState {
	key := ctx.Key()
	for _, p := range ss.Partitions {
		if p.Context.Key() == key {
			return p
		}
	}
	return nil
}

func formatScalar(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		if f, ok := t.(fmt.Stringer); ok {
			return f.String()
		}
		return fmt.Sprint(t)
	}
}
