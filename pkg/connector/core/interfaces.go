// Package core defines the interfaces shared by taps, the registry and the
// sync pipeline.
package core

import (
	"context"
	"time"

	"github.com/Matatika/tap-shopify/pkg/config"
	"github.com/Matatika/tap-shopify/pkg/singer"
)

// ConnectorType represents the type of connector
type ConnectorType string

const (
	ConnectorTypeSource ConnectorType = "source"
)

// Capabilities advertised by About
const (
	CapabilityCatalog           = "catalog"
	CapabilityDiscover          = "discover"
	CapabilityState             = "state"
	CapabilityAbout             = "about"
	CapabilityTest              = "test"
	CapabilityPropertySelection = "property-selection"
)

// MessageWriter receives the Singer messages of a sync. *singer.Writer
// implements it.
type MessageWriter interface {
	WriteSchema(msg *singer.SchemaMessage) error
	WriteRecord(stream string, record map[string]interface{}, extracted time.Time) error
	WriteState(state *singer.State) error
}

// Checkpointer persists state as a sync emits it.
type Checkpointer func(ctx context.Context, state *singer.State) error

// Tap is the interface every source implements
type Tap interface {
	Name() string
	Type() ConnectorType
	Version() string

	// Discover returns the catalog of every stream the tap offers.
	Discover(ctx context.Context) (*singer.Catalog, error)
	// Sync extracts the selected streams of catalog, starting from state.
	// A nil catalog selects streams by the configuration.
	Sync(ctx context.Context, catalog *singer.Catalog, state *singer.State, out MessageWriter, checkpoint Checkpointer) error
	// Check verifies connectivity and credentials.
	Check(ctx context.Context) error
	About() *About

	Close(ctx context.Context) error
}

// About describes a tap for the about command.
type About struct {
	Name         string                 `json:"name" yaml:"name"`
	Version      string                 `json:"version" yaml:"version"`
	Description  string                 `json:"description" yaml:"description"`
	Capabilities []string               `json:"capabilities" yaml:"capabilities"`
	Settings     map[string]interface{} `json:"settings" yaml:"settings"`
	Streams      []StreamInfo           `json:"streams" yaml:"streams"`
}

// StreamInfo summarizes one stream.
type StreamInfo struct {
	Name              string   `json:"name" yaml:"name"`
	Parent            string   `json:"parent,omitempty" yaml:"parent,omitempty"`
	KeyProperties     []string `json:"key_properties" yaml:"key_properties"`
	ReplicationMethod string   `json:"replication_method" yaml:"replication_method"`
	ReplicationKey    string   `json:"replication_key,omitempty" yaml:"replication_key,omitempty"`
}

// TapFactory creates a tap from its configuration.
type TapFactory func(cfg *config.TapConfig) (Tap, error)
