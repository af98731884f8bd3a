package singer

import (
	"os"
	"sort"

	"github.com/Matatika/tap-shopify/pkg/errors"
	"github.com/Matatika/tap-shopify/pkg/json"
)

// Replication methods
const (
	ReplicationIncremental = "INCREMENTAL"
	ReplicationFullTable   = "FULL_TABLE"
)

// Property inclusion values
const (
	InclusionAutomatic   = "automatic"
	InclusionAvailable   = "available"
	InclusionUnsupported = "unsupported"
)

// Catalog lists the streams a tap offers and which of them to sync.
type Catalog struct {
	Streams []*CatalogEntry `json:"streams"`
}

// CatalogEntry describes one stream.
type CatalogEntry struct {
	TapStreamID       string                 `json:"tap_stream_id"`
	Stream            string                 `json:"stream"`
	Schema            map[string]interface{} `json:"schema"`
	KeyProperties     []string               `json:"key_properties"`
	ReplicationKey    string                 `json:"replication_key,omitempty"`
	ReplicationMethod string                 `json:"replication_method,omitempty"`
	Metadata          []Metadata             `json:"metadata"`
}

// Metadata annotates the stream (empty breadcrumb) or one of its
// properties (breadcrumb ["properties", name]).
type Metadata struct {
	Breadcrumb []string               `json:"breadcrumb"`
	Metadata   map[string]interface{} `json:"metadata"`
}

// LoadCatalog reads a catalog file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the --catalog flag
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to read catalog").
			WithDetail("path", path)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes a catalog document.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := json.UnmarshalUseNumber(data, &c); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse catalog")
	}
	return &c, nil
}

// Get returns the entry with tap_stream_id id, or nil.
func (c *Catalog) Get(id string) *CatalogEntry {
	for _, e := range c.Streams {
		if e.TapStreamID == id {
			return e
		}
	}
	return nil
}

// Selected reports whether the stream is selected. Without an explicit
// "selected" flag, "selected-by-default" decides.
func (e *CatalogEntry) Selected() bool {
	md := e.metadataFor(nil)
	if md == nil {
		return false
	}
	if v, ok := md["selected"].(bool); ok {
		return v
	}
	v, _ := md["selected-by-default"].(bool)
	return v
}

// SetSelected sets the stream-level selected flag.
func (e *CatalogEntry) SetSelected(selected bool) {
	md := e.metadataFor(nil)
	if md == nil {
		md = make(map[string]interface{})
		e.Metadata = append(e.Metadata, Metadata{Breadcrumb: []string{}, Metadata: md})
	}
	md["selected"] = selected
}

// ExcludedProperties returns properties explicitly deselected or marked
// unsupported. Automatic properties are never excluded.
func (e *CatalogEntry) ExcludedProperties() map[string]bool {
	excluded := make(map[string]bool)
	for _, m := range e.Metadata {
		if len(m.Breadcrumb) != 2 || m.Breadcrumb[0] != "properties" {
			continue
		}
		inclusion, _ := m.Metadata["inclusion"].(string)
		if inclusion == InclusionAutomatic {
			continue
		}
		if inclusion == InclusionUnsupported {
			excluded[m.Breadcrumb[1]] = true
			continue
		}
		if sel, ok := m.Metadata["selected"].(bool); ok && !sel {
			excluded[m.Breadcrumb[1]] = true
		}
	}
	return excluded
}

func (e *CatalogEntry) metadataFor(breadcrumb []string) map[string]interface{} {
	for _, m := range e.Metadata {
		if equalBreadcrumb(m.Breadcrumb, breadcrumb) {
			return m.Metadata
		}
	}
	return nil
}

func equalBreadcrumb(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// EntryOptions describes a stream for NewCatalogEntry.
type EntryOptions struct {
	Name              string
	Schema            map[string]interface{}
	KeyProperties     []string
	ReplicationKey    string
	ReplicationMethod string
	SelectedByDefault bool
	Parent            string
}

// NewCatalogEntry builds a discovered catalog entry with standard metadata.
func NewCatalogEntry(opts EntryOptions) *CatalogEntry {
	keys := opts.KeyProperties
	if keys == nil {
		keys = []string{}
	}

	streamMD := map[string]interface{}{
		"inclusion":                 InclusionAvailable,
		"selected":                  opts.SelectedByDefault,
		"selected-by-default":       opts.SelectedByDefault,
		"table-key-properties":      keys,
		"forced-replication-method": opts.ReplicationMethod,
	}
	if opts.ReplicationKey != "" {
		streamMD["valid-replication-keys"] = []string{opts.ReplicationKey}
	}
	if opts.Parent != "" {
		streamMD["parent-tap-stream-id"] = opts.Parent
	}

	entry := &CatalogEntry{
		TapStreamID:       opts.Name,
		Stream:            opts.Name,
		Schema:            opts.Schema,
		KeyProperties:     keys,
		ReplicationKey:    opts.ReplicationKey,
		ReplicationMethod: opts.ReplicationMethod,
		Metadata:          []Metadata{{Breadcrumb: []string{}, Metadata: streamMD}},
	}

	automatic := make(map[string]bool)
	for _, k := range opts.KeyProperties {
		automatic[k] = true
	}
	if opts.ReplicationKey != "" {
		automatic[opts.ReplicationKey] = true
	}

	props, _ := opts.Schema["properties"].(map[string]interface{})
	for _, name := range sortedPropertyNames(props) {
		inclusion := InclusionAvailable
		if automatic[name] {
			inclusion = InclusionAutomatic
		}
		entry.Metadata = append(entry.Metadata, Metadata{
			Breadcrumb: []string{"properties", name},
			Metadata:   map[string]interface{}{"inclusion": inclusion},
		})
	}

	return entry
}

func sortedPropertyNames(props map[string]interface{}) []string {
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
