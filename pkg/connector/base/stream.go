package base

import (
	"net/url"
	"strings"

	"github.com/jmespath/go-jmespath"

	"github.com/Matatika/tap-shopify/pkg/errors"
	"github.com/Matatika/tap-shopify/pkg/json"
	"github.com/Matatika/tap-shopify/pkg/schema"
	"github.com/Matatika/tap-shopify/pkg/singer"
)

// Record is one decoded API row.
type Record = map[string]interface{}

// Partition is one unit of a stream sync: the whole stream for top-level
// streams, or one parent record's context for child streams.
type Partition struct {
	Stream  string
	Context singer.Context
	// StartingBookmark is the replication value the partition resumed
	// from, nil on a first sync or for FULL_TABLE streams.
	StartingBookmark interface{}

	advanced bool
}

// PageRequest describes the page about to be requested.
type PageRequest struct {
	Partition *Partition
	// NextPageToken is the next-page URL of the previous response, empty
	// for the first page.
	NextPageToken string
}

// IsFirstPage reports whether no page has been fetched yet.
func (r *PageRequest) IsFirstPage() bool {
	return r.NextPageToken == ""
}

// Hooks are the per-stream customizations of the sync loop. Every hook is
// optional.
type Hooks struct {
	// URLParams returns the query of a first-page request. Follow-up pages
	// always use the query of the next-page URL instead.
	URLParams func(req *PageRequest) url.Values
	// PostProcess transforms a record; returning false drops it.
	PostProcess func(record Record, part *Partition) (Record, bool)
	// ChildContext returns the context child streams are synced with for
	// this record.
	ChildContext func(record Record, part *Partition) singer.Context
	// PaginationDone is called when a partition has no more pages.
	PaginationDone func(part *Partition)
}

// StreamConfig declares one REST stream.
type StreamConfig struct {
	Name string
	// Path is appended to the API base and may contain {key} placeholders
	// filled from the partition context.
	Path string
	// RecordsPath is a JMESPath expression selecting the records of a
	// response body.
	RecordsPath       string
	PrimaryKeys       []string
	ReplicationKey    string
	ReplicationMethod string
	// Parent names the stream whose records provide this stream's context.
	Parent string
	Schema *schema.Schema
	Hooks  Hooks
}

// Stream is a compiled StreamConfig.
type Stream struct {
	StreamConfig
	records *jmespath.JMESPath
}

// NewStream validates and compiles cfg.
func NewStream(cfg StreamConfig) (*Stream, error) {
	if cfg.Name == "" || cfg.Path == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "stream name and path are required")
	}
	if cfg.ReplicationMethod == "" {
		cfg.ReplicationMethod = singer.ReplicationFullTable
	}
	if cfg.ReplicationMethod == singer.ReplicationIncremental && cfg.ReplicationKey == "" {
		return nil, errors.Newf(errors.ErrorTypeConfig, "stream %s is incremental without a replication key", cfg.Name)
	}
	if cfg.Schema == nil {
		return nil, errors.Newf(errors.ErrorTypeConfig, "stream %s has no schema", cfg.Name)
	}

	expr := cfg.RecordsPath
	if expr == "" {
		expr = "@"
	}
	compiled, err := jmespath.Compile(expr)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid records path").
			WithDetail("stream", cfg.Name).
			WithDetail("expression", expr)
	}
	return &Stream{StreamConfig: cfg, records: compiled}, nil
}

// MustStream is NewStream for static stream tables.
func MustStream(cfg StreamConfig) *Stream {
	s, err := NewStream(cfg)
	if err != nil {
		panic(err)
	}
	return s
}

// IsIncremental reports whether the stream keeps a bookmark.
func (s *Stream) IsIncremental() bool {
	return s.ReplicationMethod == singer.ReplicationIncremental
}

// URL returns the request URL for a partition under apiBase. Context
// values are path-escaped into the {key} placeholders.
func (s *Stream) URL(apiBase string, ctx singer.Context) string {
	path := s.Path
	for k, v := range ctx {
		path = strings.ReplaceAll(path, "{"+k+"}", url.PathEscape(singer.FormatValue(v)))
	}
	return strings.TrimRight(apiBase, "/") + path
}

// ParseRecords decodes a response body and extracts its records. A
// non-list result is treated as a single record; null results yield none.
func (s *Stream) ParseRecords(body []byte) ([]Record, error) {
	if isEmptyBody(body) {
		return nil, nil
	}

	var data interface{}
	if err := json.UnmarshalUseNumber(body, &data); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to decode response").
			WithDetail("stream", s.Name)
	}

	result, err := s.records.Search(data)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to extract records").
			WithDetail("stream", s.Name)
	}

	var items []interface{}
	switch v := result.(type) {
	case nil:
		return nil, nil
	case []interface{}:
		items = v
	default:
		items = []interface{}{v}
	}

	records := make([]Record, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		rec, ok := item.(map[string]interface{})
		if !ok {
			return nil, errors.Newf(errors.ErrorTypeData, "record is %T, not an object", item).
				WithDetail("stream", s.Name)
		}
		records = append(records, rec)
	}
	return records, nil
}

// isEmptyBody reports whether a body carries no data: empty, null, [] or {}.
func isEmptyBody(body []byte) bool {
	switch strings.TrimSpace(string(body)) {
	case "", "null", "[]", "{}":
		return true
	default:
		return false
	}
}

// NextPageParams returns the query of a next-page URL. It replaces every
// parameter of the first request.
func NextPageParams(nextURL string) (url.Values, error) {
	u, err := url.Parse(nextURL)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "invalid next page link").
			WithDetail("url", nextURL)
	}
	return u.Query(), nil
}
