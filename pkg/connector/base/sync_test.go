package base

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Matatika/tap-shopify/pkg/config"
	"github.com/Matatika/tap-shopify/pkg/errors"
	"github.com/Matatika/tap-shopify/pkg/json"
	"github.com/Matatika/tap-shopify/pkg/schema"
	"github.com/Matatika/tap-shopify/pkg/singer"
)

type recordedRecord struct {
	stream string
	record map[string]interface{}
}

// recorder collects the messages a sync writes.
type recorder struct {
	schemas []*singer.SchemaMessage
	records []recordedRecord
	states  []*singer.State
}

func (r *recorder) WriteSchema(msg *singer.SchemaMessage) error {
	r.schemas = append(r.schemas, msg)
	return nil
}

func (r *recorder) WriteRecord(stream string, record map[string]interface{}, _ time.Time) error {
	r.records = append(r.records, recordedRecord{stream: stream, record: record})
	return nil
}

func (r *recorder) WriteState(state *singer.State) error {
	r.states = append(r.states, state.Clone())
	return nil
}

func (r *recorder) ids(stream string) []string {
	var ids []string
	for _, rec := range r.records {
		if rec.stream == stream {
			ids = append(ids, fmt.Sprint(rec.record["id"]))
		}
	}
	return ids
}

// fakeAPI serves two pages of parents and one child per parent.
type fakeAPI struct {
	*httptest.Server
	mu       sync.Mutex
	requests []*url.URL
}

func newFakeAPI(t *testing.T) *fakeAPI {
	api := &fakeAPI{}
	api.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		api.mu.Lock()
		api.requests = append(api.requests, r.URL)
		api.mu.Unlock()

		assert.Equal(t, "secret", r.Header.Get("X-Shopify-Access-Token"))

		path := strings.TrimPrefix(r.URL.Path, "/admin/api/2024-01")
		switch {
		case path == "/parents.json" && r.URL.Query().Get("page_info") == "":
			w.Header().Set("Link", fmt.Sprintf(`<%s/admin/api/2024-01/parents.json?page_info=p2&limit=2>; rel="next"`, api.URL))
			_, _ = w.Write([]byte(`{"parents":[
				{"id":1,"name":"a","updated_at":"2024-01-01T00:00:00Z"},
				{"id":2,"name":"b","updated_at":"2024-01-03T00:00:00Z"}]}`))
		case path == "/parents.json":
			_, _ = w.Write([]byte(`{"parents":[{"id":3,"name":"c","updated_at":"2024-01-02T00:00:00Z"}]}`))
		case strings.HasPrefix(path, "/parents/") && strings.HasSuffix(path, "/children.json"):
			id := strings.TrimSuffix(strings.TrimPrefix(path, "/parents/"), "/children.json")
			_, _ = fmt.Fprintf(w, `{"children":[{"id":%s0,"parent_id":%s}]}`, id, id)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(api.Close)
	return api
}

func (a *fakeAPI) paths() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.requests))
	for _, u := range a.requests {
		out = append(out, u.Path)
	}
	return out
}

func (a *fakeAPI) first(path string) *url.URL {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, u := range a.requests {
		if u.Path == path {
			return u
		}
	}
	return nil
}

func testConfig(apiURL string) *config.TapConfig {
	cfg := config.NewTapConfig()
	cfg.Store = "test"
	cfg.AdminURL = apiURL + "/admin"
	cfg.AccessToken = "secret"
	cfg.Reliability.RateLimitPerSec = 0
	cfg.Reliability.RetryAttempts = 1
	cfg.Reliability.RetryDelay = time.Millisecond
	cfg.Observability.ProgressInterval = 0
	return cfg
}

func testStreams() []*Stream {
	parents := MustStream(StreamConfig{
		Name:              "parents",
		Path:              "/parents.json",
		RecordsPath:       "parents",
		PrimaryKeys:       []string{"id"},
		ReplicationKey:    "updated_at",
		ReplicationMethod: singer.ReplicationIncremental,
		Schema: schema.Record(schema.Properties{
			"id":         schema.Integer(),
			"name":       schema.String(),
			"updated_at": schema.DateTime(),
		}),
		Hooks: Hooks{
			URLParams: func(req *PageRequest) url.Values {
				params := url.Values{}
				params.Set("limit", "2")
				if v := req.Partition.StartingBookmark; v != nil {
					params.Set("updated_at_min", singer.FormatValue(v))
				}
				return params
			},
			ChildContext: func(rec Record, _ *Partition) singer.Context {
				return singer.Context{"parent_id": rec["id"]}
			},
		},
	})
	children := MustStream(StreamConfig{
		Name:        "children",
		Path:        "/parents/{parent_id}/children.json",
		RecordsPath: "children",
		PrimaryKeys: []string{"id"},
		Parent:      "parents",
		Schema: schema.Record(schema.Properties{
			"id":        schema.Integer(),
			"parent_id": schema.Integer(),
		}),
	})
	return []*Stream{parents, children}
}

func newTestSyncer(t *testing.T, cfg *config.TapConfig, streams []*Stream) *Syncer {
	bt, err := NewBaseTap("tap-test", "0.0.1", cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = bt.Close(context.Background()) })

	s, err := NewSyncer(bt, streams)
	require.NoError(t, err)
	return s
}

func TestSyncAllStreams(t *testing.T) {
	api := newFakeAPI(t)
	s := newTestSyncer(t, testConfig(api.URL), testStreams())

	out := &recorder{}
	var checkpoints int
	err := s.Sync(context.Background(), nil, nil, out, func(context.Context, *singer.State) error {
		checkpoints++
		return nil
	})
	require.NoError(t, err)

	require.Len(t, out.schemas, 2)
	assert.Equal(t, "parents", out.schemas[0].Stream)
	assert.Equal(t, []string{"updated_at"}, out.schemas[0].BookmarkProperties)
	assert.Equal(t, "children", out.schemas[1].Stream)
	assert.Empty(t, out.schemas[1].BookmarkProperties)

	assert.Equal(t, []string{"1", "2", "3"}, out.ids("parents"))
	assert.Equal(t, []string{"10", "20", "30"}, out.ids("children"))

	// children are fetched right after their parent
	var order []string
	for _, r := range out.records {
		order = append(order, r.stream)
	}
	assert.Equal(t, []string{"parents", "children", "parents", "children", "parents", "children"}, order)

	require.NotEmpty(t, out.states)
	last := out.states[len(out.states)-1]
	v, ok := last.Bookmark("parents", nil)
	require.True(t, ok)
	assert.Equal(t, "2024-01-03T00:00:00Z", v)
	assert.Equal(t, 1, checkpoints)

	first := api.first("/admin/api/2024-01/parents.json")
	require.NotNil(t, first)
	assert.Equal(t, "2", first.Query().Get("limit"))
	assert.Empty(t, first.Query().Get("updated_at_min"))
}

func TestSyncFollowsNextLinkQuery(t *testing.T) {
	api := newFakeAPI(t)
	s := newTestSyncer(t, testConfig(api.URL), testStreams())

	cfg := s.tap.GetConfig()
	cfg.Streams = []string{"parents"}

	out := &recorder{}
	require.NoError(t, s.Sync(context.Background(), nil, singer.NewState(), out, nil))

	assert.Equal(t, []string{
		"/admin/api/2024-01/parents.json",
		"/admin/api/2024-01/parents.json",
	}, api.paths())

	api.mu.Lock()
	second := api.requests[1].Query()
	api.mu.Unlock()
	assert.Equal(t, "p2", second.Get("page_info"))
	assert.Equal(t, "2", second.Get("limit"))
	assert.Empty(t, out.ids("children"))
}

func TestSyncPaginationStops(t *testing.T) {
	tests := []struct {
		name         string
		firstBody    string
		nextBody     string
		nextLinks    bool
		wantRequests int
		wantIDs      []string
	}{
		{
			name:         "no next link",
			firstBody:    `{"parents":[{"id":1,"updated_at":"2024-01-01T00:00:00Z"}]}`,
			wantRequests: 1,
			wantIDs:      []string{"1"},
		},
		{
			name:         "next link already visited",
			firstBody:    `{"parents":[{"id":1,"updated_at":"2024-01-01T00:00:00Z"}]}`,
			nextBody:     `{"parents":[{"id":2,"updated_at":"2024-01-02T00:00:00Z"}]}`,
			nextLinks:    true,
			wantRequests: 2,
			wantIDs:      []string{"1", "2"},
		},
		{
			name:         "empty array with next link",
			firstBody:    `[]`,
			nextLinks:    true,
			wantRequests: 1,
		},
		{
			name:         "empty object with next link",
			firstBody:    `{}`,
			nextLinks:    true,
			wantRequests: 1,
		},
		{
			name:         "null with next link",
			firstBody:    `null`,
			nextLinks:    true,
			wantRequests: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var (
				mu       sync.Mutex
				requests int
			)
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				mu.Lock()
				requests++
				mu.Unlock()

				// every page points at the same next page
				if tt.nextLinks {
					w.Header().Set("Link", fmt.Sprintf(`<http://%s/admin/api/2024-01/parents.json?page_info=p2>; rel="next"`, r.Host))
				}
				if r.URL.Query().Get("page_info") == "" {
					_, _ = w.Write([]byte(tt.firstBody))
					return
				}
				_, _ = w.Write([]byte(tt.nextBody))
			}))
			defer srv.Close()

			s := newTestSyncer(t, testConfig(srv.URL), testStreams()[:1])
			out := &recorder{}
			require.NoError(t, s.Sync(context.Background(), nil, nil, out, nil))

			mu.Lock()
			defer mu.Unlock()
			assert.Equal(t, tt.wantRequests, requests)
			assert.Equal(t, tt.wantIDs, out.ids("parents"))
		})
	}
}

func TestSyncResumesFromBookmark(t *testing.T) {
	api := newFakeAPI(t)
	s := newTestSyncer(t, testConfig(api.URL), testStreams())
	s.tap.GetConfig().Streams = []string{"parents"}

	state := singer.NewState()
	state.Advance("parents", "updated_at", nil, "2024-01-02T12:00:00Z")

	out := &recorder{}
	require.NoError(t, s.Sync(context.Background(), nil, state, out, nil))

	first := api.first("/admin/api/2024-01/parents.json")
	require.NotNil(t, first)
	assert.Equal(t, "2024-01-02T12:00:00Z", first.Query().Get("updated_at_min"))

	v, _ := state.Bookmark("parents", nil)
	assert.Equal(t, "2024-01-03T00:00:00Z", v)
}

func TestSyncChildOnlySelection(t *testing.T) {
	api := newFakeAPI(t)
	s := newTestSyncer(t, testConfig(api.URL), testStreams())

	catalog := s.Catalog()
	catalog.Get("parents").SetSelected(false)

	out := &recorder{}
	state := singer.NewState()
	require.NoError(t, s.Sync(context.Background(), catalog, state, out, nil))

	require.Len(t, out.schemas, 1)
	assert.Equal(t, "children", out.schemas[0].Stream)
	assert.Empty(t, out.ids("parents"))
	assert.Equal(t, []string{"10", "20", "30"}, out.ids("children"))

	_, ok := state.Bookmark("parents", nil)
	assert.False(t, ok, "unselected parents must not move their bookmark")
}

func TestSyncExcludedProperties(t *testing.T) {
	api := newFakeAPI(t)
	s := newTestSyncer(t, testConfig(api.URL), testStreams())

	catalog := s.Catalog()
	catalog.Get("children").SetSelected(false)
	entry := catalog.Get("parents")
	for _, md := range entry.Metadata {
		if len(md.Breadcrumb) == 2 && md.Breadcrumb[1] == "name" {
			md.Metadata["selected"] = false
		}
	}

	out := &recorder{}
	require.NoError(t, s.Sync(context.Background(), catalog, nil, out, nil))

	require.Len(t, out.schemas, 1)
	props := out.schemas[0].Schema["properties"].(map[string]interface{})
	assert.NotContains(t, props, "name")
	assert.Contains(t, props, "updated_at")

	require.NotEmpty(t, out.records)
	for _, r := range out.records {
		assert.NotContains(t, r.record, "name")
		assert.Contains(t, r.record, "id")
	}
}

func TestSyncValidation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"parents":[{"id":"not-a-number","updated_at":"2024-01-01T00:00:00Z"}]}`))
	}))
	defer srv.Close()

	streams := testStreams()[:1]

	t.Run("logged and emitted", func(t *testing.T) {
		s := newTestSyncer(t, testConfig(srv.URL), streams)
		out := &recorder{}
		require.NoError(t, s.Sync(context.Background(), nil, nil, out, nil))
		assert.Equal(t, []string{"not-a-number"}, out.ids("parents"))

		stats := s.tap.GetErrorHandler().GetErrorStats()
		assert.Equal(t, int64(1), stats["errors_by_type"].(map[string]int64)["validation"])
	})

	t.Run("fail fast", func(t *testing.T) {
		cfg := testConfig(srv.URL)
		cfg.Reliability.FailFast = true
		s := newTestSyncer(t, cfg, streams)

		err := s.Sync(context.Background(), nil, nil, &recorder{}, nil)
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	})
}

func TestSyncHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	s := newTestSyncer(t, testConfig(srv.URL), testStreams())
	err := s.Sync(context.Background(), nil, nil, &recorder{}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeAuthentication))
}

func TestSyncUnknownStream(t *testing.T) {
	s := newTestSyncer(t, testConfig("http://127.0.0.1:0"), testStreams())
	s.tap.GetConfig().Streams = []string{"nope"}

	err := s.Sync(context.Background(), nil, nil, &recorder{}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestNewSyncerOrdering(t *testing.T) {
	streams := testStreams()
	bt, err := NewBaseTap("tap-test", "0.0.1", testConfig("http://127.0.0.1:0"))
	require.NoError(t, err)

	_, err = NewSyncer(bt, []*Stream{streams[1], streams[0]})
	require.Error(t, err)

	_, err = NewSyncer(bt, []*Stream{streams[0], streams[0]})
	require.Error(t, err)
}

func TestSyncerCatalog(t *testing.T) {
	s := newTestSyncer(t, testConfig("http://127.0.0.1:0"), testStreams())

	catalog := s.Catalog()
	require.Len(t, catalog.Streams, 2)

	parents := catalog.Get("parents")
	assert.Equal(t, "updated_at", parents.ReplicationKey)
	assert.True(t, parents.Selected())

	children := catalog.Get("children")
	assert.Empty(t, children.ReplicationKey)
	assert.Equal(t, singer.ReplicationFullTable, children.ReplicationMethod)

	data, err := json.Marshal(catalog)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"parent-tap-stream-id":"parents"`)

	infos := s.StreamInfos()
	require.Len(t, infos, 2)
	assert.Equal(t, "parents", infos[1].Parent)
}
