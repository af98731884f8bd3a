package shopify

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Matatika/tap-shopify/pkg/config"
	"github.com/Matatika/tap-shopify/pkg/connector/base"
	"github.com/Matatika/tap-shopify/pkg/connector/registry"
	"github.com/Matatika/tap-shopify/pkg/errors"
	"github.com/Matatika/tap-shopify/pkg/json"
	"github.com/Matatika/tap-shopify/pkg/singer"
)

const apiPrefix = "/admin/api/" + config.DefaultAPIVersion

// fakeShop is an httptest Admin API. Handlers are keyed by path below the
// versioned API root.
type fakeShop struct {
	*httptest.Server
	t testing.TB

	mu       sync.Mutex
	handlers map[string]http.HandlerFunc
	requests []*url.URL
}

func newFakeShop(t testing.TB, prefix string) *fakeShop {
	fs := &fakeShop{t: t, handlers: make(map[string]http.HandlerFunc)}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1234", r.Header.Get("X-Shopify-Access-Token"))

		fs.mu.Lock()
		fs.requests = append(fs.requests, r.URL)
		h, ok := fs.handlers[r.URL.Path[len(prefix):]]
		fs.mu.Unlock()

		if !ok {
			http.NotFound(w, r)
			return
		}
		h(w, r)
	}))
	t.Cleanup(fs.Close)
	return fs
}

func (fs *fakeShop) handle(path string, h http.HandlerFunc) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.handlers[path] = h
}

// handleJSON serves the same body on every request.
func (fs *fakeShop) handleJSON(path, body string) {
	fs.handle(path, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(body))
	})
}

func (fs *fakeShop) requestsFor(path string) []url.Values {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	var out []url.Values
	for _, u := range fs.requests {
		if u.Path == path {
			out = append(out, u.Query())
		}
	}
	return out
}

func testConfig(adminURL string) *config.TapConfig {
	cfg := config.NewTapConfig()
	cfg.AccessToken = "1234"
	cfg.Store = "mock-store"
	cfg.AdminURL = adminURL
	cfg.Reliability.RateLimitPerSec = 0
	cfg.Reliability.RetryAttempts = 1
	cfg.Reliability.RetryDelay = time.Millisecond
	cfg.Observability.ProgressInterval = 0
	return cfg
}

func newTestTap(t testing.TB, cfg *config.TapConfig) *Tap {
	tap, err := NewTap(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tap.Close(context.Background()) })
	return tap
}

// selectOnly returns the discovered catalog with only streams selected.
func selectOnly(t testing.TB, tap *Tap, streams ...string) *singer.Catalog {
	catalog, err := tap.Discover(context.Background())
	require.NoError(t, err)
	for _, e := range catalog.Streams {
		e.SetSelected(false)
	}
	for _, name := range streams {
		entry := catalog.Get(name)
		require.NotNil(t, entry, name)
		entry.SetSelected(true)
	}
	return catalog
}

type message struct {
	Type   string                 `json:"type"`
	Stream string                 `json:"stream"`
	Record map[string]interface{} `json:"record"`
	Value  *singer.State          `json:"value"`
}

// runSync syncs through a singer.Writer and decodes the emitted lines.
func runSync(t *testing.T, tap *Tap, catalog *singer.Catalog, state *singer.State) []message {
	var buf bytes.Buffer
	w := singer.NewWriter(&buf, 0)
	require.NoError(t, tap.Sync(context.Background(), catalog, state, w, nil))
	require.NoError(t, w.Flush())

	var msgs []message
	sc := bufio.NewScanner(&buf)
	sc.Buffer(make([]byte, 1024*1024), 1024*1024)
	for sc.Scan() {
		var m message
		require.NoError(t, json.UnmarshalUseNumber(sc.Bytes(), &m))
		msgs = append(msgs, m)
	}
	require.NoError(t, sc.Err())
	return msgs
}

func recordsOf(msgs []message, stream string) []map[string]interface{} {
	var out []map[string]interface{}
	for _, m := range msgs {
		if m.Type == "RECORD" && m.Stream == stream {
			out = append(out, m.Record)
		}
	}
	return out
}

func lastState(t *testing.T, msgs []message) *singer.State {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Type == "STATE" {
			return msgs[i].Value
		}
	}
	t.Fatal("no STATE message")
	return nil
}

func TestPagination(t *testing.T) {
	shop := newFakeShop(t, apiPrefix)
	product := `{"products":[{"id":1234567890,"updated_at":"2024-01-01T00:00:00Z"}]}`

	calls := map[string]int{}
	var mu sync.Mutex
	shop.handle("/products.json", func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page_info")
		mu.Lock()
		calls[page]++
		mu.Unlock()

		next := map[string]string{"": "12345", "12345": "12346"}[page]
		if next != "" {
			w.Header().Set("Link", fmt.Sprintf("%s%s/products.json?limit=1&page_info=%s; rel=next", shop.URL, apiPrefix, next))
		}
		_, _ = w.Write([]byte(product))
	})

	tap := newTestTap(t, testConfig(shop.URL+"/admin"))
	msgs := runSync(t, tap, selectOnly(t, tap, StreamProducts), nil)

	assert.Equal(t, map[string]int{"": 1, "12345": 1, "12346": 1}, calls)

	// the same row repeated on every page is emitted once
	assert.Len(t, recordsOf(msgs, StreamProducts), 1)

	pages := shop.requestsFor(apiPrefix + "/products.json")
	require.Len(t, pages, 3)
	assert.Equal(t, url.Values{"limit": {"1"}, "page_info": {"12345"}}, pages[1])
	assert.Equal(t, url.Values{"limit": {"1"}, "page_info": {"12346"}}, pages[2])
}

func TestAdminURLSetting(t *testing.T) {
	prefix := "/custom_admin_url/api/" + config.DefaultAPIVersion
	shop := newFakeShop(t, prefix)
	shop.handleJSON("/customers.json", `{"customers":[{"id":1,"updated_at":"2024-01-01T00:00:00Z"}]}`)

	tap := newTestTap(t, testConfig(shop.URL+"/custom_admin_url"))
	msgs := runSync(t, tap, selectOnly(t, tap, StreamCustomers), nil)

	assert.Len(t, shop.requestsFor(prefix+"/customers.json"), 1)
	assert.Len(t, recordsOf(msgs, StreamCustomers), 1)
}

func TestFirstPageParams(t *testing.T) {
	cfg := testConfig("http://unused")
	cfg.StartDate = "2024-01-01T00:00:00Z"
	streams, err := newStreams(cfg)
	require.NoError(t, err)

	byName := make(map[string]func(*base.PageRequest) url.Values)
	for _, s := range streams {
		byName[s.Name] = s.Hooks.URLParams
	}

	tests := []struct {
		name     string
		stream   string
		bookmark interface{}
		ctx      singer.Context
		want     url.Values
	}{
		{
			name:   "start date",
			stream: StreamCustomers,
			want:   url.Values{"limit": {"250"}, "created_at_min": {"2024-01-01T00:00:00Z"}},
		},
		{
			name:     "bookmark replaces start date",
			stream:   StreamCustomers,
			bookmark: "2024-02-01T00:00:00Z",
			want:     url.Values{"limit": {"250"}, "updated_at_min": {"2024-02-01T00:00:00Z"}},
		},
		{
			name:   "orders of any status",
			stream: StreamOrders,
			want:   url.Values{"limit": {"250"}, "created_at_min": {"2024-01-01T00:00:00Z"}, "status": {"any"}},
		},
		{
			name:     "collects since bookmarked id",
			stream:   StreamCollects,
			bookmark: json.Number("841564295"),
			want:     url.Values{"limit": {"250"}, "since_id": {"841564295"}},
		},
		{
			name:   "collects without bookmark",
			stream: StreamCollects,
			want:   url.Values{"limit": {"250"}, "created_at_min": {"2024-01-01T00:00:00Z"}},
		},
		{
			name:   "inventory levels of the parent location",
			stream: StreamInventoryLevels,
			ctx:    singer.Context{"location_id": json.Number("655441491")},
			want:   url.Values{"limit": {"250"}, "created_at_min": {"2024-01-01T00:00:00Z"}, "location_ids": {"655441491"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &base.PageRequest{Partition: &base.Partition{Stream: tt.stream, Context: tt.ctx, StartingBookmark: tt.bookmark}}
			assert.Equal(t, tt.want, byName[tt.stream](req))
		})
	}
}

func TestDeduper(t *testing.T) {
	d := newDeduper("orders")
	part := &base.Partition{Stream: "orders", StartingBookmark: "2024-01-01T00:00:00Z"}

	keep := func(id interface{}, updated string) bool {
		return d.keep(map[string]interface{}{"id": id, "updated_at": updated}, part)
	}

	assert.True(t, keep(json.Number("1"), "2024-01-02T00:00:00Z"))
	assert.False(t, keep(json.Number("1"), "2024-01-02T00:00:00Z"), "repeated id")
	assert.True(t, keep(json.Number("2"), "2024-01-02T00:00:00Z"))
	assert.False(t, keep(json.Number("3"), "2024-01-01T00:00:00Z"), "equal to starting bookmark")
	assert.False(t, keep(json.Number("4"), "2024-01-01T01:00:00+01:00"), "same instant as bookmark")

	d.reset(part)
	assert.True(t, keep(json.Number("2"), "2024-01-03T00:00:00Z"), "last id resets when pagination ends")

	noBookmark := &base.Partition{Stream: "users"}
	assert.True(t, d.keep(map[string]interface{}{"id": json.Number("9")}, noBookmark))
	assert.True(t, d.keep(map[string]interface{}{"name": "no id"}, noBookmark))
	assert.True(t, d.keep(map[string]interface{}{"name": "no id either"}, noBookmark))
}

func TestOrdersDecimalsAndChildren(t *testing.T) {
	shop := newFakeShop(t, apiPrefix)
	shop.handleJSON("/orders.json", `{"orders":[
		{"id":450789469,"updated_at":"2024-01-05T10:00:00-05:00","subtotal_price":"10.10","total_price":"12.20"},
		{"id":450789470,"updated_at":"2024-01-04T10:00:00-05:00","subtotal_price":"1.00","total_price":null}]}`)
	shop.handleJSON("/orders/450789469/transactions.json", `{"transactions":[{"id":1,"order_id":450789469,"amount":"12.20"}]}`)
	shop.handleJSON("/orders/450789470/transactions.json", `{"transactions":[]}`)
	shop.handleJSON("/orders/450789469/refunds.json", `{"refunds":[{"id":7,"order_id":450789469}]}`)
	shop.handleJSON("/orders/450789470/refunds.json", `{"refunds":[]}`)

	tap := newTestTap(t, testConfig(shop.URL+"/admin"))
	msgs := runSync(t, tap, selectOnly(t, tap, StreamOrders, StreamTransactions, StreamRefunds), nil)

	orders := recordsOf(msgs, StreamOrders)
	require.Len(t, orders, 2)
	sub, ok := orders[0]["subtotal_price"].(json.Number)
	require.True(t, ok, "decimal written as a JSON number, got %T", orders[0]["subtotal_price"])
	assert.True(t, decimal.RequireFromString("10.10").Equal(decimal.RequireFromString(sub.String())))
	assert.Nil(t, orders[1]["total_price"])

	assert.Len(t, recordsOf(msgs, StreamTransactions), 1)
	assert.Len(t, recordsOf(msgs, StreamRefunds), 1)

	first := shop.requestsFor(apiPrefix + "/orders.json")
	require.Len(t, first, 1)
	assert.Equal(t, "any", first[0].Get("status"))

	v, ok := lastState(t, msgs).Bookmark(StreamOrders, nil)
	require.True(t, ok)
	assert.Equal(t, "2024-01-05T10:00:00-05:00", v)
}

func TestInventoryChain(t *testing.T) {
	shop := newFakeShop(t, apiPrefix)
	shop.handleJSON("/locations.json", `{"locations":[{"id":655441491,"name":"Main"}]}`)
	shop.handle("/inventory_levels.json", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "655441491", r.URL.Query().Get("location_ids"))
		_, _ = w.Write([]byte(`{"inventory_levels":[
			{"inventory_item_id":808950810,"location_id":655441491,"available":3},
			{"inventory_item_id":808950811,"location_id":655441491,"available":0}]}`))
	})
	shop.handleJSON("/inventory_items/808950810.json", `{"inventory_item":{"id":808950810,"sku":"IPOD2008PINK"}}`)
	shop.handleJSON("/inventory_items/808950811.json", `{"inventory_item":{"id":808950811,"sku":"IPOD2008RED"}}`)

	tap := newTestTap(t, testConfig(shop.URL+"/admin"))
	msgs := runSync(t, tap, selectOnly(t, tap, StreamInventoryItems), nil)

	// ancestors are fetched but only the selected stream is emitted
	assert.Empty(t, recordsOf(msgs, StreamLocations))
	assert.Empty(t, recordsOf(msgs, StreamInventoryLevels))

	items := recordsOf(msgs, StreamInventoryItems)
	require.Len(t, items, 2)
	assert.Equal(t, "IPOD2008PINK", items[0]["sku"])
	assert.Equal(t, "IPOD2008RED", items[1]["sku"])
}

func TestIncrementalResume(t *testing.T) {
	shop := newFakeShop(t, apiPrefix)
	shop.handleJSON("/customers.json", `{"customers":[
		{"id":1,"updated_at":"2024-03-01T00:00:00Z"},
		{"id":2,"updated_at":"2024-03-02T00:00:00Z"}]}`)

	cfg := testConfig(shop.URL + "/admin")
	cfg.StartDate = "2024-01-01"
	tap := newTestTap(t, cfg)

	state := singer.NewState()
	state.Advance(StreamCustomers, "updated_at", nil, "2024-03-01T00:00:00Z")

	msgs := runSync(t, tap, selectOnly(t, tap, StreamCustomers), state)

	reqs := shop.requestsFor(apiPrefix + "/customers.json")
	require.Len(t, reqs, 1)
	assert.Equal(t, "2024-03-01T00:00:00Z", reqs[0].Get("updated_at_min"))
	assert.Empty(t, reqs[0].Get("created_at_min"))

	records := recordsOf(msgs, StreamCustomers)
	require.Len(t, records, 1, "the row at the bookmark was emitted by the previous run")
	assert.Equal(t, json.Number("2"), records[0]["id"])

	v, _ := lastState(t, msgs).Bookmark(StreamCustomers, nil)
	assert.Equal(t, "2024-03-02T00:00:00Z", v)
}

func TestCheck(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		shop := newFakeShop(t, apiPrefix)
		shop.handleJSON("/shop.json", `{"shop":{"id":690933842,"name":"Apple Computers","myshopify_domain":"apple.myshopify.com"}}`)
		tap := newTestTap(t, testConfig(shop.URL+"/admin"))
		require.NoError(t, tap.Check(context.Background()))
	})

	t.Run("unauthorized", func(t *testing.T) {
		shop := newFakeShop(t, apiPrefix)
		shop.handle("/shop.json", func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, `{"errors":"[API] Invalid API key or access token"}`, http.StatusUnauthorized)
		})
		tap := newTestTap(t, testConfig(shop.URL+"/admin"))
		err := tap.Check(context.Background())
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeAuthentication))
	})
}

func TestDiscover(t *testing.T) {
	tap := newTestTap(t, testConfig("http://unused"))
	catalog, err := tap.Discover(context.Background())
	require.NoError(t, err)

	var names []string
	for _, e := range catalog.Streams {
		names = append(names, e.TapStreamID)
		assert.True(t, e.Selected(), e.TapStreamID)
	}
	assert.Equal(t, []string{
		StreamAbandonedCheckouts, StreamCollects, StreamCustomCollections, StreamCustomers,
		StreamLocations, StreamInventoryLevels, StreamInventoryItems, StreamMetafields,
		StreamOrders, StreamProducts, StreamTransactions, StreamRefunds, StreamUsers,
	}, names)

	levels := catalog.Get(StreamInventoryLevels)
	assert.Equal(t, []string{"inventory_item_id"}, levels.KeyProperties)
	assert.Equal(t, singer.ReplicationFullTable, levels.ReplicationMethod)

	collects := catalog.Get(StreamCollects)
	assert.Equal(t, "id", collects.ReplicationKey)

	about := tap.About()
	assert.Equal(t, Name, about.Name)
	assert.Len(t, about.Streams, 13)
	assert.Equal(t, []string{"store"}, about.Settings["required"])
	assert.Contains(t, about.Settings["properties"], "access_token")
}

func TestRegistered(t *testing.T) {
	assert.True(t, registry.HasTap(Name))

	tap, err := registry.CreateTap(Name, testConfig("http://unused"))
	require.NoError(t, err)
	assert.Equal(t, Name, tap.Name())
	require.NoError(t, tap.Close(context.Background()))
}
