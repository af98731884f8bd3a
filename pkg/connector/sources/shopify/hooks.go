package shopify

import (
	"net/url"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/Matatika/tap-shopify/pkg/config"
	"github.com/Matatika/tap-shopify/pkg/connector/base"
	"github.com/Matatika/tap-shopify/pkg/json"
	"github.com/Matatika/tap-shopify/pkg/metrics"
	"github.com/Matatika/tap-shopify/pkg/singer"
)

// Dedup reasons reported in metrics.RecordsDeduplicated.
const (
	dedupLastID   = "last_id"
	dedupBookmark = "bookmark"
)

// paramsFunc adds stream specific parameters to a first-page query.
type paramsFunc func(params url.Values, req *base.PageRequest)

// firstPageParams returns the URLParams hook shared by every stream: the
// page size, then updated_at_min from the bookmark or created_at_min from
// the start date, then the stream's own parameters.
func firstPageParams(cfg *config.TapConfig, replicationKey string, extra ...paramsFunc) func(*base.PageRequest) url.Values {
	return func(req *base.PageRequest) url.Values {
		params := url.Values{}
		params.Set("limit", strconv.Itoa(cfg.PageSize))

		switch bookmark := req.Partition.StartingBookmark; {
		case bookmark != nil && replicationKey == "updated_at":
			params.Set("updated_at_min", singer.FormatValue(bookmark))
		case bookmark == nil && cfg.StartDate != "":
			params.Set("created_at_min", cfg.StartDate)
		}

		for _, fn := range extra {
			fn(params, req)
		}
		return params
	}
}

// sinceID resumes id-replicated streams after the bookmarked id.
func sinceID(params url.Values, req *base.PageRequest) {
	if v := req.Partition.StartingBookmark; v != nil {
		params.Set("since_id", singer.FormatValue(v))
	}
}

// anyStatus includes closed and cancelled orders, which the API hides by
// default.
func anyStatus(params url.Values, _ *base.PageRequest) {
	params.Set("status", "any")
}

// locationIDs restricts inventory levels to the parent location.
func locationIDs(params url.Values, req *base.PageRequest) {
	if v, ok := req.Partition.Context["location_id"]; ok && v != nil {
		params.Set("location_ids", singer.FormatValue(v))
	}
}

// deduper drops rows the API repeats: the row just emitted, seen again at
// the top of the next page, and rows whose updated_at equals the bookmark
// the partition resumed from, which the previous run already emitted.
type deduper struct {
	stream string
	lastID string
}

func newDeduper(stream string) *deduper {
	return &deduper{stream: stream}
}

func (d *deduper) keep(rec base.Record, part *base.Partition) bool {
	id := ""
	if v := rec["id"]; v != nil {
		id = singer.FormatValue(v)
	}
	if id != "" && id == d.lastID {
		metrics.RecordsDeduplicated.WithLabelValues(d.stream, dedupLastID).Inc()
		return false
	}

	if start := part.StartingBookmark; start != nil {
		if updated := rec["updated_at"]; updated != nil && singer.CompareValues(updated, start) == 0 {
			metrics.RecordsDeduplicated.WithLabelValues(d.stream, dedupBookmark).Inc()
			return false
		}
	}

	d.lastID = id
	return true
}

func (d *deduper) reset(*base.Partition) {
	d.lastID = ""
}

// postProcess chains deduplication with optional record transforms.
func (d *deduper) postProcess(transforms ...func(base.Record)) func(base.Record, *base.Partition) (base.Record, bool) {
	return func(rec base.Record, part *base.Partition) (base.Record, bool) {
		if !d.keep(rec, part) {
			return nil, false
		}
		for _, fn := range transforms {
			fn(rec)
		}
		return rec, true
	}
}

// decimalFields converts the named string amounts to decimals so they are
// written as JSON numbers without float rounding. Values that do not parse
// are left as they are and fail validation.
func decimalFields(fields ...string) func(base.Record) {
	return func(rec base.Record) {
		for _, f := range fields {
			if d, ok := toDecimal(rec[f]); ok {
				rec[f] = d
			}
		}
	}
}

func toDecimal(v interface{}) (decimal.Decimal, bool) {
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case json.Number:
		s = t.String()
	default:
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

// contextFrom returns a ChildContext hook passing field of each record to
// child streams as key.
func contextFrom(key, field string) func(base.Record, *base.Partition) singer.Context {
	return func(rec base.Record, _ *base.Partition) singer.Context {
		v := rec[field]
		if v == nil {
			return nil
		}
		return singer.Context{key: v}
	}
}
