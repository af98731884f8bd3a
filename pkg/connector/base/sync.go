package base

import (
	"context"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/Matatika/tap-shopify/pkg/clients"
	"github.com/Matatika/tap-shopify/pkg/connector/core"
	"github.com/Matatika/tap-shopify/pkg/errors"
	"github.com/Matatika/tap-shopify/pkg/logger"
	"github.com/Matatika/tap-shopify/pkg/metrics"
	"github.com/Matatika/tap-shopify/pkg/observability"
	"github.com/Matatika/tap-shopify/pkg/schema"
	"github.com/Matatika/tap-shopify/pkg/singer"
)

// Syncer holds a tap's stream tree and runs syncs over it.
type Syncer struct {
	tap      *BaseTap
	streams  []*Stream
	byName   map[string]*Stream
	children map[string][]*Stream
}

// NewSyncer builds the stream tree. Parents must be declared before
// their children.
func NewSyncer(tap *BaseTap, streams []*Stream) (*Syncer, error) {
	s := &Syncer{
		tap:      tap,
		streams:  streams,
		byName:   make(map[string]*Stream, len(streams)),
		children: make(map[string][]*Stream),
	}
	for _, st := range streams {
		if _, dup := s.byName[st.Name]; dup {
			return nil, errors.Newf(errors.ErrorTypeConfig, "duplicate stream %s", st.Name)
		}
		if st.Parent != "" {
			if _, ok := s.byName[st.Parent]; !ok {
				return nil, errors.Newf(errors.ErrorTypeConfig, "stream %s declared before its parent %s", st.Name, st.Parent)
			}
			s.children[st.Parent] = append(s.children[st.Parent], st)
		}
		s.byName[st.Name] = st
	}
	return s, nil
}

// Streams returns the streams in declaration order.
func (s *Syncer) Streams() []*Stream {
	return s.streams
}

// Stream returns the named stream, or nil.
func (s *Syncer) Stream(name string) *Stream {
	return s.byName[name]
}

// Catalog returns the discovered catalog. Every stream is selected by
// default.
func (s *Syncer) Catalog() *singer.Catalog {
	cat := &singer.Catalog{Streams: make([]*singer.CatalogEntry, 0, len(s.streams))}
	for _, st := range s.streams {
		key := ""
		if st.IsIncremental() {
			key = st.ReplicationKey
		}
		cat.Streams = append(cat.Streams, singer.NewCatalogEntry(singer.EntryOptions{
			Name:              st.Name,
			Schema:            schema.ToJSONSchema(st.Schema),
			KeyProperties:     st.PrimaryKeys,
			ReplicationKey:    key,
			ReplicationMethod: st.ReplicationMethod,
			SelectedByDefault: true,
			Parent:            st.Parent,
		}))
	}
	return cat
}

// StreamInfos summarizes the streams for About.
func (s *Syncer) StreamInfos() []core.StreamInfo {
	infos := make([]core.StreamInfo, 0, len(s.streams))
	for _, st := range s.streams {
		info := core.StreamInfo{
			Name:              st.Name,
			Parent:            st.Parent,
			KeyProperties:     st.PrimaryKeys,
			ReplicationMethod: st.ReplicationMethod,
		}
		if st.IsIncremental() {
			info.ReplicationKey = st.ReplicationKey
		}
		infos = append(infos, info)
	}
	return infos
}

// Sync runs the selected streams in declaration order. Child streams run
// once per parent record, with the context the parent's ChildContext hook
// returns. A selected child forces its ancestors to be fetched, but only
// selected streams emit records. STATE is written after every top-level
// stream and after child partitions that moved a bookmark.
func (s *Syncer) Sync(ctx context.Context, catalog *singer.Catalog, state *singer.State, out core.MessageWriter, checkpoint core.Checkpointer) error {
	if state == nil {
		state = singer.NewState()
	}

	selected, excluded, err := s.selection(catalog)
	if err != nil {
		return err
	}

	cfg := s.tap.GetConfig()
	r := &syncRun{
		Syncer:     s,
		out:        out,
		checkpoint: checkpoint,
		state:      state,
		selected:   selected,
		needed:     s.needed(selected),
		excluded:   excluded,
		apiBase:    cfg.APIBase(),
		failFast:   cfg.Reliability.FailFast,
		progress:   NewProgressReporter(s.tap.GetLogger(), cfg.Observability.ProgressInterval),
	}

	for _, st := range s.streams {
		if !selected[st.Name] {
			continue
		}
		if err := out.WriteSchema(r.schemaMessage(st)); err != nil {
			return err
		}
	}

	r.progress.Start()
	defer r.progress.Stop()

	for _, st := range s.streams {
		if st.Parent != "" || !r.needed[st.Name] {
			continue
		}
		if err := r.syncStream(ctx, st); err != nil {
			return err
		}
	}
	return nil
}

// selection resolves the selected streams and their excluded properties
// from the catalog, or from the configured stream names without one.
func (s *Syncer) selection(catalog *singer.Catalog) (map[string]bool, map[string]map[string]bool, error) {
	selected := make(map[string]bool)
	excluded := make(map[string]map[string]bool)

	if catalog != nil {
		for _, entry := range catalog.Streams {
			if s.byName[entry.TapStreamID] == nil {
				s.tap.GetLogger().Warn("catalog stream not offered by tap", zap.String("stream", entry.TapStreamID))
				continue
			}
			if entry.Selected() {
				selected[entry.TapStreamID] = true
				excluded[entry.TapStreamID] = entry.ExcludedProperties()
			}
		}
		return selected, excluded, nil
	}

	names := s.tap.GetConfig().Streams
	if len(names) == 0 {
		for _, st := range s.streams {
			selected[st.Name] = true
		}
		return selected, excluded, nil
	}
	for _, name := range names {
		if s.byName[name] == nil {
			return nil, nil, errors.Newf(errors.ErrorTypeConfig, "unknown stream %q", name)
		}
		selected[name] = true
	}
	return selected, excluded, nil
}

// needed adds the ancestors of every selected stream.
func (s *Syncer) needed(selected map[string]bool) map[string]bool {
	needed := make(map[string]bool, len(selected))
	for name := range selected {
		for st := s.byName[name]; st != nil; st = s.byName[st.Parent] {
			needed[st.Name] = true
		}
	}
	return needed
}

type syncRun struct {
	*Syncer
	out        core.MessageWriter
	checkpoint core.Checkpointer
	state      *singer.State
	selected   map[string]bool
	needed     map[string]bool
	excluded   map[string]map[string]bool
	apiBase    string
	failFast   bool
	progress   *ProgressReporter
}

func (r *syncRun) schemaMessage(st *Stream) *singer.SchemaMessage {
	doc := schema.ToJSONSchema(st.Schema)
	if props, ok := doc["properties"].(map[string]interface{}); ok {
		for name := range r.excluded[st.Name] {
			delete(props, name)
		}
	}
	var bookmarks []string
	if st.IsIncremental() {
		bookmarks = []string{st.ReplicationKey}
	}
	return singer.NewSchemaMessage(st.Name, doc, st.PrimaryKeys, bookmarks)
}

func (r *syncRun) syncStream(ctx context.Context, st *Stream) (err error) {
	ctx = context.WithValue(ctx, logger.StreamKey, st.Name)
	ctx, span := observability.StartSpan(ctx, "stream.sync", attribute.String("stream", st.Name))
	defer func() { observability.EndSpan(span, err) }()

	log := logger.WithContext(ctx)
	start := time.Now()
	log.Info("stream sync started")

	if err := r.syncPartition(ctx, st, nil); err != nil {
		log.Error("stream sync failed", zap.Error(err))
		return err
	}
	if err := r.emitState(ctx); err != nil {
		return err
	}

	log.Info("stream sync completed",
		zap.Int64("records", r.progress.Totals()[st.Name]),
		zap.Duration("duration", time.Since(start)))
	return nil
}

func (r *syncRun) syncPartition(ctx context.Context, st *Stream, pctx singer.Context) error {
	part := &Partition{Stream: st.Name, Context: pctx}
	if st.IsIncremental() {
		if v, ok := r.state.Bookmark(st.Name, pctx); ok {
			part.StartingBookmark = v
		}
	}

	target := st.URL(r.apiBase, pctx)
	req := &PageRequest{Partition: part}
	visited := make(map[string]bool)

	for {
		var params url.Values
		if req.IsFirstPage() {
			if st.Hooks.URLParams != nil {
				params = st.Hooks.URLParams(req)
			}
		} else {
			var err error
			if params, err = NextPageParams(req.NextPageToken); err != nil {
				return err
			}
		}

		resp, err := r.tap.Get(ctx, st.Name, target, params)
		if err != nil {
			return errors.Wrap(err, typeOf(err), "failed to fetch "+st.Name).
				WithDetail("stream", st.Name).
				WithDetail("context", pctx)
		}
		metrics.PagesFetched.WithLabelValues(st.Name).Inc()

		records, err := st.ParseRecords(resp.Body)
		if err != nil {
			return err
		}
		for _, rec := range records {
			if err := r.processRecord(ctx, st, part, rec); err != nil {
				return err
			}
		}

		next := clients.NextLink(resp.Header)
		if next == "" || isEmptyBody(resp.Body) || visited[next] {
			break
		}
		visited[next] = true
		req.NextPageToken = next
	}

	if st.Hooks.PaginationDone != nil {
		st.Hooks.PaginationDone(part)
	}

	if len(pctx) > 0 && part.advanced {
		return r.emitState(ctx)
	}
	return nil
}

func (r *syncRun) processRecord(ctx context.Context, st *Stream, part *Partition, rec Record) error {
	if st.Hooks.PostProcess != nil {
		var keep bool
		if rec, keep = st.Hooks.PostProcess(rec, part); !keep {
			return nil
		}
	}

	if r.selected[st.Name] {
		if err := r.emitRecord(st, part, rec); err != nil {
			return err
		}
	}

	for _, child := range r.children[st.Name] {
		if !r.needed[child.Name] || st.Hooks.ChildContext == nil {
			continue
		}
		cctx := st.Hooks.ChildContext(rec, part)
		if len(cctx) == 0 {
			continue
		}
		if err := r.syncPartition(ctx, child, cctx); err != nil {
			return err
		}
	}
	return nil
}

func (r *syncRun) emitRecord(st *Stream, part *Partition, rec Record) error {
	out := rec
	if ex := r.excluded[st.Name]; len(ex) > 0 {
		out = make(Record, len(rec))
		for k, v := range rec {
			if !ex[k] {
				out[k] = v
			}
		}
	}

	if err := schema.Validate(st.Schema, out); err != nil {
		metrics.ValidationFailures.WithLabelValues(st.Name).Inc()
		if r.failFast {
			return err
		}
		r.tap.GetErrorHandler().RecordError(err,
			zap.String("stream", st.Name),
			zap.Any("id", rec["id"]))
	}

	if err := r.out.WriteRecord(st.Name, out, time.Now().UTC()); err != nil {
		return err
	}
	metrics.RecordsExtracted.WithLabelValues(st.Name).Inc()
	r.progress.IncrementProcessed(st.Name, 1)

	if st.IsIncremental() && r.state.Advance(st.Name, st.ReplicationKey, part.Context, rec[st.ReplicationKey]) {
		part.advanced = true
	}
	return nil
}

func (r *syncRun) emitState(ctx context.Context) error {
	if err := r.out.WriteState(r.state); err != nil {
		return err
	}
	if r.checkpoint != nil {
		if err := r.checkpoint(ctx, r.state); err != nil {
			return errors.Wrap(err, errors.ErrorTypeState, "failed to persist state")
		}
	}
	return nil
}
