// Package pipeline runs a tap sync end to end: it resolves the starting
// state, opens the message sink, drives the tap and persists every state
// checkpoint the tap emits.
//
// # Overview
//
// A sync run consists of:
//   - State: loaded from the --state file or the configured state store
//   - Sink: stdout, a (compressed) file, or a file uploaded to S3
//   - Tap: writes SCHEMA, RECORD and STATE messages to the sink
//   - Checkpoints: each STATE is flushed to the sink, then saved to the store;
//     with S3 output the last one is saved after the upload succeeds
//   - Observability: optional Prometheus endpoint and stderr tracing
//
// # Basic Usage
//
//	runner := pipeline.NewRunner(tap, cfg, logger)
//	result, err := runner.Sync(ctx, pipeline.SyncOptions{
//	    Catalog:   catalog,
//	    StatePath: "state.json",
//	})
package pipeline

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Matatika/tap-shopify/pkg/config"
	"github.com/Matatika/tap-shopify/pkg/connector/core"
	"github.com/Matatika/tap-shopify/pkg/errors"
	"github.com/Matatika/tap-shopify/pkg/logger"
	"github.com/Matatika/tap-shopify/pkg/metrics"
	"github.com/Matatika/tap-shopify/pkg/observability"
	"github.com/Matatika/tap-shopify/pkg/singer"
	"github.com/Matatika/tap-shopify/pkg/sink"
	"github.com/Matatika/tap-shopify/pkg/state"
)

// Runner executes sync runs of one tap.
type Runner struct {
	tap    core.Tap
	cfg    *config.TapConfig
	logger *zap.Logger
}

// SyncOptions are the per-run inputs of a sync.
type SyncOptions struct {
	// Catalog selects streams and properties; nil syncs the configured
	// streams, or all of them.
	Catalog *singer.Catalog
	// StatePath is a state file that overrides the state store as the
	// starting state.
	StatePath string
	// Stdout receives messages when no output file is configured.
	// Defaults to os.Stdout.
	Stdout io.Writer
}

// Result summarizes a finished run.
type Result struct {
	RunID    string
	Records  int64
	States   int64
	Duration time.Duration
	State    *singer.State
}

// NewRunner creates a runner for tap.
func NewRunner(tap core.Tap, cfg *config.TapConfig, logger *zap.Logger) *Runner {
	return &Runner{
		tap:    tap,
		cfg:    cfg,
		logger: logger,
	}
}

// Sync runs one sync. The returned Result is non-nil whenever the sink was
// opened, so callers can report partial progress on failure.
func (r *Runner) Sync(ctx context.Context, opts SyncOptions) (*Result, error) {
	start := time.Now()
	runID := uuid.NewString()
	ctx = context.WithValue(ctx, logger.RunIDKey, runID)
	ctx = context.WithValue(ctx, logger.TapKey, r.tap.Name())
	log := r.logger.With(zap.String("run_id", runID))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if addr := r.cfg.Observability.MetricsAddr; addr != "" {
		go func() {
			if err := metrics.Serve(ctx, addr); err != nil {
				log.Warn("metrics server stopped", zap.String("addr", addr), zap.Error(err))
			}
		}()
	}

	if r.cfg.Observability.EnableTracing {
		shutdown, err := observability.InitTracing(observability.TracingConfig{
			ServiceName:    r.tap.Name(),
			ServiceVersion: r.tap.Version(),
			SamplingRate:   1,
		})
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to initialize tracing")
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				log.Warn("failed to flush traces", zap.Error(err))
			}
		}()
	}

	store, err := state.New(ctx, r.cfg.State)
	if err != nil {
		return nil, err
	}
	defer store.Close() //nolint:errcheck

	initial, err := r.startingState(ctx, store, opts.StatePath)
	if err != nil {
		return nil, err
	}

	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	out, err := sink.Open(r.cfg.Output, stdout, log)
	if err != nil {
		return nil, err
	}
	w := singer.NewWriter(out.Writer(), r.cfg.Performance.BufferSize)

	// A checkpoint is saved only once the messages before it are durable:
	// flushed through the compressor for local output, or uploaded when
	// the output goes to S3.
	var last, pending *singer.State
	checkpoint := func(ctx context.Context, st *singer.State) error {
		if err := w.Flush(); err != nil {
			return err
		}
		if err := out.Flush(); err != nil {
			return err
		}
		last = st.Clone()
		if out.Deferred() {
			pending = last
			return nil
		}
		return store.Save(ctx, st)
	}

	log.Info("starting sync",
		zap.String("state_backend", backendName(r.cfg.State.Backend)),
		zap.String("output", outputName(out)))

	syncErr := r.tap.Sync(ctx, opts.Catalog, initial, w, checkpoint)

	// The output is finished even when the run was interrupted.
	finishCtx := context.WithoutCancel(ctx)
	if err := w.Flush(); err != nil {
		syncErr = errors.Join(syncErr, err)
	}
	if err := out.Close(finishCtx); err != nil {
		syncErr = errors.Join(syncErr, err)
	} else if pending != nil {
		if err := store.Save(finishCtx, pending); err != nil {
			syncErr = errors.Join(syncErr, err)
		}
	}

	records, states := w.Counts()
	result := &Result{
		RunID:    runID,
		Records:  records,
		States:   states,
		Duration: time.Since(start),
		State:    last,
	}

	if syncErr != nil {
		log.Error("sync failed",
			zap.Int64("records", records),
			zap.Duration("duration", result.Duration),
			zap.Error(syncErr))
		return result, syncErr
	}

	log.Info("sync completed",
		zap.Int64("records", records),
		zap.Int64("states", states),
		zap.Duration("duration", result.Duration),
		zap.Float64("records_per_second", float64(records)/result.Duration.Seconds()))
	return result, nil
}

// startingState prefers an explicit state file over the store.
func (r *Runner) startingState(ctx context.Context, store state.Store, path string) (*singer.State, error) {
	if path == "" {
		return store.Load(ctx)
	}

	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the --state flag
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to read state file").
			WithDetail("path", path)
	}
	st, err := singer.ParseState(data)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeState, "invalid state file").
			WithDetail("path", path)
	}
	return st, nil
}

func backendName(b string) string {
	if b == state.BackendMemory {
		return "memory"
	}
	return b
}

func outputName(s *sink.Sink) string {
	if s.Path() == "" {
		return "stdout"
	}
	return s.Path()
}
