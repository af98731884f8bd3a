package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/suite"

	"github.com/Matatika/tap-shopify/pkg/compression"
	"github.com/Matatika/tap-shopify/pkg/config"
	"github.com/Matatika/tap-shopify/pkg/connector/core"
	"github.com/Matatika/tap-shopify/pkg/errors"
	"github.com/Matatika/tap-shopify/pkg/json"
	"github.com/Matatika/tap-shopify/pkg/singer"
	"github.com/Matatika/tap-shopify/pkg/testutil"
)

// fakeTap emits one record and one checkpoint for the orders stream.
type fakeTap struct {
	err      error
	gotState *singer.State
	// afterCheckpoint runs once the checkpoint has returned.
	afterCheckpoint func() error
}

func (f *fakeTap) Name() string                                      { return "tap-fake" }
func (f *fakeTap) Type() core.ConnectorType                          { return core.ConnectorTypeSource }
func (f *fakeTap) Version() string                                   { return "0.0.1" }
func (f *fakeTap) Discover(context.Context) (*singer.Catalog, error) { return &singer.Catalog{}, nil }
func (f *fakeTap) Check(context.Context) error                       { return nil }
func (f *fakeTap) About() *core.About                                { return &core.About{Name: f.Name()} }
func (f *fakeTap) Close(context.Context) error                       { return nil }

func (f *fakeTap) Sync(ctx context.Context, _ *singer.Catalog, st *singer.State, out core.MessageWriter, checkpoint core.Checkpointer) error {
	f.gotState = st.Clone()

	schema := map[string]interface{}{"type": "object"}
	if err := out.WriteSchema(singer.NewSchemaMessage("orders", schema, []string{"id"}, []string{"updated_at"})); err != nil {
		return err
	}
	rec := map[string]interface{}{"id": 1, "updated_at": "2024-01-02T00:00:00Z"}
	if err := out.WriteRecord("orders", rec, time.Now().UTC()); err != nil {
		return err
	}
	st.Advance("orders", "updated_at", nil, "2024-01-02T00:00:00Z")
	if err := out.WriteState(st); err != nil {
		return err
	}
	if err := checkpoint(ctx, st); err != nil {
		return err
	}
	if f.afterCheckpoint != nil {
		if err := f.afterCheckpoint(); err != nil {
			return err
		}
	}
	return f.err
}

type RunnerSuite struct {
	testutil.IntegrationTestSuite
}

func TestRunnerSuite(t *testing.T) {
	suite.Run(t, new(RunnerSuite))
}

func (s *RunnerSuite) config() *config.TapConfig {
	cfg := config.NewTapConfig()
	cfg.Store = "mock-store"
	cfg.State.Backend = "file"
	cfg.State.Path = filepath.Join(s.TempDir(), s.T().Name()+".state.json")
	s.Require().NoError(os.MkdirAll(filepath.Dir(cfg.State.Path), 0o755))
	return cfg
}

func (s *RunnerSuite) run(tap *fakeTap, cfg *config.TapConfig, opts SyncOptions) (*Result, error) {
	return s.runContext(s.Context(), tap, cfg, opts)
}

func (s *RunnerSuite) runContext(ctx context.Context, tap *fakeTap, cfg *config.TapConfig, opts SyncOptions) (*Result, error) {
	return NewRunner(tap, cfg, testutil.TestLogger(s.T())).Sync(ctx, opts)
}

func countLines(r io.Reader) int {
	n := 0
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		n++
	}
	return n
}

func (s *RunnerSuite) savedBookmark(cfg *config.TapConfig) interface{} {
	data, err := os.ReadFile(cfg.State.Path)
	s.Require().NoError(err)
	st, err := singer.ParseState(data)
	s.Require().NoError(err)
	v, _ := st.Bookmark("orders", nil)
	return v
}

func (s *RunnerSuite) TestSyncToStdout() {
	cfg := s.config()
	var stdout bytes.Buffer

	result, err := s.run(&fakeTap{}, cfg, SyncOptions{Stdout: &stdout})
	s.Require().NoError(err)

	s.Equal(int64(1), result.Records)
	s.Equal(int64(1), result.States)
	s.NotEmpty(result.RunID)
	s.Equal(3, countLines(&stdout))
	s.Equal("2024-01-02T00:00:00Z", s.savedBookmark(cfg))
}

func (s *RunnerSuite) TestResumesFromStore() {
	cfg := s.config()
	saved := singer.NewState()
	saved.Advance("orders", "updated_at", nil, "2024-01-01T00:00:00Z")
	data, err := json.Marshal(saved)
	s.Require().NoError(err)
	s.Require().NoError(os.WriteFile(cfg.State.Path, data, 0o600))

	tap := &fakeTap{}
	_, err = s.run(tap, cfg, SyncOptions{Stdout: io.Discard})
	s.Require().NoError(err)

	v, ok := tap.gotState.Bookmark("orders", nil)
	s.True(ok)
	s.Equal("2024-01-01T00:00:00Z", v)
}

func (s *RunnerSuite) TestStateFileOverridesStore() {
	cfg := s.config()
	s.Require().NoError(os.WriteFile(cfg.State.Path,
		[]byte(`{"bookmarks":{"orders":{"replication_key":"updated_at","replication_key_value":"2023-01-01T00:00:00Z"}}}`), 0o600))
	statePath := s.CreateTempFile("override.json",
		[]byte(`{"bookmarks":{"orders":{"replication_key":"updated_at","replication_key_value":"2023-06-01T00:00:00Z"}}}`))

	tap := &fakeTap{}
	_, err := s.run(tap, cfg, SyncOptions{Stdout: io.Discard, StatePath: statePath})
	s.Require().NoError(err)

	v, _ := tap.gotState.Bookmark("orders", nil)
	s.Equal("2023-06-01T00:00:00Z", v)
}

func (s *RunnerSuite) TestMissingStateFile() {
	_, err := s.run(&fakeTap{}, s.config(), SyncOptions{
		Stdout:    io.Discard,
		StatePath: filepath.Join(s.TempDir(), "missing.json"),
	})
	s.Require().Error(err)
	s.True(errors.IsType(err, errors.ErrorTypeFile))
}

func (s *RunnerSuite) TestCompressedOutputFile() {
	cfg := s.config()
	cfg.Output.Path = filepath.Join(s.TempDir(), "out.singer.gz")
	cfg.Output.Compression = string(compression.Gzip)
	var stdout bytes.Buffer

	_, err := s.run(&fakeTap{}, cfg, SyncOptions{Stdout: &stdout})
	s.Require().NoError(err)
	s.Zero(stdout.Len())

	f, err := os.Open(cfg.Output.Path)
	s.Require().NoError(err)
	defer f.Close()
	r, err := compression.NewReader(f, compression.Gzip)
	s.Require().NoError(err)
	defer r.Close()
	s.Equal(3, countLines(r))
}

func (s *RunnerSuite) TestUploadsOutputToS3() {
	fake := testutil.NewFakeS3(s.T())
	cfg := s.config()
	cfg.Output.S3 = fake.Location("singer", "runs/orders.singer")

	_, err := s.run(&fakeTap{}, cfg, SyncOptions{Stdout: io.Discard})
	s.Require().NoError(err)

	body, ok := fake.Object("singer", "runs/orders.singer")
	s.Require().True(ok)
	s.Equal(3, countLines(bytes.NewReader(body)))
}

func (s *RunnerSuite) TestRedisStateBackend() {
	mr := miniredis.RunT(s.T())
	cfg := s.config()
	cfg.State.Backend = "redis"
	cfg.State.RedisAddr = mr.Addr()

	_, err := s.run(&fakeTap{}, cfg, SyncOptions{Stdout: io.Discard})
	s.Require().NoError(err)

	data, err := mr.Get(cfg.State.Key)
	s.Require().NoError(err)
	s.Contains(data, "2024-01-02T00:00:00Z")
}

func (s *RunnerSuite) TestSyncErrorKeepsCheckpoint() {
	cfg := s.config()
	tap := &fakeTap{err: errors.New(errors.ErrorTypeConnection, "connection reset")}

	result, err := s.run(tap, cfg, SyncOptions{Stdout: io.Discard})
	s.Require().Error(err)
	s.True(errors.IsType(err, errors.ErrorTypeConnection))
	s.Require().NotNil(result)
	s.Equal(int64(1), result.Records)
	s.Equal("2024-01-02T00:00:00Z", s.savedBookmark(cfg))
}

func (s *RunnerSuite) TestCompressedOutputDecodableAtCheckpoint() {
	for _, algorithm := range []compression.Algorithm{compression.Gzip, compression.Snappy} {
		s.Run(string(algorithm), func() {
			cfg := s.config()
			cfg.Output.Path = filepath.Join(s.TempDir(), "checkpoint.singer"+algorithm.Extension())
			cfg.Output.Compression = string(algorithm)

			var atCheckpoint []byte
			tap := &fakeTap{afterCheckpoint: func() error {
				f, err := os.Open(cfg.Output.Path)
				s.Require().NoError(err)
				defer f.Close()
				r, err := compression.NewReader(f, algorithm)
				s.Require().NoError(err)
				defer r.Close()
				// the stream is not finished yet, so reading ends early
				atCheckpoint, _ = io.ReadAll(r)
				return nil
			}}

			_, err := s.run(tap, cfg, SyncOptions{Stdout: io.Discard})
			s.Require().NoError(err)

			s.Equal(3, countLines(bytes.NewReader(atCheckpoint)))
			s.Contains(string(atCheckpoint), `"type":"STATE"`)
			s.Equal("2024-01-02T00:00:00Z", s.savedBookmark(cfg))
		})
	}
}

func (s *RunnerSuite) TestInterruptedRunStillUploads() {
	fake := testutil.NewFakeS3(s.T())
	cfg := s.config()
	cfg.Output.S3 = fake.Location("singer", "runs/interrupted.singer")

	ctx, cancel := context.WithCancel(s.Context())
	defer cancel()
	tap := &fakeTap{afterCheckpoint: func() error {
		cancel()
		return ctx.Err()
	}}

	_, err := s.runContext(ctx, tap, cfg, SyncOptions{Stdout: io.Discard})
	s.Require().Error(err)
	s.ErrorIs(err, context.Canceled)

	body, ok := fake.Object("singer", "runs/interrupted.singer")
	s.Require().True(ok, "output uploaded")
	s.Equal(3, countLines(bytes.NewReader(body)))
	s.Equal("2024-01-02T00:00:00Z", s.savedBookmark(cfg))
}

func (s *RunnerSuite) TestFailedUploadKeepsOutputAndSkipsState() {
	tmp := s.T().TempDir()
	s.T().Setenv("TMPDIR", tmp)

	fake := testutil.NewFakeS3(s.T())
	fake.FailPuts(http.StatusForbidden)
	cfg := s.config()
	cfg.Output.S3 = fake.Location("singer", "runs/denied.singer")

	result, err := s.run(&fakeTap{}, cfg, SyncOptions{Stdout: io.Discard})
	s.Require().Error(err)
	s.True(errors.IsType(err, errors.ErrorTypeConnection))
	s.Require().NotNil(result)
	s.Equal(int64(1), result.Records)

	_, err = os.Stat(cfg.State.Path)
	s.True(os.IsNotExist(err), "no bookmark saved for output that was not uploaded")

	kept, err := filepath.Glob(filepath.Join(tmp, "tap-shopify-*.singer"))
	s.Require().NoError(err)
	s.Require().Len(kept, 1)
	f, err := os.Open(kept[0])
	s.Require().NoError(err)
	defer f.Close()
	s.Equal(3, countLines(f))
}
