package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/Matatika/tap-shopify/internal/pipeline"
	"github.com/Matatika/tap-shopify/pkg/config"
	"github.com/Matatika/tap-shopify/pkg/connector/core"
	"github.com/Matatika/tap-shopify/pkg/connector/sources"
	"github.com/Matatika/tap-shopify/pkg/connector/sources/shopify"
	"github.com/Matatika/tap-shopify/pkg/json"
	"github.com/Matatika/tap-shopify/pkg/logger"
	"github.com/Matatika/tap-shopify/pkg/singer"
)

// flags shared by every command
type flags struct {
	configFile  string
	catalogFile string
	stateFile   string
	logLevel    string
	metricsAddr string
	trace       bool

	// Singer-style invocation without a subcommand
	discover bool
	about    bool
	format   string
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load() // Ignore error if .env doesn't exist

	if err := newRootCommand(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand(stdout io.Writer) *cobra.Command {
	f := &flags{}

	root := &cobra.Command{
		Use:   shopify.Name,
		Short: "Singer tap for the Shopify Admin REST API",
		Long: `tap-shopify extracts Shopify Admin resources (orders, customers, products,
inventory and more) and writes them to stdout as Singer SCHEMA, RECORD and
STATE messages. Logs go to stderr.

Singer-style invocation is supported:
  tap-shopify --config config.json --discover > catalog.json
  tap-shopify --config config.json --catalog catalog.json --state state.json`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch {
			case f.about:
				return runAbout(f, stdout)
			case f.discover:
				return runDiscover(cmd.Context(), f, stdout)
			case f.configFile != "":
				return runSync(cmd.Context(), f, stdout)
			default:
				return cmd.Help()
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&f.configFile, "config", "c", "", "Path to the tap configuration file (JSON or YAML)")
	pf.StringVar(&f.logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides the config file")
	pf.StringVar(&f.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address during sync, e.g. :9090")
	pf.BoolVar(&f.trace, "trace", false, "Export OpenTelemetry spans to stderr")

	root.Flags().StringVar(&f.catalogFile, "catalog", "", "Path to the catalog selecting streams and properties")
	root.Flags().StringVar(&f.stateFile, "state", "", "Path to a state file to resume from")
	root.Flags().BoolVar(&f.discover, "discover", false, "Write the catalog to stdout")
	root.Flags().BoolVar(&f.about, "about", false, "Write the tap description to stdout")
	root.Flags().StringVar(&f.format, "format", "json", "Output format of --about (json, yaml)")

	// Sync command
	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Extract the selected streams",
		Long: `Extract the selected streams and write Singer messages to stdout, or to
the configured output file.

Example:
  tap-shopify sync --config config.json --catalog catalog.json --state state.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd.Context(), f, stdout)
		},
	}
	syncCmd.Flags().StringVar(&f.catalogFile, "catalog", "", "Path to the catalog selecting streams and properties")
	syncCmd.Flags().StringVar(&f.stateFile, "state", "", "Path to a state file to resume from")
	root.AddCommand(syncCmd)

	// Discover command
	root.AddCommand(&cobra.Command{
		Use:   "discover",
		Short: "Write the catalog of every stream to stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiscover(cmd.Context(), f, stdout)
		},
	})

	// Check command
	root.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Verify the store URL and credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd.Context(), f, stdout)
		},
	})

	// About command
	aboutCmd := &cobra.Command{
		Use:   "about",
		Short: "Describe the tap, its settings and streams",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAbout(f, stdout)
		},
	}
	aboutCmd.Flags().StringVar(&f.format, "format", "json", "Output format (json, yaml)")
	root.AddCommand(aboutCmd)

	// Streams command
	root.AddCommand(&cobra.Command{
		Use:   "streams",
		Short: "List the available streams",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStreams(f, stdout)
		},
	})

	// Version command
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(stdout, "%s v%s\n", shopify.Name, shopify.Version)
			fmt.Fprintf(stdout, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(stdout, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	return root
}

// loadConfig reads the config file, applies flag overrides and initializes
// the global logger. Without a config file the defaults are used.
func loadConfig(f *flags) (*config.TapConfig, error) {
	var (
		cfg *config.TapConfig
		err error
	)
	if f.configFile != "" {
		cfg, err = config.Load(f.configFile)
		if err != nil {
			return nil, fmt.Errorf("configuration error: %w", err)
		}
	} else {
		cfg = config.NewTapConfig()
	}

	if f.logLevel != "" {
		cfg.Observability.LogLevel = f.logLevel
	}
	if f.metricsAddr != "" {
		cfg.Observability.MetricsAddr = f.metricsAddr
	}
	if f.trace {
		cfg.Observability.EnableTracing = true
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Encoding:    cfg.Observability.LogFormat,
		OutputPaths: []string{"stderr"},
	}); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, nil
}

func newTap(f *flags) (core.Tap, *config.TapConfig, error) {
	cfg, err := loadConfig(f)
	if err != nil {
		return nil, nil, err
	}
	tap, err := sources.NewTap(shopify.Name, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create tap: %w", err)
	}
	return tap, cfg, nil
}

// signalContext cancels on SIGINT or SIGTERM so a sync stops after the
// request in flight.
func signalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

func runSync(ctx context.Context, f *flags, stdout io.Writer) error {
	if f.configFile == "" {
		return fmt.Errorf("sync requires --config")
	}
	tap, cfg, err := newTap(f)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext(ctx)
	defer cancel()
	defer tap.Close(ctx) //nolint:errcheck

	var catalog *singer.Catalog
	if f.catalogFile != "" {
		catalog, err = singer.LoadCatalog(f.catalogFile)
		if err != nil {
			return fmt.Errorf("catalog error: %w", err)
		}
	}

	log := logger.Get().With(zap.String("component", "tap-shopify-cli"))
	runner := pipeline.NewRunner(tap, cfg, log)
	if _, err := runner.Sync(ctx, pipeline.SyncOptions{
		Catalog:   catalog,
		StatePath: f.stateFile,
		Stdout:    stdout,
	}); err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}
	return nil
}

func runDiscover(ctx context.Context, f *flags, stdout io.Writer) error {
	tap, _, err := newTap(f)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext(ctx)
	defer cancel()
	defer tap.Close(ctx) //nolint:errcheck

	catalog, err := tap.Discover(ctx)
	if err != nil {
		return fmt.Errorf("discovery failed: %w", err)
	}
	return writeJSON(stdout, catalog)
}

func runCheck(ctx context.Context, f *flags, stdout io.Writer) error {
	tap, cfg, err := newTap(f)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext(ctx)
	defer cancel()
	defer tap.Close(ctx) //nolint:errcheck

	if err := tap.Check(ctx); err != nil {
		return fmt.Errorf("check failed: %w", err)
	}
	fmt.Fprintf(stdout, "Connected to %s\n", cfg.APIBase())
	return nil
}

func runAbout(f *flags, stdout io.Writer) error {
	tap, _, err := newTap(f)
	if err != nil {
		return err
	}
	defer tap.Close(context.Background()) //nolint:errcheck

	about := tap.About()
	switch f.format {
	case "json":
		return writeJSON(stdout, about)
	case "yaml":
		enc := yaml.NewEncoder(stdout)
		enc.SetIndent(2)
		if err := enc.Encode(about); err != nil {
			return fmt.Errorf("failed to encode about: %w", err)
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q, expected json or yaml", f.format)
	}
}

func runStreams(f *flags, stdout io.Writer) error {
	tap, _, err := newTap(f)
	if err != nil {
		return err
	}
	defer tap.Close(context.Background()) //nolint:errcheck

	fmt.Fprintln(stdout, "Available Streams:")
	for _, s := range tap.About().Streams {
		line := fmt.Sprintf("  - %-20s %-11s", s.Name, s.ReplicationMethod)
		if s.Parent != "" {
			line += " (child of " + s.Parent + ")"
		}
		fmt.Fprintln(stdout, line)
	}
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
