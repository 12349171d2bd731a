// rawrsheets keeps a local copy of the allowlist spreadsheet fresh.
//
// Usage:
//
//	rawrsheets [--config=rawrsheets.yaml] [--api-key=KEY] [--redis-addr=host:6379]
//	           [--grpc-addr=:9090] [--metrics-addr=:9100] [--once]
//
// Flags override values from the config file.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Keksclan/goRawrSheets/internal/config"
)

// version is set at build time via -ldflags.
var version = "dev"

type flags struct {
	configPath    string
	spreadsheetID string
	apiKey        string
	redisAddr     string
	redisPrefix   string
	logLevel      string
	logFormat     string
	grpcAddr      string
	metricsAddr   string
	traceStdout   bool
	once          bool
}

func newRootCmd(fl *flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rawrsheets",
		Short: "Cache the allowlist spreadsheet locally",
		Long: `rawrsheets checks every poll period whether the cached allowlist is older
than the refresh interval and, if so, fetches every tab of the spreadsheet
and replaces the cached copy. Failed fetches leave the previous copy in place.`,
		Version:      version,
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			fc, err := loadConfig(cmd, fl)
			if err != nil {
				return err
			}
			return run(cmd, fc, fl.once)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&fl.configPath, "config", "c", "", "Path to a YAML config file")
	f.StringVar(&fl.spreadsheetID, "spreadsheet-id", "", "Spreadsheet to read (default: the built-in allowlist)")
	f.StringVar(&fl.apiKey, "api-key", "", "Google API key (default: $RAWRSHEETS_API_KEY)")
	f.StringVar(&fl.redisAddr, "redis-addr", "", "Redis address; empty keeps the cache in memory")
	f.StringVar(&fl.redisPrefix, "redis-prefix", "", "Prefix for Redis keys")
	f.StringVar(&fl.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	f.StringVar(&fl.logFormat, "log-format", "text", "Log format: text or json")
	f.StringVar(&fl.grpcAddr, "grpc-addr", "", "Serve the Status RPC on this address")
	f.StringVar(&fl.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	f.BoolVar(&fl.traceStdout, "trace-stdout", false, "Print trace spans to stdout")
	f.BoolVar(&fl.once, "once", false, "Run a single due-check and exit")
	return cmd
}

// loadConfig reads the config file, if any, and lays explicitly set flags
// over it.
func loadConfig(cmd *cobra.Command, fl *flags) (*config.File, error) {
	fc := &config.File{}
	if fl.configPath != "" {
		var err error
		if fc, err = config.Load(fl.configPath); err != nil {
			return nil, err
		}
	}

	set := cmd.Flags().Changed
	overlay := func(name string, dst *string, v string) {
		if set(name) || *dst == "" {
			*dst = v
		}
	}
	overlay("spreadsheet-id", &fc.Source.SpreadsheetID, fl.spreadsheetID)
	overlay("api-key", &fc.Source.APIKey, fl.apiKey)
	overlay("redis-addr", &fc.Redis.Addr, fl.redisAddr)
	overlay("redis-prefix", &fc.Redis.Prefix, fl.redisPrefix)
	overlay("log-level", &fc.Log.Level, fl.logLevel)
	overlay("log-format", &fc.Log.Format, fl.logFormat)
	overlay("grpc-addr", &fc.Server.GRPCAddr, fl.grpcAddr)
	overlay("metrics-addr", &fc.Server.MetricsAddr, fl.metricsAddr)
	if set("trace-stdout") {
		fc.Tracing.Stdout = fl.traceStdout
	}
	if fc.Source.APIKey == "" {
		fc.Source.APIKey = os.Getenv("RAWRSHEETS_API_KEY")
	}
	return fc, nil
}

func main() {
	if err := newRootCmd(&flags{}).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
