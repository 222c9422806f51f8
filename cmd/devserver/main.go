// Command devserver serves the form feeds kept in a SQLite or PostgreSQL
// database, mounted the way ODK Central mounts them.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const (
	envAddr          = "ODATA_ADDR"
	envDialect       = "ODATA_DIALECT"
	envDSN           = "ODATA_DSN"
	envFixture       = "ODATA_FIXTURE"
	envLogLevel      = "ODATA_LOG_LEVEL"
	envLogFormat     = "ODATA_LOG_FORMAT"
	envDefaultMaxTop = "ODATA_DEFAULT_MAX_TOP"
	envGeoEncoding   = "ODATA_GEO_ENCODING"
	envServerTiming  = "ODATA_SERVER_TIMING"
)

// config holds the settings shared by all commands. Flags default to the
// environment, which may come from a .env file.
type config struct {
	Addr          string
	Dialect       string
	DSN           string
	Fixture       string
	LogLevel      string
	LogFormat     string
	DefaultMaxTop int
	GeoEncoding   string
	ServerTiming  bool
}

func main() {
	// Load .env file if it exists (optional - fails silently if not found)
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := &config{}
	rootCmd := &cobra.Command{
		Use:          "devserver",
		Short:        "Serve form submissions as OData feeds",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return err
			}
			slog.SetDefault(logger)
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfg.Dialect, "dialect", getEnv(envDialect, "sqlite"), "database dialect (sqlite or postgres)")
	flags.StringVar(&cfg.DSN, "dsn", getEnv(envDSN, "file:devserver.db"), "database connection string")
	flags.StringVar(&cfg.LogLevel, "log-level", getEnv(envLogLevel, "info"), "log level (debug, info, warn, error)")
	flags.StringVar(&cfg.LogFormat, "log-format", getEnv(envLogFormat, "text"), "log format (text or json)")

	rootCmd.AddCommand(newServeCmd(cfg), newImportCmd(cfg))
	return rootCmd
}

func newLogger(level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch format {
	case "text":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stdout, opts)), nil
	}
	return nil, fmt.Errorf("invalid log format %q", format)
}

// getEnv returns the environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return value
}
