package config

import (
	"flag"
	"io"
	"time"

	"github.com/dmitrijs2005/estatesync/internal/flagx"
)

var configFlags = []string{
	"-base-url", "-user", "-timeout",
	"-journal-driver", "-journal-dsn",
	"-s3-region", "-s3-endpoint",
	"-log-level", "-log-format", "-metrics-addr",
}

// parseFlags populates cfg from the configuration flags in args. Other
// flags are filtered out with flagx.FilterArgs and left to the command.
//
//	-base-url string        REST API base URL
//	-user string            user path segment
//	-timeout int            request timeout in seconds
//	-journal-driver string  sqlite or pgx
//	-journal-dsn string     journal data source; empty disables it
//	-s3-region string       region for s3:// sources
//	-s3-endpoint string     custom S3 endpoint
//	-log-level string       debug, info, warn or error
//	-log-format string      text or json
//	-metrics-addr string    serve /metrics on this address
func parseFlags(cfg *Config, args []string) {
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "REST API base URL")
	fs.StringVar(&cfg.User, "user", cfg.User, "user path segment")
	timeout := fs.Int("timeout", int(cfg.RequestTimeout.Seconds()), "request timeout (in seconds)")
	fs.StringVar(&cfg.JournalDriver, "journal-driver", cfg.JournalDriver, "journal driver: sqlite or pgx")
	fs.StringVar(&cfg.JournalDSN, "journal-dsn", cfg.JournalDSN, "journal data source name")
	fs.StringVar(&cfg.S3Region, "s3-region", cfg.S3Region, "AWS region for s3:// sources")
	fs.StringVar(&cfg.S3Endpoint, "s3-endpoint", cfg.S3Endpoint, "custom S3 endpoint")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format: text or json")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "address to serve /metrics on")

	if err := fs.Parse(flagx.FilterArgs(args, configFlags)); err != nil {
		panic(err)
	}

	cfg.RequestTimeout = time.Duration(*timeout) * time.Second
}
