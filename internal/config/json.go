package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/estatesync/internal/flagx"
	"github.com/dmitrijs2005/estatesync/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Pointer
// fields distinguish "absent" from "empty" so that a file may clear a
// default, e.g. "journal_dsn": "" disables the journal.
type JsonConfig struct {
	BaseURL           *string         `json:"base_url"`
	User              *string         `json:"user"`
	ConsumerKey       *string         `json:"consumer_key"`
	ConsumerSecret    *string         `json:"consumer_secret"`
	AccessToken       *string         `json:"access_token"`
	AccessTokenSecret *string         `json:"access_token_secret"`
	SealedTokenSecret *string         `json:"sealed_token_secret"`
	RequestTimeout    *timex.Duration `json:"request_timeout"`
	JournalDriver     *string         `json:"journal_driver"`
	JournalDSN        *string         `json:"journal_dsn"`
	S3Region          *string         `json:"s3_region"`
	S3Endpoint        *string         `json:"s3_endpoint"`
	S3AccessKey       *string         `json:"s3_access_key"`
	S3SecretKey       *string         `json:"s3_secret_key"`
	LogLevel          *string         `json:"log_level"`
	LogFormat         *string         `json:"log_format"`
	MetricsAddr       *string         `json:"metrics_addr"`
}

// parseJson overlays cfg with the JSON file named by -c or -config in args.
// Without such a flag nothing happens. Read or decode errors panic.
func parseJson(cfg *Config, args []string) {
	path := flagx.ConfigPath(args)
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}
	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	set(&cfg.BaseURL, jc.BaseURL)
	set(&cfg.User, jc.User)
	set(&cfg.ConsumerKey, jc.ConsumerKey)
	set(&cfg.ConsumerSecret, jc.ConsumerSecret)
	set(&cfg.AccessToken, jc.AccessToken)
	set(&cfg.AccessTokenSecret, jc.AccessTokenSecret)
	set(&cfg.SealedTokenSecret, jc.SealedTokenSecret)
	set(&cfg.JournalDriver, jc.JournalDriver)
	set(&cfg.JournalDSN, jc.JournalDSN)
	set(&cfg.S3Region, jc.S3Region)
	set(&cfg.S3Endpoint, jc.S3Endpoint)
	set(&cfg.S3AccessKey, jc.S3AccessKey)
	set(&cfg.S3SecretKey, jc.S3SecretKey)
	set(&cfg.LogLevel, jc.LogLevel)
	set(&cfg.LogFormat, jc.LogFormat)
	set(&cfg.MetricsAddr, jc.MetricsAddr)
	if jc.RequestTimeout != nil {
		cfg.RequestTimeout = jc.RequestTimeout.Duration
	}
}

func set(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
