package config

import "time"

const DefaultBaseURL = "https://rest.immobilienscout24.de/restapi/api/offer/v1.0/"

// Config holds runtime settings for the attachsync command.
type Config struct {
	BaseURL string
	User    string

	ConsumerKey       string
	ConsumerSecret    string
	AccessToken       string
	AccessTokenSecret string
	// SealedTokenSecret replaces AccessTokenSecret when set; see cryptox.Seal.
	SealedTokenSecret string

	RequestTimeout time.Duration

	// JournalDSN empty disables the run journal.
	JournalDriver string
	JournalDSN    string

	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string

	LogLevel  string
	LogFormat string

	// MetricsAddr empty disables the /metrics listener.
	MetricsAddr string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.BaseURL = DefaultBaseURL
	c.User = "me"
	c.RequestTimeout = 30 * time.Second
	c.JournalDriver = "sqlite"
	c.JournalDSN = "estatesync-journal.db"
	c.LogLevel = "info"
	c.LogFormat = "text"
}

// LoadConfig applies defaults, then overlays values from the JSON file
// named by -c/-config and finally command-line flags from args. Later
// sources take precedence. Invalid input panics.
func LoadConfig(args []string) *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg, args)
	parseFlags(cfg, args)
	return cfg
}
