// Package config loads runtime configuration for the attachsync command.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected via -c or -config.
//  3. Command-line flags, which override earlier values.
//
// # JSON schema
//
// Durations use timex.Duration, so "30s" and integer nanoseconds both work:
//
//	{
//	  "base_url": "https://rest.sandbox-immobilienscout24.de/restapi/api/offer/v1.0/",
//	  "user": "me",
//	  "consumer_key": "...",
//	  "consumer_secret": "...",
//	  "access_token": "...",
//	  "sealed_token_secret": "v1:...",
//	  "request_timeout": "30s",
//	  "journal_driver": "sqlite",
//	  "journal_dsn": "estatesync-journal.db",
//	  "s3_region": "eu-central-1",
//	  "log_level": "debug",
//	  "log_format": "json",
//	  "metrics_addr": ":9100"
//	}
//
// Credentials are only read from the JSON file, never from flags.
package config
