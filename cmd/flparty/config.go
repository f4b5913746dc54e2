package main

import (
	"flag"
	"fmt"

	"fedrelay/internal/party"
)

// Config holds the participant configuration.
type Config struct {
	// AggregatorURL is the aggregator base URL, e.g. "http://10.0.0.5:8080".
	AggregatorURL string

	// Role is one of "keyholder", "client", "decryptor".
	Role string

	// SecretPath is where the keyholder stores its secret context.
	SecretPath string

	// DataURL is the statistics API base URL used by the client role.
	DataURL string

	// InsecureFallback makes the client role upload the raw unencrypted
	// vector. Explicit opt-in only.
	InsecureFallback bool
}

// parseFlags parses command-line flags into Config.
func parseFlags() (*Config, error) {
	cfg := &Config{}

	flag.StringVar(&cfg.AggregatorURL, "agg", "", "Aggregator base URL (required)")
	flag.StringVar(&cfg.Role, "role", "client", "Role: keyholder, client, or decryptor")
	flag.StringVar(&cfg.SecretPath, "secret", party.DefaultSecretPath, "Secret context file path")
	flag.StringVar(&cfg.DataURL, "data-url", "https://api.covid19api.com", "Statistics API base URL")
	flag.BoolVar(&cfg.InsecureFallback, "insecure-fallback", false, "Upload the raw unencrypted vector (INSECURE)")
	flag.Parse()

	if cfg.AggregatorURL == "" {
		return nil, fmt.Errorf("missing required -agg flag")
	}

	switch cfg.Role {
	case "keyholder", "client", "decryptor":
	default:
		return nil, fmt.Errorf("unknown role %q (want keyholder, client, or decryptor)", cfg.Role)
	}

	return cfg, nil
}
