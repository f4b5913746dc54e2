package main

import "flag"

// Config holds the aggregator configuration.
type Config struct {
	// HTTPAddress is the HTTP API listen address.
	HTTPAddress string

	// DataPath is the directory for the durable round store.
	// Empty disables persistence.
	DataPath string
}

// parseFlags parses command-line flags into Config.
func parseFlags() *Config {
	cfg := &Config{}

	flag.StringVar(&cfg.HTTPAddress, "http", ":8080", "HTTP API address")
	flag.StringVar(&cfg.DataPath, "data", "", "Round store directory (empty disables persistence)")
	flag.Parse()

	return cfg
}
