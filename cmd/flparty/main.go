package main

import (
	"fmt"
	"os"

	"fedrelay/client"
	"fedrelay/internal/logger"
	"fedrelay/internal/party"
)

func main() {
	logger.Init()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// run dispatches to the selected role. Roles are mutually exclusive per
// invocation; the process runs one and exits.
func run() error {
	cfg, err := parseFlags()
	if err != nil {
		return err
	}

	cli := client.New(cfg.AggregatorURL)

	logger.Info("participant starting", "role", cfg.Role, "aggregator", cfg.AggregatorURL)

	switch cfg.Role {
	case "keyholder":
		return party.RunKeyholder(cli, cfg.SecretPath)
	case "client":
		return party.RunClient(cli, cfg.DataURL, cfg.InsecureFallback)
	case "decryptor":
		return party.RunDecryptor(cli, cfg.SecretPath)
	}

	return nil
}
