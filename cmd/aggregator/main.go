package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"fedrelay/internal/logger"
	"fedrelay/internal/relay"
	"fedrelay/internal/store"
)

func main() {
	logger.Init()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main entry point with error handling.
func run() error {
	cfg := parseFlags()

	var roundStore relay.RoundStore

	if cfg.DataPath != "" {
		st, err := store.Open(cfg.DataPath)
		if err != nil {
			return fmt.Errorf("open round store:\n%w", err)
		}
		defer st.Close()

		roundStore = st
	}

	state := relay.NewState(roundStore)

	if err := state.Restore(); err != nil {
		return fmt.Errorf("restore round state:\n%w", err)
	}

	server := relay.New(cfg.HTTPAddress, state)
	if err := server.Start(); err != nil {
		return fmt.Errorf("start http server:\n%w", err)
	}

	logger.Info("aggregator running",
		"http", cfg.HTTPAddress,
		"persistent", cfg.DataPath != "",
	)

	// Block until interrupted, then shut down cleanly.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")

	return server.Stop()
}
