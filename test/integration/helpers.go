package integration

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"fedrelay/client"
	"fedrelay/internal/relay"
	"fedrelay/internal/store"
)

// startRelay starts an in-process aggregator with non-persistent state and
// returns a client bound to it.
func startRelay(t *testing.T) *client.Client {
	t.Helper()

	server := httptest.NewServer(relay.New(":0", relay.NewState(nil)).Routes())
	t.Cleanup(server.Close)

	return client.New(server.URL)
}

// startPersistentRelay starts an aggregator backed by a round store in dir
// and returns a client plus a restart function. Restarting closes the live
// store and server first; pebble holds a lock on the directory.
func startPersistentRelay(t *testing.T, dir string) (*client.Client, func() *client.Client) {
	t.Helper()

	var (
		current       *store.Store
		currentServer *httptest.Server
	)

	t.Cleanup(func() {
		if currentServer != nil {
			currentServer.Close()
		}
		if current != nil {
			current.Close()
		}
	})

	open := func() *client.Client {
		st, err := store.Open(dir)
		if err != nil {
			t.Fatalf("open round store: %v", err)
		}

		state := relay.NewState(st)
		if err := state.Restore(); err != nil {
			t.Fatalf("restore round state: %v", err)
		}

		server := httptest.NewServer(relay.New(":0", state).Routes())

		current = st
		currentServer = server

		return client.New(server.URL)
	}

	restart := func() *client.Client {
		currentServer.Close()
		if err := current.Close(); err != nil {
			t.Fatalf("close round store: %v", err)
		}

		return open()
	}

	return open(), restart
}

// startStatsAPI serves a fake statistics API whose deaths are slope times
// confirmed cases, so a client's fitted update coefficient equals slope.
func startStatsAPI(t *testing.T, slope float64) string {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /summary", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"Countries":[`)
		for i := 0; i < 10; i++ {
			if i > 0 {
				fmt.Fprint(w, ",")
			}
			confirmed := float64(i + 1)
			fmt.Fprintf(w, `{"TotalConfirmed":%g,"TotalDeaths":%g}`, confirmed, slope*confirmed)
		}
		fmt.Fprint(w, `]}`)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return server.URL
}

// secretPath returns a per-test path for the keyholder's secret context.
func secretPath(t *testing.T) string {
	t.Helper()

	return filepath.Join(t.TempDir(), "secret_context.bin")
}
