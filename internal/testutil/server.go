package testutil

import (
	"testing"
	"time"

	"github.com/narrate-go/narrate/internal/api"
	"github.com/narrate-go/narrate/internal/channel"
	"github.com/narrate-go/narrate/internal/config"
	"github.com/narrate-go/narrate/internal/core"
)

// TestConfig returns a config pointing at the fake backend.
func TestConfig(backendURL string) *config.Config {
	cfg := &config.Config{Port: 0}
	cfg.Backend.BaseURL = backendURL
	cfg.Backend.WSPath = "/api/ws"
	cfg.Backend.Timeout = 5
	cfg.Channel.ReconnectDelay = 20
	return cfg
}

// SetupTestApp wires a core.App against a fresh fake backend and an
// in-memory database. The hub runs, the channel is not connected.
func SetupTestApp(t *testing.T) (*core.App, *FakeBackend) {
	t.Helper()
	fb := NewFakeBackend(t)
	app := core.NewWithDeps(TestConfig(fb.URL()), SetupTestDB(t), channel.WithReconnectDelay(20*time.Millisecond))
	go app.WsHub().Run()
	t.Cleanup(func() {
		app.Connection().Close()
		app.JobManager().Close()
	})
	return app, fb
}

// SetupTestServer initializes a full core.App and api.Server for integration testing.
func SetupTestServer(t *testing.T) (*api.Server, *core.App, *FakeBackend) {
	t.Helper()
	app, fb := SetupTestApp(t)
	return api.NewServer(app), app, fb
}
