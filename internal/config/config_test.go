package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	t.Run("Defaults when no config file", func(t *testing.T) {
		os.Remove("config.yml")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() returned an error: %v", err)
		}

		if cfg.Port != 8090 {
			t.Errorf("Expected default port 8090, got %d", cfg.Port)
		}
		if cfg.Backend.BaseURL != "http://localhost:8080" {
			t.Errorf("Expected default backend URL, got '%s'", cfg.Backend.BaseURL)
		}
		if cfg.ReconnectDelay() != 3*time.Second {
			t.Errorf("Expected default reconnect delay of 3s, got %v", cfg.ReconnectDelay())
		}
		if cfg.Channel.ReasoningOpen != "<think>" || cfg.Channel.ReasoningClose != "</think>" {
			t.Errorf("Unexpected default markers %q %q", cfg.Channel.ReasoningOpen, cfg.Channel.ReasoningClose)
		}
		if cfg.ChannelURL() != "ws://localhost:8080/api/ws" {
			t.Errorf("Expected channel URL ws://localhost:8080/api/ws, got %s", cfg.ChannelURL())
		}
	})

	t.Run("Loads from config file", func(t *testing.T) {
		configContent := `
port: 9999
backend:
  base_url: "https://tts.example.com/"
channel:
  reconnect_delay: 500
database:
  path: "/tmp/narrate-test.db"
unknown_setting: "should be ignored"
`
		// Viper looks in the CWD, so t.TempDir() is not used here.
		configPath := "config.yml"
		if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
			t.Fatalf("Failed to write test config file: %v", err)
		}
		defer os.Remove(configPath)

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() returned an error: %v", err)
		}

		if cfg.Port != 9999 {
			t.Errorf("Expected port 9999, got %d", cfg.Port)
		}
		if cfg.ChannelURL() != "wss://tts.example.com/api/ws" {
			t.Errorf("Expected wss channel URL, got %s", cfg.ChannelURL())
		}
		if cfg.ReconnectDelay() != 500*time.Millisecond {
			t.Errorf("Expected reconnect delay 500ms, got %v", cfg.ReconnectDelay())
		}
		if cfg.Database.Path != "/tmp/narrate-test.db" {
			t.Errorf("Expected db path '/tmp/narrate-test.db', got '%s'", cfg.Database.Path)
		}
		if cfg.Jobs.AudioPollInterval != 15 {
			t.Errorf("Expected default poll interval of 15, got %d", cfg.Jobs.AudioPollInterval)
		}
	})
}
