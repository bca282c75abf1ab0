// This file defines the configuration structure for the console.
package config

import (
	"log"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config holds all configuration settings for the console.
// It maps directly to the structure of config.yml.
type Config struct {
	Port    int `mapstructure:"port"`
	Backend struct {
		// BaseURL is the backend origin, e.g. http://localhost:8080.
		BaseURL string `mapstructure:"base_url"`
		WSPath  string `mapstructure:"ws_path"`
		// Timeout for submission requests, in seconds. Analysis of a single
		// chapter is synchronous and can take minutes.
		Timeout int `mapstructure:"timeout"`
	} `mapstructure:"backend"`
	Channel struct {
		// ReconnectDelay is the fixed delay before a reconnect attempt, in ms.
		ReconnectDelay int    `mapstructure:"reconnect_delay"`
		ReasoningOpen  string `mapstructure:"reasoning_open"`
		ReasoningClose string `mapstructure:"reasoning_close"`
	} `mapstructure:"channel"`
	Database struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"database"`
	Jobs struct {
		// AudioPollInterval in seconds; 0 disables the audio status poller.
		AudioPollInterval int `mapstructure:"audio_poll_interval"`
	} `mapstructure:"jobs"`
}

// ChannelURL returns the WebSocket endpoint derived from the backend URL.
func (c *Config) ChannelURL() string {
	base := strings.TrimRight(c.Backend.BaseURL, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + c.Backend.WSPath
}

// ReconnectDelay returns the channel retry delay as a duration.
func (c *Config) ReconnectDelay() time.Duration {
	return time.Duration(c.Channel.ReconnectDelay) * time.Millisecond
}

// RequestTimeout returns the submission request timeout as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Backend.Timeout) * time.Second
}

// Load reads configuration from a file named "config.yml" in the
// current directory and unmarshals it into a Config struct.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AddConfigPath(".")

	// NARRATE_BACKEND_BASE_URL overrides `backend.base_url`, and so on.
	viper.SetEnvPrefix("NARRATE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("port", 8090)
	viper.SetDefault("backend.base_url", "http://localhost:8080")
	viper.SetDefault("backend.ws_path", "/api/ws")
	viper.SetDefault("backend.timeout", 600)
	viper.SetDefault("channel.reconnect_delay", 3000)
	viper.SetDefault("channel.reasoning_open", "<think>")
	viper.SetDefault("channel.reasoning_close", "</think>")
	viper.SetDefault("database.path", "./narrate.db")
	viper.SetDefault("jobs.audio_poll_interval", 15)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; use defaults
		} else {
			return nil, err
		}
	}

	return unmarshal()
}

func unmarshal() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// Watch re-reads config.yml whenever it changes on disk and hands the new
// configuration to onChange. Only values read lazily by their consumers
// (poll interval, timeouts) take effect without a restart.
func Watch(onChange func(*Config)) {
	viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := unmarshal()
		if err != nil {
			log.Printf("[config] Ignoring invalid config change in %s: %v", e.Name, err)
			return
		}
		log.Printf("[config] Reloaded configuration from %s", e.Name)
		onChange(cfg)
	})
	viper.WatchConfig()
}
