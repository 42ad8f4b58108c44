package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Gemini   GeminiConfig   `yaml:"gemini"`
	Wrapper  WrapperConfig  `yaml:"wrapper"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Playback PlaybackConfig `yaml:"playback"`
	Events   EventsConfig   `yaml:"events"`
	Redis    RedisConfig    `yaml:"redis"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
}

// GeminiConfig contains remote generative-language API configuration
type GeminiConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"` // fallback when a request carries none
	TranslateModel string `yaml:"translate_model"`
	TTSModel       string `yaml:"tts_model"`
	DefaultVoice   string `yaml:"default_voice"`
}

// WrapperConfig describes the optional self-hosted translation server
type WrapperConfig struct {
	Supported bool   `yaml:"supported"`
	Endpoint  string `yaml:"endpoint"` // fallback when a request carries none
}

// PipelineConfig contains orchestrator defaults
type PipelineConfig struct {
	DefaultLanguage        string `yaml:"default_language"`
	DefaultEnglishBehavior string `yaml:"default_english_behavior"`
	RunTimeout             int    `yaml:"run_timeout"` // seconds, 0 disables
	HistorySize            int    `yaml:"history_size"`
}

// PlaybackConfig contains playback surface configuration
type PlaybackConfig struct {
	Device          bool `yaml:"device"` // play through the local audio device
	FramesPerBuffer int  `yaml:"frames_per_buffer"`
	HandleTTL       int  `yaml:"handle_ttl"` // seconds
}

// EventsConfig contains broadcast bus configuration
type EventsConfig struct {
	SubscriberBuffer int `yaml:"subscriber_buffer"`
}

// RedisConfig enables mirroring of bus messages and UI cache to Redis
type RedisConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Channel string `yaml:"channel"`
	DB      int    `yaml:"db"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Defaults returns a complete configuration usable without a file
func Defaults() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Port:    8765,
			Address: "127.0.0.1",
		},
		Gemini: GeminiConfig{
			BaseURL:        "https://generativelanguage.googleapis.com/v1beta",
			TranslateModel: "gemini-2.5-flash",
			TTSModel:       "gemini-2.5-flash-preview-tts",
			DefaultVoice:   "Aoede",
		},
		Wrapper: WrapperConfig{
			Supported: true,
		},
		Pipeline: PipelineConfig{
			DefaultLanguage:        "pt-BR",
			DefaultEnglishBehavior: "translate_and_speak",
			HistorySize:            32,
		},
		Playback: PlaybackConfig{
			Device:          false,
			FramesPerBuffer: 1024,
			HandleTTL:       600,
		},
		Events: EventsConfig{
			SubscriberBuffer: 64,
		},
		Redis: RedisConfig{
			URL:     "redis://localhost:6379/0",
			Channel: "gspeech:events",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Load reads the configuration file on top of Defaults, applies
// environment overrides and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	config := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	// A missing .env is fine.
	_ = godotenv.Load()
	if err := config.ApplyEnv(os.Getenv); err != nil {
		return nil, fmt.Errorf("environment override failed: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// ApplyEnv overrides selected fields from the environment
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv("GEMINI_API_KEY"); v != "" {
		c.Gemini.APIKey = v
	}
	if v := getenv("GSPEECH_WRAPPER_ENDPOINT"); v != "" {
		c.Wrapper.Endpoint = v
	}
	if v := getenv("GSPEECH_HTTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("GSPEECH_HTTP_PORT: %w", err)
		}
		c.HTTP.Port = port
	}
	if v := getenv("GSPEECH_REDIS_URL"); v != "" {
		c.Redis.URL = v
		c.Redis.Enabled = true
	}
	if v := getenv("GSPEECH_LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	return nil
}

// Validate performs validation of every section
func (c *Config) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Gemini.Validate(); err != nil {
		return fmt.Errorf("gemini config: %w", err)
	}

	if err := c.Pipeline.Validate(); err != nil {
		return fmt.Errorf("pipeline config: %w", err)
	}

	if err := c.Playback.Validate(); err != nil {
		return fmt.Errorf("playback config: %w", err)
	}

	if err := c.Events.Validate(); err != nil {
		return fmt.Errorf("events config: %w", err)
	}

	if err := c.Redis.Validate(); err != nil {
		return fmt.Errorf("redis config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Port < 1 || h.Port > 65535 {
		return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
	}

	if h.Address == "" {
		return fmt.Errorf("http address cannot be empty")
	}

	return nil
}

// Validate validates Gemini configuration
func (g *GeminiConfig) Validate() error {
	u, err := url.Parse(g.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("base_url must be an absolute URL, got '%s'", g.BaseURL)
	}

	if g.TranslateModel == "" {
		return fmt.Errorf("translate_model cannot be empty")
	}

	if g.TTSModel == "" {
		return fmt.Errorf("tts_model cannot be empty")
	}

	if g.DefaultVoice == "" {
		return fmt.Errorf("default_voice cannot be empty")
	}

	return nil
}

// Validate validates pipeline configuration
func (p *PipelineConfig) Validate() error {
	if p.DefaultLanguage == "" {
		return fmt.Errorf("default_language cannot be empty")
	}

	validBehaviors := map[string]bool{"translate_only": true, "translate_and_speak": true}
	if !validBehaviors[p.DefaultEnglishBehavior] {
		return fmt.Errorf("default_english_behavior must be 'translate_only' or 'translate_and_speak', got '%s'",
			p.DefaultEnglishBehavior)
	}

	if p.RunTimeout < 0 {
		return fmt.Errorf("run_timeout cannot be negative, got %d", p.RunTimeout)
	}

	if p.HistorySize < 1 {
		return fmt.Errorf("history_size must be at least 1, got %d", p.HistorySize)
	}

	return nil
}

// Validate validates playback configuration
func (p *PlaybackConfig) Validate() error {
	if p.FramesPerBuffer < 64 || p.FramesPerBuffer > 8192 {
		return fmt.Errorf("frames_per_buffer must be between 64 and 8192, got %d", p.FramesPerBuffer)
	}

	if p.HandleTTL < 1 {
		return fmt.Errorf("handle_ttl must be at least 1 second, got %d", p.HandleTTL)
	}

	return nil
}

// Validate validates events configuration
func (e *EventsConfig) Validate() error {
	if e.SubscriberBuffer < 1 {
		return fmt.Errorf("subscriber_buffer must be at least 1, got %d", e.SubscriberBuffer)
	}
	return nil
}

// Validate validates Redis configuration
func (r *RedisConfig) Validate() error {
	if !r.Enabled {
		return nil
	}

	if r.URL == "" {
		return fmt.Errorf("url cannot be empty when redis is enabled")
	}

	if r.Channel == "" {
		return fmt.Errorf("channel cannot be empty when redis is enabled")
	}

	if r.DB < 0 {
		return fmt.Errorf("db cannot be negative, got %d", r.DB)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetRunTimeoutDuration returns the per-run deadline, zero when disabled
func (p *PipelineConfig) GetRunTimeoutDuration() time.Duration {
	return time.Duration(p.RunTimeout) * time.Second
}

// GetHandleTTLDuration returns the playback handle lifetime as a time.Duration
func (p *PlaybackConfig) GetHandleTTLDuration() time.Duration {
	return time.Duration(p.HandleTTL) * time.Second
}
