package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultsAreValid(t *testing.T) {
	if err := Defaults().Validate(); err != nil {
		t.Fatalf("Expected defaults to validate, got: %v", err)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(c *Config)
		expectError bool
		errorMsg    string
	}{
		{
			name:   "valid configuration",
			mutate: func(c *Config) {},
		},
		{
			name:        "invalid http port",
			mutate:      func(c *Config) { c.HTTP.Port = 70000 },
			expectError: true,
			errorMsg:    "http port must be between 1 and 65535",
		},
		{
			name:        "relative base url",
			mutate:      func(c *Config) { c.Gemini.BaseURL = "generativelanguage.googleapis.com" },
			expectError: true,
			errorMsg:    "base_url must be an absolute URL",
		},
		{
			name:        "missing tts model",
			mutate:      func(c *Config) { c.Gemini.TTSModel = "" },
			expectError: true,
			errorMsg:    "tts_model cannot be empty",
		},
		{
			name:        "unknown english behavior",
			mutate:      func(c *Config) { c.Pipeline.DefaultEnglishBehavior = "speak_only" },
			expectError: true,
			errorMsg:    "default_english_behavior",
		},
		{
			name:        "zero history",
			mutate:      func(c *Config) { c.Pipeline.HistorySize = 0 },
			expectError: true,
			errorMsg:    "history_size must be at least 1",
		},
		{
			name:        "tiny playback buffer",
			mutate:      func(c *Config) { c.Playback.FramesPerBuffer = 8 },
			expectError: true,
			errorMsg:    "frames_per_buffer",
		},
		{
			name:        "zero subscriber buffer",
			mutate:      func(c *Config) { c.Events.SubscriberBuffer = 0 },
			expectError: true,
			errorMsg:    "subscriber_buffer",
		},
		{
			name: "redis enabled without channel",
			mutate: func(c *Config) {
				c.Redis.Enabled = true
				c.Redis.Channel = ""
			},
			expectError: true,
			errorMsg:    "channel cannot be empty",
		},
		{
			name: "redis disabled ignores fields",
			mutate: func(c *Config) {
				c.Redis.Enabled = false
				c.Redis.URL = ""
			},
		},
		{
			name:        "invalid log level",
			mutate:      func(c *Config) { c.Logging.Level = "trace" },
			expectError: true,
			errorMsg:    "level must be one of",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := Defaults()
			tt.mutate(config)

			err := config.Validate()
			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				} else if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
				}
			} else if err != nil {
				t.Errorf("Expected no error but got: %v", err)
			}
		})
	}
}

func TestConfigLoad(t *testing.T) {
	tempDir := t.TempDir()

	tests := []struct {
		name        string
		configYAML  string
		expectError bool
		errorMsg    string
	}{
		{
			name: "valid config file",
			configYAML: `
http:
  port: 9000
  address: "0.0.0.0"
gemini:
  translate_model: "gemini-2.5-flash"
  default_voice: "Kore"
wrapper:
  supported: false
pipeline:
  default_language: "en"
  default_english_behavior: "translate_only"
logging:
  level: "debug"
  format: "json"
`,
		},
		{
			name: "invalid YAML syntax",
			configYAML: `
http:
  port: not_a_number
`,
			expectError: true,
			errorMsg:    "failed to parse",
		},
		{
			name: "invalid value",
			configYAML: `
logging:
  format: "xml"
`,
			expectError: true,
			errorMsg:    "format must be 'json' or 'text'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := filepath.Join(tempDir, "config.yaml")
			if err := os.WriteFile(configPath, []byte(tt.configYAML), 0644); err != nil {
				t.Fatalf("Failed to create test config file: %v", err)
			}

			config, err := Load(configPath)

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				} else if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
				}
				return
			}

			if err != nil {
				t.Fatalf("Expected no error but got: %v", err)
			}
			if config.HTTP.Port != 9000 {
				t.Errorf("Expected port 9000, got %d", config.HTTP.Port)
			}
			if config.Gemini.DefaultVoice != "Kore" {
				t.Errorf("Expected voice Kore, got %s", config.Gemini.DefaultVoice)
			}
			if config.Gemini.TTSModel != "gemini-2.5-flash-preview-tts" {
				t.Errorf("Expected default tts model to survive partial file, got %s", config.Gemini.TTSModel)
			}
			if config.Wrapper.Supported {
				t.Error("Expected wrapper support disabled")
			}
		})
	}
}

func TestConfigLoadNonexistentFile(t *testing.T) {
	_, err := Load("nonexistent.yaml")
	if err == nil {
		t.Fatal("Expected error for nonexistent file but got none")
	}
	if !strings.Contains(err.Error(), "failed to read config file") {
		t.Errorf("Expected error about reading file, got: %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"GEMINI_API_KEY":           "env-key",
		"GSPEECH_WRAPPER_ENDPOINT": "localhost:11434/api/generate",
		"GSPEECH_HTTP_PORT":        "9100",
		"GSPEECH_REDIS_URL":        "redis://cache:6379/1",
		"GSPEECH_LOG_LEVEL":        "WARN",
	}
	config := Defaults()
	if err := config.ApplyEnv(func(k string) string { return env[k] }); err != nil {
		t.Fatalf("ApplyEnv failed: %v", err)
	}

	if config.Gemini.APIKey != "env-key" {
		t.Errorf("Expected api key override, got %q", config.Gemini.APIKey)
	}
	if config.Wrapper.Endpoint != "localhost:11434/api/generate" {
		t.Errorf("Expected wrapper endpoint override, got %q", config.Wrapper.Endpoint)
	}
	if config.HTTP.Port != 9100 {
		t.Errorf("Expected port 9100, got %d", config.HTTP.Port)
	}
	if !config.Redis.Enabled || config.Redis.URL != "redis://cache:6379/1" {
		t.Errorf("Expected redis enabled with override, got %+v", config.Redis)
	}
	if config.Logging.Level != "warn" {
		t.Errorf("Expected level warn, got %s", config.Logging.Level)
	}

	bad := Defaults()
	if err := bad.ApplyEnv(func(k string) string {
		if k == "GSPEECH_HTTP_PORT" {
			return "eighty"
		}
		return ""
	}); err == nil {
		t.Error("Expected error for non-numeric port")
	}
}

func TestDurationHelpers(t *testing.T) {
	pipeline := PipelineConfig{RunTimeout: 45}
	if pipeline.GetRunTimeoutDuration() != 45*time.Second {
		t.Errorf("Expected 45 seconds, got %v", pipeline.GetRunTimeoutDuration())
	}

	playback := PlaybackConfig{HandleTTL: 600}
	if playback.GetHandleTTLDuration() != 10*time.Minute {
		t.Errorf("Expected 10 minutes, got %v", playback.GetHandleTTLDuration())
	}
}
