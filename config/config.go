package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SessionConfig is the practice-session configuration handed to the engine
// at session start. The engine reads it, never mutates it.
type SessionConfig struct {
	SourceLanguage string   `yaml:"source_language"`
	TargetLanguage string   `yaml:"target_language"`
	Location       string   `yaml:"location"`
	Actions        []string `yaml:"actions"`
}

type ServerConfig struct {
	Addr        string `yaml:"addr"`
	ArchivePath string `yaml:"archive_path"`
}

type MediaConfig struct {
	// Directory a capture daemon drops camera frames into. The newest
	// image file in it is treated as the current frame.
	FrameDir string `yaml:"frame_dir"`

	// Audio input device ID, 0 for the system default.
	DeviceID int `yaml:"device_id"`
}

type EngineConfig struct {
	// WebSocket URL of the practice backend, e.g. ws://localhost:8444/v1/ws.
	ServerURL string `yaml:"server_url"`

	// REST transcription endpoint used when the channel is not open.
	TranscribeURL string `yaml:"transcribe_url"`

	// Mirror captures horizontally (front-facing camera).
	Mirror bool `yaml:"mirror"`

	// JPEG quality for captured frames, 1-100.
	CaptureQuality int `yaml:"capture_quality"`
}

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Engine  EngineConfig  `yaml:"engine"`
	Media   MediaConfig   `yaml:"media"`
	Session SessionConfig `yaml:"session"`
}

// Default returns the configuration used when no file is supplied.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:        ":8444",
			ArchivePath: "practice.db",
		},
		Engine: EngineConfig{
			ServerURL:      "ws://localhost:8444/v1/ws",
			TranscribeURL:  "http://localhost:8444/v1/transcribe",
			Mirror:         true,
			CaptureQuality: 85,
		},
		Media: MediaConfig{
			FrameDir: "frames",
		},
		Session: SessionConfig{
			SourceLanguage: "en",
			TargetLanguage: "es",
			Location:       "kitchen",
			Actions:        []string{"find", "say", "describe"},
		},
	}
}

// Load reads a YAML config file layered over the defaults. A missing
// path returns the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Engine.CaptureQuality < 1 || c.Engine.CaptureQuality > 100 {
		return fmt.Errorf("capture_quality must be within 1-100, got %d", c.Engine.CaptureQuality)
	}
	if c.Session.SourceLanguage == "" || c.Session.TargetLanguage == "" {
		return fmt.Errorf("session source_language and target_language are required")
	}
	return nil
}
