package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Session.SourceLanguage == "" || cfg.Session.TargetLanguage == "" {
		t.Fatal("defaults must include session languages")
	}
	if cfg.Engine.CaptureQuality < 1 || cfg.Engine.CaptureQuality > 100 {
		t.Fatalf("default capture quality out of range: %d", cfg.Engine.CaptureQuality)
	}
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if cfg.Server.Addr != Default().Server.Addr {
		t.Fatalf("expected defaults, got %+v", cfg.Server)
	}
}

func TestLoadOverridesFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	doc := `
session:
  source_language: de
  target_language: fr
  location: street
  actions: [find]
engine:
  server_url: ws://example:9000/v1/ws
  capture_quality: 60
media:
  frame_dir: /tmp/frames
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Session.SourceLanguage != "de" || cfg.Session.TargetLanguage != "fr" {
		t.Fatalf("session not overridden: %+v", cfg.Session)
	}
	if cfg.Engine.ServerURL != "ws://example:9000/v1/ws" {
		t.Fatalf("server_url not overridden: %q", cfg.Engine.ServerURL)
	}
	if cfg.Engine.CaptureQuality != 60 {
		t.Fatalf("capture_quality not overridden: %d", cfg.Engine.CaptureQuality)
	}
	// Untouched keys keep their defaults.
	if cfg.Server.Addr != Default().Server.Addr {
		t.Fatalf("untouched server addr changed: %q", cfg.Server.Addr)
	}
}

func TestLoadRejectsBadQuality(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("engine:\n  capture_quality: 400\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for out-of-range capture_quality")
	}
}
