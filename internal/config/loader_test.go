package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/webnexifystudio/nexa/internal/config"
)

func TestLoadFromReader_Full(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  listen_addr: ":9090"
  log_level: debug
  log_format: json
provider:
  name: openai-realtime
  api_key: sk-test
  model: gpt-realtime
agent:
  instructions: "You are Nexa."
  voice: coral
audio:
  frame_size: 2048
  flush_on_interrupt: true
devices:
  backend: "null"
session:
  auto_connect: false
  connect_timeout: 15s
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.ListenAddr != ":9090" || cfg.Server.LogFormat != config.LogFormatJSON {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Provider.Name != "openai-realtime" || cfg.Provider.Model != "gpt-realtime" {
		t.Errorf("provider = %+v", cfg.Provider)
	}
	if cfg.Audio.FrameSize != 2048 || !cfg.Audio.FlushOnInterrupt || cfg.Audio.InputSampleRate != 16000 {
		t.Errorf("audio = %+v", cfg.Audio)
	}
	if cfg.Devices.Backend != "null" {
		t.Errorf("devices = %+v", cfg.Devices)
	}
	if cfg.Session.ShouldAutoConnect() || cfg.Session.ConnectTimeout != 15*time.Second {
		t.Errorf("session = %+v", cfg.Session)
	}
}

func TestLoadFromReader_Empty(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Provider.Name != config.DefaultProvider {
		t.Errorf("provider.name = %q, want default", cfg.Provider.Name)
	}
}

func TestLoadFromReader_ExpandsEnv(t *testing.T) {
	t.Setenv("NEXA_TEST_API_KEY", "from-env")
	cfg, err := config.LoadFromReader(strings.NewReader("provider:\n  api_key: ${NEXA_TEST_API_KEY}\n"))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Provider.APIKey != "from-env" {
		t.Errorf("api_key = %q, want from-env", cfg.Provider.APIKey)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("audio:\n  sample_rate: 16000\n"))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: loud
agent:
  modality: video
audio:
  input_sample_rate: 100
  analyser_size: 300
session:
  connect_timeout: -1s
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"log_level", "modality", "input_sample_rate", "analyser_size", "connect_timeout"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %s, got: %v", want, err)
		}
	}
}

func TestLoad_InstructionsFileRelative(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "persona.txt"), []byte("You are Nexa."), 0o600); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "nexa.yaml")
	if err := os.WriteFile(path, []byte("agent:\n  instructions_file: persona.txt\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Agent.Instructions != "You are Nexa." {
		t.Errorf("instructions = %q", cfg.Agent.Instructions)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	if _, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_ExampleConfig(t *testing.T) {
	t.Parallel()
	cfg, err := config.Load(filepath.Join("..", "..", "configs", "example.yaml"))
	if err != nil {
		t.Fatalf("Load example.yaml: %v", err)
	}
	if cfg.Provider.Name != "gemini-live" {
		t.Errorf("Provider.Name = %q, want gemini-live", cfg.Provider.Name)
	}
	if !strings.Contains(cfg.Agent.Instructions, "Agent Name: Nexa") {
		t.Error("example instructions were not loaded from instructions_file")
	}
	if cfg.Session.ConnectTimeout != 30*time.Second {
		t.Errorf("ConnectTimeout = %v, want 30s", cfg.Session.ConnectTimeout)
	}
}
