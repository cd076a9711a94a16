package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists the built-in provider names.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = []string{"gemini-live", "gemini-genai", "openai-realtime"}

// ValidDeviceBackends lists the built-in device backends.
var ValidDeviceBackends = []string{"portaudio", "null"}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. A relative agent.instructions_file is resolved against the
// directory of path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := decode(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	if file := cfg.Agent.InstructionsFile; file != "" && !filepath.IsAbs(file) {
		cfg.Agent.InstructionsFile = filepath.Join(filepath.Dir(path), file)
	}
	if err := finish(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg, err := decode(r)
	if err != nil {
		return nil, err
	}
	if err := finish(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode expands ${VAR} references and strictly decodes the document.
func decode(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	expanded := os.ExpandEnv(string(raw))

	cfg := &Config{}
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	return cfg, nil
}

func finish(cfg *Config) error {
	if cfg.Agent.Instructions == "" && cfg.Agent.InstructionsFile != "" {
		data, err := os.ReadFile(cfg.Agent.InstructionsFile)
		if err != nil {
			return fmt.Errorf("config: agent.instructions_file: %w", err)
		}
		cfg.Agent.Instructions = string(data)
	}
	ApplyDefaults(cfg)
	return Validate(cfg)
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.LogFormat != "" && !cfg.Server.LogFormat.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_format %q is invalid; valid values: text, json", cfg.Server.LogFormat))
	}

	// Provider
	if cfg.Provider.Name == "" {
		errs = append(errs, errors.New("provider.name is required"))
	} else if !slices.Contains(ValidProviderNames, cfg.Provider.Name) {
		slog.Warn("unknown provider name, may be a typo or third-party provider",
			"name", cfg.Provider.Name,
			"known", ValidProviderNames,
		)
	}
	if cfg.Provider.APIKey == "" {
		slog.Warn("provider.api_key is empty; the remote service will reject the session")
	}

	// Agent
	if cfg.Agent.Modality != "" && !cfg.Agent.Modality.IsValid() {
		errs = append(errs, fmt.Errorf("agent.modality %q is invalid; valid values: audio, text", cfg.Agent.Modality))
	}
	if cfg.Agent.Instructions == "" {
		slog.Warn("agent.instructions is empty; the model will run without a persona")
	}

	// Audio
	a := cfg.Audio
	if a.InputSampleRate < 8000 || a.InputSampleRate > 48000 {
		errs = append(errs, fmt.Errorf("audio.input_sample_rate %d is out of range [8000, 48000]", a.InputSampleRate))
	}
	if a.OutputSampleRate < 8000 || a.OutputSampleRate > 48000 {
		errs = append(errs, fmt.Errorf("audio.output_sample_rate %d is out of range [8000, 48000]", a.OutputSampleRate))
	}
	if a.FrameSize <= 0 {
		errs = append(errs, fmt.Errorf("audio.frame_size %d must be positive", a.FrameSize))
	}
	if a.SendQueue <= 0 {
		errs = append(errs, fmt.Errorf("audio.send_queue %d must be positive", a.SendQueue))
	}
	if a.AnalyserSize <= 0 || a.AnalyserSize&(a.AnalyserSize-1) != 0 {
		errs = append(errs, fmt.Errorf("audio.analyser_size %d must be a power of two", a.AnalyserSize))
	}

	// Devices
	if cfg.Devices.Backend != "" && !slices.Contains(ValidDeviceBackends, cfg.Devices.Backend) {
		slog.Warn("unknown device backend, may be a typo or third-party backend",
			"backend", cfg.Devices.Backend,
			"known", ValidDeviceBackends,
		)
	}

	// Session
	if cfg.Session.ConnectTimeout < 0 {
		errs = append(errs, fmt.Errorf("session.connect_timeout %s must not be negative", cfg.Session.ConnectTimeout))
	}

	return errors.Join(errs...)
}
