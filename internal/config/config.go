// Package config provides the configuration schema, loader, and provider
// registry for the Nexa voice pipeline.
package config

import (
	"log/slog"
	"time"
)

// LogLevel controls log verbosity for the Nexa server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// SlogLevel converts l to a [slog.Level]. Unknown values map to info.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LogFormat selects the log handler.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// IsValid reports whether f is a recognised log format.
func (f LogFormat) IsValid() bool {
	return f == LogFormatText || f == LogFormatJSON
}

// Modality is the response modality requested from the remote model.
type Modality string

const (
	ModalityAudio Modality = "audio"
	ModalityText  Modality = "text"
)

// IsValid reports whether m is a recognised modality.
func (m Modality) IsValid() bool {
	return m == ModalityAudio || m == ModalityText
}

// Config is the root configuration structure for Nexa.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
// A loaded Config is treated as immutable.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Provider ProviderConfig `yaml:"provider"`
	Agent    AgentConfig    `yaml:"agent"`
	Audio    AudioConfig    `yaml:"audio"`
	Devices  DevicesConfig  `yaml:"devices"`
	Session  SessionConfig  `yaml:"session"`
}

// ServerConfig holds network and logging settings for the Nexa server.
type ServerConfig struct {
	// ListenAddr is the TCP address the control API listens on (e.g., ":8080").
	// Empty disables the HTTP server.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// LogFormat selects text or JSON logs.
	LogFormat LogFormat `yaml:"log_format"`
}

// ProviderConfig selects and configures the remote speech service.
type ProviderConfig struct {
	// Name is the registered provider name, e.g. "gemini-live".
	Name string `yaml:"name"`

	// APIKey authenticates with the service. Use ${VAR} to read it from the
	// environment.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the service endpoint.
	BaseURL string `yaml:"base_url"`

	// Model is the provider model name.
	Model string `yaml:"model"`
}

// AgentConfig shapes the assistant persona.
type AgentConfig struct {
	// Instructions is the system instruction sent when the session opens.
	Instructions string `yaml:"instructions"`

	// InstructionsFile is read into Instructions when Instructions is empty.
	// Relative paths resolve against the config file's directory.
	InstructionsFile string `yaml:"instructions_file"`

	// Voice is the provider's prebuilt voice name.
	Voice string `yaml:"voice"`

	// Modality is the response modality.
	Modality Modality `yaml:"modality"`
}

// AudioConfig holds the capture and playback parameters.
type AudioConfig struct {
	InputSampleRate  int  `yaml:"input_sample_rate"`
	OutputSampleRate int  `yaml:"output_sample_rate"`
	FrameSize        int  `yaml:"frame_size"`
	SendQueue        int  `yaml:"send_queue"`
	FlushOnInterrupt bool `yaml:"flush_on_interrupt"`
	AnalyserSize     int  `yaml:"analyser_size"`
}

// DevicesConfig selects the audio device backend.
type DevicesConfig struct {
	// Backend is the registered device backend, e.g. "portaudio" or "null".
	Backend string `yaml:"backend"`
}

// SessionConfig holds connection policy.
type SessionConfig struct {
	// AutoConnect connects as soon as the application starts.
	AutoConnect *bool `yaml:"auto_connect"`

	// ConnectTimeout bounds one Connect call. Zero means no timeout.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// ShouldAutoConnect reports whether the application connects on start.
// Unset defaults to true.
func (s SessionConfig) ShouldAutoConnect() bool {
	return s.AutoConnect == nil || *s.AutoConnect
}

// Defaults applied by [ApplyDefaults].
const (
	DefaultProvider         = "gemini-live"
	DefaultModel            = "gemini-2.5-flash-native-audio-preview-12-2025"
	DefaultVoice            = "Kore"
	DefaultInputSampleRate  = 16000
	DefaultOutputSampleRate = 24000
	DefaultFrameSize        = 4096
	DefaultSendQueue        = 8
	DefaultAnalyserSize     = 256
	DefaultDeviceBackend    = "portaudio"
	DefaultListenAddr       = "127.0.0.1:8080"
)

// ApplyDefaults fills unset fields of cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.LogFormat == "" {
		cfg.Server.LogFormat = LogFormatText
	}
	if cfg.Provider.Name == "" {
		cfg.Provider.Name = DefaultProvider
	}
	if cfg.Provider.Model == "" && (cfg.Provider.Name == "gemini-live" || cfg.Provider.Name == "gemini-genai") {
		cfg.Provider.Model = DefaultModel
	}
	if cfg.Agent.Voice == "" && (cfg.Provider.Name == "gemini-live" || cfg.Provider.Name == "gemini-genai") {
		cfg.Agent.Voice = DefaultVoice
	}
	if cfg.Agent.Modality == "" {
		cfg.Agent.Modality = ModalityAudio
	}
	a := &cfg.Audio
	if a.InputSampleRate == 0 {
		a.InputSampleRate = DefaultInputSampleRate
	}
	if a.OutputSampleRate == 0 {
		a.OutputSampleRate = DefaultOutputSampleRate
	}
	if a.FrameSize == 0 {
		a.FrameSize = DefaultFrameSize
	}
	if a.SendQueue == 0 {
		a.SendQueue = DefaultSendQueue
	}
	if a.AnalyserSize == 0 {
		a.AnalyserSize = DefaultAnalyserSize
	}
	if cfg.Devices.Backend == "" {
		cfg.Devices.Backend = DefaultDeviceBackend
	}
}
