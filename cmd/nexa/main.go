// Command nexa is the main entry point for the Nexa voice assistant.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/webnexifystudio/nexa/internal/app"
	"github.com/webnexifystudio/nexa/internal/config"
	"github.com/webnexifystudio/nexa/internal/observe"
	"github.com/webnexifystudio/nexa/pkg/audio/device"
	"github.com/webnexifystudio/nexa/pkg/audio/device/portaudio"
	"github.com/webnexifystudio/nexa/pkg/provider/s2s"
	geminilive "github.com/webnexifystudio/nexa/pkg/provider/s2s/gemini"
	geminigenai "github.com/webnexifystudio/nexa/pkg/provider/s2s/genai"
	oais2s "github.com/webnexifystudio/nexa/pkg/provider/s2s/openai"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "nexa: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "nexa: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel, cfg.Server.LogFormat)
	slog.SetDefault(logger)

	slog.Info("nexa starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}

	// ── Registry ──────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	registerBuiltinDevices(reg)

	provider, err := reg.CreateS2S(cfg.Provider)
	if err != nil {
		slog.Error("failed to create speech provider", "name", cfg.Provider.Name, "err", err)
		return 1
	}
	devices, err := reg.CreateDevices(cfg.Devices.Backend, cfg.Audio)
	if err != nil {
		slog.Error("failed to create audio devices", "backend", cfg.Devices.Backend, "err", err)
		return 1
	}

	printStartupSummary(cfg, provider.Capabilities())

	application, err := app.New(cfg, app.Deps{
		Provider:     provider,
		Devices:      devices,
		DevicesReady: devicesReady(cfg.Devices.Backend),
	},
		app.WithLogger(logger),
		app.WithMetrics(observe.DefaultMetrics()),
		app.WithMetricsHandler(tel.MetricsHandler()),
		app.WithCloser(func() error {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return tel.Shutdown(flushCtx)
		}),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("ready, press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in speech provider factories into
// reg. Each factory receives the provider section of the config.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterS2S("gemini-live", func(entry config.ProviderConfig) (s2s.Provider, error) {
		var opts []geminilive.Option
		if entry.Model != "" {
			opts = append(opts, geminilive.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, geminilive.WithBaseURL(entry.BaseURL))
		}
		return geminilive.New(entry.APIKey, opts...), nil
	})

	reg.RegisterS2S("gemini-genai", func(entry config.ProviderConfig) (s2s.Provider, error) {
		var opts []geminigenai.Option
		if entry.Model != "" {
			opts = append(opts, geminigenai.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, geminigenai.WithBaseURL(entry.BaseURL))
		}
		return geminigenai.New(entry.APIKey, opts...), nil
	})

	reg.RegisterS2S("openai-realtime", func(entry config.ProviderConfig) (s2s.Provider, error) {
		var opts []oais2s.Option
		if entry.Model != "" {
			opts = append(opts, oais2s.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, oais2s.WithBaseURL(entry.BaseURL))
		}
		return oais2s.New(entry.APIKey, opts...), nil
	})

	for _, name := range reg.S2SNames() {
		slog.Debug("registered provider", "kind", "s2s", "name", name)
	}
}

// registerBuiltinDevices wires the device backends into reg.
func registerBuiltinDevices(reg *config.Registry) {
	reg.RegisterDevices("portaudio", func(cfg config.AudioConfig) (config.Devices, error) {
		if !portaudio.Available {
			slog.Warn("binary built without portaudio support; microphone and speaker will report no device")
		}
		return config.Devices{
			Microphone: portaudio.Microphone{},
			Speaker:    portaudio.Speaker{AnalyserSize: cfg.AnalyserSize},
		}, nil
	})

	reg.RegisterDevices("null", func(cfg config.AudioConfig) (config.Devices, error) {
		return config.Devices{
			Microphone: device.SilentMicrophone{},
			Speaker:    device.NullSpeaker{AnalyserSize: cfg.AnalyserSize},
		}, nil
	})
}

// devicesReady returns the readiness check for backend.
func devicesReady(backend string) func(context.Context) error {
	return func(context.Context) error {
		if backend == "portaudio" && !portaudio.Available {
			return errors.New("portaudio support not compiled in")
		}
		return nil
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, caps s2s.Capabilities) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          Nexa: startup summary        ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Provider", cfg.Provider.Name)
	printRow("Model", cfg.Provider.Model)
	printRow("Voice", cfg.Agent.Voice)
	printRow("Modality", string(cfg.Agent.Modality))
	printRow("Devices", cfg.Devices.Backend)
	printRow("Audio in", fmt.Sprintf("%d Hz", cfg.Audio.InputSampleRate))
	printRow("Audio out", fmt.Sprintf("%d Hz", cfg.Audio.OutputSampleRate))
	if caps.MaxSessionDuration > 0 {
		printRow("Session limit", caps.MaxSessionDuration.String())
	}
	printRow("Auto-connect", fmt.Sprint(cfg.Session.ShouldAutoConnect()))
	if cfg.Server.ListenAddr != "" {
		printRow("Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(label, value string) {
	if value == "" {
		value = "(not configured)"
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-13s   : %-19s ║\n", label, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel, format config.LogFormat) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level.SlogLevel()}
	if format == config.LogFormatJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
