//go:build !portaudio

// Package portaudio adapts the host's default capture and playback devices
// through PortAudio. This build has no PortAudio support; rebuild with
// -tags portaudio.
package portaudio

import (
	"context"
	"fmt"

	"github.com/webnexifystudio/nexa/pkg/audio"
	"github.com/webnexifystudio/nexa/pkg/audio/device"
)

// Available reports whether this binary was built with PortAudio support.
const Available = false

// Microphone is unavailable in this build.
type Microphone struct{}

// Open always fails with [device.ErrNoDevice].
func (Microphone) Open(context.Context, audio.Format, int) (device.InputStream, error) {
	return nil, fmt.Errorf("portaudio: microphone not available, rebuild with -tags portaudio: %w", device.ErrNoDevice)
}

// Speaker is unavailable in this build.
type Speaker struct {
	AnalyserSize int
}

// Open always fails with [device.ErrNoDevice].
func (Speaker) Open(context.Context, audio.Format) (device.Output, error) {
	return nil, fmt.Errorf("portaudio: speaker not available, rebuild with -tags portaudio: %w", device.ErrNoDevice)
}

var (
	_ device.Microphone = Microphone{}
	_ device.Speaker    = Speaker{}
)
