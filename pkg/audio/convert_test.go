package audio_test

import (
	"testing"
	"time"

	"github.com/webnexifystudio/nexa/pkg/audio"
)

func floatsEqual(t *testing.T, got, want []float32) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestMixChannels_MonoToStereo(t *testing.T) {
	got := audio.MixChannels([]float32{0.1, -0.2, 0.3}, 1, 2)
	floatsEqual(t, got, []float32{0.1, 0.1, -0.2, -0.2, 0.3, 0.3})
}

func TestMixChannels_StereoToMono(t *testing.T) {
	// Two stereo frames: L=0.5,R=0.25 and L=-0.5,R=-1
	got := audio.MixChannels([]float32{0.5, 0.25, -0.5, -1}, 2, 1)
	floatsEqual(t, got, []float32{0.375, -0.75})
}

func TestMixChannels_DropsPartialFrame(t *testing.T) {
	got := audio.MixChannels([]float32{0.5, 0.5, 0.25}, 2, 1)
	floatsEqual(t, got, []float32{0.5})
}

func TestMixChannels_SameCountIsNoOp(t *testing.T) {
	in := []float32{0.1, 0.2}
	got := audio.MixChannels(in, 2, 2)
	if &got[0] != &in[0] {
		t.Error("expected same slice (zero allocation) for matching channel count")
	}
}

func TestMixChannels_QuadToStereo(t *testing.T) {
	got := audio.MixChannels([]float32{1, 0, 0, 1}, 4, 2)
	floatsEqual(t, got, []float32{0.5, 0.5})
}

func TestPlaybackBuffer_Duration(t *testing.T) {
	tests := []struct {
		name    string
		samples int
		format  audio.Format
		frames  int64
		want    time.Duration
	}{
		{name: "one second mono", samples: 24000, format: audio.Format{SampleRate: 24000, Channels: 1}, frames: 24000, want: time.Second},
		{name: "half second stereo", samples: 16000, format: audio.Format{SampleRate: 16000, Channels: 2}, frames: 8000, want: 500 * time.Millisecond},
		{name: "no channels", samples: 10, format: audio.Format{SampleRate: 16000}, frames: 0, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := audio.PlaybackBuffer{Samples: make([]float32, tt.samples), Format: tt.format}
			if got := b.Frames(); got != tt.frames {
				t.Errorf("Frames() = %d, want %d", got, tt.frames)
			}
			if got := b.Duration(); got != tt.want {
				t.Errorf("Duration() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFormat_String(t *testing.T) {
	tests := map[audio.Format]string{
		{SampleRate: 16000, Channels: 1}: "16000Hz mono",
		{SampleRate: 48000, Channels: 2}: "48000Hz stereo",
		{SampleRate: 44100, Channels: 6}: "44100Hz 6ch",
	}
	for f, want := range tests {
		if got := f.String(); got != want {
			t.Errorf("%#v.String() = %q, want %q", f, got, want)
		}
	}
}

func TestFormat_FramesIn(t *testing.T) {
	f := audio.Format{SampleRate: 24000, Channels: 1}
	if got := f.FramesIn(20 * time.Millisecond); got != 480 {
		t.Errorf("FramesIn(20ms) = %d, want 480", got)
	}
	if got := f.FrameDuration(480); got != 20*time.Millisecond {
		t.Errorf("FrameDuration(480) = %v, want 20ms", got)
	}
}
