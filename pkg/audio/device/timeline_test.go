package device_test

import (
	"testing"

	"github.com/webnexifystudio/nexa/pkg/audio"
	"github.com/webnexifystudio/nexa/pkg/audio/device"
)

var mono = audio.Format{SampleRate: 1000, Channels: 1}

func buffer(vals ...float32) audio.PlaybackBuffer {
	return audio.PlaybackBuffer{Samples: vals, Format: mono}
}

func TestTimeline_RendersBackToBack(t *testing.T) {
	t.Parallel()
	tl := device.NewTimeline(mono, nil)
	if err := tl.Schedule(buffer(1, 1), 0); err != nil {
		t.Fatal(err)
	}
	if err := tl.Schedule(buffer(2, 2, 2), 2); err != nil {
		t.Fatal(err)
	}

	out := make([]float32, 6)
	tl.Render(out)
	want := []float32{1, 1, 2, 2, 2, 0}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("Render = %v, want %v", out, want)
		}
	}
	if got := tl.Position(); got != 6 {
		t.Errorf("Position = %d, want 6", got)
	}
	if got := tl.Pending(); got != 0 {
		t.Errorf("Pending = %d, want 0", got)
	}
}

func TestTimeline_SpansRenderCalls(t *testing.T) {
	t.Parallel()
	tl := device.NewTimeline(mono, nil)
	_ = tl.Schedule(buffer(1, 2, 3, 4, 5), 1)

	a := make([]float32, 3)
	b := make([]float32, 3)
	tl.Render(a)
	tl.Render(b)
	got := append(a, b...)
	want := []float32{0, 1, 2, 3, 4, 5}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("rendered %v, want %v", got, want)
		}
	}
}

func TestTimeline_PastStartPlaysNow(t *testing.T) {
	t.Parallel()
	tl := device.NewTimeline(mono, nil)
	tl.Render(make([]float32, 10))

	_ = tl.Schedule(buffer(7, 7), 3)
	if got := tl.Pending(); got != 2 {
		t.Errorf("Pending = %d, want 2", got)
	}
	out := make([]float32, 2)
	tl.Render(out)
	if out[0] != 7 || out[1] != 7 {
		t.Errorf("Render = %v, want [7 7]", out)
	}
}

func TestTimeline_Flush(t *testing.T) {
	t.Parallel()
	tl := device.NewTimeline(mono, nil)
	_ = tl.Schedule(buffer(1, 1, 1, 1), 0)
	tl.Render(make([]float32, 1))
	tl.Flush()

	out := make([]float32, 3)
	tl.Render(out)
	for _, s := range out {
		if s != 0 {
			t.Fatalf("Render after Flush = %v, want silence", out)
		}
	}
	if got := tl.Position(); got != 4 {
		t.Errorf("Position = %d, want 4 (flush must not move the clock)", got)
	}
}

func TestTimeline_RejectsChannelMismatch(t *testing.T) {
	t.Parallel()
	tl := device.NewTimeline(mono, nil)
	stereo := audio.PlaybackBuffer{Samples: []float32{0, 0}, Format: audio.Format{SampleRate: 1000, Channels: 2}}
	if err := tl.Schedule(stereo, 0); err == nil {
		t.Error("expected error for channel mismatch")
	}
}

func TestTimeline_FeedsAnalyser(t *testing.T) {
	t.Parallel()
	an := device.NewAnalyser(4)
	tl := device.NewTimeline(mono, an)
	_ = tl.Schedule(buffer(0.5, 0.5, 0.5, 0.5, 0.5, 0.5), 0)
	tl.Render(make([]float32, 6))

	td := an.TimeDomain()
	for _, s := range td {
		if s != 0.5 {
			t.Fatalf("TimeDomain = %v, want all 0.5", td)
		}
	}
}
