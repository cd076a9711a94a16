package playback_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/webnexifystudio/nexa/pkg/audio"
	"github.com/webnexifystudio/nexa/pkg/audio/device/mock"
	"github.com/webnexifystudio/nexa/pkg/audio/pcm"
	"github.com/webnexifystudio/nexa/pkg/audio/playback"
)

// rate1k makes frame counts read as milliseconds: 1000 frames = 1 s.
var rate1k = audio.Format{SampleRate: 1000, Channels: 1}

func newOutput(t *testing.T, format audio.Format) *mock.Output {
	t.Helper()
	spk := &mock.Speaker{}
	if _, err := spk.Open(t.Context(), format); err != nil {
		t.Fatalf("Open: %v", err)
	}
	return spk.Last()
}

// chunkOf returns an encoded chunk of n silent frames.
func chunkOf(n int, format audio.Format) audio.EncodedChunk {
	return pcm.Encode(audio.Frame{Samples: make([]float32, n*format.Channels), Format: format})
}

func mustSchedule(t *testing.T, s *playback.Scheduler, chunk audio.EncodedChunk) playback.Scheduled {
	t.Helper()
	sc, err := s.OnChunk(chunk)
	if err != nil {
		t.Fatalf("OnChunk: %v", err)
	}
	return sc
}

func TestScheduler_ContiguousStarts(t *testing.T) {
	t.Parallel()
	out := newOutput(t, rate1k)
	s := playback.New(out, rate1k)

	// 1.0 s, 0.5 s, 2.0 s with the device clock at 0.
	lengths := []int{1000, 500, 2000}
	wantStarts := []int64{0, 1000, 1500}
	for i, n := range lengths {
		sc := mustSchedule(t, s, chunkOf(n, rate1k))
		if sc.Start != wantStarts[i] {
			t.Errorf("chunk %d: Start = %d, want %d", i, sc.Start, wantStarts[i])
		}
		if sc.Frames != int64(n) {
			t.Errorf("chunk %d: Frames = %d, want %d", i, sc.Frames, n)
		}
		if sc.Resynced {
			t.Errorf("chunk %d: unexpected resync", i)
		}
	}

	// The cursor now sits at 3.5 s: the next chunk starts there.
	sc := mustSchedule(t, s, chunkOf(1, rate1k))
	if sc.Start != 3500 {
		t.Errorf("cursor = %d, want 3500", sc.Start)
	}
	if got := sc.StartTime().Seconds(); got != 3.5 {
		t.Errorf("StartTime = %vs, want 3.5s", got)
	}

	calls := out.Calls()
	if len(calls) != 4 {
		t.Fatalf("Schedule calls = %d, want 4", len(calls))
	}
	for i := 1; i < len(calls); i++ {
		prevEnd := calls[i-1].At + calls[i-1].Buf.Frames()
		if calls[i].At != prevEnd {
			t.Errorf("call %d at %d, previous ended at %d", i, calls[i].At, prevEnd)
		}
	}
}

func TestScheduler_ResyncsWhenBehind(t *testing.T) {
	t.Parallel()
	out := newOutput(t, rate1k)
	s := playback.New(out, rate1k)

	mustSchedule(t, s, chunkOf(100, rate1k))
	out.Advance(250) // the device played past the end of the queue

	sc := mustSchedule(t, s, chunkOf(100, rate1k))
	if !sc.Resynced {
		t.Error("expected resync")
	}
	if sc.Start != 250 {
		t.Errorf("Start = %d, want 250", sc.Start)
	}
	if sc.Lead != 0 {
		t.Errorf("Lead = %d, want 0", sc.Lead)
	}
}

func TestScheduler_NoResyncWhenAhead(t *testing.T) {
	t.Parallel()
	out := newOutput(t, rate1k)
	s := playback.New(out, rate1k)

	mustSchedule(t, s, chunkOf(500, rate1k))
	out.Advance(200)

	sc := mustSchedule(t, s, chunkOf(100, rate1k))
	if sc.Resynced {
		t.Error("unexpected resync")
	}
	if sc.Start != 500 || sc.Lead != 300 {
		t.Errorf("Start, Lead = %d, %d, want 500, 300", sc.Start, sc.Lead)
	}
}

func TestScheduler_InterruptResetsCursor(t *testing.T) {
	t.Parallel()
	out := newOutput(t, rate1k)
	s := playback.New(out, rate1k)

	mustSchedule(t, s, chunkOf(1000, rate1k))
	mustSchedule(t, s, chunkOf(1000, rate1k))
	out.Advance(300)

	s.OnInterrupt()

	sc := mustSchedule(t, s, chunkOf(100, rate1k))
	if sc.Start != 300 {
		t.Errorf("Start after interrupt = %d, want device position 300", sc.Start)
	}
	if out.FlushCount != 0 {
		t.Errorf("FlushCount = %d, want 0 without WithFlushOnInterrupt", out.FlushCount)
	}
	// Already-scheduled audio keeps playing.
	if got := out.Pending(); got != 1700 {
		t.Errorf("Pending = %d, want 1700", got)
	}
}

func TestScheduler_InterruptFlushes(t *testing.T) {
	t.Parallel()
	out := newOutput(t, rate1k)
	s := playback.New(out, rate1k, playback.WithFlushOnInterrupt(true))

	mustSchedule(t, s, chunkOf(1000, rate1k))
	out.Advance(100)
	s.OnInterrupt()

	if out.FlushCount != 1 {
		t.Errorf("FlushCount = %d, want 1", out.FlushCount)
	}
	if got := out.Pending(); got != 0 {
		t.Errorf("Pending = %d, want 0 after flush", got)
	}
}

func TestScheduler_OddLengthChunkDropped(t *testing.T) {
	t.Parallel()
	out := newOutput(t, rate1k)
	s := playback.New(out, rate1k)

	mustSchedule(t, s, chunkOf(200, rate1k))

	_, err := s.OnChunk(audio.EncodedChunk{Data: []byte{1, 2, 3}, Format: rate1k})
	var de *pcm.DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("err = %v, want *pcm.DecodeError", err)
	}

	sc := mustSchedule(t, s, chunkOf(10, rate1k))
	if sc.Start != 200 {
		t.Errorf("Start = %d, want 200 (cursor untouched by bad chunk)", sc.Start)
	}
	if got := len(out.Calls()); got != 2 {
		t.Errorf("Schedule calls = %d, want 2", got)
	}
}

func TestScheduler_CloseRejectsChunks(t *testing.T) {
	t.Parallel()
	out := newOutput(t, rate1k)
	s := playback.New(out, rate1k)

	mustSchedule(t, s, chunkOf(10, rate1k))
	s.Close()
	s.Close()

	if _, err := s.OnChunk(chunkOf(10, rate1k)); !errors.Is(err, playback.ErrClosed) {
		t.Errorf("OnChunk after Close err = %v, want ErrClosed", err)
	}
	s.OnInterrupt() // must not panic or flush
	if got := len(out.Calls()); got != 1 {
		t.Errorf("Schedule calls = %d, want 1", got)
	}
}

func TestScheduler_ScheduleErrorKeepsCursor(t *testing.T) {
	t.Parallel()
	out := newOutput(t, rate1k)
	s := playback.New(out, rate1k)

	mustSchedule(t, s, chunkOf(50, rate1k))
	out.ScheduleErr = errors.New("device gone")
	if _, err := s.OnChunk(chunkOf(50, rate1k)); err == nil {
		t.Fatal("expected schedule error")
	}
	out.ScheduleErr = nil

	sc := mustSchedule(t, s, chunkOf(50, rate1k))
	if sc.Start != 50 {
		t.Errorf("Start = %d, want 50", sc.Start)
	}
}

func TestScheduler_ConcurrentChunksDoNotOverlap(t *testing.T) {
	t.Parallel()
	out := newOutput(t, rate1k)
	s := playback.New(out, rate1k)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 25 {
				if _, err := s.OnChunk(chunkOf(10, rate1k)); err != nil {
					t.Errorf("OnChunk: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	seen := make(map[int64]bool)
	for _, c := range out.Calls() {
		if c.At%10 != 0 || seen[c.At] {
			t.Fatalf("overlapping or misaligned start %d", c.At)
		}
		seen[c.At] = true
	}
	if len(seen) != 200 {
		t.Errorf("distinct starts = %d, want 200", len(seen))
	}
}
