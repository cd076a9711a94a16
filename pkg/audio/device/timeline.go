package device

import (
	"fmt"
	"sort"
	"sync"

	"github.com/webnexifystudio/nexa/pkg/audio"
)

// segment is one buffer placed on the timeline.
type segment struct {
	start int64
	buf   audio.PlaybackBuffer
}

func (s segment) end() int64 { return s.start + s.buf.Frames() }

// Timeline is a sample-accurate playback queue. Buffers are scheduled at
// absolute frame positions; [Timeline.Render] fills a device callback buffer
// with whatever is due and advances the position by the number of frames
// rendered. Gaps between buffers render as silence and overlapping buffers
// are summed.
//
// A Timeline is safe for concurrent use: the scheduler calls Schedule from
// the network goroutine while the device callback calls Render.
type Timeline struct {
	format   audio.Format
	analyser *Analyser

	mu       sync.Mutex
	pos      int64
	segments []segment // sorted by start
	mono     []float32 // scratch for the analyser
}

// NewTimeline creates a timeline for format. analyser may be nil.
func NewTimeline(format audio.Format, analyser *Analyser) *Timeline {
	return &Timeline{format: format, analyser: analyser}
}

// Format returns the timeline's audio format.
func (t *Timeline) Format() audio.Format { return t.format }

// Analyser returns the tap fed by Render, or nil.
func (t *Timeline) Analyser() *Analyser { return t.analyser }

// Position returns the number of frames rendered so far.
func (t *Timeline) Position() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pos
}

// Schedule places buf at frame at. A start in the past is moved to the
// current position, so late audio plays immediately rather than being
// truncated.
func (t *Timeline) Schedule(buf audio.PlaybackBuffer, at int64) error {
	if buf.Format.Channels != t.format.Channels {
		return fmt.Errorf("device: schedule: buffer has %d channels, output has %d", buf.Format.Channels, t.format.Channels)
	}
	if buf.Frames() == 0 {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if at < t.pos {
		at = t.pos
	}
	i := sort.Search(len(t.segments), func(i int) bool { return t.segments[i].start > at })
	t.segments = append(t.segments, segment{})
	copy(t.segments[i+1:], t.segments[i:])
	t.segments[i] = segment{start: at, buf: buf}
	return nil
}

// Pending returns the number of frames between the current position and the
// end of the last scheduled buffer.
func (t *Timeline) Pending() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	var last int64
	for _, s := range t.segments {
		last = max(last, s.end())
	}
	return max(0, last-t.pos)
}

// Flush discards every buffer that has not finished playing.
func (t *Timeline) Flush() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.segments = nil
}

// Render fills out with the interleaved audio due at the current position
// and advances the position by len(out)/channels frames. Trailing samples that
// do not form a whole frame are zeroed.
func (t *Timeline) Render(out []float32) {
	ch := t.format.Channels
	clear(out)
	if ch <= 0 {
		return
	}
	frames := int64(len(out) / ch)

	t.mu.Lock()
	from, to := t.pos, t.pos+frames
	keep := t.segments[:0]
	for _, s := range t.segments {
		if s.start >= to {
			keep = append(keep, s)
			continue
		}
		lo := max(s.start, from)
		hi := min(s.end(), to)
		for f := lo; f < hi; f++ {
			src := (f - s.start) * int64(ch)
			dst := (f - from) * int64(ch)
			for c := int64(0); c < int64(ch); c++ {
				out[dst+c] += s.buf.Samples[src+c]
			}
		}
		if s.end() > to {
			keep = append(keep, s)
		}
	}
	clear(t.segments[len(keep):])
	t.segments = keep
	t.pos = to

	if t.analyser != nil {
		if cap(t.mono) < int(frames) {
			t.mono = make([]float32, frames)
		}
		t.mono = t.mono[:frames]
		for f := range t.mono {
			var sum float32
			for c := range ch {
				sum += out[f*ch+c]
			}
			t.mono[f] = sum / float32(ch)
		}
		t.analyser.Write(t.mono)
	}
	t.mu.Unlock()
}
