package device

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/webnexifystudio/nexa/pkg/audio"
)

// renderInterval is how often the null devices advance their clocks.
const renderInterval = 20 * time.Millisecond

// NullSpeaker opens outputs that render to nowhere at real-time pace. The
// sample clock, scheduling and analysis tap behave exactly as on hardware, so
// the pipeline runs headless.
type NullSpeaker struct {
	// AnalyserSize sets the tap window. Zero means [DefaultAnalyserSize].
	AnalyserSize int
}

// Open starts a real-time paced output in format.
func (s NullSpeaker) Open(ctx context.Context, format audio.Format) (Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !format.Valid() {
		return nil, fmt.Errorf("device: null speaker: invalid format %v", format)
	}
	o := &nullOutput{
		Timeline: NewTimeline(format, NewAnalyser(s.AnalyserSize)),
		done:     make(chan struct{}),
	}
	o.wg.Add(1)
	go o.run()
	return o, nil
}

type nullOutput struct {
	*Timeline

	once sync.Once
	done chan struct{}
	wg   sync.WaitGroup
}

// run renders exactly as many frames as wall-clock time allows, so the
// position does not drift with ticker jitter.
func (o *nullOutput) run() {
	defer o.wg.Done()
	start := time.Now()
	var rendered int64
	ticker := time.NewTicker(renderInterval)
	defer ticker.Stop()

	format := o.Format()
	var buf []float32
	for {
		select {
		case <-o.done:
			return
		case <-ticker.C:
			due := format.FramesIn(time.Since(start)) - rendered
			if due <= 0 {
				continue
			}
			n := int(due) * format.Channels
			if cap(buf) < n {
				buf = make([]float32, n)
			}
			o.Render(buf[:n])
			rendered += due
		}
	}
}

func (o *nullOutput) Close() error {
	o.once.Do(func() {
		close(o.done)
		o.wg.Wait()
		o.Flush()
	})
	return nil
}

// SilentMicrophone opens capture streams that deliver silence at real-time
// pace. It stands in for a microphone on machines without one.
type SilentMicrophone struct{}

// Open starts delivering zeroed frames of frameSize samples.
func (SilentMicrophone) Open(ctx context.Context, format audio.Format, frameSize int) (InputStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !format.Valid() || frameSize <= 0 {
		return nil, fmt.Errorf("device: silent microphone: invalid format %v / frame size %d", format, frameSize)
	}
	s := &silentStream{
		frames: make(chan audio.Frame, 4),
		done:   make(chan struct{}),
	}
	s.wg.Add(1)
	go s.run(format, frameSize)
	return s, nil
}

type silentStream struct {
	frames chan audio.Frame
	once   sync.Once
	done   chan struct{}
	wg     sync.WaitGroup
}

func (s *silentStream) run(format audio.Format, frameSize int) {
	defer s.wg.Done()
	defer close(s.frames)
	ticker := time.NewTicker(format.FrameDuration(int64(frameSize)))
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			f := audio.Frame{Samples: make([]float32, frameSize*format.Channels), Format: format}
			select {
			case s.frames <- f:
			default:
			}
		}
	}
}

func (s *silentStream) Frames() <-chan audio.Frame { return s.frames }

func (s *silentStream) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
	return nil
}

// Compile-time interface assertions.
var (
	_ Speaker    = NullSpeaker{}
	_ Microphone = SilentMicrophone{}
)
