package device

import (
	"math"
	"math/cmplx"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
)

// DefaultAnalyserSize is the number of samples an [Analyser] keeps when no
// size is given.
const DefaultAnalyserSize = 256

// Analyser is a read-only tap on rendered output: it keeps the most recent
// Size samples (mono) and computes their magnitude spectrum on demand. It
// never alters what is played.
type Analyser struct {
	mu     sync.Mutex
	ring   []float32
	w      int
	filled bool
	window []float64

	// fftMu guards the transform and its scratch buffers, which are reused
	// across Frequency calls.
	fftMu  sync.Mutex
	fft    *fourier.FFT
	seq    []float64
	coeffs []complex128
}

// NewAnalyser creates an analyser over the last size samples. Sizes below 2
// fall back to [DefaultAnalyserSize].
func NewAnalyser(size int) *Analyser {
	if size < 2 {
		size = DefaultAnalyserSize
	}
	w := make([]float64, size)
	for i := range w {
		// Blackman window.
		x := 2 * math.Pi * float64(i) / float64(size-1)
		w[i] = 0.42 - 0.5*math.Cos(x) + 0.08*math.Cos(2*x)
	}
	return &Analyser{
		ring:   make([]float32, size),
		window: w,
		fft:    fourier.NewFFT(size),
		seq:    make([]float64, size),
		coeffs: make([]complex128, size/2+1),
	}
}

// Size returns the number of samples in the analysis window.
func (a *Analyser) Size() int { return len(a.ring) }

// Write appends rendered mono samples to the window.
func (a *Analyser) Write(samples []float32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := len(a.ring)
	if len(samples) >= n {
		copy(a.ring, samples[len(samples)-n:])
		a.w = 0
		a.filled = true
		return
	}
	for _, s := range samples {
		a.ring[a.w] = s
		a.w++
		if a.w == n {
			a.w = 0
			a.filled = true
		}
	}
}

// TimeDomain returns a copy of the window, oldest sample first. Before the
// window has filled, the leading samples are zero.
func (a *Analyser) TimeDomain() []float32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]float32, len(a.ring))
	n := copy(out, a.ring[a.w:])
	copy(out[n:], a.ring[:a.w])
	return out
}

// Frequency returns Size/2 linear magnitudes of the windowed spectrum, bin k
// covering k*sampleRate/Size Hz. A full-scale sine at a bin centre yields
// roughly 0.42 in that bin.
func (a *Analyser) Frequency() []float32 {
	td := a.TimeDomain()
	n := len(td)

	a.fftMu.Lock()
	defer a.fftMu.Unlock()
	for i, s := range td {
		a.seq[i] = float64(s) * a.window[i]
	}
	a.coeffs = a.fft.Coefficients(a.coeffs, a.seq)

	bins := make([]float32, n/2)
	for k := range bins {
		bins[k] = float32(cmplx.Abs(a.coeffs[k]) / float64(n/2))
	}
	return bins
}

// Level returns the RMS of the window, a cheap loudness indicator for UIs.
func (a *Analyser) Level() float32 {
	td := a.TimeDomain()
	var sum float64
	for _, s := range td {
		sum += float64(s) * float64(s)
	}
	return float32(math.Sqrt(sum / float64(len(td))))
}
