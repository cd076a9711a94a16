package audio

// MixChannels converts interleaved samples from src to dst channels.
// Mono → N duplicates each sample into every output channel; N → mono
// averages each frame; any other mismatch folds to mono and then duplicates.
// When src == dst the input is returned unchanged (zero allocation).
func MixChannels(samples []float32, src, dst int) []float32 {
	if src <= 0 || dst <= 0 || src == dst {
		return samples
	}
	if src == 1 {
		return upmix(samples, dst)
	}
	mono := downmix(samples, src)
	if dst == 1 {
		return mono
	}
	return upmix(mono, dst)
}

// upmix duplicates each mono sample into n interleaved channels.
func upmix(mono []float32, n int) []float32 {
	out := make([]float32, len(mono)*n)
	for i, s := range mono {
		for c := range n {
			out[i*n+c] = s
		}
	}
	return out
}

// downmix averages every frame of n interleaved channels into one sample.
// Trailing samples that do not form a full frame are discarded.
func downmix(samples []float32, n int) []float32 {
	frames := len(samples) / n
	out := make([]float32, frames)
	for i := range frames {
		var sum float32
		for c := range n {
			sum += samples[i*n+c]
		}
		out[i] = sum / float32(n)
	}
	return out
}
