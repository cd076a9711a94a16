package pcm

import "github.com/webnexifystudio/nexa/pkg/audio"

// ResampleMono converts a mono PCM chunk to dstRate using linear
// interpolation. It exists for transports whose upstream rate differs from
// the capture rate; the playback path never resamples. If the rates already
// match, or either rate is unset, the chunk is returned unchanged.
func ResampleMono(chunk audio.EncodedChunk, dstRate int) audio.EncodedChunk {
	srcRate := chunk.Format.SampleRate
	pcm := chunk.Data
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(pcm) < 2 {
		return chunk
	}
	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	out := make([]byte, dstSamples*2)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstSamples {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := int16(pcm[srcIdx*2]) | int16(pcm[srcIdx*2+1])<<8
		s1 := s0
		if srcIdx+1 < srcSamples {
			s1 = int16(pcm[(srcIdx+1)*2]) | int16(pcm[(srcIdx+1)*2+1])<<8
		}

		interpolated := int16(float64(s0)*(1-frac) + float64(s1)*frac)
		out[i*2] = byte(interpolated)
		out[i*2+1] = byte(interpolated >> 8)
	}
	return audio.EncodedChunk{
		Data:   out,
		Format: audio.Format{SampleRate: dstRate, Channels: chunk.Format.Channels},
	}
}
