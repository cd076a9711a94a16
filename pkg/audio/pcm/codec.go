// Package pcm converts between float32 samples and the signed 16-bit
// little-endian PCM used on the wire, and wraps the base64 transport
// encoding that streaming speech services expect for inline audio.
//
// Every function is pure. Encoding never fails: out-of-range input is
// clamped. Decoding fails only with [*DecodeError].
package pcm

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/webnexifystudio/nexa/pkg/audio"
)

const (
	// negScale maps -1.0 to math.MinInt16.
	negScale = 32768
	// posScale maps +1.0 to math.MaxInt16.
	posScale = 32767
	// decodeScale is the divisor applied to every decoded int16.
	decodeScale = 32768.0
)

// DecodeError reports an inbound chunk that cannot be turned into samples.
type DecodeError struct {
	// Len is the byte length of the offending payload.
	Len int
	// Reason describes what was wrong with it.
	Reason string
	// Err is the underlying error, if any (e.g. from base64).
	Err error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("pcm: decode %d bytes: %s: %v", e.Len, e.Reason, e.Err)
	}
	return fmt.Sprintf("pcm: decode %d bytes: %s", e.Len, e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Encode converts a frame of float samples into 16-bit little-endian PCM.
// Each sample is clamped to [-1, 1]; negative values scale by 32768 and
// non-negative values by 32767. NaN encodes as silence.
func Encode(frame audio.Frame) audio.EncodedChunk {
	out := make([]byte, len(frame.Samples)*audio.BytesPerSample)
	for i, s := range frame.Samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(quantize(s)))
	}
	return audio.EncodedChunk{Data: out, Format: frame.Format}
}

// quantize clamps s to [-1, 1] and scales it to int16.
func quantize(s float32) int16 {
	switch {
	case s != s: // NaN
		return 0
	case s <= -1:
		return math.MinInt16
	case s >= 1:
		return math.MaxInt16
	case s < 0:
		return int16(s * negScale)
	default:
		return int16(s * posScale)
	}
}

// Decode reconstructs a playback buffer from a PCM chunk. Each 2-byte
// little-endian pair becomes int16/32768. When the chunk's channel count
// differs from target, channels are duplicated or averaged. Sample rates are
// never converted: the buffer is tagged with target.SampleRate because the
// remote service is expected to emit audio at the output rate already. A
// chunk with an unset channel count is treated as target.Channels.
//
// Returns a [*DecodeError] if the payload length is not a multiple of 2.
func Decode(chunk audio.EncodedChunk, target audio.Format) (audio.PlaybackBuffer, error) {
	if len(chunk.Data)%audio.BytesPerSample != 0 {
		return audio.PlaybackBuffer{}, &DecodeError{Len: len(chunk.Data), Reason: "odd byte count for 16-bit PCM"}
	}

	samples := make([]float32, len(chunk.Data)/audio.BytesPerSample)
	for i := range samples {
		v := int16(binary.LittleEndian.Uint16(chunk.Data[i*2:]))
		samples[i] = float32(v) / decodeScale
	}

	src := chunk.Format.Channels
	if src <= 0 {
		src = target.Channels
	}
	samples = audio.MixChannels(samples, src, target.Channels)

	return audio.PlaybackBuffer{Samples: samples, Format: target}, nil
}
