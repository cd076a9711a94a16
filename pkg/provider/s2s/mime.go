package s2s

import (
	"strconv"
	"strings"

	"github.com/webnexifystudio/nexa/pkg/audio"
)

// FormatFromMIME reads the PCM format of an inline audio part from its MIME
// type, e.g. "audio/pcm;rate=24000". Remote speech is always mono. A missing
// or malformed rate leaves SampleRate zero so the caller can apply its
// default.
func FormatFromMIME(mime string) audio.Format {
	f := audio.Format{Channels: 1}
	_, params, _ := strings.Cut(mime, ";")
	for _, param := range strings.Split(params, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(param), "=")
		if !ok || !strings.EqualFold(strings.TrimSpace(k), "rate") {
			continue
		}
		if r, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && r > 0 {
			f.SampleRate = r
		}
	}
	return f
}
