package genai

import (
	"errors"
	"testing"

	"github.com/gorilla/websocket"
	"google.golang.org/genai"

	"github.com/webnexifystudio/nexa/pkg/audio/pcm"
	"github.com/webnexifystudio/nexa/pkg/provider/s2s"
)

func TestLiveConfig(t *testing.T) {
	t.Parallel()
	lc := liveConfig(s2s.SessionConfig{Instructions: "Be brief.", Voice: "Kore"})

	if len(lc.ResponseModalities) != 1 || lc.ResponseModalities[0] != genai.ModalityAudio {
		t.Errorf("ResponseModalities = %v, want [AUDIO]", lc.ResponseModalities)
	}
	if lc.SystemInstruction == nil || lc.SystemInstruction.Parts[0].Text != "Be brief." {
		t.Errorf("SystemInstruction = %+v", lc.SystemInstruction)
	}
	if lc.SpeechConfig == nil || lc.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName != "Kore" {
		t.Errorf("SpeechConfig = %+v", lc.SpeechConfig)
	}

	bare := liveConfig(s2s.SessionConfig{})
	if bare.SystemInstruction != nil || bare.SpeechConfig != nil {
		t.Error("empty config should leave instruction and voice unset")
	}
}

func TestTranslate(t *testing.T) {
	t.Parallel()
	data := []byte{1, 2, 3, 4}

	open, msgs := translate(&genai.LiveServerMessage{SetupComplete: &genai.LiveServerSetupComplete{}})
	if !open || len(msgs) != 0 {
		t.Errorf("setupComplete: open=%v msgs=%v", open, msgs)
	}

	open, msgs = translate(&genai.LiveServerMessage{
		ServerContent: &genai.LiveServerContent{
			ModelTurn: &genai.Content{Parts: []*genai.Part{
				{InlineData: &genai.Blob{MIMEType: "audio/pcm;rate=24000", Data: data}},
				{Text: "transcript"},
				nil,
			}},
			Interrupted: true,
		},
	})
	if open {
		t.Error("content message reported open")
	}
	if len(msgs) != 2 {
		t.Fatalf("msgs = %d, want 2", len(msgs))
	}
	if msgs[0].Audio != pcm.EncodeBase64(data) || msgs[0].Format.SampleRate != 24000 {
		t.Errorf("audio message = %+v", msgs[0])
	}
	if !msgs[1].Interrupted || msgs[1].Audio != "" {
		t.Errorf("control message = %+v", msgs[1])
	}

	if open, msgs := translate(nil); open || msgs != nil {
		t.Error("nil message should translate to nothing")
	}
}

func TestTerminate(t *testing.T) {
	t.Parallel()
	var closed string
	var failed error
	s := &session{cb: s2s.Callbacks{
		OnClose: func(r string) { closed = r },
		OnError: func(err error) { failed = err },
	}}

	s.terminate(&websocket.CloseError{Code: websocket.CloseNormalClosure, Text: "done"})
	if closed != "done" || failed != nil {
		t.Errorf("normal close: closed=%q failed=%v", closed, failed)
	}

	closed = ""
	s.terminate(errors.New("connection reset"))
	if closed != "" || failed == nil {
		t.Errorf("reset: closed=%q failed=%v", closed, failed)
	}
}
