package protocol

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/prepdeck/interviewd/pkg/interview"
)

func validHello() []byte {
	return []byte(`{
		"type":"hello",
		"protocol_version":"1",
		"user_id":"user-1",
		"session":{"type":"technical","language":"en"},
		"audio_in":{"encoding":"pcm_s16le","sample_rate_hz":16000,"channels":1},
		"features":{"audio_transport":"binary"}
	}`)
}

func TestDecodeClientMessage_Hello(t *testing.T) {
	msg, err := DecodeClientMessage(validHello())
	if err != nil {
		t.Fatalf("DecodeClientMessage() error = %v", err)
	}
	hello, ok := msg.(ClientHello)
	if !ok {
		t.Fatalf("decoded type = %T, want ClientHello", msg)
	}
	if hello.UserID != "user-1" {
		t.Fatalf("user_id=%q", hello.UserID)
	}
	if hello.Session.Type != "technical" {
		t.Fatalf("session.type=%q", hello.Session.Type)
	}
}

func TestValidateHello_RejectsWrongAudioFormat(t *testing.T) {
	cases := []struct {
		name  string
		audio AudioFormat
		param string
	}{
		{"wrong encoding", AudioFormat{Encoding: "opus", SampleRateHz: 16000, Channels: 1}, "audio_in.encoding"},
		{"wrong rate", AudioFormat{Encoding: "pcm_s16le", SampleRateHz: 44100, Channels: 1}, "audio_in.sample_rate_hz"},
		{"stereo", AudioFormat{Encoding: "pcm_s16le", SampleRateHz: 16000, Channels: 2}, "audio_in.channels"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateHello(ClientHello{
				Type:            "hello",
				ProtocolVersion: "1",
				UserID:          "user-1",
				Session:         HelloSession{Type: "technical"},
				AudioIn:         tc.audio,
			})
			var de *DecodeError
			if !errors.As(err, &de) {
				t.Fatalf("expected DecodeError, got %v", err)
			}
			if de.Param != tc.param {
				t.Fatalf("param=%q, want %q", de.Param, tc.param)
			}
		})
	}
}

func TestValidateHello_RejectsUnknownVersion(t *testing.T) {
	err := ValidateHello(ClientHello{
		Type:            "hello",
		ProtocolVersion: "2",
		UserID:          "user-1",
		Session:         HelloSession{Type: "technical"},
		AudioIn:         AudioFormat{Encoding: "pcm_s16le", SampleRateHz: 16000, Channels: 1},
	})
	var de *DecodeError
	if !errors.As(err, &de) || de.Code != "unsupported" {
		t.Fatalf("expected unsupported error, got %v", err)
	}
}

func TestDecodeClientMessage_Control(t *testing.T) {
	for _, op := range []string{"begin", "submit", "skip", "pause", "resume", "end", "accept_recovery", "decline_recovery"} {
		msg, err := DecodeClientMessage([]byte(`{"type":"control","op":"` + op + `"}`))
		if err != nil {
			t.Fatalf("DecodeClientMessage(%s) error = %v", op, err)
		}
		if msg.(ClientControl).Op != op {
			t.Fatalf("op=%q", msg.(ClientControl).Op)
		}
	}

	if _, err := DecodeClientMessage([]byte(`{"type":"control","op":"reboot"}`)); err == nil {
		t.Fatal("expected error for unsupported op")
	}
}

func TestDecodeClientMessage_IntegritySignal(t *testing.T) {
	msg, err := DecodeClientMessage([]byte(`{"type":"integrity_signal","kind":"fullscreen_change","fullscreen":false}`))
	if err != nil {
		t.Fatalf("DecodeClientMessage() error = %v", err)
	}
	sig := msg.(ClientIntegritySignal)
	if sig.Kind != "fullscreen_change" || sig.Fullscreen {
		t.Fatalf("signal=%+v", sig)
	}

	if _, err := DecodeClientMessage([]byte(`{"type":"integrity_signal","kind":"webcam_off"}`)); err == nil {
		t.Fatal("expected error for unknown signal kind")
	}
}

func TestDecodeClientMessage_Transcript(t *testing.T) {
	msg, err := DecodeClientMessage([]byte(`{"type":"transcript","text":"hello there","is_final":true}`))
	if err != nil {
		t.Fatalf("DecodeClientMessage() error = %v", err)
	}
	tr := msg.(ClientTranscript)
	if tr.Text != "hello there" || !tr.IsFinal {
		t.Fatalf("transcript=%+v", tr)
	}

	if _, err := DecodeClientMessage([]byte(`{"type":"transcript","text":""}`)); err == nil {
		t.Fatal("expected error for empty transcript")
	}
}

func TestDecodeClientMessage_RejectsUnknownType(t *testing.T) {
	if _, err := DecodeClientMessage([]byte(`{"type":"telemetry"}`)); err == nil {
		t.Fatal("expected error for unknown type")
	}
	if _, err := DecodeClientMessage([]byte(`not json`)); err == nil {
		t.Fatal("expected error for invalid json")
	}
}

func TestEncodeServerEvent(t *testing.T) {
	data, err := EncodeServerEvent(&interview.SilenceCountdownEvent{
		SecondsLeft:     3,
		SilenceDuration: 2.1,
	})
	if err != nil {
		t.Fatalf("EncodeServerEvent() error = %v", err)
	}

	var frame map[string]any
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("invalid frame json: %v", err)
	}
	if frame["type"] != "silence.countdown" {
		t.Fatalf("type=%v", frame["type"])
	}
	if frame["seconds_left"] != float64(3) {
		t.Fatalf("seconds_left=%v", frame["seconds_left"])
	}
}

func TestEncodeServerError(t *testing.T) {
	data := EncodeServerError(badRequest("missing type", "type"))
	var frame map[string]any
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("invalid error frame: %v", err)
	}
	if frame["code"] != "bad_request" || frame["param"] != "type" {
		t.Fatalf("frame=%v", frame)
	}
}

func TestRedactedForLog(t *testing.T) {
	var hello ClientHello
	if err := json.Unmarshal(validHello(), &hello); err != nil {
		t.Fatal(err)
	}
	hello.Auth = &HelloAuth{APIKey: "secret-key"}

	logged := hello.RedactedForLog()
	if logged["has_api_key"] != true {
		t.Fatal("expected has_api_key=true")
	}
	raw, err := json.Marshal(logged)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(raw), "secret-key") {
		t.Fatal("expected api key to be redacted")
	}
}
