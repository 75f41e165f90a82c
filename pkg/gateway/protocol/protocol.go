// Package protocol defines the websocket wire protocol for interview
// sessions: JSON control frames in, orchestrator events out, candidate
// audio as binary frames or base64 JSON.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/prepdeck/interviewd/pkg/interview"
)

const (
	ProtocolVersion1 = "1"

	// EncodingPCM16 is the only supported inbound audio encoding.
	EncodingPCM16 = "pcm_s16le"

	AudioTransportBinary     = "binary"
	AudioTransportBase64JSON = "base64_json"
)

type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_request", Message: message, Param: param}
}

func unsupported(message, param string) *DecodeError {
	return &DecodeError{Code: "unsupported", Message: message, Param: param}
}

// AudioFormat describes the candidate audio shape.
type AudioFormat struct {
	Encoding     string `json:"encoding"`
	SampleRateHz int    `json:"sample_rate_hz"`
	Channels     int    `json:"channels"`
}

type HelloClient struct {
	Name     string `json:"name,omitempty"`
	Version  string `json:"version,omitempty"`
	Platform string `json:"platform,omitempty"`
}

type HelloAuth struct {
	APIKey string `json:"api_key,omitempty"`
}

type HelloProfile struct {
	Name      string   `json:"name,omitempty"`
	Role      string   `json:"role,omitempty"`
	Seniority string   `json:"seniority,omitempty"`
	Topics    []string `json:"topics,omitempty"`
}

type HelloSession struct {
	Type     string `json:"type"`
	Language string `json:"language,omitempty"`
}

type HelloFeatures struct {
	AudioTransport         string `json:"audio_transport,omitempty"`
	WantPartialTranscripts bool   `json:"want_partial_transcripts,omitempty"`
	// ClientTranscription marks speech-to-text as running client-side;
	// the client then sends transcript frames instead of relying on the
	// server transcriber.
	ClientTranscription bool `json:"client_transcription,omitempty"`
}

type ClientHello struct {
	Type            string        `json:"type"`
	ProtocolVersion string        `json:"protocol_version"`
	Client          HelloClient   `json:"client,omitempty"`
	Auth            *HelloAuth    `json:"auth,omitempty"`
	UserID          string        `json:"user_id"`
	Session         HelloSession  `json:"session"`
	Profile         HelloProfile  `json:"profile,omitempty"`
	AudioIn         AudioFormat   `json:"audio_in"`
	Features        HelloFeatures `json:"features,omitempty"`
}

// RedactedForLog returns the hello with credentials stripped for access logs.
func (h ClientHello) RedactedForLog() map[string]any {
	return map[string]any{
		"type":             h.Type,
		"protocol_version": h.ProtocolVersion,
		"user_id":          h.UserID,
		"session_type":     h.Session.Type,
		"audio_in":         h.AudioIn,
		"features":         h.Features,
		"has_api_key":      h.Auth != nil && strings.TrimSpace(h.Auth.APIKey) != "",
	}
}

type ClientAudioFrame struct {
	Type    string `json:"type"`
	Seq     int64  `json:"seq,omitempty"`
	DataB64 string `json:"data_b64"`
}

// ClientTranscript carries client-side speech-to-text output.
type ClientTranscript struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	IsFinal bool   `json:"is_final,omitempty"`
}

// ClientStructuredAnswer updates the in-progress structured answer.
type ClientStructuredAnswer struct {
	Type     string `json:"type"`
	Code     string `json:"code"`
	Language string `json:"language,omitempty"`
}

// ClientIntegritySignal reports a proctoring signal from the hosting runtime.
type ClientIntegritySignal struct {
	Type       string `json:"type"`
	Kind       string `json:"kind"`
	Fullscreen bool   `json:"fullscreen,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
}

type ClientControl struct {
	Type string `json:"type"`
	Op   string `json:"op"`
}

// Control operations accepted over the wire.
const (
	OpBegin           = "begin"
	OpSubmit          = "submit"
	OpSkip            = "skip"
	OpPause           = "pause"
	OpResume          = "resume"
	OpEnd             = "end"
	OpAcceptRecovery  = "accept_recovery"
	OpDeclineRecovery = "decline_recovery"
)

// DecodeClientMessage parses and validates one client JSON frame.
func DecodeClientMessage(data []byte) (any, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, badRequest("invalid json frame", "")
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, badRequest("missing type", "type")
	}

	switch typ {
	case "hello":
		var msg ClientHello
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid hello frame", "")
		}
		if err := ValidateHello(msg); err != nil {
			return nil, err
		}
		return msg, nil
	case "audio_frame":
		var msg ClientAudioFrame
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid audio_frame", "")
		}
		if strings.TrimSpace(msg.DataB64) == "" {
			return nil, badRequest("audio_frame.data_b64 is required", "data_b64")
		}
		return msg, nil
	case "transcript":
		var msg ClientTranscript
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid transcript", "")
		}
		if msg.Text == "" {
			return nil, badRequest("transcript.text is required", "text")
		}
		return msg, nil
	case "structured_answer":
		var msg ClientStructuredAnswer
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid structured_answer", "")
		}
		return msg, nil
	case "integrity_signal":
		var msg ClientIntegritySignal
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid integrity_signal", "")
		}
		switch strings.TrimSpace(msg.Kind) {
		case "fullscreen_change", "tab_hidden", "window_blur":
		default:
			return nil, unsupported("unsupported integrity signal kind", "kind")
		}
		return msg, nil
	case "control":
		var msg ClientControl
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid control", "")
		}
		op := strings.TrimSpace(msg.Op)
		if op == "" {
			return nil, badRequest("control.op is required", "op")
		}
		switch op {
		case OpBegin, OpSubmit, OpSkip, OpPause, OpResume, OpEnd, OpAcceptRecovery, OpDeclineRecovery:
		default:
			return nil, unsupported("unsupported control operation", "op")
		}
		msg.Op = op
		return msg, nil
	default:
		return nil, badRequest("unsupported message type", "type")
	}
}

// ValidateHello checks the handshake frame. The audio format is strict:
// the silence detector and transcriber are tuned for 16kHz mono PCM.
func ValidateHello(msg ClientHello) error {
	if strings.TrimSpace(msg.ProtocolVersion) == "" {
		return badRequest("hello.protocol_version is required", "protocol_version")
	}
	if msg.ProtocolVersion != ProtocolVersion1 {
		return unsupported("unsupported protocol version", "protocol_version")
	}
	if strings.TrimSpace(msg.UserID) == "" {
		return badRequest("hello.user_id is required", "user_id")
	}
	if strings.TrimSpace(msg.Session.Type) == "" {
		return badRequest("hello.session.type is required", "session.type")
	}
	if strings.TrimSpace(msg.AudioIn.Encoding) == "" {
		return badRequest("hello.audio_in.encoding is required", "audio_in.encoding")
	}
	if msg.AudioIn.Encoding != EncodingPCM16 {
		return unsupported("unsupported audio encoding", "audio_in.encoding")
	}
	if msg.AudioIn.SampleRateHz != 16000 {
		return unsupported("audio_in.sample_rate_hz must be 16000", "audio_in.sample_rate_hz")
	}
	if msg.AudioIn.Channels != 1 {
		return unsupported("audio_in.channels must be 1", "audio_in.channels")
	}

	transport := strings.TrimSpace(msg.Features.AudioTransport)
	switch transport {
	case "", AudioTransportBinary, AudioTransportBase64JSON:
		return nil
	default:
		return unsupported("unsupported audio transport", "features.audio_transport")
	}
}

// ServerHello acknowledges the handshake.
type ServerHello struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	SessionID       string `json:"session_id"`
}

// EncodeServerHello builds the hello acknowledgement frame.
func EncodeServerHello(sessionID string) ([]byte, error) {
	return json.Marshal(ServerHello{
		Type:            "hello_ack",
		ProtocolVersion: ProtocolVersion1,
		SessionID:       sessionID,
	})
}

// EncodeServerEvent wraps an orchestrator event as a typed JSON frame.
func EncodeServerEvent(ev interview.Event) ([]byte, error) {
	raw, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("flatten event: %w", err)
	}
	if fields == nil {
		fields = map[string]any{}
	}
	fields["type"] = ev.EventType()
	return json.Marshal(fields)
}

// ServerError is the error frame sent before closing a broken connection.
type ServerError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Param   string `json:"param,omitempty"`
}

// EncodeServerError builds an error frame. A DecodeError keeps its code
// and param; anything else becomes an internal error.
func EncodeServerError(err error) []byte {
	frame := ServerError{Type: "error", Code: "internal", Message: "internal error"}
	var de *DecodeError
	if errors.As(err, &de) {
		frame.Code = de.Code
		frame.Message = de.Message
		frame.Param = de.Param
	} else if err != nil {
		frame.Message = err.Error()
	}
	data, merr := json.Marshal(frame)
	if merr != nil {
		return []byte(`{"type":"error","code":"internal","message":"internal error"}`)
	}
	return data
}
