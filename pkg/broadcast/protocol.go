package broadcast

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/opscart/gpu-fleet-sim/pkg/models"
)

// MessageKind is the "type" field of every wire message
type MessageKind string

// Inbound kinds
const (
	KindPing         MessageKind = "ping"
	KindMute         MessageKind = "mute"
	KindUnmute       MessageKind = "unmute"
	KindGetMuteState MessageKind = "get-mute-state"
	KindAskAI        MessageKind = "ask_ai"
	KindAskQuestion  MessageKind = "ask_question"
	KindUnknown      MessageKind = "unknown"
)

// Outbound kinds
const (
	KindTelemetry  MessageKind = "telemetry"
	KindPong       MessageKind = "pong"
	KindMuteState  MessageKind = "mute-state"
	KindAIResponse MessageKind = "ai_response"
	KindAIAnswer   MessageKind = "ai_answer"
	KindAIError    MessageKind = "ai_error"
)

// Inbound is one parsed client message. The concrete types below are the
// only implementations.
type Inbound interface {
	Kind() MessageKind
}

type Ping struct{}

// SetMute covers both "mute" and "unmute"
type SetMute struct {
	Muted bool
}

type GetMuteState struct{}

type AskAI struct {
	WithAudio bool
}

type AskQuestion struct {
	Question  string
	WithAudio bool
}

// Unknown is a well-formed message of a kind this server does not handle
type Unknown struct {
	Type string
}

func (Ping) Kind() MessageKind         { return KindPing }
func (GetMuteState) Kind() MessageKind { return KindGetMuteState }
func (AskAI) Kind() MessageKind        { return KindAskAI }
func (AskQuestion) Kind() MessageKind  { return KindAskQuestion }
func (Unknown) Kind() MessageKind      { return KindUnknown }

func (m SetMute) Kind() MessageKind {
	if m.Muted {
		return KindMute
	}
	return KindUnmute
}

type inboundEnvelope struct {
	Type      *string `json:"type"`
	Question  string  `json:"question"`
	WithAudio bool    `json:"withAudio"`
}

// ParseInbound decodes one client message. An error means the payload is
// malformed (not a JSON object, or no string "type"); unknown kinds parse
// into Unknown.
func ParseInbound(data []byte) (Inbound, error) {
	var env inboundEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("malformed message: %w", err)
	}
	if env.Type == nil {
		return nil, fmt.Errorf("malformed message: missing type")
	}

	switch MessageKind(*env.Type) {
	case KindPing:
		return Ping{}, nil
	case KindMute:
		return SetMute{Muted: true}, nil
	case KindUnmute:
		return SetMute{Muted: false}, nil
	case KindGetMuteState:
		return GetMuteState{}, nil
	case KindAskAI:
		return AskAI{WithAudio: env.WithAudio}, nil
	case KindAskQuestion:
		return AskQuestion{Question: env.Question, WithAudio: env.WithAudio}, nil
	default:
		return Unknown{Type: *env.Type}, nil
	}
}

// TelemetryMessage is the periodic push
type TelemetryMessage struct {
	Type    MessageKind             `json:"type"`
	Payload models.TelemetryPayload `json:"payload"`
}

// PongMessage answers a ping; Time is unix milliseconds
type PongMessage struct {
	Type MessageKind `json:"type"`
	Time int64       `json:"time"`
}

type MuteStateMessage struct {
	Type  MessageKind `json:"type"`
	Muted bool        `json:"muted"`
}

// AIResponseMessage answers ask_ai. Audio is base64 MP3.
type AIResponseMessage struct {
	Type      MessageKind `json:"type"`
	Text      string      `json:"text"`
	Audio     string      `json:"audio,omitempty"`
	Timestamp string      `json:"timestamp"`
}

// AIAnswerMessage answers ask_question. Audio is base64 MP3.
type AIAnswerMessage struct {
	Type      MessageKind `json:"type"`
	Question  string      `json:"question"`
	Answer    string      `json:"answer"`
	Audio     string      `json:"audio,omitempty"`
	Timestamp string      `json:"timestamp"`
}

type AIErrorMessage struct {
	Type  MessageKind `json:"type"`
	Error string      `json:"error"`
}

func NewTelemetryMessage(p models.TelemetryPayload) TelemetryMessage {
	return TelemetryMessage{Type: KindTelemetry, Payload: p}
}

func NewPong(now time.Time) PongMessage {
	return PongMessage{Type: KindPong, Time: now.UnixMilli()}
}

func NewMuteState(muted bool) MuteStateMessage {
	return MuteStateMessage{Type: KindMuteState, Muted: muted}
}

func NewAIResponse(text, audio string, now time.Time) AIResponseMessage {
	return AIResponseMessage{Type: KindAIResponse, Text: text, Audio: audio, Timestamp: models.FormatTimestamp(now)}
}

func NewAIAnswer(question, answer, audio string, now time.Time) AIAnswerMessage {
	return AIAnswerMessage{Type: KindAIAnswer, Question: question, Answer: answer, Audio: audio, Timestamp: models.FormatTimestamp(now)}
}

func NewAIError(msg string) AIErrorMessage {
	return AIErrorMessage{Type: KindAIError, Error: msg}
}
