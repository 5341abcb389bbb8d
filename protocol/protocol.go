package protocol

import (
	"encoding/json"
	"fmt"
)

// Message types exchanged over the session channel.
const (
	// client -> server
	TypeControl    = "control"
	TypeImage      = "image"
	TypeAudioChunk = "audio_chunk"
	TypeAudioEnd   = "audio_end"
	TypeText       = "text"

	// server -> client
	TypeStatus   = "status"
	TypeASRFinal = "asr_final"
	TypeLLMToken = "llm_token"
	TypeLLMFinal = "llm_final"
	TypePlan     = "plan"
)

// ActionStart is the only control action the protocol defines.
const ActionStart = "start"

// Envelope is the wire frame for every message in either direction.
// Payload stays raw until the receiver knows what Type it is handling;
// unknown types are carried intact so callers can ignore them.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type ControlPayload struct {
	Action string `json:"action"`
}

// ImagePayload carries one captured frame plus the session configuration
// snapshot taken at session start. Seq is a client-assigned monotonically
// increasing capture number; the server echoes it in the resulting plan.
type ImagePayload struct {
	Seq            int64    `json:"seq"`
	DataURL        string   `json:"data_url"`
	Mime           string   `json:"mime"`
	TargetLanguage string   `json:"target_language"`
	SourceLanguage string   `json:"source_language"`
	Location       string   `json:"location"`
	Actions        []string `json:"actions"`
}

type AudioChunkPayload struct {
	DataB64 string `json:"data_b64"`
	Mime    string `json:"mime"`
}

type AudioEndPayload struct{}

type TextPayload struct {
	Text string `json:"text"`
}

type StatusPayload struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type ASRFinalPayload struct {
	Text string `json:"text"`
}

type LLMTokenPayload struct {
	Token string `json:"token"`
}

type LLMFinalPayload struct {
	Text string `json:"text"`
}

// PlanItem is one vocabulary/object target the backend wants the user to
// find or say. Ordering from the backend is the display and progress order.
type PlanItem struct {
	SourceName string `json:"source_name"`
	TargetName string `json:"target_name"`
	Action     string `json:"action"`
}

type PlanPayload struct {
	Seq          int64      `json:"seq,omitempty"`
	Objects      []PlanItem `json:"objects"`
	SceneMessage string     `json:"scene_message,omitempty"`
}

// NewEnvelope wraps a payload struct into a wire envelope.
func NewEnvelope(msgType string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	return Envelope{Type: msgType, Payload: raw}, nil
}

// Encode serializes an envelope for transmission.
func Encode(env Envelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return data, nil
}

// Decode parses an inbound frame. A frame without a type is rejected;
// the caller drops it rather than treating it as fatal.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("envelope missing type")
	}
	return env, nil
}

// Into unmarshals the envelope payload into a typed payload struct.
func (e Envelope) Into(v any) error {
	if len(e.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("unmarshal %s payload: %w", e.Type, err)
	}
	return nil
}
