package messages

import "github.com/bytedance/sonic"

// Message types
const (
	TypeAIResponse = "ai_response"
	TypeError      = "error"
)

// Fixed texts sent when a turn cannot be answered normally.
const (
	FallbackReply = "Sorry, Gemini failed."
	ErrorNotice   = "Invalid input or system error"
)

// ServerMessage represents a notification sent to the frontend client
type ServerMessage struct {
	Type    string `json:"type"` // "ai_response", "error"
	Message string `json:"message"`
}

// NewAIResponseMessage creates a reply notification
func NewAIResponseMessage(text string) ServerMessage {
	return ServerMessage{Type: TypeAIResponse, Message: text}
}

// NewErrorMessage creates an error notification
func NewErrorMessage(text string) ServerMessage {
	return ServerMessage{Type: TypeError, Message: text}
}

// Encode renders the notification as a JSON text frame.
func (m ServerMessage) Encode() ([]byte, error) {
	return sonic.Marshal(m)
}

// TranscriptionResponse is the body returned by the transcription endpoint
type TranscriptionResponse struct {
	Transcription string `json:"transcription"`
}
