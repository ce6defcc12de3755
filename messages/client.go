package messages

import (
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
)

// ErrMalformedMessage is returned when an inbound frame is not a chat message.
var ErrMalformedMessage = errors.New("malformed message")

// ClientMessage represents one chat turn sent by the frontend
type ClientMessage struct {
	Message string `json:"message"`
}

type rawClientMessage struct {
	Message *string `json:"message"`
}

// DecodeClientMessage parses a text frame of the form {"message": "..."}.
// The message field must be present and a string; an empty string is valid.
func DecodeClientMessage(frame []byte) (ClientMessage, error) {
	var raw rawClientMessage
	if err := sonic.Unmarshal(frame, &raw); err != nil {
		return ClientMessage{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if raw.Message == nil {
		return ClientMessage{}, fmt.Errorf("%w: missing message field", ErrMalformedMessage)
	}
	return ClientMessage{Message: *raw.Message}, nil
}
