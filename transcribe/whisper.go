package transcribe

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/sirupsen/logrus"
)

// Model is the fixed speech-to-text model.
const Model = openai.AudioModelWhisper1

// Audio is one uploaded recording.
type Audio struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Whisper forwards audio to the OpenAI transcription API
type Whisper struct {
	client openai.Client
	logger *logrus.Entry
}

// NewWhisper creates a transcriber authenticated with apiKey.
// baseURL is optional and replaces https://api.openai.com/v1.
func NewWhisper(apiKey, baseURL string, logger *logrus.Entry) *Whisper {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		// one upload, one request
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(baseURL, "/")+"/"))
	}
	return &Whisper{
		client: openai.NewClient(opts...),
		logger: logger,
	}
}

// Transcribe sends the audio in one multipart request and returns the text field.
// The file part carries the upload's filename and content type.
func (w *Whisper) Transcribe(ctx context.Context, audio Audio) (string, error) {
	filename := uploadFilename(audio.Filename, audio.ContentType)

	resp, err := w.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(audio.Data), filename, partContentType(audio.ContentType)),
		Model: Model,
	})
	if err != nil {
		return "", fmt.Errorf("whisper transcription failed: %w", err)
	}

	w.logger.WithFields(logrus.Fields{
		"file":  filename,
		"bytes": len(audio.Data),
		"chars": len(resp.Text),
	}).Debug("transcribed audio")
	return resp.Text, nil
}

func partContentType(contentType string) string {
	if strings.TrimSpace(contentType) == "" {
		return "application/octet-stream"
	}
	return contentType
}

// uploadFilename keeps the client's filename and makes sure it carries an
// extension, since Whisper detects the audio format from it.
func uploadFilename(name, contentType string) string {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "." || name == string(filepath.Separator) {
		name = ""
	}
	if filepath.Ext(name) != "" {
		return name
	}
	if name == "" {
		name = "audio"
	}
	return name + extensionFor(contentType)
}

func extensionFor(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ".wav"
	}
	switch strings.ToLower(mediaType) {
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/mp4", "audio/m4a", "audio/x-m4a":
		return ".m4a"
	case "audio/webm", "video/webm":
		return ".webm"
	case "audio/ogg", "audio/opus":
		return ".ogg"
	case "audio/flac", "audio/x-flac":
		return ".flac"
	default:
		return ".wav"
	}
}
