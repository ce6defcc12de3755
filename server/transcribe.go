package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/room4-2/voicerelay/messages"
	"github.com/room4-2/voicerelay/transcribe"
)

const (
	audioField         = "audio"
	maxMultipartMemory = 32 << 20 // parts beyond this spill to temp files
)

var errNoAudio = errors.New("no audio file in request")

// Transcriber turns one recording into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio transcribe.Audio) (string, error)
}

// handleTranscribe always answers 200. Any failure yields an empty transcription.
func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	resp := messages.TranscriptionResponse{}
	logger := s.logger.WithField("request_id", middleware.GetReqID(r.Context()))

	audio, err := readUpload(r)
	if err != nil {
		logger.WithError(err).Warn("unusable transcription upload")
		s.respondJSON(w, http.StatusOK, resp)
		return
	}

	text, err := s.transcriber.Transcribe(r.Context(), audio)
	if err != nil {
		logger.WithError(err).Error("Whisper error")
		s.respondJSON(w, http.StatusOK, resp)
		return
	}

	resp.Transcription = text
	s.respondJSON(w, http.StatusOK, resp)
}

// readUpload takes the "audio" part, or the first file part when that is absent.
func readUpload(r *http.Request) (transcribe.Audio, error) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		return transcribe.Audio{}, fmt.Errorf("failed to parse multipart form: %w", err)
	}
	defer r.MultipartForm.RemoveAll()

	header := pickFile(r.MultipartForm)
	if header == nil {
		return transcribe.Audio{}, errNoAudio
	}

	file, err := header.Open()
	if err != nil {
		return transcribe.Audio{}, fmt.Errorf("failed to open upload: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return transcribe.Audio{}, fmt.Errorf("failed to read upload: %w", err)
	}

	return transcribe.Audio{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func pickFile(form *multipart.Form) *multipart.FileHeader {
	if form == nil || len(form.File) == 0 {
		return nil
	}
	if files := form.File[audioField]; len(files) > 0 {
		return files[0]
	}

	fields := make([]string, 0, len(form.File))
	for field := range form.File {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		if files := form.File[field]; len(files) > 0 {
			return files[0]
		}
	}
	return nil
}
