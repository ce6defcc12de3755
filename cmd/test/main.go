package main

import (
	"bufio"
	"bytes"
	"flag"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/room4-2/voicerelay/messages"
)

func main() {
	// Flags
	serverURL := flag.String("server", "http://localhost:8000", "Relay server base URL")
	audioFile := flag.String("file", "", "Audio file to transcribe before chatting")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	base := strings.TrimSuffix(*serverURL, "/")
	wsURL := "ws" + strings.TrimPrefix(base, "http") + "/ws"

	log.Infof("connecting to %s", wsURL)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		log.WithError(err).Fatal("failed to connect")
	}
	defer conn.Close()
	log.Info("connected")

	// Handle interrupt
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	replies := make(chan messages.ServerMessage)
	done := make(chan struct{})

	// Read notifications from server
	go func() {
		defer close(done)
		for {
			_, frame, err := conn.ReadMessage()
			if err != nil {
				log.WithError(err).Info("read loop ended")
				return
			}
			var msg messages.ServerMessage
			if err := sonic.Unmarshal(frame, &msg); err != nil {
				log.WithError(err).Warn("unparseable notification")
				continue
			}
			replies <- msg
		}
	}()

	send := func(text string) bool {
		payload, err := sonic.Marshal(map[string]string{"message": text})
		if err != nil {
			log.WithError(err).Error("encode failed")
			return false
		}
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			log.WithError(err).Error("send failed")
			return false
		}
		select {
		case msg := <-replies:
			fmt.Printf("[%s] %s\n", msg.Type, msg.Message)
			return true
		case <-done:
			log.Info("connection closed")
			return false
		case <-interrupt:
			return false
		case <-time.After(60 * time.Second):
			log.Warn("timeout waiting for reply")
			return false
		}
	}

	if *audioFile != "" {
		text, err := transcribeFile(base+"/transcribe/", *audioFile)
		if err != nil {
			log.WithError(err).Fatal("transcription request failed")
		}
		log.WithField("transcription", text).Info("audio transcribed")
		if text != "" && !send(text) {
			return
		}
	}

	fmt.Println("type a message, ctrl-d to quit")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if !send(scanner.Text()) {
			break
		}
	}

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	select {
	case <-done:
	case <-time.After(time.Second):
	}
}

// transcribeFile uploads path as the "audio" field and returns the transcription.
func transcribeFile(url, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("audio", filepath.Base(path))
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	resp, err := http.Post(url, writer.FormDataContentType(), body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	var out messages.TranscriptionResponse
	if err := sonic.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("unexpected response %q: %w", raw, err)
	}
	return out.Transcription, nil
}
