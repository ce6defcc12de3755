package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/room4-2/voicerelay/gemini"
	"github.com/room4-2/voicerelay/logging"
)

func main() {
	prompt := flag.String("prompt", "Hello! Say hi back in one sentence.", "Prompt to send")
	model := flag.String("model", gemini.DefaultModel, "Gemini model")
	timeout := flag.Duration("timeout", 30*time.Second, "Request timeout")
	flag.Parse()

	logger := logging.NewLogger(os.Getenv("LOG_LEVEL"))

	apiKey := os.Getenv("GOOGLE_API_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		logger.Fatal("GOOGLE_API_KEY not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client, err := gemini.NewClient(ctx, gemini.Options{
		APIKey:  apiKey,
		Model:   *model,
		BaseURL: os.Getenv("GEMINI_BASE_URL"),
	}, logging.Component(logger, "gemini"))
	if err != nil {
		logger.WithError(err).Fatal("failed to create client")
	}

	logger.WithFields(logrus.Fields{"model": client.Model(), "prompt": *prompt}).Info("sending prompt")
	start := time.Now()
	text, err := client.Generate(ctx, *prompt)
	if err != nil {
		logger.WithError(err).Fatal("generation failed")
	}

	logger.WithField("elapsed", time.Since(start).Round(time.Millisecond)).Info("reply received")
	fmt.Println(text)
}
