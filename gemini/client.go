package gemini

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"google.golang.org/genai"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-1.5-flash"

// ErrEmptyResponse is returned when Gemini answers without any text.
var ErrEmptyResponse = errors.New("gemini returned no text")

// Options configure the Gemini client.
type Options struct {
	APIKey  string
	Model   string
	BaseURL string // overrides the public endpoint, mostly for tests
}

// Client sends one prompt to Gemini and returns the generated text
type Client struct {
	client *genai.Client
	model  string
	logger *logrus.Entry
}

// NewClient creates a Gemini API client
func NewClient(ctx context.Context, opts Options, logger *logrus.Entry) (*Client, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("gemini client requires an api key")
	}

	cfg := &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if opts.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	model := opts.Model
	if model == "" {
		model = DefaultModel
	}

	return &Client{
		client: client,
		model:  model,
		logger: logger.WithField("model", model),
	}, nil
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

// Generate sends prompt as the only input and returns the concatenated text
// of the first candidate.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", ErrEmptyResponse
	}

	c.logger.WithField("chars", len(text)).Debug("received reply from Gemini")
	return text, nil
}
