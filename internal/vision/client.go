package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"thermascan/api/internal/config"
)

var (
	ErrRateLimited     = errors.New("ai rate limit exceeded")
	ErrPaymentRequired = errors.New("ai credits exhausted")
	ErrUpstream        = errors.New("ai request failed")
)

const systemPrompt = `You are a thermal imaging analysis AI. Analyze thermal images and detect objects with heat signatures. For each detected object, provide its label, detection confidence (0-1), bounding box as percentages of the image dimensions (x, y, width, height, each 0-100), and a temperature category of hot, warm, cool, or cold. Respond with a JSON array only, no other text.`

const userPrompt = `Detect all objects with distinct heat signatures in this thermal image. Return a JSON array of objects with the fields: label, confidence, bbox {x, y, width, height}, temperature.`

// Client calls an OpenAI-compatible chat-completions endpoint with a
// vision-capable model. One request, one response, no retries.
type Client struct {
	http *http.Client
	cfg  config.AIConfig
	log  zerolog.Logger
}

func NewClient(cfg config.AIConfig, log zerolog.Logger) *Client {
	return &Client{
		http: &http.Client{Timeout: cfg.Timeout},
		cfg:  cfg,
		log:  log,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *imageURLPart `json:"image_url,omitempty"`
}

type imageURLPart struct {
	URL string `json:"url"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Detect sends the image as a data URL and returns the raw textual
// content of the first choice. An empty string is a valid result; the
// caller falls back during parsing.
func (c *Client) Detect(ctx context.Context, imageDataURL string) (string, error) {
	payload := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: []contentPart{
				{Type: "text", Text: userPrompt},
				{Type: "image_url", ImageURL: &imageURLPart{URL: imageDataURL}},
			}},
		},
		Temperature: c.cfg.Temperature,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	endpoint := strings.TrimSuffix(c.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", ErrRateLimited
	case resp.StatusCode == http.StatusPaymentRequired:
		return "", ErrPaymentRequired
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		c.log.Warn().Int("status", resp.StatusCode).Msg("ai endpoint returned error status")
		return "", fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", nil
	}
	return parsed.Choices[0].Message.Content, nil
}
