package assistant

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"ramallah-time/internal/listing"
)

// FallbackReply is returned whenever the assistant cannot answer.
const FallbackReply = "Sorry, the Ramallah Time assistant is not available right now. Please try again in a little while."

var (
	// ErrUnavailable means the AI service is not configured or not answering.
	ErrUnavailable = errors.New("assistant service unavailable")
	// ErrInvalidImage means a scan was requested for a file that is not an accepted image.
	ErrInvalidImage = errors.New("unsupported file type; please upload images only")
)

// Completer is the part of the OpenAI client the assistant uses.
type Completer interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Config holds assistant settings.
type Config struct {
	APIKey           string
	Model            string
	Timeout          time.Duration
	FailureThreshold int
	ResetTimeout     time.Duration
}

// Client answers visitor questions and reads business details from photos.
type Client struct {
	api     Completer
	model   string
	timeout time.Duration
	breaker *CircuitBreaker
}

// New returns a client. Without an API key every call degrades.
func New(cfg Config) *Client {
	var api Completer
	if cfg.APIKey != "" {
		api = openai.NewClient(cfg.APIKey)
	} else {
		log.Printf("Assistant: no API key configured, assistant disabled")
	}
	return NewWithCompleter(api, cfg)
}

// NewWithCompleter returns a client backed by api.
func NewWithCompleter(api Completer, cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = openai.GPT4o
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		api:     api,
		model:   cfg.Model,
		timeout: cfg.Timeout,
		breaker: NewCircuitBreaker(cfg.FailureThreshold, cfg.ResetTimeout),
	}
}

// Enabled reports whether an AI backend is configured.
func (c *Client) Enabled() bool {
	return c.api != nil
}

// Chat answers question using places as the only directory knowledge.
// It never fails: any problem yields FallbackReply.
func (c *Client) Chat(ctx context.Context, question string, places []listing.Summary) string {
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: guidePrompt(places)},
			{Role: openai.ChatMessageRoleUser, Content: question},
		},
		Temperature: 0.7,
	}

	reply, err := c.complete(ctx, req)
	if err != nil {
		log.Printf("Assistant: chat degraded to fallback: %v", err)
		return FallbackReply
	}
	return reply
}

// ScanResult is what the assistant could read from a storefront or menu photo.
type ScanResult struct {
	Name        string `json:"name"`
	Category    string `json:"category"`
	Area        string `json:"area"`
	Address     string `json:"address"`
	Phone       string `json:"phone"`
	WhatsApp    string `json:"whatsapp"`
	Website     string `json:"website"`
	Instagram   string `json:"instagram"`
	OpenHours   string `json:"open_hours"`
	PriceRange  string `json:"price_range"`
	Description string `json:"description"`
	Tags        string `json:"tags"`
}

// ScanImage extracts business details from a photo.
func (c *Client) ScanImage(ctx context.Context, filename string, data []byte) (*ScanResult, error) {
	ext, ok := listing.ImageExtension(filename)
	if !ok || len(data) == 0 {
		return nil, ErrInvalidImage
	}

	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType(ext), base64.StdEncoding.EncodeToString(data))
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: scanPrompt},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: "Extract business details."},
					{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
						URL:    dataURL,
						Detail: openai.ImageURLDetailAuto,
					}},
				},
			},
		},
		Temperature: 0.2,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	content, err := c.complete(ctx, req)
	if err != nil {
		log.Printf("Assistant: scan failed: %v", err)
		return nil, ErrUnavailable
	}

	var res ScanResult
	if err := json.Unmarshal([]byte(content), &res); err != nil {
		log.Printf("Assistant: scan returned malformed JSON: %v", err)
		return nil, ErrUnavailable
	}
	return &res, nil
}

func (c *Client) complete(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	if c.api == nil {
		return "", ErrUnavailable
	}
	if !c.breaker.CanProceed() {
		return "", fmt.Errorf("%w: circuit open", ErrUnavailable)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		c.breaker.RecordFailure()
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		c.breaker.RecordFailure()
		return "", errors.New("chat completion returned no content")
	}
	c.breaker.RecordSuccess()
	return resp.Choices[0].Message.Content, nil
}

func mimeType(ext string) string {
	switch ext {
	case "png":
		return "image/png"
	case "webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
