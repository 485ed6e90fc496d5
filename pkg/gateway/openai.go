package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/opscart/gpu-fleet-sim/pkg/models"
)

const (
	defaultBaseURL = "https://api.openai.com"
	defaultTimeout = 30 * time.Second
	maxTokens      = 300

	// audio responses are bounded so a misbehaving server cannot exhaust memory
	maxSpeechBytes = 8 << 20
)

// OpenAI talks to any service implementing the OpenAI chat completions and
// audio speech wire formats.
type OpenAI struct {
	httpClient *http.Client
	cfg        Config
}

// NewOpenAI creates a client. A nil httpClient uses one with cfg.Timeout.
func NewOpenAI(cfg Config, httpClient *http.Client) *OpenAI {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &OpenAI{httpClient: httpClient, cfg: cfg}
}

// Analyze asks for a summary of the report
func (c *OpenAI) Analyze(ctx context.Context, report models.FleetReport) (string, error) {
	return c.complete(ctx, analyzeMessage(report))
}

// Answer asks a free-text question about the report
func (c *OpenAI) Answer(ctx context.Context, report models.FleetReport, question string) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", fmt.Errorf("gateway/openai: question must not be empty")
	}
	return c.complete(ctx, answerMessage(report, question))
}

// Speak renders text to MP3 audio
func (c *OpenAI) Speak(ctx context.Context, text string) ([]byte, error) {
	if c.cfg.SpeechModel == "" {
		return nil, ErrSpeechUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	resp, err := c.post(ctx, "/v1/audio/speech", speechRequest{
		Model:          c.cfg.SpeechModel,
		Input:          text,
		Voice:          c.cfg.SpeechVoice,
		ResponseFormat: "mp3",
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(io.LimitReader(resp.Body, maxSpeechBytes))
	if err != nil {
		return nil, fmt.Errorf("gateway/openai: reading audio: %w", err)
	}
	return audio, nil
}

func (c *OpenAI) complete(ctx context.Context, userMessage string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	resp, err := c.post(ctx, "/v1/chat/completions", chatRequest{
		Model:     c.cfg.Model,
		MaxTokens: maxTokens,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userMessage},
		},
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var wire chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return "", fmt.Errorf("gateway/openai: decoding response: %w", err)
	}
	if len(wire.Choices) == 0 {
		return "", fmt.Errorf("gateway/openai: response has no choices")
	}

	text := strings.TrimSpace(wire.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("gateway/openai: empty completion")
	}
	return text, nil
}

func (c *OpenAI) post(ctx context.Context, path string, wireRequest any) (*http.Response, error) {
	body, err := json.Marshal(wireRequest)
	if err != nil {
		return nil, fmt.Errorf("gateway/openai: marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("gateway/openai: creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway/openai: sending request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, readAPIError(resp)
	}
	return resp, nil
}

// APIError is a non-200 response from the analysis service
type APIError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("gateway/openai: HTTP %d: %s: %s", e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("gateway/openai: HTTP %d: %s", e.StatusCode, e.Message)
}

// readAPIError parses {"error":{"type":"...","message":"..."}} bodies and
// falls back to the raw body text.
func readAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var wire struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	apiErr := &APIError{StatusCode: resp.StatusCode}
	if json.Unmarshal(body, &wire) == nil && wire.Error.Message != "" {
		apiErr.Type = wire.Error.Type
		apiErr.Message = wire.Error.Message
	} else {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}

// --- wire types ---

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type speechRequest struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format"`
}
