package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/opscart/gpu-fleet-sim/pkg/models"
)

// ErrSpeechUnavailable is returned by Speak when no speech service is configured
var ErrSpeechUnavailable = errors.New("speech synthesis unavailable")

// Gateway produces natural-language analysis of fleet reports and,
// optionally, spoken renditions of it.
type Gateway interface {
	Analyze(ctx context.Context, report models.FleetReport) (string, error)
	Answer(ctx context.Context, report models.FleetReport, question string) (string, error)
	Speak(ctx context.Context, text string) ([]byte, error)
}

// Config describes an OpenAI-compatible analysis service
type Config struct {
	BaseURL     string // e.g. https://api.openai.com
	APIKey      string
	Model       string
	SpeechModel string // empty disables Speak
	SpeechVoice string
	Timeout     time.Duration
}

// New returns the OpenAI client when an API key is configured and the
// offline summarizer otherwise.
func New(cfg Config) Gateway {
	if cfg.APIKey == "" {
		return NewOffline()
	}
	return NewOpenAI(cfg, nil)
}
