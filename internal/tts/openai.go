package tts

import (
	"context"
	"errors"
	"fmt"
	"io"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Defaults for the OpenAI speech backend.
const (
	DefaultOpenAISpeechModel = "gpt-4o-mini-tts"
	DefaultOpenAIVoice       = "alloy"
)

// ErrAPIKeyMissing is returned when a hosted backend is configured without credentials.
var ErrAPIKeyMissing = errors.New("api key missing")

// OpenAISpeechConfig configures OpenAISynthesizer.
type OpenAISpeechConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Speed   float64
}

// OpenAISynthesizer implements core.Synthesizer with the OpenAI speech endpoint.
type OpenAISynthesizer struct {
	client openai.Client
	model  string
	speed  float64
}

// NewOpenAISynthesizer creates an OpenAI speech backend producing MP3.
func NewOpenAISynthesizer(cfg OpenAISpeechConfig) (*OpenAISynthesizer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: openai speech", ErrAPIKeyMissing)
	}

	if cfg.Model == "" {
		cfg.Model = DefaultOpenAISpeechModel
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAISynthesizer{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
		speed:  cfg.Speed,
	}, nil
}

// Synthesize implements core.Synthesizer.
func (s *OpenAISynthesizer) Synthesize(ctx context.Context, chunk, voice string) ([]byte, error) {
	if chunk == "" {
		return nil, ErrTextEmpty
	}

	if voice == "" {
		voice = DefaultOpenAIVoice
	}

	params := openai.AudioSpeechNewParams{
		Input:          chunk,
		Model:          openai.SpeechModel(s.model),
		Voice:          openai.AudioSpeechNewParamsVoice(voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatMP3,
	}
	if s.speed > 0 {
		params.Speed = openai.Float(s.speed)
	}

	resp, err := s.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai speech request failed: %w", err)
	}
	defer resp.Body.Close()

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio data: %w", err)
	}

	if len(audioData) == 0 {
		return nil, ErrEmptyAudio
	}

	return audioData, nil
}
