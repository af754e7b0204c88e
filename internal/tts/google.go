package tts

import (
	"context"
	"fmt"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/api/option"

	"github.com/book-expert/podcast-service/internal/tts/text"
)

// Defaults for the Google Cloud backend.
const (
	DefaultGoogleVoice        = "he-IL-Wavenet-D"
	DefaultGoogleLanguageCode = "he-IL"
)

// speechAPI is the part of the Cloud Text-to-Speech client used here.
type speechAPI interface {
	SynthesizeSpeech(
		ctx context.Context,
		req *texttospeechpb.SynthesizeSpeechRequest,
		opts ...gax.CallOption,
	) (*texttospeechpb.SynthesizeSpeechResponse, error)
}

// GoogleSpeechConfig configures GoogleSynthesizer.
type GoogleSpeechConfig struct {
	CredentialsFile string
	LanguageCode    string
	SpeakingRate    float64
	SSML            text.SSMLOptions
}

// GoogleSynthesizer implements core.Synthesizer with Google Cloud
// Text-to-Speech. Chunks are rendered as SSML and returned as MP3.
type GoogleSynthesizer struct {
	api      speechAPI
	closeAPI func() error
	cfg      GoogleSpeechConfig
}

// NewGoogleSynthesizer dials the Cloud Text-to-Speech API. Credentials come
// from cfg.CredentialsFile or the ambient application default credentials.
func NewGoogleSynthesizer(ctx context.Context, cfg GoogleSpeechConfig) (*GoogleSynthesizer, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := texttospeech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create text-to-speech client: %w", err)
	}

	synth := newGoogleSynthesizer(client, cfg)
	synth.closeAPI = client.Close

	return synth, nil
}

func newGoogleSynthesizer(api speechAPI, cfg GoogleSpeechConfig) *GoogleSynthesizer {
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = DefaultGoogleLanguageCode
	}

	if cfg.SpeakingRate <= 0 {
		cfg.SpeakingRate = 1.0
	}

	return &GoogleSynthesizer{api: api, cfg: cfg}
}

// Synthesize implements core.Synthesizer.
func (g *GoogleSynthesizer) Synthesize(ctx context.Context, chunk, voice string) ([]byte, error) {
	if chunk == "" {
		return nil, ErrTextEmpty
	}

	if voice == "" {
		voice = DefaultGoogleVoice
	}

	resp, err := g.api.SynthesizeSpeech(ctx, &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Ssml{Ssml: text.BuildSSML(chunk, g.cfg.SSML)},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: g.cfg.LanguageCode,
			Name:         voice,
		},
		AudioConfig: &texttospeechpb.AudioConfig{
			AudioEncoding: texttospeechpb.AudioEncoding_MP3,
			SpeakingRate:  g.cfg.SpeakingRate,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("google synthesize speech failed: %w", err)
	}

	if len(resp.GetAudioContent()) == 0 {
		return nil, ErrEmptyAudio
	}

	return resp.GetAudioContent(), nil
}

// Close releases the underlying gRPC connection.
func (g *GoogleSynthesizer) Close() error {
	if g.closeAPI == nil {
		return nil
	}

	return g.closeAPI()
}
