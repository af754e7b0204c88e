// Package tts turns finished scripts into narrated audio.
//
// Several synthesizer backends are provided (Google Cloud Text-to-Speech,
// OpenAI speech, a standalone HTTP TTS service and a local command), all
// behind core.Synthesizer. The Narrator splits a script into chunks, runs
// the backend over them and writes the audio in order.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// API endpoints and paths.
const (
	apiGenerateSpeech = "/v1/generate/speech"
	apiHealth         = "/health"
)

// HTTP headers.
const (
	headerContentType = "Content-Type"
	headerAccept      = "Accept"
	contentTypeJSON   = "application/json"
	contentTypeWAV    = "audio/wav"
	contentTypeMPEG   = "audio/mpeg"
)

// Default values.
const (
	defaultTemperature = 0.75
	defaultLanguage    = "he"
	defaultFormat      = FormatMP3
)

// Audio formats understood by the HTTP service.
const (
	FormatMP3 = "mp3"
	FormatWAV = "wav"
)

// Error messages.
const (
	errFmtServiceErrorWithCode = "TTS service error (%s): %s (code: %s)"
	errFmtServiceNonOKStatus   = "TTS service returned non-OK status: %s, body: %s"
)

// ServiceError is a non-OK answer from the TTS service.
type ServiceError struct {
	Status     string
	StatusCode int
	Detail     string
	Code       string
	Body       string
}

func (e *ServiceError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf(errFmtServiceErrorWithCode, e.Status, e.Detail, e.Code)
	}

	return fmt.Sprintf(errFmtServiceNonOKStatus, e.Status, e.Body)
}

// HTTPStatus returns the response status code.
func (e *ServiceError) HTTPStatus() int {
	return e.StatusCode
}

var (
	// ErrTextEmpty is returned when a synthesis request carries no text.
	ErrTextEmpty = errors.New("text cannot be empty")
	// ErrUnexpectedContentType is returned when the service answers with another audio type.
	ErrUnexpectedContentType = errors.New("unexpected content type")
	// ErrEmptyAudio is returned when a backend answers with no audio bytes.
	ErrEmptyAudio = errors.New("received empty audio data")
	// ErrUnsupportedFormat is returned for audio formats the client cannot request.
	ErrUnsupportedFormat = errors.New("unsupported audio format")
)

// HTTPClient represents a client for the standalone TTS HTTP service.
type HTTPClient struct {
	httpClient  *http.Client
	baseURL     string
	language    string
	temperature float64
	format      string
}

// HTTPClientOptions tunes the requests sent by HTTPClient.
type HTTPClientOptions struct {
	Language    string
	Temperature float64
	Format      string
}

// TTSRequest defines the JSON payload structure for TTS generation requests.
type TTSRequest struct {
	// Text contains the input text to convert to speech.
	Text string `json:"text"`

	// Voice optionally names a server-side voice or speaker reference.
	Voice string `json:"voice,omitempty"`

	// Language specifies the target language code (e.g., "he", "en").
	Language string `json:"language"`

	// Temperature controls randomness in speech generation.
	Temperature float64 `json:"temperature"`

	// Format is the requested audio encoding, "mp3" or "wav".
	Format string `json:"format"`
}

// TTSErrorResponse represents a structured error response from the TTS service.
type TTSErrorResponse struct {
	Detail    string `json:"detail"`
	ErrorCode string `json:"error_code,omitempty"`
}

// NewHTTPClient creates and configures an HTTP client for the TTS service.
// The baseURL should include the protocol and port (e.g., "http://localhost:8000").
func NewHTTPClient(baseURL string, timeout time.Duration, opts HTTPClientOptions) (*HTTPClient, error) {
	if opts.Format == "" {
		opts.Format = defaultFormat
	}

	if opts.Format != FormatMP3 && opts.Format != FormatWAV {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, opts.Format)
	}

	if opts.Language == "" {
		opts.Language = defaultLanguage
	}

	if opts.Temperature == 0 {
		opts.Temperature = defaultTemperature
	}

	return &HTTPClient{
		baseURL:     baseURL,
		httpClient:  &http.Client{Timeout: timeout},
		language:    opts.Language,
		temperature: opts.Temperature,
		format:      opts.Format,
	}, nil
}

// Synthesize implements core.Synthesizer.
func (c *HTTPClient) Synthesize(ctx context.Context, chunk, voice string) ([]byte, error) {
	return c.GenerateSpeech(ctx, TTSRequest{
		Text:        chunk,
		Voice:       voice,
		Language:    c.language,
		Temperature: c.temperature,
		Format:      c.format,
	})
}

// GenerateSpeech sends a TTS generation request and returns the raw audio data.
func (c *HTTPClient) GenerateSpeech(ctx context.Context, req TTSRequest) ([]byte, error) {
	if req.Text == "" {
		return nil, ErrTextEmpty
	}

	if req.Format == "" {
		req.Format = c.format
	}

	if req.Language == "" {
		req.Language = c.language
	}

	requestBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+apiGenerateSpeech,
		bytes.NewBuffer(requestBody),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	expected := contentTypeFor(req.Format)

	httpReq.Header.Set(headerContentType, contentTypeJSON)
	httpReq.Header.Set(headerAccept, expected)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to TTS service at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	contentType := resp.Header.Get(headerContentType)
	if contentType != expected {
		return nil, fmt.Errorf("%w: expected %s, got %s", ErrUnexpectedContentType, expected, contentType)
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio data: %w", err)
	}

	if len(audioData) == 0 {
		return nil, ErrEmptyAudio
	}

	return audioData, nil
}

// HealthCheck verifies that the TTS service is running and operational.
func (c *HTTPClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+apiHealth, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed for service at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed with status: %s", resp.Status)
	}

	return nil
}

// parseErrorResponse decodes a structured JSON error from the service and
// falls back to the raw body.
func (c *HTTPClient) parseErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	serviceErr := &ServiceError{Status: resp.Status, StatusCode: resp.StatusCode, Body: string(body)}

	var errorResp TTSErrorResponse
	if json.Unmarshal(body, &errorResp) == nil {
		serviceErr.Detail = errorResp.Detail
		serviceErr.Code = errorResp.ErrorCode
	}

	return serviceErr
}

func contentTypeFor(format string) string {
	if format == FormatWAV {
		return contentTypeWAV
	}

	return contentTypeMPEG
}
