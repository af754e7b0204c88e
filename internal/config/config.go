// Package config provides the configuration structure for the podcast-service.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
	"github.com/joho/godotenv"

	"github.com/book-expert/podcast-service/internal/script"
)

// Providers.
const (
	ProviderOpenAI  = "openai"
	ProviderGoogle  = "google"
	ProviderHTTP    = "http"
	ProviderCommand = "command"
)

// Script length policies.
const (
	PolicyReserve = "reserve"
	PolicyTight   = "tight"
)

// Default values applied by ApplyDefaults.
const (
	defaultNATSURL          = "nats://127.0.0.1:4222"
	defaultAudioBucket      = "EPISODE_AUDIO"
	defaultEpisodeBucket    = "EPISODES"
	defaultDraftBucket      = "EPISODE_DRAFTS"
	defaultDraftTTLHours    = 24
	defaultHandleTimeoutSec = 300
	defaultAPIKeyEnv        = "OPENAI_API_KEY"
	defaultCredentialsEnv   = "GOOGLE_APPLICATION_CREDENTIALS"
	defaultLLMTimeoutSec    = 120
	defaultLLMRetries       = 5
	defaultTTSTimeoutSec    = 60
	defaultTTSRetries       = 3
	defaultLogsDir          = "logs"
	defaultSummaryLanguage  = "he"
	defaultSummarySentences = 6
	defaultSummaryTimeout   = 15
	defaultChunkSize        = 1200
	defaultTTSWorkers       = 1
	maxStopSequences        = 4
)

var (
	// ErrUnknownProvider is returned for an unsupported provider name.
	ErrUnknownProvider = errors.New("unknown provider")
	// ErrUnknownPolicy is returned for an unsupported script policy name.
	ErrUnknownPolicy = errors.New("unknown script policy")
	// ErrInvalidWindow is returned when the length window factors are inconsistent.
	ErrInvalidWindow = errors.New("lower bound factor must be positive and below the upper bound factor")
	// ErrTooManyStopSequences is returned when more stop sequences are configured than the API accepts.
	ErrTooManyStopSequences = errors.New("too many stop sequences")
	// ErrMissingSetting is returned when a provider lacks a required setting.
	ErrMissingSetting = errors.New("missing setting")
	// ErrInvalidContinuations is returned for a negative continuation count.
	ErrInvalidContinuations = errors.New("max continuation rounds cannot be negative")
)

// NATSConfig holds the configuration for NATS.
type NATSConfig struct {
	URL                  string `toml:"url"`
	AudioBucket          string `toml:"audio_bucket"`
	EpisodeBucket        string `toml:"episode_bucket"`
	DraftBucket          string `toml:"draft_bucket"`
	DraftTTLHours        int    `toml:"draft_ttl_hours"`
	GenerateSubject      string `toml:"generate_subject"`
	RateSubject          string `toml:"rate_subject"`
	ListSubject          string `toml:"list_subject"`
	DeleteSubject        string `toml:"delete_subject"`
	QueueGroup           string `toml:"queue_group"`
	HandleTimeoutSeconds int    `toml:"handle_timeout_seconds"`
}

// LLMConfig holds the configuration of the script-writing model.
type LLMConfig struct {
	Provider       string `toml:"provider"`
	Model          string `toml:"model"`
	BaseURL        string `toml:"base_url"`
	APIKeyEnv      string `toml:"api_key_env"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	MaxRetries     int    `toml:"max_retries"`
}

// ScriptConfig holds the length calibration and sampling settings.
type ScriptConfig struct {
	CharsPerMinute        int      `toml:"chars_per_minute"`
	MinCharsFloor         int      `toml:"min_chars_floor"`
	Policy                string   `toml:"policy"`
	LowerBoundFactor      float64  `toml:"lower_bound_factor"`
	UpperBoundFactor      float64  `toml:"upper_bound_factor"`
	ClosingReserve        int      `toml:"closing_reserve"`
	MaxContinuationRounds *int     `toml:"max_continuation_rounds"`
	AvgCharsPerToken      float64  `toml:"avg_chars_per_token"`
	MaxTokenBuffer        float64  `toml:"max_token_buffer"`
	MinTokensFloor        int      `toml:"min_tokens_floor"`
	Temperature           *float64 `toml:"temperature"`
	PresencePenalty       *float64 `toml:"presence_penalty"`
	FrequencyPenalty      *float64 `toml:"frequency_penalty"`
	Closing               string   `toml:"closing"`
	StopSequences         []string `toml:"stop_sequences"`
}

// SummaryConfig holds the reference summary settings.
type SummaryConfig struct {
	Language       string `toml:"language"`
	Sentences      int    `toml:"sentences"`
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// TTSConfig holds the speech synthesis settings.
type TTSConfig struct {
	Provider       string   `toml:"provider"`
	Voice          string   `toml:"voice"`
	LanguageCode   string   `toml:"language_code"`
	SpeakingRate   float64  `toml:"speaking_rate"`
	ChunkSize      int      `toml:"chunk_size"`
	Workers        int      `toml:"workers"`
	MaxRetries     int      `toml:"max_retries"`
	TimeoutSeconds int      `toml:"timeout_seconds"`
	CredentialsEnv string   `toml:"credentials_env"`
	Model          string   `toml:"model"`
	BaseURL        string   `toml:"base_url"`
	Format         string   `toml:"format"`
	CommandPath    string   `toml:"command_path"`
	CommandArgs    []string `toml:"command_args"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
}

// EpisodesConfig holds the episode workflow settings.
type EpisodesConfig struct {
	AudioPrefix  string `toml:"audio_prefix"`
	DisableCache bool   `toml:"disable_cache"`
}

// Config is the root configuration structure.
type Config struct {
	NATS     NATSConfig     `toml:"nats"`
	LLM      LLMConfig      `toml:"llm"`
	Script   ScriptConfig   `toml:"script"`
	Summary  SummaryConfig  `toml:"summary"`
	TTS      TTSConfig      `toml:"tts"`
	Paths    PathsConfig    `toml:"paths"`
	Episodes EpisodesConfig `toml:"episodes"`
}

// Load loads the configuration for the podcast-service, fills defaults and validates it.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// LoadEnv seeds the environment from the given .env files. Variables that
// are already set win, and missing files are ignored.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}

	present := make([]string, 0, len(files))

	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			present = append(present, f)
		}
	}

	if len(present) == 0 {
		return nil
	}

	if err := godotenv.Load(present...); err != nil {
		return fmt.Errorf("failed to load env files %v: %w", present, err)
	}

	return nil
}

// ApplyDefaults fills zero values with the reference settings.
func (c *Config) ApplyDefaults() {
	setString(&c.NATS.URL, defaultNATSURL)
	setString(&c.NATS.AudioBucket, defaultAudioBucket)
	setString(&c.NATS.EpisodeBucket, defaultEpisodeBucket)
	setString(&c.NATS.DraftBucket, defaultDraftBucket)
	setInt(&c.NATS.DraftTTLHours, defaultDraftTTLHours)
	setInt(&c.NATS.HandleTimeoutSeconds, defaultHandleTimeoutSec)

	setString(&c.LLM.Provider, ProviderOpenAI)
	setString(&c.LLM.APIKeyEnv, defaultAPIKeyEnv)
	setInt(&c.LLM.TimeoutSeconds, defaultLLMTimeoutSec)
	setInt(&c.LLM.MaxRetries, defaultLLMRetries)

	setString(&c.Script.Policy, PolicyReserve)
	setString(&c.Script.Closing, script.DefaultClosing)

	if len(c.Script.StopSequences) == 0 {
		c.Script.StopSequences = append([]string(nil), script.DefaultStopSequences...)
	}

	setString(&c.Summary.Language, defaultSummaryLanguage)
	setInt(&c.Summary.Sentences, defaultSummarySentences)
	setInt(&c.Summary.TimeoutSeconds, defaultSummaryTimeout)

	setString(&c.TTS.Provider, ProviderGoogle)
	setString(&c.TTS.CredentialsEnv, defaultCredentialsEnv)
	setInt(&c.TTS.ChunkSize, defaultChunkSize)
	setInt(&c.TTS.Workers, defaultTTSWorkers)
	setInt(&c.TTS.MaxRetries, defaultTTSRetries)
	setInt(&c.TTS.TimeoutSeconds, defaultTTSTimeoutSec)

	setString(&c.Paths.BaseLogsDir, defaultLogsDir)
}

// Validate rejects settings that cannot work together.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case ProviderOpenAI:
	default:
		return fmt.Errorf("%w: llm provider %q", ErrUnknownProvider, c.LLM.Provider)
	}

	switch c.TTS.Provider {
	case ProviderGoogle, ProviderOpenAI:
	case ProviderHTTP:
		if c.TTS.BaseURL == "" {
			return fmt.Errorf("%w: tts.base_url is required for the http provider", ErrMissingSetting)
		}
	case ProviderCommand:
		if c.TTS.CommandPath == "" {
			return fmt.Errorf("%w: tts.command_path is required for the command provider", ErrMissingSetting)
		}
	default:
		return fmt.Errorf("%w: tts provider %q", ErrUnknownProvider, c.TTS.Provider)
	}

	switch strings.ToLower(c.Script.Policy) {
	case PolicyReserve, PolicyTight:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownPolicy, c.Script.Policy)
	}

	lower, upper := c.Script.LowerBoundFactor, c.Script.UpperBoundFactor
	if (lower != 0 || upper != 0) && (lower <= 0 || upper <= lower) {
		return fmt.Errorf("%w: lower=%.2f upper=%.2f", ErrInvalidWindow, lower, upper)
	}

	if rounds := c.Script.MaxContinuationRounds; rounds != nil && *rounds < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidContinuations, *rounds)
	}

	if len(c.Script.StopSequences) > maxStopSequences {
		return fmt.Errorf("%w: %d > %d", ErrTooManyStopSequences, len(c.Script.StopSequences), maxStopSequences)
	}

	return nil
}

// ComposerConfig converts the script section into a composer configuration.
func (c *Config) ComposerConfig() script.Config {
	cfg := script.DefaultConfig()

	if strings.EqualFold(c.Script.Policy, PolicyTight) {
		cfg.Policy = script.TightPolicy()
	}

	s := c.Script
	setInt(&s.CharsPerMinute, cfg.Pacing.CharsPerMinute)
	setInt(&s.MinCharsFloor, cfg.Pacing.MinCharsFloor)
	setInt(&s.ClosingReserve, cfg.Policy.ClosingReserve)
	setInt(&s.MinTokensFloor, cfg.Tokens.MinTokensFloor)
	setFloat(&s.LowerBoundFactor, cfg.Policy.LowerBoundFactor)
	setFloat(&s.UpperBoundFactor, cfg.Policy.UpperBoundFactor)
	setFloat(&s.AvgCharsPerToken, cfg.Tokens.AvgCharsPerToken)
	setFloat(&s.MaxTokenBuffer, cfg.Tokens.MaxTokenBuffer)

	cfg.Pacing = script.Pacing{CharsPerMinute: s.CharsPerMinute, MinCharsFloor: s.MinCharsFloor}
	cfg.Tokens = script.TokenPolicy{
		AvgCharsPerToken: s.AvgCharsPerToken,
		MaxTokenBuffer:   s.MaxTokenBuffer,
		MinTokensFloor:   s.MinTokensFloor,
	}
	cfg.Policy = script.Policy{
		LowerBoundFactor:      s.LowerBoundFactor,
		UpperBoundFactor:      s.UpperBoundFactor,
		ClosingReserve:        s.ClosingReserve,
		MaxContinuationRounds: cfg.Policy.MaxContinuationRounds,
	}

	if s.MaxContinuationRounds != nil {
		cfg.Policy.MaxContinuationRounds = *s.MaxContinuationRounds
	}

	if s.Temperature != nil {
		cfg.Sampling.Temperature = *s.Temperature
	}

	if s.PresencePenalty != nil {
		cfg.Sampling.PresencePenalty = *s.PresencePenalty
	}

	if s.FrequencyPenalty != nil {
		cfg.Sampling.FrequencyPenalty = *s.FrequencyPenalty
	}

	if s.Closing != "" {
		cfg.Closing = s.Closing
	}

	if len(s.StopSequences) > 0 {
		cfg.StopSequences = append([]string(nil), s.StopSequences...)
	}

	return cfg
}

// Seconds converts a whole number of seconds into a duration.
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func setString(dst *string, def string) {
	if *dst == "" {
		*dst = def
	}
}

func setInt(dst *int, def int) {
	if *dst == 0 {
		*dst = def
	}
}

func setFloat(dst *float64, def float64) {
	if *dst == 0 {
		*dst = def
	}
}
