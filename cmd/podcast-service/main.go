// main package for the podcast-service
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"

	"github.com/book-expert/podcast-service/internal/config"
	"github.com/book-expert/podcast-service/internal/core"
	"github.com/book-expert/podcast-service/internal/episode"
	"github.com/book-expert/podcast-service/internal/fileutil"
	"github.com/book-expert/podcast-service/internal/llm"
	"github.com/book-expert/podcast-service/internal/objectstore"
	"github.com/book-expert/podcast-service/internal/podcast"
	"github.com/book-expert/podcast-service/internal/resilience"
	"github.com/book-expert/podcast-service/internal/script"
	"github.com/book-expert/podcast-service/internal/summary"
	"github.com/book-expert/podcast-service/internal/tts"
	"github.com/book-expert/podcast-service/internal/tts/text"
	"github.com/book-expert/podcast-service/internal/worker"
)

const (
	bootstrapLogFile = "podcast-service-bootstrap.log"
	serviceLogFile   = "podcast-service.log"
	connectionName   = "podcast-service"
)

func setupLogger(logPath, fileName string) (*logger.Logger, error) {
	log, err := logger.New(logPath, fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

func run() error {
	// 1. Create a temporary logger for the bootstrap process
	bootstrapLog, err := setupLogger(os.TempDir(), bootstrapLogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	defer func() { _ = bootstrapLog.Close() }()

	bootstrapLog.Info("Bootstrap logger created.")

	// 2. Seed secrets from .env, then load configuration
	if err := config.LoadEnv(); err != nil {
		bootstrapLog.Warn("Ignoring .env: %v", err)
	}

	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	bootstrapLog.Info("Configuration loaded successfully.")

	// 3. Initialize the final logger based on the loaded configuration
	if err := fileutil.EnsureDir(cfg.Paths.BaseLogsDir); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir, serviceLogFile)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := finalLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, finalLog)
}

func serve(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	// 4. Connect to NATS and open the stores
	natsConnection, err := nats.Connect(cfg.NATS.URL, nats.Name(connectionName))
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
	}
	defer natsConnection.Close()

	jetstreamContext, err := natsConnection.JetStream()
	if err != nil {
		return fmt.Errorf("failed to get JetStream context: %w", err)
	}

	audioStore, err := objectstore.New(jetstreamContext, cfg.NATS.AudioBucket)
	if err != nil {
		return err
	}

	episodes, err := episode.New(jetstreamContext, episode.Config{
		Bucket:      cfg.NATS.EpisodeBucket,
		DraftBucket: cfg.NATS.DraftBucket,
		DraftTTL:    time.Duration(cfg.NATS.DraftTTLHours) * time.Hour,
	}, audioStore, log)
	if err != nil {
		return err
	}

	// 5. Build the providers
	composer, err := buildComposer(cfg, log)
	if err != nil {
		return err
	}

	synth, closeSynth, err := buildSynthesizer(ctx, cfg, log)
	if err != nil {
		return err
	}

	defer func() {
		if err := closeSynth(); err != nil {
			log.Warn("Failed to close synthesizer: %v", err)
		}
	}()

	narrator, err := tts.NewNarrator(synth, tts.NarratorConfig{
		ChunkSize:    cfg.TTS.ChunkSize,
		Workers:      cfg.TTS.Workers,
		DefaultVoice: cfg.TTS.Voice,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to create narrator: %w", err)
	}

	service, err := podcast.NewService(podcast.Dependencies{
		Summary: summary.NewWikipediaSource(summary.WikipediaConfig{
			BaseURL:  cfg.Summary.BaseURL,
			Language: cfg.Summary.Language,
			Timeout:  config.Seconds(cfg.Summary.TimeoutSeconds),
		}),
		Composer: composer,
		Narrator: narrator,
		Episodes: episodes,
		Drafts:   episodes,
		Audio:    audioStore,
	}, podcast.Config{
		SummarySentences: cfg.Summary.Sentences,
		AudioPrefix:      cfg.Episodes.AudioPrefix,
		DisableCache:     cfg.Episodes.DisableCache,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to create episode service: %w", err)
	}

	// 6. Serve requests until a signal arrives
	w, err := worker.NewNatsWorker(natsConnection, service, worker.Config{
		Subjects: worker.Subjects{
			Generate: cfg.NATS.GenerateSubject,
			Rate:     cfg.NATS.RateSubject,
			List:     cfg.NATS.ListSubject,
			Delete:   cfg.NATS.DeleteSubject,
		},
		QueueGroup:    cfg.NATS.QueueGroup,
		HandleTimeout: config.Seconds(cfg.NATS.HandleTimeoutSeconds),
	}, log)
	if err != nil {
		return fmt.Errorf("failed to create worker: %w", err)
	}

	log.System("Podcast-Service successfully initialized (llm=%s, tts=%s).", cfg.LLM.Provider, cfg.TTS.Provider)

	if err := w.Run(ctx); err != nil {
		return fmt.Errorf("worker stopped: %w", err)
	}

	log.System("Podcast-Service stopped.")

	return nil
}

func buildComposer(cfg *config.Config, log *logger.Logger) (*script.Composer, error) {
	oracle, err := llm.NewOpenAIOracle(llm.OpenAIConfig{
		APIKey:  os.Getenv(cfg.LLM.APIKeyEnv),
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
		Timeout: config.Seconds(cfg.LLM.TimeoutSeconds),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create oracle (set %s): %w", cfg.LLM.APIKeyEnv, err)
	}

	retryCfg := resilience.LLMRetryConfig()
	retryCfg.MaxRetries = cfg.LLM.MaxRetries

	composer, err := script.NewComposer(llm.NewRetryingOracle(oracle, retryCfg, log), cfg.ComposerConfig(), log)
	if err != nil {
		return nil, fmt.Errorf("failed to create composer: %w", err)
	}

	return composer, nil
}

func buildSynthesizer(ctx context.Context, cfg *config.Config, log *logger.Logger) (core.Synthesizer, func() error, error) {
	noClose := func() error { return nil }
	retryCfg := resilience.DefaultRetryConfig()
	retryCfg.MaxRetries = cfg.TTS.MaxRetries

	switch cfg.TTS.Provider {
	case config.ProviderGoogle:
		synth, err := tts.NewGoogleSynthesizer(ctx, tts.GoogleSpeechConfig{
			CredentialsFile: os.Getenv(cfg.TTS.CredentialsEnv),
			LanguageCode:    cfg.TTS.LanguageCode,
			SpeakingRate:    cfg.TTS.SpeakingRate,
			SSML:            text.DefaultSSMLOptions(),
		})
		if err != nil {
			return nil, nil, err
		}

		return tts.NewRetryingSynthesizer(synth, retryCfg, log), synth.Close, nil

	case config.ProviderOpenAI:
		synth, err := tts.NewOpenAISynthesizer(tts.OpenAISpeechConfig{
			APIKey:  os.Getenv(cfg.LLM.APIKeyEnv),
			BaseURL: cfg.TTS.BaseURL,
			Model:   cfg.TTS.Model,
			Speed:   cfg.TTS.SpeakingRate,
		})
		if err != nil {
			return nil, nil, err
		}

		retryCfg.IsRetryable = resilience.IsRetryableOpenAI

		return tts.NewRetryingSynthesizer(synth, retryCfg, log), noClose, nil

	case config.ProviderHTTP:
		client, err := tts.NewHTTPClient(cfg.TTS.BaseURL, config.Seconds(cfg.TTS.TimeoutSeconds), tts.HTTPClientOptions{
			Language: cfg.Summary.Language,
			Format:   cfg.TTS.Format,
		})
		if err != nil {
			return nil, nil, err
		}

		if err := client.HealthCheck(ctx); err != nil {
			log.Warn("TTS service at %s is not healthy yet: %v", cfg.TTS.BaseURL, err)
		}

		retryCfg.IsRetryable = resilience.IsRetryableHTTP

		return tts.NewRetryingSynthesizer(client, retryCfg, log), noClose, nil

	case config.ProviderCommand:
		synth, err := tts.NewCommandSynthesizer(tts.CommandConfig{Path: cfg.TTS.CommandPath, Args: cfg.TTS.CommandArgs}, log)
		if err != nil {
			return nil, nil, err
		}

		return synth, noClose, nil
	}

	return nil, nil, fmt.Errorf("%w: %q", config.ErrUnknownProvider, cfg.TTS.Provider)
}

func main() {
	err := run()
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
