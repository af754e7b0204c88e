package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/book-expert/logger"
	"github.com/book-expert/podcast-service/internal/core"
	"github.com/book-expert/podcast-service/internal/tts/text"
)

const defaultWorkers = 1

var (
	// ErrSynthesizerMissing is returned when a Narrator is built without a backend.
	ErrSynthesizerMissing = errors.New("synthesizer cannot be nil")
	// ErrNothingToSay is returned when the cleaned script has no speakable text.
	ErrNothingToSay = errors.New("script has no speakable text")
)

const (
	errFmtChunkFailed           = "chunk %d failed: %w"
	logFmtNarrationStarted      = "Narrating %d chunk(s) with %d worker(s), voice %q"
	logFmtChunkProcessingFailed = "Failed to process chunk %d: %v"
	logFmtChunkProcessed        = "Processed chunk %d/%d (%d bytes)"
)

// NarratorConfig controls chunking and parallelism.
type NarratorConfig struct {
	ChunkSize    int
	Workers      int
	DefaultVoice string
}

// NarrationStats summarizes one narration.
type NarrationStats struct {
	Chunks int   `json:"chunks"`
	Chars  int   `json:"chars"`
	Bytes  int64 `json:"bytes"`
}

// Narrator cleans a script, splits it into chunks, synthesizes every chunk
// and writes the audio in chunk order.
type Narrator struct {
	synthesizer  core.Synthesizer
	preprocessor *text.Preprocessor
	cfg          NarratorConfig
	logger       *logger.Logger
}

// NewNarrator creates a Narrator over synth.
func NewNarrator(synth core.Synthesizer, cfg NarratorConfig, log *logger.Logger) (*Narrator, error) {
	if synth == nil {
		return nil, ErrSynthesizerMissing
	}

	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = text.DefaultChunkSize
	}

	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}

	return &Narrator{
		synthesizer:  synth,
		preprocessor: text.NewPreprocessor(),
		cfg:          cfg,
		logger:       log,
	}, nil
}

// Narrate writes the audio for script to w. An empty voice selects the
// configured default.
func (n *Narrator) Narrate(ctx context.Context, script, voice string, w io.Writer) (NarrationStats, error) {
	cleaned := n.preprocessor.PreprocessText(script)
	if text.IsBlank(cleaned) {
		return NarrationStats{}, ErrNothingToSay
	}

	if voice == "" {
		voice = n.cfg.DefaultVoice
	}

	chunks := text.Split(cleaned, n.cfg.ChunkSize)
	n.logger.Info(logFmtNarrationStarted, len(chunks), n.cfg.Workers, voice)

	audio, err := n.synthesizeParallel(ctx, chunks, voice)
	if err != nil {
		return NarrationStats{}, err
	}

	stats := NarrationStats{Chunks: len(chunks)}

	for i, data := range audio {
		written, writeErr := w.Write(data)
		stats.Bytes += int64(written)

		if writeErr != nil {
			return stats, fmt.Errorf("failed to write audio for chunk %d: %w", i+1, writeErr)
		}

		stats.Chars += len([]rune(chunks[i]))
	}

	return stats, nil
}

// synthesizeParallel runs the backend over chunks with a bounded worker pool.
// Results are kept by index so the caller can write them in order. The first
// failure cancels the remaining work.
func (n *Narrator) synthesizeParallel(ctx context.Context, chunks []string, voice string) ([][]byte, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		waitGroup sync.WaitGroup
		mutex     sync.Mutex
		firstErr  error
	)

	results := make([][]byte, len(chunks))
	workerPool := make(chan struct{}, n.cfg.Workers)

	for chunkIndex, chunk := range chunks {
		waitGroup.Add(1)

		go func(index int, chunkText string) {
			defer waitGroup.Done()

			select {
			case workerPool <- struct{}{}:
			case <-ctx.Done():
				return
			}

			defer func() { <-workerPool }()

			if ctx.Err() != nil {
				return
			}

			data, err := n.synthesizer.Synthesize(ctx, chunkText, voice)
			if err == nil && len(data) == 0 {
				err = ErrEmptyAudio
			}

			if err != nil {
				mutex.Lock()

				if firstErr == nil {
					firstErr = fmt.Errorf(errFmtChunkFailed, index+1, err)

					cancel()
				}

				mutex.Unlock()
				n.logger.Error(logFmtChunkProcessingFailed, index+1, err)

				return
			}

			results[index] = data

			n.logger.Info(logFmtChunkProcessed, index+1, len(chunks), len(data))
		}(chunkIndex, chunk)
	}

	waitGroup.Wait()

	if firstErr != nil {
		return nil, firstErr
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("narration cancelled: %w", err)
	}

	return results, nil
}
