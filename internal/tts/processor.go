package tts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/book-expert/logger"
)

// Argument placeholders expanded for every invocation.
const (
	PlaceholderOutput = "{output}"
	PlaceholderVoice  = "{voice}"
)

// ErrCommandPathEmpty is returned when no synthesizer binary is configured.
var ErrCommandPathEmpty = errors.New("command path cannot be empty")

// CommandConfig configures CommandSynthesizer. Text is written to the
// command's stdin; the command must write audio to the {output} path.
type CommandConfig struct {
	Path      string
	Args      []string
	Extension string
}

// CommandSynthesizer implements core.Synthesizer by running a local
// speech binary such as piper.
type CommandSynthesizer struct {
	config CommandConfig
	log    *logger.Logger
}

// NewCommandSynthesizer creates a CommandSynthesizer.
func NewCommandSynthesizer(cfg CommandConfig, log *logger.Logger) (*CommandSynthesizer, error) {
	if cfg.Path == "" {
		return nil, ErrCommandPathEmpty
	}

	if cfg.Extension == "" {
		cfg.Extension = "." + FormatWAV
	}

	return &CommandSynthesizer{config: cfg, log: log}, nil
}

// Synthesize implements core.Synthesizer.
func (p *CommandSynthesizer) Synthesize(ctx context.Context, chunk, voice string) ([]byte, error) {
	if chunk == "" {
		return nil, ErrTextEmpty
	}

	tempFile, err := os.CreateTemp("", "podcast-chunk-*"+p.config.Extension)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file for tts output: %w", err)
	}

	_ = tempFile.Close()

	defer func() {
		removeErr := os.Remove(tempFile.Name())
		if removeErr != nil {
			p.log.Warn("Failed to remove temp file '%s': %v", tempFile.Name(), removeErr)
		}
	}()

	args := p.expandArgs(tempFile.Name(), voice)

	// #nosec G204 -- the binary and arguments come from service configuration
	cmd := exec.CommandContext(ctx, p.config.Path, args...)
	cmd.Stdin = strings.NewReader(chunk)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("%s execution failed: %w - output: %s", p.config.Path, err, string(output))
	}

	audioData, err := os.ReadFile(tempFile.Name())
	if err != nil {
		return nil, fmt.Errorf("failed to read audio data from temp file: %w", err)
	}

	if len(audioData) == 0 {
		return nil, ErrEmptyAudio
	}

	return audioData, nil
}

func (p *CommandSynthesizer) expandArgs(outputPath, voice string) []string {
	replacer := strings.NewReplacer(PlaceholderOutput, outputPath, PlaceholderVoice, voice)

	args := make([]string, len(p.config.Args))
	for i, arg := range p.config.Args {
		args[i] = replacer.Replace(arg)
	}

	return args
}
