package tts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCommandSynthesizer(t *testing.T) {
	t.Parallel()

	_, err := NewCommandSynthesizer(CommandConfig{}, newNarratorLogger(t))
	require.ErrorIs(t, err, ErrCommandPathEmpty)
}

func TestCommandSynthesizer_Synthesize(t *testing.T) {
	t.Parallel()

	synth, err := NewCommandSynthesizer(CommandConfig{
		Path: "/bin/sh",
		Args: []string{"-c", "printf '%s:' {voice} > {output}; cat >> {output}"},
	}, newNarratorLogger(t))
	require.NoError(t, err)

	audio, err := synth.Synthesize(context.Background(), "שלום", "dana")
	require.NoError(t, err)
	assert.Equal(t, "dana:שלום", string(audio))
}

func TestCommandSynthesizer_CommandFailure(t *testing.T) {
	t.Parallel()

	synth, err := NewCommandSynthesizer(CommandConfig{
		Path: "/bin/sh",
		Args: []string{"-c", "echo broken >&2; exit 3"},
	}, newNarratorLogger(t))
	require.NoError(t, err)

	_, err = synth.Synthesize(context.Background(), "text", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

func TestCommandSynthesizer_EmptyOutput(t *testing.T) {
	t.Parallel()

	synth, err := NewCommandSynthesizer(CommandConfig{Path: "/bin/sh", Args: []string{"-c", "cat > /dev/null"}}, newNarratorLogger(t))
	require.NoError(t, err)

	_, err = synth.Synthesize(context.Background(), "text", "")
	require.ErrorIs(t, err, ErrEmptyAudio)
}
