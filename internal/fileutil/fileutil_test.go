package fileutil_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/book-expert/podcast-service/internal/fileutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureDir(t *testing.T) {
	t.Parallel()

	target := filepath.Join(t.TempDir(), "audio", "episodes")

	require.NoError(t, fileutil.EnsureDir(target))

	info, err := os.Stat(target)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	require.NoError(t, fileutil.EnsureDir(target))
}

func TestSanitizeFilename(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"no changes", "valid_filename.txt", "valid_filename.txt"},
		{"replaces invalid chars", "in<va>l:id\"/\\|?*name.txt", "in_va_l_id_______name.txt"},
		{"hebrew kept", "מערכת השמש", "מערכת השמש"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, testCase.expected, fileutil.SanitizeFilename(testCase.input))
		})
	}
}

func TestEpisodeFileName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "חלל_150s.mp3", fileutil.EpisodeFileName("חלל", 2.5))
	assert.Equal(t, "a_b_300s.mp3", fileutil.EpisodeFileName("a/b", 5))
	assert.Equal(t, "episode_450s.mp3", fileutil.EpisodeFileName("  ", 7.5))
}

func TestFormatDuration(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		expected string
		length   time.Duration
	}{
		{name: "negative", length: -time.Second, expected: "0s"},
		{name: "less than a minute", length: 45 * time.Second, expected: "45s"},
		{name: "rounds to the second", length: 89600 * time.Millisecond, expected: "1m 30s"},
		{name: "exactly a minute", length: time.Minute, expected: "1m 00s"},
		{name: "more than an hour", length: 3670 * time.Second, expected: "1h 01m"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, testCase.expected, fileutil.FormatDuration(testCase.length))
		})
	}
}

func TestFormatFileSize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "500 B", fileutil.FormatFileSize(500))
	assert.Equal(t, "2.0 KB", fileutil.FormatFileSize(2048))
	assert.Equal(t, "1.5 MB", fileutil.FormatFileSize(1572864))
}
