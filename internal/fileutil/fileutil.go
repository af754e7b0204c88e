// Package fileutil provides file naming and formatting helpers for episode files.
package fileutil

import (
	"fmt"
	"os"
	"strings"
	"time"
)

const defaultDirPermissions = 0o750

// Time and size formatting constants.
const (
	secondsInMinute = 60
	secondsInHour   = 3600
	formatSeconds   = "%ds"
	formatMinutes   = "%dm %02ds"
	formatHours     = "%dh %02dm"
	formatMB        = "%.1f MB"
	formatKB        = "%.1f KB"
	formatBytes     = "%d B"
	extMP3          = ".mp3"
	untitled        = "episode"
)

const errFmtFailedToCreateDir = "failed to create directory %s: %w"

var filenameReplacer = strings.NewReplacer(
	"<", "_",
	">", "_",
	":", "_",
	"\"", "_",
	"/", "_",
	"\\", "_",
	"|", "_",
	"?", "_",
	"*", "_",
	"\n", " ",
	"\r", " ",
	"\t", " ",
)

// EnsureDir creates path and any missing parents.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, defaultDirPermissions); err != nil {
		return fmt.Errorf(errFmtFailedToCreateDir, path, err)
	}

	return nil
}

// SanitizeFilename removes or replaces characters that are invalid in most filesystems.
func SanitizeFilename(filename string) string {
	return filenameReplacer.Replace(filename)
}

// EpisodeFileName returns the download name for an episode, e.g. "חלל_300s.mp3".
func EpisodeFileName(topic string, minutes float64) string {
	name := strings.TrimSpace(SanitizeFilename(topic))
	if name == "" {
		name = untitled
	}

	return fmt.Sprintf("%s_%ds%s", name, int(minutes*secondsInMinute), extMP3)
}

// FormatDuration renders an episode length for listings, e.g. "45s",
// "2m 30s" or "1h 05m".
func FormatDuration(length time.Duration) string {
	length = max(length, 0).Round(time.Second)
	seconds := int(length.Seconds())

	switch {
	case length < time.Minute:
		return fmt.Sprintf(formatSeconds, seconds)
	case length < time.Hour:
		return fmt.Sprintf(formatMinutes, seconds/secondsInMinute, seconds%secondsInMinute)
	default:
		return fmt.Sprintf(formatHours, seconds/secondsInHour, (seconds%secondsInHour)/secondsInMinute)
	}
}

// FormatFileSize formats a file size in a human-readable string.
func FormatFileSize(bytes int64) string {
	const (
		kilobyte = 1024
		megabyte = kilobyte * 1024
	)

	switch {
	case bytes >= megabyte:
		return fmt.Sprintf(formatMB, float64(bytes)/megabyte)
	case bytes >= kilobyte:
		return fmt.Sprintf(formatKB, float64(bytes)/kilobyte)
	default:
		return fmt.Sprintf(formatBytes, bytes)
	}
}
