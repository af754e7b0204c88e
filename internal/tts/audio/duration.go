// Package audio inspects encoded narration audio.
package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/tcolgate/mp3"
)

// ErrNoFrames is returned when the data contains no decodable MP3 frames.
var ErrNoFrames = errors.New("no mp3 frames found")

// Measurement describes decoded MP3 audio.
type Measurement struct {
	Duration time.Duration `json:"duration"`
	Frames   int           `json:"frames"`
	Skipped  int           `json:"skipped_bytes"`
}

// MeasureMP3 walks every frame header in data and sums the frame durations.
// Concatenated MP3 chunks measure as one stream.
func MeasureMP3(data []byte) (Measurement, error) {
	decoder := mp3.NewDecoder(bytes.NewReader(data))

	var (
		frame       mp3.Frame
		skipped     int
		measurement Measurement
	)

	for {
		err := decoder.Decode(&frame, &skipped)
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}

		if err != nil {
			return measurement, fmt.Errorf("failed to decode mp3 frame %d: %w", measurement.Frames+1, err)
		}

		measurement.Frames++
		measurement.Skipped += skipped
		measurement.Duration += frame.Duration()
	}

	if measurement.Frames == 0 {
		return measurement, ErrNoFrames
	}

	return measurement, nil
}

// CharsPerMinute reports the speaking pace of a narration: characters of
// script per minute of audio. It returns 0 for an empty duration.
func CharsPerMinute(chars int, duration time.Duration) float64 {
	if duration <= 0 {
		return 0
	}

	return float64(chars) / duration.Minutes()
}
