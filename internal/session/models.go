// Package session keeps per-viewer playback data across player instances:
// resume positions and the preferred bitrate preset.
package session

import "time"

// Key identifies a video within an event (a performance can carry several
// videos: the main stream, trailers, extras).
type Key struct {
	VideoID string `json:"videoId"`
	EventID string `json:"eventId"`
}

// Position is the last known playback position of a video.
type Position struct {
	Key
	Time      float64   `json:"time"`
	Duration  float64   `json:"duration"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Resume thresholds, in seconds.
const (
	// MinResumeTime is the earliest saved position worth resuming from.
	MinResumeTime = 5.0
	// ResumeRollback is how far before the saved position playback resumes.
	ResumeRollback = 2.0
)

// ResumeOffset returns where playback should start for a saved position.
func ResumeOffset(p Position) float64 {
	if p.Time < MinResumeTime {
		return 0
	}
	return p.Time - ResumeRollback
}
