package bridge

import (
	"encoding/json"
	"fmt"
)

// Kind is the canonical event discriminator sent to the host as "message".
type Kind string

const (
	KindLoad                        Kind = "load"
	KindPlay                        Kind = "play"
	KindPause                       Kind = "pause"
	KindSeek                        Kind = "seek"
	KindSeeked                      Kind = "seeked"
	KindTimeChanged                 Kind = "timeChanged"
	KindDestroy                     Kind = "destroy"
	KindPlaybackFinished            Kind = "playbackFinished"
	KindReady                       Kind = "ready"
	KindError                       Kind = "error"
	KindSubtitleChanged             Kind = "subtitleChanged"
	KindCueEnter                    Kind = "cueEnter"
	KindCueExit                     Kind = "cueExit"
	KindVideoPlaybackQualityChanged Kind = "videoPlaybackQualityChanged"
	KindVideoQualityChanged         Kind = "videoQualityChanged"
	KindVideoQualitiesChanged       Kind = "videoQualitiesChanged"
	KindAudioTrackChanged           Kind = "audioTrackChanged"
	KindWarning                     Kind = "warning"
	KindAudioPlaybackQualityChanged Kind = "audioPlaybackQualityChanged"
)

// Diagnostic reports whether k is an observability-only kind.
func (k Kind) Diagnostic() bool {
	switch k {
	case KindAudioTrackChanged, KindWarning, KindAudioPlaybackQualityChanged:
		return true
	}
	return false
}

// Event is the canonical, host-facing representation of a native event.
// Payload is nil for kinds that carry only time and duration.
type Event struct {
	Handle   Handle
	Kind     Kind
	Time     float64
	Duration float64
	Payload  any
}

// MarshalJSON flattens the payload fields next to message, tag, time and
// duration.
func (e Event) MarshalJSON() ([]byte, error) {
	out := map[string]any{}
	if e.Payload != nil {
		raw, err := json.Marshal(e.Payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", e.Kind, err)
		}
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, fmt.Errorf("flatten %s payload: %w", e.Kind, err)
		}
	}
	out["message"] = e.Kind
	out["tag"] = e.Handle
	out["time"] = e.Time
	out["duration"] = e.Duration
	return json.Marshal(out)
}

// ReadyPayload is carried by the ready event.
type ReadyPayload struct {
	SelectedVideoQuality    *QualityDescriptor  `json:"selectedVideoQuality,omitempty"`
	AvailableVideoQualities []QualityDescriptor `json:"availableVideoQualities"`
	Subtitles               []SubtitleTrack     `json:"subtitles"`
}

// ErrorPayload is carried by the error event for both error sources.
type ErrorPayload struct {
	Message string `json:"errMessage"`
	Code    int    `json:"errCode"`
	Source  string `json:"source"`
}

// WarningPayload is carried by the warning event.
type WarningPayload struct {
	Message string `json:"warnMessage"`
	Code    int    `json:"warnCode"`
}

// SubtitleChangedPayload omits a side entirely when that track is absent.
type SubtitleChangedPayload struct {
	NewSubtitleID *string `json:"newSubtitleId,omitempty"`
	OldSubtitleID *string `json:"oldSubtitleId,omitempty"`
}

// CuePayload is carried by cueEnter and cueExit.
type CuePayload struct {
	CueText *string `json:"cueText,omitempty"`
}

// QualityChangedPayload is carried by videoPlaybackQualityChanged and
// videoQualityChanged.
type QualityChangedPayload struct {
	OldQuality *QualityDescriptor `json:"oldQuality,omitempty"`
	NewQuality *QualityDescriptor `json:"newQuality,omitempty"`
}

// QualitiesChangedPayload is carried by videoQualitiesChanged. Both lists are
// always present.
type QualitiesChangedPayload struct {
	OldQualities []QualityDescriptor `json:"oldQualities"`
	NewQualities []QualityDescriptor `json:"newQualities"`
}

// AudioTrackPayload is carried by audioTrackChanged.
type AudioTrackPayload struct {
	OldAudioTrack *string `json:"oldAudioTrack,omitempty"`
	NewAudioTrack *string `json:"newAudioTrack,omitempty"`
}

// AudioQualityPayload is carried by audioPlaybackQualityChanged.
type AudioQualityPayload struct {
	OldAudioQuality *string `json:"oldAudioQuality,omitempty"`
	NewAudioQuality *string `json:"newAudioQuality,omitempty"`
}

// EventSink receives canonical events in emission order.
type EventSink interface {
	Emit(e Event) error
}

// SinkFunc adapts a function to EventSink.
type SinkFunc func(e Event) error

// Emit implements EventSink.
func (f SinkFunc) Emit(e Event) error { return f(e) }

// MultiSink fans each event out to every sink in order and returns the
// first error.
type MultiSink []EventSink

// Emit implements EventSink.
func (m MultiSink) Emit(e Event) error {
	var first error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Emit(e); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func strPtr(s string) *string { return &s }
