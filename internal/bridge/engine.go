package bridge

// Engine is the contract the bridge needs from the adaptive playback engine.
// The engine is a black box: it downloads, adapts and renders on its own and
// reports back through the events registered with On.
//
// Getters are synchronous and must be cheap. Destroy is called at most once
// per engine.
type Engine interface {
	Load(src Source) error
	Play() error
	Pause() error
	Seek(t float64) error
	TimeShift(t float64) error
	Destroy() error

	// On registers fn for events of the given kind. The returned func
	// cancels the registration.
	On(kind NativeKind, fn func(NativeEvent)) (cancel func())

	CurrentTime() float64
	Duration() float64
	IsMuted() bool
	IsPaused() bool
	IsStalled() bool
	IsPlaying() bool

	// Source returns the loaded source, or nil when nothing is loaded.
	Source() MediaSource
	AvailableSubtitles() []SubtitleTrack
	SetSubtitle(trackID string) error
	SetMaxSelectableVideoBitrate(bitrate int)
}

// MediaSource is the engine's view of a loaded source.
type MediaSource interface {
	Attached() bool
	AvailableVideoQualities() []VideoQuality
	AvailableAudioQualities() []AudioQuality
	SelectedVideoQuality() *VideoQuality
	SetVideoQuality(id string) error
}

// EngineConfig is handed to an EngineFactory when a player is created.
type EngineConfig struct {
	VideoCodecPriority []string
	AudioCodecPriority []string
	Volume             int
}

// EngineFactory builds a fresh engine for a new player.
type EngineFactory func(cfg EngineConfig) (Engine, error)

// NativeKind enumerates the engine's native event taxonomy.
type NativeKind int

const (
	NativeLoaded NativeKind = iota
	NativePlaying
	NativePaused
	NativeSeek
	NativeSeeked
	NativeTimeChanged
	NativeDestroy
	NativePlaybackFinished
	NativeReady
	NativeSourceError
	NativePlayerError
	NativeSubtitleChanged
	NativeCueEnter
	NativeCueExit
	NativeVideoPlaybackQualityChanged
	NativeVideoQualityChanged
	NativeVideoQualitiesChanged
	NativeAudioTrackChanged
	NativeWarning
	NativeAudioPlaybackQualityChanged
)

var nativeKindNames = [...]string{
	NativeLoaded:                      "Loaded",
	NativePlaying:                     "Playing",
	NativePaused:                      "Paused",
	NativeSeek:                        "Seek",
	NativeSeeked:                      "Seeked",
	NativeTimeChanged:                 "TimeChanged",
	NativeDestroy:                     "Destroy",
	NativePlaybackFinished:            "PlaybackFinished",
	NativeReady:                       "Ready",
	NativeSourceError:                 "SourceError",
	NativePlayerError:                 "PlayerError",
	NativeSubtitleChanged:             "SubtitleChanged",
	NativeCueEnter:                    "CueEnter",
	NativeCueExit:                     "CueExit",
	NativeVideoPlaybackQualityChanged: "VideoPlaybackQualityChanged",
	NativeVideoQualityChanged:         "VideoQualityChanged",
	NativeVideoQualitiesChanged:       "VideoQualitiesChanged",
	NativeAudioTrackChanged:           "AudioTrackChanged",
	NativeWarning:                     "Warning",
	NativeAudioPlaybackQualityChanged: "AudioPlaybackQualityChanged",
}

func (k NativeKind) String() string {
	if k >= 0 && int(k) < len(nativeKindNames) {
		return nativeKindNames[k]
	}
	return "Unknown"
}

// NativeKinds lists every kind a player subscribes to.
func NativeKinds() []NativeKind {
	kinds := make([]NativeKind, 0, len(nativeKindNames))
	for k := range nativeKindNames {
		kinds = append(kinds, NativeKind(k))
	}
	return kinds
}

// NativeEvent is an event fired by the engine.
type NativeEvent interface {
	Kind() NativeKind
}

// SimpleEvent is a native event without payload (Loaded, Playing, Paused,
// Seek, Seeked, TimeChanged, Destroy, PlaybackFinished, Ready).
type SimpleEvent struct {
	Type NativeKind
}

func (e SimpleEvent) Kind() NativeKind { return e.Type }

// ErrorEvent is a source- or player-level engine error.
type ErrorEvent struct {
	FromSource bool
	Code       int
	Message    string
}

func (e ErrorEvent) Kind() NativeKind {
	if e.FromSource {
		return NativeSourceError
	}
	return NativePlayerError
}

// WarningEvent is a non-fatal engine warning.
type WarningEvent struct {
	Code    int
	Message string
}

func (WarningEvent) Kind() NativeKind { return NativeWarning }

// SubtitleChangedEvent reports a subtitle track switch. Either side may be nil.
type SubtitleChangedEvent struct {
	Old *SubtitleTrack
	New *SubtitleTrack
}

func (SubtitleChangedEvent) Kind() NativeKind { return NativeSubtitleChanged }

// CueEvent reports a subtitle cue entering or leaving the screen.
type CueEvent struct {
	Exit bool
	Text string
}

func (e CueEvent) Kind() NativeKind {
	if e.Exit {
		return NativeCueExit
	}
	return NativeCueEnter
}

// VideoQualityEvent reports a video quality switch. Playback is true for
// VideoPlaybackQualityChanged (rendered quality) and false for
// VideoQualityChanged (downloaded quality).
type VideoQualityEvent struct {
	Playback bool
	Old      *VideoQuality
	New      *VideoQuality
}

func (e VideoQualityEvent) Kind() NativeKind {
	if e.Playback {
		return NativeVideoPlaybackQualityChanged
	}
	return NativeVideoQualityChanged
}

// VideoQualitiesChangedEvent reports a change of the available quality list.
type VideoQualitiesChangedEvent struct {
	Old []VideoQuality
	New []VideoQuality
}

func (VideoQualitiesChangedEvent) Kind() NativeKind { return NativeVideoQualitiesChanged }

// AudioTrackChangedEvent reports an audio track switch.
type AudioTrackChangedEvent struct {
	Old *AudioTrack
	New *AudioTrack
}

func (AudioTrackChangedEvent) Kind() NativeKind { return NativeAudioTrackChanged }

// AudioQualityEvent reports an audio playback quality switch.
type AudioQualityEvent struct {
	Old *AudioQuality
	New *AudioQuality
}

func (AudioQualityEvent) Kind() NativeKind { return NativeAudioPlaybackQualityChanged }
