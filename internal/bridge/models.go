package bridge

import (
	"math"
	"strings"
)

// Handle is the host-assigned tag identifying a player view.
type Handle int

// UnboundedBitrate is the default initial bitrate cap: no ceiling.
const UnboundedBitrate = math.MaxInt32

// VideoQuality is one selectable video rendition as reported by the engine.
type VideoQuality struct {
	ID        string
	Codec     string
	Label     string
	Bitrate   int
	FrameRate float64
	Width     int
	Height    int
}

// AudioQuality is one selectable audio rendition as reported by the engine.
type AudioQuality struct {
	ID      string
	Codec   string
	Label   string
	Bitrate int
}

// AudioTrack is an audio track as reported by the engine.
type AudioTrack struct {
	ID       string
	Label    string
	Language string
}

// SubtitleTrack is a subtitle track as reported by the engine.
// This also matches the outbound JSON shape inside the ready event.
type SubtitleTrack struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	URL   string `json:"url,omitempty"`
}

// QualityDescriptor is the host-facing snapshot of a video quality.
// Width and height are omitted when the engine does not report them.
type QualityDescriptor struct {
	ID        string  `json:"id"`
	Codec     string  `json:"codec"`
	Label     string  `json:"label"`
	Bitrate   int     `json:"bitrate"`
	FrameRate float64 `json:"frameRate"`
	Width     *int    `json:"width,omitempty"`
	Height    *int    `json:"height,omitempty"`
}

// Describe snapshots q into a QualityDescriptor.
func Describe(q VideoQuality) QualityDescriptor {
	d := QualityDescriptor{
		ID:        q.ID,
		Codec:     q.Codec,
		Label:     q.Label,
		Bitrate:   q.Bitrate,
		FrameRate: q.FrameRate,
	}
	if q.Width > 0 {
		w := q.Width
		d.Width = &w
	}
	if q.Height > 0 {
		h := q.Height
		d.Height = &h
	}
	return d
}

func describePtr(q *VideoQuality) *QualityDescriptor {
	if q == nil {
		return nil
	}
	d := Describe(*q)
	return &d
}

func describeAll(qs []VideoQuality) []QualityDescriptor {
	out := make([]QualityDescriptor, 0, len(qs))
	for _, q := range qs {
		out = append(out, Describe(q))
	}
	return out
}

// Source describes the media to load into a player.
type Source struct {
	URL   string
	Title string

	// StartOffset is the position, in seconds, playback should begin at.
	StartOffset float64
}

// QualityPolicy selects how the initial video quality is chosen at Ready.
type QualityPolicy string

const (
	// QualityPolicyEngineCap pushes the bitrate cap to the engine and lets
	// its adaptation logic choose.
	QualityPolicyEngineCap QualityPolicy = "engine-cap"

	// QualityPolicyPin additionally selects a discrete starting quality
	// below the cap.
	QualityPolicyPin QualityPolicy = "pin"
)

// ParseQualityPolicy returns the policy named by s, defaulting to
// QualityPolicyEngineCap.
func ParseQualityPolicy(s string) QualityPolicy {
	if QualityPolicy(strings.ToLower(strings.TrimSpace(s))) == QualityPolicyPin {
		return QualityPolicyPin
	}
	return QualityPolicyEngineCap
}

// BitratePreset is a named initial bitrate cap offered to viewers.
type BitratePreset struct {
	Key   string `json:"key"`
	Title string `json:"title"`
	Cap   int    `json:"cap"`
	Type  string `json:"type"`
}

// Bitrate presets offered by the host settings screen.
var (
	PresetHigh   = BitratePreset{Key: "high", Title: "Best", Cap: UnboundedBitrate, Type: "hq"}
	PresetMedium = BitratePreset{Key: "medium", Title: "Good", Cap: 5_500_000, Type: "hd"}
	PresetNormal = BitratePreset{Key: "normal", Title: "Low bandwidth", Cap: 1_500_000, Type: "sd"}
)

// DefaultBitratePreset is used when no preference has been saved.
var DefaultBitratePreset = PresetNormal

// LookupBitratePreset returns the preset with the given key.
func LookupBitratePreset(key string) (BitratePreset, bool) {
	switch strings.ToLower(strings.TrimSpace(key)) {
	case PresetHigh.Key:
		return PresetHigh, true
	case PresetMedium.Key:
		return PresetMedium, true
	case PresetNormal.Key:
		return PresetNormal, true
	}
	return BitratePreset{}, false
}
