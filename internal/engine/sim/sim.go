// Package sim is an in-process playback engine that plays a virtual clock
// instead of decoding media. It implements bridge.Engine and fires the same
// native events a device engine would, which makes it the engine behind the
// development server and the end-to-end tests.
package sim

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"playback-bridge/internal/bridge"
)

var (
	ErrNoSource  = errors.New("no source loaded")
	ErrDestroyed = errors.New("engine destroyed")
)

// Cue is a timed subtitle line.
type Cue struct {
	Start float64
	End   float64
	Text  string
}

// Options describes the simulated media and clock.
type Options struct {
	// Tick is the wall-clock interval between clock advances. Zero disables
	// the background clock; tests drive it with Advance.
	Tick time.Duration

	// Duration of every loaded source, in seconds.
	Duration float64

	Qualities []bridge.VideoQuality
	Audio     []bridge.AudioQuality
	Subtitles []bridge.SubtitleTrack
	Cues      []Cue

	Logger *slog.Logger
}

// DefaultOptions is a two-minute source with three H.264 renditions.
func DefaultOptions() Options {
	return Options{
		Tick:     time.Second,
		Duration: 120,
		Qualities: []bridge.VideoQuality{
			{ID: "360p", Codec: "avc1.4d401e", Label: "360p", Bitrate: 800_000, FrameRate: 25, Width: 640, Height: 360},
			{ID: "720p", Codec: "avc1.4d401f", Label: "720p", Bitrate: 3_000_000, FrameRate: 25, Width: 1280, Height: 720},
			{ID: "1080p", Codec: "avc1.640028", Label: "1080p", Bitrate: 6_000_000, FrameRate: 25, Width: 1920, Height: 1080},
		},
		Audio: []bridge.AudioQuality{
			{ID: "aac-128", Codec: "mp4a.40.2", Label: "Stereo", Bitrate: 128_000},
		},
		Subtitles: []bridge.SubtitleTrack{
			{ID: "en", Label: "English"},
		},
	}
}

// NewFactory returns an EngineFactory building engines from opts.
func NewFactory(opts Options) bridge.EngineFactory {
	return func(cfg bridge.EngineConfig) (bridge.Engine, error) {
		return New(cfg, opts), nil
	}
}

type firing struct {
	fns []func(bridge.NativeEvent)
	ev  bridge.NativeEvent
}

// Engine is a simulated bridge.Engine. It is safe for concurrent use.
// Events are fired after the engine lock is released, so listeners may call
// back into the getters.
type Engine struct {
	cfg  bridge.EngineConfig
	opts Options
	log  *slog.Logger

	mu        sync.Mutex
	listeners map[bridge.NativeKind]map[int]func(bridge.NativeEvent)
	nextID    int

	src        *source
	now        float64
	playing    bool
	stalled    bool
	maxBitrate int
	subtitle   *bridge.SubtitleTrack
	activeCue  int
	destroyed  bool

	stop chan struct{}
}

// New returns an engine configured with cfg.
func New(cfg bridge.EngineConfig, opts Options) *Engine {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	e := &Engine{
		cfg:        cfg,
		opts:       opts,
		log:        log.With(slog.String("component", "sim-engine")),
		listeners:  make(map[bridge.NativeKind]map[int]func(bridge.NativeEvent)),
		maxBitrate: bridge.UnboundedBitrate,
		activeCue:  -1,
	}
	if opts.Tick > 0 {
		e.stop = make(chan struct{})
		go e.clock(opts.Tick)
	}
	return e
}

// Config returns the configuration the engine was built with.
func (e *Engine) Config() bridge.EngineConfig { return e.cfg }

func (e *Engine) clock(tick time.Duration) {
	t := time.NewTicker(tick)
	defer t.Stop()
	for {
		select {
		case <-e.stop:
			return
		case <-t.C:
			e.Advance(tick.Seconds())
		}
	}
}

// On implements bridge.Engine.
func (e *Engine) On(kind bridge.NativeKind, fn func(bridge.NativeEvent)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.listeners[kind] == nil {
		e.listeners[kind] = make(map[int]func(bridge.NativeEvent))
	}
	id := e.nextID
	e.nextID++
	e.listeners[kind][id] = fn
	return func() {
		e.mu.Lock()
		delete(e.listeners[kind], id)
		e.mu.Unlock()
	}
}

// queue snapshots the listeners of ev. Callers hold e.mu.
func (e *Engine) queue(out []firing, ev bridge.NativeEvent) []firing {
	ls := e.listeners[ev.Kind()]
	if len(ls) == 0 {
		return out
	}
	ids := make([]int, 0, len(ls))
	for id := range ls {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	f := firing{ev: ev}
	for _, id := range ids {
		f.fns = append(f.fns, ls[id])
	}
	return append(out, f)
}

func fire(fs []firing) {
	for _, f := range fs {
		for _, fn := range f.fns {
			fn(f.ev)
		}
	}
}

// Load implements bridge.Engine. It fires Loaded then Ready.
func (e *Engine) Load(src bridge.Source) error {
	if strings.TrimSpace(src.URL) == "" {
		return errors.New("load: empty source url")
	}
	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		return ErrDestroyed
	}
	prev := e.src
	e.src = newSource(e, src, preferCodecs(e.opts.Qualities, e.cfg.VideoCodecPriority), e.opts.Audio)
	e.now = clamp(src.StartOffset, 0, e.opts.Duration)
	e.playing = false
	e.subtitle = nil
	e.activeCue = -1
	e.src.selectFor(e.maxBitrate)

	var fs []firing
	if prev != nil {
		fs = e.queue(fs, bridge.VideoQualitiesChangedEvent{Old: prev.qualities, New: e.src.qualities})
	}
	fs = e.queue(fs, bridge.SimpleEvent{Type: bridge.NativeLoaded})
	fs = e.queue(fs, bridge.SimpleEvent{Type: bridge.NativeReady})
	start := e.now
	e.mu.Unlock()

	e.log.Debug("source loaded", slog.String("url", src.URL), slog.Float64("start", start))
	fire(fs)
	return nil
}

// Play implements bridge.Engine.
func (e *Engine) Play() error {
	e.mu.Lock()
	if err := e.usable(); err != nil {
		e.mu.Unlock()
		return err
	}
	var fs []firing
	if !e.playing {
		e.playing = true
		fs = e.queue(fs, bridge.SimpleEvent{Type: bridge.NativePlaying})
	}
	e.mu.Unlock()
	fire(fs)
	return nil
}

// Pause implements bridge.Engine.
func (e *Engine) Pause() error {
	e.mu.Lock()
	if err := e.usable(); err != nil {
		e.mu.Unlock()
		return err
	}
	var fs []firing
	if e.playing {
		e.playing = false
		fs = e.queue(fs, bridge.SimpleEvent{Type: bridge.NativePaused})
	}
	e.mu.Unlock()
	fire(fs)
	return nil
}

// Seek implements bridge.Engine. Targets outside the media are clamped.
func (e *Engine) Seek(t float64) error {
	e.mu.Lock()
	if err := e.usable(); err != nil {
		e.mu.Unlock()
		return err
	}
	fs := e.queue(nil, bridge.SimpleEvent{Type: bridge.NativeSeek})
	e.now = clamp(t, 0, e.opts.Duration)
	fs = e.cues(fs)
	fs = e.queue(fs, bridge.SimpleEvent{Type: bridge.NativeSeeked})
	e.mu.Unlock()
	fire(fs)
	return nil
}

// TimeShift implements bridge.Engine. t is an offset from the end of the
// media: zero jumps to the end, negative values go back.
func (e *Engine) TimeShift(t float64) error {
	e.mu.Lock()
	if err := e.usable(); err != nil {
		e.mu.Unlock()
		return err
	}
	if t > 0 {
		t = 0
	}
	e.now = clamp(e.opts.Duration+t, 0, e.opts.Duration)
	fs := e.cues(nil)
	fs = e.queue(fs, bridge.SimpleEvent{Type: bridge.NativeTimeChanged})
	e.mu.Unlock()
	fire(fs)
	return nil
}

// Destroy implements bridge.Engine. The Destroy event is fired before it
// returns; listeners are dropped afterwards. Destroy may run on the clock
// goroutine, so the clock is signalled to stop but not joined.
func (e *Engine) Destroy() error {
	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		return nil
	}
	e.destroyed = true
	e.playing = false
	e.src = nil
	fs := e.queue(nil, bridge.SimpleEvent{Type: bridge.NativeDestroy})
	stop := e.stop
	e.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	fire(fs)

	e.mu.Lock()
	e.listeners = make(map[bridge.NativeKind]map[int]func(bridge.NativeEvent))
	e.mu.Unlock()
	return nil
}

// Advance moves the clock forward by d seconds while playing, firing
// TimeChanged, cue events and, at the end, PlaybackFinished.
func (e *Engine) Advance(d float64) {
	e.mu.Lock()
	if e.destroyed || e.src == nil || !e.playing || d <= 0 {
		e.mu.Unlock()
		return
	}
	e.now = clamp(e.now+d, 0, e.opts.Duration)
	fs := e.cues(nil)
	fs = e.queue(fs, bridge.SimpleEvent{Type: bridge.NativeTimeChanged})
	if e.now >= e.opts.Duration {
		e.playing = false
		fs = e.queue(fs, bridge.SimpleEvent{Type: bridge.NativePlaybackFinished})
	}
	e.mu.Unlock()
	fire(fs)
}

// Fail fires an engine error, as a network or decoder failure would.
func (e *Engine) Fail(fromSource bool, code int, message string) {
	e.mu.Lock()
	fs := e.queue(nil, bridge.ErrorEvent{FromSource: fromSource, Code: code, Message: message})
	e.mu.Unlock()
	fire(fs)
}

// SetStalled toggles the buffering state.
func (e *Engine) SetStalled(v bool) {
	e.mu.Lock()
	e.stalled = v
	e.mu.Unlock()
}

// cues fires CueExit/CueEnter for the active subtitle at the current time.
// Callers hold e.mu.
func (e *Engine) cues(fs []firing) []firing {
	next := -1
	if e.subtitle != nil {
		for i, c := range e.opts.Cues {
			if e.now >= c.Start && e.now < c.End {
				next = i
				break
			}
		}
	}
	if next == e.activeCue {
		return fs
	}
	if e.activeCue >= 0 {
		fs = e.queue(fs, bridge.CueEvent{Exit: true, Text: e.opts.Cues[e.activeCue].Text})
	}
	if next >= 0 {
		fs = e.queue(fs, bridge.CueEvent{Text: e.opts.Cues[next].Text})
	}
	e.activeCue = next
	return fs
}

func (e *Engine) usable() error {
	if e.destroyed {
		return ErrDestroyed
	}
	if e.src == nil {
		return ErrNoSource
	}
	return nil
}

// CurrentTime implements bridge.Engine.
func (e *Engine) CurrentTime() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.now
}

// Duration implements bridge.Engine.
func (e *Engine) Duration() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.src == nil {
		return 0
	}
	return e.opts.Duration
}

// IsMuted implements bridge.Engine.
func (e *Engine) IsMuted() bool { return e.cfg.Volume <= 0 }

// IsPaused implements bridge.Engine.
func (e *Engine) IsPaused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.playing
}

// IsStalled implements bridge.Engine.
func (e *Engine) IsStalled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stalled
}

// IsPlaying implements bridge.Engine.
func (e *Engine) IsPlaying() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playing
}

// Source implements bridge.Engine.
func (e *Engine) Source() bridge.MediaSource {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.src == nil {
		return nil
	}
	return e.src
}

// AvailableSubtitles implements bridge.Engine.
func (e *Engine) AvailableSubtitles() []bridge.SubtitleTrack {
	out := make([]bridge.SubtitleTrack, len(e.opts.Subtitles))
	copy(out, e.opts.Subtitles)
	return out
}

// SetSubtitle implements bridge.Engine. An empty id or "off" disables
// subtitles.
func (e *Engine) SetSubtitle(id string) error {
	e.mu.Lock()
	if err := e.usable(); err != nil {
		e.mu.Unlock()
		return err
	}
	var next *bridge.SubtitleTrack
	if id != "" && id != "off" {
		for i := range e.opts.Subtitles {
			if e.opts.Subtitles[i].ID == id {
				t := e.opts.Subtitles[i]
				next = &t
				break
			}
		}
		if next == nil {
			e.mu.Unlock()
			return fmt.Errorf("set subtitle: unknown track %q", id)
		}
	}
	prev := e.subtitle
	e.subtitle = next
	fs := e.queue(nil, bridge.SubtitleChangedEvent{Old: prev, New: next})
	fs = e.cues(fs)
	e.mu.Unlock()
	fire(fs)
	return nil
}

// SetMaxSelectableVideoBitrate implements bridge.Engine. The selection is
// re-evaluated against the new cap.
func (e *Engine) SetMaxSelectableVideoBitrate(bitrate int) {
	e.mu.Lock()
	if bitrate <= 0 {
		bitrate = bridge.UnboundedBitrate
	}
	e.maxBitrate = bitrate
	var fs []firing
	if e.src != nil {
		if old, cur, changed := e.src.selectFor(bitrate); changed {
			fs = e.queue(fs, bridge.VideoQualityEvent{Old: old, New: cur})
			fs = e.queue(fs, bridge.VideoQualityEvent{Playback: true, Old: old, New: cur})
		}
	}
	e.mu.Unlock()
	fire(fs)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// preferCodecs keeps the renditions whose codec matches one of priority,
// ordered by priority. With no match, or no priority, qs is returned as is.
func preferCodecs(qs []bridge.VideoQuality, priority []string) []bridge.VideoQuality {
	if len(priority) == 0 {
		return append([]bridge.VideoQuality(nil), qs...)
	}
	var out []bridge.VideoQuality
	seen := make(map[string]bool)
	for _, codec := range priority {
		codec = strings.ToLower(strings.TrimSpace(codec))
		if codec == "" {
			continue
		}
		for _, q := range qs {
			if !seen[q.ID] && strings.HasPrefix(strings.ToLower(q.Codec), codec) {
				seen[q.ID] = true
				out = append(out, q)
			}
		}
	}
	if len(out) == 0 {
		return append([]bridge.VideoQuality(nil), qs...)
	}
	return out
}
