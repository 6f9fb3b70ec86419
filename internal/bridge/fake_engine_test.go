package bridge

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

type fakeListener struct {
	fn     func(NativeEvent)
	active bool
}

// fakeEngine records every command and lets tests fire native events.
type fakeEngine struct {
	mu        sync.Mutex
	calls     []string
	listeners map[NativeKind][]*fakeListener

	now      float64
	duration float64
	muted    bool
	playing  bool
	stalled  bool

	src       *fakeSource
	subtitles []SubtitleTrack

	// loadDuration becomes the duration on Load.
	loadDuration float64
	// fireOnLoad fires Loaded then Ready from inside Load.
	fireOnLoad bool
	// panicOn names a getter that panics.
	panicOn string
	failOn  string
	// destroyDelay stalls Destroy before it fires the Destroy event.
	destroyDelay time.Duration
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		listeners:    make(map[NativeKind][]*fakeListener),
		loadDuration: 100,
		fireOnLoad:   true,
		src:          &fakeSource{attached: true},
	}
}

func (f *fakeEngine) record(format string, args ...any) {
	f.mu.Lock()
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
	f.mu.Unlock()
}

func (f *fakeEngine) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeEngine) resetCalls() {
	f.mu.Lock()
	f.calls = nil
	f.mu.Unlock()
}

func (f *fakeEngine) fail(op string) error {
	if f.failOn == op {
		return errors.New(op + " rejected")
	}
	return nil
}

// fire delivers ev to the active listeners of its kind.
func (f *fakeEngine) fire(ev NativeEvent) {
	f.mu.Lock()
	var fns []func(NativeEvent)
	for _, l := range f.listeners[ev.Kind()] {
		if l.active {
			fns = append(fns, l.fn)
		}
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (f *fakeEngine) listenerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, ls := range f.listeners {
		for _, l := range ls {
			if l.active {
				n++
			}
		}
	}
	return n
}

func (f *fakeEngine) On(kind NativeKind, fn func(NativeEvent)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	l := &fakeListener{fn: fn, active: true}
	f.listeners[kind] = append(f.listeners[kind], l)
	return func() {
		f.mu.Lock()
		l.active = false
		f.mu.Unlock()
	}
}

func (f *fakeEngine) Load(src Source) error {
	f.record("Load(%s)", src.URL)
	if err := f.fail("Load"); err != nil {
		return err
	}
	f.mu.Lock()
	f.now = src.StartOffset
	f.duration = f.loadDuration
	fire := f.fireOnLoad
	f.mu.Unlock()
	if fire {
		f.fire(SimpleEvent{Type: NativeLoaded})
		f.fire(SimpleEvent{Type: NativeReady})
	}
	return nil
}

func (f *fakeEngine) Play() error {
	f.record("Play")
	if err := f.fail("Play"); err != nil {
		return err
	}
	f.mu.Lock()
	f.playing = true
	f.mu.Unlock()
	f.fire(SimpleEvent{Type: NativePlaying})
	return nil
}

func (f *fakeEngine) Pause() error {
	f.record("Pause")
	f.mu.Lock()
	f.playing = false
	f.mu.Unlock()
	f.fire(SimpleEvent{Type: NativePaused})
	return nil
}

func (f *fakeEngine) Seek(t float64) error {
	f.record("Seek(%g)", t)
	f.fire(SimpleEvent{Type: NativeSeek})
	f.mu.Lock()
	f.now = t
	f.mu.Unlock()
	f.fire(SimpleEvent{Type: NativeSeeked})
	return nil
}

func (f *fakeEngine) TimeShift(t float64) error {
	f.record("TimeShift(%g)", t)
	return nil
}

func (f *fakeEngine) Destroy() error {
	f.record("Destroy")
	if f.destroyDelay > 0 {
		time.Sleep(f.destroyDelay)
	}
	f.fire(SimpleEvent{Type: NativeDestroy})
	return nil
}

func (f *fakeEngine) getter(name string) {
	if f.panicOn == name {
		panic(name + " exploded")
	}
}

func (f *fakeEngine) CurrentTime() float64 {
	f.getter("CurrentTime")
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeEngine) Duration() float64 {
	f.getter("Duration")
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.duration
}

func (f *fakeEngine) IsMuted() bool   { return f.muted }
func (f *fakeEngine) IsPaused() bool  { return !f.playing }
func (f *fakeEngine) IsStalled() bool { return f.stalled }
func (f *fakeEngine) IsPlaying() bool { return f.playing }

func (f *fakeEngine) Source() MediaSource {
	f.getter("Source")
	if f.src == nil {
		return nil
	}
	return f.src
}

func (f *fakeEngine) AvailableSubtitles() []SubtitleTrack {
	f.getter("AvailableSubtitles")
	return f.subtitles
}

func (f *fakeEngine) SetSubtitle(id string) error {
	f.record("SetSubtitle(%s)", id)
	return f.fail("SetSubtitle")
}

func (f *fakeEngine) SetMaxSelectableVideoBitrate(b int) {
	f.record("SetMaxSelectableVideoBitrate(%d)", b)
}

type fakeSource struct {
	attached  bool
	qualities []VideoQuality
	audio     []AudioQuality
	selected  *VideoQuality
	pinned    []string
}

func (s *fakeSource) Attached() bool                          { return s.attached }
func (s *fakeSource) AvailableVideoQualities() []VideoQuality { return s.qualities }
func (s *fakeSource) AvailableAudioQualities() []AudioQuality { return s.audio }
func (s *fakeSource) SelectedVideoQuality() *VideoQuality     { return s.selected }

func (s *fakeSource) SetVideoQuality(id string) error {
	for i := range s.qualities {
		if s.qualities[i].ID == id {
			s.pinned = append(s.pinned, id)
			q := s.qualities[i]
			s.selected = &q
			return nil
		}
	}
	return errors.New("unknown quality " + id)
}

// eventLog is an EventSink capturing everything emitted.
type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) Emit(e Event) error {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
	return nil
}

func (l *eventLog) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event(nil), l.events...)
}

func (l *eventLog) Kinds() []Kind {
	var out []Kind
	for _, e := range l.Events() {
		out = append(out, e.Kind)
	}
	return out
}

func (l *eventLog) Last(kind Kind) (Event, bool) {
	evs := l.Events()
	for i := len(evs) - 1; i >= 0; i-- {
		if evs[i].Kind == kind {
			return evs[i], true
		}
	}
	return Event{}, false
}

// focusLog records audio focus transitions.
type focusLog struct {
	mu    sync.Mutex
	calls []string
}

func (f *focusLog) Acquire(h Handle) {
	f.mu.Lock()
	f.calls = append(f.calls, fmt.Sprintf("acquire(%d)", h))
	f.mu.Unlock()
}

func (f *focusLog) Release(h Handle) {
	f.mu.Lock()
	f.calls = append(f.calls, fmt.Sprintf("release(%d)", h))
	f.mu.Unlock()
}

func (f *focusLog) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func equalStrings[T ~string](a, b []T) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
