package sim

import (
	"fmt"

	"playback-bridge/internal/bridge"
)

// source is the loaded media. It shares the engine lock.
type source struct {
	e         *Engine
	url       string
	title     string
	qualities []bridge.VideoQuality
	audio     []bridge.AudioQuality
	selected  *bridge.VideoQuality
}

func newSource(e *Engine, src bridge.Source, qs []bridge.VideoQuality, audio []bridge.AudioQuality) *source {
	return &source{
		e:         e,
		url:       src.URL,
		title:     src.Title,
		qualities: qs,
		audio:     append([]bridge.AudioQuality(nil), audio...),
	}
}

// selectFor picks the highest rendition not above limit, or the lowest one
// when all are above it. Callers hold the engine lock.
func (s *source) selectFor(limit int) (old, cur *bridge.VideoQuality, changed bool) {
	var best, lowest *bridge.VideoQuality
	for i := range s.qualities {
		q := &s.qualities[i]
		if lowest == nil || q.Bitrate < lowest.Bitrate {
			lowest = q
		}
		if q.Bitrate <= limit && (best == nil || q.Bitrate > best.Bitrate) {
			best = q
		}
	}
	if best == nil {
		best = lowest
	}
	return s.set(best)
}

func (s *source) set(q *bridge.VideoQuality) (old, cur *bridge.VideoQuality, changed bool) {
	old = s.selected
	if q != nil {
		c := *q
		cur = &c
	}
	switch {
	case old == nil && cur == nil:
		return old, cur, false
	case old != nil && cur != nil && old.ID == cur.ID:
		return old, cur, false
	}
	s.selected = cur
	return old, cur, true
}

func (s *source) attached() bool { return s.e.src == s && !s.e.destroyed }

func (s *source) Attached() bool {
	s.e.mu.Lock()
	defer s.e.mu.Unlock()
	return s.attached()
}

func (s *source) AvailableVideoQualities() []bridge.VideoQuality {
	s.e.mu.Lock()
	defer s.e.mu.Unlock()
	return append([]bridge.VideoQuality(nil), s.qualities...)
}

func (s *source) AvailableAudioQualities() []bridge.AudioQuality {
	s.e.mu.Lock()
	defer s.e.mu.Unlock()
	return append([]bridge.AudioQuality(nil), s.audio...)
}

func (s *source) SelectedVideoQuality() *bridge.VideoQuality {
	s.e.mu.Lock()
	defer s.e.mu.Unlock()
	if s.selected == nil {
		return nil
	}
	q := *s.selected
	return &q
}

// SetVideoQuality switches to the rendition with the given id, firing the
// quality change events.
func (s *source) SetVideoQuality(id string) error {
	s.e.mu.Lock()
	if !s.attached() {
		s.e.mu.Unlock()
		return ErrNoSource
	}
	var target *bridge.VideoQuality
	for i := range s.qualities {
		if s.qualities[i].ID == id {
			target = &s.qualities[i]
			break
		}
	}
	if target == nil {
		s.e.mu.Unlock()
		return fmt.Errorf("set video quality: unknown quality %q", id)
	}
	var fs []firing
	if old, cur, changed := s.set(target); changed {
		fs = s.e.queue(fs, bridge.VideoQualityEvent{Old: old, New: cur})
		fs = s.e.queue(fs, bridge.VideoQualityEvent{Playback: true, Old: old, New: cur})
	}
	s.e.mu.Unlock()
	fire(fs)
	return nil
}
