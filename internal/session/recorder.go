package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"playback-bridge/internal/bridge"
)

const recordTimeout = 2 * time.Second

type tracked struct {
	key      Key
	finished bool
}

// Recorder is an EventSink that forwards every event to next and keeps the
// resume position of tracked players up to date: the position is saved on
// pause, seeked and destroy and dropped once playback finishes.
type Recorder struct {
	store Store
	next  bridge.EventSink
	log   *slog.Logger

	mu      sync.Mutex
	players map[bridge.Handle]*tracked
}

// NewRecorder returns a Recorder writing to store.
func NewRecorder(store Store, next bridge.EventSink, log *slog.Logger) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{
		store:   store,
		next:    next,
		log:     log,
		players: make(map[bridge.Handle]*tracked),
	}
}

// Track starts recording positions of the player under h as key.
func (r *Recorder) Track(h bridge.Handle, key Key) {
	r.mu.Lock()
	r.players[h] = &tracked{key: key}
	r.mu.Unlock()
}

// Untrack stops recording positions of the player under h.
func (r *Recorder) Untrack(h bridge.Handle) {
	r.mu.Lock()
	delete(r.players, h)
	r.mu.Unlock()
}

// Tracking returns the key recorded for h, if any.
func (r *Recorder) Tracking(h bridge.Handle) (Key, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.players[h]
	if !ok {
		return Key{}, false
	}
	return t.key, true
}

// Emit implements bridge.EventSink. The event reaches next before anything
// is written to the store.
func (r *Recorder) Emit(e bridge.Event) error {
	var err error
	if r.next != nil {
		err = r.next.Emit(e)
	}
	r.record(e)
	return err
}

func (r *Recorder) record(e bridge.Event) {
	r.mu.Lock()
	t, ok := r.players[e.Handle]
	if !ok {
		r.mu.Unlock()
		return
	}
	key := t.key
	save, drop := false, false
	switch e.Kind {
	case bridge.KindPlay, bridge.KindSeek:
		t.finished = false
	case bridge.KindPause, bridge.KindSeeked:
		t.finished = false
		save = true
	case bridge.KindPlaybackFinished:
		t.finished = true
		drop = true
	case bridge.KindDestroy:
		save = !t.finished
		delete(r.players, e.Handle)
	}
	r.mu.Unlock()

	if !save && !drop {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	log := r.log.With(
		slog.Int("tag", int(e.Handle)),
		slog.String("video_id", key.VideoID),
		slog.String("event_id", key.EventID))

	if drop {
		if err := r.store.DeletePosition(ctx, key); err != nil {
			log.Error("delete resume position failed", slog.String("error", err.Error()))
		}
		return
	}
	pos := Position{Key: key, Time: e.Time, Duration: e.Duration}
	if err := r.store.SavePosition(ctx, pos); err != nil {
		log.Error("save resume position failed", slog.String("error", err.Error()))
		return
	}
	log.Debug("resume position saved", slog.Float64("time", e.Time))
}
