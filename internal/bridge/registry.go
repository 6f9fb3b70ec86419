package bridge

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

var (
	// ErrHandleNotFound is returned when no view is registered under a tag.
	ErrHandleNotFound = errors.New("handle not found")

	// ErrHandleTypeMismatch is returned when the view registered under a tag
	// is not a player.
	ErrHandleTypeMismatch = errors.New("view is not a player")
)

// HandleError reports a command issued against an unusable tag.
type HandleError struct {
	Op     string
	Handle Handle
	Err    error
}

func (e *HandleError) Error() string {
	if errors.Is(e.Err, ErrHandleTypeMismatch) {
		return fmt.Sprintf("cannot %s: view with tag #%d is not a player", e.Op, e.Handle)
	}
	return fmt.Sprintf("cannot %s: no view with tag #%d", e.Op, e.Handle)
}

func (e *HandleError) Unwrap() error {
	return e.Err
}

// EngineError reports a command the engine itself rejected or failed.
type EngineError struct {
	Op     string
	Handle Handle
	Err    error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("%s tag #%d: %v", e.Op, e.Handle, e.Err)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

// Registry maps host tags to views. Players share the tag space with other
// host views, so lookups check the view type.
type Registry struct {
	// writeMu serializes Register and Unregister across a destroy, which
	// runs without mu held so sinks can still resolve tags.
	writeMu sync.Mutex

	mu    sync.RWMutex
	views map[Handle]any
	log   *slog.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		views: make(map[Handle]any),
		log:   log,
	}
}

// Register stores view under tag. Registering the same player twice is a
// no-op; replacing a live player destroys it first so its engine
// subscriptions do not leak.
func (r *Registry) Register(tag Handle, view any) {
	if view == nil {
		return
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.mu.RLock()
	prev, exists := r.views[tag]
	r.mu.RUnlock()

	if exists {
		if prevPlayer, ok := prev.(*Player); ok {
			if next, ok := view.(*Player); ok && next == prevPlayer {
				return
			}
			r.destroy(tag, prevPlayer)
		}
	}

	r.mu.Lock()
	r.views[tag] = view
	r.mu.Unlock()
}

// Unregister removes the view under tag, destroying it if it is a player.
// Unknown tags are ignored.
func (r *Registry) Unregister(tag Handle) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.mu.RLock()
	view, exists := r.views[tag]
	r.mu.RUnlock()
	if !exists {
		return
	}

	if p, ok := view.(*Player); ok {
		r.destroy(tag, p)
		r.removeIf(tag, p)
		return
	}
	r.mu.Lock()
	delete(r.views, tag)
	r.mu.Unlock()
}

// Resolve returns the player registered under tag.
func (r *Registry) Resolve(tag Handle) (*Player, error) {
	r.mu.RLock()
	view, exists := r.views[tag]
	r.mu.RUnlock()

	if !exists {
		return nil, ErrHandleNotFound
	}
	p, ok := view.(*Player)
	if !ok {
		return nil, ErrHandleTypeMismatch
	}
	return p, nil
}

// ActivePlayers returns the number of registered players.
func (r *Registry) ActivePlayers() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, view := range r.views {
		if _, ok := view.(*Player); ok {
			n++
		}
	}
	return n
}

// Handles returns the registered player tags in ascending order.
func (r *Registry) Handles() []Handle {
	r.mu.RLock()
	tags := make([]Handle, 0, len(r.views))
	for tag, view := range r.views {
		if _, ok := view.(*Player); ok {
			tags = append(tags, tag)
		}
	}
	r.mu.RUnlock()

	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}

// Close unregisters every player.
func (r *Registry) Close() {
	for _, tag := range r.Handles() {
		r.Unregister(tag)
	}
}

// removeIf deletes tag only while it still maps to p.
func (r *Registry) removeIf(tag Handle, p *Player) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.views[tag].(*Player); !ok || current != p {
		return false
	}
	delete(r.views, tag)
	return true
}

func (r *Registry) destroy(tag Handle, p *Player) {
	if err := p.Destroy(); err != nil {
		r.log.Error("destroy player failed", slog.Int("tag", int(tag)), slog.String("error", err.Error()))
	}
}
