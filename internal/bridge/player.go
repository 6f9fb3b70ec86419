package bridge

import (
	"fmt"
	"log/slog"

	"playback-bridge/internal/platform/metrics"
)

// AudioFocus is the device capability a player needs to claim audio output.
type AudioFocus interface {
	// Acquire requests exclusive transient focus for h.
	Acquire(h Handle)
	// Release abandons focus if h holds it.
	Release(h Handle)
}

// PlayerOptions configures a Player. The zero value is usable.
type PlayerOptions struct {
	Logger          *slog.Logger
	Metrics         *metrics.Metrics
	AudioFocus      AudioFocus
	QualityPolicy   QualityPolicy
	EmitDiagnostics bool
}

// Player binds one engine to one State and one EventSink. Engine callbacks
// and host commands for a player run on its serial queue, one at a time.
type Player struct {
	handle  Handle
	engine  Engine
	sink    EventSink
	state   *State
	log     *slog.Logger
	metrics *metrics.Metrics
	focus   AudioFocus

	policy          QualityPolicy
	emitDiagnostics bool

	q        serial
	handlers map[NativeKind]func(NativeEvent)
	cancels  []func()

	// released is set once the engine has been destroyed; closed once the
	// subscriptions are cancelled. Both are guarded by q.
	released bool
	closed   bool
}

// NewPlayer creates the player for handle h and subscribes it to every
// native event kind of engine.
func NewPlayer(h Handle, engine Engine, sink EventSink, opts PlayerOptions) *Player {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	policy := opts.QualityPolicy
	if policy == "" {
		policy = QualityPolicyEngineCap
	}

	p := &Player{
		handle:          h,
		engine:          engine,
		sink:            sink,
		state:           newState(),
		log:             log.With(slog.Int("tag", int(h))),
		metrics:         opts.Metrics,
		focus:           opts.AudioFocus,
		policy:          policy,
		emitDiagnostics: opts.EmitDiagnostics,
	}
	p.q.onPanic = func(v any) {
		p.log.Error("player task panicked", slog.Any("panic", v))
	}
	p.handlers = p.handlerTable()

	for _, kind := range NativeKinds() {
		p.cancels = append(p.cancels, engine.On(kind, p.deliver))
	}
	return p
}

// Handle returns the tag the player was created for.
func (p *Player) Handle() Handle { return p.handle }

// deliver is the single entry point for engine callbacks.
func (p *Player) deliver(ev NativeEvent) {
	if ev == nil {
		return
	}
	if ev.Kind() == NativeSeek {
		ev = p.sample(ev)
	}
	p.q.post(func() { p.dispatch(ev) })
}

// sampled carries the engine clock as it was when the engine fired the event.
type sampled struct {
	NativeEvent
	time     float64
	duration float64
}

func (p *Player) sample(ev NativeEvent) (out NativeEvent) {
	defer func() {
		if recover() != nil {
			out = ev
		}
	}()
	return sampled{NativeEvent: ev, time: p.engine.CurrentTime(), duration: p.engine.Duration()}
}

func (p *Player) dispatch(ev NativeEvent) {
	kind := ev.Kind()
	if p.closed || (p.released && kind != NativeDestroy) {
		p.log.Debug("native event after destroy dropped", slog.String("kind", kind.String()))
		return
	}
	h, ok := p.handlers[kind]
	if !ok {
		p.log.Warn("unhandled native event", slog.String("kind", kind.String()))
		return
	}
	h(ev)
}

// exec runs fn on the serial queue and waits for it. A destroyed player
// reports ErrHandleNotFound; a panicking engine call becomes an error.
func (p *Player) exec(op string, fn func() error) (err error) {
	p.q.call(func() {
		defer func() {
			if v := recover(); v != nil {
				err = fmt.Errorf("engine %s: %v", op, v)
			}
		}()
		if p.released {
			err = &HandleError{Op: op, Handle: p.handle, Err: ErrHandleNotFound}
			return
		}
		err = fn()
	})
	return err
}

// query runs a read-only engine getter on p's queue.
func query[T any](p *Player, op string, get func(Engine) T) (T, error) {
	var v T
	err := p.exec(op, func() error {
		v = get(p.engine)
		return nil
	})
	return v, err
}

// Snapshot returns a copy of the cached playback state.
func (p *Player) Snapshot() State {
	var s State
	p.q.call(func() { s = p.state.Snapshot() })
	return s
}

// Destroy releases the engine and cancels every subscription. A Destroy
// event fired by the engine while releasing is emitted before Destroy
// returns. Calling Destroy again is a no-op.
func (p *Player) Destroy() error {
	var (
		err   error
		first bool
	)
	p.q.call(func() {
		if p.released {
			return
		}
		p.released = true
		first = true
		p.state.Attached = false
		err = p.engine.Destroy()
	})
	if !first {
		return nil
	}
	// Queued behind any Destroy event posted during engine.Destroy.
	p.q.call(p.closeSubscriptions)
	if err != nil {
		return fmt.Errorf("destroy tag #%d: %w", p.handle, err)
	}
	return nil
}

func (p *Player) closeSubscriptions() {
	if p.closed {
		return
	}
	p.closed = true
	for _, cancel := range p.cancels {
		if cancel != nil {
			cancel()
		}
	}
	p.cancels = nil
	p.log.Debug("player subscriptions closed")
}

// Destroyed reports whether the engine has been released.
func (p *Player) Destroyed() bool {
	var d bool
	p.q.call(func() { d = p.released })
	return d
}
