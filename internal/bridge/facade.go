package bridge

import (
	"errors"
	"fmt"
	"log/slog"

	"playback-bridge/internal/platform/metrics"
)

// FacadeConfig wires the collaborators a Facade needs to create players.
type FacadeConfig struct {
	NewEngine    EngineFactory
	EngineConfig EngineConfig
	Sink         EventSink
	Player       PlayerOptions
}

// Facade executes host commands against the player registered under a tag.
// Every command resolves its tag first; an unusable tag fails with a
// *HandleError and makes no engine call.
type Facade struct {
	registry *Registry
	cfg      FacadeConfig
	log      *slog.Logger
	metrics  *metrics.Metrics
}

// NewFacade returns a Facade over registry.
func NewFacade(registry *Registry, cfg FacadeConfig) *Facade {
	log := cfg.Player.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Facade{
		registry: registry,
		cfg:      cfg,
		log:      log,
		metrics:  cfg.Player.Metrics,
	}
}

// Registry returns the registry commands are resolved against.
func (f *Facade) Registry() *Registry { return f.registry }

// Create builds a player with a fresh engine and registers it under tag,
// replacing (and destroying) any player already there.
func (f *Facade) Create(tag Handle) (*Player, error) {
	if f.cfg.NewEngine == nil {
		return nil, errors.New("create player: no engine factory configured")
	}
	engine, err := f.cfg.NewEngine(f.cfg.EngineConfig)
	if err != nil {
		return nil, fmt.Errorf("create player tag #%d: %w", tag, err)
	}
	p := NewPlayer(tag, engine, f.cfg.Sink, f.cfg.Player)
	f.registry.Register(tag, p)
	f.log.Info("player created", slog.Int("tag", int(tag)))
	return p, nil
}

// Load starts a new load cycle with src.
func (f *Facade) Load(tag Handle, src Source) error {
	p, err := f.resolve("load", tag)
	if err != nil {
		return err
	}
	return p.exec("load", func() error {
		p.state.beginLoad()
		if err := p.engine.Load(src); err != nil {
			p.state.Attached = false
			return &EngineError{Op: "load", Handle: tag, Err: err}
		}
		return nil
	})
}

// Play starts playback unless the media has already played to its end, in
// which case it does nothing. Starting playback claims audio focus.
func (f *Facade) Play(tag Handle) error {
	p, err := f.resolve("play", tag)
	if err != nil {
		return err
	}
	played := false
	err = p.exec("play", func() error {
		if !(p.engine.CurrentTime() < p.engine.Duration()) {
			p.log.Debug("play ignored: playback completed")
			return nil
		}
		if err := p.engine.Play(); err != nil {
			return &EngineError{Op: "play", Handle: tag, Err: err}
		}
		played = true
		return nil
	})
	if err != nil {
		return err
	}
	if played && p.focus != nil {
		p.focus.Acquire(tag)
	}
	return nil
}

// Pause pauses playback and releases audio focus.
func (f *Facade) Pause(tag Handle) error {
	p, err := f.resolve("pause", tag)
	if err != nil {
		return err
	}
	err = p.exec("pause", func() error {
		if err := p.engine.Pause(); err != nil {
			return &EngineError{Op: "pause", Handle: tag, Err: err}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if p.focus != nil {
		p.focus.Release(tag)
	}
	return nil
}

// Seek forwards t to the engine unchanged; the engine owns the bounds.
func (f *Facade) Seek(tag Handle, t float64) error {
	p, err := f.resolve("seek", tag)
	if err != nil {
		return err
	}
	return p.exec("seek", func() error {
		if err := p.engine.Seek(t); err != nil {
			return &EngineError{Op: "seek", Handle: tag, Err: err}
		}
		p.state.setStoppedTime(t)
		return nil
	})
}

// TimeShift forwards t to the engine unchanged.
func (f *Facade) TimeShift(tag Handle, t float64) error {
	p, err := f.resolve("timeShift", tag)
	if err != nil {
		return err
	}
	return p.exec("timeShift", func() error {
		if err := p.engine.TimeShift(t); err != nil {
			return &EngineError{Op: "timeShift", Handle: tag, Err: err}
		}
		return nil
	})
}

// Restart seeks to the start and then plays, in that order.
func (f *Facade) Restart(tag Handle) error {
	p, err := f.resolve("restart", tag)
	if err != nil {
		return err
	}
	err = p.exec("restart", func() error {
		if err := p.engine.Seek(0); err != nil {
			return &EngineError{Op: "restart", Handle: tag, Err: fmt.Errorf("seek: %w", err)}
		}
		p.state.setStoppedTime(0)
		if err := p.engine.Play(); err != nil {
			return &EngineError{Op: "restart", Handle: tag, Err: fmt.Errorf("play: %w", err)}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if p.focus != nil {
		p.focus.Acquire(tag)
	}
	return nil
}

// Destroy releases the player's engine and removes its tag. The destroy
// event is emitted before the tag stops resolving.
func (f *Facade) Destroy(tag Handle) error {
	p, err := f.resolve("destroy", tag)
	if err != nil {
		return err
	}
	err = p.Destroy()
	f.registry.removeIf(tag, p)
	if p.focus != nil {
		p.focus.Release(tag)
	}
	return err
}

// SetSubtitle forwards trackID to the engine; the engine validates it.
func (f *Facade) SetSubtitle(tag Handle, trackID string) error {
	p, err := f.resolve("setSubtitle", tag)
	if err != nil {
		return err
	}
	return p.exec("setSubtitle", func() error {
		if err := p.engine.SetSubtitle(trackID); err != nil {
			return &EngineError{Op: "setSubtitle", Handle: tag, Err: err}
		}
		return nil
	})
}

// SetAutoPlay sets whether the player starts on its own once ready.
func (f *Facade) SetAutoPlay(tag Handle, autoplay bool) error {
	p, err := f.resolve("setAutoPlay", tag)
	if err != nil {
		return err
	}
	return p.exec("setAutoPlay", func() error {
		p.state.setAutoPlay(autoplay)
		return nil
	})
}

// SetInitBitrate sets the bitrate cap applied when the player becomes ready.
// Non-positive values remove the cap.
func (f *Facade) SetInitBitrate(tag Handle, bitrate int) error {
	p, err := f.resolve("setInitBitrate", tag)
	if err != nil {
		return err
	}
	return p.exec("setInitBitrate", func() error {
		p.state.setInitialBitrateCap(bitrate)
		return nil
	})
}

// CurrentTime returns the engine's playback position.
func (f *Facade) CurrentTime(tag Handle) (float64, error) {
	return resolveQuery(f, "getCurrentTime", tag, Engine.CurrentTime)
}

// Duration returns the engine's media duration.
func (f *Facade) Duration(tag Handle) (float64, error) {
	return resolveQuery(f, "getDuration", tag, Engine.Duration)
}

// IsMuted reports whether the engine is muted.
func (f *Facade) IsMuted(tag Handle) (bool, error) {
	return resolveQuery(f, "isMuted", tag, Engine.IsMuted)
}

// IsPaused reports whether the engine is paused.
func (f *Facade) IsPaused(tag Handle) (bool, error) {
	return resolveQuery(f, "isPaused", tag, Engine.IsPaused)
}

// IsStalled reports whether the engine is stalled waiting for data.
func (f *Facade) IsStalled(tag Handle) (bool, error) {
	return resolveQuery(f, "isStalled", tag, Engine.IsStalled)
}

// IsPlaying reports whether the engine is playing.
func (f *Facade) IsPlaying(tag Handle) (bool, error) {
	return resolveQuery(f, "isPlaying", tag, Engine.IsPlaying)
}

// State returns the cached playback state of the player under tag.
func (f *Facade) State(tag Handle) (State, error) {
	p, err := f.resolve("getState", tag)
	if err != nil {
		return State{}, err
	}
	return p.Snapshot(), nil
}

func resolveQuery[T any](f *Facade, op string, tag Handle, get func(Engine) T) (T, error) {
	p, err := f.resolve(op, tag)
	if err != nil {
		var zero T
		return zero, err
	}
	return query(p, op, get)
}

func (f *Facade) resolve(op string, tag Handle) (*Player, error) {
	p, err := f.registry.Resolve(tag)
	if err != nil {
		reason := "not_found"
		if errors.Is(err, ErrHandleTypeMismatch) {
			reason = "type_mismatch"
		}
		f.metrics.IncHandleErrors(reason)
		f.log.Debug("command rejected",
			slog.String("op", op),
			slog.Int("tag", int(tag)),
			slog.String("error", err.Error()))
		return nil, &HandleError{Op: op, Handle: tag, Err: err}
	}
	f.metrics.IncCommands(op)
	return p, nil
}
