package bridge

import (
	"sync"
	"testing"

	"playback-bridge/internal/platform/logger"
)

type fixture struct {
	t      *testing.T
	reg    *Registry
	facade *Facade
	sink   *eventLog
	focus  *focusLog

	mu      sync.Mutex
	engines []*fakeEngine
	setup   func(*fakeEngine)
}

func newFixture(t *testing.T, opts PlayerOptions) *fixture {
	t.Helper()
	f := &fixture{
		t:     t,
		reg:   NewRegistry(logger.Discard()),
		sink:  &eventLog{},
		focus: &focusLog{},
	}
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}
	if opts.AudioFocus == nil {
		opts.AudioFocus = f.focus
	}
	f.facade = NewFacade(f.reg, FacadeConfig{
		NewEngine: func(EngineConfig) (Engine, error) {
			e := newFakeEngine()
			f.mu.Lock()
			if f.setup != nil {
				f.setup(e)
			}
			f.engines = append(f.engines, e)
			f.mu.Unlock()
			return e, nil
		},
		Sink:   f.sink,
		Player: opts,
	})
	return f
}

// engine returns the i-th engine built by the factory.
func (f *fixture) engine(i int) *fakeEngine {
	f.t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if i >= len(f.engines) {
		f.t.Fatalf("engine %d not created (have %d)", i, len(f.engines))
	}
	return f.engines[i]
}

// open creates and loads a player under tag and returns its engine.
func (f *fixture) open(tag Handle) *fakeEngine {
	f.t.Helper()
	if _, err := f.facade.Create(tag); err != nil {
		f.t.Fatalf("Create(%d): %v", tag, err)
	}
	f.mu.Lock()
	e := f.engines[len(f.engines)-1]
	f.mu.Unlock()
	if err := f.facade.Load(tag, Source{URL: "https://cdn.example/master.m3u8"}); err != nil {
		f.t.Fatalf("Load(%d): %v", tag, err)
	}
	return e
}
