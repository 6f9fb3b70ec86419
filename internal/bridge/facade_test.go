package bridge

import (
	"errors"
	"testing"
)

func TestFacade_InvalidTagMakesNoEngineCall(t *testing.T) {
	f := newFixture(t, PlayerOptions{})
	e := f.open(1)
	f.reg.Register(2, "poster view")
	e.resetCalls()

	commands := map[string]func(Handle) error{
		"play":      f.facade.Play,
		"pause":     f.facade.Pause,
		"restart":   f.facade.Restart,
		"destroy":   f.facade.Destroy,
		"seek":      func(h Handle) error { return f.facade.Seek(h, 10) },
		"timeShift": func(h Handle) error { return f.facade.TimeShift(h, -10) },
		"subtitle":  func(h Handle) error { return f.facade.SetSubtitle(h, "en") },
		"autoplay":  func(h Handle) error { return f.facade.SetAutoPlay(h, true) },
		"bitrate":   func(h Handle) error { return f.facade.SetInitBitrate(h, 1000) },
		"load":      func(h Handle) error { return f.facade.Load(h, Source{URL: "u"}) },
		"time": func(h Handle) error {
			_, err := f.facade.CurrentTime(h)
			return err
		},
		"playing": func(h Handle) error {
			_, err := f.facade.IsPlaying(h)
			return err
		},
		"state": func(h Handle) error {
			_, err := f.facade.State(h)
			return err
		},
	}

	for name, cmd := range commands {
		t.Run(name, func(t *testing.T) {
			err := cmd(99)
			var herr *HandleError
			if !errors.As(err, &herr) || !errors.Is(err, ErrHandleNotFound) {
				t.Errorf("unknown tag: got %v, want HandleError wrapping ErrHandleNotFound", err)
			}
			if herr != nil && herr.Handle != 99 {
				t.Errorf("HandleError.Handle = %d, want 99", herr.Handle)
			}
			if err := cmd(2); !errors.Is(err, ErrHandleTypeMismatch) {
				t.Errorf("non-player tag: got %v, want ErrHandleTypeMismatch", err)
			}
		})
	}

	if calls := e.Calls(); len(calls) != 0 {
		t.Errorf("invalid tags reached the engine: %v", calls)
	}
}

func TestFacade_LoadResetsState(t *testing.T) {
	f := newFixture(t, PlayerOptions{})
	e := f.open(1)

	st, err := f.facade.State(1)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if !st.Attached || st.Duration != 100 || st.InitialBitrateCap != UnboundedBitrate {
		t.Errorf("state after load = %+v", st)
	}
	if got := f.sink.Kinds(); !equalStrings(got, []Kind{KindLoad, KindReady}) {
		t.Errorf("events = %v, want [load ready]", got)
	}
	if ev, _ := f.sink.Last(KindLoad); ev.Duration != 100 {
		t.Errorf("load event duration = %v, want 100", ev.Duration)
	}

	e.failOn = "Load"
	if err := f.facade.Load(1, Source{URL: "bad"}); err == nil {
		t.Fatal("expected load failure")
	} else {
		var engineErr *EngineError
		if !errors.As(err, &engineErr) || engineErr.Op != "load" {
			t.Errorf("load failure = %v, want EngineError for load", err)
		}
	}
	st, _ = f.facade.State(1)
	if st.Attached {
		t.Error("failed load should leave the player detached")
	}
}

func TestFacade_PlayIgnoredAfterCompletion(t *testing.T) {
	f := newFixture(t, PlayerOptions{})
	e := f.open(1)
	e.now = 100
	e.resetCalls()

	if err := f.facade.Play(1); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if calls := e.Calls(); len(calls) != 0 {
		t.Errorf("Play at completion reached the engine: %v", calls)
	}
	if calls := f.focus.Calls(); len(calls) != 0 {
		t.Errorf("Play at completion touched audio focus: %v", calls)
	}

	e.now = 10
	if err := f.facade.Play(1); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if calls := e.Calls(); !equalStrings(calls, []string{"Play"}) {
		t.Errorf("engine calls = %v, want [Play]", calls)
	}
	if calls := f.focus.Calls(); !equalStrings(calls, []string{"acquire(1)"}) {
		t.Errorf("focus calls = %v, want [acquire(1)]", calls)
	}
}

func TestFacade_PauseReleasesFocus(t *testing.T) {
	f := newFixture(t, PlayerOptions{})
	e := f.open(1)
	e.now = 30
	_ = f.facade.Play(1)

	if err := f.facade.Pause(1); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if calls := f.focus.Calls(); !equalStrings(calls, []string{"acquire(1)", "release(1)"}) {
		t.Errorf("focus calls = %v", calls)
	}
	ev, ok := f.sink.Last(KindPause)
	if !ok || ev.Time != 30 {
		t.Errorf("pause event = %+v, want time 30", ev)
	}
}

func TestFacade_RestartSeeksThenPlays(t *testing.T) {
	f := newFixture(t, PlayerOptions{})
	e := f.open(1)
	e.now = 100
	e.resetCalls()

	if err := f.facade.Restart(1); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	if calls := e.Calls(); !equalStrings(calls, []string{"Seek(0)", "Play"}) {
		t.Errorf("engine calls = %v, want [Seek(0) Play]", calls)
	}
	st, _ := f.facade.State(1)
	if st.StoppedTime != 0 {
		t.Errorf("stoppedTime after restart = %v, want 0", st.StoppedTime)
	}
	if calls := f.focus.Calls(); !equalStrings(calls, []string{"acquire(1)"}) {
		t.Errorf("focus calls = %v, want [acquire(1)]", calls)
	}
}

func TestFacade_SeekForwardsVerbatim(t *testing.T) {
	f := newFixture(t, PlayerOptions{})
	e := f.open(1)
	e.now = 10
	e.resetCalls()

	if err := f.facade.Seek(1, 42.5); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if err := f.facade.TimeShift(1, -1000); err != nil {
		t.Fatalf("TimeShift: %v", err)
	}
	if calls := e.Calls(); !equalStrings(calls, []string{"Seek(42.5)", "TimeShift(-1000)"}) {
		t.Errorf("engine calls = %v", calls)
	}

	seek, _ := f.sink.Last(KindSeek)
	if seek.Time != 10 || seek.Duration != 100 {
		t.Errorf("seek event = time %v duration %v, want pre-seek 10/100", seek.Time, seek.Duration)
	}
	seeked, _ := f.sink.Last(KindSeeked)
	if seeked.Time != 42.5 {
		t.Errorf("seeked event time = %v, want 42.5", seeked.Time)
	}
	st, _ := f.facade.State(1)
	if st.StoppedTime != 42.5 {
		t.Errorf("stoppedTime = %v, want 42.5", st.StoppedTime)
	}
}

func TestFacade_QueriesReadEngine(t *testing.T) {
	f := newFixture(t, PlayerOptions{})
	e := f.open(1)
	e.now = 33
	e.muted = true
	e.stalled = true

	if v, err := f.facade.CurrentTime(1); err != nil || v != 33 {
		t.Errorf("CurrentTime = %v, %v; want 33", v, err)
	}
	if v, _ := f.facade.Duration(1); v != 100 {
		t.Errorf("Duration = %v, want 100", v)
	}
	if v, _ := f.facade.IsMuted(1); !v {
		t.Error("IsMuted = false, want true")
	}
	if v, _ := f.facade.IsStalled(1); !v {
		t.Error("IsStalled = false, want true")
	}
	if v, _ := f.facade.IsPaused(1); !v {
		t.Error("IsPaused = false, want true")
	}
	st, _ := f.facade.State(1)
	if st.StoppedTime == 33 {
		t.Error("queries should not refresh the cached stoppedTime")
	}
}

func TestFacade_SetSubtitleAndConfig(t *testing.T) {
	f := newFixture(t, PlayerOptions{})
	e := f.open(1)
	e.resetCalls()

	if err := f.facade.SetSubtitle(1, "fr"); err != nil {
		t.Fatalf("SetSubtitle: %v", err)
	}
	e.failOn = "SetSubtitle"
	var engineErr *EngineError
	if err := f.facade.SetSubtitle(1, "xx"); !errors.As(err, &engineErr) {
		t.Errorf("engine rejection = %v, want *EngineError", err)
	}
	if calls := e.Calls(); !equalStrings(calls, []string{"SetSubtitle(fr)", "SetSubtitle(xx)"}) {
		t.Errorf("engine calls = %v", calls)
	}

	_ = f.facade.SetAutoPlay(1, true)
	_ = f.facade.SetInitBitrate(1, 0)
	st, _ := f.facade.State(1)
	if !st.AutoPlay || st.InitialBitrateCap != UnboundedBitrate {
		t.Errorf("state = %+v, want autoplay and unbounded cap", st)
	}
	_ = f.facade.SetInitBitrate(1, 1_500_000)
	st, _ = f.facade.State(1)
	if st.InitialBitrateCap != 1_500_000 {
		t.Errorf("InitialBitrateCap = %d, want 1500000", st.InitialBitrateCap)
	}
}

func TestFacade_DestroyEmitsBeforeUnregister(t *testing.T) {
	f := newFixture(t, PlayerOptions{})
	e := f.open(1)
	e.now = 12
	_ = f.facade.Pause(1)

	resolvedAtDestroy := false
	f.sink = &eventLog{}
	p, _ := f.reg.Resolve(1)
	p.sink = SinkFunc(func(ev Event) error {
		if ev.Kind == KindDestroy {
			_, err := f.reg.Resolve(1)
			resolvedAtDestroy = err == nil
		}
		return f.sink.Emit(ev)
	})

	if err := f.facade.Destroy(1); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if !resolvedAtDestroy {
		t.Error("destroy event was emitted after the tag stopped resolving")
	}
	ev, ok := f.sink.Last(KindDestroy)
	if !ok || ev.Time != 12 {
		t.Errorf("destroy event = %+v, want cached time 12", ev)
	}
	if _, err := f.reg.Resolve(1); !errors.Is(err, ErrHandleNotFound) {
		t.Errorf("Resolve after destroy = %v, want ErrHandleNotFound", err)
	}
	if n := e.listenerCount(); n != 0 {
		t.Errorf("%d engine subscriptions left after destroy", n)
	}

	before := len(f.sink.Events())
	e.fire(SimpleEvent{Type: NativeTimeChanged})
	if len(f.sink.Events()) != before {
		t.Error("events after destroy must be dropped")
	}
	if err := f.facade.Destroy(1); !errors.Is(err, ErrHandleNotFound) {
		t.Errorf("second Destroy = %v, want ErrHandleNotFound", err)
	}
}

func TestFacade_CommandOnDestroyedPlayer(t *testing.T) {
	f := newFixture(t, PlayerOptions{})
	f.open(1)
	p, _ := f.reg.Resolve(1)
	if err := p.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if err := p.exec("play", func() error { return nil }); !errors.Is(err, ErrHandleNotFound) {
		t.Errorf("exec on destroyed player = %v, want ErrHandleNotFound", err)
	}
}
