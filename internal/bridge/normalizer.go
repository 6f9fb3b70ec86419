package bridge

import (
	"fmt"
	"log/slog"
	"sort"
)

// handlerTable maps every native kind to its projection. Built once per player.
func (p *Player) handlerTable() map[NativeKind]func(NativeEvent) {
	return map[NativeKind]func(NativeEvent){
		NativeLoaded:                      p.onLoaded,
		NativePlaying:                     p.onPlaying,
		NativePaused:                      p.onPaused,
		NativeSeek:                        p.onSeek,
		NativeSeeked:                      p.onSeeked,
		NativeTimeChanged:                 p.onTimeChanged,
		NativeDestroy:                     p.onDestroy,
		NativePlaybackFinished:            p.onPlaybackFinished,
		NativeReady:                       p.onReady,
		NativeSourceError:                 p.onError,
		NativePlayerError:                 p.onError,
		NativeSubtitleChanged:             p.onSubtitleChanged,
		NativeCueEnter:                    p.onCue,
		NativeCueExit:                     p.onCue,
		NativeVideoPlaybackQualityChanged: p.onVideoQualityChanged,
		NativeVideoQualityChanged:         p.onVideoQualityChanged,
		NativeVideoQualitiesChanged:       p.onVideoQualitiesChanged,
		NativeAudioTrackChanged:           p.onAudioTrackChanged,
		NativeWarning:                     p.onWarning,
		NativeAudioPlaybackQualityChanged: p.onAudioPlaybackQualityChanged,
	}
}

func (p *Player) onLoaded(NativeEvent) {
	p.project(KindLoad, func(e *Event) {
		p.state.setDuration(p.engine.Duration())
		e.Duration = p.state.Duration
	})
	p.log.Info("player loaded", slog.Float64("duration", p.state.Duration))
}

func (p *Player) onPlaying(NativeEvent) {
	p.project(KindPlay, func(e *Event) {
		if src := p.engine.Source(); src != nil {
			if q := src.SelectedVideoQuality(); q != nil {
				p.log.Debug("playing", slog.String("quality", q.Label))
			}
		}
	})
}

func (p *Player) onPaused(NativeEvent) {
	p.project(KindPause, func(e *Event) {
		p.state.setStoppedTime(p.engine.CurrentTime())
		e.Time = p.state.StoppedTime
	})
}

// onSeek reports the position sampled before the seek is carried out.
func (p *Player) onSeek(ev NativeEvent) {
	p.project(KindSeek, func(e *Event) {
		if s, ok := ev.(sampled); ok {
			e.Time, e.Duration = s.time, s.duration
			return
		}
		e.Time = p.engine.CurrentTime()
		e.Duration = p.engine.Duration()
	})
}

func (p *Player) onSeeked(NativeEvent) {
	p.project(KindSeeked, func(e *Event) {
		p.state.setStoppedTime(p.engine.CurrentTime())
		e.Time = p.state.StoppedTime
	})
}

func (p *Player) onTimeChanged(NativeEvent) {
	p.project(KindTimeChanged, func(e *Event) {
		p.state.setStoppedTime(p.engine.CurrentTime())
		e.Time = p.state.StoppedTime
	})
}

// onDestroy only uses cached state: the engine is already released.
func (p *Player) onDestroy(NativeEvent) {
	p.project(KindDestroy, func(*Event) {})
	p.log.Info("player destroyed", slog.Float64("stopped_time", p.state.StoppedTime))
}

func (p *Player) onPlaybackFinished(NativeEvent) {
	p.project(KindPlaybackFinished, func(e *Event) {
		p.state.setStoppedTime(p.engine.CurrentTime())
		e.Time = p.state.StoppedTime
		e.Duration = p.engine.Duration()
	})
}

func (p *Player) onError(ev NativeEvent) {
	p.project(KindError, func(e *Event) {
		native := ev.(ErrorEvent)
		source := "player"
		if native.FromSource {
			source = "source"
		}
		p.log.Warn("engine error",
			slog.String("source", source),
			slog.Int("code", native.Code),
			slog.String("error", native.Message))
		e.Payload = ErrorPayload{Message: native.Message, Code: native.Code, Source: source}
	})
}

func (p *Player) onSubtitleChanged(ev NativeEvent) {
	p.project(KindSubtitleChanged, func(e *Event) {
		native := ev.(SubtitleChangedEvent)
		var payload SubtitleChangedPayload
		if native.New != nil {
			payload.NewSubtitleID = strPtr(native.New.ID)
		}
		if native.Old != nil {
			payload.OldSubtitleID = strPtr(native.Old.ID)
		}
		e.Payload = payload
	})
}

func (p *Player) onCue(ev NativeEvent) {
	kind := KindCueEnter
	if ev.Kind() == NativeCueExit {
		kind = KindCueExit
	}
	p.project(kind, func(e *Event) {
		native := ev.(CueEvent)
		var payload CuePayload
		if native.Text != "" {
			payload.CueText = strPtr(native.Text)
		}
		e.Payload = payload
	})
}

func (p *Player) onVideoQualityChanged(ev NativeEvent) {
	kind := KindVideoQualityChanged
	if ev.Kind() == NativeVideoPlaybackQualityChanged {
		kind = KindVideoPlaybackQualityChanged
	}
	p.project(kind, func(e *Event) {
		native := ev.(VideoQualityEvent)
		e.Payload = QualityChangedPayload{
			OldQuality: describePtr(native.Old),
			NewQuality: describePtr(native.New),
		}
		if native.New != nil {
			p.log.Debug("video quality changed",
				slog.String("kind", string(kind)),
				slog.String("quality", native.New.Label),
				slog.Int("bitrate", native.New.Bitrate))
		}
	})
}

func (p *Player) onVideoQualitiesChanged(ev NativeEvent) {
	p.project(KindVideoQualitiesChanged, func(e *Event) {
		native := ev.(VideoQualitiesChangedEvent)
		e.Payload = QualitiesChangedPayload{
			OldQualities: describeAll(native.Old),
			NewQualities: describeAll(native.New),
		}
	})
}

func (p *Player) onAudioTrackChanged(ev NativeEvent) {
	p.project(KindAudioTrackChanged, func(e *Event) {
		native := ev.(AudioTrackChangedEvent)
		var payload AudioTrackPayload
		if native.Old != nil {
			payload.OldAudioTrack = strPtr(native.Old.ID)
		}
		if native.New != nil {
			payload.NewAudioTrack = strPtr(native.New.ID)
		}
		p.log.Info("audio track changed", slog.Any("old", payload.OldAudioTrack), slog.Any("new", payload.NewAudioTrack))
		e.Payload = payload
	})
}

func (p *Player) onWarning(ev NativeEvent) {
	p.project(KindWarning, func(e *Event) {
		native := ev.(WarningEvent)
		p.log.Debug("engine warning", slog.Int("code", native.Code), slog.String("message", native.Message))
		e.Payload = WarningPayload{Message: native.Message, Code: native.Code}
	})
}

func (p *Player) onAudioPlaybackQualityChanged(ev NativeEvent) {
	p.project(KindAudioPlaybackQualityChanged, func(e *Event) {
		native := ev.(AudioQualityEvent)
		var payload AudioQualityPayload
		if native.Old != nil {
			payload.OldAudioQuality = strPtr(native.Old.ID)
		}
		if native.New != nil {
			payload.NewAudioQuality = strPtr(native.New.ID)
		}
		p.log.Info("audio playback quality changed", slog.Any("old", payload.OldAudioQuality), slog.Any("new", payload.NewAudioQuality))
		e.Payload = payload
	})
}

// onReady applies the initial quality policy, gathers tracks and, with
// autoplay set, starts playback before the ready event goes out so the host
// sees ready before play.
func (p *Player) onReady(NativeEvent) {
	payload := ReadyPayload{
		AvailableVideoQualities: []QualityDescriptor{},
		Subtitles:               []SubtitleTrack{},
	}

	p.guard(KindReady, "video qualities", func() { p.applyQualityPolicy(&payload) })
	p.guard(KindReady, "subtitles", func() {
		payload.Subtitles = append(payload.Subtitles, p.engine.AvailableSubtitles()...)
	})
	p.guard(KindReady, "duration", func() { p.state.setDuration(p.engine.Duration()) })
	p.log.Info("player ready", slog.Float64("duration", p.state.Duration))

	if p.state.AutoPlay {
		p.guard(KindReady, "autoplay", func() {
			if err := p.engine.Play(); err != nil {
				p.log.Error("autoplay failed", slog.String("error", err.Error()))
				return
			}
			if p.focus != nil {
				p.focus.Acquire(p.handle)
			}
			p.log.Info("player autoplay")
		})
	}

	p.project(KindReady, func(e *Event) { e.Payload = payload })
}

// applyQualityPolicy pushes the bitrate cap down to the engine once per load
// cycle and reports the qualities highest bitrate first.
func (p *Player) applyQualityPolicy(payload *ReadyPayload) {
	src := p.engine.Source()
	if src == nil || !src.Attached() {
		return
	}

	ascending := sortByBitrate(src.AvailableVideoQualities(), true)
	if !p.state.qualityApplied {
		p.state.qualityApplied = true
		p.engine.SetMaxSelectableVideoBitrate(p.state.InitialBitrateCap)
		if p.policy == QualityPolicyPin {
			if q, ok := pinInitialQuality(ascending, p.state.InitialBitrateCap); ok {
				if err := src.SetVideoQuality(q.ID); err != nil {
					p.log.Error("pin initial quality failed", slog.String("quality", q.ID), slog.String("error", err.Error()))
				} else {
					p.log.Info("initial quality pinned", slog.String("quality", q.ID), slog.Int("bitrate", q.Bitrate))
				}
			}
		}
	}

	payload.SelectedVideoQuality = describePtr(src.SelectedVideoQuality())
	payload.AvailableVideoQualities = describeAll(sortByBitrate(ascending, false))

	p.log.Debug("available audio qualities", slog.Int("count", len(src.AvailableAudioQualities())))
}

// sortByBitrate returns a sorted copy of qs; ties keep their engine order.
func sortByBitrate(qs []VideoQuality, ascending bool) []VideoQuality {
	out := make([]VideoQuality, len(qs))
	copy(out, qs)
	sort.SliceStable(out, func(i, j int) bool {
		if ascending {
			return out[i].Bitrate < out[j].Bitrate
		}
		return out[i].Bitrate > out[j].Bitrate
	})
	return out
}

// pinInitialQuality picks the highest quality whose bitrate is below limit.
// When even the lowest quality reaches the limit the lowest is used; when
// all are below it the highest is used. ascending must be sorted by bitrate.
func pinInitialQuality(ascending []VideoQuality, limit int) (VideoQuality, bool) {
	if len(ascending) == 0 {
		return VideoQuality{}, false
	}
	pick := ascending[0]
	for _, q := range ascending[1:] {
		if q.Bitrate >= limit {
			break
		}
		pick = q
	}
	return pick, true
}

// project builds one canonical event and emits it. If build panics the event
// still goes out with message, time and duration only.
func (p *Player) project(kind Kind, build func(e *Event)) {
	e := Event{
		Handle:   p.handle,
		Kind:     kind,
		Time:     p.state.StoppedTime,
		Duration: p.state.Duration,
	}
	ok := p.guard(kind, "payload", func() { build(&e) })
	if !ok {
		e.Payload = nil
	}
	p.emit(e)
}

// guard runs fn and turns a panic into a logged projection failure.
func (p *Player) guard(kind Kind, section string, fn func()) (ok bool) {
	defer func() {
		if v := recover(); v != nil {
			ok = false
			p.log.Error("projection failed",
				slog.String("kind", string(kind)),
				slog.String("section", section),
				slog.String("error", fmt.Sprint(v)))
			p.metrics.IncProjectionFailures(string(kind))
		}
	}()
	fn()
	return true
}

func (p *Player) emit(e Event) {
	if e.Kind.Diagnostic() && !p.emitDiagnostics {
		return
	}
	if p.sink == nil {
		return
	}
	if err := p.sink.Emit(e); err != nil {
		p.log.Error("emit event failed", slog.String("kind", string(e.Kind)), slog.String("error", err.Error()))
		return
	}
	p.metrics.IncEventsEmitted(string(e.Kind))
}
