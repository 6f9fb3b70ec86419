// Package playback exposes the player bridge to a remote host: a command API
// over HTTP, a websocket event stream, and resume/preference bookkeeping.
package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"playback-bridge/internal/bridge"
	"playback-bridge/internal/session"
)

var (
	// ErrInvalidRequest is returned for requests missing required fields.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrUnknownPreset is returned for a bitrate preset key that does not exist.
	ErrUnknownPreset = errors.New("unknown bitrate preset")
)

// OpenRequest describes a player to create and the source to load into it.
type OpenRequest struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	VideoID string `json:"videoId"`
	EventID string `json:"eventId"`

	AutoPlay bool `json:"autoplay"`

	// InitBitrate, when positive, overrides BitratePreset.
	InitBitrate   int    `json:"initBitrate"`
	BitratePreset string `json:"bitratePreset"`

	// Resume starts from the saved position of VideoID/EventID, if any.
	Resume bool `json:"resume"`
}

// OpenResult is what Open settled on.
type OpenResult struct {
	Tag         bridge.Handle `json:"tag"`
	StartOffset float64       `json:"startOffset"`
	InitBitrate int           `json:"initBitrate"`
	Preset      string        `json:"bitratePreset,omitempty"`
}

// Service wires host requests to the bridge facade and the session store.
type Service struct {
	facade   *bridge.Facade
	store    session.Store
	recorder *session.Recorder
	preset   bridge.BitratePreset
	log      *slog.Logger
}

// NewService returns a Service. fallback is the preset used when the viewer
// has not saved one.
func NewService(facade *bridge.Facade, store session.Store, recorder *session.Recorder, fallback bridge.BitratePreset, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	if fallback.Key == "" {
		fallback = bridge.DefaultBitratePreset
	}
	return &Service{
		facade:   facade,
		store:    store,
		recorder: recorder,
		preset:   fallback,
		log:      log,
	}
}

// Facade returns the facade commands are executed on.
func (s *Service) Facade() *bridge.Facade { return s.facade }

// Open creates the player for tag, configures it and loads req's source.
// An existing player under tag is destroyed first.
func (s *Service) Open(ctx context.Context, tag bridge.Handle, req OpenRequest) (OpenResult, error) {
	if strings.TrimSpace(req.URL) == "" {
		return OpenResult{}, fmt.Errorf("%w: url is required", ErrInvalidRequest)
	}

	res := OpenResult{Tag: tag}
	if req.InitBitrate > 0 {
		res.InitBitrate = req.InitBitrate
	} else {
		preset, err := s.presetFor(ctx, req.BitratePreset)
		if err != nil {
			return OpenResult{}, err
		}
		res.InitBitrate, res.Preset = preset.Cap, preset.Key
	}

	key := session.Key{VideoID: req.VideoID, EventID: req.EventID}
	if req.Resume && req.VideoID != "" && s.store != nil {
		pos, ok, err := s.store.GetPosition(ctx, key)
		if err != nil {
			s.log.Error("read resume position failed", slog.String("video_id", req.VideoID), slog.String("error", err.Error()))
		} else if ok {
			res.StartOffset = session.ResumeOffset(pos)
		}
	}

	if _, err := s.facade.Create(tag); err != nil {
		return OpenResult{}, err
	}
	if err := s.facade.SetAutoPlay(tag, req.AutoPlay); err != nil {
		return OpenResult{}, err
	}
	if err := s.facade.SetInitBitrate(tag, res.InitBitrate); err != nil {
		return OpenResult{}, err
	}
	if s.recorder != nil {
		if req.VideoID != "" {
			s.recorder.Track(tag, key)
		} else {
			s.recorder.Untrack(tag)
		}
	}

	src := bridge.Source{URL: req.URL, Title: req.Title, StartOffset: res.StartOffset}
	if err := s.facade.Load(tag, src); err != nil {
		return res, err
	}

	s.log.Info("player opened",
		slog.Int("tag", int(tag)),
		slog.String("video_id", req.VideoID),
		slog.Float64("start_offset", res.StartOffset),
		slog.Int("init_bitrate", res.InitBitrate))
	return res, nil
}

// Close is the host teardown of tag: the player is destroyed and the tag
// removed.
func (s *Service) Close(tag bridge.Handle) error {
	reg := s.facade.Registry()
	if _, err := reg.Resolve(tag); err != nil {
		return &bridge.HandleError{Op: "close", Handle: tag, Err: err}
	}
	reg.Unregister(tag)
	return nil
}

// SetBitrate sets the initial bitrate cap of tag from an explicit value or,
// when bitrate is not positive, from a preset key.
func (s *Service) SetBitrate(ctx context.Context, tag bridge.Handle, bitrate int, presetKey string) (int, error) {
	if bitrate <= 0 && presetKey != "" {
		preset, ok := bridge.LookupBitratePreset(presetKey)
		if !ok {
			return 0, fmt.Errorf("%w: %q", ErrUnknownPreset, presetKey)
		}
		bitrate = preset.Cap
	}
	if err := s.facade.SetInitBitrate(tag, bitrate); err != nil {
		return 0, err
	}
	if bitrate <= 0 {
		bitrate = bridge.UnboundedBitrate
	}
	return bitrate, nil
}

// PreferredPreset returns the viewer's saved preset or the fallback.
func (s *Service) PreferredPreset(ctx context.Context) (bridge.BitratePreset, error) {
	return s.presetFor(ctx, "")
}

// SavePreferredPreset stores key as the viewer's preset.
func (s *Service) SavePreferredPreset(ctx context.Context, key string) (bridge.BitratePreset, error) {
	preset, ok := bridge.LookupBitratePreset(key)
	if !ok {
		return bridge.BitratePreset{}, fmt.Errorf("%w: %q", ErrUnknownPreset, key)
	}
	if s.store == nil {
		return preset, nil
	}
	if err := s.store.SaveBitratePreset(ctx, preset.Key); err != nil {
		return bridge.BitratePreset{}, fmt.Errorf("save bitrate preset: %w", err)
	}
	return preset, nil
}

// presetFor resolves an explicit key, then the saved preference, then the
// fallback.
func (s *Service) presetFor(ctx context.Context, key string) (bridge.BitratePreset, error) {
	if key != "" {
		preset, ok := bridge.LookupBitratePreset(key)
		if !ok {
			return bridge.BitratePreset{}, fmt.Errorf("%w: %q", ErrUnknownPreset, key)
		}
		return preset, nil
	}
	if s.store != nil {
		saved, err := s.store.BitratePreset(ctx)
		if err != nil {
			s.log.Error("read bitrate preset failed", slog.String("error", err.Error()))
		} else if preset, ok := bridge.LookupBitratePreset(saved); ok {
			return preset, nil
		}
	}
	return s.preset, nil
}

// Position returns the saved position for key.
func (s *Service) Position(ctx context.Context, key session.Key) (session.Position, bool, error) {
	if s.store == nil {
		return session.Position{}, false, nil
	}
	return s.store.GetPosition(ctx, key)
}

// EventIDs lists events with at least one saved position.
func (s *Service) EventIDs(ctx context.Context) ([]string, error) {
	if s.store == nil {
		return []string{}, nil
	}
	return s.store.EventIDs(ctx)
}

// ForgetPositions deletes the given positions and every position of the
// given events.
func (s *Service) ForgetPositions(ctx context.Context, keys []session.Key, eventIDs []string) error {
	if s.store == nil {
		return nil
	}
	if err := s.store.DeletePositions(ctx, keys); err != nil {
		return fmt.Errorf("delete positions: %w", err)
	}
	if err := s.store.DeleteByEventIDs(ctx, eventIDs); err != nil {
		return fmt.Errorf("delete positions by event: %w", err)
	}
	return nil
}

// ClearPositions deletes every saved position.
func (s *Service) ClearPositions(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	return s.store.ClearPositions(ctx)
}
