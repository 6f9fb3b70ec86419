package playback

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"playback-bridge/internal/bridge"
	"playback-bridge/internal/platform/metrics"
	"playback-bridge/internal/session"

	"github.com/go-chi/chi/v5"
)

// Handler exposes the player bridge over HTTP using go-chi.
type Handler struct {
	svc     *Service
	hub     *Hub
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewHandler returns a Handler. hub may be nil to disable the event stream;
// metrics may be nil to disable metric recording (e.g. in tests).
func NewHandler(svc *Service, hub *Hub, log *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{svc: svc, hub: hub, log: log, metrics: m}
}

// Routes registers every endpoint on r.
func (h *Handler) Routes(r chi.Router) {
	if h.hub != nil {
		r.Get("/events", h.hub.ServeHTTP)
	}
	r.Get("/presets", h.ListPresets)
	r.Route("/preferences", func(r chi.Router) {
		r.Get("/bitrate", h.GetPreferredPreset)
		r.Put("/bitrate", h.SavePreferredPreset)
	})
	r.Route("/positions", func(r chi.Router) {
		r.Get("/", h.ListEventIDs)
		r.Get("/{event_id}/{video_id}", h.GetPosition)
		r.Post("/delete", h.DeletePositions)
		r.Delete("/", h.ClearPositions)
	})
	r.Route("/players/{tag}", func(r chi.Router) {
		r.Post("/", h.Open)
		r.Delete("/", h.Close)

		r.Post("/play", h.command(h.svc.Facade().Play))
		r.Post("/pause", h.command(h.svc.Facade().Pause))
		r.Post("/restart", h.command(h.svc.Facade().Restart))
		r.Post("/destroy", h.command(h.svc.Facade().Destroy))
		r.Post("/seek", h.Seek)
		r.Post("/timeshift", h.TimeShift)
		r.Post("/subtitle", h.SetSubtitle)
		r.Put("/autoplay", h.SetAutoPlay)
		r.Put("/bitrate", h.SetBitrate)

		r.Get("/time", queryHandler(h, h.svc.Facade().CurrentTime))
		r.Get("/duration", queryHandler(h, h.svc.Facade().Duration))
		r.Get("/muted", queryHandler(h, h.svc.Facade().IsMuted))
		r.Get("/paused", queryHandler(h, h.svc.Facade().IsPaused))
		r.Get("/stalled", queryHandler(h, h.svc.Facade().IsStalled))
		r.Get("/playing", queryHandler(h, h.svc.Facade().IsPlaying))
		r.Get("/state", queryHandler(h, h.svc.Facade().State))
	})
}

// Open handles POST /players/{tag}.
func (h *Handler) Open(w http.ResponseWriter, r *http.Request) {
	tag, ok := h.tag(w, r)
	if !ok {
		return
	}
	var req OpenRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.svc.Open(r.Context(), tag, req)
	if err != nil {
		h.fail(w, "open", tag, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// Close handles DELETE /players/{tag}.
func (h *Handler) Close(w http.ResponseWriter, r *http.Request) {
	tag, ok := h.tag(w, r)
	if !ok {
		return
	}
	if err := h.svc.Close(tag); err != nil {
		h.fail(w, "close", tag, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type timeBody struct {
	Time *float64 `json:"time"`
}

// Seek handles POST /players/{tag}/seek. Body: { "time": 42.5 }.
func (h *Handler) Seek(w http.ResponseWriter, r *http.Request) {
	h.timeCommand(w, r, "seek", h.svc.Facade().Seek)
}

// TimeShift handles POST /players/{tag}/timeshift. Body: { "time": -30 }.
func (h *Handler) TimeShift(w http.ResponseWriter, r *http.Request) {
	h.timeCommand(w, r, "timeShift", h.svc.Facade().TimeShift)
}

func (h *Handler) timeCommand(w http.ResponseWriter, r *http.Request, op string, fn func(bridge.Handle, float64) error) {
	tag, ok := h.tag(w, r)
	if !ok {
		return
	}
	var body timeBody
	if !h.decode(w, r, &body) {
		return
	}
	if body.Time == nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if err := fn(tag, *body.Time); err != nil {
		h.fail(w, op, tag, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetSubtitle handles POST /players/{tag}/subtitle. Body: { "trackId": "en" }.
func (h *Handler) SetSubtitle(w http.ResponseWriter, r *http.Request) {
	tag, ok := h.tag(w, r)
	if !ok {
		return
	}
	var body struct {
		TrackID string `json:"trackId"`
	}
	if !h.decode(w, r, &body) {
		return
	}
	if err := h.svc.Facade().SetSubtitle(tag, body.TrackID); err != nil {
		h.fail(w, "setSubtitle", tag, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetAutoPlay handles PUT /players/{tag}/autoplay. Body: { "autoplay": true }.
func (h *Handler) SetAutoPlay(w http.ResponseWriter, r *http.Request) {
	tag, ok := h.tag(w, r)
	if !ok {
		return
	}
	var body struct {
		AutoPlay *bool `json:"autoplay"`
	}
	if !h.decode(w, r, &body) {
		return
	}
	if body.AutoPlay == nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if err := h.svc.Facade().SetAutoPlay(tag, *body.AutoPlay); err != nil {
		h.fail(w, "setAutoPlay", tag, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetBitrate handles PUT /players/{tag}/bitrate.
// Body: { "initBitrate": 1500000 } or { "preset": "medium" }.
func (h *Handler) SetBitrate(w http.ResponseWriter, r *http.Request) {
	tag, ok := h.tag(w, r)
	if !ok {
		return
	}
	var body struct {
		InitBitrate int    `json:"initBitrate"`
		Preset      string `json:"preset"`
	}
	if !h.decode(w, r, &body) {
		return
	}
	applied, err := h.svc.SetBitrate(r.Context(), tag, body.InitBitrate, body.Preset)
	if err != nil {
		h.fail(w, "setInitBitrate", tag, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"initBitrate": applied})
}

// ListPresets handles GET /presets.
func (h *Handler) ListPresets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, []bridge.BitratePreset{bridge.PresetHigh, bridge.PresetMedium, bridge.PresetNormal})
}

// GetPreferredPreset handles GET /preferences/bitrate.
func (h *Handler) GetPreferredPreset(w http.ResponseWriter, r *http.Request) {
	preset, err := h.svc.PreferredPreset(r.Context())
	if err != nil {
		h.fail(w, "getBitratePreset", 0, err)
		return
	}
	writeJSON(w, http.StatusOK, preset)
}

// SavePreferredPreset handles PUT /preferences/bitrate. Body: { "key": "high" }.
func (h *Handler) SavePreferredPreset(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Key string `json:"key"`
	}
	if !h.decode(w, r, &body) {
		return
	}
	preset, err := h.svc.SavePreferredPreset(r.Context(), body.Key)
	if err != nil {
		h.fail(w, "saveBitratePreset", 0, err)
		return
	}
	writeJSON(w, http.StatusOK, preset)
}

// ListEventIDs handles GET /positions.
func (h *Handler) ListEventIDs(w http.ResponseWriter, r *http.Request) {
	ids, err := h.svc.EventIDs(r.Context())
	if err != nil {
		h.fail(w, "listPositions", 0, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"eventIds": ids})
}

// GetPosition handles GET /positions/{event_id}/{video_id}.
func (h *Handler) GetPosition(w http.ResponseWriter, r *http.Request) {
	key := session.Key{EventID: chi.URLParam(r, "event_id"), VideoID: chi.URLParam(r, "video_id")}
	pos, ok, err := h.svc.Position(r.Context(), key)
	if err != nil {
		h.fail(w, "getPosition", 0, err)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		session.Position
		StartOffset float64 `json:"startOffset"`
	}{pos, session.ResumeOffset(pos)})
}

// DeletePositions handles POST /positions/delete.
// Body: { "positions": [{ "videoId": "v", "eventId": "e" }], "eventIds": ["e2"] }.
func (h *Handler) DeletePositions(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Positions []session.Key `json:"positions"`
		EventIDs  []string      `json:"eventIds"`
	}
	if !h.decode(w, r, &body) {
		return
	}
	if err := h.svc.ForgetPositions(r.Context(), body.Positions, body.EventIDs); err != nil {
		h.fail(w, "deletePositions", 0, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearPositions handles DELETE /positions.
func (h *Handler) ClearPositions(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ClearPositions(r.Context()); err != nil {
		h.fail(w, "clearPositions", 0, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) command(fn func(bridge.Handle) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tag, ok := h.tag(w, r)
		if !ok {
			return
		}
		if err := fn(tag); err != nil {
			h.fail(w, "command", tag, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func queryHandler[T any](h *Handler, get func(bridge.Handle) (T, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tag, ok := h.tag(w, r)
		if !ok {
			return
		}
		v, err := get(tag)
		if err != nil {
			h.fail(w, "query", tag, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]T{"value": v})
	}
}

func (h *Handler) tag(w http.ResponseWriter, r *http.Request) (bridge.Handle, bool) {
	n, err := strconv.Atoi(chi.URLParam(r, "tag"))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return 0, false
	}
	return bridge.Handle(n), true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.log.Debug("invalid request body", slog.String("path", r.URL.Path), slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return false
	}
	return true
}

// fail maps err to a status code and writes it with the error message.
func (h *Handler) fail(w http.ResponseWriter, op string, tag bridge.Handle, err error) {
	status := http.StatusInternalServerError
	var engineErr *bridge.EngineError
	switch {
	case errors.Is(err, bridge.ErrHandleNotFound):
		status = http.StatusNotFound
	case errors.Is(err, bridge.ErrHandleTypeMismatch):
		status = http.StatusConflict
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrUnknownPreset):
		status = http.StatusBadRequest
	case errors.As(err, &engineErr):
		status = http.StatusUnprocessableEntity
	}

	attrs := []any{slog.String("op", op), slog.Int("tag", int(tag)), slog.String("error", err.Error())}
	if status == http.StatusInternalServerError {
		h.log.Error("request failed", attrs...)
	} else {
		h.log.Info("request rejected", attrs...)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
