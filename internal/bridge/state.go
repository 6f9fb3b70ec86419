package bridge

// State holds the derived playback state of one player.
// It is only touched from the player's serial queue, so it needs no lock of
// its own.
type State struct {
	StoppedTime       float64 `json:"stoppedTime"`
	Duration          float64 `json:"duration"`
	AutoPlay          bool    `json:"autoplay"`
	InitialBitrateCap int     `json:"initialBitrateCap"`
	Attached          bool    `json:"attached"`

	// qualityApplied is set once the Ready policy ran for the current load.
	qualityApplied bool
}

func newState() *State {
	return &State{InitialBitrateCap: UnboundedBitrate}
}

func (s *State) setStoppedTime(t float64) {
	if t < 0 {
		t = 0
	}
	s.StoppedTime = t
}

func (s *State) setDuration(d float64) {
	if d < 0 {
		d = 0
	}
	s.Duration = d
}

func (s *State) setAutoPlay(v bool) { s.AutoPlay = v }

// setInitialBitrateCap stores cap; non-positive values mean unbounded.
func (s *State) setInitialBitrateCap(cap int) {
	if cap <= 0 {
		cap = UnboundedBitrate
	}
	s.InitialBitrateCap = cap
}

// beginLoad starts a new load cycle.
func (s *State) beginLoad() {
	s.Attached = true
	s.qualityApplied = false
	s.StoppedTime = 0
	s.Duration = 0
}

// Snapshot returns a copy safe to hand outside the serial queue.
func (s *State) Snapshot() State {
	return *s
}
