package viewer

type Phase int

const (
	Unmounted Phase = iota
	Loading
	Ready
	Error
)

var phaseNames = map[Phase]string{
	Unmounted: "unmounted",
	Loading:   "loading",
	Ready:     "ready",
	Error:     "error",
}

func (p Phase) String() string {
	return phaseNames[p]
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// State is the status reported to the host.
type State struct {
	Phase  Phase  `json:"phase"`
	URL    string `json:"url,omitempty"`
	Reason string `json:"reason,omitempty"`
	Err    error  `json:"-"`
}

func (s State) String() string {
	if s.Phase == Error {
		return s.Phase.String() + ": " + s.Reason
	}
	return s.Phase.String()
}
