package circuitbreaker

// State is exported as a gauge value, so the order is part of the
// metrics contract: 0 closed, 1 open, 2 half-open.
type State int

const (
	StateClosed State = iota
	// StateOpen rejects calls with ErrCircuitOpen until the timeout elapses
	StateOpen
	// StateHalfOpen lets trial calls through; one store failure reopens
	StateHalfOpen
)

var stateNames = map[State]string{
	StateClosed:   "closed",
	StateOpen:     "open",
	StateHalfOpen: "half-open",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}
