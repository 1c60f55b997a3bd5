package ecg

// Phase enum
type Phase string

const (
	PhaseIdle             Phase = "idle"
	PhaseValidating       Phase = "validating"
	PhaseDispatching      Phase = "dispatching"
	PhaseAwaitingResponse Phase = "awaiting_response"
	PhaseDecoding         Phase = "decoding"
	PhaseReady            Phase = "ready"
	PhaseFailed           Phase = "failed"
)

var transitions = map[Phase][]Phase{
	PhaseIdle:             {PhaseValidating},
	PhaseValidating:       {PhaseDispatching, PhaseFailed},
	PhaseDispatching:      {PhaseAwaitingResponse, PhaseFailed},
	PhaseAwaitingResponse: {PhaseDecoding, PhaseFailed},
	PhaseDecoding:         {PhaseReady, PhaseFailed},
}

// AnalysisState is the value owned by one orchestration session. The zero
// value is Idle. Ready and Failed are terminal; a new dispatch starts from
// a fresh Idle instance.
type AnalysisState struct {
	Phase   Phase  `json:"phase"`
	Failure *Error `json:"-"`
}

func (s AnalysisState) current() Phase {
	if s.Phase == "" {
		return PhaseIdle
	}
	return s.Phase
}

// Current returns the phase, treating the zero value as Idle.
func (s AnalysisState) Current() Phase {
	return s.current()
}

// Busy is the "analyzing" indicator.
func (s AnalysisState) Busy() bool {
	switch s.current() {
	case PhaseValidating, PhaseDispatching, PhaseAwaitingResponse, PhaseDecoding:
		return true
	}
	return false
}

func (s AnalysisState) Terminal() bool {
	p := s.current()
	return p == PhaseReady || p == PhaseFailed
}

// CanTransition reports whether the table allows moving to next.
func (s AnalysisState) CanTransition(next Phase) bool {
	for _, p := range transitions[s.current()] {
		if p == next {
			return true
		}
	}
	return false
}

// To returns the state after moving to next. Failed must go through Fail.
func (s AnalysisState) To(next Phase) (AnalysisState, error) {
	if next == PhaseFailed || !s.CanTransition(next) {
		return s, ErrIllegalTransition
	}
	return AnalysisState{Phase: next}, nil
}

// Fail returns the Failed state carrying reason.
func (s AnalysisState) Fail(reason *Error) (AnalysisState, error) {
	if reason == nil || !s.CanTransition(PhaseFailed) {
		return s, ErrIllegalTransition
	}
	return AnalysisState{Phase: PhaseFailed, Failure: reason}, nil
}

// Reason returns the failure kind, or "" when not failed.
func (s AnalysisState) Reason() Kind {
	if s.Failure == nil {
		return ""
	}
	return s.Failure.Kind
}
