package report

// Reasons a report cannot be submitted, in priority order.
const (
	ReasonNotClockedIn     = "must clock in"
	ReasonOnBreak          = "cannot submit while on break"
	ReasonJobNotStarted    = "must start job first"
	ReasonNoContent        = "add at least one item"
	ReasonAlreadySubmitted = "report already submitted"
)

// GateInput is everything the submit controls depend on.
type GateInput struct {
	ClockedIn  bool `json:"clocked_in"`
	OnBreak    bool `json:"on_break"`
	JobStarted bool `json:"job_started"`
	Submitted  bool `json:"submitted"`
	HasContent bool `json:"has_content"`
}

// Gate tells whether submitting is allowed, and if not, the single most
// important reason.
type Gate struct {
	Enabled bool   `json:"enabled"`
	Reason  string `json:"reason,omitempty"`
}

// Evaluate applies the gate rules. The first failing rule wins.
func Evaluate(in GateInput) Gate {
	switch {
	case !in.ClockedIn:
		return Gate{Reason: ReasonNotClockedIn}
	case in.OnBreak:
		return Gate{Reason: ReasonOnBreak}
	case !in.JobStarted:
		return Gate{Reason: ReasonJobNotStarted}
	case !in.HasContent:
		return Gate{Reason: ReasonNoContent}
	case in.Submitted:
		return Gate{Reason: ReasonAlreadySubmitted}
	}
	return Gate{Enabled: true}
}
