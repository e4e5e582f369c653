package admission

// Denial reasons surfaced to the person signing up.
const (
	ReasonCodeRequired      = "An invitation code is required."
	ReasonCodeInvalid       = "The invitation code is invalid."
	ReasonCodeDeactivated   = "The invitation code has been deactivated."
	ReasonCodeExpired       = "The invitation code has expired."
	ReasonUsageLimitReached = "The invitation code has reached its usage limit."
	ReasonNoCodesConfigured = "No invitation codes are configured."
)

type Outcome int

const (
	// Indeterminate means the validator could not reach a decision because of
	// an infrastructure failure.
	Indeterminate Outcome = iota
	Accept
	Reject
)

func (o Outcome) String() string {
	switch o {
	case Accept:
		return "accept"
	case Reject:
		return "reject"
	default:
		return "indeterminate"
	}
}

// Result is what a single validator concluded about a code.
type Result struct {
	Outcome Outcome
	Reason  string

	// set on a remote Accept
	CodeID     string
	UsageCount uint

	// set on Indeterminate
	Err error
}

func accept(codeID string, usageCount uint) Result {
	return Result{Outcome: Accept, CodeID: codeID, UsageCount: usageCount}
}

func reject(reason string) Result {
	return Result{Outcome: Reject, Reason: reason}
}

func indeterminate(err error) Result {
	return Result{Outcome: Indeterminate, Err: err}
}
