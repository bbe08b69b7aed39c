package sweep

// Outcome is the three-state exit contract. High vs low risk is decided
// only after the whole pipeline finishes; a partial run can only end in
// OutcomeRuntimeError.
type Outcome int

const (
	OutcomeLowRisk Outcome = iota
	OutcomeRuntimeError
	OutcomeHighRisk
)

func (o Outcome) ExitCode() int {
	switch o {
	case OutcomeRuntimeError:
		return 1
	case OutcomeHighRisk:
		return 2
	default:
		return 0
	}
}

func (o Outcome) String() string {
	switch o {
	case OutcomeRuntimeError:
		return "runtime-error"
	case OutcomeHighRisk:
		return "high-risk"
	default:
		return "low-risk"
	}
}

// Decide maps a final risk score to its terminal state.
func Decide(score, highRiskThreshold int) Outcome {
	if score >= highRiskThreshold {
		return OutcomeHighRisk
	}
	return OutcomeLowRisk
}
