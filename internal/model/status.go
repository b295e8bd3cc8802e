package model

import "fmt"

// Scale is the level of a node in the coordination tree.
type Scale string

const (
	ScaleExecutive  Scale = "executive"
	ScaleDepartment Scale = "department"
	ScaleCaptain    Scale = "captain"
	// ScaleModule is finer grained than a captain. Trees never declare it;
	// it only shows up on tasks built directly at a component.
	ScaleModule Scale = "module"
)

var validTreeScales = map[Scale]bool{
	ScaleExecutive:  true,
	ScaleDepartment: true,
	ScaleCaptain:    true,
}

// IsValidTreeScale reports whether s may appear on a tree node.
func IsValidTreeScale(s Scale) bool {
	return validTreeScales[s]
}

type RuleAction string

const (
	RuleActionBlock    RuleAction = "block"
	RuleActionEscalate RuleAction = "escalate"
)

func IsValidRuleAction(a RuleAction) bool {
	return a == RuleActionBlock || a == RuleActionEscalate
}

// LeafStatus is the outcome of a single leaf task.
type LeafStatus string

const (
	LeafCompleted LeafStatus = "completed"
	LeafFailed    LeafStatus = "failed"
	LeafBlocked   LeafStatus = "blocked"
)

// AggregateStatus is the merged status of a subtree.
type AggregateStatus string

const (
	AggregateCompleted AggregateStatus = "completed"
	AggregatePartial   AggregateStatus = "partial"
	AggregateFailed    AggregateStatus = "failed"
	AggregateBlocked   AggregateStatus = "blocked"
	AggregateEscalated AggregateStatus = "escalated"
)

// RunStatus is the overall outcome of a run.
type RunStatus string

const (
	RunCompleted      RunStatus = "completed"
	RunPartial        RunStatus = "partial"
	RunFailed         RunStatus = "failed"
	RunBlocked        RunStatus = "blocked"
	RunEscalated      RunStatus = "escalated"
	RunPartialBlocked RunStatus = "partial_blocked"
)

type ApprovalLevel string

const (
	ApprovalCaptain  ApprovalLevel = "captain"
	ApprovalDirector ApprovalLevel = "director"
	ApprovalCTO      ApprovalLevel = "cto"
	ApprovalHuman    ApprovalLevel = "human"
)

// Phase is one state of the run pipeline.
type Phase string

const (
	PhaseIntake    Phase = "INTAKE"
	PhaseTriage    Phase = "TRIAGE"
	PhasePlan      Phase = "PLAN"
	PhaseReview    Phase = "REVIEW"
	PhaseExecute   Phase = "EXECUTE"
	PhaseVerify    Phase = "VERIFY"
	PhaseIntegrate Phase = "INTEGRATE"
	PhaseShip      Phase = "SHIP"
)

// Phases lists every phase in execution order.
var Phases = []Phase{
	PhaseIntake,
	PhaseTriage,
	PhasePlan,
	PhaseReview,
	PhaseExecute,
	PhaseVerify,
	PhaseIntegrate,
	PhaseShip,
}

// Strictly forward, one step at a time. SHIP is terminal.
var validPhaseTransitions = map[Phase]Phase{
	PhaseIntake:    PhaseTriage,
	PhaseTriage:    PhasePlan,
	PhasePlan:      PhaseReview,
	PhaseReview:    PhaseExecute,
	PhaseExecute:   PhaseVerify,
	PhaseVerify:    PhaseIntegrate,
	PhaseIntegrate: PhaseShip,
}

func IsPhaseTerminal(p Phase) bool {
	return p == PhaseShip
}

func ValidatePhaseTransition(from, to Phase) error {
	if IsPhaseTerminal(from) {
		return fmt.Errorf("cannot transition from terminal phase %q", from)
	}
	next, ok := validPhaseTransitions[from]
	if !ok {
		return fmt.Errorf("unknown phase %q", from)
	}
	if next != to {
		return fmt.Errorf("invalid phase transition: %q → %q", from, to)
	}
	return nil
}
