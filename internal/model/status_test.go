package model

import "testing"

func TestValidatePhaseTransition_ForwardOnly(t *testing.T) {
	for i := 0; i < len(Phases)-1; i++ {
		if err := ValidatePhaseTransition(Phases[i], Phases[i+1]); err != nil {
			t.Errorf("%s → %s: unexpected error %v", Phases[i], Phases[i+1], err)
		}
	}
}

func TestValidatePhaseTransition_Invalid(t *testing.T) {
	tests := []struct {
		from, to Phase
	}{
		{PhaseTriage, PhaseIntake},
		{PhaseIntake, PhasePlan},
		{PhaseExecute, PhaseExecute},
		{PhaseShip, PhaseIntake},
		{"BOGUS", PhaseTriage},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"_"+string(tt.to), func(t *testing.T) {
			if err := ValidatePhaseTransition(tt.from, tt.to); err == nil {
				t.Errorf("expected error for %s → %s", tt.from, tt.to)
			}
		})
	}
}

func TestIsValidTreeScale(t *testing.T) {
	tests := []struct {
		scale Scale
		valid bool
	}{
		{ScaleExecutive, true},
		{ScaleDepartment, true},
		{ScaleCaptain, true},
		{ScaleModule, false},
		{"team", false},
	}
	for _, tt := range tests {
		t.Run(string(tt.scale), func(t *testing.T) {
			if got := IsValidTreeScale(tt.scale); got != tt.valid {
				t.Errorf("IsValidTreeScale(%q) = %v, want %v", tt.scale, got, tt.valid)
			}
		})
	}
}

func TestIsValidRuleAction(t *testing.T) {
	if !IsValidRuleAction(RuleActionBlock) || !IsValidRuleAction(RuleActionEscalate) {
		t.Error("block and escalate must be valid")
	}
	if IsValidRuleAction("warn") {
		t.Error("warn must be invalid")
	}
}
