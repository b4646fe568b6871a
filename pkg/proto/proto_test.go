package proto

import (
	"testing"
)

func TestWorkerRoleRoundTrip(t *testing.T) {
	roles := []WorkerRole{
		RoleLogAnalyst, RoleDomainMapper, RoleCodeAnalyst,
		RoleCritic, RoleRebuttal, RoleJudge, RoleCommander,
	}
	for _, role := range roles {
		parsed, err := ParseWorkerRole(role.String())
		if err != nil {
			t.Fatalf("ParseWorkerRole(%q): %v", role.String(), err)
		}
		if parsed != role {
			t.Errorf("round trip mismatch: %v -> %q -> %v", role, role.String(), parsed)
		}
		if !role.Valid() {
			t.Errorf("role %v should be valid", role)
		}
	}
}

func TestParseWorkerRoleUnknown(t *testing.T) {
	if _, err := ParseWorkerRole("astrologer"); err == nil {
		t.Error("expected error for unknown role")
	}
	if RoleUnknown.Valid() {
		t.Error("RoleUnknown must not be valid")
	}
}

func TestIsAnalysis(t *testing.T) {
	analysis := []WorkerRole{RoleLogAnalyst, RoleDomainMapper, RoleCodeAnalyst}
	for _, r := range analysis {
		if !r.IsAnalysis() {
			t.Errorf("%v should be an analysis role", r)
		}
	}
	others := []WorkerRole{RoleCritic, RoleRebuttal, RoleJudge, RoleCommander}
	for _, r := range others {
		if r.IsAnalysis() {
			t.Errorf("%v should not be an analysis role", r)
		}
	}
}

func TestSpeakStep(t *testing.T) {
	step := SpeakStep("JudgeAgent")
	if step != "speak:JudgeAgent" {
		t.Errorf("unexpected speak step: %q", step)
	}
	target, ok := SpeakTarget(step)
	if !ok || target != "JudgeAgent" {
		t.Errorf("SpeakTarget(%q) = %q, %v", step, target, ok)
	}
	if _, ok := SpeakTarget(StepParallelAnalysis); ok {
		t.Error("phase step must not parse as a speak target")
	}
	if _, ok := SpeakTarget("speak:"); ok {
		t.Error("empty speak target must not parse")
	}
}

func TestParseControlSignal(t *testing.T) {
	for _, s := range []string{"start", "resume", "cancel", "snapshot"} {
		sig, err := ParseControlSignal(s)
		if err != nil {
			t.Fatalf("ParseControlSignal(%q): %v", s, err)
		}
		if string(sig) != s {
			t.Errorf("expected %q, got %q", s, sig)
		}
	}
	if _, err := ParseControlSignal("reboot"); err == nil {
		t.Error("expected error for unknown signal")
	}
}

func TestParseMsgType(t *testing.T) {
	if _, err := ParseMsgType("command"); err != nil {
		t.Errorf("command should parse: %v", err)
	}
	if _, err := ParseMsgType("gossip"); err == nil {
		t.Error("expected error for unknown message type")
	}
}

func TestSessionStatusTerminal(t *testing.T) {
	terminal := []SessionStatus{StatusCompleted, StatusCancelled, StatusFailed}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []SessionStatus{StatusPending, StatusRunning} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestValidPhase(t *testing.T) {
	for _, p := range []Phase{
		PhaseCommand, PhaseParallelAnalysis, PhaseCollaboration,
		PhaseCritique, PhaseRebuttal, PhaseJudgment,
	} {
		if !ValidPhase(p) {
			t.Errorf("%s should be valid", p)
		}
	}
	if ValidPhase("intermission") {
		t.Error("unknown phase should be invalid")
	}
}

func TestStopHelper(t *testing.T) {
	d := Stop(StopConsensus, "judge confident")
	if !d.ShouldStop || d.StopReason != StopConsensus || d.Reason != "judge confident" {
		t.Errorf("unexpected stop decision: %+v", d)
	}
}
