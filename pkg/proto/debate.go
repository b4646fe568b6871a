// Package proto defines the shared debate types exchanged between the
// session controller, phase executors, routing engine, and external sinks.
package proto

import (
	"fmt"
	"strings"
)

// WorkerRole identifies one of the fixed debate roles. The set is closed:
// behavior lookups go through the worker catalog table, never through
// name switches at call sites.
type WorkerRole int8

const (
	RoleUnknown WorkerRole = iota
	RoleLogAnalyst
	RoleDomainMapper
	RoleCodeAnalyst
	RoleCritic
	RoleRebuttal
	RoleJudge
	RoleCommander
)

var roleNames = map[WorkerRole]string{
	RoleLogAnalyst:   "log_analyst",
	RoleDomainMapper: "domain_mapper",
	RoleCodeAnalyst:  "code_analyst",
	RoleCritic:       "critic",
	RoleRebuttal:     "rebuttal",
	RoleJudge:        "judge",
	RoleCommander:    "commander",
}

func (r WorkerRole) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return "unknown"
}

// ParseWorkerRole converts a role name back to its enum value.
func ParseWorkerRole(s string) (WorkerRole, error) {
	normalized := strings.ToLower(strings.TrimSpace(s))
	for role, name := range roleNames {
		if name == normalized {
			return role, nil
		}
	}
	return RoleUnknown, fmt.Errorf("unknown worker role: %q", s)
}

// Valid reports whether r is one of the defined roles.
func (r WorkerRole) Valid() bool {
	_, ok := roleNames[r]
	return ok
}

// IsAnalysis reports whether the role belongs to the parallel-analysis wave.
func (r WorkerRole) IsAnalysis() bool {
	return r == RoleLogAnalyst || r == RoleDomainMapper || r == RoleCodeAnalyst
}

// Phase tags which debate phase produced a turn or event.
type Phase string

const (
	PhaseCommand          Phase = "command"
	PhaseParallelAnalysis Phase = "parallel_analysis"
	PhaseCollaboration    Phase = "collaboration"
	PhaseCritique         Phase = "critique"
	PhaseRebuttal         Phase = "rebuttal"
	PhaseJudgment         Phase = "judgment"
)

// ValidPhase reports whether p is one of the defined phases.
func ValidPhase(p Phase) bool {
	switch p {
	case PhaseCommand, PhaseParallelAnalysis, PhaseCollaboration,
		PhaseCritique, PhaseRebuttal, PhaseJudgment:
		return true
	default:
		return false
	}
}

// SessionStatus is the externally visible lifecycle state of a debate session.
type SessionStatus string

const (
	StatusPending   SessionStatus = "pending"
	StatusRunning   SessionStatus = "running"
	StatusCompleted SessionStatus = "completed"
	StatusCancelled SessionStatus = "cancelled"
	StatusFailed    SessionStatus = "failed"
)

// Terminal reports whether the status is final.
func (s SessionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusFailed
}

// StopReason explains why a routing decision or round evaluation stopped
// the debate.
type StopReason string

const (
	StopNone       StopReason = ""
	StopConsensus  StopReason = "consensus"
	StopBudget     StopReason = "step_budget_exhausted"
	StopRoundCap   StopReason = "round_cap_reached"
	StopSupervisor StopReason = "supervisor_stop"
	StopCancelled  StopReason = "cancelled"
)

// ControlSignal is an out-of-band command delivered to a running session.
type ControlSignal string

const (
	SignalStart    ControlSignal = "start"
	SignalResume   ControlSignal = "resume"
	SignalCancel   ControlSignal = "cancel"
	SignalSnapshot ControlSignal = "snapshot"
)

// ParseControlSignal validates an incoming control signal string.
func ParseControlSignal(s string) (ControlSignal, error) {
	switch sig := ControlSignal(strings.ToLower(strings.TrimSpace(s))); sig {
	case SignalStart, SignalResume, SignalCancel, SignalSnapshot:
		return sig, nil
	default:
		return "", fmt.Errorf("unknown control signal: %q", s)
	}
}
