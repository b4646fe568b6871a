package persistence

import (
	"time"

	"inquest/pkg/proto"
)

// SessionRecord is one debate session row.
type SessionRecord struct {
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	ID         string    `json:"id"`
	IncidentID string    `json:"incident_id"`
	Title      string    `json:"title"`
	Status     string    `json:"status"`
	Rounds     int       `json:"rounds"`
	Consensus  bool      `json:"consensus"`
}

// Checkpoint is one persisted round checkpoint: enough of a Turn to rebuild
// its evidence card without the prompt.
type Checkpoint struct {
	CreatedAt  time.Time `json:"created_at"`
	SessionID  string    `json:"session_id"`
	Phase      string    `json:"phase"`
	Worker     string    `json:"worker"`
	Summary    string    `json:"summary"`
	Conclusion string    `json:"conclusion"`
	Confidence float64   `json:"confidence"`
	ID         int64     `json:"id"`
	Round      int       `json:"round"`
	LoopRound  int       `json:"loop_round"`
}

// CheckpointFromTurn projects a completed turn onto the checkpoint shape.
func CheckpointFromTurn(sessionID string, turn proto.Turn) Checkpoint {
	return Checkpoint{
		SessionID:  sessionID,
		Round:      turn.Round,
		LoopRound:  turn.LoopRound,
		Phase:      string(turn.Phase),
		Worker:     turn.Worker,
		Confidence: turn.Confidence,
		Summary:    turn.Summary,
		Conclusion: turn.Conclusion,
		CreatedAt:  turn.CompletedAt,
	}
}

// Card reconstructs the evidence card a checkpoint stands for. The raw
// structured output and evidence strings are not checkpointed; a resumed
// session debates on from conclusions alone.
func (c Checkpoint) Card() proto.EvidenceCard {
	role, _ := proto.ParseWorkerRole(c.Worker)
	return proto.EvidenceCard{
		Worker:     c.Worker,
		Role:       role,
		Phase:      proto.Phase(c.Phase),
		Summary:    c.Summary,
		Conclusion: c.Conclusion,
		Confidence: c.Confidence,
	}
}
