package persistence

import (
	"context"

	"inquest/pkg/logx"
	"inquest/pkg/proto"
)

// Operation names one asynchronous write.
type Operation string

// Asynchronous write operations.
const (
	OpUpsertSession    Operation = "upsert_session"
	OpUpdateStatus     Operation = "update_status"
	OpInsertCheckpoint Operation = "insert_checkpoint"
	OpSaveVerdict      Operation = "save_verdict"
)

// Request is one queued write. Data holds the operation-specific payload.
type Request struct {
	Data      any
	Operation Operation
}

// statusUpdate is the payload for OpUpdateStatus.
type statusUpdate struct {
	SessionID string
	Status    proto.SessionStatus
	Rounds    int
	Consensus bool
}

// verdictSave is the payload for OpSaveVerdict.
type verdictSave struct {
	SessionID string
	Verdict   proto.FinalVerdict
}

// Writer applies queued write requests to a Store on its own goroutine so
// debate control flow never blocks on disk. Failed writes are logged and
// dropped; checkpoints are an audit surface, not a correctness one.
type Writer struct {
	store  *Store
	ch     chan *Request
	done   chan struct{}
	logger *logx.Logger
}

// NewWriter creates a writer with the given queue depth.
func NewWriter(store *Store, buffer int) *Writer {
	if buffer < 1 {
		buffer = 64
	}
	return &Writer{
		store:  store,
		ch:     make(chan *Request, buffer),
		done:   make(chan struct{}),
		logger: logx.NewLogger("persistence-writer"),
	}
}

// Run drains the queue until ctx is cancelled, then applies any writes
// already queued before returning.
func (w *Writer) Run(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case req := <-w.ch:
			w.apply(req)
		case <-ctx.Done():
			for {
				select {
				case req := <-w.ch:
					w.apply(req)
				default:
					return
				}
			}
		}
	}
}

// Wait blocks until Run has returned.
func (w *Writer) Wait() {
	<-w.done
}

func (w *Writer) apply(req *Request) {
	if req == nil {
		return
	}
	var err error
	switch req.Operation {
	case OpUpsertSession:
		if rec, ok := req.Data.(SessionRecord); ok {
			err = w.store.UpsertSession(rec)
		}
	case OpUpdateStatus:
		if upd, ok := req.Data.(statusUpdate); ok {
			err = w.store.UpdateSessionStatus(upd.SessionID, upd.Status, upd.Rounds, upd.Consensus)
		}
	case OpInsertCheckpoint:
		if cp, ok := req.Data.(Checkpoint); ok {
			err = w.store.InsertCheckpoint(cp)
		}
	case OpSaveVerdict:
		if vs, ok := req.Data.(verdictSave); ok {
			err = w.store.SaveVerdict(vs.SessionID, vs.Verdict)
		}
	default:
		w.logger.Warn("dropping unknown persistence operation %q", req.Operation)
		return
	}
	if err != nil {
		w.logger.Error("async %s failed: %v", req.Operation, err)
	}
}

// enqueue is fire-and-forget: a full queue drops the write rather than
// stalling the debate.
func (w *Writer) enqueue(req *Request) {
	select {
	case w.ch <- req:
	default:
		w.logger.Warn("persistence queue full, dropping %s", req.Operation)
	}
}

// PersistSession queues a session upsert.
func (w *Writer) PersistSession(rec SessionRecord) {
	w.enqueue(&Request{Operation: OpUpsertSession, Data: rec})
}

// PersistStatus queues a session status update.
func (w *Writer) PersistStatus(sessionID string, status proto.SessionStatus, rounds int, consensus bool) {
	w.enqueue(&Request{Operation: OpUpdateStatus, Data: statusUpdate{
		SessionID: sessionID, Status: status, Rounds: rounds, Consensus: consensus,
	}})
}

// PersistCheckpoint queues a round checkpoint for a completed turn.
func (w *Writer) PersistCheckpoint(sessionID string, turn proto.Turn) {
	w.enqueue(&Request{Operation: OpInsertCheckpoint, Data: CheckpointFromTurn(sessionID, turn)})
}

// PersistVerdict queues a final verdict write.
func (w *Writer) PersistVerdict(sessionID string, verdict proto.FinalVerdict) {
	w.enqueue(&Request{Operation: OpSaveVerdict, Data: verdictSave{SessionID: sessionID, Verdict: verdict}})
}
