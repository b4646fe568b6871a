package debate

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inquest/pkg/config"
	"inquest/pkg/llm"
	"inquest/pkg/persistence"
	"inquest/pkg/proto"
)

// consensusMock scripts a one-round debate that ends in consensus.
func consensusMock() *llm.MockClient {
	mock := llm.NewMockClient()
	mock.ReplyFn = func(_ context.Context, req llm.PromptRequest) (llm.PromptResult, error) {
		switch promptWorker(req.Parts[0].Content) {
		case "commander":
			return llm.PromptResult{Text: `{"next_step": "parallel_analysis", "unresolved_questions": 0, "confidence": 0.8, "conclusion": "gather evidence"}`}, nil
		case "judge":
			return llm.PromptResult{Text: judgeVerdictReply}, nil
		default:
			return llm.PromptResult{Text: analysisReply("worker")}, nil
		}
	}
	return mock
}

func TestSessionStartAndWait(t *testing.T) {
	ctrl, _ := newTestController(t, config.DefaultConfig(), consensusMock())
	sess := NewSession(ctrl)

	require.NoError(t, sess.Start(context.Background()))
	assert.Error(t, sess.Start(context.Background()), "second start must fail")

	st, err := sess.Wait()
	require.NoError(t, err)
	assert.Equal(t, StateDone, st.State)

	snap := sess.Snapshot()
	assert.Equal(t, "sess-1", snap.SessionID)
	assert.Equal(t, StateDone, snap.State)
	assert.NotNil(t, snap.Verdict)
}

func TestSessionCancelMidRun(t *testing.T) {
	mock := llm.NewMockClient()
	started := make(chan struct{}, 8)
	mock.ReplyFn = func(ctx context.Context, _ llm.PromptRequest) (llm.PromptResult, error) {
		started <- struct{}{}
		<-ctx.Done()
		return llm.PromptResult{}, ctx.Err()
	}
	ctrl, _ := newTestController(t, config.DefaultConfig(), mock)
	sess := NewSession(ctrl)

	require.NoError(t, sess.Start(context.Background()))
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("first worker call never started")
	}
	sess.Cancel()

	st, err := sess.Wait()
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateCancelled, st.State)
	assert.Equal(t, proto.StatusCancelled, st.Status)
	assert.Nil(t, st.Verdict)
}

func TestSessionWaitBeforeStart(t *testing.T) {
	ctrl, _ := newTestController(t, config.DefaultConfig(), consensusMock())
	sess := NewSession(ctrl)
	_, err := sess.Wait()
	require.Error(t, err)
}

func TestSessionResumeContinuesAfterCheckpointedRound(t *testing.T) {
	store, err := persistence.Open(filepath.Join(t.TempDir(), "inquest.db"))
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.UpsertSession(persistence.SessionRecord{
		ID: "sess-1", IncidentID: "inc-1", Title: testIncident.Title, Status: "running",
	}))
	for _, cp := range []persistence.Checkpoint{
		{SessionID: "sess-1", Round: 1, Phase: "parallel_analysis", Worker: "log_analyst",
			Conclusion: "errors correlate with deploy", Confidence: 0.7},
		{SessionID: "sess-1", Round: 1, Phase: "judgment", Worker: "judge",
			Conclusion: "inconclusive first pass", Confidence: 0.5},
	} {
		require.NoError(t, store.InsertCheckpoint(cp))
	}

	ctrl, _ := newTestController(t, config.DefaultConfig(), consensusMock())
	sess := NewSession(ctrl)
	require.NoError(t, sess.Resume(context.Background(), store))

	st, err := sess.Wait()
	require.NoError(t, err)

	// The resumed debate picked up at round 2 with the restored evidence
	// visible to the new round's workers.
	assert.Equal(t, StateDone, st.State)
	assert.Equal(t, 2, st.Round.CurrentRound)
	assert.True(t, st.ConsensusReached)
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()

	ctrl, _ := newTestController(t, config.DefaultConfig(), consensusMock())
	sess := NewSession(ctrl)
	require.NoError(t, reg.Add(sess))
	assert.Error(t, reg.Add(sess), "duplicate id must be rejected")

	got, ok := reg.Get("sess-1")
	require.True(t, ok)
	assert.Same(t, sess, got)
	assert.Equal(t, []string{"sess-1"}, reg.IDs())

	reg.Remove("sess-1")
	_, ok = reg.Get("sess-1")
	assert.False(t, ok)
}
