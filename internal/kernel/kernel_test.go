package kernel

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inquest/pkg/config"
	"inquest/pkg/incident"
	"inquest/pkg/persistence"
)

func testConfig() config.Config {
	cfg := config.DefaultConfig()
	// The Prometheus recorder registers on the default registerer;
	// repeated registration across tests panics, so keep it off here.
	cfg.Metrics.Enabled = false
	return cfg
}

func testIncident() incident.Incident {
	inc, err := incident.Parse([]byte("title: Checkout 500s after deploy\nnarrative: errors spiked at 14:02"))
	if err != nil {
		panic(err)
	}
	return inc
}

func TestKernelLifecycle(t *testing.T) {
	dir := t.TempDir()
	k, err := New(context.Background(), testConfig(), dir)
	require.NoError(t, err)

	require.NoError(t, k.Start())
	assert.Error(t, k.Start(), "second Start should be rejected")

	// Data dir scaffolding exists.
	_, err = os.Stat(filepath.Join(dir, k.Config.EventLog.Dir))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, k.Config.Database.Path))
	assert.NoError(t, err)

	require.NoError(t, k.Stop())
	assert.NoError(t, k.Stop(), "Stop is idempotent")
}

func TestKernelNewSessionRegisters(t *testing.T) {
	k, err := New(context.Background(), testConfig(), t.TempDir())
	require.NoError(t, err)
	require.NoError(t, k.Start())
	defer k.Stop()

	sess, err := k.NewSession(testIncident())
	require.NoError(t, err)

	got, ok := k.Sessions.Get(sess.ID)
	require.True(t, ok)
	assert.Same(t, sess, got)
}

func TestKernelResumeUnknownSession(t *testing.T) {
	k, err := New(context.Background(), testConfig(), t.TempDir())
	require.NoError(t, err)
	require.NoError(t, k.Start())
	defer k.Stop()

	_, err = k.ResumeSession("no-such-session", testIncident())
	assert.Error(t, err)
}

func TestKernelResumeKnownSession(t *testing.T) {
	k, err := New(context.Background(), testConfig(), t.TempDir())
	require.NoError(t, err)
	require.NoError(t, k.Start())
	defer k.Stop()

	require.NoError(t, k.Store.UpsertSession(persistence.SessionRecord{
		ID:         "sess-resume",
		IncidentID: "inc-1",
		Title:      "Checkout 500s after deploy",
		Status:     "running",
		Rounds:     1,
	}))

	sess, err := k.ResumeSession("sess-resume", testIncident())
	require.NoError(t, err)
	assert.Equal(t, "sess-resume", sess.ID)

	_, ok := k.Sessions.Get("sess-resume")
	assert.True(t, ok)
}
