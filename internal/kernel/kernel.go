// Package kernel wires the process-wide infrastructure shared by every
// debate session: configuration, rate limiting, the model client factory,
// prompt templates, the event stream, metrics, and the checkpoint store.
// Sessions come and go; the kernel owns everything that outlives them.
package kernel

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"inquest/pkg/config"
	"inquest/pkg/debate"
	"inquest/pkg/eventlog"
	"inquest/pkg/incident"
	"inquest/pkg/limiter"
	"inquest/pkg/llm"
	"inquest/pkg/logx"
	"inquest/pkg/metrics"
	"inquest/pkg/persistence"
	"inquest/pkg/templates"
)

// memoryEventCap bounds the in-memory event buffer served to snapshots.
const memoryEventCap = 2048

// Kernel is the composition root. One kernel per process; sessions share
// its factory, gate, sinks, and stores.
type Kernel struct {
	// Context is embedded for lifecycle control of the refill and writer
	// goroutines, not for request scoping.
	ctx    context.Context //nolint:containedctx
	cancel context.CancelFunc

	Config config.Config
	Logger *logx.Logger

	Gate     *limiter.Gate
	Factory  *llm.Factory
	Renderer *templates.Renderer

	EventWriter *eventlog.Writer
	Events      *eventlog.Memory
	Sink        eventlog.Sink

	Recorder metrics.Recorder

	Store       *persistence.Store
	StoreWriter *persistence.Writer

	Sessions *debate.Registry

	dataDir string
	running bool
}

// New builds a kernel rooted at dataDir (event logs and the checkpoint
// database live under it). Nothing is started yet; call Start.
func New(parent context.Context, cfg config.Config, dataDir string) (*Kernel, error) {
	ctx, cancel := context.WithCancel(parent)

	k := &Kernel{
		ctx:      ctx,
		cancel:   cancel,
		Config:   cfg,
		Logger:   logx.NewLogger("kernel"),
		Sessions: debate.NewRegistry(),
		dataDir:  dataDir,
	}
	if err := k.initialize(); err != nil {
		cancel()
		return nil, fmt.Errorf("initialize kernel: %w", err)
	}
	return k, nil
}

func (k *Kernel) initialize() error {
	if err := os.MkdirAll(k.dataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	renderer, err := templates.NewRenderer()
	if err != nil {
		return fmt.Errorf("load prompt templates: %w", err)
	}
	k.Renderer = renderer

	if k.Config.Metrics.Enabled {
		k.Recorder = metrics.NewPrometheusRecorder(prometheus.DefaultRegisterer)
	} else {
		k.Recorder = metrics.Nop()
	}

	k.Gate = limiter.New(k.Config.RateLimit)
	k.Factory = llm.NewFactory(k.Config, k.Gate, k.Recorder)

	eventDir := filepath.Join(k.dataDir, k.Config.EventLog.Dir)
	writer, err := eventlog.NewWriter(eventDir)
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	k.EventWriter = writer
	k.Events = eventlog.NewMemory(memoryEventCap)
	k.Sink = eventlog.Fanout{writer, k.Events}

	dbPath := filepath.Join(k.dataDir, k.Config.Database.Path)
	store, err := persistence.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open checkpoint store: %w", err)
	}
	k.Store = store
	k.StoreWriter = persistence.NewWriter(store, 128)

	k.Logger.Info("kernel initialized (data dir %s)", k.dataDir)
	return nil
}

// Start launches the background goroutines: limiter refill and the async
// checkpoint writer.
func (k *Kernel) Start() error {
	if k.running {
		return fmt.Errorf("kernel already running")
	}
	k.Gate.StartRefill(k.ctx)
	go k.StoreWriter.Run(k.ctx)
	k.running = true
	k.Logger.Info("kernel started")
	return nil
}

// NewSession wires a debate session for the incident and registers it. The
// caller owns starting it.
func (k *Kernel) NewSession(inc incident.Incident) (*debate.Session, error) {
	sessionID := uuid.NewString()
	ctrl := debate.NewController(sessionID, inc, k.Config, k.Factory,
		k.Renderer, k.Sink, k.Recorder, k.StoreWriter)
	sess := debate.NewSession(ctrl)
	if err := k.Sessions.Add(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// ResumeSession rebuilds a previously checkpointed session and registers
// it. The incident descriptor must be supplied again: checkpoints carry
// conclusions, not the incident narrative.
func (k *Kernel) ResumeSession(sessionID string, inc incident.Incident) (*debate.Session, error) {
	if _, err := k.Store.GetSession(sessionID); err != nil {
		return nil, fmt.Errorf("resume %s: %w", sessionID, err)
	}
	ctrl := debate.NewController(sessionID, inc, k.Config, k.Factory,
		k.Renderer, k.Sink, k.Recorder, k.StoreWriter)
	sess := debate.NewSession(ctrl)
	if err := k.Sessions.Add(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Stop shuts the kernel down: cancels the shared context, waits for the
// checkpoint writer to drain, prunes old event logs, and closes the store.
func (k *Kernel) Stop() error {
	if !k.running {
		return nil
	}
	k.cancel()
	k.StoreWriter.Wait()

	if err := k.EventWriter.Prune(k.Config.EventLog.MaxAgeDays); err != nil {
		k.Logger.Warn("event log prune: %v", err)
	}
	if err := k.EventWriter.Close(); err != nil {
		k.Logger.Warn("event log close: %v", err)
	}
	if err := k.Store.Close(); err != nil {
		k.Logger.Error("closing checkpoint store: %v", err)
	}

	k.running = false
	k.Logger.Info("kernel stopped")
	return nil
}
