package debate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"inquest/pkg/config"
	"inquest/pkg/eventlog"
	"inquest/pkg/incident"
	"inquest/pkg/logx"
	"inquest/pkg/metrics"
	"inquest/pkg/opinion"
	"inquest/pkg/persistence"
	"inquest/pkg/proto"
	"inquest/pkg/templates"
)

// Archiver receives fire-and-forget persistence writes from the controller.
// *persistence.Writer implements it; a nil archiver disables persistence.
type Archiver interface {
	PersistSession(rec persistence.SessionRecord)
	PersistStatus(sessionID string, status proto.SessionStatus, rounds int, consensus bool)
	PersistCheckpoint(sessionID string, turn proto.Turn)
	PersistVerdict(sessionID string, verdict proto.FinalVerdict)
}

// budgetGrace allows the judge a forced last word after the step budget is
// hit before the round is closed regardless.
const budgetGrace = 2

// Controller is the round/session state machine for one debate. All session
// state lives in an explicit SessionState value threaded through the step
// functions; the controller itself holds only wiring, so concurrent
// sessions are fully independent.
type Controller struct {
	sessionID string
	inc       incident.Incident
	cfg       config.DebateConfig

	roster   Roster
	runner   *Runner
	phases   *Phases
	cards    *CardStore
	mailbox  *Mailbox
	engine   *Engine
	sink     eventlog.Sink
	recorder metrics.Recorder
	archiver Archiver
	logger   *logx.Logger

	// startRound lets a resumed session continue after its last
	// checkpointed round. Zero for fresh sessions.
	startRound int

	// observer, when set, sees the state after every transition.
	observer func(SessionState)
}

// NewController wires a debate session. renderer must carry the standard
// prompt templates; provider resolves model clients.
func NewController(sessionID string, inc incident.Incident, cfg config.Config,
	provider ClientProvider, renderer *templates.Renderer, sink eventlog.Sink,
	recorder metrics.Recorder, archiver Archiver) *Controller {
	if sink == nil {
		sink = eventlog.Discard{}
	}
	if recorder == nil {
		recorder = metrics.Nop()
	}
	roster := NewRoster(cfg.Debate)
	cards := NewCardStore(cfg.Debate.CardCap)
	mailbox := NewMailbox()
	runner := NewRunner(sessionID, provider, sink, recorder, cfg)
	phases := NewPhases(sessionID, runner, cards, mailbox, renderer, roster, sink, inc)
	return &Controller{
		sessionID: sessionID,
		inc:       inc,
		cfg:       cfg.Debate,
		roster:    roster,
		runner:    runner,
		phases:    phases,
		cards:     cards,
		mailbox:   mailbox,
		engine:    NewEngine(),
		sink:      sink,
		recorder:  recorder,
		archiver:  archiver,
		logger:    logx.NewLogger("controller"),
	}
}

// SetObserver installs a callback invoked with the state after every
// transition. Must be set before Run.
func (c *Controller) SetObserver(fn func(SessionState)) {
	c.observer = fn
}

// SeedCards preloads reconstructed evidence cards (resume path) and marks
// the round the session should continue after. Must be called before Run.
func (c *Controller) SeedCards(cards []proto.EvidenceCard, lastRound int) {
	for _, card := range cards {
		c.cards.Append(card)
	}
	c.startRound = lastRound
}

// Run drives the state machine to a terminal state. The returned state is
// always meaningful; the error is non-nil only for fatal conditions
// (initialization failure) or cancellation.
func (c *Controller) Run(ctx context.Context) (SessionState, error) {
	st := SessionState{
		ID:         c.sessionID,
		IncidentID: c.inc.ID,
		Title:      c.inc.Title,
		Status:     proto.StatusPending,
		State:      StateInit,
		StartedAt:  time.Now().UTC(),
	}
	st.Round.CurrentRound = c.startRound

	for !st.State.IsTerminal() {
		if ctx.Err() != nil {
			return c.cancelled(st), ctx.Err()
		}

		next, nst, err := c.processState(ctx, st)
		st = nst
		if err != nil {
			st.Status = proto.StatusFailed
			st = c.transition(st, StateFailed)
			c.persistStatus(st)
			return st, err
		}
		if !ValidTransition(st.State, next) {
			st.Status = proto.StatusFailed
			st = c.transition(st, StateFailed)
			c.persistStatus(st)
			return st, fmt.Errorf("invalid session transition %s -> %s", st.State, next)
		}
		st = c.transition(st, next)
	}
	return st, nil
}

// transition moves the state machine and notifies the observer.
func (c *Controller) transition(st SessionState, to State) SessionState {
	logx.Debug(context.Background(), "controller", "session %s: %s -> %s", st.ID, st.State, to)
	st.State = to
	if c.observer != nil {
		c.observer(st)
	}
	return st
}

func (c *Controller) processState(ctx context.Context, st SessionState) (State, SessionState, error) {
	switch st.State {
	case StateInit:
		return c.stepInit(st)
	case StateRoundStart:
		return c.stepRoundStart(ctx, st)
	case StateSupervisorDecide:
		return c.stepDecide(ctx, st)
	case StateWorkerExec:
		return c.stepWorkerExec(ctx, st)
	case StatePhaseExec:
		return c.stepPhaseExec(ctx, st)
	case StateRoundEvaluate:
		return c.stepRoundEvaluate(st)
	case StateFinalize:
		return c.stepFinalize(st)
	default:
		return StateFailed, st, fmt.Errorf("unhandled session state %s", st.State)
	}
}

// stepInit establishes session identity and the starting context. A failure
// here is the one worker-free fatal path.
func (c *Controller) stepInit(st SessionState) (State, SessionState, error) {
	st.Status = proto.StatusRunning
	st = st.note("session created for incident %s (%s, severity %s)",
		c.inc.ID, c.inc.Title, c.inc.Severity)

	if c.archiver != nil {
		c.archiver.PersistSession(persistence.SessionRecord{
			ID:         st.ID,
			IncidentID: st.IncidentID,
			Title:      st.Title,
			Status:     string(proto.StatusRunning),
		})
	}

	evt := proto.NewEvent(proto.EventSessionCreated, st.ID)
	evt.Fields["incident_id"] = c.inc.ID
	evt.Fields["title"] = c.inc.Title
	evt.Fields["severity"] = c.inc.Severity
	c.sink.Emit(evt)
	return StateRoundStart, st, nil
}

// stepRoundStart opens a round: resets round state, clears the mailbox, and
// has the commander decompose the incident into per-worker commands plus a
// first suggested route.
func (c *Controller) stepRoundStart(ctx context.Context, st SessionState) (State, SessionState, error) {
	round := st.Round.CurrentRound + 1
	if round > c.cfg.MaxRounds {
		st = st.note("round cap %d reached; finalizing", c.cfg.MaxRounds)
		st.Round.StopRequested = true
		st.Round.StopReason = proto.StopRoundCap
		return StateFinalize, st, nil
	}

	st.Round = RoundState{
		CurrentRound:       round,
		MaxDiscussionSteps: c.cfg.MaxDiscussionSteps,
		RoundStartCardSeq:  c.cards.NextSeq(),
	}
	st.Commands = nil
	st.Decision = proto.RoutingDecision{}
	c.mailbox.Clear()

	evt := proto.NewEvent(proto.EventRoundStarted, st.ID)
	evt.Round = round
	c.sink.Emit(evt)

	st, proposed := c.consultCommander(ctx, st)
	st.Decision = proposed
	return StateSupervisorDecide, st, nil
}

// consultCommander runs the commander and converts its reply into a routing
// proposal, falling back to the deterministic router whenever the reply is
// degraded, unparsable, or names an unknown step.
func (c *Controller) consultCommander(ctx context.Context, st SessionState) (SessionState, proto.RoutingDecision) {
	turn, err := c.phases.RunSingle(ctx, st, proto.RoleCommander.String())
	if err != nil {
		// Roster always carries the commander; only a template failure
		// lands here, and the fallback router keeps the round moving.
		c.logger.Error("commander consult failed: %v", err)
		st.Round.CommanderCalls++
		return st, FallbackRoute(c.routingContext(st, proto.RoutingDecision{}))
	}
	st = c.recordTurn(st, turn)
	st.Round.CommanderCalls++

	if turn.Degraded {
		st = st.note("round %d: commander degraded, using fallback router", st.Round.CurrentRound)
		return st, FallbackRoute(c.routingContext(st, proto.RoutingDecision{}))
	}

	cmd := opinion.CommanderFromCard(turn.EvidenceCard)
	st = c.applyCommands(st, cmd.Commands)

	proposed := proto.RoutingDecision{
		NextStep:   cmd.NextStep,
		ShouldStop: cmd.ShouldStop,
		Reason:     cmd.Reason,
		Commands:   cmd.Commands,
	}
	if cmd.ShouldStop {
		proposed.StopReason = proto.StopSupervisor
		return st, proposed
	}
	if !c.validStep(cmd.NextStep) {
		st = st.note("round %d: commander proposed unusable step %q, using fallback router",
			st.Round.CurrentRound, cmd.NextStep)
		return st, FallbackRoute(c.routingContext(st, proto.RoutingDecision{}))
	}
	return st, proposed
}

// applyCommands merges commander directives into the round's command map,
// queues them for their workers, and emits the command events. A directive
// of "skip" is recorded but not delivered.
func (c *Controller) applyCommands(st SessionState, commands map[string]string) SessionState {
	if len(commands) == 0 {
		return st
	}
	if st.Commands == nil {
		st.Commands = make(map[string]string, len(commands))
	}
	for worker, command := range commands {
		if !c.roster.Has(worker) {
			st = st.note("round %d: commander addressed unknown worker %q", st.Round.CurrentRound, worker)
			continue
		}
		st.Commands[worker] = command

		if strings.EqualFold(strings.TrimSpace(command), "skip") {
			evt := proto.NewEvent(proto.EventAgentRoundSkipped, st.ID)
			evt.Round = st.Round.CurrentRound
			evt.Worker = worker
			c.sink.Emit(evt)
			continue
		}
		c.mailbox.Send(proto.RoleCommander.String(), worker, proto.MsgCommand, command)
		evt := proto.NewEvent(proto.EventAgentCommandIssued, st.ID)
		evt.Round = st.Round.CurrentRound
		evt.Worker = worker
		evt.Fields["command"] = command
		c.sink.Emit(evt)
	}
	return st
}

// validStep reports whether a proposed next step maps to an executable unit.
func (c *Controller) validStep(step string) bool {
	switch step {
	case proto.StepParallelAnalysis:
		return true
	case proto.StepCollaboration:
		return c.cfg.EnableCollaboration
	}
	target, ok := proto.SpeakTarget(step)
	return ok && c.roster.Has(target)
}

// stepDecide computes the next routing decision: the pending proposal (or a
// fresh commander consult) filtered through the rule engine.
func (c *Controller) stepDecide(ctx context.Context, st SessionState) (State, SessionState, error) {
	proposed := st.Decision
	if proposed.NextStep == proto.StepNone && !proposed.ShouldStop {
		st, proposed = c.consultCommander(ctx, st)
	}

	decision, rule := c.engine.Decide(c.routingContext(st, proposed))
	if !decision.ShouldStop && !c.validStep(decision.NextStep) {
		decision = FallbackRoute(c.routingContext(st, proposed))
		rule = "fallback"
	}
	st.Decision = decision
	st = st.note("round %d step %d: %s (rule=%s) %s",
		st.Round.CurrentRound, st.Round.DiscussionStepCount, decisionLabel(decision), rule, decision.Reason)

	evt := proto.NewEvent(proto.EventSupervisorDecision, st.ID)
	evt.Round = st.Round.CurrentRound
	evt.Fields["next_step"] = decision.NextStep
	evt.Fields["should_stop"] = decision.ShouldStop
	evt.Fields["stop_reason"] = string(decision.StopReason)
	evt.Fields["rule"] = rule
	evt.Fields["reason"] = decision.Reason
	c.sink.Emit(evt)

	if decision.ShouldStop {
		st.Round.StopRequested = true
		st.Round.StopReason = decision.StopReason
		st.Round.StopDetail = decision.Reason
		return StateRoundEvaluate, st, nil
	}
	if _, ok := proto.SpeakTarget(decision.NextStep); ok {
		return StateWorkerExec, st, nil
	}
	return StatePhaseExec, st, nil
}

func decisionLabel(d proto.RoutingDecision) string {
	if d.ShouldStop {
		return "stop"
	}
	return d.NextStep
}

// stepWorkerExec speaks the decided single worker and charges one
// discussion step.
func (c *Controller) stepWorkerExec(ctx context.Context, st SessionState) (State, SessionState, error) {
	target, ok := proto.SpeakTarget(st.Decision.NextStep)
	if !ok {
		return StateFailed, st, fmt.Errorf("worker exec reached without a speak step (%q)", st.Decision.NextStep)
	}
	turn, err := c.phases.RunSingle(ctx, st, target)
	if err != nil {
		return StateFailed, st, fmt.Errorf("execute worker %s: %w", target, err)
	}
	st = c.recordTurn(st, turn)
	if turn.Role == proto.RoleCommander {
		st.Round.CommanderCalls++
	}
	st.Round.DiscussionStepCount++
	st.Decision = proto.RoutingDecision{}
	return c.afterAction(st), st, nil
}

// stepPhaseExec runs the decided phase batch and charges one discussion step.
func (c *Controller) stepPhaseExec(ctx context.Context, st SessionState) (State, SessionState, error) {
	var turns []proto.Turn
	var err error
	switch st.Decision.NextStep {
	case proto.StepCollaboration:
		turns, err = c.phases.RunCollaboration(ctx, st)
	default:
		turns, err = c.phases.RunParallelAnalysis(ctx, st)
	}
	if err != nil {
		return StateFailed, st, fmt.Errorf("execute phase %s: %w", st.Decision.NextStep, err)
	}
	for _, turn := range turns {
		st = c.recordTurn(st, turn)
	}
	st.Round.DiscussionStepCount++
	st.Decision = proto.RoutingDecision{}
	return c.afterAction(st), st, nil
}

// afterAction closes the round once the step budget is spent. The judge is
// granted a forced last word first: the budget rule routes to the judge at
// the boundary, so the round only closes once the judge has spoken this
// round or the grace allowance is gone.
func (c *Controller) afterAction(st SessionState) State {
	steps := st.Round.DiscussionStepCount
	if steps >= st.Round.MaxDiscussionSteps {
		if c.judgeSpokeThisRound(st) || steps >= st.Round.MaxDiscussionSteps+budgetGrace {
			return StateRoundEvaluate
		}
	}
	return StateSupervisorDecide
}

func (c *Controller) judgeSpokeThisRound(st SessionState) bool {
	judge := proto.RoleJudge.String()
	for _, card := range c.cards.Since(st.Round.RoundStartCardSeq) {
		if card.Worker == judge {
			return true
		}
	}
	return false
}

// stepRoundEvaluate decides between another round and finalization.
func (c *Controller) stepRoundEvaluate(st SessionState) (State, SessionState, error) {
	judgeConf, judgeSpoke := c.judgeConfidenceThisRound(st)
	consensus := judgeSpoke && judgeConf >= c.cfg.ConsensusThreshold

	evt := proto.NewEvent(proto.EventRoundCompleted, st.ID)
	evt.Round = st.Round.CurrentRound
	evt.Fields["steps"] = st.Round.DiscussionStepCount
	evt.Fields["judge_confidence"] = judgeConf
	evt.Fields["consensus"] = consensus
	c.sink.Emit(evt)

	c.persistStatus(st)

	if consensus && st.Round.CurrentRound >= c.cfg.MinRounds {
		st.ConsensusReached = true
		st = st.note("round %d: consensus at judge confidence %.2f", st.Round.CurrentRound, judgeConf)
		return StateFinalize, st, nil
	}
	if st.Round.StopRequested && st.Round.StopReason == proto.StopSupervisor {
		st = st.note("round %d: supervisor requested stop: %s", st.Round.CurrentRound, st.Round.StopDetail)
		return StateFinalize, st, nil
	}
	if st.Round.CurrentRound >= c.cfg.MaxRounds {
		st = st.note("round %d: max rounds reached without consensus", st.Round.CurrentRound)
		return StateFinalize, st, nil
	}
	st = st.note("round %d complete without consensus; starting next round", st.Round.CurrentRound)
	return StateRoundStart, st, nil
}

// judgeConfidenceThisRound returns the confidence of the judge's most
// recent non-degraded card in the active round.
func (c *Controller) judgeConfidenceThisRound(st SessionState) (float64, bool) {
	judge := proto.RoleJudge.String()
	cards := c.cards.Since(st.Round.RoundStartCardSeq)
	for i := len(cards) - 1; i >= 0; i-- {
		if cards[i].Worker == judge && !cards[i].Degraded {
			return cards[i].Confidence, true
		}
	}
	return 0, false
}

// stepFinalize synthesizes and persists the verdict.
func (c *Controller) stepFinalize(st SessionState) (State, SessionState, error) {
	verdict := Synthesize(st.ID, st.IncidentID, c.cards.All(), st.Turns,
		st.ConsensusReached, st.Round.CurrentRound)
	st.Verdict = &verdict
	st.Status = proto.StatusCompleted

	if c.archiver != nil {
		c.archiver.PersistVerdict(st.ID, verdict)
	}
	c.persistStatus(st)
	c.recorder.ObserveSession(string(st.Status), st.Round.CurrentRound, time.Since(st.StartedAt))

	evt := proto.NewEvent(proto.EventDebateCompleted, st.ID)
	evt.Round = st.Round.CurrentRound
	evt.Fields["consensus"] = verdict.ConsensusReached
	evt.Fields["confidence"] = verdict.RootCause.Confidence
	evt.Fields["root_cause"] = verdict.RootCause.Summary
	c.sink.Emit(evt)
	return StateDone, st, nil
}

// cancelled marks the session cancelled without synthesizing a verdict.
func (c *Controller) cancelled(st SessionState) SessionState {
	st.Status = proto.StatusCancelled
	st = c.transition(st, StateCancelled)
	c.persistStatus(st)
	c.recorder.ObserveSession(string(st.Status), st.Round.CurrentRound, time.Since(st.StartedAt))
	return st
}

// recordTurn appends the turn to the transcript and checkpoints it.
func (c *Controller) recordTurn(st SessionState, turn proto.Turn) SessionState {
	st.Turns = append(st.Turns, turn)
	if c.archiver != nil {
		c.archiver.PersistCheckpoint(st.ID, turn)
	}
	return st
}

func (c *Controller) persistStatus(st SessionState) {
	if c.archiver == nil {
		return
	}
	c.archiver.PersistStatus(st.ID, st.Status, st.Round.CurrentRound, st.ConsensusReached)
}

// routingContext assembles the read-only rule input from the card store and
// round state. Commander cards are excluded from the repetition signals:
// the commander speaks between every action by design.
func (c *Controller) routingContext(st SessionState, proposed proto.RoutingDecision) RoutingContext {
	roundCards := c.cards.Since(st.Round.RoundStartCardSeq)

	counts := make(map[string]int, len(roundCards))
	var recent []string
	judgeSpoke := false
	critiqueDone := false
	rebuttalDone := false
	commanderName := proto.RoleCommander.String()
	judgeName := proto.RoleJudge.String()

	for _, card := range roundCards {
		if card.Worker == commanderName {
			continue
		}
		counts[card.Worker]++
		recent = append(recent, card.Worker)
		switch card.Worker {
		case judgeName:
			if !card.Degraded {
				judgeSpoke = true
			}
		case proto.RoleCritic.String():
			critiqueDone = true
		case proto.RoleRebuttal.String():
			rebuttalDone = true
		}
	}

	analysisDone := true
	for _, spec := range c.roster.Analysis() {
		if counts[spec.Name] == 0 {
			analysisDone = false
			break
		}
	}

	judgeConf := 0.0
	if card, ok := c.latestNonDegraded(judgeName); ok {
		judgeConf = card.Confidence
	}

	commanderConf := 0.0
	commanderUnresolved := 0
	if card, ok := c.latestNonDegraded(commanderName); ok {
		cmd := opinion.CommanderFromCard(card)
		commanderConf = cmd.Confidence
		commanderUnresolved = cmd.UnresolvedQuestions
	}

	return RoutingContext{
		Proposed:                  proposed,
		RoundCards:                roundCards,
		CallCounts:                counts,
		RecentWorkers:             recent,
		DiscussionStep:            st.Round.DiscussionStepCount,
		MaxDiscussionSteps:        st.Round.MaxDiscussionSteps,
		CommanderCalls:            st.Round.CommanderCalls,
		JudgeConfidence:           judgeConf,
		JudgeSpokeThisRound:       judgeSpoke,
		CommanderConfidence:       commanderConf,
		CommanderUnresolved:       commanderUnresolved,
		CritiqueEnabled:           c.cfg.EnableCritique,
		RebuttalEnabled:           c.cfg.EnableRebuttal,
		CritiqueDone:              critiqueDone,
		RebuttalDone:              rebuttalDone,
		AnalysisDone:              analysisDone,
		ConsensusThreshold:        c.cfg.ConsensusThreshold,
		CommanderSettleConfidence: c.cfg.CommanderSettleConfidence,
		RevisitSettleConfidence:   c.cfg.RevisitSettleConfidence,
	}
}

// latestNonDegraded returns the newest non-degraded card from a worker
// across the whole session.
func (c *Controller) latestNonDegraded(worker string) (proto.EvidenceCard, bool) {
	cards := c.cards.All()
	for i := len(cards) - 1; i >= 0; i-- {
		if cards[i].Worker == worker && !cards[i].Degraded {
			return cards[i], true
		}
	}
	return proto.EvidenceCard{}, false
}
