package debate

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"inquest/pkg/eventlog"
	"inquest/pkg/incident"
	"inquest/pkg/logx"
	"inquest/pkg/proto"
	"inquest/pkg/templates"
)

// Phases runs worker batches for one session: the parallel analysis wave,
// the optional collaboration wave, and the single-worker critique, rebuttal,
// and judgment phases. It owns the glue between prompts, the execution
// manager, the card store, and the mailbox.
type Phases struct {
	sessionID string
	runner    *Runner
	cards     *CardStore
	mailbox   *Mailbox
	renderer  *templates.Renderer
	roster    Roster
	sink      eventlog.Sink
	inc       incident.Incident
	logger    *logx.Logger
}

// NewPhases wires the phase executors for one session.
func NewPhases(sessionID string, runner *Runner, cards *CardStore, mailbox *Mailbox,
	renderer *templates.Renderer, roster Roster, sink eventlog.Sink, inc incident.Incident) *Phases {
	if sink == nil {
		sink = eventlog.Discard{}
	}
	return &Phases{
		sessionID: sessionID,
		runner:    runner,
		cards:     cards,
		mailbox:   mailbox,
		renderer:  renderer,
		roster:    roster,
		sink:      sink,
		inc:       inc,
		logger:    logx.NewLogger("phases"),
	}
}

// RunParallelAnalysis dispatches the analysis workers concurrently and
// records their turns in dispatch order regardless of completion order.
// One worker's failure never cancels its siblings: each task degrades
// internally and returns nil.
func (p *Phases) RunParallelAnalysis(ctx context.Context, st SessionState) ([]proto.Turn, error) {
	specs := p.roster.Analysis()
	p.emitPhase(proto.EventParallelAnalysisStarted, proto.PhaseParallelAnalysis, st.Round.CurrentRound,
		map[string]any{"workers": len(specs)})

	// Prompts (and the mailbox drains feeding them) are built before the
	// fan-out so the mailbox is only mutated from the controller flow.
	prompts := make([]string, len(specs))
	for i, spec := range specs {
		prompt, err := p.renderWorker(spec, st, promptExtras{})
		if err != nil {
			return nil, fmt.Errorf("render %s prompt: %w", spec.Name, err)
		}
		prompts[i] = prompt
	}

	turns := make([]proto.Turn, len(specs))
	var g errgroup.Group
	for i := range specs {
		g.Go(func() error {
			turns[i] = p.runIsolated(ctx, specs[i], prompts[i], st.Round.CurrentRound, st.Round.DiscussionStepCount)
			return nil
		})
	}
	_ = g.Wait() // tasks never return errors; they degrade internally

	// Bookkeeping in dispatch order: cards, peer evidence, commander feedback.
	for i := range turns {
		turns[i].EvidenceCard = p.cards.Append(turns[i].EvidenceCard)
		p.shareEvidence(specs[i], turns[i], st.Round.CurrentRound)
	}

	p.emitPhase(proto.EventParallelAnalysisCompleted, proto.PhaseParallelAnalysis, st.Round.CurrentRound,
		map[string]any{"workers": len(specs)})
	return turns, nil
}

// RunCollaboration re-invokes the analysis workers with each other's latest
// conclusions as peer context, to converge disagreements before critique.
func (p *Phases) RunCollaboration(ctx context.Context, st SessionState) ([]proto.Turn, error) {
	specs := p.roster.Analysis()
	prompts := make([]string, len(specs))
	for i, spec := range specs {
		extras := promptExtras{template: templates.CollaborationTemplate}
		if own, ok := p.cards.Latest(spec.Name); ok {
			extras.ownPrevious = own.Conclusion
		}
		prompt, err := p.renderWorker(spec, st, extras)
		if err != nil {
			return nil, fmt.Errorf("render %s collaboration prompt: %w", spec.Name, err)
		}
		prompts[i] = prompt
	}

	turns := make([]proto.Turn, len(specs))
	var g errgroup.Group
	for i := range specs {
		g.Go(func() error {
			turns[i] = p.runIsolated(ctx, specs[i], prompts[i], st.Round.CurrentRound, st.Round.DiscussionStepCount)
			return nil
		})
	}
	_ = g.Wait()

	for i := range turns {
		turns[i].Phase = proto.PhaseCollaboration
		turns[i].EvidenceCard.Phase = proto.PhaseCollaboration
		turns[i].EvidenceCard = p.cards.Append(turns[i].EvidenceCard)
		p.shareEvidence(specs[i], turns[i], st.Round.CurrentRound)
	}
	return turns, nil
}

// RunSingle executes one named worker through its role prompt and records
// the turn. The judge gets the verification prompt once it already holds a
// non-degraded verdict card.
func (p *Phases) RunSingle(ctx context.Context, st SessionState, workerName string) (proto.Turn, error) {
	spec, err := p.roster.Get(workerName)
	if err != nil {
		return proto.Turn{}, err
	}

	extras := promptExtras{}
	switch spec.Role {
	case proto.RoleJudge:
		if prior, ok := p.cards.Latest(spec.Name); ok && !prior.Degraded {
			extras.template = templates.VerificationTemplate
			extras.priorVerdict = prior.Conclusion
		}
	case proto.RoleRebuttal:
		if critique, ok := p.cards.Latest(proto.RoleCritic.String()); ok {
			extras.critiqueText = critique.Conclusion
		}
		if own, ok := p.cards.Latest(spec.Name); ok {
			extras.ownPrevious = own.Conclusion
		}
	}

	prompt, err := p.renderWorker(spec, st, extras)
	if err != nil {
		return proto.Turn{}, fmt.Errorf("render %s prompt: %w", spec.Name, err)
	}

	turn := p.runIsolated(ctx, spec, prompt, st.Round.CurrentRound, st.Round.DiscussionStepCount)
	turn.EvidenceCard = p.cards.Append(turn.EvidenceCard)
	if spec.Role != proto.RoleCommander {
		p.feedbackToCommander(spec, turn, st.Round.CurrentRound)
	}
	return turn, nil
}

// promptExtras carries the optional per-call prompt inputs.
type promptExtras struct {
	template     templates.PromptTemplate
	ownPrevious  string
	critiqueText string
	priorVerdict string
}

// renderWorker builds the worker's prompt: incident framing, its command
// for the round, its drained inbox, and the visible evidence history.
func (p *Phases) renderWorker(spec WorkerSpec, st SessionState, extras promptExtras) (string, error) {
	data := &templates.PromptData{
		WorkerName:        spec.Name,
		RoleDescription:   spec.Description,
		Round:             st.Round.CurrentRound,
		LoopRound:         st.Round.DiscussionStepCount,
		IncidentID:        p.inc.ID,
		IncidentTitle:     p.inc.Title,
		IncidentSeverity:  p.inc.Severity,
		IncidentNarrative: p.inc.Narrative,
		IncidentExcerpts:  p.inc.Excerpts,
		Command:           st.Commands[spec.Name],
		OwnPrevious:       extras.ownPrevious,
		CritiqueText:      extras.critiqueText,
		PriorVerdict:      extras.priorVerdict,
	}

	for _, msg := range p.mailbox.Drain(spec.Name) {
		data.Inbox = append(data.Inbox, fmt.Sprintf("%s (%s): %s", msg.Sender, msg.Type, msg.Content))
	}

	for _, card := range p.cards.All() {
		data.Cards = append(data.Cards, templates.CardView{
			Worker:     card.Worker,
			Phase:      string(card.Phase),
			Conclusion: card.Conclusion,
			Evidence:   card.Evidence,
			Confidence: card.Confidence,
		})
	}

	tpl := spec.Template
	if extras.template != "" {
		tpl = extras.template
	}
	return p.renderer.Render(tpl, data)
}

// runIsolated shields the caller from a panicking worker path: the panic is
// converted into a degraded turn, exactly like any other terminal failure.
func (p *Phases) runIsolated(ctx context.Context, spec WorkerSpec, prompt string, round, loopRound int) (turn proto.Turn) {
	defer func() {
		if rec := recover(); rec != nil {
			p.logger.Error("worker %s panicked: %v", spec.Name, rec)
			turn = p.runner.degradedTurn(spec, prompt, fmt.Errorf("worker panic: %v", rec), round, loopRound, turn.StartedAt)
		}
	}()
	return p.runner.RunWorker(ctx, spec, prompt, round, loopRound)
}

// shareEvidence fans a completed analysis turn out to the worker's peers
// and reports back to the commander.
func (p *Phases) shareEvidence(spec WorkerSpec, turn proto.Turn, round int) {
	if turn.Degraded {
		return
	}
	for _, peer := range p.roster.Analysis() {
		if peer.Name == spec.Name {
			continue
		}
		p.mailbox.Send(spec.Name, peer.Name, proto.MsgEvidence, turn.Conclusion)
	}
	p.feedbackToCommander(spec, turn, round)
}

// feedbackToCommander queues the worker's conclusion for the commander's
// next consult and emits the matching event.
func (p *Phases) feedbackToCommander(spec WorkerSpec, turn proto.Turn, round int) {
	if turn.Degraded {
		return
	}
	p.mailbox.Send(spec.Name, proto.RoleCommander.String(), proto.MsgFeedback, turn.Conclusion)

	evt := proto.NewEvent(proto.EventAgentCommandFeedback, p.sessionID)
	evt.Phase = spec.Phase
	evt.Worker = spec.Name
	evt.Round = round
	evt.Fields["confidence"] = turn.Confidence
	p.sink.Emit(evt)
}

func (p *Phases) emitPhase(t proto.EventType, phase proto.Phase, round int, fields map[string]any) {
	evt := proto.NewEvent(t, p.sessionID)
	evt.Phase = phase
	evt.Round = round
	for k, v := range fields {
		evt.Fields[k] = v
	}
	p.sink.Emit(evt)
}
