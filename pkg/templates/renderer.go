// Package templates renders the per-phase worker prompts from embedded
// markdown templates.
package templates

import (
	"bytes"
	"embed"
	"fmt"
	"text/template"
)

//go:embed *.tpl.md
var templateFS embed.FS

// PromptTemplate names one embedded prompt template.
type PromptTemplate string

const (
	// CommanderTemplate asks the commander to decompose the incident and
	// propose the next route.
	CommanderTemplate PromptTemplate = "commander.tpl.md"
	// AnalysisTemplate is the first-pass prompt for the analysis workers.
	AnalysisTemplate PromptTemplate = "analysis.tpl.md"
	// CollaborationTemplate re-invokes analysis workers with peer context.
	CollaborationTemplate PromptTemplate = "collaboration.tpl.md"
	// CritiqueTemplate asks the critic to challenge peer conclusions.
	CritiqueTemplate PromptTemplate = "critique.tpl.md"
	// RebuttalTemplate asks for a response to the critique.
	RebuttalTemplate PromptTemplate = "rebuttal.tpl.md"
	// JudgmentTemplate asks the judge for a full verdict.
	JudgmentTemplate PromptTemplate = "judgment.tpl.md"
	// VerificationTemplate asks the judge to re-check its own verdict.
	VerificationTemplate PromptTemplate = "verification.tpl.md"
)

// CardView is the template-facing projection of an evidence card.
type CardView struct {
	Worker     string
	Phase      string
	Conclusion string
	Evidence   []string
	Confidence float64
}

// PromptData carries everything a prompt template may reference. Unused
// fields render as nothing; templates guard their sections.
type PromptData struct {
	WorkerName      string
	RoleDescription string
	Round           int
	LoopRound       int

	IncidentID        string
	IncidentTitle     string
	IncidentSeverity  string
	IncidentNarrative string
	IncidentExcerpts  []string

	// Command is the commander-assigned directive for this worker.
	Command string
	// Inbox holds the drained mailbox messages, oldest first.
	Inbox []string

	// Cards is the evidence history visible to this worker, oldest first.
	Cards []CardView

	// OwnPrevious is this worker's latest conclusion, for collaboration
	// and rebuttal prompts.
	OwnPrevious string
	// CritiqueText is the critic's latest conclusion, for rebuttal prompts.
	CritiqueText string
	// PriorVerdict is the judge's previous conclusion, for verification.
	PriorVerdict string
}

// Renderer holds the parsed prompt templates.
type Renderer struct {
	templates map[PromptTemplate]*template.Template
}

// NewRenderer parses every embedded template.
func NewRenderer() (*Renderer, error) {
	r := &Renderer{templates: make(map[PromptTemplate]*template.Template)}

	names := []PromptTemplate{
		CommanderTemplate,
		AnalysisTemplate,
		CollaborationTemplate,
		CritiqueTemplate,
		RebuttalTemplate,
		JudgmentTemplate,
		VerificationTemplate,
	}

	for _, name := range names {
		content, err := templateFS.ReadFile(string(name))
		if err != nil {
			return nil, fmt.Errorf("read template %s: %w", name, err)
		}
		tmpl, err := template.New(string(name)).Parse(string(content))
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		r.templates[name] = tmpl
	}
	return r, nil
}

// Render executes the named template with the given data.
func (r *Renderer) Render(name PromptTemplate, data *PromptData) (string, error) {
	tmpl, exists := r.templates[name]
	if !exists {
		return "", fmt.Errorf("template %s not found", name)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render template %s: %w", name, err)
	}
	return buf.String(), nil
}

// Available lists the loaded templates.
func (r *Renderer) Available() []PromptTemplate {
	names := make([]PromptTemplate, 0, len(r.templates))
	for name := range r.templates {
		names = append(names, name)
	}
	return names
}
