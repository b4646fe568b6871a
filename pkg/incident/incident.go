// Package incident reads the YAML incident descriptor that seeds a debate
// session. Intake only parses a prepared local file; collecting logs or
// code from external systems is someone else's job.
package incident

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// maxExcerpts bounds how many asset excerpts one descriptor may carry into
// worker prompts.
const maxExcerpts = 12

// maxExcerptLen truncates each excerpt so one oversized log dump cannot
// blow the prompt budget before compaction gets a say.
const maxExcerptLen = 4000

// Incident is one production incident under debate.
type Incident struct {
	ID        string   `yaml:"id"`
	Title     string   `yaml:"title"`
	Severity  string   `yaml:"severity"`
	Narrative string   `yaml:"narrative"`
	Excerpts  []string `yaml:"excerpts"`

	ReportedAt time.Time `yaml:"reported_at"`
}

// Load reads and validates an incident descriptor file.
func Load(path string) (Incident, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Incident{}, fmt.Errorf("read incident %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a YAML incident descriptor, filling defaults for optional
// fields and bounding the excerpt payload.
func Parse(data []byte) (Incident, error) {
	var inc Incident
	if err := yaml.Unmarshal(data, &inc); err != nil {
		return Incident{}, fmt.Errorf("parse incident descriptor: %w", err)
	}

	inc.Title = strings.TrimSpace(inc.Title)
	inc.Narrative = strings.TrimSpace(inc.Narrative)
	if inc.Title == "" {
		return Incident{}, fmt.Errorf("incident descriptor missing title")
	}
	if inc.Narrative == "" {
		return Incident{}, fmt.Errorf("incident descriptor missing narrative")
	}

	if inc.ID == "" {
		inc.ID = uuid.NewString()
	}
	inc.Severity = strings.ToLower(strings.TrimSpace(inc.Severity))
	if inc.Severity == "" {
		inc.Severity = "unknown"
	}
	if inc.ReportedAt.IsZero() {
		inc.ReportedAt = time.Now().UTC()
	}

	excerpts := make([]string, 0, len(inc.Excerpts))
	for _, e := range inc.Excerpts {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if len(e) > maxExcerptLen {
			e = e[:maxExcerptLen] + "\n[excerpt truncated]"
		}
		excerpts = append(excerpts, e)
		if len(excerpts) == maxExcerpts {
			break
		}
	}
	inc.Excerpts = excerpts
	return inc, nil
}
