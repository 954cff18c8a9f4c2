// Package report folds an analysis event stream into a single artifact that
// can be printed or written to disk.
package report

import (
	"time"

	"github.com/whiskerworks/catmood/analysis"
)

// Report is the terminal shape of one analysis run. Sections are nil when
// their stage did not complete.
type Report struct {
	Fingerprint string    `json:"fingerprint"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`

	FileURI string `json:"file_uri,omitempty"`

	Summary           *analysis.EmotionSummary       `json:"summary,omitempty"`
	BodyLanguage      *analysis.BodyLanguageAnalysis `json:"body_language,omitempty"`
	ContextualEmotion *analysis.ContextualEmotion    `json:"contextual_emotion,omitempty"`
	OwnerAdvice       *analysis.OwnerAdvice          `json:"owner_advice,omitempty"`
	Jokes             *analysis.CatJokes             `json:"jokes,omitempty"`

	PartialErrors  []string `json:"partial_errors,omitempty"`
	FailureMessage string   `json:"failure_message,omitempty"`
}

// Failed reports whether the run terminated with a Failed event.
func (r Report) Failed() bool {
	return r.FailureMessage != ""
}

// Collector applies updates to a Report as they arrive. The optional
// onFirstSuccess hook fires exactly once, on the first completed analysis
// stage; quota commit hangs off it.
type Collector struct {
	report         Report
	onFirstSuccess func()
	firstSeen      bool
	now            func() time.Time
}

// NewCollector builds a collector for one run.
func NewCollector(fingerprint string, onFirstSuccess func()) *Collector {
	return &Collector{
		report:         Report{Fingerprint: fingerprint},
		onFirstSuccess: onFirstSuccess,
		now:            time.Now,
	}
}

// Apply folds one update into the report.
func (c *Collector) Apply(u analysis.Update) {
	switch v := u.(type) {
	case analysis.Started:
		c.report.StartedAt = c.now()
	case analysis.UploadCompleted:
		c.report.FileURI = v.FileURI
	case analysis.EmotionSummaryCompleted:
		s := v.Summary
		c.report.Summary = &s
		c.markSuccess()
	case analysis.BodyLanguageCompleted:
		a := v.Analysis
		c.report.BodyLanguage = &a
		c.markSuccess()
	case analysis.ContextualEmotionCompleted:
		a := v.Analysis
		c.report.ContextualEmotion = &a
		c.markSuccess()
	case analysis.OwnerAdviceCompleted:
		a := v.Advice
		c.report.OwnerAdvice = &a
		c.markSuccess()
	case analysis.CatJokesCompleted:
		j := v.Jokes
		c.report.Jokes = &j
		c.markSuccess()
	case analysis.PartialFailures:
		c.report.PartialErrors = append([]string(nil), v.Errors...)
	case analysis.Failed:
		c.report.FailureMessage = v.Message
	}
}

// Report finalizes and returns the collected report.
func (c *Collector) Report() Report {
	c.report.CompletedAt = c.now()
	return c.report
}

// SawSuccess reports whether any analysis stage completed.
func (c *Collector) SawSuccess() bool {
	return c.firstSeen
}

func (c *Collector) markSuccess() {
	if c.firstSeen {
		return
	}
	c.firstSeen = true
	if c.onFirstSuccess != nil {
		c.onFirstSuccess()
	}
}
