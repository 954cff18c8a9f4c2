package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/whiskerworks/catmood/analysis"
)

func TestCollector_FirstSuccessFiresOnce(t *testing.T) {
	t.Parallel()

	var fired int
	c := NewCollector("fp-1", func() { fired++ })

	c.Apply(analysis.Started{})
	if fired != 0 {
		t.Fatal("Started must not count as success")
	}
	c.Apply(analysis.UploadCompleted{FileURI: "files/a"})
	if fired != 0 {
		t.Fatal("upload must not count as success")
	}

	c.Apply(analysis.EmotionSummaryCompleted{Summary: analysis.EmotionSummary{Emotion: "calm"}})
	c.Apply(analysis.BodyLanguageCompleted{Analysis: analysis.BodyLanguageAnalysis{Posture: "loaf"}})
	if fired != 1 {
		t.Fatalf("hook fired %d times, want exactly once", fired)
	}
	if !c.SawSuccess() {
		t.Fatal("SawSuccess=false after completed stages")
	}

	r := c.Report()
	if r.Fingerprint != "fp-1" || r.FileURI != "files/a" {
		t.Fatalf("report=%+v", r)
	}
	if r.Summary == nil || r.Summary.Emotion != "calm" {
		t.Fatalf("Summary=%+v", r.Summary)
	}
	if r.BodyLanguage == nil || r.BodyLanguage.Posture != "loaf" {
		t.Fatalf("BodyLanguage=%+v", r.BodyLanguage)
	}
	if r.Failed() {
		t.Fatal("Failed=true on a successful run")
	}
}

func TestCollector_FailureAndPartials(t *testing.T) {
	t.Parallel()

	c := NewCollector("fp-2", nil)
	c.Apply(analysis.Started{})
	c.Apply(analysis.PartialFailures{Errors: []string{"ownerAdvice: request failed"}})
	c.Apply(analysis.Failed{Message: "Analysis failed"})

	r := c.Report()
	if !r.Failed() {
		t.Fatal("Failed=false, want true")
	}
	if r.FailureMessage != "Analysis failed" {
		t.Fatalf("FailureMessage=%q", r.FailureMessage)
	}
	if !reflect.DeepEqual(r.PartialErrors, []string{"ownerAdvice: request failed"}) {
		t.Fatalf("PartialErrors=%v", r.PartialErrors)
	}
	if c.SawSuccess() {
		t.Fatal("SawSuccess=true on a run with no completed stage")
	}
}

func TestWriteJSON_RefusesToClobber(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "report.json")
	r := Report{Fingerprint: "fp"}
	if err := WriteJSON(path, r, false, false); err != nil {
		t.Fatalf("first WriteJSON: %v", err)
	}
	if err := WriteJSON(path, r, false, false); err == nil {
		t.Fatal("second WriteJSON without overwrite should fail")
	}
	if err := WriteJSON(path, r, false, true); err != nil {
		t.Fatalf("WriteJSON with overwrite: %v", err)
	}
}

func TestWriteJSON_OmitsEmptySections(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "report.json")
	r := Report{
		Fingerprint: "fp",
		Summary:     &analysis.EmotionSummary{Emotion: "calm", MoodType: "content"},
	}
	if err := WriteJSON(path, r, true, false); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if !strings.HasSuffix(string(b), "\n") {
		t.Fatal("file should end with a newline")
	}

	var got map[string]json.RawMessage
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := got["summary"]; !ok {
		t.Fatal("summary section missing")
	}
	for _, absent := range []string{"body_language", "owner_advice", "jokes", "partial_errors", "failure_message", "file_uri"} {
		if _, ok := got[absent]; ok {
			t.Fatalf("empty section %q should be omitted", absent)
		}
	}
}

func TestWriteJSON_CreatesParentDir(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "dir", "report.json")
	if err := WriteJSON(path, Report{Fingerprint: "fp"}, false, false); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("stat: %v", err)
	}
}
