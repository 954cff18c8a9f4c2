package analysis

import "strings"

// Stage names as they appear on the wire in analyze requests and in the
// per-run context map.
const (
	StageSummary           = "summary"
	StageBodyLanguage      = "bodyLanguage"
	StageContextualEmotion = "contextualEmotion"
	StageOwnerAdvice       = "ownerAdvice"
	StageCatJokes          = "catJokes"
)

// DetailStages is the canonical order in which optional stages are attempted
// and their events emitted. StageCatJokes is appended only when the summary
// mood admits it.
var DetailStages = []string{StageBodyLanguage, StageContextualEmotion, StageOwnerAdvice}

// CapturedPhoto is the raw image handed in by the caller. One value per
// analysis run; the orchestrator never mutates it.
type CapturedPhoto struct {
	ImageData []byte
}

// EmotionSummary is the mandatory first-stage result. MoodType drives the
// conditional joke stage.
type EmotionSummary struct {
	Emotion        string `json:"emotion"`
	Intensity      string `json:"intensity"`
	Description    string `json:"description"`
	Emoji          string `json:"emoji"`
	MoodType       string `json:"moodType"`
	PostureHint    string `json:"postureHint"`
	WarningMessage string `json:"warningMessage,omitempty"`
}

// jokeMoods is the allow-list of mood types that trigger the joke stage.
var jokeMoods = map[string]bool{
	"content": true,
	"playful": true,
}

// WantsJokes reports whether the summary's mood admits the joke stage.
// Matching is case-insensitive.
func (s EmotionSummary) WantsJokes() bool {
	return jokeMoods[strings.ToLower(strings.TrimSpace(s.MoodType))]
}

// BodyLanguageAnalysis describes posture signals from the photo.
type BodyLanguageAnalysis struct {
	Posture     string `json:"posture"`
	Ears        string `json:"ears"`
	Tail        string `json:"tail"`
	Eyes        string `json:"eyes"`
	Whiskers    string `json:"whiskers"`
	OverallMood string `json:"overallMood"`
}

// ContextualEmotion relates the cat's state to its surroundings.
type ContextualEmotion struct {
	ContextClues         []string `json:"contextClues"`
	EnvironmentalFactors []string `json:"environmentalFactors"`
	EmotionalMeaning     []string `json:"emotionalMeaning"`
}

// BulletPoints returns all non-empty entries across the three lists, in
// field order, for display as a flat list.
func (c ContextualEmotion) BulletPoints() []string {
	return filterBullets(c.ContextClues, c.EnvironmentalFactors, c.EmotionalMeaning)
}

// OwnerAdvice is actionable guidance derived from the prior stages.
type OwnerAdvice struct {
	ImmediateActions    []string `json:"immediateActions"`
	LongTermSuggestions []string `json:"longTermSuggestions"`
	WarningSigns        []string `json:"warningSigns"`
}

// ImmediateBullets returns the immediate actions with empty entries dropped.
func (a OwnerAdvice) ImmediateBullets() []string {
	return filterBullets(a.ImmediateActions)
}

// LongTermBullets returns the long-term suggestions with empty entries dropped.
func (a OwnerAdvice) LongTermBullets() []string {
	return filterBullets(a.LongTermSuggestions)
}

// WarningBullets returns the warning signs with empty entries dropped.
func (a OwnerAdvice) WarningBullets() []string {
	return filterBullets(a.WarningSigns)
}

// CatJokes is the optional mood-gated joke stage result.
type CatJokes struct {
	Jokes []string `json:"jokes"`
}

// UploadResult is the decoded response of the discrete upload step.
type UploadResult struct {
	FileURI   string `json:"fileUri"`
	MimeType  string `json:"mimeType,omitempty"`
	ExpiresAt string `json:"expiresAt,omitempty"`
}

func filterBullets(lists ...[]string) []string {
	var out []string
	for _, list := range lists {
		for _, s := range list {
			if strings.TrimSpace(s) == "" {
				continue
			}
			out = append(out, s)
		}
	}
	return out
}
