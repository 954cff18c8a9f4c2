package analysis

import (
	"encoding/json"
	"fmt"
	"strings"
)

// The backend's response shapes drifted over several revisions: legacy
// snake_case keys next to camelCase ones, and list fields that were plain
// strings before they became arrays. Each field decodes through an explicit
// ordered fallback so the precedence stays auditable:
//
//	primary array key -> legacy array key -> primary string -> legacy string -> empty
//
// Scalars prefer the primary key and fall back to the legacy key.

// DecodeStage decodes raw stage bytes into the typed result for the given
// stage tag.
func DecodeStage(stage string, data []byte) (any, error) {
	switch stage {
	case StageSummary:
		return DecodeEmotionSummary(data)
	case StageBodyLanguage:
		return DecodeBodyLanguage(data)
	case StageContextualEmotion:
		return DecodeContextualEmotion(data)
	case StageOwnerAdvice:
		return DecodeOwnerAdvice(data)
	case StageCatJokes:
		return DecodeCatJokes(data)
	default:
		return nil, &DecodeError{Stage: stage, Reason: "unknown stage"}
	}
}

// DecodeEmotionSummary decodes the mandatory summary payload. A summary with
// no emotion label is unusable and rejected; postureHint defaults to "".
func DecodeEmotionSummary(data []byte) (EmotionSummary, error) {
	obj, err := decodeObject(StageSummary, data)
	if err != nil {
		return EmotionSummary{}, err
	}
	s := EmotionSummary{
		Emotion:        stringField(obj, "emotion"),
		Intensity:      stringField(obj, "intensity"),
		Description:    stringField(obj, "description"),
		Emoji:          stringField(obj, "emoji"),
		MoodType:       stringField(obj, "moodType", "mood_type"),
		PostureHint:    stringField(obj, "postureHint", "posture_hint"),
		WarningMessage: stringField(obj, "warningMessage", "warning_message"),
	}
	if strings.TrimSpace(s.Emotion) == "" {
		return EmotionSummary{}, &DecodeError{Stage: StageSummary, Reason: "missing emotion"}
	}
	return s, nil
}

// DecodeBodyLanguage decodes the body-language payload, tolerating the
// legacy overall_mood key.
func DecodeBodyLanguage(data []byte) (BodyLanguageAnalysis, error) {
	obj, err := decodeObject(StageBodyLanguage, data)
	if err != nil {
		return BodyLanguageAnalysis{}, err
	}
	return BodyLanguageAnalysis{
		Posture:     stringField(obj, "posture"),
		Ears:        stringField(obj, "ears"),
		Tail:        stringField(obj, "tail"),
		Eyes:        stringField(obj, "eyes"),
		Whiskers:    stringField(obj, "whiskers"),
		OverallMood: stringField(obj, "overallMood", "overall_mood"),
	}, nil
}

// DecodeContextualEmotion decodes the contextual-emotion payload with the
// full dual-key, string-or-array fallback per field.
func DecodeContextualEmotion(data []byte) (ContextualEmotion, error) {
	obj, err := decodeObject(StageContextualEmotion, data)
	if err != nil {
		return ContextualEmotion{}, err
	}
	return ContextualEmotion{
		ContextClues:         stringListField(obj, "contextClues", "context_clues"),
		EnvironmentalFactors: stringListField(obj, "environmentalFactors", "environmental_factors"),
		EmotionalMeaning:     stringListField(obj, "emotionalMeaning", "emotional_meaning"),
	}, nil
}

// DecodeOwnerAdvice decodes the owner-advice payload with the same tolerance
// as DecodeContextualEmotion.
func DecodeOwnerAdvice(data []byte) (OwnerAdvice, error) {
	obj, err := decodeObject(StageOwnerAdvice, data)
	if err != nil {
		return OwnerAdvice{}, err
	}
	return OwnerAdvice{
		ImmediateActions:    stringListField(obj, "immediateActions", "immediate_actions"),
		LongTermSuggestions: stringListField(obj, "longTermSuggestions", "long_term_suggestions"),
		WarningSigns:        stringListField(obj, "warningSigns", "warning_signs"),
	}, nil
}

// DecodeCatJokes decodes the joke payload. A bare string joke is wrapped
// into a one-element list like every other list field.
func DecodeCatJokes(data []byte) (CatJokes, error) {
	obj, err := decodeObject(StageCatJokes, data)
	if err != nil {
		return CatJokes{}, err
	}
	return CatJokes{Jokes: stringListField(obj, "jokes", "cat_jokes")}, nil
}

// DecodeUpload decodes the upload step's response.
func DecodeUpload(data []byte) (UploadResult, error) {
	obj, err := decodeObject("upload", data)
	if err != nil {
		return UploadResult{}, err
	}
	r := UploadResult{
		FileURI:   stringField(obj, "fileUri", "file_uri"),
		MimeType:  stringField(obj, "mimeType", "mime_type"),
		ExpiresAt: stringField(obj, "expiresAt", "expires_at"),
	}
	if r.FileURI == "" {
		return UploadResult{}, &DecodeError{Stage: "upload", Reason: "missing fileUri"}
	}
	return r, nil
}

// EnvelopeMessage extracts a human-readable message from an error envelope
// body: message, then error, then a generic per-stage fallback.
func EnvelopeMessage(stage string, data []byte) string {
	var env struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(data, &env)
	if env.Message != "" {
		return env.Message
	}
	if env.Error != "" {
		return env.Error
	}
	return stage + " server error"
}

func decodeObject(stage string, data []byte) (map[string]json.RawMessage, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, &DecodeError{Stage: stage, Reason: fmt.Sprintf("not a JSON object: %v", err)}
	}
	return obj, nil
}

// stringField returns the first key that decodes as a JSON string, or "".
func stringField(obj map[string]json.RawMessage, keys ...string) string {
	for _, key := range keys {
		raw, ok := obj[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return ""
}

// stringListField resolves a list field through the ordered fallback:
// primary array, legacy array, primary string (wrapped), legacy string
// (wrapped), empty.
func stringListField(obj map[string]json.RawMessage, primary, legacy string) []string {
	if list, ok := arrayValue(obj, primary); ok {
		return list
	}
	if list, ok := arrayValue(obj, legacy); ok {
		return list
	}
	if s, ok := stringValue(obj, primary); ok {
		return []string{s}
	}
	if s, ok := stringValue(obj, legacy); ok {
		return []string{s}
	}
	return []string{}
}

func arrayValue(obj map[string]json.RawMessage, key string) ([]string, bool) {
	raw, ok := obj[key]
	if !ok {
		return nil, false
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, false
	}
	return list, true
}

func stringValue(obj map[string]json.RawMessage, key string) (string, bool) {
	raw, ok := obj[key]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}
