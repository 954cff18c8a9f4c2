// Package provider is the direct vision-model transport: instead of the
// cat-mood proxy backend it calls OpenAI itself, one structured-output
// request per stage with the photo embedded as a data-URL.
package provider

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"github.com/whiskerworks/catmood/analysis"
)

// Transport implements analysis.Transport against the OpenAI responses API.
// There is no upload step; the image rides inside every stage request.
type Transport struct {
	client *openai.Client
	model  string
}

// New builds a transport for the given API key and model.
func New(apiKey, model string) *Transport {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &Transport{client: &client, model: model}
}

var stageSchemas = map[string]map[string]any{
	analysis.StageSummary:           generateSchema[analysis.EmotionSummary](),
	analysis.StageBodyLanguage:      generateSchema[analysis.BodyLanguageAnalysis](),
	analysis.StageContextualEmotion: generateSchema[analysis.ContextualEmotion](),
	analysis.StageOwnerAdvice:       generateSchema[analysis.OwnerAdvice](),
	analysis.StageCatJokes:          generateSchema[analysis.CatJokes](),
}

var stageSchemaNames = map[string]string{
	analysis.StageSummary:           "EmotionSummary",
	analysis.StageBodyLanguage:      "BodyLanguageAnalysis",
	analysis.StageContextualEmotion: "ContextualEmotion",
	analysis.StageOwnerAdvice:       "OwnerAdvice",
	analysis.StageCatJokes:          "CatJokes",
}

// Stage runs one analysis stage as a single vision request with a strict
// JSON-schema output format matching the stage's primary wire shape.
func (t *Transport) Stage(ctx context.Context, stage string, photo analysis.EncodedPhoto, stageContext map[string]json.RawMessage) (json.RawMessage, error) {
	prompt, ok := stagePrompts[stage]
	if !ok {
		return nil, &analysis.DecodeError{Stage: stage, Reason: "unknown stage"}
	}

	input := prompt
	if len(stageContext) > 0 {
		if b, err := json.Marshal(stageContext); err == nil {
			input += "\n\nPrior analysis context (JSON):\n" + string(b)
		}
	}

	content := responses.ResponseInputMessageContentListParam{
		responses.ResponseInputContentParamOfInputText(input),
		responses.ResponseInputContentUnionParam{
			OfInputImage: &responses.ResponseInputImageParam{
				ImageURL: openai.String(photo.DataURL),
				Detail:   responses.ResponseInputImageDetailAuto,
			},
		},
	}

	format := responses.ResponseFormatTextConfigUnionParam{
		OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
			Name:   stageSchemaNames[stage],
			Schema: stageSchemas[stage],
			Strict: openai.Bool(true),
			Type:   "json_schema",
		},
	}

	params := responses.ResponseNewParams{
		Model:           t.model,
		MaxOutputTokens: openai.Int(1200),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: []responses.ResponseInputItemUnionParam{
				responses.ResponseInputItemParamOfInputMessage(content, "user"),
			},
		},
		Text: responses.ResponseTextConfigParam{
			Format: format,
		},
	}

	resp, err := callWithRetry(ctx, t.client, params)
	if err != nil {
		return nil, &analysis.NetworkError{Op: "openai " + stage, Err: err}
	}
	return extractJSON(stage, resp.OutputText())
}

func callWithRetry(ctx context.Context, client *openai.Client, params responses.ResponseNewParams) (*responses.Response, error) {
	const maxRetries = 3
	rateLimitWaitTimes := []time.Duration{20 * time.Second, 40 * time.Second, 60 * time.Second}
	serverErrorWaitTimes := []time.Duration{2 * time.Second, 10 * time.Second, 30 * time.Second}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		resp, err := client.Responses.New(ctx, params)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		var wait time.Duration
		switch {
		case isRateLimitError(err):
			wait = rateLimitWaitTimes[attempt]
		case isServerError(err):
			wait = serverErrorWaitTimes[attempt]
		default:
			return nil, err
		}
		if attempt == maxRetries-1 {
			break
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests")
}

func isServerError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "internal server error") ||
		strings.Contains(errStr, "server_error")
}

// extractJSON pulls the stage payload out of the model output, tolerating
// leading/trailing text around the JSON object.
func extractJSON(stage, outputText string) (json.RawMessage, error) {
	s := strings.TrimSpace(outputText)
	if s == "" {
		return nil, &analysis.DecodeError{Stage: stage, Reason: "empty model output"}
	}
	if json.Valid([]byte(s)) {
		return json.RawMessage(s), nil
	}
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start == -1 || end <= start {
		return nil, &analysis.DecodeError{Stage: stage, Reason: "no JSON object in model output"}
	}
	sub := s[start : end+1]
	if !json.Valid([]byte(sub)) {
		return nil, &analysis.DecodeError{Stage: stage, Reason: "malformed JSON in model output"}
	}
	return json.RawMessage(sub), nil
}

func generateSchema[T any]() map[string]any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	var v T
	schema := reflector.Reflect(v)
	obj, err := schemaToMap(schema)
	if err != nil {
		panic(err)
	}
	ensureOpenAICompliance(obj)
	return obj
}

func schemaToMap(schema *jsonschema.Schema) (map[string]any, error) {
	b, err := schema.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

const (
	propertiesKey           = "properties"
	additionalPropertiesKey = "additionalProperties"
	typeKey                 = "type"
	requiredKey             = "required"
	itemsKey                = "items"
)

// ensureOpenAICompliance normalizes a reflected schema to what strict
// structured outputs accept: every object closed and every property required.
func ensureOpenAICompliance(schema map[string]any) {
	if schemaType, ok := schema[typeKey].(string); ok && schemaType == "object" {
		schema[additionalPropertiesKey] = false

		if properties, ok := schema[propertiesKey].(map[string]any); ok {
			var requiredFields []string
			for propName := range properties {
				requiredFields = append(requiredFields, propName)
			}
			if len(requiredFields) > 0 {
				schema[requiredKey] = requiredFields
			}
		}
	}

	if properties, ok := schema[propertiesKey].(map[string]any); ok {
		for _, prop := range properties {
			if propMap, ok := prop.(map[string]any); ok {
				ensureOpenAICompliance(propMap)
			}
		}
	}

	if items, ok := schema[itemsKey].(map[string]any); ok {
		ensureOpenAICompliance(items)
	}

	if additionalProps, ok := schema[additionalPropertiesKey].(map[string]any); ok {
		ensureOpenAICompliance(additionalProps)
	}
}
