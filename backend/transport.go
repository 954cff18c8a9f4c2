package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/whiskerworks/catmood/analysis"
)

const (
	uploadPath  = "/api/upload"
	analyzePath = "/api/analyze"
)

// analyzeRequest is the JSON body of POST /api/analyze across contract
// revisions: older servers take a fileUri from a prior upload, newer ones an
// embedded data-URL image list.
type analyzeRequest struct {
	FileURI      string                     `json:"fileUri,omitempty"`
	Images       []string                   `json:"images,omitempty"`
	AnalysisType string                     `json:"analysisType,omitempty"`
	Context      map[string]json.RawMessage `json:"context,omitempty"`
}

// StageTransport speaks the discrete-request contract: one multipart upload,
// then one analyze call per stage referencing the uploaded file.
type StageTransport struct {
	Client *Client
}

// Upload posts the photo as the multipart "file" field and decodes the
// resulting file URI.
func (t *StageTransport) Upload(ctx context.Context, photo analysis.EncodedPhoto) (analysis.UploadResult, error) {
	status, body, err := t.Client.PostMultipart(ctx, uploadPath, nil, "file", photo.JPEG, "photo.jpg", "image/jpeg")
	if err != nil {
		return analysis.UploadResult{}, err
	}
	if !is2xx(status) {
		return analysis.UploadResult{}, &analysis.ServerError{
			Stage:   "upload",
			Status:  status,
			Message: analysis.EnvelopeMessage("upload", body),
		}
	}
	return analysis.DecodeUpload(body)
}

// Stage requests one analysis for the previously uploaded file.
func (t *StageTransport) Stage(ctx context.Context, stage string, photo analysis.EncodedPhoto, stageContext map[string]json.RawMessage) (json.RawMessage, error) {
	return postAnalyze(ctx, t.Client, stage, analyzeRequest{
		FileURI:      photo.FileURI,
		AnalysisType: stage,
		Context:      stageContext,
	})
}

// EmbeddedTransport speaks the newer contract: no upload step, the image
// rides inside each analyze call as a base64 data-URL.
type EmbeddedTransport struct {
	Client *Client
}

// Stage requests one analysis with the embedded image.
func (t *EmbeddedTransport) Stage(ctx context.Context, stage string, photo analysis.EncodedPhoto, stageContext map[string]json.RawMessage) (json.RawMessage, error) {
	return postAnalyze(ctx, t.Client, stage, analyzeRequest{
		Images:       []string{photo.DataURL},
		AnalysisType: stage,
		Context:      stageContext,
	})
}

func postAnalyze(ctx context.Context, c *Client, stage string, req analyzeRequest) (json.RawMessage, error) {
	status, body, err := c.PostJSON(ctx, analyzePath, req, nil)
	if err != nil {
		return nil, err
	}
	if !is2xx(status) {
		return nil, &analysis.ServerError{
			Stage:   stage,
			Status:  status,
			Message: analysis.EnvelopeMessage(stage, body),
		}
	}
	return extractStagePayload(stage, body), nil
}

// extractStagePayload unwraps the payload nested under the analysis-type key.
// Older revisions returned the payload at the top level, so a missing key
// falls back to the whole body.
func extractStagePayload(stage string, body []byte) json.RawMessage {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err == nil {
		if nested, ok := obj[stage]; ok {
			return nested
		}
	}
	return body
}

// streamEvent is one "data:" line of the event-stream contract.
type streamEvent struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// StreamTransport speaks the single-request event-stream contract: one
// analyze call returns every stage as line-delimited events, terminated by a
// complete or error event.
type StreamTransport struct {
	Client *Client
}

// Stage is the discrete fallback for servers that accept non-streamed calls
// on the same endpoint. The orchestrator prefers AnalyzeStream and only
// reaches this when used as a plain transport.
func (t *StreamTransport) Stage(ctx context.Context, stage string, photo analysis.EncodedPhoto, stageContext map[string]json.RawMessage) (json.RawMessage, error) {
	return postAnalyze(ctx, t.Client, stage, analyzeRequest{
		Images:       []string{photo.DataURL},
		AnalysisType: stage,
		Context:      stageContext,
	})
}

// AnalyzeStream issues the streamed analyze request and dispatches each
// stage payload to fn in server order.
func (t *StreamTransport) AnalyzeStream(ctx context.Context, photo analysis.EncodedPhoto, fn func(stage string, payload json.RawMessage) error) error {
	status, stream, err := t.Client.StreamLines(ctx, analyzePath, analyzeRequest{
		Images: []string{photo.DataURL},
	}, map[string]string{"Accept": "text/event-stream"})
	if err != nil {
		return err
	}
	defer stream.Close()

	if !is2xx(status) {
		body, _ := stream.ReadAll()
		return &analysis.ServerError{
			Stage:   "stream",
			Status:  status,
			Message: analysis.EnvelopeMessage("stream", body),
		}
	}

	for {
		line, err := stream.Next()
		if err != nil {
			// Server closed without a complete event: treat EOF as the end
			// of the stream and let the orchestrator judge completeness.
			if errors.Is(err, io.EOF) {
				return nil
			}
			return &analysis.NetworkError{Op: "stream " + analyzePath, Err: err}
		}
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		var ev streamEvent
		if err := json.Unmarshal([]byte(strings.TrimSpace(strings.TrimPrefix(line, "data:"))), &ev); err != nil {
			continue
		}
		switch ev.Event {
		case "":
			continue
		case "complete":
			return nil
		case "error":
			return &analysis.ServerError{
				Stage:   "stream",
				Status:  status,
				Message: analysis.EnvelopeMessage("stream", ev.Payload),
			}
		default:
			if err := fn(ev.Event, ev.Payload); err != nil {
				return err
			}
		}
	}
}

func is2xx(status int) bool {
	return status >= 200 && status < 300
}
