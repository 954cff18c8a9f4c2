package analysis

import (
	"context"
	"encoding/json"
)

// Transport performs one analysis stage request. Implementations exist for
// the discrete per-stage backend contract, the embedded-base64 contract, and
// a direct vision-model provider; the orchestrator never branches on which
// one it was given.
type Transport interface {
	// Stage requests the named analysis for the photo, conditioned on the
	// accumulated prior-stage context, and returns the raw stage payload.
	Stage(ctx context.Context, stage string, photo EncodedPhoto, stageContext map[string]json.RawMessage) (json.RawMessage, error)
}

// Uploader is implemented by transports whose backend contract has a
// discrete upload step. When absent, the image rides inside the first
// analysis call and no upload events are emitted.
type Uploader interface {
	Upload(ctx context.Context, photo EncodedPhoto) (UploadResult, error)
}

// Streamer is implemented by transports that speak the single-request
// event-stream contract: one call yields every stage's payload as
// line-delimited events. fn is invoked once per stage event, in server
// order; returning an error aborts the stream.
type Streamer interface {
	AnalyzeStream(ctx context.Context, photo EncodedPhoto, fn func(stage string, payload json.RawMessage) error) error
}
