package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// failureMessage is the only text a Failed event carries. Diagnostic detail
// stays in the log.
const failureMessage = "Analysis failed"

// maxConcurrentStages bounds detail-stage fan-out in concurrent mode.
const maxConcurrentStages = 4

// Orchestrator runs one photo through the staged analysis pipeline:
// upload (when the transport has a discrete upload step), the mandatory
// summary stage, then the failure-tolerant detail stages, emitting one typed
// event per completed step.
type Orchestrator struct {
	transport         Transport
	logger            *slog.Logger
	concurrentDetails bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger replaces the default slog logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithConcurrentDetails runs the detail stages under a bounded errgroup with
// summary-only context instead of sequentially with accumulated context.
// Event order is unchanged: results are buffered and emitted in canonical
// stage order.
func WithConcurrentDetails() Option {
	return func(o *Orchestrator) { o.concurrentDetails = true }
}

// NewOrchestrator builds an orchestrator around the given transport.
func NewOrchestrator(t Transport, opts ...Option) *Orchestrator {
	o := &Orchestrator{transport: t, logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// AnalyzeParallel starts one analysis run and returns its event stream. The
// channel is closed when the run terminates; a close without a preceding
// Failed event means success or deliberate cancellation. Cancel ctx to stop
// the run; no further events are emitted after cancellation.
func (o *Orchestrator) AnalyzeParallel(ctx context.Context, photo CapturedPhoto) <-chan Update {
	ch := make(chan Update)
	go o.run(ctx, photo, ch)
	return ch
}

func (o *Orchestrator) run(ctx context.Context, photo CapturedPhoto, ch chan<- Update) {
	defer close(ch)

	log := o.logger.With("run_id", uuid.NewString(), "fingerprint", photo.Fingerprint())

	emit := func(u Update) bool {
		if ctx.Err() != nil {
			return false
		}
		select {
		case ch <- u:
			return true
		case <-ctx.Done():
			return false
		}
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error("analysis run panicked", "panic", r)
			emit(Failed{Message: failureMessage})
		}
	}()

	if !emit(Started{}) {
		return
	}

	encoded, err := PreparePhoto(photo)
	if err != nil {
		log.Error("prepare photo", "error", err)
		emit(Failed{Message: failureMessage})
		return
	}

	if s, ok := o.transport.(Streamer); ok {
		o.runStream(ctx, s, encoded, emit, log)
		return
	}

	if up, ok := o.transport.(Uploader); ok {
		if !emit(UploadStarted{}) {
			return
		}
		res, err := up.Upload(ctx, encoded)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			log.Error("upload failed", "error", err)
			emit(Failed{Message: failureMessage})
			return
		}
		encoded.FileURI = res.FileURI
		log.Info("upload completed", "file_uri", res.FileURI)
		if !emit(UploadCompleted{FileURI: res.FileURI}) {
			return
		}
	}

	raw, err := o.transport.Stage(ctx, StageSummary, encoded, nil)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		log.Error("summary stage failed", "error", err)
		emit(Failed{Message: failureMessage})
		return
	}
	summary, err := DecodeEmotionSummary(raw)
	if err != nil {
		log.Error("summary decode failed", "error", err)
		emit(Failed{Message: failureMessage})
		return
	}
	if !emit(EmotionSummaryCompleted{Summary: summary}) {
		return
	}

	// The context map lives for exactly this run; it is seeded with the
	// summary and grows as detail stages land.
	stageContext := map[string]json.RawMessage{}
	mergeContext(stageContext, StageSummary, summary)

	stages := append([]string(nil), DetailStages...)
	if summary.WantsJokes() {
		stages = append(stages, StageCatJokes)
	}

	var partial []string
	if o.concurrentDetails {
		partial = o.runDetailsConcurrent(ctx, encoded, stageContext, stages, emit, log)
	} else {
		partial = o.runDetailsSequential(ctx, encoded, stageContext, stages, emit, log)
	}
	if ctx.Err() != nil {
		return
	}
	if len(partial) > 0 {
		emit(PartialFailures{Errors: partial})
	}
}

// runDetailsSequential attempts each stage in order with the accumulated
// context. Stage failures are collected, never fatal.
func (o *Orchestrator) runDetailsSequential(ctx context.Context, photo EncodedPhoto, stageContext map[string]json.RawMessage, stages []string, emit func(Update) bool, log *slog.Logger) []string {
	var partial []string
	for _, stage := range stages {
		if ctx.Err() != nil {
			return nil
		}
		raw, err := o.transport.Stage(ctx, stage, photo, stageContext)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			var result any
			result, err = DecodeStage(stage, raw)
			if err == nil {
				if !emitStageResult(emit, stage, result) {
					return nil
				}
				mergeContext(stageContext, stage, result)
				continue
			}
		}
		log.Warn("detail stage failed", "stage", stage, "error", err)
		partial = append(partial, stageFailureMessage(stage, err))
	}
	return partial
}

// runDetailsConcurrent fans the stages out under a bounded group, each
// conditioned on the summary only, then replays outcomes in canonical order
// so the emitted sequence matches the sequential mode.
func (o *Orchestrator) runDetailsConcurrent(ctx context.Context, photo EncodedPhoto, stageContext map[string]json.RawMessage, stages []string, emit func(Update) bool, log *slog.Logger) []string {
	type outcome struct {
		result any
		err    error
	}
	outcomes := make([]outcome, len(stages))

	summaryOnly := map[string]json.RawMessage{StageSummary: stageContext[StageSummary]}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentStages)
	for i, stage := range stages {
		i, stage := i, stage
		g.Go(func() error {
			raw, err := o.transport.Stage(gctx, stage, photo, summaryOnly)
			if err != nil {
				outcomes[i] = outcome{err: err}
				return nil
			}
			result, err := DecodeStage(stage, raw)
			outcomes[i] = outcome{result: result, err: err}
			return nil
		})
	}
	_ = g.Wait()
	if ctx.Err() != nil {
		return nil
	}

	var partial []string
	for i, stage := range stages {
		out := outcomes[i]
		if out.err != nil {
			log.Warn("detail stage failed", "stage", stage, "error", out.err)
			partial = append(partial, stageFailureMessage(stage, out.err))
			continue
		}
		if !emitStageResult(emit, stage, out.result) {
			return nil
		}
		mergeContext(stageContext, stage, out.result)
	}
	return partial
}

// runStream consumes the single-request event-stream contract. The server
// drives stage order; detail payloads that arrive before the summary are
// held back so the summary event still precedes them.
func (o *Orchestrator) runStream(ctx context.Context, s Streamer, photo EncodedPhoto, emit func(Update) bool, log *slog.Logger) {
	var (
		summarySeen bool
		pending     []Update
		partial     []string
	)
	err := s.AnalyzeStream(ctx, photo, func(stage string, payload json.RawMessage) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		result, derr := DecodeStage(stage, payload)
		if derr != nil {
			if stage == StageSummary {
				return derr
			}
			log.Warn("stream stage failed", "stage", stage, "error", derr)
			partial = append(partial, stageFailureMessage(stage, derr))
			return nil
		}
		if stage == StageSummary {
			summarySeen = true
			if !emit(EmotionSummaryCompleted{Summary: result.(EmotionSummary)}) {
				return ctx.Err()
			}
			for _, u := range pending {
				if !emit(u) {
					return ctx.Err()
				}
			}
			pending = nil
			return nil
		}
		u := stageUpdate(stage, result)
		if u == nil {
			return nil
		}
		if !summarySeen {
			pending = append(pending, u)
			return nil
		}
		if !emit(u) {
			return ctx.Err()
		}
		return nil
	})
	if ctx.Err() != nil {
		return
	}
	if err != nil || !summarySeen {
		log.Error("stream analysis failed", "error", err, "summary_seen", summarySeen)
		emit(Failed{Message: failureMessage})
		return
	}
	if len(partial) > 0 {
		emit(PartialFailures{Errors: partial})
	}
}

func emitStageResult(emit func(Update) bool, stage string, result any) bool {
	u := stageUpdate(stage, result)
	if u == nil {
		return true
	}
	return emit(u)
}

func stageUpdate(stage string, result any) Update {
	switch v := result.(type) {
	case EmotionSummary:
		return EmotionSummaryCompleted{Summary: v}
	case BodyLanguageAnalysis:
		return BodyLanguageCompleted{Analysis: v}
	case ContextualEmotion:
		return ContextualEmotionCompleted{Analysis: v}
	case OwnerAdvice:
		return OwnerAdviceCompleted{Advice: v}
	case CatJokes:
		return CatJokesCompleted{Jokes: v}
	}
	return nil
}

func mergeContext(stageContext map[string]json.RawMessage, stage string, result any) {
	b, err := json.Marshal(result)
	if err != nil {
		return
	}
	stageContext[stage] = b
}

// stageFailureMessage builds the human-readable entry recorded in
// PartialFailures. Server-provided messages pass through; everything else
// collapses to a short generic string.
func stageFailureMessage(stage string, err error) string {
	var se *ServerError
	if errors.As(err, &se) && se.Message != "" {
		return stage + ": " + se.Message
	}
	var de *DecodeError
	if errors.As(err, &de) {
		return stage + ": invalid response"
	}
	return stage + ": request failed"
}
