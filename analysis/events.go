package analysis

// Update is the closed union of events an analysis run emits. The sequence is
// ordered and append-only: Started is always first, detail events never
// precede EmotionSummaryCompleted, PartialFailures (if any) is the last event
// before the stream ends, and a Failed event terminates the stream. Channel
// close with no Failed is the success (or cancellation) terminator.
type Update interface {
	isUpdate()
}

// Started fires once, before any network work.
type Started struct{}

// UploadStarted fires before the discrete upload step. Absent when the
// transport folds the image into the first analysis call.
type UploadStarted struct{}

// UploadCompleted carries the server-assigned file URI.
type UploadCompleted struct {
	FileURI string
}

// EmotionSummaryCompleted carries the mandatory first-stage result.
type EmotionSummaryCompleted struct {
	Summary EmotionSummary
}

// BodyLanguageCompleted carries the body-language stage result.
type BodyLanguageCompleted struct {
	Analysis BodyLanguageAnalysis
}

// ContextualEmotionCompleted carries the contextual-emotion stage result.
type ContextualEmotionCompleted struct {
	Analysis ContextualEmotion
}

// OwnerAdviceCompleted carries the owner-advice stage result.
type OwnerAdviceCompleted struct {
	Advice OwnerAdvice
}

// CatJokesCompleted carries the optional joke stage result.
type CatJokesCompleted struct {
	Jokes CatJokes
}

// PartialFailures batches the error strings of optional stages that failed,
// in the order the stages were attempted. Emitted at most once per run, after
// all attempted optional stages have resolved.
type PartialFailures struct {
	Errors []string
}

// Failed terminates the run after a mandatory-stage or unexpected failure.
// Message is short and user-safe; diagnostics go to the log.
type Failed struct {
	Message string
}

func (Started) isUpdate()                    {}
func (UploadStarted) isUpdate()              {}
func (UploadCompleted) isUpdate()            {}
func (EmotionSummaryCompleted) isUpdate()    {}
func (BodyLanguageCompleted) isUpdate()      {}
func (ContextualEmotionCompleted) isUpdate() {}
func (OwnerAdviceCompleted) isUpdate()       {}
func (CatJokesCompleted) isUpdate()          {}
func (PartialFailures) isUpdate()            {}
func (Failed) isUpdate()                     {}
