package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/whiskerworks/catmood/analysis"
	"github.com/whiskerworks/catmood/analysis/provider"
	"github.com/whiskerworks/catmood/backend"
	"github.com/whiskerworks/catmood/report"
	"github.com/whiskerworks/catmood/usage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Transport == "openai" && apiKey == "" {
		fmt.Fprintln(os.Stderr, "missing OPENAI_API_KEY (or pass -api-key)")
		os.Exit(2)
	}
	token := cfg.Token
	if token == "" {
		token = os.Getenv("CATMOOD_TOKEN")
	}

	imageData, err := os.ReadFile(cfg.ImagePath)
	if err != nil {
		fmt.Fprintln(os.Stderr, fmt.Errorf("read -image: %w", err).Error())
		os.Exit(2)
	}

	var store usage.Store
	if cfg.QuotaDB != "" {
		s, err := usage.OpenSQLiteStore(cfg.QuotaDB)
		if err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(2)
		}
		defer s.Close()
		store = s
	} else {
		store = usage.NewMemoryStore()
	}

	var meterOpts []usage.MeterOption
	if cfg.Premium {
		meterOpts = append(meterOpts, usage.Unlimited())
	}
	meter := usage.NewMeter(store, cfg.DailyLimit, meterOpts...)

	guard, err := usage.StartRun(meter)
	if err != nil {
		if errors.Is(err, usage.ErrQuotaExhausted) {
			fmt.Fprintf(os.Stderr, "daily limit of %d analyses reached; try again tomorrow or pass -premium\n", cfg.DailyLimit)
			os.Exit(1)
		}
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	tr, err := buildTransport(cfg, token, apiKey)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}

	orchOpts := []analysis.Option{analysis.WithLogger(logger)}
	if cfg.Concurrent {
		orchOpts = append(orchOpts, analysis.WithConcurrentDetails())
	}
	orch := analysis.NewOrchestrator(tr, orchOpts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	photo := analysis.CapturedPhoto{ImageData: imageData}
	collector := report.NewCollector(photo.Fingerprint(), func() {
		if err := guard.CommitOnce(); err != nil {
			logger.Error("quota commit failed", "error", err)
		}
	})

	for u := range orch.AnalyzeParallel(ctx, photo) {
		collector.Apply(u)
		printUpdate(os.Stdout, u)
	}

	// A run that produced nothing must not consume quota, whether it failed
	// or was cancelled mid-flight.
	if !collector.SawSuccess() {
		if err := guard.RollbackIfUncommitted(); err != nil {
			logger.Error("quota rollback failed", "error", err)
		}
	}

	rep := collector.Report()
	if cfg.OutPath != "" && !rep.Failed() {
		if err := report.WriteJSON(cfg.OutPath, rep, cfg.Pretty, cfg.Overwrite); err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}
	}

	if remaining, err := meter.RemainingFreeCount(); err == nil {
		fmt.Fprintf(os.Stdout, "remaining_free=%d\n", remaining)
	}

	if rep.Failed() {
		os.Exit(1)
	}
}

func buildTransport(cfg Config, token, apiKey string) (analysis.Transport, error) {
	if cfg.Transport == "openai" {
		return provider.New(apiKey, cfg.Model), nil
	}
	client := backend.NewClient(cfg.BaseURL, token)
	client.HTTPClient.Timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	switch cfg.Transport {
	case "stage":
		return &backend.StageTransport{Client: client}, nil
	case "embedded":
		return &backend.EmbeddedTransport{Client: client}, nil
	case "stream":
		return &backend.StreamTransport{Client: client}, nil
	}
	return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
}

func printUpdate(w io.Writer, u analysis.Update) {
	switch v := u.(type) {
	case analysis.Started:
		fmt.Fprintln(w, "event=started")
	case analysis.UploadStarted:
		fmt.Fprintln(w, "event=upload_started")
	case analysis.UploadCompleted:
		fmt.Fprintf(w, "event=upload_completed file_uri=%s\n", v.FileURI)
	case analysis.EmotionSummaryCompleted:
		fmt.Fprintf(w, "event=summary emotion=%s mood=%s %s %s\n", v.Summary.Emotion, v.Summary.MoodType, v.Summary.Emoji, v.Summary.Description)
		if v.Summary.WarningMessage != "" {
			fmt.Fprintf(w, "warning: %s\n", v.Summary.WarningMessage)
		}
	case analysis.BodyLanguageCompleted:
		fmt.Fprintf(w, "event=body_language overall=%s posture=%s\n", v.Analysis.OverallMood, v.Analysis.Posture)
	case analysis.ContextualEmotionCompleted:
		fmt.Fprintf(w, "event=contextual_emotion bullets=%d\n", len(v.Analysis.BulletPoints()))
	case analysis.OwnerAdviceCompleted:
		fmt.Fprintln(w, "event=owner_advice")
		for _, b := range v.Advice.ImmediateBullets() {
			fmt.Fprintf(w, "  - %s\n", b)
		}
	case analysis.CatJokesCompleted:
		fmt.Fprintln(w, "event=cat_jokes")
		for _, j := range v.Jokes.Jokes {
			fmt.Fprintf(w, "  - %s\n", j)
		}
	case analysis.PartialFailures:
		fmt.Fprintf(w, "event=partial_failures errors=%s\n", strings.Join(v.Errors, "; "))
	case analysis.Failed:
		fmt.Fprintf(w, "event=failed message=%s\n", v.Message)
	}
}
