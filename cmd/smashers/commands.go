package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/smashers-ai/smashers/internal/apperror"
	"github.com/smashers-ai/smashers/internal/gemini"
	"github.com/smashers-ai/smashers/internal/history"
	"github.com/smashers-ai/smashers/internal/jobs"
	"github.com/smashers-ai/smashers/internal/timeutil"
	"github.com/smashers-ai/smashers/internal/transcoder"
	"github.com/smashers-ai/smashers/pkg/models"
)

func (a *app) analyze(ctx context.Context, args []string) error {
	fs := a.flags("analyze")
	file := fs.String("file", "", "local video to analyse")
	link := fs.String("youtube", "", "YouTube link to analyse")
	player := fs.String("player", "", "description of the player to analyse (required)")
	name := fs.String("name", "", "player name stored with the result")
	start := fs.String("start", "", "segment start, MM:SS")
	end := fs.String("end", "", "segment end, MM:SS")
	duration := fs.Float64("duration", 0, "video length in seconds when known")
	model := fs.String("model", a.cfg.Gemini.DefaultModel, "generation model")
	apiKey := fs.String("api-key", "", "Gemini API key (default $GEMINI_API_KEY)")
	proxyURL := fs.String("proxy-url", "", "analysis proxy URL (default $SMASHERS_PROXY_URL)")
	session := fs.String("session-token", "", "proxy session token (default $"+SessionTokenEnv+")")
	historyPath := fs.String("history", "", "history file")
	asJSON := fs.Bool("json", false, "print the full result as JSON")
	if err := parse(fs, args); err != nil {
		return err
	}

	if (*file == "") == (*link == "") {
		return errors.New("provide exactly one of -file or -youtube")
	}
	if strings.TrimSpace(*player) == "" {
		return errors.New("describe the player to analyse with -player")
	}
	if _, ok := gemini.LookupModel(*model); !ok {
		return fmt.Errorf("unknown model %q", *model)
	}

	job := &models.AnalysisJob{
		ID:                uuid.New().String(),
		UserID:            localUser,
		PlayerDescription: strings.TrimSpace(*player),
		PlayerName:        strings.TrimSpace(*name),
		Model:             *model,
		Duration:          *duration,
		CreatedAt:         time.Now(),
	}

	var trimmer jobs.Trimmer
	if *link != "" {
		id, err := timeutil.ValidateYouTubeURL(*link)
		if err != nil {
			return err
		}
		job.SourceType = models.SourceTypeYouTube
		job.YouTubeID = id
		job.YouTubeURL = *link
		if job.Duration == 0 {
			job.Duration = a.videoDuration(ctx, id)
		}
	} else {
		if err := a.describeFile(job, *file); err != nil {
			return err
		}
		engine := transcoder.NewEngine(transcoder.BinaryLoader(a.cfg.Transcoder.FFmpegPath, a.cfg.Transcoder.FFprobePath, a.logger))
		defer engine.Close()
		cutter := transcoder.NewTrimmer(engine, a.cfg.Transcoder.TempDir, a.logger)
		if job.Duration == 0 {
			if seconds, err := cutter.Probe(ctx, *file); err != nil {
				a.logger.WithError(err).Warn("Could not read video duration")
			} else {
				job.Duration = seconds
			}
		}
		trimmer = cutter
	}

	tr, err := timeutil.ParseRange(*start, *end, job.Duration)
	if err != nil {
		return err
	}
	job.TimeRange = tr

	if job.SourceType == models.SourceTypeFile && tr.End != nil {
		if f := transcoder.CheckFeasibility(job.Size); f.Warning != "" {
			fmt.Fprintln(a.stderr, f.Warning)
		}
	}
	if seconds := analysedSeconds(job); seconds > 0 {
		fmt.Fprintf(a.stderr, "Estimated usage: %s\n", a.pricing().Estimate(seconds).Summary)
	}

	store := a.store(*historyPath)
	statuses := &statusPrinter{w: a.stderr}
	processor := jobs.NewProcessor(jobs.Config{
		Sources:  localSources{},
		Trimmer:  trimmer,
		Analyzer: a.analyzer(*proxyURL),
		History: func(string) history.Store {
			return store
		},
		Statuses:     statuses,
		Credential:   a.credential(*apiKey, *session),
		SummaryLimit: a.cfg.History.SummaryLimit,
		TempDir:      a.cfg.Transcoder.TempDir,
		Logger:       a.logger,
	})

	if err := processor.Handle(ctx, job); err != nil {
		return err
	}

	last := statuses.Last()
	if last.Status != models.JobStatusCompleted {
		return errors.New(last.Error)
	}

	entry, err := store.Get(ctx, last.HistoryID)
	if err != nil {
		return err
	}
	if *asJSON {
		return writeJSON(a.stdout, entry)
	}
	a.printEntry(entry)
	a.printf("Saved as %s in %s\n", entry.ID, store.Path())
	return nil
}

// describeFile validates a local video and records it on the job
func (a *app) describeFile(job *models.AnalysisJob, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	head := make([]byte, transcoder.HeaderSize)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return err
	}

	mimeType, err := transcoder.ValidateVideoFile(filepath.Base(path), info.Size(), head[:n])
	if err != nil {
		return err
	}

	job.SourceType = models.SourceTypeFile
	job.ObjectKey = path
	job.FileName = filepath.Base(path)
	job.MIMEType = mimeType
	job.Size = info.Size()
	return nil
}

// analysedSeconds is the length of the requested span, or 0 when unknown
func analysedSeconds(job *models.AnalysisJob) float64 {
	end := job.Duration
	if job.TimeRange.End != nil {
		end = *job.TimeRange.End
	}
	return end - job.TimeRange.Start
}

func (a *app) printEntry(entry *models.HistoryEntry) {
	a.printf("%s  %s\n", entry.CreatedAt.Local().Format("2006-01-02 15:04"), describeSource(entry.VideoSource))
	if entry.PlayerName != "" {
		a.printf("  Player:     %s (%s)\n", entry.PlayerName, entry.PlayerDescription)
	} else {
		a.printf("  Player:     %s\n", entry.PlayerDescription)
	}
	if entry.EndTime != nil {
		a.printf("  Segment:    %s - %s\n", timeutil.FormatSeconds(entry.StartTime), timeutil.FormatSeconds(*entry.EndTime))
	}
	if entry.Analysis == nil {
		return
	}

	result := entry.Analysis
	a.printf("  Overall:    %.1f / 10\n", float64(result.OverallScore))
	s := entry.Summary()
	for _, p := range []struct {
		label string
		score *float64
	}{
		{"Technical", s.Technical},
		{"Tactical", s.Tactical},
		{"Physicality", s.Physicality},
	} {
		if p.score != nil {
			a.printf("  %-11s %.1f\n", p.label+":", *p.score)
		}
	}
	if result.Confidence.Score != "" {
		a.printf("  Confidence: %s", result.Confidence.Score)
		if result.Confidence.Reason != "" {
			a.printf(" (%s)", result.Confidence.Reason)
		}
		a.printf("\n")
	}
	if result.ProgressNotes != "" {
		a.printf("  Progress:   %s\n", result.ProgressNotes)
	}
}

func describeSource(src models.VideoSourceDescriptor) string {
	switch src.Type {
	case models.SourceTypeYouTube:
		return "youtube:" + src.VideoID
	case models.SourceTypeFile:
		return "file:" + src.FileName
	default:
		return "unknown source"
	}
}

func (a *app) history(ctx context.Context, args []string) error {
	if len(args) == 0 {
		args = []string{"list"}
	}
	sub, rest := args[0], args[1:]

	fs := a.flags("history " + sub)
	historyPath := fs.String("history", "", "history file")
	limit := fs.Int("limit", 0, "show at most this many entries (0 for all)")
	output := fs.String("o", "", "export destination (default stdout)")
	if err := parse(fs, rest); err != nil {
		return err
	}
	store := a.store(*historyPath)

	switch sub {
	case "list":
		entries, err := store.List(ctx)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			a.printf("No saved analyses in %s\n", store.Path())
			return nil
		}
		if *limit > 0 && len(entries) > *limit {
			entries = entries[:*limit]
		}
		for _, entry := range entries {
			a.printf("%s\n", entry.ID)
			a.printEntry(entry)
			a.printf("\n")
		}
		return nil

	case "show":
		if fs.NArg() != 1 {
			return errors.New("history show needs an entry id")
		}
		entry, err := store.Get(ctx, fs.Arg(0))
		if err != nil {
			return err
		}
		return writeJSON(a.stdout, entry)

	case "delete":
		if fs.NArg() != 1 {
			return errors.New("history delete needs an entry id")
		}
		if err := store.Delete(ctx, fs.Arg(0)); err != nil {
			return err
		}
		a.printf("Deleted %s\n", fs.Arg(0))
		return nil

	case "export":
		data, err := store.Export(ctx)
		if err != nil {
			return err
		}
		if *output == "" {
			_, err = a.stdout.Write(append(data, '\n'))
			return err
		}
		if err := os.WriteFile(*output, data, 0o644); err != nil {
			return err
		}
		a.printf("Exported history to %s\n", *output)
		return nil

	case "clear":
		if err := store.Clear(ctx); err != nil {
			return err
		}
		a.printf("Cleared %s\n", store.Path())
		return nil

	default:
		return fmt.Errorf("unknown history command %q (list, show, delete, export, clear)", sub)
	}
}

func (a *app) estimate(args []string) error {
	fs := a.flags("estimate")
	seconds := fs.Float64("seconds", 0, "clip length in seconds")
	start := fs.String("start", "", "segment start, MM:SS")
	end := fs.String("end", "", "segment end, MM:SS")
	if err := parse(fs, args); err != nil {
		return err
	}

	length := *seconds
	if *start != "" || *end != "" {
		tr, err := timeutil.ParseRange(*start, *end, 0)
		if err != nil {
			return err
		}
		length = *tr.End - tr.Start
	}
	if length <= 0 {
		return errors.New("give -seconds or -start and -end")
	}

	est := a.pricing().Estimate(length)
	a.printf("Duration: %s\n", est.Duration)
	a.printf("Tokens:   %s\n", est.TokensLabel)
	a.printf("Cost:     %s\n", est.CostLabel)
	return nil
}

func (a *app) checkKey(ctx context.Context, args []string) error {
	fs := a.flags("check-key")
	apiKey := fs.String("api-key", "", "Gemini API key (default $GEMINI_API_KEY)")
	model := fs.String("model", a.cfg.Gemini.DefaultModel, "model to check against")
	if err := parse(fs, args); err != nil {
		return err
	}

	settings := a.cfg.Gemini
	if *apiKey != "" {
		settings.APIKey = *apiKey
	}
	client, err := gemini.NewClient(gemini.FromSettings(settings, 0), gemini.WithHTTPClient(a.httpClient), gemini.WithLogger(a.logger))
	if err != nil {
		return err
	}

	valid, err := client.CheckKey(ctx, gemini.ResolveModel(*model))
	if err != nil {
		return fmt.Errorf("key check failed: %s", apperror.Message(err))
	}
	if !valid {
		return errors.New("API key was rejected")
	}
	a.printf("API key is valid for %s\n", gemini.ResolveModel(*model))
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
