// Package analysis runs one coaching analysis end to end: it picks the
// provider path for the caller's credential, gets the video in front of the
// model, sends the prompt and parses the structured result.
package analysis

import (
	"context"
	"math"
	"time"

	"github.com/smashers-ai/smashers/internal/apperror"
	"github.com/smashers-ai/smashers/internal/gemini"
	"github.com/smashers-ai/smashers/internal/logging"
	"github.com/smashers-ai/smashers/internal/metrics"
	"github.com/smashers-ai/smashers/internal/prompt"
	"github.com/smashers-ai/smashers/internal/timeutil"
	"github.com/smashers-ai/smashers/internal/tracing"
	"github.com/smashers-ai/smashers/pkg/models"
)

// Status strings reported by Analyze besides the uploader's own phases
const (
	StatusFetchingMetadata = "fetching-metadata"
	StatusGenerating       = "generating"
)

// Request is everything one analysis needs
type Request struct {
	Credential        Credential
	Source            VideoSource
	PlayerDescription string
	History           []models.AnalysisSummary
	TimeRange         *models.TimeRange
	Duration          float64 // seconds, 0 when unknown
	Model             string
	OnStatus          gemini.StatusFunc
}

// Config wires an Analyzer
type Config struct {
	Direct  BackendFactory
	Proxied BackendFactory
	Pricing timeutil.Pricing
	Logger  *logging.Logger
}

// Analyzer coordinates upload, prompt and generation
type Analyzer struct {
	direct  BackendFactory
	proxied BackendFactory
	pricing timeutil.Pricing
	logger  *logging.Logger
}

// New creates an analyzer. Missing factories fall back to production
// endpoints for direct keys and reject proxied credentials.
func New(cfg Config) *Analyzer {
	a := &Analyzer{
		direct:  cfg.Direct,
		proxied: cfg.Proxied,
		pricing: cfg.Pricing,
		logger:  logging.OrNop(cfg.Logger),
	}
	if a.direct == nil {
		a.direct = DirectFactory(gemini.DefaultConfig(""), TransportREST, nil, cfg.Logger)
	}
	if a.proxied == nil {
		a.proxied = ProxyFactory("", nil, cfg.Logger)
	}
	if a.pricing.TokensPerSecond <= 0 {
		a.pricing = timeutil.DefaultPricing()
	}
	return a
}

// Analyze runs the analysis. Every failure is terminal and carries an apperror kind.
func (a *Analyzer) Analyze(ctx context.Context, req Request) (result *models.AnalysisResult, err error) {
	span, ctx := tracing.StartSpan(ctx, "analysis.Analyze")
	defer tracing.FinishSpan(span)

	sourceType := "unknown"
	if req.Source != nil {
		sourceType = req.Source.Type()
	}
	model := gemini.ResolveModel(req.Model)
	tracing.SetTag(span, "source", sourceType)
	tracing.SetTag(span, "credential", req.Credential.Mode().String())
	tracing.SetTag(span, "model", model)

	start := time.Now()
	defer func() {
		metrics.RecordAnalysis(sourceType, req.Credential.Mode().String(), metrics.Status(err), time.Since(start).Seconds())
		if err != nil {
			tracing.LogError(span, err)
			metrics.RecordError("analysis", string(apperror.KindOf(err)))
		}
	}()

	report := func(status string) {
		tracing.LogEvent(span, status)
		if req.OnStatus != nil {
			req.OnStatus(status)
		}
	}

	backend, err := a.backend(ctx, req.Credential)
	if err != nil {
		return nil, err
	}

	var parts []gemini.Part
	switch src := req.Source.(type) {
	case LinkSource:
		report(StatusFetchingMetadata)
		var at float64
		if req.TimeRange != nil {
			at = req.TimeRange.Start
		}
		parts = append(parts, gemini.FilePart(timeutil.WatchURL(src.ID, at), gemini.DefaultVideoMIMEType))

	case FileSource:
		file, err := a.upload(ctx, backend, src, report)
		if err != nil {
			return nil, err
		}
		mimeType := src.MIMEType
		if mimeType == "" {
			mimeType = file.MIMEType
		}
		parts = append(parts, gemini.FilePart(file.URI, mimeType))

	default:
		return nil, apperror.New(apperror.KindInvalidSourceFormat, "Invalid video data type")
	}

	parts = append(parts, gemini.TextPart(prompt.Build(prompt.Input{
		PlayerDescription: req.PlayerDescription,
		History:           req.History,
		TimeRange:         req.TimeRange,
		Duration:          req.Duration,
	})))

	a.recordEstimate(req)

	report(StatusGenerating)
	resp, err := backend.Generate(ctx, model, gemini.NewRequest(parts...))
	if err != nil {
		return nil, err
	}

	result, err = gemini.ParseResponse(resp)
	if err != nil {
		return nil, err
	}

	fields := map[string]interface{}{
		"source":        sourceType,
		"credential":    req.Credential.Mode().String(),
		"model":         model,
		"overall_score": float64(result.OverallScore),
		"duration":      time.Since(start).String(),
	}
	if formula, ok := formulaScore(result); ok {
		drift := float64(result.OverallScore) - formula
		fields["formula_score"] = formula
		fields["score_drift"] = drift
		if math.Abs(drift) > prompt.OverallAdjustment+0.05 {
			a.logger.WithFields(fields).Warn("Analysis completed with an overall score outside the weighted formula range")
			return result, nil
		}
	}
	a.logger.WithFields(fields).Info("Analysis completed")

	return result, nil
}

// formulaScore recomputes the weighted overall from the pillar means
func formulaScore(result *models.AnalysisResult) (float64, bool) {
	technical, ok := result.TechnicalSkills.Score()
	if !ok {
		return 0, false
	}
	tactical, ok := result.TacticalSkills.Score()
	if !ok {
		return 0, false
	}
	physicality, ok := result.Physicality.Score()
	if !ok {
		return 0, false
	}
	return prompt.WeightedOverall(technical, tactical, physicality), true
}

func (a *Analyzer) backend(ctx context.Context, cred Credential) (Backend, error) {
	if !cred.Usable() {
		if cred.Mode() == CredentialProxied {
			return nil, apperror.New(apperror.KindMissingCredential, "Sign in to use the shared analysis service")
		}
		return nil, apperror.New(apperror.KindMissingCredential, "API key is required. Please add your Gemini API key in Settings.")
	}

	switch cred.Mode() {
	case CredentialDirect:
		return a.direct(ctx, cred.secret)
	default:
		return a.proxied(ctx, cred.secret)
	}
}

func (a *Analyzer) upload(ctx context.Context, backend Backend, src FileSource, report func(string)) (*gemini.File, error) {
	f, err := gemini.OpenFile(src.Path)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindUploadInit, "Failed to read video file", err)
	}
	defer f.Close()

	if src.DisplayName != "" {
		f.DisplayName = src.DisplayName
	}
	if src.MIMEType != "" {
		f.MIMEType = src.MIMEType
	}

	return backend.Upload(ctx, f, gemini.StatusFunc(report))
}

// recordEstimate tracks the expected token spend for the analysed span
func (a *Analyzer) recordEstimate(req Request) {
	seconds := req.Duration
	if tr := req.TimeRange; tr != nil {
		end := seconds
		if tr.End != nil && *tr.End > 0 {
			end = *tr.End
		}
		seconds = end - tr.Start
	}
	if seconds <= 0 {
		return
	}
	tokens := a.pricing.Tokens(seconds)
	metrics.RecordEstimate(tokens, a.pricing.Cost(tokens))
}
