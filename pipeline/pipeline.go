package pipeline

import (
	"context"
	"sync"

	"github.com/skillsenselab/chorus/generation"
	"github.com/skillsenselab/chorus/logger"
	"github.com/skillsenselab/chorus/observability"
	"github.com/skillsenselab/chorus/transcription"
	"github.com/skillsenselab/chorus/websearch"
)

// Options is the pipeline's tunable policy.
type Options struct {
	// SpeechContext is the default free-text setting description.
	SpeechContext string
	// PhonemeBackend names the backend whose phoneme timing feeds
	// particle detection.
	PhonemeBackend string
	// GapThreshold is the minimum inter-phoneme silence gap, in
	// seconds, for a segment to count as isolated.
	GapThreshold float64
	// ConfidenceFloor marks phonemes below it as particle candidates.
	ConfidenceFloor float64
	// MaxQueries caps search queries per request.
	MaxQueries int
}

func (o *Options) applyDefaults() {
	if o.SpeechContext == "" {
		o.SpeechContext = "casual conversation"
	}
	if o.GapThreshold <= 0 {
		o.GapThreshold = 0.05
	}
	if o.ConfidenceFloor <= 0 {
		o.ConfidenceFloor = 0.5
	}
	if o.MaxQueries <= 0 {
		o.MaxQueries = 3
	}
}

// Pipeline chains the analysis stages over a dispatch envelope. The
// stages run strictly sequentially; only the web-validation searches
// fan out internally.
type Pipeline struct {
	runner *Runner
	search websearch.Searcher
	opts   Options
	log    *logger.Logger
}

// New creates a pipeline over the generation and search clients.
func New(gen generation.Generator, search websearch.Searcher, opts Options) *Pipeline {
	opts.applyDefaults()
	return &Pipeline{
		runner: NewRunner(gen),
		search: search,
		opts:   opts,
		log:    logger.WithComponent("pipeline"),
	}
}

// SetMetrics attaches metric instruments to the stage runner.
func (p *Pipeline) SetMetrics(m *observability.Metrics) {
	p.runner.SetMetrics(m)
}

// Run executes the full chain: consensus through final assembly.
func (p *Pipeline) Run(ctx context.Context, env *transcription.DispatchEnvelope, speechContext string, override []Particle) *Context {
	pctx := p.RunConsensus(ctx, env, speechContext)
	p.RunParticles(ctx, pctx, override)
	return pctx
}

// RunConsensus executes consensus, search analysis, and web
// validation. This is the /transcribe-consensus surface.
func (p *Pipeline) RunConsensus(ctx context.Context, env *transcription.DispatchEnvelope, speechContext string) *Context {
	ctx, span := observability.StartSpan(ctx, observability.SpanPipelineRun)
	defer span.End()

	if speechContext == "" {
		speechContext = p.opts.SpeechContext
	}
	pctx := &Context{
		Envelope:      env,
		SpeechContext: speechContext,
		PhonemeTiming: env.PhonemeTiming(p.opts.PhonemeBackend),
	}

	// Per-backend alternatives for human review; the phoneme backend's
	// output is timing input, not a competing transcript.
	variants := make(map[string]string)
	for name, transcript := range env.Transcripts() {
		if name != p.opts.PhonemeBackend {
			variants[name] = transcript
		}
	}
	pctx.Variants = variants

	p.runner.Run(ctx, consensusStage(), pctx)
	p.runner.Run(ctx, searchStage(p.opts.MaxQueries), pctx)
	p.runWebValidation(ctx, pctx)

	return pctx
}

// RunParticles executes particle detection and final assembly over a
// prior consensus result. A non-empty override replaces the candidate
// scan entirely. This is the /transcribe-with-particles surface.
func (p *Pipeline) RunParticles(ctx context.Context, pctx *Context, override []Particle) {
	ctx, span := observability.StartSpan(ctx, observability.SpanPipelineRun)
	defer span.End()

	if pctx.ValidatedTranscript == "" {
		pctx.ValidatedTranscript = pctx.ConsensusTranscript
	}

	switch {
	case len(override) > 0:
		pctx.ParticleCandidates = override
		pctx.logOutcome(StageParticleScan, true, "human override supplied")
	case len(pctx.PhonemeTiming) == 0:
		// No timing input means no candidates; placements are never
		// invented.
		pctx.ParticleCandidates = nil
		pctx.logOutcome(StageParticleScan, true, "no phoneme timing available")
	default:
		anomalies := findTimingAnomalies(pctx.PhonemeTiming, p.opts.GapThreshold, p.opts.ConfidenceFloor)
		p.runner.Run(ctx, particleScanStage(anomalies), pctx)
	}

	if len(pctx.ParticleCandidates) == 0 {
		pctx.DetectedParticles = []Particle{}
		pctx.logOutcome(StageParticlePlacement, true, "no candidates to place")
	} else {
		p.runner.Run(ctx, placementStage(), pctx)
	}

	p.runner.Run(ctx, finalStage(), pctx)
}

// runWebValidation performs the bounded search fan-out and the single
// validation call. An empty query list is a valid terminal state that
// triggers no network calls at all.
func (p *Pipeline) runWebValidation(ctx context.Context, pctx *Context) {
	if len(pctx.SearchQueries) == 0 {
		pctx.ValidatedTranscript = pctx.ConsensusTranscript
		pctx.logOutcome(StageWebValidation, true, "no search queries")
		return
	}
	if p.search == nil || !p.search.Configured() {
		pctx.ValidatedTranscript = pctx.ConsensusTranscript
		pctx.logOutcome(StageWebValidation, false, "search client not configured")
		return
	}

	// Same fan-out/fan-in discipline as the dispatch phase: each query
	// settles on its own, failures are isolated per query.
	results := make([]*websearch.SearchResult, len(pctx.SearchQueries))
	var wg sync.WaitGroup
	for i, query := range pctx.SearchQueries {
		wg.Add(1)
		go func(i int, query string) {
			defer wg.Done()
			result, err := p.search.Search(ctx, query, 0)
			if err != nil {
				p.log.Warn("search query failed", logger.Fields(
					"query", query,
					logger.FieldError, err.Error(),
				))
				return
			}
			results[i] = result
		}(i, query)
	}
	wg.Wait()

	evidence := make([]websearch.SearchResult, 0, len(results))
	for _, r := range results {
		if r != nil {
			evidence = append(evidence, *r)
		}
	}
	if len(evidence) == 0 {
		// Validation never degrades the transcript.
		pctx.ValidatedTranscript = pctx.ConsensusTranscript
		pctx.logOutcome(StageWebValidation, false, "every search query failed")
		return
	}

	pctx.SearchEvidence = evidence
	p.runner.Run(ctx, validationStage(), pctx)
}
