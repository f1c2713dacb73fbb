package server

import (
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/skillsenselab/chorus/errors"
	"github.com/skillsenselab/chorus/logger"
	"github.com/skillsenselab/chorus/pipeline"
	"github.com/skillsenselab/chorus/transcription"
	"github.com/skillsenselab/chorus/validation"
)

// API bundles the transcription handlers and their collaborators.
type API struct {
	service    string
	registry   *transcription.Registry
	gate       *transcription.HealthGate
	dispatcher *transcription.Dispatcher
	pipeline   *pipeline.Pipeline
	log        *logger.Logger
}

// NewAPI creates the handler set over the dispatch and pipeline layers.
func NewAPI(service string, registry *transcription.Registry, gate *transcription.HealthGate, dispatcher *transcription.Dispatcher, p *pipeline.Pipeline) *API {
	return &API{
		service:    service,
		registry:   registry,
		gate:       gate,
		dispatcher: dispatcher,
		pipeline:   p,
		log:        logger.WithComponent("api"),
	}
}

// Register mounts all routes on the Gin engine.
func (a *API) Register(engine *gin.Engine) {
	engine.GET("/health", a.handleHealth)
	engine.GET("/models", a.handleModels)
	engine.POST("/transcribe", a.handleTranscribe)
	engine.POST("/transcribe-consensus", a.handleTranscribeConsensus)
	engine.POST("/transcribe-with-particles", a.handleTranscribeWithParticles)
}

// handleHealth probes every registered backend and reports the overall
// status: healthy when all respond, degraded when some do, and a 503
// when none do.
func (a *API) handleHealth(c *gin.Context) {
	descriptors := a.registry.Descriptors()
	healthy := a.gate.Check(c.Request.Context(), descriptors)

	healthySet := make(map[string]bool, len(healthy))
	for _, name := range healthy {
		healthySet[name] = true
	}

	backends := make(map[string]string, len(descriptors))
	for _, d := range descriptors {
		if healthySet[d.Name] {
			backends[d.Name] = "healthy"
		} else {
			backends[d.Name] = "unreachable"
		}
	}

	status := "healthy"
	switch {
	case len(healthy) == 0:
		status = "unhealthy"
	case len(healthy) < len(descriptors):
		status = "degraded"
	}

	body := gin.H{
		"status":    status,
		"service":   a.service,
		"backends":  backends,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if status == "unhealthy" {
		c.JSON(503, body)
		return
	}
	RespondOK(c, body)
}

func (a *API) handleModels(c *gin.Context) {
	descriptors := a.registry.Descriptors()
	models := make([]gin.H, 0, len(descriptors))
	for _, d := range descriptors {
		models = append(models, gin.H{
			"name":     d.Name,
			"base_url": d.BaseURL,
			"endpoint": d.EndpointPath,
		})
	}
	RespondOK(c, gin.H{"models": models})
}

// transcribeInput is the common multipart payload of the POST endpoints.
type transcribeInput struct {
	payload            []byte
	filename           string
	models             []string
	includeDiagnostics bool
	speechContext      string
}

func (a *API) readTranscribeInput(c *gin.Context) (*transcribeInput, error) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return nil, apperrors.InvalidInput("file", "an audio file upload is required")
	}
	file, err := fileHeader.Open()
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	defer file.Close()
	payload, err := io.ReadAll(file)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	in := &transcribeInput{
		payload:       payload,
		filename:      fileHeader.Filename,
		speechContext: c.PostForm("context"),
	}
	if raw := formOrQuery(c, "models"); raw != "" {
		for _, name := range strings.Split(raw, ",") {
			if name = strings.TrimSpace(name); name != "" {
				in.models = append(in.models, name)
			}
		}
	}
	if raw := formOrQuery(c, "include_diagnostics"); raw != "" {
		in.includeDiagnostics, _ = strconv.ParseBool(raw)
	}
	return in, nil
}

func formOrQuery(c *gin.Context, key string) string {
	if v := c.PostForm(key); v != "" {
		return v
	}
	return c.Query(key)
}

// handleTranscribe runs the dispatch phase only and returns the raw
// per-backend envelope.
func (a *API) handleTranscribe(c *gin.Context) {
	in, err := a.readTranscribeInput(c)
	if err != nil {
		RespondWithError(c, err)
		return
	}

	env, err := a.dispatcher.Dispatch(c.Request.Context(), in.payload, in.filename, in.models, in.includeDiagnostics)
	if err != nil {
		RespondWithError(c, err)
		return
	}
	if env.NoHealthyBackends {
		RespondWithError(c, apperrors.ServiceUnavailable("transcription service"))
		return
	}
	RespondOK(c, env)
}

// consensusResponse is the researcher-facing result of the analysis
// chain through web validation.
type consensusResponse struct {
	Filename       string             `json:"filename"`
	Transcript     string             `json:"transcript"`
	AgreementScore float64            `json:"agreement_score"`
	PrimaryBackend string             `json:"primary_backend"`
	Alternatives   map[string]string  `json:"alternatives"`
	SearchQueries  []string           `json:"search_queries,omitempty"`
	Stages         []pipeline.Outcome `json:"stages"`
}

func (a *API) handleTranscribeConsensus(c *gin.Context) {
	in, err := a.readTranscribeInput(c)
	if err != nil {
		RespondWithError(c, err)
		return
	}

	env, err := a.dispatcher.Dispatch(c.Request.Context(), in.payload, in.filename, in.models, in.includeDiagnostics)
	if err != nil {
		RespondWithError(c, err)
		return
	}
	if env.NoHealthyBackends {
		RespondWithError(c, apperrors.ServiceUnavailable("transcription service"))
		return
	}

	pctx := a.pipeline.RunConsensus(c.Request.Context(), env, in.speechContext)

	if debug, _ := strconv.ParseBool(c.Query("debug")); debug {
		RespondOK(c, gin.H{
			"envelope": env,
			"analysis": pctx,
			"stages":   pctx.StageLog,
		})
		return
	}

	RespondOK(c, consensusResponse{
		Filename:       env.Filename,
		Transcript:     pctx.ValidatedTranscript,
		AgreementScore: pctx.AgreementScore,
		PrimaryBackend: pctx.PrimaryBackend,
		Alternatives:   pctx.Variants,
		SearchQueries:  pctx.SearchQueries,
		Stages:         pctx.StageLog,
	})
}

// particlesRequest carries a previously produced consensus result into
// the particle-detection and final-assembly stages.
type particlesRequest struct {
	ValidatedTranscript string                       `json:"validated_transcript" validate:"required"`
	ConsensusTranscript string                       `json:"consensus_transcript"`
	AgreementScore      float64                      `json:"agreement_score" validate:"gte=0,lte=1"`
	SpeechContext       string                       `json:"speech_context"`
	PhonemeTiming       []transcription.PhonemeEvent `json:"phoneme_timing"`
	ParticleOverride    []pipeline.Particle          `json:"particle_override"`
}

type particlesResponse struct {
	FinalTranscript   string              `json:"final_transcript"`
	CleanTranscript   string              `json:"clean_transcript"`
	DetectedParticles []pipeline.Particle `json:"detected_particles"`
	ConfidenceScore   float64             `json:"confidence_score"`
	Stages            []pipeline.Outcome  `json:"stages"`
}

func (a *API) handleTranscribeWithParticles(c *gin.Context) {
	var req particlesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondWithError(c, apperrors.InvalidInput("body", "request body must be valid JSON"))
		return
	}
	if err := validation.ValidateStruct(&req); err != nil {
		RespondWithError(c, err)
		return
	}

	pctx := &pipeline.Context{
		SpeechContext:       req.SpeechContext,
		ConsensusTranscript: req.ConsensusTranscript,
		ValidatedTranscript: req.ValidatedTranscript,
		AgreementScore:      req.AgreementScore,
		PhonemeTiming:       req.PhonemeTiming,
	}
	a.pipeline.RunParticles(c.Request.Context(), pctx, req.ParticleOverride)

	RespondOK(c, particlesResponse{
		FinalTranscript:   pctx.FinalTranscript,
		CleanTranscript:   pctx.CleanTranscript,
		DetectedParticles: pctx.DetectedParticles,
		ConfidenceScore:   pctx.ConfidenceScore,
		Stages:            pctx.StageLog,
	})
}
