// Package pipeline implements the sequential analysis chain over the
// dispatch results: consensus, search analysis, web validation,
// particle detection, and final assembly. Every stage degrades to a
// deterministic fallback, so the chain always terminates with the best
// already-available transcript.
package pipeline

import (
	"github.com/skillsenselab/chorus/transcription"
	"github.com/skillsenselab/chorus/websearch"
)

// Particle is one detected discourse particle with its placement.
type Particle struct {
	// SurfaceForm is the particle text as inserted (e.g., "la").
	SurfaceForm string `json:"surface_form"`
	// SourcePhonemes are the phonemes the candidate was built from.
	SourcePhonemes []string `json:"source_phonemes,omitempty"`
	// Confidence is the model's confidence in [0,1].
	Confidence float64 `json:"confidence"`
	// InsertAfterWordIndex is the zero-based word index the particle
	// follows in the validated transcript.
	InsertAfterWordIndex int `json:"insert_after_word_index"`
	// InsertAfterCharOffset is the character offset of the insertion.
	InsertAfterCharOffset int `json:"insert_after_char_offset"`
	// Region is the regional grouping (e.g., "Malaysian English").
	Region string `json:"region,omitempty"`
}

// Outcome records how one stage settled.
type Outcome struct {
	// Stage is the stage name.
	Stage string `json:"stage"`
	// OK is true when the stage merged real model output.
	OK bool `json:"ok"`
	// Reason explains the fallback. Empty when OK.
	Reason string `json:"reason,omitempty"`
}

// Context is the progressively-extended record threaded through the
// stages. Each stage writes only the fields it owns; consensus output
// is read-only input for everything after it.
type Context struct {
	// Envelope is the dispatch round feeding the chain.
	Envelope *transcription.DispatchEnvelope `json:"-"`
	// SpeechContext is the free-text setting description fed into
	// prompts.
	SpeechContext string `json:"speech_context,omitempty"`

	// Consensus stage output.
	ConsensusTranscript string  `json:"consensus_transcript"`
	AgreementScore      float64 `json:"agreement_score"`
	PrimaryBackend      string  `json:"primary_backend"`
	// Variants holds each backend's transcript for human review,
	// excluding the phoneme backend.
	Variants map[string]string `json:"transcription_variants,omitempty"`

	// Search-analysis stage output.
	SearchQueries   []string `json:"search_queries"`
	SearchReasoning string   `json:"search_reasoning,omitempty"`

	// Web-validation stage output.
	SearchEvidence      []websearch.SearchResult `json:"search_evidence,omitempty"`
	ValidatedTranscript string                   `json:"validated_transcript"`

	// Particle-detection stage output.
	PhonemeTiming      []transcription.PhonemeEvent `json:"phoneme_timing,omitempty"`
	ParticleCandidates []Particle                   `json:"particle_candidates,omitempty"`
	DetectedParticles  []Particle                   `json:"detected_particles"`

	// Final-assembly stage output.
	CleanTranscript string  `json:"clean_transcript"`
	FinalTranscript string  `json:"final_transcript"`
	ConfidenceScore float64 `json:"confidence_score"`

	// StageLog records every stage outcome in execution order.
	StageLog []Outcome `json:"stage_log"`
}

// logOutcome appends a stage outcome.
func (c *Context) logOutcome(stage string, ok bool, reason string) {
	c.StageLog = append(c.StageLog, Outcome{Stage: stage, OK: ok, Reason: reason})
}
