package pipeline

import (
	"github.com/skillsenselab/chorus/transcription"
)

// ParticleInfo is one known discourse marker in the registry.
type ParticleInfo struct {
	// Form is the particle's written form.
	Form string
	// Phonemes are the phoneme sequences that realize it.
	Phonemes []string
	// Region is the regional grouping the particle belongs to.
	Region string
}

// particleRegistry is the fixed set of short discourse markers the
// candidate scan matches phoneme sequences against.
var particleRegistry = []ParticleInfo{
	{Form: "la", Phonemes: []string{"l", "a"}, Region: "Malaysian/Singaporean English"},
	{Form: "lor", Phonemes: []string{"l", "o", "r"}, Region: "Malaysian/Singaporean English"},
	{Form: "ah", Phonemes: []string{"a", "h"}, Region: "Malaysian/Singaporean English"},
	{Form: "meh", Phonemes: []string{"m", "e", "h"}, Region: "Cantonese English"},
	{Form: "ja", Phonemes: []string{"j", "a"}, Region: "German English"},
	{Form: "na", Phonemes: []string{"n", "a"}, Region: "Indian English"},
}

// ParticleRegistry returns a copy of the known particle registry.
func ParticleRegistry() []ParticleInfo {
	return append([]ParticleInfo(nil), particleRegistry...)
}

// timingAnomaly is a phoneme segment isolated by silence gaps or low
// confidence, worth presenting to the candidate scan.
type timingAnomaly struct {
	Phonemes   []string
	Start      float64
	End        float64
	Confidence float64
}

// findTimingAnomalies scans a phoneme stream for segments bounded by
// silence gaps of at least gapThreshold seconds, or whose confidence
// sits below confidenceFloor. These segments are candidates for
// discourse particles the backends dropped from their transcripts.
func findTimingAnomalies(timing []transcription.PhonemeEvent, gapThreshold, confidenceFloor float64) []timingAnomaly {
	if len(timing) == 0 {
		return nil
	}

	// Split the stream into segments at silence gaps.
	var segments [][]transcription.PhonemeEvent
	current := []transcription.PhonemeEvent{timing[0]}
	for i := 1; i < len(timing); i++ {
		gap := timing[i].Start - timing[i-1].End
		if gap >= gapThreshold {
			segments = append(segments, current)
			current = []transcription.PhonemeEvent{timing[i]}
			continue
		}
		current = append(current, timing[i])
	}
	segments = append(segments, current)

	var anomalies []timingAnomaly
	for i, seg := range segments {
		// A segment counts when it is isolated on both sides (interior
		// segments between gaps) or carries low-confidence phonemes.
		isolated := i > 0 && i < len(segments)-1
		lowConfidence := false
		total := 0.0
		for _, ev := range seg {
			total += ev.Confidence
			if ev.Confidence < confidenceFloor {
				lowConfidence = true
			}
		}
		if !isolated && !lowConfidence {
			continue
		}

		anomaly := timingAnomaly{
			Start:      seg[0].Start,
			End:        seg[len(seg)-1].End,
			Confidence: total / float64(len(seg)),
		}
		for _, ev := range seg {
			anomaly.Phonemes = append(anomaly.Phonemes, ev.Phoneme)
		}
		anomalies = append(anomalies, anomaly)
	}
	return anomalies
}

// particlesFromArgs converts a structured reply's particle list into
// typed particles.
func particlesFromArgs(items []map[string]any) []Particle {
	particles := make([]Particle, 0, len(items))
	for _, item := range items {
		form := argString(item, "candidateForm")
		if form == "" {
			form = argString(item, "surfaceForm")
		}
		if form == "" {
			continue
		}
		particles = append(particles, Particle{
			SurfaceForm:           form,
			SourcePhonemes:        argStringSlice(item, "sourcePhonemes"),
			Confidence:            argFloat(item, "confidence"),
			InsertAfterWordIndex:  argInt(item, "wordIndex"),
			InsertAfterCharOffset: argInt(item, "charOffset"),
			Region:                argString(item, "region"),
		})
	}
	return particles
}
