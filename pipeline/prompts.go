package pipeline

import (
	"fmt"
	"sort"
	"strings"
)

// consensusPrompt asks for the most likely-correct transcript among
// the backend outputs.
func consensusPrompt(pctx *Context) string {
	var b strings.Builder
	b.WriteString("You are comparing transcripts of the same audio clip produced by different speech recognition systems.\n")
	if pctx.SpeechContext != "" {
		fmt.Fprintf(&b, "Speech setting: %s.\n", pctx.SpeechContext)
	}
	b.WriteString("\nTranscripts:\n")

	transcripts := pctx.Envelope.Transcripts()
	names := make([]string, 0, len(transcripts))
	for name := range transcripts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&b, "- %s: %q\n", name, transcripts[name])
	}

	b.WriteString("\nPick the transcript most likely to be correct, rate the overall agreement between systems from 0 to 1, and name the backend that produced the best transcript. Call select_consensus with your decision.")
	return b.String()
}

// searchPrompt asks for proper nouns and ambiguous terms worth
// web-verifying, as bounded search queries.
func searchPrompt(pctx *Context, maxQueries int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Transcript under review: %q\n", pctx.ConsensusTranscript)
	if pctx.SpeechContext != "" {
		fmt.Fprintf(&b, "Speech setting: %s.\n", pctx.SpeechContext)
	}
	fmt.Fprintf(&b, "\nIdentify proper nouns, place names, and ambiguous terms in the transcript that a web search could verify. Produce at most %d search queries. If nothing needs verification, return an empty query list. Call extract_search_queries with the queries and your reasoning.", maxQueries)
	return b.String()
}

// validationPrompt feeds the collected search evidence into a single
// correction request.
func validationPrompt(pctx *Context) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Original transcript: %q\n\nSearch evidence:\n", pctx.ConsensusTranscript)
	for _, ev := range pctx.SearchEvidence {
		fmt.Fprintf(&b, "Query: %s\n", ev.Query)
		if ev.Answer != "" {
			fmt.Fprintf(&b, "Answer: %s\n", ev.Answer)
		}
		for _, item := range ev.Results {
			fmt.Fprintf(&b, "- %s: %s\n", item.Title, item.Snippet)
		}
		b.WriteString("\n")
	}
	b.WriteString("Produce a validated transcript. Preserve the original length and meaning; change a term only when the evidence above clearly corrects it. Call validate_transcript with the result.")
	return b.String()
}

// candidatePrompt asks the model to match isolated phoneme segments
// against the known particle registry.
func candidatePrompt(pctx *Context, anomalies []timingAnomaly) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Transcript: %q\n", pctx.ValidatedTranscript)
	if pctx.SpeechContext != "" {
		fmt.Fprintf(&b, "Speech setting: %s.\n", pctx.SpeechContext)
	}

	b.WriteString("\nPhoneme stream with timing:\n")
	for _, ev := range pctx.PhonemeTiming {
		fmt.Fprintf(&b, "- %s [%.2fs-%.2fs] confidence %.2f\n", ev.Phoneme, ev.Start, ev.End, ev.Confidence)
	}

	if len(anomalies) > 0 {
		b.WriteString("\nIsolated segments (bounded by silence gaps or low confidence):\n")
		for _, a := range anomalies {
			fmt.Fprintf(&b, "- [%s] at %.2fs-%.2fs, mean confidence %.2f\n", strings.Join(a.Phonemes, " "), a.Start, a.End, a.Confidence)
		}
	}

	b.WriteString("\nKnown discourse particles:\n")
	for _, p := range particleRegistry {
		fmt.Fprintf(&b, "- %q (phonemes: %s, %s)\n", p.Form, strings.Join(p.Phonemes, " "), p.Region)
	}

	b.WriteString("\nThe transcript may be missing short discourse particles the recognition systems dropped. Match the isolated segments against the registry and return the plausible candidates with their phonemes, confidence, and the word index and character offset after which each would sit. An empty list is a valid answer. Call scan_particles with the candidates.")
	return b.String()
}

// placementPrompt asks for final insertion decisions over the
// candidate list.
func placementPrompt(pctx *Context) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Transcript: %q\n\nParticle candidates:\n", pctx.ValidatedTranscript)
	for _, c := range pctx.ParticleCandidates {
		fmt.Fprintf(&b, "- %q (phonemes: %s, confidence %.2f) after word %d\n",
			c.SurfaceForm, strings.Join(c.SourcePhonemes, " "), c.Confidence, c.InsertAfterWordIndex)
	}
	b.WriteString("\nDecide which candidates are genuine discourse particles and their final insertion positions in the transcript. Reject candidates that do not fit naturally. Call place_particles with the confirmed particles and their positions.")
	return b.String()
}

// finalPrompt asks for the clean and all-particles transcript variants
// plus an overall confidence.
func finalPrompt(pctx *Context) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Validated transcript: %q\n", pctx.ValidatedTranscript)
	fmt.Fprintf(&b, "Agreement between recognition systems: %.2f\n", pctx.AgreementScore)

	if len(pctx.DetectedParticles) > 0 {
		b.WriteString("Detected discourse particles:\n")
		for _, p := range pctx.DetectedParticles {
			fmt.Fprintf(&b, "- %q after word %d (confidence %.2f)\n", p.SurfaceForm, p.InsertAfterWordIndex, p.Confidence)
		}
	} else {
		b.WriteString("No discourse particles were detected.\n")
	}

	b.WriteString("\nProduce the final result: a clean transcript without particles, a transcript with every detected particle inserted at its position, and an overall confidence score from 0 to 1. Call assemble_final with all three.")
	return b.String()
}
