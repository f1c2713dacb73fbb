package pipeline

import (
	"sort"

	"github.com/skillsenselab/chorus/generation"
)

// Stage names as they appear in the stage log.
const (
	StageConsensus         = "consensus"
	StageSearchAnalysis    = "search_analysis"
	StageWebValidation     = "web_validation"
	StageParticleScan      = "particle_scan"
	StageParticlePlacement = "particle_placement"
	StageFinalAssembly     = "final_assembly"
)

// consensusStage picks the most likely-correct transcript. Fallback:
// the transcript of the lexicographically first successful backend,
// agreement zero.
func consensusStage() StageSpec {
	return StageSpec{
		Name: StageConsensus,
		Build: func(pctx *Context) generation.Request {
			return generation.Request{
				Prompt: consensusPrompt(pctx),
				Function: &generation.FunctionSpec{
					Name:        "select_consensus",
					Description: "Select the most likely-correct transcript",
					Parameters: map[string]any{
						"consensusTranscript": map[string]any{"type": "string"},
						"agreementScore":      map[string]any{"type": "number"},
						"primaryBackend":      map[string]any{"type": "string"},
					},
					Required: []string{"consensusTranscript", "agreementScore", "primaryBackend"},
				},
			}
		},
		Required: []string{"consensusTranscript", "agreementScore", "primaryBackend"},
		Fallback: func(pctx *Context) map[string]any {
			transcripts := pctx.Envelope.Transcripts()
			names := make([]string, 0, len(transcripts))
			for name := range transcripts {
				names = append(names, name)
			}
			sort.Strings(names)

			if len(names) == 0 {
				return map[string]any{
					"consensusTranscript": "",
					"agreementScore":      0.0,
					"primaryBackend":      "",
				}
			}
			first := names[0]
			return map[string]any{
				"consensusTranscript": transcripts[first],
				"agreementScore":      0.0,
				"primaryBackend":      first,
			}
		},
		Apply: func(pctx *Context, args map[string]any) {
			pctx.ConsensusTranscript = argString(args, "consensusTranscript")
			pctx.AgreementScore = argFloat(args, "agreementScore")
			pctx.PrimaryBackend = argString(args, "primaryBackend")
		},
	}
}

// searchStage identifies terms worth web-verifying. Fallback: empty
// query list, which is a valid terminal state.
func searchStage(maxQueries int) StageSpec {
	return StageSpec{
		Name: StageSearchAnalysis,
		Build: func(pctx *Context) generation.Request {
			return generation.Request{
				Prompt: searchPrompt(pctx, maxQueries),
				Function: &generation.FunctionSpec{
					Name:        "extract_search_queries",
					Description: "Extract search queries for uncertain terms",
					Parameters: map[string]any{
						"searchQueries":   map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
						"searchReasoning": map[string]any{"type": "string"},
					},
					Required: []string{"searchQueries", "searchReasoning"},
				},
			}
		},
		Required: []string{"searchQueries", "searchReasoning"},
		Fallback: func(pctx *Context) map[string]any {
			return map[string]any{
				"searchQueries":   []string{},
				"searchReasoning": "search analysis unavailable; proceeding without web validation",
			}
		},
		Apply: func(pctx *Context, args map[string]any) {
			queries := argStringSlice(args, "searchQueries")
			if len(queries) > maxQueries {
				queries = queries[:maxQueries]
			}
			pctx.SearchQueries = queries
			pctx.SearchReasoning = argString(args, "searchReasoning")
		},
	}
}

// validationStage turns collected search evidence into an optionally
// corrected transcript. Fallback: the consensus transcript unchanged.
func validationStage() StageSpec {
	return StageSpec{
		Name: StageWebValidation,
		Build: func(pctx *Context) generation.Request {
			return generation.Request{
				Prompt: validationPrompt(pctx),
				Function: &generation.FunctionSpec{
					Name:        "validate_transcript",
					Description: "Validate the transcript against search evidence",
					Parameters: map[string]any{
						"finalConsensus": map[string]any{"type": "string"},
					},
					Required: []string{"finalConsensus"},
				},
			}
		},
		Required: []string{"finalConsensus"},
		Fallback: func(pctx *Context) map[string]any {
			return map[string]any{"finalConsensus": pctx.ConsensusTranscript}
		},
		Apply: func(pctx *Context, args map[string]any) {
			validated := argString(args, "finalConsensus")
			if validated == "" {
				validated = pctx.ConsensusTranscript
			}
			pctx.ValidatedTranscript = validated
		},
	}
}

// particleScanStage matches isolated phoneme segments against the
// particle registry. Fallback: no candidates.
func particleScanStage(anomalies []timingAnomaly) StageSpec {
	return StageSpec{
		Name: StageParticleScan,
		Build: func(pctx *Context) generation.Request {
			return generation.Request{
				Prompt: candidatePrompt(pctx, anomalies),
				Function: &generation.FunctionSpec{
					Name:        "scan_particles",
					Description: "Match phoneme segments against known discourse particles",
					Parameters: map[string]any{
						"particlesFound": map[string]any{
							"type": "array",
							"items": map[string]any{
								"type": "object",
								"properties": map[string]any{
									"candidateForm":  map[string]any{"type": "string"},
									"sourcePhonemes": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
									"confidence":     map[string]any{"type": "number"},
									"wordIndex":      map[string]any{"type": "integer"},
									"charOffset":     map[string]any{"type": "integer"},
									"region":         map[string]any{"type": "string"},
								},
							},
						},
					},
					Required: []string{"particlesFound"},
				},
			}
		},
		Required: []string{"particlesFound"},
		Fallback: func(pctx *Context) map[string]any {
			return map[string]any{"particlesFound": []any{}}
		},
		Apply: func(pctx *Context, args map[string]any) {
			pctx.ParticleCandidates = particlesFromArgs(argMapSlice(args, "particlesFound"))
		},
	}
}

// placementStage confirms candidates and fixes their insertion
// positions. Fallback: no particles; placements are never fabricated.
func placementStage() StageSpec {
	return StageSpec{
		Name: StageParticlePlacement,
		Build: func(pctx *Context) generation.Request {
			return generation.Request{
				Prompt: placementPrompt(pctx),
				Function: &generation.FunctionSpec{
					Name:        "place_particles",
					Description: "Confirm particles and their insertion positions",
					Parameters: map[string]any{
						"detectedParticles": map[string]any{
							"type": "array",
							"items": map[string]any{
								"type": "object",
								"properties": map[string]any{
									"surfaceForm":    map[string]any{"type": "string"},
									"sourcePhonemes": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
									"confidence":     map[string]any{"type": "number"},
									"wordIndex":      map[string]any{"type": "integer"},
									"charOffset":     map[string]any{"type": "integer"},
									"region":         map[string]any{"type": "string"},
								},
							},
						},
						"particlePositions": map[string]any{
							"type":  "array",
							"items": map[string]any{"type": "integer"},
						},
					},
					Required: []string{"detectedParticles", "particlePositions"},
				},
			}
		},
		Required: []string{"detectedParticles", "particlePositions"},
		Fallback: func(pctx *Context) map[string]any {
			return map[string]any{
				"detectedParticles": []any{},
				"particlePositions": []any{},
			}
		},
		Apply: func(pctx *Context, args map[string]any) {
			particles := particlesFromArgs(argMapSlice(args, "detectedParticles"))

			// Positions, when provided, override the per-particle word
			// indices from the scan.
			if positions, ok := args["particlePositions"].([]any); ok {
				for i := range particles {
					if i < len(positions) {
						if pos, ok := positions[i].(float64); ok {
							particles[i].InsertAfterWordIndex = int(pos)
						}
					}
				}
			}
			pctx.DetectedParticles = particles
		},
	}
}

// finalStage produces the clean and all-particles variants plus the
// overall confidence. Fallback: validated transcript and the consensus
// agreement score.
func finalStage() StageSpec {
	return StageSpec{
		Name: StageFinalAssembly,
		Build: func(pctx *Context) generation.Request {
			return generation.Request{
				Prompt: finalPrompt(pctx),
				Function: &generation.FunctionSpec{
					Name:        "assemble_final",
					Description: "Assemble the final transcript variants",
					Parameters: map[string]any{
						"cleanTranscript": map[string]any{"type": "string"},
						"finalTranscript": map[string]any{"type": "string"},
						"confidenceScore": map[string]any{"type": "number"},
					},
					Required: []string{"finalTranscript", "confidenceScore"},
				},
			}
		},
		Required: []string{"finalTranscript", "confidenceScore"},
		Fallback: func(pctx *Context) map[string]any {
			return map[string]any{
				"cleanTranscript": pctx.ValidatedTranscript,
				"finalTranscript": pctx.ValidatedTranscript,
				"confidenceScore": pctx.AgreementScore,
			}
		},
		Apply: func(pctx *Context, args map[string]any) {
			clean := argString(args, "cleanTranscript")
			if clean == "" {
				clean = pctx.ValidatedTranscript
			}
			pctx.CleanTranscript = clean
			pctx.FinalTranscript = argString(args, "finalTranscript")
			pctx.ConfidenceScore = argFloat(args, "confidenceScore")
		},
	}
}
