package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/skillsenselab/chorus/generation"
	"github.com/skillsenselab/chorus/logger"
	"github.com/skillsenselab/chorus/observability"
)

// StageSpec bundles everything that varies between stages: the request
// builder, the required output fields, the fallback value, and the
// merge step. Stages are data; the Runner is the only control flow.
type StageSpec struct {
	// Name identifies the stage in logs and the stage log.
	Name string
	// Build constructs the generation request from the current context.
	// Pure function; no network.
	Build func(*Context) generation.Request
	// Required lists the argument names the structured reply must carry.
	Required []string
	// Fallback computes the deterministic no-network result merged on
	// any failure. Pure function of the current context.
	Fallback func(*Context) map[string]any
	// Apply merges a validated (or fallback) argument map into the
	// context.
	Apply func(*Context, map[string]any)
}

// Runner executes stages against a generation client, converting every
// failure mode into the stage's fallback. It never returns an error:
// a stage invocation always settles as Succeeded or Failed-with-fallback.
type Runner struct {
	gen     generation.Generator
	metrics *observability.Metrics
	log     *logger.Logger
}

// NewRunner creates a stage runner over the generation client.
func NewRunner(gen generation.Generator) *Runner {
	return &Runner{
		gen: gen,
		log: logger.WithComponent("pipeline"),
	}
}

// SetMetrics attaches metric instruments. Nil metrics are skipped.
func (r *Runner) SetMetrics(m *observability.Metrics) {
	r.metrics = m
}

// Run executes one stage: build, send, validate, merge. Any failure
// (unconfigured client, transport error, timeout, missing required
// field) merges the fallback instead. There is no in-stage retry.
func (r *Runner) Run(ctx context.Context, spec StageSpec, pctx *Context) {
	start := time.Now()

	ctx, span := observability.StartSpan(ctx, observability.SpanPipelineStage)
	defer span.End()
	observability.SetSpanAttribute(ctx, observability.AttrStage, spec.Name)

	args, reason := r.invoke(ctx, spec, pctx)
	ok := reason == ""
	if !ok {
		args = spec.Fallback(pctx)
	}

	spec.Apply(pctx, args)
	pctx.logOutcome(spec.Name, ok, reason)

	elapsed := time.Since(start)
	observability.SetSpanAttribute(ctx, observability.AttrStatus, ok)
	if r.metrics != nil {
		r.metrics.RecordStage(ctx, spec.Name, ok, elapsed)
	}
	if ok {
		r.log.Debug("stage succeeded", logger.Fields(
			logger.FieldStage, spec.Name,
			logger.FieldDuration, elapsed.String(),
		))
	} else {
		r.log.Info("stage fell back", logger.Fields(
			logger.FieldStage, spec.Name,
			"reason", reason,
			logger.FieldDuration, elapsed.String(),
		))
	}
}

// invoke performs the generation call and required-field validation.
// An empty reason means success.
func (r *Runner) invoke(ctx context.Context, spec StageSpec, pctx *Context) (map[string]any, string) {
	if !r.gen.Configured() {
		return nil, "generation client not configured"
	}

	req := spec.Build(pctx)
	result, err := r.gen.Generate(ctx, req)
	if err != nil {
		return nil, fmt.Sprintf("generation call failed: %v", err)
	}
	if result.Call == nil {
		return nil, "response carried no structured call"
	}

	for _, field := range spec.Required {
		if _, present := result.Call.Args[field]; !present {
			return nil, fmt.Sprintf("response missing required field %q", field)
		}
	}
	return result.Call.Args, ""
}

// --- argument coercion helpers ---

func argString(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func argFloat(args map[string]any, key string) float64 {
	switch v := args[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

func argInt(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func argStringSlice(args map[string]any, key string) []string {
	switch v := args[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func argMapSlice(args map[string]any, key string) []map[string]any {
	switch v := args[key].(type) {
	case []map[string]any:
		return v
	case []any:
		out := make([]map[string]any, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}
