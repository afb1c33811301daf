// Package inference implements the top-level request pipeline: it resolves
// a function and variant, renders typed input into a provider request,
// consults the inference cache, executes the variant, and fires off
// persistence side effects — the same orchestration role the
// gateway's Gateway.Route played for a single proxied HTTP request,
// generalized from "pick a target and proxy" to "pick a function, a
// variant, and a chain of model bindings."
package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tensorzero/tensorzero-sub023/cache"
	"github.com/tensorzero/tensorzero-sub023/function"
	"github.com/tensorzero/tensorzero-sub023/internal/idutil"
	"github.com/tensorzero/tensorzero-sub023/internal/logging"
	"github.com/tensorzero/tensorzero-sub023/internal/metrics"
	"github.com/tensorzero/tensorzero-sub023/internal/tracing"
	"github.com/tensorzero/tensorzero-sub023/persist"
	"github.com/tensorzero/tensorzero-sub023/providers"
	"github.com/tensorzero/tensorzero-sub023/router"
	"github.com/tensorzero/tensorzero-sub023/store"
	"github.com/tensorzero/tensorzero-sub023/template"
	"github.com/tensorzero/tensorzero-sub023/values"
	"github.com/tensorzero/tensorzero-sub023/variant"
)

// Pipeline wires the function registry, variant executors, cache, and
// persistence writer into the single entry point the HTTP layer calls for
// every /inference request.
type Pipeline struct {
	Functions *function.Registry
	Variants  map[string]variant.Variant // variant name -> executor
	Engine    *template.Engine
	Cache     cache.Cache
	CacheMax  time.Duration
	Persist   *persist.Writer
}

// Request is one fully-resolved inference call.
type Request struct {
	FunctionName   string
	VariantName    string // empty selects via the function's experimentation policy
	Input          values.Input
	EpisodeID      idutil.ID
	CacheMaxAge    time.Duration // zero falls back to Pipeline.CacheMax; lookup is skipped when both are zero
	Dryrun         bool          // skip persistence when true
}

// Result is the outcome of one inference call.
type Result struct {
	InferenceID idutil.ID
	EpisodeID   idutil.ID
	VariantName string
	Output      values.Output
	CacheHit    bool
}

// Infer resolves req's function and variant, renders its input, consults
// the cache, executes the variant, and enqueues persistence rows. It
// never streams; see InferStream for the streaming counterpart.
func (p *Pipeline) Infer(ctx context.Context, req Request) (*Result, error) {
	fn, ok := p.Functions.Get(req.FunctionName)
	if !ok {
		return nil, fmt.Errorf("inference: unknown function %q", req.FunctionName)
	}

	var inputData interface{}
	if err := decodeInput(req.Input, &inputData); err != nil {
		return nil, err
	}
	if err := fn.ValidateInput(inputData); err != nil {
		return nil, err
	}

	variantName := req.VariantName
	if variantName == "" {
		variantName = fn.SelectVariant()
	}
	v, ok := p.Variants[variantName]
	if !ok {
		return nil, fmt.Errorf("inference: function %q: unknown variant %q", req.FunctionName, variantName)
	}

	ctx, span := tracing.StartInference(ctx, req.FunctionName, variantName)
	defer span.End()

	providerReq, err := p.render(variantName, req.Input)
	if err != nil {
		return nil, err
	}

	episodeID := req.EpisodeID
	if episodeID.IsZero() {
		episodeID = idutil.New()
	}
	inferenceID := idutil.New()

	maxAge := req.CacheMaxAge
	if maxAge <= 0 {
		maxAge = p.CacheMax
	}
	key := cache.Fingerprint(req.FunctionName, variantName, providerReq)
	if p.Cache != nil && maxAge > 0 {
		if entry, hit, err := p.Cache.Lookup(ctx, key, maxAge); err == nil && hit {
			metrics.CacheLookups.WithLabelValues("hit").Inc()
			out, err := toOutput(fn.Type, entry.Response)
			if err != nil {
				return nil, err
			}
			if !req.Dryrun && p.Persist != nil {
				p.enqueueCacheHit(req, inferenceID, episodeID, variantName, providerReq, entry.Response, out)
			}
			return &Result{InferenceID: inferenceID, EpisodeID: episodeID, VariantName: variantName, Output: out, CacheHit: true}, nil
		}
		metrics.CacheLookups.WithLabelValues("miss").Inc()
	}

	start := time.Now()
	resp, attempts, err := v.Execute(ctx, providerReq)
	latency := time.Since(start)
	if err != nil {
		// Every binding was exhausted: no Inference row exists to anchor
		// ModelInference rows to, so the failed attempts are not persisted.
		metrics.InferenceTotal.WithLabelValues(req.FunctionName, variantName, "error").Inc()
		return nil, fmt.Errorf("inference: executing function %q variant %q: %w", req.FunctionName, variantName, err)
	}

	metrics.InferenceTotal.WithLabelValues(req.FunctionName, variantName, "success").Inc()
	metrics.InferenceDuration.WithLabelValues(req.FunctionName, variantName).Observe(latency.Seconds())
	metrics.InferenceTokensInput.WithLabelValues(req.FunctionName, variantName).Add(float64(resp.Usage.PromptTokens))
	metrics.InferenceTokensOutput.WithLabelValues(req.FunctionName, variantName).Add(float64(resp.Usage.CompletionTokens))

	out, err := toOutput(fn.Type, resp)
	if err != nil {
		return nil, err
	}
	if err := fn.ValidateOutput(parsedOf(out)); err != nil {
		return nil, err
	}

	if p.Cache != nil && maxAge > 0 {
		_ = p.Cache.Write(ctx, key, &cache.Entry{Response: resp, WrittenAt: time.Now().UTC()})
	}

	if !req.Dryrun && p.Persist != nil {
		successIdx := -1
		for i, a := range attempts {
			if a.Response == resp {
				successIdx = i
				break
			}
		}
		inputJSON, _ := marshalInput(req.Input)
		outputJSON, _ := marshalOutput(out)
		p.Persist.EnqueueInference(store.InferenceRow{
			ID:           inferenceID,
			FunctionName: req.FunctionName,
			VariantName:  variantName,
			EpisodeID:    episodeID,
			Input:        inputJSON,
			Output:       outputJSON,
			CreatedAt:    time.Now().UTC(),
		})
		p.enqueueAttempts(fn.Type, inferenceID, episodeID, variantName, attempts, successIdx)
	}

	logging.FromContext(ctx).Info("inference complete",
		"function", req.FunctionName, "variant", variantName, "inference_id", inferenceID.String(), "latency_ms", latency.Milliseconds())

	return &Result{InferenceID: inferenceID, EpisodeID: episodeID, VariantName: variantName, Output: out}, nil
}

// InferStream is the streaming counterpart of Infer: it skips the cache
// entirely (a stream's chunks have no single cacheable Response) and
// returns the variant's normalized chunk channel directly.
func (p *Pipeline) InferStream(ctx context.Context, req Request) (<-chan providers.StreamChunk, error) {
	fn, ok := p.Functions.Get(req.FunctionName)
	if !ok {
		return nil, fmt.Errorf("inference: unknown function %q", req.FunctionName)
	}

	var inputData interface{}
	if err := decodeInput(req.Input, &inputData); err != nil {
		return nil, err
	}
	if err := fn.ValidateInput(inputData); err != nil {
		return nil, err
	}

	variantName := req.VariantName
	if variantName == "" {
		variantName = fn.SelectVariant()
	}
	v, ok := p.Variants[variantName]
	if !ok {
		return nil, fmt.Errorf("inference: function %q: unknown variant %q", req.FunctionName, variantName)
	}

	providerReq, err := p.render(variantName, req.Input)
	if err != nil {
		return nil, err
	}
	return v.ExecuteStream(ctx, providerReq)
}

// enqueueCacheHit persists the Inference row plus a single synthetic,
// Cached, attempt-0 ModelInference row for a request the cache answered
// without making any real provider call — I2's contract for scenario S4.
func (p *Pipeline) enqueueCacheHit(req Request, inferenceID, episodeID idutil.ID, variantName string, providerReq providers.Request, resp *providers.Response, out values.Output) {
	inputJSON, _ := marshalInput(req.Input)
	outputJSON, _ := marshalOutput(out)
	p.Persist.EnqueueInference(store.InferenceRow{
		ID:           inferenceID,
		FunctionName: req.FunctionName,
		VariantName:  variantName,
		EpisodeID:    episodeID,
		Input:        inputJSON,
		Output:       outputJSON,
		CreatedAt:    time.Now().UTC(),
	})

	system, inputMessages := splitMessages(providerReq.Messages)
	rawReq, _ := marshalRequest(providerReq)
	rawResp, _ := marshalResponse(resp)
	outJSON, _ := marshalOutput(out)
	p.Persist.EnqueueModelInference(store.ModelInferenceRow{
		ID:               idutil.New(),
		InferenceID:      inferenceID,
		Attempt:          0,
		ModelName:        providerReq.Model,
		ProviderName:     resp.Provider,
		System:           system,
		InputMessages:    inputMessages,
		RawRequest:       rawReq,
		RawResponse:      rawResp,
		Output:           outJSON,
		FinishReason:     finishReasonOf(resp),
		Cached:           true,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		CreatedAt:        time.Now().UTC(),
	})
}

// enqueueAttempts writes one ModelInferenceRow per router.Attempt, in the
// order the calls were made — a failed fallback attempt and the eventual
// successful one each get their own row (§3, §4.4, scenario S3). successIdx
// is the index of the attempt whose Response the pipeline ultimately used
// (-1 if none, e.g. a variant that itself never got past its candidates).
func (p *Pipeline) enqueueAttempts(fnType function.Type, inferenceID, episodeID idutil.ID, variantName string, attempts []router.Attempt, successIdx int) {
	for i, a := range attempts {
		system, inputMessages := splitMessages(a.Request.Messages)
		rawReq, _ := marshalRequest(a.Request)

		row := store.ModelInferenceRow{
			ID:            idutil.New(),
			InferenceID:   inferenceID,
			Attempt:       i,
			ModelName:     a.ModelName,
			ProviderName:  a.ProviderName,
			System:        system,
			InputMessages: inputMessages,
			RawRequest:    rawReq,
			ResponseTimeMS: a.Latency.Milliseconds(),
			CreatedAt:     time.Now().UTC(),
		}

		if a.Err != nil {
			row.Error = a.Err.Error()
			p.Persist.EnqueueModelInference(row)
			continue
		}

		rawResp, _ := marshalResponse(a.Response)
		row.RawResponse = rawResp
		row.FinishReason = finishReasonOf(a.Response)
		row.PromptTokens = a.Response.Usage.PromptTokens
		row.CompletionTokens = a.Response.Usage.CompletionTokens
		row.LatencyMS = a.Latency.Milliseconds()
		if i == successIdx {
			if out, err := toOutput(fnType, a.Response); err == nil {
				if outJSON, err := marshalOutput(out); err == nil {
					row.Output = outJSON
				}
			}
		}
		p.Persist.EnqueueModelInference(row)
	}
}

func finishReasonOf(resp *providers.Response) string {
	if resp == nil || len(resp.Choices) == 0 {
		return ""
	}
	return resp.Choices[0].FinishReason
}

// splitMessages separates a rendered message list into its system message(s)
// (if any) and the rest, each canonically marshaled, for the System and
// InputMessages columns of the model_inference row.
func splitMessages(msgs []providers.Message) ([]byte, []byte) {
	var sys []providers.Message
	var rest []providers.Message
	for _, m := range msgs {
		if m.Role == providers.RoleSystem {
			sys = append(sys, m)
		} else {
			rest = append(rest, m)
		}
	}
	var system []byte
	if len(sys) > 0 {
		system, _ = json.Marshal(sys)
	}
	inputMessages, _ := json.Marshal(rest)
	return system, inputMessages
}
