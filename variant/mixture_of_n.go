package variant

import (
	"context"
	"fmt"
	"math/rand"
	"strings"

	"go.uber.org/zap"

	"github.com/tensorzero/gateway/function"
	"github.com/tensorzero/gateway/llm"
	"github.com/tensorzero/gateway/llm/retry"
	"github.com/tensorzero/gateway/template"
	"github.com/tensorzero/gateway/types"
)

// mixtureOfNEngine implements spec §4.E.3: same candidate fan-out as
// BestOfN, but the "fuser" variant synthesizes a single new response from
// every success instead of picking one by index.
type mixtureOfNEngine struct {
	d *Dispatcher
}

func (e *mixtureOfNEngine) Infer(ctx context.Context, req *Request, vc function.VariantConfig) (*llm.InferenceResult, error) {
	outcomes, err := e.d.fanOutCandidates(ctx, req, vc.Candidates, vc.CandidateTimeout)
	if err != nil {
		return nil, err
	}
	ok := successes(outcomes)
	if len(ok) == 0 {
		return nil, fmt.Errorf("mixture_of_n: every candidate failed or timed out")
	}

	result := &llm.InferenceResult{}
	if len(ok) == 1 {
		finishResult(result, ok[0].Result)
		aggregateUsage(result, outcomes, nil)
		return result, nil
	}

	fused, fuserResp, err := e.runFuser(ctx, req, vc, ok)
	if err != nil {
		e.d.logger().Warn("mixture_of_n fuser failed, falling back to random candidate", zap.Error(err))
		fused = ok[rand.Intn(len(ok))].Result
		finishResult(result, fused)
		aggregateUsage(result, outcomes, fuserResp)
		return result, nil
	}

	finishResult(result, fused)
	aggregateUsage(result, outcomes, fuserResp)
	if fuserResp != nil {
		raw := fuserResp.RawResponse
		result.OriginalResponse = &raw
	}
	return result, nil
}

// runFuser builds a ChatCompletion-shaped request over the fuser model
// asking it to synthesize one answer from every surviving candidate,
// matching the function's own output type (Chat text or Json schema).
func (e *mixtureOfNEngine) runFuser(ctx context.Context, req *Request, vc function.VariantConfig, ok []candidateOutcome) (*llm.InferenceResult, *llm.ModelInferenceResponse, error) {
	model, err := e.d.Registry.Model(vc.FuserModel)
	if err != nil {
		return nil, nil, err
	}

	var preamble strings.Builder
	preamble.WriteString("You are given several candidate answers to the same request. Synthesize them into a single, best final answer.\n\n")
	if vc.SystemTemplate != "" && req.Input.SystemArgs != nil {
		sys, rerr := e.d.Renderer.Render(vc.SystemTemplate, req.Input.SystemArgs)
		if rerr == nil {
			preamble.WriteString(sys)
			preamble.WriteString("\n\n")
		}
	}

	var user strings.Builder
	for i, o := range ok {
		fmt.Fprintf(&user, "Candidate %d:\n%s\n\n", i, candidateText(o.Result))
	}

	system := preamble.String()
	jsonMode := effectiveJSONMode(req, vc)
	outputSchema := effectiveOutputSchema(req, req.Function)
	toolCfg, err := buildToolConfig(req, req.Function, jsonMode, outputSchema)
	if err != nil {
		return nil, nil, err
	}

	mreq := &llm.ModelInferenceRequest{
		Messages:     []llm.InferenceMessage{{Role: types.RoleUser, Content: template.Content(user.String())}},
		System:       &system,
		Tools:        toolCfg,
		Sampling:     vc.DefaultParams,
		JSONMode:     jsonMode,
		FunctionType: req.Function.Type,
		OutputSchema: outputSchema,
	}

	retryer := retry.NewBackoffRetryer(vc.RetryPolicy, e.d.logger())
	out, err := retryer.DoWithResult(ctx, func() (any, error) {
		return e.d.Router.Infer(ctx, model, mreq, e.d.HTTPClient, req.Credentials, llm.CacheOptions{Mode: llm.CacheOff})
	})
	if err != nil {
		return nil, nil, err
	}
	resp := out.(*llm.ModelInferenceResponse)

	synthesized := &llm.InferenceResult{}
	if req.Function.Type == llm.FunctionTypeJson {
		if _, err := assembleJson(synthesized, resp, req.Function, outputSchema); err != nil {
			return nil, resp, err
		}
	} else {
		synthesized.Kind = llm.InferenceResultChat
		synthesized.Content = demoteInvalidToolCalls(req.Function.Tools, resp.Content)
	}
	return synthesized, resp, nil
}
