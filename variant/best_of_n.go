package variant

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"

	"go.uber.org/zap"

	"github.com/tensorzero/gateway/function"
	"github.com/tensorzero/gateway/llm"
	"github.com/tensorzero/gateway/llm/retry"
	"github.com/tensorzero/gateway/types"
)

// bestOfNEngine implements spec §4.E.2: fan out N candidates, then have an
// evaluator model pick the best one by index, falling back to a uniformly
// random choice when the evaluator itself fails.
type bestOfNEngine struct {
	d *Dispatcher
}

// evaluatorOutputSchema is the fixed shape the evaluator must answer in
// (spec §4.E.2 step 4).
var evaluatorOutputSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"thinking": {"type": "string"},
		"answer_choice": {"type": "integer"}
	},
	"required": ["thinking", "answer_choice"]
}`)

type evaluatorAnswer struct {
	Thinking     string `json:"thinking"`
	AnswerChoice int    `json:"answer_choice"`
}

func (e *bestOfNEngine) Infer(ctx context.Context, req *Request, vc function.VariantConfig) (*llm.InferenceResult, error) {
	outcomes, err := e.d.fanOutCandidates(ctx, req, vc.Candidates, vc.CandidateTimeout)
	if err != nil {
		return nil, err
	}
	ok := successes(outcomes)
	if len(ok) == 0 {
		return nil, &types.Error{Code: types.ErrInferenceServer, Message: "best_of_n: every candidate failed or timed out"}
	}

	result := &llm.InferenceResult{}
	if len(ok) == 1 {
		finishResult(result, ok[0].Result)
		aggregateUsage(result, outcomes, nil)
		return result, nil
	}

	evalResp, chosen, err := e.runEvaluator(ctx, req, vc, ok)
	if err != nil {
		e.d.logger().Warn("best_of_n evaluator failed, falling back to random candidate", zap.Error(err))
		chosen = ok[rand.Intn(len(ok))].Result
		finishResult(result, chosen)
		aggregateUsage(result, outcomes, evalResp)
		result.OriginalResponse = nil
		return result, nil
	}

	finishResult(result, chosen)
	aggregateUsage(result, outcomes, evalResp)
	if evalResp != nil {
		raw := evalResp.RawResponse
		result.OriginalResponse = &raw
	}
	return result, nil
}

// runEvaluator builds and sends the evaluator request (spec §4.E.2 steps
// 4-5): JSON candidates whose parsed field is nil are dropped before
// indexing so the evaluator only ever sees candidates it could meaningfully
// judge; the chosen index is mapped back to the original outcome.
func (e *bestOfNEngine) runEvaluator(ctx context.Context, req *Request, vc function.VariantConfig, ok []candidateOutcome) (*llm.ModelInferenceResponse, *llm.InferenceResult, error) {
	compacted := make([]candidateOutcome, 0, len(ok))
	for _, o := range ok {
		if o.Result.Kind == llm.InferenceResultJson && o.Result.Parsed == nil {
			continue
		}
		compacted = append(compacted, o)
	}
	if len(compacted) == 0 {
		return nil, nil, fmt.Errorf("best_of_n: no candidates survived compaction for the evaluator")
	}

	model, err := e.d.Registry.Model(vc.EvaluatorModel)
	if err != nil {
		return nil, nil, err
	}

	var preamble strings.Builder
	fmt.Fprintf(&preamble, "You are judging %d candidate answers, indexed 0 to %d. ", len(compacted), len(compacted)-1)
	preamble.WriteString("Pick the single best candidate and respond with your reasoning and its index.\n\n")
	if vc.SystemTemplate != "" && req.Input.SystemArgs != nil {
		sys, err := e.d.Renderer.Render(vc.SystemTemplate, req.Input.SystemArgs)
		if err == nil {
			preamble.WriteString(sys)
			preamble.WriteString("\n\n")
		}
	}

	var user strings.Builder
	for i, o := range compacted {
		fmt.Fprintf(&user, "Candidate %d:\n%s\n\n", i, candidateText(o.Result))
	}

	system := preamble.String()
	mreq := &llm.ModelInferenceRequest{
		Messages:     []llm.InferenceMessage{{Role: types.RoleUser, Content: []types.ContentBlock{types.NewTextBlock(user.String())}}},
		System:       &system,
		Sampling:     vc.DefaultParams,
		JSONMode:     types.JsonModeImplicitTool,
		FunctionType: llm.FunctionTypeJson,
		OutputSchema: evaluatorOutputSchema,
	}
	toolCfg, err := buildToolConfig(&Request{}, function.FunctionConfig{Type: llm.FunctionTypeJson}, types.JsonModeImplicitTool, evaluatorOutputSchema)
	if err != nil {
		return nil, nil, err
	}
	mreq.Tools = toolCfg

	retryer := retry.NewBackoffRetryer(vc.RetryPolicy, e.d.logger())
	out, err := retryer.DoWithResult(ctx, func() (any, error) {
		return e.d.Router.Infer(ctx, model, mreq, e.d.HTTPClient, req.Credentials, llm.CacheOptions{Mode: llm.CacheOff})
	})
	if err != nil {
		return nil, nil, err
	}
	resp := out.(*llm.ModelInferenceResponse)

	var raw string
	for _, b := range resp.Content {
		if b.Type == types.ContentBlockToolCall && b.ToolName == respondToolName {
			raw = string(b.ToolArgsRaw)
		}
	}
	var ans evaluatorAnswer
	if raw == "" || json.Unmarshal([]byte(raw), &ans) != nil {
		return resp, nil, fmt.Errorf("best_of_n: evaluator returned no parseable answer_choice")
	}
	if ans.AnswerChoice < 0 || ans.AnswerChoice >= len(compacted) {
		return resp, nil, fmt.Errorf("best_of_n: evaluator answer_choice %d out of range [0,%d)", ans.AnswerChoice, len(compacted))
	}

	return resp, compacted[ans.AnswerChoice].Result, nil
}

func candidateText(r *llm.InferenceResult) string {
	if r.Kind == llm.InferenceResultJson {
		return r.Raw
	}
	var sb strings.Builder
	for _, b := range r.Content {
		if b.Type == types.ContentBlockText {
			sb.WriteString(b.Text)
		}
	}
	return sb.String()
}

// finishResult copies the chosen candidate's content/kind into result
// without its constituent ModelResponses (aggregateUsage handles those
// separately so every candidate, chosen or not, is represented once).
func finishResult(result *llm.InferenceResult, chosen *llm.InferenceResult) {
	result.Kind = chosen.Kind
	result.Content = chosen.Content
	result.Raw = chosen.Raw
	result.Parsed = chosen.Parsed
	result.OutputSchema = chosen.OutputSchema
}
