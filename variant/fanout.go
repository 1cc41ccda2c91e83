package variant

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tensorzero/gateway/function"
	"github.com/tensorzero/gateway/llm"
	"github.com/tensorzero/gateway/types"
)

// candidateOutcome is one fan-out candidate's result; Err is set when the
// candidate timed out or failed (spec §4.E.2 step 1: "dropped but does not
// abort the request").
type candidateOutcome struct {
	Index  int
	Name   string
	Result *llm.InferenceResult
	Err    error
}

// resolveCandidate looks up a named variant within the same function and
// requires it to be a ChatCompletion (spec §9 "recursion depth is bounded
// to one - a variant cannot transitively invoke another BestOfN variant").
func resolveCandidate(fc function.FunctionConfig, name string) (function.VariantConfig, error) {
	vc, ok := fc.Variants[name]
	if !ok {
		return function.VariantConfig{}, &types.Error{
			Code:    types.ErrUnknownCandidate,
			Message: fmt.Sprintf("function %q has no candidate variant named %q", fc.Name, name),
		}
	}
	if vc.Kind != function.VariantChatCompletion {
		return function.VariantConfig{}, fmt.Errorf("candidate variant %q must be chat_completion, got %q", name, vc.Kind)
	}
	return vc, nil
}

// fanOutCandidates runs req against each named candidate variant
// concurrently, each bounded by its own timeout (spec §4.E.2 step 1,
// §4.E.3). Every candidate's extra_cache_key is perturbed with its index
// so structurally-identical sibling candidates don't alias in the cache.
func (d *Dispatcher) fanOutCandidates(ctx context.Context, req *Request, names []string, timeout time.Duration) ([]candidateOutcome, error) {
	outcomes := make([]candidateOutcome, len(names))
	g, gctx := errgroup.WithContext(ctx)

	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			vc, err := resolveCandidate(req.Function, name)
			if err != nil {
				outcomes[i] = candidateOutcome{Index: i, Name: name, Err: err}
				return nil
			}

			candCtx, cancel := context.WithTimeout(gctx, timeout)
			defer cancel()

			candReq := *req
			candReq.ExtraCacheKey = fmt.Sprintf("candidate_%d", i)

			engine := &chatCompletionEngine{d: d}
			result, err := engine.Infer(candCtx, &candReq, vc)
			if err != nil {
				if candCtx.Err() != nil {
					err = &types.Error{Code: types.ErrInferenceTimeout, Message: fmt.Sprintf("candidate %q exceeded its timeout", name)}
				}
				d.logger().Warn("candidate inference failed, dropping", zap.String("candidate", name), zap.Error(err))
				outcomes[i] = candidateOutcome{Index: i, Name: name, Err: err}
				return nil
			}
			outcomes[i] = candidateOutcome{Index: i, Name: name, Result: result}
			return nil
		})
	}

	// Every goroutine above swallows its own error into outcomes[i], so
	// Wait only ever propagates a genuine programming error, never a
	// candidate failure (those are data, not fan-out failures).
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

// successes filters outcomes down to the ones that completed, preserving
// original index order.
func successes(outcomes []candidateOutcome) []candidateOutcome {
	out := make([]candidateOutcome, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Result != nil {
			out = append(out, o)
		}
	}
	return out
}

// aggregateUsage folds every constituent call's usage (candidates plus the
// evaluator/fuser) into result, and appends their ModelInferenceResponses
// for observability (spec §4.E.2 step 6).
func aggregateUsage(result *llm.InferenceResult, outcomes []candidateOutcome, extra *llm.ModelInferenceResponse) {
	for _, o := range outcomes {
		if o.Result == nil {
			continue
		}
		for _, m := range o.Result.ModelResponses {
			result.AddModelResponse(m)
		}
	}
	if extra != nil {
		result.AddModelResponse(*extra)
	}
}
