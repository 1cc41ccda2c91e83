package function

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/tensorzero/gateway/types"
)

// SelectVariant implements spec §4.E.5 / §9's resolution of the weightless-
// variant open question: an explicit pin always wins (and must name a
// declared variant, weighted or not); otherwise sampling draws only from
// variants with a declared weight, proportional to those weights.
// Variants without a weight are reachable only by name. rng is injected so
// the same seed reproduces the same choice (spec §8 property 4).
func (f FunctionConfig) SelectVariant(pin string, rng *rand.Rand) (VariantConfig, error) {
	if pin != "" {
		v, ok := f.Variants[pin]
		if !ok {
			return VariantConfig{}, &types.Error{
				Code:    types.ErrUnknownVariant,
				Message: fmt.Sprintf("function %q has no variant named %q", f.Name, pin),
			}
		}
		return v, nil
	}

	// Iterate in a stable (sorted) order so that, for a fixed rng seed,
	// the draw is deterministic regardless of map iteration order.
	names := make([]string, 0, len(f.Variants))
	for name, v := range f.Variants {
		if v.IsWeighted() {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	if len(names) == 0 {
		return VariantConfig{}, &types.Error{
			Code:    types.ErrUnknownVariant,
			Message: fmt.Sprintf("function %q has no weighted variants to sample from", f.Name),
		}
	}

	var total float64
	for _, name := range names {
		total += *f.Variants[name].Weight
	}
	if total <= 0 {
		// All non-positive weights: fall back to uniform choice among
		// the declared weighted set rather than erroring, since a
		// variant with weight 0 is still explicitly "in" the weighted
		// set per spec §9's resolution (only *absence* of a weight
		// excludes it).
		return f.Variants[names[rng.Intn(len(names))]], nil
	}

	draw := rng.Float64() * total
	var cumulative float64
	for _, name := range names {
		cumulative += *f.Variants[name].Weight
		if draw < cumulative {
			return f.Variants[name], nil
		}
	}
	return f.Variants[names[len(names)-1]], nil
}
