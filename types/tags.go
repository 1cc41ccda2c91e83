package types

import "strings"

// ReservedTagPrefix namespaces the tags the gateway itself attaches to a
// row (e.g. internal bookkeeping set by the feedback correlator). Callers
// outside the gateway may not set a tag under this prefix (spec §6).
const ReservedTagPrefix = "tensorzero::"

// ValidateTags is the single shared reserved-tag-prefix validator used by
// both the inference façade and the feedback correlator (spec §6, §9 "not
// duplicated"). internal marks a call made by the gateway's own code path
// (e.g. feedback setting its own bookkeeping tags), which is exempt.
func ValidateTags(tags map[string]string, internal bool) error {
	if internal {
		return nil
	}
	for k := range tags {
		if strings.HasPrefix(k, ReservedTagPrefix) {
			return &Error{
				Code:    ErrInvalidRequest,
				Message: "tag \"" + k + "\" uses the reserved prefix \"" + ReservedTagPrefix + "\"",
			}
		}
	}
	return nil
}
