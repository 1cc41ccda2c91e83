// Package thinkblock implements the <think>...</think> reasoning-block
// extraction algorithms shared by every provider adapter that sets
// ProviderConfig.ParsesThinkBlocks (spec §4.B.6): a non-streaming
// single-pair extractor and a streaming per-stream state machine. Neither
// algorithm is provider-specific, so it lives once here instead of being
// reimplemented per adapter.
package thinkblock

import (
	"fmt"
	"strings"

	"github.com/tensorzero/gateway/types"
)

const (
	openTag  = "<think>"
	closeTag = "</think>"
)

// Extract implements the non-streaming extraction rule: locate exactly one
// <think>...</think> pair; multiple pairs or mismatched tags is an error.
// The thought text becomes a Thought block, and the text before/after the
// pair is concatenated into a single trailing Text block (omitted if
// empty, so block count matches spec §8 property 2).
func Extract(text string) ([]types.ContentBlock, error) {
	openIdx := strings.Index(text, openTag)
	if openIdx < 0 {
		if strings.Contains(text, closeTag) {
			return nil, fmt.Errorf("thinkblock: </think> without a matching <think>")
		}
		if text == "" {
			return nil, nil
		}
		return []types.ContentBlock{types.NewTextBlock(text)}, nil
	}

	closeIdx := strings.Index(text[openIdx+len(openTag):], closeTag)
	if closeIdx < 0 {
		return nil, fmt.Errorf("thinkblock: unterminated <think> block")
	}
	closeIdx += openIdx + len(openTag)

	rest := text[closeIdx+len(closeTag):]
	if strings.Contains(rest, openTag) {
		return nil, fmt.Errorf("thinkblock: multiple <think> blocks in one response")
	}

	thought := text[openIdx+len(openTag) : closeIdx]
	prefix := text[:openIdx]
	if strings.Contains(rest, closeTag) || strings.Contains(prefix, closeTag) || strings.Contains(thought, openTag) {
		return nil, fmt.Errorf("thinkblock: mismatched <think> tags")
	}
	combined := prefix + rest

	out := []types.ContentBlock{types.NewThoughtBlock(thought)}
	if combined != "" {
		out = append(out, types.NewTextBlock(combined))
	}
	return out, nil
}

// state is the streaming automaton's state (spec §4.B.6: "a single
// global per-stream automaton, not per content block").
type state int

const (
	stateNormal state = iota
	stateThinking
	stateFinished
)

// blockID reflects the automaton's state so separate text blocks before
// and after the thought remain distinguishable to the caller (spec
// §4.B.6: IDs "0" while Normal, "1" while Thinking, "2" after Finished).
func (s state) blockID() string {
	switch s {
	case stateNormal:
		return "0"
	case stateThinking:
		return "1"
	default:
		return "2"
	}
}

func (s state) blockType() types.ContentBlockType {
	if s == stateThinking {
		return types.ContentBlockThought
	}
	return types.ContentBlockText
}

// Delta is one emitted unit of streamed text, tagged with the block id and
// type the caller should attach to a ContentBlockDelta.
type Delta struct {
	ID   string
	Type types.ContentBlockType
	Text string
}

// StreamParser is the per-stream think-block automaton. It buffers
// partial tag matches across Feed calls so a tag split across two wire
// chunks is still recognized.
type StreamParser struct {
	state state
	buf   string
}

// NewStreamParser starts a fresh automaton in the Normal state.
func NewStreamParser() *StreamParser {
	return &StreamParser{state: stateNormal}
}

// Feed processes one incremental text delta, returning zero or more
// Deltas and an error if the automaton observes a tag in an invalid
// state (spec §4.B.6 protocol errors).
func (p *StreamParser) Feed(text string) ([]Delta, error) {
	p.buf += text
	var out []Delta

	for {
		openIdx := strings.Index(p.buf, openTag)
		closeIdx := strings.Index(p.buf, closeTag)

		idx, isOpen := -1, false
		switch {
		case openIdx >= 0 && (closeIdx < 0 || openIdx <= closeIdx):
			idx, isOpen = openIdx, true
		case closeIdx >= 0:
			idx, isOpen = closeIdx, false
		}

		if idx < 0 {
			// No full tag in the buffer; hold back any suffix that could
			// still be the start of one so it isn't emitted prematurely.
			keep := partialTagSuffixLen(p.buf)
			if emit := p.buf[:len(p.buf)-keep]; emit != "" {
				out = append(out, Delta{ID: p.state.blockID(), Type: p.state.blockType(), Text: emit})
			}
			p.buf = p.buf[len(p.buf)-keep:]
			return out, nil
		}

		if emit := p.buf[:idx]; emit != "" {
			out = append(out, Delta{ID: p.state.blockID(), Type: p.state.blockType(), Text: emit})
		}

		if isOpen {
			if p.state != stateNormal {
				return out, fmt.Errorf("thinkblock: unexpected <think> while in state %d", p.state)
			}
			p.state = stateThinking
			p.buf = p.buf[idx+len(openTag):]
		} else {
			if p.state != stateThinking {
				return out, fmt.Errorf("thinkblock: unexpected </think> while in state %d", p.state)
			}
			p.state = stateFinished
			p.buf = p.buf[idx+len(closeTag):]
		}
	}
}

// partialTagSuffixLen returns the length of the longest suffix of buf that
// is a proper prefix of either tag, i.e. text that might still turn into a
// recognized tag once more input arrives.
func partialTagSuffixLen(buf string) int {
	maxLen := len(openTag)
	if len(closeTag) > maxLen {
		maxLen = len(closeTag)
	}
	if maxLen > len(buf) {
		maxLen = len(buf)
	}
	for l := maxLen; l > 0; l-- {
		suffix := buf[len(buf)-l:]
		if strings.HasPrefix(openTag, suffix) || strings.HasPrefix(closeTag, suffix) {
			return l
		}
	}
	return 0
}
