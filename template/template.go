// Package template implements the pure (template_id, context) -> string
// renderer the variant engine uses to materialize system/user/assistant
// prompts from structured input (spec §4.E.1 step 1, §9 "Template
// rendering is a pure function handed inputs").
package template

import (
	"bytes"
	"fmt"
	"sync"
	"text/template"

	"github.com/tensorzero/gateway/types"
)

// Renderer holds a fixed set of named templates, compiled once at
// construction, and renders them against arbitrary structured context. It
// has no knowledge of functions, variants, or providers - the spec's
// "external collaborator" contract is exactly this interface.
type Renderer struct {
	mu        sync.RWMutex
	templates map[string]*template.Template
}

// NewRenderer compiles the given named template bodies. A malformed
// template body fails construction rather than the first render call, so
// config-load-time errors surface where they're authored.
func NewRenderer(bodies map[string]string) (*Renderer, error) {
	r := &Renderer{templates: make(map[string]*template.Template, len(bodies))}
	for id, body := range bodies {
		if err := r.Register(id, body); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register compiles and stores (or replaces) one named template.
func (r *Renderer) Register(id, body string) error {
	t, err := template.New(id).Parse(body)
	if err != nil {
		return fmt.Errorf("template: failed to parse %q: %w", id, err)
	}
	r.mu.Lock()
	r.templates[id] = t
	r.mu.Unlock()
	return nil
}

// Has reports whether templateID is registered.
func (r *Renderer) Has(templateID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.templates[templateID]
	return ok
}

// Render resolves templateID against context and returns the rendered
// string. An unknown templateID is an error, matching the spec's "if no
// template is declared, the input must already be a string; otherwise it
// is an error" rule - callers are responsible for the "no template
// declared" branch (see RenderOrPassthrough).
func (r *Renderer) Render(templateID string, context any) (string, error) {
	r.mu.RLock()
	t, ok := r.templates[templateID]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("template: unknown template id %q", templateID)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, context); err != nil {
		return "", fmt.Errorf("template: failed to render %q: %w", templateID, err)
	}
	return buf.String(), nil
}

// RenderOrPassthrough implements spec §4.E.1 step 1's full rule: when
// templateID is empty no template was declared for this role, so context
// must already be a plain string; any other shape is an error. When
// templateID is set, context is rendered through it.
func RenderOrPassthrough(r *Renderer, templateID string, context any) (string, error) {
	if templateID == "" {
		s, ok := context.(string)
		if !ok {
			return "", fmt.Errorf("template: no template declared and input is not a plain string (got %T)", context)
		}
		return s, nil
	}
	return r.Render(templateID, context)
}

// DiclExampleContext is a structured template context for one retrieved
// DICL demonstration (spec §4.E.4). The DICL variant does not currently
// pass it to the renderer: variant.demonstrationTurns puts the example
// text into the synthetic turns verbatim.
type DiclExampleContext struct {
	Input       string
	Demonstration string
}

// Content wraps rendered template text into []types.ContentBlock for the
// common case of a single text block, the shape most templates produce.
func Content(text string) []types.ContentBlock {
	if text == "" {
		return nil
	}
	return []types.ContentBlock{types.NewTextBlock(text)}
}
