package llm

import (
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ApplyExtraBody layers a sequence of JSON-pointer-style patches onto a
// marshaled request body, in order (model-provider < variant < request,
// per spec §4.B.4). Patches target dotted paths the way sjson expects; a
// leading "/" (JSON-pointer style, as config authors are used to writing)
// is accepted and translated to sjson's dotted form. Each write is read
// back with gjson to catch a pointer whose parent path collided with a
// non-object value sjson silently declined to write through.
func ApplyExtraBody(body []byte, patches []ExtraBodyPatch) ([]byte, error) {
	out := body
	for _, p := range patches {
		path := sjsonPath(p.Pointer)
		var err error
		out, err = sjson.SetRawBytes(out, path, p.Value)
		if err != nil {
			return nil, err
		}
		if !gjson.GetBytes(out, path).Exists() {
			return nil, fmt.Errorf("extra_body patch %q did not apply", p.Pointer)
		}
	}
	return out, nil
}

func sjsonPath(pointer string) string {
	if len(pointer) == 0 {
		return pointer
	}
	if pointer[0] == '/' {
		pointer = pointer[1:]
	}
	out := make([]byte, 0, len(pointer))
	for i := 0; i < len(pointer); i++ {
		if pointer[i] == '/' {
			out = append(out, '.')
		} else {
			out = append(out, pointer[i])
		}
	}
	return string(out)
}

// MergeExtraHeaders overlays extra header layers, in order, onto an
// *http.Request-agnostic map (later layers win) so callers can merge
// provider-config, variant, and request layers before setting them on the
// wire request.
func MergeExtraHeaders(layers ...map[string]string) map[string]string {
	out := make(map[string]string)
	for _, layer := range layers {
		for k, v := range layer {
			out[k] = v
		}
	}
	return out
}
