package storedrequest

import (
	"encoding/json"
	"fmt"
)

// MergeJSON applies patch on top of base using JSON merge patch semantics
// (RFC 7386): objects merge key by key, a null in patch deletes the key and
// any other value replaces the one in base.
func MergeJSON(base, patch []byte) ([]byte, error) {
	var b, p any
	if len(base) > 0 {
		if err := json.Unmarshal(base, &b); err != nil {
			return nil, fmt.Errorf("decode stored data: %w", err)
		}
	}
	if err := json.Unmarshal(patch, &p); err != nil {
		return nil, fmt.Errorf("decode incoming data: %w", err)
	}
	return json.Marshal(mergePatch(b, p))
}

func mergePatch(target, patch any) any {
	p, ok := patch.(map[string]any)
	if !ok {
		return patch
	}
	t, ok := target.(map[string]any)
	if !ok {
		t = make(map[string]any, len(p))
	}
	for k, v := range p {
		if v == nil {
			delete(t, k)
			continue
		}
		t[k] = mergePatch(t[k], v)
	}
	return t
}
