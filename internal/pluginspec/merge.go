package pluginspec

import "dario.cat/mergo"

// Merge deep-merges overlay over base: maps merge key-wise, sequences
// concatenate, and on scalar conflict overlay wins. This is the pure
// merge(base, overlay) the configuration model calls for — the host
// configuration file has already been parsed and interpolated by the
// external loader; only the deep-merge algebra is this module's
// concern.
func Merge(base, overlay map[string]any) map[string]any {
	if base == nil && overlay == nil {
		return nil
	}
	out := cloneMap(base)
	if out == nil {
		out = map[string]any{}
	}
	if overlay == nil {
		return out
	}
	// mergo mutates dst in place; cloning base first keeps this pure
	// from the caller's perspective.
	_ = mergo.Merge(&out, overlay, mergo.WithOverride, mergo.WithAppendSlice)
	return out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
