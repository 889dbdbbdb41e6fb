package helm

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Values represents helm chart values as a map.
type Values map[string]any

// Merge deep-merges values maps, later maps taking precedence. Nested maps
// are merged key by key; any other value replaces the earlier one.
func Merge(valueMaps ...Values) Values {
	result := make(Values)
	for _, m := range valueMaps {
		mergeInto(result, m)
	}
	return result
}

func mergeInto(dst, src Values) {
	for k, v := range src {
		srcMap, srcIsMap := asValues(v)
		dstMap, dstIsMap := asValues(dst[k])
		if srcIsMap && dstIsMap {
			merged := make(Values, len(dstMap))
			mergeInto(merged, dstMap)
			mergeInto(merged, srcMap)
			dst[k] = merged
			continue
		}
		dst[k] = v
	}
}

func asValues(v any) (Values, bool) {
	switch m := v.(type) {
	case Values:
		return m, true
	case map[string]any:
		return Values(m), true
	}
	return nil, false
}

// ToMap converts nested Values to plain maps, which is what the Helm engine
// expects when templates use functions such as toYaml.
func (v Values) ToMap() map[string]any {
	out := make(map[string]any, len(v))
	for k, val := range v {
		out[k] = toPlain(val)
	}
	return out
}

func toPlain(v any) any {
	switch t := v.(type) {
	case Values:
		return t.ToMap()
	case map[string]any:
		return Values(t).ToMap()
	case []Values:
		list := make([]any, len(t))
		for i, item := range t {
			list[i] = item.ToMap()
		}
		return list
	case []any:
		list := make([]any, len(t))
		for i, item := range t {
			list[i] = toPlain(item)
		}
		return list
	}
	return v
}

// ToYAML converts values to YAML bytes.
func (v Values) ToYAML() ([]byte, error) {
	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)

	if err := encoder.Encode(v.ToMap()); err != nil {
		return nil, fmt.Errorf("failed to encode values to YAML: %w", err)
	}
	return buf.Bytes(), nil
}

// FromYAML parses YAML bytes into Values.
func FromYAML(data []byte) (Values, error) {
	var values Values
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("failed to parse YAML values: %w", err)
	}
	if values == nil {
		values = Values{}
	}
	return values, nil
}
