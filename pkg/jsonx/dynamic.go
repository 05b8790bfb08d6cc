package jsonx

import (
	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
)

// ToDynamicJSON converts any Go value to a dynamic JSON object represented
// as a map[string]any by round-tripping it through its JSON encoding.
func ToDynamicJSON(val any) (map[string]any, error) {
	result := make(map[string]any)
	b, err := json.Marshal(val)
	if err != nil {
		return nil, err
	}
	if err = json.Unmarshal(b, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// ParseObject decodes a JSON object held in a string. It returns nil (not an
// error) when the input is empty, not valid JSON, or not an object, so that
// free-text configuration blobs degrade to "no parameters" instead of
// failing the caller.
func ParseObject(raw string) map[string]any {
	if raw == "" || !gjson.Valid(raw) {
		return nil
	}
	parsed := gjson.Parse(raw)
	if !parsed.IsObject() {
		return nil
	}
	result := make(map[string]any, len(parsed.Map()))
	for k, v := range parsed.Map() {
		result[k] = v.Value()
	}
	return result
}
