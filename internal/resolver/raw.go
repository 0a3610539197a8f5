package resolver

import "encoding/json"

// marshalRaw serializes the provider payload for flat meta storage.
func marshalRaw(raw map[string]any) (string, error) {
	if raw == nil {
		return "{}", nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
