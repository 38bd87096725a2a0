package output

import "encoding/json"

// FormatJSONIndent renders any payload as indented JSON.
func FormatJSONIndent(payload any) (string, error) {
	raw, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
