package common

import (
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
)

// ExtractJSONObject returns the outermost {...} span of an LLM reply.
// Surrounding prose and markdown fences are ignored; the JSON itself is not
// repaired.
func ExtractJSONObject(response string) (string, error) {
	start := strings.IndexByte(response, '{')
	if start == -1 {
		return "", fmt.Errorf("no JSON object found in response (missing '{')")
	}
	end := strings.LastIndexByte(response, '}')
	if end < start {
		return "", fmt.Errorf("no JSON object found in response (missing '}')")
	}
	return response[start : end+1], nil
}

// ParseJSON extracts and unmarshals a JSON object into a type T.
func ParseJSON[T any](response string) (T, error) {
	var zero T
	jsonStr, err := ExtractJSONObject(response)
	if err != nil {
		return zero, err
	}

	var result T
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return zero, fmt.Errorf("failed to unmarshal JSON: %w\nData: %s", err, jsonStr)
	}

	return result, nil
}
