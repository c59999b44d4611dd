package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/mpisim/internal/trace"
)

// marshalDiagnostics converts diagnostics to canonical JSON TEXT for storage.
func marshalDiagnostics(diags []Diagnostic) (string, error) {
	list := make([]any, len(diags))
	for i, d := range diags {
		list[i] = map[string]any{
			"code":    d.Code,
			"rank":    d.Rank,
			"message": d.Message,
		}
	}
	data, err := trace.MarshalCanonical(list)
	if err != nil {
		return "", fmt.Errorf("marshal diagnostics: %w", err)
	}
	return string(data), nil
}

func unmarshalDiagnostics(s string) ([]Diagnostic, error) {
	diags := []Diagnostic{}
	if err := json.Unmarshal([]byte(s), &diags); err != nil {
		return nil, fmt.Errorf("unmarshal diagnostics: %w", err)
	}
	return diags, nil
}
