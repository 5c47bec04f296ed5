package store

import (
	"fmt"

	"github.com/roach88/statewire/internal/ir"
)

// marshalValue converts a value to canonical JSON TEXT for storage.
func marshalValue(v ir.Value) (string, error) {
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("marshal value: %w", err)
	}
	return string(data), nil
}

// unmarshalValue converts stored TEXT back to a value.
func unmarshalValue(s string) (ir.Value, error) {
	v, err := ir.Unmarshal([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("unmarshal value: %w", err)
	}
	return v, nil
}
