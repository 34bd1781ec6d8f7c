package config

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Params holds the block-specific keys of a [[block]] entry.
type Params map[string]any

// Decode fills v from the params. Keys v does not declare are an error, so a
// typo in a block option fails construction instead of being ignored.
func (p Params) Decode(v any) error {
	if p == nil {
		p = Params{}
	}
	data, err := yaml.Marshal(map[string]any(p))
	if err != nil {
		return fmt.Errorf("failed to encode params: %w", err)
	}
	return decodeStrict(data, v)
}

// String returns the string value for key, or "" when absent.
func (p Params) String(key string) string {
	s, _ := p[key].(string)
	return s
}

func decodeStrict(data []byte, v any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("failed to decode: %w", err)
	}
	return nil
}
