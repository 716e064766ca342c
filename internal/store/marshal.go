package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/dbgconform/internal/harness"
)

// marshalJSON encodes v as JSON TEXT with HTML escaping disabled, so
// captured debugger output such as "<unavailable>" is stored verbatim.
func marshalJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

func marshalStates(states []harness.State) (string, error) {
	if states == nil {
		states = []harness.State{}
	}
	data, err := marshalJSON(states)
	if err != nil {
		return "", fmt.Errorf("marshal states: %w", err)
	}
	return data, nil
}

func marshalRegisters(regs []harness.RegisterBinding) (string, error) {
	if regs == nil {
		regs = []harness.RegisterBinding{}
	}
	data, err := marshalJSON(regs)
	if err != nil {
		return "", fmt.Errorf("marshal registers: %w", err)
	}
	return data, nil
}

func unmarshalStates(data string) ([]harness.State, error) {
	var states []harness.State
	if err := json.Unmarshal([]byte(data), &states); err != nil {
		return nil, fmt.Errorf("unmarshal states: %w", err)
	}
	return states, nil
}

// unmarshalRegisters returns nil for an empty list, matching a Result that
// bound no registers.
func unmarshalRegisters(data string) ([]harness.RegisterBinding, error) {
	if data == "" || data == "[]" {
		return nil, nil
	}
	var regs []harness.RegisterBinding
	if err := json.Unmarshal([]byte(data), &regs); err != nil {
		return nil, fmt.Errorf("unmarshal registers: %w", err)
	}
	return regs, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
