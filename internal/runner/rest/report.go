package rest

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Exit codes of an action report.
const (
	ExitSuccess = "SUCCESS"
	ExitWarning = "WARNING"
	ExitFailure = "FAILURE"
)

// Report is the JSON action report returned by the REST command interface.
type Report struct {
	Message         string         `json:"message"`
	Command         string         `json:"command"`
	ExitCode        string         `json:"exit_code"`
	ExtraProperties map[string]any `json:"extraProperties,omitempty"`
	Children        []Part         `json:"children,omitempty"`
}

// Part is one node of the message tree.
type Part struct {
	Message    string            `json:"message"`
	Properties map[string]string `json:"properties,omitempty"`
	Children   []Part            `json:"children,omitempty"`
}

// ParseReport decodes a JSON action report.
func ParseReport(data []byte) (*Report, error) {
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to decode action report: %w", err)
	}
	if r.ExitCode == "" {
		return nil, fmt.Errorf("action report has no exit_code")
	}
	return &r, nil
}

// Exit returns the normalized exit code.
func (r *Report) Exit() string {
	return strings.ToUpper(strings.TrimSpace(r.ExitCode))
}

// Messages returns the messages of all parts in depth-first order.
func (r *Report) Messages() []string {
	var out []string
	var walk func(parts []Part)
	walk = func(parts []Part) {
		for _, p := range parts {
			if p.Message != "" {
				out = append(out, p.Message)
			}
			walk(p.Children)
		}
	}
	walk(r.Children)
	return out
}

// Properties merges the properties of all top-level parts.
func (r *Report) Properties() map[string]string {
	out := make(map[string]string)
	for _, p := range r.Children {
		for k, v := range p.Properties {
			out[k] = v
		}
	}
	return out
}
