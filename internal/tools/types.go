// Package tools holds the registry of operations the reasoning engine may
// invoke. Every tool, local or proxied from a remote provider, is a named
// Execute closure with a JSON schema; the registry validates input
// against the schema before dispatch.
package tools

import (
	"context"
	"encoding/json"
	"time"
)

// Category groups tools by the subsystem they touch.
type Category string

const (
	CategoryWallet    Category = "wallet"
	CategoryChallenge Category = "challenge"
	CategoryBuild     Category = "build"
	CategoryFile      Category = "file"
	CategoryKnowledge Category = "knowledge"
	CategoryRemote    Category = "remote"
)

// Property describes one argument in a tool's JSON schema.
type Property struct {
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Default     any      `json:"default,omitempty"`
	Enum        []string `json:"enum,omitempty"`
	// Items describes array element schema (required for type="array").
	Items *PropertyItems `json:"items,omitempty"`
}

// PropertyItems describes the schema for array elements.
type PropertyItems struct {
	Type string `json:"type"`
}

// Schema defines a tool's argument contract.
type Schema struct {
	Required   []string            `json:"required"`
	Properties map[string]Property `json:"properties"`
}

// JSONSchema renders the schema as the object-typed JSON schema the
// reasoning engine expects in tool declarations.
func (s Schema) JSONSchema() map[string]any {
	props := make(map[string]any, len(s.Properties))
	for name, p := range s.Properties {
		prop := map[string]any{"type": p.Type}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		if p.Items != nil {
			prop["items"] = map[string]any{"type": p.Items.Type}
		}
		props[name] = prop
	}
	required := s.Required
	if required == nil {
		required = []string{}
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

// ExecuteFunc runs a tool with already-validated arguments.
type ExecuteFunc func(ctx context.Context, args map[string]any) (string, error)

// Tool is one callable operation.
type Tool struct {
	// Name is unique across local and remote registries.
	Name string

	// Description is what the reasoning engine sees when choosing tools.
	Description string

	Category Category

	// Idempotent marks tools the loop may safely re-invoke after a
	// transport failure. Submissions and builds are not.
	Idempotent bool

	Execute ExecuteFunc

	Schema Schema

	// RawSchema carries a remote tool's original JSON schema verbatim.
	// When set it takes precedence over Schema in declarations to the
	// reasoning engine; argument validation stays open (the remote
	// server owns the contract).
	RawSchema json.RawMessage
}

// InputSchema returns the JSON-schema object declared to the reasoning
// engine.
func (t *Tool) InputSchema() map[string]any {
	if len(t.RawSchema) > 0 {
		var m map[string]any
		if err := json.Unmarshal(t.RawSchema, &m); err == nil && len(m) > 0 {
			return m
		}
	}
	return t.Schema.JSONSchema()
}

// Validate checks the tool definition itself.
func (t *Tool) Validate() error {
	if t.Name == "" {
		return ErrToolNameEmpty
	}
	if t.Execute == nil {
		return ErrToolExecuteNil
	}
	return nil
}

// Result wraps one execution with metadata for the transcript.
type Result struct {
	ToolName string
	Output   string
	Err      error
	Duration time.Duration
}

// IsSuccess reports whether the tool executed without error.
func (r *Result) IsSuccess() bool {
	return r.Err == nil
}
