package tools

import (
	"fmt"
	"math"
	"strings"

	"shiftbot/internal/fault"
)

// validateArgs checks args against the tool's schema before dispatch, so
// execute funcs can assume required keys exist with the declared types.
// Every failure is a fault.ValidationError carrying the tool name.
func validateArgs(tool *Tool, args map[string]any) error {
	schema := tool.Schema

	for _, key := range schema.Required {
		if _, ok := args[key]; !ok {
			return &fault.ValidationError{
				Tool:   tool.Name,
				Reason: fmt.Sprintf("missing required argument %q", key),
			}
		}
	}

	for key, value := range args {
		prop, declared := schema.Properties[key]
		if !declared {
			// Remote tools may declare an open schema (no properties);
			// pass unknown args through to the server in that case.
			if len(schema.Properties) == 0 {
				continue
			}
			return &fault.ValidationError{
				Tool:   tool.Name,
				Reason: fmt.Sprintf("unknown argument %q", key),
			}
		}
		if err := checkType(key, prop, value); err != nil {
			return &fault.ValidationError{Tool: tool.Name, Reason: err.Error()}
		}
		if err := checkEnum(key, prop, value); err != nil {
			return &fault.ValidationError{Tool: tool.Name, Reason: err.Error()}
		}
	}

	return nil
}

// checkType verifies a decoded JSON value against the declared property
// type. JSON numbers arrive as float64, so "integer" accepts any float64
// with a zero fractional part.
func checkType(key string, prop Property, value any) error {
	switch prop.Type {
	case "", "any":
		return nil
	case "string":
		if _, ok := value.(string); !ok {
			return fmt.Errorf("argument %q must be a string, got %T", key, value)
		}
	case "number":
		if _, ok := value.(float64); !ok {
			return fmt.Errorf("argument %q must be a number, got %T", key, value)
		}
	case "integer":
		f, ok := value.(float64)
		if !ok {
			return fmt.Errorf("argument %q must be an integer, got %T", key, value)
		}
		if f != math.Trunc(f) {
			return fmt.Errorf("argument %q must be an integer, got %v", key, f)
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("argument %q must be a boolean, got %T", key, value)
		}
	case "array":
		if _, ok := value.([]any); !ok {
			return fmt.Errorf("argument %q must be an array, got %T", key, value)
		}
	case "object":
		if _, ok := value.(map[string]any); !ok {
			return fmt.Errorf("argument %q must be an object, got %T", key, value)
		}
	default:
		return fmt.Errorf("argument %q has unsupported schema type %q", key, prop.Type)
	}
	return nil
}

// checkEnum verifies string values against the property's enum, if any.
func checkEnum(key string, prop Property, value any) error {
	if len(prop.Enum) == 0 {
		return nil
	}
	s, ok := value.(string)
	if !ok {
		return fmt.Errorf("argument %q must be a string (one of %s)", key, strings.Join(prop.Enum, ", "))
	}
	for _, allowed := range prop.Enum {
		if s == allowed {
			return nil
		}
	}
	return fmt.Errorf("argument %q must be one of %s, got %q", key, strings.Join(prop.Enum, ", "), s)
}
