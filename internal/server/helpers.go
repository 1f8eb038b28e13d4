// Copyright 2025 Joseph Cumines
//
// Helper functions for tool handlers

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/joeycumines/BrowserUseSDK/internal/link"
	"github.com/joeycumines/BrowserUseSDK/internal/transport"
)

// maxDisplayTextLen is the maximum length for text shown in result summaries.
// Longer text is truncated with "..." suffix.
const maxDisplayTextLen = 50

// truncateText truncates text to maxDisplayTextLen characters with "..." suffix if needed.
func truncateText(s string) string {
	if len(s) > maxDisplayTextLen {
		return s[:maxDisplayTextLen] + "..."
	}
	return s
}

// errorResult creates a ToolResult with IsError=true and the given message.
// This reduces boilerplate for error responses across handlers.
func errorResult(msg string) *ToolResult {
	return &ToolResult{
		IsError: true,
		Content: []Content{{Type: "text", Text: msg}},
	}
}

// errorResultf creates a ToolResult with IsError=true and a formatted message.
// This is the sprintf version of errorResult.
func errorResultf(format string, args ...any) *ToolResult {
	return errorResult(fmt.Sprintf(format, args...))
}

// textResult creates a ToolResult with a single text content.
// This reduces boilerplate for simple text responses.
func textResult(text string) *ToolResult {
	return &ToolResult{
		Content: []Content{{Type: "text", Text: text}},
	}
}

// forward sends the validated call to the extension through the bridge and
// wraps the opaque content as a text result. Extension-side failures and a
// disconnected extension surface as IsError results, not transport errors.
func (s *MCPServer) forward(call *ToolCall) (*ToolResult, error) {
	if !s.execer.Connected() {
		return errorResult("browser extension not connected"), nil
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.RequestTimeout)
	defer cancel()

	start := time.Now()
	content, err := s.execer.Exec(ctx, call.Name, call.Arguments, s.cfg.RequestTimeout)
	s.audit.LogToolCall(call.Name, call.Arguments, execStatus(err), time.Since(start))

	if err != nil {
		var toolErr *link.ToolError
		switch {
		case errors.As(err, &toolErr):
			return errorResult(toolErr.Content), nil
		case errors.Is(err, link.ErrNotConnected), errors.Is(err, link.ErrClosed):
			return errorResult("browser extension not connected"), nil
		case errors.Is(err, link.ErrTimeout):
			return errorResultf("%s timed out after %s", call.Name, s.cfg.RequestTimeout), nil
		default:
			return nil, err
		}
	}

	return textResult(contentToText(content)), nil
}

// execStatus maps a forward outcome to an audit status label.
func execStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, link.ErrTimeout):
		return "timeout"
	default:
		return "error"
	}
}

// contentToText renders opaque extension content for a text result. JSON
// strings are unquoted; everything else passes through as raw JSON.
func contentToText(content json.RawMessage) string {
	if len(content) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(content, &s); err == nil {
		return s
	}
	return string(content)
}

// validateToolInput validates JSON arguments against a tool's InputSchema.
// It checks:
//   - All required fields are present
//   - Field types match the schema (string, number, boolean, integer, array, object)
//   - Enum values are in the allowed set (if enum is specified)
//
// Returns a JSON-RPC error response with ErrCodeInvalidParams (-32602) if validation fails,
// nil if validation passes.
//
// Note: Extra properties not defined in the schema are allowed per JSON-RPC conventions.
func validateToolInput(toolName string, args map[string]any, tools map[string]*Tool) *transport.Message {
	tool, ok := tools[toolName]
	if !ok {
		// Tool not found - this is handled separately, return nil to let caller handle
		return nil
	}

	schema := tool.InputSchema
	if schema == nil {
		// No schema defined - nothing to validate
		return nil
	}

	// Get required fields from schema
	requiredFields := getRequiredFields(schema)

	// Check all required fields are present
	for _, field := range requiredFields {
		if _, exists := args[field]; !exists {
			return invalidParamsError(fmt.Sprintf("missing required field: %s", field))
		}
	}

	// Get properties from schema for type/enum validation
	properties := getSchemaProperties(schema)
	if properties == nil {
		// No properties defined - skip type validation
		return nil
	}

	// Validate each provided argument against its schema
	for fieldName, value := range args {
		propSchema, exists := properties[fieldName]
		if !exists {
			// Extra property not in schema - allowed per JSON-RPC conventions
			continue
		}

		if err := validateFieldValue(fieldName, value, propSchema); err != nil {
			return invalidParamsError(err.Error())
		}
	}

	return nil
}

// invalidParamsError creates a JSON-RPC error response with ErrCodeInvalidParams.
func invalidParamsError(message string) *transport.Message {
	return &transport.Message{
		JSONRPC: "2.0",
		Error: &transport.ErrorObj{
			Code:    transport.ErrCodeInvalidParams,
			Message: message,
		},
	}
}

// getRequiredFields extracts the "required" array from a JSON schema.
func getRequiredFields(schema map[string]any) []string {
	required, ok := schema["required"]
	if !ok {
		return nil
	}

	requiredArr, ok := required.([]string)
	if ok {
		return requiredArr
	}

	// Handle case where required is []interface{} (from JSON unmarshaling)
	requiredIface, ok := required.([]any)
	if !ok {
		return nil
	}

	result := make([]string, 0, len(requiredIface))
	for _, v := range requiredIface {
		if s, ok := v.(string); ok {
			result = append(result, s)
		}
	}
	return result
}

// getSchemaProperties extracts the "properties" map from a JSON schema.
func getSchemaProperties(schema map[string]any) map[string]map[string]any {
	props, ok := schema["properties"]
	if !ok {
		return nil
	}

	propsMap, ok := props.(map[string]any)
	if !ok {
		return nil
	}

	result := make(map[string]map[string]any, len(propsMap))
	for k, v := range propsMap {
		if propSchema, ok := v.(map[string]any); ok {
			result[k] = propSchema
		}
	}
	return result
}

// validateFieldValue validates a single field value against its property schema.
// Returns an error if validation fails.
func validateFieldValue(fieldName string, value any, propSchema map[string]any) error {
	// Skip validation for nil/null values (unless required, which is checked above)
	if value == nil {
		return nil
	}

	// Get expected type from schema
	schemaType, hasType := propSchema["type"].(string)
	if !hasType {
		// No type specified - skip type validation
		return validateEnumValue(fieldName, value, propSchema)
	}

	// Validate type
	if err := validateType(fieldName, value, schemaType); err != nil {
		return err
	}

	// Validate enum if present
	return validateEnumValue(fieldName, value, propSchema)
}

// validateType validates that a value matches the expected JSON Schema type.
// JSON Schema types: string, number, integer, boolean, array, object
func validateType(fieldName string, value any, expectedType string) error {
	switch expectedType {
	case "string":
		if _, ok := value.(string); !ok {
			return fmt.Errorf("field %q must be a string, got %T", fieldName, value)
		}
	case "number":
		// JSON numbers can be float64 or json.Number; integers are also valid numbers
		if !isNumber(value) {
			return fmt.Errorf("field %q must be a number, got %T", fieldName, value)
		}
	case "integer":
		// Integers must be whole numbers
		if !isInteger(value) {
			return fmt.Errorf("field %q must be an integer, got %T", fieldName, value)
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("field %q must be a boolean, got %T", fieldName, value)
		}
	case "array":
		if _, ok := value.([]any); !ok {
			return fmt.Errorf("field %q must be an array, got %T", fieldName, value)
		}
	case "object":
		if _, ok := value.(map[string]any); !ok {
			return fmt.Errorf("field %q must be an object, got %T", fieldName, value)
		}
	default:
		// Unknown type - skip validation
	}
	return nil
}

// isNumber returns true if the value is a valid JSON number (float64 or integer).
func isNumber(value any) bool {
	switch value.(type) {
	case float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	default:
		return false
	}
}

// isInteger returns true if the value is an integer (whole number).
// JSON unmarshaling to interface{} produces float64 for all numbers,
// so we need to check if the float64 is a whole number.
func isInteger(value any) bool {
	switch v := value.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	case float64:
		// Check if the float64 is a whole number
		return v == float64(int64(v))
	case float32:
		return v == float32(int32(v))
	default:
		return false
	}
}

// validateEnumValue validates that a value is in the allowed enum set.
// Returns nil if no enum is defined or if value is in the allowed set.
func validateEnumValue(fieldName string, value any, propSchema map[string]any) error {
	enumValues, ok := propSchema["enum"]
	if !ok {
		return nil
	}

	// Handle enum as []string (defined in registerTools)
	if enumStrings, ok := enumValues.([]string); ok {
		valueStr, ok := value.(string)
		if !ok {
			// Enum is defined but value is not a string - type mismatch
			return fmt.Errorf("field %q must be a string for enum validation, got %T", fieldName, value)
		}
		if slices.Contains(enumStrings, valueStr) {
			return nil
		}
		return fmt.Errorf("field %q must be one of [%s], got %q", fieldName, strings.Join(enumStrings, ", "), valueStr)
	}

	// Handle enum as []interface{} (from JSON unmarshaling)
	if enumIface, ok := enumValues.([]any); ok {
		for _, allowed := range enumIface {
			if value == allowed {
				return nil
			}
			// Also compare as strings for flexibility
			if valueStr, ok := value.(string); ok {
				if allowedStr, ok := allowed.(string); ok && valueStr == allowedStr {
					return nil
				}
			}
		}
		// Build error message with allowed values
		allowedStrs := make([]string, 0, len(enumIface))
		for _, v := range enumIface {
			allowedStrs = append(allowedStrs, fmt.Sprintf("%v", v))
		}
		return fmt.Errorf("field %q must be one of [%s], got %v", fieldName, strings.Join(allowedStrs, ", "), value)
	}

	return nil
}
