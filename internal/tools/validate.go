package tools

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/invopop/jsonschema"
)

// FieldError describes one argument that does not match the declared shape.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError collects every field violation found in one argument object.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return strings.Join(parts, "; ")
}

// Validate checks args against an object schema: required fields must be
// present and declared fields must carry the declared type. Undeclared fields
// are ignored. It returns nil or a *ValidationError.
func Validate(args ToolArguments, schema *jsonschema.Schema) error {
	if schema == nil {
		return nil
	}
	var errs []FieldError
	validateObject("", map[string]interface{}(args), schema, &errs)
	if len(errs) == 0 {
		return nil
	}
	return &ValidationError{Fields: errs}
}

func validateObject(path string, obj map[string]interface{}, schema *jsonschema.Schema, errs *[]FieldError) {
	for _, name := range schema.Required {
		if _, ok := obj[name]; !ok {
			*errs = append(*errs, FieldError{Field: join(path, name), Message: "required field is missing"})
		}
	}
	if schema.Properties == nil {
		return
	}
	// Walk in declaration order so messages are stable.
	for pair := schema.Properties.Oldest(); pair != nil; pair = pair.Next() {
		value, ok := obj[pair.Key]
		if !ok {
			continue
		}
		validateValue(join(path, pair.Key), value, pair.Value, errs)
	}
}

func validateValue(path string, value interface{}, schema *jsonschema.Schema, errs *[]FieldError) {
	if schema == nil {
		return
	}
	if !matchesType(value, schema.Type) {
		*errs = append(*errs, FieldError{Field: path, Message: fmt.Sprintf("expected %s but got %s", schema.Type, jsonType(value))})
		return
	}
	if len(schema.Enum) > 0 && !inEnum(value, schema.Enum) {
		*errs = append(*errs, FieldError{Field: path, Message: fmt.Sprintf("value %v is not one of %v", value, schema.Enum)})
		return
	}
	switch v := value.(type) {
	case map[string]interface{}:
		validateObject(path, v, schema, errs)
	case []interface{}:
		for i, item := range v {
			validateValue(fmt.Sprintf("%s[%d]", path, i), item, schema.Items, errs)
		}
	}
}

func matchesType(value interface{}, expected string) bool {
	switch expected {
	case "":
		return true
	case "string":
		_, ok := value.(string)
		return ok
	case "number":
		return isNumber(value)
	case "integer":
		return isInteger(value)
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "object":
		_, ok := value.(map[string]interface{})
		return ok
	case "array":
		_, ok := value.([]interface{})
		return ok
	case "null":
		return value == nil
	}
	return false
}

func isNumber(value interface{}) bool {
	switch v := value.(type) {
	case float32, float64, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	case json.Number:
		_, err := v.Float64()
		return err == nil
	}
	return false
}

func isInteger(value interface{}) bool {
	switch v := value.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	case float32:
		return math.Trunc(float64(v)) == float64(v)
	case float64:
		return math.Trunc(v) == v
	case json.Number:
		_, err := v.Int64()
		return err == nil
	}
	return false
}

func inEnum(value interface{}, enum []interface{}) bool {
	for _, allowed := range enum {
		if allowed == value {
			return true
		}
	}
	return false
}

func jsonType(value interface{}) string {
	switch value.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case map[string]interface{}:
		return "object"
	case []interface{}:
		return "array"
	}
	if isNumber(value) {
		return "number"
	}
	return fmt.Sprintf("%T", value)
}

func join(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}
