package tools

import (
	"github.com/invopop/jsonschema"
)

// GenerateSchema derives an inline JSON Schema from the input struct T.
// Fields without omitempty become required. Additional properties stay allowed
// so fields the remote API adds later can still be passed through.
func GenerateSchema[T any]() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: true,
		DoNotReference:            true,
		Anonymous:                 true,
	}
	var v T
	schema := reflector.Reflect(v)
	schema.Version = ""
	return schema
}
