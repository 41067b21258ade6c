package tools

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/invopop/jsonschema"
)

// ToolArguments represents the input parameters for a tool call.
// It is the decoded JSON object the caller sent; values keep their JSON types
// (json.Number or float64 for numbers, []interface{} for arrays,
// map[string]interface{} for objects).
type ToolArguments map[string]interface{}

// APIURLField is the argument that selects the remote base address.
// It is consumed locally and never forwarded.
const APIURLField = "apiUrl"

// DefaultAPIURL is the KoboldCpp address used when neither the caller nor the
// configuration supplies one.
const DefaultAPIURL = "http://localhost:5001"

// Target is embedded in every tool input so each tool accepts an optional base address.
type Target struct {
	APIURL string `json:"apiUrl,omitempty" jsonschema_description:"Base URL of the KoboldCpp server (default http://localhost:5001)."`
}

// ToolDefinition describes one tool and the endpoint it forwards to.
type ToolDefinition struct {
	ID          ToolID             `json:"-"`
	Name        string             `json:"name"`
	Description string             `json:"description"`
	InputSchema *jsonschema.Schema `json:"inputSchema"`
	Method      string             `json:"-"`
	Endpoint    string             `json:"-"`
}

// HasBody reports whether the tool sends a JSON body and therefore validates its arguments.
func (d ToolDefinition) HasBody() bool {
	return d.Method == http.MethodPost
}

// DecodeArguments parses a JSON object of tool arguments. Numbers are kept as
// json.Number so large integers survive the round trip to the remote API.
// Empty input yields an empty map; anything after the object is rejected.
func DecodeArguments(raw []byte) (ToolArguments, error) {
	args := ToolArguments{}
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return args, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&args); err != nil {
		return nil, fmt.Errorf("arguments must be a JSON object: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("arguments must be a single JSON object")
	}
	return args, nil
}
