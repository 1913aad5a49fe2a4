package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
)

// ArgumentError means the model sent arguments the tool cannot use.
// The executor reports it back to the model instead of failing the task.
type ArgumentError struct {
	Tool string
	Err  error
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("invalid arguments for %s: %v", e.Tool, e.Err)
}

func (e *ArgumentError) Unwrap() error { return e.Err }

// schemaFor reflects the JSON schema of an arguments struct into the plain map
// form sent to model providers.
func schemaFor(v any) map[string]any {
	reflector := &jsonschema.Reflector{
		ExpandedStruct:            true,
		DoNotReference:            true,
		AllowAdditionalProperties: false,
	}
	schema := reflector.Reflect(v)
	b, err := json.Marshal(schema)
	if err != nil {
		panic(err) // This should never happen
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		panic(err) // This should never happen
	}
	delete(out, "$schema")
	delete(out, "$id")
	return out
}

func decodeArgs(tool, arguments string, v any) error {
	if strings.TrimSpace(arguments) == "" {
		arguments = "{}"
	}
	if err := json.Unmarshal([]byte(arguments), v); err != nil {
		return &ArgumentError{Tool: tool, Err: err}
	}
	return nil
}

var errEmptyQuery = errors.New("search_query must not be empty")
