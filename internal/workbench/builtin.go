package workbench

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/invopop/jsonschema"
)

// WebSearchArgs is the argument shape for the builtin web_search tool.
type WebSearchArgs struct {
	Query      string `json:"query" jsonschema:"required,description=Search query text"`
	MaxResults int    `json:"max_results,omitempty" jsonschema:"minimum=1,maximum=20,description=Maximum number of results to return"`
}

// CurrentTimeArgs is the (empty) argument shape for the builtin
// current_time tool.
type CurrentTimeArgs struct{}

func schemaFor(v any) []byte {
	reflector := &jsonschema.Reflector{ExpandedStruct: true}
	schema := reflector.Reflect(v)
	data, err := json.Marshal(schema)
	if err != nil {
		// Schemas are generated once at process startup from fixed Go
		// types; a marshal failure here means the type itself is broken.
		panic(fmt.Sprintf("workbench: marshaling generated schema: %v", err))
	}
	return data
}

// RegisterBuiltins adds the reference tools every team gets by default
// (current_time, web_search with a stub implementation) to m.
func RegisterBuiltins(m *Memory, search func(ctx context.Context, query string, maxResults int) (string, error)) error {
	if err := m.Register(ToolSpec{
		Name:        "current_time",
		Description: "Returns the current UTC time in RFC3339 format.",
		Schema:      schemaFor(CurrentTimeArgs{}),
	}, func(ctx context.Context, _ map[string]any) (Result, error) {
		return Result{OK: true, Content: time.Now().UTC().Format(time.RFC3339)}, nil
	}); err != nil {
		return fmt.Errorf("registering current_time: %w", err)
	}

	if err := m.Register(ToolSpec{
		Name:        "web_search",
		Description: "Searches the web and returns a summary of results.",
		Schema:      schemaFor(WebSearchArgs{}),
	}, func(ctx context.Context, args map[string]any) (Result, error) {
		query, _ := args["query"].(string)
		maxResults := 5
		if mr, ok := args["max_results"].(float64); ok && mr > 0 {
			maxResults = int(mr)
		}
		if search == nil {
			return Result{OK: false, Content: "web_search is not configured"}, nil
		}
		content, err := search(ctx, query, maxResults)
		if err != nil {
			return Result{OK: false, Content: err.Error()}, nil
		}
		return Result{OK: true, Content: content}, nil
	}); err != nil {
		return fmt.Errorf("registering web_search: %w", err)
	}

	return nil
}
