package reasoning

import (
	"context"
	"encoding/json"
	"fmt"
)

// LibraryTools is the retrieval surface the assistant can call into the
// knowledge library. Implementations render failures as text the model can
// recover from, not as errors.
type LibraryTools interface {
	ReadDoc(relPath string) string
	ListDocs(relPath string) string
	SearchDocs(ctx context.Context, query string) string
	EntryPointContext() string
	Root() string
}

// Tool schema, per the Messages API tools parameter.
type toolProperty struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

type toolSchema struct {
	Type       string                  `json:"type"`
	Properties map[string]toolProperty `json:"properties"`
	Required   []string                `json:"required"`
}

type toolDefinition struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	InputSchema toolSchema `json:"input_schema"`
}

var libraryToolDefs = []toolDefinition{
	{
		Name:        "read_file",
		Description: "Read a file from the knowledge library. Use paths relative to the library root, e.g. 'AGENT.md' or 'projects/checkout/AGENT.md'.",
		InputSchema: toolSchema{
			Type: "object",
			Properties: map[string]toolProperty{
				"path": {Type: "string", Description: "File path relative to the library root."},
			},
			Required: []string{"path"},
		},
	},
	{
		Name:        "search_files",
		Description: "Search for text across the knowledge library. Returns matching lines with file paths. Use for finding decisions, tasks, or any content by keyword.",
		InputSchema: toolSchema{
			Type: "object",
			Properties: map[string]toolProperty{
				"query": {Type: "string", Description: "Text to search for (case-insensitive)."},
			},
			Required: []string{"query"},
		},
	},
	{
		Name:        "list_directory",
		Description: "List files and folders in a directory of the knowledge library. Use '' for the root.",
		InputSchema: toolSchema{
			Type: "object",
			Properties: map[string]toolProperty{
				"path": {Type: "string", Description: "Directory path relative to the library root."},
			},
			Required: []string{},
		},
	},
}

// toolInput covers the arguments of every library tool.
type toolInput struct {
	Path  string `json:"path"`
	Query string `json:"query"`
}

// executeTool runs one tool call against the library.
func executeTool(ctx context.Context, tools LibraryTools, name string, input json.RawMessage) string {
	var args toolInput
	if len(input) > 0 {
		if err := json.Unmarshal(input, &args); err != nil {
			return fmt.Sprintf("Bad tool input: %v", err)
		}
	}

	switch name {
	case "read_file":
		return tools.ReadDoc(args.Path)
	case "search_files":
		return tools.SearchDocs(ctx, args.Query)
	case "list_directory":
		return tools.ListDocs(args.Path)
	default:
		return fmt.Sprintf("Unknown tool: %s", name)
	}
}
