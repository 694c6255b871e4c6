package local

import (
	"context"
	"fmt"

	"shiftbot/internal/anchor"
	"shiftbot/internal/tools"
)

// ReadFile exposes workspace-scoped reads; the workspace rejects any path
// escaping its root.
func ReadFile(ws *anchor.Workspace) *tools.Tool {
	return &tools.Tool{
		Name:        "read_file",
		Description: "Reads the contents of a file. Use this to inspect generated Anchor files. Paths are relative to the build workspace.",
		Category:    tools.CategoryFile,
		Idempotent:  true,
		Schema: tools.Schema{
			Required: []string{"path"},
			Properties: map[string]tools.Property{
				"path": {Type: "string", Description: "File path inside the build workspace"},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return ws.ReadFile(stringArg(args, "path", ""))
		},
	}
}

// WriteFile exposes workspace-scoped writes.
func WriteFile(ws *anchor.Workspace) *tools.Tool {
	return &tools.Tool{
		Name:        "write_file",
		Description: "Writes content to a file, overwriting it completely. Paths are relative to the build workspace. Run anchor_build afterwards to recompile.",
		Category:    tools.CategoryFile,
		Schema: tools.Schema{
			Required: []string{"path", "content"},
			Properties: map[string]tools.Property{
				"path":    {Type: "string", Description: "File path inside the build workspace"},
				"content": {Type: "string", Description: "Full file content to write"},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			path := stringArg(args, "path", "")
			content, _ := args["content"].(string)
			if err := ws.WriteFile(path, content); err != nil {
				return "", err
			}
			return fmt.Sprintf("wrote %d bytes to %s", len(content), path), nil
		},
	}
}
