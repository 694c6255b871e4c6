package local

import (
	"context"

	"shiftbot/internal/anchor"
	"shiftbot/internal/tools"
)

// AnchorCreateProgram scaffolds and builds a new Anchor program from the
// source the reasoning engine supplies.
func AnchorCreateProgram(b *anchor.Builder) *tools.Tool {
	return &tools.Tool{
		Name:        "anchor_create_program",
		Description: "Scaffolds an Anchor workspace, replaces lib.rs and Cargo.toml with the provided content, builds, and returns the workspace path and .so artifact.",
		Category:    tools.CategoryBuild,
		Schema: tools.Schema{
			Required: []string{"program_name", "cargo_toml", "lib_rs"},
			Properties: map[string]tools.Property{
				"program_name": {Type: "string", Description: "Program crate name, snake_case"},
				"cargo_toml":   {Type: "string", Description: "Full Cargo.toml content for the program crate"},
				"lib_rs":       {Type: "string", Description: "Full lib.rs source for the program"},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			artifact, err := b.CreateProgram(ctx,
				stringArg(args, "program_name", ""),
				stringArg(args, "cargo_toml", ""),
				stringArg(args, "lib_rs", ""),
			)
			if err != nil {
				return "", err
			}
			return asJSON(artifact)
		},
	}
}

// AnchorBuild rebuilds an existing workspace, typically after the files
// tools edited its source.
func AnchorBuild(b *anchor.Builder) *tools.Tool {
	return &tools.Tool{
		Name:        "anchor_build",
		Description: "Runs 'anchor build' in an existing workspace and returns the artifact paths.",
		Category:    tools.CategoryBuild,
		Schema: tools.Schema{
			Required: []string{"workspace_dir"},
			Properties: map[string]tools.Property{
				"workspace_dir": {Type: "string", Description: "Workspace directory returned by anchor_create_program"},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			artifact, err := b.Rebuild(ctx, stringArg(args, "workspace_dir", ""))
			if err != nil {
				return "", err
			}
			return asJSON(artifact)
		},
	}
}
