package anchor

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/rust"
)

// maxDiagnostics bounds the gate's output; a hopeless file does not need
// every error spelled out.
const maxDiagnostics = 10

// sourceDiagnostics parses Rust source with tree-sitter and reports parse
// errors as file positions. An empty result means the source is at least
// syntactically plausible; the compiler remains ground truth for
// everything beyond the grammar.
func sourceDiagnostics(src []byte) []string {
	parser := sitter.NewParser()
	parser.SetLanguage(rust.GetLanguage())

	tree, err := parser.ParseCtx(context.Background(), nil, src)
	if err != nil {
		return []string{fmt.Sprintf("parser failure: %v", err)}
	}
	defer tree.Close()

	root := tree.RootNode()
	if !root.HasError() {
		return nil
	}

	var diags []string
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if len(diags) >= maxDiagnostics {
			return
		}
		if n.IsError() {
			diags = append(diags, fmt.Sprintf("%d:%d: syntax error near %q",
				n.StartPoint().Row+1, n.StartPoint().Column+1, clip(n.Content(src), 40)))
			return
		}
		if n.IsMissing() {
			diags = append(diags, fmt.Sprintf("%d:%d: missing %s",
				n.StartPoint().Row+1, n.StartPoint().Column+1, n.Type()))
			return
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(root)

	if len(diags) == 0 {
		// HasError was set but no concrete node surfaced; still reject.
		diags = append(diags, "source contains parse errors")
	}
	return diags
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
