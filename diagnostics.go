// sigil/diagnostics.go
// Parse-level diagnostics derived from error nodes in the syntax tree.
package sigil

import "fmt"

const diagnosticSource = "sigil-parser"

// syntaxDiagnostics reports every region the parser could not make sense
// of. Adjacent error tokens inside one ERROR_NODE produce one diagnostic.
func syntaxDiagnostics(root *Node) []Diagnostic {
	var out []Diagnostic
	var walk func(n *Node)
	walk = func(n *Node) {
		switch n.kind {
		case KindErrorNode:
			out = append(out, Diagnostic{
				Range:    n.rng,
				Severity: SeverityError,
				Source:   diagnosticSource,
				Message:  fmt.Sprintf("unexpected input: %q", clipText(n.Text(), 40)),
			})
			return // do not double-report the tokens inside
		case KindError:
			out = append(out, Diagnostic{
				Range:    n.rng,
				Severity: SeverityError,
				Source:   diagnosticSource,
				Message:  fmt.Sprintf("unexpected character %q", n.tokText),
			})
			return
		}
		for _, c := range n.children {
			walk(c)
		}
	}
	if root != nil {
		walk(root)
	}
	return out
}

func clipText(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
