// sigil/callinfo.go
// Call-site classification and active-parameter calculation for the
// signature-help query.
package sigil

import "strings"

// fnCallNode is the call expression enclosing the cursor, tagged with the
// shape it was recognized as.
type fnCallNode struct {
	node     *Node
	isMethod bool
}

// callNodeAt locates the innermost call-shaped node containing offset.
// Plain call expressions win over method calls, matching the order the two
// shapes are probed in; nil means the cursor is not inside any call.
func callNodeAt(root *Node, offset int) *fnCallNode {
	if n := innermostOfKind(root, KindCallExpr, offset); n != nil {
		return &fnCallNode{node: n}
	}
	if n := innermostOfKind(root, KindMethodCallExpr, offset); n != nil {
		return &fnCallNode{node: n, isMethod: true}
	}
	return nil
}

// nameRef extracts the callee name reference, or nil when the callee shape
// is not resolvable by name.
//
// For a method call this is the first NAME_REF among the call node's direct
// children. That positional scan is a deliberate approximation: in exotic
// node shapes it can land on a receiver name instead of the method name.
func (c *fnCallNode) nameRef() *Node {
	if c.isMethod {
		return childOfKind(c.node, KindNameRef)
	}
	// Direct call: only a plain path callee has a name to resolve. Calls
	// through arbitrary expressions, e.g. (f())(x), yield nothing.
	callee := firstExprChild(c.node)
	if callee == nil || callee.kind != KindPathExpr {
		return nil
	}
	path := childOfKind(callee, KindPath)
	if path == nil {
		return nil
	}
	segs := childrenOfKind(path, KindPathSegment)
	if len(segs) == 0 {
		return nil
	}
	return childOfKind(segs[len(segs)-1], KindNameRef)
}

// argList returns the call's argument-list node, or nil while the user has
// not typed the parentheses yet.
func (c *fnCallNode) argList() *Node {
	return childOfKind(c.node, KindArgList)
}

func firstExprChild(n *Node) *Node {
	for _, c := range n.children {
		if c.kind.IsTrivia() {
			continue
		}
		return c
	}
	return nil
}

// activeParameter computes the zero-based index into the rendered parameter
// list (receiver at index 0 when present) of the parameter the cursor sits
// at, or nil when no slot is active.
//
// The position is derived by counting commas in the argument-list text
// between the list's start and the cursor. This is textual, not structural:
// a comma inside a nested call or literal overcounts. That trade-off is
// intentional; the query already operates on possibly broken mid-edit
// syntax where a structural walk has little to anchor on.
func activeParameter(numParams int, hasSelf bool, argList *Node, offset int) *int {
	switch {
	case numParams == 1:
		if !hasSelf {
			return intPtr(0)
		}
		return nil
	case numParams > 1:
		if argList == nil {
			return nil
		}
		start := argList.rng.Start
		end := offset
		if end > argList.rng.End {
			end = argList.rng.End
		}
		if end < start {
			end = start
		}
		text := argList.Text()
		commas := strings.Count(text[:end-start], ",")
		if hasSelf {
			// The receiver occupies rendered slot 0 and is never written
			// in the argument list.
			commas++
		}
		return intPtr(commas)
	}
	return nil
}

func intPtr(v int) *int { return &v }
