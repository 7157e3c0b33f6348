// sigil/signature.go
// Renders a human-readable signature from a function definition node using
// only syntax: no type inference, no semantic model.
package sigil

import "strings"

// signatureInfo is the rendered form of one function definition.
type signatureInfo struct {
	label  string
	params []string
	doc    string // empty when the definition has no documentation
}

// newSignatureInfo builds the rendered signature for a FN_DEF node.
// It always produces a value for a well-formed node.
func newSignatureInfo(fnDef *Node) *signatureInfo {
	if fnDef == nil || fnDef.kind != KindFnDef {
		return nil
	}

	// Strip the body out for the label; a bodiless declaration (e.g. a
	// trait method without a default) keeps its full text.
	var label string
	if body := childOfKind(fnDef, KindBlockExpr); body != nil {
		var sb strings.Builder
		for _, child := range fnDef.children {
			if child.rng.IsSubrangeOf(body.rng) {
				continue
			}
			sb.WriteString(child.Text())
		}
		label = sb.String()
	} else {
		label = fnDef.Text()
	}

	doc := ""
	if span, text, ok := extractDocComments(fnDef); ok {
		// Excise the comment block from the label; the span is relative
		// to the definition's own start and the comments precede the
		// body, so the offsets carry over to the body-stripped label.
		start := span.Start - fnDef.rng.Start
		end := span.End - fnDef.rng.Start
		if start >= 0 && end <= len(label) && start <= end {
			label = label[:start] + label[end:]
		}
		doc = normalizeDoc(text)
	}

	return &signatureInfo{
		label:  strings.TrimSpace(label),
		params: renderParams(fnDef),
		doc:    doc,
	}
}

// extractDocComments returns the range spanning every comment attached to
// the definition (doc or not, so the whole block disappears from the label)
// together with the text of the doc comments alone.
func extractDocComments(fnDef *Node) (TextRange, string, bool) {
	comments := childrenOfKind(fnDef, KindComment)
	if len(comments) == 0 {
		return TextRange{}, "", false
	}

	span := comments[0].rng
	for _, c := range comments[1:] {
		if c.rng.Start < span.Start {
			span.Start = c.rng.Start
		}
		if c.rng.End > span.End {
			span.End = c.rng.End
		}
	}

	var lines []string
	for _, c := range comments {
		if !isDocComment(c.tokText) {
			continue
		}
		lines = append(lines, strings.TrimSpace(strings.TrimPrefix(c.tokText, "///")))
	}
	return span, strings.Join(lines, "\n"), true
}

// normalizeDoc retags untyped code fences so embedded examples highlight as
// the source language in downstream markdown viewers. Running it on its own
// output changes nothing.
func normalizeDoc(text string) string {
	lines := strings.Split(text, "\n")
	inCodeBlock := false
	for i, line := range lines {
		if strings.HasPrefix(line, "```") {
			inCodeBlock = !inCodeBlock
			if inCodeBlock && !strings.Contains(line, "rust") {
				lines[i] = "```rust"
			}
		}
	}
	out := strings.Join(lines, "\n")
	if strings.TrimSpace(out) == "" {
		return ""
	}
	return out
}

// renderParams renders the parameter list: the self parameter's full text
// first when present, then each parameter's binding pattern (pattern only,
// never the type). Parameters without a determinable pattern are skipped.
func renderParams(fnDef *Node) []string {
	paramList := childOfKind(fnDef, KindParamList)
	if paramList == nil {
		return nil
	}
	var out []string
	if selfParam := childOfKind(paramList, KindSelfParam); selfParam != nil {
		out = append(out, selfParam.Text())
	}
	for _, param := range childrenOfKind(paramList, KindParam) {
		pat := childOfKind(param, KindBindPat)
		if pat == nil {
			continue
		}
		out = append(out, pat.Text())
	}
	return out
}

// fnSelfParam returns the definition's self parameter node, if any.
func fnSelfParam(fnDef *Node) *Node {
	paramList := childOfKind(fnDef, KindParamList)
	if paramList == nil {
		return nil
	}
	return childOfKind(paramList, KindSelfParam)
}
