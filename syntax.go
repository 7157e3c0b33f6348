// sigil/syntax.go
// Syntax kinds, text ranges, and the immutable syntax tree node.
package sigil

import "strings"

// SyntaxKind tags every token and node in a syntax tree.
type SyntaxKind uint8

const (
	KindError SyntaxKind = iota

	// Tokens (trivia)
	KindWhitespace
	KindComment

	// Tokens (literals and names)
	KindIdent
	KindIntNumber
	KindFloatNumber
	KindString
	KindChar
	KindLifetime

	// Tokens (punctuation)
	KindLParen
	KindRParen
	KindLBrace
	KindRBrace
	KindLBrack
	KindRBrack
	KindLAngle
	KindRAngle
	KindComma
	KindColon
	KindColonColon
	KindSemicolon
	KindDot
	KindDotDot
	KindArrow
	KindFatArrow
	KindAmp
	KindAmpAmp
	KindPipe
	KindPipePipe
	KindPlus
	KindMinus
	KindStar
	KindSlash
	KindPercent
	KindBang
	KindEq
	KindEqEq
	KindNeq
	KindLtEq
	KindGtEq
	KindQuestion
	KindAt
	KindPound

	// Tokens (keywords)
	KindFnKw
	KindPubKw
	KindStructKw
	KindEnumKw
	KindTraitKw
	KindImplKw
	KindConstKw
	KindStaticKw
	KindModKw
	KindUseKw
	KindLetKw
	KindMutKw
	KindSelfKw
	KindSelfTypeKw
	KindCrateKw
	KindSuperKw
	KindWhereKw
	KindForKw
	KindInKw
	KindIfKw
	KindElseKw
	KindWhileKw
	KindLoopKw
	KindMatchKw
	KindReturnKw
	KindRefKw
	KindUnsafeKw
	KindAsyncKw
	KindDynKw
	KindAsKw
	KindTypeKw
	KindTrueKw
	KindFalseKw

	// Nodes
	KindSourceFile
	KindFnDef
	KindStructDef
	KindEnumDef
	KindTraitDef
	KindImplBlock
	KindConstDef
	KindStaticDef
	KindModDef
	KindUseDef
	KindTypeAliasDef
	KindVisibility
	KindName
	KindNameRef
	KindTypeParamList
	KindParamList
	KindSelfParam
	KindParam
	KindBindPat
	KindTypeRef
	KindRetType
	KindWhereClause
	KindBlockExpr
	KindLetStmt
	KindExprStmt
	KindPath
	KindPathSegment
	KindPathExpr
	KindCallExpr
	KindMethodCallExpr
	KindFieldExpr
	KindArgList
	KindParenExpr
	KindStructLit
	KindPrefixExpr
	KindBinExpr
	KindLiteral
	KindIfExpr
	KindWhileExpr
	KindLoopExpr
	KindForExpr
	KindMatchExpr
	KindReturnExpr
	KindErrorNode

	kindMax
)

var kindNames = [...]string{
	KindError:          "ERROR",
	KindWhitespace:     "WHITESPACE",
	KindComment:        "COMMENT",
	KindIdent:          "IDENT",
	KindIntNumber:      "INT_NUMBER",
	KindFloatNumber:    "FLOAT_NUMBER",
	KindString:         "STRING",
	KindChar:           "CHAR",
	KindLifetime:       "LIFETIME",
	KindLParen:         "L_PAREN",
	KindRParen:         "R_PAREN",
	KindLBrace:         "L_BRACE",
	KindRBrace:         "R_BRACE",
	KindLBrack:         "L_BRACK",
	KindRBrack:         "R_BRACK",
	KindLAngle:         "L_ANGLE",
	KindRAngle:         "R_ANGLE",
	KindComma:          "COMMA",
	KindColon:          "COLON",
	KindColonColon:     "COLON_COLON",
	KindSemicolon:      "SEMICOLON",
	KindDot:            "DOT",
	KindDotDot:         "DOT_DOT",
	KindArrow:          "ARROW",
	KindFatArrow:       "FAT_ARROW",
	KindAmp:            "AMP",
	KindAmpAmp:         "AMP_AMP",
	KindPipe:           "PIPE",
	KindPipePipe:       "PIPE_PIPE",
	KindPlus:           "PLUS",
	KindMinus:          "MINUS",
	KindStar:           "STAR",
	KindSlash:          "SLASH",
	KindPercent:        "PERCENT",
	KindBang:           "BANG",
	KindEq:             "EQ",
	KindEqEq:           "EQ_EQ",
	KindNeq:            "NEQ",
	KindLtEq:           "LT_EQ",
	KindGtEq:           "GT_EQ",
	KindQuestion:       "QUESTION",
	KindAt:             "AT",
	KindPound:          "POUND",
	KindFnKw:           "FN_KW",
	KindPubKw:          "PUB_KW",
	KindStructKw:       "STRUCT_KW",
	KindEnumKw:         "ENUM_KW",
	KindTraitKw:        "TRAIT_KW",
	KindImplKw:         "IMPL_KW",
	KindConstKw:        "CONST_KW",
	KindStaticKw:       "STATIC_KW",
	KindModKw:          "MOD_KW",
	KindUseKw:          "USE_KW",
	KindLetKw:          "LET_KW",
	KindMutKw:          "MUT_KW",
	KindSelfKw:         "SELF_KW",
	KindSelfTypeKw:     "SELF_TYPE_KW",
	KindCrateKw:        "CRATE_KW",
	KindSuperKw:        "SUPER_KW",
	KindWhereKw:        "WHERE_KW",
	KindForKw:          "FOR_KW",
	KindInKw:           "IN_KW",
	KindIfKw:           "IF_KW",
	KindElseKw:         "ELSE_KW",
	KindWhileKw:        "WHILE_KW",
	KindLoopKw:         "LOOP_KW",
	KindMatchKw:        "MATCH_KW",
	KindReturnKw:       "RETURN_KW",
	KindRefKw:          "REF_KW",
	KindUnsafeKw:       "UNSAFE_KW",
	KindAsyncKw:        "ASYNC_KW",
	KindDynKw:          "DYN_KW",
	KindAsKw:           "AS_KW",
	KindTypeKw:         "TYPE_KW",
	KindTrueKw:         "TRUE_KW",
	KindFalseKw:        "FALSE_KW",
	KindSourceFile:     "SOURCE_FILE",
	KindFnDef:          "FN_DEF",
	KindStructDef:      "STRUCT_DEF",
	KindEnumDef:        "ENUM_DEF",
	KindTraitDef:       "TRAIT_DEF",
	KindImplBlock:      "IMPL_BLOCK",
	KindConstDef:       "CONST_DEF",
	KindStaticDef:      "STATIC_DEF",
	KindModDef:         "MOD_DEF",
	KindUseDef:         "USE_DEF",
	KindTypeAliasDef:   "TYPE_ALIAS_DEF",
	KindVisibility:     "VISIBILITY",
	KindName:           "NAME",
	KindNameRef:        "NAME_REF",
	KindTypeParamList:  "TYPE_PARAM_LIST",
	KindParamList:      "PARAM_LIST",
	KindSelfParam:      "SELF_PARAM",
	KindParam:          "PARAM",
	KindBindPat:        "BIND_PAT",
	KindTypeRef:        "TYPE_REF",
	KindRetType:        "RET_TYPE",
	KindWhereClause:    "WHERE_CLAUSE",
	KindBlockExpr:      "BLOCK_EXPR",
	KindLetStmt:        "LET_STMT",
	KindExprStmt:       "EXPR_STMT",
	KindPath:           "PATH",
	KindPathSegment:    "PATH_SEGMENT",
	KindPathExpr:       "PATH_EXPR",
	KindCallExpr:       "CALL_EXPR",
	KindMethodCallExpr: "METHOD_CALL_EXPR",
	KindFieldExpr:      "FIELD_EXPR",
	KindArgList:        "ARG_LIST",
	KindParenExpr:      "PAREN_EXPR",
	KindStructLit:      "STRUCT_LIT",
	KindPrefixExpr:     "PREFIX_EXPR",
	KindBinExpr:        "BIN_EXPR",
	KindLiteral:        "LITERAL",
	KindIfExpr:         "IF_EXPR",
	KindWhileExpr:      "WHILE_EXPR",
	KindLoopExpr:       "LOOP_EXPR",
	KindForExpr:        "FOR_EXPR",
	KindMatchExpr:      "MATCH_EXPR",
	KindReturnExpr:     "RETURN_EXPR",
	KindErrorNode:      "ERROR_NODE",
}

func (k SyntaxKind) String() string {
	if int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return "UNKNOWN"
}

// IsTrivia reports whether the kind is whitespace or a comment.
func (k SyntaxKind) IsTrivia() bool {
	return k == KindWhitespace || k == KindComment
}

// TextRange is a half-open [Start, End) byte interval into one file's text.
type TextRange struct {
	Start int
	End   int
}

// Contains reports whether offset lies within the half-open range.
func (r TextRange) Contains(offset int) bool {
	return r.Start <= offset && offset < r.End
}

// ContainsInclusive reports whether offset lies within the range, treating
// the end boundary as part of the range. Cursor positions sit between
// characters, so a cursor at the very end of a node still belongs to it.
func (r TextRange) ContainsInclusive(offset int) bool {
	return r.Start <= offset && offset <= r.End
}

// IsSubrangeOf reports whether r is fully contained in other.
func (r TextRange) IsSubrangeOf(other TextRange) bool {
	return other.Start <= r.Start && r.End <= other.End
}

// Len returns the number of bytes covered by the range.
func (r TextRange) Len() int { return r.End - r.Start }

// Node is one element of an immutable syntax tree. Leaf nodes carry token
// text; interior nodes derive their text from their children. Trees are
// built once by Parse and never mutated afterwards.
type Node struct {
	kind     SyntaxKind
	rng      TextRange
	tokText  string
	parent   *Node
	children []*Node
}

// Kind returns the node's syntax kind tag.
func (n *Node) Kind() SyntaxKind { return n.kind }

// Range returns the node's byte range in the file text.
func (n *Node) Range() TextRange { return n.rng }

// Parent returns the node's parent, or nil for the root.
func (n *Node) Parent() *Node { return n.parent }

// Children returns the node's direct children in source order. The returned
// slice must not be modified.
func (n *Node) Children() []*Node { return n.children }

// IsLeaf reports whether the node is a token with no children.
func (n *Node) IsLeaf() bool { return len(n.children) == 0 }

// Text reconstructs the exact source text covered by the node.
func (n *Node) Text() string {
	if len(n.children) == 0 {
		return n.tokText
	}
	var sb strings.Builder
	sb.Grow(n.rng.Len())
	n.writeText(&sb)
	return sb.String()
}

func (n *Node) writeText(sb *strings.Builder) {
	if len(n.children) == 0 {
		sb.WriteString(n.tokText)
		return
	}
	for _, c := range n.children {
		c.writeText(sb)
	}
}

// childOfKind returns the first direct child with the given kind, or nil.
func childOfKind(n *Node, kind SyntaxKind) *Node {
	for _, c := range n.children {
		if c.kind == kind {
			return c
		}
	}
	return nil
}

// childrenOfKind returns all direct children with the given kind.
func childrenOfKind(n *Node, kind SyntaxKind) []*Node {
	var out []*Node
	for _, c := range n.children {
		if c.kind == kind {
			out = append(out, c)
		}
	}
	return out
}

// innermostOfKind returns the deepest node of the given kind whose range
// contains offset (end-inclusive), or nil if no such node exists.
func innermostOfKind(root *Node, kind SyntaxKind, offset int) *Node {
	var found *Node
	var walk func(*Node)
	walk = func(n *Node) {
		if !n.rng.ContainsInclusive(offset) {
			return
		}
		if n.kind == kind {
			found = n
		}
		for _, c := range n.children {
			walk(c)
		}
	}
	walk(root)
	return found
}

// NodePtr is a stable, tree-independent reference to a node: its kind plus
// its byte range. A pointer taken from one snapshot can be resolved in any
// snapshot of the same file content, which is how index entries refer back
// into source trees.
type NodePtr struct {
	Kind  SyntaxKind
	Range TextRange
}

// PtrFor returns a NodePtr referring to the given node.
func PtrFor(n *Node) NodePtr {
	return NodePtr{Kind: n.kind, Range: n.rng}
}

// Resolve walks the tree from root to the node the pointer refers to.
// Returns nil if the tree does not contain a matching node, which happens
// when the file changed since the pointer was taken.
func (p NodePtr) Resolve(root *Node) *Node {
	n := root
	for n != nil {
		if n.kind == p.Kind && n.rng == p.Range {
			return n
		}
		var next *Node
		for _, c := range n.children {
			if c.rng.Start <= p.Range.Start && p.Range.End <= c.rng.End {
				next = c
				break
			}
		}
		n = next
	}
	return nil
}
