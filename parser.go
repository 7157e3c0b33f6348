// sigil/parser.go
// Error-tolerant recursive descent parser producing a lossless syntax tree.
// The parser never fails: unexpected tokens become ERROR_NODE leaves and
// unclosed delimiters close at the nearest recovery point, so mid-edit text
// still yields a usable tree.
package sigil

// kindEOF is a sentinel returned by lookahead past the last token.
const kindEOF = kindMax

// Parse builds a syntax tree for src. The returned root is a SOURCE_FILE
// node whose text reproduces src exactly.
func Parse(src string) *Node {
	p := &parser{src: src, toks: lex(src)}
	p.parseSourceFile()
	return p.root
}

type parser struct {
	src  string
	toks []token
	pos  int // next unconsumed token, may point at trivia

	stack       []*Node
	root        *Node
	noStructLit bool
}

type checkpoint struct {
	node *Node
	idx  int
}

// --- builder primitives ---

func (p *parser) top() *Node {
	return p.stack[len(p.stack)-1]
}

func (p *parser) leaf(t token) *Node {
	return &Node{
		kind:    t.kind,
		rng:     TextRange{Start: t.start, End: t.end},
		tokText: p.src[t.start:t.end],
	}
}

// flushTrivia appends pending whitespace/comment tokens to the open node.
func (p *parser) flushTrivia() {
	for p.pos < len(p.toks) && p.toks[p.pos].kind.IsTrivia() {
		p.top().children = append(p.top().children, p.leaf(p.toks[p.pos]))
		p.pos++
	}
}

// startNode flushes pending trivia to the parent, then opens a new node.
func (p *parser) startNode(kind SyntaxKind) {
	if len(p.stack) > 0 {
		p.flushTrivia()
	}
	p.stack = append(p.stack, &Node{kind: kind})
}

// startItemNode opens a node that captures the pending leading trivia, so
// doc comments become direct children of the item they document.
func (p *parser) startItemNode(kind SyntaxKind) {
	p.stack = append(p.stack, &Node{kind: kind})
	p.flushTrivia()
}

func (p *parser) mark() checkpoint {
	return checkpoint{node: p.top(), idx: len(p.top().children)}
}

// startNodeAt opens a node that retroactively adopts every child added to
// the checkpointed node since the checkpoint was taken. Used for postfix
// expressions, where the callee is parsed before the call shape is known.
func (p *parser) startNodeAt(c checkpoint, kind SyntaxKind) {
	n := &Node{kind: kind}
	n.children = append(n.children, c.node.children[c.idx:]...)
	c.node.children = c.node.children[:c.idx]
	p.stack = append(p.stack, n)
}

func (p *parser) finishNode() {
	n := p.top()
	p.stack = p.stack[:len(p.stack)-1]
	if len(n.children) > 0 {
		n.rng = TextRange{Start: n.children[0].rng.Start, End: n.children[len(n.children)-1].rng.End}
	} else {
		off := p.curOffset()
		n.rng = TextRange{Start: off, End: off}
	}
	for _, c := range n.children {
		c.parent = n
	}
	if len(p.stack) > 0 {
		p.top().children = append(p.top().children, n)
	} else {
		p.root = n
	}
}

func (p *parser) curOffset() int {
	if p.pos < len(p.toks) {
		return p.toks[p.pos].start
	}
	return len(p.src)
}

// nth returns the kind of the i-th non-trivia token ahead of the cursor.
func (p *parser) nth(i int) SyntaxKind {
	seen := 0
	for j := p.pos; j < len(p.toks); j++ {
		if p.toks[j].kind.IsTrivia() {
			continue
		}
		if seen == i {
			return p.toks[j].kind
		}
		seen++
	}
	return kindEOF
}

func (p *parser) current() SyntaxKind { return p.nth(0) }

func (p *parser) at(kind SyntaxKind) bool { return p.current() == kind }

func (p *parser) atEOF() bool { return p.current() == kindEOF }

// bump consumes the next non-trivia token into the open node.
func (p *parser) bump() {
	p.flushTrivia()
	if p.pos >= len(p.toks) {
		return
	}
	p.top().children = append(p.top().children, p.leaf(p.toks[p.pos]))
	p.pos++
}

func (p *parser) eat(kind SyntaxKind) bool {
	if p.at(kind) {
		p.bump()
		return true
	}
	return false
}

// errorBump consumes one unexpected token wrapped in an ERROR_NODE.
func (p *parser) errorBump() {
	p.startNode(KindErrorNode)
	p.bump()
	p.finishNode()
}

// consumeBalanced consumes an open..close delimiter pair with nesting,
// stopping at end of input if the close delimiter is missing.
func (p *parser) consumeBalanced(open, close SyntaxKind) {
	if !p.at(open) {
		return
	}
	depth := 0
	for !p.atEOF() {
		switch p.current() {
		case open:
			depth++
		case close:
			depth--
		}
		p.bump()
		if depth == 0 {
			return
		}
	}
}

// --- items ---

var itemStartKinds = map[SyntaxKind]bool{
	KindFnKw:     true,
	KindPubKw:    true,
	KindStructKw: true,
	KindEnumKw:   true,
	KindTraitKw:  true,
	KindImplKw:   true,
	KindConstKw:  true,
	KindStaticKw: true,
	KindModKw:    true,
	KindUseKw:    true,
	KindTypeKw:   true,
	KindUnsafeKw: true,
	KindAsyncKw:  true,
	KindPound:    true,
}

func (p *parser) atItemStart() bool {
	return itemStartKinds[p.current()]
}

// itemKindAhead classifies the upcoming item without consuming anything,
// looking through attributes, visibility, and fn modifiers.
func (p *parser) itemKindAhead() SyntaxKind {
	i := 0
	next := func() SyntaxKind { k := p.nth(i); i++; return k }
	k := next()
	for {
		switch k {
		case KindPound:
			k = next()
			if k == KindBang {
				k = next()
			}
			if k == KindLBrack {
				depth := 1
				for depth > 0 {
					k = next()
					if k == kindEOF {
						return KindErrorNode
					}
					if k == KindLBrack {
						depth++
					} else if k == KindRBrack {
						depth--
					}
				}
				k = next()
			}
		case KindPubKw:
			k = next()
			if k == KindLParen {
				depth := 1
				for depth > 0 {
					k = next()
					if k == kindEOF {
						return KindErrorNode
					}
					if k == KindLParen {
						depth++
					} else if k == KindRParen {
						depth--
					}
				}
				k = next()
			}
		case KindUnsafeKw, KindAsyncKw:
			k = next()
		case KindConstKw:
			// "const fn" is a function, otherwise a const item.
			if p.nth(i) == KindFnKw || nextIsFnModifier(p, i) {
				k = next()
				continue
			}
			return KindConstDef
		case KindFnKw:
			return KindFnDef
		case KindStructKw:
			return KindStructDef
		case KindEnumKw:
			return KindEnumDef
		case KindTraitKw:
			return KindTraitDef
		case KindImplKw:
			return KindImplBlock
		case KindStaticKw:
			return KindStaticDef
		case KindModKw:
			return KindModDef
		case KindUseKw:
			return KindUseDef
		case KindTypeKw:
			return KindTypeAliasDef
		default:
			return KindErrorNode
		}
	}
}

func nextIsFnModifier(p *parser, i int) bool {
	switch p.nth(i) {
	case KindUnsafeKw, KindAsyncKw:
		return true
	}
	return false
}

func (p *parser) parseSourceFile() {
	p.startNode(KindSourceFile)
	for !p.atEOF() {
		if p.atItemStart() && p.itemKindAhead() != KindErrorNode {
			p.parseItem()
		} else {
			p.errorBump()
		}
	}
	p.flushTrivia()
	p.finishNode()
}

func (p *parser) parseItem() {
	kind := p.itemKindAhead()
	p.startItemNode(kind)
	p.parseAttrs()
	p.parseVisibility()
	switch kind {
	case KindFnDef:
		p.parseFnTail()
	case KindStructDef:
		p.parseStructTail()
	case KindEnumDef:
		p.bump() // enum
		p.parseName()
		p.parseTypeParamList()
		p.consumeBalanced(KindLBrace, KindRBrace)
	case KindTraitDef:
		p.parseTraitTail()
	case KindImplBlock:
		p.parseImplTail()
	case KindConstDef, KindStaticDef:
		p.parseConstTail()
	case KindModDef:
		p.parseModTail()
	case KindUseDef, KindTypeAliasDef:
		p.bump() // use / type
		for !p.atEOF() && !p.at(KindSemicolon) && !p.at(KindLBrace) && !p.at(KindRBrace) {
			p.bump()
		}
		p.eat(KindSemicolon)
	default:
		p.bump()
	}
	p.finishNode()
}

func (p *parser) parseAttrs() {
	for p.at(KindPound) {
		p.bump()
		p.eat(KindBang)
		p.consumeBalanced(KindLBrack, KindRBrack)
	}
}

func (p *parser) parseVisibility() {
	if !p.at(KindPubKw) {
		return
	}
	p.startNode(KindVisibility)
	p.bump()
	p.consumeBalanced(KindLParen, KindRParen)
	p.finishNode()
}

func (p *parser) parseName() {
	if p.at(KindIdent) {
		p.startNode(KindName)
		p.bump()
		p.finishNode()
	}
}

func (p *parser) parseTypeParamList() {
	if !p.at(KindLAngle) {
		return
	}
	p.startNode(KindTypeParamList)
	p.consumeBalanced(KindLAngle, KindRAngle)
	p.finishNode()
}

func (p *parser) parseFnTail() {
	for p.at(KindConstKw) || p.at(KindUnsafeKw) || p.at(KindAsyncKw) {
		p.bump()
	}
	if !p.eat(KindFnKw) {
		return
	}
	p.parseName()
	p.parseTypeParamList()
	if p.at(KindLParen) {
		p.parseParamList()
	}
	if p.at(KindArrow) {
		p.startNode(KindRetType)
		p.bump()
		p.parseTypeRef(KindLBrace, KindSemicolon, KindWhereKw)
		p.finishNode()
	}
	if p.at(KindWhereKw) {
		p.startNode(KindWhereClause)
		p.bump()
		p.consumeTypeTokens(KindLBrace, KindSemicolon, kindEOF)
		p.finishNode()
	}
	if p.at(KindLBrace) {
		p.parseBlockExpr()
	} else {
		p.eat(KindSemicolon)
	}
}

func (p *parser) parseStructTail() {
	p.bump() // struct
	p.parseName()
	p.parseTypeParamList()
	switch p.current() {
	case KindSemicolon:
		p.bump()
	case KindLBrace:
		p.consumeBalanced(KindLBrace, KindRBrace)
	case KindLParen:
		p.consumeBalanced(KindLParen, KindRParen)
		p.eat(KindSemicolon)
	}
}

func (p *parser) parseTraitTail() {
	p.bump() // trait
	p.parseName()
	p.parseTypeParamList()
	if p.at(KindColon) {
		p.bump()
		p.consumeTypeTokens(KindLBrace, KindWhereKw, KindSemicolon)
	}
	if p.at(KindWhereKw) {
		p.startNode(KindWhereClause)
		p.bump()
		p.consumeTypeTokens(KindLBrace, KindSemicolon, kindEOF)
		p.finishNode()
	}
	p.parseAssocItemBlock()
}

func (p *parser) parseImplTail() {
	p.bump() // impl
	p.consumeTypeTokens(KindLBrace, KindSemicolon, kindEOF)
	p.parseAssocItemBlock()
}

func (p *parser) parseAssocItemBlock() {
	if !p.at(KindLBrace) {
		p.eat(KindSemicolon)
		return
	}
	p.bump()
	for !p.atEOF() && !p.at(KindRBrace) {
		if p.atItemStart() && p.itemKindAhead() != KindErrorNode {
			p.parseItem()
		} else {
			p.errorBump()
		}
	}
	p.eat(KindRBrace)
}

func (p *parser) parseConstTail() {
	p.bump() // const / static
	p.eat(KindMutKw)
	p.parseName()
	if p.at(KindColon) {
		p.bump()
		p.parseTypeRef(KindEq, KindSemicolon)
	}
	if p.eat(KindEq) {
		p.parseExpr()
	}
	p.eat(KindSemicolon)
}

func (p *parser) parseModTail() {
	p.bump() // mod
	p.parseName()
	if p.at(KindLBrace) {
		p.bump()
		for !p.atEOF() && !p.at(KindRBrace) {
			if p.atItemStart() && p.itemKindAhead() != KindErrorNode {
				p.parseItem()
			} else {
				p.errorBump()
			}
		}
		p.eat(KindRBrace)
	} else {
		p.eat(KindSemicolon)
	}
}

// --- parameters and types ---

func (p *parser) parseParamList() {
	p.startNode(KindParamList)
	p.bump() // (
	if p.selfParamAhead() {
		p.parseSelfParam()
		p.eat(KindComma)
	}
	for !p.atEOF() && !p.at(KindRParen) && !p.at(KindLBrace) && !p.at(KindSemicolon) {
		p.parseParam()
		if !p.eat(KindComma) {
			break
		}
	}
	p.eat(KindRParen)
	p.finishNode()
}

func (p *parser) selfParamAhead() bool {
	switch p.current() {
	case KindSelfKw:
		return true
	case KindMutKw:
		return p.nth(1) == KindSelfKw
	case KindAmp:
		switch p.nth(1) {
		case KindSelfKw:
			return true
		case KindMutKw:
			return p.nth(2) == KindSelfKw
		case KindLifetime:
			return p.nth(2) == KindSelfKw || (p.nth(2) == KindMutKw && p.nth(3) == KindSelfKw)
		}
	}
	return false
}

func (p *parser) parseSelfParam() {
	p.startNode(KindSelfParam)
	for p.at(KindAmp) || p.at(KindLifetime) || p.at(KindMutKw) {
		p.bump()
	}
	p.eat(KindSelfKw)
	if p.at(KindColon) {
		p.bump()
		p.parseTypeRef(KindComma, KindRParen)
	}
	p.finishNode()
}

// parseParam handles "pat: Type" and, for trait method declarations,
// bare "Type" parameters that have no binding pattern.
func (p *parser) parseParam() {
	p.startNode(KindParam)
	if p.paramHasPattern() {
		p.startNode(KindBindPat)
		p.consumeTypeTokens(KindColon, KindComma, KindRParen)
		p.finishNode()
		p.eat(KindColon)
	}
	p.parseTypeRef(KindComma, KindRParen)
	p.finishNode()
}

// paramHasPattern scans ahead for a ':' before the parameter ends.
func (p *parser) paramHasPattern() bool {
	depth := 0
	i := 0
	for {
		k := p.nth(i)
		i++
		switch k {
		case kindEOF, KindLBrace, KindSemicolon:
			return false
		case KindLParen, KindLBrack, KindLAngle:
			depth++
		case KindRParen, KindRBrack, KindRAngle:
			if depth == 0 {
				return false
			}
			depth--
		case KindComma:
			if depth == 0 {
				return false
			}
		case KindColon:
			if depth == 0 {
				return true
			}
		}
	}
}

// parseTypeRef wraps type tokens in a TYPE_REF node, stopping at any of the
// given kinds at bracket depth zero.
func (p *parser) parseTypeRef(stops ...SyntaxKind) {
	p.startNode(KindTypeRef)
	p.consumeTypeTokens(stops...)
	p.finishNode()
}

// consumeTypeTokens consumes raw tokens with bracket-depth tracking until a
// stop kind (or an unmatched closer, or end of input) appears at depth zero.
func (p *parser) consumeTypeTokens(stops ...SyntaxKind) {
	depth := 0
	for !p.atEOF() {
		k := p.current()
		if depth == 0 {
			for _, s := range stops {
				if k == s {
					return
				}
			}
			switch k {
			case KindRParen, KindRBrack, KindRAngle, KindRBrace, KindLBrace:
				return
			}
		}
		switch k {
		case KindLParen, KindLBrack, KindLAngle:
			depth++
		case KindRParen, KindRBrack, KindRAngle:
			depth--
		}
		p.bump()
	}
}

// --- statements and expressions ---

func (p *parser) parseBlockExpr() {
	p.startNode(KindBlockExpr)
	p.bump() // {
	for !p.atEOF() && !p.at(KindRBrace) {
		switch {
		case p.at(KindLetKw):
			p.parseLetStmt()
		case p.at(KindSemicolon):
			p.bump()
		case p.atItemStart() && p.itemKindAhead() != KindErrorNode:
			p.parseItem()
		default:
			cp := p.mark()
			if p.parseExpr() {
				if p.at(KindSemicolon) {
					p.startNodeAt(cp, KindExprStmt)
					p.bump()
					p.finishNode()
				}
			} else {
				p.errorBump()
			}
		}
	}
	p.eat(KindRBrace)
	p.finishNode()
}

func (p *parser) parseLetStmt() {
	p.startNode(KindLetStmt)
	p.bump() // let
	if !p.at(KindColon) && !p.at(KindEq) && !p.at(KindSemicolon) {
		p.startNode(KindBindPat)
		p.consumeTypeTokens(KindColon, KindEq, KindSemicolon)
		p.finishNode()
	}
	if p.at(KindColon) {
		p.bump()
		p.parseTypeRef(KindEq, KindSemicolon)
	}
	if p.eat(KindEq) {
		p.parseExpr()
	}
	p.eat(KindSemicolon)
	p.finishNode()
}

var binOpKinds = map[SyntaxKind]bool{
	KindPlus:     true,
	KindMinus:    true,
	KindStar:     true,
	KindSlash:    true,
	KindPercent:  true,
	KindEqEq:     true,
	KindNeq:      true,
	KindLAngle:   true,
	KindRAngle:   true,
	KindLtEq:     true,
	KindGtEq:     true,
	KindAmpAmp:   true,
	KindPipePipe: true,
	KindEq:       true,
	KindDotDot:   true,
	KindAsKw:     true,
}

// parseExpr parses a flat left-associative expression chain. Operator
// precedence is irrelevant here; call and method-call shapes are all the
// downstream consumers look at.
func (p *parser) parseExpr() bool {
	cp := p.mark()
	if !p.parsePostfixExpr() {
		return false
	}
	for binOpKinds[p.current()] {
		p.startNodeAt(cp, KindBinExpr)
		p.bump()
		if !p.parsePostfixExpr() {
			p.finishNode()
			return true
		}
		p.finishNode()
	}
	return true
}

func (p *parser) parsePostfixExpr() bool {
	cp := p.mark()
	if !p.parsePrimaryExpr() {
		return false
	}
	for {
		switch {
		case p.at(KindLParen):
			p.startNodeAt(cp, KindCallExpr)
			p.parseArgList()
			p.finishNode()
		case p.at(KindDot) && p.nth(1) == KindIdent && p.nth(2) == KindLParen:
			p.startNodeAt(cp, KindMethodCallExpr)
			p.bump() // .
			p.startNode(KindNameRef)
			p.bump() // method name
			p.finishNode()
			p.parseArgList()
			p.finishNode()
		case p.at(KindDot) && (p.nth(1) == KindIdent || p.nth(1) == KindIntNumber):
			p.startNodeAt(cp, KindFieldExpr)
			p.bump() // .
			p.startNode(KindNameRef)
			p.bump() // field name or tuple index
			p.finishNode()
			p.finishNode()
		case p.at(KindQuestion):
			p.startNodeAt(cp, KindPrefixExpr)
			p.bump()
			p.finishNode()
		default:
			return true
		}
	}
}

func (p *parser) parseArgList() {
	p.startNode(KindArgList)
	p.bump() // (
	for !p.atEOF() && !p.at(KindRParen) && !p.at(KindRBrace) && !p.at(KindSemicolon) {
		if p.at(KindComma) {
			p.bump()
			continue
		}
		if !p.parseExpr() {
			break
		}
		if !p.eat(KindComma) && !p.at(KindRParen) {
			break
		}
	}
	p.eat(KindRParen)
	p.finishNode()
}

func (p *parser) parsePrimaryExpr() bool {
	switch p.current() {
	case KindIntNumber, KindFloatNumber, KindString, KindChar, KindTrueKw, KindFalseKw:
		p.startNode(KindLiteral)
		p.bump()
		p.finishNode()
		return true

	case KindIdent, KindSelfKw, KindSelfTypeKw, KindCrateKw, KindSuperKw:
		cp := p.mark()
		p.parsePath()
		if p.at(KindLBrace) && !p.noStructLit {
			p.startNodeAt(cp, KindStructLit)
			p.consumeBalanced(KindLBrace, KindRBrace)
			p.finishNode()
		} else {
			p.startNodeAt(cp, KindPathExpr)
			p.finishNode()
		}
		return true

	case KindAmp, KindStar, KindMinus, KindBang:
		p.startNode(KindPrefixExpr)
		p.bump()
		p.eat(KindMutKw)
		p.parsePostfixExpr()
		p.finishNode()
		return true

	case KindLParen:
		p.startNode(KindParenExpr)
		p.bump()
		for !p.atEOF() && !p.at(KindRParen) {
			if !p.parseExpr() {
				break
			}
			if !p.eat(KindComma) {
				break
			}
		}
		p.eat(KindRParen)
		p.finishNode()
		return true

	case KindLBrace:
		p.parseBlockExpr()
		return true

	case KindIfKw:
		p.parseIfExpr()
		return true

	case KindWhileKw:
		p.startNode(KindWhileExpr)
		p.bump()
		p.parseCondExpr()
		if p.at(KindLBrace) {
			p.parseBlockExpr()
		}
		p.finishNode()
		return true

	case KindLoopKw:
		p.startNode(KindLoopExpr)
		p.bump()
		if p.at(KindLBrace) {
			p.parseBlockExpr()
		}
		p.finishNode()
		return true

	case KindForKw:
		p.startNode(KindForExpr)
		p.bump()
		p.startNode(KindBindPat)
		p.consumeTypeTokens(KindInKw, KindLBrace, KindSemicolon)
		p.finishNode()
		if p.eat(KindInKw) {
			p.parseCondExpr()
		}
		if p.at(KindLBrace) {
			p.parseBlockExpr()
		}
		p.finishNode()
		return true

	case KindMatchKw:
		p.parseMatchExpr()
		return true

	case KindReturnKw:
		p.startNode(KindReturnExpr)
		p.bump()
		if !p.at(KindSemicolon) && !p.at(KindRBrace) && !p.atEOF() {
			p.parseExpr()
		}
		p.finishNode()
		return true
	}
	return false
}

// parseCondExpr parses a condition with struct literals disallowed, which
// keeps "if x {" from swallowing the block as a literal body.
func (p *parser) parseCondExpr() {
	saved := p.noStructLit
	p.noStructLit = true
	p.parseExpr()
	p.noStructLit = saved
}

func (p *parser) parseIfExpr() {
	p.startNode(KindIfExpr)
	p.bump() // if
	p.eat(KindLetKw)
	p.parseCondExpr()
	if p.at(KindEq) { // if let pat = expr
		p.bump()
		p.parseCondExpr()
	}
	if p.at(KindLBrace) {
		p.parseBlockExpr()
	}
	if p.eat(KindElseKw) {
		if p.at(KindIfKw) {
			p.parseIfExpr()
		} else if p.at(KindLBrace) {
			p.parseBlockExpr()
		}
	}
	p.finishNode()
}

// parseMatchExpr parses the scrutinee precisely and the arm block loosely:
// arm patterns are not modeled, but any expression inside an arm still gets
// proper call nodes.
func (p *parser) parseMatchExpr() {
	p.startNode(KindMatchExpr)
	p.bump() // match
	p.parseCondExpr()
	if p.at(KindLBrace) {
		p.bump()
		for !p.atEOF() && !p.at(KindRBrace) {
			switch p.current() {
			case KindFatArrow, KindComma, KindPipe:
				p.bump()
			default:
				if !p.parseExpr() {
					p.bump()
				}
			}
		}
		p.eat(KindRBrace)
	}
	p.finishNode()
}

func (p *parser) parsePath() {
	p.startNode(KindPath)
	p.parsePathSegment()
	for p.at(KindColonColon) {
		p.bump()
		if p.at(KindLAngle) {
			p.consumeBalanced(KindLAngle, KindRAngle) // turbofish
			continue
		}
		if !p.atPathSegmentStart() {
			break
		}
		p.parsePathSegment()
	}
	p.finishNode()
}

func (p *parser) atPathSegmentStart() bool {
	switch p.current() {
	case KindIdent, KindSelfKw, KindSelfTypeKw, KindCrateKw, KindSuperKw:
		return true
	}
	return false
}

func (p *parser) parsePathSegment() {
	if !p.atPathSegmentStart() {
		return
	}
	p.startNode(KindPathSegment)
	p.startNode(KindNameRef)
	p.bump()
	p.finishNode()
	p.finishNode()
}
