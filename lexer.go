// sigil/lexer.go
// Full-fidelity tokenizer for the Rust subset sigil understands. Every byte
// of the input ends up in exactly one token, so a parsed tree can always
// reproduce its source text.
package sigil

import (
	"strings"
	"unicode/utf8"
)

type token struct {
	kind  SyntaxKind
	start int
	end   int
}

var keywords = map[string]SyntaxKind{
	"fn":     KindFnKw,
	"pub":    KindPubKw,
	"struct": KindStructKw,
	"enum":   KindEnumKw,
	"trait":  KindTraitKw,
	"impl":   KindImplKw,
	"const":  KindConstKw,
	"static": KindStaticKw,
	"mod":    KindModKw,
	"use":    KindUseKw,
	"let":    KindLetKw,
	"mut":    KindMutKw,
	"self":   KindSelfKw,
	"Self":   KindSelfTypeKw,
	"crate":  KindCrateKw,
	"super":  KindSuperKw,
	"where":  KindWhereKw,
	"for":    KindForKw,
	"in":     KindInKw,
	"if":     KindIfKw,
	"else":   KindElseKw,
	"while":  KindWhileKw,
	"loop":   KindLoopKw,
	"match":  KindMatchKw,
	"return": KindReturnKw,
	"ref":    KindRefKw,
	"unsafe": KindUnsafeKw,
	"async":  KindAsyncKw,
	"dyn":    KindDynKw,
	"as":     KindAsKw,
	"type":   KindTypeKw,
	"true":   KindTrueKw,
	"false":  KindFalseKw,
}

// lex splits src into tokens. The concatenation of all token texts equals
// src; malformed input yields KindError tokens rather than failures.
func lex(src string) []token {
	var toks []token
	i := 0
	n := len(src)
	emit := func(kind SyntaxKind, end int) {
		toks = append(toks, token{kind: kind, start: i, end: end})
		i = end
	}

	for i < n {
		c := src[i]
		switch {
		case isSpaceByte(c):
			j := i + 1
			for j < n && isSpaceByte(src[j]) {
				j++
			}
			emit(KindWhitespace, j)

		case c == '/' && i+1 < n && src[i+1] == '/':
			j := i + 2
			for j < n && src[j] != '\n' {
				j++
			}
			emit(KindComment, j)

		case c == '/' && i+1 < n && src[i+1] == '*':
			// Block comment, tolerating a missing terminator.
			j := i + 2
			depth := 1
			for j < n && depth > 0 {
				if j+1 < n && src[j] == '/' && src[j+1] == '*' {
					depth++
					j += 2
				} else if j+1 < n && src[j] == '*' && src[j+1] == '/' {
					depth--
					j += 2
				} else {
					j++
				}
			}
			emit(KindComment, j)

		case isIdentStartByte(c):
			j := i + 1
			for j < n && isIdentByte(src[j]) {
				j++
			}
			word := src[i:j]
			if kw, ok := keywords[word]; ok {
				emit(kw, j)
			} else {
				emit(KindIdent, j)
			}

		case c >= '0' && c <= '9':
			j := i + 1
			for j < n && (isIdentByte(src[j]) || src[j] == '_') {
				j++
			}
			kind := KindIntNumber
			// A dot followed by a digit continues the literal as a float.
			if j+1 < n && src[j] == '.' && src[j+1] >= '0' && src[j+1] <= '9' {
				j += 2
				for j < n && (isIdentByte(src[j]) || src[j] == '_') {
					j++
				}
				kind = KindFloatNumber
			}
			emit(kind, j)

		case c == '"':
			j := i + 1
			for j < n && src[j] != '"' {
				if src[j] == '\\' && j+1 < n {
					j++
				}
				j++
			}
			if j < n {
				j++ // closing quote
			}
			emit(KindString, j)

		case c == '\'':
			emitLifetimeOrChar(src, i, emit)

		default:
			kind, size := lexPunct(src[i:])
			if kind == KindError {
				// Skip one whole rune so multi-byte garbage stays intact.
				_, sz := utf8.DecodeRuneInString(src[i:])
				if sz < 1 {
					sz = 1
				}
				size = sz
			}
			emit(kind, i+size)
		}
	}
	return toks
}

// emitLifetimeOrChar disambiguates 'a (lifetime) from 'a' (char literal).
func emitLifetimeOrChar(src string, i int, emit func(SyntaxKind, int)) {
	n := len(src)
	j := i + 1
	if j < n && isIdentStartByte(src[j]) {
		k := j
		for k < n && isIdentByte(src[k]) {
			k++
		}
		if k < n && src[k] == '\'' {
			emit(KindChar, k+1)
			return
		}
		emit(KindLifetime, k)
		return
	}
	// Char literal, possibly escaped: '\n', 'x', or malformed.
	for j < n && src[j] != '\'' && src[j] != '\n' {
		if src[j] == '\\' && j+1 < n {
			j++
		}
		j++
	}
	if j < n && src[j] == '\'' {
		j++
	}
	emit(KindChar, j)
}

func lexPunct(s string) (SyntaxKind, int) {
	if len(s) >= 2 {
		switch s[:2] {
		case "::":
			return KindColonColon, 2
		case "->":
			return KindArrow, 2
		case "=>":
			return KindFatArrow, 2
		case "==":
			return KindEqEq, 2
		case "!=":
			return KindNeq, 2
		case "<=":
			return KindLtEq, 2
		case ">=":
			return KindGtEq, 2
		case "&&":
			return KindAmpAmp, 2
		case "||":
			return KindPipePipe, 2
		case "..":
			return KindDotDot, 2
		}
	}
	switch s[0] {
	case '(':
		return KindLParen, 1
	case ')':
		return KindRParen, 1
	case '{':
		return KindLBrace, 1
	case '}':
		return KindRBrace, 1
	case '[':
		return KindLBrack, 1
	case ']':
		return KindRBrack, 1
	case '<':
		return KindLAngle, 1
	case '>':
		return KindRAngle, 1
	case ',':
		return KindComma, 1
	case ':':
		return KindColon, 1
	case ';':
		return KindSemicolon, 1
	case '.':
		return KindDot, 1
	case '&':
		return KindAmp, 1
	case '|':
		return KindPipe, 1
	case '+':
		return KindPlus, 1
	case '-':
		return KindMinus, 1
	case '*':
		return KindStar, 1
	case '/':
		return KindSlash, 1
	case '%':
		return KindPercent, 1
	case '!':
		return KindBang, 1
	case '=':
		return KindEq, 1
	case '?':
		return KindQuestion, 1
	case '@':
		return KindAt, 1
	case '#':
		return KindPound, 1
	}
	return KindError, 1
}

func isSpaceByte(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isIdentStartByte(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= utf8.RuneSelf
}

func isIdentByte(c byte) bool {
	return isIdentStartByte(c) || (c >= '0' && c <= '9')
}

// isDocComment reports whether a comment token carries outer line
// documentation ("///" but not the "////" separator style).
func isDocComment(text string) bool {
	return strings.HasPrefix(text, "///") && !strings.HasPrefix(text, "////")
}
