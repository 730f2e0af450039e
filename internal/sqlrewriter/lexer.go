// Package sqlrewriter implements the RVBBIT SQL surface (§4.11): a
// hand-rolled, string/comment-aware tokenizer feeding an ordered pipeline of
// rewrite phases, deliberately avoiding any third-party SQL parser per the
// spec's explicit instruction — this is core domain logic, not an ambient
// concern that should reach for a library.
package sqlrewriter

import (
	"strings"

	"github.com/rvbbit/rvbbit/internal/model"
)

// TokenKind classifies a lexed token.
type TokenKind int

const (
	TokenWord TokenKind = iota
	TokenString
	TokenNumber
	TokenPunct
	TokenWhitespace
	TokenComment
	// TokenRaw holds already-rewritten text spliced in by a phase; later
	// phases treat it as opaque and never match into it.
	TokenRaw
)

// Token is one lexical unit. Text is the exact source substring for
// lexed tokens (including string quotes), or synthesized text for TokenRaw.
type Token struct {
	Kind TokenKind
	Text string
}

// StringValue returns a string token's literal content with quotes
// stripped and doubled single-quotes unescaped.
func (t Token) StringValue() string {
	if t.Kind != TokenString {
		return t.Text
	}
	inner := strings.TrimSuffix(strings.TrimPrefix(t.Text, "'"), "'")
	return strings.ReplaceAll(inner, "''", "'")
}

func isSignificant(t Token) bool {
	return t.Kind != TokenWhitespace && t.Kind != TokenComment
}

func wordEq(t Token, s string) bool {
	return t.Kind == TokenWord && strings.EqualFold(t.Text, s)
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isWordStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isWordPart(c byte) bool {
	return isWordStart(c) || isDigit(c)
}

// Lex tokenizes sql. String literals ('...', with '' escaping), line
// comments (--), and block comments (/* */) are each lexed as a single
// token so later phases never rewrite tokens found inside them.
func Lex(sql string) ([]Token, error) {
	var toks []Token
	i, n := 0, len(sql)

	for i < n {
		c := sql[i]
		switch {
		case c == '\'':
			start := i
			i++
			closed := false
			for i < n {
				if sql[i] == '\'' {
					if i+1 < n && sql[i+1] == '\'' {
						i += 2
						continue
					}
					i++
					closed = true
					break
				}
				i++
			}
			if !closed {
				return nil, model.NewParseError("sql_token", "unterminated string literal")
			}
			toks = append(toks, Token{Kind: TokenString, Text: sql[start:i]})

		case c == '-' && i+1 < n && sql[i+1] == '-':
			start := i
			for i < n && sql[i] != '\n' {
				i++
			}
			toks = append(toks, Token{Kind: TokenComment, Text: sql[start:i]})

		case c == '/' && i+1 < n && sql[i+1] == '*':
			start := i
			i += 2
			for i+1 < n && !(sql[i] == '*' && sql[i+1] == '/') {
				i++
			}
			if i+1 < n {
				i += 2
			} else {
				i = n
			}
			toks = append(toks, Token{Kind: TokenComment, Text: sql[start:i]})

		case isSpace(c):
			start := i
			for i < n && isSpace(sql[i]) {
				i++
			}
			toks = append(toks, Token{Kind: TokenWhitespace, Text: sql[start:i]})

		case isWordStart(c):
			start := i
			for i < n && isWordPart(sql[i]) {
				i++
			}
			toks = append(toks, Token{Kind: TokenWord, Text: sql[start:i]})

		case isDigit(c):
			start := i
			for i < n && (isDigit(sql[i]) || sql[i] == '.') {
				i++
			}
			toks = append(toks, Token{Kind: TokenNumber, Text: sql[start:i]})

		default:
			toks = append(toks, Token{Kind: TokenPunct, Text: string(c)})
			i++
		}
	}
	return toks, nil
}

// render reassembles a token slice back into SQL text verbatim.
func render(toks []Token) string {
	var sb strings.Builder
	for _, t := range toks {
		sb.WriteString(t.Text)
	}
	return sb.String()
}

func skipInsig(toks []Token, i int) int {
	for i < len(toks) && !isSignificant(toks[i]) {
		i++
	}
	return i
}

func trimInsig(toks []Token) []Token {
	start, end := 0, len(toks)
	for start < end && !isSignificant(toks[start]) {
		start++
	}
	for end > start && !isSignificant(toks[end-1]) {
		end--
	}
	return toks[start:end]
}

func containsWord(toks []Token, word string) bool {
	for _, t := range toks {
		if wordEq(t, word) {
			return true
		}
	}
	return false
}

func indexOfPunct(toks []Token, p string) int {
	for i, t := range toks {
		if t.Kind == TokenPunct && t.Text == p {
			return i
		}
	}
	return -1
}

// findMatchingParen returns the index of the ")" matching the "(" at openIdx.
func findMatchingParen(toks []Token, openIdx int) (int, error) {
	depth := 0
	for i := openIdx; i < len(toks); i++ {
		if toks[i].Kind != TokenPunct {
			continue
		}
		switch toks[i].Text {
		case "(":
			depth++
		case ")":
			depth--
			if depth == 0 {
				return i, nil
			}
		}
	}
	return -1, model.NewParseError("sql_token", "unmatched parenthesis")
}

// splitTopLevelArgs splits toks on TokenPunct "," occurring at paren depth 0.
func splitTopLevelArgs(toks []Token) [][]Token {
	if len(trimInsig(toks)) == 0 {
		return nil
	}
	var args [][]Token
	depth := 0
	start := 0
	for i, t := range toks {
		if t.Kind == TokenPunct {
			switch t.Text {
			case "(":
				depth++
			case ")":
				depth--
			case ",":
				if depth == 0 {
					args = append(args, toks[start:i])
					start = i + 1
				}
			}
		}
	}
	args = append(args, toks[start:])
	for i := range args {
		args[i] = trimInsig(args[i])
	}
	return args
}

// replaceSpan splices a single TokenRaw carrying text in place of toks[start:end+1].
func replaceSpan(toks []Token, start, end int, text string) []Token {
	out := make([]Token, 0, len(toks)-(end-start)+1)
	out = append(out, toks[:start]...)
	out = append(out, Token{Kind: TokenRaw, Text: text})
	out = append(out, toks[end+1:]...)
	return out
}
