package main

// Tokenizer for groveload's five-verb command language. Adapted from
// query_parser/lexer, rewritten for PUT/GET/REMOVE/TICK/CHECKPOINT
// instead of SQL keywords — see DESIGN.md for why the rest of
// query_parser/query_executor is not carried forward.

import "strings"

type tokenKind int

const (
	identTok tokenKind = iota
	putTok
	getTok
	removeTok
	tickTok
	checkpointTok
	intTok
	endTok
	invalidTok
)

type token struct {
	kind  tokenKind
	value string
}

type lexer struct {
	input   string
	pos     int
	readPos int
	ch      byte
}

func newLexer(input string) *lexer {
	l := &lexer{input: input}
	l.readChar()
	return l
}

func (l *lexer) nextToken() token {
	l.skipWhiteSpaces()

	switch {
	case l.ch == 0:
		return token{kind: endTok}
	case isLetter(l.ch):
		str := l.readIdent()
		return token{kind: keywordKind(str), value: str}
	case isNumber(l.ch):
		return token{kind: intTok, value: l.readNumber()}
	default:
		tok := token{kind: invalidTok, value: string(l.ch)}
		l.readChar()
		return tok
	}
}

func (l *lexer) readChar() {
	if l.readPos >= len(l.input) {
		l.ch = 0
	} else {
		l.ch = l.input[l.readPos]
	}
	l.pos = l.readPos
	l.readPos++
}

func (l *lexer) skipWhiteSpaces() {
	for l.ch == ' ' || l.ch == '\t' || l.ch == '\n' {
		l.readChar()
	}
}

func isLetter(ch byte) bool {
	return ('a' <= ch && ch <= 'z') || ('A' <= ch && ch <= 'Z')
}

func isNumber(ch byte) bool {
	return '0' <= ch && ch <= '9'
}

func (l *lexer) readIdent() string {
	start := l.pos
	for isLetter(l.ch) {
		l.readChar()
	}
	return l.input[start:l.pos]
}

func (l *lexer) readNumber() string {
	start := l.pos
	for isNumber(l.ch) {
		l.readChar()
	}
	return l.input[start:l.pos]
}

func keywordKind(str string) tokenKind {
	switch strings.ToUpper(str) {
	case "PUT":
		return putTok
	case "GET":
		return getTok
	case "REMOVE":
		return removeTok
	case "TICK":
		return tickTok
	case "CHECKPOINT":
		return checkpointTok
	default:
		return identTok
	}
}

// tokenizeLine splits one input line into tokens, excluding the trailing
// endTok.
func tokenizeLine(line string) []token {
	l := newLexer(line)
	var toks []token
	for {
		tok := l.nextToken()
		if tok.kind == endTok {
			return toks
		}
		toks = append(toks, tok)
	}
}
