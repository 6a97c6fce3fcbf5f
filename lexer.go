// Copyright 2011 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package binja

import (
	"errors"
	"fmt"
	"strings"
)

type Token int32

const (
	ERROR Token = iota
	BUILD
	COLON
	DEFAULT
	EQUALS
	IDENT
	INCLUDE
	INDENT
	NEWLINE
	PIPE
	PIPE2
	PIPEAT
	POOL
	RULE
	SUBNINJA
	TEOF
)

// String returns a human-readable form of a token, used in error messages.
func (t Token) String() string {
	switch t {
	case ERROR:
		return "lexing error"
	case BUILD:
		return "'build'"
	case COLON:
		return "':'"
	case DEFAULT:
		return "'default'"
	case EQUALS:
		return "'='"
	case IDENT:
		return "identifier"
	case INCLUDE:
		return "'include'"
	case INDENT:
		return "indent"
	case NEWLINE:
		return "newline"
	case PIPE2:
		return "'||'"
	case PIPE:
		return "'|'"
	case PIPEAT:
		return "'|@'"
	case POOL:
		return "'pool'"
	case RULE:
		return "'rule'"
	case SUBNINJA:
		return "'subninja'"
	case TEOF:
		return "eof"
	}
	return "" // not reached
}

// errorHint returns a human-readable token hint, used in error messages.
func (t Token) errorHint() string {
	if t == COLON {
		return " ($ also escapes ':')"
	}
	return ""
}

var keywords = map[string]Token{
	"build":    BUILD,
	"default":  DEFAULT,
	"include":  INCLUDE,
	"pool":     POOL,
	"rule":     RULE,
	"subninja": SUBNINJA,
}

// A varname is a rule, pool or variable name. $name expansions stop at '.',
// identifiers and ${name} expansions do not.
func isVarnameChar(c byte) bool {
	return c == '-' || c == '.' || (c >= '0' && c <= '9') ||
		(c >= 'A' && c <= 'Z') || c == '_' || (c >= 'a' && c <= 'z')
}

func isSimpleVarnameChar(c byte) bool {
	return c == '-' || (c >= '0' && c <= '9') ||
		(c >= 'A' && c <= 'Z') || c == '_' || (c >= 'a' && c <= 'z')
}

// lexerState is the offset of processing a token.
//
// It is meant to be saved when an error message may be printed after the
// parsing continued.
type lexerState struct {
	// ofs is the read cursor, lastToken the start of the most recently read
	// token. lastToken is initially -1 to mark that it is not yet set.
	ofs       int
	lastToken int
}

// error constructs an error message with context.
func (l *lexerState) error(message, filename string, input []byte) error {
	// Compute line/column.
	line := 1
	lineStart := 0
	for p := 0; p < l.lastToken; p++ {
		if input[p] == '\n' {
			line++
			lineStart = p + 1
		}
	}
	col := 0
	if l.lastToken != -1 {
		col = l.lastToken - lineStart
	}

	// Add some context to the message.
	c := ""
	const truncateColumn = 72
	if col > 0 && col < truncateColumn {
		truncated := true
		length := 0
		for ; length < truncateColumn; length++ {
			if input[lineStart+length] == 0 || input[lineStart+length] == '\n' {
				truncated = false
				break
			}
		}
		c = unsafeString(input[lineStart : lineStart+length])
		if truncated {
			c += "..."
		}
		c += "\n"
		c += strings.Repeat(" ", col)
		c += "^ near here"
	}
	return fmt.Errorf("%s:%d: %s\n%s", filename, line, message, c)
}

type lexer struct {
	// Immutable.
	filename string
	input    []byte

	// Mutable.
	lexerState
}

// Error constructs an error message with context.
func (l *lexer) Error(message string) error {
	return l.lexerState.error(message, l.filename, l.input)
}

// Start starts parsing some input. The input must end with a NUL byte, which
// is injected by the FileReader implementations.
func (l *lexer) Start(filename string, input []byte) error {
	if len(input) == 0 || input[len(input)-1] != 0 {
		return errors.New("lexer input must be nul terminated")
	}
	l.filename = filename
	l.input = input
	l.ofs = 0
	l.lastToken = -1
	return nil
}

// DescribeLastError provides more info if the last token read was an ERROR
// token, or the empty string.
func (l *lexer) DescribeLastError() string {
	if l.lastToken != -1 {
		if l.input[l.lastToken] == '\t' {
			return "tabs are not allowed, use spaces"
		}
	}
	return "lexing error"
}

// Offset returns the current byte offset into the input. It is stamped into
// binary records so that errors found while interpreting them can point back
// into the original text.
func (l *lexer) Offset() int {
	return l.ofs
}

// SetOffset moves the cursor to a previously observed offset.
func (l *lexer) SetOffset(ofs int) {
	l.ofs = ofs
}

// UnreadToken rewinds to the last read Token.
func (l *lexer) UnreadToken() {
	l.ofs = l.lastToken
}

func (l *lexer) ReadToken() Token {
	p := l.ofs
	start := 0
	var token Token
	for {
		start = p
		c := l.input[p]
		switch {
		case c == 0:
			p++
			token = TEOF
		case c == '\n':
			p++
			token = NEWLINE
		case c == '\r':
			if l.input[p+1] == '\n' {
				p += 2
				token = NEWLINE
			} else {
				p++
				token = ERROR
			}
		case c == ' ' || c == '#':
			q := p
			for l.input[q] == ' ' {
				q++
			}
			if l.input[q] == '#' {
				r := q + 1
				for l.input[r] != 0 && l.input[r] != '\n' {
					r++
				}
				if l.input[r] == '\n' {
					// A comment; skip past it and lex again.
					p = r + 1
					continue
				}
			}
			if l.input[q] == '\n' {
				p = q + 1
				token = NEWLINE
			} else if l.input[q] == '\r' && l.input[q+1] == '\n' {
				p = q + 2
				token = NEWLINE
			} else if q > p {
				p = q
				token = INDENT
			} else {
				// A comment running into EOF.
				p++
				token = ERROR
			}
		case c == '=':
			p++
			token = EQUALS
		case c == ':':
			p++
			token = COLON
		case c == '|':
			switch l.input[p+1] {
			case '|':
				p += 2
				token = PIPE2
			case '@':
				p += 2
				token = PIPEAT
			default:
				p++
				token = PIPE
			}
		case isVarnameChar(c):
			for isVarnameChar(l.input[p]) {
				p++
			}
			token = IDENT
			if t, ok := keywords[unsafeString(l.input[start:p])]; ok {
				token = t
			}
		default:
			p++
			token = ERROR
		}
		break
	}

	l.lastToken = start
	l.ofs = p
	if token != NEWLINE && token != TEOF {
		l.eatWhitespace()
	}
	return token
}

// PeekToken reads the next token and returns true if it is \a token,
// otherwise unreads it and returns false.
func (l *lexer) PeekToken(token Token) bool {
	t := l.ReadToken()
	if t == token {
		return true
	}
	l.UnreadToken()
	return false
}

// eatWhitespace skips past whitespace (called after each read
// token/ident/etc.).
func (l *lexer) eatWhitespace() {
	p := l.ofs
	for {
		if l.input[p] == ' ' {
			for l.input[p] == ' ' {
				p++
			}
			continue
		}
		if l.input[p] == '$' {
			if l.input[p+1] == '\n' {
				p += 2
				continue
			}
			if l.input[p+1] == '\r' && l.input[p+2] == '\n' {
				p += 3
				continue
			}
		}
		break
	}
	l.ofs = p
}

// readIdent reads a simple identifier (a rule or variable name).
// Returns "" if a name can't be read.
func (l *lexer) readIdent() string {
	p := l.ofs
	start := p
	for isVarnameChar(l.input[p]) {
		p++
	}
	l.lastToken = start
	if p == start {
		return ""
	}
	out := unsafeString(l.input[start:p])
	l.ofs = p
	l.eatWhitespace()
	return out
}

// readEvalString reads a $-escaped string.
//
// If path is true, read a path (complete with $escapes); the string ends at
// an unescaped space, ':', '|' or newline, which is left unread.
//
// If path is false, read the value side of a var = value line (complete with
// $escapes); the terminating newline is consumed.
//
// The returned string may be empty if a delimiter is hit immediately.
func (l *lexer) readEvalString(path bool) (EvalString, error) {
	eval := EvalString{}
	p := l.ofs
	start := 0
loop:
	for {
		start = p
		c := l.input[p]
		switch {
		case c == 0:
			l.lastToken = start
			l.ofs = p
			return eval, l.Error("unexpected EOF")
		case c == '\n':
			if path {
				p = start
			} else {
				p++
			}
			break loop
		case c == '\r':
			if l.input[p+1] != '\n' {
				l.lastToken = start
				l.ofs = p
				return eval, l.Error(l.DescribeLastError())
			}
			if path {
				p = start
			} else {
				p += 2
			}
			break loop
		case c == ' ' || c == ':' || c == '|':
			if path {
				p = start
				break loop
			}
			eval.AddText(unsafeString(l.input[start : start+1]))
			p++
		case c == '$':
			n := l.input[p+1]
			switch {
			case n == '$':
				eval.AddText("$")
				p += 2
			case n == ' ':
				eval.AddText(" ")
				p += 2
			case n == ':':
				eval.AddText(":")
				p += 2
			case n == '\n':
				p += 2
				for l.input[p] == ' ' {
					p++
				}
			case n == '\r' && l.input[p+2] == '\n':
				p += 3
				for l.input[p] == ' ' {
					p++
				}
			case n == '{':
				q := p + 2
				for isVarnameChar(l.input[q]) {
					q++
				}
				if q == p+2 || l.input[q] != '}' {
					l.lastToken = start
					l.ofs = p
					return eval, l.Error("bad $-escape (literal $ must be written as $$)")
				}
				eval.AddSpecial(unsafeString(l.input[p+2 : q]))
				p = q + 1
			case isSimpleVarnameChar(n):
				q := p + 1
				for isSimpleVarnameChar(l.input[q]) {
					q++
				}
				eval.AddSpecial(unsafeString(l.input[p+1 : q]))
				p = q
			default:
				l.lastToken = start
				l.ofs = p
				return eval, l.Error("bad $-escape (literal $ must be written as $$)")
			}
		default:
			for {
				c = l.input[p]
				if c == 0 || c == '$' || c == ' ' || c == ':' ||
					c == '\r' || c == '\n' || c == '|' {
					break
				}
				p++
			}
			eval.AddText(unsafeString(l.input[start:p]))
		}
	}
	l.lastToken = start
	l.ofs = p
	if path {
		l.eatWhitespace()
	}
	// Non-path strings end in newlines, so there's no whitespace to eat.
	return eval, nil
}
