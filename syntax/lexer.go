// Copyright (c) 2016, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package syntax

import "fmt"

const (
	eof      = -1
	aliasEnd = -2 // end of the innermost alias text
)

// source is a stream of input bytes with one character of lookahead. The main
// input and every active alias expansion each have their own.
type source struct {
	alias string // empty for the main input
	src   []byte
	off   int

	peeked  bool
	peekCh  int
	peekLen int
}

func (s *source) end() int {
	if s.alias != "" {
		return aliasEnd
	}
	return eof
}

func (s *source) peek() int {
	if s.peeked {
		return s.peekCh
	}
	i := s.off
	for i+1 < len(s.src) && s.src[i] == '\\' && s.src[i+1] == '\n' {
		i += 2 // line continuation
	}
	s.peeked = true
	if i >= len(s.src) {
		s.peekCh, s.peekLen = s.end(), i-s.off
	} else {
		s.peekCh, s.peekLen = int(s.src[i]), i+1-s.off
	}
	return s.peekCh
}

// cur returns the innermost source, which is where characters come from.
func (p *parser) cur() *source {
	if n := len(p.aliases); n > 0 {
		return p.aliases[n-1]
	}
	return &p.main
}

func (p *parser) peekChar() int { return p.cur().peek() }

func (p *parser) getChar() int {
	s := p.cur()
	c := s.peek()
	s.off += s.peekLen
	s.peeked = false
	if c == aliasEnd {
		p.aliases = p.aliases[:len(p.aliases)-1]
	}
	return c
}

func isBlank(c int) bool { return c == ' ' || c == '\t' }

func isDigit(c int) bool { return c >= '0' && c <= '9' }

func isNameStart(c int) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isNamePart(c int) bool { return isNameStart(c) || isDigit(c) }

// isPrint matches ASCII printable characters and any non-ASCII byte.
func isPrint(c int) bool { return c >= 0x20 && c != 0x7f }

// wordBreak reports whether c cannot continue an unquoted word.
func wordBreak(c int) bool {
	switch c {
	case '<', '>', ';', '&', '|', '(', ')', eof, aliasEnd:
		return true
	}
	return c < 0x80 && (c <= ' ' || c == 0x7f)
}

// opStart reports whether c starts an operator. Braces and the bang are only
// operators where a command could start; elsewhere they are word characters.
func opStart(c int, hint Hint) bool {
	switch c {
	case '<', '>', ';', '&', '|', '(', ')', '$':
		return true
	case '{', '}', '!':
		return hint.commandPrefix()
	}
	return false
}

func op1(c int) Kind {
	switch c {
	case '<':
		return Less
	case '>':
		return Great
	case ';':
		return Semi
	case '{':
		return LeftBrace
	case '}':
		return RightBrace
	case '$':
		return Dollar
	case '(':
		return LeftParen
	case ')':
		return RightParen
	case '&':
		return Amp
	case '|':
		return Bar
	case '!':
		return Bang
	}
	return Invalid
}

func op2(c1, c2 int) Kind {
	switch c1 {
	case '<':
		switch c2 {
		case '<':
			return DLess
		case '>':
			return LessGreat
		case '&':
			return LessAnd
		}
	case '>':
		switch c2 {
		case '>':
			return DGreat
		case '|':
			return Clobber
		case '&':
			return GreatAnd
		}
	case ';':
		if c2 == ';' {
			return DSemi
		}
	case '$':
		switch c2 {
		case '(':
			return DollarParen
		case '{':
			return DollarBrace
		}
	case '&':
		if c2 == '&' {
			return AndAnd
		}
	case '|':
		if c2 == '|' {
			return OrOr
		}
	}
	return Invalid
}

// skipUnimportant skips blanks, comments and the ends of exhausted alias
// texts. A comment runs up to, but not including, the next newline.
func (p *parser) skipUnimportant() {
	for {
		switch c := p.peekChar(); {
		case isBlank(c), c == aliasEnd:
			p.getChar()
		case c == '#':
			for c := p.peekChar(); c != '\n' && c != eof && c != aliasEnd; c = p.peekChar() {
				p.getChar()
			}
		default:
			return
		}
	}
}

// next returns the next token. Once an error has been recorded, it always
// returns an invalid token without reading any input.
func (p *parser) next(hint Hint) Token {
	if p.err != nil {
		return Token{Kind: Invalid, Offset: p.main.off}
	}
	tok := p.lex(hint)
	if p.trace != nil {
		fmt.Fprintf(p.trace, "token %-16s %s\n", tok.Kind, tok)
	}
	return tok
}

func (p *parser) lex(hint Hint) Token {
	if hint != ComposingWord {
		p.skipUnimportant()
	}
	tok := Token{Offset: p.main.off}
	if hint == ComposingWord && wordBreak(p.peekChar()) {
		tok.Kind = WordEnd
		return tok
	}
	c := p.getChar()
	switch {
	case c == eof:
		tok.Kind = EOF
		return tok
	case c == '\n':
		tok.Kind = Newline
		return tok
	case opStart(c, hint):
		if k := op2(c, p.peekChar()); k != Invalid {
			p.getChar()
			if k == DLess && p.peekChar() == '-' {
				p.getChar()
				k = DLessDash
			}
			tok.Kind = k
			return tok
		}
		tok.Kind = op1(c)
		return tok
	case !isPrint(c):
		p.errAt(tok.Offset, ErrUnexpected, "invalid character %q", rune(c))
		return tok
	}
	return p.scanWord(tok, c, hint)
}

// scanWord scans the rest of a word whose first character c was already read.
// Quotes and escapes are kept in the text; they are removed once the word is
// composed.
func (p *parser) scanWord(tok Token, c int, hint Hint) Token {
	p.buf = p.buf[:0]
	quote, escape := false, false
	for {
		if !quote && !escape {
			switch c {
			case '"':
				p.errAt(p.main.off, ErrNotImplemented, "double quotes are not implemented")
				return tok
			case '`':
				p.errAt(p.main.off, ErrNotImplemented, "command substitution is not implemented")
				return tok
			}
		}
		if c == '\'' && (quote || !escape) {
			quote = !quote
		}
		escape = c == '\\' && !quote && !escape
		p.buf = append(p.buf, byte(c))

		c = p.peekChar()
		if quote || escape {
			switch c {
			case eof:
				p.errAt(p.main.off, ErrIncomplete, "reached EOF without closing quote or escape")
				return tok
			case aliasEnd:
				p.errAt(p.main.off, ErrUnexpected, "alias %q leaves a quote or escape open", p.cur().alias)
				return tok
			}
		} else if wordBreak(c) || c == '$' {
			break
		}
		p.getChar()
	}
	tok.Text = string(p.buf)
	tok.Kind = p.classify(tok.Text, hint)
	if tok.Kind == WordEnd && hint.commandPrefix() && p.pushAlias(tok.Text) {
		return p.lex(hint)
	}
	return tok
}

// classify decides what kind of token a finished run of word characters is,
// given the parser's hint and the next character.
func (p *parser) classify(text string, hint Hint) Kind {
	ends := wordBreak(p.peekChar())
	kind := PartialWord
	if ends {
		kind = WordEnd
	}
	switch hint {
	case CmdPrefix, CmdPrefixKeywords:
		if isAssign(text) {
			if ends {
				return AssignEnd
			}
			return PartialAssign
		}
		if !ends {
			return kind
		}
		if hint == CmdPrefixKeywords {
			if k, ok := keywords[text]; ok {
				return k
			}
		}
		if p.isIONumber(text) {
			return IONumber
		}
	case CmdPostfix:
		if ends && p.isIONumber(text) {
			return IONumber
		}
	case ExpectIn:
		if ends && text == "in" {
			return In
		}
	}
	return kind
}

func isAssign(text string) bool {
	if len(text) == 0 || !isNameStart(int(text[0])) {
		return false
	}
	for i := 1; i < len(text); i++ {
		c := int(text[i])
		if c == '=' {
			return true
		}
		if !isNamePart(c) {
			return false
		}
	}
	return false
}

func (p *parser) isIONumber(text string) bool {
	for i := 0; i < len(text); i++ {
		if !isDigit(int(text[i])) {
			return false
		}
	}
	c := p.peekChar()
	return text != "" && (c == '<' || c == '>')
}

// pushAlias starts reading from the replacement text of the named alias. It
// does nothing if there is no such alias, or if the alias is already being
// expanded.
func (p *parser) pushAlias(name string) bool {
	if p.aliasTable == nil {
		return false
	}
	for _, s := range p.aliases {
		if s.alias == name {
			return false
		}
	}
	value, ok := p.aliasTable.Get(name)
	if !ok {
		return false
	}
	p.aliases = append(p.aliases, &source{alias: name, src: []byte(value)})
	if p.trace != nil {
		fmt.Fprintf(p.trace, "alias %s=%q\n", name, value)
	}
	return true
}

func isSpecialParam(c int) bool {
	switch c {
	case '@', '*', '#', '?', '-', '$', '!':
		return true
	}
	return false
}

// name scans a parameter name right after $ or ${. It is a single special
// parameter character, a positional parameter, or an identifier. Positional
// parameters of more than one digit are only allowed within braces.
func (p *parser) name(inBrace bool) (string, bool) {
	c := p.peekChar()
	if !isNamePart(c) && !isSpecialParam(c) {
		return "", false
	}
	p.getChar()
	p.buf = append(p.buf[:0], byte(c))
	if isSpecialParam(c) || (isDigit(c) && !inBrace) {
		return string(p.buf), true
	}
	digits := isDigit(c)
	for {
		c := p.peekChar()
		if !isNamePart(c) || (digits && !isDigit(c)) {
			return string(p.buf), true
		}
		p.getChar()
		p.buf = append(p.buf, byte(c))
	}
}

// ioNumber scans the file descriptor following <& or >&.
func (p *parser) ioNumber() Token {
	p.skipUnimportant()
	tok := Token{Kind: IONumber, Offset: p.main.off}
	p.buf = p.buf[:0]
	for isDigit(p.peekChar()) {
		p.buf = append(p.buf, byte(p.getChar()))
	}
	if len(p.buf) == 0 || !wordBreak(p.peekChar()) {
		tok.Kind = Invalid
		return tok
	}
	tok.Text = string(p.buf)
	if p.trace != nil {
		fmt.Fprintf(p.trace, "token %-16s %s\n", tok.Kind, tok)
	}
	return tok
}
