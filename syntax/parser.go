// Copyright (c) 2016, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

// Package syntax implements the lexer and parser of the nsh command language.
//
// Instead of building a syntax tree, the parser emits an [il.List]: a flat
// program for the stack machine in package vm.
package syntax

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"

	"mvdan.cc/nsh/il"
)

// AliasLookup is consulted by the lexer when a command name could be an
// alias. It is never modified by the parser.
type AliasLookup interface {
	Get(name string) (string, bool)
}

// ParserOption is a function which can be passed to NewParser
// to alter its behaviour. To apply option to existing Parser
// call it directly, for example syntax.Trace(w)(parser).
type ParserOption func(*Parser)

// Aliases makes the parser expand the aliases found in the given table.
func Aliases(table AliasLookup) ParserOption {
	return func(p *Parser) { p.aliases = table }
}

// Trace makes the parser write every token it reads to w. A nil writer
// disables tracing.
func Trace(w io.Writer) ParserOption {
	return func(p *Parser) { p.trace = w }
}

// Parser holds the options for parsing input. It can be reused, but it is not
// safe for concurrent use.
type Parser struct {
	aliases AliasLookup
	trace   io.Writer
}

// NewParser allocates a new Parser and applies any number of options.
func NewParser(options ...ParserOption) *Parser {
	p := &Parser{}
	for _, opt := range options {
		opt(p)
	}
	return p
}

var parserFree = sync.Pool{
	New: func() any { return &parser{buf: make([]byte, 0, 64)} },
}

// Parse reads a whole logical line, which may span many physical lines, and
// returns the instructions which run it. Nothing is returned unless the input
// was parsed in full; use [IsIncomplete] to tell whether more input could
// make it valid.
func (p *Parser) Parse(src []byte, name string) (*il.List, error) {
	ps := parserFree.Get().(*parser)
	defer func() {
		ps.reset()
		parserFree.Put(ps)
	}()
	ps.main = source{src: src}
	ps.filename = name
	ps.aliasTable = p.aliases
	ps.trace = p.trace
	ps.list = &il.List{}

	tok := ps.next(CmdPrefixKeywords)
	tok = ps.stmtList(tok)
	if ps.err == nil && tok.Kind != EOF {
		ps.unexpected(tok)
	}
	if ps.err != nil {
		return nil, ps.err
	}
	return ps.list, nil
}

type parser struct {
	main    source
	aliases []*source // innermost last

	aliasTable AliasLookup
	trace      io.Writer

	filename string
	err      *ParseError
	list     *il.List
	buf      []byte
}

func (p *parser) reset() {
	buf := p.buf[:0]
	*p = parser{buf: buf}
}

// ErrorKind classifies a [ParseError].
type ErrorKind int

const (
	ErrInternal ErrorKind = iota + 1
	ErrUnexpected
	ErrIncomplete
	ErrNotImplemented
)

func (k ErrorKind) String() string {
	switch k {
	case ErrInternal:
		return "internal error"
	case ErrUnexpected:
		return "unexpected input"
	case ErrIncomplete:
		return "incomplete input"
	case ErrNotImplemented:
		return "feature not implemented"
	}
	return "ErrorKind(" + strconv.Itoa(int(k)) + ")"
}

// Position describes a location in the input.
type Position struct {
	Offset int
	Line   int // starting at 1
	Column int // in bytes, starting at 1
}

// ParseError represents an error found when parsing a source file.
type ParseError struct {
	Kind ErrorKind
	Position
	Filename, Text string
}

func (e *ParseError) Error() string {
	prefix := ""
	if e.Filename != "" {
		prefix = e.Filename + ":"
	}
	return fmt.Sprintf("%s%d:%d: %s", prefix, e.Line, e.Column, e.Text)
}

// IsIncomplete reports whether a Parser error could have been avoided with
// extra input bytes. For example, if an [io.EOF] was encountered while there
// was an unclosed quote.
func IsIncomplete(err error) bool {
	var perr *ParseError
	return errors.As(err, &perr) && perr.Kind == ErrIncomplete
}

func (p *parser) position(off int) Position {
	pos := Position{Offset: off, Line: 1, Column: 1}
	for _, b := range p.main.src[:off] {
		if b == '\n' {
			pos.Line++
			pos.Column = 1
		} else {
			pos.Column++
		}
	}
	return pos
}

// errAt records the first error only.
func (p *parser) errAt(off int, kind ErrorKind, format string, a ...any) {
	if p.err != nil {
		return
	}
	p.err = &ParseError{
		Kind:     kind,
		Position: p.position(off),
		Filename: p.filename,
		Text:     fmt.Sprintf(format, a...),
	}
}

func (p *parser) unexpected(tok Token) {
	switch tok.Kind {
	case Invalid:
		p.errAt(tok.Offset, ErrUnexpected, "invalid token")
	case EOF:
		p.errAt(tok.Offset, ErrUnexpected, "unexpected EOF")
	default:
		p.errAt(tok.Offset, ErrUnexpected, "unexpected %s", tok)
	}
}

func (p *parser) notImplemented(tok Token, what string) {
	p.errAt(tok.Offset, ErrNotImplemented, "%s is not implemented", what)
}

func (p *parser) emit(op il.Op)                { p.list.Append(op) }
func (p *parser) emitString(op il.Op, s string) { p.list.AppendString(op, s) }
func (p *parser) emitInt(op il.Op, n int)       { p.list.AppendInt(op, n) }

func startsSimple(k Kind) bool {
	switch k {
	case PartialWord, WordEnd, PartialAssign, AssignEnd, IONumber,
		Dollar, DollarBrace, DollarParen:
		return true
	}
	return k.IsRedirect()
}

func startsPipeline(k Kind) bool {
	switch k {
	case Bang, LeftBrace, LeftParen:
		return true
	}
	return startsSimple(k) || k.IsKeyword()
}

// newlines skips any number of newline tokens.
func (p *parser) newlines(tok Token) Token {
	for tok.Kind == Newline {
		tok = p.next(CmdPrefixKeywords)
	}
	return tok
}

// stmtList parses statements separated by ";", "&" or newlines, up to the end
// of the input. It returns the first token it could not use.
func (p *parser) stmtList(tok Token) Token {
	tok = p.newlines(tok)
	for p.err == nil {
		hasCmd := startsPipeline(tok.Kind)
		if hasCmd {
			tok = p.pipeline(tok)
			if p.err != nil {
				return tok
			}
		}
		switch tok.Kind {
		case EOF:
			if hasCmd {
				p.emit(il.ExecPipeline)
			}
			return tok
		case Semi:
			if hasCmd {
				p.emit(il.ExecPipeline)
			}
			tok = p.newlines(p.next(CmdPrefixKeywords))
		case Amp:
			if !hasCmd {
				p.unexpected(tok)
				return tok
			}
			p.emit(il.ExecBackground)
			tok = p.newlines(p.next(CmdPrefixKeywords))
		case Newline:
			p.emit(il.ExecPipeline)
			tok = p.newlines(tok)
		default:
			if hasCmd {
				p.unexpected(tok)
			}
			return tok
		}
	}
	return tok
}

// pipeline parses an optionally negated chain of commands joined by "|".
func (p *parser) pipeline(tok Token) Token {
	negate := tok.Kind == Bang
	if negate {
		tok = p.next(CmdPrefixKeywords)
	}
	tok = p.command(tok)
	for p.err == nil && tok.Kind == Bar {
		tok = p.newlines(p.next(CmdPrefixKeywords))
		if tok.Kind == EOF {
			p.errAt(tok.Offset, ErrIncomplete, "| must be followed by a command")
			return tok
		}
		tok = p.command(tok)
		p.emit(il.PipelineLink)
	}
	if negate && p.err == nil {
		p.emit(il.PendingNot)
	}
	return tok
}

func (p *parser) command(tok Token) Token {
	switch {
	case tok.Kind.IsKeyword():
		p.notImplemented(tok, fmt.Sprintf("%q", tok.Kind.String()))
		return tok
	case tok.Kind == LeftBrace:
		p.notImplemented(tok, "brace grouping")
		return tok
	case tok.Kind == LeftParen:
		p.notImplemented(tok, "subshell")
		return tok
	}
	return p.simpleCommand(tok)
}

// simpleCommand parses assignments, words and redirections up to the first
// token which cannot be part of a simple command.
func (p *parser) simpleCommand(tok Token) Token {
	if !startsSimple(tok.Kind) {
		p.unexpected(tok)
		return tok
	}
	p.emit(il.PushCmdInit)
	hint := CmdPrefix
	for p.err == nil && startsSimple(tok.Kind) {
		switch tok.Kind {
		case PartialWord, WordEnd, Dollar, DollarBrace, DollarParen:
			hint = CmdPostfix
			p.word(tok)
		case PartialAssign, AssignEnd:
			p.word(tok)
		default:
			p.ioRedir(tok)
		}
		tok = p.next(hint)
	}
	p.emit(il.ComposeCommand)
	return tok
}

// word emits a word made of literal fragments and parameter expansions. It
// consumes the whole word, including its final fragment.
func (p *parser) word(tok Token) {
	assign := tok.Kind == PartialAssign || tok.Kind == AssignEnd
	p.emit(il.PushWordInit)
	for p.err == nil {
		switch tok.Kind {
		case Dollar, DollarBrace:
			p.paramExp(tok)
		case DollarParen:
			p.notImplemented(tok, "command substitution")
			return
		case PartialWord, PartialAssign:
			p.emitString(il.PushPartial, tok.Text)
		case WordEnd, AssignEnd:
			if tok.Text != "" {
				p.emitString(il.PushPartial, tok.Text)
			}
			p.emit(il.ComposeWord)
			if assign {
				p.emit(il.AssignWord)
			}
			return
		default:
			p.unexpected(tok)
			return
		}
		tok = p.next(ComposingWord)
	}
}

func (p *parser) paramExp(tok Token) {
	brace := tok.Kind == DollarBrace
	name, ok := p.name(brace)
	if !ok {
		switch c := p.peekChar(); {
		case c == eof && brace:
			p.errAt(p.main.off, ErrIncomplete, "reached EOF without matching ${ with }")
		case brace:
			p.errAt(tok.Offset, ErrUnexpected, "invalid parameter name")
		default:
			p.errAt(tok.Offset, ErrUnexpected, "$ must be followed by a parameter name")
		}
		return
	}
	if p.trace != nil {
		fmt.Fprintf(p.trace, "token %-16s %q\n", Name, name)
	}
	p.emitString(il.PushName, name)
	p.emit(il.ExpandParam)
	if !brace {
		return
	}
	switch c := p.peekChar(); c {
	case '}':
		p.getChar()
	case ':', '-', '=', '?', '+', '#', '%', '/':
		p.notImplemented(tok, "parameter expansion with "+string(rune(c)))
	case eof:
		p.errAt(p.main.off, ErrIncomplete, "reached EOF without matching ${ with }")
	default:
		p.errAt(tok.Offset, ErrUnexpected, "invalid parameter name")
	}
}

func redirKind(k Kind) il.RedirKind {
	switch k {
	case Less:
		return il.RedirInput
	case DLess, DLessDash:
		return il.RedirHeredoc
	case Great:
		return il.RedirOutput
	case DGreat:
		return il.RedirOutputAppend
	case LessGreat:
		return il.RedirInOut
	case LessAnd:
		return il.RedirInputDup
	case GreatAnd:
		return il.RedirOutputDup
	case Clobber:
		return il.RedirOutputClobber
	}
	return il.RedirUnknown
}

// ioRedir emits a redirection, with an optional fd number before the
// operator. Its target is either a word or, for <& and >&, another fd number.
func (p *parser) ioRedir(tok Token) {
	fd := -1
	op := tok
	if tok.Kind == IONumber {
		n, err := strconv.Atoi(tok.Text)
		if err != nil || n < 0 {
			p.errAt(tok.Offset, ErrUnexpected, "invalid file descriptor %q", tok.Text)
			return
		}
		fd = n
		op = p.next(NoHint)
	}
	kind := redirKind(op.Kind)
	switch kind {
	case il.RedirUnknown:
		p.unexpected(op)
		return
	case il.RedirHeredoc:
		p.notImplemented(op, "heredoc")
		return
	}
	if fd < 0 {
		switch kind {
		case il.RedirInput, il.RedirInputDup, il.RedirInOut:
			fd = 0
		default:
			fd = 1
		}
	}
	if kind.IsDup() {
		num := p.ioNumber()
		dup, err := strconv.Atoi(num.Text)
		if num.Kind != IONumber || err != nil {
			p.errAt(num.Offset, ErrUnexpected, "%s must be followed by a file descriptor", op.Kind)
			return
		}
		p.emitInt(il.PushFD, dup)
	} else {
		w := p.next(NoHint)
		switch w.Kind {
		case PartialWord, WordEnd, Dollar, DollarBrace, DollarParen:
			p.word(w)
		default:
			if p.err == nil {
				p.errAt(w.Offset, ErrUnexpected, "%s must be followed by a word", op.Kind)
			}
			return
		}
	}
	p.emitInt(il.PushFD, fd)
	p.emitInt(il.PushRedir, int(kind))
	p.emit(il.ComposeIORedir)
}
