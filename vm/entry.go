// Copyright (c) 2017, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package vm

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"mvdan.cc/nsh/il"
)

// Entry is a value on the machine's operand stack. It is implemented only by
// the types in this package:
//
//   - markers: [CmdInit], [WordInit]
//   - scalars: [Name], [Partial], [FD], [RedirKind]
//   - composites: [Word], [AssignWord], [*Redirect]
//   - aggregates: [*Command], [*Pipeline]
type Entry interface {
	entryNode()
}

// CmdInit marks the start of a command under construction.
type CmdInit struct{}

// WordInit marks the start of a word under construction.
type WordInit struct{}

// Name is a parameter name waiting to be expanded.
type Name string

// Partial is a fragment of a word, still holding its quotes and escapes.
type Partial string

// FD is a file descriptor number.
type FD int

// RedirKind is the kind of a redirection under construction.
type RedirKind il.RedirKind

// Word is a composed word, with its quotes removed.
type Word string

// AssignWord is a composed word of the form name=value.
type AssignWord struct {
	Name, Value string
}

func (a AssignWord) String() string { return a.Name + "=" + a.Value }

// Redirect is a single redirection of a command. For the duplication kinds,
// DupFD is the descriptor being copied and Path is empty.
type Redirect struct {
	Kind  il.RedirKind
	FD    int
	Path  string
	DupFD int
}

func (r *Redirect) String() string {
	if r.Kind.IsDup() {
		return fmt.Sprintf("%d%s%d", r.FD, r.Kind, r.DupFD)
	}
	return fmt.Sprintf("%d%s%s", r.FD, r.Kind, r.Path)
}

// Command is a simple command ready to be executed.
type Command struct {
	Args    []string
	Assigns []AssignWord
	Redirs  []*Redirect

	// PipeIn and PipeOut are the pipe ends connected to the standard input
	// and output of the command; nil when it is not part of a pipeline.
	PipeIn, PipeOut *os.File

	Negate bool
}

// Pipeline is two or more commands joined by pipes. It owns its commands.
type Pipeline struct {
	Commands []*Command
	Negate   bool
}

// Job is what can be handed to an [Executor]: a [*Command] or a [*Pipeline].
type Job interface {
	Entry
	jobNode()
}

func (*Command) jobNode()  {}
func (*Pipeline) jobNode() {}

// Negated reports whether the exit status of the job is to be inverted.
func Negated(job Job) bool {
	switch x := job.(type) {
	case *Command:
		return x.Negate
	case *Pipeline:
		return x.Negate
	}
	return false
}

func (CmdInit) entryNode()    {}
func (WordInit) entryNode()   {}
func (Name) entryNode()       {}
func (Partial) entryNode()    {}
func (FD) entryNode()         {}
func (RedirKind) entryNode()  {}
func (Word) entryNode()       {}
func (AssignWord) entryNode() {}
func (*Redirect) entryNode()  {}
func (*Command) entryNode()   {}
func (*Pipeline) entryNode()  {}

func entryName(e Entry) string {
	switch e.(type) {
	case CmdInit:
		return "CmdInit"
	case WordInit:
		return "WordInit"
	case Name:
		return "Name"
	case Partial:
		return "Partial"
	case FD:
		return "FD"
	case RedirKind:
		return "RedirKind"
	case Word:
		return "Word"
	case AssignWord:
		return "AssignWord"
	case *Redirect:
		return "Redirect"
	case *Command:
		return "Command"
	case *Pipeline:
		return "Pipeline"
	case nil:
		return "nothing"
	}
	return fmt.Sprintf("%T", e)
}

func writeEntry(w io.Writer, e Entry, indent string) {
	switch x := e.(type) {
	case CmdInit, WordInit:
		fmt.Fprintf(w, "%s%s\n", indent, entryName(e))
	case Name:
		fmt.Fprintf(w, "%sName %q\n", indent, string(x))
	case Partial:
		fmt.Fprintf(w, "%sPartial %q\n", indent, string(x))
	case Word:
		fmt.Fprintf(w, "%sWord %q\n", indent, string(x))
	case FD:
		fmt.Fprintf(w, "%sFD %d\n", indent, int(x))
	case RedirKind:
		fmt.Fprintf(w, "%sRedirKind %s\n", indent, il.RedirKind(x))
	case AssignWord:
		fmt.Fprintf(w, "%sAssignWord %s=%q\n", indent, x.Name, x.Value)
	case *Redirect:
		fmt.Fprintf(w, "%sRedirect %s\n", indent, x)
	case *Command:
		quoted := make([]string, len(x.Args))
		for i, arg := range x.Args {
			quoted[i] = strconv.Quote(arg)
		}
		neg := ""
		if x.Negate {
			neg = " negated"
		}
		fmt.Fprintf(w, "%sCommand [%s]%s\n", indent, strings.Join(quoted, " "), neg)
		for _, a := range x.Assigns {
			writeEntry(w, a, indent+"    ")
		}
		for _, r := range x.Redirs {
			writeEntry(w, r, indent+"    ")
		}
	case *Pipeline:
		neg := ""
		if x.Negate {
			neg = " negated"
		}
		fmt.Fprintf(w, "%sPipeline%s\n", indent, neg)
		for _, c := range x.Commands {
			writeEntry(w, c, indent+"    ")
		}
	}
}
