// Copyright (c) 2016, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

// Package il implements the instruction list that sits between the shell
// parser and the virtual machine.
//
// A list is a flat stack-machine program: the parser appends to it while
// reading a logical line, and the machine replays it once the whole line has
// been parsed without errors.
package il

import (
	"fmt"
	"io"
	"strconv"
)

// Op is an instruction opcode.
type Op int

// The list of all instruction opcodes.
const (
	PushCmdInit    Op = iota // push a command marker
	PushWordInit             // push a word marker
	PushName                 // push a parameter name
	PushPartial              // push a literal word fragment
	PushFD                   // push a file descriptor number
	PushRedir                // push a redirection kind
	ComposeWord              // fold fragments above the word marker
	ComposeCommand           // fold words and redirections above the command marker
	ComposeIORedir           // fold a redirection
	AssignWord               // turn the top word into an assignment
	ExpandParam              // replace the top name by its value
	PipelineLink             // join the two topmost commands into a pipeline
	ExecPipeline             // run the top command or pipeline
	ExecBackground           // run the top command or pipeline asynchronously
	PendingNot               // negate the status of the top pipeline

	numOps
)

var opNames = [numOps]string{
	PushCmdInit:    "PUSH_CMDINIT",
	PushWordInit:   "PUSH_WORDINIT",
	PushName:       "PUSH_NAME",
	PushPartial:    "PUSH_PARTIAL",
	PushFD:         "PUSH_FD",
	PushRedir:      "PUSH_REDIR",
	ComposeWord:    "COMPOSE_WORD",
	ComposeCommand: "COMPOSE_COMMAND",
	ComposeIORedir: "COMPOSE_IOREDIR",
	AssignWord:     "ASSIGN_WORD",
	ExpandParam:    "EXPAND_PARAM",
	PipelineLink:   "PIPELINE_LINK",
	ExecPipeline:   "EXEC_PIPELINE",
	ExecBackground: "EXEC_BACKGROUND",
	PendingNot:     "PENDING_NOT",
}

func (o Op) String() string {
	if o < 0 || o >= numOps {
		return "Op(" + strconv.Itoa(int(o)) + ")"
	}
	return opNames[o]
}

// Shape describes which operand an opcode carries.
type Shape int

const (
	Invalid Shape = iota
	NoOperand
	StringOperand
	IntOperand
)

// Shape returns the operand shape of the opcode.
func (o Op) Shape() Shape {
	switch o {
	case PushCmdInit, PushWordInit, ComposeWord, ComposeCommand,
		ComposeIORedir, AssignWord, ExpandParam, PipelineLink,
		ExecPipeline, ExecBackground, PendingNot:
		return NoOperand
	case PushName, PushPartial:
		return StringOperand
	case PushFD, PushRedir:
		return IntOperand
	}
	return Invalid
}

// RedirKind is the kind of an I/O redirection, carried as the operand of
// [PushRedir].
type RedirKind int

const (
	RedirUnknown       RedirKind = iota
	RedirInput                   // <
	RedirOutput                  // >
	RedirOutputClobber           // >|
	RedirOutputAppend            // >>
	RedirHeredoc                 // << and <<-
	RedirInputDup                // <&
	RedirOutputDup               // >&
	RedirInOut                   // <>
)

func (k RedirKind) String() string {
	switch k {
	case RedirInput:
		return "<"
	case RedirOutput:
		return ">"
	case RedirOutputClobber:
		return ">|"
	case RedirOutputAppend:
		return ">>"
	case RedirHeredoc:
		return "<<"
	case RedirInputDup:
		return "<&"
	case RedirOutputDup:
		return ">&"
	case RedirInOut:
		return "<>"
	}
	return "RedirKind(" + strconv.Itoa(int(k)) + ")"
}

// IsDup reports whether the redirection duplicates a file descriptor instead
// of opening a path.
func (k RedirKind) IsDup() bool { return k == RedirInputDup || k == RedirOutputDup }

// Instruction is one of [Bare], [StrArg] or [IntArg].
type Instruction interface {
	Opcode() Op
	instrNode()
}

// Bare is an instruction without an operand.
type Bare struct {
	Op Op
}

// StrArg is an instruction with a string operand.
type StrArg struct {
	Op    Op
	Value string
}

// IntArg is an instruction with an integer operand.
type IntArg struct {
	Op    Op
	Value int
}

func (i Bare) Opcode() Op   { return i.Op }
func (i StrArg) Opcode() Op { return i.Op }
func (i IntArg) Opcode() Op { return i.Op }

func (Bare) instrNode()   {}
func (StrArg) instrNode() {}
func (IntArg) instrNode() {}

// List is an ordered sequence of instructions. The zero value is an empty
// list ready to use.
type List struct {
	ins []Instruction
}

func (l *List) push(in Instruction, want Shape) {
	if got := in.Opcode().Shape(); got != want {
		panic(fmt.Sprintf("il: %v does not take this operand", in.Opcode()))
	}
	l.ins = append(l.ins, in)
}

// Append adds an instruction which takes no operand.
func (l *List) Append(op Op) { l.push(Bare{Op: op}, NoOperand) }

// AppendString adds an instruction with a string operand.
func (l *List) AppendString(op Op, s string) { l.push(StrArg{Op: op, Value: s}, StringOperand) }

// AppendInt adds an instruction with an integer operand.
func (l *List) AppendInt(op Op, n int) { l.push(IntArg{Op: op, Value: n}, IntOperand) }

// Len returns the number of instructions in the list.
func (l *List) Len() int { return len(l.ins) }

// At returns the i-th instruction.
func (l *List) At(i int) Instruction { return l.ins[i] }

// Instructions returns the underlying instructions. The slice must not be
// modified.
func (l *List) Instructions() []Instruction { return l.ins }

// Reset empties the list while keeping its storage.
func (l *List) Reset() {
	clear(l.ins)
	l.ins = l.ins[:0]
}

// Format writes a single instruction in the dump format.
func Format(w io.Writer, in Instruction) error {
	var err error
	switch x := in.(type) {
	case Bare:
		_, err = fmt.Fprintf(w, "%s\n", x.Op)
	case StrArg:
		_, err = fmt.Fprintf(w, "%-16s %s\n", x.Op, strconv.Quote(x.Value))
	case IntArg:
		if x.Op == PushRedir {
			_, err = fmt.Fprintf(w, "%-16s %s\n", x.Op, RedirKind(x.Value))
		} else {
			_, err = fmt.Fprintf(w, "%-16s %d\n", x.Op, x.Value)
		}
	default:
		panic(fmt.Sprintf("il: unexpected instruction %T", in))
	}
	return err
}

// Dump writes every instruction of the list to w, one per line.
func (l *List) Dump(w io.Writer) error {
	for _, in := range l.ins {
		if err := Format(w, in); err != nil {
			return err
		}
	}
	return nil
}
