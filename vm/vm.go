// Copyright (c) 2017, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

// Package vm implements the stack machine which runs the instructions emitted
// by package syntax.
//
// Words, redirections and commands are built up on an operand stack. Finished
// commands and pipelines are handed to an [Executor], which is what actually
// starts processes.
package vm

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"

	"mvdan.cc/nsh/expand"
	"mvdan.cc/nsh/il"
)

// Executor runs the jobs built by a [VM].
type Executor interface {
	// Exec runs job. In the foreground, it returns the job's exit status.
	// In the background, it returns the process id of the detached job, or
	// zero if nothing was started.
	Exec(ctx context.Context, job Job, background bool) int
}

// ExecutorFunc adapts a function to the [Executor] interface.
type ExecutorFunc func(ctx context.Context, job Job, background bool) int

func (f ExecutorFunc) Exec(ctx context.Context, job Job, background bool) int {
	return f(ctx, job, background)
}

// Option is a function which can be passed to [New] to alter the machine's
// behaviour.
type Option func(*VM)

// Env sets the environment consulted by parameter expansion after the local
// variables. A nil value means the environment of the current process.
func Env(env expand.Environ) Option {
	return func(v *VM) {
		if env == nil {
			env = expand.OSEnviron()
		}
		v.env = env
	}
}

// WithExecutor sets what runs the finished commands and pipelines.
func WithExecutor(e Executor) Option {
	return func(v *VM) { v.exec = e }
}

// Trace makes the machine print every instruction and the resulting stack to
// w. A nil writer disables tracing.
func Trace(w io.Writer) Option {
	return func(v *VM) { v.trace = w }
}

// OnAssign registers a function to be called after each variable set by an
// assignment-only statement.
func OnAssign(fn func(name, value string)) Option {
	return func(v *VM) { v.onAssign = fn }
}

// Params sets the positional parameters. The first one is $0.
func Params(args ...string) Option {
	return func(v *VM) { v.params = slices.Clone(args) }
}

// VM is a stack machine. It keeps its local variables and the last exit
// status between runs; only the operand stack is cleared. It is not safe for
// concurrent use.
type VM struct {
	env      expand.Environ
	exec     Executor
	trace    io.Writer
	onAssign func(name, value string)
	params   []string

	stack  []Entry
	locals map[string]string
	status int
	lastBg int
}

// New creates a machine and applies any number of options.
func New(opts ...Option) *VM {
	v := &VM{
		env:    expand.OSEnviron(),
		params: []string{"nsh"},
		locals: make(map[string]string),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// SetTrace changes where the trace is written to, as with [Trace].
func (v *VM) SetTrace(w io.Writer) { v.trace = w }

// Status returns the exit status of the last foreground job.
func (v *VM) Status() int { return v.status }

// Local returns the value of a local variable.
func (v *VM) Local(name string) (string, bool) {
	value, ok := v.locals[name]
	return value, ok
}

// UnsetLocal removes a local variable, if it exists.
func (v *VM) UnsetLocal(name string) { delete(v.locals, name) }

// ErrorKind classifies an [Error].
type ErrorKind int

const (
	ErrInternal ErrorKind = iota + 1
	ErrBadParameter
	ErrTypeMismatch
	ErrUnknownInstruction
	ErrNotImplemented
	ErrOverflow
	ErrInvalidValue
)

func (k ErrorKind) String() string {
	switch k {
	case ErrInternal:
		return "internal error"
	case ErrBadParameter:
		return "invalid parameter"
	case ErrTypeMismatch:
		return "type mismatch"
	case ErrUnknownInstruction:
		return "unknown instruction"
	case ErrNotImplemented:
		return "not implemented"
	case ErrOverflow:
		return "overflow"
	case ErrInvalidValue:
		return "invalid value"
	}
	return "ErrorKind(" + strconv.Itoa(int(k)) + ")"
}

// Error is returned by [VM.Run] when an instruction cannot be executed.
type Error struct {
	Kind  ErrorKind
	Op    il.Op
	Index int // of the instruction in its list
}

func (e *Error) Error() string {
	return fmt.Sprintf("vm: %s (%s)", e.Kind, e.Op)
}

// Run executes list from the start. The first error stops the run, and the
// rest of the list is not executed; the operand stack is cleared either way.
//
// Run also stops when ctx is cancelled, returning its error.
func (v *VM) Run(ctx context.Context, list *il.List) error {
	defer v.Reset()
	if list == nil {
		return &Error{Kind: ErrBadParameter, Op: -1, Index: -1}
	}
	if v.trace != nil {
		list.Dump(v.trace)
	}
	for i, in := range list.Instructions() {
		if err := ctx.Err(); err != nil {
			return err
		}
		kind := v.step(ctx, in)
		if v.trace != nil {
			fmt.Fprintln(v.trace)
			il.Format(v.trace, in)
			v.Dump(v.trace)
		}
		if kind != 0 {
			return &Error{Kind: kind, Op: in.Opcode(), Index: i}
		}
	}
	return nil
}

// Reset clears the operand stack.
func (v *VM) Reset() {
	clear(v.stack)
	v.stack = v.stack[:0]
}

// Dump writes the local variables and the operand stack to w.
func (v *VM) Dump(w io.Writer) {
	fmt.Fprintln(w, "locals:")
	names := make([]string, 0, len(v.locals))
	for name := range v.locals {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		fmt.Fprintf(w, "    %s=%q\n", name, v.locals[name])
	}
	fmt.Fprintln(w, "stack:")
	for _, e := range v.stack {
		writeEntry(w, e, "    ")
	}
}

func (v *VM) push(e Entry) { v.stack = append(v.stack, e) }

func (v *VM) pop() Entry {
	n := len(v.stack)
	if n == 0 {
		return nil
	}
	e := v.stack[n-1]
	v.stack[n-1] = nil
	v.stack = v.stack[:n-1]
	return e
}

func (v *VM) step(ctx context.Context, in il.Instruction) ErrorKind {
	switch in := in.(type) {
	case il.Bare:
		switch in.Op {
		case il.PushCmdInit:
			v.push(CmdInit{})
		case il.PushWordInit:
			v.push(WordInit{})
		case il.ComposeWord:
			return v.composeWord()
		case il.ComposeCommand:
			return v.composeCommand()
		case il.ComposeIORedir:
			return v.composeIORedir()
		case il.AssignWord:
			return v.assignWord()
		case il.ExpandParam:
			return v.expandParam()
		case il.PipelineLink:
			return v.pipelineLink()
		case il.ExecPipeline:
			return v.execJob(ctx, false)
		case il.ExecBackground:
			return v.execJob(ctx, true)
		case il.PendingNot:
			return v.pendingNot()
		default:
			return ErrUnknownInstruction
		}
	case il.StrArg:
		switch in.Op {
		case il.PushName:
			v.push(Name(in.Value))
		case il.PushPartial:
			v.push(Partial(in.Value))
		default:
			return ErrUnknownInstruction
		}
	case il.IntArg:
		switch in.Op {
		case il.PushFD:
			switch {
			case in.Value < 0:
				return ErrInvalidValue
			case in.Value > math.MaxInt32:
				return ErrOverflow
			}
			v.push(FD(in.Value))
		case il.PushRedir:
			v.push(RedirKind(in.Value))
		default:
			return ErrUnknownInstruction
		}
	default:
		return ErrUnknownInstruction
	}
	return 0
}

// markerIndex returns the index of the nearest entry below the top which is
// not accepted by part, or -1.
func (v *VM) markerIndex(part func(Entry) bool) int {
	for i := len(v.stack) - 1; i >= 0; i-- {
		if !part(v.stack[i]) {
			return i
		}
	}
	return -1
}

func (v *VM) composeWord() ErrorKind {
	i := v.markerIndex(func(e Entry) bool {
		_, ok := e.(Partial)
		return ok
	})
	if i < 0 {
		return ErrTypeMismatch
	}
	if _, ok := v.stack[i].(WordInit); !ok {
		return ErrTypeMismatch
	}
	parts := v.stack[i+1:]
	var sb strings.Builder
	tilde := false
	for j, e := range parts {
		part := string(e.(Partial))
		if j == 0 && strings.HasPrefix(part, "~") {
			tilde = true
		}
		removeQuotes(&sb, part)
	}
	word := sb.String()
	if tilde {
		word, _ = expand.Tilde(v.env, word)
	}
	clear(v.stack[i:])
	v.stack = v.stack[:i]
	v.push(Word(word))
	return 0
}

// removeQuotes writes s to sb without its single quotes and backslash
// escapes. Backslashes within single quotes are literal.
func removeQuotes(sb *strings.Builder, s string) {
	quote, escape := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\'' && (quote || !escape):
			quote = !quote
		case c == '\\' && !quote && !escape:
			escape = true
		default:
			escape = false
			sb.WriteByte(c)
		}
	}
}

func (v *VM) assignWord() ErrorKind {
	word, ok := v.pop().(Word)
	if !ok {
		return ErrTypeMismatch
	}
	name, value, ok := strings.Cut(string(word), "=")
	if !ok || name == "" {
		return ErrInvalidValue
	}
	v.push(AssignWord{Name: name, Value: value})
	return 0
}

func (v *VM) composeCommand() ErrorKind {
	i := v.markerIndex(func(e Entry) bool {
		switch e.(type) {
		case Word, AssignWord, *Redirect:
			return true
		}
		return false
	})
	if i < 0 {
		return ErrTypeMismatch
	}
	if _, ok := v.stack[i].(CmdInit); !ok {
		return ErrTypeMismatch
	}
	cmd := &Command{}
	for _, e := range v.stack[i+1:] {
		switch e := e.(type) {
		case Word:
			cmd.Args = append(cmd.Args, string(e))
		case AssignWord:
			cmd.Assigns = append(cmd.Assigns, e)
		case *Redirect:
			cmd.Redirs = append(cmd.Redirs, e)
		}
	}
	clear(v.stack[i:])
	v.stack = v.stack[:i]
	v.push(cmd)
	return 0
}

func (v *VM) composeIORedir() ErrorKind {
	kind, ok := v.pop().(RedirKind)
	if !ok {
		return ErrTypeMismatch
	}
	fd, ok := v.pop().(FD)
	if !ok {
		return ErrTypeMismatch
	}
	r := &Redirect{Kind: il.RedirKind(kind), FD: int(fd)}
	switch r.Kind {
	case il.RedirInputDup, il.RedirOutputDup:
		dup, ok := v.pop().(FD)
		if !ok {
			return ErrTypeMismatch
		}
		r.DupFD = int(dup)
	case il.RedirInput, il.RedirOutput, il.RedirOutputClobber,
		il.RedirOutputAppend, il.RedirInOut:
		word, ok := v.pop().(Word)
		if !ok {
			return ErrTypeMismatch
		}
		r.Path = string(word)
	case il.RedirHeredoc:
		return ErrNotImplemented
	default:
		return ErrInvalidValue
	}
	v.push(r)
	return 0
}

func (v *VM) expandParam() ErrorKind {
	name, ok := v.pop().(Name)
	if !ok {
		return ErrTypeMismatch
	}
	v.push(Partial(v.lookup(string(name))))
	return 0
}

// lookup resolves a parameter: special parameters first, then local
// variables, then the environment.
func (v *VM) lookup(name string) string {
	switch name {
	case "?":
		return strconv.Itoa(v.status)
	case "$":
		return strconv.Itoa(os.Getpid())
	case "!":
		if v.lastBg > 0 {
			return strconv.Itoa(v.lastBg)
		}
		return ""
	case "#":
		return strconv.Itoa(len(v.params) - 1)
	case "@", "*":
		if len(v.params) < 2 {
			return ""
		}
		return strings.Join(v.params[1:], " ")
	case "-":
		return ""
	}
	if n, err := strconv.Atoi(name); err == nil {
		if n < len(v.params) {
			return v.params[n]
		}
		return ""
	}
	if value, ok := v.locals[name]; ok {
		return value
	}
	return v.env.Get(name).String()
}

func (v *VM) pipelineLink() ErrorKind {
	right, ok := v.pop().(*Command)
	if !ok {
		return ErrTypeMismatch
	}
	switch left := v.pop().(type) {
	case *Command:
		v.push(&Pipeline{Commands: []*Command{left, right}})
	case *Pipeline:
		left.Commands = append(left.Commands, right)
		v.push(left)
	default:
		return ErrTypeMismatch
	}
	return 0
}

func (v *VM) pendingNot() ErrorKind {
	job, ok := v.pop().(Job)
	if !ok {
		return ErrTypeMismatch
	}
	switch job := job.(type) {
	case *Command:
		job.Negate = !job.Negate
	case *Pipeline:
		job.Negate = !job.Negate
	}
	v.push(job)
	return 0
}

func (v *VM) execJob(ctx context.Context, background bool) ErrorKind {
	job, ok := v.pop().(Job)
	if !ok {
		return ErrTypeMismatch
	}
	if cmd, ok := job.(*Command); ok && len(cmd.Args) == 0 && len(cmd.Assigns) > 0 && !background {
		for _, a := range cmd.Assigns {
			v.locals[a.Name] = a.Value
			if v.onAssign != nil {
				v.onAssign(a.Name, a.Value)
			}
		}
		status := 0
		if len(cmd.Redirs) > 0 {
			if v.exec == nil {
				return ErrBadParameter
			}
			// the redirections still create or truncate their files
			status = v.exec.Exec(ctx, &Command{Redirs: cmd.Redirs}, false)
		}
		v.setStatus(job, status)
		return 0
	}
	if v.exec == nil {
		return ErrBadParameter
	}
	if background {
		if pid := v.exec.Exec(ctx, job, true); pid > 0 {
			v.lastBg = pid
		}
		v.status = 0
		return 0
	}
	v.setStatus(job, v.exec.Exec(ctx, job, false))
	return 0
}

func (v *VM) setStatus(job Job, status int) {
	if Negated(job) {
		if status == 0 {
			status = 1
		} else {
			status = 0
		}
	}
	v.status = status
}
