// Copyright (c) 2018, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

// Package shell ties the parser, the virtual machine and the exec engine
// together into a shell session, which reads and runs one logical line at a
// time.
package shell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
	"golang.org/x/sys/unix"

	"mvdan.cc/nsh/alias"
	"mvdan.cc/nsh/builtin"
	"mvdan.cc/nsh/expand"
	"mvdan.cc/nsh/process"
	"mvdan.cc/nsh/syntax"
	"mvdan.cc/nsh/vm"
)

// ExitStatus is a non-zero status code resulting from running a shell.
type ExitStatus uint8

func (s ExitStatus) Error() string { return fmt.Sprintf("exit status %d", s) }

// LineReader supplies a shell with its input, one line at a time, without the
// trailing newline. It returns [io.EOF] once the input is exhausted.
type LineReader interface {
	ReadLine(prompt string) (string, error)
}

type reader struct {
	br *bufio.Reader
}

// NewReader returns a LineReader which reads lines from r, ignoring prompts.
func NewReader(r io.Reader) LineReader {
	return reader{bufio.NewReader(r)}
}

func (r reader) ReadLine(string) (string, error) {
	line, err := r.br.ReadString('\n')
	if err == io.EOF && line != "" {
		err = nil
	}
	return strings.TrimSuffix(line, "\n"), err
}

// Option is a function which can be passed to [New] to configure a Shell.
type Option func(*Shell)

// Env sets the environment of the shell, which exported variables are
// written to. A nil value means the environment of the current process.
func Env(env expand.WriteEnviron) Option {
	return func(s *Shell) {
		if env == nil {
			env = expand.OSEnviron()
		}
		s.env = env
	}
}

// StdIO sets the standard streams of the shell, which started programs
// inherit. The shell's own diagnostics go to stderr, and its prompts and
// traces to stdout.
func StdIO(stdin, stdout, stderr *os.File) Option {
	return func(s *Shell) {
		s.stdin, s.stdout, s.stderr = stdin, stdout, stderr
	}
}

// Interactive makes the shell print prompt headers, expand history events
// and remember the lines it runs.
func Interactive(enabled bool) Option {
	return func(s *Shell) { s.interactive = enabled }
}

// WithHistory sets the history used by the shell. The default is an empty
// history kept in memory.
func WithHistory(h *History) Option {
	return func(s *Shell) { s.hist = h }
}

// Debug starts the shell with tracing turned on, as if the debug builtin had
// been run.
func Debug(enabled bool) Option {
	return func(s *Shell) { s.debug = enabled }
}

// Params sets the positional parameters, starting with $0.
func Params(args ...string) Option {
	return func(s *Shell) { s.params = args }
}

// Shell is an interactive or scripted shell session. It implements
// [builtin.Host].
type Shell struct {
	env         expand.WriteEnviron
	interactive bool
	debug       bool
	params      []string

	stdin          *os.File
	stdout, stderr *os.File

	aliases  *alias.Table
	hist     *History
	parser   *syntax.Parser
	builtins *builtin.Table
	engine   *process.Engine
	vm       *vm.VM

	// status is the shell's exit status if the input ended now. Unlike $?,
	// it also reflects lines which could not be parsed or run.
	status int

	mu     sync.Mutex
	exited bool
	code   uint8
	cancel context.CancelFunc // of the line being run
}

var _ builtin.Host = (*Shell)(nil)

// New creates a shell and applies any number of options.
func New(opts ...Option) *Shell {
	s := &Shell{
		env:     expand.OSEnviron(),
		stdin:   os.Stdin,
		stdout:  os.Stdout,
		stderr:  os.Stderr,
		aliases: alias.New(),
		params:  []string{"nsh"},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.hist == nil {
		s.hist = NewHistory("")
	}
	s.hist.SetSize(s.env.Get("HISTSIZE").String())

	s.parser = syntax.NewParser(syntax.Aliases(s.aliases))
	s.builtins = builtin.New(s, s.env, s.aliases)
	s.engine = process.New(
		process.Env(s.env),
		process.WithBuiltins(s.builtins),
		process.Stdio(s.stdin, s.stdout, s.stderr),
	)
	s.vm = vm.New(
		vm.Env(s.env),
		vm.WithExecutor(s.engine),
		vm.OnAssign(s.onAssign),
		vm.Params(s.params...),
	)
	s.setTrace()
	return s
}

func (s *Shell) setTrace() {
	var w io.Writer
	if s.debug {
		w = s.stdout
	}
	syntax.Trace(w)(s.parser)
	s.vm.SetTrace(w)
}

func (s *Shell) onAssign(name, value string) {
	if name == "HISTSIZE" {
		s.hist.SetSize(value)
	}
}

// Aliases returns the shell's alias table.
func (s *Shell) Aliases() *alias.Table { return s.aliases }

// Exit implements [builtin.Host]. The rest of the current line is not run.
func (s *Shell) Exit(status uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exited, s.code = true, status
	if s.cancel != nil {
		s.cancel()
	}
}

// Exited reports whether the exit builtin was run.
func (s *Shell) Exited() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exited
}

// Interrupt stops the line being run, if any. Programs in the foreground are
// interrupted, and killed if they do not stop soon after.
func (s *Shell) Interrupt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

// ToggleDebug implements [builtin.Host].
func (s *Shell) ToggleDebug() bool {
	s.debug = !s.debug
	s.setTrace()
	return s.debug
}

// History implements [builtin.Host].
func (s *Shell) History() []string { return s.hist.Lines() }

// SetHistSize implements [builtin.Host].
func (s *Shell) SetHistSize(value string) { s.hist.SetSize(value) }

// Local implements [builtin.Host].
func (s *Shell) Local(name string) (string, bool) { return s.vm.Local(name) }

// UnsetLocal implements [builtin.Host].
func (s *Shell) UnsetLocal(name string) { s.vm.UnsetLocal(name) }

// Header returns what is printed before the primary prompt of an interactive
// shell: the working directory, and a marker while debugging.
func (s *Shell) Header() string {
	wd, err := os.Getwd()
	if err != nil {
		wd = "?"
	}
	header := "\n" + color.New(color.FgHiYellow).Sprint(wd)
	if s.debug {
		header += " " + color.New(color.FgHiRed).Sprint("DEBUG")
	}
	return header + "\n"
}

// Prompt returns the primary prompt.
func Prompt() string {
	if unix.Getuid() == 0 {
		return "# "
	}
	return "$ "
}

// ContinuationPrompt is shown while reading the rest of an incomplete line.
const ContinuationPrompt = "> "

// Run reads and runs lines from r until it is exhausted or the exit builtin
// is run. Lines which cannot be parsed or run are reported on stderr and
// skipped.
//
// A non-zero final status is returned as an [ExitStatus].
func (s *Shell) Run(ctx context.Context, r LineReader) error {
	return s.run(ctx, r, "", s.interactive)
}

// SourceFile runs the lines in a file, such as a startup file. They are not
// added to the history.
func (s *Shell) SourceFile(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return s.run(ctx, NewReader(f), path, false)
}

func (s *Shell) run(ctx context.Context, r LineReader, name string, interactive bool) error {
	line, pending := "", false
	for !s.Exited() {
		if err := ctx.Err(); err != nil {
			return err
		}
		prompt := ContinuationPrompt
		if !pending {
			prompt = Prompt()
			if interactive {
				fmt.Fprint(s.stdout, s.Header())
			}
		}
		input, err := r.ReadLine(prompt)
		eof := errors.Is(err, io.EOF)
		if err != nil && !eof {
			return err
		}
		if interactive && !eof {
			input = s.expandHistory(input)
		}
		switch {
		case pending && !eof:
			line += "\n" + input
		case pending:
			// no more input; report the incomplete line
		case eof:
			return s.finalStatus()
		default:
			line = input
		}
		pending = s.runLine(ctx, line, name, interactive, eof)
	}
	return s.finalStatus()
}

func (s *Shell) finalStatus() error {
	s.mu.Lock()
	exited, code := s.exited, s.code
	s.mu.Unlock()
	if exited {
		if code != 0 {
			return ExitStatus(code)
		}
		return nil
	}
	if s.status != 0 {
		return ExitStatus(uint8(s.status))
	}
	return nil
}

func (s *Shell) expandHistory(input string) string {
	expanded, changed, err := expandHistory(input, s.hist.Lines())
	if err != nil || !changed {
		return input
	}
	fmt.Fprintln(s.stdout, expanded)
	return expanded
}

// runLine parses and runs a logical line. It returns true if the line is
// incomplete and more input should be appended to it.
func (s *Shell) runLine(ctx context.Context, line, name string, interactive, eof bool) bool {
	if s.debug {
		fmt.Fprintf(s.stdout, "input: %q\n", line)
	}
	list, err := s.parser.Parse([]byte(line), name)
	if err != nil && syntax.IsIncomplete(err) && !eof {
		return true
	}
	if err == nil && list.Len() == 0 {
		return false
	}
	if interactive {
		s.hist.Add(line)
	}
	if err != nil {
		fmt.Fprintf(s.stderr, "nsh: %v\n", err)
		s.status = 2
		return false
	}

	lineCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.cancel = nil
		s.mu.Unlock()
		cancel()
	}()

	err = s.vm.Run(lineCtx, list)
	s.status = s.vm.Status()
	switch {
	case err == nil:
	case s.Exited():
	case errors.Is(err, context.Canceled) && ctx.Err() == nil:
		// interrupted
		s.status = 130
	default:
		fmt.Fprintf(s.stderr, "nsh: %v\n", err)
		s.status = 1
	}
	return false
}
