// Copyright (c) 2017, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

// Package process starts the commands and pipelines built by package vm.
//
// Builtins are run within the shell itself. Everything else is resolved
// through PATH and started as a separate program, with its descriptor table
// set up from pipes and redirections.
package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"mvdan.cc/nsh/builtin"
	"mvdan.cc/nsh/expand"
	"mvdan.cc/nsh/vm"
)

// Builtins runs commands within the shell's own process.
type Builtins interface {
	IsBuiltin(name string) bool
	Run(ctx context.Context, stdio builtin.Stdio, args []string) int
}

// Option is a function which can be passed to [New] to configure an Engine.
type Option func(*Engine)

// Env sets the environment inherited by started programs, which is also
// where PATH is looked up. A nil value means the current process's.
func Env(env expand.Environ) Option {
	return func(e *Engine) {
		if env == nil {
			env = expand.OSEnviron()
		}
		e.env = env
	}
}

// WithBuiltins sets the builtins intercepted before looking for programs.
func WithBuiltins(b Builtins) Option {
	return func(e *Engine) { e.builtins = b }
}

// Stdio sets the standard input, output and error of commands. A nil file
// is left closed for started programs.
func Stdio(stdin, stdout, stderr *os.File) Option {
	return func(e *Engine) {
		e.stdin, e.stdout, e.stderr = stdin, stdout, stderr
	}
}

// KillTimeout sets how long to wait after interrupting a foreground program,
// when its context is cancelled, before killing it. A negative value means
// that it is killed right away.
func KillTimeout(d time.Duration) Option {
	return func(e *Engine) { e.killTimeout = d }
}

// Engine executes jobs. It implements [vm.Executor].
type Engine struct {
	env      expand.Environ
	builtins Builtins

	stdin, stdout, stderr *os.File

	killTimeout time.Duration
}

// New creates an Engine which uses the standard streams of the current
// process, and applies any number of options.
func New(opts ...Option) *Engine {
	e := &Engine{
		env:         expand.OSEnviron(),
		stdin:       os.Stdin,
		stdout:      os.Stdout,
		stderr:      os.Stderr,
		killTimeout: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var _ vm.Executor = (*Engine)(nil)

func (e *Engine) errorf(format string, a ...any) {
	if e.stderr != nil {
		fmt.Fprintf(e.stderr, "nsh: "+format+"\n", a...)
	}
}

func (e *Engine) isBuiltin(cmd *vm.Command) bool {
	return e.builtins != nil && len(cmd.Args) > 0 && e.builtins.IsBuiltin(cmd.Args[0])
}

// Exec runs job. A foreground job returns its exit status; a background job
// is detached and the process id of its last program is returned.
func (e *Engine) Exec(ctx context.Context, job vm.Job, background bool) int {
	switch job := job.(type) {
	case *vm.Command:
		if e.isBuiltin(job) {
			if background {
				e.errorf("%s: builtins cannot run in the background", job.Args[0])
				return 0
			}
			return e.runBuiltin(ctx, job)
		}
		if background {
			c, _ := e.start(job, true, 0)
			return detach(c)
		}
		c, status := e.start(job, false, 0)
		if c == nil {
			return status
		}
		return e.wait(ctx, c)
	case *vm.Pipeline:
		for _, cmd := range job.Commands {
			if e.isBuiltin(cmd) {
				e.errorf("%s: builtins cannot be part of a pipeline", cmd.Args[0])
				if background {
					return 0
				}
				return 1
			}
		}
		return e.runPipeline(ctx, job, background)
	}
	panic(fmt.Sprintf("unhandled job type: %T", job))
}

func (e *Engine) runBuiltin(ctx context.Context, cmd *vm.Command) int {
	t, err := e.newTable(cmd)
	if err != nil {
		e.errorf("%v", err)
		return 1
	}
	defer t.close()
	var stdio builtin.Stdio
	if f := t.file(0); f != nil {
		stdio.Stdin = f
	}
	if f := t.file(1); f != nil {
		stdio.Stdout = f
	} else {
		stdio.Stdout = io.Discard
	}
	if f := t.file(2); f != nil {
		stdio.Stderr = f
	} else {
		stdio.Stderr = io.Discard
	}
	return e.builtins.Run(ctx, stdio, cmd.Args)
}

// start sets up and starts a program. If nothing was started, it returns a
// nil command and the status to report; any error was already printed.
//
// A background program is put in its own process group; pgid is the group
// to join, or zero to create a new one.
func (e *Engine) start(cmd *vm.Command, background bool, pgid int) (*exec.Cmd, int) {
	t, err := e.newTable(cmd)
	if err != nil {
		e.errorf("%v", err)
		return nil, 1
	}
	defer t.close()
	if len(cmd.Args) == 0 {
		// only redirections, which have now been done
		return nil, 0
	}
	env := expand.NewOverlay(e.env)
	for _, a := range cmd.Assigns {
		if err := env.Set(a.Name, expand.StringVar(a.Value)); err != nil {
			e.errorf("%v", err)
			return nil, 1
		}
	}
	cwd, err := os.Getwd()
	if err != nil {
		e.errorf("%v", err)
		return nil, 1
	}
	path, err := LookPathDir(cwd, env, cmd.Args[0])
	if err != nil {
		e.errorf("%v", err)
		return nil, 127
	}
	c := &exec.Cmd{
		Path:       path,
		Args:       cmd.Args,
		Env:        expand.Pairs(env),
		ExtraFiles: t.extra(),
	}
	// only set non-nil files, as a typed nil would not mean "closed"
	if f := t.file(0); f != nil {
		c.Stdin = f
	}
	if f := t.file(1); f != nil {
		c.Stdout = f
	}
	if f := t.file(2); f != nil {
		c.Stderr = f
	}
	if background {
		c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true, Pgid: pgid}
	}
	if err := c.Start(); err != nil {
		e.errorf("%v", err)
		return nil, 126
	}
	return c, 0
}

// detach reaps a started program in the background, so that it does not
// linger as a zombie, and returns its process id.
func detach(c *exec.Cmd) int {
	if c == nil {
		return 0
	}
	go c.Wait()
	return c.Process.Pid
}

// wait waits for a foreground program. When ctx is cancelled, the program is
// interrupted and then killed.
func (e *Engine) wait(ctx context.Context, c *exec.Cmd) int {
	stop := context.AfterFunc(ctx, func() {
		if e.killTimeout < 0 {
			_ = c.Process.Signal(os.Kill)
			return
		}
		_ = c.Process.Signal(os.Interrupt)
		time.Sleep(e.killTimeout)
		_ = c.Process.Signal(os.Kill)
	})
	defer stop()
	return exitStatus(c.Wait())
}

func exitStatus(err error) int {
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &exitErr):
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			return 128 + int(status.Signal())
		}
		return exitErr.ExitCode()
	}
	return 1
}

// runPipeline connects the commands with pipes, starts them from left to
// right, and waits for all of them. The status is the last command's.
func (e *Engine) runPipeline(ctx context.Context, p *vm.Pipeline, background bool) int {
	n := len(p.Commands)
	for i := 0; i < n-1; i++ {
		r, w, err := os.Pipe()
		if err != nil {
			e.errorf("%v", err)
			for _, cmd := range p.Commands[:i+1] {
				closeIfSet(cmd.PipeIn)
				closeIfSet(cmd.PipeOut)
			}
			if background {
				return 0
			}
			return 1
		}
		p.Commands[i].PipeOut = w
		p.Commands[i+1].PipeIn = r
	}

	cmds := make([]*exec.Cmd, n)
	statuses := make([]int, n)
	pgid := 0
	for i, cmd := range p.Commands {
		cmds[i], statuses[i] = e.start(cmd, background, pgid)
		if background && pgid == 0 && cmds[i] != nil {
			pgid = cmds[i].Process.Pid
		}
		// the child has its own copies now
		closeIfSet(cmd.PipeIn)
		closeIfSet(cmd.PipeOut)
		cmd.PipeIn, cmd.PipeOut = nil, nil
	}

	if background {
		for _, c := range cmds[:n-1] {
			detach(c)
		}
		return detach(cmds[n-1])
	}
	var g errgroup.Group
	for i, c := range cmds {
		if c == nil {
			continue
		}
		i, c := i, c
		g.Go(func() error {
			statuses[i] = e.wait(ctx, c)
			return nil
		})
	}
	g.Wait()
	return statuses[n-1]
}

func closeIfSet(f *os.File) {
	if f != nil {
		f.Close()
	}
}
