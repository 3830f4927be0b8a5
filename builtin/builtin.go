// Copyright (c) 2017, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

// Package builtin implements the commands which run within the shell's own
// process, since they change the state of the shell itself.
package builtin

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"

	"mvdan.cc/nsh/alias"
	"mvdan.cc/nsh/expand"
)

// Stdio holds the standard streams of a builtin, after redirections.
type Stdio struct {
	Stdin          io.Reader
	Stdout, Stderr io.Writer
}

// Host is the shell state which builtins may read or change beyond the
// environment and the alias table.
type Host interface {
	// Exit makes the shell stop once the current line has run.
	Exit(status uint8)
	// ToggleDebug turns tracing on or off, returning the new state.
	ToggleDebug() bool
	// History returns the remembered input lines, oldest first.
	History() []string
	// SetHistSize is called when HISTSIZE is exported.
	SetHistSize(value string)
	// Local and UnsetLocal give access to the shell's variables that are
	// not exported.
	Local(name string) (string, bool)
	UnsetLocal(name string)
}

// Table dispatches the builtins. It implements the interface expected by
// package process.
type Table struct {
	host    Host
	env     expand.WriteEnviron
	aliases *alias.Table
}

// New returns the builtins of a shell. Writes to the environment go to env,
// which is also what started programs inherit.
func New(host Host, env expand.WriteEnviron, aliases *alias.Table) *Table {
	return &Table{host: host, env: env, aliases: aliases}
}

var names = []string{"alias", "cd", "debug", "exit", "export", "history", "unalias", "unexport"}

// Names returns the names of all builtins, sorted.
func Names() []string { return slices.Clone(names) }

// IsBuiltin reports whether name is a builtin.
func (t *Table) IsBuiltin(name string) bool {
	_, found := slices.BinarySearch(names, name)
	return found
}

// call is a single run of a builtin.
type call struct {
	Stdio
	name string
	args []string // without the name
}

func (c *call) out(format string, a ...any) {
	fmt.Fprintf(c.Stdout, format, a...)
}

// errf prints one line to standard error and returns the failure status.
func (c *call) errf(format string, a ...any) int {
	fmt.Fprintf(c.Stderr, c.name+": "+format+"\n", a...)
	return 1
}

// maxArgs reports an error and returns false if there are too many arguments.
func (c *call) maxArgs(n int) bool {
	if len(c.args) > n {
		c.errf("too many arguments")
		return false
	}
	return true
}

// Run runs the builtin named by args[0], returning its exit status.
func (t *Table) Run(ctx context.Context, stdio Stdio, args []string) int {
	if stdio.Stdout == nil {
		stdio.Stdout = io.Discard
	}
	if stdio.Stderr == nil {
		stdio.Stderr = io.Discard
	}
	if len(args) == 0 || !t.IsBuiltin(args[0]) {
		name := ""
		if len(args) > 0 {
			name = args[0]
		}
		fmt.Fprintf(stdio.Stderr, "nsh: %q is not a builtin\n", name)
		return 1
	}
	c := &call{Stdio: stdio, name: args[0], args: args[1:]}
	switch c.name {
	case "cd":
		return t.cd(c)
	case "exit":
		return t.exit(c)
	case "alias":
		return t.alias(c)
	case "unalias":
		return t.unalias(c)
	case "export":
		return t.export(c)
	case "unexport":
		return t.unexport(c)
	case "history":
		return t.history(c)
	case "debug":
		return t.debug(c)
	}
	panic(fmt.Sprintf("unhandled builtin: %s", c.name))
}

func (t *Table) cd(c *call) int {
	if !c.maxArgs(1) {
		return 1
	}
	var dir string
	if len(c.args) == 1 {
		dir = c.args[0]
	} else {
		dir = t.env.Get("HOME").String()
	}
	if dir == "" {
		dir = "/"
	}
	if err := os.Chdir(dir); err != nil {
		return c.errf("%v", err)
	}
	if wd, err := os.Getwd(); err == nil {
		if err := t.env.Set("PWD", expand.StringVar(wd)); err != nil {
			return c.errf("%v", err)
		}
	}
	return 0
}

func (t *Table) exit(c *call) int {
	if !c.maxArgs(1) {
		return 1
	}
	var status uint8
	if len(c.args) == 1 {
		n, err := strconv.ParseUint(c.args[0], 10, 8)
		if err != nil {
			return c.errf("invalid exit status: %q", c.args[0])
		}
		status = uint8(n)
	}
	t.host.Exit(status)
	return int(status)
}

func (t *Table) alias(c *call) int {
	if !c.maxArgs(1) {
		return 1
	}
	if len(c.args) == 0 {
		for _, a := range t.aliases.All() {
			c.out("%s=%s\n", a.Name, a.Value)
		}
		return 0
	}
	name, value, ok := strings.Cut(c.args[0], "=")
	if !ok {
		value, ok := t.aliases.Get(name)
		if !ok {
			return c.errf("%s: not found", name)
		}
		c.out("%s=%s\n", name, value)
		return 0
	}
	if name == "" {
		return c.errf("invalid alias name: %q", c.args[0])
	}
	t.aliases.Add(name, value)
	return 0
}

func (t *Table) unalias(c *call) int {
	switch len(c.args) {
	case 0:
		return c.errf("too few arguments")
	case 1:
	default:
		return c.errf("too many arguments")
	}
	if !t.aliases.Remove(c.args[0]) {
		return c.errf("`%s' not in alias table", c.args[0])
	}
	return 0
}

func (t *Table) export(c *call) int {
	if !c.maxArgs(1) {
		return 1
	}
	if len(c.args) == 0 {
		for _, pair := range expand.Pairs(t.env) {
			c.out("%s\n", pair)
		}
		return 0
	}
	name, value, ok := strings.Cut(c.args[0], "=")
	if !ok {
		if local, ok := t.host.Local(name); ok {
			value = local
		} else if vr := t.env.Get(name); vr.IsSet() {
			c.out("%s=%s\n", name, vr.String())
			return 0
		} else {
			return c.errf("%s is not an environment variable", name)
		}
	}
	if err := t.env.Set(name, expand.StringVar(value)); err != nil {
		return c.errf("%v", err)
	}
	// the local copy would shadow the exported one
	t.host.UnsetLocal(name)
	if name == "HISTSIZE" {
		t.host.SetHistSize(value)
	}
	return 0
}

func (t *Table) unexport(c *call) int {
	switch len(c.args) {
	case 0:
		return c.errf("too few arguments")
	case 1:
	default:
		return c.errf("too many arguments")
	}
	if err := t.env.Set(c.args[0], expand.Variable{}); err != nil {
		return c.errf("%v", err)
	}
	return 0
}

func (t *Table) history(c *call) int {
	if !c.maxArgs(1) {
		return 1
	}
	n := 20
	if len(c.args) == 1 {
		var err error
		if n, err = strconv.Atoi(c.args[0]); err != nil || n < 0 {
			return c.errf("invalid argument: %q", c.args[0])
		}
	}
	lines := t.host.History()
	if len(lines) == 0 {
		return c.errf("no history")
	}
	begin := max(len(lines)-n, 0)
	for i := begin; i < len(lines); i++ {
		c.out("%8d %s\n", i, lines[i])
	}
	return 0
}

func (t *Table) debug(c *call) int {
	if !c.maxArgs(0) {
		return 1
	}
	state := "off"
	if t.host.ToggleDebug() {
		state = "on"
	}
	c.out("debug: now %s\n", state)
	return 0
}
