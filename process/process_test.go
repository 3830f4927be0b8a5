// Copyright (c) 2017, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package process

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/creack/pty"
	qt "github.com/frankban/quicktest"

	"mvdan.cc/nsh/builtin"
	"mvdan.cc/nsh/expand"
	"mvdan.cc/nsh/il"
	"mvdan.cc/nsh/vm"
)

// output is a pair of files standing in for the shell's stdout and stderr.
type output struct {
	stdout, stderr *os.File
}

func newOutput(t *testing.T) *output {
	dir := t.TempDir()
	stdout, err := os.Create(filepath.Join(dir, "stdout"))
	qt.Assert(t, err, qt.IsNil)
	stderr, err := os.Create(filepath.Join(dir, "stderr"))
	qt.Assert(t, err, qt.IsNil)
	t.Cleanup(func() {
		stdout.Close()
		stderr.Close()
	})
	return &output{stdout, stderr}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	qt.Assert(t, err, qt.IsNil)
	return string(data)
}

func (o *output) String(t *testing.T) (stdout, stderr string) {
	return readFile(t, o.stdout.Name()), readFile(t, o.stderr.Name())
}

func newEngine(t *testing.T, opts ...Option) (*Engine, *output) {
	out := newOutput(t)
	opts = append([]Option{
		Env(expand.ListEnviron("PATH=" + os.Getenv("PATH"))),
		Stdio(nil, out.stdout, out.stderr),
		KillTimeout(-1),
	}, opts...)
	return New(opts...), out
}

func command(args ...string) *vm.Command { return &vm.Command{Args: args} }

func TestExecStatus(t *testing.T) {
	t.Parallel()
	tests := []struct {
		args       []string
		want       int
		wantStderr string
	}{
		{[]string{"true"}, 0, ""},
		{[]string{"false"}, 1, ""},
		{[]string{"sh", "-c", "exit 42"}, 42, ""},
		{[]string{"sh", "-c", "kill -9 $$"}, 128 + 9, ""},
		{[]string{"nsh-missing-program"}, 127, `nsh: "nsh-missing-program": executable file not found in \$PATH\n`},
		{[]string{"./nsh-missing-program"}, 127, `nsh: \./nsh-missing-program: stat .*/nsh-missing-program: no such file or directory\n`},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.args[0], func(t *testing.T) {
			t.Parallel()
			e, out := newEngine(t)
			got := e.Exec(context.Background(), command(tc.args...), false)
			qt.Assert(t, got, qt.Equals, tc.want)
			_, stderr := out.String(t)
			qt.Assert(t, stderr, qt.Matches, tc.wantStderr)
		})
	}
}

func TestExecOutput(t *testing.T) {
	t.Parallel()
	e, out := newEngine(t)
	cmd := command("sh", "-c", `echo "$FOO" out; echo err >&2`)
	cmd.Assigns = []vm.AssignWord{{Name: "FOO", Value: "bar baz"}}
	qt.Assert(t, e.Exec(context.Background(), cmd, false), qt.Equals, 0)
	stdout, stderr := out.String(t)
	qt.Assert(t, stdout, qt.Equals, "bar baz out\n")
	qt.Assert(t, stderr, qt.Equals, "err\n")
}

func TestRedirects(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := func(name string) string { return filepath.Join(dir, name) }
	e, out := newEngine(t)
	ctx := context.Background()

	cmd := command("echo", "first")
	cmd.Redirs = []*vm.Redirect{{Kind: il.RedirOutput, FD: 1, Path: path("f")}}
	qt.Assert(t, e.Exec(ctx, cmd, false), qt.Equals, 0)

	cmd = command("echo", "second")
	cmd.Redirs = []*vm.Redirect{{Kind: il.RedirOutputAppend, FD: 1, Path: path("f")}}
	qt.Assert(t, e.Exec(ctx, cmd, false), qt.Equals, 0)
	qt.Assert(t, readFile(t, path("f")), qt.Equals, "first\nsecond\n")

	cmd = command("cat")
	cmd.Redirs = []*vm.Redirect{
		{Kind: il.RedirInput, FD: 0, Path: path("f")},
		{Kind: il.RedirOutputClobber, FD: 1, Path: path("g")},
	}
	qt.Assert(t, e.Exec(ctx, cmd, false), qt.Equals, 0)
	qt.Assert(t, readFile(t, path("g")), qt.Equals, "first\nsecond\n")

	// 3<>file opens for reading and writing without truncating
	cmd = command("sh", "-c", "echo THIRD >&3")
	cmd.Redirs = []*vm.Redirect{{Kind: il.RedirInOut, FD: 3, Path: path("g")}}
	qt.Assert(t, e.Exec(ctx, cmd, false), qt.Equals, 0)
	qt.Assert(t, readFile(t, path("g")), qt.Equals, "THIRD\nsecond\n")

	stdout, stderr := out.String(t)
	qt.Assert(t, stdout, qt.Equals, "")
	qt.Assert(t, stderr, qt.Equals, "")
}

// TestRedirectOrder checks that "cmd 2>&1 >file" sends standard error to where
// standard output was before it was redirected.
func TestRedirectOrder(t *testing.T) {
	t.Parallel()
	file := filepath.Join(t.TempDir(), "file")
	e, out := newEngine(t)
	cmd := command("sh", "-c", "echo out; echo err >&2")
	cmd.Redirs = []*vm.Redirect{
		{Kind: il.RedirOutputDup, FD: 2, DupFD: 1},
		{Kind: il.RedirOutput, FD: 1, Path: file},
	}
	qt.Assert(t, e.Exec(context.Background(), cmd, false), qt.Equals, 0)
	stdout, stderr := out.String(t)
	qt.Assert(t, stdout, qt.Equals, "err\n")
	qt.Assert(t, stderr, qt.Equals, "")
	qt.Assert(t, readFile(t, file), qt.Equals, "out\n")

	// and the other way around, both go to the file
	cmd.Redirs = []*vm.Redirect{
		{Kind: il.RedirOutput, FD: 1, Path: file},
		{Kind: il.RedirOutputDup, FD: 2, DupFD: 1},
	}
	qt.Assert(t, e.Exec(context.Background(), cmd, false), qt.Equals, 0)
	qt.Assert(t, readFile(t, file), qt.Equals, "out\nerr\n")
}

func TestRedirectOnly(t *testing.T) {
	t.Parallel()
	file := filepath.Join(t.TempDir(), "created")
	e, _ := newEngine(t)
	cmd := &vm.Command{Redirs: []*vm.Redirect{{Kind: il.RedirOutput, FD: 1, Path: file}}}
	qt.Assert(t, e.Exec(context.Background(), cmd, false), qt.Equals, 0)
	qt.Assert(t, readFile(t, file), qt.Equals, "")
}

func TestRedirectErrors(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	e, out := newEngine(t)

	// nothing may run if a redirection fails
	marker := filepath.Join(dir, "marker")
	cmd := command("touch", marker)
	cmd.Redirs = []*vm.Redirect{{Kind: il.RedirInput, FD: 0, Path: filepath.Join(dir, "missing")}}
	qt.Assert(t, e.Exec(context.Background(), cmd, false), qt.Equals, 1)
	_, err := os.Stat(marker)
	qt.Assert(t, os.IsNotExist(err), qt.IsTrue)

	cmd = command("true")
	cmd.Redirs = []*vm.Redirect{{Kind: il.RedirOutputDup, FD: 1, DupFD: 250}}
	qt.Assert(t, e.Exec(context.Background(), cmd, false), qt.Equals, 1)

	// descriptors past the limit are refused before any file is opened
	huge := filepath.Join(dir, "huge")
	cmd = command("true")
	cmd.Redirs = []*vm.Redirect{{Kind: il.RedirOutput, FD: math.MaxInt32, Path: huge}}
	qt.Assert(t, e.Exec(context.Background(), cmd, false), qt.Equals, 1)
	_, err = os.Stat(huge)
	qt.Assert(t, os.IsNotExist(err), qt.IsTrue)

	cmd = command("true")
	cmd.Redirs = []*vm.Redirect{{Kind: il.RedirOutputDup, FD: 1, DupFD: math.MaxInt32}}
	qt.Assert(t, e.Exec(context.Background(), cmd, false), qt.Equals, 1)

	cmd = &vm.Command{Redirs: []*vm.Redirect{{Kind: il.RedirOutputDup, FD: maxFDLimit, DupFD: 1}}}
	qt.Assert(t, e.Exec(context.Background(), cmd, false), qt.Equals, 1)

	_, stderr := out.String(t)
	lines := strings.Split(strings.TrimSuffix(stderr, "\n"), "\n")
	qt.Assert(t, lines, qt.HasLen, 5)
	qt.Assert(t, lines[0], qt.Matches, `nsh: open .*missing: no such file or directory`)
	qt.Assert(t, lines[1], qt.Equals, "nsh: 250: bad file descriptor")
	qt.Assert(t, lines[2], qt.Equals, "nsh: 2147483647: bad file descriptor")
	qt.Assert(t, lines[3], qt.Equals, "nsh: 2147483647: bad file descriptor")
	qt.Assert(t, lines[4], qt.Equals, "nsh: 65536: bad file descriptor")
}

func TestPipeline(t *testing.T) {
	t.Parallel()
	tests := []struct {
		cmds   [][]string
		want   int
		stdout string
	}{
		{[][]string{{"echo", "hello"}, {"tr", "a-z", "A-Z"}}, 0, "HELLO\n"},
		{[][]string{{"printf", "b\\na\\nc\\n"}, {"sort"}, {"head", "-n", "2"}}, 0, "a\nb\n"},
		{[][]string{{"false"}, {"true"}, {"false"}}, 1, ""},
		{[][]string{{"true"}, {"false"}, {"true"}}, 0, ""},
		{[][]string{{"sh", "-c", "exit 3"}, {"sh", "-c", "exit 4"}}, 4, ""},
		{[][]string{{"echo", "x"}, {"nsh-missing-program"}}, 127, ""},
	}
	for _, tc := range tests {
		tc := tc
		t.Run("", func(t *testing.T) {
			t.Parallel()
			e, out := newEngine(t)
			p := &vm.Pipeline{}
			for _, args := range tc.cmds {
				p.Commands = append(p.Commands, command(args...))
			}
			qt.Assert(t, e.Exec(context.Background(), p, false), qt.Equals, tc.want)
			stdout, _ := out.String(t)
			qt.Assert(t, stdout, qt.Equals, tc.stdout)
			for _, cmd := range p.Commands {
				qt.Assert(t, cmd.PipeIn, qt.IsNil)
				qt.Assert(t, cmd.PipeOut, qt.IsNil)
			}
		})
	}
}

func TestBackground(t *testing.T) {
	t.Parallel()
	e, _ := newEngine(t)
	start := time.Now()
	pid := e.Exec(context.Background(), command("sleep", "2"), true)
	qt.Assert(t, pid > 0, qt.IsTrue)

	p := &vm.Pipeline{Commands: []*vm.Command{command("sleep", "2"), command("cat")}}
	pid = e.Exec(context.Background(), p, true)
	qt.Assert(t, pid > 0, qt.IsTrue)
	qt.Assert(t, time.Since(start) < 2*time.Second, qt.IsTrue)

	qt.Assert(t, e.Exec(context.Background(), command("nsh-missing-program"), true), qt.Equals, 0)
}

func TestCancel(t *testing.T) {
	t.Parallel()
	e, _ := newEngine(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	qt.Assert(t, e.Exec(ctx, command("sleep", "10"), false), qt.Equals, 128+9)
}

type fakeBuiltins struct {
	ran [][]string
}

func (*fakeBuiltins) IsBuiltin(name string) bool { return name == "say" }

func (b *fakeBuiltins) Run(ctx context.Context, stdio builtin.Stdio, args []string) int {
	b.ran = append(b.ran, args)
	stdio.Stdout.Write([]byte(strings.Join(args[1:], " ") + "\n"))
	return 7
}

func TestBuiltins(t *testing.T) {
	t.Parallel()
	b := &fakeBuiltins{}
	e, out := newEngine(t, WithBuiltins(b))
	ctx := context.Background()

	qt.Assert(t, e.Exec(ctx, command("say", "hi"), false), qt.Equals, 7)

	file := filepath.Join(t.TempDir(), "said")
	cmd := command("say", "to", "file")
	cmd.Redirs = []*vm.Redirect{{Kind: il.RedirOutput, FD: 1, Path: file}}
	qt.Assert(t, e.Exec(ctx, cmd, false), qt.Equals, 7)
	qt.Assert(t, readFile(t, file), qt.Equals, "to file\n")

	qt.Assert(t, e.Exec(ctx, command("say", "bg"), true), qt.Equals, 0)
	p := &vm.Pipeline{Commands: []*vm.Command{command("echo"), command("say")}}
	qt.Assert(t, e.Exec(ctx, p, false), qt.Equals, 1)
	qt.Assert(t, b.ran, qt.HasLen, 2)

	stdout, stderr := out.String(t)
	qt.Assert(t, stdout, qt.Equals, "hi\n")
	qt.Assert(t, stderr, qt.Equals,
		"nsh: say: builtins cannot run in the background\n"+
			"nsh: say: builtins cannot be part of a pipeline\n")
}

func TestTerminalStdin(t *testing.T) {
	t.Parallel()
	ptmx, tty, err := pty.Open()
	if err != nil {
		t.Skipf("no pty available: %v", err)
	}
	defer ptmx.Close()
	defer tty.Close()

	out := newOutput(t)
	e := New(
		Env(expand.ListEnviron("PATH="+os.Getenv("PATH"))),
		Stdio(tty, out.stdout, out.stderr),
	)
	qt.Assert(t, e.Exec(context.Background(), command("sh", "-c", "test -t 0"), false), qt.Equals, 0)

	// a redirection replaces the terminal
	cmd := command("sh", "-c", "test -t 0")
	cmd.Redirs = []*vm.Redirect{{Kind: il.RedirInput, FD: 0, Path: out.stdout.Name()}}
	qt.Assert(t, e.Exec(context.Background(), cmd, false), qt.Equals, 1)
}

func TestLookPathDir(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	bin := filepath.Join(dir, "bin")
	qt.Assert(t, os.Mkdir(bin, 0o777), qt.IsNil)
	qt.Assert(t, os.WriteFile(filepath.Join(bin, "prog"), []byte("#!/bin/sh\n"), 0o777), qt.IsNil)
	qt.Assert(t, os.WriteFile(filepath.Join(bin, "noexec"), []byte("data"), 0o666), qt.IsNil)
	qt.Assert(t, os.Mkdir(filepath.Join(bin, "subdir"), 0o777), qt.IsNil)

	env := expand.ListEnviron("PATH=/nonexistent:" + bin)
	got, err := LookPathDir(dir, env, "prog")
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, got, qt.Equals, filepath.Join(bin, "prog"))

	got, err = LookPathDir(dir, env, "bin/prog")
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, got, qt.Equals, filepath.Join(bin, "prog"))

	_, err = LookPathDir(dir, env, "noexec")
	qt.Assert(t, err, qt.ErrorMatches, `"noexec": executable file not found in \$PATH`)
	_, err = LookPathDir(dir, env, "subdir")
	qt.Assert(t, err, qt.ErrorMatches, `"subdir": executable file not found in \$PATH`)
	_, err = LookPathDir(dir, env, "bin/noexec")
	qt.Assert(t, err, qt.ErrorMatches, `bin/noexec: permission denied`)
	_, err = LookPathDir(dir, env, "bin/subdir")
	qt.Assert(t, err, qt.ErrorMatches, `bin/subdir: is a directory`)
}
