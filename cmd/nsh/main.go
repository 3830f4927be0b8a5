// Copyright (c) 2017, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

// nsh is a small interactive shell.
//
// With no arguments, it reads commands from standard input, interactively if
// it is a terminal. Otherwise, it runs the command given with -c, or the
// script file named by the first argument.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"golang.org/x/term"

	"mvdan.cc/nsh/expand"
	"mvdan.cc/nsh/shell"
)

var (
	command     = flag.String("c", "", "command to be executed")
	debug       = flag.Bool("debug", false, "trace the parser and the virtual machine")
	noRC        = flag.Bool("norc", false, "do not read ~/.nshrc when interactive")
	histFile    = flag.String("histfile", "", "history file (default $NSH_HISTFILE or ~/.nsh_history)")
	interactive = flag.Bool("i", false, "run interactively even if stdin is not a terminal")
)

const defaultPath = "/usr/local/bin:/usr/bin:/bin:/usr/sbin:/sbin"

func main() {
	os.Exit(main1())
}

func main1() int {
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, `usage: nsh [flags] [script [args...]]

`)
		flag.PrintDefaults()
	}
	flag.Parse()
	switch err := runAll().(type) {
	case nil:
		return 0
	case shell.ExitStatus:
		return int(err)
	default:
		fmt.Fprintf(os.Stderr, "nsh: %v\n", err)
		return 1
	}
}

// initEnv seeds the variables every session expects to find.
func initEnv() {
	if exe, err := os.Executable(); err == nil {
		if exe, err := filepath.EvalSymlinks(exe); err == nil {
			os.Setenv("SHELL", exe)
		}
	}
	if _, ok := os.LookupEnv("PATH"); !ok {
		os.Setenv("PATH", defaultPath)
	}
	if wd, err := os.Getwd(); err == nil {
		os.Setenv("PWD", wd)
	}
}

func runAll() error {
	initEnv()
	ctx := context.Background()
	opts := []shell.Option{shell.Debug(*debug)}

	if *command != "" {
		if flag.NArg() > 0 {
			opts = append(opts, shell.Params(flag.Args()...))
		}
		s := shell.New(opts...)
		return s.Run(ctx, shell.NewReader(strings.NewReader(*command)))
	}
	if flag.NArg() > 0 {
		f, err := os.Open(flag.Arg(0))
		if err != nil {
			return err
		}
		defer f.Close()
		opts = append(opts, shell.Params(flag.Args()...))
		s := shell.New(opts...)
		return s.Run(ctx, shell.NewReader(f))
	}
	isTerminal := term.IsTerminal(int(os.Stdin.Fd()))
	if !isTerminal && !*interactive {
		s := shell.New(opts...)
		return s.Run(ctx, shell.NewReader(os.Stdin))
	}
	return runInteractive(ctx, opts, isTerminal)
}

func runInteractive(ctx context.Context, opts []shell.Option, isTerminal bool) error {
	path := *histFile
	if path == "" {
		path = shell.HistoryPath(expand.OSEnviron())
	}
	hist := shell.NewHistory(path)
	if err := hist.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "nsh: reading history: %v\n", err)
	}
	opts = append(opts, shell.Interactive(true), shell.WithHistory(hist))
	s := shell.New(opts...)

	// an interrupt is meant for the line being run, not for the shell
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt)
	defer signal.Stop(sigc)
	go func() {
		for range sigc {
			s.Interrupt()
		}
	}()

	if !*noRC {
		if rc, ok := expand.Tilde(expand.OSEnviron(), "~/.nshrc"); ok {
			if err := s.SourceFile(ctx, rc); err != nil && !os.IsNotExist(err) {
				if _, ok := err.(shell.ExitStatus); !ok {
					fmt.Fprintf(os.Stderr, "nsh: %v\n", err)
				}
			}
		}
	}

	var r shell.LineReader
	if isTerminal {
		r = newTermReader(os.Stdin, os.Stdout)
	} else {
		r = promptReader{shell.NewReader(os.Stdin), os.Stdout}
	}
	err := s.Run(ctx, r)
	if err := hist.Save(); err != nil {
		fmt.Fprintf(os.Stderr, "nsh: writing history: %v\n", err)
	}
	return err
}

// promptReader shows the prompts of an interactive shell whose input is not
// a terminal.
type promptReader struct {
	shell.LineReader
	w io.Writer
}

func (r promptReader) ReadLine(prompt string) (string, error) {
	fmt.Fprint(r.w, prompt)
	return r.LineReader.ReadLine(prompt)
}

// termReader edits lines on a terminal, which is only kept in raw mode while
// a line is being read.
type termReader struct {
	fd   int
	term *term.Terminal
}

func newTermReader(in *os.File, out io.Writer) *termReader {
	t := term.NewTerminal(struct {
		io.Reader
		io.Writer
	}{in, out}, "")
	t.AutoCompleteCallback = func(line string, pos int, key rune) (string, int, bool) {
		if key != '\t' {
			return "", 0, false
		}
		wd, err := os.Getwd()
		if err != nil {
			return "", 0, false
		}
		return shell.CompleteFile(wd, line, pos)
	}
	return &termReader{fd: int(in.Fd()), term: t}
}

func (r *termReader) ReadLine(prompt string) (string, error) {
	if width, height, err := term.GetSize(r.fd); err == nil {
		r.term.SetSize(width, height)
	}
	state, err := term.MakeRaw(r.fd)
	if err != nil {
		return "", err
	}
	defer term.Restore(r.fd, state)
	r.term.SetPrompt(prompt)
	return r.term.ReadLine()
}
