// Copyright (c) 2017, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package process

import (
	"fmt"
	"os"
	"strconv"
	"sync"

	"golang.org/x/sys/unix"

	"mvdan.cc/nsh/il"
	"mvdan.cc/nsh/vm"
)

// fdTable is the descriptor table a command will start with. Index i holds
// what becomes descriptor i; nil means closed.
type fdTable struct {
	files []*os.File

	// opened are the files opened by redirections, which the shell closes
	// once the command has started.
	opened []*os.File
}

// newTable starts from the engine's standard streams, connects the pipe ends
// of cmd, and then applies its redirections from left to right.
func (e *Engine) newTable(cmd *vm.Command) (*fdTable, error) {
	t := &fdTable{files: []*os.File{e.stdin, e.stdout, e.stderr}}
	if cmd.PipeIn != nil {
		t.files[0] = cmd.PipeIn
	}
	if cmd.PipeOut != nil {
		t.files[1] = cmd.PipeOut
	}
	for _, r := range cmd.Redirs {
		if err := t.apply(r); err != nil {
			t.close()
			return nil, err
		}
	}
	return t, nil
}

func redirFlag(kind il.RedirKind) (int, bool) {
	switch kind {
	case il.RedirInput:
		return os.O_RDONLY, true
	case il.RedirOutput, il.RedirOutputClobber:
		return os.O_WRONLY | os.O_CREATE | os.O_TRUNC, true
	case il.RedirOutputAppend:
		return os.O_WRONLY | os.O_CREATE | os.O_APPEND, true
	case il.RedirInOut:
		return os.O_RDWR | os.O_CREATE, true
	}
	return 0, false
}

// maxFDLimit caps the descriptors a command may name, even when the soft
// RLIMIT_NOFILE is higher or unlimited.
const maxFDLimit = 1 << 16

// fdLimit is one more than the largest descriptor a command may name.
var fdLimit = sync.OnceValue(func() int {
	var lim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &lim); err != nil || lim.Cur > maxFDLimit {
		return maxFDLimit
	}
	return int(lim.Cur)
})

func checkFD(fd int) error {
	if fd < 0 || fd >= fdLimit() {
		return fmt.Errorf("%d: bad file descriptor", fd)
	}
	return nil
}

func (t *fdTable) apply(r *vm.Redirect) error {
	if err := checkFD(r.FD); err != nil {
		return err
	}
	if r.Kind.IsDup() {
		f, err := t.get(r.DupFD)
		if err != nil {
			return err
		}
		t.set(r.FD, f)
		return nil
	}
	flag, ok := redirFlag(r.Kind)
	if !ok {
		return fmt.Errorf("%s: unsupported redirection", r.Kind)
	}
	f, err := os.OpenFile(r.Path, flag, 0o666)
	if err != nil {
		return err
	}
	t.opened = append(t.opened, f)
	t.set(r.FD, f)
	return nil
}

func (t *fdTable) set(fd int, f *os.File) {
	for len(t.files) <= fd {
		t.files = append(t.files, nil)
	}
	t.files[fd] = f
}

// get returns what descriptor fd refers to. Descriptors above the standard
// three which the table does not know about may have been inherited by the
// shell itself.
func (t *fdTable) get(fd int) (*os.File, error) {
	if err := checkFD(fd); err != nil {
		return nil, err
	}
	if fd < len(t.files) && t.files[fd] != nil {
		return t.files[fd], nil
	}
	if fd > 2 {
		if nfd, err := unix.Dup(fd); err == nil {
			unix.CloseOnExec(nfd)
			f := os.NewFile(uintptr(nfd), "fd"+strconv.Itoa(fd))
			t.opened = append(t.opened, f)
			return f, nil
		}
	}
	return nil, fmt.Errorf("%d: bad file descriptor", fd)
}

func (t *fdTable) file(fd int) *os.File {
	if fd < len(t.files) {
		return t.files[fd]
	}
	return nil
}

// extra returns the descriptors from 3 onwards.
func (t *fdTable) extra() []*os.File {
	if len(t.files) <= 3 {
		return nil
	}
	return t.files[3:]
}

func (t *fdTable) close() {
	for _, f := range t.opened {
		f.Close()
	}
	t.opened = nil
}
