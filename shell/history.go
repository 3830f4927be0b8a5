// Copyright (c) 2018, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package shell

import (
	"bufio"
	"bytes"
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/google/renameio/v2"

	"mvdan.cc/nsh/expand"
)

// History is the list of lines entered in a shell, oldest first.
type History struct {
	lines []string
	size  int // negative for no bound
	path  string
}

// NewHistory returns an empty, unbounded history which is loaded from and
// saved to path. An empty path means that it is only kept in memory.
func NewHistory(path string) *History {
	return &History{size: -1, path: path}
}

// HistoryPath returns where the history is kept by default: $NSH_HISTFILE,
// or ~/.nsh_history. It returns an empty string if neither is available.
func HistoryPath(env expand.Environ) string {
	if path := env.Get("NSH_HISTFILE").String(); path != "" {
		return path
	}
	if path, ok := expand.Tilde(env, "~/.nsh_history"); ok {
		return path
	}
	return ""
}

// Path returns the file the history is kept in.
func (h *History) Path() string { return h.path }

// Lines returns the remembered lines. The slice must not be modified.
func (h *History) Lines() []string { return h.lines }

// Add appends a line, dropping the oldest ones if the bound is reached.
func (h *History) Add(line string) {
	h.lines = append(h.lines, line)
	h.trim()
}

func (h *History) trim() {
	if h.size >= 0 && len(h.lines) > h.size {
		h.lines = append(h.lines[:0], h.lines[len(h.lines)-h.size:]...)
	}
}

// SetSize sets the bound from the value of HISTSIZE. An empty value removes
// the bound, and a value which is not a non-negative integer is ignored.
func (h *History) SetSize(value string) {
	if value == "" {
		h.size = -1
		return
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return
	}
	h.size = n
	h.trim()
}

// encodeLine writes one entry per line. Entries which would not survive that,
// such as those spanning many lines, are quoted.
func encodeLine(line string) string {
	if strings.ContainsAny(line, "\n\r") || strings.HasPrefix(line, `"`) {
		return strconv.Quote(line)
	}
	return line
}

func decodeLine(line string) string {
	if strings.HasPrefix(line, `"`) {
		if s, err := strconv.Unquote(line); err == nil {
			return s
		}
	}
	return line
}

// Load appends the lines in the history file. A missing file is not an error.
func (h *History) Load() error {
	if h.path == "" {
		return nil
	}
	data, err := os.ReadFile(h.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(nil, 1<<20)
	for sc.Scan() {
		h.lines = append(h.lines, decodeLine(sc.Text()))
	}
	h.trim()
	return sc.Err()
}

// Save replaces the history file with the current lines.
func (h *History) Save() error {
	if h.path == "" {
		return nil
	}
	var buf bytes.Buffer
	for _, line := range h.lines {
		buf.WriteString(encodeLine(line))
		buf.WriteByte('\n')
	}
	return renameio.WriteFile(h.path, buf.Bytes(), 0o600)
}
