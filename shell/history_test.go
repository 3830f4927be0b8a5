// Copyright (c) 2018, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package shell

import (
	"os"
	"path/filepath"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/kr/pretty"

	"mvdan.cc/nsh/expand"
)

func assertLines(t *testing.T, h *History, want ...string) {
	t.Helper()
	if diff := pretty.Diff(want, h.Lines()); len(diff) > 0 {
		t.Fatalf("unexpected history lines:\n%s", pretty.Sprint(diff))
	}
}

func TestHistoryBounds(t *testing.T) {
	t.Parallel()
	h := NewHistory("")
	for _, line := range []string{"a", "b", "c", "d"} {
		h.Add(line)
	}
	assertLines(t, h, "a", "b", "c", "d")

	h.SetSize("3")
	assertLines(t, h, "b", "c", "d")
	h.Add("e")
	assertLines(t, h, "c", "d", "e")

	// invalid values are ignored
	h.SetSize("-1")
	h.SetSize("lots")
	h.Add("f")
	assertLines(t, h, "d", "e", "f")

	h.SetSize("")
	h.Add("g")
	assertLines(t, h, "d", "e", "f", "g")

	h.SetSize("0")
	h.Add("h")
	qt.Assert(t, h.Lines(), qt.HasLen, 0)
}

func TestHistoryFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "history")

	h := NewHistory(path)
	qt.Assert(t, h.Load(), qt.IsNil)
	qt.Assert(t, h.Lines(), qt.HasLen, 0)

	h.Add("echo one")
	h.Add("echo 'two\nlines'")
	h.Add(`"quoted"`)
	h.Add("")
	qt.Assert(t, h.Save(), qt.IsNil)

	data, err := os.ReadFile(path)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, string(data), qt.Equals,
		"echo one\n\"echo 'two\\nlines'\"\n\"\\\"quoted\\\"\"\n\n")
	info, err := os.Stat(path)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, info.Mode().Perm(), qt.Equals, os.FileMode(0o600))

	h2 := NewHistory(path)
	h2.SetSize("3")
	qt.Assert(t, h2.Load(), qt.IsNil)
	assertLines(t, h2, "echo 'two\nlines'", `"quoted"`, "")
	qt.Assert(t, h2.Path(), qt.Equals, path)
}

func TestHistoryNoPath(t *testing.T) {
	t.Parallel()
	h := NewHistory("")
	h.Add("x")
	qt.Assert(t, h.Save(), qt.IsNil)
	qt.Assert(t, h.Load(), qt.IsNil)
	assertLines(t, h, "x")
}

func TestHistoryPath(t *testing.T) {
	t.Parallel()
	tests := []struct {
		env  []string
		want string
	}{
		{[]string{"HOME=/home/me"}, "/home/me/.nsh_history"},
		{[]string{"HOME=/home/me", "NSH_HISTFILE=/tmp/hist"}, "/tmp/hist"},
		{[]string{"HOME=/home/me/", "NSH_HISTFILE="}, "/home/me/.nsh_history"},
	}
	for _, tc := range tests {
		got := HistoryPath(expand.ListEnviron(tc.env...))
		qt.Assert(t, got, qt.Equals, tc.want, qt.Commentf("%q", tc.env))
	}
}

func TestExpandHistory(t *testing.T) {
	t.Parallel()
	lines := []string{"echo first", "ls -l", "echo last"}
	tests := []struct {
		in, want string
		err      string
	}{
		{"echo plain", "echo plain", ""},
		{"!!", "echo last", ""},
		{"!! | wc", "echo last | wc", ""},
		{"!0", "echo first", ""},
		{"!-2", "ls -l", ""},
		{"!ls; !ec", "ls -l; echo last", ""},
		{"! true", "! true", ""},
		{"a!", "a!", ""},
		{"x!=y", "x!=y", ""},
		{"echo '!!'", "echo '!!'", ""},
		{`echo \!!`, `echo \!!`, ""},
		{"!9", "", "!9: event not found"},
		{"!nope", "", "!nope: event not found"},
	}
	for _, tc := range tests {
		got, changed, err := expandHistory(tc.in, lines)
		if tc.err != "" {
			qt.Assert(t, err, qt.ErrorMatches, tc.err)
			qt.Assert(t, got, qt.Equals, tc.in)
			continue
		}
		qt.Assert(t, err, qt.IsNil)
		qt.Assert(t, got, qt.Equals, tc.want)
		qt.Assert(t, changed, qt.Equals, tc.in != tc.want)
	}

	_, _, err := expandHistory("!!", nil)
	qt.Assert(t, err, qt.ErrorMatches, `!!: event not found`)
}
