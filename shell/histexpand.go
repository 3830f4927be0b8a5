// Copyright (c) 2018, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package shell

import (
	"fmt"
	"strconv"
	"strings"
)

// expandHistory replaces the history events in line:
//
//	!!      the last line
//	!n      line number n, as listed by the history builtin
//	!-n     the n-th last line
//	!word   the last line starting with word
//
// A "!" followed by a blank, "=", "(" or the end of the line is kept, as is
// anything within single quotes or escaped with a backslash. The second
// result reports whether anything was replaced.
func expandHistory(line string, lines []string) (string, bool, error) {
	if !strings.Contains(line, "!") {
		return line, false, nil
	}
	var sb strings.Builder
	changed := false
	quoted := false
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == '\'':
			quoted = !quoted
		case c == '\\' && !quoted && i+1 < len(line):
			sb.WriteByte(c)
			i++
			c = line[i]
		case c == '!' && !quoted:
			event, n := historyEvent(line[i+1:])
			if n == 0 {
				break
			}
			found, err := findEvent(event, lines)
			if err != nil {
				return line, false, err
			}
			sb.WriteString(found)
			changed = true
			i += n
			continue
		}
		sb.WriteByte(c)
	}
	return sb.String(), changed, nil
}

// historyEvent returns the event designator at the start of s, and its
// length. A zero length means there is none.
func historyEvent(s string) (string, int) {
	if s == "" {
		return "", 0
	}
	switch c := s[0]; {
	case c == '!':
		return "!", 1
	case c == ' ', c == '\t', c == '\n', c == '=', c == '(':
		return "", 0
	}
	end := strings.IndexAny(s, " \t\n;&|<>()'\\")
	if end < 0 {
		end = len(s)
	}
	return s[:end], end
}

func findEvent(event string, lines []string) (string, error) {
	notFound := fmt.Errorf("!%s: event not found", event)
	if event == "!" {
		if len(lines) == 0 {
			return "", notFound
		}
		return lines[len(lines)-1], nil
	}
	if n, err := strconv.Atoi(event); err == nil {
		if n < 0 {
			n += len(lines)
		}
		if n < 0 || n >= len(lines) {
			return "", notFound
		}
		return lines[n], nil
	}
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.HasPrefix(lines[i], event) {
			return lines[i], nil
		}
	}
	return "", notFound
}
