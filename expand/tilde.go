// Copyright (c) 2018, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package expand

import (
	"os/user"
	"strings"
)

// lookupUser and currentUser are swapped in tests.
var (
	lookupUser  = user.Lookup
	currentUser = user.Current
)

// Tilde performs tilde expansion on a word which has already had its quotes
// removed. A leading "~" or "~/" is replaced by $HOME, falling back to the
// current user's home directory; "~name" is replaced by that user's home
// directory. The second result is false if the word was left unchanged.
func Tilde(env Environ, word string) (string, bool) {
	if len(word) == 0 || word[0] != '~' {
		return word, false
	}
	name := word[1:]
	rest := ""
	if i := strings.IndexByte(name, '/'); i >= 0 {
		rest = name[i:]
		name = name[:i]
	}
	var home string
	if name == "" {
		if env != nil {
			home = env.Get("HOME").String()
		}
		if home == "" {
			u, err := currentUser()
			if err != nil {
				return word, false
			}
			home = u.HomeDir
		}
	} else {
		u, err := lookupUser(name)
		if err != nil {
			return word, false
		}
		home = u.HomeDir
	}
	if home == "" {
		return word, false
	}
	if rest == "" || strings.HasSuffix(home, "/") {
		return home + strings.TrimPrefix(rest, "/"), true
	}
	return home + rest, true
}
