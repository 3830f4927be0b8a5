// Copyright (c) 2026, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

// Package internal holds the test setup shared by the packages which run
// whole shell sessions.
package internal

import (
	"os"
	"os/exec"
	"strings"

	"github.com/fatih/color"
)

// TestMainSetup ensures a reasonably clean and consistent environment for
// tests which start real programs or run the shell end to end.
func TestMainSetup() {
	// Set the locale to computer-friendly English and UTF-8.
	// Some systems like macOS miss C.UTF8, so fall back to the US English locale.
	if out, _ := exec.Command("locale", "-a").Output(); strings.Contains(
		strings.ToLower(string(out)), "c.utf",
	) {
		os.Setenv("LANGUAGE", "C.UTF-8")
		os.Setenv("LC_ALL", "C.UTF-8")
	} else {
		os.Setenv("LANGUAGE", "en_US.UTF-8")
		os.Setenv("LC_ALL", "en_US.UTF-8")
	}

	// The user's own shell settings must not leak into the tests.
	for _, name := range []string{"HISTSIZE", "NSH_HISTFILE", "ENV"} {
		os.Unsetenv(name)
	}
	color.NoColor = true
}
