// Copyright (c) 2018, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package shell

import (
	"os"
	"path/filepath"
	"strings"
)

// CompleteFile completes the word before pos in line with the names of the
// files in dir, or in the directory the word names. If several names match,
// it completes as far as they share a prefix. It returns false if nothing
// could be completed.
func CompleteFile(dir, line string, pos int) (newLine string, newPos int, ok bool) {
	start := strings.LastIndexAny(line[:pos], " \t'|;&<>") + 1
	word := line[start:pos]
	wordDir, prefix := filepath.Split(word)
	lookDir := dir
	if wordDir != "" {
		lookDir = wordDir
		if !filepath.IsAbs(wordDir) {
			lookDir = filepath.Join(dir, wordDir)
		}
	}
	entries, err := os.ReadDir(lookDir)
	if err != nil {
		return "", 0, false
	}
	var matches []string
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		if strings.HasPrefix(name, ".") && !strings.HasPrefix(prefix, ".") {
			continue
		}
		if entry.IsDir() {
			name += "/"
		}
		matches = append(matches, name)
	}
	if len(matches) == 0 {
		return "", 0, false
	}
	common := matches[0]
	for _, m := range matches[1:] {
		common = commonPrefix(common, m)
	}
	if len(matches) == 1 && !strings.HasSuffix(common, "/") {
		common += " "
	}
	if common == prefix {
		return "", 0, false
	}
	insert := wordDir + common
	newLine = line[:start] + insert + line[pos:]
	return newLine, start + len(insert), true
}

func commonPrefix(a, b string) string {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return a[:i]
		}
	}
	return a[:n]
}
