// Copyright (c) 2017, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package process

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"mvdan.cc/nsh/expand"
)

func checkStat(dir, file string) (string, error) {
	if !filepath.IsAbs(file) {
		file = filepath.Join(dir, file)
	}
	info, err := os.Stat(file)
	if err != nil {
		return "", err
	}
	m := info.Mode()
	if m.IsDir() {
		return "", fmt.Errorf("is a directory")
	}
	if m&0o111 == 0 {
		return "", fmt.Errorf("permission denied")
	}
	return file, nil
}

// LookPathDir is similar to [os/exec.LookPath], with the difference that it
// uses the provided environment to fetch PATH. Relative names are resolved
// against cwd.
//
// If no error is returned, the returned path must be valid.
func LookPathDir(cwd string, env expand.Environ, file string) (string, error) {
	if strings.Contains(file, "/") {
		path, err := checkStat(cwd, file)
		if err != nil {
			return "", fmt.Errorf("%s: %v", file, err)
		}
		return path, nil
	}
	pathList := filepath.SplitList(env.Get("PATH").String())
	if len(pathList) == 0 {
		pathList = []string{""}
	}
	for _, elem := range pathList {
		var path string
		switch elem {
		case "", ".":
			// otherwise "foo" won't be "./foo"
			path = "." + string(filepath.Separator) + file
		default:
			path = filepath.Join(elem, file)
		}
		if f, err := checkStat(cwd, path); err == nil {
			return f, nil
		}
	}
	return "", fmt.Errorf("%q: executable file not found in $PATH", file)
}
