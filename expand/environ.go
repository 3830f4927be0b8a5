// Copyright (c) 2018, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

// Package expand holds the environment handles used by the shell, along with
// the word expansions which depend on them.
package expand

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

// Environ is the base interface for a shell's environment, allowing it to
// fetch variables by name and to iterate over all the currently set
// variables.
type Environ interface {
	// Get retrieves a variable by its name. To check if the variable is
	// set, use Variable.IsSet.
	Get(name string) Variable

	// Each iterates over all the currently set variables, calling the
	// supplied function on each variable. Iteration is stopped if the
	// function returns false.
	//
	// Each must not be used for lookups, as the names may not be unique.
	Each(func(name string, vr Variable) bool)
}

// WriteEnviron is an extension on Environ that supports modifying and deleting
// variables.
type WriteEnviron interface {
	Environ
	// Set sets a variable by name. If !vr.IsSet(), the variable is being
	// unset; otherwise, the variable is being replaced.
	Set(name string, vr Variable) error
}

// Variable describes a shell variable, which holds a string value.
type Variable struct {
	Set bool
	Str string
}

// IsSet returns whether the variable is set. An empty variable is set, but an
// undeclared variable is not.
func (v Variable) IsSet() bool { return v.Set }

// String returns the variable's value.
func (v Variable) String() string { return v.Str }

// StringVar returns a set variable holding s.
func StringVar(s string) Variable {
	return Variable{Set: true, Str: s}
}

// ListEnviron returns an Environ with the supplied variables, in the form
// "key=value". The last value in pairs is used
// if multiple values are present.
func ListEnviron(pairs ...string) Environ {
	list := append([]string{}, pairs...)
	// stable sort so that the last duplicate stays last
	sort.SliceStable(list, func(i, j int) bool {
		return pairName(list[i]) < pairName(list[j])
	})
	last := ""
	for i := 0; i < len(list); {
		s := list[i]
		sep := strings.IndexByte(s, '=')
		if sep <= 0 {
			// invalid element; remove it
			list = append(list[:i], list[i+1:]...)
			continue
		}
		name := s[:sep]
		if last == name {
			// duplicate; the last one wins
			list = append(list[:i-1], list[i:]...)
			continue
		}
		last = name
		i++
	}
	return listEnviron(list)
}

func pairName(s string) string {
	if i := strings.IndexByte(s, '='); i >= 0 {
		return s[:i]
	}
	return s
}

// listEnviron is a sorted list of "name=value" strings.
type listEnviron []string

func (l listEnviron) Get(name string) Variable {
	prefix := name + "="
	i := sort.Search(len(l), func(i int) bool { return pairName(l[i]) >= name })
	if i < len(l) && strings.HasPrefix(l[i], prefix) {
		return StringVar(l[i][len(prefix):])
	}
	return Variable{}
}

func (l listEnviron) Each(fn func(name string, vr Variable) bool) {
	for _, pair := range l {
		i := strings.IndexByte(pair, '=')
		if i < 0 {
			// can't happen; see above
			panic("expand.listEnviron: did not expect malformed name-value pair: " + pair)
		}
		name, value := pair[:i], pair[i+1:]
		if !fn(name, StringVar(value)) {
			return
		}
	}
}

// OSEnviron returns a WriteEnviron backed by the current process's
// environment. Writes are visible to every program started afterwards.
func OSEnviron() WriteEnviron { return osEnviron{} }

type osEnviron struct{}

func (osEnviron) Get(name string) Variable {
	if value, ok := os.LookupEnv(name); ok {
		return StringVar(value)
	}
	return Variable{}
}

func (osEnviron) Set(name string, vr Variable) error {
	if !vr.IsSet() {
		return os.Unsetenv(name)
	}
	return os.Setenv(name, vr.Str)
}

func (osEnviron) Each(fn func(name string, vr Variable) bool) {
	for _, pair := range os.Environ() {
		i := strings.IndexByte(pair, '=')
		if i <= 0 {
			continue
		}
		if !fn(pair[:i], StringVar(pair[i+1:])) {
			return
		}
	}
}

// Overlay is a writable environment layered over a parent. Reads fall through
// to the parent for names the overlay never touched; unsetting a name hides
// the parent's value.
type Overlay struct {
	parent Environ
	values map[string]Variable
}

// NewOverlay returns an empty overlay over parent, which may be nil.
func NewOverlay(parent Environ) *Overlay {
	return &Overlay{parent: parent, values: make(map[string]Variable)}
}

func (o *Overlay) Get(name string) Variable {
	if vr, ok := o.values[name]; ok {
		return vr
	}
	if o.parent == nil {
		return Variable{}
	}
	return o.parent.Get(name)
}

func (o *Overlay) Set(name string, vr Variable) error {
	if name == "" || strings.ContainsAny(name, "=\x00") {
		return fmt.Errorf("invalid variable name: %q", name)
	}
	o.values[name] = vr
	return nil
}

func (o *Overlay) Each(fn func(name string, vr Variable) bool) {
	for name, vr := range o.values {
		if !vr.IsSet() {
			continue
		}
		if !fn(name, vr) {
			return
		}
	}
	if o.parent == nil {
		return
	}
	o.parent.Each(func(name string, vr Variable) bool {
		if _, ok := o.values[name]; ok {
			return true
		}
		return fn(name, vr)
	})
}

// Pairs returns the set variables of env in "name=value" form, sorted by
// name, ready to be handed to a new process.
func Pairs(env Environ) []string {
	seen := make(map[string]bool)
	var list []string
	env.Each(func(name string, vr Variable) bool {
		if seen[name] {
			return true
		}
		seen[name] = true
		if vr.IsSet() {
			list = append(list, name+"="+vr.Str)
		}
		return true
	})
	sort.Strings(list)
	return list
}
