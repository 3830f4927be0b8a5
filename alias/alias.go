// Copyright (c) 2016, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

// Package alias holds the table of shell aliases.
//
// The lexer only ever reads from a table; builtins such as alias and unalias
// are the ones that modify it.
package alias

import "sort"

// Table maps alias names to their replacement text. The zero value is not
// ready to use; create one with [New].
type Table struct {
	values map[string]string
}

// New returns an empty alias table.
func New() *Table {
	return &Table{values: make(map[string]string)}
}

// Add sets the replacement text for name, replacing any previous value.
func (t *Table) Add(name, value string) {
	t.values[name] = value
}

// Get returns the replacement text for name, and whether it was found.
func (t *Table) Get(name string) (string, bool) {
	value, ok := t.values[name]
	return value, ok
}

func (t *Table) Contains(name string) bool {
	_, ok := t.values[name]
	return ok
}

// Remove deletes an alias. It reports whether the alias existed.
func (t *Table) Remove(name string) bool {
	if _, ok := t.values[name]; !ok {
		return false
	}
	delete(t.values, name)
	return true
}

// Alias is a single name and replacement text pair.
type Alias struct {
	Name  string
	Value string
}

// All returns every alias, sorted by name.
func (t *Table) All() []Alias {
	list := make([]Alias, 0, len(t.values))
	for name, value := range t.values {
		list = append(list, Alias{Name: name, Value: value})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}

// Len returns the number of aliases in the table.
func (t *Table) Len() int { return len(t.values) }
