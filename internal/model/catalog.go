package model

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// ClassCatalog maps class ids to class names for a loaded model.
// It is read-only once constructed.
type ClassCatalog struct {
	names map[int]string
	ids   []int
}

// Class is a single catalog entry.
type Class struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// NewClassCatalog copies names into a new catalog.
func NewClassCatalog(names map[int]string) *ClassCatalog {
	c := &ClassCatalog{
		names: make(map[int]string, len(names)),
		ids:   make([]int, 0, len(names)),
	}
	for id, name := range names {
		c.names[id] = name
		c.ids = append(c.ids, id)
	}
	sort.Ints(c.ids)
	return c
}

// CatalogFromList builds a catalog where each name's index is its class id.
func CatalogFromList(names []string) *ClassCatalog {
	m := make(map[int]string, len(names))
	for i, name := range names {
		m[i] = name
	}
	return NewClassCatalog(m)
}

// ReadCatalog parses a labels file with one class name per line.
// Blank lines keep their index so ids stay aligned with the model output.
func ReadCatalog(r io.Reader) (*ClassCatalog, error) {
	var names []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		names = append(names, strings.TrimSpace(scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read labels: %w", err)
	}

	for len(names) > 0 && names[len(names)-1] == "" {
		names = names[:len(names)-1]
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("labels file is empty")
	}

	m := make(map[int]string, len(names))
	for i, name := range names {
		if name == "" {
			continue
		}
		m[i] = name
	}
	return NewClassCatalog(m), nil
}

// Name resolves a class id.
func (c *ClassCatalog) Name(id int) (string, bool) {
	name, ok := c.names[id]
	return name, ok
}

// ID resolves a class name. Matching is case-insensitive.
func (c *ClassCatalog) ID(name string) (int, bool) {
	for _, id := range c.ids {
		if strings.EqualFold(c.names[id], name) {
			return id, true
		}
	}
	return 0, false
}

// Len returns the number of classes.
func (c *ClassCatalog) Len() int {
	return len(c.ids)
}

// Classes lists the catalog in id order.
func (c *ClassCatalog) Classes() []Class {
	classes := make([]Class, 0, len(c.ids))
	for _, id := range c.ids {
		classes = append(classes, Class{ID: id, Name: c.names[id]})
	}
	return classes
}

// All returns a set selecting every class in the catalog.
func (c *ClassCatalog) All() ClassSet {
	return NewClassSet(c.ids...)
}

// Select resolves tokens (class ids or names) into a ClassSet.
// Unknown tokens are reported as an error.
func (c *ClassCatalog) Select(tokens []string) (ClassSet, error) {
	set := make(ClassSet, len(tokens))
	for _, token := range tokens {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		if id, err := strconv.Atoi(token); err == nil {
			if _, ok := c.names[id]; !ok {
				return nil, &UnknownClassIDError{ClassID: id, CatalogSize: c.Len()}
			}
			set[id] = struct{}{}
			continue
		}
		id, ok := c.ID(token)
		if !ok {
			return nil, fmt.Errorf("unknown class name %q", token)
		}
		set[id] = struct{}{}
	}
	return set, nil
}
