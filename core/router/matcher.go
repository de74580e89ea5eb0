// Package router compiles route patterns into a lookup structure and provides
// the builder that accumulates routes, middleware and nested routers.
//
// Patterns are slash-separated segments. A segment is a literal, a parameter
// (":name", one non-empty segment) or a trailing wildcard ("*name", the rest
// of the path). When several patterns match a path the most specific wins:
// more literal segments first, then no wildcard, then fewer parameters.
// Patterns of equal specificity that can match a common path under the same
// method are rejected when added.
package router

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	ErrNotFound       = errors.New("router: no route matches path")
	ErrInvalidPattern = errors.New("router: invalid pattern")
	ErrDuplicateRoute = errors.New("router: duplicate route")
	ErrAmbiguousRoute = errors.New("router: ambiguous routes")
)

// MethodNotAllowedError is returned by Find when the path matches but the
// method does not. Allowed is sorted.
type MethodNotAllowedError struct {
	Allowed []string
}

func (e *MethodNotAllowedError) Error() string {
	return "router: method not allowed, allowed: " + strings.Join(e.Allowed, ", ")
}

type nodeType uint8

const (
	static   nodeType = iota // default
	param                    // :param
	catchAll                 // *param
)

type segment struct {
	typ  nodeType
	text string // literal text, or the parameter name
}

type pattern struct {
	raw      string
	segs     []segment
	literals int
	params   int
	wildcard bool
}

func parsePattern(raw string) (*pattern, error) {
	if raw == "" || raw[0] != '/' {
		return nil, fmt.Errorf("%w %q: path must begin with '/'", ErrInvalidPattern, raw)
	}
	p := &pattern{raw: raw}
	parts := splitPath(raw)
	for i, part := range parts {
		switch {
		case part == "":
			return nil, fmt.Errorf("%w %q: empty segment", ErrInvalidPattern, raw)
		case part[0] == ':' || part[0] == '*':
			name := part[1:]
			if name == "" {
				return nil, fmt.Errorf("%w %q: wildcards must be named", ErrInvalidPattern, raw)
			}
			if strings.ContainsAny(name, ":*") {
				return nil, fmt.Errorf("%w %q: only one wildcard per path segment is allowed", ErrInvalidPattern, raw)
			}
			if part[0] == '*' {
				if i != len(parts)-1 {
					return nil, fmt.Errorf("%w %q: catch-all routes are only allowed at the end of the path", ErrInvalidPattern, raw)
				}
				p.segs = append(p.segs, segment{typ: catchAll, text: name})
				p.wildcard = true
				continue
			}
			p.segs = append(p.segs, segment{typ: param, text: name})
			p.params++
		default:
			p.segs = append(p.segs, segment{typ: static, text: part})
			p.literals++
		}
	}
	return p, nil
}

// compare orders patterns by specificity; positive means a is more specific.
func compare(a, b *pattern) int {
	if a.literals != b.literals {
		return a.literals - b.literals
	}
	if a.wildcard != b.wildcard {
		if a.wildcard {
			return -1
		}
		return 1
	}
	return b.params - a.params
}

// overlaps reports whether some concrete path matches both segment lists.
func overlaps(a, b []segment) bool {
	for {
		switch {
		case len(a) == 0 && len(b) == 0:
			return true
		case len(a) > 0 && a[0].typ == catchAll:
			return len(b) > 0
		case len(b) > 0 && b[0].typ == catchAll:
			return len(a) > 0
		case len(a) == 0 || len(b) == 0:
			return false
		case a[0].typ == static && b[0].typ == static && a[0].text != b[0].text:
			return false
		}
		a, b = a[1:], b[1:]
	}
}

// splitPath breaks a path into segments, ignoring leading and trailing slashes.
func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

type entry[V any] struct {
	method  string
	pattern *pattern
	value   V
}

func (e *entry[V]) bind(parts []string) map[string]string {
	if e.pattern.params == 0 && !e.pattern.wildcard {
		return nil
	}
	params := make(map[string]string, e.pattern.params+1)
	for i, seg := range e.pattern.segs {
		switch seg.typ {
		case param:
			params[seg.text] = parts[i]
		case catchAll:
			params[seg.text] = strings.Join(parts[i:], "/")
		}
	}
	return params
}

type node[V any] struct {
	children map[string]*node[V]
	param    *node[V]
	catchAll *node[V]
	handlers map[string][]*entry[V] // method -> entries ending here
}

func (n *node[V]) child(seg segment) *node[V] {
	switch seg.typ {
	case param:
		if n.param == nil {
			n.param = &node[V]{}
		}
		return n.param
	case catchAll:
		if n.catchAll == nil {
			n.catchAll = &node[V]{}
		}
		return n.catchAll
	}
	if n.children == nil {
		n.children = make(map[string]*node[V])
	}
	c, ok := n.children[seg.text]
	if !ok {
		c = &node[V]{}
		n.children[seg.text] = c
	}
	return c
}

// collect appends every node whose pattern matches parts[i:].
func (n *node[V]) collect(parts []string, i int, out []*node[V]) []*node[V] {
	if i == len(parts) {
		if len(n.handlers) > 0 {
			out = append(out, n)
		}
		return out
	}
	if c, ok := n.children[parts[i]]; ok {
		out = c.collect(parts, i+1, out)
	}
	if n.param != nil && parts[i] != "" {
		out = n.param.collect(parts, i+1, out)
	}
	if n.catchAll != nil && len(n.catchAll.handlers) > 0 {
		out = append(out, n.catchAll)
	}
	return out
}

// Match is the result of a successful lookup.
type Match[V any] struct {
	Value   V
	Method  string
	Pattern string
	Params  map[string]string
}

// RouteInfo describes one registered route.
type RouteInfo struct {
	Method  string
	Pattern string
}

// Matcher maps (method, path) pairs to values. Add is not safe for concurrent
// use; once all routes are added, Find may be called from many goroutines.
type Matcher[V any] struct {
	root *node[V]
	// fully literal patterns, path -> method -> entry
	static   map[string]map[string]*entry[V]
	byMethod map[string][]*entry[V]
	count    int
}

// NewMatcher creates an empty matcher.
func NewMatcher[V any]() *Matcher[V] {
	return &Matcher[V]{
		root:     &node[V]{},
		static:   make(map[string]map[string]*entry[V]),
		byMethod: make(map[string][]*entry[V]),
	}
}

// Add registers value for method and pattern.
func (m *Matcher[V]) Add(method, raw string, value V) error {
	p, err := parsePattern(raw)
	if err != nil {
		return err
	}
	for _, other := range m.byMethod[method] {
		if !overlaps(other.pattern.segs, p.segs) || compare(other.pattern, p) != 0 {
			continue
		}
		if slices.Equal(other.pattern.segs, p.segs) {
			return fmt.Errorf("%w: %s %s", ErrDuplicateRoute, method, raw)
		}
		return fmt.Errorf("%w: %s %s conflicts with %s", ErrAmbiguousRoute, method, raw, other.pattern.raw)
	}

	e := &entry[V]{method: method, pattern: p, value: value}
	n := m.root
	for _, seg := range p.segs {
		n = n.child(seg)
	}
	if n.handlers == nil {
		n.handlers = make(map[string][]*entry[V])
	}
	n.handlers[method] = append(n.handlers[method], e)

	if p.params == 0 && !p.wildcard {
		key := "/" + strings.Join(splitPath(raw), "/")
		if m.static[key] == nil {
			m.static[key] = make(map[string]*entry[V])
		}
		m.static[key][method] = e
	}
	m.byMethod[method] = append(m.byMethod[method], e)
	m.count++
	return nil
}

// Find resolves method and path. It returns ErrNotFound when no pattern
// matches the path, or a *MethodNotAllowedError listing the methods
// registered on the matching patterns. HEAD falls back to GET.
func (m *Matcher[V]) Find(method, path string) (Match[V], error) {
	parts := splitPath(path)

	if methods, ok := m.static["/"+strings.Join(parts, "/")]; ok {
		if e, ok := methods[method]; ok {
			return Match[V]{Value: e.value, Method: method, Pattern: e.pattern.raw}, nil
		}
	}

	candidates := m.root.collect(parts, 0, nil)
	if len(candidates) == 0 {
		return Match[V]{}, ErrNotFound
	}

	if best := bestFor(candidates, method); best != nil {
		return Match[V]{Value: best.value, Method: method, Pattern: best.pattern.raw, Params: best.bind(parts)}, nil
	}
	if method == "HEAD" {
		if best := bestFor(candidates, "GET"); best != nil {
			return Match[V]{Value: best.value, Method: "GET", Pattern: best.pattern.raw, Params: best.bind(parts)}, nil
		}
	}

	var allowed []string
	for _, c := range candidates {
		for meth := range c.handlers {
			if !slices.Contains(allowed, meth) {
				allowed = append(allowed, meth)
			}
		}
	}
	slices.Sort(allowed)
	return Match[V]{}, &MethodNotAllowedError{Allowed: allowed}
}

func bestFor[V any](candidates []*node[V], method string) *entry[V] {
	var best *entry[V]
	for _, c := range candidates {
		for _, e := range c.handlers[method] {
			if best == nil || compare(e.pattern, best.pattern) > 0 {
				best = e
			}
		}
	}
	return best
}

// Len returns the number of registered routes.
func (m *Matcher[V]) Len() int {
	return m.count
}

// Routes lists the registered routes sorted by pattern then method.
func (m *Matcher[V]) Routes() []RouteInfo {
	routes := make([]RouteInfo, 0, m.count)
	for method, entries := range m.byMethod {
		for _, e := range entries {
			routes = append(routes, RouteInfo{Method: method, Pattern: e.pattern.raw})
		}
	}
	slices.SortFunc(routes, func(a, b RouteInfo) int {
		if c := strings.Compare(a.Pattern, b.Pattern); c != 0 {
			return c
		}
		return strings.Compare(a.Method, b.Method)
	})
	return routes
}
