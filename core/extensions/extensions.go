// Package extensions implements a per-request store keyed by value type.
//
// Middleware use it to hand typed values to the stages that run after them
// without agreeing on string keys:
//
//	type User struct{ ID string }
//
//	extensions.Insert(req.Extensions(), User{ID: "42"})
//	user, ok := extensions.Get[User](req.Extensions())
//
// Keys are the static type argument, so Insert[io.Reader] and Insert[*bytes.Buffer]
// occupy different slots even when the stored value is the same. An Extensions
// value belongs to a single request and is not safe for concurrent use.
package extensions

import "reflect"

// Extensions is a type-keyed map. The zero value is ready to use.
type Extensions struct {
	m map[reflect.Type]any
}

// New returns an empty store.
func New() *Extensions {
	return &Extensions{}
}

// Insert stores v under its type T and returns the value it replaced, if any.
// A nil interface value is stored like any other and reads back as nil.
func Insert[T any](e *Extensions, v T) (T, bool) {
	if e.m == nil {
		e.m = make(map[reflect.Type]any, 4)
	}
	key := reflect.TypeFor[T]()
	prev, ok := e.m[key]
	e.m[key] = v
	if !ok {
		var zero T
		return zero, false
	}
	t, _ := prev.(T)
	return t, true
}

// Get returns the value stored under type T.
func Get[T any](e *Extensions) (T, bool) {
	v, ok := e.m[reflect.TypeFor[T]()]
	if !ok {
		var zero T
		return zero, false
	}
	t, _ := v.(T)
	return t, true
}

// MustGet is like Get but panics when T is absent. Use it only for values a
// middleware earlier in the chain is guaranteed to have inserted.
func MustGet[T any](e *Extensions) T {
	v, ok := Get[T](e)
	if !ok {
		panic("extensions: no value of type " + reflect.TypeFor[T]().String())
	}
	return v
}

// Remove deletes the value stored under type T and returns it.
func Remove[T any](e *Extensions) (T, bool) {
	key := reflect.TypeFor[T]()
	v, ok := e.m[key]
	if !ok {
		var zero T
		return zero, false
	}
	delete(e.m, key)
	t, _ := v.(T)
	return t, true
}

// Contains reports whether a value of type T is stored.
func Contains[T any](e *Extensions) bool {
	_, ok := e.m[reflect.TypeFor[T]()]
	return ok
}

// Len returns the number of stored values.
func (e *Extensions) Len() int {
	return len(e.m)
}

// Clear drops every stored value.
func (e *Extensions) Clear() {
	clear(e.m)
}
