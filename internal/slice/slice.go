// Package slice provides a non-owning view over a byte buffer, with
// split/strip/match primitives. The HTTP parser and router do not use it;
// they work on strings and []byte directly.
/*
 * Copyright (c) 2026, webs3rv authors. All rights reserved.
 */
package slice

import "bytes"

// Slice is a (base, length) pair over someone else's backing array. It never
// copies; every operation returns a new Slice over the same storage. The
// caller is responsible for keeping that storage alive for as long as any
// Slice derived from it is in use.
type Slice struct {
	data []byte
}

// Of wraps b without copying.
func Of(b []byte) Slice { return Slice{data: b} }

// FromString copies s once into a new backing array; Slices derived from the
// result share that array.
func FromString(s string) Slice { return Slice{data: []byte(s)} }

func (s Slice) Bytes() []byte  { return s.data }
func (s Slice) String() string { return string(s.data) }
func (s Slice) Len() int       { return len(s.data) }
func (s Slice) IsEmpty() bool  { return len(s.data) == 0 }

// Cut drops the first n bytes, returning the remainder. Panics if n > Len().
func (s Slice) Cut(n int) Slice {
	if n > len(s.data) {
		panic("slice: cut past end")
	}
	return Slice{data: s.data[n:]}
}

// SplitStart splits at the first occurrence of sep, returning the portion
// before it (head) and advancing s past sep. ok is false if sep is absent,
// in which case head is the zero Slice and s is left unchanged.
func (s *Slice) SplitStart(sep byte) (head Slice, ok bool) {
	idx := bytes.IndexByte(s.data, sep)
	if idx < 0 {
		return Slice{}, false
	}
	head = Slice{data: s.data[:idx]}
	s.data = s.data[idx+1:]
	return head, true
}

// SplitEnd splits at the last occurrence of sep. tail receives the portion
// after the separator; s is truncated to the portion before it. ok is false
// if sep is absent.
func (s *Slice) SplitEnd(sep byte, tail *Slice) bool {
	idx := bytes.LastIndexByte(s.data, sep)
	if idx < 0 {
		return false
	}
	tail.data = s.data[idx+1:]
	s.data = s.data[:idx]
	return true
}

// StripStart removes leading occurrences of c.
func (s Slice) StripStart(c byte) Slice {
	i := 0
	for i < len(s.data) && s.data[i] == c {
		i++
	}
	return Slice{data: s.data[i:]}
}

// StripEnd removes trailing occurrences of c.
func (s Slice) StripEnd(c byte) Slice {
	i := len(s.data)
	for i > 0 && s.data[i-1] == c {
		i--
	}
	return Slice{data: s.data[:i]}
}

func (s Slice) StartsWith(prefix string) bool {
	return len(s.data) >= len(prefix) && string(s.data[:len(prefix)]) == prefix
}

func (s Slice) EndsWith(suffix string) bool {
	return len(s.data) >= len(suffix) && string(s.data[len(s.data)-len(suffix):]) == suffix
}

func (s Slice) Equals(other string) bool {
	return string(s.data) == other
}

// EqualsFold is an ASCII case-insensitive comparison, used for HTTP header
// name matching.
func (s Slice) EqualsFold(other string) bool {
	if len(s.data) != len(other) {
		return false
	}
	for i := range s.data {
		if asciiLower(s.data[i]) != asciiLower(other[i]) {
			return false
		}
	}
	return true
}

func asciiLower(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}

// Index finds the first occurrence of a byte subsequence, analogous to the
// C++ source's memmem-based search (the "efficient branch" per spec.md §9).
func Index(haystack, needle []byte) int {
	return bytes.Index(haystack, needle)
}
