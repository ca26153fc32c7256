// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package location defines the byte-range primitives used across the remap
// pipeline: a FileLocation is a half-open span of source bytes, and a
// FieldReference/MethodReference pairs one such span with the symbol that
// occupies it.
package location

import (
	"fmt"
	"sort"
)

// FileLocation is a half-open byte interval [Start, End) within a single
// source file.
type FileLocation struct {
	Start int
	End   int
}

// New builds a FileLocation, panicking if the interval is not well formed.
// Callers that parse untrusted input should validate with Valid first.
func New(start, end int) FileLocation {
	loc := FileLocation{Start: start, End: end}
	if !loc.Valid() {
		panic(fmt.Sprintf("invalid file location %s", loc))
	}
	return loc
}

// Valid reports whether Start >= 0 and End >= Start.
func (l FileLocation) Valid() bool {
	return l.Start >= 0 && l.End >= l.Start
}

// Size returns the number of bytes the location spans.
func (l FileLocation) Size() int {
	return l.End - l.Start
}

// Overlaps reports whether l and other cover at least one common byte.
func (l FileLocation) Overlaps(other FileLocation) bool {
	return max(l.Start, other.Start) < min(l.End, other.End)
}

// Less orders locations lexicographically on (Start, End), which is the
// ordering the stream applier requires references to be sorted by.
func (l FileLocation) Less(other FileLocation) bool {
	if l.Start != other.Start {
		return l.Start < other.Start
	}
	return l.End < other.End
}

// String renders the location as "<start>:<end>".
func (l FileLocation) String() string {
	return fmt.Sprintf("%d:%d", l.Start, l.End)
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// FieldData names the declaring class and simple name of a field reference.
type FieldData struct {
	Owner string // declaring class, internal name (slash-separated)
	Name  string // field simple name
}

// FieldReference records where a field's simple name occurs in a source
// file. Location.Size() must equal len(Data.Name) in UTF-8 bytes.
type FieldReference struct {
	Location FileLocation
	Data     FieldData
}

// NewFieldReference validates the size invariant before returning a
// FieldReference.
func NewFieldReference(loc FileLocation, owner, name string) (FieldReference, error) {
	if loc.Size() != len(name) {
		return FieldReference{}, fmt.Errorf(
			"field reference %s: location size %d does not match name %q (%d bytes)",
			loc, loc.Size(), name, len(name))
	}
	return FieldReference{Location: loc, Data: FieldData{Owner: owner, Name: name}}, nil
}

// MethodData names the declaring class, simple name, and JVM descriptor of
// a method reference.
type MethodData struct {
	Owner      string // declaring class, internal name
	Name       string // method simple name
	Descriptor string // JVM method descriptor, e.g. "(I)V"
}

// MethodReference records where a method's simple name occurs in a source
// file. Location.Size() must equal len(Data.Name) in UTF-8 bytes; the
// descriptor carries no byte-span of its own.
type MethodReference struct {
	Location FileLocation
	Data     MethodData
}

// NewMethodReference validates the size invariant before returning a
// MethodReference.
func NewMethodReference(loc FileLocation, owner, name, descriptor string) (MethodReference, error) {
	if loc.Size() != len(name) {
		return MethodReference{}, fmt.Errorf(
			"method reference %s: location size %d does not match name %q (%d bytes)",
			loc, loc.Size(), name, len(name))
	}
	return MethodReference{Location: loc, Data: MethodData{Owner: owner, Name: name, Descriptor: descriptor}}, nil
}

// MemberKind distinguishes a MemberReference's underlying reference type.
type MemberKind uint8

const (
	// KindField marks a MemberReference wrapping a FieldReference.
	KindField MemberKind = iota
	// KindMethod marks a MemberReference wrapping a MethodReference.
	KindMethod
)

// MemberReference is the sum type of FieldReference and MethodReference,
// comparable by its FileLocation so field and method references can be
// merged into one sorted sequence per file.
type MemberReference struct {
	Kind   MemberKind
	Field  FieldReference
	Method MethodReference
}

// FromField wraps a FieldReference as a MemberReference.
func FromField(ref FieldReference) MemberReference {
	return MemberReference{Kind: KindField, Field: ref}
}

// FromMethod wraps a MethodReference as a MemberReference.
func FromMethod(ref MethodReference) MemberReference {
	return MemberReference{Kind: KindMethod, Method: ref}
}

// Location returns the underlying reference's FileLocation.
func (m MemberReference) Location() FileLocation {
	if m.Kind == KindField {
		return m.Field.Location
	}
	return m.Method.Location
}

// Owner returns the underlying reference's declaring class.
func (m MemberReference) Owner() string {
	if m.Kind == KindField {
		return m.Field.Data.Owner
	}
	return m.Method.Data.Owner
}

// Name returns the underlying reference's simple name.
func (m MemberReference) Name() string {
	if m.Kind == KindField {
		return m.Field.Data.Name
	}
	return m.Method.Data.Name
}

// Less orders two MemberReferences by their FileLocation.
func (m MemberReference) Less(other MemberReference) bool {
	return m.Location().Less(other.Location())
}

// SortByLocation sorts refs in place by ascending FileLocation.
func SortByLocation(refs []MemberReference) {
	sort.Slice(refs, func(i, j int) bool { return refs[i].Less(refs[j]) })
}
