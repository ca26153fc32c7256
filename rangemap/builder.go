// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package rangemap

import "github.com/srgtools/remap/location"

// Builder is the sink a Java AST analyser writes references into. The
// analyser itself is out of scope for this module; Builder only owns
// accumulating what it's handed and freezing it into an immutable
// RangeMap. Build trusts the analyser's locality guarantee — it does not
// check for overlapping references within a file.
type Builder struct {
	fieldReferences  map[string][]location.FieldReference
	methodReferences map[string][]location.MethodReference
	fileHashes       map[string][]byte
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{
		fieldReferences:  make(map[string][]location.FieldReference),
		methodReferences: make(map[string][]location.MethodReference),
		fileHashes:       make(map[string][]byte),
	}
}

// AddField records a field reference discovered in file.
func (b *Builder) AddField(file string, ref location.FieldReference) {
	b.fieldReferences[file] = append(b.fieldReferences[file], ref)
}

// AddMethod records a method reference discovered in file.
func (b *Builder) AddMethod(file string, ref location.MethodReference) {
	b.methodReferences[file] = append(b.methodReferences[file], ref)
}

// SetFileHash records file's content digest, overwriting any previous
// value for the same path.
func (b *Builder) SetFileHash(file string, hash []byte) {
	b.fileHashes[file] = hash
}

// Build freezes the accumulated references into an immutable RangeMap.
func (b *Builder) Build() *RangeMap {
	return &RangeMap{
		fieldReferences:  b.fieldReferences,
		methodReferences: b.methodReferences,
		fileHashes:       b.fileHashes,
	}
}
