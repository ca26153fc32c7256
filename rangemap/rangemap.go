// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package rangemap is the per-file sorted reference store: for every
// source file it tracks the field/method references discovered in it and
// a content hash, and knows how to merge and (de)serialize itself.
package rangemap

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/srgtools/remap/location"
)

// RangeMap is an immutable-after-build snapshot of every file/field/method
// reference pair plus per-file content hashes, as produced by a
// Builder and consumed by the stream applier.
type RangeMap struct {
	fieldReferences  map[string][]location.FieldReference
	methodReferences map[string][]location.MethodReference
	fileHashes       map[string][]byte

	knownFilesOnce sync.Once
	knownFiles     []string
}

var empty = &RangeMap{
	fieldReferences:  map[string][]location.FieldReference{},
	methodReferences: map[string][]location.MethodReference{},
	fileHashes:       map[string][]byte{},
}

// Empty returns the canonical empty RangeMap singleton.
func Empty() *RangeMap { return empty }

// FieldReferences returns the raw field-reference list recorded for file,
// in whatever order it was built/loaded in.
func (rm *RangeMap) FieldReferences(file string) []location.FieldReference {
	return rm.fieldReferences[file]
}

// MethodReferences returns the raw method-reference list recorded for
// file.
func (rm *RangeMap) MethodReferences(file string) []location.MethodReference {
	return rm.methodReferences[file]
}

// References returns the sum-type merge of a file's field and method
// references, in no particular order. Use SortedReferences when order
// matters (the applier requires it).
func (rm *RangeMap) References(file string) []location.MemberReference {
	fields := rm.fieldReferences[file]
	methods := rm.methodReferences[file]
	out := make([]location.MemberReference, 0, len(fields)+len(methods))
	for _, f := range fields {
		out = append(out, location.FromField(f))
	}
	for _, m := range methods {
		out = append(out, location.FromMethod(m))
	}
	return out
}

// SortedReferences returns a file's references sort-merged by FileLocation.
func (rm *RangeMap) SortedReferences(file string) []location.MemberReference {
	refs := rm.References(file)
	location.SortByLocation(refs)
	return refs
}

// Hash returns the recorded content digest for file, and whether one was
// recorded at all.
func (rm *RangeMap) Hash(file string) ([]byte, bool) {
	h, ok := rm.fileHashes[file]
	return h, ok
}

// HasHash reports whether file's recorded hash is byte-equal to expected.
func (rm *RangeMap) HasHash(file string, expected []byte) bool {
	h, ok := rm.fileHashes[file]
	if !ok {
		return false
	}
	if len(h) != len(expected) {
		return false
	}
	for i := range h {
		if h[i] != expected[i] {
			return false
		}
	}
	return true
}

// HashFile computes the SHA-256 digest used throughout this package for
// file-hash comparisons.
func HashFile(content []byte) []byte {
	sum := sha256.Sum256(content)
	return sum[:]
}

// KnownFiles returns the union of files carrying field or method
// references (hash-only files are not included). The result is computed
// once and cached, matching §4.1's "cached once" contract.
func (rm *RangeMap) KnownFiles() []string {
	rm.knownFilesOnce.Do(func() {
		seen := make(map[string]struct{}, len(rm.fieldReferences)+len(rm.methodReferences))
		for f := range rm.fieldReferences {
			seen[f] = struct{}{}
		}
		for f := range rm.methodReferences {
			seen[f] = struct{}{}
		}
		files := make([]string, 0, len(seen))
		for f := range seen {
			files = append(files, f)
		}
		sort.Strings(files)
		rm.knownFiles = files
	})
	return rm.knownFiles
}

// Update produces a new RangeMap where every file present in other
// replaces this file's field and method reference lists wholesale, and
// every fileHashes entry in other overwrites this one's. Entries unique to
// rm are carried over unchanged. This is the "fold a partial re-analysis
// back in" operation the incremental extractor relies on.
func (rm *RangeMap) Update(other *RangeMap) *RangeMap {
	out := &RangeMap{
		fieldReferences:  make(map[string][]location.FieldReference, len(rm.fieldReferences)),
		methodReferences: make(map[string][]location.MethodReference, len(rm.methodReferences)),
		fileHashes:       make(map[string][]byte, len(rm.fileHashes)),
	}
	for f, refs := range rm.fieldReferences {
		out.fieldReferences[f] = refs
	}
	for f, refs := range rm.methodReferences {
		out.methodReferences[f] = refs
	}
	for f, h := range rm.fileHashes {
		out.fileHashes[f] = h
	}

	otherFiles := make(map[string]struct{})
	for f := range other.fieldReferences {
		otherFiles[f] = struct{}{}
	}
	for f := range other.methodReferences {
		otherFiles[f] = struct{}{}
	}
	for f := range otherFiles {
		// Replace wholesale: a file with zero references in `other` still
		// needs its old list cleared, so index with the plain assignment
		// rather than append.
		out.fieldReferences[f] = other.fieldReferences[f]
		out.methodReferences[f] = other.methodReferences[f]
	}
	for f, h := range other.fileHashes {
		out.fileHashes[f] = h
	}
	return out
}

// Equal reports whether rm and other hash the same set of files with
// byte-equal hashes, and agree element-for-element on the sorted reference
// list of every known file.
func (rm *RangeMap) Equal(other *RangeMap) bool {
	if len(rm.fileHashes) != len(other.fileHashes) {
		return false
	}
	for f, h := range rm.fileHashes {
		if !other.HasHash(f, h) {
			return false
		}
	}

	knownA, knownB := rm.KnownFiles(), other.KnownFiles()
	if len(knownA) != len(knownB) {
		return false
	}
	for _, f := range knownA {
		a := rm.SortedReferences(f)
		b := other.SortedReferences(f)
		if len(a) != len(b) {
			return false
		}
		for i := range a {
			if !memberEqual(a[i], b[i]) {
				return false
			}
		}
	}
	return true
}

func memberEqual(a, b location.MemberReference) bool {
	if a.Kind != b.Kind || a.Location() != b.Location() {
		return false
	}
	switch a.Kind {
	case location.KindField:
		return a.Field.Data == b.Field.Data
	default:
		return a.Method.Data == b.Method.Data
	}
}

// validInternalName enforces the class internal name check the spec
// requires of every decoded reference: non-empty, '/'-separated, and with
// a non-empty last segment.
func validInternalName(name string) error {
	if name == "" {
		return fmt.Errorf("internal name is empty")
	}
	segments := strings.Split(name, "/")
	if segments[len(segments)-1] == "" {
		return fmt.Errorf("internal name %q has an empty last segment", name)
	}
	return nil
}
