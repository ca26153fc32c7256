// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package mapping is the fast lookup structure shared by the source and
// class-file remap pipelines: a dictionary of per-class renames plus a
// memoised descriptor rewriter.
package mapping

import (
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Default target capacities for the descriptor caches, per §4.5.
const (
	defaultTypeCacheSize   = 10_000
	defaultMethodCacheSize = 100_000
)

// methodKey keys a method rename by (descriptor, old name). Go hashes the
// whole struct as one map key, so the field order has no effect on lookup.
type methodKey struct {
	descriptor string
	name       string
}

// ClassMappings carries the renames recorded for a single class.
type ClassMappings struct {
	// OriginalName is the class's internal name, '/'-separated.
	OriginalName string

	// RemappedName is the class's new internal name, or "" if the class
	// keeps its name.
	RemappedName string

	fieldNames  map[string]string    // old simple name -> new simple name
	methodNames map[methodKey]string // (descriptor, old name) -> new name
}

// NewClassMappings builds an empty ClassMappings for originalName.
func NewClassMappings(originalName, remappedName string) *ClassMappings {
	return &ClassMappings{
		OriginalName: originalName,
		RemappedName: remappedName,
		fieldNames:   make(map[string]string),
		methodNames:  make(map[methodKey]string),
	}
}

// HasNewName reports whether this class is renamed.
func (c *ClassMappings) HasNewName() bool { return c.RemappedName != "" }

// AddField records a field rename.
func (c *ClassMappings) AddField(oldName, newName string) {
	c.fieldNames[oldName] = newName
}

// AddMethod records a method rename keyed by (descriptor, old name).
func (c *ClassMappings) AddMethod(oldName, descriptor, newName string) {
	c.methodNames[methodKey{descriptor: descriptor, name: oldName}] = newName
}

// FieldName returns the new simple name for oldName, or ("", false) if the
// field is not renamed.
func (c *ClassMappings) FieldName(oldName string) (string, bool) {
	n, ok := c.fieldNames[oldName]
	return n, ok
}

// MethodName returns the new simple name for (oldName, descriptor), or
// ("", false) if the method is not renamed.
func (c *ClassMappings) MethodName(oldName, descriptor string) (string, bool) {
	n, ok := c.methodNames[methodKey{descriptor: descriptor, name: oldName}]
	return n, ok
}

// validate rejects a ClassMappings with an empty OriginalName. An empty
// RemappedName is not checked: it is the ordinary "keeps its name" state.
func (c *ClassMappings) validate() error {
	if c.OriginalName == "" {
		return fmt.Errorf("class mappings: empty original name")
	}
	return nil
}

// Mapping is the dictionary of per-class renames, plus the memoised
// descriptor rewriter every remap pipeline shares.
type Mapping struct {
	classes map[string]*ClassMappings

	descriptorTypeCache   *lru.Cache[string, descriptorResult]
	descriptorMethodCache *lru.Cache[string, descriptorResult]
}

// descriptorResult memoises either "rewritten to X" or "no change needed",
// so a cache hit never requires recomputing whether a rewrite occurred.
type descriptorResult struct {
	rewritten string
	changed   bool
}

// New builds an empty Mapping with default-sized descriptor caches.
func New() *Mapping {
	return NewWithCacheSize(defaultTypeCacheSize, defaultMethodCacheSize)
}

// NewWithCacheSize builds an empty Mapping with explicit cache capacities,
// for tests and callers with different memory budgets.
func NewWithCacheSize(typeCacheSize, methodCacheSize int) *Mapping {
	typeCache, err := lru.New[string, descriptorResult](typeCacheSize)
	if err != nil {
		panic(err) // only fails for size <= 0, which is a caller bug
	}
	methodCache, err := lru.New[string, descriptorResult](methodCacheSize)
	if err != nil {
		panic(err)
	}
	return &Mapping{
		classes:               make(map[string]*ClassMappings),
		descriptorTypeCache:   typeCache,
		descriptorMethodCache: methodCache,
	}
}

// Put registers (or replaces) a class's mappings.
func (m *Mapping) Put(c *ClassMappings) error {
	if err := c.validate(); err != nil {
		return err
	}
	m.classes[c.OriginalName] = c
	return nil
}

// ClassMappings returns the mappings for internalName, or nil if the class
// is not present in the mapping.
func (m *Mapping) ClassMappings(internalName string) *ClassMappings {
	return m.classes[internalName]
}

// Classes returns every registered ClassMappings, in no particular order.
// Callers that need a stable order (file serialization, tests) must sort
// the result themselves.
func (m *Mapping) Classes() []*ClassMappings {
	out := make([]*ClassMappings, 0, len(m.classes))
	for _, c := range m.classes {
		out = append(out, c)
	}
	return out
}

// FieldNames returns every (oldName, newName) pair recorded for this class,
// in no particular order.
func (c *ClassMappings) FieldNames() map[string]string {
	return c.fieldNames
}

// MethodNames returns every recorded method rename as (oldName, descriptor,
// newName) triples, in no particular order.
func (c *ClassMappings) MethodNames() []MethodRename {
	out := make([]MethodRename, 0, len(c.methodNames))
	for k, newName := range c.methodNames {
		out = append(out, MethodRename{OldName: k.name, Descriptor: k.descriptor, NewName: newName})
	}
	return out
}

// MethodRename is one (old name, descriptor) -> new name entry, surfaced
// for callers that need to enumerate a ClassMappings' method renames (e.g.
// the binary mapping file writer).
type MethodRename struct {
	OldName    string
	Descriptor string
	NewName    string
}

// FieldName looks up a field rename by owning class and old name.
func (m *Mapping) FieldName(owner, oldName string) (string, bool) {
	c := m.ClassMappings(owner)
	if c == nil {
		return "", false
	}
	return c.FieldName(oldName)
}

// MethodName looks up a method rename by owning class, old name, and
// descriptor.
func (m *Mapping) MethodName(owner, oldName, descriptor string) (string, bool) {
	c := m.ClassMappings(owner)
	if c == nil {
		return "", false
	}
	return c.MethodName(oldName, descriptor)
}

// RemapTypeDescriptor rewrites every class-name occurrence in a type
// descriptor (object or array form) to its mapped internal name, leaving
// primitives and array prefixes untouched. The second return value reports
// whether any rewrite actually happened, so callers can skip re-interning
// an unchanged descriptor.
func (m *Mapping) RemapTypeDescriptor(descriptor string) (string, bool) {
	if cached, ok := m.descriptorTypeCache.Get(descriptor); ok {
		return cached.rewritten, cached.changed
	}
	rewritten, changed := m.remapType(descriptor)
	m.descriptorTypeCache.Add(descriptor, descriptorResult{rewritten, changed})
	return rewritten, changed
}

// RemapMethodDescriptor rewrites every class-name occurrence inside a
// method descriptor's parameter and return types.
func (m *Mapping) RemapMethodDescriptor(descriptor string) (string, bool) {
	if cached, ok := m.descriptorMethodCache.Get(descriptor); ok {
		return cached.rewritten, cached.changed
	}
	rewritten, changed := m.remapMethod(descriptor)
	m.descriptorMethodCache.Add(descriptor, descriptorResult{rewritten, changed})
	return rewritten, changed
}

// remapType rewrites a single type descriptor, skipping any leading '['
// array markers verbatim.
func (m *Mapping) remapType(descriptor string) (string, bool) {
	i := 0
	for i < len(descriptor) && descriptor[i] == '[' {
		i++
	}
	if i >= len(descriptor) {
		return descriptor, false
	}
	if descriptor[i] != 'L' {
		// Primitive element type: nothing to rewrite.
		return descriptor, false
	}
	end := strings.IndexByte(descriptor[i:], ';')
	if end < 0 {
		// Malformed descriptor; return verbatim rather than panic. The
		// constant-pool remapper only ever calls this with descriptors
		// already validated to be well-formed UTF8 entries.
		return descriptor, false
	}
	end += i
	className := descriptor[i+1 : end]
	newName := m.renamedClass(className)
	if newName == "" {
		return descriptor, false
	}
	return descriptor[:i+1] + newName + descriptor[end:], true
}

// remapMethod rewrites a method descriptor "(params)return" by rewriting
// each parameter type and the return type independently.
func (m *Mapping) remapMethod(descriptor string) (string, bool) {
	if len(descriptor) == 0 || descriptor[0] != '(' {
		return descriptor, false
	}
	closeParen := strings.IndexByte(descriptor, ')')
	if closeParen < 0 {
		return descriptor, false
	}
	params := descriptor[1:closeParen]
	ret := descriptor[closeParen+1:]

	var out strings.Builder
	out.WriteByte('(')
	changed := false

	i := 0
	for i < len(params) {
		start := i
		for i < len(params) && params[i] == '[' {
			i++
		}
		if i >= len(params) {
			break
		}
		if params[i] == 'L' {
			end := strings.IndexByte(params[i:], ';')
			if end < 0 {
				break
			}
			i += end + 1
		} else {
			i++
		}
		field := params[start:i]
		rewritten, fieldChanged := m.remapType(field)
		out.WriteString(rewritten)
		changed = changed || fieldChanged
	}
	out.WriteByte(')')

	newRet, retChanged := m.remapType(ret)
	out.WriteString(newRet)
	changed = changed || retChanged

	if !changed {
		return descriptor, false
	}
	return out.String(), true
}

// renamedClass returns the new internal name for className, or "" if the
// class has no mappings or keeps its name.
func (m *Mapping) renamedClass(className string) string {
	c := m.ClassMappings(className)
	if c == nil || !c.HasNewName() {
		return ""
	}
	return c.RemappedName
}
