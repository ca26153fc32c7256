// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package classfile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/srgtools/remap/internal/remaperr"
	"github.com/srgtools/remap/mapping"
)

// Remapper rewrites a decoded constant pool against a Mapping, appending
// new UTF8 and NameAndType entries rather than mutating existing slots in
// place — a NameAndType's correct rename depends on which FieldRef or
// MethodRef is using it, so reusing the original slot would require
// knowing every future use ahead of time.
type Remapper struct {
	dec *Decoder
	m   *mapping.Mapping

	classMappingsBySlot map[int]*mapping.ClassMappings

	utf8Index        map[string]int
	nameAndTypeIndex map[[2]uint16]int

	appendBuf  bytes.Buffer
	nextIndex  int
	numAppend  int
}

// NewRemapper builds a Remapper over a decoded constant pool and the
// mapping that will drive the rewrite.
func NewRemapper(dec *Decoder, m *mapping.Mapping) *Remapper {
	return &Remapper{
		dec:                 dec,
		m:                   m,
		classMappingsBySlot: make(map[int]*mapping.ClassMappings),
		utf8Index:           make(map[string]int),
		nameAndTypeIndex:    make(map[[2]uint16]int),
		nextIndex:           dec.Size() + 1,
	}
}

// idxToSlot converts a 1-based class-file constant index to this package's
// 0-based slot index.
func idxToSlot(index uint16) int { return int(index) - 1 }

// RemapPool emits the rewritten constant pool (header through appended
// entries) to w, returning the number of newly appended entries.
func (rp *Remapper) RemapPool(w io.Writer) (appended int, err error) {
	var header [10]byte
	binary.BigEndian.PutUint32(header[0:4], ClassFileMagic)
	binary.BigEndian.PutUint16(header[4:6], 0) // minor version
	binary.BigEndian.PutUint16(header[6:8], rp.dec.Version())
	// header[8:10] (count) is patched once appends are known.

	var body bytes.Buffer
	size := rp.dec.Size()
	for i := 0; i < size; i++ {
		tag := rp.dec.Tag(i)
		if tag == tagReserved {
			continue
		}
		if err := rp.emitSlot(&body, i, tag); err != nil {
			return 0, fmt.Errorf("slot %d: %w", i, err)
		}
		if tag == TagLong || tag == TagDouble {
			i++ // skip the reserved companion slot
		}
	}

	binary.BigEndian.PutUint16(header[8:10], uint16(rp.dec.Size()+1+rp.numAppend))

	if _, err := w.Write(header[:]); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}
	if _, err := w.Write(body.Bytes()); err != nil {
		return 0, fmt.Errorf("write constant pool body: %w", err)
	}
	if _, err := w.Write(rp.appendBuf.Bytes()); err != nil {
		return 0, fmt.Errorf("write appended entries: %w", err)
	}
	return rp.numAppend, nil
}

// Remap is the convenience entry point: it rewrites the constant pool and
// then copies the original file's post-constant-pool bytes unchanged,
// returning a complete rewritten class file.
func Remap(dec *Decoder, m *mapping.Mapping) ([]byte, error) {
	rp := NewRemapper(dec, m)
	var out bytes.Buffer
	if _, err := rp.RemapPool(&out); err != nil {
		return nil, err
	}
	out.Write(dec.Data()[dec.End():])
	return out.Bytes(), nil
}

func (rp *Remapper) emitSlot(body *bytes.Buffer, i int, tag Tag) error {
	switch tag {
	case TagFieldRef:
		return rp.emitRef(body, i, tag, rp.remapFieldNameAndType)
	case TagMethodRef, TagInterfaceMethodRef:
		return rp.emitRef(body, i, tag, rp.remapMethodNameAndType)
	case TagMethodType:
		return rp.emitMethodType(body, i)
	case TagClass:
		return rp.emitClass(body, i)
	default:
		return rp.copyVerbatim(body, i)
	}
}

// emitRef handles FieldRef/MethodRef/InterfaceMethodRef: the class_index
// never changes (the ClassRef slot it points to may be rewritten
// independently, but its index number stays put); only the NameAndType it
// points at is ever replaced.
func (rp *Remapper) emitRef(body *bytes.Buffer, i int, tag Tag,
	resolve func(cm *mapping.ClassMappings, oldName, oldDesc string) (newName, newDesc string, changed bool)) error {

	classIdx, natIdx, err := rp.dec.RefInfo(i)
	if err != nil {
		return err
	}
	classSlot := idxToSlot(classIdx)
	cm, err := rp.classMappingsForSlot(classSlot)
	if err != nil {
		return err
	}
	if cm == nil {
		return rp.copyVerbatim(body, i)
	}

	natSlot := idxToSlot(natIdx)
	packed, err := rp.dec.NameAndType(natSlot)
	if err != nil {
		return err
	}
	nameIdx, descIdx := uint16(packed), uint16(packed>>16)

	oldName, err := rp.dec.Utf8(idxToSlot(nameIdx))
	if err != nil {
		return err
	}
	oldDesc, err := rp.dec.Utf8(idxToSlot(descIdx))
	if err != nil {
		return err
	}

	newName, newDesc, changed := resolve(cm, oldName, oldDesc)
	if !changed {
		return rp.copyVerbatim(body, i)
	}

	newNameIdx := nameIdx
	if newName != oldName {
		newNameIdx = uint16(rp.internUTF8(newName))
	}
	newDescIdx := descIdx
	if newDesc != oldDesc {
		newDescIdx = uint16(rp.internUTF8(newDesc))
	}
	newNatIdx := uint16(rp.internNameAndType(newNameIdx, newDescIdx))

	body.WriteByte(byte(tag))
	writeU16(body, classIdx)
	writeU16(body, newNatIdx)
	return nil
}

func (rp *Remapper) remapFieldNameAndType(cm *mapping.ClassMappings, oldName, oldDesc string) (string, string, bool) {
	newName := oldName
	renamed := false
	if n, ok := cm.FieldName(oldName); ok {
		newName = n
		renamed = true
	}
	newDesc, descChanged := rp.m.RemapTypeDescriptor(oldDesc)
	return newName, newDesc, renamed || descChanged
}

func (rp *Remapper) remapMethodNameAndType(cm *mapping.ClassMappings, oldName, oldDesc string) (string, string, bool) {
	newName := oldName
	renamed := false
	if n, ok := cm.MethodName(oldName, oldDesc); ok {
		newName = n
		renamed = true
	}
	newDesc, descChanged := rp.m.RemapMethodDescriptor(oldDesc)
	return newName, newDesc, renamed || descChanged
}

func (rp *Remapper) emitMethodType(body *bytes.Buffer, i int) error {
	descIdx, err := rp.dec.MethodTypeDescriptorIndex(i)
	if err != nil {
		return err
	}
	oldDesc, err := rp.dec.Utf8(idxToSlot(descIdx))
	if err != nil {
		return err
	}
	newDesc, changed := rp.m.RemapMethodDescriptor(oldDesc)
	if !changed {
		return rp.copyVerbatim(body, i)
	}
	newIdx := uint16(rp.internUTF8(newDesc))
	body.WriteByte(byte(TagMethodType))
	writeU16(body, newIdx)
	return nil
}

func (rp *Remapper) emitClass(body *bytes.Buffer, i int) error {
	nameIdx, err := rp.dec.ClassNameIndex(i)
	if err != nil {
		return err
	}
	oldName, err := rp.dec.Utf8(idxToSlot(nameIdx))
	if err != nil {
		return err
	}
	cm := rp.m.ClassMappings(oldName)
	if cm == nil || !cm.HasNewName() {
		return rp.copyVerbatim(body, i)
	}
	if cm.RemappedName == "" {
		return remaperr.New(remaperr.InvalidMappings, "class %q has a present-but-empty remapped name", oldName)
	}
	newIdx := uint16(rp.internUTF8(cm.RemappedName))
	body.WriteByte(byte(TagClass))
	writeU16(body, newIdx)
	return nil
}

// copyVerbatim copies slot i's tag byte and original payload unchanged.
func (rp *Remapper) copyVerbatim(body *bytes.Buffer, i int) error {
	raw, err := rp.dec.FullSlotBytes(i)
	if err != nil {
		return err
	}
	body.Write(raw)
	return nil
}

// classMappingsForSlot resolves and memoises the ClassMappings for the
// class named by the ClassRef at the given slot.
func (rp *Remapper) classMappingsForSlot(slot int) (*mapping.ClassMappings, error) {
	if cm, ok := rp.classMappingsBySlot[slot]; ok {
		return cm, nil
	}
	nameIdx, err := rp.dec.ClassNameIndex(slot)
	if err != nil {
		return nil, err
	}
	name, err := rp.dec.Utf8(idxToSlot(nameIdx))
	if err != nil {
		return nil, err
	}
	cm := rp.m.ClassMappings(name)
	rp.classMappingsBySlot[slot] = cm
	return cm, nil
}

// internUTF8 appends a new UTF8 entry (or reuses a previously appended one
// with the same text) and returns its 1-based constant pool index.
func (rp *Remapper) internUTF8(s string) int {
	if idx, ok := rp.utf8Index[s]; ok {
		return idx
	}
	encoded := encodeModifiedUTF8(s)
	rp.appendBuf.WriteByte(byte(TagUTF8))
	writeU16(&rp.appendBuf, uint16(len(encoded)))
	rp.appendBuf.Write(encoded)

	idx := rp.nextIndex
	rp.nextIndex++
	rp.numAppend++
	rp.utf8Index[s] = idx
	return idx
}

// internNameAndType appends a new NameAndType entry (or reuses a
// previously appended one with the same (name, descriptor) pair) and
// returns its 1-based constant pool index.
func (rp *Remapper) internNameAndType(nameIdx, descIdx uint16) int {
	key := [2]uint16{nameIdx, descIdx}
	if idx, ok := rp.nameAndTypeIndex[key]; ok {
		return idx
	}
	rp.appendBuf.WriteByte(byte(TagNameAndType))
	writeU16(&rp.appendBuf, nameIdx)
	writeU16(&rp.appendBuf, descIdx)

	idx := rp.nextIndex
	rp.nextIndex++
	rp.numAppend++
	rp.nameAndTypeIndex[key] = idx
	return idx
}

func writeU16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}
