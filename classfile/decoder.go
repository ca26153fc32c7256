// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package classfile

import (
	"encoding/binary"
	"fmt"

	"github.com/srgtools/remap/internal/remaperr"
)

// Decoder is a parsed view over a class file's constant pool: tag and
// payload-offset tables, indexed 0-based even though the JVM's own
// numbering is 1-based (index i here is constant #i+1 in the file).
type Decoder struct {
	data    []byte
	tags    []Tag
	offsets []int

	version uint16
	start   int // always 0: byte offset where the class file begins
	end     int // byte offset immediately after the constant pool

	utf8Cache map[int]string
}

// Decode parses data's header and constant pool. Everything after the
// constant pool is left unexamined; Decoder.End() tells the caller where
// to resume a byte-for-byte passthrough.
func Decode(data []byte) (*Decoder, error) {
	if len(data) < 10 {
		return nil, remaperr.New(remaperr.ConstantPoolDecode, "class file shorter than fixed header (%d bytes)", len(data))
	}
	magic := binary.BigEndian.Uint32(data[0:4])
	if magic != ClassFileMagic {
		return nil, remaperr.New(remaperr.ConstantPoolDecode, "bad magic %#08x, want %#08x", magic, uint32(ClassFileMagic))
	}

	// data[4:6] is the minor version; it is carried through unexamined.
	major := binary.BigEndian.Uint16(data[6:8])
	if major > MaxSupportedMajorVersion {
		return nil, remaperr.New(remaperr.ConstantPoolDecode, "class file major version %d exceeds supported maximum %d", major, MaxSupportedMajorVersion)
	}

	count := binary.BigEndian.Uint16(data[8:10])
	if count < 1 {
		return nil, remaperr.New(remaperr.ConstantPoolDecode, "constant pool count must be >= 1, got %d", count)
	}
	size := int(count) - 1

	d := &Decoder{
		data:      data,
		tags:      make([]Tag, size),
		offsets:   make([]int, size),
		version:   major,
		start:     0,
		utf8Cache: make(map[int]string),
	}

	pos := 10
	for i := 0; i < size; i++ {
		tagByte, err := d.byteAt(pos)
		if err != nil {
			return nil, err
		}
		tag := Tag(tagByte)
		pos++
		d.tags[i] = tag
		d.offsets[i] = pos

		switch tag {
		case TagUTF8:
			length, err := d.u16At(pos)
			if err != nil {
				return nil, err
			}
			pos += 2 + int(length)
			if pos > len(data) {
				return nil, remaperr.New(remaperr.ConstantPoolDecode, "UTF8 entry at slot %d runs past end of buffer", i)
			}
		case TagLong, TagDouble:
			if pos+8 > len(data) {
				return nil, remaperr.New(remaperr.ConstantPoolDecode, "8-byte entry at slot %d runs past end of buffer", i)
			}
			pos += 8
			i++
			if i < size {
				// The next slot is reserved and unaddressable; record it
				// with the synthetic zero tag so Tag(i) reflects that.
				d.tags[i] = tagReserved
				d.offsets[i] = pos
			}
		default:
			n, ok := payloadSize(tag)
			if !ok {
				return nil, remaperr.New(remaperr.UnsupportedTag, "unknown constant pool tag %d at slot %d", tagByte, i)
			}
			if pos+n > len(data) {
				return nil, remaperr.New(remaperr.ConstantPoolDecode, "entry at slot %d runs past end of buffer", i)
			}
			pos += n
		}
	}

	d.end = pos
	return d, nil
}

func (d *Decoder) byteAt(pos int) (byte, error) {
	if pos < 0 || pos >= len(d.data) {
		return 0, remaperr.New(remaperr.ConstantPoolDecode, "read past end of buffer at offset %d", pos)
	}
	return d.data[pos], nil
}

func (d *Decoder) u16At(pos int) (uint16, error) {
	if pos < 0 || pos+2 > len(d.data) {
		return 0, remaperr.New(remaperr.ConstantPoolDecode, "read past end of buffer at offset %d", pos)
	}
	return binary.BigEndian.Uint16(d.data[pos : pos+2]), nil
}

// Size returns the number of addressable slots (size = count-1).
func (d *Decoder) Size() int { return len(d.tags) }

// Start returns the byte offset where the class file begins (always 0).
func (d *Decoder) Start() int { return d.start }

// End returns the byte offset immediately following the constant pool.
func (d *Decoder) End() int { return d.end }

// ByteSize returns End() - Start().
func (d *Decoder) ByteSize() int { return d.end - d.start }

// Version returns the class file's major version.
func (d *Decoder) Version() uint16 { return d.version }

// Data returns the full underlying buffer, for callers that need to copy
// the post-constant-pool tail.
func (d *Decoder) Data() []byte { return d.data }

// Tag returns the tag of slot i (0-based).
func (d *Decoder) Tag(i int) Tag { return d.tags[i] }

// Offset returns the byte offset where slot i's payload begins.
func (d *Decoder) Offset(i int) int { return d.offsets[i] }

// Utf8 returns the lazily-decoded, per-slot-cached string for a UTF8 slot.
// It is an Invariant error to call this on a slot whose tag is not
// TagUTF8.
func (d *Decoder) Utf8(i int) (string, error) {
	if d.tags[i] != TagUTF8 {
		return "", remaperr.New(remaperr.Invariant, "slot %d is not a UTF8 entry (tag %d)", i, d.tags[i])
	}
	if s, ok := d.utf8Cache[i]; ok {
		return s, nil
	}
	length, err := d.u16At(d.offsets[i])
	if err != nil {
		return "", err
	}
	start := d.offsets[i] + 2
	end := start + int(length)
	if end > len(d.data) {
		return "", remaperr.New(remaperr.ConstantPoolDecode, "UTF8 slot %d payload runs past end of buffer", i)
	}
	s, err := decodeModifiedUTF8(d.data[start:end])
	if err != nil {
		return "", fmt.Errorf("slot %d: %w", i, err)
	}
	d.utf8Cache[i] = s
	return s, nil
}

// Utf8Bytes returns the raw modified-UTF-8 payload bytes of a UTF8 slot,
// without decoding — used by the remapper to copy unchanged UTF8 entries
// verbatim.
func (d *Decoder) Utf8Bytes(i int) ([]byte, error) {
	if d.tags[i] != TagUTF8 {
		return nil, remaperr.New(remaperr.Invariant, "slot %d is not a UTF8 entry (tag %d)", i, d.tags[i])
	}
	length, err := d.u16At(d.offsets[i])
	if err != nil {
		return nil, err
	}
	start := d.offsets[i] + 2
	end := start + int(length)
	if end > len(d.data) {
		return nil, remaperr.New(remaperr.ConstantPoolDecode, "UTF8 slot %d payload runs past end of buffer", i)
	}
	return d.data[start:end], nil
}

// NameAndType returns the two big-endian u16 payload fields of a
// NameAndType slot packed into one u32: low 16 bits = name index, high 16
// bits = descriptor index.
func (d *Decoder) NameAndType(i int) (uint32, error) {
	if d.tags[i] != TagNameAndType {
		return 0, remaperr.New(remaperr.Invariant, "slot %d is not a NameAndType entry (tag %d)", i, d.tags[i])
	}
	nameIdx, err := d.u16At(d.offsets[i])
	if err != nil {
		return 0, err
	}
	descIdx, err := d.u16At(d.offsets[i] + 2)
	if err != nil {
		return 0, err
	}
	return uint32(nameIdx) | uint32(descIdx)<<16, nil
}

// ClassNameIndex returns the name_index field of a ClassRef slot.
func (d *Decoder) ClassNameIndex(i int) (uint16, error) {
	if d.tags[i] != TagClass {
		return 0, remaperr.New(remaperr.Invariant, "slot %d is not a Class entry (tag %d)", i, d.tags[i])
	}
	return d.u16At(d.offsets[i])
}

// RefInfo returns the class_index and name_and_type_index fields shared
// by FieldRef/MethodRef/InterfaceMethodRef slots.
func (d *Decoder) RefInfo(i int) (classIndex, nameAndTypeIndex uint16, err error) {
	switch d.tags[i] {
	case TagFieldRef, TagMethodRef, TagInterfaceMethodRef:
	default:
		return 0, 0, remaperr.New(remaperr.Invariant, "slot %d is not a ref entry (tag %d)", i, d.tags[i])
	}
	classIndex, err = d.u16At(d.offsets[i])
	if err != nil {
		return 0, 0, err
	}
	nameAndTypeIndex, err = d.u16At(d.offsets[i] + 2)
	return classIndex, nameAndTypeIndex, err
}

// MethodTypeDescriptorIndex returns the descriptor_index field of a
// MethodType slot.
func (d *Decoder) MethodTypeDescriptorIndex(i int) (uint16, error) {
	if d.tags[i] != TagMethodType {
		return 0, remaperr.New(remaperr.Invariant, "slot %d is not a MethodType entry (tag %d)", i, d.tags[i])
	}
	return d.u16At(d.offsets[i])
}

// RawPayload returns the raw bytes of a fixed-size slot's payload, for
// verbatim copying by the remapper.
func (d *Decoder) RawPayload(i int) ([]byte, error) {
	tag := d.tags[i]
	if tag == tagReserved {
		return nil, nil
	}
	n, ok := payloadSize(tag)
	if !ok {
		return nil, remaperr.New(remaperr.UnsupportedTag, "unknown constant pool tag %d at slot %d", tag, i)
	}
	off := d.offsets[i]
	if off+n > len(d.data) {
		return nil, remaperr.New(remaperr.ConstantPoolDecode, "slot %d payload runs past end of buffer", i)
	}
	return d.data[off : off+n], nil
}

// FullSlotBytes returns slot i's tag byte followed by its exact original
// payload bytes (including a UTF8 entry's two-byte length prefix), so the
// remapper can copy an unchanged entry verbatim without re-deriving its
// encoding.
func (d *Decoder) FullSlotBytes(i int) ([]byte, error) {
	tag := d.tags[i]
	off := d.offsets[i]
	var end int
	if tag == TagUTF8 {
		length, err := d.u16At(off)
		if err != nil {
			return nil, err
		}
		end = off + 2 + int(length)
	} else {
		n, ok := payloadSize(tag)
		if !ok {
			return nil, remaperr.New(remaperr.UnsupportedTag, "unknown constant pool tag %d at slot %d", tag, i)
		}
		end = off + n
	}
	if end > len(d.data) {
		return nil, remaperr.New(remaperr.ConstantPoolDecode, "slot %d payload runs past end of buffer", i)
	}
	return d.data[off-1 : end], nil
}
