// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package classfile

import (
	"bytes"
	"encoding/binary"
)

// poolEntry is a single constant-pool slot's encoded bytes plus how many
// index slots it occupies (2 for Long/Double, which also consume the
// following reserved slot).
type poolEntry struct {
	bytes []byte
	slots int
}

func u16b(v uint16) []byte {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return b[:]
}

func utf8Entry(s string) poolEntry {
	raw := encodeModifiedUTF8(s)
	b := append([]byte{byte(TagUTF8)}, u16b(uint16(len(raw)))...)
	b = append(b, raw...)
	return poolEntry{b, 1}
}

func classEntry(nameIdx uint16) poolEntry {
	return poolEntry{append([]byte{byte(TagClass)}, u16b(nameIdx)...), 1}
}

func refEntry(tag Tag, classIdx, natIdx uint16) poolEntry {
	b := append([]byte{byte(tag)}, u16b(classIdx)...)
	b = append(b, u16b(natIdx)...)
	return poolEntry{b, 1}
}

func nameAndTypeEntry(nameIdx, descIdx uint16) poolEntry {
	b := append([]byte{byte(TagNameAndType)}, u16b(nameIdx)...)
	b = append(b, u16b(descIdx)...)
	return poolEntry{b, 1}
}

func methodTypeEntry(descIdx uint16) poolEntry {
	return poolEntry{append([]byte{byte(TagMethodType)}, u16b(descIdx)...), 1}
}

func longEntry(v int64) poolEntry {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	return poolEntry{append([]byte{byte(TagLong)}, b[:]...), 2}
}

// assembleClassFile builds a minimal class file from a sequence of
// constant-pool entries plus an arbitrary tail, mirroring the on-disk
// layout real javac output follows.
func assembleClassFile(major uint16, entries []poolEntry, tail []byte) []byte {
	var buf bytes.Buffer
	slots := 0
	for _, e := range entries {
		slots += e.slots
	}
	var header [10]byte
	binary.BigEndian.PutUint32(header[0:4], ClassFileMagic)
	binary.BigEndian.PutUint16(header[4:6], 0)
	binary.BigEndian.PutUint16(header[6:8], major)
	binary.BigEndian.PutUint16(header[8:10], uint16(slots+1))
	buf.Write(header[:])
	for _, e := range entries {
		buf.Write(e.bytes)
	}
	buf.Write(tail)
	return buf.Bytes()
}
