// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package classfile parses and rewrites the constant pool of a JVM class
// file: ConstantPoolDecoder turns the raw bytes into tag/offset tables,
// and ConstantPoolRemapper re-emits them with classes/fields/methods
// renamed per a mapping, appending new UTF8/NameAndType entries rather
// than mutating existing ones in place.
package classfile

// Tag identifies a constant-pool entry's kind.
type Tag byte

// Constant pool tag numbers, JVMS §4.4.
const (
	TagUTF8               Tag = 1
	TagInteger            Tag = 3
	TagFloat              Tag = 4
	TagLong               Tag = 5
	TagDouble             Tag = 6
	TagClass              Tag = 7
	TagString             Tag = 8
	TagFieldRef           Tag = 9
	TagMethodRef          Tag = 10
	TagInterfaceMethodRef Tag = 11
	TagNameAndType        Tag = 12
	TagMethodHandle       Tag = 15
	TagMethodType         Tag = 16
	TagInvokeDynamic      Tag = 18

	// tagReserved marks the slot immediately following a Long or Double
	// entry, which the JVM spec says is unusable. It is not a real file
	// tag byte; the decoder synthesizes it.
	tagReserved Tag = 0
)

// ClassFileMagic is the 4-byte signature every class file must start with.
const ClassFileMagic = 0xCAFEBABE

// MaxSupportedMajorVersion is the highest class-file major version this
// decoder accepts (Java SE 8). See §9 Open Question (b): whether newer
// major versions should be accepted read-only is unresolved upstream, so
// this implementation keeps the conservative historical cutoff.
const MaxSupportedMajorVersion = 52

// payloadSize returns the number of payload bytes following the tag byte
// for fixed-size tags. UTF8 has a variable size computed separately from
// its own length prefix; tagReserved has no payload of its own to skip.
func payloadSize(tag Tag) (size int, ok bool) {
	switch tag {
	case TagClass, TagString, TagMethodType:
		return 2, true
	case TagInteger, TagFloat, TagFieldRef, TagMethodRef, TagInterfaceMethodRef,
		TagNameAndType, TagInvokeDynamic:
		return 4, true
	case TagLong, TagDouble:
		return 8, true
	case TagMethodHandle:
		return 3, true
	default:
		return 0, false
	}
}
