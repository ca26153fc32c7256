// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package mappingfile reads and writes the binary ".srg.dat" mapping file
// format: a small header naming the body's compression, followed by a
// flat class/method/field rename table.
package mappingfile

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"sort"

	"github.com/srgtools/remap/internal/codec"
	"github.com/srgtools/remap/internal/remaperr"
	"github.com/srgtools/remap/mapping"
)

// magic is the fixed ASCII header every binary mapping file starts with,
// followed by a zero byte.
const magic = "SuperSrg binary mappings"

// formatVersion is the only version this implementation understands.
const formatVersion uint32 = 1

// Write serializes m to w using the given compression code.
func Write(w io.Writer, m *mapping.Mapping, compression codec.Code) error {
	if compression == codec.LZMA2 {
		return remaperr.New(remaperr.BinaryMappings, "lzma2 compression is reserved and unsupported")
	}
	if _, err := io.WriteString(w, magic); err != nil {
		return remaperr.Wrap(remaperr.IO, err, "writing magic header")
	}
	if _, err := w.Write([]byte{0}); err != nil {
		return remaperr.Wrap(remaperr.IO, err, "writing header terminator")
	}
	if err := binary.Write(w, binary.BigEndian, formatVersion); err != nil {
		return remaperr.Wrap(remaperr.IO, err, "writing version")
	}
	if err := codec.WriteU16String(w, string(compression)); err != nil {
		return remaperr.Wrap(remaperr.IO, err, "writing compression code")
	}

	cw, err := codec.NewWriter(compression, w)
	if err != nil {
		return remaperr.Wrap(remaperr.BinaryMappings, err, "opening compressed body writer")
	}
	if err := writeBody(cw, m); err != nil {
		return err
	}
	if err := cw.Close(); err != nil {
		return remaperr.Wrap(remaperr.IO, err, "closing compressed body writer")
	}
	return nil
}

// Read parses a binary mapping file from r into a new Mapping.
func Read(r io.Reader) (*mapping.Mapping, error) {
	br := bufio.NewReader(r)

	hdr := make([]byte, len(magic)+1)
	if _, err := io.ReadFull(br, hdr); err != nil {
		return nil, remaperr.Wrap(remaperr.BinaryMappings, err, "reading header")
	}
	if !bytes.Equal(hdr[:len(magic)], []byte(magic)) || hdr[len(magic)] != 0 {
		return nil, remaperr.New(remaperr.BinaryMappings, "bad magic header")
	}

	var version uint32
	if err := binary.Read(br, binary.BigEndian, &version); err != nil {
		return nil, remaperr.Wrap(remaperr.BinaryMappings, err, "reading version")
	}
	if version != formatVersion {
		return nil, remaperr.New(remaperr.BinaryMappings, "unsupported format version %d, want %d", version, formatVersion)
	}

	compressionStr, err := codec.ReadU16String(br)
	if err != nil {
		return nil, remaperr.Wrap(remaperr.BinaryMappings, err, "reading compression code")
	}
	compression := codec.Code(compressionStr)
	if compression == codec.LZMA2 {
		return nil, remaperr.New(remaperr.BinaryMappings, "lzma2 compression is reserved and unsupported")
	}

	cr, err := codec.NewReader(compression, br)
	if err != nil {
		return nil, remaperr.Wrap(remaperr.BinaryMappings, err, "opening compressed body reader")
	}
	return readBody(cr)
}

func writeBody(w io.Writer, m *mapping.Mapping) error {
	classes := m.Classes()
	sort.Slice(classes, func(i, j int) bool { return classes[i].OriginalName < classes[j].OriginalName })

	if err := binary.Write(w, binary.BigEndian, uint32(len(classes))); err != nil {
		return remaperr.Wrap(remaperr.IO, err, "writing classCount")
	}
	for _, cm := range classes {
		if err := codec.WriteU16String(w, cm.OriginalName); err != nil {
			return remaperr.Wrap(remaperr.IO, err, "writing class origName")
		}
		if err := codec.WriteU16String(w, cm.RemappedName); err != nil {
			return remaperr.Wrap(remaperr.IO, err, "writing class newName")
		}

		methods := cm.MethodNames()
		sort.Slice(methods, func(i, j int) bool {
			if methods[i].OldName != methods[j].OldName {
				return methods[i].OldName < methods[j].OldName
			}
			return methods[i].Descriptor < methods[j].Descriptor
		})
		if err := binary.Write(w, binary.BigEndian, uint32(len(methods))); err != nil {
			return remaperr.Wrap(remaperr.IO, err, "writing methodCount")
		}
		for _, mr := range methods {
			if err := codec.WriteU16String(w, mr.OldName); err != nil {
				return remaperr.Wrap(remaperr.IO, err, "writing method origName")
			}
			if err := codec.WriteU16String(w, mr.NewName); err != nil {
				return remaperr.Wrap(remaperr.IO, err, "writing method newName")
			}
			if err := codec.WriteU16String(w, mr.Descriptor); err != nil {
				return remaperr.Wrap(remaperr.IO, err, "writing method origDesc")
			}
			// newDesc is carried in the format but never consulted on read;
			// this writer stores the original descriptor in that slot.
			if err := codec.WriteU16String(w, mr.Descriptor); err != nil {
				return remaperr.Wrap(remaperr.IO, err, "writing method newDesc")
			}
		}

		fields := cm.FieldNames()
		names := make([]string, 0, len(fields))
		for old := range fields {
			names = append(names, old)
		}
		sort.Strings(names)
		if err := binary.Write(w, binary.BigEndian, uint32(len(names))); err != nil {
			return remaperr.Wrap(remaperr.IO, err, "writing fieldCount")
		}
		for _, old := range names {
			if err := codec.WriteU16String(w, old); err != nil {
				return remaperr.Wrap(remaperr.IO, err, "writing field origName")
			}
			if err := codec.WriteU16String(w, fields[old]); err != nil {
				return remaperr.Wrap(remaperr.IO, err, "writing field newName")
			}
		}
	}
	return nil
}

func readBody(r io.Reader) (*mapping.Mapping, error) {
	m := mapping.New()

	var classCount uint32
	if err := binary.Read(r, binary.BigEndian, &classCount); err != nil {
		return nil, remaperr.Wrap(remaperr.BinaryMappings, err, "reading classCount")
	}

	for c := uint32(0); c < classCount; c++ {
		origName, err := codec.ReadU16String(r)
		if err != nil {
			return nil, remaperr.Wrap(remaperr.BinaryMappings, err, "reading class origName")
		}
		newName, err := codec.ReadU16String(r)
		if err != nil {
			return nil, remaperr.Wrap(remaperr.BinaryMappings, err, "reading class newName")
		}
		cm := mapping.NewClassMappings(origName, newName)

		var methodCount uint32
		if err := binary.Read(r, binary.BigEndian, &methodCount); err != nil {
			return nil, remaperr.Wrap(remaperr.BinaryMappings, err, "reading methodCount")
		}
		for i := uint32(0); i < methodCount; i++ {
			mOrigName, err := codec.ReadU16String(r)
			if err != nil {
				return nil, remaperr.Wrap(remaperr.BinaryMappings, err, "reading method origName")
			}
			mNewName, err := codec.ReadU16String(r)
			if err != nil {
				return nil, remaperr.Wrap(remaperr.BinaryMappings, err, "reading method newName")
			}
			mOrigDesc, err := codec.ReadU16String(r)
			if err != nil {
				return nil, remaperr.Wrap(remaperr.BinaryMappings, err, "reading method origDesc")
			}
			if _, err := codec.ReadU16String(r); err != nil { // newDesc, ignored on read
				return nil, remaperr.Wrap(remaperr.BinaryMappings, err, "reading method newDesc")
			}
			if mNewName == "" {
				continue // empty newName means "no rename": skip the entry
			}
			cm.AddMethod(mOrigName, mOrigDesc, mNewName)
		}

		var fieldCount uint32
		if err := binary.Read(r, binary.BigEndian, &fieldCount); err != nil {
			return nil, remaperr.Wrap(remaperr.BinaryMappings, err, "reading fieldCount")
		}
		for i := uint32(0); i < fieldCount; i++ {
			fOrigName, err := codec.ReadU16String(r)
			if err != nil {
				return nil, remaperr.Wrap(remaperr.BinaryMappings, err, "reading field origName")
			}
			fNewName, err := codec.ReadU16String(r)
			if err != nil {
				return nil, remaperr.Wrap(remaperr.BinaryMappings, err, "reading field newName")
			}
			if fNewName == "" {
				continue // empty newName means "no rename": skip the entry
			}
			cm.AddField(fOrigName, fNewName)
		}

		if err := m.Put(cm); err != nil {
			return nil, remaperr.Wrap(remaperr.BinaryMappings, err, "registering class %q", origName)
		}
	}
	return m, nil
}
