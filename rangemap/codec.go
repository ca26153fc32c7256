// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package rangemap

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/srgtools/remap/internal/codec"
	"github.com/srgtools/remap/internal/remaperr"
	"github.com/srgtools/remap/location"
)

// The binary range-map file is a three-entry MessagePack dictionary with
// these fixed keys, encoded in this order.
const (
	keyFieldReferences  = "fieldReferences"
	keyMethodReferences = "methodReferences"
	keyFileHashes       = "fileHashes"
)

// Serialize writes rm to w using the binary dictionary format of §6.1.
func (rm *RangeMap) Serialize(w io.Writer) error {
	enc := msgpack.NewEncoder(w)

	if err := enc.EncodeMapLen(3); err != nil {
		return fmt.Errorf("encode top-level map header: %w", err)
	}

	if err := encodeString(enc, keyFieldReferences); err != nil {
		return err
	}
	if err := encodeFieldReferenceMap(enc, rm.fieldReferences); err != nil {
		return err
	}

	if err := encodeString(enc, keyMethodReferences); err != nil {
		return err
	}
	if err := encodeMethodReferenceMap(enc, rm.methodReferences); err != nil {
		return err
	}

	if err := encodeString(enc, keyFileHashes); err != nil {
		return err
	}
	if err := encodeFileHashMap(enc, rm.fileHashes); err != nil {
		return err
	}

	return nil
}

func encodeString(enc *msgpack.Encoder, s string) error {
	if err := enc.EncodeString(s); err != nil {
		return fmt.Errorf("encode string %q: %w", s, err)
	}
	return nil
}

func encodeFieldReferenceMap(enc *msgpack.Encoder, m map[string][]location.FieldReference) error {
	if err := enc.EncodeMapLen(len(m)); err != nil {
		return fmt.Errorf("encode fieldReferences map header: %w", err)
	}
	for file, refs := range m {
		if err := encodeString(enc, file); err != nil {
			return err
		}
		if err := enc.EncodeArrayLen(len(refs)); err != nil {
			return fmt.Errorf("encode fieldReferences[%s] array header: %w", file, err)
		}
		for _, ref := range refs {
			blob := encodeFieldBlob(ref)
			if err := enc.EncodeBytes(blob); err != nil {
				return fmt.Errorf("encode fieldReferences[%s] blob: %w", file, err)
			}
		}
	}
	return nil
}

func encodeMethodReferenceMap(enc *msgpack.Encoder, m map[string][]location.MethodReference) error {
	if err := enc.EncodeMapLen(len(m)); err != nil {
		return fmt.Errorf("encode methodReferences map header: %w", err)
	}
	for file, refs := range m {
		if err := encodeString(enc, file); err != nil {
			return err
		}
		if err := enc.EncodeArrayLen(len(refs)); err != nil {
			return fmt.Errorf("encode methodReferences[%s] array header: %w", file, err)
		}
		for _, ref := range refs {
			blob := encodeMethodBlob(ref)
			if err := enc.EncodeBytes(blob); err != nil {
				return fmt.Errorf("encode methodReferences[%s] blob: %w", file, err)
			}
		}
	}
	return nil
}

func encodeFileHashMap(enc *msgpack.Encoder, m map[string][]byte) error {
	if err := enc.EncodeMapLen(len(m)); err != nil {
		return fmt.Errorf("encode fileHashes map header: %w", err)
	}
	for file, hash := range m {
		if err := encodeString(enc, file); err != nil {
			return err
		}
		if err := enc.EncodeBytes(hash); err != nil {
			return fmt.Errorf("encode fileHashes[%s]: %w", file, err)
		}
	}
	return nil
}

// encodeFieldBlob lays out: i32 start | i32 end | u16 n | n bytes
// "owner/name".
func encodeFieldBlob(ref location.FieldReference) []byte {
	name := ref.Data.Owner + "/" + ref.Data.Name
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, int32(ref.Location.Start))
	binary.Write(&buf, binary.BigEndian, int32(ref.Location.End))
	binary.Write(&buf, binary.BigEndian, uint16(len(name)))
	buf.WriteString(name)
	return buf.Bytes()
}

// encodeMethodBlob lays out a field blob followed by u16 d | d bytes
// descriptor.
func encodeMethodBlob(ref location.MethodReference) []byte {
	name := ref.Data.Owner + "/" + ref.Data.Name
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, int32(ref.Location.Start))
	binary.Write(&buf, binary.BigEndian, int32(ref.Location.End))
	binary.Write(&buf, binary.BigEndian, uint16(len(name)))
	buf.WriteString(name)
	binary.Write(&buf, binary.BigEndian, uint16(len(ref.Data.Descriptor)))
	buf.WriteString(ref.Data.Descriptor)
	return buf.Bytes()
}

// Deserialize reads a RangeMap previously written by Serialize.
func Deserialize(r io.Reader) (*RangeMap, error) {
	dec := msgpack.NewDecoder(r)

	n, err := dec.DecodeMapLen()
	if err != nil {
		return nil, remaperr.Wrap(remaperr.Invariant, err, "decode range map: top-level map header")
	}
	if n != 3 {
		return nil, remaperr.New(remaperr.Invariant,
			"decode range map: expected 3 top-level keys, got %d", n)
	}

	seen := make(map[string]bool, 3)
	rm := &Builder{
		fieldReferences:  make(map[string][]location.FieldReference),
		methodReferences: make(map[string][]location.MethodReference),
		fileHashes:       make(map[string][]byte),
	}

	for i := 0; i < 3; i++ {
		key, err := dec.DecodeString()
		if err != nil {
			return nil, remaperr.Wrap(remaperr.Invariant, err, "decode range map: top-level key")
		}
		if seen[key] {
			return nil, remaperr.New(remaperr.Invariant, "decode range map: duplicate key %q", key)
		}
		seen[key] = true

		switch key {
		case keyFieldReferences:
			if err := decodeFieldReferenceMap(dec, rm.fieldReferences); err != nil {
				return nil, err
			}
		case keyMethodReferences:
			if err := decodeMethodReferenceMap(dec, rm.methodReferences); err != nil {
				return nil, err
			}
		case keyFileHashes:
			if err := decodeFileHashMap(dec, rm.fileHashes); err != nil {
				return nil, err
			}
		default:
			return nil, remaperr.New(remaperr.Invariant, "decode range map: unknown top-level key %q", key)
		}
	}

	if !seen[keyFieldReferences] || !seen[keyMethodReferences] || !seen[keyFileHashes] {
		return nil, remaperr.New(remaperr.Invariant, "decode range map: missing required top-level key")
	}

	return rm.Build(), nil
}

func decodeFieldReferenceMap(dec *msgpack.Decoder, out map[string][]location.FieldReference) error {
	n, err := dec.DecodeMapLen()
	if err != nil {
		return remaperr.Wrap(remaperr.Invariant, err, "decode fieldReferences map header")
	}
	for i := 0; i < n; i++ {
		file, err := dec.DecodeString()
		if err != nil {
			return remaperr.Wrap(remaperr.Invariant, err, "decode fieldReferences file key")
		}
		if _, dup := out[file]; dup {
			return remaperr.New(remaperr.Invariant, "decode fieldReferences: duplicate file %q", file)
		}
		count, err := dec.DecodeArrayLen()
		if err != nil {
			return remaperr.Wrap(remaperr.Invariant, err, "decode fieldReferences[%s] array header", file)
		}
		refs := make([]location.FieldReference, 0, count)
		for j := 0; j < count; j++ {
			blob, err := dec.DecodeBytes()
			if err != nil {
				return remaperr.Wrap(remaperr.Invariant, err, "decode fieldReferences[%s][%d]", file, j)
			}
			ref, err := decodeFieldBlob(blob)
			if err != nil {
				return fmt.Errorf("fieldReferences[%s][%d]: %w", file, j, err)
			}
			refs = append(refs, ref)
		}
		out[file] = refs
	}
	return nil
}

func decodeMethodReferenceMap(dec *msgpack.Decoder, out map[string][]location.MethodReference) error {
	n, err := dec.DecodeMapLen()
	if err != nil {
		return remaperr.Wrap(remaperr.Invariant, err, "decode methodReferences map header")
	}
	for i := 0; i < n; i++ {
		file, err := dec.DecodeString()
		if err != nil {
			return remaperr.Wrap(remaperr.Invariant, err, "decode methodReferences file key")
		}
		if _, dup := out[file]; dup {
			return remaperr.New(remaperr.Invariant, "decode methodReferences: duplicate file %q", file)
		}
		count, err := dec.DecodeArrayLen()
		if err != nil {
			return remaperr.Wrap(remaperr.Invariant, err, "decode methodReferences[%s] array header", file)
		}
		refs := make([]location.MethodReference, 0, count)
		for j := 0; j < count; j++ {
			blob, err := dec.DecodeBytes()
			if err != nil {
				return remaperr.Wrap(remaperr.Invariant, err, "decode methodReferences[%s][%d]", file, j)
			}
			ref, err := decodeMethodBlob(blob)
			if err != nil {
				return fmt.Errorf("methodReferences[%s][%d]: %w", file, j, err)
			}
			refs = append(refs, ref)
		}
		out[file] = refs
	}
	return nil
}

func decodeFileHashMap(dec *msgpack.Decoder, out map[string][]byte) error {
	n, err := dec.DecodeMapLen()
	if err != nil {
		return remaperr.Wrap(remaperr.Invariant, err, "decode fileHashes map header")
	}
	for i := 0; i < n; i++ {
		file, err := dec.DecodeString()
		if err != nil {
			return remaperr.Wrap(remaperr.Invariant, err, "decode fileHashes file key")
		}
		if _, dup := out[file]; dup {
			return remaperr.New(remaperr.Invariant, "decode fileHashes: duplicate file %q", file)
		}
		hash, err := dec.DecodeBytes()
		if err != nil {
			return remaperr.Wrap(remaperr.Invariant, err, "decode fileHashes[%s]", file)
		}
		out[file] = hash
	}
	return nil
}

// decodeFieldBlob parses i32 start | i32 end | u16 n | n bytes "owner/name"
// and validates the owner's internal-name shape.
func decodeFieldBlob(blob []byte) (location.FieldReference, error) {
	r := bytes.NewReader(blob)
	start, end, err := readSpan(r)
	if err != nil {
		return location.FieldReference{}, err
	}
	name, err := codec.ReadU16String(r)
	if err != nil {
		return location.FieldReference{}, fmt.Errorf("read owner/name: %w", err)
	}
	owner, simple, err := splitOwnerName(name)
	if err != nil {
		return location.FieldReference{}, err
	}
	return location.NewFieldReference(location.FileLocation{Start: start, End: end}, owner, simple)
}

// decodeMethodBlob parses a field blob followed by u16 d | d bytes
// descriptor.
func decodeMethodBlob(blob []byte) (location.MethodReference, error) {
	r := bytes.NewReader(blob)
	start, end, err := readSpan(r)
	if err != nil {
		return location.MethodReference{}, err
	}
	name, err := codec.ReadU16String(r)
	if err != nil {
		return location.MethodReference{}, fmt.Errorf("read owner/name: %w", err)
	}
	owner, simple, err := splitOwnerName(name)
	if err != nil {
		return location.MethodReference{}, err
	}
	descriptor, err := codec.ReadU16String(r)
	if err != nil {
		return location.MethodReference{}, fmt.Errorf("read descriptor: %w", err)
	}
	return location.NewMethodReference(location.FileLocation{Start: start, End: end}, owner, simple, descriptor)
}

func readSpan(r *bytes.Reader) (start, end int, err error) {
	var s, e int32
	if err := binary.Read(r, binary.BigEndian, &s); err != nil {
		return 0, 0, fmt.Errorf("read start: %w", err)
	}
	if err := binary.Read(r, binary.BigEndian, &e); err != nil {
		return 0, 0, fmt.Errorf("read end: %w", err)
	}
	return int(s), int(e), nil
}

// splitOwnerName splits the blob's "owner/name" field on the last '/' and
// validates the owner looks like a well-formed internal name.
func splitOwnerName(combined string) (owner, name string, err error) {
	idx := bytes.LastIndexByte([]byte(combined), '/')
	if idx < 0 {
		return "", "", fmt.Errorf("malformed owner/name %q: no '/' separator", combined)
	}
	owner = combined[:idx]
	name = combined[idx+1:]
	if err := validInternalName(owner); err != nil {
		return "", "", fmt.Errorf("malformed owner in %q: %w", combined, err)
	}
	return owner, name, nil
}
