// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package mappingfile

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/srgtools/remap/internal/codec"
	"github.com/srgtools/remap/internal/remaperr"
	"github.com/srgtools/remap/mapping"
)

func writeU32(w *bytes.Buffer, v uint32) error {
	return binary.Write(w, binary.BigEndian, v)
}

func writeU16String(w *bytes.Buffer, s string) error {
	return codec.WriteU16String(w, s)
}

func sampleMapping() *mapping.Mapping {
	m := mapping.New()

	foo := mapping.NewClassMappings("com/acme/Foo", "com/acme/Qux")
	foo.AddField("bar", "baz")
	foo.AddMethod("doWork", "(I)V", "process")
	_ = m.Put(foo)

	// A class that keeps its name but renames one method.
	unrenamed := mapping.NewClassMappings("com/acme/Helper", "")
	unrenamed.AddMethod("run", "()V", "execute")
	_ = m.Put(unrenamed)

	return m
}

func TestWriteReadRoundTrip(t *testing.T) {
	for _, compression := range []codec.Code{codec.None, codec.LZ4Frame, codec.GZip} {
		t.Run(string(compression), func(t *testing.T) {
			m := sampleMapping()
			var buf bytes.Buffer
			require.NoError(t, Write(&buf, m, compression))

			got, err := Read(&buf)
			require.NoError(t, err)

			cm := got.ClassMappings("com/acme/Foo")
			require.NotNil(t, cm)
			require.Equal(t, "com/acme/Qux", cm.RemappedName)
			if name, ok := cm.FieldName("bar"); !ok || name != "baz" {
				t.Errorf("FieldName(bar) = %q, %v, want baz, true", name, ok)
			}
			if name, ok := cm.MethodName("doWork", "(I)V"); !ok || name != "process" {
				t.Errorf("MethodName(doWork) = %q, %v, want process, true", name, ok)
			}

			helper := got.ClassMappings("com/acme/Helper")
			if helper == nil || helper.HasNewName() {
				t.Fatalf("Helper mappings = %+v, want present with no class rename", helper)
			}
			if name, ok := helper.MethodName("run", "()V"); !ok || name != "execute" {
				t.Errorf("MethodName(run) = %q, %v, want execute, true", name, ok)
			}
		})
	}
}

func TestReadRejectsBadMagic(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, sampleMapping(), codec.None); err != nil {
		t.Fatalf("Write: %v", err)
	}
	data := buf.Bytes()
	data[0] = 'X' // mistype the magic before the version field is even reached

	_, err := Read(bytes.NewReader(data))
	if !errors.Is(err, remaperr.Sentinel(remaperr.BinaryMappings)) {
		t.Fatalf("Read with bad magic: err = %v, want BinaryMappings", err)
	}
}

func TestReadRejectsWrongVersion(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, sampleMapping(), codec.None); err != nil {
		t.Fatalf("Write: %v", err)
	}
	data := buf.Bytes()
	versionOffset := len(magic) + 1
	data[versionOffset+3] = 2 // version low byte: 1 -> 2

	_, err := Read(bytes.NewReader(data))
	if !errors.Is(err, remaperr.Sentinel(remaperr.BinaryMappings)) {
		t.Fatalf("Read with wrong version: err = %v, want BinaryMappings", err)
	}
}

func TestWriteRejectsLZMA2(t *testing.T) {
	err := Write(&bytes.Buffer{}, sampleMapping(), codec.LZMA2)
	if !errors.Is(err, remaperr.Sentinel(remaperr.BinaryMappings)) {
		t.Fatalf("Write with lzma2: err = %v, want BinaryMappings", err)
	}
}

func TestReadRejectsUnknownCompressionCode(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString(magic)
	buf.WriteByte(0)
	_ = writeU32(&buf, formatVersion)
	_ = writeU16String(&buf, "bzip2")

	_, err := Read(&buf)
	if !errors.Is(err, remaperr.Sentinel(remaperr.BinaryMappings)) {
		t.Fatalf("Read with unknown compression code: err = %v, want BinaryMappings", err)
	}
}
