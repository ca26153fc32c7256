// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package orchestrate

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/srgtools/remap/mapping"
)

func u16be(v uint16) []byte {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return b[:]
}

// buildMinimalClassFile assembles just enough of a class file (constant
// pool declaring a self-referencing class with a named superclass, plus
// the fixed fields up through an empty interfaces table) for the
// ConstantPoolDecoder and the this_class lookup to succeed.
func buildMinimalClassFile(className, superName string) []byte {
	var pool bytes.Buffer
	pool.WriteByte(1) // UTF8 #1: className
	pool.Write(u16be(uint16(len(className))))
	pool.WriteString(className)
	pool.WriteByte(7) // Class #2: this_class -> #1
	pool.Write(u16be(1))
	pool.WriteByte(1) // UTF8 #3: superName
	pool.Write(u16be(uint16(len(superName))))
	pool.WriteString(superName)
	pool.WriteByte(7) // Class #4: super_class -> #3
	pool.Write(u16be(3))

	var buf bytes.Buffer
	var header [10]byte
	binary.BigEndian.PutUint32(header[0:4], 0xCAFEBABE)
	binary.BigEndian.PutUint16(header[4:6], 0)
	binary.BigEndian.PutUint16(header[6:8], 52)
	binary.BigEndian.PutUint16(header[8:10], 5) // count = 4 slots + 1
	buf.Write(header[:])
	buf.Write(pool.Bytes())

	buf.Write(u16be(0x0021)) // access_flags
	buf.Write(u16be(2))      // this_class = #2
	buf.Write(u16be(4))      // super_class = #4
	buf.Write(u16be(0))      // interfaces_count
	buf.Write(u16be(0))      // fields_count
	buf.Write(u16be(0))      // methods_count
	buf.Write(u16be(0))      // attributes_count
	return buf.Bytes()
}

func buildZip(t *testing.T, entries map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, data := range entries {
		fw, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip.Create(%q): %v", name, err)
		}
		if _, err := fw.Write(data); err != nil {
			t.Fatalf("write entry %q: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip.Close: %v", err)
	}
	return buf.Bytes()
}

func TestRemapJarRenamesClassEntryAndPassesThroughOthers(t *testing.T) {
	classData := buildMinimalClassFile("Foo", "java/lang/Object")
	input := buildZip(t, map[string][]byte{
		"Foo.class":        classData,
		"META-INF/NOTICE":  []byte("hello world"),
	})

	m := mapping.New()
	cm := mapping.NewClassMappings("Foo", "Qux")
	if err := m.Put(cm); err != nil {
		t.Fatalf("Put: %v", err)
	}

	r, err := zip.NewReader(bytes.NewReader(input), int64(len(input)))
	if err != nil {
		t.Fatalf("zip.NewReader: %v", err)
	}

	var out bytes.Buffer
	if err := RemapJar(&out, r, m, &JarOptions{Workers: 2}); err != nil {
		t.Fatalf("RemapJar: %v", err)
	}

	outR, err := zip.NewReader(bytes.NewReader(out.Bytes()), int64(out.Len()))
	if err != nil {
		t.Fatalf("zip.NewReader(output): %v", err)
	}

	names := make(map[string]*zip.File)
	for _, f := range outR.File {
		names[f.Name] = f
	}
	if _, ok := names["Qux.class"]; !ok {
		t.Fatalf("output jar missing Qux.class, got entries %v", namesOf(outR.File))
	}
	if _, ok := names["Foo.class"]; ok {
		t.Errorf("output jar still has Foo.class, should have been renamed")
	}
	noticeFile, ok := names["META-INF/NOTICE"]
	if !ok {
		t.Fatalf("output jar missing passthrough entry META-INF/NOTICE")
	}
	rc, err := noticeFile.Open()
	if err != nil {
		t.Fatalf("open NOTICE: %v", err)
	}
	defer rc.Close()
	var content bytes.Buffer
	content.ReadFrom(rc)
	if content.String() != "hello world" {
		t.Errorf("NOTICE content = %q, want %q", content.String(), "hello world")
	}
}

func namesOf(files []*zip.File) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Name
	}
	return out
}
