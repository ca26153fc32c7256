// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package rangemap

import (
	"bytes"
	"fmt"
	"math/rand"
	"testing"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/srgtools/remap/location"
)

func mustField(start, end int, owner, name string) location.FieldReference {
	f, err := location.NewFieldReference(location.FileLocation{Start: start, End: end}, owner, name)
	if err != nil {
		panic(err)
	}
	return f
}

func mustMethod(start, end int, owner, name, descriptor string) location.MethodReference {
	m, err := location.NewMethodReference(location.FileLocation{Start: start, End: end}, owner, name, descriptor)
	if err != nil {
		panic(err)
	}
	return m
}

func buildSample() *RangeMap {
	b := NewBuilder()
	b.AddField("src/Foo.java", mustField(10, 13, "Foo", "bar"))
	b.AddMethod("src/Foo.java", mustMethod(20, 26, "Foo", "doWork", "(I)V"))
	b.AddField("src/Baz.java", mustField(0, 3, "Baz", "qux"))
	b.SetFileHash("src/Foo.java", HashFile([]byte("foo contents")))
	b.SetFileHash("src/Baz.java", HashFile([]byte("baz contents")))
	b.SetFileHash("src/NoRefs.java", HashFile([]byte("nothing here")))
	return b.Build()
}

func TestKnownFilesExcludesHashOnly(t *testing.T) {
	rm := buildSample()
	known := rm.KnownFiles()
	want := map[string]bool{"src/Foo.java": true, "src/Baz.java": true}
	if len(known) != len(want) {
		t.Fatalf("KnownFiles() = %v, want 2 entries", known)
	}
	for _, f := range known {
		if !want[f] {
			t.Errorf("unexpected known file %q", f)
		}
	}
}

func TestSortedReferencesOrder(t *testing.T) {
	rm := buildSample()
	refs := rm.SortedReferences("src/Foo.java")
	if len(refs) != 2 {
		t.Fatalf("len(refs) = %d, want 2", len(refs))
	}
	if refs[0].Location().Start != 10 || refs[1].Location().Start != 20 {
		t.Errorf("refs not sorted by start: %v, %v", refs[0].Location(), refs[1].Location())
	}
}

func TestUpdateIsRightBiasedPerFile(t *testing.T) {
	a := NewBuilder()
	a.AddField("a.java", mustField(0, 3, "A", "one"))
	a.SetFileHash("a.java", []byte{1, 2, 3})
	aMap := a.Build()

	b := NewBuilder()
	b.AddField("b.java", mustField(0, 3, "B", "two"))
	b.SetFileHash("b.java", []byte{4, 5, 6})
	bMap := b.Build()

	merged := aMap.Update(bMap)

	if got := merged.References("b.java"); len(got) != 1 || got[0].Name() != "two" {
		t.Errorf("merged references for b.java = %v, want [two]", got)
	}
	if got := merged.References("a.java"); len(got) != 1 || got[0].Name() != "one" {
		t.Errorf("merged references for a.java = %v, want [one]", got)
	}
}

func TestUpdateReplacesWholesale(t *testing.T) {
	a := NewBuilder()
	a.AddField("f.java", mustField(0, 3, "A", "old1"))
	a.AddField("f.java", mustField(4, 8, "A", "old2"))
	aMap := a.Build()

	b := NewBuilder()
	b.AddField("f.java", mustField(0, 3, "A", "new"))
	bMap := b.Build()

	merged := aMap.Update(bMap)
	got := merged.References("f.java")
	if len(got) != 1 || got[0].Name() != "new" {
		t.Errorf("merged references for f.java = %v, want exactly [new]", got)
	}
}

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 3; trial++ {
		b := NewBuilder()
		numFiles := 1 + rng.Intn(5)
		for fi := 0; fi < numFiles; fi++ {
			file := fmt.Sprintf("src/File%d.java", fi)
			numFields := rng.Intn(16)
			pos := 0
			for i := 0; i < numFields; i++ {
				name := fmt.Sprintf("f%d", i)
				pos += 2
				b.AddField(file, mustField(pos, pos+len(name), "Owner", name))
				pos += len(name) + 2
			}
			numMethods := rng.Intn(16)
			for i := 0; i < numMethods; i++ {
				name := fmt.Sprintf("m%d", i)
				pos += 2
				b.AddMethod(file, mustMethod(pos, pos+len(name), "Owner", name, "(I)V"))
				pos += len(name) + 2
			}
			b.SetFileHash(file, HashFile([]byte(file)))
		}
		rm := b.Build()

		var buf bytes.Buffer
		if err := rm.Serialize(&buf); err != nil {
			t.Fatalf("trial %d: Serialize: %v", trial, err)
		}
		got, err := Deserialize(&buf)
		if err != nil {
			t.Fatalf("trial %d: Deserialize: %v", trial, err)
		}
		if !rm.Equal(got) {
			t.Errorf("trial %d: round trip not equal", trial)
		}
	}
}

func TestDeserializeRejectsMissingKey(t *testing.T) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	// Only two of the three required top-level keys.
	if err := enc.EncodeMapLen(2); err != nil {
		t.Fatal(err)
	}
	_ = enc.EncodeString(keyFieldReferences)
	_ = enc.EncodeMapLen(0)
	_ = enc.EncodeString(keyFileHashes)
	_ = enc.EncodeMapLen(0)

	if _, err := Deserialize(&buf); err == nil {
		t.Error("expected error for missing methodReferences key, got nil")
	}
}

func TestDeserializeRejectsDuplicateTopLevelKey(t *testing.T) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	if err := enc.EncodeMapLen(3); err != nil {
		t.Fatal(err)
	}
	_ = enc.EncodeString(keyFieldReferences)
	_ = enc.EncodeMapLen(0)
	_ = enc.EncodeString(keyFieldReferences)
	_ = enc.EncodeMapLen(0)
	_ = enc.EncodeString(keyFileHashes)
	_ = enc.EncodeMapLen(0)

	if _, err := Deserialize(&buf); err == nil {
		t.Error("expected error for duplicate top-level key, got nil")
	}
}
