// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package orchestrate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/srgtools/remap/location"
	"github.com/srgtools/remap/mapping"
	"github.com/srgtools/remap/rangemap"
)

func TestApplySourceRewritesKnownFilesAndCopiesOthers(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()

	fooSrc := "class Foo { int bar; }"
	if fooSrc[16:19] != "bar" {
		t.Fatalf("fixture offset drifted: %q", fooSrc[16:19])
	}
	if err := os.WriteFile(filepath.Join(src, "Foo.java"), []byte(fooSrc), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(src, "pkg"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "pkg", "Unrelated.java"), []byte("no refs here"), 0o644); err != nil {
		t.Fatal(err)
	}

	fieldRef, err := location.NewFieldReference(location.FileLocation{Start: 16, End: 19}, "Foo", "bar")
	if err != nil {
		t.Fatal(err)
	}
	b := rangemap.NewBuilder()
	b.AddField("Foo.java", fieldRef)
	rm := b.Build()

	m := mapping.New()
	cm := mapping.NewClassMappings("Foo", "")
	cm.AddField("bar", "baz")
	if err := m.Put(cm); err != nil {
		t.Fatal(err)
	}

	if err := ApplySource(src, out, rm, m, &SourceOptions{Workers: 2}); err != nil {
		t.Fatalf("ApplySource: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(out, "Foo.java"))
	if err != nil {
		t.Fatalf("reading output Foo.java: %v", err)
	}
	want := "class Foo { int baz; }"
	if string(got) != want {
		t.Errorf("Foo.java = %q, want %q", got, want)
	}

	gotOther, err := os.ReadFile(filepath.Join(out, "pkg", "Unrelated.java"))
	if err != nil {
		t.Fatalf("reading output pkg/Unrelated.java: %v", err)
	}
	if string(gotOther) != "no refs here" {
		t.Errorf("pkg/Unrelated.java = %q, want unchanged passthrough", gotOther)
	}
}
