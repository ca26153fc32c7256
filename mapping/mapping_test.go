// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package mapping

import "testing"

func newTestMapping() *Mapping {
	m := New()
	foo := NewClassMappings("Foo", "Qux")
	foo.AddField("bar", "baz")
	foo.AddMethod("doWork", "(I)V", "run")
	_ = m.Put(foo)

	unchanged := NewClassMappings("Unchanged", "")
	_ = m.Put(unchanged)
	return m
}

func TestFieldAndMethodLookup(t *testing.T) {
	m := newTestMapping()

	if name, ok := m.FieldName("Foo", "bar"); !ok || name != "baz" {
		t.Errorf("FieldName(Foo,bar) = %q,%v want baz,true", name, ok)
	}
	if _, ok := m.FieldName("Foo", "nope"); ok {
		t.Error("FieldName(Foo,nope) found, want miss")
	}
	if _, ok := m.FieldName("NoSuchClass", "bar"); ok {
		t.Error("FieldName on unknown class found, want miss")
	}

	if name, ok := m.MethodName("Foo", "doWork", "(I)V"); !ok || name != "run" {
		t.Errorf("MethodName = %q,%v want run,true", name, ok)
	}
	if _, ok := m.MethodName("Foo", "doWork", "(J)V"); ok {
		t.Error("MethodName matched wrong descriptor, want miss")
	}
}

func TestRemapTypeDescriptor(t *testing.T) {
	m := newTestMapping()

	tests := []struct {
		in        string
		wantOut   string
		wantChang bool
	}{
		{"LFoo;", "LQux;", true},
		{"[LFoo;", "[LQux;", true},
		{"[[I", "[[I", false},
		{"I", "I", false},
		{"LUnchanged;", "LUnchanged;", false},
		{"LSomeOther/Class;", "LSomeOther/Class;", false},
	}
	for _, tt := range tests {
		got, changed := m.RemapTypeDescriptor(tt.in)
		if got != tt.wantOut || changed != tt.wantChang {
			t.Errorf("RemapTypeDescriptor(%q) = %q,%v want %q,%v",
				tt.in, got, changed, tt.wantOut, tt.wantChang)
		}
		// Second call must hit the cache and agree with the first.
		got2, changed2 := m.RemapTypeDescriptor(tt.in)
		if got2 != got || changed2 != changed {
			t.Errorf("cached RemapTypeDescriptor(%q) disagreed with first call", tt.in)
		}
	}
}

func TestRemapMethodDescriptor(t *testing.T) {
	m := newTestMapping()

	tests := []struct {
		in      string
		wantOut string
		changed bool
	}{
		{"(I)V", "(I)V", false},
		{"(LFoo;I)LFoo;", "(LQux;I)LQux;", true},
		{"([LFoo;)V", "([LQux;)V", true},
		{"(IJ)V", "(IJ)V", false},
		{"()LFoo;", "()LQux;", true},
	}
	for _, tt := range tests {
		got, changed := m.RemapMethodDescriptor(tt.in)
		if got != tt.wantOut || changed != tt.changed {
			t.Errorf("RemapMethodDescriptor(%q) = %q,%v want %q,%v",
				tt.in, got, changed, tt.wantOut, tt.changed)
		}
	}
}

func TestClassesAndEnumerationAccessors(t *testing.T) {
	m := newTestMapping()

	classes := m.Classes()
	if len(classes) != 2 {
		t.Fatalf("Classes() returned %d entries, want 2", len(classes))
	}

	var foo *ClassMappings
	for _, cm := range classes {
		if cm.OriginalName == "Foo" {
			foo = cm
		}
	}
	if foo == nil {
		t.Fatal("Classes() did not include Foo")
	}

	fields := foo.FieldNames()
	if fields["bar"] != "baz" {
		t.Errorf("FieldNames()[bar] = %q, want baz", fields["bar"])
	}

	methods := foo.MethodNames()
	if len(methods) != 1 || methods[0] != (MethodRename{OldName: "doWork", Descriptor: "(I)V", NewName: "run"}) {
		t.Errorf("MethodNames() = %+v, want a single doWork/(I)V/run entry", methods)
	}
}

func TestPutRejectsEmptyOriginalName(t *testing.T) {
	m := New()
	bad := NewClassMappings("", "Whatever")
	if err := m.Put(bad); err == nil {
		t.Error("expected error for empty original name")
	}
}
