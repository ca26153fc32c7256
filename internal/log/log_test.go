// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package log

import (
	"bytes"
	"strings"
	"testing"
)

type recorder struct {
	calls []Level
}

func (r *recorder) Log(level Level, keyvals ...any) error {
	r.calls = append(r.calls, level)
	return nil
}

func TestFilterDropsBelowLevel(t *testing.T) {
	r := &recorder{}
	f := NewFilter(r, FilterLevel(LevelWarn))

	for _, l := range []Level{LevelDebug, LevelInfo, LevelWarn, LevelError} {
		if err := f.Log(l); err != nil {
			t.Fatalf("Log(%s): %v", l, err)
		}
	}

	if want := []Level{LevelWarn, LevelError}; !levelsEqual(r.calls, want) {
		t.Errorf("calls = %v, want %v", r.calls, want)
	}
}

func TestFilterWithNoOptionPassesEverything(t *testing.T) {
	r := &recorder{}
	f := NewFilter(r)

	_ = f.Log(LevelDebug)
	if len(r.calls) != 1 || r.calls[0] != LevelDebug {
		t.Errorf("unfiltered NewFilter dropped a LevelDebug call: %v", r.calls)
	}
}

func TestHelperFormatsMessage(t *testing.T) {
	var buf bytes.Buffer
	h := NewHelper(NewStdLogger(&buf))

	h.Infof("hello %s", "world")

	got := buf.String()
	if !strings.Contains(got, "INFO") || !strings.Contains(got, "hello world") {
		t.Errorf("Infof output = %q, want it to contain level and formatted message", got)
	}
}

func TestStdLoggerWritesKeyvals(t *testing.T) {
	var buf bytes.Buffer
	l := NewStdLogger(&buf)

	if err := l.Log(LevelError, "file", "Foo.java", "offset", 12); err != nil {
		t.Fatalf("Log: %v", err)
	}

	got := buf.String()
	for _, want := range []string{"ERROR", "file=Foo.java", "offset=12"} {
		if !strings.Contains(got, want) {
			t.Errorf("output %q missing %q", got, want)
		}
	}
}

func TestNoopDoesNotPanic(t *testing.T) {
	h := Noop()
	h.Debug("ignored")
	h.Infof("ignored %d", 1)
	h.Warn("ignored")
	h.Error("ignored")
	if err := h.Sync(); err != nil {
		// Syncing stdout/stderr-less zap cores can legitimately fail on some
		// platforms; only fail the test on an unexpected panic above.
		t.Logf("Sync returned %v (non-fatal)", err)
	}
}

func levelsEqual(got, want []Level) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
