// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package apply streams a source file through a StreamRangeApplier,
// substituting the byte spans recorded in a RangeMap with renamed
// identifiers while leaving everything else untouched.
package apply

import (
	"bufio"
	"io"

	"github.com/srgtools/remap/internal/log"
	"github.com/srgtools/remap/internal/remaperr"
	"github.com/srgtools/remap/location"
	"github.com/srgtools/remap/mapping"
)

// defaultBufSize matches the teacher's dump buffer sizing: large enough
// that most files copy in one shot, small enough not to bloat memory for
// many concurrent workers.
const defaultBufSize = 64 * 1024

// Options configures a StreamRangeApplier, mirroring the teacher's
// pe.Options: every field has a documented zero-value default, and a nil
// *Options is equivalent to &Options{}.
type Options struct {
	// BufSize sets the input/output copy buffer size, by default
	// (defaultBufSize).
	BufSize int

	// Logger receives diagnostic output, by default a no-op helper.
	Logger *log.Helper
}

// StreamRangeApplier rewrites one file's recorded references against in,
// writing the result to out. refs must already be sorted by FileLocation
// (location.SortByLocation); the applier does not sort them itself since
// callers virtually always already have them sorted from RangeMap.
type StreamRangeApplier struct {
	Mapping *mapping.Mapping
	BufSize int
	logger  *log.Helper
}

// NewStreamRangeApplier builds an applier backed by m. A nil opts uses the
// default buffer size and a no-op logger.
func NewStreamRangeApplier(m *mapping.Mapping, opts *Options) *StreamRangeApplier {
	if opts == nil {
		opts = &Options{}
	}
	bufSize := opts.BufSize
	if bufSize <= 0 {
		bufSize = defaultBufSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Noop()
	}
	return &StreamRangeApplier{Mapping: m, BufSize: bufSize, logger: logger}
}

// Apply walks refs in ascending order, copying in to out verbatim outside
// recorded spans and substituting renamed identifiers inside them.
func (a *StreamRangeApplier) Apply(out io.Writer, in io.Reader, refs []location.MemberReference) error {
	bufSize := a.BufSize
	if bufSize <= 0 {
		bufSize = defaultBufSize
	}
	r := bufio.NewReaderSize(in, bufSize)
	w := bufio.NewWriterSize(out, bufSize)

	a.logger.Debugf("applying %d recorded reference(s)", len(refs))

	pos := 0
	var prev location.FileLocation
	for i := range refs {
		ref := refs[i]
		loc := ref.Location()

		if pos > loc.Start {
			return remaperr.New(remaperr.OverlappingReferences,
				"reference at %s overlaps prior reference %s", loc, prev)
		}

		if err := copyVerbatim(w, r, loc.Start-pos); err != nil {
			return err
		}
		pos = loc.Start

		nameBytes := make([]byte, loc.Size())
		if _, err := io.ReadFull(r, nameBytes); err != nil {
			return remaperr.Wrap(remaperr.UnexpectedEOF, err,
				"reading %d bytes for reference at %s", loc.Size(), loc)
		}
		oldName := string(nameBytes)
		if oldName != ref.Name() {
			return remaperr.New(remaperr.IdentifierMismatch,
				"reference at %s: source bytes %q do not match recorded name %q", loc, oldName, ref.Name())
		}

		newName := a.resolveName(ref)
		if _, err := w.WriteString(newName); err != nil {
			return remaperr.Wrap(remaperr.IO, err, "writing renamed identifier for reference at %s", loc)
		}
		pos += loc.Size()
		prev = loc
	}

	if _, err := io.Copy(w, r); err != nil {
		return remaperr.Wrap(remaperr.IO, err, "copying remainder after last reference")
	}
	return w.Flush()
}

// resolveName looks up a reference's new name, falling back to the
// original name when no rename is recorded for it.
func (a *StreamRangeApplier) resolveName(ref location.MemberReference) string {
	switch ref.Kind {
	case location.KindField:
		if n, ok := a.Mapping.FieldName(ref.Field.Data.Owner, ref.Field.Data.Name); ok {
			return n
		}
		return ref.Field.Data.Name
	default:
		if n, ok := a.Mapping.MethodName(ref.Method.Data.Owner, ref.Method.Data.Name, ref.Method.Data.Descriptor); ok {
			return n
		}
		return ref.Method.Data.Name
	}
}

// copyVerbatim copies exactly n bytes from r to w, surfacing a short read
// as UnexpectedEOF.
func copyVerbatim(w io.Writer, r io.Reader, n int) error {
	if n <= 0 {
		return nil
	}
	if _, err := io.CopyN(w, r, int64(n)); err != nil {
		return remaperr.Wrap(remaperr.UnexpectedEOF, err, "copying %d verbatim bytes before next reference", n)
	}
	return nil
}
