// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package orchestrate runs the three worker-pool pipelines that drive the
// command-line tool: parallel jar remapping, parallel source application,
// and incremental hash-gated extraction. Every pipeline follows the same
// shape the teacher's directory walker used: a channel of jobs, a fixed
// pool of workers, and a single goroutine owning the one resource (a zip
// writer, a mutex-guarded report) that cannot be touched concurrently.
package orchestrate

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"runtime"
	"strings"
	"sync"

	"github.com/srgtools/remap/classfile"
	"github.com/srgtools/remap/internal/log"
	"github.com/srgtools/remap/internal/remaperr"
	"github.com/srgtools/remap/mapping"
)

// defaultJarQueueCapacity matches the jobs/results channel buffering used
// throughout this package.
const defaultJarQueueCapacity = 256

// JarOptions configures RemapJar, following the teacher's pe.Options
// shape: a documented default for every field, nil meaning "use them all".
type JarOptions struct {
	// Workers sets the size of the entry-processing worker pool, by
	// default (RemapJarWorkers()).
	Workers int

	// QueueCapacity sets the jobs/results channel buffer size, by default
	// (256).
	QueueCapacity int

	// Logger receives diagnostic output, by default a no-op helper.
	Logger *log.Helper
}

// jarEntryJob is one zip entry handed to a worker.
type jarEntryJob struct {
	file *zip.File
}

// jarEntryResult is what a worker hands back to the single writer: either
// the bytes to write under name, or err if the entry could not be
// processed.
type jarEntryResult struct {
	name string
	buf  *bytes.Buffer
	err  error
}

var jarBufferPool = sync.Pool{
	New: func() any { return new(bytes.Buffer) },
}

// RemapJarWorkers returns the default worker count for RemapJar: one less
// than available CPUs, reserving one core for the dedicated zip writer,
// clamped to at least 1.
func RemapJarWorkers() int {
	if n := runtime.NumCPU() - 1; n > 1 {
		return n
	}
	return 1
}

// RemapJar reads every entry of an input jar, rewrites .class entries'
// constant pools against m (renaming the entry itself to match the
// remapped class's internal name), passes every other entry through
// unchanged, and writes the result to w as a new zip archive.
func RemapJar(w io.Writer, r *zip.Reader, m *mapping.Mapping, opts *JarOptions) error {
	if opts == nil {
		opts = &JarOptions{}
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = RemapJarWorkers()
	}
	queueCapacity := opts.QueueCapacity
	if queueCapacity <= 0 {
		queueCapacity = defaultJarQueueCapacity
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Noop()
	}
	logger.Debugf("remapping %d jar entry/entries with %d worker(s)", len(r.File), workers)

	jobs := make(chan jarEntryJob, queueCapacity)
	results := make(chan jarEntryResult, queueCapacity)

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for job := range jobs {
				results <- processJarEntry(job, m)
			}
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()
	go func() {
		defer close(jobs)
		for _, f := range r.File {
			jobs <- jarEntryJob{file: f}
		}
	}()

	zw := zip.NewWriter(w)
	var firstErr error
	for res := range results {
		if res.err != nil {
			if firstErr == nil {
				firstErr = res.err
			}
			continue
		}
		if firstErr != nil {
			// Already failing: stop doing useless writer work, but keep
			// draining results so worker goroutines don't block forever.
			jarBufferPool.Put(res.buf)
			continue
		}
		fw, err := zw.Create(res.name)
		if err != nil {
			firstErr = remaperr.Wrap(remaperr.IO, err, "creating zip entry %q", res.name)
			jarBufferPool.Put(res.buf)
			continue
		}
		if _, err := fw.Write(res.buf.Bytes()); err != nil {
			firstErr = remaperr.Wrap(remaperr.IO, err, "writing zip entry %q", res.name)
		}
		jarBufferPool.Put(res.buf)
	}
	if firstErr != nil {
		return firstErr
	}
	if err := zw.Close(); err != nil {
		return remaperr.Wrap(remaperr.IO, err, "finalizing output jar")
	}
	return nil
}

func processJarEntry(job jarEntryJob, m *mapping.Mapping) jarEntryResult {
	f := job.file
	rc, err := f.Open()
	if err != nil {
		return jarEntryResult{err: remaperr.Wrap(remaperr.IO, err, "opening jar entry %q", f.Name)}
	}
	defer rc.Close()

	buf := jarBufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	if _, err := io.Copy(buf, rc); err != nil {
		jarBufferPool.Put(buf)
		return jarEntryResult{err: remaperr.Wrap(remaperr.IO, err, "reading jar entry %q", f.Name)}
	}

	if !strings.HasSuffix(f.Name, ".class") {
		return jarEntryResult{name: f.Name, buf: buf}
	}

	newName, newData, err := remapClassEntry(buf.Bytes(), m)
	if err != nil {
		jarBufferPool.Put(buf)
		return jarEntryResult{err: fmt.Errorf("entry %q: %w", f.Name, err)}
	}
	out := jarBufferPool.Get().(*bytes.Buffer)
	out.Reset()
	out.Write(newData)
	jarBufferPool.Put(buf)
	return jarEntryResult{name: newName, buf: out}
}

// remapClassEntry decodes, remaps, and re-encodes a single .class entry,
// determining its new zip entry name from the remapped this_class name.
func remapClassEntry(data []byte, m *mapping.Mapping) (newName string, newData []byte, err error) {
	dec, err := classfile.Decode(data)
	if err != nil {
		return "", nil, err
	}

	// this_class sits immediately after the constant pool, past the
	// 2-byte access_flags field; neither is parsed by the decoder since
	// both live outside the constant pool proper.
	thisClassOffset := dec.End() + 2
	if thisClassOffset+2 > len(data) {
		return "", nil, remaperr.New(remaperr.ConstantPoolDecode, "class file truncated before this_class field")
	}
	thisClassIdx := binary.BigEndian.Uint16(data[thisClassOffset : thisClassOffset+2])
	nameIdx, err := dec.ClassNameIndex(int(thisClassIdx) - 1)
	if err != nil {
		return "", nil, err
	}
	origName, err := dec.Utf8(int(nameIdx) - 1)
	if err != nil {
		return "", nil, err
	}

	name := origName
	if cm := m.ClassMappings(origName); cm != nil && cm.HasNewName() {
		name = cm.RemappedName
	}

	out, err := classfile.Remap(dec, m)
	if err != nil {
		return "", nil, err
	}
	return name + ".class", out, nil
}
