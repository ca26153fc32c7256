// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package orchestrate

import (
	"os"
	"runtime"
	"sync"

	mmap "github.com/edsrzf/mmap-go"

	"github.com/srgtools/remap/internal/log"
	"github.com/srgtools/remap/internal/remaperr"
	"github.com/srgtools/remap/rangemap"
)

// HashOptions configures HashFiles.
type HashOptions struct {
	// Workers sets the size of the hashing worker pool, by default
	// (HashWorkers()).
	Workers int

	// Logger receives diagnostic output, by default a no-op helper.
	Logger *log.Helper
}

// HashWorkers returns the default worker count for HashFiles: the
// runtime's reported CPU count, clamped to at least 2 per the concurrency
// model's hashing floor.
func HashWorkers() int {
	if n := runtime.NumCPU(); n > 2 {
		return n
	}
	return 2
}

// FileHash pairs a relative path with its freshly computed content hash.
type FileHash struct {
	RelPath string
	Hash    []byte
}

// HashFiles computes SHA-256 digests for every file named in relPaths
// (relative to root) in parallel, memory-mapping each file rather than
// reading it into a heap buffer — the same technique the teacher's parser
// uses to open large binaries without copying them.
func HashFiles(root string, relPaths []string, opts *HashOptions) ([]FileHash, error) {
	if opts == nil {
		opts = &HashOptions{}
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = HashWorkers()
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Noop()
	}
	logger.Debugf("hashing %d file(s) under %s with %d worker(s)", len(relPaths), root, workers)

	jobs := make(chan string, 256)
	results := make(chan fileHashResult, 256)

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for rel := range jobs {
				results <- hashOneFile(root, rel)
			}
		}()
	}
	go func() {
		defer close(jobs)
		for _, rel := range relPaths {
			jobs <- rel
		}
	}()
	go func() {
		wg.Wait()
		close(results)
	}()

	out := make([]FileHash, 0, len(relPaths))
	var firstErr error
	for res := range results {
		if res.err != nil {
			if firstErr == nil {
				firstErr = res.err
			}
			continue
		}
		out = append(out, FileHash{RelPath: res.relPath, Hash: res.hash})
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

type fileHashResult struct {
	relPath string
	hash    []byte
	err     error
}

func hashOneFile(root, rel string) fileHashResult {
	path := root + string(os.PathSeparator) + rel

	f, err := os.Open(path)
	if err != nil {
		return fileHashResult{err: remaperr.Wrap(remaperr.IO, err, "opening %q for hashing", rel)}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fileHashResult{err: remaperr.Wrap(remaperr.IO, err, "stat %q", rel)}
	}
	if info.Size() == 0 {
		return fileHashResult{relPath: rel, hash: rangemap.HashFile(nil)}
	}

	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return fileHashResult{err: remaperr.Wrap(remaperr.IO, err, "memory-mapping %q", rel)}
	}
	defer data.Unmap()

	return fileHashResult{relPath: rel, hash: rangemap.HashFile(data)}
}

// FilesNeedingAnalysis compares freshly computed hashes against an
// existing RangeMap, returning the subset of relPaths whose content hash
// either changed or was never recorded — the set the AST analyser must
// actually reprocess.
func FilesNeedingAnalysis(existing *rangemap.RangeMap, fresh []FileHash) []string {
	var out []string
	for _, fh := range fresh {
		if !existing.HasHash(fh.RelPath, fh.Hash) {
			out = append(out, fh.RelPath)
		}
	}
	return out
}
