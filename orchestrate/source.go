// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package orchestrate

import (
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/srgtools/remap/apply"
	"github.com/srgtools/remap/internal/log"
	"github.com/srgtools/remap/internal/remaperr"
	"github.com/srgtools/remap/mapping"
	"github.com/srgtools/remap/rangemap"
)

// ApplySourceWorkers returns the default worker count for ApplySource.
func ApplySourceWorkers() int {
	if n := runtime.NumCPU(); n > 1 {
		return n
	}
	return 1
}

// SourceOptions configures ApplySource, following the same Options shape
// as JarOptions/HashOptions.
type SourceOptions struct {
	// Workers sets the size of the file-rewriting worker pool, by default
	// (ApplySourceWorkers()).
	Workers int

	// BufSize is forwarded to the underlying StreamRangeApplier, by
	// default (apply's own default).
	BufSize int

	// Logger receives diagnostic output, by default a no-op helper.
	Logger *log.Helper
}

// ApplySource recursively applies rm's recorded references to every known
// file under srcDir, writing the rewritten files to the parallel relative
// path under outDir. Files with no recorded references are copied
// unchanged. A nil opts uses every documented default.
func ApplySource(srcDir, outDir string, rm *rangemap.RangeMap, m *mapping.Mapping, opts *SourceOptions) error {
	if opts == nil {
		opts = &SourceOptions{}
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = ApplySourceWorkers()
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Noop()
	}

	files, err := listFiles(srcDir)
	if err != nil {
		return err
	}
	logger.Debugf("applying mappings to %d file(s) under %s with %d worker(s)", len(files), srcDir, workers)

	jobs := make(chan string, 256)
	var (
		mu       sync.Mutex
		firstErr error
	)
	report := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}

	applier := apply.NewStreamRangeApplier(m, &apply.Options{BufSize: opts.BufSize, Logger: logger})

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for rel := range jobs {
				if err := applyOneFile(applier, rm, srcDir, outDir, rel); err != nil {
					report(err)
				}
			}
		}()
	}
	for _, rel := range files {
		jobs <- rel
	}
	close(jobs)
	wg.Wait()

	return firstErr
}

func applyOneFile(applier *apply.StreamRangeApplier, rm *rangemap.RangeMap, srcDir, outDir, rel string) error {
	inPath := filepath.Join(srcDir, rel)
	outPath := filepath.Join(outDir, rel)

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return remaperr.Wrap(remaperr.IO, err, "creating output directory for %q", rel)
	}

	in, err := os.Open(inPath)
	if err != nil {
		return remaperr.Wrap(remaperr.IO, err, "opening %q", rel)
	}
	defer in.Close()

	out, err := os.Create(outPath)
	if err != nil {
		return remaperr.Wrap(remaperr.IO, err, "creating %q", outPath)
	}
	defer out.Close()

	refs := rm.SortedReferences(rel)
	return applier.Apply(out, in, refs)
}

// listFiles recursively lists every regular file under root, returning
// paths relative to root with forward slashes, matching the range-map's
// relpath convention.
func listFiles(root string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, remaperr.Wrap(remaperr.IO, err, "listing files under %q", root)
	}
	return out, nil
}
