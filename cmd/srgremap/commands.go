// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package main

import (
	"archive/zip"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/srgtools/remap/internal/log"
	"github.com/srgtools/remap/internal/remaperr"
	"github.com/srgtools/remap/mapping"
	"github.com/srgtools/remap/mappingfile"
	"github.com/srgtools/remap/orchestrate"
	"github.com/srgtools/remap/rangemap"
)

// newLogger builds an info-level Helper for the CLI, panicking on the one
// failure zap's production config can have (an invalid output path, never
// the case here with its defaults).
func newLogger() *log.Helper {
	h, err := log.NewProduction(log.LevelInfo)
	if err != nil {
		panic(err)
	}
	return h
}

// exactArgs wraps cobra.ExactArgs, tagging its usage error as Command-kind
// so main treats it as ordinary CLI misuse rather than an unexpected
// failure worth a stack trace.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return remaperr.Wrap(remaperr.Command, err, "%s", cmd.Use)
		}
		return nil
	}
}

func newExtractCommand() *cobra.Command {
	var classpath []string
	var cacheDir string
	var rebuild bool

	cmd := &cobra.Command{
		Use:   "extract <sourceDir> <rangeMap>",
		Short: "Hash-gate a source tree against a previously recorded range map",
		Args:  exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtract(args[0], args[1], classpath, cacheDir, rebuild)
		},
	}
	cmd.Flags().StringSliceVar(&classpath, "cp", nil, "classpath entries, accepting the OS path separator")
	cmd.Flags().StringVar(&cacheDir, "cache", "", "directory holding cached analyser state")
	cmd.Flags().BoolVar(&rebuild, "rebuild", false, "ignore recorded hashes and treat every file as changed")
	return cmd
}

func newApplyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply <srcDir> <outDir> <rangeMap> <mappings>",
		Short: "Apply a mapping's renames to every known file under srcDir",
		Args:  exactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(args[0], args[1], args[2], args[3])
		},
	}
	return cmd
}

func newRemapJarCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remap-jar <in.jar> <out.jar> <mappings>",
		Short: "Rewrite a jar's class files against a mapping",
		Args:  exactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRemapJar(args[0], args[1], args[2])
		},
	}
	return cmd
}

func runExtract(sourceDir, rangeMapPath string, classpath []string, cacheDir string, rebuild bool) error {
	helper := newLogger()
	defer helper.Sync()

	if len(classpath) > 0 {
		helper.Debugf("classpath entries: %s", strings.Join(classpath, string(os.PathListSeparator)))
	}
	if cacheDir != "" {
		helper.Debugf("analyser cache directory: %s", cacheDir)
	}

	existing := rangemap.Empty()
	if data, err := os.Open(rangeMapPath); err == nil {
		defer data.Close()
		existing, err = rangemap.Deserialize(data)
		if err != nil {
			return remaperr.Wrap(remaperr.Command, err, "reading existing range map %q", rangeMapPath)
		}
	} else if !os.IsNotExist(err) {
		return remaperr.Wrap(remaperr.Command, err, "opening existing range map %q", rangeMapPath)
	}

	relPaths, err := listJavaFiles(sourceDir)
	if err != nil {
		return remaperr.Wrap(remaperr.Command, err, "listing source files under %q", sourceDir)
	}

	hashes, err := orchestrate.HashFiles(sourceDir, relPaths, &orchestrate.HashOptions{Logger: helper})
	if err != nil {
		return remaperr.Wrap(remaperr.Command, err, "hashing source files")
	}

	var needsAnalysis []string
	if rebuild {
		needsAnalysis = relPaths
	} else {
		needsAnalysis = orchestrate.FilesNeedingAnalysis(existing, hashes)
	}

	if len(needsAnalysis) > 0 {
		helper.Warnf("%d file(s) changed since the last extraction but the AST analyser is not bundled in this tool; their recorded references were left untouched: %s",
			len(needsAnalysis), strings.Join(needsAnalysis, ", "))
	}

	b := rangemap.NewBuilder()
	for _, file := range existing.KnownFiles() {
		for _, ref := range existing.FieldReferences(file) {
			b.AddField(file, ref)
		}
		for _, ref := range existing.MethodReferences(file) {
			b.AddMethod(file, ref)
		}
	}
	for _, fh := range hashes {
		b.SetFileHash(fh.RelPath, fh.Hash)
	}
	updated := b.Build()

	out, err := os.Create(rangeMapPath)
	if err != nil {
		return remaperr.Wrap(remaperr.Command, err, "creating range map %q", rangeMapPath)
	}
	defer out.Close()
	if err := updated.Serialize(out); err != nil {
		return remaperr.Wrap(remaperr.Command, err, "writing range map %q", rangeMapPath)
	}

	helper.Infof("extracted %d file hash(es) to %s", len(hashes), rangeMapPath)
	return nil
}

func runApply(srcDir, outDir, rangeMapPath, mappingsPath string) error {
	helper := newLogger()
	defer helper.Sync()

	rm, err := loadRangeMap(rangeMapPath)
	if err != nil {
		return err
	}
	m, err := loadMappings(mappingsPath)
	if err != nil {
		return err
	}

	if err := orchestrate.ApplySource(srcDir, outDir, rm, m, &orchestrate.SourceOptions{Logger: helper}); err != nil {
		return remaperr.Wrap(remaperr.Command, err, "applying mappings")
	}
	helper.Infof("applied mappings from %s to %s", srcDir, outDir)
	return nil
}

func runRemapJar(inPath, outPath, mappingsPath string) error {
	helper := newLogger()
	defer helper.Sync()

	m, err := loadMappings(mappingsPath)
	if err != nil {
		return err
	}

	r, err := zip.OpenReader(inPath)
	if err != nil {
		return remaperr.Wrap(remaperr.Command, err, "opening input jar %q", inPath)
	}
	defer r.Close()

	out, err := os.Create(outPath)
	if err != nil {
		return remaperr.Wrap(remaperr.Command, err, "creating output jar %q", outPath)
	}
	defer out.Close()

	if err := orchestrate.RemapJar(out, &r.Reader, m, &orchestrate.JarOptions{Logger: helper}); err != nil {
		return remaperr.Wrap(remaperr.Command, err, "remapping jar")
	}
	helper.Infof("remapped %s to %s", inPath, outPath)
	return nil
}

func loadRangeMap(path string) (*rangemap.RangeMap, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, remaperr.Wrap(remaperr.Command, err, "opening range map %q", path)
	}
	defer f.Close()
	rm, err := rangemap.Deserialize(f)
	if err != nil {
		return nil, remaperr.Wrap(remaperr.Command, err, "reading range map %q", path)
	}
	return rm, nil
}

func loadMappings(path string) (*mapping.Mapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, remaperr.Wrap(remaperr.Command, err, "opening mappings %q", path)
	}
	defer f.Close()
	m, err := mappingfile.Read(f)
	if err != nil {
		return nil, remaperr.Wrap(remaperr.Command, err, "reading mappings %q", path)
	}
	return m, nil
}

func listJavaFiles(root string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".java") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	return out, err
}
