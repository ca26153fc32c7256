// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Command srgremap drives the three remap pipelines from the shell:
// refreshing a range map's file hashes for a source tree, applying a
// mapping to source, and writing a remapped copy of a jar.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/srgtools/remap/internal/remaperr"
)

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		if !remaperr.OfKind(err, remaperr.Command) {
			// Not a recognised user-misuse error: treat it as the fatal,
			// something-upstream-is-broken case and abort with a stack trace
			// rather than a one-line diagnostic.
			panic(err)
		}
		printCommandError(err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "srgremap",
		Short:         "Rename Java source and class-file symbols from a recorded mapping",
		Long:          "srgremap refreshes a range map's file hashes for a Java source tree, applies symbol renames recorded in a range map to source files, and writes a remapped copy of a jar archive.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newExtractCommand())
	root.AddCommand(newApplyCommand())
	root.AddCommand(newRemapJarCommand())
	return root
}

// printCommandError prints a Command-kind failure as a single diagnostic
// line, no stack trace. main only calls this once err is confirmed to
// carry remaperr.Command; anything else aborts via panic instead.
func printCommandError(err error) {
	fmt.Fprintf(os.Stderr, "srgremap: %v\n", err)
}
