package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/subcommands"

	"ember/compiler"
	"ember/disasm"
)

// emitCmd is the debugging collaborator exposed at the CLI: it compiles
// a source file and prints the resulting chunk's disassembly without
// ever running it.
type emitCmd struct{}

func (*emitCmd) Name() string     { return "emit" }
func (*emitCmd) Synopsis() string { return "Compile a source file and print its disassembled bytecode" }
func (*emitCmd) Usage() string {
	return `emit <file>:
  Compile a source file and dump a human-readable listing of its chunk.
`
}

func (*emitCmd) SetFlags(f *flag.FlagSet) {}

func (*emitCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	args := f.Args()
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "💥 file not provided")
		return subcommands.ExitUsageError
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "💥 failed to read file: %v\n", err)
		return subcommands.ExitFailure
	}

	c, err := compiler.Compile(string(data))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	name := strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
	disasm.Chunk(os.Stdout, c, name)
	return subcommands.ExitSuccess
}
