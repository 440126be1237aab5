package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"

	"ember/compiler"
	"ember/vm"
)

type runCmd struct {
	trace bool
}

func (*runCmd) Name() string     { return "run" }
func (*runCmd) Synopsis() string { return "Execute source code from a file" }
func (*runCmd) Usage() string {
	return `run <file>:
  Compile and execute a source file.
`
}

func (r *runCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&r.trace, "trace", false, "log each executed instruction and the operand stack")
}

func (r *runCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
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

	opts := []vm.Option{}
	if r.trace {
		logger := logrus.New()
		logger.SetLevel(logrus.DebugLevel)
		opts = append(opts, vm.WithTrace(logger))
	}

	if _, err := vm.New(c, opts...).Run(); err != nil {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
