package app

import (
	"flag"
	"io"
)

// Option configures the environment run by Run().
type Option func(o *opts)

type opts struct {
	flags     *flag.FlagSet
	args      []string
	logOutput io.Writer
}

// WithFlagSet parses args with flags instead of the process command line.
// Flags the task defines must already be registered on flags; Run adds
// -config.
func WithFlagSet(flags *flag.FlagSet, args []string) Option {
	return func(o *opts) {
		o.flags = flags
		o.args = args
	}
}

// WithLogOutput sends logs to w instead of stdout.
func WithLogOutput(w io.Writer) Option {
	return func(o *opts) {
		o.logOutput = w
	}
}
