package cmd

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// RootCmd is the gdb-trace entry point; each subcommand attaches itself via
// init(), mirroring the teacher's own RootCmd.AddCommand pattern.
var RootCmd = &cobra.Command{
	Use:   "gdbtrace",
	Short: "record and replay multithreaded source-level execution traces with gdb",
}

var verbose bool

func init() {
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// Execute runs the root command, exiting non-zero on failure.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newLogger builds the per-run logger, tagged with a fresh run id so the
// trace/replay/inspect logs for one invocation can be grepped out of a
// shared log stream even when runs overlap.
func newLogger() *logrus.Entry {
	log := logrus.New()
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	return logrus.NewEntry(log).WithField("run_id", uuid.NewString())
}
