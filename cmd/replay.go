package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rb130/gdb-trace/internal/adapter"
	"github.com/rb130/gdb-trace/internal/config"
	"github.com/rb130/gdb-trace/internal/launcher"
	"github.com/rb130/gdb-trace/internal/replayer"
)

var replayCmd = &cobra.Command{
	Use:   "replay <config.json>",
	Short: "replay a recorded trace.log and emit the PC log it produces",
	Args:  cobra.ExactArgs(1),
	RunE:  runReplay,
}

func init() {
	RootCmd.AddCommand(replayCmd)
}

func runReplay(cmd *cobra.Command, args []string) error {
	log := newLogger()

	cfg, err := config.Load(args[0])
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	dbg, err := adapter.NewMI("gdb", nil, log)
	if err != nil {
		return fmt.Errorf("%w", err)
	}

	r := replayer.New(dbg, cfg.Srcdir, cfg.StepTime, log)

	log.WithField("cmd", cfg.Cmd).Info("starting replay run")
	timeout := time.Duration(cfg.Timeout * float64(time.Second))
	return launcher.RunWithTimeout(context.Background(), timeout, dbg.Quit, func() error {
		if err := r.Start(cfg.Cmd); err != nil {
			return fmt.Errorf("starting replay session: %w", err)
		}
		if err := r.Open(cfg.Output); err != nil {
			return fmt.Errorf("opening pc log: %w", err)
		}
		defer r.Close()
		return r.Run(cfg.Log)
	}, log)
}
