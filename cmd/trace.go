package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rb130/gdb-trace/internal/adapter"
	"github.com/rb130/gdb-trace/internal/config"
	"github.com/rb130/gdb-trace/internal/launcher"
	"github.com/rb130/gdb-trace/internal/tracer"
)

var traceCmd = &cobra.Command{
	Use:   "trace <config.json>",
	Short: "record one randomized multithreaded execution interleaving",
	Args:  cobra.ExactArgs(1),
	RunE:  runTrace,
}

func init() {
	RootCmd.AddCommand(traceCmd)
}

func runTrace(cmd *cobra.Command, args []string) error {
	log := newLogger()

	cfg, err := config.Load(args[0])
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	dbg, err := adapter.NewMI("gdb", nil, log)
	if err != nil {
		return fmt.Errorf("%w", err)
	}

	opts := tracer.DefaultOptions()
	opts.Cmd = cfg.Cmd
	opts.Srcdir = cfg.Srcdir
	opts.LogPath = cfg.Log
	opts.BlacklistPath = cfg.Blacklist
	opts.OnlyMultithread = cfg.OnlyMultithread
	if cfg.GoDeeper != nil {
		opts.GoDeeper = *cfg.GoDeeper
	}
	if cfg.StepTime > 0 {
		opts.StepTimeout = time.Duration(cfg.StepTime * float64(time.Second))
	}

	t := tracer.New(dbg, opts, log)

	log.WithField("cmd", cfg.Cmd).Info("starting trace run")
	timeout := time.Duration(cfg.Timeout * float64(time.Second))
	return launcher.RunWithTimeout(context.Background(), timeout, dbg.Quit, func() error {
		if err := t.Start(); err != nil {
			return fmt.Errorf("starting trace session: %w", err)
		}
		return t.Run()
	}, log)
}
