package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/rb130/gdb-trace/internal/adapter"
	"github.com/rb130/gdb-trace/internal/config"
	"github.com/rb130/gdb-trace/internal/inspect"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <config.json>",
	Short: "start the inferior under the same adapter and step it interactively",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

func init() {
	RootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	log := newLogger()

	cfg, err := config.Load(args[0])
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	dbg, err := adapter.NewMI("gdb", nil, log)
	if err != nil {
		return err
	}
	defer dbg.Quit()

	if err := dbg.LoadExecutable(cfg.Cmd[0]); err != nil {
		return fmt.Errorf("loading executable: %w", err)
	}
	if err := dbg.SetArgs(cfg.Cmd[1:]); err != nil {
		return err
	}
	if err := dbg.ApplyStandardOptions(); err != nil {
		return err
	}
	if err := dbg.Start(); err != nil {
		return fmt.Errorf("starting inferior: %w", err)
	}

	home, _ := os.UserHomeDir()
	repl, err := inspect.New(dbg, filepath.Join(home, ".gdbtrace_history"))
	if err != nil {
		return err
	}
	defer repl.Close()

	runID, _ := log.Data["run_id"].(string)
	color.Cyan("gdbtrace inspect session %s", runID)
	repl.Run()
	return nil
}
