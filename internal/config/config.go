// Package config loads the JSON run configuration shared by the trace and
// replay subcommands. The loader stays on the standard library's
// encoding/json deliberately: the config file is a thin, externally-owned
// collaborator boundary (hand-authored or emitted by calling tooling), not
// an internal data model, and the distilled keys map directly onto struct
// fields with no need for a schema/defaults DSL.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config is the on-disk run configuration. Cmd, Srcdir are required for
// every run; Load only rejects a config missing Cmd/Srcdir, the two keys
// every mode of operation needs. The per-subcommand paths (Log, Output,
// Blacklist) are not checked for presence; an empty one surfaces as an error
// when the subcommand opens that file.
type Config struct {
	Cmd    []string `json:"cmd"`
	Srcdir string   `json:"srcdir"`

	// Log is the trace.log path: written by trace, read by replay.
	Log string `json:"log"`
	// Output is the PC log path written by replay; trace does not use it.
	Output string `json:"output"`
	// Blacklist is trace's skip-list output path (separate from Output,
	// which trace uses for... nothing at present; kept distinct from
	// replay's Output to mirror the two engines' independent on-disk
	// contracts).
	Blacklist string `json:"blacklist"`

	StepTime float64 `json:"steptime"`
	// Timeout is the whole-run wall-clock budget, in seconds; zero means
	// no limit.
	Timeout float64 `json:"timeout"`
	Cwd     string  `json:"cwd"`

	OnlyMultithread bool `json:"only_multithread"`
	// GoDeeper is the probability in [0,1] of stepping into (rather than
	// over) a freshly created thread's calls; a pointer so an absent key is
	// distinguishable from an explicit 0, since the tracer treats "unset"
	// (left nil, carried as -1 on tracer.Options) differently from "always
	// next" (0).
	GoDeeper *float64 `json:"go_deeper"`
}

const defaultStepTime = 1.0

// Load reads and validates a run configuration from path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if len(cfg.Cmd) == 0 {
		return nil, fmt.Errorf("config %s: \"cmd\" is required", path)
	}
	if cfg.Srcdir == "" {
		return nil, fmt.Errorf("config %s: \"srcdir\" is required", path)
	}
	if cfg.StepTime == 0 {
		cfg.StepTime = defaultStepTime
	}
	return &cfg, nil
}
