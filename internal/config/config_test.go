package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaultStepTime(t *testing.T) {
	path := writeConfig(t, `{"cmd": ["./a.out"], "srcdir": "/src"}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, defaultStepTime, cfg.StepTime)
}

func TestLoadRejectsMissingCmd(t *testing.T) {
	path := writeConfig(t, `{"srcdir": "/src"}`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsMissingSrcdir(t *testing.T) {
	path := writeConfig(t, `{"cmd": ["./a.out"]}`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadKeepsExplicitStepTime(t *testing.T) {
	path := writeConfig(t, `{"cmd": ["./a.out"], "srcdir": "/src", "steptime": 0.25}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.25, cfg.StepTime)
}

func TestLoadLeavesGoDeeperNilWhenAbsent(t *testing.T) {
	path := writeConfig(t, `{"cmd": ["./a.out"], "srcdir": "/src"}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Nil(t, cfg.GoDeeper)
}

func TestLoadDistinguishesExplicitZeroGoDeeper(t *testing.T) {
	path := writeConfig(t, `{"cmd": ["./a.out"], "srcdir": "/src", "go_deeper": 0}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, cfg.GoDeeper)
	assert.Equal(t, 0.0, *cfg.GoDeeper)
}
