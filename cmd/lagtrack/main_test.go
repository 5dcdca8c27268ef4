package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/notargets/lagtrack/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pipe = `
[run]
steps = 3
dt = 0.5
ranks = 2

[mesh]
cells = [4, 1, 1]
lo = [0, 0, 0]
hi = [4, 1, 1]

[flow]
velocity = [1, 0, 0]
density = 1.2
viscosity = 1.8e-5

[[zone]]
group = "xmin"
nature = "inlet"

[[zone]]
group = "xmax"
nature = "outlet"

[[zone]]
group = "ymin"
nature = "rebound"

[[zone]]
group = "ymax"
nature = "rebound"

[[zone]]
group = "zmin"
nature = "symmetry"

[[zone]]
group = "zmax"
nature = "symmetry"

[[injection]]
zone = "xmin"
number = 10
diameter = 1e-5
density = 1000
velocity = [1, 0, 0]
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errs bytes.Buffer
	root := newRoot()
	root.SetOut(&out)
	root.SetErr(&errs)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipe.toml")
	require.NoError(t, os.WriteFile(path, []byte(pipe), 0o644))
	return path
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "lagtrack v"+Version)
}

func TestValidate(t *testing.T) {
	out, err := execute(t, "validate", "--config", writeConfig(t), "--log-level", "warn")
	require.NoError(t, err)
	assert.Contains(t, out, "4 cells, 6 zones, 2 ranks")

	_, err = execute(t, "validate")
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestRun(t *testing.T) {
	out, err := execute(t, "run", "--config", writeConfig(t), "--log-level", "warn", "--log-format", "json")
	require.NoError(t, err)
	assert.Contains(t, out, "step 3")
	assert.Contains(t, out, "injected")

	_, err = execute(t, "run", "--config", writeConfig(t), "--log-level", "loud")
	assert.Error(t, err)
}
