package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"
)

const sampleConfig = `
backend: cuda
device: 2
log_level: debug
log_format: json
copy_input: true
bench_batches: [2, 16]
server_address: 0.0.0.0:9000
`

func TestReadConfig(t *testing.T) {
	cfg, err := readConfig(writeFile(t, "config.yaml", sampleConfig))
	require.NoError(t, err)
	assert.Equal(t, "cuda", cfg.Backend)
	require.NotNil(t, cfg.Device)
	assert.EqualValues(t, 2, *cfg.Device)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	require.NotNil(t, cfg.CopyInput)
	assert.True(t, *cfg.CopyInput)
	assert.Equal(t, []int64{2, 16}, cfg.BenchBatches)
	assert.Equal(t, "0.0.0.0:9000", cfg.ServerAddress)
}

func TestReadConfigMissingFile(t *testing.T) {
	cfg, err := readConfig(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Config{}, cfg)
}

func TestReadConfigMalformed(t *testing.T) {
	_, err := readConfig(writeFile(t, "config.yaml", "backend: [unterminated"))
	assert.Error(t, err)
}

func TestConfigPathFromEnv(t *testing.T) {
	t.Setenv(envConfigPath, "/etc/qlinear.yaml")
	assert.Equal(t, "/etc/qlinear.yaml", configPath())
}

// applyWith parses args against a command carrying the forward flags and
// applies cfg the way the forward command does.
func applyWith(t *testing.T, cfg Config, args ...string) bool {
	t.Helper()
	var copyInput bool
	cmd := &cli.Command{
		Name: "test",
		Flags: append(commonLayerFlags(), &cli.BoolFlag{
			Name:        "copy",
			Destination: &copyInput,
		}),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyForwardConfig(cmd, cfg, &copyInput)
			return nil
		},
	}
	require.NoError(t, cmd.Run(context.Background(), append([]string{"test"}, args...)))
	return copyInput
}

func TestConfigFillsUnsetFlags(t *testing.T) {
	newHarness(t)
	cfg, err := readConfig(writeFile(t, "config.yaml", sampleConfig))
	require.NoError(t, err)

	copyInput := applyWith(t, cfg)
	assert.True(t, copyInput)
	assert.Equal(t, "cuda", backendName)
	assert.EqualValues(t, 2, deviceOrdinal)
}

func TestFlagsOverrideConfig(t *testing.T) {
	newHarness(t)
	cfg, err := readConfig(writeFile(t, "config.yaml", sampleConfig))
	require.NoError(t, err)

	copyInput := applyWith(t, cfg, "--backend", "auto", "--device", "0", "--copy=false")
	assert.False(t, copyInput)
	assert.Equal(t, "auto", backendName)
	assert.EqualValues(t, 0, deviceOrdinal)
}

func TestConfigFileDrivesCommands(t *testing.T) {
	h := newHarness(t)
	t.Setenv(envConfigPath, writeFile(t, "config.yaml", sampleConfig))

	require.NoError(t, h.run("bench", "--in", "4", "--out", "4", "--iterations", "1"))
	assert.Equal(t, []string{"cuda"}, h.opened)
	assert.Contains(t, h.logs.String(), `"level":"DEBUG"`, "log_level and log_format come from the file")
	assert.Contains(t, h.out.String(), "      16 ")
}

func TestMalformedConfigFailsCommand(t *testing.T) {
	h := newHarness(t)
	t.Setenv(envConfigPath, writeFile(t, "config.yaml", "log_level: [oops"))
	assert.Error(t, h.run("forward", "-m", writeLayer(t)))
	assert.Empty(t, h.opened)
}
