package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/qlinear/internal/backend"
	"github.com/samcharles93/qlinear/internal/device"
	"github.com/samcharles93/qlinear/internal/logger"
	"github.com/samcharles93/qlinear/internal/qlinear"
	"github.com/samcharles93/qlinear/internal/safetensors"
)

var (
	// fileConfig is loaded once per invocation by setup.
	fileConfig Config

	// Seams for tests.
	openRuntime           = backend.Open
	logOutput   io.Writer = os.Stderr
)

// setup is the Before hook of every subcommand: it loads the config file and
// installs the logger selected by flags and config into ctx.
func setup(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return ctx, cli.Exit(fmt.Sprintf("error: %v", err), 1)
	}
	fileConfig = cfg
	applyLoggingConfig(cmd, cfg)

	level := logger.ParseLevel(logLevel)
	if debug {
		level = slog.LevelDebug
	}
	log, err := logger.ForFormat(logFormat, logOutput, level)
	if err != nil {
		return ctx, cli.Exit(fmt.Sprintf("error: %v", err), 1)
	}
	return logger.WithContext(ctx, log), nil
}

func openDevice(ctx context.Context) (device.Runtime, error) {
	name, err := backend.Normalize(backendName)
	if err != nil {
		return nil, err
	}
	rt, err := openRuntime(name, int(deviceOrdinal))
	if err != nil {
		return nil, fmt.Errorf("open %s backend (available: %q): %w", name, backend.Available(), err)
	}
	logger.FromContext(ctx).Debug("device opened", "device", rt.Name())
	return rt, nil
}

// loadLayer reads the layer under tensorPrefix from modelPath and places it
// on rt. The file is closed before returning; the layer keeps its own copies.
func loadLayer(ctx context.Context, rt device.Runtime) (*qlinear.Layer, error) {
	if modelPath == "" {
		return nil, fmt.Errorf("--model is required")
	}
	log := logger.FromContext(ctx)
	f, err := safetensors.Open(modelPath)
	if err != nil {
		return nil, fmt.Errorf("open model %q: %w", modelPath, err)
	}
	defer func() { _ = f.Close() }()

	layer, err := qlinear.Load(rt, f, tensorPrefix, qlinear.WithLogger(log))
	if err != nil {
		return nil, err
	}
	log.Info("layer loaded",
		"path", modelPath,
		"prefix", tensorPrefix,
		"output_size", layer.OutputSize(),
		"input_size", layer.InputSize(),
		"device", rt.Name(),
	)
	return layer, nil
}
