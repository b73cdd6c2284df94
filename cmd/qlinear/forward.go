package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	json "github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/qlinear/internal/logger"
	"github.com/samcharles93/qlinear/internal/tensor"
)

// Seams for tests.
var (
	stdin  io.Reader = os.Stdin
	stdout io.Writer = os.Stdout
)

func forwardCmd() *cli.Command {
	var (
		inputPath  string
		outputPath string
		copyInput  bool
	)

	flags := append([]cli.Flag{}, commonLayerFlags()...)
	flags = append(flags,
		&cli.StringFlag{
			Name:        "input",
			Aliases:     []string{"i"},
			Usage:       "JSON file with the activation rows ([[...], ...]); - reads stdin",
			Value:       "-",
			Destination: &inputPath,
		},
		&cli.StringFlag{
			Name:        "output",
			Aliases:     []string{"o"},
			Usage:       "where to write the output rows as JSON; - writes stdout",
			Value:       "-",
			Destination: &outputPath,
		},
		&cli.BoolFlag{
			Name:        "copy",
			Usage:       "quantize a copy of the input instead of rescaling it in place",
			Destination: &copyInput,
		},
	)

	return &cli.Command{
		Name:   "forward",
		Usage:  "Run one batch through a quantized linear layer",
		Flags:  flags,
		Before: setup,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyForwardConfig(cmd, fileConfig, &copyInput)
			log := logger.FromContext(ctx)

			rows, err := readRows(inputPath)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: read input: %v", err), 1)
			}

			rt, err := openDevice(ctx)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			defer func() { _ = rt.Close() }()

			layer, err := loadLayer(ctx, rt)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: load layer: %v", err), 1)
			}
			defer func() { _ = layer.Close() }()

			x, err := batchMatrix(rows, layer.InputSize())
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: input: %v", err), 1)
			}

			start := time.Now()
			forward := layer.Forward
			if copyInput {
				forward = layer.ForwardCopy
			}
			out, err := forward(&x)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: forward: %v", err), 1)
			}
			log.Debug("forward done", "batch", out.R, "output_size", out.C, "elapsed", time.Since(start))

			if err := writeRows(outputPath, out.Rows()); err != nil {
				return cli.Exit(fmt.Sprintf("error: write output: %v", err), 1)
			}
			return nil
		},
	}
}

// batchMatrix converts rows to a batch. No rows is an empty batch of width
// inputSize.
func batchMatrix(rows [][]float32, inputSize int) (tensor.Mat, error) {
	if len(rows) == 0 {
		return tensor.NewMat(0, inputSize), nil
	}
	return tensor.FromRows(rows)
}

func readRows(path string) ([][]float32, error) {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer func() { _ = f.Close() }()
		r = f
	}
	var rows [][]float32
	if err := json.NewDecoder(r).Decode(&rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func writeRows(path string, rows [][]float32) (err error) {
	var w io.Writer = stdout
	if path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := f.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}()
		w = f
	}
	return json.NewEncoder(w).Encode(rows)
}
