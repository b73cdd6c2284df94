package main

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/qlinear/internal/qlinear"
	"github.com/samcharles93/qlinear/internal/safetensors"
)

func inspectCmd() *cli.Command {
	var (
		path   string
		prefix string
	)

	return &cli.Command{
		Name:      "inspect",
		Usage:     "List the tensors of a safetensors file and summarize a quantized layer",
		ArgsUsage: "[file.safetensors]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "model",
				Aliases:     []string{"m"},
				Usage:       "path to .safetensors file",
				Destination: &path,
			},
			&cli.StringFlag{
				Name:        "prefix",
				Usage:       "summarize the layer stored under this tensor name prefix",
				Destination: &prefix,
			},
		},
		Before: setup,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if path == "" {
				path = cmd.Args().First()
			}
			if path == "" {
				return cli.Exit("error: --model or a file argument is required", 1)
			}
			f, err := safetensors.Open(path)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: open %q: %v", path, err), 1)
			}
			defer func() { _ = f.Close() }()

			printTensors(f)
			if !cmd.IsSet("prefix") {
				return nil
			}
			w, err := qlinear.ReadWeights(f, prefix)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			printLayerSummary(prefix, w)
			return nil
		},
	}
}

func printTensors(f *safetensors.File) {
	_, _ = fmt.Fprintf(stdout, "file: %s\n", f.Path)
	for k, v := range f.Metadata {
		_, _ = fmt.Fprintf(stdout, "meta: %s=%s\n", k, v)
	}
	_, _ = fmt.Fprintf(stdout, "tensors: %d\n", len(f.Tensors))
	for _, name := range f.Names() {
		t, _ := f.Tensor(name)
		_, _ = fmt.Fprintf(stdout, "  %-40s %-5s %-16s %d bytes\n", name, t.DType, shapeString(t.Shape), t.End-t.Start)
	}
}

func printLayerSummary(prefix string, w qlinear.Weights) {
	wMin, wMax := int8(math.MaxInt8), int8(math.MinInt8)
	for _, v := range w.Weight {
		wMin = min(wMin, v)
		wMax = max(wMax, v)
	}
	sMin, sMax := float32(math.Inf(1)), float32(math.Inf(-1))
	for _, v := range w.Scale {
		sMin = min(sMin, v)
		sMax = max(sMax, v)
	}

	_, _ = fmt.Fprintf(stdout, "\nlayer %q\n", prefix)
	_, _ = fmt.Fprintf(stdout, "  output_size: %d\n", w.OutputSize)
	_, _ = fmt.Fprintf(stdout, "  input_size:  %d\n", w.InputSize)
	_, _ = fmt.Fprintf(stdout, "  bias:        %t\n", len(w.Bias) > 0)
	_, _ = fmt.Fprintf(stdout, "  weight:      [%d, %d]\n", wMin, wMax)
	_, _ = fmt.Fprintf(stdout, "  scale:       [%g, %g]\n", sMin, sMax)
	_, _ = fmt.Fprintf(stdout, "  device mem:  %d bytes weight, %d bytes accumulator per batch row\n",
		len(w.Weight), 4*w.OutputSize)
	if w.InputSize > qlinear.MaxSafeInputSize {
		_, _ = fmt.Fprintf(stdout, "  warning:     input_size exceeds %d; int32 accumulation may overflow\n", qlinear.MaxSafeInputSize)
	}
}

func shapeString(shape []int) string {
	parts := make([]string, len(shape))
	for i, d := range shape {
		parts[i] = fmt.Sprint(d)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
