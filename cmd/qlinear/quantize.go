package main

import (
	"context"
	"fmt"
	"math"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/qlinear/internal/logger"
	"github.com/samcharles93/qlinear/internal/qlinear"
	"github.com/samcharles93/qlinear/internal/safetensors"
)

func quantizeCmd() *cli.Command {
	var (
		inPath    string
		outPath   string
		inPrefix  string
		outPrefix string
	)

	return &cli.Command{
		Name:  "quantize",
		Usage: "Quantize a float linear layer (F32/F16/BF16) to int8 weights with per-channel scales",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "input",
				Aliases:     []string{"i"},
				Usage:       "source .safetensors file with a float <prefix>weight [out, in] and optional <prefix>bias",
				Required:    true,
				Destination: &inPath,
			},
			&cli.StringFlag{
				Name:        "output",
				Aliases:     []string{"o"},
				Usage:       "destination .safetensors file",
				Required:    true,
				Destination: &outPath,
			},
			&cli.StringFlag{
				Name:        "prefix",
				Usage:       "tensor name prefix of the layer in the source file",
				Destination: &inPrefix,
			},
			&cli.StringFlag{
				Name:        "out-prefix",
				Usage:       "tensor name prefix in the destination file (default: --prefix)",
				Destination: &outPrefix,
			},
		},
		Before: setup,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			if !cmd.IsSet("out-prefix") {
				outPrefix = inPrefix
			}

			src, err := safetensors.Open(inPath)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: open %q: %v", inPath, err), 1)
			}
			defer func() { _ = src.Close() }()

			fw, shape, err := src.ReadF32(inPrefix + qlinear.TensorWeight)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			if len(shape) != 2 {
				return cli.Exit(fmt.Sprintf("error: %s: want 2-D shape, got %v", inPrefix+qlinear.TensorWeight, shape), 1)
			}
			var bias []float32
			if src.Has(inPrefix + qlinear.TensorBias) {
				if bias, _, err = src.ReadF32(inPrefix + qlinear.TensorBias); err != nil {
					return cli.Exit(fmt.Sprintf("error: %v", err), 1)
				}
			}

			w, err := qlinear.QuantizeWeights(fw, shape[0], shape[1], bias)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: quantize: %v", err), 1)
			}
			if err := writeWeights(outPath, outPrefix, w); err != nil {
				return cli.Exit(fmt.Sprintf("error: write %q: %v", outPath, err), 1)
			}

			log.Info("layer quantized",
				"output", outPath,
				"prefix", outPrefix,
				"output_size", w.OutputSize,
				"input_size", w.InputSize,
				"bias", len(w.Bias) > 0,
				"max_error", maxReconstructionError(fw, w),
			)
			return nil
		},
	}
}

func writeWeights(path, prefix string, w qlinear.Weights) (err error) {
	tensors := map[string]safetensors.Tensor{
		prefix + qlinear.TensorWeight: safetensors.I8Tensor([]int{w.OutputSize, w.InputSize}, w.Weight),
		prefix + qlinear.TensorScale:  safetensors.F32Tensor([]int{w.OutputSize}, w.Scale),
	}
	if len(w.Bias) > 0 {
		tensors[prefix+qlinear.TensorBias] = safetensors.F32Tensor([]int{w.OutputSize}, w.Bias)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return safetensors.Write(f, tensors, map[string]string{"quantization": "int8-symmetric-per-channel"})
}

// maxReconstructionError is the largest |w - q*scale/127| over the weight.
func maxReconstructionError(fw []float32, w qlinear.Weights) float64 {
	var worst float64
	for i, v := range fw {
		o := i / w.InputSize
		r := float64(w.Weight[i]) * float64(w.Scale[o]) / 127
		worst = max(worst, math.Abs(float64(v)-r))
	}
	return worst
}
