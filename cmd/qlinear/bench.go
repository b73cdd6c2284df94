package main

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/qlinear/internal/device"
	"github.com/samcharles93/qlinear/internal/logger"
	"github.com/samcharles93/qlinear/internal/qlinear"
	"github.com/samcharles93/qlinear/internal/tensor"
)

type benchResult struct {
	Batch      int
	Mean       time.Duration
	RowsPerSec float64
	Mallocs    float64
	Frees      float64
	Capacity   int
	Grew       bool
}

func benchCmd() *cli.Command {
	var (
		batches    []int64
		iterations int64
		warmup     int64
		seed       int64
		inputSize  int64
		outputSize int64
		withBias   bool
	)

	flags := append([]cli.Flag{}, commonLayerFlags()...)
	flags = append(flags,
		&cli.Int64SliceFlag{
			Name:        "batches",
			Usage:       "batch sizes to sweep, in order",
			Value:       []int64{1, 8, 32, 128, 32, 1},
			Destination: &batches,
		},
		&cli.Int64Flag{
			Name:        "iterations",
			Aliases:     []string{"n"},
			Usage:       "timed forward calls per batch size",
			Value:       10,
			Destination: &iterations,
		},
		&cli.Int64Flag{
			Name:        "warmup",
			Usage:       "untimed forward calls per batch size",
			Value:       1,
			Destination: &warmup,
		},
		&cli.Int64Flag{
			Name:        "seed",
			Usage:       "seed for synthetic activations and weights",
			Value:       1,
			Destination: &seed,
		},
		&cli.Int64Flag{
			Name:        "in",
			Usage:       "input size of the synthetic layer used when --model is not set",
			Value:       1024,
			Destination: &inputSize,
		},
		&cli.Int64Flag{
			Name:        "out",
			Usage:       "output size of the synthetic layer used when --model is not set",
			Value:       1024,
			Destination: &outputSize,
		},
		&cli.BoolFlag{
			Name:        "bias",
			Usage:       "give the synthetic layer a bias",
			Value:       true,
			Destination: &withBias,
		},
	)

	return &cli.Command{
		Name:   "bench",
		Usage:  "Sweep batch sizes through a layer and report latency and device allocations",
		Flags:  flags,
		Before: setup,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyBenchConfig(cmd, fileConfig, &batches)
			log := logger.FromContext(ctx)
			if iterations < 1 || warmup < 0 {
				return cli.Exit("error: --iterations must be >= 1 and --warmup >= 0", 1)
			}
			for _, b := range batches {
				if b < 1 {
					return cli.Exit(fmt.Sprintf("error: batch size %d must be >= 1", b), 1)
				}
			}

			rt, err := openDevice(ctx)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			defer func() { _ = rt.Close() }()
			counting := device.NewCounting(rt)

			var layer *qlinear.Layer
			if modelPath != "" {
				layer, err = loadLayer(ctx, counting)
			} else {
				log.Info("using synthetic layer", "input_size", inputSize, "output_size", outputSize, "bias", withBias)
				layer, err = qlinear.New(counting,
					syntheticWeights(seed, int(outputSize), int(inputSize), withBias),
					qlinear.WithLogger(log))
			}
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: load layer: %v", err), 1)
			}
			defer func() { _ = layer.Close() }()

			results, err := runBench(layer, counting, batches, int(iterations), int(warmup), seed)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: bench: %v", err), 1)
			}
			printBench(results, counting.Stats())
			return nil
		},
	}
}

// runBench times Forward for each batch size and records the device
// allocations each call made. Activations are regenerated before every call
// because Forward rescales them in place.
func runBench(layer *qlinear.Layer, counting *device.Counting, batches []int64, iterations, warmup int, seed int64) ([]benchResult, error) {
	results := make([]benchResult, 0, len(batches))
	for i, b := range batches {
		batch := int(b)
		src := tensor.NewMat(batch, layer.InputSize())
		tensor.FillRand(&src, seed+int64(i), 2)
		x := src.Clone()

		capBefore := layer.Capacity()
		for range warmup {
			copy(x.Data, src.Data)
			if _, err := layer.Forward(&x); err != nil {
				return nil, fmt.Errorf("batch %d warmup: %w", batch, err)
			}
		}

		before := counting.Stats()
		var elapsed time.Duration
		for range iterations {
			copy(x.Data, src.Data)
			start := time.Now()
			if _, err := layer.Forward(&x); err != nil {
				return nil, fmt.Errorf("batch %d: %w", batch, err)
			}
			elapsed += time.Since(start)
		}
		after := counting.Stats()

		mean := elapsed / time.Duration(iterations)
		res := benchResult{
			Batch:    batch,
			Mean:     mean,
			Mallocs:  float64(after.Mallocs-before.Mallocs) / float64(iterations),
			Frees:    float64(after.Frees-before.Frees) / float64(iterations),
			Capacity: layer.Capacity(),
			Grew:     layer.Capacity() > capBefore,
		}
		if mean > 0 {
			res.RowsPerSec = float64(batch) / mean.Seconds()
		}
		results = append(results, res)
	}
	return results, nil
}

func printBench(results []benchResult, total device.Stats) {
	_, _ = fmt.Fprintf(stdout, "%8s %12s %14s %10s %10s %9s %5s\n",
		"batch", "mean", "rows/s", "allocs/op", "frees/op", "capacity", "grew")
	for _, r := range results {
		grew := ""
		if r.Grew {
			grew = "yes"
		}
		_, _ = fmt.Fprintf(stdout, "%8d %12s %14.1f %10.2f %10.2f %9d %5s\n",
			r.Batch, r.Mean.Round(time.Microsecond), r.RowsPerSec, r.Mallocs, r.Frees, r.Capacity, grew)
	}
	_, _ = fmt.Fprintf(stdout, "\ndevice totals: mallocs=%d frees=%d live=%d live_bytes=%d uploads=%d downloads=%d gemms=%d\n",
		total.Mallocs, total.Frees, total.Live(), total.LiveBytes, total.Uploads, total.Downloads, total.Gemms)
}

// syntheticWeights returns a reproducible layer with weights in [-127, 127]
// and scales around 1/127.
func syntheticWeights(seed int64, out, in int, bias bool) qlinear.Weights {
	rng := rand.New(rand.NewSource(seed))
	w := qlinear.Weights{
		Weight:     make([]int8, out*in),
		OutputSize: out,
		InputSize:  in,
		Scale:      make([]float32, out),
	}
	for i := range w.Weight {
		w.Weight[i] = int8(rng.Intn(255) - 127)
	}
	for i := range w.Scale {
		w.Scale[i] = (0.5 + rng.Float32()) / 127
	}
	if bias {
		w.Bias = make([]float32, out)
		for i := range w.Bias {
			w.Bias[i] = rng.Float32() - 0.5
		}
	}
	return w
}
