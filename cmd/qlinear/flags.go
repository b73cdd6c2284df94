package main

import "github.com/urfave/cli/v3"

var (
	modelPath     string
	tensorPrefix  string
	backendName   string
	deviceOrdinal int64
	logLevel      string
	logFormat     string
	debug         bool
)

func commonLayerFlags() []cli.Flag {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "model",
			Aliases:     []string{"m"},
			Usage:       "path to .safetensors file holding the layer",
			Destination: &modelPath,
		},
		&cli.StringFlag{
			Name:        "prefix",
			Usage:       "tensor name prefix of the layer (e.g. \"decoder.out.\")",
			Destination: &tensorPrefix,
		},
	}
	return append(flags, commonDeviceFlags()...)
}

func commonDeviceFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "backend",
			Usage:       "accelerator backend (auto, cuda)",
			Value:       "auto",
			Destination: &backendName,
		},
		&cli.Int64Flag{
			Name:        "device",
			Usage:       "device ordinal",
			Value:       0,
			Destination: &deviceOrdinal,
		},
	}
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}
